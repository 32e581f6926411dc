package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type OfferStatus string

const (
	OfferStatusPending     OfferStatus = "pending"
	OfferStatusAccepted    OfferStatus = "accepted"
	OfferStatusNegotiating OfferStatus = "negotiating"
	OfferStatusSelected    OfferStatus = "selected"
	OfferStatusRejected    OfferStatus = "rejected"
	OfferStatusCompleted   OfferStatus = "completed"
)

// accepted -> negotiating: a counter-proposal always reopens discussion.
// pending -> selected: a client may select a bid without haggling.
// selected -> rejected: the request was cancelled after selection.
var offerTransitions = map[OfferStatus][]OfferStatus{
	OfferStatusPending:     {OfferStatusAccepted, OfferStatusRejected, OfferStatusNegotiating, OfferStatusSelected},
	OfferStatusAccepted:    {OfferStatusNegotiating, OfferStatusCompleted, OfferStatusRejected},
	OfferStatusNegotiating: {OfferStatusSelected, OfferStatusRejected},
	OfferStatusSelected:    {OfferStatusCompleted, OfferStatusRejected},
}

func (s OfferStatus) Valid() bool {
	switch s {
	case OfferStatusPending, OfferStatusAccepted, OfferStatusNegotiating,
		OfferStatusSelected, OfferStatusRejected, OfferStatusCompleted:
		return true
	}
	return false
}

func (s OfferStatus) IsTerminal() bool {
	return s == OfferStatusRejected || s == OfferStatusCompleted
}

// CanTransitionTo is the single source of truth for Offer status changes.
func (s OfferStatus) CanTransitionTo(next OfferStatus) bool {
	return contains(offerTransitions[s], next)
}

// Negotiable reports whether counter-proposals may still be exchanged.
func (s OfferStatus) Negotiable() bool {
	return s == OfferStatusPending || s == OfferStatusAccepted || s == OfferStatusNegotiating
}

// Offer is a driver's bid against exactly one Request.
type Offer struct {
	ID                string      `json:"id" gorm:"primaryKey;size:36"`
	RequestID         string      `json:"requestId" gorm:"not null;index;size:36"`
	DriverID          string      `json:"driverId" gorm:"not null;index"`
	Price             float64     `json:"price" gorm:"not null;check:price > 0"`
	EstimatedDuration string      `json:"estimatedDuration"`
	Message           string      `json:"message"`
	Status            OfferStatus `json:"status" gorm:"not null;index;default:'pending'"`
	LastActivityAt    time.Time   `json:"lastActivityAt" gorm:"not null"`
	CreatedAt         time.Time   `json:"createdAt"`
	UpdatedAt         time.Time   `json:"updatedAt"`

	// Inactive marks sibling offers voided by another offer's selection.
	Inactive bool `json:"inactive" gorm:"-"`
}

// TableName specifies the table name
func (Offer) TableName() string {
	return "offers"
}

// BeforeCreate assigns an id when the caller has not.
func (o *Offer) BeforeCreate(tx *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	return nil
}
