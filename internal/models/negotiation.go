package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type NegotiationStatus string

const (
	NegotiationStatusPending  NegotiationStatus = "pending"
	NegotiationStatusAccepted NegotiationStatus = "accepted"
	NegotiationStatusRejected NegotiationStatus = "rejected"
)

// NegotiationEntry is one counter-proposal in the history of an Offer. Entries
// are append-only; Status is the only field ever mutated, exactly once.
type NegotiationEntry struct {
	ID               string            `json:"id" gorm:"primaryKey;size:36"`
	OfferID          string            `json:"offerId" gorm:"not null;size:36;uniqueIndex:idx_negotiation_offer_seq,priority:1"`
	Sequence         int               `json:"sequence" gorm:"not null;uniqueIndex:idx_negotiation_offer_seq,priority:2"`
	Role             Role              `json:"role" gorm:"not null"`
	OriginatorID     string            `json:"originatorId" gorm:"not null"`
	Price            float64           `json:"price" gorm:"not null;check:price > 0"`
	ProposedDuration *string           `json:"proposedDuration,omitempty"`
	Message          string            `json:"message"`
	Status           NegotiationStatus `json:"status" gorm:"not null;default:'pending'"`
	CreatedAt        time.Time         `json:"createdAt"`
	ResolvedAt       *time.Time        `json:"resolvedAt,omitempty"`
	ResolvedBy       *string           `json:"resolvedBy,omitempty"`
}

// TableName specifies the table name
func (NegotiationEntry) TableName() string {
	return "negotiation_entries"
}

// BeforeCreate assigns an id when the caller has not.
func (e *NegotiationEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}
