package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RequestStatus string

const (
	RequestStatusActive         RequestStatus = "active"
	RequestStatusDriverSelected RequestStatus = "driver_selected"
	RequestStatusCompleted      RequestStatus = "completed"
	RequestStatusCancelled      RequestStatus = "cancelled"
)

var requestTransitions = map[RequestStatus][]RequestStatus{
	RequestStatusActive:         {RequestStatusDriverSelected, RequestStatusCancelled},
	RequestStatusDriverSelected: {RequestStatusCompleted, RequestStatusCancelled},
}

func (s RequestStatus) IsTerminal() bool {
	return s == RequestStatusCompleted || s == RequestStatusCancelled
}

// CanTransitionTo is the single source of truth for Request status changes.
func (s RequestStatus) CanTransitionTo(next RequestStatus) bool {
	return contains(requestTransitions[s], next)
}

type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// Request is a client's posted job for pickup, charging or valet service.
type Request struct {
	ID              string        `json:"id" gorm:"primaryKey;size:36"`
	ClientID        string        `json:"clientId" gorm:"not null;index"`
	PickupLat       float64       `json:"pickupLat" gorm:"not null"`
	PickupLng       float64       `json:"pickupLng" gorm:"not null"`
	PickupAddr      string        `json:"pickupAddress" gorm:"not null"`
	DestLat         *float64      `json:"destLat,omitempty"`
	DestLng         *float64      `json:"destLng,omitempty"`
	DestAddr        string        `json:"destAddress,omitempty"`
	Vehicle         string        `json:"vehicle" gorm:"not null"`
	BatteryLevel    int           `json:"batteryLevel" gorm:"not null;check:battery_level >= 0 AND battery_level <= 100"`
	Urgency         Urgency       `json:"urgency" gorm:"not null;default:'medium'"`
	Price           float64       `json:"price" gorm:"not null;check:price > 0"`
	ContactPhone    string        `json:"contactPhone" gorm:"not null"`
	Status          RequestStatus `json:"status" gorm:"not null;index;default:'active'"`
	SelectedOfferID *string       `json:"selectedOfferId,omitempty" gorm:"size:36"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

// TableName specifies the table name
func (Request) TableName() string {
	return "service_requests"
}

func (r *Request) HasDestination() bool {
	return r.DestLat != nil && r.DestLng != nil
}

func contains[T comparable](set []T, v T) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// BeforeCreate assigns an id when the caller has not.
func (r *Request) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
