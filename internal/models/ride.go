package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RideStatus string

const (
	RideStatusWaiting    RideStatus = "waiting"
	RideStatusOnTheWay   RideStatus = "on_the_way"
	RideStatusArrived    RideStatus = "arrived"
	RideStatusInProgress RideStatus = "in_progress"
	RideStatusCompleted  RideStatus = "completed"
	RideStatusCancelled  RideStatus = "cancelled"
)

// rideProgression is the only forward path a ride may take, one step at a time.
var rideProgression = []RideStatus{
	RideStatusWaiting,
	RideStatusOnTheWay,
	RideStatusArrived,
	RideStatusInProgress,
	RideStatusCompleted,
}

func (s RideStatus) Valid() bool {
	return s == RideStatusCancelled || contains(rideProgression, s)
}

func (s RideStatus) IsTerminal() bool {
	return s == RideStatusCompleted || s == RideStatusCancelled
}

// CanTransitionTo is the single source of truth for Ride status changes.
func (s RideStatus) CanTransitionTo(next RideStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if next == RideStatusCancelled {
		return true
	}
	for i := 0; i < len(rideProgression)-1; i++ {
		if rideProgression[i] == s {
			return rideProgression[i+1] == next
		}
	}
	return false
}

// Ride is the operational tracking record for a selected Offer.
type Ride struct {
	ID        string     `json:"id" gorm:"primaryKey;size:36"`
	RequestID string     `json:"requestId" gorm:"not null;uniqueIndex;size:36"`
	OfferID   string     `json:"offerId" gorm:"not null;size:36"`
	DriverID  string     `json:"driverId" gorm:"not null;index"`
	ClientID  string     `json:"clientId" gorm:"not null;index"`
	Status    RideStatus `json:"status" gorm:"not null;index;default:'waiting'"`

	PickupLat float64  `json:"pickupLat" gorm:"not null"`
	PickupLng float64  `json:"pickupLng" gorm:"not null"`
	DestLat   *float64 `json:"destLat,omitempty"`
	DestLng   *float64 `json:"destLng,omitempty"`

	DriverLat      *float64   `json:"driverLat,omitempty"`
	DriverLng      *float64   `json:"driverLng,omitempty"`
	LastPositionAt *time.Time `json:"lastPositionAt,omitempty"`

	DistanceToPickupKm      *float64 `json:"distanceToPickupKm,omitempty"`
	DistanceToDestinationKm *float64 `json:"distanceToDestinationKm,omitempty"`
	PickupETAMinutes        *int     `json:"pickupEtaMinutes,omitempty"`
	DestinationETAMinutes   *int     `json:"destinationEtaMinutes,omitempty"`

	ArrivedAt            *time.Time `json:"arrivedAt,omitempty"`
	StartedAt            *time.Time `json:"startedAt,omitempty"`
	CompletedAt          *time.Time `json:"completedAt,omitempty"`
	DestinationArrivedAt *time.Time `json:"destinationArrivedAt,omitempty"`
	CancelledAt          *time.Time `json:"cancelledAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName specifies the table name
func (Ride) TableName() string {
	return "rides"
}

func (r *Ride) HasDestination() bool {
	return r.DestLat != nil && r.DestLng != nil
}

// BeforeCreate assigns an id when the caller has not.
func (r *Ride) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
