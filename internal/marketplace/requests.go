package marketplace

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chachabrian/evvalet-backend/internal/models"
	"github.com/chachabrian/evvalet-backend/internal/storage"
	"github.com/chachabrian/evvalet-backend/pkg/utils"
)

// CreateRequestInput is what a client posts to open a job.
type CreateRequestInput struct {
	PickupLat     float64        `json:"pickupLat" validate:"latitude"`
	PickupLng     float64        `json:"pickupLng" validate:"longitude"`
	PickupAddress string         `json:"pickupAddress" validate:"required,max=255"`
	DestLat       *float64       `json:"destLat" validate:"required_with=DestLng,omitempty,latitude"`
	DestLng       *float64       `json:"destLng" validate:"required_with=DestLat,omitempty,longitude"`
	DestAddress   string         `json:"destAddress" validate:"max=255"`
	Vehicle       string         `json:"vehicle" validate:"required,max=255"`
	BatteryLevel  int            `json:"batteryLevel" validate:"gte=0,lte=100"`
	Urgency       models.Urgency `json:"urgency" validate:"omitempty,oneof=low medium high"`
	Price         float64        `json:"price" validate:"gt=0"`
	ContactPhone  string         `json:"contactPhone" validate:"required,max=32"`
}

// Selection is the outcome of SelectOffer.
type Selection struct {
	Request models.Request `json:"request"`
	Offer   models.Offer   `json:"offer"`
	Ride    models.Ride    `json:"ride"`
}

func (s *Service) CreateRequest(ctx context.Context, actor models.Actor, in CreateRequestInput) (*models.Request, error) {
	if !actor.Is(models.RoleClient) {
		return nil, fmt.Errorf("%w: only clients post requests", ErrNotAuthorized)
	}
	if err := s.validateInput(in); err != nil {
		return nil, err
	}
	if !utils.ValidCoordinates(in.PickupLat, in.PickupLng) {
		return nil, invalidInput("pickup coordinates out of range")
	}
	if in.DestLat != nil && !utils.ValidCoordinates(*in.DestLat, *in.DestLng) {
		return nil, invalidInput("destination coordinates out of range")
	}
	if in.Urgency == "" {
		in.Urgency = models.UrgencyMedium
	}

	now := s.now()
	req := models.Request{
		ID:           uuid.NewString(),
		ClientID:     actor.ID,
		PickupLat:    in.PickupLat,
		PickupLng:    in.PickupLng,
		PickupAddr:   in.PickupAddress,
		DestLat:      in.DestLat,
		DestLng:      in.DestLng,
		DestAddr:     in.DestAddress,
		Vehicle:      in.Vehicle,
		BatteryLevel: in.BatteryLevel,
		Urgency:      in.Urgency,
		Price:        in.Price,
		ContactPhone: in.ContactPhone,
		Status:       models.RequestStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err := s.commit(ctx, "request", func(tx storage.Tx, emit func(...models.Event)) error {
		if err := tx.CreateRequest(ctx, &req); err != nil {
			return err
		}
		emit(requestEvents(req, "", "", now)...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// SelectOffer locks the request to one offer and opens the ride for it.
func (s *Service) SelectOffer(ctx context.Context, requestID, offerID string, actor models.Actor) (*Selection, error) {
	var sel Selection
	err := s.commit(ctx, "request", func(tx storage.Tx, emit func(...models.Event)) error {
		req, err := tx.GetRequest(ctx, requestID)
		if err != nil {
			return fmt.Errorf("request %s: %w", requestID, err)
		}
		if !actor.Is(models.RoleClient) || req.ClientID != actor.ID {
			return fmt.Errorf("%w: only the requesting client selects an offer", ErrNotAuthorized)
		}
		if !req.Status.CanTransitionTo(models.RequestStatusDriverSelected) {
			return fmt.Errorf("%w: request is %s", ErrInvalidRequestState, req.Status)
		}

		offer, err := tx.GetOffer(ctx, offerID)
		if err != nil {
			return fmt.Errorf("offer %s: %w", offerID, err)
		}
		if offer.RequestID != req.ID {
			return fmt.Errorf("%w: offer does not belong to request", ErrInvalidOfferState)
		}
		if offer.Status != models.OfferStatusPending && offer.Status != models.OfferStatusNegotiating {
			return fmt.Errorf("%w: offer is %s", ErrInvalidOfferState, offer.Status)
		}

		now := s.now()
		prevReq := req.Status
		req.Status = models.RequestStatusDriverSelected
		req.SelectedOfferID = &offer.ID
		if err := tx.UpdateRequest(ctx, req, prevReq); err != nil {
			return err
		}

		prevOffer := offer.Status
		offer.Status = models.OfferStatusSelected
		offer.LastActivityAt = now
		if err := tx.UpdateOffer(ctx, offer, prevOffer); err != nil {
			return err
		}

		emit(requestEvents(*req, prevReq, offer.DriverID, now)...)
		emit(offerEvents(*offer, req.ClientID, prevOffer, now)...)
		ride, err := s.startTrackingInTx(ctx, tx, req, offer, now, emit)
		if err != nil {
			return err
		}
		sel = Selection{Request: *req, Offer: *offer, Ride: *ride}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &sel, nil
}

// CompleteRequest closes a request whose ride has finished.
func (s *Service) CompleteRequest(ctx context.Context, requestID string, actor models.Actor) (*models.Request, error) {
	var out models.Request
	err := s.commit(ctx, "request", func(tx storage.Tx, emit func(...models.Event)) error {
		req, err := tx.GetRequest(ctx, requestID)
		if err != nil {
			return fmt.Errorf("request %s: %w", requestID, err)
		}

		var offer *models.Offer
		if req.SelectedOfferID != nil {
			if offer, err = tx.GetOffer(ctx, *req.SelectedOfferID); err != nil {
				return fmt.Errorf("selected offer: %w", err)
			}
		}
		isClient := actor.Is(models.RoleClient) && req.ClientID == actor.ID
		isDriver := offer != nil && actor.Is(models.RoleDriver) && offer.DriverID == actor.ID
		if !isClient && !isDriver {
			return fmt.Errorf("%w: only the client or the selected driver completes a request", ErrNotAuthorized)
		}
		if offer == nil || !req.Status.CanTransitionTo(models.RequestStatusCompleted) {
			return fmt.Errorf("%w: request is %s", ErrInvalidRequestState, req.Status)
		}

		ride, err := tx.GetRideByRequest(ctx, req.ID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		if ride == nil || ride.Status != models.RideStatusCompleted {
			return ErrRidePending
		}

		now := s.now()
		prevOffer := offer.Status
		if !prevOffer.CanTransitionTo(models.OfferStatusCompleted) {
			return fmt.Errorf("%w: offer %s -> %s", ErrIllegalTransition, prevOffer, models.OfferStatusCompleted)
		}
		offer.Status = models.OfferStatusCompleted
		offer.LastActivityAt = now
		if err := tx.UpdateOffer(ctx, offer, prevOffer); err != nil {
			return err
		}

		prevReq := req.Status
		req.Status = models.RequestStatusCompleted
		if err := tx.UpdateRequest(ctx, req, prevReq); err != nil {
			return err
		}

		emit(offerEvents(*offer, req.ClientID, prevOffer, now)...)
		emit(requestEvents(*req, prevReq, offer.DriverID, now)...)
		out = *req
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelRequest withdraws a request, rejecting its open offers and cancelling
// a ride that is still running.
func (s *Service) CancelRequest(ctx context.Context, requestID string, actor models.Actor) (*models.Request, error) {
	var out models.Request
	err := s.commit(ctx, "request", func(tx storage.Tx, emit func(...models.Event)) error {
		req, err := tx.GetRequest(ctx, requestID)
		if err != nil {
			return fmt.Errorf("request %s: %w", requestID, err)
		}
		isOwner := actor.Is(models.RoleClient) && req.ClientID == actor.ID
		if !isOwner && !actor.Is(models.RoleAdmin) {
			return fmt.Errorf("%w: only the requesting client cancels a request", ErrNotAuthorized)
		}
		if err := s.cancelInTx(ctx, tx, req, s.now(), emit); err != nil {
			return err
		}
		out = *req
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// cancelInTx moves req to cancelled inside tx. Open offers are rejected and a
// ride that has not finished is cancelled.
func (s *Service) cancelInTx(ctx context.Context, tx storage.Tx, req *models.Request, now time.Time, emit func(...models.Event)) error {
	prevReq := req.Status
	if !prevReq.CanTransitionTo(models.RequestStatusCancelled) {
		return fmt.Errorf("%w: request is %s", ErrInvalidRequestState, prevReq)
	}

	offers, err := tx.ListOffersByRequest(ctx, req.ID)
	if err != nil {
		return err
	}
	var driverID string
	for i := range offers {
		o := offers[i]
		if req.SelectedOfferID != nil && o.ID == *req.SelectedOfferID {
			driverID = o.DriverID
		}
		if !o.Status.CanTransitionTo(models.OfferStatusRejected) {
			continue
		}
		prev := o.Status
		o.Status = models.OfferStatusRejected
		o.LastActivityAt = now
		if err := tx.UpdateOffer(ctx, &o, prev); err != nil {
			return err
		}
		emit(offerEvents(o, req.ClientID, prev, now)...)
	}

	ride, err := tx.GetRideByRequest(ctx, req.ID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return err
	case ride.Status.CanTransitionTo(models.RideStatusCancelled):
		prev := ride.Status
		ride.Status = models.RideStatusCancelled
		ride.CancelledAt = &now
		if err := tx.UpdateRide(ctx, ride, prev); err != nil {
			return err
		}
		emit(rideEvents(models.EventRideStatusChanged, *ride, prev, now)...)
	}

	req.Status = models.RequestStatusCancelled
	req.SelectedOfferID = nil
	if err := tx.UpdateRequest(ctx, req, prevReq); err != nil {
		return err
	}
	emit(requestEvents(*req, prevReq, driverID, now)...)
	return nil
}

func (s *Service) GetRequest(ctx context.Context, id string) (*models.Request, error) {
	req, err := s.store.GetRequest(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", id, err)
	}
	return req, nil
}

// ListActiveRequests returns open requests drivers can bid on, newest first.
func (s *Service) ListActiveRequests(ctx context.Context, limit int) ([]models.Request, error) {
	return s.store.ListRequests(ctx, storage.RequestFilter{Status: models.RequestStatusActive, Limit: limit})
}

func (s *Service) ListClientRequests(ctx context.Context, actor models.Actor) ([]models.Request, error) {
	return s.store.ListRequests(ctx, storage.RequestFilter{ClientID: actor.ID})
}

func newRide(req *models.Request, offer *models.Offer, now time.Time) *models.Ride {
	return &models.Ride{
		ID:        uuid.NewString(),
		RequestID: req.ID,
		OfferID:   offer.ID,
		DriverID:  offer.DriverID,
		ClientID:  req.ClientID,
		Status:    models.RideStatusWaiting,
		PickupLat: req.PickupLat,
		PickupLng: req.PickupLng,
		DestLat:   req.DestLat,
		DestLng:   req.DestLng,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
