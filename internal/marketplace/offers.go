package marketplace

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/chachabrian/evvalet-backend/internal/models"
	"github.com/chachabrian/evvalet-backend/internal/storage"
)

// CreateOfferInput is a driver's bid on a request.
type CreateOfferInput struct {
	Price             float64 `json:"price" validate:"gt=0"`
	EstimatedDuration string  `json:"estimatedDuration" validate:"max=64"`
	Message           string  `json:"message" validate:"max=1000"`
}

func (s *Service) CreateOffer(ctx context.Context, actor models.Actor, requestID string, in CreateOfferInput) (*models.Offer, error) {
	if !actor.Is(models.RoleDriver) {
		return nil, fmt.Errorf("%w: only drivers submit offers", ErrNotAuthorized)
	}
	if err := s.validateInput(in); err != nil {
		return nil, err
	}

	var out models.Offer
	err := s.commit(ctx, "offer", func(tx storage.Tx, emit func(...models.Event)) error {
		req, err := tx.GetRequest(ctx, requestID)
		if err != nil {
			return fmt.Errorf("request %s: %w", requestID, err)
		}
		if req.ClientID == actor.ID {
			return fmt.Errorf("%w: cannot bid on your own request", ErrNotAuthorized)
		}
		if req.Status != models.RequestStatusActive {
			return fmt.Errorf("%w: request is %s", ErrInvalidRequestState, req.Status)
		}

		now := s.now()
		out = models.Offer{
			ID:                uuid.NewString(),
			RequestID:         req.ID,
			DriverID:          actor.ID,
			Price:             in.Price,
			EstimatedDuration: in.EstimatedDuration,
			Message:           in.Message,
			Status:            models.OfferStatusPending,
			LastActivityAt:    now,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := tx.CreateOffer(ctx, &out); err != nil {
			return err
		}
		emit(offerEvents(out, req.ClientID, "", now)...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Transition applies a participant-driven status change to an offer. The
// selected and completed statuses belong to the request lifecycle and are
// never applied here.
func (s *Service) Transition(ctx context.Context, offerID string, target models.OfferStatus, actor models.Actor) (*models.Offer, error) {
	if !target.Valid() {
		return nil, invalidInput(fmt.Sprintf("unknown offer status %q", target))
	}

	requestID, err := s.requestOfOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}

	var out models.Offer
	err = s.commit(ctx, "offer", func(tx storage.Tx, emit func(...models.Event)) error {
		req, err := tx.GetRequest(ctx, requestID)
		if err != nil {
			return fmt.Errorf("request %s: %w", requestID, err)
		}
		offer, err := tx.GetOffer(ctx, offerID)
		if err != nil {
			return fmt.Errorf("offer %s: %w", offerID, err)
		}
		if err := authorizeOfferTransition(actor, req, offer, target); err != nil {
			return err
		}
		if target != models.OfferStatusRejected && req.Status != models.RequestStatusActive {
			return fmt.Errorf("%w: request is %s", ErrInvalidRequestState, req.Status)
		}
		// A selected offer is released only by cancelling its request.
		if offer.Status == models.OfferStatusSelected || !offer.Status.CanTransitionTo(target) {
			return fmt.Errorf("%w: offer %s -> %s", ErrIllegalTransition, offer.Status, target)
		}

		now := s.now()
		prev := offer.Status
		offer.Status = target
		offer.LastActivityAt = now
		if err := tx.UpdateOffer(ctx, offer, prev); err != nil {
			return err
		}
		emit(offerEvents(*offer, req.ClientID, prev, now)...)
		out = *offer
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func authorizeOfferTransition(actor models.Actor, req *models.Request, offer *models.Offer, target models.OfferStatus) error {
	isDriver := actor.Is(models.RoleDriver) && offer.DriverID == actor.ID
	isClient := actor.Is(models.RoleClient) && req.ClientID == actor.ID
	if !isDriver && !isClient {
		return fmt.Errorf("%w: not a participant of this offer", ErrNotAuthorized)
	}
	switch target {
	case models.OfferStatusAccepted, models.OfferStatusRejected:
		if !isClient {
			return fmt.Errorf("%w: only the client may set %s", ErrNotAuthorized, target)
		}
	case models.OfferStatusSelected, models.OfferStatusCompleted:
		return fmt.Errorf("%w: %s is set by the request lifecycle", ErrNotAuthorized, target)
	}
	return nil
}

func (s *Service) GetOffer(ctx context.Context, id string) (*models.Offer, error) {
	offer, err := s.store.GetOffer(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("offer %s: %w", id, err)
	}
	return offer, nil
}

// ListOffersForRequest returns a request's offers, most recent first. Once an
// offer is selected the others are flagged inactive.
func (s *Service) ListOffersForRequest(ctx context.Context, requestID string) ([]models.Offer, error) {
	req, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", requestID, err)
	}
	offers, err := s.store.ListOffersByRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.SelectedOfferID != nil {
		for i := range offers {
			offers[i].Inactive = offers[i].ID != *req.SelectedOfferID
		}
	}
	return offers, nil
}
