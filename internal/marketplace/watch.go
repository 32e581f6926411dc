package marketplace

import (
	"context"
	"errors"
	"fmt"

	"github.com/chachabrian/evvalet-backend/internal/models"
)

// CanWatch decides whether actor may subscribe to a broadcast topic. Drivers
// may watch any request still open for bids; everything else is limited to
// the participants.
func (s *Service) CanWatch(ctx context.Context, actor models.Actor, topic models.Topic) error {
	kind, id, ok := topic.Split()
	if !ok {
		return invalidInput(fmt.Sprintf("unknown topic %q", topic))
	}
	if actor.Is(models.RoleAdmin) {
		return nil
	}

	switch kind {
	case "request":
		req, err := s.GetRequest(ctx, id)
		if err != nil {
			return err
		}
		if req.ClientID == actor.ID || (actor.Is(models.RoleDriver) && req.Status == models.RequestStatusActive) {
			return nil
		}
		// The selected driver keeps the request through its ride, which
		// outlives the selection when the request is cancelled.
		ride, err := s.GetRideForRequest(ctx, req.ID)
		switch {
		case errors.Is(err, ErrNotFound):
		case err != nil:
			return err
		case ride.DriverID == actor.ID:
			return nil
		}
	case "offer":
		offer, err := s.GetOffer(ctx, id)
		if err != nil {
			return err
		}
		if offer.DriverID == actor.ID {
			return nil
		}
		req, err := s.GetRequest(ctx, offer.RequestID)
		if err != nil {
			return err
		}
		if req.ClientID == actor.ID {
			return nil
		}
	case "ride":
		ride, err := s.GetRide(ctx, id)
		if err != nil {
			return err
		}
		if ride.DriverID == actor.ID || ride.ClientID == actor.ID {
			return nil
		}
	}
	return fmt.Errorf("%w: not a participant of %s", ErrNotAuthorized, topic)
}
