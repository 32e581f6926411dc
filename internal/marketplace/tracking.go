package marketplace

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chachabrian/evvalet-backend/internal/models"
	"github.com/chachabrian/evvalet-backend/internal/observability"
	"github.com/chachabrian/evvalet-backend/internal/storage"
	"github.com/chachabrian/evvalet-backend/pkg/utils"
)

// PositionReport is one GPS fix from the driver's device.
type PositionReport struct {
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	RecordedAt time.Time `json:"recordedAt"`
}

// PositionResult tells the caller whether the report was applied or dropped
// as older than the last applied fix.
type PositionResult struct {
	Ride    models.Ride `json:"ride"`
	Applied bool        `json:"applied"`
}

// StartTracking returns the ride for a request with a selected driver,
// creating it if it does not exist yet.
func (s *Service) StartTracking(ctx context.Context, requestID, driverID string) (*models.Ride, error) {
	var out models.Ride
	err := s.commit(ctx, "ride", func(tx storage.Tx, emit func(...models.Event)) error {
		req, err := tx.GetRequest(ctx, requestID)
		if err != nil {
			return fmt.Errorf("request %s: %w", requestID, err)
		}
		if req.SelectedOfferID == nil {
			return fmt.Errorf("%w: request has no selected driver", ErrInvalidRequestState)
		}
		offer, err := tx.GetOffer(ctx, *req.SelectedOfferID)
		if err != nil {
			return fmt.Errorf("selected offer: %w", err)
		}
		if offer.DriverID != driverID {
			return fmt.Errorf("%w: driver was not selected for this request", ErrNotAuthorized)
		}

		ride, err := tx.GetRideByRequest(ctx, requestID)
		if err == nil {
			out = *ride
			return nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		if req.Status != models.RequestStatusDriverSelected {
			return fmt.Errorf("%w: request is %s", ErrInvalidRequestState, req.Status)
		}

		ride, err = s.startTrackingInTx(ctx, tx, req, offer, s.now(), emit)
		if err != nil {
			return err
		}
		out = *ride
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// startTrackingInTx opens the waiting ride for a request's selected offer.
func (s *Service) startTrackingInTx(ctx context.Context, tx storage.Tx, req *models.Request, offer *models.Offer, now time.Time, emit func(...models.Event)) (*models.Ride, error) {
	ride := newRide(req, offer, now)
	if err := tx.CreateRide(ctx, ride); err != nil {
		return nil, err
	}
	emit(rideEvents(models.EventRideCreated, *ride, "", now)...)
	return ride, nil
}

// ReportPosition applies a driver GPS fix to a ride, refreshing distances and
// ETAs. The first fix puts a waiting ride on the way.
func (s *Service) ReportPosition(ctx context.Context, rideID string, actor models.Actor, report PositionReport) (*PositionResult, error) {
	if !utils.ValidCoordinates(report.Lat, report.Lng) {
		observability.PositionReports.WithLabelValues("invalid").Inc()
		return nil, invalidInput("coordinates out of range")
	}
	// Fixes stamped ahead of the server clock are clamped to now.
	if now := s.now(); report.RecordedAt.IsZero() || report.RecordedAt.After(now) {
		report.RecordedAt = now
	}

	var res PositionResult
	var prevStatus models.RideStatus
	err := s.commit(ctx, "ride", func(tx storage.Tx, emit func(...models.Event)) error {
		ride, err := tx.GetRide(ctx, rideID)
		if err != nil {
			return fmt.Errorf("ride %s: %w", rideID, err)
		}
		if !actor.Is(models.RoleDriver) || ride.DriverID != actor.ID {
			return fmt.Errorf("%w: only the ride's driver reports positions", ErrNotAuthorized)
		}
		if ride.Status.IsTerminal() {
			return fmt.Errorf("%w: ride is %s", ErrIllegalTransition, ride.Status)
		}
		if ride.LastPositionAt != nil && !report.RecordedAt.After(*ride.LastPositionAt) {
			res = PositionResult{Ride: *ride}
			return nil
		}

		s.applyPosition(ride, report)
		prevStatus = ride.Status
		if ride.Status == models.RideStatusWaiting {
			ride.Status = models.RideStatusOnTheWay
		}
		if err := tx.UpdateRide(ctx, ride, prevStatus); err != nil {
			return err
		}

		now := s.now()
		emit(rideEvents(models.EventRidePositionUpdated, *ride, prevStatus, now)...)
		if prevStatus != ride.Status {
			emit(rideEvents(models.EventRideStatusChanged, *ride, prevStatus, now)...)
		}
		res = PositionResult{Ride: *ride, Applied: true}
		return nil
	})
	if err != nil {
		observability.PositionReports.WithLabelValues("rejected").Inc()
		return nil, err
	}

	if !res.Applied {
		observability.PositionReports.WithLabelValues("stale").Inc()
		s.log.WithFields(logrus.Fields{
			"ride_id":     rideID,
			"recorded_at": report.RecordedAt,
		}).Debug("dropping stale position report")
		return &res, nil
	}

	observability.PositionReports.WithLabelValues("applied").Inc()
	if s.locations != nil {
		if err := s.locations.SetDriverLocation(ctx, actor.ID, report.Lat, report.Lng, report.RecordedAt); err != nil {
			s.log.WithError(err).WithField("driver_id", actor.ID).Warn("driver location cache update failed")
		}
	}
	return &res, nil
}

func (s *Service) applyPosition(ride *models.Ride, report PositionReport) {
	at := report.RecordedAt
	lat, lng := report.Lat, report.Lng
	ride.DriverLat = &lat
	ride.DriverLng = &lng
	ride.LastPositionAt = &at

	toPickup := utils.HaversineDistance(lat, lng, ride.PickupLat, ride.PickupLng)
	pickupETA := utils.CalculateETA(toPickup, s.averageSpeedKmh)
	ride.DistanceToPickupKm = &toPickup
	ride.PickupETAMinutes = &pickupETA

	if ride.HasDestination() {
		toDest := utils.HaversineDistance(lat, lng, *ride.DestLat, *ride.DestLng)
		destETA := utils.CalculateETA(toDest, s.averageSpeedKmh)
		ride.DistanceToDestinationKm = &toDest
		ride.DestinationETAMinutes = &destETA
	}
}

// AdvanceStatus moves a ride one step forward, or cancels it. Cancelling a
// ride cancels its request in the same transaction.
func (s *Service) AdvanceStatus(ctx context.Context, rideID string, target models.RideStatus, actor models.Actor) (*models.Ride, error) {
	if !target.Valid() {
		return nil, invalidInput(fmt.Sprintf("unknown ride status %q", target))
	}

	current, err := s.store.GetRide(ctx, rideID)
	if err != nil {
		return nil, fmt.Errorf("ride %s: %w", rideID, err)
	}

	var out models.Ride
	err = s.commit(ctx, "ride", func(tx storage.Tx, emit func(...models.Event)) error {
		// Cancelling touches the request, which is locked before the ride.
		var req *models.Request
		if target == models.RideStatusCancelled {
			r, err := tx.GetRequest(ctx, current.RequestID)
			if err != nil {
				return fmt.Errorf("request %s: %w", current.RequestID, err)
			}
			req = r
		}
		ride, err := tx.GetRide(ctx, rideID)
		if err != nil {
			return fmt.Errorf("ride %s: %w", rideID, err)
		}
		if !s.mayAdvance(actor, ride, target) {
			return fmt.Errorf("%w: may not move ride to %s", ErrNotAuthorized, target)
		}
		if !ride.Status.CanTransitionTo(target) {
			return fmt.Errorf("%w: ride %s -> %s", ErrIllegalTransition, ride.Status, target)
		}

		now := s.now()
		prev := ride.Status
		ride.Status = target
		switch target {
		case models.RideStatusArrived:
			ride.ArrivedAt = &now
		case models.RideStatusInProgress:
			ride.StartedAt = &now
		case models.RideStatusCompleted:
			ride.CompletedAt = &now
			if ride.DestinationArrivedAt == nil {
				ride.DestinationArrivedAt = &now
			}
		case models.RideStatusCancelled:
			ride.CancelledAt = &now
		}
		if err := tx.UpdateRide(ctx, ride, prev); err != nil {
			return err
		}
		emit(rideEvents(models.EventRideStatusChanged, *ride, prev, now)...)

		if req != nil && !req.Status.IsTerminal() {
			if err := s.cancelInTx(ctx, tx, req, now, emit); err != nil {
				return err
			}
		}
		out = *ride
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Service) mayAdvance(actor models.Actor, ride *models.Ride, target models.RideStatus) bool {
	if actor.Is(models.RoleDriver) && ride.DriverID == actor.ID {
		return true
	}
	if target != models.RideStatusCancelled {
		return false
	}
	if actor.Is(models.RoleAdmin) {
		return true
	}
	return s.clientMayCancel && actor.Is(models.RoleClient) && ride.ClientID == actor.ID
}

func (s *Service) GetRide(ctx context.Context, id string) (*models.Ride, error) {
	ride, err := s.store.GetRide(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ride %s: %w", id, err)
	}
	return ride, nil
}

func (s *Service) GetRideForRequest(ctx context.Context, requestID string) (*models.Ride, error) {
	ride, err := s.store.GetRideByRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("ride for request %s: %w", requestID, err)
	}
	return ride, nil
}
