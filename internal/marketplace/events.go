package marketplace

import (
	"time"

	"github.com/chachabrian/evvalet-backend/internal/models"
)

func requestEvents(r models.Request, old models.RequestStatus, driverID string, at time.Time) []models.Event {
	e := models.Event{
		Type:       models.EventRequestUpdated,
		RequestID:  r.ID,
		ClientID:   r.ClientID,
		DriverID:   driverID,
		OldStatus:  string(old),
		NewStatus:  string(r.Status),
		Data:       r,
		OccurredAt: at,
	}
	if r.SelectedOfferID != nil {
		e.OfferID = *r.SelectedOfferID
	}
	return e.Fanout(models.RequestTopic(r.ID))
}

func offerEvents(o models.Offer, clientID string, old models.OfferStatus, at time.Time) []models.Event {
	e := models.Event{
		Type:       models.EventOfferUpdated,
		RequestID:  o.RequestID,
		OfferID:    o.ID,
		ClientID:   clientID,
		DriverID:   o.DriverID,
		OldStatus:  string(old),
		NewStatus:  string(o.Status),
		Data:       o,
		OccurredAt: at,
	}
	return e.Fanout(models.OfferTopic(o.ID), models.RequestTopic(o.RequestID))
}

func negotiationEvents(t models.EventType, n models.NegotiationEntry, o models.Offer, clientID string, old models.NegotiationStatus, at time.Time) []models.Event {
	e := models.Event{
		Type:       t,
		RequestID:  o.RequestID,
		OfferID:    o.ID,
		ClientID:   clientID,
		DriverID:   o.DriverID,
		OldStatus:  string(old),
		NewStatus:  string(n.Status),
		Data:       n,
		OccurredAt: at,
	}
	return e.Fanout(models.OfferTopic(o.ID), models.RequestTopic(o.RequestID))
}

func rideEvents(t models.EventType, r models.Ride, old models.RideStatus, at time.Time) []models.Event {
	e := models.Event{
		Type:       t,
		RequestID:  r.RequestID,
		OfferID:    r.OfferID,
		RideID:     r.ID,
		ClientID:   r.ClientID,
		DriverID:   r.DriverID,
		OldStatus:  string(old),
		NewStatus:  string(r.Status),
		Data:       r,
		OccurredAt: at,
	}
	return e.Fanout(models.RideTopic(r.ID), models.RequestTopic(r.RequestID))
}
