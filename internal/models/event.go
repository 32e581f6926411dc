package models

import (
	"strings"
	"time"
)

type EventType string

const (
	EventOfferUpdated        EventType = "offer.updated"
	EventNegotiationAppended EventType = "negotiation.appended"
	EventNegotiationResolved EventType = "negotiation.resolved"
	EventRequestUpdated      EventType = "request.updated"
	EventRideCreated         EventType = "ride.created"
	EventRidePositionUpdated EventType = "ride.position_updated"
	EventRideStatusChanged   EventType = "ride.status_changed"
)

// Topic names a broadcast channel scoped to one entity.
type Topic string

const (
	topicRequest = "request:"
	topicOffer   = "offer:"
	topicRide    = "ride:"
)

func RequestTopic(id string) Topic { return Topic(topicRequest + id) }
func OfferTopic(id string) Topic   { return Topic(topicOffer + id) }
func RideTopic(id string) Topic    { return Topic(topicRide + id) }

// Split returns the entity kind ("request", "offer", "ride") and id of a topic.
func (t Topic) Split() (kind, id string, ok bool) {
	kind, id, ok = strings.Cut(string(t), ":")
	if !ok || id == "" {
		return "", "", false
	}
	switch kind {
	case "request", "offer", "ride":
		return kind, id, true
	}
	return "", "", false
}

// Event is the payload fanned out to subscribers after a committed change.
// One change is published once per interested topic; Data carries a value
// snapshot of the changed record.
type Event struct {
	Type       EventType   `json:"type"`
	Topic      Topic       `json:"topic"`
	RequestID  string      `json:"requestId,omitempty"`
	OfferID    string      `json:"offerId,omitempty"`
	RideID     string      `json:"rideId,omitempty"`
	ClientID   string      `json:"clientId,omitempty"`
	DriverID   string      `json:"driverId,omitempty"`
	OldStatus  string      `json:"oldStatus,omitempty"`
	NewStatus  string      `json:"newStatus,omitempty"`
	Data       interface{} `json:"data,omitempty"`
	OccurredAt time.Time   `json:"occurredAt"`
}

// VisibleTo reports whether actor may receive e. Offer and negotiation events
// go only to the offer's two parties and admins, on every topic.
func (e Event) VisibleTo(actor Actor) bool {
	switch e.Type {
	case EventOfferUpdated, EventNegotiationAppended, EventNegotiationResolved:
		return actor.Is(RoleAdmin) || actor.ID == e.ClientID || actor.ID == e.DriverID
	}
	return true
}

// Primary reports whether e is the copy published on its own entity's topic.
// Sinks that must see each change exactly once filter on it.
func (e Event) Primary() bool {
	switch e.Type {
	case EventOfferUpdated, EventNegotiationAppended, EventNegotiationResolved:
		return e.Topic == OfferTopic(e.OfferID)
	case EventRequestUpdated:
		return e.Topic == RequestTopic(e.RequestID)
	case EventRideCreated, EventRidePositionUpdated, EventRideStatusChanged:
		return e.Topic == RideTopic(e.RideID)
	}
	return false
}

// Fanout copies e once per topic.
func (e Event) Fanout(topics ...Topic) []Event {
	out := make([]Event, 0, len(topics))
	for _, t := range topics {
		c := e
		c.Topic = t
		out = append(out, c)
	}
	return out
}
