package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventVisibleTo(t *testing.T) {
	offer := Event{Type: EventOfferUpdated, Topic: RequestTopic("req-1"), ClientID: "client-1", DriverID: "driver-a"}
	proposal := Event{Type: EventNegotiationAppended, Topic: RequestTopic("req-1"), ClientID: "client-1", DriverID: "driver-a"}
	request := Event{Type: EventRequestUpdated, Topic: RequestTopic("req-1"), ClientID: "client-1"}

	tests := []struct {
		name  string
		event Event
		actor Actor
		want  bool
	}{
		{"client sees offers on the request", offer, Actor{ID: "client-1", Role: RoleClient}, true},
		{"bidding driver sees own offer", offer, Actor{ID: "driver-a", Role: RoleDriver}, true},
		{"rival driver does not see the offer", offer, Actor{ID: "driver-b", Role: RoleDriver}, false},
		{"rival driver does not see proposals", proposal, Actor{ID: "driver-b", Role: RoleDriver}, false},
		{"admin sees everything", proposal, Actor{ID: "admin-1", Role: RoleAdmin}, true},
		{"request updates are open to watchers", request, Actor{ID: "driver-b", Role: RoleDriver}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.event.VisibleTo(tt.actor))
		})
	}
}
