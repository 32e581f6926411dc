package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOfferTransitions(t *testing.T) {
	allowed := map[OfferStatus][]OfferStatus{
		OfferStatusPending:     {OfferStatusAccepted, OfferStatusRejected, OfferStatusNegotiating, OfferStatusSelected},
		OfferStatusAccepted:    {OfferStatusNegotiating, OfferStatusCompleted, OfferStatusRejected},
		OfferStatusNegotiating: {OfferStatusSelected, OfferStatusRejected},
		OfferStatusSelected:    {OfferStatusCompleted, OfferStatusRejected},
	}
	all := []OfferStatus{
		OfferStatusPending, OfferStatusAccepted, OfferStatusNegotiating,
		OfferStatusSelected, OfferStatusRejected, OfferStatusCompleted,
	}
	for _, from := range all {
		for _, to := range all {
			want := contains(allowed[from], to)
			assert.Equalf(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
	assert.True(t, OfferStatusRejected.IsTerminal())
	assert.True(t, OfferStatusCompleted.IsTerminal())
	assert.False(t, OfferStatus("withdrawn").Valid())
}

func TestOfferNegotiable(t *testing.T) {
	assert.True(t, OfferStatusPending.Negotiable())
	assert.True(t, OfferStatusAccepted.Negotiable())
	assert.True(t, OfferStatusNegotiating.Negotiable())
	assert.False(t, OfferStatusSelected.Negotiable())
	assert.False(t, OfferStatusRejected.Negotiable())
}

func TestRequestTransitions(t *testing.T) {
	assert.True(t, RequestStatusActive.CanTransitionTo(RequestStatusDriverSelected))
	assert.True(t, RequestStatusActive.CanTransitionTo(RequestStatusCancelled))
	assert.False(t, RequestStatusActive.CanTransitionTo(RequestStatusCompleted))
	assert.True(t, RequestStatusDriverSelected.CanTransitionTo(RequestStatusCompleted))
	assert.True(t, RequestStatusDriverSelected.CanTransitionTo(RequestStatusCancelled))
	assert.False(t, RequestStatusDriverSelected.CanTransitionTo(RequestStatusActive))
	for _, terminal := range []RequestStatus{RequestStatusCompleted, RequestStatusCancelled} {
		assert.True(t, terminal.IsTerminal())
		assert.False(t, terminal.CanTransitionTo(RequestStatusActive))
		assert.False(t, terminal.CanTransitionTo(RequestStatusCancelled))
	}
}

func TestRideForwardOnly(t *testing.T) {
	for i, from := range rideProgression {
		for j, to := range rideProgression {
			assert.Equalf(t, j == i+1, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestRideCancelReachableFromEveryNonTerminal(t *testing.T) {
	for _, s := range []RideStatus{RideStatusWaiting, RideStatusOnTheWay, RideStatusArrived, RideStatusInProgress} {
		assert.Truef(t, s.CanTransitionTo(RideStatusCancelled), "%s -> cancelled", s)
	}
	assert.False(t, RideStatusCompleted.CanTransitionTo(RideStatusCancelled))
	assert.False(t, RideStatusCancelled.CanTransitionTo(RideStatusCancelled))
	assert.False(t, RideStatusInProgress.CanTransitionTo(RideStatusArrived))
	assert.False(t, RideStatusWaiting.CanTransitionTo(RideStatusArrived))
}

func TestEventPrimary(t *testing.T) {
	e := Event{Type: EventOfferUpdated, RequestID: "r1", OfferID: "o1"}
	copies := e.Fanout(OfferTopic("o1"), RequestTopic("r1"))
	assert.True(t, copies[0].Primary())
	assert.False(t, copies[1].Primary())

	ride := Event{Type: EventRideStatusChanged, RequestID: "r1", RideID: "ride1"}.Fanout(RideTopic("ride1"), RequestTopic("r1"))
	assert.True(t, ride[0].Primary())
	assert.False(t, ride[1].Primary())
}

func TestTopicSplit(t *testing.T) {
	kind, id, ok := RideTopic("abc").Split()
	assert.True(t, ok)
	assert.Equal(t, "ride", kind)
	assert.Equal(t, "abc", id)

	_, _, ok = Topic("user:1").Split()
	assert.False(t, ok)
	_, _, ok = Topic("offer:").Split()
	assert.False(t, ok)
}
