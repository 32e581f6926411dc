package marketplace

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chachabrian/evvalet-backend/internal/logger"
	"github.com/chachabrian/evvalet-backend/internal/models"
	"github.com/chachabrian/evvalet-backend/internal/storage"
)

var (
	client  = models.Actor{ID: "client-1", Role: models.RoleClient}
	other   = models.Actor{ID: "client-2", Role: models.RoleClient}
	driverA = models.Actor{ID: "driver-a", Role: models.RoleDriver}
	driverB = models.Actor{ID: "driver-b", Role: models.RoleDriver}
	admin   = models.Actor{ID: "admin-1", Role: models.RoleAdmin}
)

const (
	parisLat = 48.8566
	parisLng = 2.3522
)

type recorder struct {
	mu     sync.Mutex
	events []models.Event
}

func (r *recorder) Publish(_ context.Context, e models.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// primary returns the events of type t published on their own topic.
func (r *recorder) primary(t models.EventType) []models.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Event
	for _, e := range r.events {
		if e.Type == t && e.Primary() {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) onTopic(topic models.Topic) []models.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Event
	for _, e := range r.events {
		if e.Topic == topic {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// clock advances one second on every read.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type locationCall struct {
	driverID string
	lat, lng float64
}

type fakeLocations struct {
	mu    sync.Mutex
	calls []locationCall
}

func (f *fakeLocations) SetDriverLocation(_ context.Context, driverID string, lat, lng float64, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, locationCall{driverID: driverID, lat: lat, lng: lng})
	return nil
}

type fixture struct {
	svc    *Service
	store  *storage.MemoryStore
	events *recorder
	clock  *clock
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		store:  storage.NewMemoryStore(),
		events: &recorder{},
		clock:  &clock{t: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)},
	}
	base := []Option{WithLogger(logger.Discard()), WithClock(f.clock.Now)}
	f.svc = NewService(f.store, f.events, append(base, opts...)...)
	return f
}

func parisInput() CreateRequestInput {
	return CreateRequestInput{
		PickupLat:     parisLat,
		PickupLng:     parisLng,
		PickupAddress: "Place de l'Hôtel de Ville, Paris",
		Vehicle:       "Renault Zoe",
		BatteryLevel:  18,
		Urgency:       models.UrgencyHigh,
		Price:         25,
		ContactPhone:  "+33 1 23 45 67 89",
	}
}

func (f *fixture) request(t *testing.T) *models.Request {
	t.Helper()
	req, err := f.svc.CreateRequest(context.Background(), client, parisInput())
	require.NoError(t, err)
	return req
}

func (f *fixture) offer(t *testing.T, requestID string, driver models.Actor, price float64) *models.Offer {
	t.Helper()
	offer, err := f.svc.CreateOffer(context.Background(), driver, requestID, CreateOfferInput{Price: price, EstimatedDuration: "2h"})
	require.NoError(t, err)
	return offer
}

// selected posts a request, has driver-a bid on it and selects that bid.
func (f *fixture) selected(t *testing.T) *Selection {
	t.Helper()
	req := f.request(t)
	offer := f.offer(t, req.ID, driverA, 25)
	sel, err := f.svc.SelectOffer(context.Background(), req.ID, offer.ID, client)
	require.NoError(t, err)
	return sel
}

func (f *fixture) advance(t *testing.T, rideID string, statuses ...models.RideStatus) *models.Ride {
	t.Helper()
	var ride *models.Ride
	for _, s := range statuses {
		var err error
		ride, err = f.svc.AdvanceStatus(context.Background(), rideID, s, driverA)
		require.NoError(t, err, "advance to %s", s)
	}
	return ride
}
