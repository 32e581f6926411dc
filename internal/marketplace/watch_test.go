package marketplace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chachabrian/evvalet-backend/internal/models"
)

func TestCanWatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	open := f.request(t)
	openOffer := f.offer(t, open.ID, driverB, 20)
	sel := f.selected(t)

	tests := []struct {
		name  string
		actor models.Actor
		topic models.Topic
		ok    bool
	}{
		{"client watches own request", client, models.RequestTopic(open.ID), true},
		{"any driver watches an open request", driverA, models.RequestTopic(open.ID), true},
		{"other client on open request", other, models.RequestTopic(open.ID), false},
		{"selected driver keeps watching", driverA, models.RequestTopic(sel.Request.ID), true},
		{"losing driver stops watching", driverB, models.RequestTopic(sel.Request.ID), false},
		{"offer driver", driverB, models.OfferTopic(openOffer.ID), true},
		{"offer client", client, models.OfferTopic(openOffer.ID), true},
		{"other driver on offer", driverA, models.OfferTopic(openOffer.ID), false},
		{"ride driver", driverA, models.RideTopic(sel.Ride.ID), true},
		{"ride client", client, models.RideTopic(sel.Ride.ID), true},
		{"other client on ride", other, models.RideTopic(sel.Ride.ID), false},
		{"admin watches anything", admin, models.RideTopic(sel.Ride.ID), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.svc.CanWatch(ctx, tt.actor, tt.topic)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrNotAuthorized)
		})
	}

	t.Run("selected driver still watches a cancelled request", func(t *testing.T) {
		f := newFixture(t)
		sel := f.selected(t)
		_, err := f.svc.CancelRequest(ctx, sel.Request.ID, client)
		require.NoError(t, err)

		assert.NoError(t, f.svc.CanWatch(ctx, driverA, models.RequestTopic(sel.Request.ID)))
		assert.ErrorIs(t, f.svc.CanWatch(ctx, driverB, models.RequestTopic(sel.Request.ID)), ErrNotAuthorized)
	})

	t.Run("malformed topic", func(t *testing.T) {
		err := f.svc.CanWatch(ctx, admin, models.Topic("parcel:1"))
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("unknown entity", func(t *testing.T) {
		err := f.svc.CanWatch(ctx, client, models.RideTopic("missing"))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
