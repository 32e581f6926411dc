package marketplace

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chachabrian/evvalet-backend/internal/models"
)

func TestEffectivePrice(t *testing.T) {
	offer := models.Offer{ID: "o1", Price: 25}
	entry := func(seq int, price float64, status models.NegotiationStatus) models.NegotiationEntry {
		return models.NegotiationEntry{ID: fmt.Sprintf("e%d", seq), OfferID: "o1", Sequence: seq, Price: price, Status: status}
	}

	tests := []struct {
		name    string
		history []models.NegotiationEntry
		price   float64
		source  PriceSource
		pending int
	}{
		{"no history", nil, 25, PriceSourceBase, 0},
		{"only pending", []models.NegotiationEntry{entry(1, 20, models.NegotiationStatusPending)}, 25, PriceSourceBase, 1},
		{"rejected is ignored", []models.NegotiationEntry{entry(1, 20, models.NegotiationStatusRejected)}, 25, PriceSourceBase, 0},
		{"accepted applies", []models.NegotiationEntry{entry(1, 22, models.NegotiationStatusAccepted)}, 22, PriceSourceNegotiation, 0},
		{
			"latest accepted wins",
			[]models.NegotiationEntry{
				entry(1, 22, models.NegotiationStatusAccepted),
				entry(2, 21, models.NegotiationStatusRejected),
				entry(3, 23, models.NegotiationStatusAccepted),
				entry(4, 19, models.NegotiationStatusPending),
			},
			23, PriceSourceNegotiation, 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := EffectivePrice(offer, tt.history)
			assert.Equal(t, tt.price, q.Price)
			assert.Equal(t, tt.source, q.Source)
			assert.Len(t, q.Pending, tt.pending)
			assert.Equal(t, tt.source == PriceSourceNegotiation, q.EntryID != nil)
		})
	}
}

func TestAppendEntry(t *testing.T) {
	ctx := context.Background()

	t.Run("role comes from the actor", func(t *testing.T) {
		f := newFixture(t)
		req := f.request(t)
		offer := f.offer(t, req.ID, driverA, 25)

		first, err := f.svc.AppendEntry(ctx, offer.ID, driverA, ProposalInput{Price: 27})
		require.NoError(t, err)
		assert.Equal(t, models.RoleDriver, first.Role)
		assert.Equal(t, models.NegotiationStatusPending, first.Status)

		second, err := f.svc.AppendEntry(ctx, offer.ID, client, ProposalInput{Price: 23})
		require.NoError(t, err)
		assert.Equal(t, models.RoleClient, second.Role)
		assert.Equal(t, 2, second.Sequence)

		history, err := f.svc.History(ctx, offer.ID)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, first.ID, history[0].ID)
		assert.Equal(t, second.ID, history[1].ID)
	})

	t.Run("reopens an accepted offer", func(t *testing.T) {
		f := newFixture(t)
		req := f.request(t)
		offer := f.offer(t, req.ID, driverA, 25)
		_, err := f.svc.Transition(ctx, offer.ID, models.OfferStatusAccepted, client)
		require.NoError(t, err)
		f.events.reset()

		_, err = f.svc.AppendEntry(ctx, offer.ID, driverA, ProposalInput{Price: 28})
		require.NoError(t, err)
		got, err := f.svc.GetOffer(ctx, offer.ID)
		require.NoError(t, err)
		assert.Equal(t, models.OfferStatusNegotiating, got.Status)

		updates := f.events.primary(models.EventOfferUpdated)
		require.Len(t, updates, 1)
		assert.Equal(t, "accepted", updates[0].OldStatus)
		assert.Len(t, f.events.primary(models.EventNegotiationAppended), 1)
	})

	t.Run("outsiders are refused", func(t *testing.T) {
		f := newFixture(t)
		req := f.request(t)
		offer := f.offer(t, req.ID, driverA, 25)
		_, err := f.svc.AppendEntry(ctx, offer.ID, driverB, ProposalInput{Price: 20})
		assert.ErrorIs(t, err, ErrNotAuthorized)
		_, err = f.svc.AppendEntry(ctx, offer.ID, other, ProposalInput{Price: 20})
		assert.ErrorIs(t, err, ErrNotAuthorized)
	})

	t.Run("closed after selection", func(t *testing.T) {
		f := newFixture(t)
		sel := f.selected(t)
		_, err := f.svc.AppendEntry(ctx, sel.Offer.ID, client, ProposalInput{Price: 20})
		assert.ErrorIs(t, err, ErrInvalidRequestState)
	})

	t.Run("closed on a rejected offer", func(t *testing.T) {
		f := newFixture(t)
		req := f.request(t)
		offer := f.offer(t, req.ID, driverA, 25)
		_, err := f.svc.Transition(ctx, offer.ID, models.OfferStatusRejected, client)
		require.NoError(t, err)
		_, err = f.svc.AppendEntry(ctx, offer.ID, driverA, ProposalInput{Price: 20})
		assert.ErrorIs(t, err, ErrIllegalTransition)
	})

	t.Run("price must be positive", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.AppendEntry(ctx, "any", client, ProposalInput{Price: 0})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestResolveEntry(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*fixture, *models.Offer, *models.NegotiationEntry) {
		f := newFixture(t)
		req := f.request(t)
		offer := f.offer(t, req.ID, driverA, 25)
		entry, err := f.svc.AppendEntry(ctx, offer.ID, client, ProposalInput{Price: 22})
		require.NoError(t, err)
		return f, offer, entry
	}

	t.Run("originator cannot answer", func(t *testing.T) {
		f, _, entry := setup(t)
		_, err := f.svc.ResolveEntry(ctx, entry.ID, true, client)
		assert.ErrorIs(t, err, ErrNotAuthorized)
		_, err = f.svc.ResolveEntry(ctx, entry.ID, true, driverB)
		assert.ErrorIs(t, err, ErrNotAuthorized)
	})

	t.Run("answers once", func(t *testing.T) {
		f, _, entry := setup(t)
		got, err := f.svc.ResolveEntry(ctx, entry.ID, true, driverA)
		require.NoError(t, err)
		assert.Equal(t, models.NegotiationStatusAccepted, got.Status)
		require.NotNil(t, got.ResolvedBy)
		assert.Equal(t, driverA.ID, *got.ResolvedBy)
		assert.NotNil(t, got.ResolvedAt)

		_, err = f.svc.ResolveEntry(ctx, entry.ID, false, driverA)
		assert.ErrorIs(t, err, ErrAlreadyResolved)
	})

	t.Run("rejection keeps the price", func(t *testing.T) {
		f, offer, entry := setup(t)
		_, err := f.svc.ResolveEntry(ctx, entry.ID, false, driverA)
		require.NoError(t, err)

		q, err := f.svc.Quote(ctx, offer.ID)
		require.NoError(t, err)
		assert.Equal(t, 25.0, q.Price)
		assert.Equal(t, PriceSourceBase, q.Source)
		assert.Empty(t, q.Pending)
	})

	t.Run("frozen after selection", func(t *testing.T) {
		f, offer, entry := setup(t)
		_, err := f.svc.SelectOffer(ctx, offer.RequestID, offer.ID, client)
		require.NoError(t, err)
		_, err = f.svc.ResolveEntry(ctx, entry.ID, true, driverA)
		assert.ErrorIs(t, err, ErrInvalidRequestState)

		q, err := f.svc.Quote(ctx, offer.ID)
		require.NoError(t, err)
		assert.Equal(t, 25.0, q.Price)
	})

	t.Run("publishes to offer and request topics", func(t *testing.T) {
		f, offer, entry := setup(t)
		f.events.reset()
		_, err := f.svc.ResolveEntry(ctx, entry.ID, true, driverA)
		require.NoError(t, err)
		assert.Len(t, f.events.onTopic(models.OfferTopic(offer.ID)), 1)
		assert.Len(t, f.events.onTopic(models.RequestTopic(offer.RequestID)), 1)
	})

	t.Run("unknown entry", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.ResolveEntry(ctx, "missing", true, driverA)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
