package marketplace

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/chachabrian/evvalet-backend/internal/models"
	"github.com/chachabrian/evvalet-backend/internal/storage"
)

// ProposalInput is a counter-proposal appended to an offer's ledger.
type ProposalInput struct {
	Price            float64 `json:"price" validate:"gt=0"`
	ProposedDuration *string `json:"proposedDuration" validate:"omitempty,max=64"`
	Message          string  `json:"message" validate:"max=1000"`
}

type PriceSource string

const (
	PriceSourceBase        PriceSource = "base"
	PriceSourceNegotiation PriceSource = "negotiation"
)

// Quote is the price currently in force for an offer plus the proposals
// still awaiting an answer.
type Quote struct {
	OfferID string                    `json:"offerId"`
	Price   float64                   `json:"price"`
	Source  PriceSource               `json:"source"`
	EntryID *string                   `json:"entryId,omitempty"`
	Pending []models.NegotiationEntry `json:"pending"`
}

// EffectivePrice folds an offer's ledger: the latest accepted entry sets the
// price, otherwise the offer's own price stands. Pending entries never apply.
func EffectivePrice(offer models.Offer, history []models.NegotiationEntry) Quote {
	q := Quote{
		OfferID: offer.ID,
		Price:   offer.Price,
		Source:  PriceSourceBase,
		Pending: []models.NegotiationEntry{},
	}
	best := 0
	for _, e := range history {
		switch e.Status {
		case models.NegotiationStatusAccepted:
			if e.Sequence > best {
				best = e.Sequence
				id := e.ID
				q.Price = e.Price
				q.Source = PriceSourceNegotiation
				q.EntryID = &id
			}
		case models.NegotiationStatusPending:
			q.Pending = append(q.Pending, e)
		}
	}
	return q
}

// AppendEntry records a counter-proposal from either participant. A pending
// or accepted offer is reopened into negotiating.
func (s *Service) AppendEntry(ctx context.Context, offerID string, actor models.Actor, in ProposalInput) (*models.NegotiationEntry, error) {
	if err := s.validateInput(in); err != nil {
		return nil, err
	}

	requestID, err := s.requestOfOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}

	var out models.NegotiationEntry
	err = s.commit(ctx, "negotiation", func(tx storage.Tx, emit func(...models.Event)) error {
		req, err := tx.GetRequest(ctx, requestID)
		if err != nil {
			return fmt.Errorf("request %s: %w", requestID, err)
		}
		offer, err := tx.GetOffer(ctx, offerID)
		if err != nil {
			return fmt.Errorf("offer %s: %w", offerID, err)
		}

		var role models.Role
		switch {
		case actor.Is(models.RoleDriver) && offer.DriverID == actor.ID:
			role = models.RoleDriver
		case actor.Is(models.RoleClient) && req.ClientID == actor.ID:
			role = models.RoleClient
		default:
			return fmt.Errorf("%w: not a participant of this offer", ErrNotAuthorized)
		}
		if req.Status != models.RequestStatusActive {
			return fmt.Errorf("%w: request is %s", ErrInvalidRequestState, req.Status)
		}
		if !offer.Status.Negotiable() {
			return fmt.Errorf("%w: offer is %s", ErrIllegalTransition, offer.Status)
		}

		history, err := tx.ListNegotiations(ctx, offer.ID)
		if err != nil {
			return err
		}
		seq := 1
		if n := len(history); n > 0 {
			seq = history[n-1].Sequence + 1
		}

		now := s.now()
		out = models.NegotiationEntry{
			ID:               uuid.NewString(),
			OfferID:          offer.ID,
			Sequence:         seq,
			Role:             role,
			OriginatorID:     actor.ID,
			Price:            in.Price,
			ProposedDuration: in.ProposedDuration,
			Message:          in.Message,
			Status:           models.NegotiationStatusPending,
			CreatedAt:        now,
		}
		if err := tx.CreateNegotiation(ctx, &out); err != nil {
			return err
		}

		prev := offer.Status
		if prev != models.OfferStatusNegotiating {
			if !prev.CanTransitionTo(models.OfferStatusNegotiating) {
				return fmt.Errorf("%w: offer %s -> %s", ErrIllegalTransition, prev, models.OfferStatusNegotiating)
			}
			offer.Status = models.OfferStatusNegotiating
		}
		offer.LastActivityAt = now
		if err := tx.UpdateOffer(ctx, offer, prev); err != nil {
			return err
		}

		emit(negotiationEvents(models.EventNegotiationAppended, out, *offer, req.ClientID, "", now)...)
		if prev != offer.Status {
			emit(offerEvents(*offer, req.ClientID, prev, now)...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ResolveEntry accepts or rejects a pending proposal. Only the counter-party
// of the entry's originator may answer it, and only once.
func (s *Service) ResolveEntry(ctx context.Context, entryID string, accept bool, actor models.Actor) (*models.NegotiationEntry, error) {
	pending, err := s.store.GetNegotiation(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("negotiation entry %s: %w", entryID, err)
	}
	requestID, err := s.requestOfOffer(ctx, pending.OfferID)
	if err != nil {
		return nil, err
	}

	var out models.NegotiationEntry
	err = s.commit(ctx, "negotiation", func(tx storage.Tx, emit func(...models.Event)) error {
		req, err := tx.GetRequest(ctx, requestID)
		if err != nil {
			return fmt.Errorf("request %s: %w", requestID, err)
		}
		offer, err := tx.GetOffer(ctx, pending.OfferID)
		if err != nil {
			return fmt.Errorf("offer %s: %w", pending.OfferID, err)
		}
		entry, err := tx.GetNegotiation(ctx, entryID)
		if err != nil {
			return fmt.Errorf("negotiation entry %s: %w", entryID, err)
		}

		var counterParty bool
		switch entry.Role {
		case models.RoleDriver:
			counterParty = actor.Is(models.RoleClient) && req.ClientID == actor.ID
		case models.RoleClient:
			counterParty = actor.Is(models.RoleDriver) && offer.DriverID == actor.ID
		}
		if !counterParty {
			return fmt.Errorf("%w: only the counter-party resolves a proposal", ErrNotAuthorized)
		}
		if entry.Status != models.NegotiationStatusPending {
			return fmt.Errorf("%w: entry is %s", ErrAlreadyResolved, entry.Status)
		}
		if req.Status != models.RequestStatusActive {
			return fmt.Errorf("%w: request is %s", ErrInvalidRequestState, req.Status)
		}
		if !offer.Status.Negotiable() {
			return fmt.Errorf("%w: offer is %s", ErrIllegalTransition, offer.Status)
		}

		now := s.now()
		entry.Status = models.NegotiationStatusRejected
		if accept {
			entry.Status = models.NegotiationStatusAccepted
		}
		entry.ResolvedAt = &now
		entry.ResolvedBy = &actor.ID
		if err := tx.UpdateNegotiation(ctx, entry, models.NegotiationStatusPending); err != nil {
			return err
		}

		offer.LastActivityAt = now
		if err := tx.UpdateOffer(ctx, offer, offer.Status); err != nil {
			return err
		}

		emit(negotiationEvents(models.EventNegotiationResolved, *entry, *offer, req.ClientID, models.NegotiationStatusPending, now)...)
		out = *entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// History returns an offer's ledger, oldest first.
func (s *Service) History(ctx context.Context, offerID string) ([]models.NegotiationEntry, error) {
	if _, err := s.store.GetOffer(ctx, offerID); err != nil {
		return nil, fmt.Errorf("offer %s: %w", offerID, err)
	}
	return s.store.ListNegotiations(ctx, offerID)
}

func (s *Service) Quote(ctx context.Context, offerID string) (*Quote, error) {
	offer, err := s.store.GetOffer(ctx, offerID)
	if err != nil {
		return nil, fmt.Errorf("offer %s: %w", offerID, err)
	}
	history, err := s.store.ListNegotiations(ctx, offerID)
	if err != nil {
		return nil, err
	}
	q := EffectivePrice(*offer, history)
	return &q, nil
}
