package marketplace

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/chachabrian/evvalet-backend/internal/models"
	"github.com/chachabrian/evvalet-backend/internal/observability"
	"github.com/chachabrian/evvalet-backend/internal/storage"
	"github.com/chachabrian/evvalet-backend/pkg/utils"
)

// Publisher receives events after the transaction that produced them commits.
type Publisher interface {
	Publish(ctx context.Context, event models.Event) error
}

// LocationCache keeps the last known position of each driver for fast lookup.
type LocationCache interface {
	SetDriverLocation(ctx context.Context, driverID string, lat, lng float64, at time.Time) error
}

// Service is the marketplace core: offers, the negotiation ledger, the
// request lifecycle and ride tracking, all on one Store.
type Service struct {
	store     storage.Store
	publisher Publisher
	locations LocationCache
	log       logrus.FieldLogger
	validate  *validator.Validate
	now       func() time.Time

	averageSpeedKmh float64
	clientMayCancel bool
}

type Option func(*Service)

func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Service) { s.log = log }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithAverageSpeed(kmh float64) Option {
	return func(s *Service) {
		if kmh > 0 {
			s.averageSpeedKmh = kmh
		}
	}
}

// WithClientMayCancel controls whether a ride's client may cancel it.
func WithClientMayCancel(allowed bool) Option {
	return func(s *Service) { s.clientMayCancel = allowed }
}

func WithLocationCache(c LocationCache) Option {
	return func(s *Service) { s.locations = c }
}

func NewService(store storage.Store, publisher Publisher, opts ...Option) *Service {
	s := &Service{
		store:           store,
		publisher:       publisher,
		log:             logrus.StandardLogger(),
		validate:        validator.New(),
		now:             time.Now,
		averageSpeedKmh: utils.DefaultAverageSpeedKmh,
		clientMayCancel: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// commit runs fn in a transaction and publishes the events it collected once
// the transaction has committed.
func (s *Service) commit(ctx context.Context, entity string, fn func(tx storage.Tx, emit func(...models.Event)) error) error {
	var events []models.Event
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		events = events[:0]
		return fn(tx, func(e ...models.Event) { events = append(events, e...) })
	})
	if err != nil {
		if errors.Is(err, ErrConcurrentModification) {
			observability.TransitionConflicts.WithLabelValues(entity).Inc()
		}
		return err
	}
	s.publish(ctx, events)
	return nil
}

// requestOfOffer looks up an offer's request outside any transaction, so a
// transaction starting from the offer can lock the request first.
func (s *Service) requestOfOffer(ctx context.Context, offerID string) (string, error) {
	offer, err := s.store.GetOffer(ctx, offerID)
	if err != nil {
		return "", fmt.Errorf("offer %s: %w", offerID, err)
	}
	return offer.RequestID, nil
}

func (s *Service) publish(ctx context.Context, events []models.Event) {
	if s.publisher == nil {
		return
	}
	for _, e := range events {
		if e.Primary() && e.Type != models.EventRidePositionUpdated && e.NewStatus != e.OldStatus {
			observability.StatusTransitions.WithLabelValues(entityOf(e.Type), e.NewStatus).Inc()
		}
		if err := s.publisher.Publish(ctx, e); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"event": e.Type,
				"topic": e.Topic,
			}).Warn("event publish failed")
		}
	}
}

func entityOf(t models.EventType) string {
	switch t {
	case models.EventOfferUpdated:
		return "offer"
	case models.EventNegotiationAppended, models.EventNegotiationResolved:
		return "negotiation"
	case models.EventRequestUpdated:
		return "request"
	}
	return "ride"
}

func (s *Service) validateInput(v interface{}) error {
	if err := s.validate.Struct(v); err != nil {
		return invalidInput(err.Error())
	}
	return nil
}

func invalidInput(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, msg)
}
