package storage

import (
	"context"
	"errors"

	"github.com/chachabrian/evvalet-backend/internal/models"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConcurrentModification is returned when a compare-and-swap update finds
	// the row no longer in the expected status.
	ErrConcurrentModification = errors.New("concurrent modification")
)

// RequestFilter narrows ListRequests. Zero fields are ignored.
type RequestFilter struct {
	Status   models.RequestStatus
	ClientID string
	Limit    int
}

// Reader exposes the read side of the persistence collaborator.
type Reader interface {
	GetRequest(ctx context.Context, id string) (*models.Request, error)
	ListRequests(ctx context.Context, filter RequestFilter) ([]models.Request, error)
	GetOffer(ctx context.Context, id string) (*models.Offer, error)
	// ListOffersByRequest returns offers most recent first.
	ListOffersByRequest(ctx context.Context, requestID string) ([]models.Offer, error)
	GetNegotiation(ctx context.Context, id string) (*models.NegotiationEntry, error)
	// ListNegotiations returns an offer's entries oldest first.
	ListNegotiations(ctx context.Context, offerID string) ([]models.NegotiationEntry, error)
	GetRide(ctx context.Context, id string) (*models.Ride, error)
	GetRideByRequest(ctx context.Context, requestID string) (*models.Ride, error)
}

// Tx is a unit of work. Reads inside a Tx lock the rows they return until
// commit. Every Update* is a compare-and-swap on the status the caller read:
// it fails with ErrConcurrentModification if the stored status differs.
// Rows are locked parent first: the request, then its offers and their
// negotiation entries, then its ride.
type Tx interface {
	Reader

	CreateRequest(ctx context.Context, r *models.Request) error
	UpdateRequest(ctx context.Context, r *models.Request, expected models.RequestStatus) error

	CreateOffer(ctx context.Context, o *models.Offer) error
	UpdateOffer(ctx context.Context, o *models.Offer, expected models.OfferStatus) error

	CreateNegotiation(ctx context.Context, e *models.NegotiationEntry) error
	UpdateNegotiation(ctx context.Context, e *models.NegotiationEntry, expected models.NegotiationStatus) error

	CreateRide(ctx context.Context, r *models.Ride) error
	UpdateRide(ctx context.Context, r *models.Ride, expected models.RideStatus) error
}

// Store is the persistence collaborator the marketplace core runs on.
type Store interface {
	Reader
	// WithTx runs fn in a transaction, committing when fn returns nil.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// DeviceTokenStore keeps push notification tokens per user.
type DeviceTokenStore interface {
	SaveDeviceToken(ctx context.Context, t *models.DeviceToken) error
	RemoveDeviceToken(ctx context.Context, userID, token string) error
	ListDeviceTokens(ctx context.Context, userID string) ([]string, error)
}
