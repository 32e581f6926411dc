package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/chachabrian/evvalet-backend/internal/models"
)

// GormStore persists marketplace records in postgres through gorm.
type GormStore struct {
	gormReader
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{gormReader{db: db}}
}

func (s *GormStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	// A deadlock can surface on any statement or on commit.
	return translate(s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{gormReader{db: tx, lock: true}})
	}))
}

type gormReader struct {
	db   *gorm.DB
	lock bool
}

// row returns a query for single-row reads, locked FOR UPDATE inside a transaction.
func (r gormReader) row(ctx context.Context) *gorm.DB {
	q := r.db.WithContext(ctx)
	if r.lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return q
}

func (r gormReader) GetRequest(ctx context.Context, id string) (*models.Request, error) {
	var req models.Request
	if err := r.row(ctx).First(&req, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &req, nil
}

func (r gormReader) ListRequests(ctx context.Context, filter RequestFilter) ([]models.Request, error) {
	q := r.db.WithContext(ctx).Order("created_at DESC")
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.ClientID != "" {
		q = q.Where("client_id = ?", filter.ClientID)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var reqs []models.Request
	if err := q.Find(&reqs).Error; err != nil {
		return nil, err
	}
	return reqs, nil
}

func (r gormReader) GetOffer(ctx context.Context, id string) (*models.Offer, error) {
	var offer models.Offer
	if err := r.row(ctx).First(&offer, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &offer, nil
}

func (r gormReader) ListOffersByRequest(ctx context.Context, requestID string) ([]models.Offer, error) {
	var offers []models.Offer
	if err := r.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("created_at DESC, id DESC").
		Find(&offers).Error; err != nil {
		return nil, err
	}
	return offers, nil
}

func (r gormReader) GetNegotiation(ctx context.Context, id string) (*models.NegotiationEntry, error) {
	var entry models.NegotiationEntry
	if err := r.row(ctx).First(&entry, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &entry, nil
}

func (r gormReader) ListNegotiations(ctx context.Context, offerID string) ([]models.NegotiationEntry, error) {
	var entries []models.NegotiationEntry
	if err := r.db.WithContext(ctx).
		Where("offer_id = ?", offerID).
		Order("sequence ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r gormReader) GetRide(ctx context.Context, id string) (*models.Ride, error) {
	var ride models.Ride
	if err := r.row(ctx).First(&ride, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &ride, nil
}

func (r gormReader) GetRideByRequest(ctx context.Context, requestID string) (*models.Ride, error) {
	var ride models.Ride
	if err := r.row(ctx).First(&ride, "request_id = ?", requestID).Error; err != nil {
		return nil, translate(err)
	}
	return &ride, nil
}

type gormTx struct {
	gormReader
}

func (t *gormTx) CreateRequest(ctx context.Context, r *models.Request) error {
	return translate(t.db.WithContext(ctx).Create(r).Error)
}

func (t *gormTx) UpdateRequest(ctx context.Context, r *models.Request, expected models.RequestStatus) error {
	return compareAndSwap(t.db.WithContext(ctx).Model(r).Where("status = ?", expected), r)
}

func (t *gormTx) CreateOffer(ctx context.Context, o *models.Offer) error {
	return translate(t.db.WithContext(ctx).Create(o).Error)
}

func (t *gormTx) UpdateOffer(ctx context.Context, o *models.Offer, expected models.OfferStatus) error {
	return compareAndSwap(t.db.WithContext(ctx).Model(o).Where("status = ?", expected), o)
}

func (t *gormTx) CreateNegotiation(ctx context.Context, e *models.NegotiationEntry) error {
	return translate(t.db.WithContext(ctx).Create(e).Error)
}

func (t *gormTx) UpdateNegotiation(ctx context.Context, e *models.NegotiationEntry, expected models.NegotiationStatus) error {
	return compareAndSwap(t.db.WithContext(ctx).Model(e).Where("status = ?", expected), e)
}

func (t *gormTx) CreateRide(ctx context.Context, r *models.Ride) error {
	return translate(t.db.WithContext(ctx).Create(r).Error)
}

func (t *gormTx) UpdateRide(ctx context.Context, r *models.Ride, expected models.RideStatus) error {
	return compareAndSwap(t.db.WithContext(ctx).Model(r).Where("status = ?", expected), r)
}

// compareAndSwap writes every column of value, guarded by the status condition
// already on q. Zero matched rows means another writer got there first.
func compareAndSwap(q *gorm.DB, value interface{}) error {
	res := q.Select("*").Omit("created_at").Updates(value)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrConcurrentModification
	}
	return nil
}

func (s *GormStore) SaveDeviceToken(ctx context.Context, t *models.DeviceToken) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "platform", "updated_at"}),
	}).Create(t).Error
}

func (s *GormStore) RemoveDeviceToken(ctx context.Context, userID, token string) error {
	return s.db.WithContext(ctx).
		Where("user_id = ? AND token = ?", userID, token).
		Delete(&models.DeviceToken{}).Error
}

func (s *GormStore) ListDeviceTokens(ctx context.Context, userID string) ([]string, error) {
	var tokens []string
	if err := s.db.WithContext(ctx).
		Model(&models.DeviceToken{}).
		Where("user_id = ?", userID).
		Pluck("token", &tokens).Error; err != nil {
		return nil, err
	}
	return tokens, nil
}

// Postgres SQLSTATE codes for conflicts between concurrent transactions.
const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// translate maps gorm and postgres errors onto the storage sentinels. A unique
// violation (e.g. a second selected offer on one request), a deadlock or a
// serialization failure all mean a concurrent writer won.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrConcurrentModification
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation, pgSerializationFailure, pgDeadlockDetected:
			return fmt.Errorf("%w: %s", ErrConcurrentModification, pgErr.Message)
		}
	}
	return err
}
