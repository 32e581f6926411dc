package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/chachabrian/evvalet-backend/internal/models"
)

// MemoryStore keeps records in process memory. Transactions are serialised by
// a single lock and rolled back from an undo log, so it offers the same
// atomicity as the postgres store for tests and single-node development.
type MemoryStore struct {
	mu           sync.RWMutex
	requests     map[string]models.Request
	offers       map[string]models.Offer
	negotiations map[string]models.NegotiationEntry
	rides        map[string]models.Ride
	tokens       map[string]models.DeviceToken
	seq          map[string]int64
	nextSeq      int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		requests:     make(map[string]models.Request),
		offers:       make(map[string]models.Offer),
		negotiations: make(map[string]models.NegotiationEntry),
		rides:        make(map[string]models.Ride),
		tokens:       make(map[string]models.DeviceToken),
		seq:          make(map[string]int64),
	}
}

func (m *MemoryStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memoryTx{m: m}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

func (m *MemoryStore) GetRequest(ctx context.Context, id string) (*models.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getRequest(id)
}

func (m *MemoryStore) ListRequests(ctx context.Context, filter RequestFilter) ([]models.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listRequests(filter), nil
}

func (m *MemoryStore) GetOffer(ctx context.Context, id string) (*models.Offer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getOffer(id)
}

func (m *MemoryStore) ListOffersByRequest(ctx context.Context, requestID string) ([]models.Offer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listOffers(requestID), nil
}

func (m *MemoryStore) GetNegotiation(ctx context.Context, id string) (*models.NegotiationEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getNegotiation(id)
}

func (m *MemoryStore) ListNegotiations(ctx context.Context, offerID string) ([]models.NegotiationEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listNegotiations(offerID), nil
}

func (m *MemoryStore) GetRide(ctx context.Context, id string) (*models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getRide(id)
}

func (m *MemoryStore) GetRideByRequest(ctx context.Context, requestID string) (*models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getRideByRequest(requestID)
}

func (m *MemoryStore) SaveDeviceToken(ctx context.Context, t *models.DeviceToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if existing, ok := m.tokens[t.Token]; ok {
		t.ID = existing.ID
		t.CreatedAt = existing.CreatedAt
	} else {
		m.nextSeq++
		t.ID = uint(m.nextSeq)
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	m.tokens[t.Token] = *t
	return nil
}

func (m *MemoryStore) RemoveDeviceToken(ctx context.Context, userID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tokens[token]; ok && t.UserID == userID {
		delete(m.tokens, token)
	}
	return nil
}

func (m *MemoryStore) ListDeviceTokens(ctx context.Context, userID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for _, t := range m.tokens {
		if t.UserID == userID {
			out = append(out, t.Token)
		}
	}
	sort.Strings(out)
	return out, nil
}

// unlocked helpers, shared by the store and its transactions

func (m *MemoryStore) getRequest(id string) (*models.Request, error) {
	r, ok := m.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (m *MemoryStore) listRequests(filter RequestFilter) []models.Request {
	out := make([]models.Request, 0)
	for _, r := range m.requests {
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if filter.ClientID != "" && r.ClientID != filter.ClientID {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return m.seq[out[i].ID] > m.seq[out[j].ID]
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}

func (m *MemoryStore) getOffer(id string) (*models.Offer, error) {
	o, ok := m.offers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &o, nil
}

func (m *MemoryStore) listOffers(requestID string) []models.Offer {
	out := make([]models.Offer, 0)
	for _, o := range m.offers {
		if o.RequestID == requestID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return m.seq[out[i].ID] > m.seq[out[j].ID]
	})
	return out
}

func (m *MemoryStore) getNegotiation(id string) (*models.NegotiationEntry, error) {
	e, ok := m.negotiations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (m *MemoryStore) listNegotiations(offerID string) []models.NegotiationEntry {
	out := make([]models.NegotiationEntry, 0)
	for _, e := range m.negotiations {
		if e.OfferID == offerID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Sequence < out[j].Sequence
	})
	return out
}

func (m *MemoryStore) getRide(id string) (*models.Ride, error) {
	r, ok := m.rides[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (m *MemoryStore) getRideByRequest(requestID string) (*models.Ride, error) {
	for _, r := range m.rides {
		if r.RequestID == requestID {
			return &r, nil
		}
	}
	return nil, ErrNotFound
}

// memoryTx runs with MemoryStore.mu held for writing.
type memoryTx struct {
	m    *MemoryStore
	undo []func()
}

func (t *memoryTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
}

func (t *memoryTx) stamp(id string, createdAt *time.Time, updatedAt *time.Time) {
	now := time.Now()
	if createdAt != nil && createdAt.IsZero() {
		*createdAt = now
	}
	if updatedAt != nil {
		*updatedAt = now
	}
	t.m.nextSeq++
	t.m.seq[id] = t.m.nextSeq
	t.undo = append(t.undo, func() { delete(t.m.seq, id) })
}

func (t *memoryTx) GetRequest(ctx context.Context, id string) (*models.Request, error) {
	return t.m.getRequest(id)
}

func (t *memoryTx) ListRequests(ctx context.Context, filter RequestFilter) ([]models.Request, error) {
	return t.m.listRequests(filter), nil
}

func (t *memoryTx) GetOffer(ctx context.Context, id string) (*models.Offer, error) {
	return t.m.getOffer(id)
}

func (t *memoryTx) ListOffersByRequest(ctx context.Context, requestID string) ([]models.Offer, error) {
	return t.m.listOffers(requestID), nil
}

func (t *memoryTx) GetNegotiation(ctx context.Context, id string) (*models.NegotiationEntry, error) {
	return t.m.getNegotiation(id)
}

func (t *memoryTx) ListNegotiations(ctx context.Context, offerID string) ([]models.NegotiationEntry, error) {
	return t.m.listNegotiations(offerID), nil
}

func (t *memoryTx) GetRide(ctx context.Context, id string) (*models.Ride, error) {
	return t.m.getRide(id)
}

func (t *memoryTx) GetRideByRequest(ctx context.Context, requestID string) (*models.Ride, error) {
	return t.m.getRideByRequest(requestID)
}

func (t *memoryTx) CreateRequest(ctx context.Context, r *models.Request) error {
	if _, exists := t.m.requests[r.ID]; exists {
		return ErrConcurrentModification
	}
	t.stamp(r.ID, &r.CreatedAt, &r.UpdatedAt)
	t.m.requests[r.ID] = *r
	t.undo = append(t.undo, func() { delete(t.m.requests, r.ID) })
	return nil
}

func (t *memoryTx) UpdateRequest(ctx context.Context, r *models.Request, expected models.RequestStatus) error {
	old, ok := t.m.requests[r.ID]
	if !ok {
		return ErrNotFound
	}
	if old.Status != expected {
		return ErrConcurrentModification
	}
	r.CreatedAt = old.CreatedAt
	r.UpdatedAt = time.Now()
	t.m.requests[r.ID] = *r
	t.undo = append(t.undo, func() { t.m.requests[old.ID] = old })
	return nil
}

func (t *memoryTx) CreateOffer(ctx context.Context, o *models.Offer) error {
	if _, exists := t.m.offers[o.ID]; exists {
		return ErrConcurrentModification
	}
	t.stamp(o.ID, &o.CreatedAt, &o.UpdatedAt)
	t.m.offers[o.ID] = *o
	t.undo = append(t.undo, func() { delete(t.m.offers, o.ID) })
	return nil
}

func (t *memoryTx) UpdateOffer(ctx context.Context, o *models.Offer, expected models.OfferStatus) error {
	old, ok := t.m.offers[o.ID]
	if !ok {
		return ErrNotFound
	}
	if old.Status != expected {
		return ErrConcurrentModification
	}
	if o.Status == models.OfferStatusSelected || o.Status == models.OfferStatusCompleted {
		for id, sibling := range t.m.offers {
			if id != o.ID && sibling.RequestID == o.RequestID &&
				(sibling.Status == models.OfferStatusSelected || sibling.Status == models.OfferStatusCompleted) {
				return ErrConcurrentModification
			}
		}
	}
	o.CreatedAt = old.CreatedAt
	o.UpdatedAt = time.Now()
	o.Inactive = false
	t.m.offers[o.ID] = *o
	t.undo = append(t.undo, func() { t.m.offers[old.ID] = old })
	return nil
}

func (t *memoryTx) CreateNegotiation(ctx context.Context, e *models.NegotiationEntry) error {
	if _, exists := t.m.negotiations[e.ID]; exists {
		return ErrConcurrentModification
	}
	for _, other := range t.m.negotiations {
		if other.OfferID == e.OfferID && other.Sequence == e.Sequence {
			return ErrConcurrentModification
		}
	}
	t.stamp(e.ID, &e.CreatedAt, nil)
	t.m.negotiations[e.ID] = *e
	t.undo = append(t.undo, func() { delete(t.m.negotiations, e.ID) })
	return nil
}

func (t *memoryTx) UpdateNegotiation(ctx context.Context, e *models.NegotiationEntry, expected models.NegotiationStatus) error {
	old, ok := t.m.negotiations[e.ID]
	if !ok {
		return ErrNotFound
	}
	if old.Status != expected {
		return ErrConcurrentModification
	}
	e.CreatedAt = old.CreatedAt
	t.m.negotiations[e.ID] = *e
	t.undo = append(t.undo, func() { t.m.negotiations[old.ID] = old })
	return nil
}

func (t *memoryTx) CreateRide(ctx context.Context, r *models.Ride) error {
	if _, exists := t.m.rides[r.ID]; exists {
		return ErrConcurrentModification
	}
	if _, err := t.m.getRideByRequest(r.RequestID); err == nil {
		return ErrConcurrentModification
	}
	t.stamp(r.ID, &r.CreatedAt, &r.UpdatedAt)
	t.m.rides[r.ID] = *r
	t.undo = append(t.undo, func() { delete(t.m.rides, r.ID) })
	return nil
}

func (t *memoryTx) UpdateRide(ctx context.Context, r *models.Ride, expected models.RideStatus) error {
	old, ok := t.m.rides[r.ID]
	if !ok {
		return ErrNotFound
	}
	if old.Status != expected {
		return ErrConcurrentModification
	}
	r.CreatedAt = old.CreatedAt
	r.UpdatedAt = time.Now()
	t.m.rides[r.ID] = *r
	t.undo = append(t.undo, func() { t.m.rides[old.ID] = old })
	return nil
}
