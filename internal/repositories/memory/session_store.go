package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	domain "github.com/tidynest/api/internal/domain"
)

// DefaultSessionTTL is applied when the store is constructed without an explicit TTL.
const DefaultSessionTTL = 24 * time.Hour

// storeError categorises failures for the repositories.RepositoryError contract.
type storeError struct {
	err         error
	notFound    bool
	unavailable bool
}

func (e *storeError) Error() string       { return e.err.Error() }
func (e *storeError) Unwrap() error       { return e.err }
func (e *storeError) IsNotFound() bool    { return e.notFound }
func (e *storeError) IsConflict() bool    { return false }
func (e *storeError) IsUnavailable() bool { return e.unavailable }

func notFoundError(msg string) error {
	return &storeError{err: errors.New(msg), notFound: true}
}

func invalidError(msg string) error {
	return &storeError{err: errors.New(msg), unavailable: true}
}

type sessionRecord struct {
	cart        *domain.Cart
	saved       map[string]domain.SavedCart
	pending     []domain.PendingOperation
	autosave    *domain.Cart
	autosavedAt time.Time
	expiresAt   time.Time
}

// SessionStore is an in-memory, TTL-expiring stand-in for the browser's local
// storage. It backs the cart, saved-cart, pending-operation, and autosave
// repositories. Sessions are pruned lazily on access.
type SessionStore struct {
	ttl time.Duration
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]*sessionRecord
}

// Option customises SessionStore construction.
type Option func(*SessionStore)

// WithTTL overrides the session expiry window.
func WithTTL(ttl time.Duration) Option {
	return func(s *SessionStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock injects a deterministic clock for tests.
func WithClock(now func() time.Time) Option {
	return func(s *SessionStore) {
		if now != nil {
			s.now = func() time.Time { return now().UTC() }
		}
	}
}

// NewSessionStore constructs an empty session store.
func NewSessionStore(opts ...Option) *SessionStore {
	store := &SessionStore{
		ttl:      DefaultSessionTTL,
		now:      func() time.Time { return time.Now().UTC() },
		sessions: make(map[string]*sessionRecord),
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// session returns the live record for the id, creating one when requested.
// Callers must hold s.mu.
func (s *SessionStore) session(id string, create bool) *sessionRecord {
	now := s.now()
	record, ok := s.sessions[id]
	if ok && !record.expiresAt.IsZero() && !now.Before(record.expiresAt) {
		delete(s.sessions, id)
		ok = false
	}
	if !ok {
		if !create {
			return nil
		}
		record = &sessionRecord{saved: make(map[string]domain.SavedCart)}
		s.sessions[id] = record
	}
	record.expiresAt = now.Add(s.ttl)
	return record
}

// GetCart implements repositories.CartRepository.
func (s *SessionStore) GetCart(_ context.Context, sessionID string) (domain.Cart, error) {
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return domain.Cart{}, invalidError("session store: session id required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record := s.session(id, false)
	if record == nil || record.cart == nil {
		return domain.Cart{}, notFoundError("session store: cart not found")
	}
	return cloneCart(*record.cart), nil
}

// UpsertCart implements repositories.CartRepository.
func (s *SessionStore) UpsertCart(_ context.Context, cart domain.Cart) (domain.Cart, error) {
	id := strings.TrimSpace(cart.SessionID)
	if id == "" {
		return domain.Cart{}, invalidError("session store: session id required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record := s.session(id, true)
	stored := cloneCart(cart)
	record.cart = &stored
	return cloneCart(stored), nil
}

// DeleteCart implements repositories.CartRepository.
func (s *SessionStore) DeleteCart(_ context.Context, sessionID string) error {
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return invalidError("session store: session id required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if record := s.session(id, false); record != nil {
		record.cart = nil
	}
	return nil
}

// SaveSnapshot implements repositories.SavedCartRepository.
func (s *SessionStore) SaveSnapshot(_ context.Context, sessionID string, snapshot domain.SavedCart) (domain.SavedCart, error) {
	id := strings.TrimSpace(sessionID)
	if id == "" || strings.TrimSpace(snapshot.ID) == "" {
		return domain.SavedCart{}, invalidError("session store: session and snapshot ids required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record := s.session(id, true)
	stored := snapshot
	stored.Items = cloneItems(snapshot.Items)
	record.saved[snapshot.ID] = stored
	return stored, nil
}

// ListSnapshots implements repositories.SavedCartRepository. Results are
// ordered newest first.
func (s *SessionStore) ListSnapshots(_ context.Context, sessionID string) ([]domain.SavedCart, error) {
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return nil, invalidError("session store: session id required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record := s.session(id, false)
	if record == nil {
		return []domain.SavedCart{}, nil
	}
	out := make([]domain.SavedCart, 0, len(record.saved))
	for _, snapshot := range record.saved {
		snapshot.Items = cloneItems(snapshot.Items)
		out = append(out, snapshot)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SavedAt.Equal(out[j].SavedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].SavedAt.After(out[j].SavedAt)
	})
	return out, nil
}

// GetSnapshot implements repositories.SavedCartRepository.
func (s *SessionStore) GetSnapshot(_ context.Context, sessionID string, snapshotID string) (domain.SavedCart, error) {
	id := strings.TrimSpace(sessionID)
	if id == "" || strings.TrimSpace(snapshotID) == "" {
		return domain.SavedCart{}, invalidError("session store: session and snapshot ids required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record := s.session(id, false)
	if record == nil {
		return domain.SavedCart{}, notFoundError("session store: snapshot not found")
	}
	snapshot, ok := record.saved[strings.TrimSpace(snapshotID)]
	if !ok {
		return domain.SavedCart{}, notFoundError("session store: snapshot not found")
	}
	snapshot.Items = cloneItems(snapshot.Items)
	return snapshot, nil
}

// DeleteSnapshot implements repositories.SavedCartRepository.
func (s *SessionStore) DeleteSnapshot(_ context.Context, sessionID string, snapshotID string) error {
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return invalidError("session store: session id required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if record := s.session(id, false); record != nil {
		delete(record.saved, strings.TrimSpace(snapshotID))
	}
	return nil
}

// Append implements repositories.PendingOpRepository.
func (s *SessionStore) Append(_ context.Context, sessionID string, op domain.PendingOperation) error {
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return invalidError("session store: session id required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record := s.session(id, true)
	if op.Item != nil {
		dup := *op.Item
		dup.Metadata = cloneAnyMap(op.Item.Metadata)
		op.Item = &dup
	}
	record.pending = append(record.pending, op)
	return nil
}

// List implements repositories.PendingOpRepository, preserving insertion order.
func (s *SessionStore) List(_ context.Context, sessionID string) ([]domain.PendingOperation, error) {
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return nil, invalidError("session store: session id required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record := s.session(id, false)
	if record == nil || len(record.pending) == 0 {
		return []domain.PendingOperation{}, nil
	}
	out := make([]domain.PendingOperation, len(record.pending))
	copy(out, record.pending)
	return out, nil
}

// Clear implements repositories.PendingOpRepository.
func (s *SessionStore) Clear(_ context.Context, sessionID string) error {
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return invalidError("session store: session id required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if record := s.session(id, false); record != nil {
		record.pending = nil
	}
	return nil
}

// PutAutosave implements repositories.AutosaveRepository.
func (s *SessionStore) PutAutosave(_ context.Context, sessionID string, cart domain.Cart, savedAt time.Time) error {
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return invalidError("session store: session id required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record := s.session(id, true)
	stored := cloneCart(cart)
	record.autosave = &stored
	record.autosavedAt = savedAt.UTC()
	return nil
}

// GetAutosave implements repositories.AutosaveRepository.
func (s *SessionStore) GetAutosave(_ context.Context, sessionID string) (domain.Cart, time.Time, error) {
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return domain.Cart{}, time.Time{}, invalidError("session store: session id required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record := s.session(id, false)
	if record == nil || record.autosave == nil {
		return domain.Cart{}, time.Time{}, notFoundError("session store: no autosaved cart")
	}
	return cloneCart(*record.autosave), record.autosavedAt, nil
}

func cloneCart(cart domain.Cart) domain.Cart {
	cart.Items = cloneItems(cart.Items)
	cart.Metadata = cloneAnyMap(cart.Metadata)
	return cart
}

func cloneItems(items []domain.CartItem) []domain.CartItem {
	if len(items) == 0 {
		return []domain.CartItem{}
	}
	dup := make([]domain.CartItem, len(items))
	copy(dup, items)
	for i := range dup {
		dup[i].Metadata = cloneAnyMap(dup[i].Metadata)
		if dup[i].UpdatedAt != nil {
			ts := *dup[i].UpdatedAt
			dup[i].UpdatedAt = &ts
		}
	}
	return dup
}

func cloneAnyMap(values map[string]any) map[string]any {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}
