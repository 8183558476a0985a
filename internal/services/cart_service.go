package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	domain "github.com/tidynest/api/internal/domain"
	"github.com/tidynest/api/internal/repositories"
)

var (
	// ErrCartInvalidInput signals malformed cart commands.
	ErrCartInvalidInput = errors.New("cart: invalid input")
	// ErrCartItemNotFound signals a quantity update against a line that is not in the cart.
	ErrCartItemNotFound = errors.New("cart: item not found")
	// ErrCartHistoryEmpty signals an undo or redo with no snapshots left to walk.
	ErrCartHistoryEmpty = errors.New("cart: history empty")
	// ErrSavedCartNotFound signals a load against an unknown snapshot id.
	ErrSavedCartNotFound = errors.New("cart: saved cart not found")
	// ErrCartUnavailable signals a session-store failure.
	ErrCartUnavailable = errors.New("cart: store unavailable")
)

const (
	defaultHistoryDepth  = 50
	defaultAutosaveDelay = 500 * time.Millisecond
)

// SessionCartService implements CartService on top of the session store.
// Mutations snapshot the prior item list onto a bounded undo stack and
// schedule a debounced autosave write.
type SessionCartService struct {
	carts       repositories.CartRepository
	savedCarts  repositories.SavedCartRepository
	pendingOps  repositories.PendingOpRepository
	autosaves   repositories.AutosaveRepository
	idGenerator func() string
	clock       func() time.Time
	logger      func(context.Context, string, map[string]any)

	historyDepth  int
	autosaveDelay time.Duration

	historyMu sync.Mutex
	history   map[string]*cartHistory

	autosaveMu sync.Mutex
	timers     map[string]*time.Timer
}

type cartHistory struct {
	undo [][]domain.CartItem
	redo [][]domain.CartItem
}

// SessionCartServiceDeps carries the collaborators for NewSessionCartService.
type SessionCartServiceDeps struct {
	Carts       repositories.CartRepository
	SavedCarts  repositories.SavedCartRepository
	PendingOps  repositories.PendingOpRepository
	Autosaves   repositories.AutosaveRepository
	IDGenerator func() string
	Clock       func() time.Time
	Logger      func(context.Context, string, map[string]any)

	// HistoryDepth bounds the undo stack; zero selects the default of 50.
	HistoryDepth int
	// AutosaveDelay is the debounce window; zero selects the default of 500ms.
	AutosaveDelay time.Duration
}

// NewSessionCartService validates dependencies and constructs the service.
func NewSessionCartService(deps SessionCartServiceDeps) (*SessionCartService, error) {
	if deps.Carts == nil {
		return nil, errors.New("cart service: cart repository is required")
	}
	if deps.SavedCarts == nil {
		return nil, errors.New("cart service: saved cart repository is required")
	}
	if deps.PendingOps == nil {
		return nil, errors.New("cart service: pending op repository is required")
	}
	if deps.Autosaves == nil {
		return nil, errors.New("cart service: autosave repository is required")
	}
	if deps.IDGenerator == nil {
		return nil, errors.New("cart service: id generator is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	depth := deps.HistoryDepth
	if depth <= 0 {
		depth = defaultHistoryDepth
	}
	delay := deps.AutosaveDelay
	if delay <= 0 {
		delay = defaultAutosaveDelay
	}
	return &SessionCartService{
		carts:         deps.Carts,
		savedCarts:    deps.SavedCarts,
		pendingOps:    deps.PendingOps,
		autosaves:     deps.Autosaves,
		idGenerator:   deps.IDGenerator,
		clock:         func() time.Time { return clock().UTC() },
		logger:        logger,
		historyDepth:  depth,
		autosaveDelay: delay,
		history:       make(map[string]*cartHistory),
		timers:        make(map[string]*time.Timer),
	}, nil
}

// GetCart returns the active cart, or an empty one when the session has none yet.
func (s *SessionCartService) GetCart(ctx context.Context, sessionID string) (domain.Cart, error) {
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return domain.Cart{}, fmt.Errorf("%w: session id is required", ErrCartInvalidInput)
	}
	cart, err := s.carts.GetCart(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return emptyCart(id, s.clock()), nil
		}
		return domain.Cart{}, translateCartRepoError(err)
	}
	return cart, nil
}

// AddItem upserts a line. A line with the same derived id has its quantity
// increased instead of a second line being appended.
func (s *SessionCartService) AddItem(ctx context.Context, cmd AddItemCommand) (domain.Cart, error) {
	if err := validateAddItem(cmd); err != nil {
		return domain.Cart{}, err
	}
	itemID := deriveCartItemID(cmd.ServiceType, cmd.Address, cmd.Frequency)
	now := s.clock()

	return s.mutate(ctx, cmd.SessionID, func(items []domain.CartItem) ([]domain.CartItem, error) {
		for i := range items {
			if items[i].ID == itemID {
				items[i].Quantity += cmd.Quantity
				items[i].UnitPrice = cmd.UnitPrice
				items[i].Name = cmd.Name
				items[i].Metadata = cloneAnyMap(cmd.Metadata)
				updated := now
				items[i].UpdatedAt = &updated
				return items, nil
			}
		}
		return append(items, domain.CartItem{
			ID:          itemID,
			Name:        cmd.Name,
			UnitPrice:   cmd.UnitPrice,
			Quantity:    cmd.Quantity,
			ServiceType: strings.TrimSpace(cmd.ServiceType),
			Address:     strings.TrimSpace(cmd.Address),
			Frequency:   cmd.Frequency,
			Image:       strings.TrimSpace(cmd.Image),
			Recurring:   cmd.Recurring,
			Metadata:    cloneAnyMap(cmd.Metadata),
			AddedAt:     now,
		}), nil
	})
}

// UpdateQuantity sets the quantity of an existing line. Quantities below one
// are rejected rather than floored.
func (s *SessionCartService) UpdateQuantity(ctx context.Context, cmd UpdateQuantityCommand) (domain.Cart, error) {
	if strings.TrimSpace(cmd.ItemID) == "" {
		return domain.Cart{}, fmt.Errorf("%w: item id is required", ErrCartInvalidInput)
	}
	if cmd.Quantity < 1 {
		return domain.Cart{}, fmt.Errorf("%w: quantity must be at least 1", ErrCartInvalidInput)
	}
	now := s.clock()

	return s.mutate(ctx, cmd.SessionID, func(items []domain.CartItem) ([]domain.CartItem, error) {
		for i := range items {
			if items[i].ID == cmd.ItemID {
				items[i].Quantity = cmd.Quantity
				updated := now
				items[i].UpdatedAt = &updated
				return items, nil
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrCartItemNotFound, cmd.ItemID)
	})
}

// RemoveItem drops a line. Removing an unknown id is a no-op.
func (s *SessionCartService) RemoveItem(ctx context.Context, cmd RemoveItemCommand) (domain.Cart, error) {
	if strings.TrimSpace(cmd.ItemID) == "" {
		return domain.Cart{}, fmt.Errorf("%w: item id is required", ErrCartInvalidInput)
	}
	return s.mutate(ctx, cmd.SessionID, func(items []domain.CartItem) ([]domain.CartItem, error) {
		for i := range items {
			if items[i].ID == cmd.ItemID {
				return append(items[:i], items[i+1:]...), nil
			}
		}
		return items, nil
	})
}

// ClearCart removes every line from the session cart.
func (s *SessionCartService) ClearCart(ctx context.Context, sessionID string) (domain.Cart, error) {
	return s.mutate(ctx, sessionID, func([]domain.CartItem) ([]domain.CartItem, error) {
		return nil, nil
	})
}

// SetMetadata merges the supplied keys onto the cart's metadata. Item lines
// are untouched, so the change is not undoable; checkout reads contact fields
// such as customerEmail from here.
func (s *SessionCartService) SetMetadata(ctx context.Context, cmd SetMetadataCommand) (domain.Cart, error) {
	id := strings.TrimSpace(cmd.SessionID)
	if id == "" {
		return domain.Cart{}, fmt.Errorf("%w: session id is required", ErrCartInvalidInput)
	}
	if len(cmd.Metadata) == 0 {
		return domain.Cart{}, fmt.Errorf("%w: metadata is required", ErrCartInvalidInput)
	}

	cart, err := s.GetCart(ctx, id)
	if err != nil {
		return domain.Cart{}, err
	}
	merged := cloneAnyMap(cart.Metadata)
	if merged == nil {
		merged = make(map[string]any, len(cmd.Metadata))
	}
	for k, v := range cmd.Metadata {
		merged[k] = v
	}

	cart.SessionID = id
	cart.Metadata = merged
	cart.UpdatedAt = s.clock()
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = cart.UpdatedAt
	}
	stored, err := s.carts.UpsertCart(ctx, cart)
	if err != nil {
		return domain.Cart{}, translateCartRepoError(err)
	}
	s.scheduleAutosave(id, stored)
	return stored, nil
}

// Totals derives item and price totals by reduction over the current list.
func (s *SessionCartService) Totals(ctx context.Context, sessionID string) (CartTotals, error) {
	cart, err := s.GetCart(ctx, sessionID)
	if err != nil {
		return CartTotals{}, err
	}
	return reduceTotals(cart.Items), nil
}

// Undo restores the cart to the state before the most recent mutation.
func (s *SessionCartService) Undo(ctx context.Context, sessionID string) (domain.Cart, error) {
	return s.walkHistory(ctx, sessionID, true)
}

// Redo re-applies the most recently undone mutation.
func (s *SessionCartService) Redo(ctx context.Context, sessionID string) (domain.Cart, error) {
	return s.walkHistory(ctx, sessionID, false)
}

func (s *SessionCartService) walkHistory(ctx context.Context, sessionID string, undo bool) (domain.Cart, error) {
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return domain.Cart{}, fmt.Errorf("%w: session id is required", ErrCartInvalidInput)
	}
	cart, err := s.GetCart(ctx, id)
	if err != nil {
		return domain.Cart{}, err
	}

	s.historyMu.Lock()
	record := s.history[id]
	if record == nil {
		record = &cartHistory{}
		s.history[id] = record
	}
	var restored []domain.CartItem
	if undo {
		if len(record.undo) == 0 {
			s.historyMu.Unlock()
			return domain.Cart{}, ErrCartHistoryEmpty
		}
		restored = record.undo[len(record.undo)-1]
		record.undo = record.undo[:len(record.undo)-1]
		record.redo = append(record.redo, cloneItems(cart.Items))
	} else {
		if len(record.redo) == 0 {
			s.historyMu.Unlock()
			return domain.Cart{}, ErrCartHistoryEmpty
		}
		restored = record.redo[len(record.redo)-1]
		record.redo = record.redo[:len(record.redo)-1]
		record.undo = append(record.undo, cloneItems(cart.Items))
	}
	s.historyMu.Unlock()

	cart.SessionID = id
	cart.Items = cloneItems(restored)
	cart.UpdatedAt = s.clock()
	stored, err := s.carts.UpsertCart(ctx, cart)
	if err != nil {
		return domain.Cart{}, translateCartRepoError(err)
	}
	s.scheduleAutosave(id, stored)
	return stored, nil
}

// SaveCart snapshots the active cart under a generated id.
func (s *SessionCartService) SaveCart(ctx context.Context, cmd SaveCartCommand) (domain.SavedCart, error) {
	id := strings.TrimSpace(cmd.SessionID)
	if id == "" {
		return domain.SavedCart{}, fmt.Errorf("%w: session id is required", ErrCartInvalidInput)
	}
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return domain.SavedCart{}, fmt.Errorf("%w: name is required", ErrCartInvalidInput)
	}
	cart, err := s.GetCart(ctx, id)
	if err != nil {
		return domain.SavedCart{}, err
	}
	snapshot := domain.SavedCart{
		ID:      s.idGenerator(),
		Name:    name,
		Items:   cloneItems(cart.Items),
		SavedAt: s.clock(),
	}
	stored, err := s.savedCarts.SaveSnapshot(ctx, id, snapshot)
	if err != nil {
		return domain.SavedCart{}, translateCartRepoError(err)
	}
	s.logger(ctx, "cart.snapshot_saved", map[string]any{
		"sessionId":  id,
		"snapshotId": stored.ID,
		"items":      len(stored.Items),
	})
	return stored, nil
}

// ListSavedCarts returns the session's snapshots, newest first.
func (s *SessionCartService) ListSavedCarts(ctx context.Context, sessionID string) ([]domain.SavedCart, error) {
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return nil, fmt.Errorf("%w: session id is required", ErrCartInvalidInput)
	}
	snapshots, err := s.savedCarts.ListSnapshots(ctx, id)
	if err != nil {
		return nil, translateCartRepoError(err)
	}
	return snapshots, nil
}

// LoadCart clears the active cart then restores the snapshot's item list.
func (s *SessionCartService) LoadCart(ctx context.Context, cmd LoadCartCommand) (domain.Cart, error) {
	id := strings.TrimSpace(cmd.SessionID)
	if id == "" {
		return domain.Cart{}, fmt.Errorf("%w: session id is required", ErrCartInvalidInput)
	}
	if strings.TrimSpace(cmd.SavedCartID) == "" {
		return domain.Cart{}, fmt.Errorf("%w: saved cart id is required", ErrCartInvalidInput)
	}
	snapshot, err := s.savedCarts.GetSnapshot(ctx, id, cmd.SavedCartID)
	if err != nil {
		if isNotFound(err) {
			return domain.Cart{}, fmt.Errorf("%w: %s", ErrSavedCartNotFound, cmd.SavedCartID)
		}
		return domain.Cart{}, translateCartRepoError(err)
	}
	return s.mutate(ctx, id, func([]domain.CartItem) ([]domain.CartItem, error) {
		return cloneItems(snapshot.Items), nil
	})
}

// EnqueuePending appends an offline operation to the session's replay queue.
func (s *SessionCartService) EnqueuePending(ctx context.Context, cmd EnqueuePendingCommand) error {
	id := strings.TrimSpace(cmd.SessionID)
	if id == "" {
		return fmt.Errorf("%w: session id is required", ErrCartInvalidInput)
	}
	op := cmd.Operation
	switch op.Kind {
	case domain.PendingOpAdd:
		if op.Item == nil {
			return fmt.Errorf("%w: add operation requires an item", ErrCartInvalidInput)
		}
	case domain.PendingOpRemove:
		if strings.TrimSpace(op.ItemID) == "" {
			return fmt.Errorf("%w: remove operation requires an item id", ErrCartInvalidInput)
		}
	case domain.PendingOpUpdateQuantity:
		if strings.TrimSpace(op.ItemID) == "" || op.Quantity < 1 {
			return fmt.Errorf("%w: update operation requires an item id and quantity", ErrCartInvalidInput)
		}
	case domain.PendingOpClear:
	default:
		return fmt.Errorf("%w: unknown operation kind %q", ErrCartInvalidInput, op.Kind)
	}
	if op.QueuedAt.IsZero() {
		op.QueuedAt = s.clock()
	}
	if err := s.pendingOps.Append(ctx, id, op); err != nil {
		return translateCartRepoError(err)
	}
	return nil
}

// FlushPending replays the queued operations in insertion order against the
// cart, then clears the queue. Operations that fail to apply are skipped and
// logged; the rest of the queue still runs.
func (s *SessionCartService) FlushPending(ctx context.Context, sessionID string) (domain.Cart, error) {
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return domain.Cart{}, fmt.Errorf("%w: session id is required", ErrCartInvalidInput)
	}
	ops, err := s.pendingOps.List(ctx, id)
	if err != nil {
		return domain.Cart{}, translateCartRepoError(err)
	}
	if len(ops) == 0 {
		return s.GetCart(ctx, id)
	}

	now := s.clock()
	cart, err := s.mutate(ctx, id, func(items []domain.CartItem) ([]domain.CartItem, error) {
		for i, op := range ops {
			next, applyErr := applyPendingOp(items, op, now)
			if applyErr != nil {
				s.logger(ctx, "cart.pending_op_skipped", map[string]any{
					"sessionId": id,
					"index":     i,
					"kind":      string(op.Kind),
					"error":     applyErr.Error(),
				})
				continue
			}
			items = next
		}
		return items, nil
	})
	if err != nil {
		return domain.Cart{}, err
	}
	if err := s.pendingOps.Clear(ctx, id); err != nil {
		return domain.Cart{}, translateCartRepoError(err)
	}
	return cart, nil
}

func applyPendingOp(items []domain.CartItem, op domain.PendingOperation, now time.Time) ([]domain.CartItem, error) {
	switch op.Kind {
	case domain.PendingOpAdd:
		if op.Item == nil {
			return nil, errors.New("add operation missing item")
		}
		added := *op.Item
		if added.ID == "" {
			added.ID = deriveCartItemID(added.ServiceType, added.Address, added.Frequency)
		}
		if added.Quantity < 1 {
			return nil, errors.New("add operation quantity below 1")
		}
		for i := range items {
			if items[i].ID == added.ID {
				items[i].Quantity += added.Quantity
				updated := now
				items[i].UpdatedAt = &updated
				return items, nil
			}
		}
		if added.AddedAt.IsZero() {
			added.AddedAt = now
		}
		return append(items, added), nil
	case domain.PendingOpRemove:
		for i := range items {
			if items[i].ID == op.ItemID {
				return append(items[:i], items[i+1:]...), nil
			}
		}
		return items, nil
	case domain.PendingOpUpdateQuantity:
		if op.Quantity < 1 {
			return nil, errors.New("update operation quantity below 1")
		}
		for i := range items {
			if items[i].ID == op.ItemID {
				items[i].Quantity = op.Quantity
				updated := now
				items[i].UpdatedAt = &updated
				return items, nil
			}
		}
		return nil, fmt.Errorf("update operation: item %s not in cart", op.ItemID)
	case domain.PendingOpClear:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown operation kind %q", op.Kind)
	}
}

// mutate loads the current cart, applies fn to its items, persists, pushes
// the prior state onto the undo stack, and schedules an autosave.
func (s *SessionCartService) mutate(ctx context.Context, sessionID string, fn func([]domain.CartItem) ([]domain.CartItem, error)) (domain.Cart, error) {
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return domain.Cart{}, fmt.Errorf("%w: session id is required", ErrCartInvalidInput)
	}
	cart, err := s.GetCart(ctx, id)
	if err != nil {
		return domain.Cart{}, err
	}
	prior := cloneItems(cart.Items)

	next, err := fn(cloneItems(cart.Items))
	if err != nil {
		return domain.Cart{}, err
	}

	cart.SessionID = id
	cart.Items = next
	cart.UpdatedAt = s.clock()
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = cart.UpdatedAt
	}
	stored, err := s.carts.UpsertCart(ctx, cart)
	if err != nil {
		return domain.Cart{}, translateCartRepoError(err)
	}
	// The snapshot lands on the undo stack only once the write succeeded;
	// a failed persist must not leave a state to "restore".
	s.pushUndo(id, prior)
	s.scheduleAutosave(id, stored)
	return stored, nil
}

// pushUndo records the prior item list and clears the redo stack; a fresh
// mutation invalidates any redo chain.
func (s *SessionCartService) pushUndo(sessionID string, prior []domain.CartItem) {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	record := s.history[sessionID]
	if record == nil {
		record = &cartHistory{}
		s.history[sessionID] = record
	}
	record.undo = append(record.undo, prior)
	if len(record.undo) > s.historyDepth {
		record.undo = record.undo[len(record.undo)-s.historyDepth:]
	}
	record.redo = nil
}

// scheduleAutosave debounces a snapshot write; a new mutation inside the
// window resets the timer so only the latest state lands in the slot.
func (s *SessionCartService) scheduleAutosave(sessionID string, cart domain.Cart) {
	snapshot := cart
	snapshot.Items = cloneItems(cart.Items)

	s.autosaveMu.Lock()
	defer s.autosaveMu.Unlock()

	if timer, ok := s.timers[sessionID]; ok {
		timer.Stop()
	}
	s.timers[sessionID] = time.AfterFunc(s.autosaveDelay, func() {
		ctx := context.Background()
		if err := s.autosaves.PutAutosave(ctx, sessionID, snapshot, s.clock()); err != nil {
			s.logger(ctx, "cart.autosave_failed", map[string]any{
				"sessionId": sessionID,
				"error":     err.Error(),
			})
		}
		s.autosaveMu.Lock()
		delete(s.timers, sessionID)
		s.autosaveMu.Unlock()
	})
}

func validateAddItem(cmd AddItemCommand) error {
	if strings.TrimSpace(cmd.SessionID) == "" {
		return fmt.Errorf("%w: session id is required", ErrCartInvalidInput)
	}
	if strings.TrimSpace(cmd.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrCartInvalidInput)
	}
	if cmd.UnitPrice < 0 {
		return fmt.Errorf("%w: unit price must be non-negative", ErrCartInvalidInput)
	}
	if cmd.Quantity < 1 {
		return fmt.Errorf("%w: quantity must be at least 1", ErrCartInvalidInput)
	}
	if strings.TrimSpace(cmd.ServiceType) == "" {
		return fmt.Errorf("%w: service type is required", ErrCartInvalidInput)
	}
	return nil
}

// deriveCartItemID hashes the service configuration so semantically identical
// selections collapse into one line.
func deriveCartItemID(serviceType, address string, frequency domain.Frequency) string {
	key := strings.ToLower(strings.TrimSpace(serviceType)) + "|" +
		strings.ToLower(strings.TrimSpace(address)) + "|" +
		string(normaliseFrequency(frequency))
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:12]
}

func reduceTotals(items []domain.CartItem) CartTotals {
	totals := CartTotals{}
	for _, item := range items {
		totals.TotalItems += item.Quantity
		totals.TotalPrice += item.UnitPrice * int64(item.Quantity)
	}
	return totals
}

func emptyCart(sessionID string, now time.Time) domain.Cart {
	return domain.Cart{SessionID: sessionID, CreatedAt: now, UpdatedAt: now}
}

func cloneItems(items []domain.CartItem) []domain.CartItem {
	if len(items) == 0 {
		return nil
	}
	out := make([]domain.CartItem, len(items))
	copy(out, items)
	for i := range out {
		out[i].Metadata = cloneAnyMap(out[i].Metadata)
		if out[i].UpdatedAt != nil {
			updated := *out[i].UpdatedAt
			out[i].UpdatedAt = &updated
		}
	}
	return out
}

func cloneAnyMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsNotFound()
	}
	return false
}

func translateCartRepoError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %s", ErrSavedCartNotFound, repoErr.Error())
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %s", ErrCartInvalidInput, repoErr.Error())
		default:
			return fmt.Errorf("%w: %s", ErrCartUnavailable, repoErr.Error())
		}
	}
	return fmt.Errorf("%w: %v", ErrCartUnavailable, err)
}
