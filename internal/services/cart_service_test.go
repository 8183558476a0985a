package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	domain "github.com/tidynest/api/internal/domain"
	"github.com/tidynest/api/internal/repositories/memory"
)

func newTestCartService(t *testing.T, opts ...func(*SessionCartServiceDeps)) (*SessionCartService, *memory.SessionStore) {
	t.Helper()
	store := memory.NewSessionStore()
	var counter int
	deps := SessionCartServiceDeps{
		Carts:      store,
		SavedCarts: store,
		PendingOps: store,
		Autosaves:  store,
		IDGenerator: func() string {
			counter++
			return fmt.Sprintf("saved-%03d", counter)
		},
		Clock: func() time.Time {
			return time.Date(2026, time.March, 14, 9, 0, 0, 0, time.UTC)
		},
	}
	for _, opt := range opts {
		opt(&deps)
	}
	service, err := NewSessionCartService(deps)
	if err != nil {
		t.Fatalf("NewSessionCartService: %v", err)
	}
	return service, store
}

func kitchenAdd(sessionID string, quantity int) AddItemCommand {
	return AddItemCommand{
		SessionID:   sessionID,
		Name:        "Kitchen Deep Clean",
		UnitPrice:   7000,
		Quantity:    quantity,
		ServiceType: "kitchen",
		Address:     "12 Elm St",
		Frequency:   domain.FrequencyOneTime,
	}
}

// flakyCartRepository fails UpsertCart on demand while reads pass through.
type flakyCartRepository struct {
	*memory.SessionStore
	failUpsert bool
}

func (f *flakyCartRepository) UpsertCart(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if f.failUpsert {
		return domain.Cart{}, errors.New("store offline")
	}
	return f.SessionStore.UpsertCart(ctx, cart)
}

func TestCartServiceFailedPersistLeavesNoUndoEntry(t *testing.T) {
	flaky := &flakyCartRepository{}
	service, store := newTestCartService(t, func(deps *SessionCartServiceDeps) {
		flaky.SessionStore = deps.Carts.(*memory.SessionStore)
		deps.Carts = flaky
	})
	ctx := context.Background()

	if _, err := service.AddItem(ctx, kitchenAdd("sess-1", 1)); err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	flaky.failUpsert = true
	if _, err := service.AddItem(ctx, kitchenAdd("sess-1", 1)); !errors.Is(err, ErrCartUnavailable) {
		t.Fatalf("expected ErrCartUnavailable, got %v", err)
	}
	flaky.failUpsert = false

	// Only the first, successful mutation is undoable. A second Undo has
	// nothing left to walk; the failed write must not have pushed a frame.
	cart, err := service.Undo(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if len(cart.Items) != 0 {
		t.Fatalf("expected undo back to the empty cart, got %+v", cart.Items)
	}
	if _, err := service.Undo(ctx, "sess-1"); !errors.Is(err, ErrCartHistoryEmpty) {
		t.Fatalf("expected ErrCartHistoryEmpty, got %v", err)
	}

	stored, err := store.GetCart(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	if len(stored.Items) != 0 {
		t.Fatalf("expected persisted cart emptied by undo, got %+v", stored.Items)
	}
}

func TestCartServiceSetMetadataMergesAndPersists(t *testing.T) {
	service, store := newTestCartService(t)
	ctx := context.Background()

	if _, err := service.AddItem(ctx, kitchenAdd("sess-1", 1)); err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	cart, err := service.SetMetadata(ctx, SetMetadataCommand{
		SessionID: "sess-1",
		Metadata:  map[string]any{"customerEmail": "casey@example.com", "notes": "gate code 4711"},
	})
	if err != nil {
		t.Fatalf("SetMetadata: %v", err)
	}
	if cart.Metadata["customerEmail"] != "casey@example.com" {
		t.Fatalf("unexpected metadata %+v", cart.Metadata)
	}

	// A second call merges instead of replacing.
	cart, err = service.SetMetadata(ctx, SetMetadataCommand{
		SessionID: "sess-1",
		Metadata:  map[string]any{"customerEmail": "robin@example.com"},
	})
	if err != nil {
		t.Fatalf("SetMetadata: %v", err)
	}
	if cart.Metadata["customerEmail"] != "robin@example.com" || cart.Metadata["notes"] != "gate code 4711" {
		t.Fatalf("expected merged metadata, got %+v", cart.Metadata)
	}

	stored, err := store.GetCart(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	if stored.Metadata["customerEmail"] != "robin@example.com" {
		t.Fatalf("metadata not persisted, got %+v", stored.Metadata)
	}
	if len(stored.Items) != 1 {
		t.Fatalf("item lines must be untouched, got %d", len(stored.Items))
	}

	if _, err := service.SetMetadata(ctx, SetMetadataCommand{SessionID: "sess-1"}); !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected ErrCartInvalidInput for empty metadata, got %v", err)
	}
}

func TestCartServiceAddItemUpserts(t *testing.T) {
	service, _ := newTestCartService(t)
	ctx := context.Background()

	if _, err := service.AddItem(ctx, kitchenAdd("sess-1", 1)); err != nil {
		t.Fatalf("first AddItem: %v", err)
	}
	cart, err := service.AddItem(ctx, kitchenAdd("sess-1", 2))
	if err != nil {
		t.Fatalf("second AddItem: %v", err)
	}

	if len(cart.Items) != 1 {
		t.Fatalf("expected one line after upsert, got %d", len(cart.Items))
	}
	if cart.Items[0].Quantity != 3 {
		t.Fatalf("expected quantity 3, got %d", cart.Items[0].Quantity)
	}
	if cart.Items[0].UpdatedAt == nil {
		t.Fatal("expected UpdatedAt to be set on upsert")
	}
}

func TestCartServiceDistinctConfigurationsGetDistinctLines(t *testing.T) {
	service, _ := newTestCartService(t)
	ctx := context.Background()

	if _, err := service.AddItem(ctx, kitchenAdd("sess-1", 1)); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	other := kitchenAdd("sess-1", 1)
	other.Address = "90 Oak Ave"
	cart, err := service.AddItem(ctx, other)
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if len(cart.Items) != 2 {
		t.Fatalf("expected two lines for distinct addresses, got %d", len(cart.Items))
	}
	if cart.Items[0].ID == cart.Items[1].ID {
		t.Fatal("expected distinct derived ids")
	}
}

func TestCartServiceUpdateQuantity(t *testing.T) {
	service, _ := newTestCartService(t)
	ctx := context.Background()

	cart, err := service.AddItem(ctx, kitchenAdd("sess-1", 1))
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	itemID := cart.Items[0].ID

	cart, err = service.UpdateQuantity(ctx, UpdateQuantityCommand{SessionID: "sess-1", ItemID: itemID, Quantity: 4})
	if err != nil {
		t.Fatalf("UpdateQuantity: %v", err)
	}
	if cart.Items[0].Quantity != 4 {
		t.Fatalf("expected quantity 4, got %d", cart.Items[0].Quantity)
	}

	if _, err := service.UpdateQuantity(ctx, UpdateQuantityCommand{SessionID: "sess-1", ItemID: itemID, Quantity: 0}); !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected ErrCartInvalidInput for qty 0, got %v", err)
	}
	if _, err := service.UpdateQuantity(ctx, UpdateQuantityCommand{SessionID: "sess-1", ItemID: "missing", Quantity: 2}); !errors.Is(err, ErrCartItemNotFound) {
		t.Fatalf("expected ErrCartItemNotFound, got %v", err)
	}
}

func TestCartServiceRemoveUnknownItemIsNoOp(t *testing.T) {
	service, _ := newTestCartService(t)
	ctx := context.Background()

	if _, err := service.AddItem(ctx, kitchenAdd("sess-1", 2)); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	cart, err := service.RemoveItem(ctx, RemoveItemCommand{SessionID: "sess-1", ItemID: "missing"})
	if err != nil {
		t.Fatalf("RemoveItem: %v", err)
	}
	if len(cart.Items) != 1 {
		t.Fatalf("expected cart untouched, got %d lines", len(cart.Items))
	}
}

func TestCartServiceTotalsAreDerived(t *testing.T) {
	service, _ := newTestCartService(t)
	ctx := context.Background()

	if _, err := service.AddItem(ctx, kitchenAdd("sess-1", 2)); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	other := kitchenAdd("sess-1", 1)
	other.ServiceType = "bathroom"
	other.Name = "Bathroom Clean"
	other.UnitPrice = 6000
	if _, err := service.AddItem(ctx, other); err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	totals, err := service.Totals(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Totals: %v", err)
	}
	if totals.TotalItems != 3 {
		t.Fatalf("expected 3 items, got %d", totals.TotalItems)
	}
	if totals.TotalPrice != 20000 {
		t.Fatalf("expected 20000 cents, got %d", totals.TotalPrice)
	}
}

func TestCartServiceUndoRedo(t *testing.T) {
	service, _ := newTestCartService(t)
	ctx := context.Background()

	if _, err := service.AddItem(ctx, kitchenAdd("sess-1", 1)); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	other := kitchenAdd("sess-1", 1)
	other.ServiceType = "bathroom"
	if _, err := service.AddItem(ctx, other); err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	cart, err := service.Undo(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if len(cart.Items) != 1 {
		t.Fatalf("expected one line after undo, got %d", len(cart.Items))
	}

	cart, err = service.Redo(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Redo: %v", err)
	}
	if len(cart.Items) != 2 {
		t.Fatalf("expected two lines after redo, got %d", len(cart.Items))
	}

	// Walk back to the empty initial state, then past it.
	if _, err := service.Undo(ctx, "sess-1"); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if _, err := service.Undo(ctx, "sess-1"); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if _, err := service.Undo(ctx, "sess-1"); !errors.Is(err, ErrCartHistoryEmpty) {
		t.Fatalf("expected ErrCartHistoryEmpty, got %v", err)
	}
}

func TestCartServiceMutationClearsRedo(t *testing.T) {
	service, _ := newTestCartService(t)
	ctx := context.Background()

	if _, err := service.AddItem(ctx, kitchenAdd("sess-1", 1)); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if _, err := service.Undo(ctx, "sess-1"); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if _, err := service.AddItem(ctx, kitchenAdd("sess-1", 5)); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if _, err := service.Redo(ctx, "sess-1"); !errors.Is(err, ErrCartHistoryEmpty) {
		t.Fatalf("expected redo stack cleared by new mutation, got %v", err)
	}
}

func TestCartServiceUndoDepthIsBounded(t *testing.T) {
	service, _ := newTestCartService(t, func(deps *SessionCartServiceDeps) {
		deps.HistoryDepth = 3
	})
	ctx := context.Background()

	cart, err := service.AddItem(ctx, kitchenAdd("sess-1", 1))
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	itemID := cart.Items[0].ID
	for qty := 2; qty <= 6; qty++ {
		if _, err := service.UpdateQuantity(ctx, UpdateQuantityCommand{SessionID: "sess-1", ItemID: itemID, Quantity: qty}); err != nil {
			t.Fatalf("UpdateQuantity: %v", err)
		}
	}

	var undos int
	for {
		if _, err := service.Undo(ctx, "sess-1"); err != nil {
			if !errors.Is(err, ErrCartHistoryEmpty) {
				t.Fatalf("Undo: %v", err)
			}
			break
		}
		undos++
	}
	if undos != 3 {
		t.Fatalf("expected 3 undos with depth 3, got %d", undos)
	}
}

func TestCartServiceSaveLoadRoundTrip(t *testing.T) {
	service, _ := newTestCartService(t)
	ctx := context.Background()

	if _, err := service.AddItem(ctx, kitchenAdd("sess-1", 2)); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	other := kitchenAdd("sess-1", 1)
	other.ServiceType = "bathroom"
	other.UnitPrice = 6000
	saved, err := service.AddItem(ctx, other)
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	want := saved.Items

	snapshot, err := service.SaveCart(ctx, SaveCartCommand{SessionID: "sess-1", Name: "spring clean"})
	if err != nil {
		t.Fatalf("SaveCart: %v", err)
	}
	if snapshot.ID != "saved-001" {
		t.Fatalf("unexpected snapshot id %q", snapshot.ID)
	}

	if _, err := service.ClearCart(ctx, "sess-1"); err != nil {
		t.Fatalf("ClearCart: %v", err)
	}
	cart, err := service.LoadCart(ctx, LoadCartCommand{SessionID: "sess-1", SavedCartID: snapshot.ID})
	if err != nil {
		t.Fatalf("LoadCart: %v", err)
	}

	if len(cart.Items) != len(want) {
		t.Fatalf("expected %d restored lines, got %d", len(want), len(cart.Items))
	}
	for i := range want {
		got := cart.Items[i]
		if got.ID != want[i].ID || got.UnitPrice != want[i].UnitPrice || got.Quantity != want[i].Quantity {
			t.Fatalf("restored line %d mismatch: got %+v want %+v", i, got, want[i])
		}
	}

	if _, err := service.LoadCart(ctx, LoadCartCommand{SessionID: "sess-1", SavedCartID: "missing"}); !errors.Is(err, ErrSavedCartNotFound) {
		t.Fatalf("expected ErrSavedCartNotFound, got %v", err)
	}
}

func TestCartServiceFlushPendingAppliesInOrder(t *testing.T) {
	var logged []string
	service, _ := newTestCartService(t, func(deps *SessionCartServiceDeps) {
		deps.Logger = func(_ context.Context, event string, _ map[string]any) {
			logged = append(logged, event)
		}
	})
	ctx := context.Background()

	cart, err := service.AddItem(ctx, kitchenAdd("sess-1", 1))
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	itemID := cart.Items[0].ID

	queue := []domain.PendingOperation{
		{Kind: domain.PendingOpUpdateQuantity, ItemID: itemID, Quantity: 3},
		{Kind: domain.PendingOpAdd, Item: &domain.CartItem{
			Name: "Garage Sweep", UnitPrice: 5000, Quantity: 1, ServiceType: "garage", Address: "12 Elm St", Frequency: domain.FrequencyOneTime,
		}},
		{Kind: domain.PendingOpUpdateQuantity, ItemID: "ghost", Quantity: 2},
		{Kind: domain.PendingOpRemove, ItemID: itemID},
	}
	for _, op := range queue {
		if err := service.EnqueuePending(ctx, EnqueuePendingCommand{SessionID: "sess-1", Operation: op}); err != nil {
			t.Fatalf("EnqueuePending: %v", err)
		}
	}

	flushed, err := service.FlushPending(ctx, "sess-1")
	if err != nil {
		t.Fatalf("FlushPending: %v", err)
	}
	if len(flushed.Items) != 1 || flushed.Items[0].ServiceType != "garage" {
		t.Fatalf("unexpected cart after flush: %+v", flushed.Items)
	}

	var skips int
	for _, event := range logged {
		if event == "cart.pending_op_skipped" {
			skips++
		}
	}
	if skips != 1 {
		t.Fatalf("expected one skipped op, got %d (%v)", skips, logged)
	}

	// The queue is cleared after a flush; a second flush is a no-op.
	again, err := service.FlushPending(ctx, "sess-1")
	if err != nil {
		t.Fatalf("second FlushPending: %v", err)
	}
	if len(again.Items) != 1 {
		t.Fatalf("expected cart unchanged on empty flush, got %+v", again.Items)
	}
}

func TestCartServiceAutosaveDebounce(t *testing.T) {
	service, store := newTestCartService(t, func(deps *SessionCartServiceDeps) {
		deps.AutosaveDelay = 10 * time.Millisecond
	})
	ctx := context.Background()

	if _, err := service.AddItem(ctx, kitchenAdd("sess-1", 1)); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if _, err := service.AddItem(ctx, kitchenAdd("sess-1", 2)); err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for {
		snapshot, _, err := store.GetAutosave(ctx, "sess-1")
		if err == nil {
			if len(snapshot.Items) != 1 || snapshot.Items[0].Quantity != 3 {
				t.Fatalf("autosave did not capture latest state: %+v", snapshot.Items)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("autosave never fired")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
