package services

import (
	"context"
	"time"

	domain "github.com/tidynest/api/internal/domain"
)

// QuoteCommand is the full calculator input for one pricing run.
type QuoteCommand struct {
	Rooms                 []domain.RoomSelection
	AddOns                []domain.AddOnSelection
	Frequency             domain.Frequency
	CleanlinessMultiplier float64
	CouponCodes           []string
}

// QuoteResult wraps the priced breakdown returned by the engine.
type QuoteResult struct {
	Breakdown domain.QuoteBreakdown
}

// QuoteEngine prices a calculator configuration. Implementations must be pure
// and deterministic for a given command.
type QuoteEngine interface {
	Calculate(ctx context.Context, cmd QuoteCommand) (QuoteResult, error)
}

// CatalogService exposes the static room/add-on catalog and rate tables.
type CatalogService interface {
	Rooms() []domain.CatalogRoom
	AddOns() []domain.CatalogAddOn
	Room(roomType domain.RoomType) (domain.CatalogRoom, bool)
	AddOn(id string) (domain.CatalogAddOn, bool)
	TierMultiplier(tier domain.Tier) float64
	FrequencyDiscount(freq domain.Frequency) (percent float64, description string)
	CouponPercent(code string) (float64, bool)
	TaxRate() float64
}

// AddItemCommand describes a line to upsert into a session cart.
type AddItemCommand struct {
	SessionID   string
	Name        string
	UnitPrice   int64
	Quantity    int
	ServiceType string
	Address     string
	Frequency   domain.Frequency
	Image       string
	Recurring   bool
	Metadata    map[string]any
}

// UpdateQuantityCommand changes the quantity of an existing line.
type UpdateQuantityCommand struct {
	SessionID string
	ItemID    string
	Quantity  int
}

// RemoveItemCommand removes a line from the cart.
type RemoveItemCommand struct {
	SessionID string
	ItemID    string
}

// SetMetadataCommand merges contact and context fields onto the cart itself,
// where checkout picks them up.
type SetMetadataCommand struct {
	SessionID string
	Metadata  map[string]any
}

// SaveCartCommand snapshots the active cart under a display name.
type SaveCartCommand struct {
	SessionID string
	Name      string
}

// LoadCartCommand restores a saved snapshot into the active cart.
type LoadCartCommand struct {
	SessionID   string
	SavedCartID string
}

// EnqueuePendingCommand queues a cart operation captured while offline.
type EnqueuePendingCommand struct {
	SessionID string
	Operation domain.PendingOperation
}

// CartTotals is derived by reduction over the current item list at read time.
type CartTotals struct {
	TotalItems int
	TotalPrice int64
}

// CartService owns the session cart and its auxiliary features.
type CartService interface {
	GetCart(ctx context.Context, sessionID string) (domain.Cart, error)
	AddItem(ctx context.Context, cmd AddItemCommand) (domain.Cart, error)
	UpdateQuantity(ctx context.Context, cmd UpdateQuantityCommand) (domain.Cart, error)
	RemoveItem(ctx context.Context, cmd RemoveItemCommand) (domain.Cart, error)
	ClearCart(ctx context.Context, sessionID string) (domain.Cart, error)
	SetMetadata(ctx context.Context, cmd SetMetadataCommand) (domain.Cart, error)
	Totals(ctx context.Context, sessionID string) (CartTotals, error)

	Undo(ctx context.Context, sessionID string) (domain.Cart, error)
	Redo(ctx context.Context, sessionID string) (domain.Cart, error)

	SaveCart(ctx context.Context, cmd SaveCartCommand) (domain.SavedCart, error)
	ListSavedCarts(ctx context.Context, sessionID string) ([]domain.SavedCart, error)
	LoadCart(ctx context.Context, cmd LoadCartCommand) (domain.Cart, error)

	EnqueuePending(ctx context.Context, cmd EnqueuePendingCommand) error
	FlushPending(ctx context.Context, sessionID string) (domain.Cart, error)
}

// CartHealthService produces advisory cart-health reports.
type CartHealthService interface {
	Analyze(ctx context.Context, sessionID string) (domain.CartHealthReport, error)
}

// CreateCheckoutSessionCommand initiates a hosted checkout for a session cart.
type CreateCheckoutSessionCommand struct {
	SessionID     string
	SuccessURL    string
	CancelURL     string
	CustomerEmail string
	Metadata      map[string]string
}

// CheckoutSession is the provider session handed back to the client for redirect.
type CheckoutSession struct {
	SessionID   string
	Provider    string
	RedirectURL string
	ExpiresAt   time.Time
}

// CompletedCheckout carries the webhook payload fields the service acts on.
type CompletedCheckout struct {
	ClientSessionID string
	CheckoutID      string
	AmountTotal     int64
	Currency        string
}

// CheckoutService assembles provider sessions and reacts to completion events.
type CheckoutService interface {
	CreateCheckoutSession(ctx context.Context, cmd CreateCheckoutSessionCommand) (CheckoutSession, error)
	CompleteCheckout(ctx context.Context, evt CompletedCheckout) error
}

// OrderEventPublisher emits order lifecycle events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event domain.OrderEvent) (string, error)
}

// LeadService forwards captured leads to the configured marketing webhook.
type LeadService interface {
	SubmitLead(ctx context.Context, lead domain.Lead) error
}
