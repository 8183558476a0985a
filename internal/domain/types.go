package domain

import (
	"time"
)

// Tier is the cleaning-intensity level selected per room.
type Tier string

const (
	// TierBasic is the light-clean tier (×0.8 price multiplier).
	TierBasic Tier = "basic"
	// TierStandard is the default tier (×1.0 price multiplier).
	TierStandard Tier = "standard"
	// TierPremium is the deep-clean tier (×1.2 price multiplier).
	TierPremium Tier = "premium"
)

// Frequency is the recurrence cadence of a booking, driving a discount percentage.
type Frequency string

const (
	// FrequencyOneTime is a single visit with no recurrence discount.
	FrequencyOneTime Frequency = "one-time"
	// FrequencyWeekly recurs every week (20% discount).
	FrequencyWeekly Frequency = "weekly"
	// FrequencyBiWeekly recurs every two weeks (15% discount).
	FrequencyBiWeekly Frequency = "bi-weekly"
	// FrequencyMonthly recurs every month (10% discount).
	FrequencyMonthly Frequency = "monthly"
)

// RoomType identifies an entry in the room catalog.
type RoomType string

// RoomSelection captures one room configuration from the price calculator.
type RoomSelection struct {
	RoomType   RoomType
	Count      int
	Tier       Tier
	AddOns     []string
	Reductions []string
}

// AddOnSelection captures a standalone add-on line from the calculator.
type AddOnSelection struct {
	AddOnID  string
	Quantity int
}

// CatalogRoom describes a bookable room type and its base rate in cents.
type CatalogRoom struct {
	Type        RoomType
	Name        string
	BasePrice   int64
	Description string
	AddOns      []CatalogAdjustment
	Reductions  []CatalogAdjustment
}

// CatalogAdjustment is a per-room add-on or reduction delta in cents.
type CatalogAdjustment struct {
	ID          string
	Name        string
	Delta       int64
	Description string
}

// CatalogAddOn describes a standalone extra service with a unit price in cents.
type CatalogAddOn struct {
	ID          string
	Name        string
	UnitPrice   int64
	Description string
}

// CartItem is a single priced line in a session cart. The ID is derived from
// the service type, address, and frequency so identical configurations
// collapse into one line.
type CartItem struct {
	ID          string
	Name        string
	UnitPrice   int64
	Quantity    int
	ServiceType string
	Address     string
	Frequency   Frequency
	Image       string
	Recurring   bool
	Metadata    map[string]any
	AddedAt     time.Time
	UpdatedAt   *time.Time
}

// Cart is the session-scoped collection of line items.
type Cart struct {
	SessionID string
	Items     []CartItem
	Metadata  map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SavedCart is a named snapshot of a cart, restorable into the active session.
type SavedCart struct {
	ID      string
	Name    string
	Items   []CartItem
	SavedAt time.Time
}

// PendingOpKind enumerates queued offline cart operations.
type PendingOpKind string

const (
	// PendingOpAdd queues an item addition.
	PendingOpAdd PendingOpKind = "add"
	// PendingOpRemove queues an item removal.
	PendingOpRemove PendingOpKind = "remove"
	// PendingOpUpdateQuantity queues a quantity change.
	PendingOpUpdateQuantity PendingOpKind = "update_quantity"
	// PendingOpClear queues a full cart clear.
	PendingOpClear PendingOpKind = "clear"
)

// PendingOperation is a cart mutation captured while the client was offline.
// Operations replay in insertion order with no conflict resolution.
type PendingOperation struct {
	Kind     PendingOpKind
	Item     *CartItem
	ItemID   string
	Quantity int
	QueuedAt time.Time
}

// Lead is a captured contact request from the calculator page.
type Lead struct {
	Name    string
	Email   string
	Phone   string
	Message string
	Source  string
}

// OrderEvent is published when a checkout completes.
type OrderEvent struct {
	Type        string    `json:"type"`
	SessionID   string    `json:"sessionId"`
	CheckoutID  string    `json:"checkoutId"`
	AmountTotal int64     `json:"amountTotal"`
	Currency    string    `json:"currency"`
	OccurredAt  time.Time `json:"occurredAt"`
}
