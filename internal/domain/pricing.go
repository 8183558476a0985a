package domain

// QuoteBreakdown captures the aggregated monetary results of pricing a
// calculator configuration. All amounts are whole cents, rounded only when
// the breakdown is assembled.
type QuoteBreakdown struct {
	Currency          string
	Subtotal          int64
	FrequencyDiscount int64
	CouponDiscount    int64
	Tax               int64
	Total             int64
	Rooms             []RoomLineBreakdown
	AddOns            []AddOnLineBreakdown
	Discounts         []DiscountBreakdown
	Metadata          map[string]any
}

// RoomLineBreakdown stores the per-room pricing output after running the engine.
type RoomLineBreakdown struct {
	RoomType   RoomType
	Display    string
	Tier       Tier
	Count      int
	UnitRate   int64
	LineTotal  int64
	AddOns     []string
	Reductions []string
}

// AddOnLineBreakdown stores a standalone add-on line total.
type AddOnLineBreakdown struct {
	AddOnID   string
	Display   string
	Quantity  int
	UnitPrice int64
	LineTotal int64
}

// DiscountBreakdown lists one discount adjustment applied to the quote.
type DiscountBreakdown struct {
	Type        string
	Code        string
	Description string
	Amount      int64
}
