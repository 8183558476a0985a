package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	domain "github.com/tidynest/api/internal/domain"
	"github.com/tidynest/api/internal/platform/httpx"
	"github.com/tidynest/api/internal/services"
)

const maxQuoteBodySize = 32 * 1024

// QuoteHandlers exposes the price calculator endpoint.
type QuoteHandlers struct {
	engine services.QuoteEngine
}

// NewQuoteHandlers constructs handlers over the pricing engine.
func NewQuoteHandlers(engine services.QuoteEngine) *QuoteHandlers {
	return &QuoteHandlers{engine: engine}
}

// Routes wires the /quotes endpoints onto the provided router.
func (h *QuoteHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.createQuote)
}

type quoteRequest struct {
	Rooms                 []quoteRoomSelection  `json:"rooms"`
	AddOns                []quoteAddOnSelection `json:"addOns"`
	Frequency             string                `json:"frequency"`
	CleanlinessMultiplier float64               `json:"cleanlinessMultiplier"`
	CouponCodes           []string              `json:"couponCodes"`
}

type quoteRoomSelection struct {
	RoomType   string   `json:"roomType"`
	Count      int      `json:"count"`
	Tier       string   `json:"tier"`
	AddOns     []string `json:"addOns"`
	Reductions []string `json:"reductions"`
}

type quoteAddOnSelection struct {
	AddOnID  string `json:"addOnId"`
	Quantity int    `json:"quantity"`
}

type quoteResponse struct {
	Currency          string                `json:"currency"`
	Subtotal          int64                 `json:"subtotal"`
	FrequencyDiscount int64                 `json:"frequencyDiscount"`
	CouponDiscount    int64                 `json:"couponDiscount"`
	Tax               int64                 `json:"tax"`
	Total             int64                 `json:"total"`
	Rooms             []quoteRoomLine       `json:"rooms"`
	AddOns            []quoteAddOnLine      `json:"addOns"`
	Discounts         []quoteDiscountLine   `json:"discounts"`
	Metadata          map[string]any        `json:"metadata,omitempty"`
}

type quoteRoomLine struct {
	RoomType  string   `json:"roomType"`
	Display   string   `json:"display"`
	Tier      string   `json:"tier"`
	Count     int      `json:"count"`
	UnitRate  int64    `json:"unitRate"`
	LineTotal int64    `json:"lineTotal"`
	AddOns    []string `json:"addOns,omitempty"`
	Reduced   []string `json:"reductions,omitempty"`
}

type quoteAddOnLine struct {
	AddOnID   string `json:"addOnId"`
	Display   string `json:"display"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"`
	LineTotal int64  `json:"lineTotal"`
}

type quoteDiscountLine struct {
	Type        string `json:"type"`
	Code        string `json:"code"`
	Description string `json:"description"`
	Amount      int64  `json:"amount"`
}

func (h *QuoteHandlers) createQuote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.engine == nil {
		httpx.WriteError(ctx, w, httpx.NewError("quote_service_unavailable", "quote service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req quoteRequest
	if err := decodeJSONBody(r, maxQuoteBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	cmd := services.QuoteCommand{
		Frequency:             domain.Frequency(req.Frequency),
		CleanlinessMultiplier: req.CleanlinessMultiplier,
		CouponCodes:           req.CouponCodes,
	}
	for _, room := range req.Rooms {
		cmd.Rooms = append(cmd.Rooms, domain.RoomSelection{
			RoomType:   domain.RoomType(room.RoomType),
			Count:      room.Count,
			Tier:       domain.Tier(room.Tier),
			AddOns:     room.AddOns,
			Reductions: room.Reductions,
		})
	}
	for _, addOn := range req.AddOns {
		cmd.AddOns = append(cmd.AddOns, domain.AddOnSelection{AddOnID: addOn.AddOnID, Quantity: addOn.Quantity})
	}

	result, err := h.engine.Calculate(ctx, cmd)
	if err != nil {
		if errors.Is(err, services.ErrQuoteInvalidInput) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("quote_failed", "failed to price the selection", http.StatusInternalServerError))
		return
	}

	writeJSONResponse(w, http.StatusOK, buildQuoteResponse(result.Breakdown))
}

func buildQuoteResponse(breakdown domain.QuoteBreakdown) quoteResponse {
	resp := quoteResponse{
		Currency:          breakdown.Currency,
		Subtotal:          breakdown.Subtotal,
		FrequencyDiscount: breakdown.FrequencyDiscount,
		CouponDiscount:    breakdown.CouponDiscount,
		Tax:               breakdown.Tax,
		Total:             breakdown.Total,
		Rooms:             make([]quoteRoomLine, 0, len(breakdown.Rooms)),
		AddOns:            make([]quoteAddOnLine, 0, len(breakdown.AddOns)),
		Discounts:         make([]quoteDiscountLine, 0, len(breakdown.Discounts)),
		Metadata:          breakdown.Metadata,
	}
	for _, room := range breakdown.Rooms {
		resp.Rooms = append(resp.Rooms, quoteRoomLine{
			RoomType:  string(room.RoomType),
			Display:   room.Display,
			Tier:      string(room.Tier),
			Count:     room.Count,
			UnitRate:  room.UnitRate,
			LineTotal: room.LineTotal,
			AddOns:    room.AddOns,
			Reduced:   room.Reductions,
		})
	}
	for _, addOn := range breakdown.AddOns {
		resp.AddOns = append(resp.AddOns, quoteAddOnLine{
			AddOnID:   addOn.AddOnID,
			Display:   addOn.Display,
			Quantity:  addOn.Quantity,
			UnitPrice: addOn.UnitPrice,
			LineTotal: addOn.LineTotal,
		})
	}
	for _, discount := range breakdown.Discounts {
		resp.Discounts = append(resp.Discounts, quoteDiscountLine{
			Type:        discount.Type,
			Code:        discount.Code,
			Description: discount.Description,
			Amount:      discount.Amount,
		})
	}
	return resp
}
