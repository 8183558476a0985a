package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	domain "github.com/tidynest/api/internal/domain"
	"github.com/tidynest/api/internal/platform/httpx"
	"github.com/tidynest/api/internal/services"
)

// CatalogHandlers exposes the read-only room and add-on catalog.
type CatalogHandlers struct {
	catalog services.CatalogService
}

// NewCatalogHandlers constructs handlers over the catalog service.
func NewCatalogHandlers(catalog services.CatalogService) *CatalogHandlers {
	return &CatalogHandlers{catalog: catalog}
}

// Routes wires the /catalog endpoints onto the provided router.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.getCatalog)
	r.Get("/rooms", h.listRooms)
	r.Get("/add-ons", h.listAddOns)
}

type catalogRoomPayload struct {
	Type        string                     `json:"type"`
	Name        string                     `json:"name"`
	BasePrice   int64                      `json:"basePrice"`
	Description string                     `json:"description,omitempty"`
	AddOns      []catalogAdjustmentPayload `json:"addOns,omitempty"`
	Reductions  []catalogAdjustmentPayload `json:"reductions,omitempty"`
}

type catalogAdjustmentPayload struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Delta       int64  `json:"delta"`
	Description string `json:"description,omitempty"`
}

type catalogAddOnPayload struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	UnitPrice   int64  `json:"unitPrice"`
	Description string `json:"description,omitempty"`
}

type catalogTierPayload struct {
	Tier       string  `json:"tier"`
	Multiplier float64 `json:"multiplier"`
}

type catalogFrequencyPayload struct {
	Frequency       string  `json:"frequency"`
	DiscountPercent float64 `json:"discountPercent"`
	Description     string  `json:"description,omitempty"`
}

func (h *CatalogHandlers) getCatalog(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	tiers := make([]catalogTierPayload, 0, 3)
	for _, tier := range []domain.Tier{domain.TierBasic, domain.TierStandard, domain.TierPremium} {
		tiers = append(tiers, catalogTierPayload{
			Tier:       string(tier),
			Multiplier: h.catalog.TierMultiplier(tier),
		})
	}

	frequencies := make([]catalogFrequencyPayload, 0, 4)
	for _, freq := range []domain.Frequency{domain.FrequencyOneTime, domain.FrequencyWeekly, domain.FrequencyBiWeekly, domain.FrequencyMonthly} {
		percent, description := h.catalog.FrequencyDiscount(freq)
		frequencies = append(frequencies, catalogFrequencyPayload{
			Frequency:       string(freq),
			DiscountPercent: percent,
			Description:     description,
		})
	}

	rooms := h.catalog.Rooms()
	roomPayloads := make([]catalogRoomPayload, 0, len(rooms))
	for _, room := range rooms {
		roomPayloads = append(roomPayloads, catalogRoomPayload{
			Type:        string(room.Type),
			Name:        room.Name,
			BasePrice:   room.BasePrice,
			Description: room.Description,
			AddOns:      buildAdjustmentPayloads(room.AddOns),
			Reductions:  buildAdjustmentPayloads(room.Reductions),
		})
	}

	addOns := h.catalog.AddOns()
	addOnPayloads := make([]catalogAddOnPayload, 0, len(addOns))
	for _, addOn := range addOns {
		addOnPayloads = append(addOnPayloads, catalogAddOnPayload{
			ID:          addOn.ID,
			Name:        addOn.Name,
			UnitPrice:   addOn.UnitPrice,
			Description: addOn.Description,
		})
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"rooms":       roomPayloads,
		"addOns":      addOnPayloads,
		"tiers":       tiers,
		"frequencies": frequencies,
		"taxRate":     h.catalog.TaxRate(),
	})
}

func (h *CatalogHandlers) listRooms(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}
	rooms := h.catalog.Rooms()
	payload := make([]catalogRoomPayload, 0, len(rooms))
	for _, room := range rooms {
		payload = append(payload, catalogRoomPayload{
			Type:        string(room.Type),
			Name:        room.Name,
			BasePrice:   room.BasePrice,
			Description: room.Description,
			AddOns:      buildAdjustmentPayloads(room.AddOns),
			Reductions:  buildAdjustmentPayloads(room.Reductions),
		})
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"rooms": payload})
}

func (h *CatalogHandlers) listAddOns(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}
	addOns := h.catalog.AddOns()
	payload := make([]catalogAddOnPayload, 0, len(addOns))
	for _, addOn := range addOns {
		payload = append(payload, catalogAddOnPayload{
			ID:          addOn.ID,
			Name:        addOn.Name,
			UnitPrice:   addOn.UnitPrice,
			Description: addOn.Description,
		})
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"addOns": payload})
}

func buildAdjustmentPayloads(adjustments []domain.CatalogAdjustment) []catalogAdjustmentPayload {
	if len(adjustments) == 0 {
		return nil
	}
	out := make([]catalogAdjustmentPayload, 0, len(adjustments))
	for _, adjustment := range adjustments {
		out = append(out, catalogAdjustmentPayload{
			ID:          adjustment.ID,
			Name:        adjustment.Name,
			Delta:       adjustment.Delta,
			Description: adjustment.Description,
		})
	}
	return out
}
