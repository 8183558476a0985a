package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/tidynest/api/internal/domain"
	"github.com/tidynest/api/internal/platform/httpx"
	"github.com/tidynest/api/internal/services"
)

const maxCartBodySize = 16 * 1024

// CartHandlers exposes the session-scoped cart endpoints. The session is
// identified by the X-Session-ID header on every request.
type CartHandlers struct {
	carts  services.CartService
	health services.CartHealthService
}

// NewCartHandlers constructs handlers over the cart and health services.
func NewCartHandlers(carts services.CartService, health services.CartHealthService) *CartHandlers {
	return &CartHandlers{carts: carts, health: health}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.getCart)
	r.Delete("/", h.clearCart)
	r.Patch("/metadata", h.setMetadata)
	r.Get("/totals", h.getTotals)
	r.Get("/health", h.getHealth)

	r.Post("/items", h.addItem)
	r.Patch("/items/{itemID}", h.updateQuantity)
	r.Delete("/items/{itemID}", h.removeItem)

	r.Post("/undo", h.undo)
	r.Post("/redo", h.redo)

	r.Get("/saved", h.listSavedCarts)
	r.Post("/saved", h.saveCart)
	r.Post("/saved/{savedCartID}/load", h.loadCart)

	r.Post("/pending", h.enqueuePending)
	r.Post("/pending/flush", h.flushPending)
}

type cartResponse struct {
	Cart cartPayload `json:"cart"`
}

type cartPayload struct {
	SessionID  string            `json:"sessionId"`
	Items      []cartItemPayload `json:"items"`
	ItemsCount int               `json:"itemsCount"`
	TotalItems int               `json:"totalItems"`
	TotalPrice int64             `json:"totalPrice"`
	UpdatedAt  string            `json:"updatedAt,omitempty"`
}

type cartItemPayload struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	UnitPrice   int64          `json:"unitPrice"`
	Quantity    int            `json:"quantity"`
	ServiceType string         `json:"serviceType"`
	Address     string         `json:"address,omitempty"`
	Frequency   string         `json:"frequency,omitempty"`
	Image       string         `json:"image,omitempty"`
	Recurring   bool           `json:"recurring,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type addItemRequest struct {
	Name        string         `json:"name"`
	UnitPrice   int64          `json:"unitPrice"`
	Quantity    int            `json:"quantity"`
	ServiceType string         `json:"serviceType"`
	Address     string         `json:"address"`
	Frequency   string         `json:"frequency"`
	Image       string         `json:"image"`
	Recurring   bool           `json:"recurring"`
	Metadata    map[string]any `json:"metadata"`
}

type setMetadataRequest struct {
	Metadata map[string]any `json:"metadata"`
}

type updateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type saveCartRequest struct {
	Name string `json:"name"`
}

type savedCartPayload struct {
	ID      string            `json:"id"`
	Name    string            `json:"name"`
	Items   []cartItemPayload `json:"items"`
	SavedAt string            `json:"savedAt"`
}

type pendingOperationRequest struct {
	Kind     string          `json:"kind"`
	Item     *addItemRequest `json:"item,omitempty"`
	ItemID   string          `json:"itemId,omitempty"`
	Quantity int             `json:"quantity,omitempty"`
}

func (h *CartHandlers) requireSession(w http.ResponseWriter, r *http.Request) (string, bool) {
	sessionID := sessionIDFromRequest(r)
	if sessionID == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("session_required", fmt.Sprintf("%s header is required", SessionHeader), http.StatusBadRequest))
		return "", false
	}
	return sessionID, true
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	cart, err := h.carts.GetCart(r.Context(), sessionID)
	if err != nil {
		h.writeCartError(r.Context(), w, err)
		return
	}
	respondCart(w, http.StatusOK, cart)
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	cart, err := h.carts.ClearCart(r.Context(), sessionID)
	if err != nil {
		h.writeCartError(r.Context(), w, err)
		return
	}
	respondCart(w, http.StatusOK, cart)
}

func (h *CartHandlers) setMetadata(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	var req setMetadataRequest
	if err := decodeJSONBody(r, maxCartBodySize, &req); err != nil {
		writeBodyError(r.Context(), w, err)
		return
	}
	cart, err := h.carts.SetMetadata(r.Context(), services.SetMetadataCommand{
		SessionID: sessionID,
		Metadata:  req.Metadata,
	})
	if err != nil {
		h.writeCartError(r.Context(), w, err)
		return
	}
	respondCart(w, http.StatusOK, cart)
}

func (h *CartHandlers) getTotals(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	totals, err := h.carts.Totals(r.Context(), sessionID)
	if err != nil {
		h.writeCartError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"totalItems": totals.TotalItems,
		"totalPrice": totals.TotalPrice,
	})
}

func (h *CartHandlers) getHealth(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	if h.health == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("cart_health_unavailable", "cart health analyzer is unavailable", http.StatusServiceUnavailable))
		return
	}
	report, err := h.health.Analyze(r.Context(), sessionID)
	if err != nil {
		h.writeCartError(r.Context(), w, err)
		return
	}

	metrics := make([]map[string]any, 0, len(report.Metrics))
	for _, metric := range report.Metrics {
		metrics = append(metrics, map[string]any{
			"name":   metric.Name,
			"status": string(metric.Status),
			"value":  metric.Value,
			"detail": metric.Detail,
		})
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"overall":     string(report.Overall),
		"score":       report.Score,
		"metrics":     metrics,
		"suggestions": report.Suggestions,
		"generatedAt": report.GeneratedAt.Format(time.RFC3339),
	})
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	var req addItemRequest
	if err := decodeJSONBody(r, maxCartBodySize, &req); err != nil {
		writeBodyError(r.Context(), w, err)
		return
	}

	cart, err := h.carts.AddItem(r.Context(), services.AddItemCommand{
		SessionID:   sessionID,
		Name:        req.Name,
		UnitPrice:   req.UnitPrice,
		Quantity:    req.Quantity,
		ServiceType: req.ServiceType,
		Address:     req.Address,
		Frequency:   domain.Frequency(req.Frequency),
		Image:       req.Image,
		Recurring:   req.Recurring,
		Metadata:    req.Metadata,
	})
	if err != nil {
		h.writeCartError(r.Context(), w, err)
		return
	}
	respondCart(w, http.StatusOK, cart)
}

func (h *CartHandlers) updateQuantity(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	var req updateQuantityRequest
	if err := decodeJSONBody(r, maxCartBodySize, &req); err != nil {
		writeBodyError(r.Context(), w, err)
		return
	}
	cart, err := h.carts.UpdateQuantity(r.Context(), services.UpdateQuantityCommand{
		SessionID: sessionID,
		ItemID:    chi.URLParam(r, "itemID"),
		Quantity:  req.Quantity,
	})
	if err != nil {
		h.writeCartError(r.Context(), w, err)
		return
	}
	respondCart(w, http.StatusOK, cart)
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	cart, err := h.carts.RemoveItem(r.Context(), services.RemoveItemCommand{
		SessionID: sessionID,
		ItemID:    chi.URLParam(r, "itemID"),
	})
	if err != nil {
		h.writeCartError(r.Context(), w, err)
		return
	}
	respondCart(w, http.StatusOK, cart)
}

func (h *CartHandlers) undo(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	cart, err := h.carts.Undo(r.Context(), sessionID)
	if err != nil {
		h.writeCartError(r.Context(), w, err)
		return
	}
	respondCart(w, http.StatusOK, cart)
}

func (h *CartHandlers) redo(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	cart, err := h.carts.Redo(r.Context(), sessionID)
	if err != nil {
		h.writeCartError(r.Context(), w, err)
		return
	}
	respondCart(w, http.StatusOK, cart)
}

func (h *CartHandlers) listSavedCarts(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	snapshots, err := h.carts.ListSavedCarts(r.Context(), sessionID)
	if err != nil {
		h.writeCartError(r.Context(), w, err)
		return
	}
	payload := make([]savedCartPayload, 0, len(snapshots))
	for _, snapshot := range snapshots {
		payload = append(payload, buildSavedCartPayload(snapshot))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"savedCarts": payload})
}

func (h *CartHandlers) saveCart(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	var req saveCartRequest
	if err := decodeJSONBody(r, maxCartBodySize, &req); err != nil {
		writeBodyError(r.Context(), w, err)
		return
	}
	snapshot, err := h.carts.SaveCart(r.Context(), services.SaveCartCommand{SessionID: sessionID, Name: req.Name})
	if err != nil {
		h.writeCartError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]any{"savedCart": buildSavedCartPayload(snapshot)})
}

func (h *CartHandlers) loadCart(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	cart, err := h.carts.LoadCart(r.Context(), services.LoadCartCommand{
		SessionID:   sessionID,
		SavedCartID: chi.URLParam(r, "savedCartID"),
	})
	if err != nil {
		h.writeCartError(r.Context(), w, err)
		return
	}
	respondCart(w, http.StatusOK, cart)
}

func (h *CartHandlers) enqueuePending(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	var req pendingOperationRequest
	if err := decodeJSONBody(r, maxCartBodySize, &req); err != nil {
		writeBodyError(r.Context(), w, err)
		return
	}

	op := domain.PendingOperation{
		Kind:     domain.PendingOpKind(req.Kind),
		ItemID:   req.ItemID,
		Quantity: req.Quantity,
	}
	if req.Item != nil {
		op.Item = &domain.CartItem{
			Name:        req.Item.Name,
			UnitPrice:   req.Item.UnitPrice,
			Quantity:    req.Item.Quantity,
			ServiceType: req.Item.ServiceType,
			Address:     req.Item.Address,
			Frequency:   domain.Frequency(req.Item.Frequency),
			Image:       req.Item.Image,
			Recurring:   req.Item.Recurring,
			Metadata:    req.Item.Metadata,
		}
	}

	if err := h.carts.EnqueuePending(r.Context(), services.EnqueuePendingCommand{SessionID: sessionID, Operation: op}); err != nil {
		h.writeCartError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusAccepted, map[string]any{"queued": true})
}

func (h *CartHandlers) flushPending(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	cart, err := h.carts.FlushPending(r.Context(), sessionID)
	if err != nil {
		h.writeCartError(r.Context(), w, err)
		return
	}
	respondCart(w, http.StatusOK, cart)
}

func (h *CartHandlers) writeCartError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartItemNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("cart_item_not_found", "cart item not found", http.StatusNotFound))
	case errors.Is(err, services.ErrSavedCartNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("saved_cart_not_found", "saved cart not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCartHistoryEmpty):
		httpx.WriteError(ctx, w, httpx.NewError("history_empty", "no further history to walk", http.StatusConflict))
	case errors.Is(err, services.ErrCartHealthInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected cart failure", http.StatusInternalServerError))
	}
}

func respondCart(w http.ResponseWriter, status int, cart domain.Cart) {
	setCartResponseHeaders(w, cart)
	writeJSONResponse(w, status, cartResponse{Cart: buildCartPayload(cart)})
}

func setCartResponseHeaders(w http.ResponseWriter, cart domain.Cart) {
	w.Header().Set("Cache-Control", "no-store, no-cache, max-age=0, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	if !cart.UpdatedAt.IsZero() {
		w.Header().Set("Last-Modified", cart.UpdatedAt.UTC().Format(http.TimeFormat))
	}
	if etag := buildCartETag(cart); etag != "" {
		w.Header().Set("ETag", etag)
	}
}

func buildCartPayload(cart domain.Cart) cartPayload {
	payload := cartPayload{
		SessionID:  strings.TrimSpace(cart.SessionID),
		Items:      make([]cartItemPayload, 0, len(cart.Items)),
		ItemsCount: len(cart.Items),
	}
	for _, item := range cart.Items {
		payload.TotalItems += item.Quantity
		payload.TotalPrice += item.UnitPrice * int64(item.Quantity)
		payload.Items = append(payload.Items, cartItemPayload{
			ID:          item.ID,
			Name:        item.Name,
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
			ServiceType: item.ServiceType,
			Address:     item.Address,
			Frequency:   string(item.Frequency),
			Image:       item.Image,
			Recurring:   item.Recurring,
			Metadata:    item.Metadata,
		})
	}
	if !cart.UpdatedAt.IsZero() {
		payload.UpdatedAt = cart.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return payload
}

func buildSavedCartPayload(snapshot domain.SavedCart) savedCartPayload {
	items := make([]cartItemPayload, 0, len(snapshot.Items))
	for _, item := range snapshot.Items {
		items = append(items, cartItemPayload{
			ID:          item.ID,
			Name:        item.Name,
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
			ServiceType: item.ServiceType,
			Address:     item.Address,
			Frequency:   string(item.Frequency),
		})
	}
	return savedCartPayload{
		ID:      snapshot.ID,
		Name:    snapshot.Name,
		Items:   items,
		SavedAt: snapshot.SavedAt.UTC().Format(time.RFC3339),
	}
}

func buildCartETag(cart domain.Cart) string {
	if strings.TrimSpace(cart.SessionID) == "" || cart.UpdatedAt.IsZero() {
		return ""
	}
	input := fmt.Sprintf("%s:%d", strings.TrimSpace(cart.SessionID), cart.UpdatedAt.UTC().UnixNano())
	sum := sha256.Sum256([]byte(input))
	return fmt.Sprintf(`W/"%s"`, hex.EncodeToString(sum[:8]))
}
