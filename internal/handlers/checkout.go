package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tidynest/api/internal/platform/httpx"
	"github.com/tidynest/api/internal/services"
)

const maxCheckoutBodySize = 16 * 1024

// CheckoutHandlers exposes the hosted-checkout endpoint.
type CheckoutHandlers struct {
	checkout          services.CheckoutService
	defaultSuccessURL string
	defaultCancelURL  string
}

// CheckoutOption customises CheckoutHandlers construction.
type CheckoutOption func(*CheckoutHandlers)

// WithCheckoutRedirects sets fallback redirect URLs used when the client
// omits them from the request body.
func WithCheckoutRedirects(successURL, cancelURL string) CheckoutOption {
	return func(h *CheckoutHandlers) {
		h.defaultSuccessURL = successURL
		h.defaultCancelURL = cancelURL
	}
}

// NewCheckoutHandlers constructs handlers over the checkout service.
func NewCheckoutHandlers(checkout services.CheckoutService, opts ...CheckoutOption) *CheckoutHandlers {
	h := &CheckoutHandlers{checkout: checkout}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes wires the /checkout endpoints onto the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/session", h.createSession)
}

type createCheckoutRequest struct {
	SuccessURL    string            `json:"successUrl"`
	CancelURL     string            `json:"cancelUrl"`
	CustomerEmail string            `json:"customerEmail"`
	Metadata      map[string]string `json:"metadata"`
}

type createCheckoutResponse struct {
	CheckoutID  string `json:"checkoutId"`
	Provider    string `json:"provider"`
	RedirectURL string `json:"redirectUrl"`
	ExpiresAt   string `json:"expiresAt,omitempty"`
}

func (h *CheckoutHandlers) createSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service is unavailable", http.StatusServiceUnavailable))
		return
	}
	sessionID := sessionIDFromRequest(r)
	if sessionID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("session_required", SessionHeader+" header is required", http.StatusBadRequest))
		return
	}

	var req createCheckoutRequest
	if err := decodeJSONBody(r, maxCheckoutBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	successURL := req.SuccessURL
	if successURL == "" {
		successURL = h.defaultSuccessURL
	}
	cancelURL := req.CancelURL
	if cancelURL == "" {
		cancelURL = h.defaultCancelURL
	}

	session, err := h.checkout.CreateCheckoutSession(ctx, services.CreateCheckoutSessionCommand{
		SessionID:     sessionID,
		SuccessURL:    successURL,
		CancelURL:     cancelURL,
		CustomerEmail: req.CustomerEmail,
		Metadata:      req.Metadata,
	})
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}

	resp := createCheckoutResponse{
		CheckoutID:  session.SessionID,
		Provider:    session.Provider,
		RedirectURL: session.RedirectURL,
	}
	if !session.ExpiresAt.IsZero() {
		resp.ExpiresAt = session.ExpiresAt.UTC().Format(time.RFC3339)
	}
	writeJSONResponse(w, http.StatusCreated, resp)
}

func (h *CheckoutHandlers) writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCheckoutInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutCartNotReady):
		httpx.WriteError(ctx, w, httpx.NewError("cart_empty", "cart has no items to check out", http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutPaymentFailed):
		httpx.WriteError(ctx, w, httpx.NewError("payment_provider_error", "payment provider rejected the checkout", http.StatusBadGateway))
	case errors.Is(err, services.ErrCartUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected checkout failure", http.StatusInternalServerError))
	}
}
