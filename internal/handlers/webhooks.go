package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tidynest/api/internal/payments"
	"github.com/tidynest/api/internal/platform/httpx"
	"github.com/tidynest/api/internal/services"
)

const maxWebhookBodySize = 256 * 1024

// WebhookHandlers receives payment-provider notifications.
type WebhookHandlers struct {
	verifier payments.WebhookVerifier
	checkout services.CheckoutService
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// NewWebhookHandlers constructs handlers over the verifier and checkout service.
func NewWebhookHandlers(verifier payments.WebhookVerifier, checkout services.CheckoutService, logger func(ctx context.Context, event string, fields map[string]any)) *WebhookHandlers {
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &WebhookHandlers{verifier: verifier, checkout: checkout, logger: logger}
}

// Routes wires the /webhooks endpoints onto the provided router.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/stripe", h.handleStripe)
}

func (h *WebhookHandlers) handleStripe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.verifier == nil || h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("webhooks_unavailable", "webhook processing is unavailable", http.StatusServiceUnavailable))
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "failed to read webhook payload", http.StatusBadRequest))
		return
	}

	event, err := h.verifier.VerifyWebhook(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, payments.ErrWebhookSignature) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "webhook signature verification failed", http.StatusBadRequest))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "webhook payload could not be decoded", http.StatusBadRequest))
		return
	}

	switch event.Type {
	case "checkout.session.completed":
		err = h.checkout.CompleteCheckout(ctx, services.CompletedCheckout{
			ClientSessionID: event.Metadata["clientSessionId"],
			CheckoutID:      event.CheckoutID,
			AmountTotal:     event.AmountTotal,
			Currency:        event.Currency,
		})
		if err != nil {
			if errors.Is(err, services.ErrCheckoutInvalidInput) {
				// Missing client session metadata; acknowledging avoids
				// endless redelivery of an event we can never act on.
				h.logger(ctx, "webhooks.stripe.unusable_event", map[string]any{
					"eventId": event.ID,
					"error":   err.Error(),
				})
				break
			}
			h.logger(ctx, "webhooks.stripe.completion_failed", map[string]any{
				"eventId": event.ID,
				"error":   err.Error(),
			})
			httpx.WriteError(ctx, w, httpx.NewError("webhook_processing_failed", "failed to process event", http.StatusInternalServerError))
			return
		}
	case "payment_intent.succeeded":
		h.logger(ctx, "webhooks.stripe.payment_succeeded", map[string]any{
			"eventId":  event.ID,
			"intentId": event.CheckoutID,
			"amount":   event.AmountTotal,
		})
	default:
		// Unhandled event types are acknowledged without action.
		h.logger(ctx, "webhooks.stripe.ignored", map[string]any{
			"eventId": event.ID,
			"type":    event.Type,
		})
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{"received": true})
}
