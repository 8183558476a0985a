package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tidynest/api/internal/payments"
	"github.com/tidynest/api/internal/services"
)

type fakeVerifier struct {
	event payments.WebhookEvent
	err   error
}

func (f *fakeVerifier) VerifyWebhook([]byte, string) (payments.WebhookEvent, error) {
	return f.event, f.err
}

type fakeCheckoutService struct {
	completed []services.CompletedCheckout
	err       error
}

func (f *fakeCheckoutService) CreateCheckoutSession(context.Context, services.CreateCheckoutSessionCommand) (services.CheckoutSession, error) {
	return services.CheckoutSession{}, errors.New("not used")
}

func (f *fakeCheckoutService) CompleteCheckout(_ context.Context, evt services.CompletedCheckout) error {
	if f.err != nil {
		return f.err
	}
	f.completed = append(f.completed, evt)
	return nil
}

func postWebhook(router http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", strings.NewReader(body))
	req.Header.Set("Stripe-Signature", "t=1,v1=sig")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestWebhookCompletedEventTriggersCheckoutCompletion(t *testing.T) {
	checkout := &fakeCheckoutService{}
	verifier := &fakeVerifier{event: payments.WebhookEvent{
		ID:          "evt_1",
		Type:        "checkout.session.completed",
		CheckoutID:  "cs_test_1",
		AmountTotal: 8505,
		Currency:    "USD",
		Metadata:    map[string]string{"clientSessionId": "sess-1"},
	}}
	handlers := NewWebhookHandlers(verifier, checkout, nil)
	router := NewRouter(WithWebhookRoutes(handlers.Routes))

	rr := postWebhook(router, `{}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(checkout.completed) != 1 {
		t.Fatalf("expected one completion, got %d", len(checkout.completed))
	}
	evt := checkout.completed[0]
	if evt.ClientSessionID != "sess-1" || evt.CheckoutID != "cs_test_1" || evt.AmountTotal != 8505 {
		t.Fatalf("unexpected completion %+v", evt)
	}
}

func TestWebhookBadSignatureReturns400(t *testing.T) {
	verifier := &fakeVerifier{err: payments.ErrWebhookSignature}
	handlers := NewWebhookHandlers(verifier, &fakeCheckoutService{}, nil)
	router := NewRouter(WithWebhookRoutes(handlers.Routes))

	rr := postWebhook(router, `{}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	var envelope map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if envelope["error"] != "invalid_signature" {
		t.Fatalf("unexpected error code %v", envelope["error"])
	}
}

func TestWebhookUnhandledTypeIsAcknowledged(t *testing.T) {
	checkout := &fakeCheckoutService{}
	verifier := &fakeVerifier{event: payments.WebhookEvent{ID: "evt_2", Type: "charge.updated"}}
	handlers := NewWebhookHandlers(verifier, checkout, nil)
	router := NewRouter(WithWebhookRoutes(handlers.Routes))

	rr := postWebhook(router, `{}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for unhandled type, got %d", rr.Code)
	}
	if len(checkout.completed) != 0 {
		t.Fatalf("unhandled type must not complete checkout, got %d", len(checkout.completed))
	}
}

func TestWebhookCompletionFailureReturns500ForRetry(t *testing.T) {
	checkout := &fakeCheckoutService{err: errors.New("pubsub down")}
	verifier := &fakeVerifier{event: payments.WebhookEvent{
		ID:       "evt_3",
		Type:     "checkout.session.completed",
		Metadata: map[string]string{"clientSessionId": "sess-1"},
	}}
	handlers := NewWebhookHandlers(verifier, checkout, nil)
	router := NewRouter(WithWebhookRoutes(handlers.Routes))

	rr := postWebhook(router, `{}`)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 so the provider retries, got %d", rr.Code)
	}
}

func TestWebhookMissingSessionMetadataIsAcknowledged(t *testing.T) {
	checkout := &fakeCheckoutService{err: services.ErrCheckoutInvalidInput}
	verifier := &fakeVerifier{event: payments.WebhookEvent{
		ID:   "evt_4",
		Type: "checkout.session.completed",
	}}
	handlers := NewWebhookHandlers(verifier, checkout, nil)
	router := NewRouter(WithWebhookRoutes(handlers.Routes))

	rr := postWebhook(router, `{}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for an unusable event, got %d", rr.Code)
	}
}
