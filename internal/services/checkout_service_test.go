package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/tidynest/api/internal/domain"
	"github.com/tidynest/api/internal/payments"
)

type fakePaymentProvider struct {
	request payments.CheckoutSessionRequest
	session payments.CheckoutSession
	err     error
	calls   int
}

func (f *fakePaymentProvider) CreateCheckoutSession(_ context.Context, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error) {
	f.calls++
	f.request = req
	if f.err != nil {
		return payments.CheckoutSession{}, f.err
	}
	return f.session, nil
}

type fakeOrderPublisher struct {
	events []domain.OrderEvent
	err    error
}

func (f *fakeOrderPublisher) PublishOrderEvent(_ context.Context, event domain.OrderEvent) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.events = append(f.events, event)
	return "msg-1", nil
}

func newTestCheckout(t *testing.T, provider *fakePaymentProvider, publisher *fakeOrderPublisher) (*CheckoutOrchestrator, *SessionCartService) {
	t.Helper()
	carts, _ := newTestCartService(t)
	orchestrator, err := NewCheckoutOrchestrator(CheckoutOrchestratorDeps{
		Carts:     carts,
		Provider:  provider,
		Publisher: publisher,
		Clock: func() time.Time {
			return time.Date(2026, time.March, 14, 9, 0, 0, 0, time.UTC)
		},
	})
	if err != nil {
		t.Fatalf("NewCheckoutOrchestrator: %v", err)
	}
	return orchestrator, carts
}

func TestCheckoutBuildsProviderRequestFromCart(t *testing.T) {
	provider := &fakePaymentProvider{session: payments.CheckoutSession{
		ID:          "cs_test_1",
		Provider:    "stripe",
		RedirectURL: "https://checkout.stripe.test/cs_test_1",
	}}
	orchestrator, carts := newTestCheckout(t, provider, &fakeOrderPublisher{})
	ctx := context.Background()

	add := kitchenAdd("sess-1", 2)
	add.Recurring = true
	add.Frequency = domain.FrequencyBiWeekly
	if _, err := carts.AddItem(ctx, add); err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	session, err := orchestrator.CreateCheckoutSession(ctx, CreateCheckoutSessionCommand{
		SessionID:     "sess-1",
		SuccessURL:    "https://tidynest.test/success",
		CancelURL:     "https://tidynest.test/cancel",
		CustomerEmail: "casey@example.com",
	})
	if err != nil {
		t.Fatalf("CreateCheckoutSession: %v", err)
	}

	if session.SessionID != "cs_test_1" || session.RedirectURL == "" {
		t.Fatalf("unexpected session %+v", session)
	}
	if provider.request.CustomerEmail != "casey@example.com" {
		t.Fatalf("unexpected email %q", provider.request.CustomerEmail)
	}
	if provider.request.Metadata["clientSessionId"] != "sess-1" {
		t.Fatalf("client session id missing from metadata: %v", provider.request.Metadata)
	}
	if provider.request.IdempotencyKey == "" {
		t.Fatal("expected an idempotency key")
	}
	if len(provider.request.Items) != 1 {
		t.Fatalf("expected one line item, got %d", len(provider.request.Items))
	}
	line := provider.request.Items[0]
	if line.Quantity != 2 || line.Amount != 7000 {
		t.Fatalf("unexpected line %+v", line)
	}
	if line.Interval != payments.RecurringWeekly || line.IntervalCount != 2 {
		t.Fatalf("bi-weekly should bill every second week, got %+v", line)
	}
}

func TestCheckoutFallsBackToCartMetadataEmail(t *testing.T) {
	provider := &fakePaymentProvider{session: payments.CheckoutSession{ID: "cs_test_2"}}
	orchestrator, carts := newTestCheckout(t, provider, &fakeOrderPublisher{})
	ctx := context.Background()

	if _, err := carts.AddItem(ctx, kitchenAdd("sess-1", 1)); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	_, err := carts.SetMetadata(ctx, SetMetadataCommand{
		SessionID: "sess-1",
		Metadata:  map[string]any{"customerEmail": "casey@example.com"},
	})
	if err != nil {
		t.Fatalf("SetMetadata: %v", err)
	}

	// No email on the command; the one stored on the cart carries through.
	if _, err := orchestrator.CreateCheckoutSession(ctx, CreateCheckoutSessionCommand{
		SessionID:  "sess-1",
		SuccessURL: "https://tidynest.test/success",
		CancelURL:  "https://tidynest.test/cancel",
	}); err != nil {
		t.Fatalf("CreateCheckoutSession: %v", err)
	}
	if provider.request.CustomerEmail != "casey@example.com" {
		t.Fatalf("expected cart metadata email, got %q", provider.request.CustomerEmail)
	}
}

func TestCheckoutEmptyCartIsRejected(t *testing.T) {
	provider := &fakePaymentProvider{}
	orchestrator, _ := newTestCheckout(t, provider, &fakeOrderPublisher{})

	_, err := orchestrator.CreateCheckoutSession(context.Background(), CreateCheckoutSessionCommand{
		SessionID:  "sess-1",
		SuccessURL: "https://tidynest.test/success",
		CancelURL:  "https://tidynest.test/cancel",
	})
	if !errors.Is(err, ErrCheckoutCartNotReady) {
		t.Fatalf("expected ErrCheckoutCartNotReady, got %v", err)
	}
	if provider.calls != 0 {
		t.Fatalf("provider must not be called for an empty cart, got %d calls", provider.calls)
	}
}

func TestCheckoutProviderFailureLeavesCartIntact(t *testing.T) {
	provider := &fakePaymentProvider{err: errors.New("stripe down")}
	orchestrator, carts := newTestCheckout(t, provider, &fakeOrderPublisher{})
	ctx := context.Background()

	if _, err := carts.AddItem(ctx, kitchenAdd("sess-1", 1)); err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	_, err := orchestrator.CreateCheckoutSession(ctx, CreateCheckoutSessionCommand{
		SessionID:  "sess-1",
		SuccessURL: "https://tidynest.test/success",
		CancelURL:  "https://tidynest.test/cancel",
	})
	if !errors.Is(err, ErrCheckoutPaymentFailed) {
		t.Fatalf("expected ErrCheckoutPaymentFailed, got %v", err)
	}

	cart, err := carts.GetCart(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	if len(cart.Items) != 1 {
		t.Fatalf("cart must survive a provider failure, got %d lines", len(cart.Items))
	}
}

func TestCheckoutCompleteClearsCartAndPublishes(t *testing.T) {
	publisher := &fakeOrderPublisher{}
	orchestrator, carts := newTestCheckout(t, &fakePaymentProvider{}, publisher)
	ctx := context.Background()

	if _, err := carts.AddItem(ctx, kitchenAdd("sess-1", 1)); err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	err := orchestrator.CompleteCheckout(ctx, CompletedCheckout{
		ClientSessionID: "sess-1",
		CheckoutID:      "cs_test_1",
		AmountTotal:     8505,
		Currency:        "USD",
	})
	if err != nil {
		t.Fatalf("CompleteCheckout: %v", err)
	}

	cart, err := carts.GetCart(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	if len(cart.Items) != 0 {
		t.Fatalf("expected cart destroyed after completion, got %d lines", len(cart.Items))
	}

	if len(publisher.events) != 1 {
		t.Fatalf("expected one published event, got %d", len(publisher.events))
	}
	event := publisher.events[0]
	if event.Type != "order.completed" || event.SessionID != "sess-1" || event.AmountTotal != 8505 {
		t.Fatalf("unexpected event %+v", event)
	}
}

func TestCheckoutCompletePropagatesPublishFailure(t *testing.T) {
	publisher := &fakeOrderPublisher{err: errors.New("pubsub unavailable")}
	orchestrator, carts := newTestCheckout(t, &fakePaymentProvider{}, publisher)
	ctx := context.Background()

	if _, err := carts.AddItem(ctx, kitchenAdd("sess-1", 1)); err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	err := orchestrator.CompleteCheckout(ctx, CompletedCheckout{ClientSessionID: "sess-1", CheckoutID: "cs_1"})
	if err == nil {
		t.Fatal("expected publish failure to propagate for webhook retry")
	}
}
