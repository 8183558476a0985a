package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v78"
)

type fakeSessionAPI struct {
	params *stripe.CheckoutSessionParams
	result *stripe.CheckoutSession
	err    error
}

func (f *fakeSessionAPI) New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func newTestStripeProvider(t *testing.T, sessions *fakeSessionAPI) *StripeProvider {
	t.Helper()
	provider, err := NewStripeProvider(StripeProviderConfig{
		Clients: &stripeClients{sessions: sessions},
		Clock: func() time.Time {
			return time.Date(2026, time.March, 14, 9, 0, 0, 0, time.UTC)
		},
	})
	if err != nil {
		t.Fatalf("NewStripeProvider: %v", err)
	}
	return provider
}

func TestStripeProviderOneTimeSessionUsesPaymentMode(t *testing.T) {
	sessions := &fakeSessionAPI{result: &stripe.CheckoutSession{
		ID:  "cs_test_1",
		URL: "https://checkout.stripe.test/cs_test_1",
	}}
	provider := newTestStripeProvider(t, sessions)

	session, err := provider.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{
		Currency:   "USD",
		SuccessURL: "https://tidynest.test/success",
		CancelURL:  "https://tidynest.test/cancel",
		Items: []CheckoutLineItem{
			{Name: "Kitchen Deep Clean", Quantity: 1, Amount: 7350},
		},
	})
	if err != nil {
		t.Fatalf("CreateCheckoutSession: %v", err)
	}

	if got := stripe.StringValue(sessions.params.Mode); got != string(stripe.CheckoutSessionModePayment) {
		t.Fatalf("expected payment mode, got %q", got)
	}
	if len(sessions.params.LineItems) != 1 {
		t.Fatalf("expected one line item, got %d", len(sessions.params.LineItems))
	}
	line := sessions.params.LineItems[0]
	if stripe.Int64Value(line.PriceData.UnitAmount) != 7350 {
		t.Fatalf("unexpected unit amount %d", stripe.Int64Value(line.PriceData.UnitAmount))
	}
	if stripe.StringValue(line.PriceData.Currency) != "usd" {
		t.Fatalf("expected lowercased currency, got %q", stripe.StringValue(line.PriceData.Currency))
	}
	if session.RedirectURL != "https://checkout.stripe.test/cs_test_1" {
		t.Fatalf("unexpected redirect url %q", session.RedirectURL)
	}
	if session.Provider != "stripe" {
		t.Fatalf("unexpected provider %q", session.Provider)
	}
}

func TestStripeProviderRecurringLineForcesSubscriptionMode(t *testing.T) {
	sessions := &fakeSessionAPI{result: &stripe.CheckoutSession{ID: "cs_test_2"}}
	provider := newTestStripeProvider(t, sessions)

	_, err := provider.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{
		Currency:   "USD",
		SuccessURL: "https://tidynest.test/success",
		CancelURL:  "https://tidynest.test/cancel",
		Items: []CheckoutLineItem{
			{Name: "One-off Clean", Quantity: 1, Amount: 5000},
			{Name: "Weekly Clean", Quantity: 1, Amount: 5600, Interval: RecurringWeekly},
		},
	})
	if err != nil {
		t.Fatalf("CreateCheckoutSession: %v", err)
	}

	if got := stripe.StringValue(sessions.params.Mode); got != string(stripe.CheckoutSessionModeSubscription) {
		t.Fatalf("expected subscription mode, got %q", got)
	}
	recurring := sessions.params.LineItems[1].PriceData.Recurring
	if recurring == nil {
		t.Fatal("expected recurring price data on the weekly line")
	}
	if stripe.StringValue(recurring.Interval) != "week" {
		t.Fatalf("expected week interval, got %q", stripe.StringValue(recurring.Interval))
	}
	if stripe.Int64Value(recurring.IntervalCount) != 1 {
		t.Fatalf("expected interval count 1, got %d", stripe.Int64Value(recurring.IntervalCount))
	}
}

func TestStripeProviderPropagatesCustomerEmailAndMetadata(t *testing.T) {
	sessions := &fakeSessionAPI{result: &stripe.CheckoutSession{ID: "cs_test_3", ExpiresAt: 1767312000}}
	provider := newTestStripeProvider(t, sessions)

	session, err := provider.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{
		Currency:      "USD",
		CustomerEmail: "casey@example.com",
		SuccessURL:    "https://tidynest.test/success",
		CancelURL:     "https://tidynest.test/cancel",
		Metadata:      map[string]string{"clientSessionId": "sess-1"},
		Items:         []CheckoutLineItem{{Name: "Clean", Quantity: 1, Amount: 1000}},
	})
	if err != nil {
		t.Fatalf("CreateCheckoutSession: %v", err)
	}

	if got := stripe.StringValue(sessions.params.CustomerEmail); got != "casey@example.com" {
		t.Fatalf("unexpected customer email %q", got)
	}
	if sessions.params.Metadata["clientSessionId"] != "sess-1" {
		t.Fatalf("metadata not propagated: %v", sessions.params.Metadata)
	}
	if session.ExpiresAt != time.Unix(1767312000, 0).UTC() {
		t.Fatalf("unexpected expiry %v", session.ExpiresAt)
	}
}

func TestStripeProviderRejectsEmptyLineItems(t *testing.T) {
	provider := newTestStripeProvider(t, &fakeSessionAPI{})
	_, err := provider.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{
		Currency:   "USD",
		SuccessURL: "https://tidynest.test/success",
		CancelURL:  "https://tidynest.test/cancel",
	})
	if err == nil {
		t.Fatal("expected error for empty line items")
	}
}

func TestStripeProviderWrapsAPIErrors(t *testing.T) {
	apiErr := errors.New("card declined")
	provider := newTestStripeProvider(t, &fakeSessionAPI{err: apiErr})

	_, err := provider.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{
		Currency:   "USD",
		SuccessURL: "https://tidynest.test/success",
		CancelURL:  "https://tidynest.test/cancel",
		Items:      []CheckoutLineItem{{Name: "Clean", Quantity: 1, Amount: 1000}},
	})
	if !errors.Is(err, apiErr) {
		t.Fatalf("expected wrapped api error, got %v", err)
	}
}
