package payments

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"
)

// ErrWebhookSignature marks a payload whose signature did not verify.
var ErrWebhookSignature = errors.New("stripe: webhook signature verification failed")

// StripeWebhookVerifier validates Stripe webhook signatures and decodes the
// payload into a normalised event.
type StripeWebhookVerifier struct {
	secret string
}

// NewStripeWebhookVerifier constructs a verifier for the given endpoint secret.
func NewStripeWebhookVerifier(secret string) (*StripeWebhookVerifier, error) {
	trimmed := strings.TrimSpace(secret)
	if trimmed == "" {
		return nil, errors.New("stripe: webhook secret is required")
	}
	return &StripeWebhookVerifier{secret: trimmed}, nil
}

// VerifyWebhook implements WebhookVerifier.
func (v *StripeWebhookVerifier) VerifyWebhook(payload []byte, signature string) (WebhookEvent, error) {
	event, err := webhook.ConstructEvent(payload, signature, v.secret)
	if err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrWebhookSignature, err)
	}

	normalised := WebhookEvent{
		ID:   event.ID,
		Type: string(event.Type),
	}

	switch event.Type {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return WebhookEvent{}, fmt.Errorf("stripe: decode checkout session: %w", err)
		}
		normalised.CheckoutID = session.ID
		normalised.AmountTotal = session.AmountTotal
		if session.Currency != "" {
			normalised.Currency = strings.ToUpper(string(session.Currency))
		}
		normalised.Metadata = session.Metadata
	case "payment_intent.succeeded", "payment_intent.payment_failed":
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return WebhookEvent{}, fmt.Errorf("stripe: decode payment intent: %w", err)
		}
		normalised.CheckoutID = intent.ID
		normalised.AmountTotal = intent.Amount
		if intent.Currency != "" {
			normalised.Currency = strings.ToUpper(string(intent.Currency))
		}
		normalised.Metadata = intent.Metadata
	}

	return normalised, nil
}
