package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripeSessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type stripeClients struct {
	sessions stripeSessionAPI
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey   string
	Backends *stripe.Backends
	Logger   StripeLogger
	Clock    func() time.Time
	Clients  *stripeClients
}

// StripeProvider implements the Provider interface using Stripe Checkout.
type StripeProvider struct {
	api    stripeClients
	clock  func() time.Time
	logger StripeLogger
}

// NewStripeProvider constructs a Stripe Provider using the given configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Clients == nil {
		return nil, errors.New("stripe: api key is required")
	}

	var clients stripeClients
	if cfg.Clients != nil {
		clients = *cfg.Clients
	} else {
		sc := client.New(apiKey, cfg.Backends)
		clients = stripeClients{sessions: sc.CheckoutSessions}
	}
	if clients.sessions == nil {
		return nil, errors.New("stripe: incomplete client configuration")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeProvider{
		api:    clients,
		clock:  func() time.Time { return clock().UTC() },
		logger: logger,
	}, nil
}

// CreateCheckoutSession creates a hosted Stripe Checkout session. Any line
// carrying a recurring interval switches the whole session into subscription
// mode, which Stripe requires for recurring prices.
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error) {
	if p == nil {
		return CheckoutSession{}, errors.New("stripe: provider is nil")
	}
	if len(req.Items) == 0 {
		return CheckoutSession{}, errors.New("stripe: at least one line item is required")
	}

	mode := stripe.CheckoutSessionModePayment
	for _, item := range req.Items {
		if item.Interval != RecurringNone {
			mode = stripe.CheckoutSessionModeSubscription
			break
		}
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(mode)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if email := strings.TrimSpace(req.CustomerEmail); email != "" {
		params.CustomerEmail = stripe.String(email)
	}
	if len(req.Metadata) > 0 {
		params.Metadata = make(map[string]string, len(req.Metadata))
		for k, v := range req.Metadata {
			params.Metadata[k] = v
		}
	}
	if req.AllowPromotion {
		params.AllowPromotionCodes = stripe.Bool(true)
	}

	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(req.Items))
	for _, item := range req.Items {
		priceData := &stripe.CheckoutSessionLineItemPriceDataParams{
			Currency:   stripe.String(strings.ToLower(defaultString(item.Currency, req.Currency))),
			UnitAmount: stripe.Int64(item.Amount),
			ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
				Name: stripe.String(item.Name),
			},
		}
		if item.Description != "" {
			priceData.ProductData.Description = stripe.String(item.Description)
		}
		if item.Interval != RecurringNone {
			priceData.Recurring = &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
				Interval:      stripe.String(string(item.Interval)),
				IntervalCount: stripe.Int64(max64(item.IntervalCount, 1)),
			}
		}
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity:  stripe.Int64(max64(item.Quantity, 1)),
			PriceData: priceData,
		})
	}
	params.LineItems = lineItems

	session, err := p.api.sessions.New(params)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("stripe: create checkout session: %w", err)
	}

	p.logger(ctx, "payments.stripe.session.created", map[string]any{
		"sessionId": session.ID,
		"mode":      string(mode),
		"currency":  session.Currency,
	})

	expiresAt := p.clock().Add(30 * time.Minute)
	if session.ExpiresAt != 0 {
		expiresAt = time.Unix(session.ExpiresAt, 0).UTC()
	}

	return CheckoutSession{
		ID:          session.ID,
		Provider:    "stripe",
		RedirectURL: session.URL,
		ExpiresAt:   expiresAt,
	}, nil
}

func defaultString(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func max64(value, floor int64) int64 {
	if value > floor {
		return value
	}
	return floor
}
