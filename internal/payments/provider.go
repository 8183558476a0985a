package payments

import (
	"context"
	"time"
)

// RecurringInterval enumerates the billing cadences a checkout line may carry.
type RecurringInterval string

const (
	// RecurringNone marks a one-off line with no subscription component.
	RecurringNone RecurringInterval = ""
	// RecurringWeekly bills the line every week.
	RecurringWeekly RecurringInterval = "week"
	// RecurringMonthly bills the line every month.
	RecurringMonthly RecurringInterval = "month"
)

// CheckoutLineItem describes a single line item to include in a checkout session.
type CheckoutLineItem struct {
	Name          string
	Description   string
	Quantity      int64
	Amount        int64
	Currency      string
	Interval      RecurringInterval
	IntervalCount int64
}

// CheckoutSessionRequest captures the payload required to create a checkout session.
type CheckoutSessionRequest struct {
	Currency       string
	CustomerEmail  string
	SuccessURL     string
	CancelURL      string
	Metadata       map[string]string
	IdempotencyKey string
	Items          []CheckoutLineItem
	AllowPromotion bool
}

// CheckoutSession represents the PSP session returned to the client.
type CheckoutSession struct {
	ID          string
	Provider    string
	RedirectURL string
	ExpiresAt   time.Time
}

// WebhookEvent is a verified PSP notification, normalised across providers.
type WebhookEvent struct {
	ID          string
	Type        string
	CheckoutID  string
	AmountTotal int64
	Currency    string
	Metadata    map[string]string
}

// Provider defines the contract for PSP adapters to implement.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error)
}

// WebhookVerifier authenticates a raw webhook payload against its signature
// header and decodes it into a normalised event.
type WebhookVerifier interface {
	VerifyWebhook(payload []byte, signature string) (WebhookEvent, error)
}
