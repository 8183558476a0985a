package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/tidynest/api/internal/domain"
	"github.com/tidynest/api/internal/payments"
)

var (
	// ErrCheckoutInvalidInput signals malformed checkout commands.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutCartNotReady signals a checkout attempt against an empty cart.
	ErrCheckoutCartNotReady = errors.New("checkout: cart is empty")
	// ErrCheckoutPaymentFailed signals a provider failure while creating the session.
	ErrCheckoutPaymentFailed = errors.New("checkout: payment provider failed")
)

const checkoutCurrency = "USD"

// CheckoutOrchestrator assembles cart line items into provider checkout
// sessions and reacts to completion webhooks. The cart is left untouched on
// provider failure so the customer can retry.
type CheckoutOrchestrator struct {
	carts     CartService
	provider  payments.Provider
	publisher OrderEventPublisher
	clock     func() time.Time
	logger    func(context.Context, string, map[string]any)
}

// CheckoutOrchestratorDeps carries the collaborators for NewCheckoutOrchestrator.
type CheckoutOrchestratorDeps struct {
	Carts     CartService
	Provider  payments.Provider
	Publisher OrderEventPublisher
	Clock     func() time.Time
	Logger    func(context.Context, string, map[string]any)
}

// NewCheckoutOrchestrator validates dependencies and constructs the service.
func NewCheckoutOrchestrator(deps CheckoutOrchestratorDeps) (*CheckoutOrchestrator, error) {
	if deps.Carts == nil {
		return nil, errors.New("checkout service: cart service is required")
	}
	if deps.Provider == nil {
		return nil, errors.New("checkout service: payment provider is required")
	}
	if deps.Publisher == nil {
		return nil, errors.New("checkout service: event publisher is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &CheckoutOrchestrator{
		carts:     deps.Carts,
		provider:  deps.Provider,
		publisher: deps.Publisher,
		clock:     func() time.Time { return clock().UTC() },
		logger:    logger,
	}, nil
}

// CreateCheckoutSession builds a provider session from the session's cart.
func (s *CheckoutOrchestrator) CreateCheckoutSession(ctx context.Context, cmd CreateCheckoutSessionCommand) (CheckoutSession, error) {
	id := strings.TrimSpace(cmd.SessionID)
	if id == "" {
		return CheckoutSession{}, fmt.Errorf("%w: session id is required", ErrCheckoutInvalidInput)
	}
	if strings.TrimSpace(cmd.SuccessURL) == "" || strings.TrimSpace(cmd.CancelURL) == "" {
		return CheckoutSession{}, fmt.Errorf("%w: success and cancel urls are required", ErrCheckoutInvalidInput)
	}

	cart, err := s.carts.GetCart(ctx, id)
	if err != nil {
		return CheckoutSession{}, err
	}
	if len(cart.Items) == 0 {
		return CheckoutSession{}, ErrCheckoutCartNotReady
	}

	metadata := make(map[string]string, len(cmd.Metadata)+1)
	for k, v := range cmd.Metadata {
		metadata[k] = v
	}
	metadata["clientSessionId"] = id

	request := payments.CheckoutSessionRequest{
		Currency:       checkoutCurrency,
		CustomerEmail:  resolveCustomerEmail(cmd, cart),
		SuccessURL:     cmd.SuccessURL,
		CancelURL:      cmd.CancelURL,
		Metadata:       metadata,
		IdempotencyKey: checkoutIdempotencyKey(id, cart.UpdatedAt),
		Items:          buildCheckoutLineItems(cart.Items),
	}

	session, err := s.provider.CreateCheckoutSession(ctx, request)
	if err != nil {
		s.logger(ctx, "checkout.session_failed", map[string]any{
			"sessionId": id,
			"error":     err.Error(),
		})
		return CheckoutSession{}, fmt.Errorf("%w: %v", ErrCheckoutPaymentFailed, err)
	}

	s.logger(ctx, "checkout.session_created", map[string]any{
		"sessionId":  id,
		"checkoutId": session.ID,
		"items":      len(cart.Items),
	})

	return CheckoutSession{
		SessionID:   session.ID,
		Provider:    session.Provider,
		RedirectURL: session.RedirectURL,
		ExpiresAt:   session.ExpiresAt,
	}, nil
}

// CompleteCheckout destroys the paid cart and publishes the order event. A
// publish failure is returned so the webhook delivery is retried.
func (s *CheckoutOrchestrator) CompleteCheckout(ctx context.Context, evt CompletedCheckout) error {
	id := strings.TrimSpace(evt.ClientSessionID)
	if id == "" {
		return fmt.Errorf("%w: client session id is required", ErrCheckoutInvalidInput)
	}

	if _, err := s.carts.ClearCart(ctx, id); err != nil {
		return err
	}

	event := domain.OrderEvent{
		Type:        "order.completed",
		SessionID:   id,
		CheckoutID:  evt.CheckoutID,
		AmountTotal: evt.AmountTotal,
		Currency:    evt.Currency,
		OccurredAt:  s.clock(),
	}
	messageID, err := s.publisher.PublishOrderEvent(ctx, event)
	if err != nil {
		s.logger(ctx, "checkout.event_publish_failed", map[string]any{
			"sessionId":  id,
			"checkoutId": evt.CheckoutID,
			"error":      err.Error(),
		})
		return fmt.Errorf("checkout: publish order event: %w", err)
	}

	s.logger(ctx, "checkout.completed", map[string]any{
		"sessionId":  id,
		"checkoutId": evt.CheckoutID,
		"messageId":  messageID,
		"amount":     evt.AmountTotal,
	})
	return nil
}

func buildCheckoutLineItems(items []domain.CartItem) []payments.CheckoutLineItem {
	lines := make([]payments.CheckoutLineItem, 0, len(items))
	for _, item := range items {
		line := payments.CheckoutLineItem{
			Name:        item.Name,
			Description: describeCartItem(item),
			Quantity:    int64(item.Quantity),
			Amount:      item.UnitPrice,
		}
		if item.Recurring {
			line.Interval, line.IntervalCount = recurringInterval(item.Frequency)
		}
		lines = append(lines, line)
	}
	return lines
}

// recurringInterval maps a booking cadence onto the provider's billing
// interval. Bi-weekly bookings bill every second week.
func recurringInterval(freq domain.Frequency) (payments.RecurringInterval, int64) {
	switch freq {
	case domain.FrequencyWeekly:
		return payments.RecurringWeekly, 1
	case domain.FrequencyBiWeekly:
		return payments.RecurringWeekly, 2
	case domain.FrequencyMonthly:
		return payments.RecurringMonthly, 1
	default:
		return payments.RecurringNone, 0
	}
}

func describeCartItem(item domain.CartItem) string {
	parts := make([]string, 0, 2)
	if item.Address != "" {
		parts = append(parts, item.Address)
	}
	if item.Frequency != "" && item.Frequency != domain.FrequencyOneTime {
		parts = append(parts, string(item.Frequency))
	}
	return strings.Join(parts, ", ")
}

func resolveCustomerEmail(cmd CreateCheckoutSessionCommand, cart domain.Cart) string {
	if email := strings.TrimSpace(cmd.CustomerEmail); email != "" {
		return email
	}
	if raw, ok := cart.Metadata["customerEmail"]; ok {
		if email, ok := raw.(string); ok {
			return strings.TrimSpace(email)
		}
	}
	return ""
}

// checkoutIdempotencyKey ties retries of the same cart state to one provider
// session.
func checkoutIdempotencyKey(sessionID string, updatedAt time.Time) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%d", sessionID, updatedAt.UnixNano()))
	return hex.EncodeToString(sum[:])[:32]
}
