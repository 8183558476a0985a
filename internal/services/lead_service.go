package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/microcosm-cc/bluemonday"

	domain "github.com/tidynest/api/internal/domain"
)

// ErrLeadInvalidInput signals a lead missing its required contact fields.
var ErrLeadInvalidInput = errors.New("lead: invalid input")

// LeadForwarder sanitizes captured leads and forwards them to the marketing
// webhook. Delivery failures are logged and swallowed; a contact form must
// never error because the downstream sheet is unreachable.
type LeadForwarder struct {
	client     *resty.Client
	webhookURL string
	policy     *bluemonday.Policy
	clock      func() time.Time
	logger     func(context.Context, string, map[string]any)
}

// LeadForwarderDeps configures NewLeadForwarder.
type LeadForwarderDeps struct {
	// WebhookURL is the Google Apps Script endpoint receiving the lead rows.
	WebhookURL string
	Timeout    time.Duration
	Client     *resty.Client
	Clock      func() time.Time
	Logger     func(context.Context, string, map[string]any)
}

type leadPayload struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone,omitempty"`
	Message     string `json:"message,omitempty"`
	Source      string `json:"source,omitempty"`
	SubmittedAt string `json:"submittedAt"`
}

// NewLeadForwarder validates configuration and constructs the forwarder.
func NewLeadForwarder(deps LeadForwarderDeps) (*LeadForwarder, error) {
	url := strings.TrimSpace(deps.WebhookURL)
	if url == "" {
		return nil, errors.New("lead forwarder: webhook url is required")
	}
	client := deps.Client
	if client == nil {
		timeout := deps.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		// Delivery is single-shot: a failed POST is logged, never retried.
		client = resty.New().
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &LeadForwarder{
		client:     client,
		webhookURL: url,
		policy:     bluemonday.StrictPolicy(),
		clock:      func() time.Time { return clock().UTC() },
		logger:     logger,
	}, nil
}

// SubmitLead validates, sanitizes, and forwards the lead. The forward runs
// synchronously so callers and tests observe the outcome, but delivery errors
// only reach the log.
func (s *LeadForwarder) SubmitLead(ctx context.Context, lead domain.Lead) error {
	sanitized, err := s.sanitize(lead)
	if err != nil {
		return err
	}

	payload := leadPayload{
		Name:        sanitized.Name,
		Email:       sanitized.Email,
		Phone:       sanitized.Phone,
		Message:     sanitized.Message,
		Source:      sanitized.Source,
		SubmittedAt: s.clock().Format(time.RFC3339),
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(payload).
		Post(s.webhookURL)
	if err != nil {
		s.logger(ctx, "lead.delivery_failed", map[string]any{
			"email": sanitized.Email,
			"error": err.Error(),
		})
		return nil
	}
	if resp.IsError() {
		s.logger(ctx, "lead.delivery_rejected", map[string]any{
			"email":  sanitized.Email,
			"status": resp.StatusCode(),
		})
		return nil
	}

	s.logger(ctx, "lead.forwarded", map[string]any{
		"email":  sanitized.Email,
		"source": sanitized.Source,
	})
	return nil
}

func (s *LeadForwarder) sanitize(lead domain.Lead) (domain.Lead, error) {
	out := domain.Lead{
		Name:    strings.TrimSpace(s.policy.Sanitize(lead.Name)),
		Email:   strings.TrimSpace(lead.Email),
		Phone:   strings.TrimSpace(s.policy.Sanitize(lead.Phone)),
		Message: strings.TrimSpace(s.policy.Sanitize(lead.Message)),
		Source:  strings.TrimSpace(s.policy.Sanitize(lead.Source)),
	}
	if out.Name == "" {
		return domain.Lead{}, fmt.Errorf("%w: name is required", ErrLeadInvalidInput)
	}
	if out.Email == "" {
		return domain.Lead{}, fmt.Errorf("%w: email is required", ErrLeadInvalidInput)
	}
	if _, err := mail.ParseAddress(out.Email); err != nil {
		return domain.Lead{}, fmt.Errorf("%w: email is invalid", ErrLeadInvalidInput)
	}
	return out, nil
}
