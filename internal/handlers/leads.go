package handlers

import (
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/tidynest/api/internal/domain"
	"github.com/tidynest/api/internal/platform/httpx"
	"github.com/tidynest/api/internal/services"
)

const (
	maxLeadBodySize = 8 * 1024
	leadRateLimit   = 5
	leadRateWindow  = time.Minute
)

// LeadHandlers exposes the contact-form capture endpoint. Submissions are
// rate limited per client IP.
type LeadHandlers struct {
	leads   services.LeadService
	limiter rateLimiter
}

// LeadOption customises LeadHandlers construction.
type LeadOption func(*LeadHandlers)

// WithLeadRateLimit overrides the per-client submission budget.
func WithLeadRateLimit(perMinute int) LeadOption {
	return func(h *LeadHandlers) {
		if perMinute > 0 {
			h.limiter = newWindowRateLimiter(perMinute, leadRateWindow, nil)
		}
	}
}

// NewLeadHandlers constructs handlers over the lead service.
func NewLeadHandlers(leads services.LeadService, opts ...LeadOption) *LeadHandlers {
	h := &LeadHandlers{
		leads:   leads,
		limiter: newWindowRateLimiter(leadRateLimit, leadRateWindow, nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes wires the /leads endpoints onto the provided router.
func (h *LeadHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.submitLead)
}

type leadRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Message string `json:"message"`
	Source  string `json:"source"`
}

func (h *LeadHandlers) submitLead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.leads == nil {
		httpx.WriteError(ctx, w, httpx.NewError("lead_service_unavailable", "lead service is unavailable", http.StatusServiceUnavailable))
		return
	}
	if h.limiter != nil && !h.limiter.Allow(limiterKey(r.RemoteAddr)) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many submissions; try again later", http.StatusTooManyRequests))
		return
	}

	var req leadRequest
	if err := decodeJSONBody(r, maxLeadBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	err := h.leads.SubmitLead(ctx, domain.Lead{
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Message: req.Message,
		Source:  req.Source,
	})
	if err != nil {
		if errors.Is(err, services.ErrLeadInvalidInput) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected lead failure", http.StatusInternalServerError))
		return
	}

	writeJSONResponse(w, http.StatusAccepted, map[string]any{"accepted": true})
}

// limiterKey reduces a remote address to its host so reconnecting clients
// share a window. RealIP leaves proxied addresses portless already; direct
// connections carry ip:port.
func limiterKey(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}
