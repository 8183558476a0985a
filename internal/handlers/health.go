package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"
)

// BuildInfo describes the running binary for the health endpoints.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// ReadinessCheck probes one dependency; a non-nil error marks it unready.
type ReadinessCheck func(ctx context.Context) error

// HealthHandlers serves the /healthz and /readyz endpoints.
type HealthHandlers struct {
	build  BuildInfo
	clock  func() time.Time
	checks map[string]ReadinessCheck
}

// HealthOption customises HealthHandlers construction.
type HealthOption func(*HealthHandlers)

// WithHealthBuildInfo attaches build metadata to health responses.
func WithHealthBuildInfo(info BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = info
	}
}

// WithHealthClock injects a deterministic clock for tests.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// WithReadinessCheck registers a named dependency probe for /readyz.
func WithReadinessCheck(name string, check ReadinessCheck) HealthOption {
	return func(h *HealthHandlers) {
		if name != "" && check != nil {
			h.checks[name] = check
		}
	}
}

// NewHealthHandlers constructs health handlers with the provided options.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{
		clock:  time.Now,
		checks: make(map[string]ReadinessCheck),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Healthz reports liveness and build metadata.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, _ *http.Request) {
	now := h.clock().UTC()
	payload := map[string]any{
		"status":    "ok",
		"timestamp": now.Format(time.RFC3339),
	}
	if h.build.Version != "" {
		payload["version"] = h.build.Version
	}
	if h.build.CommitSHA != "" {
		payload["commitSha"] = h.build.CommitSHA
	}
	if h.build.Environment != "" {
		payload["environment"] = h.build.Environment
	}
	if !h.build.StartedAt.IsZero() {
		payload["uptime"] = now.Sub(h.build.StartedAt).String()
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

// Readyz runs the registered dependency probes and reports 503 if any fail.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	checks := make(map[string]map[string]any, len(names))
	details := make([]string, 0)
	status := http.StatusOK

	for _, name := range names {
		started := h.clock()
		err := h.checks[name](ctx)
		entry := map[string]any{
			"status":  "ok",
			"latency": h.clock().Sub(started).String(),
		}
		if err != nil {
			status = http.StatusServiceUnavailable
			entry["status"] = "unavailable"
			entry["error"] = err.Error()
			details = append(details, name+": "+err.Error())
		}
		checks[name] = entry
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "unavailable"
	}
	writeJSONResponse(w, status, map[string]any{
		"status":  overall,
		"checks":  checks,
		"details": details,
	})
}
