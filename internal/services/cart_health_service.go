package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	domain "github.com/tidynest/api/internal/domain"
)

// ErrCartHealthInvalidInput signals a missing session id on an analyze call.
var ErrCartHealthInvalidInput = errors.New("cart health: invalid input")

const healthReportTTL = 5 * time.Minute

// Threshold constants for the advisory metrics. These are configuration
// values, not a validated model.
const (
	healthSizeWarn      = 10
	healthSizeCritical  = 15
	healthValueWarn     = 100000
	healthValueCritical = 200000
	healthBulkQuantity  = 5
	healthBulkCritical  = 3
	healthServiceWarn   = 2
	healthServiceCrit   = 3
	healthAddressWarn   = 1
	healthAddressCrit   = 2
)

// CartReader is the read-only slice of CartService the analyzer needs.
type CartReader interface {
	GetCart(ctx context.Context, sessionID string) (domain.Cart, error)
}

// CartHealthAnalyzer scores cart contents against fixed heuristics and caches
// the report per session. Cache entries expire by wall clock only, never by
// content, so a report can run briefly stale after a rapid edit. That is
// acceptable for an advisory feature.
type CartHealthAnalyzer struct {
	carts CartReader
	clock func() time.Time

	mu    sync.RWMutex
	cache map[string]cachedHealthReport
}

type cachedHealthReport struct {
	report    domain.CartHealthReport
	expiresAt time.Time
}

// CartHealthAnalyzerDeps wires the cart reader and clock.
type CartHealthAnalyzerDeps struct {
	Carts CartReader
	Clock func() time.Time
}

// NewCartHealthAnalyzer constructs the analyzer.
func NewCartHealthAnalyzer(deps CartHealthAnalyzerDeps) (*CartHealthAnalyzer, error) {
	if deps.Carts == nil {
		return nil, errors.New("cart health analyzer: cart service is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &CartHealthAnalyzer{
		carts: deps.Carts,
		clock: func() time.Time { return clock().UTC() },
		cache: make(map[string]cachedHealthReport),
	}, nil
}

// Analyze produces the advisory report for the session's cart, serving a
// cached copy when one is still inside its TTL.
func (a *CartHealthAnalyzer) Analyze(ctx context.Context, sessionID string) (domain.CartHealthReport, error) {
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return domain.CartHealthReport{}, fmt.Errorf("%w: session id is required", ErrCartHealthInvalidInput)
	}

	now := a.clock()
	a.mu.RLock()
	cached, ok := a.cache[id]
	a.mu.RUnlock()
	if ok && now.Before(cached.expiresAt) {
		return cached.report, nil
	}

	cart, err := a.carts.GetCart(ctx, id)
	if err != nil {
		return domain.CartHealthReport{}, err
	}
	report := analyzeItems(cart.Items, now)

	a.mu.Lock()
	a.cache[id] = cachedHealthReport{report: report, expiresAt: now.Add(healthReportTTL)}
	a.mu.Unlock()

	return report, nil
}

// analyzeItems is the pure scoring core.
func analyzeItems(items []domain.CartItem, now time.Time) domain.CartHealthReport {
	var (
		totalQuantity int
		totalValue    int64
		bulkLines     int
	)
	serviceTypes := make(map[string]struct{})
	addresses := make(map[string]struct{})

	for _, item := range items {
		totalQuantity += item.Quantity
		totalValue += item.UnitPrice * int64(item.Quantity)
		if item.Quantity > healthBulkQuantity {
			bulkLines++
		}
		if st := strings.ToLower(strings.TrimSpace(item.ServiceType)); st != "" {
			serviceTypes[st] = struct{}{}
		}
		if addr := strings.ToLower(strings.TrimSpace(item.Address)); addr != "" {
			addresses[addr] = struct{}{}
		}
	}

	metrics := []domain.HealthMetric{
		sizeMetric(totalQuantity),
		valueMetric(totalValue),
		bulkMetric(bulkLines),
		serviceSpreadMetric(len(serviceTypes)),
		addressSpreadMetric(len(addresses)),
	}

	var healthy, warning, critical int
	suggestionSet := make(map[string]struct{})
	suggestions := make([]string, 0, len(metrics))
	for _, metric := range metrics {
		switch metric.Status {
		case domain.HealthStatusHealthy:
			healthy++
		case domain.HealthStatusWarning:
			warning++
		default:
			critical++
		}
		if metric.Status != domain.HealthStatusHealthy && metric.Detail != "" {
			if _, seen := suggestionSet[metric.Detail]; !seen {
				suggestionSet[metric.Detail] = struct{}{}
				suggestions = append(suggestions, metric.Detail)
			}
		}
	}

	total := len(metrics)
	score := int(math.Round(float64(healthy*100+warning*50) / float64(total)))

	overall := domain.HealthStatusHealthy
	switch {
	case critical > 0:
		overall = domain.HealthStatusCritical
	case warning*3 > total:
		overall = domain.HealthStatusWarning
	}

	return domain.CartHealthReport{
		Overall:     overall,
		Score:       score,
		Metrics:     metrics,
		Suggestions: suggestions,
		GeneratedAt: now,
	}
}

func sizeMetric(totalQuantity int) domain.HealthMetric {
	metric := domain.HealthMetric{
		Name:   "cart_size",
		Status: domain.HealthStatusHealthy,
		Value:  fmt.Sprintf("%d", totalQuantity),
	}
	switch {
	case totalQuantity > healthSizeCritical:
		metric.Status = domain.HealthStatusCritical
		metric.Detail = "Your cart is very large. Consider splitting it into separate bookings."
	case totalQuantity > healthSizeWarn:
		metric.Status = domain.HealthStatusWarning
		metric.Detail = "Your cart is getting large. Review the items before checkout."
	}
	return metric
}

func valueMetric(totalValue int64) domain.HealthMetric {
	metric := domain.HealthMetric{
		Name:   "cart_value",
		Status: domain.HealthStatusHealthy,
		Value:  fmt.Sprintf("%d", totalValue),
	}
	switch {
	case totalValue >= healthValueCritical:
		metric.Status = domain.HealthStatusCritical
		metric.Detail = "This is a very high-value order. Contact us for a custom quote."
	case totalValue >= healthValueWarn:
		metric.Status = domain.HealthStatusWarning
		metric.Detail = "High order value. Double-check quantities before paying."
	}
	return metric
}

func bulkMetric(bulkLines int) domain.HealthMetric {
	metric := domain.HealthMetric{
		Name:   "bulk_lines",
		Status: domain.HealthStatusHealthy,
		Value:  fmt.Sprintf("%d", bulkLines),
	}
	switch {
	case bulkLines >= healthBulkCritical:
		metric.Status = domain.HealthStatusCritical
		metric.Detail = "Several lines have unusually high quantities. Verify they are intentional."
	case bulkLines > 0:
		metric.Status = domain.HealthStatusWarning
		metric.Detail = "A line has a high quantity. Verify it is intentional."
	}
	return metric
}

func serviceSpreadMetric(distinct int) domain.HealthMetric {
	metric := domain.HealthMetric{
		Name:   "service_spread",
		Status: domain.HealthStatusHealthy,
		Value:  fmt.Sprintf("%d", distinct),
	}
	switch {
	case distinct > healthServiceCrit:
		metric.Status = domain.HealthStatusCritical
		metric.Detail = "Many different service types in one order. Scheduling may take longer."
	case distinct > healthServiceWarn:
		metric.Status = domain.HealthStatusWarning
		metric.Detail = "Mixed service types may need separate crews."
	}
	return metric
}

func addressSpreadMetric(distinct int) domain.HealthMetric {
	metric := domain.HealthMetric{
		Name:   "address_spread",
		Status: domain.HealthStatusHealthy,
		Value:  fmt.Sprintf("%d", distinct),
	}
	switch {
	case distinct > healthAddressCrit:
		metric.Status = domain.HealthStatusCritical
		metric.Detail = "Items span several addresses. Each address is billed as its own visit."
	case distinct > healthAddressWarn:
		metric.Status = domain.HealthStatusWarning
		metric.Detail = "Items span more than one address. Confirm the service locations."
	}
	return metric
}
