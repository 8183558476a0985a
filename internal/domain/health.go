package domain

import "time"

// HealthStatus grades a single cart-health metric or the overall report.
type HealthStatus string

const (
	// HealthStatusHealthy means the metric is within its comfortable range.
	HealthStatusHealthy HealthStatus = "healthy"
	// HealthStatusWarning means the metric has crossed its soft threshold.
	HealthStatusWarning HealthStatus = "warning"
	// HealthStatusCritical means the metric has crossed its hard threshold.
	HealthStatusCritical HealthStatus = "critical"
)

// HealthMetric is one scored dimension of a cart-health report.
type HealthMetric struct {
	Name   string
	Status HealthStatus
	Value  string
	Detail string
}

// CartHealthReport is an advisory heuristic snapshot over cart contents.
// It is not a correctness or validity check.
type CartHealthReport struct {
	Overall     HealthStatus
	Score       int
	Metrics     []HealthMetric
	Suggestions []string
	GeneratedAt time.Time
}
