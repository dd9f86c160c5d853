// Package health reports the scan status over HTTP next to the Prometheus metrics.
package health

import (
	"time"

	"github.com/vietddude/reconciler/internal/indexing/backfill"
)

// SystemStatus represents the overall health state of the reconciler.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// NodeHealth summarises the RPC endpoint as seen by the provider.
type NodeHealth struct {
	Available     bool      `json:"available"`
	LatencyMS     int64     `json:"latency_ms"`
	ErrorRate     float64   `json:"error_rate"`
	LastSuccessAt time.Time `json:"last_success_at"`
	LastFailureAt time.Time `json:"last_failure_at"`
}

// HealthReport contains the full health report of one job.
type HealthReport struct {
	SystemStatus    SystemStatus    `json:"system_status"`
	Job             string          `json:"job"`
	Scan            backfill.Status `json:"scan"`
	StateDetail     string          `json:"state_detail"`
	Node            *NodeHealth     `json:"node,omitempty"`
	BlocksPerSecond float64         `json:"blocks_per_second"`
	CheckedAt       time.Time       `json:"checked_at"`
}
