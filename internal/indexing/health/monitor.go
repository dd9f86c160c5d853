package health

import (
	"sync"
	"time"

	"github.com/vietddude/reconciler/internal/core/cursor"
	"github.com/vietddude/reconciler/internal/indexing/backfill"
	"github.com/vietddude/reconciler/internal/infra/rpc"
)

// StatusSource exposes the live scan status.
type StatusSource interface {
	Status() backfill.Status
}

// NodeSource exposes the RPC endpoint health.
type NodeSource interface {
	GetHealth() rpc.HealthStatus
}

// Monitor aggregates health status from the scanner, the cursor and the node.
type Monitor struct {
	job       string
	scan      StatusSource
	cursorMgr cursor.Manager
	node      NodeSource

	mu         sync.Mutex
	lastCheck  time.Time
	lastReport HealthReport
}

// NewMonitor creates a new health monitor. cursorMgr and node may be nil.
func NewMonitor(job string, scan StatusSource, cursorMgr cursor.Manager, node NodeSource) *Monitor {
	return &Monitor{
		job:       job,
		scan:      scan,
		cursorMgr: cursorMgr,
		node:      node,
	}
}

// CheckHealth builds a report. Reports are cached for one second.
func (m *Monitor) CheckHealth() HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	if time.Since(m.lastCheck) < time.Second {
		return m.lastReport
	}

	scan := m.scan.Status()
	report := HealthReport{
		SystemStatus: StatusHealthy,
		Job:          m.job,
		Scan:         scan,
		StateDetail:  cursor.StateDescription(scan.State),
		CheckedAt:    time.Now(),
	}

	if m.cursorMgr != nil {
		report.BlocksPerSecond = m.cursorMgr.GetMetrics().BlocksPerSecond
	}

	if m.node != nil {
		h := m.node.GetHealth()
		report.Node = &NodeHealth{
			Available:     h.Available,
			LatencyMS:     h.Latency.Milliseconds(),
			ErrorRate:     h.ErrorRate,
			LastSuccessAt: h.LastSuccessAt,
			LastFailureAt: h.LastFailureAt,
		}
	}

	// Evaluate status
	switch {
	case report.Scan.Error != "":
		report.SystemStatus = StatusCritical
	case report.Node != nil && (!report.Node.Available || report.Node.ErrorRate > 0.5):
		report.SystemStatus = StatusDegraded
	}

	m.lastCheck = time.Now()
	m.lastReport = report
	return report
}
