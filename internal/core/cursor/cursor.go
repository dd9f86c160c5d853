// Package cursor tracks the scan position of a reconciliation job.
//
// # Purpose
//
// The cursor remembers how far the scanner got:
//   - Checkpoint: the upper bound of the last block range whose events were dispatched
//   - State: where the scanner is in its loop (idle, scanning, dispatching, done)
//
// # Key Features
//
// State Machine - Only allows valid transitions:
//
//	IDLE → SCANNING → DISPATCHING → SCANNING → DONE (valid)
//	DONE → SCANNING (invalid - a finished scan never restarts)
//
// Monotonic Checkpoint - Advance(1100) after Advance(1200) returns
// ErrCheckpointRegression.
//
// # Quick Start
//
//	manager := cursor.NewManager(checkpointRepo, "4c7b7ffb66b344fbaa64995af81e355a")
//
//	manager.SetState(cursor.StateScanning, "range [1000, 1100)")
//	manager.SetState(cursor.StateDispatching, "request 0xaa...")
//	manager.Advance(ctx, 1100) // writes 0x44c
//
//	manager.SetStateChangeCallback(func(jobID string, t cursor.Transition) {
//	    slog.Info("Scan state changed", "job", jobID, "from", t.From, "to", t.To)
//	})
//
// # Package Structure
//
//   - state.go   - State machine definitions and valid transitions
//   - manager.go - Manager implementation over a CheckpointRepository
//   - metrics.go - Checkpoint throughput and state history
package cursor

import (
	"github.com/vietddude/reconciler/internal/core/domain"
	"github.com/vietddude/reconciler/internal/infra/storage"
)

// =============================================================================
// Re-exported types from domain package
// =============================================================================

// Checkpoint is the persisted progress of a job.
type Checkpoint = domain.Checkpoint

// State constants re-exported for convenience.
const (
	StateIdle        = domain.ScanStateIdle
	StateScanning    = domain.ScanStateScanning
	StateDispatching = domain.ScanStateDispatching
	StateDone        = domain.ScanStateDone
)

// =============================================================================
// Constructor functions
// =============================================================================

// NewManager creates a cursor manager for one job, starting idle.
func NewManager(repo storage.CheckpointRepository, jobID string) *DefaultManager {
	return &DefaultManager{
		repo:      repo,
		jobID:     jobID,
		state:     StateIdle,
		collector: NewMetricsCollector(100),
	}
}

// NewMetricsCollector creates a new metrics collector with the given window size.
func NewMetricsCollector(windowSize int) *MetricsCollector {
	if windowSize <= 0 {
		windowSize = 100
	}
	return &MetricsCollector{
		windowSize:  windowSize,
		blockTimes:  make([]blockRecord, 0, windowSize),
		transitions: make([]Transition, 0, 10),
	}
}
