package cursor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vietddude/reconciler/internal/core/domain"
	"github.com/vietddude/reconciler/internal/indexing/metrics"
	"github.com/vietddude/reconciler/internal/infra/storage"
)

var (
	// ErrCheckpointRegression is returned when Advance would move the checkpoint backwards.
	ErrCheckpointRegression = errors.New("checkpoint regression")

	// ErrScanDone is returned when advancing a finished scan.
	ErrScanDone = errors.New("scan is done")
)

// Manager tracks the scan state and checkpoint of one job.
type Manager interface {
	// Load returns the persisted checkpoint, or nil if the job has none.
	Load(ctx context.Context) (*domain.Checkpoint, error)

	// Advance persists block as the new checkpoint. The in-memory position
	// moves even when the write fails.
	Advance(ctx context.Context, block uint64) error

	// Current returns the last block passed to Advance.
	Current() uint64

	// State returns the current scan state.
	State() State

	// SetState transitions to a new state (validates transition).
	SetState(newState State, reason string) error

	// GetMetrics returns checkpoint throughput and recent transitions.
	GetMetrics() Metrics

	// SetStateChangeCallback registers callback for state changes.
	SetStateChangeCallback(fn func(jobID string, t Transition))
}

// DefaultManager implements Manager with state machine enforcement.
type DefaultManager struct {
	repo  storage.CheckpointRepository
	jobID string

	mu            sync.RWMutex
	state         State
	current       uint64
	stateCallback func(string, Transition)
	collector     *MetricsCollector
}

// Load returns the persisted checkpoint, or nil if the job has none.
func (m *DefaultManager) Load(ctx context.Context) (*domain.Checkpoint, error) {
	cp, err := m.repo.Get(ctx, m.jobID)
	if errors.Is(err, storage.ErrCheckpointNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return cp, nil
}

// Advance moves the checkpoint forward and persists it.
func (m *DefaultManager) Advance(ctx context.Context, block uint64) error {
	m.mu.Lock()
	if m.state == domain.ScanStateDone {
		m.mu.Unlock()
		return ErrScanDone
	}
	if block < m.current {
		current := m.current
		m.mu.Unlock()
		return fmt.Errorf("%w: at %d, got %d", ErrCheckpointRegression, current, block)
	}
	m.current = block
	m.collector.RecordBlock(block, time.Now())
	m.mu.Unlock()

	metrics.CheckpointBlock.WithLabelValues(m.jobID).Set(float64(block))

	cp := &domain.Checkpoint{JobID: m.jobID, Block: block, UpdatedAt: time.Now()}
	if err := m.repo.Save(ctx, cp); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// Current returns the last block passed to Advance.
func (m *DefaultManager) Current() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// State returns the current scan state.
func (m *DefaultManager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// SetState transitions to a new state.
func (m *DefaultManager) SetState(newState State, reason string) error {
	m.mu.Lock()
	if !CanTransition(m.state, newState) {
		from := m.state
		m.mu.Unlock()
		return fmt.Errorf(
			"%w: cannot transition from %s to %s",
			ErrInvalidTransition,
			from,
			newState,
		)
	}

	transition := NewTransition(m.state, newState, reason)
	m.state = newState
	if transition.From != transition.To {
		m.collector.RecordTransition(transition)
	}
	callback := m.stateCallback
	m.mu.Unlock()

	// Self-transitions happen once per range or event; only report changes.
	if callback != nil && transition.From != transition.To {
		callback(m.jobID, transition)
	}
	return nil
}

// GetMetrics returns performance metrics for the job.
func (m *DefaultManager) GetMetrics() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collector.GetMetrics()
}

// SetStateChangeCallback registers a callback for state changes.
func (m *DefaultManager) SetStateChangeCallback(fn func(jobID string, t Transition)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stateCallback = fn
}
