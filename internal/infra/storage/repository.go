package storage

import (
	"context"
	"errors"

	"github.com/vietddude/reconciler/internal/core/domain"
)

var (
	// ErrCheckpointNotFound is returned when a job has no checkpoint yet
	ErrCheckpointNotFound = errors.New("checkpoint not found")
)

// CheckpointRepository handles per-job progress checkpoints
type CheckpointRepository interface {
	// Get retrieves the checkpoint for a job
	Get(ctx context.Context, jobID string) (*domain.Checkpoint, error)

	// Save overwrites the checkpoint for cp.JobID
	Save(ctx context.Context, cp *domain.Checkpoint) error
}

// AttemptRepository is the append-only log of fulfillment attempts
type AttemptRepository interface {
	// Append adds one attempt; entries are never updated or removed
	Append(ctx context.Context, attempt *domain.FulfillmentAttempt) error
}

// Store bundles the repositories of one backend.
type Store struct {
	Checkpoints CheckpointRepository
	Attempts    AttemptRepository

	closeFn func() error
}

// NewStore creates a store. closeFn may be nil.
func NewStore(checkpoints CheckpointRepository, attempts AttemptRepository, closeFn func() error) *Store {
	return &Store{Checkpoints: checkpoints, Attempts: attempts, closeFn: closeFn}
}

// Close releases the backend connection, if any.
func (s *Store) Close() error {
	if s.closeFn == nil {
		return nil
	}
	return s.closeFn()
}
