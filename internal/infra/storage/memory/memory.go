package memory

import (
	"context"
	"sync"

	"github.com/vietddude/reconciler/internal/core/domain"
	"github.com/vietddude/reconciler/internal/infra/storage"
)

type MemoryStorage struct {
	checkpoints map[string]*domain.Checkpoint
	attempts    []*domain.FulfillmentAttempt
	mu          sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		checkpoints: make(map[string]*domain.Checkpoint),
	}
}

// NewStore returns a storage.Store backed by a fresh MemoryStorage.
func NewStore() *storage.Store {
	s := NewMemoryStorage()
	return storage.NewStore(NewCheckpointRepo(s), NewAttemptRepo(s), nil)
}

// -----------------------------------------------------------------------------
// Checkpoint Repository
// -----------------------------------------------------------------------------

type CheckpointRepo struct {
	store *MemoryStorage
}

func NewCheckpointRepo(store *MemoryStorage) *CheckpointRepo {
	return &CheckpointRepo{store: store}
}

func (r *CheckpointRepo) Get(ctx context.Context, jobID string) (*domain.Checkpoint, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	cp, ok := r.store.checkpoints[jobID]
	if !ok {
		return nil, storage.ErrCheckpointNotFound
	}
	c := *cp
	return &c, nil
}

func (r *CheckpointRepo) Save(ctx context.Context, cp *domain.Checkpoint) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	c := *cp
	r.store.checkpoints[cp.JobID] = &c
	return nil
}

// -----------------------------------------------------------------------------
// Attempt Repository
// -----------------------------------------------------------------------------

type AttemptRepo struct {
	store *MemoryStorage
}

func NewAttemptRepo(store *MemoryStorage) *AttemptRepo {
	return &AttemptRepo{store: store}
}

func (r *AttemptRepo) Append(ctx context.Context, a *domain.FulfillmentAttempt) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	c := *a
	r.store.attempts = append(r.store.attempts, &c)
	return nil
}

// All returns a copy of every appended attempt in order.
func (r *AttemptRepo) All() []*domain.FulfillmentAttempt {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make([]*domain.FulfillmentAttempt, len(r.store.attempts))
	copy(out, r.store.attempts)
	return out
}
