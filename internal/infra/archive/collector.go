package archive

import (
	"context"
	"sync"

	"github.com/vietddude/reconciler/internal/core/domain"
	"github.com/vietddude/reconciler/internal/infra/storage"
)

// Collector forwards attempts to the wrapped repository and keeps the ones
// that were stored, so the run can be archived without reading the backend.
type Collector struct {
	next storage.AttemptRepository

	mu       sync.Mutex
	attempts []*domain.FulfillmentAttempt
}

// NewCollector wraps next.
func NewCollector(next storage.AttemptRepository) *Collector {
	return &Collector{next: next}
}

func (c *Collector) Append(ctx context.Context, a *domain.FulfillmentAttempt) error {
	if err := c.next.Append(ctx, a); err != nil {
		return err
	}
	c.mu.Lock()
	c.attempts = append(c.attempts, a)
	c.mu.Unlock()
	return nil
}

// Attempts returns the attempts stored so far in append order.
func (c *Collector) Attempts() []*domain.FulfillmentAttempt {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*domain.FulfillmentAttempt, len(c.attempts))
	copy(out, c.attempts)
	return out
}
