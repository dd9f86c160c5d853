package redis

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/vietddude/reconciler/internal/core/domain"
)

// AttemptRepo implements storage.AttemptRepository as a Redis list per job.
type AttemptRepo struct {
	rdb *redis.Client
}

// NewAttemptRepo creates a new Redis-backed attempt log.
func NewAttemptRepo(client *Client) *AttemptRepo {
	return &AttemptRepo{rdb: client.rdb}
}

// Append pushes the attempt to the tail of the job's list.
func (r *AttemptRepo) Append(ctx context.Context, a *domain.FulfillmentAttempt) error {
	data, err := json.Marshal(a.Record())
	if err != nil {
		return fmt.Errorf("failed to marshal attempt: %w", err)
	}
	if err := r.rdb.RPush(ctx, attemptsKey(a.JobID), data).Err(); err != nil {
		return fmt.Errorf("rpush failed: %w", err)
	}
	return nil
}

