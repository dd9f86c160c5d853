package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/reconciler/internal/core/domain"
	"github.com/vietddude/reconciler/internal/infra/storage"
)

// CheckpointRepo implements storage.CheckpointRepository using Redis.
type CheckpointRepo struct {
	rdb *redis.Client
}

// NewCheckpointRepo creates a new Redis-backed checkpoint repository.
func NewCheckpointRepo(client *Client) *CheckpointRepo {
	return &CheckpointRepo{rdb: client.rdb}
}

// Get reads the checkpoint of a job.
func (r *CheckpointRepo) Get(ctx context.Context, jobID string) (*domain.Checkpoint, error) {
	val, err := r.rdb.Get(ctx, checkpointKey(jobID)).Result()
	if err == redis.Nil {
		return nil, storage.ErrCheckpointNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get failed: %w", err)
	}

	block, err := parseCheckpoint(val)
	if err != nil {
		return nil, err
	}
	return &domain.Checkpoint{JobID: jobID, Block: block}, nil
}

// Save overwrites the checkpoint of cp.JobID. Checkpoints never expire.
func (r *CheckpointRepo) Save(ctx context.Context, cp *domain.Checkpoint) error {
	if err := r.rdb.Set(ctx, checkpointKey(cp.JobID), formatCheckpoint(cp.Block), 0).Err(); err != nil {
		return fmt.Errorf("set failed: %w", err)
	}
	return nil
}

// The value uses the same 0x-hex text as the file backend.
func formatCheckpoint(block uint64) string {
	return "0x" + strconv.FormatUint(block, 16)
}

func parseCheckpoint(val string) (uint64, error) {
	if !strings.HasPrefix(val, "0x") {
		return 0, fmt.Errorf("invalid checkpoint format: %s", val)
	}
	block, err := strconv.ParseUint(val[2:], 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid checkpoint: %w", err)
	}
	return block, nil
}

