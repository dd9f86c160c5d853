package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/reconciler/internal/core/domain"
	"github.com/vietddude/reconciler/internal/infra/storage"
)

// CheckpointRepo implements storage.CheckpointRepository using PostgreSQL.
type CheckpointRepo struct {
	db *DB
}

// NewCheckpointRepo creates a new PostgreSQL checkpoint repository.
func NewCheckpointRepo(db *DB) *CheckpointRepo {
	return &CheckpointRepo{db: db}
}

type checkpointRow struct {
	JobID       string    `db:"job_id"`
	BlockNumber int64     `db:"block_number"`
	UpdatedAt   time.Time `db:"updated_at"`
}

const getCheckpoint = `SELECT job_id, block_number, updated_at FROM checkpoints WHERE job_id = $1`

// Get retrieves the checkpoint of a job.
func (r *CheckpointRepo) Get(ctx context.Context, jobID string) (*domain.Checkpoint, error) {
	var row checkpointRow
	err := r.db.GetContext(ctx, &row, getCheckpoint, jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrCheckpointNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}

	return &domain.Checkpoint{
		JobID:     row.JobID,
		Block:     uint64(row.BlockNumber),
		UpdatedAt: row.UpdatedAt,
	}, nil
}

const upsertCheckpoint = `
INSERT INTO checkpoints (job_id, block_number, updated_at)
VALUES (:job_id, :block_number, :updated_at)
ON CONFLICT (job_id) DO UPDATE
SET block_number = EXCLUDED.block_number,
    updated_at   = EXCLUDED.updated_at`

// Save upserts the checkpoint of cp.JobID.
func (r *CheckpointRepo) Save(ctx context.Context, cp *domain.Checkpoint) error {
	updatedAt := cp.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	_, err := r.db.NamedExecContext(ctx, upsertCheckpoint, checkpointRow{
		JobID:       cp.JobID,
		BlockNumber: int64(cp.Block),
		UpdatedAt:   updatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}
