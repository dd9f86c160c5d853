package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/vietddude/reconciler/internal/core/domain"
)

// AttemptRepo implements storage.AttemptRepository using PostgreSQL.
type AttemptRepo struct {
	db *DB
}

// NewAttemptRepo creates a new PostgreSQL attempt repository.
func NewAttemptRepo(db *DB) *AttemptRepo {
	return &AttemptRepo{db: db}
}

type attemptRow struct {
	RunID              string    `db:"run_id"`
	JobID              string    `db:"job_id"`
	RequestID          string    `db:"request_id"`
	Payment            string    `db:"payment"`
	CallbackAddr       string    `db:"callback_addr"`
	CallbackFunctionID string    `db:"callback_function_id"`
	CancelExpiration   string    `db:"cancel_expiration"`
	Response           string    `db:"response"`
	BlockNumber        int64     `db:"block_number"`
	TxHash             string    `db:"tx_hash"`
	AttemptedAt        time.Time `db:"attempted_at"`
}

func toAttemptRow(a *domain.FulfillmentAttempt) attemptRow {
	tuple := a.Tuple()
	return attemptRow{
		RunID:              a.RunID,
		JobID:              a.JobID,
		RequestID:          tuple[0],
		Payment:            tuple[1],
		CallbackAddr:       tuple[2],
		CallbackFunctionID: tuple[3],
		CancelExpiration:   tuple[4],
		Response:           tuple[5],
		BlockNumber:        int64(a.BlockNumber),
		TxHash:             a.TxHash.Hex(),
		AttemptedAt:        a.AttemptedAt,
	}
}

const insertAttempt = `
INSERT INTO fulfillment_attempts (
    run_id, job_id, request_id, payment, callback_addr, callback_function_id,
    cancel_expiration, response, block_number, tx_hash, attempted_at
) VALUES (
    :run_id, :job_id, :request_id, :payment, :callback_addr, :callback_function_id,
    :cancel_expiration, :response, :block_number, :tx_hash, :attempted_at
)`

// Append inserts one attempt row.
func (r *AttemptRepo) Append(ctx context.Context, a *domain.FulfillmentAttempt) error {
	if _, err := r.db.NamedExecContext(ctx, insertAttempt, toAttemptRow(a)); err != nil {
		return fmt.Errorf("failed to insert attempt: %w", err)
	}
	return nil
}

