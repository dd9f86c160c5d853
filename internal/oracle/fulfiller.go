package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vietddude/reconciler/internal/core/domain"
	"github.com/vietddude/reconciler/internal/indexing/metrics"
)

// AttemptRecorder persists probes that reported success.
type AttemptRecorder interface {
	Append(ctx context.Context, attempt *domain.FulfillmentAttempt) error
}

// Fulfiller probes fulfillOracleRequest for unanswered requests.
type Fulfiller struct {
	ledger   Ledger
	contract common.Address
	operator common.Address
	attempts AttemptRecorder
	runID    string
	log      *slog.Logger
}

// NewFulfiller creates a fulfiller that probes from the operator account.
func NewFulfiller(
	ledger Ledger,
	contract, operator common.Address,
	attempts AttemptRecorder,
	runID string,
	log *slog.Logger,
) *Fulfiller {
	if log == nil {
		log = slog.Default()
	}
	return &Fulfiller{
		ledger:   ledger,
		contract: contract,
		operator: operator,
		attempts: attempts,
		runID:    runID,
		log:      log,
	}
}

// PackFulfill encodes the fulfillOracleRequest call for ev with the given response.
func PackFulfill(ev *domain.RequestEvent, response common.Hash) ([]byte, error) {
	return OracleABI.Pack(
		fulfillMethodName,
		[32]byte(ev.RequestID),
		ev.Payment,
		ev.CallbackAddr,
		ev.CallbackFunctionID,
		ev.CancelExpiration,
		[32]byte(response),
	)
}

// AttemptFulfill probes the fulfillment of ev. A successful probe is
// recorded as an attempt; a failed or reverted probe is only logged.
// Only ledger transport errors are returned.
func (f *Fulfiller) AttemptFulfill(
	ctx context.Context,
	ev *domain.RequestEvent,
	response common.Hash,
) (domain.FulfillmentOutcome, error) {
	data, err := PackFulfill(ev, response)
	if err != nil {
		// Only reachable with nil integers in ev.
		f.reject(ev, fmt.Errorf("pack call: %w", err))
		return domain.OutcomeRejected, nil
	}

	out, err := f.ledger.Call(ctx, f.contract, data, f.operator)
	if errors.Is(err, ErrReverted) {
		f.reject(ev, err)
		return domain.OutcomeRejected, nil
	}
	if err != nil {
		return domain.OutcomeRejected, fmt.Errorf("probe fulfillment of %s: %w", ev.RequestID.Hex(), err)
	}

	ok, err := unpackBool(out)
	if err != nil {
		f.reject(ev, err)
		return domain.OutcomeRejected, nil
	}
	if !ok {
		f.reject(ev, errors.New("fulfillOracleRequest returned false"))
		return domain.OutcomeRejected, nil
	}

	attempt := domain.NewFulfillmentAttempt(ev, response)
	attempt.RunID = f.runID
	if err := f.attempts.Append(ctx, attempt); err != nil {
		metrics.PersistenceErrors.WithLabelValues("attempts").Inc()
		f.log.Warn("Failed to record fulfillment attempt",
			"request_id", ev.RequestID.Hex(),
			"error", err,
		)
	}

	return domain.OutcomeSubmitted, nil
}

func (f *Fulfiller) reject(ev *domain.RequestEvent, reason error) {
	f.log.Warn("Cannot fulfill request",
		"request_id", ev.RequestID.Hex(),
		"block", ev.BlockNumber,
		"tx", ev.TxHash.Hex(),
		"requester", ev.Requester.Hex(),
		"callback", ev.CallbackAddr.Hex(),
		"payment", ev.Payment,
		"expiration", ev.CancelExpiration,
		"reason", reason,
	)
}

func unpackBool(out []byte) (bool, error) {
	values, err := OracleABI.Unpack(fulfillMethodName, out)
	if err != nil {
		return false, fmt.Errorf("unpack probe result: %w", err)
	}
	if len(values) != 1 {
		return false, fmt.Errorf("unpack probe result: expected 1 value, got %d", len(values))
	}
	ok, isBool := values[0].(bool)
	if !isBool {
		return false, fmt.Errorf("unpack probe result: unexpected type %T", values[0])
	}
	return ok, nil
}
