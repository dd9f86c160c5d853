package oracle

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrReverted is returned by Ledger.Call when the simulated call reverts.
var ErrReverted = errors.New("execution reverted")

// Ledger is the blocking RPC boundary the reconciliation needs.
type Ledger interface {
	// GetLogs returns OracleRequest logs for jobID in the half-open range [from, to).
	GetLogs(ctx context.Context, from, to uint64, jobID common.Hash) ([]types.Log, error)

	// GetStorageAt reads one storage word of contract at the latest block.
	GetStorageAt(ctx context.Context, contract common.Address, slot common.Hash) (common.Hash, error)

	// Call simulates a contract call from the given account without submitting a transaction.
	Call(ctx context.Context, contract common.Address, data []byte, from common.Address) ([]byte, error)
}
