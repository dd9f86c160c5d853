// Package evm implements the oracle ledger over Ethereum JSON-RPC.
package evm

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	json "github.com/goccy/go-json"

	"github.com/vietddude/reconciler/internal/infra/rpc"
	"github.com/vietddude/reconciler/internal/oracle"
)

// revertCode is the JSON-RPC error code geth uses for reverted eth_call.
const revertCode = 3

// EVMAdapter implements oracle.Ledger for one oracle contract.
type EVMAdapter struct {
	client rpc.Caller
	oracle common.Address
	log    *slog.Logger
}

// NewEVMAdapter creates an adapter that filters logs by the oracle address.
func NewEVMAdapter(client rpc.Caller, oracleAddr common.Address) *EVMAdapter {
	return &EVMAdapter{
		client: client,
		oracle: oracleAddr,
		log:    slog.Default().With("component", "evm"),
	}
}

// GetLatestBlock returns the current chain head.
func (a *EVMAdapter) GetLatestBlock(ctx context.Context) (uint64, error) {
	var blockHex string
	if err := a.client.Call(ctx, "eth_blockNumber", nil, &blockHex); err != nil {
		return 0, fmt.Errorf("eth_blockNumber failed: %w", err)
	}
	return parseHexString(blockHex)
}

// GetLogs returns OracleRequest logs for jobID in [from, to).
// The node treats toBlock as inclusive, so to-1 is sent.
func (a *EVMAdapter) GetLogs(ctx context.Context, from, to uint64, jobID common.Hash) ([]types.Log, error) {
	if to <= from {
		return nil, nil
	}

	filter := map[string]any{
		"fromBlock": hexutil.EncodeUint64(from),
		"toBlock":   hexutil.EncodeUint64(to - 1),
		"address":   a.oracle.Hex(),
		"topics":    []string{oracle.OracleRequestTopic.Hex(), jobID.Hex()},
	}

	var raw []json.RawMessage
	if err := a.client.Call(ctx, "eth_getLogs", []any{filter}, &raw); err != nil {
		return nil, fmt.Errorf("eth_getLogs [%d, %d) failed: %w", from, to, err)
	}

	logs := make([]types.Log, 0, len(raw))
	for i, entry := range raw {
		var l types.Log
		if err := json.Unmarshal(entry, &l); err != nil {
			// Passed on without topics so the decoder counts it as dropped.
			a.log.Warn("Malformed log entry",
				"from", from,
				"to", to,
				"position", i,
				"error", err,
			)
			logs = append(logs, unparsedLog(entry))
			continue
		}
		if l.Removed {
			continue
		}
		logs = append(logs, l)
	}
	return logs, nil
}

// unparsedLog keeps whatever position fields of a malformed entry still parse.
func unparsedLog(entry json.RawMessage) types.Log {
	var pos struct {
		BlockNumber hexutil.Uint64 `json:"blockNumber"`
		TxHash      common.Hash    `json:"transactionHash"`
		Index       hexutil.Uint   `json:"logIndex"`
	}
	_ = json.Unmarshal(entry, &pos)
	return types.Log{
		BlockNumber: uint64(pos.BlockNumber),
		TxHash:      pos.TxHash,
		Index:       uint(pos.Index),
	}
}

// GetStorageAt reads one storage word at the latest block.
func (a *EVMAdapter) GetStorageAt(ctx context.Context, contract common.Address, slot common.Hash) (common.Hash, error) {
	var word string
	params := []any{contract.Hex(), slot.Hex(), "latest"}
	if err := a.client.Call(ctx, "eth_getStorageAt", params, &word); err != nil {
		return common.Hash{}, fmt.Errorf("eth_getStorageAt failed: %w", err)
	}
	return parseWord(word)
}

// Call simulates a call from the given account. Reverts map to oracle.ErrReverted.
func (a *EVMAdapter) Call(ctx context.Context, contract common.Address, data []byte, from common.Address) ([]byte, error) {
	msg := map[string]any{
		"from": from.Hex(),
		"to":   contract.Hex(),
		"data": hexutil.Encode(data),
	}

	var out string
	if err := a.client.Call(ctx, "eth_call", []any{msg, "latest"}, &out); err != nil {
		if isRevert(err) {
			return nil, fmt.Errorf("%w: %v", oracle.ErrReverted, err)
		}
		return nil, fmt.Errorf("eth_call failed: %w", err)
	}

	result, err := hexutil.Decode(out)
	if err != nil {
		return nil, fmt.Errorf("invalid eth_call result %q: %w", out, err)
	}
	return result, nil
}

func isRevert(err error) bool {
	var rpcErr *rpc.RPCError
	if !errors.As(err, &rpcErr) {
		return false
	}
	return rpcErr.Code == revertCode || strings.Contains(strings.ToLower(rpcErr.Message), "revert")
}

// parseWord accepts full and compact hex forms of a 32-byte word.
func parseWord(s string) (common.Hash, error) {
	digits := strings.TrimPrefix(s, "0x")
	if len(digits) == len(s) || len(digits) > 2*common.HashLength {
		return common.Hash{}, fmt.Errorf("invalid storage word: %q", s)
	}
	if len(digits)%2 == 1 {
		digits = "0" + digits
	}
	b, err := hex.DecodeString(digits)
	if err != nil {
		return common.Hash{}, fmt.Errorf("invalid storage word %q: %w", s, err)
	}
	return common.BytesToHash(b), nil
}

func parseHexString(hexStr string) (uint64, error) {
	n := new(big.Int)
	if _, ok := n.SetString(strings.TrimPrefix(hexStr, "0x"), 16); !ok {
		return 0, fmt.Errorf("invalid hex: %s", hexStr)
	}
	return n.Uint64(), nil
}
