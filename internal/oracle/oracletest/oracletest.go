// Package oracletest provides an in-memory Ledger and log builders for tests
// that exercise the oracle reconciliation without a node.
package oracletest

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/vietddude/reconciler/internal/core/domain"
	"github.com/vietddude/reconciler/internal/oracle"
)

// Call is one recorded Ledger.Call invocation.
type Call struct {
	Contract common.Address
	From     common.Address
	Data     []byte
}

// Ledger is a thread-safe fake oracle.Ledger.
type Ledger struct {
	mu sync.Mutex

	logs    []types.Log
	storage map[common.Hash]common.Hash

	// CallResult answers Call. A nil CallResult returns an encoded true.
	CallResult func(data []byte, from common.Address) ([]byte, error)

	LogsErr    error
	StorageErr error

	logRanges    [][2]uint64
	storageReads []common.Hash
	calls        []Call
}

// NewLedger creates an empty fake ledger.
func NewLedger() *Ledger {
	return &Ledger{storage: make(map[common.Hash]common.Hash)}
}

// AddLogs appends logs returned by GetLogs.
func (l *Ledger) AddLogs(logs ...types.Log) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logs = append(l.logs, logs...)
}

// MarkFulfilled sets a non-zero flag word for requestID.
func (l *Ledger) MarkFulfilled(requestID common.Hash) {
	l.SetStorage(oracle.FulfillmentSlot(requestID), common.HexToHash("0x01"))
}

// SetStorage sets one storage word.
func (l *Ledger) SetStorage(slot, word common.Hash) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.storage[slot] = word
}

func (l *Ledger) GetLogs(ctx context.Context, from, to uint64, jobID common.Hash) ([]types.Log, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logRanges = append(l.logRanges, [2]uint64{from, to})
	if l.LogsErr != nil {
		return nil, l.LogsErr
	}

	var out []types.Log
	for _, lg := range l.logs {
		if lg.BlockNumber < from || lg.BlockNumber >= to {
			continue
		}
		if len(lg.Topics) > 1 && lg.Topics[1] != jobID {
			continue
		}
		out = append(out, lg)
	}
	return out, nil
}

func (l *Ledger) GetStorageAt(ctx context.Context, contract common.Address, slot common.Hash) (common.Hash, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.storageReads = append(l.storageReads, slot)
	if l.StorageErr != nil {
		return common.Hash{}, l.StorageErr
	}
	return l.storage[slot], nil
}

func (l *Ledger) Call(ctx context.Context, contract common.Address, data []byte, from common.Address) ([]byte, error) {
	l.mu.Lock()
	l.calls = append(l.calls, Call{Contract: contract, From: from, Data: common.CopyBytes(data)})
	answer := l.CallResult
	l.mu.Unlock()

	if answer == nil {
		return EncodeBool(true), nil
	}
	return answer(data, from)
}

// LogRanges returns every [from, to) passed to GetLogs.
func (l *Ledger) LogRanges() [][2]uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([][2]uint64(nil), l.logRanges...)
}

// StorageReads returns every slot read.
func (l *Ledger) StorageReads() []common.Hash {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]common.Hash(nil), l.storageReads...)
}

// Calls returns every probe sent.
func (l *Ledger) Calls() []Call {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Call(nil), l.calls...)
}

// EncodeBool encodes the return value of fulfillOracleRequest.
func EncodeBool(v bool) []byte {
	out, err := oracle.OracleABI.Methods["fulfillOracleRequest"].Outputs.Pack(v)
	if err != nil {
		panic(err)
	}
	return out
}

// NewEvent returns a request event with fixed payment and callback fields.
func NewEvent(jobID, requestID common.Hash, block uint64, index uint) *domain.RequestEvent {
	return &domain.RequestEvent{
		JobID:              jobID,
		Requester:          common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		RequestID:          requestID,
		Payment:            big.NewInt(1_000_000_000_000_000_000),
		CallbackAddr:       common.HexToAddress("0x00000000000000000000000000000000000000bb"),
		CallbackFunctionID: [4]byte{0x12, 0x34, 0x56, 0x78},
		CancelExpiration:   big.NewInt(1_600_000_000),
		DataVersion:        big.NewInt(1),
		Data:               []byte{0xbf, 0x66},
		TxHash:             common.BigToHash(new(big.Int).SetUint64(block*1000 + uint64(index))),
		BlockNumber:        block,
		LogIndex:           index,
	}
}

// RequestLog encodes ev as the OracleRequest log the contract would emit.
func RequestLog(ev *domain.RequestEvent) types.Log {
	fields := oracle.OracleABI.Events["OracleRequest"].Inputs.NonIndexed()
	data, err := fields.Pack(
		ev.Requester,
		[32]byte(ev.RequestID),
		ev.Payment,
		ev.CallbackAddr,
		ev.CallbackFunctionID,
		ev.CancelExpiration,
		ev.DataVersion,
		ev.Data,
	)
	if err != nil {
		panic(err)
	}
	return types.Log{
		Topics:      []common.Hash{oracle.OracleRequestTopic, ev.JobID},
		Data:        data,
		BlockNumber: ev.BlockNumber,
		TxHash:      ev.TxHash,
		Index:       ev.LogIndex,
	}
}
