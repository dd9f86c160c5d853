package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// FulfillmentAttempt records a fulfillment probe that reported success.
// Entries are append-only.
type FulfillmentAttempt struct {
	RequestID          common.Hash
	Payment            *big.Int
	CallbackAddr       common.Address
	CallbackFunctionID [4]byte
	CancelExpiration   *big.Int
	Response           common.Hash

	JobID       string
	BlockNumber uint64
	TxHash      common.Hash
	RunID       string
	AttemptedAt time.Time
}

// NewFulfillmentAttempt builds the attempt tuple for an event.
func NewFulfillmentAttempt(ev *RequestEvent, response common.Hash) *FulfillmentAttempt {
	return &FulfillmentAttempt{
		RequestID:          ev.RequestID,
		Payment:            ev.Payment,
		CallbackAddr:       ev.CallbackAddr,
		CallbackFunctionID: ev.CallbackFunctionID,
		CancelExpiration:   ev.CancelExpiration,
		Response:           response,
		JobID:              ev.JobID.Hex(),
		BlockNumber:        ev.BlockNumber,
		TxHash:             ev.TxHash,
		AttemptedAt:        time.Now(),
	}
}

// FunctionSelector returns the callback selector as 0x-prefixed hex.
func (a *FulfillmentAttempt) FunctionSelector() string {
	return hexutil.Encode(a.CallbackFunctionID[:])
}

// Tuple returns the fulfillOracleRequest arguments in call order.
func (a *FulfillmentAttempt) Tuple() []string {
	return []string{
		a.RequestID.Hex(),
		bigString(a.Payment),
		a.CallbackAddr.Hex(),
		a.FunctionSelector(),
		bigString(a.CancelExpiration),
		a.Response.Hex(),
	}
}

func bigString(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}

// AttemptRecord is the serialized form of an attempt in the redis log and the archive.
type AttemptRecord struct {
	RunID       string    `json:"run_id"`
	JobID       string    `json:"job_id"`
	BlockNumber uint64    `json:"block_number"`
	TxHash      string    `json:"tx_hash"`
	Tuple       []string  `json:"tuple"`
	AttemptedAt time.Time `json:"attempted_at"`
}

// Record converts the attempt into its serialized form.
func (a *FulfillmentAttempt) Record() AttemptRecord {
	return AttemptRecord{
		RunID:       a.RunID,
		JobID:       a.JobID,
		BlockNumber: a.BlockNumber,
		TxHash:      a.TxHash.Hex(),
		Tuple:       a.Tuple(),
		AttemptedAt: a.AttemptedAt,
	}
}
