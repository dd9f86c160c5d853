package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// RequestEvent is one decoded OracleRequest log.
type RequestEvent struct {
	JobID              common.Hash
	Requester          common.Address
	RequestID          common.Hash
	Payment            *big.Int
	CallbackAddr       common.Address
	CallbackFunctionID [4]byte
	CancelExpiration   *big.Int
	DataVersion        *big.Int
	Data               []byte

	// Provenance only, not contract state.
	TxHash      common.Hash
	BlockNumber uint64
	LogIndex    uint
}

// FulfillmentOutcome is the result of a single fulfillment probe.
type FulfillmentOutcome int

const (
	OutcomeAlreadyFulfilled FulfillmentOutcome = iota
	OutcomeSubmitted
	OutcomeRejected
)

func (o FulfillmentOutcome) String() string {
	switch o {
	case OutcomeAlreadyFulfilled:
		return "already_fulfilled"
	case OutcomeSubmitted:
		return "submitted"
	case OutcomeRejected:
		return "rejected"
	default:
		return "unknown"
	}
}
