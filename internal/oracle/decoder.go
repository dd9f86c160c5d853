package oracle

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"slices"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/vietddude/reconciler/internal/core/domain"
)

// ErrDecode wraps every failure to turn a log into a RequestEvent.
var ErrDecode = errors.New("decode oracle request")

// Decoder converts raw OracleRequest logs into RequestEvents.
type Decoder struct {
	fields abi.Arguments
	log    *slog.Logger
}

// NewDecoder creates a decoder for the OracleRequest event layout.
func NewDecoder(log *slog.Logger) *Decoder {
	if log == nil {
		log = slog.Default()
	}
	return &Decoder{
		fields: OracleABI.Events[requestEventName].Inputs.NonIndexed(),
		log:    log,
	}
}

// Decode converts one log. topic[0] must be the event signature and topic[1] the job id.
func (d *Decoder) Decode(l types.Log) (*domain.RequestEvent, error) {
	if len(l.Topics) != 2 {
		return nil, fmt.Errorf("%w: expected 2 topics, got %d", ErrDecode, len(l.Topics))
	}
	if l.Topics[0] != OracleRequestTopic {
		return nil, fmt.Errorf("%w: unexpected event signature %s", ErrDecode, l.Topics[0].Hex())
	}

	values, err := d.fields.Unpack(l.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if len(values) != len(d.fields) {
		return nil, fmt.Errorf("%w: expected %d fields, got %d", ErrDecode, len(d.fields), len(values))
	}

	ev := &domain.RequestEvent{
		JobID:       l.Topics[1],
		TxHash:      l.TxHash,
		BlockNumber: l.BlockNumber,
		LogIndex:    l.Index,
	}

	var ok bool
	if ev.Requester, ok = values[0].(common.Address); !ok {
		return nil, fieldErr("requester", values[0])
	}
	requestID, ok := values[1].([32]byte)
	if !ok {
		return nil, fieldErr("requestId", values[1])
	}
	ev.RequestID = requestID
	if ev.Payment, ok = values[2].(*big.Int); !ok {
		return nil, fieldErr("payment", values[2])
	}
	if ev.CallbackAddr, ok = values[3].(common.Address); !ok {
		return nil, fieldErr("callbackAddr", values[3])
	}
	if ev.CallbackFunctionID, ok = values[4].([4]byte); !ok {
		return nil, fieldErr("callbackFunctionId", values[4])
	}
	if ev.CancelExpiration, ok = values[5].(*big.Int); !ok {
		return nil, fieldErr("cancelExpiration", values[5])
	}
	if ev.DataVersion, ok = values[6].(*big.Int); !ok {
		return nil, fieldErr("dataVersion", values[6])
	}
	if ev.Data, ok = values[7].([]byte); !ok {
		return nil, fieldErr("data", values[7])
	}

	return ev, nil
}

// DecodeAll decodes logs in log order (block number, then log index).
// Logs that fail to decode are dropped and counted.
func (d *Decoder) DecodeAll(logs []types.Log) ([]*domain.RequestEvent, int) {
	ordered := slices.Clone(logs)
	slices.SortStableFunc(ordered, func(a, b types.Log) int {
		if a.BlockNumber != b.BlockNumber {
			if a.BlockNumber < b.BlockNumber {
				return -1
			}
			return 1
		}
		return int(a.Index) - int(b.Index)
	})

	events := make([]*domain.RequestEvent, 0, len(ordered))
	dropped := 0
	for _, l := range ordered {
		ev, err := d.Decode(l)
		if err != nil {
			dropped++
			d.log.Warn("Dropping undecodable log",
				"tx", l.TxHash.Hex(),
				"block", l.BlockNumber,
				"log_index", l.Index,
				"error", err,
			)
			continue
		}
		events = append(events, ev)
	}
	return events, dropped
}

func fieldErr(name string, v any) error {
	return fmt.Errorf("%w: field %s has type %T", ErrDecode, name, v)
}
