// Package backfill reconciles historical oracle requests.
//
// # Flow
//
// The scanner walks fixed-size half-open ranges starting at StartBlock,
// strictly ascending, until a range would start at or past EndBlock. The
// last range keeps its full size even when it crosses EndBlock:
//
//	for each range:
//	    logs := Ledger.GetLogs(range, job)       // scanning
//	    for each request in log order:           // dispatching
//	        if !Checker.IsFulfilled(request):
//	            Fulfiller.AttemptFulfill(request, response)
//	        checkpoint = range upper bound
//
// One RPC round trip at a time, no prefetch. A transport error stops the scan
// and is returned; decode failures, rejected probes and persistence failures
// are logged and the scan continues.
//
// # Usage
//
//	scanner := backfill.NewScanner(cfg, ledger, checker, fulfiller, cursorMgr, logger)
//	summary, err := scanner.Run(ctx)
package backfill

import (
	"context"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vietddude/reconciler/internal/core/cursor"
	"github.com/vietddude/reconciler/internal/core/domain"
	"github.com/vietddude/reconciler/internal/oracle"
)

// DefaultEndBlock is used when no end block is configured.
const DefaultEndBlock uint64 = 9410087

// DefaultBlockInterval is the range size used when none is configured.
const DefaultBlockInterval uint64 = 1000

// Config is the immutable scan configuration.
type Config struct {
	StartBlock    uint64
	EndBlock      uint64
	BlockInterval uint64
	JobID         common.Hash // on-chain job id, topic[1] of the request log
	JobName       string      // job id as given by the operator, keys the checkpoint
	Response      common.Hash // canned response sent with every probe
	Resume        bool
}

// FulfillmentChecker reports whether a request was already answered.
type FulfillmentChecker interface {
	IsFulfilled(ctx context.Context, requestID common.Hash) (bool, error)
}

// RequestFulfiller probes a compensating fulfillment.
type RequestFulfiller interface {
	AttemptFulfill(ctx context.Context, ev *domain.RequestEvent, response common.Hash) (domain.FulfillmentOutcome, error)
}

// NewScanner creates a scanner. Zero EndBlock and BlockInterval fall back to the defaults.
func NewScanner(
	cfg Config,
	ledger oracle.Ledger,
	checker FulfillmentChecker,
	fulfiller RequestFulfiller,
	cursorMgr cursor.Manager,
	log *slog.Logger,
) *Scanner {
	if cfg.EndBlock == 0 {
		cfg.EndBlock = DefaultEndBlock
	}
	if cfg.BlockInterval == 0 {
		cfg.BlockInterval = DefaultBlockInterval
	}
	if log == nil {
		log = slog.Default()
	}
	log = log.With("job", cfg.JobName)

	return &Scanner{
		cfg:       cfg,
		ledger:    ledger,
		decoder:   oracle.NewDecoder(log),
		checker:   checker,
		fulfiller: fulfiller,
		cursor:    cursorMgr,
		log:       log,
		status:    Status{State: cursor.StateIdle},
	}
}
