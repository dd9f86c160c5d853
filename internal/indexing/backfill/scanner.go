package backfill

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/reconciler/internal/core/cursor"
	"github.com/vietddude/reconciler/internal/core/domain"
	"github.com/vietddude/reconciler/internal/indexing/metrics"
	"github.com/vietddude/reconciler/internal/oracle"
)

// Summary counts what a run did.
type Summary struct {
	StartBlock       uint64 `json:"start_block"`
	EndBlock         uint64 `json:"end_block"`
	RangesVisited    int    `json:"ranges_visited"`
	EventsSeen       int    `json:"events_seen"`
	EventsDecoded    int    `json:"events_decoded"`
	EventsDropped    int    `json:"events_dropped"`
	AlreadyFulfilled int    `json:"already_fulfilled"`
	Submitted        int    `json:"submitted"`
	Rejected         int    `json:"rejected"`
	LastCheckpoint   uint64 `json:"last_checkpoint"`
	Completed        bool   `json:"completed"`
}

// Status is a point-in-time view of the scan for health reporting.
type Status struct {
	State      cursor.State `json:"state"`
	Range      string       `json:"range,omitempty"`
	Progress   float64      `json:"progress"`
	Summary    Summary      `json:"summary"`
	Error      string       `json:"error,omitempty"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at,omitempty"`
}

// Scanner walks the configured block range and reconciles each request.
type Scanner struct {
	cfg       Config
	ledger    oracle.Ledger
	decoder   *oracle.Decoder
	checker   FulfillmentChecker
	fulfiller RequestFulfiller
	cursor    cursor.Manager
	log       *slog.Logger

	mu     sync.RWMutex
	status Status
}

// Run scans until the end block, the first transport error, or ctx is done.
// The summary is valid in every case.
func (s *Scanner) Run(ctx context.Context) (Summary, error) {
	start := s.resumePoint(ctx)

	s.update(func(st *Status) {
		st.StartedAt = time.Now()
		st.Summary.StartBlock = start
		st.Summary.EndBlock = s.cfg.EndBlock
	})
	s.log.Info("Starting reconciliation scan",
		"from", start,
		"to", s.cfg.EndBlock,
		"interval", s.cfg.BlockInterval,
		"job_id", s.cfg.JobID.Hex(),
	)

	full := Range{Start: start, End: s.cfg.EndBlock}
	for r := range full.Chunks(s.cfg.BlockInterval) {
		if err := ctx.Err(); err != nil {
			return s.fail(err)
		}
		if err := s.scanRange(ctx, r); err != nil {
			return s.fail(err)
		}
	}

	s.setState(cursor.StateDone, "end block reached")
	s.update(func(st *Status) {
		st.Summary.Completed = true
		st.FinishedAt = time.Now()
	})

	summary := s.Status().Summary
	s.log.Info("Reconciliation scan complete",
		"ranges", summary.RangesVisited,
		"events", summary.EventsDecoded,
		"dropped", summary.EventsDropped,
		"already_fulfilled", summary.AlreadyFulfilled,
		"submitted", summary.Submitted,
		"rejected", summary.Rejected,
		"checkpoint", summary.LastCheckpoint,
	)
	return summary, nil
}

// Status returns a snapshot of the scan.
func (s *Scanner) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Scanner) scanRange(ctx context.Context, r Range) error {
	s.setState(cursor.StateScanning, r.String())
	s.update(func(st *Status) { st.Range = r.String() })

	logs, err := s.ledger.GetLogs(ctx, r.Start, r.End, s.cfg.JobID)
	if err != nil {
		return fmt.Errorf("scan range %s: %w", r, err)
	}

	events, dropped := s.decoder.DecodeAll(logs)

	metrics.RangesScanned.WithLabelValues(s.cfg.JobName).Inc()
	metrics.EventsTotal.WithLabelValues(s.cfg.JobName, "decoded").Add(float64(len(events)))
	metrics.EventsTotal.WithLabelValues(s.cfg.JobName, "dropped").Add(float64(dropped))
	s.update(func(st *Status) {
		st.Summary.RangesVisited++
		st.Summary.EventsSeen += len(logs)
		st.Summary.EventsDecoded += len(events)
		st.Summary.EventsDropped += dropped
	})

	s.log.Debug("Scanned range",
		"from", r.Start,
		"to", r.End,
		"logs", len(logs),
		"events", len(events),
	)

	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.setState(cursor.StateDispatching, ev.RequestID.Hex())
		if err := s.dispatch(ctx, ev, r); err != nil {
			return err
		}
	}

	// Empty ranges also move the checkpoint so a resumed run skips them.
	if len(events) == 0 {
		s.advance(ctx, r)
	}
	return nil
}

func (s *Scanner) dispatch(ctx context.Context, ev *domain.RequestEvent, r Range) error {
	fulfilled, err := s.checker.IsFulfilled(ctx, ev.RequestID)
	if err != nil {
		return fmt.Errorf("check request %s: %w", ev.RequestID.Hex(), err)
	}

	outcome := domain.OutcomeAlreadyFulfilled
	if !fulfilled {
		outcome, err = s.fulfiller.AttemptFulfill(ctx, ev, s.cfg.Response)
		if err != nil {
			return fmt.Errorf("fulfill request %s: %w", ev.RequestID.Hex(), err)
		}
	}

	metrics.OutcomesTotal.WithLabelValues(s.cfg.JobName, outcome.String()).Inc()
	s.update(func(st *Status) {
		switch outcome {
		case domain.OutcomeAlreadyFulfilled:
			st.Summary.AlreadyFulfilled++
		case domain.OutcomeSubmitted:
			st.Summary.Submitted++
		case domain.OutcomeRejected:
			st.Summary.Rejected++
		}
	})

	s.log.Info("Dispatched request",
		"request_id", ev.RequestID.Hex(),
		"block", ev.BlockNumber,
		"tx", ev.TxHash.Hex(),
		"outcome", outcome.String(),
	)

	s.advance(ctx, r)
	return nil
}

// advance persists r.End as the checkpoint and reports progress.
// Persistence failures are logged and the scan continues.
func (s *Scanner) advance(ctx context.Context, r Range) {
	if err := s.cursor.Advance(ctx, r.End); err != nil {
		metrics.PersistenceErrors.WithLabelValues("checkpoint").Inc()
		s.log.Warn("Failed to persist checkpoint", "block", r.End, "error", err)
	}

	progress := s.progress(r.End)
	metrics.ProgressRatio.WithLabelValues(s.cfg.JobName).Set(progress)

	var processed int
	s.update(func(st *Status) {
		st.Summary.LastCheckpoint = r.End
		st.Progress = progress
		processed = st.Summary.AlreadyFulfilled + st.Summary.Submitted + st.Summary.Rejected
	})

	s.log.Info("Progress",
		"checkpoint", r.End,
		"percent", fmt.Sprintf("%.2f", progress*100),
		"processed_events", processed,
	)
}

// progress is the share of the configured range below block.
func (s *Scanner) progress(block uint64) float64 {
	if s.cfg.EndBlock <= s.cfg.StartBlock {
		return 1
	}
	total := s.cfg.EndBlock - s.cfg.StartBlock
	if block <= s.cfg.StartBlock {
		return 0
	}
	return min(float64(block-s.cfg.StartBlock)/float64(total), 1)
}

// resumePoint returns where scanning starts. Without Resume, the checkpoint
// is ignored and the whole configured range is scanned again.
func (s *Scanner) resumePoint(ctx context.Context) uint64 {
	start := s.cfg.StartBlock
	if !s.cfg.Resume {
		return start
	}

	cp, err := s.cursor.Load(ctx)
	if err != nil {
		s.log.Warn("Cannot read checkpoint, scanning from start block", "error", err)
		return start
	}
	if cp == nil || cp.Block <= start {
		return start
	}

	resumed := min(cp.Block, s.cfg.EndBlock)
	s.log.Info("Resuming from checkpoint", "checkpoint", cp.Block, "start", start)
	return resumed
}

func (s *Scanner) setState(state cursor.State, reason string) {
	if err := s.cursor.SetState(state, reason); err != nil {
		// Only reachable through a programming error in the scan loop.
		s.log.Error("Invalid scan state transition", "to", state, "error", err)
		return
	}
	s.update(func(st *Status) { st.State = state })
}

func (s *Scanner) fail(err error) (Summary, error) {
	s.update(func(st *Status) {
		st.Error = err.Error()
		st.FinishedAt = time.Now()
	})
	summary := s.Status().Summary
	s.log.Error("Reconciliation scan aborted",
		"error", err,
		"checkpoint", summary.LastCheckpoint,
	)
	return summary, err
}

func (s *Scanner) update(fn func(st *Status)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.status)
}
