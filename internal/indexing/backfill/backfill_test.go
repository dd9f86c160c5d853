package backfill

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vietddude/reconciler/internal/core/cursor"
	"github.com/vietddude/reconciler/internal/core/domain"
	"github.com/vietddude/reconciler/internal/infra/storage"
	"github.com/vietddude/reconciler/internal/infra/storage/file"
	"github.com/vietddude/reconciler/internal/oracle"
	"github.com/vietddude/reconciler/internal/oracle/oracletest"
)

const testJobName = "4c7b7ffb66b344fbaa64995af81e355a"

var (
	testJob      = common.BytesToHash([]byte(testJobName))
	testOracle   = common.HexToAddress("0x00000000000000000000000000000000000000dd")
	testOperator = common.HexToAddress("0x00000000000000000000000000000000000000cc")
	testResponse = common.HexToHash("0x2a")
)

type harness struct {
	ledger  *oracletest.Ledger
	store   *storage.Store
	dir     string
	scanner *Scanner
	cursor  *cursor.DefaultManager
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()

	dir := t.TempDir()
	store, err := file.NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return newHarnessWithStore(t, cfg, oracletest.NewLedger(), store, dir)
}

func newHarnessWithStore(
	t *testing.T,
	cfg Config,
	ledger *oracletest.Ledger,
	store *storage.Store,
	dir string,
) *harness {
	t.Helper()

	cfg.JobID = testJob
	cfg.JobName = testJobName
	cfg.Response = testResponse

	mgr := cursor.NewManager(store.Checkpoints, testJobName)
	checker := oracle.NewChecker(ledger, testOracle)
	fulfiller := oracle.NewFulfiller(ledger, testOracle, testOperator, store.Attempts, "run-1", nil)

	return &harness{
		ledger:  ledger,
		store:   store,
		dir:     dir,
		scanner: NewScanner(cfg, ledger, checker, fulfiller, mgr, nil),
		cursor:  mgr,
	}
}

func (h *harness) checkpointFile(t *testing.T) string {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join(h.dir, testJobName))
	if err != nil {
		t.Fatalf("read checkpoint: %v", err)
	}
	return string(raw)
}

func (h *harness) attemptLog(t *testing.T) string {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join(h.dir, file.AttemptLogName))
	if errors.Is(err, os.ErrNotExist) {
		return ""
	}
	if err != nil {
		t.Fatalf("read attempt log: %v", err)
	}
	return string(raw)
}

func requestID(b byte) common.Hash {
	return common.BytesToHash(bytes.Repeat([]byte{b}, 32))
}

func TestRange_Chunks(t *testing.T) {
	tests := []struct {
		name     string
		r        Range
		interval uint64
		want     []Range
	}{
		{
			name:     "even split",
			r:        Range{Start: 1000, End: 1300},
			interval: 100,
			want:     []Range{{1000, 1100}, {1100, 1200}, {1200, 1300}},
		},
		{
			name:     "last chunk runs past end",
			r:        Range{Start: 1000, End: 1250},
			interval: 100,
			want:     []Range{{1000, 1100}, {1100, 1200}, {1200, 1300}},
		},
		{
			name:     "interval larger than range",
			r:        Range{Start: 5, End: 8},
			interval: 1000,
			want:     []Range{{5, 1005}},
		},
		{
			name:     "zero interval is one chunk",
			r:        Range{Start: 5, End: 8},
			interval: 0,
			want:     []Range{{5, 8}},
		},
		{
			name:     "empty range",
			r:        Range{Start: 10, End: 10},
			interval: 100,
			want:     nil,
		},
		{
			name:     "no overflow near max",
			r:        Range{Start: ^uint64(0) - 10, End: ^uint64(0)},
			interval: 100,
			want:     []Range{{^uint64(0) - 10, ^uint64(0)}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := slices.Collect(tt.r.Chunks(tt.interval))
			if !slices.Equal(got, tt.want) {
				t.Errorf("Chunks = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRange_String(t *testing.T) {
	r := Range{Start: 1000, End: 1100}
	if r.String() != "[1000, 1100)" {
		t.Errorf("String = %q", r.String())
	}
	if r.Size() != 100 {
		t.Errorf("Size = %d, want 100", r.Size())
	}
}

func TestNewScanner_Defaults(t *testing.T) {
	h := newHarness(t, Config{StartBlock: 1})
	if h.scanner.cfg.EndBlock != DefaultEndBlock {
		t.Errorf("EndBlock = %d, want %d", h.scanner.cfg.EndBlock, DefaultEndBlock)
	}
	if h.scanner.cfg.BlockInterval != DefaultBlockInterval {
		t.Errorf("BlockInterval = %d, want %d", h.scanner.cfg.BlockInterval, DefaultBlockInterval)
	}
	if h.scanner.Status().State != cursor.StateIdle {
		t.Errorf("initial state = %s, want idle", h.scanner.Status().State)
	}
}

func TestScanner_VisitsRangesInOrder(t *testing.T) {
	h := newHarness(t, Config{StartBlock: 1000, EndBlock: 1300, BlockInterval: 100})

	summary, err := h.scanner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := [][2]uint64{{1000, 1100}, {1100, 1200}, {1200, 1300}}
	if got := h.ledger.LogRanges(); !slices.Equal(got, want) {
		t.Errorf("ranges = %v, want %v", got, want)
	}
	if summary.RangesVisited != 3 {
		t.Errorf("RangesVisited = %d, want 3", summary.RangesVisited)
	}
	if !summary.Completed {
		t.Error("expected completed summary")
	}
	// Empty ranges still move the checkpoint.
	if got := h.checkpointFile(t); got != "0x514" {
		t.Errorf("checkpoint = %q, want %q", got, "0x514")
	}
	if h.scanner.Status().State != cursor.StateDone {
		t.Errorf("final state = %s, want done", h.scanner.Status().State)
	}
}

func TestScanner_LastRangeRunsPastEnd(t *testing.T) {
	h := newHarness(t, Config{StartBlock: 1000, EndBlock: 1250, BlockInterval: 100})
	ev := oracletest.NewEvent(testJob, requestID(0xbb), 1270, 0)
	h.ledger.AddLogs(oracletest.RequestLog(ev))

	summary, err := h.scanner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := [][2]uint64{{1000, 1100}, {1100, 1200}, {1200, 1300}}
	if got := h.ledger.LogRanges(); !slices.Equal(got, want) {
		t.Errorf("ranges = %v, want %v", got, want)
	}
	if summary.Submitted != 1 {
		t.Errorf("Submitted = %d, want 1", summary.Submitted)
	}
	if got := h.checkpointFile(t); got != "0x514" {
		t.Errorf("checkpoint = %q, want %q", got, "0x514")
	}
	if got := h.scanner.Status().Progress; got != 1 {
		t.Errorf("progress = %v, want 1", got)
	}
}

func TestScanner_StartEqualsEnd(t *testing.T) {
	h := newHarness(t, Config{StartBlock: 500, EndBlock: 500, BlockInterval: 100})

	summary, err := h.scanner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(h.ledger.LogRanges()) != 0 {
		t.Errorf("expected no queries, got %v", h.ledger.LogRanges())
	}
	if !summary.Completed || summary.RangesVisited != 0 {
		t.Errorf("unexpected summary: %+v", summary)
	}
}

func TestScanner_UnfulfilledRequest(t *testing.T) {
	h := newHarness(t, Config{StartBlock: 1000, EndBlock: 1100, BlockInterval: 100})
	ev := oracletest.NewEvent(testJob, requestID(0xaa), 1050, 0)
	h.ledger.AddLogs(oracletest.RequestLog(ev))

	summary, err := h.scanner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.Submitted != 1 || summary.AlreadyFulfilled != 0 || summary.Rejected != 0 {
		t.Errorf("unexpected outcomes: %+v", summary)
	}

	reads := h.ledger.StorageReads()
	if len(reads) != 1 || reads[0] != oracle.FulfillmentSlot(ev.RequestID) {
		t.Errorf("storage reads = %v", reads)
	}

	calls := h.ledger.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 probe, got %d", len(calls))
	}
	wantData, err := oracle.PackFulfill(ev, testResponse)
	if err != nil {
		t.Fatalf("PackFulfill failed: %v", err)
	}
	if !bytes.Equal(calls[0].Data, wantData) {
		t.Error("probe calldata mismatch")
	}
	if calls[0].From != testOperator || calls[0].Contract != testOracle {
		t.Errorf("probe sent from %s to %s", calls[0].From.Hex(), calls[0].Contract.Hex())
	}

	line := `["0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",` +
		`"1000000000000000000",` +
		`"0x00000000000000000000000000000000000000bb",` +
		`"0x12345678",` +
		`"1600000000",` +
		`"0x000000000000000000000000000000000000000000000000000000000000002a"],` + "\n"
	if got := h.attemptLog(t); got != line {
		t.Errorf("attempt log = %q, want %q", got, line)
	}
	if got := h.checkpointFile(t); got != "0x44c" {
		t.Errorf("checkpoint = %q, want %q", got, "0x44c")
	}
}

func TestScanner_AlreadyFulfilledRequest(t *testing.T) {
	h := newHarness(t, Config{StartBlock: 1000, EndBlock: 1100, BlockInterval: 100})
	ev := oracletest.NewEvent(testJob, requestID(0xaa), 1050, 0)
	h.ledger.AddLogs(oracletest.RequestLog(ev))
	h.ledger.MarkFulfilled(ev.RequestID)

	summary, err := h.scanner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.AlreadyFulfilled != 1 {
		t.Errorf("AlreadyFulfilled = %d, want 1", summary.AlreadyFulfilled)
	}
	if len(h.ledger.Calls()) != 0 {
		t.Error("fulfilled request must not be probed")
	}
	if got := h.attemptLog(t); got != "" {
		t.Errorf("attempt log = %q, want empty", got)
	}
	if got := h.checkpointFile(t); got != "0x44c" {
		t.Errorf("checkpoint = %q, want %q", got, "0x44c")
	}
}

func TestScanner_RejectedProbeIsNotLogged(t *testing.T) {
	h := newHarness(t, Config{StartBlock: 0, EndBlock: 10, BlockInterval: 10})
	h.ledger.AddLogs(oracletest.RequestLog(oracletest.NewEvent(testJob, requestID(0x01), 3, 0)))
	h.ledger.CallResult = func([]byte, common.Address) ([]byte, error) {
		return nil, oracle.ErrReverted
	}

	summary, err := h.scanner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Rejected != 1 {
		t.Errorf("Rejected = %d, want 1", summary.Rejected)
	}
	if got := h.attemptLog(t); got != "" {
		t.Errorf("attempt log = %q, want empty", got)
	}
	if got := h.checkpointFile(t); got != "0xa" {
		t.Errorf("checkpoint = %q, want %q", got, "0xa")
	}
}

func TestScanner_DispatchesInLogOrder(t *testing.T) {
	h := newHarness(t, Config{StartBlock: 100, EndBlock: 200, BlockInterval: 100})

	late := oracletest.NewEvent(testJob, requestID(0x03), 150, 0)
	earlyB := oracletest.NewEvent(testJob, requestID(0x02), 120, 4)
	earlyA := oracletest.NewEvent(testJob, requestID(0x01), 120, 1)
	h.ledger.AddLogs(oracletest.RequestLog(late), oracletest.RequestLog(earlyB), oracletest.RequestLog(earlyA))

	if _, err := h.scanner.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := []common.Hash{
		oracle.FulfillmentSlot(earlyA.RequestID),
		oracle.FulfillmentSlot(earlyB.RequestID),
		oracle.FulfillmentSlot(late.RequestID),
	}
	if got := h.ledger.StorageReads(); !slices.Equal(got, want) {
		t.Errorf("read order = %v, want %v", got, want)
	}
}

func TestScanner_MalformedLogIsSkipped(t *testing.T) {
	h := newHarness(t, Config{StartBlock: 0, EndBlock: 100, BlockInterval: 100})

	bad := oracletest.RequestLog(oracletest.NewEvent(testJob, requestID(0x01), 10, 0))
	bad.Data = bad.Data[:40]
	good := oracletest.NewEvent(testJob, requestID(0x02), 20, 0)
	h.ledger.AddLogs(bad, oracletest.RequestLog(good))

	summary, err := h.scanner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.EventsSeen != 2 || summary.EventsDecoded != 1 || summary.EventsDropped != 1 {
		t.Errorf("unexpected event counts: %+v", summary)
	}
	if summary.Submitted != 1 {
		t.Errorf("Submitted = %d, want 1", summary.Submitted)
	}
}

func TestScanner_OtherJobsAreIgnored(t *testing.T) {
	h := newHarness(t, Config{StartBlock: 0, EndBlock: 100, BlockInterval: 100})
	other := common.BytesToHash([]byte("someotherjob"))
	h.ledger.AddLogs(oracletest.RequestLog(oracletest.NewEvent(other, requestID(0x01), 10, 0)))

	summary, err := h.scanner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.EventsSeen != 0 || len(h.ledger.Calls()) != 0 {
		t.Errorf("foreign job was dispatched: %+v", summary)
	}
}

func TestScanner_RerunIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	store, err := file.NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	ledger := oracletest.NewLedger()
	cfg := Config{StartBlock: 1000, EndBlock: 1100, BlockInterval: 100}

	ev := oracletest.NewEvent(testJob, requestID(0xaa), 1050, 0)
	ledger.AddLogs(oracletest.RequestLog(ev))

	first := newHarnessWithStore(t, cfg, ledger, store, dir)
	if _, err := first.scanner.Run(context.Background()); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	logAfterFirst := first.attemptLog(t)
	cpAfterFirst := first.checkpointFile(t)

	second := newHarnessWithStore(t, cfg, ledger, store, dir)
	if _, err := second.scanner.Run(context.Background()); err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	// The probe cannot change chain state, so a rerun sees the same
	// request and appends the same tuple again.
	if got := second.attemptLog(t); got != logAfterFirst+logAfterFirst {
		t.Errorf("attempt log after rerun = %q", got)
	}
	if got := second.checkpointFile(t); got != cpAfterFirst {
		t.Errorf("checkpoint after rerun = %q, want %q", got, cpAfterFirst)
	}
}

func TestScanner_TransportErrorAborts(t *testing.T) {
	h := newHarness(t, Config{StartBlock: 1000, EndBlock: 1300, BlockInterval: 100})
	boom := errors.New("connection refused")
	h.ledger.LogsErr = boom

	summary, err := h.scanner.Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if !strings.Contains(err.Error(), "[1000, 1100)") {
		t.Errorf("error should name the range: %v", err)
	}
	if summary.Completed {
		t.Error("aborted run must not be completed")
	}
	if len(h.ledger.LogRanges()) != 1 {
		t.Errorf("expected scan to stop after the first range, got %v", h.ledger.LogRanges())
	}
	if h.scanner.Status().Error == "" {
		t.Error("status should carry the error")
	}
}

func TestScanner_StorageErrorAborts(t *testing.T) {
	h := newHarness(t, Config{StartBlock: 0, EndBlock: 200, BlockInterval: 100})
	h.ledger.AddLogs(oracletest.RequestLog(oracletest.NewEvent(testJob, requestID(0x01), 10, 0)))
	boom := errors.New("node unavailable")
	h.ledger.StorageErr = boom

	_, err := h.scanner.Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected storage read error, got %v", err)
	}
	if len(h.ledger.Calls()) != 0 {
		t.Error("request must not be probed when the flag read fails")
	}
	if _, statErr := os.Stat(filepath.Join(h.dir, testJobName)); !errors.Is(statErr, os.ErrNotExist) {
		t.Error("checkpoint must not advance past an undispatched request")
	}
}

func TestScanner_ProbeTransportErrorAborts(t *testing.T) {
	h := newHarness(t, Config{StartBlock: 0, EndBlock: 100, BlockInterval: 100})
	h.ledger.AddLogs(oracletest.RequestLog(oracletest.NewEvent(testJob, requestID(0x01), 10, 0)))
	boom := errors.New("timeout")
	h.ledger.CallResult = func([]byte, common.Address) ([]byte, error) { return nil, boom }

	if _, err := h.scanner.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected probe error, got %v", err)
	}
}

func TestScanner_Resume(t *testing.T) {
	dir := t.TempDir()
	store, err := file.NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	if err := store.Checkpoints.Save(context.Background(), &domain.Checkpoint{JobID: testJobName, Block: 1200}); err != nil {
		t.Fatalf("seed checkpoint: %v", err)
	}

	cfg := Config{StartBlock: 1000, EndBlock: 1300, BlockInterval: 100, Resume: true}
	h := newHarnessWithStore(t, cfg, oracletest.NewLedger(), store, dir)

	summary, err := h.scanner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	want := [][2]uint64{{1200, 1300}}
	if got := h.ledger.LogRanges(); !slices.Equal(got, want) {
		t.Errorf("ranges = %v, want %v", got, want)
	}
	if summary.StartBlock != 1200 {
		t.Errorf("StartBlock = %d, want 1200", summary.StartBlock)
	}
}

func TestScanner_ResumeDisabledIgnoresCheckpoint(t *testing.T) {
	dir := t.TempDir()
	store, err := file.NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	if err := store.Checkpoints.Save(context.Background(), &domain.Checkpoint{JobID: testJobName, Block: 1200}); err != nil {
		t.Fatalf("seed checkpoint: %v", err)
	}

	cfg := Config{StartBlock: 1000, EndBlock: 1300, BlockInterval: 100}
	h := newHarnessWithStore(t, cfg, oracletest.NewLedger(), store, dir)

	if _, err := h.scanner.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := h.ledger.LogRanges(); len(got) != 3 || got[0][0] != 1000 {
		t.Errorf("ranges = %v, want full rescan from 1000", got)
	}
}

func TestScanner_Cancellation(t *testing.T) {
	h := newHarness(t, Config{StartBlock: 0, EndBlock: 1000, BlockInterval: 100})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := h.scanner.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if summary.Completed || len(h.ledger.LogRanges()) != 0 {
		t.Errorf("cancelled run should not scan: %+v", summary)
	}
}

func TestScanner_Progress(t *testing.T) {
	s := &Scanner{cfg: Config{StartBlock: 1000, EndBlock: 2000}}
	tests := []struct {
		block uint64
		want  float64
	}{
		{1000, 0},
		{1250, 0.25},
		{2000, 1},
		{2100, 1},
	}
	for _, tt := range tests {
		if got := s.progress(tt.block); got != tt.want {
			t.Errorf("progress(%d) = %v, want %v", tt.block, got, tt.want)
		}
	}
}
