// Package control wires the reconciler components for one run.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vietddude/reconciler/internal/core/config"
	"github.com/vietddude/reconciler/internal/core/cursor"
	"github.com/vietddude/reconciler/internal/indexing/backfill"
	"github.com/vietddude/reconciler/internal/indexing/health"
	"github.com/vietddude/reconciler/internal/infra/archive"
	"github.com/vietddude/reconciler/internal/infra/chain/evm"
	redisclient "github.com/vietddude/reconciler/internal/infra/redis"
	"github.com/vietddude/reconciler/internal/infra/rpc"
	"github.com/vietddude/reconciler/internal/infra/storage"
	"github.com/vietddude/reconciler/internal/infra/storage/file"
	"github.com/vietddude/reconciler/internal/infra/storage/memory"
	"github.com/vietddude/reconciler/internal/infra/storage/postgres"
	"github.com/vietddude/reconciler/internal/oracle"
)

// ErrJobLocked is returned when another instance holds the job lock.
var ErrJobLocked = errors.New("job is locked by another instance")

// Reconciler owns every component of one run.
type Reconciler struct {
	settings config.Settings
	runID    string

	store        *storage.Store
	db           *postgres.DB
	redisClient  *redisclient.Client
	client       *rpc.Client
	ledger       *evm.EVMAdapter
	attempts     *archive.Collector
	cursorMgr    cursor.Manager
	scanner      *backfill.Scanner
	healthMon    *health.Monitor
	healthServer *health.Server
	archiver     *archive.Archiver

	log *slog.Logger
}

// NewReconciler creates the storage backend, the RPC client and the scanner.
func NewReconciler(ctx context.Context, settings config.Settings) (*Reconciler, error) {
	r := &Reconciler{
		settings: settings,
		runID:    uuid.NewString(),
	}
	r.log = slog.Default().With("job", settings.JobName, "run_id", r.runID)

	// 1. Initialize Storage
	if err := r.openStorage(ctx); err != nil {
		return nil, err
	}

	// 2. Initialize RPC
	provider := rpc.NewHTTPProvider("node", settings.RPCURL, settings.RPCTimeout)
	retry := rpc.DefaultRetryConfig
	retry.MaxAttempts = settings.RPCMaxAttempts
	r.client = rpc.NewClient(provider, retry)
	r.ledger = evm.NewEVMAdapter(r.client, settings.Oracle)

	// 3. Initialize reconciliation components
	var recorder oracle.AttemptRecorder = r.store.Attempts
	if settings.Archive.Enabled() {
		r.attempts = archive.NewCollector(r.store.Attempts)
		recorder = r.attempts
	}
	checker := oracle.NewChecker(r.ledger, settings.Oracle)
	fulfiller := oracle.NewFulfiller(r.ledger, settings.Oracle, settings.Node, recorder, r.runID, r.log)

	mgr := cursor.NewManager(r.store.Checkpoints, settings.JobName)
	mgr.SetStateChangeCallback(func(jobID string, t cursor.Transition) {
		r.log.Debug("Scan state changed", "from", t.From, "to", t.To, "reason", t.Reason)
	})
	r.cursorMgr = mgr

	r.scanner = backfill.NewScanner(backfill.Config{
		StartBlock:    settings.StartBlock,
		EndBlock:      settings.EndBlock,
		BlockInterval: settings.BlockInterval,
		JobID:         settings.JobID,
		JobName:       settings.JobName,
		Response:      settings.Response,
		Resume:        settings.Resume,
	}, r.ledger, checker, fulfiller, mgr, r.log)

	// 4. Initialize Health
	r.healthMon = health.NewMonitor(settings.JobName, r.scanner, mgr, r.client)
	if settings.MetricsPort > 0 {
		r.healthServer = health.NewServer(r.healthMon, settings.MetricsPort)
	}

	// 5. Initialize Archive
	if settings.Archive.Enabled() {
		uploader, err := archive.NewS3Uploader(ctx, settings.Archive)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("failed to init archive: %w", err)
		}
		r.archiver = archive.NewArchiver(uploader, settings.Archive.Prefix)
	}

	return r, nil
}

func (r *Reconciler) openStorage(ctx context.Context) error {
	cfg := r.settings.Storage
	switch cfg.Driver {
	case config.DriverMemory:
		r.store = memory.NewStore()
		r.log.Info("Using memory storage")

	case config.DriverPostgres:
		store, db, err := postgres.NewStore(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("failed to init db: %w", err)
		}
		r.store, r.db = store, db
		r.log.Info("Using PostgreSQL storage")

	case config.DriverRedis:
		store, client, err := redisclient.NewStore(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to init redis: %w", err)
		}
		r.store, r.redisClient = store, client
		r.log.Info("Using Redis storage")

	default:
		store, err := file.NewStore(cfg.Dir)
		if err != nil {
			return err
		}
		r.store = store
		r.log.Info("Using file storage", "dir", cfg.Dir)
	}
	return nil
}

// RunID identifies this run in the attempt log and the archive.
func (r *Reconciler) RunID() string {
	return r.runID
}

// Checkpoint returns the last block boundary reached by this run.
func (r *Reconciler) Checkpoint() uint64 {
	return r.cursorMgr.Current()
}

// Health returns the monitor backing the health endpoints.
func (r *Reconciler) Health() *health.Monitor {
	return r.healthMon
}

// Run scans the configured range. The health server, when enabled, runs
// until the scan returns.
func (r *Reconciler) Run(ctx context.Context) (backfill.Summary, error) {
	if r.redisClient != nil {
		ok, err := r.redisClient.AcquireLock(ctx, r.settings.JobName, r.runID, redisclient.LockTTL)
		if err != nil {
			return backfill.Summary{}, fmt.Errorf("failed to acquire job lock: %w", err)
		}
		if !ok {
			return backfill.Summary{}, ErrJobLocked
		}
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := r.redisClient.ReleaseLock(releaseCtx, r.settings.JobName, r.runID); err != nil {
				r.log.Warn("Failed to release job lock", "error", err)
			}
		}()
	}

	if head, err := r.ledger.GetLatestBlock(ctx); err != nil {
		r.log.Warn("Cannot read chain head", "error", err)
	} else {
		r.log.Info("Connected to node", "head", head, "end", r.settings.EndBlock)
		if head < r.settings.EndBlock {
			r.log.Info("End block is above the chain head, later ranges will be empty", "head", head)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	runCtx, stop := context.WithCancel(gctx)
	defer stop()

	var summary backfill.Summary
	g.Go(func() error {
		defer stop()
		var err error
		summary, err = r.scanner.Run(runCtx)
		return err
	})

	if r.healthServer != nil {
		g.Go(func() error {
			r.log.Info("Health server listening", "port", r.settings.MetricsPort)
			return r.healthServer.Start()
		})
		g.Go(func() error {
			<-runCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return r.healthServer.Stop(shutdownCtx)
		})
	}

	if r.db != nil {
		r.db.StartMetricsCollector(runCtx)
	}

	if r.redisClient != nil {
		g.Go(func() error {
			return r.refreshLock(runCtx)
		})
	}

	if err := g.Wait(); err != nil {
		return summary, err
	}

	if r.archiver != nil && summary.Completed {
		r.archive(ctx)
	}
	return summary, nil
}

// refreshLock keeps the job lock alive. Losing the lock stops the run.
func (r *Reconciler) refreshLock(ctx context.Context) error {
	ticker := time.NewTicker(redisclient.LockTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			err := r.redisClient.RefreshLock(ctx, r.settings.JobName, r.runID, redisclient.LockTTL)
			if errors.Is(err, redisclient.ErrLockLost) {
				return fmt.Errorf("%w: %w", ErrJobLocked, err)
			}
			if err != nil {
				r.log.Warn("Failed to refresh job lock", "error", err)
			}
		}
	}
}

func (r *Reconciler) archive(ctx context.Context) {
	key, err := r.archiver.Archive(ctx, r.settings.JobName, r.runID, r.attempts.Attempts())
	if err != nil {
		r.log.Warn("Failed to archive attempts", "error", err)
		return
	}
	if key != "" {
		r.log.Info("Attempts archived", "bucket", r.settings.Archive.Bucket, "key", key)
	}
}

// Close releases the storage backend and the RPC client.
func (r *Reconciler) Close() error {
	var errs []error
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close storage: %w", err))
		}
	}
	if r.client != nil {
		if err := r.client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close rpc: %w", err))
		}
	}
	return errors.Join(errs...)
}
