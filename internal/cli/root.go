package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/reconciler/internal/control"
	"github.com/vietddude/reconciler/internal/core/config"
)

type options struct {
	cfgPath string
	isDebug bool

	job         string
	start       string
	end         string
	oracle      string
	node        string
	fake        string
	rpcURL      string
	interval    string
	storageDir  string
	metricsPort int
	resume      bool
}

func newRootCmd() (*cobra.Command, *options) {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "reconciler",
		Short: "Oracle request reconciler",
		Long: `Reconciler scans historical blocks for OracleRequest events of one job,
checks each request's fulfillment flag in contract storage and probes a
fulfillOracleRequest call for every request that was never answered.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.cfgPath, "config", "", "optional YAML config file")
	f.BoolVar(&opts.isDebug, "debug", false, "enable debug logging")
	f.StringVar(&opts.job, "job", "", "job id to reconcile (env JOB_ID)")
	f.StringVar(&opts.start, "start", "", "first block to scan (env START_BLOCK)")
	f.StringVar(&opts.end, "end", "", "block to stop before (env END_BLOCK)")
	f.StringVar(&opts.oracle, "oracle", "", "oracle contract address (env ORACLE_ADDRESS)")
	f.StringVar(&opts.node, "node", "", "operator account the probe is sent from (env NODE_ADDRESS)")
	f.StringVar(&opts.fake, "fake", "", "response sent with every probe (env FAKE_RESPONSE)")
	f.StringVar(&opts.rpcURL, "rpc", "", "JSON-RPC endpoint (env RPC_URL)")
	f.StringVar(&opts.interval, "interval", "", "blocks per getLogs range (env BLOCK_INTERVAL)")
	f.StringVar(&opts.storageDir, "storage-dir", "", "directory for checkpoints and the attempt log (env STORAGE_DIR)")
	f.IntVar(&opts.metricsPort, "metrics-port", 0, "serve /health and /metrics on this port, 0 disables (env METRICS_PORT)")
	f.BoolVar(&opts.resume, "resume", false, "continue from the stored checkpoint (env RESUME)")

	return cmd, opts
}

// Execute runs the root command and exits 1 on any failure.
func Execute() {
	cmd, _ := newRootCmd()
	if err := cmd.Execute(); err != nil {
		slog.Error("Reconciler failed", "error", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, opts *options) error {
	_ = godotenv.Load()

	settings, err := loadSettings(cmd, opts, os.LookupEnv)
	if err != nil {
		stylelog.InitDefault()
		return err
	}

	stylelog.InitDefault(&tint.Options{
		Level:      settings.LogLevel,
		TimeFormat: time.RFC3339,
	})
	slog.Info("Logger initialized", "level", settings.LogLevel.String())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := control.NewReconciler(ctx, settings)
	if err != nil {
		return fmt.Errorf("failed to initialize reconciler: %w", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			slog.Warn("Error during shutdown", "error", err)
		}
	}()

	slog.Info("Reconciler started",
		"job", settings.JobName,
		"run_id", app.RunID(),
		"start", settings.StartBlock,
		"end", settings.EndBlock,
		"storage", settings.Storage.Driver,
	)

	summary, err := app.Run(ctx)
	if errors.Is(err, context.Canceled) {
		slog.Info("Received signal, scan stopped", "checkpoint", summary.LastCheckpoint)
	}
	return err
}

// loadSettings merges the YAML file, the environment and the flags that were
// set explicitly, then validates the result.
func loadSettings(cmd *cobra.Command, opts *options, lookup func(string) (string, bool)) (config.Settings, error) {
	cfg := config.Default()
	if opts.cfgPath != "" {
		loaded, err := config.Load(opts.cfgPath)
		if err != nil {
			return config.Settings{}, err
		}
		cfg = loaded
	}

	if err := cfg.ApplyEnv(lookup); err != nil {
		return config.Settings{}, err
	}
	if err := applyFlags(cmd, opts, cfg); err != nil {
		return config.Settings{}, err
	}
	return cfg.Validate()
}

func applyFlags(cmd *cobra.Command, opts *options, cfg *config.AppConfig) error {
	changed := cmd.Flags().Changed

	str := map[string]struct {
		val string
		dst *string
	}{
		"job":         {opts.job, &cfg.Job},
		"oracle":      {opts.oracle, &cfg.Oracle},
		"node":        {opts.node, &cfg.Node},
		"fake":        {opts.fake, &cfg.Fake},
		"rpc":         {opts.rpcURL, &cfg.RPC.URL},
		"storage-dir": {opts.storageDir, &cfg.Storage.Dir},
	}
	for name, f := range str {
		if changed(name) {
			*f.dst = f.val
		}
	}

	blocks := map[string]struct {
		val string
		dst *uint64
	}{
		"start":    {opts.start, &cfg.StartBlock},
		"end":      {opts.end, &cfg.EndBlock},
		"interval": {opts.interval, &cfg.Interval},
	}
	for name, f := range blocks {
		if !changed(name) {
			continue
		}
		n, err := config.ParseBlock(f.val)
		if err != nil {
			return fmt.Errorf("%w: --%s: %w", config.ErrInvalid, name, err)
		}
		*f.dst = n
	}

	if changed("metrics-port") {
		cfg.MetricsPort = opts.metricsPort
	}
	if changed("resume") {
		cfg.Resume = opts.resume
	}
	if opts.isDebug {
		cfg.Logging.Level = "debug"
	}
	return nil
}
