// Package config builds the immutable run settings from a YAML file, the
// environment and command-line flags, in that order of precedence.
package config

import (
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vietddude/reconciler/internal/infra/archive"
	redisclient "github.com/vietddude/reconciler/internal/infra/redis"
	"github.com/vietddude/reconciler/internal/infra/storage/postgres"
)

// Storage drivers.
const (
	DriverFile     = "file"
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Defaults applied before any source is read.
const (
	DefaultEndBlock       uint64 = 9410087
	DefaultBlockInterval  uint64 = 1000
	DefaultStorageDir            = "./storage"
	DefaultRPCTimeout            = 30 * time.Second
	DefaultRPCMaxAttempts        = 1
)

// AppConfig represents the raw configuration before validation.
type AppConfig struct {
	Job         string         `yaml:"job"`
	StartBlock  uint64         `yaml:"start"`
	EndBlock    uint64         `yaml:"end"`
	Oracle      string         `yaml:"oracle"`
	Node        string         `yaml:"node"`
	Fake        string         `yaml:"fake"`
	Interval    uint64         `yaml:"interval"`
	Resume      bool           `yaml:"resume"`
	MetricsPort int            `yaml:"metrics_port"`
	RPC         RPCConfig      `yaml:"rpc"`
	Storage     StorageConfig  `yaml:"storage"`
	Logging     LoggingConfig  `yaml:"logging"`
	Archive     archive.Config `yaml:"archive"`
}

// RPCConfig holds the ledger endpoint settings.
type RPCConfig struct {
	URL         string        `yaml:"url"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// StorageConfig selects where checkpoints and attempts are kept.
type StorageConfig struct {
	Driver   string             `yaml:"driver"` // file, memory, postgres, redis
	Dir      string             `yaml:"dir"`
	Postgres postgres.Config    `yaml:"postgres"`
	Redis    redisclient.Config `yaml:"redis"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// Settings is the validated, immutable configuration of one run.
type Settings struct {
	JobName       string      // job id as given, keys the checkpoint
	JobID         common.Hash // job id as it appears in topic[1]
	StartBlock    uint64
	EndBlock      uint64
	BlockInterval uint64
	Oracle        common.Address
	Node          common.Address
	Response      common.Hash
	Resume        bool

	RPCURL         string
	RPCTimeout     time.Duration
	RPCMaxAttempts int

	Storage     StorageConfig
	Archive     archive.Config
	LogLevel    slog.Level
	MetricsPort int
}

// Default returns a configuration holding only defaults.
func Default() *AppConfig {
	return &AppConfig{
		EndBlock: DefaultEndBlock,
		Interval: DefaultBlockInterval,
		RPC: RPCConfig{
			Timeout:     DefaultRPCTimeout,
			MaxAttempts: DefaultRPCMaxAttempts,
		},
		Storage: StorageConfig{
			Driver: DriverFile,
			Dir:    DefaultStorageDir,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}
