package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"gopkg.in/yaml.v2"
)

// ErrInvalid is returned for any configuration that cannot produce Settings.
var ErrInvalid = errors.New("invalid configuration")

// Load reads configuration from a YAML file on top of the defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overlays environment variables. lookup is usually os.LookupEnv.
func (c *AppConfig) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *uint64) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := ParseBlock(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	str("JOB_ID", &c.Job)
	num("START_BLOCK", &c.StartBlock)
	num("END_BLOCK", &c.EndBlock)
	str("ORACLE_ADDRESS", &c.Oracle)
	str("NODE_ADDRESS", &c.Node)
	str("FAKE_RESPONSE", &c.Fake)
	str("RPC_URL", &c.RPC.URL)
	num("BLOCK_INTERVAL", &c.Interval)
	str("STORAGE_DRIVER", &c.Storage.Driver)
	str("STORAGE_DIR", &c.Storage.Dir)
	str("DATABASE_URL", &c.Storage.Postgres.URL)
	str("REDIS_URL", &c.Storage.Redis.URL)
	str("LOG_LEVEL", &c.Logging.Level)
	str("ARCHIVE_BUCKET", &c.Archive.Bucket)

	if v, ok := lookup("METRICS_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("METRICS_PORT: %w", err))
		} else {
			c.MetricsPort = port
		}
	}
	if v, ok := lookup("RESUME"); ok && v != "" {
		resume, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("RESUME: %w", err))
		} else {
			c.Resume = resume
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// Validate checks the configuration and converts it into Settings.
func (c *AppConfig) Validate() (Settings, error) {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	s := Settings{
		JobName:        c.Job,
		StartBlock:     c.StartBlock,
		EndBlock:       c.EndBlock,
		BlockInterval:  c.Interval,
		Resume:         c.Resume,
		RPCURL:         c.RPC.URL,
		RPCTimeout:     c.RPC.Timeout,
		RPCMaxAttempts: c.RPC.MaxAttempts,
		Storage:        c.Storage,
		Archive:        c.Archive,
		MetricsPort:    c.MetricsPort,
	}

	if c.Job == "" {
		invalid("job id is required")
	} else if id, err := ParseBytes32(c.Job); err != nil {
		invalid("job id: %v", err)
	} else {
		s.JobID = id
	}

	if c.Fake == "" {
		invalid("fake response is required")
	} else if resp, err := ParseBytes32(c.Fake); err != nil {
		invalid("fake response: %v", err)
	} else {
		s.Response = resp
	}

	if !common.IsHexAddress(c.Oracle) {
		invalid("oracle address %q is not a hex address", c.Oracle)
	} else {
		s.Oracle = common.HexToAddress(c.Oracle)
	}
	if !common.IsHexAddress(c.Node) {
		invalid("node address %q is not a hex address", c.Node)
	} else {
		s.Node = common.HexToAddress(c.Node)
	}

	if u, err := url.Parse(c.RPC.URL); c.RPC.URL == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		invalid("rpc url %q must be an http(s) url", c.RPC.URL)
	}
	if s.RPCTimeout <= 0 {
		s.RPCTimeout = DefaultRPCTimeout
	}
	if s.RPCMaxAttempts < 1 {
		s.RPCMaxAttempts = DefaultRPCMaxAttempts
	}

	if s.EndBlock == 0 {
		s.EndBlock = DefaultEndBlock
	}
	if s.BlockInterval == 0 {
		s.BlockInterval = DefaultBlockInterval
	}
	if s.EndBlock < s.StartBlock {
		invalid("end block %d is below start block %d", s.EndBlock, s.StartBlock)
	}

	switch s.Storage.Driver {
	case "", DriverFile:
		s.Storage.Driver = DriverFile
		if s.Storage.Dir == "" {
			s.Storage.Dir = DefaultStorageDir
		}
	case DriverMemory:
	case DriverPostgres:
		if s.Storage.Postgres.URL == "" {
			invalid("storage.postgres.url is required for the postgres driver")
		}
	case DriverRedis:
		if s.Storage.Redis.URL == "" {
			invalid("storage.redis.url is required for the redis driver")
		}
	default:
		invalid("unknown storage driver %q", s.Storage.Driver)
	}

	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		invalid("metrics port %d out of range", c.MetricsPort)
	}

	level, err := ParseLevel(c.Logging.Level)
	if err != nil {
		invalid("%v", err)
	}
	s.LogLevel = level

	if len(errs) > 0 {
		return Settings{}, fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return s, nil
}

// ParseBlock parses a block number in decimal or 0x-hex.
func ParseBlock(s string) (uint64, error) {
	return strconv.ParseUint(strings.TrimSpace(s), 0, 64)
}

// ParseBytes32 converts a 0x-hex value or a plain ASCII string of at most
// 32 bytes into a bytes32, left-aligned and zero-padded on the right.
func ParseBytes32(s string) (common.Hash, error) {
	var out common.Hash

	raw := []byte(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		b, err := hexutil.Decode("0x" + s[2:])
		if err != nil {
			return out, fmt.Errorf("decode %q: %w", s, err)
		}
		raw = b
	}
	if len(raw) > common.HashLength {
		return out, fmt.Errorf("%q is longer than %d bytes", s, common.HashLength)
	}
	copy(out[:], raw)
	return out, nil
}

// ParseLevel maps a level name onto slog. An empty name is info.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if name == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log level %q: %w", name, err)
	}
	return level, nil
}
