package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/reconciler/internal/infra/storage"
)

// LockTTL bounds how long a crashed instance keeps its job locked.
const LockTTL = time.Minute

// ErrLockLost is returned by RefreshLock when another run owns the lock or it expired.
var ErrLockLost = errors.New("job lock lost")

// KEYS[1] lock key, ARGV[1] owner run id, ARGV[2] ttl in ms.
var refreshLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

// KEYS[1] lock key, ARGV[1] owner run id.
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Client wraps Redis operations for checkpoints, the attempt log and the job lock.
type Client struct {
	rdb *redis.Client
}

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// NewClient creates a new Redis client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Key helpers
func checkpointKey(jobID string) string {
	return fmt.Sprintf("reconciler:checkpoint:%s", jobID)
}

func attemptsKey(jobID string) string {
	return fmt.Sprintf("reconciler:attempts:%s", jobID)
}

func lockKey(jobID string) string {
	return fmt.Sprintf("reconciler:lock:%s", jobID)
}

// AcquireLock claims the job for this run. It returns false when another
// instance holds the lock.
func (c *Client) AcquireLock(ctx context.Context, jobID, runID string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, lockKey(jobID), runID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx failed: %w", err)
	}
	return ok, nil
}

// RefreshLock extends the TTL of the lock while runID still owns it.
func (c *Client) RefreshLock(ctx context.Context, jobID, runID string, ttl time.Duration) error {
	n, err := refreshLockScript.Run(ctx, c.rdb, []string{lockKey(jobID)}, runID, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("refresh lock failed: %w", err)
	}
	if n == 0 {
		return ErrLockLost
	}
	return nil
}

// ReleaseLock releases the job lock if runID still owns it.
func (c *Client) ReleaseLock(ctx context.Context, jobID, runID string) error {
	if err := releaseLockScript.Run(ctx, c.rdb, []string{lockKey(jobID)}, runID).Err(); err != nil {
		return fmt.Errorf("release lock failed: %w", err)
	}
	return nil
}

// NewStore connects and returns a Redis-backed store along with the client
// used for the job lock.
func NewStore(ctx context.Context, cfg Config) (*storage.Store, *Client, error) {
	client, err := NewClient(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return storage.NewStore(NewCheckpointRepo(client), NewAttemptRepo(client), client.Close), client, nil
}
