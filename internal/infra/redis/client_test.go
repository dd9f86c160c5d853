package redis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"
)

// newLiveClient connects to REDIS_TEST_URL or skips the test.
func newLiveClient(t *testing.T) *Client {
	t.Helper()
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("Skipping live redis test. Set REDIS_TEST_URL to run.")
	}
	c, err := NewClient(context.Background(), Config{URL: url})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestJobLock_RefreshRequiresOwnership(t *testing.T) {
	c := newLiveClient(t)
	ctx := context.Background()
	job := "lock-test-" + time.Now().Format("150405.000000")
	t.Cleanup(func() { _ = c.rdb.Del(ctx, lockKey(job)).Err() })

	ok, err := c.AcquireLock(ctx, job, "run-a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("AcquireLock = %v, %v; want true", ok, err)
	}
	if ok, _ := c.AcquireLock(ctx, job, "run-b", time.Minute); ok {
		t.Fatal("second run must not acquire a held lock")
	}

	if err := c.RefreshLock(ctx, job, "run-a", 2*time.Minute); err != nil {
		t.Errorf("owner refresh failed: %v", err)
	}
	if err := c.RefreshLock(ctx, job, "run-b", 2*time.Minute); !errors.Is(err, ErrLockLost) {
		t.Errorf("foreign refresh = %v, want ErrLockLost", err)
	}

	if err := c.ReleaseLock(ctx, job, "run-b"); err != nil {
		t.Fatalf("ReleaseLock failed: %v", err)
	}
	if owner, _ := c.rdb.Get(ctx, lockKey(job)).Result(); owner != "run-a" {
		t.Errorf("lock owner after foreign release = %q, want run-a", owner)
	}

	if err := c.ReleaseLock(ctx, job, "run-a"); err != nil {
		t.Fatalf("ReleaseLock failed: %v", err)
	}
	if err := c.RefreshLock(ctx, job, "run-a", time.Minute); !errors.Is(err, ErrLockLost) {
		t.Errorf("refresh after release = %v, want ErrLockLost", err)
	}
}
