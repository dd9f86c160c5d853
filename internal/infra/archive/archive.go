// Package archive uploads the attempts recorded by one run to S3 as a
// gzip-compressed JSON Lines object.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/vietddude/reconciler/internal/core/domain"
)

// Config holds archive settings. An empty Bucket disables archiving.
type Config struct {
	Bucket  string        `yaml:"bucket"`
	Prefix  string        `yaml:"prefix"`
	Region  string        `yaml:"region"`
	Timeout time.Duration `yaml:"timeout"`
	Retries int           `yaml:"retries"`
}

// Enabled reports whether a bucket is configured.
func (c Config) Enabled() bool {
	return c.Bucket != ""
}

// Uploader stores one object.
type Uploader interface {
	Upload(ctx context.Context, key string, body []byte) error
}

// Archiver encodes and uploads the attempts of a run.
type Archiver struct {
	uploader Uploader
	prefix   string
	log      *slog.Logger
}

// NewArchiver creates an archiver writing under prefix.
func NewArchiver(uploader Uploader, prefix string) *Archiver {
	return &Archiver{
		uploader: uploader,
		prefix:   prefix,
		log:      slog.Default().With("component", "archive"),
	}
}

// Key returns the object key of a run: <prefix>/<job>/<run-id>.jsonl.gz.
func (a *Archiver) Key(jobID, runID string) string {
	return path.Join(a.prefix, jobID, runID+".jsonl.gz")
}

// Archive uploads the attempts and returns the object key.
// Nothing is uploaded for an empty run.
func (a *Archiver) Archive(ctx context.Context, jobID, runID string, attempts []*domain.FulfillmentAttempt) (string, error) {
	if len(attempts) == 0 {
		a.log.Info("No attempts to archive", "job", jobID, "run_id", runID)
		return "", nil
	}

	records := make([]domain.AttemptRecord, len(attempts))
	for i, at := range attempts {
		records[i] = at.Record()
	}

	body, err := EncodeJSONLGZ(records)
	if err != nil {
		return "", fmt.Errorf("encode archive: %w", err)
	}

	key := a.Key(jobID, runID)
	if err := a.uploader.Upload(ctx, key, body); err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}

	a.log.Info("Archived attempts",
		"job", jobID,
		"run_id", runID,
		"key", key,
		"count", len(records),
		"bytes", len(body),
	)
	return key, nil
}
