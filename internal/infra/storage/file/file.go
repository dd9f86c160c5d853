// Package file stores checkpoints and the attempt log as plain files in one
// directory: one checkpoint file per job, named after the job, holding the
// block boundary as 0x-hex text, and a shared append-only attempt log whose
// entries are JSON arrays terminated by ",\n".
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/vietddude/reconciler/internal/core/domain"
	"github.com/vietddude/reconciler/internal/infra/storage"
)

// AttemptLogName is the file name of the attempt log inside the storage directory.
const AttemptLogName = "unfulfilled_requests"

// NewStore creates the directory if needed and returns a file-backed store.
func NewStore(dir string) (*storage.Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return storage.NewStore(NewCheckpointRepo(dir), NewAttemptRepo(dir), nil), nil
}

// CheckpointRepo keeps one file per job.
type CheckpointRepo struct {
	dir string
}

func NewCheckpointRepo(dir string) *CheckpointRepo {
	return &CheckpointRepo{dir: dir}
}

// Path returns the checkpoint file of jobID.
func (r *CheckpointRepo) Path(jobID string) string {
	return filepath.Join(r.dir, fileName(jobID))
}

func (r *CheckpointRepo) Get(ctx context.Context, jobID string) (*domain.Checkpoint, error) {
	path := r.Path(jobID)
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, storage.ErrCheckpointNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	text := strings.TrimSpace(string(raw))
	block, err := strconv.ParseUint(strings.TrimPrefix(text, "0x"), 16, 64)
	if err != nil || !strings.HasPrefix(text, "0x") {
		return nil, fmt.Errorf("invalid checkpoint %q in %s", text, path)
	}

	cp := &domain.Checkpoint{JobID: jobID, Block: block}
	if info, err := os.Stat(path); err == nil {
		cp.UpdatedAt = info.ModTime()
	}
	return cp, nil
}

// Save replaces the checkpoint file through a rename so readers never see a partial write.
func (r *CheckpointRepo) Save(ctx context.Context, cp *domain.Checkpoint) error {
	path := r.Path(cp.JobID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(fmt.Sprintf("0x%x", cp.Block)), 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}

// AttemptRepo appends attempt tuples to the shared log.
type AttemptRepo struct {
	path string
	mu   sync.Mutex
}

func NewAttemptRepo(dir string) *AttemptRepo {
	return &AttemptRepo{path: filepath.Join(dir, AttemptLogName)}
}

// Path returns the attempt log location.
func (r *AttemptRepo) Path() string {
	return r.path
}

func (r *AttemptRepo) Append(ctx context.Context, a *domain.FulfillmentAttempt) error {
	entry, err := json.Marshal(a.Tuple())
	if err != nil {
		return fmt.Errorf("encode attempt: %w", err)
	}
	entry = append(entry, ",\n"...)

	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := os.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open attempt log: %w", err)
	}
	if _, err := f.Write(entry); err != nil {
		f.Close()
		return fmt.Errorf("append attempt: %w", err)
	}
	return f.Close()
}

// fileName keeps job identifiers from escaping the storage directory.
func fileName(jobID string) string {
	return strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(jobID)
}
