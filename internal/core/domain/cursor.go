package domain

import "time"

// Checkpoint is the highest block boundary processed for a job.
type Checkpoint struct {
	JobID     string
	Block     uint64
	UpdatedAt time.Time
}

type ScanState string

const (
	ScanStateIdle        ScanState = "idle"
	ScanStateScanning    ScanState = "scanning"
	ScanStateDispatching ScanState = "dispatching"
	ScanStateDone        ScanState = "done"
)
