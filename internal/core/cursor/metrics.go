package cursor

import (
	"time"
)

// blockRecord holds timing data for a checkpoint write.
type blockRecord struct {
	BlockNumber uint64
	ProcessedAt time.Time
}

// Metrics holds cursor performance data.
type Metrics struct {
	BlocksPerSecond float64
	LastCheckpoint  uint64
	LastAdvanceAt   time.Time
	StateHistory    []Transition
}

// MetricsCollector tracks checkpoint throughput over a sliding window.
type MetricsCollector struct {
	windowSize  int           // number of checkpoints to track
	blockTimes  []blockRecord // ring buffer of checkpoint records
	transitions []Transition  // recent state changes
}

// RecordBlock records a checkpoint write.
func (mc *MetricsCollector) RecordBlock(blockNumber uint64, processedAt time.Time) {
	record := blockRecord{
		BlockNumber: blockNumber,
		ProcessedAt: processedAt,
	}

	if len(mc.blockTimes) >= mc.windowSize {
		// Shift elements left, drop oldest
		copy(mc.blockTimes, mc.blockTimes[1:])
		mc.blockTimes[len(mc.blockTimes)-1] = record
	} else {
		mc.blockTimes = append(mc.blockTimes, record)
	}
}

// RecordTransition records a state transition.
func (mc *MetricsCollector) RecordTransition(t Transition) {
	// Keep only last 10 transitions
	if len(mc.transitions) >= 10 {
		copy(mc.transitions, mc.transitions[1:])
		mc.transitions[len(mc.transitions)-1] = t
	} else {
		mc.transitions = append(mc.transitions, t)
	}
}

// GetMetrics returns current metrics.
func (mc *MetricsCollector) GetMetrics() Metrics {
	m := Metrics{
		StateHistory: make([]Transition, len(mc.transitions)),
	}
	copy(m.StateHistory, mc.transitions)

	if len(mc.blockTimes) == 0 {
		return m
	}
	last := mc.blockTimes[len(mc.blockTimes)-1]
	m.LastCheckpoint = last.BlockNumber
	m.LastAdvanceAt = last.ProcessedAt

	// Blocks covered per second across the window
	first := mc.blockTimes[0]
	duration := last.ProcessedAt.Sub(first.ProcessedAt)
	if duration > 0 && last.BlockNumber > first.BlockNumber {
		m.BlocksPerSecond = float64(last.BlockNumber-first.BlockNumber) / duration.Seconds()
	}

	return m
}
