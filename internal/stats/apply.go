// Package stats provides utilities for tracking observation application statistics.
package stats

import (
	"fmt"
	"log/slog"
	"sync/atomic"
)

// ApplyStats tracks cumulative statistics for rating application batches.
// All operations are thread-safe using atomic counters.
type ApplyStats struct {
	processed int64 // Observations applied to ratings
	skipped   int64 // Observations skipped due to per-item failures
	noise     int64 // Inputs ignored as sub-threshold noise
}

// NewApplyStats creates a new ApplyStats instance.
func NewApplyStats() *ApplyStats {
	return &ApplyStats{}
}

// RecordProcessed adds to the processed counter.
func (s *ApplyStats) RecordProcessed(n int) {
	atomic.AddInt64(&s.processed, int64(n))
}

// RecordSkipped adds to the skipped counter.
func (s *ApplyStats) RecordSkipped(n int) {
	atomic.AddInt64(&s.skipped, int64(n))
}

// RecordNoise increments the ignored-as-noise counter.
func (s *ApplyStats) RecordNoise() {
	atomic.AddInt64(&s.noise, 1)
}

// Processed returns the total number of applied observations.
func (s *ApplyStats) Processed() int64 {
	return atomic.LoadInt64(&s.processed)
}

// Skipped returns the total number of skipped observations.
func (s *ApplyStats) Skipped() int64 {
	return atomic.LoadInt64(&s.skipped)
}

// Noise returns the total number of sub-threshold inputs.
func (s *ApplyStats) Noise() int64 {
	return atomic.LoadInt64(&s.noise)
}

// Reset resets all counters to zero.
func (s *ApplyStats) Reset() {
	atomic.StoreInt64(&s.processed, 0)
	atomic.StoreInt64(&s.skipped, 0)
	atomic.StoreInt64(&s.noise, 0)
}

// String returns a human-readable summary of the statistics.
func (s *ApplyStats) String() string {
	return fmt.Sprintf("processed=%d skipped=%d noise=%d", s.Processed(), s.Skipped(), s.Noise())
}

// LogSummary logs a summary of application statistics at INFO level.
// Useful for periodic reporting from the auto-apply job.
func (s *ApplyStats) LogSummary(logger *slog.Logger, teamID string) {
	logger.Info("apply statistics",
		"team_id", teamID,
		"processed", s.Processed(),
		"skipped", s.Skipped(),
		"noise", s.Noise(),
	)
}
