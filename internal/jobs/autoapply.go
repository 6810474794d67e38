package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/swdrow/rowlab/internal/rating"
)

// Applier runs a bounded rating application pass for one team.
// Satisfied by rating.BatchUpdater.
type Applier interface {
	ApplyPendingObservations(ctx context.Context, teamID string, opts rating.ApplyOptions) (*rating.ApplyResult, error)
}

// JobMetrics provides centralized background job metrics tracking.
type JobMetrics interface {
	IncJobsTotal(jobType, status string)
	ObserveJobDuration(jobType string, seconds float64)
	IncJobErrors(jobType, errorType string)
}

// DefaultApplyInterval is the default interval between application cycles.
const DefaultApplyInterval = 30 * time.Second

// DefaultApplyTimeout is the default timeout for a single application cycle.
const DefaultApplyTimeout = 30 * time.Second

// AutoApplyJobConfig configures the passive observation auto-apply job.
type AutoApplyJobConfig struct {
	// Interval is the duration between application cycles.
	Interval time.Duration
	// BatchLimit caps observations applied per team per cycle. Zero
	// means the applier's default.
	BatchLimit int
	// Logger for job activity.
	Logger *slog.Logger
	// Metrics for centralized background job tracking.
	Metrics JobMetrics
	// Timeout for each application cycle.
	Timeout time.Duration
}

// AutoApplyJob periodically applies pending passive observations for
// teams marked dirty since the last cycle. Application itself is
// idempotent, so a missed ClearDirty or an extra cycle is harmless.
type AutoApplyJob struct {
	config       AutoApplyJobConfig
	dirtyTracker *DirtyTracker
	applier      Applier

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewAutoApplyJob creates a new auto-apply job.
func NewAutoApplyJob(config AutoApplyJobConfig, dirtyTracker *DirtyTracker, applier Applier) *AutoApplyJob {
	if config.Interval == 0 {
		config.Interval = DefaultApplyInterval
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultApplyTimeout
	}

	return &AutoApplyJob{
		config:       config,
		dirtyTracker: dirtyTracker,
		applier:      applier,
	}
}

// Start begins the periodic application job.
// Returns immediately; the job runs in a background goroutine.
func (j *AutoApplyJob) Start(ctx context.Context) error {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return nil
	}
	j.running = true
	j.stopCh = make(chan struct{})
	j.doneCh = make(chan struct{})
	j.mu.Unlock()

	go j.run(ctx)
	return nil
}

// Stop signals the job to stop and waits for it to finish.
func (j *AutoApplyJob) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	stopCh := j.stopCh
	doneCh := j.doneCh
	j.mu.Unlock()

	close(stopCh)
	<-doneCh

	j.mu.Lock()
	j.running = false
	j.mu.Unlock()
}

// IsRunning returns whether the job is currently running.
func (j *AutoApplyJob) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

// run is the main loop for the auto-apply job.
func (j *AutoApplyJob) run(ctx context.Context) {
	defer close(j.doneCh)

	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.config.Logger.Info("auto-apply job stopping due to context cancellation")
			return
		case <-j.stopCh:
			j.config.Logger.Info("auto-apply job stopping due to stop signal")
			return
		case <-ticker.C:
			j.applyDirtyTeams(ctx)
		}
	}
}

// applyDirtyTeams runs one application pass over every dirty team.
func (j *AutoApplyJob) applyDirtyTeams(parentCtx context.Context) {
	dirtyTeams := j.dirtyTracker.DirtyTeams()
	if len(dirtyTeams) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(parentCtx, j.config.Timeout)
	defer cancel()

	startTime := time.Now()
	teamCount := len(dirtyTeams)
	var successCount, totalProcessed, totalSkipped int

	j.config.Logger.Info("applying pending observations",
		"dirty_teams", teamCount)

	for i, teamID := range dirtyTeams {
		select {
		case <-ctx.Done():
			j.config.Logger.Error("auto-apply timeout exceeded",
				"processed", i,
				"total", teamCount,
				"timeout", j.config.Timeout)
			if j.config.Metrics != nil {
				j.config.Metrics.IncJobErrors(JobTypePassiveApply, "timeout")
				j.config.Metrics.IncJobsTotal(JobTypePassiveApply, StatusFailure)
				j.config.Metrics.ObserveJobDuration(JobTypePassiveApply, time.Since(startTime).Seconds())
			}
			return
		default:
		}

		result, err := j.applier.ApplyPendingObservations(ctx, teamID, rating.ApplyOptions{Limit: j.config.BatchLimit})
		if err != nil {
			j.config.Logger.Error("failed to apply pending observations",
				"team_id", teamID,
				"error", err)
			if j.config.Metrics != nil {
				j.config.Metrics.IncJobErrors(JobTypePassiveApply, "apply_error")
			}
			continue
		}

		// A full batch or skipped items means the backlog wasn't
		// drained; leave the team dirty for the next cycle.
		if !result.Remaining {
			j.dirtyTracker.ClearDirty(teamID)
		}
		successCount++
		totalProcessed += result.Processed
		totalSkipped += result.Skipped
	}

	duration := time.Since(startTime).Seconds()
	status := StatusSuccess
	if successCount < teamCount {
		status = StatusFailure
	}

	if j.config.Metrics != nil {
		j.config.Metrics.IncJobsTotal(JobTypePassiveApply, status)
		j.config.Metrics.ObserveJobDuration(JobTypePassiveApply, duration)
	}

	j.config.Logger.Info("auto-apply cycle completed",
		"duration_seconds", duration,
		"teams_processed", successCount,
		"teams_failed", teamCount-successCount,
		"observations_applied", totalProcessed,
		"observations_skipped", totalSkipped)
}

// ApplyNow immediately applies all dirty teams without waiting for the
// ticker. Useful for testing or forcing immediate updates.
func (j *AutoApplyJob) ApplyNow() {
	j.applyDirtyTeams(context.Background())
}
