package rating

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/swdrow/rowlab/internal/passive"
	"github.com/swdrow/rowlab/internal/seatrace"
	"github.com/swdrow/rowlab/internal/stats"
	"github.com/swdrow/rowlab/internal/tracing"
)

// DefaultApplyLimit bounds how many observations a single batch processes.
// Callers with larger backlogs chunk by repeated calls.
const DefaultApplyLimit = 100

// ApplyOptions controls a batch application pass.
type ApplyOptions struct {
	// Limit is the maximum number of observations to process. Zero means
	// DefaultApplyLimit.
	Limit int
	// DryRun computes the would-be updates without persisting anything
	// and without invoking the rating-update primitive.
	DryRun bool
}

// ObservationUpdate is one entry in a batch application result.
type ObservationUpdate struct {
	ObservationID string  `json:"observation_id"`
	WinnerID      string  `json:"winner_id"`
	LoserID       string  `json:"loser_id"`
	Margin        float64 `json:"margin"`
	Weight        float64 `json:"weight"`
	WinnerBefore  float64 `json:"winner_before"`
	WinnerAfter   float64 `json:"winner_after"`
	LoserBefore   float64 `json:"loser_before"`
	LoserAfter    float64 `json:"loser_after"`
	DryRun        bool    `json:"dry_run,omitempty"`
}

// ApplyResult summarizes a batch application pass.
type ApplyResult struct {
	Processed int                 `json:"processed"`
	Skipped   int                 `json:"skipped"`
	Updates   []ObservationUpdate `json:"updates"`
	// Remaining reports whether unapplied observations may still exist
	// after this pass: the listing hit its limit, or failed items stayed
	// pending. Callers tracking per-team dirtiness keep the team marked
	// while this is true.
	Remaining bool `json:"remaining"`
}

// BatchUpdater consumes pending passive observations and formal seat race
// comparisons and applies weighted rating updates through the
// rating-update primitive.
type BatchUpdater struct {
	observations passive.ObservationRepository
	primitive    Updater
	store        Store
	stats        *stats.ApplyStats
	logger       *slog.Logger
	now          func() time.Time
}

// NewBatchUpdater creates a batch updater. stats may be nil.
func NewBatchUpdater(observations passive.ObservationRepository, primitive Updater, store Store, applyStats *stats.ApplyStats, logger *slog.Logger) *BatchUpdater {
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchUpdater{
		observations: observations,
		primitive:    primitive,
		store:        store,
		stats:        applyStats,
		logger:       logger,
		now:          time.Now,
	}
}

// ApplyPendingObservations fetches unapplied observations for the team,
// oldest first up to the limit, and applies each through the rating
// primitive at the observation's weight.
//
// Each observation is claimed by atomically transitioning
// AppliedToRatings false -> true in the same commit as its rating write,
// so concurrent batches over the same team apply each observation at most
// once. Per-item failures are logged and counted in Skipped; the batch
// continues with the remaining observations.
func (u *BatchUpdater) ApplyPendingObservations(ctx context.Context, teamID string, opts ApplyOptions) (_ *ApplyResult, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "apply_pending_observations")
	defer func() { endSpan(err) }()
	tracing.SetAttributes(ctx,
		attribute.String("team_id", teamID),
		attribute.Bool("dry_run", opts.DryRun))

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultApplyLimit
	}

	pending, err := u.observations.ListPending(ctx, teamID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending observations: %w", err)
	}

	result := &ApplyResult{}
	for _, obs := range pending {
		winnerID, loserID := obs.SplitDifference.WinnerLoser(obs.SwappedAthlete1ID, obs.SwappedAthlete2ID)
		margin := obs.SplitDifference.Abs()

		if opts.DryRun {
			update := u.previewObservation(ctx, &obs, winnerID, loserID, margin)
			result.Updates = append(result.Updates, update)
			result.Processed++
			continue
		}

		var applied *Update
		err := u.observations.Apply(ctx, obs.ID, u.now(), func(ctx context.Context) error {
			var updateErr error
			applied, updateErr = u.primitive.UpdateRatings(ctx, teamID, winnerID, loserID, margin, UpdateOptions{Weight: obs.Weight})
			return updateErr
		})
		if errors.Is(err, passive.ErrAlreadyApplied) {
			// A concurrent batch won the claim; nothing to do.
			u.logger.Debug("observation claimed by concurrent batch",
				"observation_id", obs.ID,
				"team_id", teamID)
			continue
		}
		if err != nil {
			u.logger.Error("failed to apply observation",
				"observation_id", obs.ID,
				"team_id", teamID,
				"error", err)
			result.Skipped++
			continue
		}

		result.Updates = append(result.Updates, ObservationUpdate{
			ObservationID: obs.ID,
			WinnerID:      applied.WinnerID,
			LoserID:       applied.LoserID,
			Margin:        applied.Margin,
			Weight:        applied.Weight,
			WinnerBefore:  applied.WinnerBefore,
			WinnerAfter:   applied.WinnerAfter,
			LoserBefore:   applied.LoserBefore,
			LoserAfter:    applied.LoserAfter,
		})
		result.Processed++
	}

	result.Remaining = len(pending) == limit || result.Skipped > 0

	if u.stats != nil && !opts.DryRun {
		u.stats.RecordProcessed(result.Processed)
		u.stats.RecordSkipped(result.Skipped)
	}

	u.logger.Info("applied pending observations",
		"team_id", teamID,
		"processed", result.Processed,
		"skipped", result.Skipped,
		"dry_run", opts.DryRun)

	return result, nil
}

// previewObservation computes the would-be update for a dry run. Reads
// current ratings but persists nothing and leaves the primitive untouched.
func (u *BatchUpdater) previewObservation(ctx context.Context, obs *passive.Observation, winnerID, loserID string, margin float64) ObservationUpdate {
	winner, err := u.store.Get(ctx, obs.TeamID, winnerID, TypeSeatRaceElo)
	if err != nil {
		winner = nil
	}
	loser, err := u.store.Get(ctx, obs.TeamID, loserID, TypeSeatRaceElo)
	if err != nil {
		loser = nil
	}
	preview := PreviewUpdate(winner, loser, margin, obs.Weight, 0)
	return ObservationUpdate{
		ObservationID: obs.ID,
		WinnerID:      winnerID,
		LoserID:       loserID,
		Margin:        preview.Margin,
		Weight:        preview.Weight,
		WinnerBefore:  preview.WinnerBefore,
		WinnerAfter:   preview.WinnerAfter,
		LoserBefore:   preview.LoserBefore,
		LoserAfter:    preview.LoserAfter,
		DryRun:        true,
	}
}

// ApplyPending satisfies passive.RatingApplier for auto-apply hooks.
func (u *BatchUpdater) ApplyPending(ctx context.Context, teamID string) error {
	_, err := u.ApplyPendingObservations(ctx, teamID, ApplyOptions{})
	return err
}

// ApplySeatRaceResults applies formal seat race comparisons at full
// weight. Formal results bypass the passive observation queue: there is
// no noise threshold and no deferred-apply step. Per-comparison failures
// are counted in Skipped and the batch continues.
func (u *BatchUpdater) ApplySeatRaceResults(ctx context.Context, teamID string, comparisons []seatrace.Comparison) (*ApplyResult, error) {
	result := &ApplyResult{}
	for _, c := range comparisons {
		loserID := c.Athlete1ID
		if c.WinnerID == c.Athlete1ID {
			loserID = c.Athlete2ID
		}

		applied, err := u.primitive.UpdateRatings(ctx, teamID, c.WinnerID, loserID, c.Margin, UpdateOptions{Weight: 1.0})
		if err != nil {
			u.logger.Error("failed to apply seat race comparison",
				"team_id", teamID,
				"session_id", c.SessionID,
				"piece_id", c.PieceID,
				"error", err)
			result.Skipped++
			continue
		}

		result.Updates = append(result.Updates, ObservationUpdate{
			WinnerID:     applied.WinnerID,
			LoserID:      applied.LoserID,
			Margin:       applied.Margin,
			Weight:       applied.Weight,
			WinnerBefore: applied.WinnerBefore,
			WinnerAfter:  applied.WinnerAfter,
			LoserBefore:  applied.LoserBefore,
			LoserAfter:   applied.LoserAfter,
		})
		result.Processed++
	}
	return result, nil
}
