package rating

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/swdrow/rowlab/internal/db"
)

// DefaultKFactor is the base K for a full-weight result.
const DefaultKFactor = 32.0

// eloScale is the rating difference at which the expected score reaches
// ~10:1 odds, per the standard logistic Elo curve.
const eloScale = 400.0

// maxUpsertRetries bounds optimistic-concurrency retries per pair write.
const maxUpsertRetries = 3

// ExpectedScore returns the probability that a rating of ra beats rb
// under the logistic Elo model.
func ExpectedScore(ra, rb float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (rb-ra)/eloScale))
}

// MarginFactor scales the update by the observed margin in seconds.
// Log damping keeps blowout pieces from dominating the rating.
func MarginFactor(margin float64) float64 {
	if margin < 0 {
		margin = 0
	}
	return 1.0 + math.Log(1.0+margin)
}

// Delta returns the rating points transferred from loser to winner for a
// result with the given margin and evidence weight.
func Delta(winnerValue, loserValue, margin, weight, k float64) float64 {
	expected := ExpectedScore(winnerValue, loserValue)
	return k * weight * MarginFactor(margin) * (1.0 - expected)
}

// UpdateOptions carries per-result options for a rating update.
type UpdateOptions struct {
	// Weight scales the influence of the result. Zero means 1.0
	// (a formal, full-confidence seat race result).
	Weight float64
}

func (o UpdateOptions) weight() float64 {
	if o.Weight == 0 {
		return 1.0
	}
	return o.Weight
}

// Update describes one applied (or previewed) rating change.
type Update struct {
	TeamID       string  `json:"team_id"`
	WinnerID     string  `json:"winner_id"`
	LoserID      string  `json:"loser_id"`
	Margin       float64 `json:"margin"`
	Weight       float64 `json:"weight"`
	WinnerBefore float64 `json:"winner_before"`
	WinnerAfter  float64 `json:"winner_after"`
	LoserBefore  float64 `json:"loser_before"`
	LoserAfter   float64 `json:"loser_after"`
}

// Updater is the rating-update primitive: it consumes one pairwise result
// and mutates both athletes' persisted ratings.
type Updater interface {
	UpdateRatings(ctx context.Context, teamID, winnerID, loserID string, margin float64, opts UpdateOptions) (*Update, error)
}

// EloUpdater implements Updater with a standard logistic Elo update over
// the seat_race_elo rating type. Both rows are written through the
// store's atomic pair write: a version conflict on either row persists
// nothing, and the updater retries from a fresh read.
type EloUpdater struct {
	store  Store
	k      float64
	logger *slog.Logger
	now    func() time.Time
}

// NewEloUpdater creates an Elo-based rating updater. A zero k means
// DefaultKFactor.
func NewEloUpdater(store Store, k float64, logger *slog.Logger) *EloUpdater {
	if k == 0 {
		k = DefaultKFactor
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EloUpdater{
		store:  store,
		k:      k,
		logger: logger,
		now:    time.Now,
	}
}

// UpdateRatings applies one pairwise result to both athletes' ratings.
func (u *EloUpdater) UpdateRatings(ctx context.Context, teamID, winnerID, loserID string, margin float64, opts UpdateOptions) (*Update, error) {
	if winnerID == loserID {
		return nil, fmt.Errorf("winner and loser must differ (got %q)", winnerID)
	}
	weight := opts.weight()

	var update *Update
	for attempt := 0; ; attempt++ {
		winner, err := u.loadOrInit(ctx, teamID, winnerID)
		if err != nil {
			return nil, err
		}
		loser, err := u.loadOrInit(ctx, teamID, loserID)
		if err != nil {
			return nil, err
		}

		delta := Delta(winner.Value, loser.Value, margin, weight, u.k)
		now := u.now()

		update = &Update{
			TeamID:       teamID,
			WinnerID:     winnerID,
			LoserID:      loserID,
			Margin:       margin,
			Weight:       weight,
			WinnerBefore: winner.Value,
			WinnerAfter:  winner.Value + delta,
			LoserBefore:  loser.Value,
			LoserAfter:   loser.Value - delta,
		}

		winner.Value += delta
		winner.RacesCount++
		winner.Confidence = RaceConfidence(winner.RacesCount)
		winner.LastCalculatedAt = now

		loser.Value -= delta
		loser.RacesCount++
		loser.Confidence = RaceConfidence(loser.RacesCount)
		loser.LastCalculatedAt = now

		err = u.store.UpsertPair(ctx, winner, loser)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrVersionConflict) || attempt+1 >= maxUpsertRetries {
			return nil, fmt.Errorf("failed to persist rating update: %w", err)
		}
		if _, inTx := db.TxFromContext(ctx); inTx {
			// Re-reads inside the caller's transaction would observe
			// this attempt's writes before the rollback discards them.
			// Surface the conflict instead; the caller retries the
			// whole unit on a fresh transaction.
			return nil, fmt.Errorf("failed to persist rating update: %w", err)
		}
		u.logger.Debug("rating version conflict, retrying",
			"team_id", teamID,
			"winner_id", winnerID,
			"loser_id", loserID,
			"attempt", attempt+1)
	}

	u.logger.Debug("applied rating update",
		"team_id", teamID,
		"winner_id", winnerID,
		"loser_id", loserID,
		"margin", margin,
		"weight", weight,
		"winner_after", update.WinnerAfter,
		"loser_after", update.LoserAfter)

	return update, nil
}

// loadOrInit returns the athlete's current seat race rating, or a fresh
// unsaved row at the initial value.
func (u *EloUpdater) loadOrInit(ctx context.Context, teamID, athleteID string) (*Rating, error) {
	r, err := u.store.Get(ctx, teamID, athleteID, TypeSeatRaceElo)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, ErrRatingNotFound) {
		return nil, fmt.Errorf("failed to load rating for %s: %w", athleteID, err)
	}
	return &Rating{
		AthleteID:  athleteID,
		TeamID:     teamID,
		RatingType: TypeSeatRaceElo,
		Value:      InitialRating,
	}, nil
}

// PreviewUpdate computes the would-be rating changes for a result without
// touching persisted state. Used by dry-run application.
func PreviewUpdate(winner, loser *Rating, margin, weight, k float64) Update {
	if weight == 0 {
		weight = 1.0
	}
	if k == 0 {
		k = DefaultKFactor
	}
	winnerValue := InitialRating
	loserValue := InitialRating
	if winner != nil {
		winnerValue = winner.Value
	}
	if loser != nil {
		loserValue = loser.Value
	}
	delta := Delta(winnerValue, loserValue, margin, weight, k)
	return Update{
		Margin:       margin,
		Weight:       weight,
		WinnerBefore: winnerValue,
		WinnerAfter:  winnerValue + delta,
		LoserBefore:  loserValue,
		LoserAfter:   loserValue - delta,
	}
}
