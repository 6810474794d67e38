// Package rating maintains per-athlete skill ratings, updated from seat
// race comparisons and passive observations via a weighted Elo model.
package rating

import (
	"context"
	"errors"
	"time"
)

// Rating types stored per athlete. One row exists per (athlete, type);
// rows are upserted in place, never historized.
const (
	TypeSeatRaceElo = "seat_race_elo"
	TypeCombined    = "combined"
)

// InitialRating is the starting value for athletes with no rated results.
const InitialRating = 1500.0

// confidenceRaces is the race count at which rating confidence saturates.
const confidenceRaces = 10

var (
	// ErrRatingNotFound is returned when no rating row exists.
	ErrRatingNotFound = errors.New("rating not found")
	// ErrVersionConflict is returned when an upsert loses an optimistic
	// concurrency race; callers re-read and retry.
	ErrVersionConflict = errors.New("rating version conflict")
)

// Rating is the persisted skill estimate for one athlete and rating type.
type Rating struct {
	AthleteID  string  `json:"athlete_id"`
	TeamID     string  `json:"team_id"`
	RatingType string  `json:"rating_type"`
	Value      float64 `json:"value"`
	// Confidence in [0, 1], derived from the number of rated results.
	Confidence       float64   `json:"confidence"`
	RacesCount       int       `json:"races_count"`
	LastCalculatedAt time.Time `json:"last_calculated_at"`
	// Version guards against lost updates from concurrent writers.
	Version int64 `json:"-"`
}

// RaceConfidence maps a race count to a [0, 1] confidence score.
func RaceConfidence(races int) float64 {
	c := float64(races) / confidenceRaces
	if c > 1 {
		return 1
	}
	return c
}

// Store persists athlete ratings with optimistic concurrency.
type Store interface {
	// Get returns the rating row, or ErrRatingNotFound.
	Get(ctx context.Context, teamID, athleteID, ratingType string) (*Rating, error)
	// Upsert writes the rating. The write is conditional on
	// Rating.Version matching the stored version (0 for a new row);
	// a stale version yields ErrVersionConflict. On success the stored
	// version is incremented.
	Upsert(ctx context.Context, r *Rating) error
	// UpsertPair writes two ratings atomically: either both writes
	// commit or neither does. A stale version on either row yields
	// ErrVersionConflict and leaves both rows untouched, so callers can
	// retry from a clean re-read.
	UpsertPair(ctx context.Context, a, b *Rating) error
	// ListByTeam returns all ratings of the given type for a team.
	ListByTeam(ctx context.Context, teamID, ratingType string) ([]Rating, error)
}
