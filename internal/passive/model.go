// Package passive detects and records lower-confidence pairwise
// comparisons from ordinary practice lineups and manual split reports.
package passive

import (
	"errors"
	"time"
)

// Observation sources. String-tagged values arriving at the ingestion
// boundary are validated against this closed set.
const (
	SourceManual           = Source("manual")
	SourceSplitObservation = Source("split_observation")
	SourceAutoDetect       = Source("auto_detect")
)

// Source identifies how a passive observation was produced.
type Source string

// Valid reports whether the source is one of the known values.
func (s Source) Valid() bool {
	switch s {
	case SourceManual, SourceSplitObservation, SourceAutoDetect:
		return true
	}
	return false
}

// MinSplitDifferenceSeconds is the noise floor for split differences.
// Anything below this is indistinguishable from pacing and conditions
// noise and is silently ignored rather than recorded.
const MinSplitDifferenceSeconds = 0.5

// DefaultObservationWeight discounts passive observations relative to
// formal seat races (which apply at weight 1.0). Uncontrolled practice
// splits carry wash and conditions noise absent from deliberately
// structured seat races; discounting keeps the signal while bounding
// its influence.
const DefaultObservationWeight = 0.5

// Validation errors.
var (
	ErrAmbiguousSwap = errors.New("ambiguous swap: lineups must differ by exactly one athlete per side")
	ErrMissingTeamID = errors.New("team ID is required")
	ErrInvalidSource = errors.New("invalid observation source")
	ErrInvalidWeight = errors.New("observation weight must be in (0.0, 1.0]")

	// ErrObservationNotFound is returned when an observation does not exist.
	ErrObservationNotFound = errors.New("observation not found")
	// ErrAlreadyApplied is returned when an observation has already been
	// applied to ratings. The applied transition is terminal and one-way.
	ErrAlreadyApplied = errors.New("observation already applied to ratings")
)

// SplitDelta is a signed split difference in seconds.
// Positive means boat1 (and therefore swapped athlete 1) was faster.
type SplitDelta float64

// Abs returns the magnitude of the delta, used as the comparison margin.
func (d SplitDelta) Abs() float64 {
	if d < 0 {
		return float64(-d)
	}
	return float64(d)
}

// Boat1Faster reports whether the sign convention attributes the win to
// boat1's side of the swap.
func (d SplitDelta) Boat1Faster() bool {
	return d > 0
}

// WinnerLoser resolves the swapped pair into winner and loser under the
// sign convention: positive delta means athlete1 won.
func (d SplitDelta) WinnerLoser(athlete1ID, athlete2ID string) (winnerID, loserID string) {
	if d.Boat1Faster() {
		return athlete1ID, athlete2ID
	}
	return athlete2ID, athlete1ID
}

// Observation is a durable, append-only record of a passive comparison.
// Observations are never deleted; they form the audit trail for every
// rating mutation derived from practice data.
type Observation struct {
	ID        string `json:"id"`
	TeamID    string `json:"team_id"`
	SessionID string `json:"session_id,omitempty"`
	PieceID   string `json:"piece_id,omitempty"`

	// Boat lineups at the moment of observation. They differ by exactly
	// one athlete each, assigned at creation and never mutated.
	Boat1Athletes []string `json:"boat1_athletes"`
	Boat2Athletes []string `json:"boat2_athletes"`

	SwappedAthlete1ID string `json:"swapped_athlete1_id"`
	SwappedAthlete2ID string `json:"swapped_athlete2_id"`

	// SplitDifference is signed: positive means boat1/athlete1 faster.
	SplitDifference SplitDelta `json:"split_difference_seconds"`

	Weight float64 `json:"weight"`
	Source Source  `json:"source"`

	// AppliedToRatings flips false -> true exactly once, atomically with
	// the rating write it produced.
	AppliedToRatings bool       `json:"applied_to_ratings"`
	AppliedAt        *time.Time `json:"applied_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// TeamStats summarizes a team's passive observation backlog.
type TeamStats struct {
	TeamID        string         `json:"team_id"`
	Total         int            `json:"total"`
	Pending       int            `json:"pending"`
	Applied       int            `json:"applied"`
	BySource      map[Source]int `json:"by_source"`
	LastAppliedAt *time.Time     `json:"last_applied_at,omitempty"`
}
