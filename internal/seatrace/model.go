// Package seatrace derives pairwise athlete comparisons from seat race
// session results.
package seatrace

import (
	"context"
	"errors"
	"time"
)

// ErrSessionNotFound is returned when a session does not exist.
var ErrSessionNotFound = errors.New("session not found")

// Boat is a single crew entry within a piece.
type Boat struct {
	Name string `json:"name"`
	// AthleteIDs is the crew assignment for this boat in this piece.
	AthleteIDs []string `json:"athlete_ids"`
	// FinishTimeSeconds is the raw finish time for the piece. Nil means the
	// boat did not record a time and is excluded from comparisons.
	FinishTimeSeconds *float64 `json:"finish_time_seconds,omitempty"`
	// HandicapSeconds is added to the finish time before comparing boats.
	HandicapSeconds float64 `json:"handicap_seconds"`
	// SplitSeconds is the boat's average split for the piece, when reported.
	// Used by passive swap detection rather than formal comparisons.
	SplitSeconds *float64 `json:"split_seconds,omitempty"`
}

// AdjustedTime returns the handicap-adjusted finish time.
// Returns false if the boat has no finish time.
func (b *Boat) AdjustedTime() (float64, bool) {
	if b.FinishTimeSeconds == nil {
		return 0, false
	}
	return *b.FinishTimeSeconds + b.HandicapSeconds, true
}

// Piece is one timed segment of a session, containing the boats that raced it.
type Piece struct {
	ID       string `json:"id"`
	Sequence int    `json:"sequence"`
	Boats    []Boat `json:"boats"`
}

// Session is a single on-water practice or seat race session.
type Session struct {
	ID     string    `json:"id"`
	TeamID string    `json:"team_id"`
	Date   time.Time `json:"date"`
	Pieces []Piece   `json:"pieces"`
}

// Comparison is a clean pairwise win/loss derived from a piece where two
// boats differed by exactly one athlete. Comparisons are ephemeral and
// recomputed on demand.
type Comparison struct {
	Athlete1ID string  `json:"athlete1_id"`
	Athlete2ID string  `json:"athlete2_id"`
	WinnerID   string  `json:"winner_id"`
	Margin     float64 `json:"margin"`
	SessionID  string  `json:"session_id"`
	PieceID    string  `json:"piece_id"`
}

// SessionSource provides read access to the session/piece/boat store.
// The store itself is owned by an external collaborator; this subsystem
// only reads from it.
type SessionSource interface {
	// SessionsByTeam returns all sessions for a team, oldest first.
	SessionsByTeam(ctx context.Context, teamID string) ([]Session, error)
	// SessionByID returns a single session.
	// Returns ErrSessionNotFound if it does not exist.
	SessionByID(ctx context.Context, sessionID string) (*Session, error)
}
