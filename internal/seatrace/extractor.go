package seatrace

import (
	"context"
	"fmt"
	"log/slog"
)

// Extractor derives pairwise comparisons from a team's seat race sessions.
type Extractor struct {
	sessions SessionSource
	logger   *slog.Logger
}

// NewExtractor creates a new comparison extractor.
func NewExtractor(sessions SessionSource, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		sessions: sessions,
		logger:   logger,
	}
}

// ExtractComparisons walks every piece of every session for the team and
// emits a comparison for each boat pair that differed by exactly one
// athlete per side and where both boats recorded a finish time.
//
// Pairs whose crews are identical, or that differ by two or more athletes
// per side, are skipped: attribution of the time difference to a single
// swap would be a guess.
//
// The result is recomputed fresh on every call; nothing is cached.
func (e *Extractor) ExtractComparisons(ctx context.Context, teamID string) ([]Comparison, error) {
	sessions, err := e.sessions.SessionsByTeam(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to load sessions for team %s: %w", teamID, err)
	}

	var comparisons []Comparison
	for _, session := range sessions {
		for _, piece := range session.Pieces {
			comparisons = append(comparisons, extractFromPiece(session.ID, piece)...)
		}
	}

	e.logger.Debug("extracted seat race comparisons",
		"team_id", teamID,
		"sessions", len(sessions),
		"comparisons", len(comparisons))

	return comparisons, nil
}

// extractFromPiece emits comparisons for every qualifying boat pair in a piece.
func extractFromPiece(sessionID string, piece Piece) []Comparison {
	var comparisons []Comparison

	for i := 0; i < len(piece.Boats); i++ {
		for j := i + 1; j < len(piece.Boats); j++ {
			boatA := &piece.Boats[i]
			boatB := &piece.Boats[j]

			timeA, okA := boatA.AdjustedTime()
			timeB, okB := boatB.AdjustedTime()
			if !okA || !okB {
				continue
			}

			uniqueA, uniqueB := symmetricDifference(boatA.AthleteIDs, boatB.AthleteIDs)
			if len(uniqueA) != 1 || len(uniqueB) != 1 {
				// Identical crews or multi-athlete swaps are ambiguous.
				continue
			}

			comparison := Comparison{
				Athlete1ID: uniqueA[0],
				Athlete2ID: uniqueB[0],
				SessionID:  sessionID,
				PieceID:    piece.ID,
			}
			if timeA <= timeB {
				comparison.WinnerID = uniqueA[0]
				comparison.Margin = timeB - timeA
			} else {
				comparison.WinnerID = uniqueB[0]
				comparison.Margin = timeA - timeB
			}

			comparisons = append(comparisons, comparison)
		}
	}

	return comparisons
}

// symmetricDifference returns the athlete IDs unique to each side.
// Order of the input slices does not matter.
func symmetricDifference(a, b []string) (onlyA, onlyB []string) {
	setA := make(map[string]struct{}, len(a))
	for _, id := range a {
		setA[id] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, id := range b {
		setB[id] = struct{}{}
	}

	for _, id := range a {
		if _, ok := setB[id]; !ok {
			onlyA = append(onlyA, id)
		}
	}
	for _, id := range b {
		if _, ok := setA[id]; !ok {
			onlyB = append(onlyB, id)
		}
	}
	return onlyA, onlyB
}
