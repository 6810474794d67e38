// Package validate provides centralized input validation for identifiers
// and lineups arriving through the API. Parameterized queries remain the
// primary defense; this keeps malformed input out of the domain layer.
package validate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Validation errors.
var (
	ErrEmpty             = errors.New("value is empty")
	ErrTooLong           = errors.New("value is too long")
	ErrInvalidCharacters = errors.New("value contains invalid characters")
	ErrLineupEmpty       = errors.New("lineup has no athletes")
	ErrLineupTooLarge    = errors.New("lineup exceeds maximum boat size")
	ErrDuplicateAthlete  = errors.New("lineup contains a duplicate athlete")
)

// MaxIDLength bounds athlete, team, session, and piece identifiers.
const MaxIDLength = 64

// MaxLineupSize is an eight plus coxswain.
const MaxLineupSize = 9

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_\-\.:]+$`)

// ID validates an identifier: non-empty after trimming, at most
// MaxIDLength characters, letters, digits, underscore, dash, period, and
// colon only. Returns the trimmed identifier.
func ID(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrEmpty
	}
	if utf8.RuneCountInString(s) > MaxIDLength {
		return "", fmt.Errorf("%w: maximum is %d characters", ErrTooLong, MaxIDLength)
	}
	if !idPattern.MatchString(s) {
		return "", ErrInvalidCharacters
	}
	return s, nil
}

// Lineup validates a boat lineup: between one and MaxLineupSize seats,
// every seat a valid ID, no athlete listed twice. Returns the lineup with
// each identifier trimmed.
func Lineup(athletes []string) ([]string, error) {
	if len(athletes) == 0 {
		return nil, ErrLineupEmpty
	}
	if len(athletes) > MaxLineupSize {
		return nil, fmt.Errorf("%w: got %d seats, maximum is %d", ErrLineupTooLarge, len(athletes), MaxLineupSize)
	}

	seen := make(map[string]bool, len(athletes))
	cleaned := make([]string, len(athletes))
	for i, athlete := range athletes {
		id, err := ID(athlete)
		if err != nil {
			return nil, fmt.Errorf("seat %d: %w", i+1, err)
		}
		if seen[id] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAthlete, id)
		}
		seen[id] = true
		cleaned[i] = id
	}
	return cleaned, nil
}
