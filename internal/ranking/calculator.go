package ranking

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/swdrow/rowlab/internal/rating"
	"github.com/swdrow/rowlab/internal/tracing"
)

// tieEpsilon is the bucket width for near-tie detection: composite
// scores quantized to the same tieEpsilon-wide bucket fall through to
// the tie-break.
const tieEpsilon = 0.001

// MessageNoData is returned when no athlete on the team carries any
// ranking signal.
const MessageNoData = "No ranking data available for this team"

// NoteInsufficientData annotates a ranking computed from a single
// athlete, where z-score normalization is undefined.
const NoteInsufficientData = "insufficient data for normalization"

// Component is one signal's contribution to an athlete's composite
// score.
type Component struct {
	Source          string  `json:"source"`
	RawScore        float64 `json:"raw_score"`
	NormalizedScore float64 `json:"normalized_score"`
	Weight          float64 `json:"weight"`
	Contribution    float64 `json:"contribution"`
	DataPoints      int     `json:"data_points"`
	Confidence      float64 `json:"confidence"`
}

// Entry is one athlete's position in a composite ranking.
type Entry struct {
	AthleteID         string      `json:"athlete_id"`
	CompositeScore    float64     `json:"composite_score"`
	Breakdown         []Component `json:"breakdown"`
	OverallConfidence float64     `json:"overall_confidence"`
	Rank              int         `json:"rank"`
	Note              string      `json:"note,omitempty"`
}

// Result is a full composite ranking pass over a team.
type Result struct {
	TeamID      string    `json:"team_id"`
	Rankings    []Entry   `json:"rankings"`
	Weights     Weights   `json:"weights"`
	Message     string    `json:"message,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Options selects the weight blend for a ranking pass. Custom weights
// take precedence over a named profile; both default to the
// calculator's calibrated weights.
type Options struct {
	Profile string
	Custom  *Weights
}

// Calculator blends normalized per-athlete signals into a ranked,
// confidence-annotated output. It is a pure read computation: safe for
// arbitrary concurrent use, no persisted side effects.
type Calculator struct {
	ratings    rating.Store
	erg        ErgSource
	attendance AttendanceSource
	weights    *Weights
	logger     *slog.Logger
	now        func() time.Time
}

// NewCalculator creates a ranking calculator. weights is the calibrated
// baseline used when a call supplies neither a profile nor custom
// weights; nil means the balanced default.
func NewCalculator(ratings rating.Store, erg ErgSource, attendance AttendanceSource, weights *Weights, logger *slog.Logger) *Calculator {
	if weights == nil {
		weights = DefaultWeights()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Calculator{
		ratings:    ratings,
		erg:        erg,
		attendance: attendance,
		weights:    weights,
		logger:     logger,
		now:        time.Now,
	}
}

// signalValue is one athlete's raw reading for one signal.
type signalValue struct {
	raw        float64
	dataPoints int
}

// CalculateCompositeRankings computes the team's current ranking.
//
// Signals with no data for any athlete are dropped and the remaining
// weights renormalized to sum to 1, so a team that has never erged is
// ranked purely on water and attendance at full scale. An athlete
// missing a signal other athletes have contributes 0 for it, not an
// imputed average.
func (c *Calculator) CalculateCompositeRankings(ctx context.Context, teamID string, opts Options) (_ *Result, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "calculate_composite_rankings")
	defer func() { endSpan(err) }()
	tracing.SetAttributes(ctx, attribute.String("team_id", teamID))

	configured, err := c.resolveWeights(opts)
	if err != nil {
		return nil, err
	}
	now := c.now()

	signals, err := c.collectSignals(ctx, teamID, now)
	if err != nil {
		return nil, err
	}

	effective, available := renormalizeForAvailability(configured, signals)
	roster := rosterFrom(signals)

	result := &Result{
		TeamID:      teamID,
		Weights:     *effective,
		GeneratedAt: now,
	}

	if len(roster) == 0 {
		result.Message = MessageNoData
		c.logger.Info("composite ranking requested for team with no signal data",
			"team_id", teamID)
		return result, nil
	}

	note := ""
	if len(roster) == 1 {
		note = NoteInsufficientData
	}

	normalized := normalizeSignals(signals, roster)

	for _, athleteID := range roster {
		entry := Entry{AthleteID: athleteID, Note: note, OverallConfidence: 1}
		hasComponent := false

		for _, source := range []string{SignalOnWater, SignalErg, SignalAttendance} {
			if !available[source] {
				continue
			}
			value, ok := signals[source][athleteID]
			if !ok {
				continue
			}

			weight := effective.weightFor(source)
			norm := normalized[source][athleteID]
			confidence := SampleConfidence(value.dataPoints)
			entry.Breakdown = append(entry.Breakdown, Component{
				Source:          source,
				RawScore:        value.raw,
				NormalizedScore: norm,
				Weight:          weight,
				Contribution:    norm * weight,
				DataPoints:      value.dataPoints,
				Confidence:      confidence,
			})
			entry.CompositeScore += norm * weight
			if confidence < entry.OverallConfidence {
				entry.OverallConfidence = confidence
			}
			hasComponent = true
		}

		if !hasComponent {
			entry.OverallConfidence = 0
		}
		result.Rankings = append(result.Rankings, entry)
	}

	sortEntries(result.Rankings)
	for i := range result.Rankings {
		result.Rankings[i].Rank = i + 1
	}

	c.logger.Debug("computed composite rankings",
		"team_id", teamID,
		"athletes", len(result.Rankings),
		"available_signals", len(available))

	return result, nil
}

// resolveWeights picks the weight blend for one call and renormalizes
// it to sum to 1.
func (c *Calculator) resolveWeights(opts Options) (*Weights, error) {
	if opts.Custom != nil {
		normalized, err := opts.Custom.Normalized()
		if err != nil {
			return nil, fmt.Errorf("invalid custom weights: %w", err)
		}
		return normalized, nil
	}
	if opts.Profile != "" {
		return ProfileWeights(opts.Profile)
	}
	return c.weights.Normalized()
}

// collectSignals gathers each signal's raw per-athlete values inside
// its trailing window.
func (c *Calculator) collectSignals(ctx context.Context, teamID string, now time.Time) (map[string]map[string]signalValue, error) {
	signals := map[string]map[string]signalValue{
		SignalOnWater:    {},
		SignalErg:        {},
		SignalAttendance: {},
	}

	ratings, err := c.ratings.ListByTeam(ctx, teamID, rating.TypeSeatRaceElo)
	if err != nil {
		return nil, fmt.Errorf("failed to load ratings: %w", err)
	}
	for _, r := range ratings {
		signals[SignalOnWater][r.AthleteID] = signalValue{raw: r.Value, dataPoints: r.RacesCount}
	}

	tests, err := c.erg.ErgTests(ctx, teamID, now.Add(-ErgWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to load erg tests: %w", err)
	}
	byAthlete := map[string][]ErgTest{}
	for _, t := range tests {
		byAthlete[t.AthleteID] = append(byAthlete[t.AthleteID], t)
	}
	for athleteID, athleteTests := range byAthlete {
		score, count := ErgScore(athleteTests)
		signals[SignalErg][athleteID] = signalValue{raw: score, dataPoints: count}
	}

	records, err := c.attendance.AttendanceRecords(ctx, teamID, now.Add(-AttendanceWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to load attendance: %w", err)
	}
	recordsByAthlete := map[string][]AttendanceRecord{}
	for _, r := range records {
		recordsByAthlete[r.AthleteID] = append(recordsByAthlete[r.AthleteID], r)
	}
	for athleteID, athleteRecords := range recordsByAthlete {
		rate, count := AttendanceRate(athleteRecords)
		signals[SignalAttendance][athleteID] = signalValue{raw: rate, dataPoints: count}
	}

	return signals, nil
}

// renormalizeForAvailability zeroes weights for signals no athlete on
// the team carries and rescales the rest to sum to 1. Returns the
// effective weights and the set of available signals. If nothing is
// available the configured weights pass through unchanged; the caller
// reports the empty ranking.
func renormalizeForAvailability(configured *Weights, signals map[string]map[string]signalValue) (*Weights, map[string]bool) {
	available := map[string]bool{}
	effective := &Weights{}
	for source, values := range signals {
		if len(values) == 0 {
			continue
		}
		available[source] = true
		switch source {
		case SignalOnWater:
			effective.OnWater = configured.OnWater
		case SignalErg:
			effective.Erg = configured.Erg
		case SignalAttendance:
			effective.Attendance = configured.Attendance
		}
	}

	if effective.Total() <= 0 {
		return configured, available
	}
	normalized, _ := effective.Normalized()
	return normalized, available
}

// rosterFrom returns the sorted union of athletes carrying any signal.
func rosterFrom(signals map[string]map[string]signalValue) []string {
	seen := map[string]bool{}
	for _, values := range signals {
		for athleteID := range values {
			seen[athleteID] = true
		}
	}
	roster := make([]string, 0, len(seen))
	for athleteID := range seen {
		roster = append(roster, athleteID)
	}
	sort.Strings(roster)
	return roster
}

// normalizeSignals converts each signal's raw values to sigmoid-squashed
// z-scores across the athletes carrying it. With a single athlete on
// the roster z-score normalization is undefined, so every carried
// signal maps to sigmoid(0) = 0.5.
func normalizeSignals(signals map[string]map[string]signalValue, roster []string) map[string]map[string]float64 {
	normalized := map[string]map[string]float64{}
	for source, values := range signals {
		normalized[source] = map[string]float64{}
		if len(values) == 0 {
			continue
		}

		if len(roster) == 1 {
			for athleteID := range values {
				normalized[source][athleteID] = 0.5
			}
			continue
		}

		carriers := make([]string, 0, len(values))
		for _, athleteID := range roster {
			if _, ok := values[athleteID]; ok {
				carriers = append(carriers, athleteID)
			}
		}
		raw := make([]float64, len(carriers))
		for i, athleteID := range carriers {
			raw[i] = values[athleteID].raw
		}
		for i, z := range ZScores(raw) {
			normalized[source][carriers[i]] = Sigmoid(z)
		}
	}
	return normalized
}

// sortEntries orders entries by composite score descending. Scores are
// bucketed to tieEpsilon before comparing, so near-tie detection is
// transitive and the order does not depend on the input permutation.
// Athletes in the same bucket tie-break on raw on-water score
// descending, then athlete ID ascending for determinism.
func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		aBucket, bBucket := scoreBucket(a.CompositeScore), scoreBucket(b.CompositeScore)
		if aBucket != bBucket {
			return aBucket > bBucket
		}
		aWater, bWater := onWaterRaw(a), onWaterRaw(b)
		if aWater != bWater {
			return aWater > bWater
		}
		return a.AthleteID < b.AthleteID
	})
}

// scoreBucket quantizes a composite score to tieEpsilon-wide buckets.
func scoreBucket(score float64) int64 {
	return int64(math.Round(score / tieEpsilon))
}

// onWaterRaw returns the entry's raw on-water score, or 0 if the
// athlete carries no on-water signal.
func onWaterRaw(e Entry) float64 {
	for _, comp := range e.Breakdown {
		if comp.Source == SignalOnWater {
			return comp.RawScore
		}
	}
	return 0
}

// weightFor returns the weight for a named signal.
func (w *Weights) weightFor(source string) float64 {
	switch source {
	case SignalOnWater:
		return w.OnWater
	case SignalErg:
		return w.Erg
	case SignalAttendance:
		return w.Attendance
	}
	return 0
}
