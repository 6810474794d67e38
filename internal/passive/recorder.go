package passive

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/swdrow/rowlab/internal/seatrace"
)

// RatingApplier triggers rating application for a team's pending
// observations. Implemented by the rating updater; defined here so the
// recorder does not depend on the rating package.
type RatingApplier interface {
	ApplyPending(ctx context.Context, teamID string) error
}

// RecorderConfig tunes the recorder's thresholds and defaults.
type RecorderConfig struct {
	// MinSplitDifference is the noise floor in seconds. Zero means
	// MinSplitDifferenceSeconds.
	MinSplitDifference float64
	// DefaultWeight is applied when an input carries no weight. Zero
	// means DefaultObservationWeight.
	DefaultWeight float64
	// Logger for recorder activity.
	Logger *slog.Logger
}

// Recorder detects and records passive observations.
type Recorder struct {
	observations ObservationRepository
	sessions     seatrace.SessionSource
	applier      RatingApplier
	config       RecorderConfig
}

// NewRecorder creates a new passive observation recorder. The applier may
// be nil; ProcessSessionForPassiveTracking then records without applying.
func NewRecorder(observations ObservationRepository, sessions seatrace.SessionSource, applier RatingApplier, config RecorderConfig) *Recorder {
	if config.MinSplitDifference == 0 {
		config.MinSplitDifference = MinSplitDifferenceSeconds
	}
	if config.DefaultWeight == 0 {
		config.DefaultWeight = DefaultObservationWeight
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Recorder{
		observations: observations,
		sessions:     sessions,
		applier:      applier,
		config:       config,
	}
}

// RecordInput is the ingestion payload for a passive observation.
type RecordInput struct {
	TeamID        string
	Boat1Athletes []string
	Boat2Athletes []string
	// SplitDifferenceSeconds is signed: positive means boat1 faster.
	SplitDifferenceSeconds float64
	SessionID              string
	PieceID                string
	// Weight defaults to the recorder's default when zero.
	Weight float64
	// Source defaults to manual when empty.
	Source Source
}

// RecordPassiveObservation validates and persists a passive observation.
//
// Three outcomes are distinguished and never conflated:
//   - sub-threshold split difference: returns (nil, nil), no record. This
//     is a success path; the input was noise, not an error.
//   - ambiguous swap or invalid fields: returns an error, no record.
//   - otherwise: persists and returns the observation with
//     AppliedToRatings=false.
func (r *Recorder) RecordPassiveObservation(ctx context.Context, in RecordInput) (*Observation, error) {
	if in.TeamID == "" {
		return nil, ErrMissingTeamID
	}
	source := in.Source
	if source == "" {
		source = SourceManual
	}
	if !source.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSource, in.Source)
	}
	weight := in.Weight
	if weight == 0 {
		weight = r.config.DefaultWeight
	}
	if weight < 0 || weight > 1 {
		return nil, ErrInvalidWeight
	}

	delta := SplitDelta(in.SplitDifferenceSeconds)
	if delta.Abs() < r.config.MinSplitDifference {
		r.config.Logger.Debug("ignoring sub-threshold split difference",
			"team_id", in.TeamID,
			"split_difference", in.SplitDifferenceSeconds,
			"threshold", r.config.MinSplitDifference)
		return nil, nil
	}

	pair, ok := FindSwappedAthletes(in.Boat1Athletes, in.Boat2Athletes)
	if !ok {
		return nil, ErrAmbiguousSwap
	}

	obs := &Observation{
		TeamID:            in.TeamID,
		SessionID:         in.SessionID,
		PieceID:           in.PieceID,
		Boat1Athletes:     append([]string(nil), in.Boat1Athletes...),
		Boat2Athletes:     append([]string(nil), in.Boat2Athletes...),
		SwappedAthlete1ID: pair.Athlete1ID,
		SwappedAthlete2ID: pair.Athlete2ID,
		SplitDifference:   delta,
		Weight:            weight,
		Source:            source,
	}
	if err := r.observations.Create(ctx, obs); err != nil {
		return nil, fmt.Errorf("failed to persist observation: %w", err)
	}

	r.config.Logger.Info("recorded passive observation",
		"observation_id", obs.ID,
		"team_id", obs.TeamID,
		"athlete1", obs.SwappedAthlete1ID,
		"athlete2", obs.SwappedAthlete2ID,
		"split_difference", float64(obs.SplitDifference),
		"source", string(obs.Source))

	return obs, nil
}

// SplitInput is the payload for recording an observation from two
// reported boat splits.
type SplitInput struct {
	TeamID        string
	Boat1Athletes []string
	Boat2Athletes []string
	Boat1Split    float64
	Boat2Split    float64
	SessionID     string
	PieceID       string
	Weight        float64
}

// RecordSplitObservation converts two boat splits into a signed split
// difference (boat2 - boat1, so positive means boat1 faster) and records
// it with source split_observation.
func (r *Recorder) RecordSplitObservation(ctx context.Context, in SplitInput) (*Observation, error) {
	return r.RecordPassiveObservation(ctx, RecordInput{
		TeamID:                 in.TeamID,
		Boat1Athletes:          in.Boat1Athletes,
		Boat2Athletes:          in.Boat2Athletes,
		SplitDifferenceSeconds: in.Boat2Split - in.Boat1Split,
		SessionID:              in.SessionID,
		PieceID:                in.PieceID,
		Weight:                 in.Weight,
		Source:                 SourceSplitObservation,
	})
}

// SwapCandidate is a 1:1 lineup change detected between two consecutive
// pieces of a session for the same boat.
type SwapCandidate struct {
	BoatName      string     `json:"boat_name"`
	FirstPieceID  string     `json:"first_piece_id"`
	SecondPieceID string     `json:"second_piece_id"`
	OutAthleteID  string     `json:"out_athlete_id"`
	InAthleteID   string     `json:"in_athlete_id"`
	Boat1Athletes []string   `json:"boat1_athletes"`
	Boat2Athletes []string   `json:"boat2_athletes"`
	// SplitDelta is second piece split minus first piece split; positive
	// means the original lineup was faster. Only meaningful when
	// HasSplits is true.
	SplitDelta float64 `json:"split_delta"`
	HasSplits  bool    `json:"has_splits"`
}

// DetectSwapsFromSession scans consecutive pieces in sequence order and
// returns every boat whose lineup changed by exactly one athlete between
// a piece and the next. Detection is pure; nothing is persisted.
func (r *Recorder) DetectSwapsFromSession(ctx context.Context, sessionID string) ([]SwapCandidate, error) {
	session, err := r.sessions.SessionByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}

	pieces := append([]seatrace.Piece(nil), session.Pieces...)
	sort.Slice(pieces, func(i, j int) bool { return pieces[i].Sequence < pieces[j].Sequence })

	var candidates []SwapCandidate
	for i := 0; i+1 < len(pieces); i++ {
		first, second := pieces[i], pieces[i+1]
		for _, firstBoat := range first.Boats {
			secondBoat, ok := findBoat(second.Boats, firstBoat.Name)
			if !ok {
				continue
			}

			pair, ok := FindSwappedAthletes(firstBoat.AthleteIDs, secondBoat.AthleteIDs)
			if !ok {
				continue
			}

			candidate := SwapCandidate{
				BoatName:      firstBoat.Name,
				FirstPieceID:  first.ID,
				SecondPieceID: second.ID,
				OutAthleteID:  pair.Athlete1ID,
				InAthleteID:   pair.Athlete2ID,
				Boat1Athletes: append([]string(nil), firstBoat.AthleteIDs...),
				Boat2Athletes: append([]string(nil), secondBoat.AthleteIDs...),
			}
			if firstBoat.SplitSeconds != nil && secondBoat.SplitSeconds != nil {
				candidate.HasSplits = true
				candidate.SplitDelta = *secondBoat.SplitSeconds - *firstBoat.SplitSeconds
			}
			candidates = append(candidates, candidate)
		}
	}
	return candidates, nil
}

// ProcessOptions controls session processing.
type ProcessOptions struct {
	// AutoApply invokes the rating updater for the team after recording.
	AutoApply bool
}

// ProcessResult summarizes a passive-tracking pass over a session.
type ProcessResult struct {
	SessionID     string          `json:"session_id"`
	TeamID        string          `json:"team_id"`
	SwapsDetected int             `json:"swaps_detected"`
	Recorded      int             `json:"recorded"`
	SkippedNoise  int             `json:"skipped_noise"`
	SkippedNoData int             `json:"skipped_no_data"`
	Observations  []Observation   `json:"observations,omitempty"`
	Applied       bool            `json:"applied"`
}

// ProcessSessionForPassiveTracking detects swaps in a session and records
// an observation for each detected swap that has split data on both
// pieces. With AutoApply set it then applies pending observations for the
// session's team.
func (r *Recorder) ProcessSessionForPassiveTracking(ctx context.Context, sessionID string, opts ProcessOptions) (*ProcessResult, error) {
	session, err := r.sessions.SessionByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}

	candidates, err := r.DetectSwapsFromSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	result := &ProcessResult{
		SessionID:     sessionID,
		TeamID:        session.TeamID,
		SwapsDetected: len(candidates),
	}

	for _, candidate := range candidates {
		if !candidate.HasSplits {
			result.SkippedNoData++
			continue
		}
		obs, err := r.RecordPassiveObservation(ctx, RecordInput{
			TeamID:                 session.TeamID,
			Boat1Athletes:          candidate.Boat1Athletes,
			Boat2Athletes:          candidate.Boat2Athletes,
			SplitDifferenceSeconds: candidate.SplitDelta,
			SessionID:              sessionID,
			PieceID:                candidate.SecondPieceID,
			Source:                 SourceAutoDetect,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to record detected swap in boat %s: %w", candidate.BoatName, err)
		}
		if obs == nil {
			result.SkippedNoise++
			continue
		}
		result.Recorded++
		result.Observations = append(result.Observations, *obs)
	}

	if opts.AutoApply && r.applier != nil && result.Recorded > 0 {
		if err := r.applier.ApplyPending(ctx, session.TeamID); err != nil {
			return nil, fmt.Errorf("failed to auto-apply observations for team %s: %w", session.TeamID, err)
		}
		result.Applied = true
	}

	r.config.Logger.Info("processed session for passive tracking",
		"session_id", sessionID,
		"team_id", session.TeamID,
		"swaps_detected", result.SwapsDetected,
		"recorded", result.Recorded,
		"skipped_noise", result.SkippedNoise,
		"applied", result.Applied)

	return result, nil
}

// TeamStats returns aggregate passive observation counts for a team.
func (r *Recorder) TeamStats(ctx context.Context, teamID string) (*TeamStats, error) {
	return r.observations.TeamStats(ctx, teamID)
}

// findBoat returns the boat with the given name, if present.
func findBoat(boats []seatrace.Boat, name string) (seatrace.Boat, bool) {
	for _, boat := range boats {
		if boat.Name == name {
			return boat, true
		}
	}
	return seatrace.Boat{}, false
}
