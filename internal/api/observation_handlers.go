package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/swdrow/rowlab/internal/jobs"
	"github.com/swdrow/rowlab/internal/middleware"
	"github.com/swdrow/rowlab/internal/passive"
	"github.com/swdrow/rowlab/internal/seatrace"
	"github.com/swdrow/rowlab/internal/validate"
)

// ObservationHandlers holds dependencies for passive observation endpoints.
type ObservationHandlers struct {
	recorder *passive.Recorder
	tracker  *jobs.DirtyTracker // optional; marks teams for background apply
}

// NewObservationHandlers creates a new ObservationHandlers instance.
// tracker may be nil when the auto-apply job is disabled.
func NewObservationHandlers(recorder *passive.Recorder, tracker *jobs.DirtyTracker) *ObservationHandlers {
	return &ObservationHandlers{recorder: recorder, tracker: tracker}
}

// RecordObservationRequest is the request body for recording a passive
// observation from a known split difference.
type RecordObservationRequest struct {
	TeamID                 string   `json:"team_id"`
	Boat1Athletes          []string `json:"boat1_athletes"`
	Boat2Athletes          []string `json:"boat2_athletes"`
	SplitDifferenceSeconds float64  `json:"split_difference_seconds"`
	SessionID              string   `json:"session_id,omitempty"`
	PieceID                string   `json:"piece_id,omitempty"`
	Weight                 float64  `json:"weight,omitempty"`
	Source                 string   `json:"source,omitempty"`
}

// RecordSplitRequest is the request body for recording an observation
// from raw boat splits.
type RecordSplitRequest struct {
	TeamID        string   `json:"team_id"`
	Boat1Athletes []string `json:"boat1_athletes"`
	Boat2Athletes []string `json:"boat2_athletes"`
	Boat1Split    float64  `json:"boat1_split_seconds"`
	Boat2Split    float64  `json:"boat2_split_seconds"`
	SessionID     string   `json:"session_id,omitempty"`
	PieceID       string   `json:"piece_id,omitempty"`
	Weight        float64  `json:"weight,omitempty"`
}

// ObservationResponse wraps a recorded observation. Recorded is false
// when the input was ignored as noise.
type ObservationResponse struct {
	Recorded    bool                 `json:"recorded"`
	Reason      string               `json:"reason,omitempty"`
	Observation *passive.Observation `json:"observation,omitempty"`
}

// validateRecordIdentifiers checks the team ID and both lineups before
// they reach the recorder, returning cleaned copies.
func validateRecordIdentifiers(teamID string, boat1, boat2 []string) (string, []string, []string, error) {
	team, err := validate.ID(teamID)
	if err != nil {
		return "", nil, nil, fmt.Errorf("team_id: %w", err)
	}
	b1, err := validate.Lineup(boat1)
	if err != nil {
		return "", nil, nil, fmt.Errorf("boat1_athletes: %w", err)
	}
	b2, err := validate.Lineup(boat2)
	if err != nil {
		return "", nil, nil, fmt.Errorf("boat2_athletes: %w", err)
	}
	return team, b1, b2, nil
}

// RecordObservation handles POST /v1/observations.
func (h *ObservationHandlers) RecordObservation(w http.ResponseWriter, r *http.Request) {
	var req RecordObservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	teamID, boat1, boat2, err := validateRecordIdentifiers(req.TeamID, req.Boat1Athletes, req.Boat2Athletes)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	obs, err := h.recorder.RecordPassiveObservation(r.Context(), passive.RecordInput{
		TeamID:                 teamID,
		Boat1Athletes:          boat1,
		Boat2Athletes:          boat2,
		SplitDifferenceSeconds: req.SplitDifferenceSeconds,
		SessionID:              req.SessionID,
		PieceID:                req.PieceID,
		Weight:                 req.Weight,
		Source:                 passive.Source(req.Source),
	})
	h.writeRecordResult(w, r, obs, err)
}

// RecordSplitObservation handles POST /v1/observations/split.
func (h *ObservationHandlers) RecordSplitObservation(w http.ResponseWriter, r *http.Request) {
	var req RecordSplitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	teamID, boat1, boat2, err := validateRecordIdentifiers(req.TeamID, req.Boat1Athletes, req.Boat2Athletes)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	obs, err := h.recorder.RecordSplitObservation(r.Context(), passive.SplitInput{
		TeamID:        teamID,
		Boat1Athletes: boat1,
		Boat2Athletes: boat2,
		Boat1Split:    req.Boat1Split,
		Boat2Split:    req.Boat2Split,
		SessionID:     req.SessionID,
		PieceID:       req.PieceID,
		Weight:        req.Weight,
	})
	h.writeRecordResult(w, r, obs, err)
}

// writeRecordResult maps the recorder's three disjoint outcomes to HTTP:
// invalid input is a 4xx, a sub-threshold split is a 200 with
// recorded=false, and a persisted observation is a 201.
func (h *ObservationHandlers) writeRecordResult(w http.ResponseWriter, r *http.Request, obs *passive.Observation, err error) {
	if err != nil {
		code := ErrCodeValidation
		switch {
		case errors.Is(err, passive.ErrAmbiguousSwap):
			code = ErrCodeAmbiguousSwap
		case errors.Is(err, passive.ErrInvalidWeight):
			code = ErrCodeInvalidWeight
		case errors.Is(err, passive.ErrInvalidSource):
			code = ErrCodeInvalidSource
		}
		ctx := middleware.SetErrorCode(r.Context(), code)
		WriteError(w, ctx, http.StatusBadRequest, code, err.Error())
		return
	}

	if obs == nil {
		// Ignored as noise: success path, nothing recorded.
		writeJSON(w, http.StatusOK, ObservationResponse{
			Recorded: false,
			Reason:   "split difference below noise threshold",
		})
		return
	}

	if h.tracker != nil {
		h.tracker.MarkDirty(obs.TeamID)
	}
	writeJSON(w, http.StatusCreated, ObservationResponse{
		Recorded:    true,
		Observation: obs,
	})
}

// ProcessSession handles POST /v1/sessions/{sessionID}/passive-tracking.
// Scans a session's consecutive pieces for lineup swaps and records an
// observation per detected swap with split data.
func (h *ObservationHandlers) ProcessSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionID")
	if sessionID == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "session ID is required")
		return
	}

	var opts passive.ProcessOptions
	if r.Body != nil && r.ContentLength != 0 {
		var req struct {
			AutoApply bool `json:"auto_apply"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
			return
		}
		opts.AutoApply = req.AutoApply
	}

	result, err := h.recorder.ProcessSessionForPassiveTracking(r.Context(), sessionID, opts)
	if err != nil {
		if errors.Is(err, seatrace.ErrSessionNotFound) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Session not found")
			return
		}
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to process session")
		return
	}

	if h.tracker != nil && result.Recorded > 0 && !result.Applied {
		h.tracker.MarkDirty(result.TeamID)
	}
	writeJSON(w, http.StatusOK, result)
}

// TeamStats handles GET /v1/teams/{teamID}/passive-stats.
func (h *ObservationHandlers) TeamStats(w http.ResponseWriter, r *http.Request) {
	teamID := r.PathValue("teamID")
	if teamID == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "team ID is required")
		return
	}

	stats, err := h.recorder.TeamStats(r.Context(), teamID)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to load team stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
