package api

import (
	"encoding/json"
	"net/http"

	"github.com/swdrow/rowlab/internal/jobs"
	"github.com/swdrow/rowlab/internal/middleware"
	"github.com/swdrow/rowlab/internal/rating"
)

// RatingHandlers holds dependencies for rating endpoints.
type RatingHandlers struct {
	updater *rating.BatchUpdater
	store   rating.Store
	tracker *jobs.DirtyTracker // optional
}

// NewRatingHandlers creates a new RatingHandlers instance.
func NewRatingHandlers(updater *rating.BatchUpdater, store rating.Store, tracker *jobs.DirtyTracker) *RatingHandlers {
	return &RatingHandlers{updater: updater, store: store, tracker: tracker}
}

// ApplyRequest is the request body for applying pending observations.
type ApplyRequest struct {
	Limit  int  `json:"limit,omitempty"`
	DryRun bool `json:"dry_run,omitempty"`
}

// ApplyRatings handles POST /v1/teams/{teamID}/ratings/apply. It
// consumes pending passive observations for the team and applies rating
// updates; each observation is applied at most once.
func (h *RatingHandlers) ApplyRatings(w http.ResponseWriter, r *http.Request) {
	teamID := r.PathValue("teamID")
	if teamID == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "team ID is required")
		return
	}

	var req ApplyRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
			return
		}
	}
	if req.Limit < 0 {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "limit must not be negative")
		return
	}

	result, err := h.updater.ApplyPendingObservations(r.Context(), teamID, rating.ApplyOptions{
		Limit:  req.Limit,
		DryRun: req.DryRun,
	})
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to apply observations")
		return
	}

	// Only clear when this pass drained the backlog. A full batch (or a
	// skipped observation) means more work is pending and the team must
	// stay marked for the next pass.
	if h.tracker != nil && !req.DryRun && !result.Remaining {
		h.tracker.ClearDirty(teamID)
	}
	writeJSON(w, http.StatusOK, result)
}

// RatingsResponse lists a team's current ratings.
type RatingsResponse struct {
	TeamID  string          `json:"team_id"`
	Ratings []rating.Rating `json:"ratings"`
	Count   int             `json:"count"`
}

// ListRatings handles GET /v1/teams/{teamID}/ratings.
func (h *RatingHandlers) ListRatings(w http.ResponseWriter, r *http.Request) {
	teamID := r.PathValue("teamID")
	if teamID == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "team ID is required")
		return
	}

	ratings, err := h.store.ListByTeam(r.Context(), teamID, rating.TypeSeatRaceElo)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to load ratings")
		return
	}
	if ratings == nil {
		ratings = []rating.Rating{}
	}
	writeJSON(w, http.StatusOK, RatingsResponse{TeamID: teamID, Ratings: ratings, Count: len(ratings)})
}
