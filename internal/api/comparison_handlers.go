package api

import (
	"net/http"

	"github.com/swdrow/rowlab/internal/middleware"
	"github.com/swdrow/rowlab/internal/seatrace"
)

// ComparisonHandlers holds dependencies for seat race comparison endpoints.
type ComparisonHandlers struct {
	extractor *seatrace.Extractor
}

// NewComparisonHandlers creates a new ComparisonHandlers instance.
func NewComparisonHandlers(extractor *seatrace.Extractor) *ComparisonHandlers {
	return &ComparisonHandlers{extractor: extractor}
}

// ComparisonsResponse is the response body for comparison extraction.
type ComparisonsResponse struct {
	TeamID      string                 `json:"team_id"`
	Comparisons []seatrace.Comparison  `json:"comparisons"`
	Count       int                    `json:"count"`
}

// ExtractComparisons handles GET /v1/teams/{teamID}/comparisons.
// Extracts pairwise comparisons from all of the team's seat race sessions.
func (h *ComparisonHandlers) ExtractComparisons(w http.ResponseWriter, r *http.Request) {
	teamID := r.PathValue("teamID")
	if teamID == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "team ID is required")
		return
	}

	comparisons, err := h.extractor.ExtractComparisons(r.Context(), teamID)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to extract comparisons")
		return
	}

	// No sessions is an empty result, not an error.
	if comparisons == nil {
		comparisons = []seatrace.Comparison{}
	}

	writeJSON(w, http.StatusOK, ComparisonsResponse{
		TeamID:      teamID,
		Comparisons: comparisons,
		Count:       len(comparisons),
	})
}
