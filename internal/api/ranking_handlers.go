package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/swdrow/rowlab/internal/middleware"
	"github.com/swdrow/rowlab/internal/ranking"
)

var errInvalidWeightParams = errors.New("w_on_water, w_erg and w_attendance must all be non-negative numbers and supplied together")

func isWeightError(err error) bool {
	return errors.Is(err, ranking.ErrUnknownProfile) || errors.Is(err, ranking.ErrInvalidWeights)
}

// RankingHandlers holds dependencies for composite ranking endpoints.
type RankingHandlers struct {
	calculator *ranking.Calculator
}

// NewRankingHandlers creates a new RankingHandlers instance.
func NewRankingHandlers(calculator *ranking.Calculator) *RankingHandlers {
	return &RankingHandlers{calculator: calculator}
}

// GetRankings handles GET /v1/teams/{teamID}/rankings.
//
// Query parameters:
//   - profile: one of performance_first, balanced, reliability
//   - w_on_water, w_erg, w_attendance: custom weights; all three must be
//     supplied together and take precedence over profile
func (h *RankingHandlers) GetRankings(w http.ResponseWriter, r *http.Request) {
	teamID := r.PathValue("teamID")
	if teamID == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "team ID is required")
		return
	}

	opts, err := rankingOptionsFromQuery(r)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInvalidProfile)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidProfile, err.Error())
		return
	}

	result, err := h.calculator.CalculateCompositeRankings(r.Context(), teamID, opts)
	if err != nil {
		if isWeightError(err) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeInvalidProfile)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidProfile, err.Error())
			return
		}
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to calculate rankings")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func rankingOptionsFromQuery(r *http.Request) (ranking.Options, error) {
	q := r.URL.Query()
	opts := ranking.Options{Profile: q.Get("profile")}

	raw := map[string]string{
		"w_on_water":   q.Get("w_on_water"),
		"w_erg":        q.Get("w_erg"),
		"w_attendance": q.Get("w_attendance"),
	}
	supplied := false
	for _, v := range raw {
		if v != "" {
			supplied = true
		}
	}
	if !supplied {
		return opts, nil
	}

	custom := &ranking.Weights{}
	for param, dst := range map[string]*float64{
		"w_on_water":   &custom.OnWater,
		"w_erg":        &custom.Erg,
		"w_attendance": &custom.Attendance,
	} {
		v := raw[param]
		if v == "" {
			return opts, errInvalidWeightParams
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			return opts, errInvalidWeightParams
		}
		*dst = f
	}
	opts.Custom = custom
	return opts, nil
}
