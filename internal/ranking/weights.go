// Package ranking computes blended composite rankings from normalized
// per-athlete performance signals, with calibration support for
// deploy-time weight tuning.
package ranking

import (
	"errors"
	"fmt"
	"math"
)

// Validation errors for weight resolution.
var (
	ErrUnknownProfile = errors.New("unknown weight profile")
	ErrInvalidWeights = errors.New("weights must sum to a positive total")
)

// Weight profile names accepted by ProfileWeights.
const (
	ProfilePerformanceFirst = "performance_first"
	ProfileBalanced         = "balanced"
	ProfileReliability      = "reliability"
)

// Signal source names used in ranking breakdowns.
const (
	SignalOnWater    = "on_water"
	SignalErg        = "erg"
	SignalAttendance = "attendance"
)

// Weights defines the blend across the three ranking signals. A valid
// set of weights sums to 1; use Normalized to renormalize arbitrary
// positive weights.
type Weights struct {
	OnWater    float64 `json:"on_water"`    // Weight for seat race rating (default: 0.75)
	Erg        float64 `json:"erg"`         // Weight for erg test performance (default: 0.15)
	Attendance float64 `json:"attendance"`  // Weight for practice attendance (default: 0.10)
}

// DefaultWeights returns the balanced profile, the default blend.
//
// Formula: composite_score = (on_water * 0.75) + (erg * 0.15) + (attendance * 0.10)
//   - On-water rating dominates: direct boat-moving evidence
//   - Erg as an independent fitness signal
//   - Attendance as a small reliability signal
func DefaultWeights() *Weights {
	return &Weights{
		OnWater:    0.75,
		Erg:        0.15,
		Attendance: 0.10,
	}
}

// ProfileWeights returns the named preset. An empty name means the
// balanced default.
func ProfileWeights(name string) (*Weights, error) {
	switch name {
	case "", ProfileBalanced:
		return DefaultWeights(), nil
	case ProfilePerformanceFirst:
		return &Weights{OnWater: 0.85, Erg: 0.10, Attendance: 0.05}, nil
	case ProfileReliability:
		return &Weights{OnWater: 0.65, Erg: 0.15, Attendance: 0.20}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
}

// Total returns the sum of the three weights.
func (w *Weights) Total() float64 {
	return w.OnWater + w.Erg + w.Attendance
}

// Normalized returns a copy scaled so the weights sum to 1. Custom
// weights may sum to any positive total; a non-positive total is
// rejected.
func (w *Weights) Normalized() (*Weights, error) {
	total := w.Total()
	if total <= 0 {
		return nil, fmt.Errorf("%w, got %v", ErrInvalidWeights, total)
	}
	return &Weights{
		OnWater:    w.OnWater / total,
		Erg:        w.Erg / total,
		Attendance: w.Attendance / total,
	}, nil
}

// Sigmoid maps a z-score to (0, 1). Used to squash normalized signal
// values into a comparable range.
func Sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}

// ZScores converts raw signal values to z-scores against their own mean
// and standard deviation. A zero standard deviation (all values equal)
// maps every value to 0, which Sigmoid turns into 0.5.
func ZScores(values []float64) []float64 {
	n := float64(len(values))
	if n == 0 {
		return nil
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / n

	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	std := math.Sqrt(variance / n)

	scores := make([]float64, len(values))
	if std == 0 {
		return scores
	}
	for i, v := range values {
		scores[i] = (v - mean) / std
	}
	return scores
}

// SampleConfidence converts a sample size to a [0, 1] confidence value.
// Five or more data points give full confidence.
func SampleConfidence(dataPoints int) float64 {
	c := float64(dataPoints) / 5.0
	if c > 1 {
		return 1
	}
	return c
}
