package ranking

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
)

// CalibrationConfig represents the JSON structure of the calibration file.
type CalibrationConfig struct {
	Version string  `json:"version"` // Config version for future compatibility
	Weights Weights `json:"weights"` // Weight overrides
}

// LoadCalibration loads ranking weights from a JSON calibration file.
// Partial configurations are merged with the balanced defaults so a file
// may override a single weight. On any read or parse error the defaults
// are returned alongside the error so callers degrade gracefully.
func LoadCalibration(filePath string) (*Weights, error) {
	if filePath == "" {
		return DefaultWeights(), nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		slog.Warn("failed to read calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultWeights(), fmt.Errorf("failed to read calibration file: %w", err)
	}

	var config CalibrationConfig
	if err := json.Unmarshal(data, &config); err != nil {
		slog.Warn("failed to parse calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultWeights(), fmt.Errorf("failed to parse calibration file: %w", err)
	}

	defaults := DefaultWeights()
	merged := MergeCalibration(defaults, &config.Weights)

	normalized, err := merged.Normalized()
	if err != nil {
		slog.Warn("calibration weights are invalid, using defaults",
			"path", filePath,
			"error", err)
		return DefaultWeights(), fmt.Errorf("invalid calibration weights: %w", err)
	}
	logCalibrationOverrides(defaults, normalized)

	return normalized, nil
}

// MergeCalibration merges override weights into base weights. Only
// non-zero overrides are applied, which allows partial calibration
// files.
func MergeCalibration(base *Weights, override *Weights) *Weights {
	if base == nil {
		return DefaultWeights()
	}
	if override == nil {
		result := *base
		return &result
	}

	result := *base
	if override.OnWater != 0 {
		result.OnWater = override.OnWater
	}
	if override.Erg != 0 {
		result.Erg = override.Erg
	}
	if override.Attendance != 0 {
		result.Attendance = override.Attendance
	}
	return &result
}

// logCalibrationOverrides logs which weights differ from defaults.
func logCalibrationOverrides(defaults *Weights, loaded *Weights) {
	var overrides []string

	if loaded.OnWater != defaults.OnWater {
		overrides = append(overrides, fmt.Sprintf("on_water: %.2f -> %.2f",
			defaults.OnWater, loaded.OnWater))
	}
	if loaded.Erg != defaults.Erg {
		overrides = append(overrides, fmt.Sprintf("erg: %.2f -> %.2f",
			defaults.Erg, loaded.Erg))
	}
	if loaded.Attendance != defaults.Attendance {
		overrides = append(overrides, fmt.Sprintf("attendance: %.2f -> %.2f",
			defaults.Attendance, loaded.Attendance))
	}

	if len(overrides) > 0 {
		slog.Info("loaded ranking calibration with overrides",
			"overrides", overrides)
	} else {
		slog.Info("loaded ranking calibration (using all defaults)")
	}
}
