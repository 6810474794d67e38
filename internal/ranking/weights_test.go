package ranking

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestProfileWeights(t *testing.T) {
	tests := []struct {
		name    string
		profile string
		want    Weights
		wantErr bool
	}{
		{
			name:    "balanced",
			profile: ProfileBalanced,
			want:    Weights{OnWater: 0.75, Erg: 0.15, Attendance: 0.10},
		},
		{
			name:    "empty name means balanced",
			profile: "",
			want:    Weights{OnWater: 0.75, Erg: 0.15, Attendance: 0.10},
		},
		{
			name:    "performance first",
			profile: ProfilePerformanceFirst,
			want:    Weights{OnWater: 0.85, Erg: 0.10, Attendance: 0.05},
		},
		{
			name:    "reliability",
			profile: ProfileReliability,
			want:    Weights{OnWater: 0.65, Erg: 0.15, Attendance: 0.20},
		},
		{
			name:    "unknown profile",
			profile: "ergs_only",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ProfileWeights(tt.profile)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ProfileWeights() error = %v", err)
			}
			if *got != tt.want {
				t.Errorf("ProfileWeights() = %+v, want %+v", *got, tt.want)
			}
			if math.Abs(got.Total()-1.0) > 1e-9 {
				t.Errorf("profile weights sum to %v, want 1.0", got.Total())
			}
		})
	}
}

func TestWeightsNormalized(t *testing.T) {
	// Custom weights may sum to any positive total.
	w := &Weights{OnWater: 3, Erg: 1, Attendance: 1}
	got, err := w.Normalized()
	if err != nil {
		t.Fatalf("Normalized() error = %v", err)
	}
	if math.Abs(got.Total()-1.0) > 1e-9 {
		t.Errorf("normalized total = %v, want 1.0", got.Total())
	}
	if math.Abs(got.OnWater-0.6) > 1e-9 {
		t.Errorf("OnWater = %v, want 0.6", got.OnWater)
	}

	if _, err := (&Weights{}).Normalized(); err == nil {
		t.Error("zero weights must be rejected")
	}
	if _, err := (&Weights{OnWater: -1, Erg: 0.5}).Normalized(); err == nil {
		t.Error("negative total must be rejected")
	}
}

func TestSigmoid(t *testing.T) {
	if got := Sigmoid(0); got != 0.5 {
		t.Errorf("Sigmoid(0) = %v, want 0.5", got)
	}
	if got := Sigmoid(10); got <= 0.99 {
		t.Errorf("Sigmoid(10) = %v, want near 1", got)
	}
	if got := Sigmoid(-10); got >= 0.01 {
		t.Errorf("Sigmoid(-10) = %v, want near 0", got)
	}
	// Symmetry around 0.5.
	if sum := Sigmoid(1.3) + Sigmoid(-1.3); math.Abs(sum-1.0) > 1e-9 {
		t.Errorf("Sigmoid(z) + Sigmoid(-z) = %v, want 1.0", sum)
	}
}

func TestZScores(t *testing.T) {
	t.Run("standard values", func(t *testing.T) {
		got := ZScores([]float64{1, 2, 3})
		if math.Abs(got[1]) > 1e-9 {
			t.Errorf("middle z = %v, want 0", got[1])
		}
		if got[0] >= 0 || got[2] <= 0 {
			t.Errorf("z-scores = %v, want below/above mean signs", got)
		}
		if math.Abs(got[0]+got[2]) > 1e-9 {
			t.Errorf("symmetric values must give opposite z-scores, got %v", got)
		}
	})

	t.Run("identical values give zero", func(t *testing.T) {
		for _, z := range ZScores([]float64{4, 4, 4}) {
			if z != 0 {
				t.Errorf("z = %v, want 0 for zero-variance input", z)
			}
		}
	})

	t.Run("empty input", func(t *testing.T) {
		if got := ZScores(nil); got != nil {
			t.Errorf("ZScores(nil) = %v, want nil", got)
		}
	})
}

func TestSampleConfidence(t *testing.T) {
	tests := []struct {
		dataPoints int
		want       float64
	}{
		{0, 0},
		{1, 0.2},
		{3, 0.6},
		{5, 1.0},
		{50, 1.0},
	}
	for _, tt := range tests {
		if got := SampleConfidence(tt.dataPoints); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("SampleConfidence(%d) = %v, want %v", tt.dataPoints, got, tt.want)
		}
	}
}

func TestLoadCalibration(t *testing.T) {
	t.Run("empty path returns defaults", func(t *testing.T) {
		got, err := LoadCalibration("")
		if err != nil {
			t.Fatalf("LoadCalibration() error = %v", err)
		}
		if *got != *DefaultWeights() {
			t.Errorf("weights = %+v, want defaults", *got)
		}
	})

	t.Run("missing file falls back to defaults with error", func(t *testing.T) {
		got, err := LoadCalibration(filepath.Join(t.TempDir(), "absent.json"))
		if err == nil {
			t.Error("expected error for missing file")
		}
		if *got != *DefaultWeights() {
			t.Errorf("weights = %+v, want defaults on error", *got)
		}
	})

	t.Run("invalid JSON falls back to defaults with error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.json")
		if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
			t.Fatal(err)
		}
		got, err := LoadCalibration(path)
		if err == nil {
			t.Error("expected error for invalid JSON")
		}
		if *got != *DefaultWeights() {
			t.Errorf("weights = %+v, want defaults on error", *got)
		}
	})

	t.Run("partial override merges with defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "calibration.json")
		content := `{"version": "1", "weights": {"on_water": 0.8}}`
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
		got, err := LoadCalibration(path)
		if err != nil {
			t.Fatalf("LoadCalibration() error = %v", err)
		}
		// 0.8 / (0.8 + 0.15 + 0.10) after renormalization.
		want := 0.8 / 1.05
		if math.Abs(got.OnWater-want) > 1e-9 {
			t.Errorf("OnWater = %v, want %v", got.OnWater, want)
		}
		if math.Abs(got.Total()-1.0) > 1e-9 {
			t.Errorf("total = %v, want 1.0", got.Total())
		}
	})
}

func TestMergeCalibration(t *testing.T) {
	base := DefaultWeights()

	t.Run("nil override copies base", func(t *testing.T) {
		got := MergeCalibration(base, nil)
		if *got != *base {
			t.Errorf("merged = %+v, want base %+v", *got, *base)
		}
		if got == base {
			t.Error("must return a copy, not the base pointer")
		}
	})

	t.Run("nil base falls back to defaults", func(t *testing.T) {
		got := MergeCalibration(nil, &Weights{OnWater: 0.9})
		if *got != *DefaultWeights() {
			t.Errorf("merged = %+v, want defaults", *got)
		}
	})

	t.Run("zero fields keep base values", func(t *testing.T) {
		got := MergeCalibration(base, &Weights{Erg: 0.25})
		if got.OnWater != base.OnWater || got.Attendance != base.Attendance {
			t.Errorf("untouched fields changed: %+v", *got)
		}
		if got.Erg != 0.25 {
			t.Errorf("Erg = %v, want 0.25", got.Erg)
		}
	})
}

func TestErgImportance(t *testing.T) {
	tests := []struct {
		testType string
		want     float64
	}{
		{"2k", 1.0},
		{"6k", 0.8},
		{"500m", 0.6},
		{"steady_state", 0.3},
		{"30min", 0.5},
	}
	for _, tt := range tests {
		if got := ErgImportance(tt.testType); got != tt.want {
			t.Errorf("ErgImportance(%q) = %v, want %v", tt.testType, got, tt.want)
		}
	}
}
