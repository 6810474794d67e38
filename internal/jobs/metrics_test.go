package jobs

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewMetrics(t *testing.T) {
	m := NewMetrics()
	if m == nil {
		t.Fatal("NewMetrics() returned nil")
	}

	collectors := m.Collectors()
	if len(collectors) != 3 {
		t.Errorf("expected 3 collectors, got %d", len(collectors))
	}
}

func TestMetrics_Register(t *testing.T) {
	t.Run("successful registration", func(t *testing.T) {
		m := NewMetrics()
		reg := prometheus.NewRegistry()

		if err := m.Register(reg); err != nil {
			t.Errorf("Register() returned error: %v", err)
		}

		// Vectors with no observations gather as empty, so record one
		// sample per collector first.
		m.IncJobsTotal(JobTypePassiveApply, StatusSuccess)
		m.ObserveJobDuration(JobTypePassiveApply, 0.5)
		m.IncJobErrors(JobTypePassiveApply, "apply_error")

		families, err := reg.Gather()
		if err != nil {
			t.Errorf("Gather() returned error: %v", err)
		}

		expectedNames := map[string]bool{
			MetricBackgroundJobsTotal:      false,
			MetricBackgroundJobsDuration:   false,
			MetricBackgroundJobErrorsTotal: false,
		}

		for _, family := range families {
			if _, ok := expectedNames[family.GetName()]; ok {
				expectedNames[family.GetName()] = true
			}
		}

		for name, found := range expectedNames {
			if !found {
				t.Errorf("metric %s not found in gathered metrics", name)
			}
		}
	})

	t.Run("duplicate registration fails", func(t *testing.T) {
		m1 := NewMetrics()
		m2 := NewMetrics()
		reg := prometheus.NewRegistry()

		if err := m1.Register(reg); err != nil {
			t.Fatalf("first Register() returned error: %v", err)
		}

		if err := m2.Register(reg); err == nil {
			t.Error("second Register() should have returned an error")
		}
	})
}

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics()

	m.IncJobsTotal(JobTypePassiveApply, StatusSuccess)
	m.IncJobsTotal(JobTypePassiveApply, StatusSuccess)
	m.IncJobsTotal(JobTypePassiveApply, StatusFailure)

	success := counterValue(t, m.jobsTotal.WithLabelValues(JobTypePassiveApply, StatusSuccess))
	if success != 2 {
		t.Errorf("success count = %v, want 2", success)
	}
	failure := counterValue(t, m.jobsTotal.WithLabelValues(JobTypePassiveApply, StatusFailure))
	if failure != 1 {
		t.Errorf("failure count = %v, want 1", failure)
	}

	m.IncJobErrors(JobTypePassiveApply, "timeout")
	errCount := counterValue(t, m.jobErrors.WithLabelValues(JobTypePassiveApply, "timeout"))
	if errCount != 1 {
		t.Errorf("error count = %v, want 1", errCount)
	}
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.(prometheus.Metric).Write(&m); err != nil {
		t.Fatalf("failed to read counter: %v", err)
	}
	return m.GetCounter().GetValue()
}
