package stats

import (
	"sync"
	"testing"
)

func TestApplyStats_Counters(t *testing.T) {
	s := NewApplyStats()

	s.RecordProcessed(3)
	s.RecordSkipped(1)
	s.RecordNoise()

	if s.Processed() != 3 {
		t.Errorf("Processed() = %d, want 3", s.Processed())
	}
	if s.Skipped() != 1 {
		t.Errorf("Skipped() = %d, want 1", s.Skipped())
	}
	if s.Noise() != 1 {
		t.Errorf("Noise() = %d, want 1", s.Noise())
	}

	if got := s.String(); got != "processed=3 skipped=1 noise=1" {
		t.Errorf("String() = %q", got)
	}

	s.Reset()
	if s.Processed() != 0 || s.Skipped() != 0 || s.Noise() != 0 {
		t.Error("Reset() did not zero all counters")
	}
}

func TestApplyStats_ConcurrentRecording(t *testing.T) {
	s := NewApplyStats()

	const workers = 10
	const perWorker = 100
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				s.RecordProcessed(1)
				s.RecordSkipped(1)
			}
		}()
	}
	wg.Wait()

	if s.Processed() != workers*perWorker {
		t.Errorf("Processed() = %d, want %d", s.Processed(), workers*perWorker)
	}
	if s.Skipped() != workers*perWorker {
		t.Errorf("Skipped() = %d, want %d", s.Skipped(), workers*perWorker)
	}
}
