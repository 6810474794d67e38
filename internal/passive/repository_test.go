package passive

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func newObservation(teamID string, createdAt time.Time) *Observation {
	return &Observation{
		TeamID:            teamID,
		Boat1Athletes:     []string{"a", "b"},
		Boat2Athletes:     []string{"a", "c"},
		SwappedAthlete1ID: "b",
		SwappedAthlete2ID: "c",
		SplitDifference:   2.0,
		Weight:            0.5,
		Source:            SourceManual,
		CreatedAt:         createdAt,
	}
}

func TestInMemoryObservationRepository_CreateAssignsID(t *testing.T) {
	repo := NewInMemoryObservationRepository()
	obs := newObservation("team-1", time.Time{})

	if err := repo.Create(context.Background(), obs); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if obs.ID == "" {
		t.Error("expected generated ID")
	}
	if obs.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
}

func TestInMemoryObservationRepository_ListPendingOrderAndLimit(t *testing.T) {
	repo := NewInMemoryObservationRepository()
	base := time.Date(2026, 5, 1, 6, 0, 0, 0, time.UTC)
	ctx := context.Background()

	// Insert newest first to prove ordering is by creation time.
	for i := 2; i >= 0; i-- {
		obs := newObservation("team-1", base.Add(time.Duration(i)*time.Minute))
		obs.ID = fmt.Sprintf("obs-%d", i)
		if err := repo.Create(ctx, obs); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	pending, err := repo.ListPending(ctx, "team-1", 2)
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("got %d pending, want 2 (limit)", len(pending))
	}
	if pending[0].ID != "obs-0" || pending[1].ID != "obs-1" {
		t.Errorf("order = [%s %s], want oldest first [obs-0 obs-1]", pending[0].ID, pending[1].ID)
	}
}

func TestInMemoryObservationRepository_ApplyTransitionsOnce(t *testing.T) {
	repo := NewInMemoryObservationRepository()
	ctx := context.Background()
	obs := newObservation("team-1", time.Now())
	if err := repo.Create(ctx, obs); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	appliedAt := time.Now()
	if err := repo.Apply(ctx, obs.ID, appliedAt, func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	stored, _ := repo.GetByID(ctx, obs.ID)
	if !stored.AppliedToRatings {
		t.Error("expected observation to be applied")
	}
	if stored.AppliedAt == nil {
		t.Error("expected AppliedAt to be set")
	}

	// Second apply must not re-run.
	err := repo.Apply(ctx, obs.ID, time.Now(), func(ctx context.Context) error {
		t.Error("commit must not run for an already-applied observation")
		return nil
	})
	if !errors.Is(err, ErrAlreadyApplied) {
		t.Errorf("second Apply() error = %v, want ErrAlreadyApplied", err)
	}
}

func TestInMemoryObservationRepository_ApplyRollsBackOnCommitFailure(t *testing.T) {
	repo := NewInMemoryObservationRepository()
	ctx := context.Background()
	obs := newObservation("team-1", time.Now())
	if err := repo.Create(ctx, obs); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	commitErr := errors.New("rating write failed")
	err := repo.Apply(ctx, obs.ID, time.Now(), func(ctx context.Context) error { return commitErr })
	if !errors.Is(err, commitErr) {
		t.Fatalf("Apply() error = %v, want commit error", err)
	}

	// The claim must be released: the observation stays pending.
	stored, _ := repo.GetByID(ctx, obs.ID)
	if stored.AppliedToRatings {
		t.Error("observation marked applied despite failed rating write")
	}
	pending, _ := repo.ListPending(ctx, "team-1", 10)
	if len(pending) != 1 {
		t.Errorf("pending = %d, want 1", len(pending))
	}
}

func TestInMemoryObservationRepository_ApplyConcurrentClaims(t *testing.T) {
	repo := NewInMemoryObservationRepository()
	ctx := context.Background()
	obs := newObservation("team-1", time.Now())
	if err := repo.Create(ctx, obs); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	const workers = 8
	var commits int32
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			err := repo.Apply(ctx, obs.ID, time.Now(), func(ctx context.Context) error {
				mu.Lock()
				commits++
				mu.Unlock()
				return nil
			})
			if err != nil && !errors.Is(err, ErrAlreadyApplied) {
				t.Errorf("Apply() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if commits != 1 {
		t.Errorf("commit ran %d times, want exactly 1", commits)
	}
}

func TestInMemoryObservationRepository_TeamStats(t *testing.T) {
	repo := NewInMemoryObservationRepository()
	ctx := context.Background()

	manual := newObservation("team-1", time.Now())
	if err := repo.Create(ctx, manual); err != nil {
		t.Fatal(err)
	}
	auto := newObservation("team-1", time.Now())
	auto.Source = SourceAutoDetect
	if err := repo.Create(ctx, auto); err != nil {
		t.Fatal(err)
	}
	other := newObservation("team-2", time.Now())
	if err := repo.Create(ctx, other); err != nil {
		t.Fatal(err)
	}

	if err := repo.Apply(ctx, manual.ID, time.Now(), func(ctx context.Context) error { return nil }); err != nil {
		t.Fatal(err)
	}

	stats, err := repo.TeamStats(ctx, "team-1")
	if err != nil {
		t.Fatalf("TeamStats() error = %v", err)
	}
	if stats.Total != 2 || stats.Pending != 1 || stats.Applied != 1 {
		t.Errorf("total/pending/applied = %d/%d/%d, want 2/1/1", stats.Total, stats.Pending, stats.Applied)
	}
	if stats.BySource[SourceManual] != 1 || stats.BySource[SourceAutoDetect] != 1 {
		t.Errorf("by_source = %v, want one manual, one auto_detect", stats.BySource)
	}
	if stats.LastAppliedAt == nil {
		t.Error("expected LastAppliedAt")
	}
}
