package rating

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestInMemoryStore_GetNotFound(t *testing.T) {
	store := NewInMemoryStore()
	_, err := store.Get(context.Background(), "t", "a", TypeSeatRaceElo)
	if !errors.Is(err, ErrRatingNotFound) {
		t.Errorf("Get() error = %v, want ErrRatingNotFound", err)
	}
}

func TestInMemoryStore_UpsertVersioning(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	r := &Rating{AthleteID: "a", TeamID: "t", RatingType: TypeSeatRaceElo, Value: 1500}
	if err := store.Upsert(ctx, r); err != nil {
		t.Fatalf("first Upsert() error = %v", err)
	}
	if r.Version != 1 {
		t.Errorf("version after insert = %d, want 1", r.Version)
	}

	r.Value = 1516
	if err := store.Upsert(ctx, r); err != nil {
		t.Fatalf("second Upsert() error = %v", err)
	}
	if r.Version != 2 {
		t.Errorf("version after update = %d, want 2", r.Version)
	}

	got, err := store.Get(ctx, "t", "a", TypeSeatRaceElo)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Value != 1516 {
		t.Errorf("value = %v, want 1516", got.Value)
	}
}

func TestInMemoryStore_UpsertStaleVersionRejected(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	r := &Rating{AthleteID: "a", TeamID: "t", RatingType: TypeSeatRaceElo, Value: 1500}
	if err := store.Upsert(ctx, r); err != nil {
		t.Fatal(err)
	}

	stale := *r
	r.Value = 1520
	if err := store.Upsert(ctx, r); err != nil {
		t.Fatal(err)
	}

	stale.Value = 1480
	if err := store.Upsert(ctx, &stale); !errors.Is(err, ErrVersionConflict) {
		t.Errorf("stale Upsert() error = %v, want ErrVersionConflict", err)
	}

	got, _ := store.Get(ctx, "t", "a", TypeSeatRaceElo)
	if got.Value != 1520 {
		t.Errorf("value = %v, stale write must not land", got.Value)
	}
}

func TestInMemoryStore_InsertWithNonzeroVersionRejected(t *testing.T) {
	store := NewInMemoryStore()
	r := &Rating{AthleteID: "a", TeamID: "t", RatingType: TypeSeatRaceElo, Value: 1500, Version: 3}
	if err := store.Upsert(context.Background(), r); !errors.Is(err, ErrVersionConflict) {
		t.Errorf("Upsert() error = %v, want ErrVersionConflict", err)
	}
}

func TestInMemoryStore_UpsertPair(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	a := &Rating{AthleteID: "a", TeamID: "t", RatingType: TypeSeatRaceElo, Value: 1516}
	b := &Rating{AthleteID: "b", TeamID: "t", RatingType: TypeSeatRaceElo, Value: 1484}
	if err := store.UpsertPair(ctx, a, b); err != nil {
		t.Fatalf("UpsertPair() error = %v", err)
	}
	if a.Version != 1 || b.Version != 1 {
		t.Errorf("versions = %d/%d, want 1/1", a.Version, b.Version)
	}

	got, err := store.Get(ctx, "t", "b", TypeSeatRaceElo)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Value != 1484 {
		t.Errorf("value = %v, want 1484", got.Value)
	}
}

func TestInMemoryStore_UpsertPairConflictWritesNeither(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	b := &Rating{AthleteID: "b", TeamID: "t", RatingType: TypeSeatRaceElo, Value: 1500}
	if err := store.Upsert(ctx, b); err != nil {
		t.Fatal(err)
	}

	// a is new; b carries a stale version. The pair write must reject
	// both rows, not land a and reject b.
	a := &Rating{AthleteID: "a", TeamID: "t", RatingType: TypeSeatRaceElo, Value: 1516}
	staleB := &Rating{AthleteID: "b", TeamID: "t", RatingType: TypeSeatRaceElo, Value: 1484, Version: 0}
	if err := store.UpsertPair(ctx, a, staleB); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("UpsertPair() error = %v, want ErrVersionConflict", err)
	}

	if _, err := store.Get(ctx, "t", "a", TypeSeatRaceElo); !errors.Is(err, ErrRatingNotFound) {
		t.Errorf("Get(a) error = %v, want ErrRatingNotFound after rejected pair", err)
	}
	got, _ := store.Get(ctx, "t", "b", TypeSeatRaceElo)
	if got.Value != 1500 {
		t.Errorf("b value = %v, want 1500 (stale write must not land)", got.Value)
	}
	if a.Version != 0 {
		t.Errorf("a version = %d, want 0 (unchanged on conflict)", a.Version)
	}
}

func TestInMemoryStore_ConcurrentUpserts(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	r := &Rating{AthleteID: "a", TeamID: "t", RatingType: TypeSeatRaceElo, Value: 1500}
	if err := store.Upsert(ctx, r); err != nil {
		t.Fatal(err)
	}

	const workers = 8
	var wg sync.WaitGroup
	conflicts := make(chan error, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stale, err := store.Get(ctx, "t", "a", TypeSeatRaceElo)
			if err != nil {
				conflicts <- err
				return
			}
			stale.Value += 10
			conflicts <- store.Upsert(ctx, stale)
		}()
	}
	wg.Wait()
	close(conflicts)

	succeeded := 0
	for err := range conflicts {
		if err == nil {
			succeeded++
		} else if !errors.Is(err, ErrVersionConflict) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded == 0 {
		t.Error("at least one concurrent upsert should succeed")
	}

	got, _ := store.Get(ctx, "t", "a", TypeSeatRaceElo)
	wantVersion := int64(1 + succeeded)
	if got.Version != wantVersion {
		t.Errorf("version = %d, want %d (one bump per successful write)", got.Version, wantVersion)
	}
}

func TestInMemoryStore_ListByTeam(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	for _, id := range []string{"charlie", "alice", "bob"} {
		r := &Rating{AthleteID: id, TeamID: "t", RatingType: TypeSeatRaceElo, Value: 1500}
		if err := store.Upsert(ctx, r); err != nil {
			t.Fatal(err)
		}
	}
	other := &Rating{AthleteID: "dave", TeamID: "other", RatingType: TypeSeatRaceElo, Value: 1500}
	if err := store.Upsert(ctx, other); err != nil {
		t.Fatal(err)
	}

	got, err := store.ListByTeam(ctx, "t", TypeSeatRaceElo)
	if err != nil {
		t.Fatalf("ListByTeam() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d ratings, want 3", len(got))
	}
	want := []string{"alice", "bob", "charlie"}
	for i, r := range got {
		if r.AthleteID != want[i] {
			t.Errorf("ratings[%d].AthleteID = %q, want %q", i, r.AthleteID, want[i])
		}
	}
}
