package rating

import (
	"context"
	"errors"
	"testing"

	"github.com/swdrow/rowlab/internal/passive"
	"github.com/swdrow/rowlab/internal/seatrace"
	"github.com/swdrow/rowlab/internal/stats"
)

// countingPrimitive wraps an Updater and records every invocation.
type countingPrimitive struct {
	inner Updater
	calls int
	fail  error
}

func (p *countingPrimitive) UpdateRatings(ctx context.Context, teamID, winnerID, loserID string, margin float64, opts UpdateOptions) (*Update, error) {
	p.calls++
	if p.fail != nil {
		return nil, p.fail
	}
	return p.inner.UpdateRatings(ctx, teamID, winnerID, loserID, margin, opts)
}

func newTestBatch(t *testing.T) (*BatchUpdater, *passive.InMemoryObservationRepository, *InMemoryStore, *countingPrimitive) {
	t.Helper()
	observations := passive.NewInMemoryObservationRepository()
	store := NewInMemoryStore()
	primitive := &countingPrimitive{inner: NewEloUpdater(store, 0, quietLogger())}
	updater := NewBatchUpdater(observations, primitive, store, stats.NewApplyStats(), quietLogger())
	return updater, observations, store, primitive
}

func pendingObservation(t *testing.T, repo *passive.InMemoryObservationRepository, teamID string, split float64) *passive.Observation {
	t.Helper()
	obs := &passive.Observation{
		TeamID:            teamID,
		SwappedAthlete1ID: "a",
		SwappedAthlete2ID: "b",
		SplitDifference:   passive.SplitDelta(split),
		Weight:            passive.DefaultObservationWeight,
		Source:            passive.SourceManual,
	}
	if err := repo.Create(context.Background(), obs); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return obs
}

func TestApplyPendingObservations_NegativeDeltaMeansSecondAthleteWon(t *testing.T) {
	updater, observations, store, _ := newTestBatch(t)
	ctx := context.Background()

	// Negative delta: athlete1's boat was slower, so athlete2 won.
	pendingObservation(t, observations, "team-1", -3.0)

	result, err := updater.ApplyPendingObservations(ctx, "team-1", ApplyOptions{})
	if err != nil {
		t.Fatalf("ApplyPendingObservations() error = %v", err)
	}
	if result.Processed != 1 || result.Skipped != 0 {
		t.Fatalf("processed/skipped = %d/%d, want 1/0", result.Processed, result.Skipped)
	}
	update := result.Updates[0]
	if update.WinnerID != "b" || update.LoserID != "a" {
		t.Errorf("winner/loser = %s/%s, want b/a", update.WinnerID, update.LoserID)
	}
	if update.Margin != 3.0 {
		t.Errorf("margin = %v, want 3.0", update.Margin)
	}
	if update.Weight != passive.DefaultObservationWeight {
		t.Errorf("weight = %v, want %v", update.Weight, passive.DefaultObservationWeight)
	}

	winner, err := store.Get(ctx, "team-1", "b", TypeSeatRaceElo)
	if err != nil {
		t.Fatalf("Get(b) error = %v", err)
	}
	if winner.Value <= InitialRating {
		t.Errorf("winner value = %v, want above %v", winner.Value, InitialRating)
	}
}

func TestApplyPendingObservations_NeverReappliesAcrossCalls(t *testing.T) {
	updater, observations, store, primitive := newTestBatch(t)
	ctx := context.Background()

	pendingObservation(t, observations, "team-1", 2.0)

	first, err := updater.ApplyPendingObservations(ctx, "team-1", ApplyOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if first.Processed != 1 {
		t.Fatalf("first pass processed = %d, want 1", first.Processed)
	}
	valueAfterFirst, _ := store.Get(ctx, "team-1", "a", TypeSeatRaceElo)

	second, err := updater.ApplyPendingObservations(ctx, "team-1", ApplyOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if second.Processed != 0 || second.Skipped != 0 {
		t.Errorf("second pass processed/skipped = %d/%d, want 0/0", second.Processed, second.Skipped)
	}
	if primitive.calls != 1 {
		t.Errorf("primitive invoked %d times, want 1", primitive.calls)
	}
	valueAfterSecond, _ := store.Get(ctx, "team-1", "a", TypeSeatRaceElo)
	if valueAfterSecond.Value != valueAfterFirst.Value {
		t.Errorf("rating moved from %v to %v on second pass", valueAfterFirst.Value, valueAfterSecond.Value)
	}
}

func TestApplyPendingObservations_DryRun(t *testing.T) {
	updater, observations, store, primitive := newTestBatch(t)
	ctx := context.Background()

	obs := pendingObservation(t, observations, "team-1", 2.0)

	result, err := updater.ApplyPendingObservations(ctx, "team-1", ApplyOptions{DryRun: true})
	if err != nil {
		t.Fatalf("ApplyPendingObservations() error = %v", err)
	}
	if result.Processed != 1 {
		t.Fatalf("processed = %d, want 1", result.Processed)
	}
	update := result.Updates[0]
	if !update.DryRun {
		t.Error("update not marked as dry run")
	}
	if update.WinnerID != "a" || update.LoserID != "b" {
		t.Errorf("winner/loser = %s/%s, want a/b", update.WinnerID, update.LoserID)
	}
	if update.WinnerAfter <= update.WinnerBefore {
		t.Error("preview must show the winner gaining points")
	}

	if primitive.calls != 0 {
		t.Errorf("primitive invoked %d times during dry run, want 0", primitive.calls)
	}
	if _, err := store.Get(ctx, "team-1", "a", TypeSeatRaceElo); !errors.Is(err, ErrRatingNotFound) {
		t.Errorf("dry run persisted a rating: err = %v", err)
	}
	reloaded, err := observations.GetByID(ctx, obs.ID)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.AppliedToRatings {
		t.Error("dry run marked the observation applied")
	}

	// A real pass afterwards still sees and applies the observation.
	applied, err := updater.ApplyPendingObservations(ctx, "team-1", ApplyOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if applied.Processed != 1 {
		t.Errorf("post-dry-run pass processed = %d, want 1", applied.Processed)
	}
}

func TestApplyPendingObservations_PerItemFailureSkipsAndContinues(t *testing.T) {
	observations := passive.NewInMemoryObservationRepository()
	store := NewInMemoryStore()
	primitive := &countingPrimitive{inner: NewEloUpdater(store, 0, quietLogger())}
	updater := NewBatchUpdater(observations, primitive, store, nil, quietLogger())
	ctx := context.Background()

	// First observation fails inside the primitive (winner == loser),
	// the second is well formed.
	bad := &passive.Observation{
		TeamID:            "team-1",
		SwappedAthlete1ID: "a",
		SwappedAthlete2ID: "a",
		SplitDifference:   2.0,
		Weight:            1.0,
		Source:            passive.SourceManual,
	}
	if err := observations.Create(ctx, bad); err != nil {
		t.Fatal(err)
	}
	pendingObservation(t, observations, "team-1", 2.0)

	result, err := updater.ApplyPendingObservations(ctx, "team-1", ApplyOptions{})
	if err != nil {
		t.Fatalf("ApplyPendingObservations() error = %v", err)
	}
	if result.Processed != 1 {
		t.Errorf("processed = %d, want 1", result.Processed)
	}
	if result.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", result.Skipped)
	}
	if !result.Remaining {
		t.Error("skipped observations leave the backlog undrained")
	}

	// The failed observation stays pending for a later retry.
	stillPending, err := observations.ListPending(ctx, "team-1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(stillPending) != 1 || stillPending[0].ID != bad.ID {
		t.Errorf("pending after batch = %v, want just the failed observation", stillPending)
	}
}

func TestApplyPendingObservations_Limit(t *testing.T) {
	updater, observations, _, _ := newTestBatch(t)
	ctx := context.Background()

	for range 3 {
		pendingObservation(t, observations, "team-1", 1.5)
	}

	result, err := updater.ApplyPendingObservations(ctx, "team-1", ApplyOptions{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if result.Processed != 2 {
		t.Errorf("processed = %d, want 2", result.Processed)
	}
	if !result.Remaining {
		t.Error("a batch that hit its limit must report a remaining backlog")
	}

	rest, err := updater.ApplyPendingObservations(ctx, "team-1", ApplyOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if rest.Processed != 1 {
		t.Errorf("second batch processed = %d, want 1", rest.Processed)
	}
	if rest.Remaining {
		t.Error("a drained batch must not report a remaining backlog")
	}
}

func TestApplySeatRaceResults(t *testing.T) {
	updater, _, store, _ := newTestBatch(t)
	ctx := context.Background()

	comparisons := []seatrace.Comparison{
		{Athlete1ID: "a", Athlete2ID: "b", WinnerID: "b", Margin: 3.5, SessionID: "s1", PieceID: "p1"},
		{Athlete1ID: "a", Athlete2ID: "c", WinnerID: "a", Margin: 1.2, SessionID: "s1", PieceID: "p2"},
	}

	result, err := updater.ApplySeatRaceResults(ctx, "team-1", comparisons)
	if err != nil {
		t.Fatalf("ApplySeatRaceResults() error = %v", err)
	}
	if result.Processed != 2 || result.Skipped != 0 {
		t.Fatalf("processed/skipped = %d/%d, want 2/0", result.Processed, result.Skipped)
	}
	for _, update := range result.Updates {
		if update.Weight != 1.0 {
			t.Errorf("formal result weight = %v, want 1.0", update.Weight)
		}
	}
	if result.Updates[0].WinnerID != "b" || result.Updates[0].LoserID != "a" {
		t.Errorf("first comparison winner/loser = %s/%s, want b/a",
			result.Updates[0].WinnerID, result.Updates[0].LoserID)
	}

	b, err := store.Get(ctx, "team-1", "b", TypeSeatRaceElo)
	if err != nil {
		t.Fatal(err)
	}
	if b.Value <= InitialRating {
		t.Errorf("winner value = %v, want above %v", b.Value, InitialRating)
	}
	if b.RacesCount != 1 {
		t.Errorf("races = %d, want 1", b.RacesCount)
	}
}
