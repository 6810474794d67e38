package passive

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ObservationRepository persists passive observations and owns the
// applied-to-ratings state transition.
type ObservationRepository interface {
	// Create persists a new observation. Assigns an ID if empty.
	Create(ctx context.Context, obs *Observation) error

	// GetByID returns an observation by ID.
	// Returns ErrObservationNotFound if it does not exist.
	GetByID(ctx context.Context, id string) (*Observation, error)

	// ListPending returns observations with AppliedToRatings=false for the
	// team, oldest first, up to limit.
	ListPending(ctx context.Context, teamID string, limit int) ([]Observation, error)

	// Apply atomically claims the observation by transitioning
	// AppliedToRatings false -> true and runs commit within the same
	// claim. If commit fails, the claim is released and the error is
	// returned; the observation must never be visible as applied unless
	// commit succeeded. Returns ErrAlreadyApplied when a concurrent
	// caller won the claim.
	Apply(ctx context.Context, id string, appliedAt time.Time, commit func(ctx context.Context) error) error

	// TeamStats returns aggregate counts for a team's observations.
	TeamStats(ctx context.Context, teamID string) (*TeamStats, error)
}

// InMemoryObservationRepository implements ObservationRepository with
// in-memory storage. The repository mutex serializes Apply claims, which
// gives the same at-most-once guarantee the Postgres implementation gets
// from its conditional UPDATE.
type InMemoryObservationRepository struct {
	mu           sync.RWMutex
	observations map[string]*Observation
}

// NewInMemoryObservationRepository creates a new in-memory observation repository.
func NewInMemoryObservationRepository() *InMemoryObservationRepository {
	return &InMemoryObservationRepository{
		observations: make(map[string]*Observation),
	}
}

// Create persists a new observation.
func (r *InMemoryObservationRepository) Create(ctx context.Context, obs *Observation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if obs.ID == "" {
		obs.ID = uuid.New().String()
	}
	if obs.CreatedAt.IsZero() {
		obs.CreatedAt = time.Now()
	}

	copied := copyObservation(obs)
	r.observations[obs.ID] = copied
	return nil
}

// GetByID returns an observation by ID.
func (r *InMemoryObservationRepository) GetByID(ctx context.Context, id string) (*Observation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	obs, ok := r.observations[id]
	if !ok {
		return nil, ErrObservationNotFound
	}
	return copyObservation(obs), nil
}

// ListPending returns unapplied observations for the team, oldest first.
func (r *InMemoryObservationRepository) ListPending(ctx context.Context, teamID string, limit int) ([]Observation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var pending []Observation
	for _, obs := range r.observations {
		if obs.TeamID == teamID && !obs.AppliedToRatings {
			pending = append(pending, *copyObservation(obs))
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
			return pending[i].ID < pending[j].ID
		}
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

// Apply claims the observation and runs commit under the claim.
func (r *InMemoryObservationRepository) Apply(ctx context.Context, id string, appliedAt time.Time, commit func(ctx context.Context) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	obs, ok := r.observations[id]
	if !ok {
		return ErrObservationNotFound
	}
	if obs.AppliedToRatings {
		return ErrAlreadyApplied
	}

	// Claim while holding the lock; release if the rating write fails.
	obs.AppliedToRatings = true
	at := appliedAt
	obs.AppliedAt = &at

	if err := commit(ctx); err != nil {
		obs.AppliedToRatings = false
		obs.AppliedAt = nil
		return err
	}
	return nil
}

// TeamStats returns aggregate counts for a team's observations.
func (r *InMemoryObservationRepository) TeamStats(ctx context.Context, teamID string) (*TeamStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := &TeamStats{
		TeamID:   teamID,
		BySource: make(map[Source]int),
	}
	for _, obs := range r.observations {
		if obs.TeamID != teamID {
			continue
		}
		stats.Total++
		stats.BySource[obs.Source]++
		if obs.AppliedToRatings {
			stats.Applied++
			if obs.AppliedAt != nil && (stats.LastAppliedAt == nil || obs.AppliedAt.After(*stats.LastAppliedAt)) {
				at := *obs.AppliedAt
				stats.LastAppliedAt = &at
			}
		} else {
			stats.Pending++
		}
	}
	return stats, nil
}

// copyObservation creates a deep copy to prevent external mutation.
func copyObservation(obs *Observation) *Observation {
	copied := *obs
	copied.Boat1Athletes = append([]string(nil), obs.Boat1Athletes...)
	copied.Boat2Athletes = append([]string(nil), obs.Boat2Athletes...)
	if obs.AppliedAt != nil {
		at := *obs.AppliedAt
		copied.AppliedAt = &at
	}
	return &copied
}
