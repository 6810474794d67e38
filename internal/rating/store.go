package rating

import (
	"context"
	"sort"
	"sync"
)

// InMemoryStore implements Store with in-memory storage and optimistic
// versioning identical in semantics to the Postgres implementation.
type InMemoryStore struct {
	mu      sync.RWMutex
	ratings map[ratingKey]*Rating
}

type ratingKey struct {
	teamID     string
	athleteID  string
	ratingType string
}

// NewInMemoryStore creates a new in-memory rating store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		ratings: make(map[ratingKey]*Rating),
	}
}

// Get returns the rating row, or ErrRatingNotFound.
func (s *InMemoryStore) Get(ctx context.Context, teamID, athleteID, ratingType string) (*Rating, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.ratings[ratingKey{teamID, athleteID, ratingType}]
	if !ok {
		return nil, ErrRatingNotFound
	}
	copied := *r
	return &copied, nil
}

// Upsert writes the rating conditionally on its version.
func (s *InMemoryStore) Upsert(ctx context.Context, r *Rating) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.versionMatches(r) {
		return ErrVersionConflict
	}
	s.write(r)
	return nil
}

// UpsertPair writes both ratings in one critical section. Both versions
// are checked before either row is written, so a conflict on the second
// row cannot leave the first row half-applied.
func (s *InMemoryStore) UpsertPair(ctx context.Context, a, b *Rating) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.versionMatches(a) || !s.versionMatches(b) {
		return ErrVersionConflict
	}
	s.write(a)
	s.write(b)
	return nil
}

// versionMatches reports whether r.Version matches the stored row
// (0 for a row that does not exist yet). Caller holds mu.
func (s *InMemoryStore) versionMatches(r *Rating) bool {
	existing, ok := s.ratings[ratingKey{r.TeamID, r.AthleteID, r.RatingType}]
	if ok {
		return existing.Version == r.Version
	}
	return r.Version == 0
}

// write stores a copy of r with the version bumped and reflects the new
// version back on r. Caller holds mu and has checked the version.
func (s *InMemoryStore) write(r *Rating) {
	copied := *r
	copied.Version++
	s.ratings[ratingKey{r.TeamID, r.AthleteID, r.RatingType}] = &copied
	r.Version = copied.Version
}

// ListByTeam returns all ratings of the given type for a team, sorted by
// athlete ID for deterministic output.
func (s *InMemoryStore) ListByTeam(ctx context.Context, teamID, ratingType string) ([]Rating, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []Rating
	for key, r := range s.ratings {
		if key.teamID == teamID && key.ratingType == ratingType {
			result = append(result, *r)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].AthleteID < result[j].AthleteID })
	return result, nil
}
