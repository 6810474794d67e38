package jobs

import (
	"sync"
	"time"
)

// DirtyTracker tracks which teams have pending observations awaiting a
// rating application pass. Thread-safe via RWMutex.
type DirtyTracker struct {
	mu         sync.RWMutex
	dirtyFlags map[string]time.Time // teamID -> time marked dirty
}

// NewDirtyTracker creates a new DirtyTracker instance.
func NewDirtyTracker() *DirtyTracker {
	return &DirtyTracker{
		dirtyFlags: make(map[string]time.Time),
	}
}

// MarkDirty marks a team as having pending observations.
func (t *DirtyTracker) MarkDirty(teamID string) {
	t.mu.Lock()
	t.dirtyFlags[teamID] = time.Now()
	t.mu.Unlock()
}

// ClearDirty removes the dirty flag for a team after an application
// pass.
func (t *DirtyTracker) ClearDirty(teamID string) {
	t.mu.Lock()
	delete(t.dirtyFlags, teamID)
	t.mu.Unlock()
}

// DirtyTeams returns the team IDs currently marked dirty.
// Returns a copy to avoid external modification.
func (t *DirtyTracker) DirtyTeams() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	teams := make([]string, 0, len(t.dirtyFlags))
	for teamID := range t.dirtyFlags {
		teams = append(teams, teamID)
	}
	return teams
}

// IsDirty checks if a specific team is marked as dirty.
func (t *DirtyTracker) IsDirty(teamID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, exists := t.dirtyFlags[teamID]
	return exists
}

// DirtyCount returns the number of teams marked as dirty.
func (t *DirtyTracker) DirtyCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.dirtyFlags)
}
