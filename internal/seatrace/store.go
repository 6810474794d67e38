package seatrace

import (
	"context"
	"sort"
	"sync"
)

// InMemorySessionStore is an in-memory implementation of SessionSource.
// Used for tests and for running the service without an external
// session store attached.
type InMemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]Session // sessionID -> session
}

// NewInMemorySessionStore creates a new in-memory session store.
func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{
		sessions: make(map[string]Session),
	}
}

// Add stores a session, replacing any existing session with the same ID.
func (s *InMemorySessionStore) Add(session Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
}

// SessionsByTeam returns all sessions for a team, oldest first.
func (s *InMemorySessionStore) SessionsByTeam(ctx context.Context, teamID string) ([]Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []Session
	for _, session := range s.sessions {
		if session.TeamID == teamID {
			result = append(result, copySession(session))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Date.Equal(result[j].Date) {
			return result[i].ID < result[j].ID
		}
		return result[i].Date.Before(result[j].Date)
	})
	return result, nil
}

// SessionByID returns a single session.
func (s *InMemorySessionStore) SessionByID(ctx context.Context, sessionID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	copied := copySession(session)
	return &copied, nil
}

// copySession creates a deep copy so callers cannot mutate stored state.
func copySession(session Session) Session {
	copied := session
	copied.Pieces = make([]Piece, len(session.Pieces))
	for i, piece := range session.Pieces {
		copiedPiece := piece
		copiedPiece.Boats = make([]Boat, len(piece.Boats))
		for j, boat := range piece.Boats {
			copiedBoat := boat
			copiedBoat.AthleteIDs = append([]string(nil), boat.AthleteIDs...)
			if boat.FinishTimeSeconds != nil {
				t := *boat.FinishTimeSeconds
				copiedBoat.FinishTimeSeconds = &t
			}
			if boat.SplitSeconds != nil {
				sp := *boat.SplitSeconds
				copiedBoat.SplitSeconds = &sp
			}
			copiedPiece.Boats[j] = copiedBoat
		}
		copied.Pieces[i] = copiedPiece
	}
	return copied
}
