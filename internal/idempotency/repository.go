package idempotency

import (
	"sync"
	"time"
)

// InMemoryRepository implements Repository with in-memory storage.
type InMemoryRepository struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewInMemoryRepository creates a new in-memory idempotency key repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		records: make(map[string]*Record),
	}
}

// Get retrieves a record by key.
func (r *InMemoryRepository) Get(key string) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return copyRecord(record), nil
}

// Store saves a new record, rejecting duplicates.
func (r *InMemoryRepository) Store(record *Record) error {
	if err := ValidateKey(record.Key); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[record.Key]; exists {
		return ErrKeyExists
	}

	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	r.records[record.Key] = copyRecord(record)

	return nil
}

// DeleteOlderThan removes records older than the given duration.
func (r *InMemoryRepository) DeleteOlderThan(duration time.Duration) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-duration)
	deleted := int64(0)
	for key, record := range r.records {
		if record.CreatedAt.Before(cutoff) {
			delete(r.records, key)
			deleted++
		}
	}
	return deleted, nil
}

// copyRecord returns a deep copy so callers cannot mutate stored state.
func copyRecord(record *Record) *Record {
	if record == nil {
		return nil
	}
	copied := *record
	if record.ObservationID != nil {
		id := *record.ObservationID
		copied.ObservationID = &id
	}
	return &copied
}
