// Package idempotency provides key management for safely retrying
// observation ingestion requests. A client that resends a POST with the
// same Idempotency-Key gets the original response back instead of a
// duplicate observation.
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

var (
	// ErrKeyNotFound is returned when an idempotency key is not found.
	ErrKeyNotFound = errors.New("idempotency key not found")

	// ErrKeyExists is returned when attempting to store a duplicate key.
	ErrKeyExists = errors.New("idempotency key already exists")

	// ErrInvalidKey is returned when the key is empty.
	ErrInvalidKey = errors.New("invalid idempotency key")

	// ErrKeyTooLong is returned when the key exceeds MaxKeyLength.
	ErrKeyTooLong = errors.New("idempotency key exceeds maximum length of 64 characters")
)

// MaxKeyLength is the maximum allowed length for an idempotency key.
const MaxKeyLength = 64

// Record is a stored idempotency key with its cached response.
type Record struct {
	Key       string    `json:"key"`
	Method    string    `json:"method"`
	Route     string    `json:"route"`
	CreatedAt time.Time `json:"created_at"`

	// ObservationID links the key to the observation the original
	// request created, when it created one.
	ObservationID *string `json:"observation_id,omitempty"`

	ResponseHash       string `json:"response_hash"`
	ResponseBody       string `json:"response_body"`
	ResponseStatusCode int    `json:"response_status_code"`
}

// ValidateKey checks that an idempotency key is non-empty and within
// the length bound.
func ValidateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	return nil
}

// ComputeResponseHash computes a SHA256 hash of the response body, used
// to verify integrity when returning cached responses.
func ComputeResponseHash(responseBody string) string {
	hash := sha256.Sum256([]byte(responseBody))
	return hex.EncodeToString(hash[:])
}

// Repository defines methods for idempotency key persistence.
type Repository interface {
	// Get retrieves a record by key. Returns ErrKeyNotFound if the key
	// doesn't exist.
	Get(key string) (*Record, error)

	// Store saves a new record. Returns ErrKeyExists on duplicates.
	Store(record *Record) error

	// DeleteOlderThan removes records older than the given duration and
	// returns how many were removed.
	DeleteOlderThan(duration time.Duration) (int64, error)
}
