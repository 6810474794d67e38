package idempotency

import (
	"context"
	"log/slog"
	"time"
)

// DefaultExpiry is how long idempotency keys are retained. Retries of an
// ingestion request more than a day apart are treated as new requests.
const DefaultExpiry = 24 * time.Hour

// CleanupOldKeys removes records older than the given duration. Returns
// how many were deleted.
func CleanupOldKeys(repo Repository, expiry time.Duration) (int64, error) {
	deleted, err := repo.DeleteOlderThan(expiry)
	if err != nil {
		slog.Error("failed to clean up old idempotency keys", "error", err)
		return 0, err
	}
	if deleted > 0 {
		slog.Info("cleaned up old idempotency keys", "deleted", deleted, "older_than", expiry)
	}
	return deleted, nil
}

// RunPeriodicCleanup runs the cleanup at the given interval until the
// context is canceled. It blocks and should be run in a goroutine.
func RunPeriodicCleanup(ctx context.Context, repo Repository, interval, expiry time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if _, err := CleanupOldKeys(repo, expiry); err != nil {
		slog.Error("initial idempotency cleanup failed", "error", err)
	}

	for {
		select {
		case <-ticker.C:
			if _, err := CleanupOldKeys(repo, expiry); err != nil {
				slog.Error("periodic idempotency cleanup failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
