package rating

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/swdrow/rowlab/internal/db"
	"github.com/swdrow/rowlab/internal/tracing"
)

// PostgresStore implements Store using PostgreSQL. Optimistic versioning
// is enforced in SQL: the upsert only matches when the stored version
// equals the caller's version, so a lost race surfaces as
// ErrVersionConflict instead of a lost update.
type PostgresStore struct {
	conn   *sql.DB
	logger *slog.Logger
}

// NewPostgresStore creates a new Postgres-backed rating store.
func NewPostgresStore(conn *sql.DB, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{
		conn:   conn,
		logger: logger,
	}
}

// Get returns the rating row, or ErrRatingNotFound.
func (s *PostgresStore) Get(ctx context.Context, teamID, athleteID, ratingType string) (_ *Rating, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "ratings", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	q := db.QuerierFor(ctx, s.conn)
	var r Rating
	err = q.QueryRowContext(ctx, `
		SELECT athlete_id, team_id, rating_type, rating_value,
			confidence_score, races_count, last_calculated_at, version
		FROM ratings
		WHERE team_id = $1 AND athlete_id = $2 AND rating_type = $3`,
		teamID, athleteID, ratingType,
	).Scan(&r.AthleteID, &r.TeamID, &r.RatingType, &r.Value,
		&r.Confidence, &r.RacesCount, &r.LastCalculatedAt, &r.Version)
	if err == sql.ErrNoRows {
		return nil, ErrRatingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rating: %w", err)
	}
	return &r, nil
}

// Upsert writes the rating. Inserts expect version 0; updates only match
// the expected stored version. Joins an in-flight transaction when the
// context carries one, so the rating commit shares the observation
// claim's transaction.
func (s *PostgresStore) Upsert(ctx context.Context, r *Rating) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "ratings", tracing.DBOperationUpdate)
	defer func() { endSpan(err) }()

	if err = execUpsert(ctx, db.QuerierFor(ctx, s.conn), r); err != nil {
		return err
	}
	r.Version++
	return nil
}

// UpsertPair writes both ratings in one transaction: a version conflict
// on either row rolls back both statements. Joins an in-flight
// transaction when the context carries one; in that case a conflict is
// returned to the caller, whose rollback discards both writes.
func (s *PostgresStore) UpsertPair(ctx context.Context, a, b *Rating) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "ratings", tracing.DBOperationUpdate)
	defer func() { endSpan(err) }()

	if tx, ok := db.TxFromContext(ctx); ok {
		if err = execUpsert(ctx, tx, a); err != nil {
			return err
		}
		if err = execUpsert(ctx, tx, b); err != nil {
			return err
		}
		a.Version++
		b.Version++
		return nil
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin rating transaction: %w", err)
	}
	if err = execUpsert(ctx, tx, a); err != nil {
		tx.Rollback()
		return err
	}
	if err = execUpsert(ctx, tx, b); err != nil {
		tx.Rollback()
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rating transaction: %w", err)
	}
	a.Version++
	b.Version++
	return nil
}

// execUpsert runs the version-conditional upsert through q. It does not
// touch r.Version; the caller bumps it once the write is known to
// commit.
func execUpsert(ctx context.Context, q db.Querier, r *Rating) error {
	const upsert = `
		INSERT INTO ratings (
			athlete_id, team_id, rating_type, rating_value,
			confidence_score, races_count, last_calculated_at, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, 1)
		ON CONFLICT (team_id, athlete_id, rating_type) DO UPDATE SET
			rating_value = EXCLUDED.rating_value,
			confidence_score = EXCLUDED.confidence_score,
			races_count = EXCLUDED.races_count,
			last_calculated_at = EXCLUDED.last_calculated_at,
			version = ratings.version + 1
		WHERE ratings.version = $8
	`
	result, err := q.ExecContext(ctx, upsert,
		r.AthleteID, r.TeamID, r.RatingType, r.Value,
		r.Confidence, r.RacesCount, r.LastCalculatedAt, r.Version)
	if err != nil {
		return fmt.Errorf("failed to upsert rating: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read upsert result: %w", err)
	}
	if affected == 0 {
		return ErrVersionConflict
	}
	return nil
}

// ListByTeam returns all ratings of the given type for a team.
func (s *PostgresStore) ListByTeam(ctx context.Context, teamID, ratingType string) (_ []Rating, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "ratings", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	q := db.QuerierFor(ctx, s.conn)
	rows, err := q.QueryContext(ctx, `
		SELECT athlete_id, team_id, rating_type, rating_value,
			confidence_score, races_count, last_calculated_at, version
		FROM ratings
		WHERE team_id = $1 AND rating_type = $2
		ORDER BY athlete_id`, teamID, ratingType)
	if err != nil {
		return nil, fmt.Errorf("failed to list ratings: %w", err)
	}
	defer rows.Close()

	var result []Rating
	for rows.Next() {
		var r Rating
		if err := rows.Scan(&r.AthleteID, &r.TeamID, &r.RatingType, &r.Value,
			&r.Confidence, &r.RacesCount, &r.LastCalculatedAt, &r.Version); err != nil {
			return nil, fmt.Errorf("failed to scan rating: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}
