package passive

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/swdrow/rowlab/internal/db"
	"github.com/swdrow/rowlab/internal/tracing"
)

// PostgresObservationRepository implements ObservationRepository using
// PostgreSQL with full transaction support.
type PostgresObservationRepository struct {
	conn   *sql.DB
	logger *slog.Logger
}

// NewPostgresObservationRepository creates a new Postgres-backed
// observation repository.
func NewPostgresObservationRepository(conn *sql.DB, logger *slog.Logger) *PostgresObservationRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresObservationRepository{
		conn:   conn,
		logger: logger,
	}
}

// Create persists a new observation.
func (r *PostgresObservationRepository) Create(ctx context.Context, obs *Observation) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "passive_observations", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	if obs.ID == "" {
		obs.ID = uuid.New().String()
	}
	if obs.CreatedAt.IsZero() {
		obs.CreatedAt = time.Now()
	}

	q := db.QuerierFor(ctx, r.conn)
	const insert = `
		INSERT INTO passive_observations (
			id, team_id, session_id, piece_id,
			boat1_athletes, boat2_athletes,
			swapped_athlete1_id, swapped_athlete2_id,
			split_difference_seconds, weight, source,
			applied_to_ratings, created_at
		) VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $11, FALSE, $12)
	`
	_, err = q.ExecContext(ctx, insert,
		obs.ID, obs.TeamID, obs.SessionID, obs.PieceID,
		pq.Array(obs.Boat1Athletes), pq.Array(obs.Boat2Athletes),
		obs.SwappedAthlete1ID, obs.SwappedAthlete2ID,
		float64(obs.SplitDifference), obs.Weight, string(obs.Source),
		obs.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert observation: %w", err)
	}
	return nil
}

// GetByID returns an observation by ID.
func (r *PostgresObservationRepository) GetByID(ctx context.Context, id string) (*Observation, error) {
	q := db.QuerierFor(ctx, r.conn)
	row := q.QueryRowContext(ctx, selectObservation+` WHERE id = $1`, id)
	obs, err := scanObservation(row)
	if err == sql.ErrNoRows {
		return nil, ErrObservationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get observation: %w", err)
	}
	return obs, nil
}

// ListPending returns unapplied observations for the team, oldest first.
func (r *PostgresObservationRepository) ListPending(ctx context.Context, teamID string, limit int) (_ []Observation, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "passive_observations", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	q := db.QuerierFor(ctx, r.conn)
	rows, err := q.QueryContext(ctx, selectObservation+`
		WHERE team_id = $1 AND applied_to_ratings = FALSE
		ORDER BY created_at, id
		LIMIT $2`, teamID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending observations: %w", err)
	}
	defer rows.Close()

	var pending []Observation
	for rows.Next() {
		obs, err := scanObservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		pending = append(pending, *obs)
	}
	return pending, rows.Err()
}

// Apply claims the observation with a conditional UPDATE and runs commit
// inside the same transaction. A concurrent batch that loses the race
// matches zero rows and gets ErrAlreadyApplied; the applied flag is never
// visible unless commit's writes committed with it.
func (r *PostgresObservationRepository) Apply(ctx context.Context, id string, appliedAt time.Time, commit func(ctx context.Context) error) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "passive_observations", tracing.DBOperationUpdate)
	defer func() { endSpan(err) }()

	tx, err := r.conn.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	// No-op after a successful commit.
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			r.logger.Warn("failed to rollback observation apply", "error", err.Error())
		}
	}()

	const claim = `
		UPDATE passive_observations
		SET applied_to_ratings = TRUE, applied_at = $2
		WHERE id = $1 AND applied_to_ratings = FALSE
	`
	result, err := tx.ExecContext(ctx, claim, id, appliedAt)
	if err != nil {
		return fmt.Errorf("failed to claim observation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read claim result: %w", err)
	}
	if affected == 0 {
		// Either missing or already applied; distinguish for the caller.
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM passive_observations WHERE id = $1)`, id,
		).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check observation existence: %w", err)
		}
		if !exists {
			return ErrObservationNotFound
		}
		return ErrAlreadyApplied
	}

	if err := commit(db.WithTx(ctx, tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit observation apply: %w", err)
	}
	return nil
}

// TeamStats returns aggregate counts for a team's observations.
func (r *PostgresObservationRepository) TeamStats(ctx context.Context, teamID string) (_ *TeamStats, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "passive_observations", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	q := db.QuerierFor(ctx, r.conn)
	stats := &TeamStats{
		TeamID:   teamID,
		BySource: make(map[Source]int),
	}

	rows, err := q.QueryContext(ctx, `
		SELECT source, applied_to_ratings, COUNT(*), MAX(applied_at)
		FROM passive_observations
		WHERE team_id = $1
		GROUP BY source, applied_to_ratings`, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to query team stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			source      string
			applied     bool
			count       int
			lastApplied sql.NullTime
		)
		if err := rows.Scan(&source, &applied, &count, &lastApplied); err != nil {
			return nil, fmt.Errorf("failed to scan team stats: %w", err)
		}
		stats.Total += count
		stats.BySource[Source(source)] += count
		if applied {
			stats.Applied += count
			if lastApplied.Valid && (stats.LastAppliedAt == nil || lastApplied.Time.After(*stats.LastAppliedAt)) {
				at := lastApplied.Time
				stats.LastAppliedAt = &at
			}
		} else {
			stats.Pending += count
		}
	}
	return stats, rows.Err()
}

const selectObservation = `
	SELECT id, team_id, COALESCE(session_id, ''), COALESCE(piece_id, ''),
		boat1_athletes, boat2_athletes,
		swapped_athlete1_id, swapped_athlete2_id,
		split_difference_seconds, weight, source,
		applied_to_ratings, applied_at, created_at
	FROM passive_observations`

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanObservation(row rowScanner) (*Observation, error) {
	var (
		obs       Observation
		splitDiff float64
		source    string
		appliedAt sql.NullTime
		boat1     pq.StringArray
		boat2     pq.StringArray
	)
	err := row.Scan(
		&obs.ID, &obs.TeamID, &obs.SessionID, &obs.PieceID,
		&boat1, &boat2,
		&obs.SwappedAthlete1ID, &obs.SwappedAthlete2ID,
		&splitDiff, &obs.Weight, &source,
		&obs.AppliedToRatings, &appliedAt, &obs.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	obs.Boat1Athletes = []string(boat1)
	obs.Boat2Athletes = []string(boat2)
	obs.SplitDifference = SplitDelta(splitDiff)
	obs.Source = Source(source)
	if appliedAt.Valid {
		at := appliedAt.Time
		obs.AppliedAt = &at
	}
	return &obs, nil
}
