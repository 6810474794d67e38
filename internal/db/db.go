// Package db provides database connection handling and transaction
// plumbing shared by the Postgres-backed stores.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// Open connects to PostgreSQL and verifies the connection.
func Open(databaseURL string) (*sql.DB, error) {
	conn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return conn, nil
}

// Checker implements readiness health checking for the database.
type Checker struct {
	db *sql.DB
}

// NewChecker creates a health checker for the given connection.
func NewChecker(db *sql.DB) *Checker {
	return &Checker{db: db}
}

// HealthCheck pings the database.
func (c *Checker) HealthCheck(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// txKey is the context key for an in-flight transaction.
type txKey struct{}

// WithTx stores a transaction in the context so that stores invoked inside
// a transactional callback join the same transaction instead of opening
// their own connection.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFromContext returns the transaction stored in the context, if any.
func TxFromContext(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*sql.Tx)
	return tx, ok
}

// Querier is the subset of database operations shared by *sql.DB and
// *sql.Tx. Stores resolve it per call so the same query code runs inside
// or outside a transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// QuerierFor returns the transaction from the context when present,
// otherwise the provided fallback connection.
func QuerierFor(ctx context.Context, fallback *sql.DB) Querier {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return fallback
}
