// Package store provides storage backends for WinBackBot.
//
// This file implements a PostgreSQL-backed customer store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore stores customer records in PostgreSQL. Update locks the row with
// SELECT ... FOR UPDATE so concurrent writers to the same phone queue up.
type PostgresStore struct {
	sqlBackend
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, ErrDSNNotSet
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	// Configure connection pool for better performance
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		db.Close()
		return nil, err
	}
	slog.Debug("Postgres ping successful")

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{sqlBackend{
		db:   db,
		name: "PostgresStore",
		queries: sqlQueries{
			insertIgnore: `INSERT INTO customers (phone, record, updated_at) VALUES ($1, $2::jsonb, $3) ON CONFLICT (phone) DO NOTHING`,
			selectOne:    `SELECT record FROM customers WHERE phone = $1`,
			selectLocked: `SELECT record FROM customers WHERE phone = $1 FOR UPDATE`,
			update:       `UPDATE customers SET record = $1::jsonb, updated_at = $2 WHERE phone = $3`,
			selectAll:    `SELECT phone, record FROM customers ORDER BY phone`,
		},
	}}, nil
}

// clear deletes every customer row (for tests).
func (s *PostgresStore) clear() error {
	_, err := s.db.Exec("DELETE FROM customers")
	return err
}
