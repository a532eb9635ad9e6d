// Package store provides storage backends for WinBackBot.
//
// This file implements an SQLite-backed customer store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultSQLiteBusyTimeoutMS is appended to SQLite DSNs that do not set their own parameters.
const DefaultSQLiteBusyTimeoutMS = 5000

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore stores customer records in an SQLite database.
type SQLiteStore struct {
	sqlBackend
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, ErrDSNNotSet
	}

	dir := filepath.Dir(strings.TrimPrefix(strings.SplitN(dsn, "?", 2)[0], "file:"))
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	slog.Debug("SQLite database directory verified/created", "dir", dir)

	if !strings.Contains(dsn, "?") {
		dsn = fmt.Sprintf("%s?_busy_timeout=%d", dsn, DefaultSQLiteBusyTimeoutMS)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	// One connection serializes every transaction, which is what Update relies on.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		db.Close()
		return nil, err
	}
	slog.Debug("SQLite ping successful")

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{sqlBackend{
		db:   db,
		name: "SQLiteStore",
		queries: sqlQueries{
			insertIgnore: `INSERT OR IGNORE INTO customers (phone, record, updated_at) VALUES (?, ?, ?)`,
			selectOne:    `SELECT record FROM customers WHERE phone = ?`,
			selectLocked: `SELECT record FROM customers WHERE phone = ?`,
			update:       `UPDATE customers SET record = ?, updated_at = ? WHERE phone = ?`,
			selectAll:    `SELECT phone, record FROM customers ORDER BY phone`,
		},
	}}, nil
}
