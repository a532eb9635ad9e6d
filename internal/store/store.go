// Package store provides storage backends for WinBackBot customer records.
//
// Every backend implements Store, whose Update method applies a mutation to a single
// customer atomically with respect to every other operation on the same backend. The
// JSON snapshot backend keeps the historical customers.json layout; SQLite and Postgres
// keep each record in the same JSON shape, one row per phone.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/BTreeMap/WinBackBot/internal/models"
)

// Error variables returned by the backends.
var (
	// ErrCorruptSnapshot means persisted data could not be decoded. There is no
	// recovery path; callers must surface it to the operator.
	ErrCorruptSnapshot = errors.New("customer snapshot is corrupt or unreadable")
	// ErrDSNNotSet is returned when a backend is opened without a DSN.
	ErrDSNNotSet = errors.New("database DSN not set")
)

// DSN types understood by DetectDSNType.
const (
	DSNTypePostgres = "postgres"
	DSNTypeSQLite   = "sqlite"
	DSNTypeJSON     = "json"
)

// UpdateFunc mutates a customer in place. Returning an error aborts the update
// and leaves the stored record untouched.
type UpdateFunc func(c *models.Customer) error

// Store is durable keyed storage of customer records.
//
// Returned records are copies; holding one across calls never aliases stored state.
type Store interface {
	// GetOrCreate returns the record for phone, creating it with defaultName first
	// seen at now if it does not exist. Re-creating an existing record is a no-op.
	GetOrCreate(ctx context.Context, phone, defaultName string, now time.Time) (models.Customer, error)

	// Get returns the record for phone or models.ErrCustomerNotFound.
	Get(ctx context.Context, phone string) (models.Customer, error)

	// Update loads the record for phone, applies fn and persists the result as one
	// atomic step. It returns models.ErrCustomerNotFound for unknown phones.
	Update(ctx context.Context, phone string, fn UpdateFunc) (models.Customer, error)

	// List returns every record ordered by phone.
	List(ctx context.Context) ([]models.Customer, error)

	// Close releases any resources held by the backend.
	Close() error
}

// Opts holds configuration options for the store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for the store backends.
type Option func(*Opts)

// WithPostgresDSN sets the Postgres connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithSQLiteDSN sets the SQLite database path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithJSONPath sets the path of the JSON snapshot file.
func WithJSONPath(path string) Option {
	return func(o *Opts) { o.DSN = path }
}

// DetectDSNType classifies a DSN as postgres, json or sqlite.
func DetectDSNType(dsn string) string {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"),
		strings.Contains(lower, "host=") && strings.Contains(lower, "dbname="):
		return DSNTypePostgres
	case strings.HasSuffix(lower, ".json"):
		return DSNTypeJSON
	default:
		return DSNTypeSQLite
	}
}

// Open opens the backend matching dsn. An empty dsn yields an in-memory store.
func Open(dsn string) (Store, error) {
	if dsn == "" {
		return NewInMemoryStore(), nil
	}
	switch DetectDSNType(dsn) {
	case DSNTypePostgres:
		return NewPostgresStore(WithPostgresDSN(dsn))
	case DSNTypeJSON:
		return NewJSONStore(WithJSONPath(dsn))
	default:
		return NewSQLiteStore(WithSQLiteDSN(dsn))
	}
}
