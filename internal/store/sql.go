package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/WinBackBot/internal/models"
)

// sqlQueries holds the dialect-specific statements used by sqlBackend.
type sqlQueries struct {
	insertIgnore string // phone, record, updated_at
	selectOne    string // phone
	selectLocked string // phone, row locked until commit
	update       string // record, updated_at, phone
	selectAll    string
}

// sqlBackend implements Store on top of database/sql. Each record lives in one row
// as JSON; Update runs inside a transaction so concurrent writers cannot interleave.
type sqlBackend struct {
	db      *sql.DB
	name    string
	queries sqlQueries
}

func (b *sqlBackend) GetOrCreate(ctx context.Context, phone, defaultName string, now time.Time) (models.Customer, error) {
	if phone == "" {
		return models.Customer{}, models.ErrEmptyPhone
	}
	fresh := models.NewCustomer(phone, defaultName, now)
	data, err := encodeRecord(fresh)
	if err != nil {
		return models.Customer{}, err
	}
	res, err := b.db.ExecContext(ctx, b.queries.insertIgnore, phone, string(data), now)
	if err != nil {
		slog.Error(b.name+" GetOrCreate insert failed", "error", err, "phone", phone)
		return models.Customer{}, fmt.Errorf("failed to create customer %s: %w", phone, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		slog.Info(b.name+" created customer", "phone", phone)
		return fresh, nil
	}
	return b.Get(ctx, phone)
}

func (b *sqlBackend) Get(ctx context.Context, phone string) (models.Customer, error) {
	var record string
	err := b.db.QueryRowContext(ctx, b.queries.selectOne, phone).Scan(&record)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Customer{}, models.ErrCustomerNotFound
	}
	if err != nil {
		slog.Error(b.name+" Get failed", "error", err, "phone", phone)
		return models.Customer{}, fmt.Errorf("failed to load customer %s: %w", phone, err)
	}
	return decodeRecord(phone, []byte(record))
}

func (b *sqlBackend) Update(ctx context.Context, phone string, fn UpdateFunc) (models.Customer, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error(b.name+" Update begin failed", "error", err, "phone", phone)
		return models.Customer{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // no-op after commit

	var record string
	err = tx.QueryRowContext(ctx, b.queries.selectLocked, phone).Scan(&record)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Customer{}, models.ErrCustomerNotFound
	}
	if err != nil {
		slog.Error(b.name+" Update select failed", "error", err, "phone", phone)
		return models.Customer{}, fmt.Errorf("failed to load customer %s: %w", phone, err)
	}
	c, err := decodeRecord(phone, []byte(record))
	if err != nil {
		return models.Customer{}, err
	}
	if err := fn(&c); err != nil {
		return models.Customer{}, err
	}
	data, err := encodeRecord(c)
	if err != nil {
		return models.Customer{}, err
	}
	if _, err := tx.ExecContext(ctx, b.queries.update, string(data), time.Now(), phone); err != nil {
		slog.Error(b.name+" Update write failed", "error", err, "phone", phone)
		return models.Customer{}, fmt.Errorf("failed to save customer %s: %w", phone, err)
	}
	if err := tx.Commit(); err != nil {
		slog.Error(b.name+" Update commit failed", "error", err, "phone", phone)
		return models.Customer{}, fmt.Errorf("failed to commit customer %s: %w", phone, err)
	}
	slog.Debug(b.name+" Update succeeded", "phone", phone)
	return c, nil
}

func (b *sqlBackend) List(ctx context.Context) ([]models.Customer, error) {
	rows, err := b.db.QueryContext(ctx, b.queries.selectAll)
	if err != nil {
		slog.Error(b.name+" List query failed", "error", err)
		return nil, fmt.Errorf("failed to query customers: %w", err)
	}
	defer rows.Close()

	var customers []models.Customer
	for rows.Next() {
		var phone, record string
		if err := rows.Scan(&phone, &record); err != nil {
			slog.Error(b.name+" List scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan customer row: %w", err)
		}
		c, err := decodeRecord(phone, []byte(record))
		if err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		slog.Error(b.name+" List rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate customer rows: %w", err)
	}
	slog.Debug(b.name+" List succeeded", "count", len(customers))
	return customers, nil
}

func (b *sqlBackend) Close() error {
	slog.Debug("Closing " + b.name + " database connection")
	err := b.db.Close()
	if err != nil {
		slog.Error("Failed to close "+b.name+" database", "error", err)
	}
	return err
}
