// Package store provides storage backends for WinBackBot.
//
// This file implements the JSON snapshot backend: a single human-readable file holding
// one object keyed by phone. Every operation loads the whole snapshot, mutates one
// record and writes the whole snapshot back, so all operations are serialized by a
// mutex and each write replaces the file atomically.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/BTreeMap/WinBackBot/internal/messaging"
	"github.com/BTreeMap/WinBackBot/internal/models"
)

// Constants for JSON store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
	// DefaultSnapshotPermissions defines the permissions of the snapshot file
	DefaultSnapshotPermissions = 0644
)

// JSONStore persists customers in a single JSON snapshot file.
type JSONStore struct {
	path string
	mu   sync.Mutex
}

// NewJSONStore creates a JSON snapshot store at the configured path.
// The file itself is created on first write; its directory is created now.
func NewJSONStore(opts ...Option) (*JSONStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewJSONStore invoked", "path", cfg.DSN)
	if cfg.DSN == "" {
		slog.Error("JSONStore path not set")
		return nil, ErrDSNNotSet
	}

	dir := filepath.Dir(cfg.DSN)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create snapshot directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	s := &JSONStore{path: cfg.DSN}
	// Surface corruption at startup rather than on the first inbound message.
	if _, err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// load reads the snapshot. A missing file is an empty collection.
func (s *JSONStore) load() (map[string]models.Customer, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[string]models.Customer), nil
	}
	if err != nil {
		slog.Error("JSONStore.load: read failed", "error", err, "path", s.path)
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptSnapshot, s.path, err)
	}

	raw := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &raw); err != nil {
		slog.Error("JSONStore.load: snapshot is not a JSON object", "error", err, "path", s.path)
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptSnapshot, s.path, err)
	}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	// Older snapshots key records by the raw Twilio address ("whatsapp:+55...").
	customers := make(map[string]models.Customer, len(raw))
	for _, key := range keys {
		c, err := decodeRecord(key, raw[key])
		if err != nil {
			slog.Error("JSONStore.load: record decode failed", "error", err, "path", s.path, "phone", key)
			return nil, err
		}
		phone := canonicalKey(key)
		c.Phone = phone
		if prev, ok := customers[phone]; ok {
			slog.Warn("JSONStore.load: merging records of the same phone", "phone", phone, "key", key)
			c = mergeRecords(prev, c)
		}
		customers[phone] = c
	}
	return customers, nil
}

// canonicalKey strips the WhatsApp channel prefix so every address of a customer
// maps to one record.
func canonicalKey(phone string) string {
	canonical, err := messaging.CanonicalizePhone(phone)
	if err != nil {
		return phone
	}
	return canonical
}

// save writes the snapshot to a temporary file and renames it over the original.
func (s *JSONStore) save(customers map[string]models.Customer) error {
	for phone, c := range customers {
		c.Normalize()
		customers[phone] = c
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(customers); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".customers-*.json")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Chmod(tmpName, DefaultSnapshotPermissions); err != nil {
		return fmt.Errorf("chmod temp snapshot: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

func (s *JSONStore) GetOrCreate(ctx context.Context, phone, defaultName string, now time.Time) (models.Customer, error) {
	if phone == "" {
		return models.Customer{}, models.ErrEmptyPhone
	}
	phone = canonicalKey(phone)
	s.mu.Lock()
	defer s.mu.Unlock()

	customers, err := s.load()
	if err != nil {
		return models.Customer{}, err
	}
	if c, ok := customers[phone]; ok {
		return c.Clone(), nil
	}

	c := models.NewCustomer(phone, defaultName, now)
	customers[phone] = c
	if err := s.save(customers); err != nil {
		slog.Error("JSONStore GetOrCreate save failed", "error", err, "phone", phone)
		return models.Customer{}, err
	}
	slog.Info("JSONStore created customer", "phone", phone)
	return c.Clone(), nil
}

func (s *JSONStore) Get(ctx context.Context, phone string) (models.Customer, error) {
	phone = canonicalKey(phone)
	s.mu.Lock()
	defer s.mu.Unlock()

	customers, err := s.load()
	if err != nil {
		return models.Customer{}, err
	}
	c, ok := customers[phone]
	if !ok {
		return models.Customer{}, models.ErrCustomerNotFound
	}
	return c.Clone(), nil
}

func (s *JSONStore) Update(ctx context.Context, phone string, fn UpdateFunc) (models.Customer, error) {
	phone = canonicalKey(phone)
	s.mu.Lock()
	defer s.mu.Unlock()

	customers, err := s.load()
	if err != nil {
		return models.Customer{}, err
	}
	c, ok := customers[phone]
	if !ok {
		return models.Customer{}, models.ErrCustomerNotFound
	}
	if err := fn(&c); err != nil {
		return models.Customer{}, err
	}
	customers[phone] = c
	if err := s.save(customers); err != nil {
		slog.Error("JSONStore Update save failed", "error", err, "phone", phone)
		return models.Customer{}, err
	}
	slog.Debug("JSONStore Update succeeded", "phone", phone)
	return c.Clone(), nil
}

func (s *JSONStore) List(ctx context.Context) ([]models.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	customers, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]models.Customer, 0, len(customers))
	for _, c := range customers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Phone < out[j].Phone })
	return out, nil
}

// Close is a no-op; the snapshot is written on every mutation.
func (s *JSONStore) Close() error { return nil }
