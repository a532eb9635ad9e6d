// Package conversation maintains the bounded per-customer message window.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BTreeMap/WinBackBot/internal/models"
	"github.com/BTreeMap/WinBackBot/internal/store"
)

// Manager appends messages to a customer's window and reads it back as generation context.
type Manager struct {
	store store.Store
	now   func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source used to stamp messages.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a Manager over st.
func NewManager(st store.Store, opts ...Option) *Manager {
	m := &Manager{store: st, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AppendMessage records one message. At most models.MaxHistoryMessages entries are kept.
func (m *Manager) AppendMessage(ctx context.Context, phone string, role models.Role, content string) error {
	return store.AppendMessage(ctx, m.store, phone, role, content, m.now())
}

// GetContext returns the stored window oldest first, without timestamps.
// An unknown customer has an empty context.
func (m *Manager) GetContext(ctx context.Context, phone string) ([]models.Turn, error) {
	c, err := m.store.Get(ctx, phone)
	if err != nil {
		if errors.Is(err, models.ErrCustomerNotFound) {
			return []models.Turn{}, nil
		}
		return nil, fmt.Errorf("get context for %s: %w", phone, err)
	}
	return c.Turns(), nil
}
