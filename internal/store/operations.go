package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/WinBackBot/internal/models"
)

// TouchContact records an inbound contact: last_contact moves to now and
// total_messages is incremented.
func TouchContact(ctx context.Context, s Store, phone string, now time.Time) error {
	_, err := s.Update(ctx, phone, func(c *models.Customer) error {
		c.Touch(now)
		return nil
	})
	if err != nil {
		return fmt.Errorf("touch contact %s: %w", phone, err)
	}
	return nil
}

// SetName replaces the display name of a customer.
func SetName(ctx context.Context, s Store, phone, name string) error {
	_, err := s.Update(ctx, phone, func(c *models.Customer) error {
		c.Name = name
		return nil
	})
	if err != nil {
		return fmt.Errorf("set name for %s: %w", phone, err)
	}
	return nil
}

// AppendMessage appends a message to the customer's history, keeping only the
// most recent models.MaxHistoryMessages entries.
func AppendMessage(ctx context.Context, s Store, phone string, role models.Role, content string, now time.Time) error {
	if !models.IsValidRole(role) {
		return fmt.Errorf("%w: %q", models.ErrInvalidRole, role)
	}
	_, err := s.Update(ctx, phone, func(c *models.Customer) error {
		c.AppendMessage(models.Message{Role: role, Content: content, Timestamp: models.Timestamp{Time: now}}, models.MaxHistoryMessages)
		return nil
	})
	if err != nil {
		return fmt.Errorf("append message for %s: %w", phone, err)
	}
	return nil
}

// MarkTierSent records that the tier identified by thresholdDays was delivered.
// Marking an already recorded tier is a no-op.
func MarkTierSent(ctx context.Context, s Store, phone string, thresholdDays int) error {
	_, err := s.Update(ctx, phone, func(c *models.Customer) error {
		if !c.MarkTier(thresholdDays) {
			slog.Debug("store.MarkTierSent: tier already recorded", "phone", phone, "tier", thresholdDays)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("mark tier %d for %s: %w", thresholdDays, phone, err)
	}
	return nil
}
