package store

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/BTreeMap/WinBackBot/internal/models"
)

// encodeRecord serializes a customer in the durable record format.
func encodeRecord(c models.Customer) ([]byte, error) {
	c.Normalize()
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode customer %s: %w", c.Phone, err)
	}
	return data, nil
}

// decodeRecord parses a stored record. Decoding failures are corruption.
func decodeRecord(phone string, data []byte) (models.Customer, error) {
	var c models.Customer
	if err := json.Unmarshal(data, &c); err != nil {
		return models.Customer{}, fmt.Errorf("%w: record %s: %v", ErrCorruptSnapshot, phone, err)
	}
	if c.Phone == "" {
		c.Phone = phone
	}
	c.Normalize()
	return c, nil
}

// mergeRecords folds two records of the same customer into one: earliest first
// contact, latest last contact, the union of sent tiers, summed message counts and
// the most recent history entries.
func mergeRecords(a, b models.Customer) models.Customer {
	out := a.Clone()
	newer := b.LastContact.After(a.LastContact.Time)

	if out.FirstContact.IsZero() || (!b.FirstContact.IsZero() && b.FirstContact.Before(out.FirstContact.Time)) {
		out.FirstContact = b.FirstContact
	}
	if newer {
		out.LastContact = b.LastContact
	}
	if b.Name != "" && b.Name != models.DefaultCustomerName &&
		(out.Name == "" || out.Name == models.DefaultCustomerName || newer) {
		out.Name = b.Name
	}
	for _, tier := range b.CouponsSent {
		out.MarkTier(tier)
	}
	out.TotalMessages += b.TotalMessages

	history := append(out.ConversationHistory, b.ConversationHistory...)
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].Timestamp.Before(history[j].Timestamp.Time)
	})
	if len(history) > models.MaxHistoryMessages {
		history = history[len(history)-models.MaxHistoryMessages:]
	}
	out.ConversationHistory = history
	return out
}
