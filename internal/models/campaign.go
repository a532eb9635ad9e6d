package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// NamePlaceholder is substituted with the customer's name when a tier message is rendered.
const NamePlaceholder = "{name}"

var (
	ErrNoTiers       = errors.New("at least one campaign tier is required")
	ErrInvalidTier   = errors.New("invalid campaign tier")
	ErrDuplicateTier = errors.New("duplicate campaign tier threshold")
)

// CampaignTier pairs an inactivity threshold with the incentive message sent once it is crossed.
// The threshold also identifies the tier in Customer.CouponsSent.
type CampaignTier struct {
	ThresholdDays   int    `yaml:"days_inactive" json:"threshold_days"`
	MessageTemplate string `yaml:"message" json:"message_template"`
}

// Validate checks a single tier.
func (t CampaignTier) Validate() error {
	if t.ThresholdDays <= 0 {
		return fmt.Errorf("%w: threshold must be positive, got %d", ErrInvalidTier, t.ThresholdDays)
	}
	if strings.TrimSpace(t.MessageTemplate) == "" {
		return fmt.Errorf("%w: tier %d has an empty message", ErrInvalidTier, t.ThresholdDays)
	}
	return nil
}

// SortTiers validates tiers and returns a copy ordered by ascending threshold.
func SortTiers(tiers []CampaignTier) ([]CampaignTier, error) {
	if len(tiers) == 0 {
		return nil, ErrNoTiers
	}
	seen := make(map[int]bool, len(tiers))
	sorted := make([]CampaignTier, 0, len(tiers))
	for _, t := range tiers {
		if err := t.Validate(); err != nil {
			return nil, err
		}
		if seen[t.ThresholdDays] {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateTier, t.ThresholdDays)
		}
		seen[t.ThresholdDays] = true
		sorted = append(sorted, t)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ThresholdDays < sorted[j].ThresholdDays })
	return sorted, nil
}

// EligibleCustomer is a customer that crossed a tier threshold and has not received it yet.
type EligibleCustomer struct {
	Phone        string `json:"phone"`
	Name         string `json:"name"`
	DaysInactive int    `json:"days_inactive"`
}
