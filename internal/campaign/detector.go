// Package campaign finds inactive customers and sends them tiered win-back incentives.
package campaign

import (
	"context"
	"fmt"
	"time"

	"github.com/BTreeMap/WinBackBot/internal/models"
	"github.com/BTreeMap/WinBackBot/internal/store"
)

// Detector selects the customers eligible for a tier. It never modifies the store.
type Detector struct {
	store store.Store
	now   func() time.Time
}

// NewDetector creates a Detector reading from st.
func NewDetector(st store.Store, now func() time.Time) *Detector {
	if now == nil {
		now = time.Now
	}
	return &Detector{store: st, now: now}
}

// FindEligible returns every customer inactive for at least tier.ThresholdDays whole days
// who has not received the tier yet, ordered by phone.
func (d *Detector) FindEligible(ctx context.Context, tier models.CampaignTier) ([]models.EligibleCustomer, error) {
	customers, err := d.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	return Eligible(customers, tier, d.now()), nil
}

// Eligible filters customers for tier at instant now.
func Eligible(customers []models.Customer, tier models.CampaignTier, now time.Time) []models.EligibleCustomer {
	out := make([]models.EligibleCustomer, 0)
	for _, c := range customers {
		days := c.DaysInactive(now)
		if days < tier.ThresholdDays || c.HasTier(tier.ThresholdDays) {
			continue
		}
		out = append(out, models.EligibleCustomer{Phone: c.Phone, Name: c.Name, DaysInactive: days})
	}
	return out
}
