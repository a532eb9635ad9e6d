package campaign

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/WinBackBot/internal/messaging"
	"github.com/BTreeMap/WinBackBot/internal/models"
	"github.com/BTreeMap/WinBackBot/internal/store"
)

// Observer receives sweep events. metrics.Metrics implements it.
type Observer interface {
	SweepCompleted(d time.Duration)
	CampaignSend(thresholdDays int, delivered bool)
}

type noopObserver struct{}

func (noopObserver) SweepCompleted(time.Duration) {}
func (noopObserver) CampaignSend(int, bool)       {}

// TierReport summarizes one tier of a sweep.
type TierReport struct {
	ThresholdDays int `json:"threshold_days"`
	Eligible      int `json:"eligible"`
	Sent          int `json:"sent"`
	Failed        int `json:"failed"`
}

// SweepReport summarizes one pass over all tiers.
type SweepReport struct {
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Tiers      []TierReport `json:"tiers"`
}

// Sent returns the number of delivered messages across tiers.
func (r SweepReport) Sent() int {
	n := 0
	for _, t := range r.Tiers {
		n += t.Sent
	}
	return n
}

// Failed returns the number of failed deliveries across tiers.
func (r SweepReport) Failed() int {
	n := 0
	for _, t := range r.Tiers {
		n += t.Failed
	}
	return n
}

// Sweeper runs one campaign sweep.
type Sweeper interface {
	RunSweep(ctx context.Context, tiers []models.CampaignTier) (SweepReport, error)
}

// Dispatcher sends tier messages to eligible customers and records successful deliveries.
// Sweeps are serialized: a sweep started while another runs waits for it.
type Dispatcher struct {
	mu           sync.Mutex
	store        store.Store
	detector     *Detector
	sender       messaging.Sender
	businessName string
	now          func() time.Time
	observer     Observer
}

var _ Sweeper = (*Dispatcher)(nil)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithClock overrides the time source used for inactivity.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// WithObserver registers a sweep observer.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) {
		if o != nil {
			d.observer = o
		}
	}
}

// WithBusinessName sets the value of the {business_name} placeholder.
func WithBusinessName(name string) Option {
	return func(d *Dispatcher) { d.businessName = name }
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(st store.Store, sender messaging.Sender, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:    st,
		sender:   sender,
		now:      time.Now,
		observer: noopObserver{},
	}
	for _, opt := range opts {
		opt(d)
	}
	d.detector = NewDetector(st, d.now)
	return d
}

// RunSweep processes tiers in ascending threshold order. A failed send is logged and
// left unmarked so the next sweep retries it; it never aborts the sweep. An error is
// returned only when the store cannot be read or ctx is cancelled.
func (d *Dispatcher) RunSweep(ctx context.Context, tiers []models.CampaignTier) (SweepReport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	report := SweepReport{StartedAt: d.now()}
	sorted, err := models.SortTiers(tiers)
	if err != nil {
		return report, err
	}
	slog.Info("Dispatcher.RunSweep: checking inactive customers", "tiers", len(sorted))

	for _, tier := range sorted {
		tr, err := d.runTier(ctx, tier)
		report.Tiers = append(report.Tiers, tr)
		if err != nil {
			report.FinishedAt = d.now()
			return report, err
		}
	}

	report.FinishedAt = d.now()
	d.observer.SweepCompleted(report.FinishedAt.Sub(report.StartedAt))
	slog.Info("Dispatcher.RunSweep: sweep finished", "sent", report.Sent(), "failed", report.Failed())
	return report, nil
}

func (d *Dispatcher) runTier(ctx context.Context, tier models.CampaignTier) (TierReport, error) {
	tr := TierReport{ThresholdDays: tier.ThresholdDays}
	eligible, err := d.detector.FindEligible(ctx, tier)
	if err != nil {
		slog.Error("Dispatcher.runTier: store read failed", "error", err, "tier", tier.ThresholdDays)
		return tr, fmt.Errorf("tier %d: %w", tier.ThresholdDays, err)
	}
	tr.Eligible = len(eligible)
	if len(eligible) == 0 {
		slog.Debug("Dispatcher.runTier: no inactive customers", "tier", tier.ThresholdDays)
		return tr, nil
	}
	slog.Info("Dispatcher.runTier: inactive customers found", "tier", tier.ThresholdDays, "count", len(eligible))

	for _, c := range eligible {
		if err := ctx.Err(); err != nil {
			return tr, err
		}
		body := Render(tier.MessageTemplate, c.Name, d.businessName)
		if err := d.sender.SendMessage(ctx, c.Phone, body); err != nil {
			tr.Failed++
			d.observer.CampaignSend(tier.ThresholdDays, false)
			slog.Warn("Dispatcher.runTier: send failed, will retry next sweep", "error", err, "phone", c.Phone, "tier", tier.ThresholdDays)
			continue
		}
		tr.Sent++
		d.observer.CampaignSend(tier.ThresholdDays, true)
		if err := store.MarkTierSent(ctx, d.store, c.Phone, tier.ThresholdDays); err != nil {
			// Delivered but unrecorded: the customer may receive this tier again.
			slog.Error("Dispatcher.runTier: failed to record delivered tier", "error", err, "phone", c.Phone, "tier", tier.ThresholdDays)
			continue
		}
		slog.Info("Dispatcher.runTier: message sent", "phone", c.Phone, "tier", tier.ThresholdDays, "days_inactive", c.DaysInactive)
	}
	return tr, nil
}
