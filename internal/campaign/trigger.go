package campaign

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/BTreeMap/WinBackBot/internal/models"
	"github.com/BTreeMap/WinBackBot/internal/scheduler"
	"github.com/BTreeMap/WinBackBot/internal/store"
)

// DefaultInterval is the time between two sweeps.
const DefaultInterval = time.Hour

// Trigger runs a sweep at startup and then on a fixed interval or cron expression.
// No checkpoint is kept: a restart sweeps immediately.
type Trigger struct {
	sweeper  Sweeper
	tiers    []models.CampaignTier
	interval time.Duration
	cronExpr string
}

// TriggerOption configures a Trigger.
type TriggerOption func(*Trigger)

// WithInterval sets the sweep interval. Non-positive values keep DefaultInterval.
func WithInterval(d time.Duration) TriggerOption {
	return func(t *Trigger) {
		if d > 0 {
			t.interval = d
		}
	}
}

// WithCron drives sweeps after the startup sweep by a cron expression instead of the interval.
func WithCron(expr string) TriggerOption {
	return func(t *Trigger) { t.cronExpr = expr }
}

// NewTrigger creates a Trigger sweeping tiers with sweeper.
func NewTrigger(sweeper Sweeper, tiers []models.CampaignTier, opts ...TriggerOption) *Trigger {
	t := &Trigger{sweeper: sweeper, tiers: tiers, interval: DefaultInterval}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Run blocks until ctx is cancelled. It returns nil on cancellation and an error only
// when the store is corrupt, which no later sweep can recover from.
func (t *Trigger) Run(ctx context.Context) error {
	if t.cronExpr != "" {
		if err := scheduler.ValidateExpr(t.cronExpr); err != nil {
			return err
		}
	}
	if err := t.sweep(ctx); err != nil {
		return err
	}
	if t.cronExpr != "" {
		return t.runCron(ctx)
	}

	slog.Info("Trigger.Run: sweeping on interval", "interval", t.interval)
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Debug("Trigger.Run: stopping")
			return nil
		case <-ticker.C:
			if err := t.sweep(ctx); err != nil {
				return err
			}
		}
	}
}

func (t *Trigger) runCron(ctx context.Context) error {
	sched := scheduler.NewScheduler()
	defer sched.Stop()

	fatal := make(chan error, 1)
	if err := sched.AddJob(t.cronExpr, func() {
		if err := t.sweep(ctx); err != nil {
			select {
			case fatal <- err:
			default:
			}
		}
	}); err != nil {
		return err
	}
	slog.Info("Trigger.Run: sweeping on cron schedule", "cron", t.cronExpr)

	select {
	case <-ctx.Done():
		slog.Debug("Trigger.Run: stopping")
		return nil
	case err := <-fatal:
		return err
	}
}

// sweep runs one sweep. Only corruption is returned; other failures are logged.
func (t *Trigger) sweep(ctx context.Context) error {
	report, err := t.sweeper.RunSweep(ctx, t.tiers)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return nil
	case errors.Is(err, store.ErrCorruptSnapshot):
		slog.Error("Trigger.sweep: customer store is corrupt", "error", err)
		return err
	default:
		slog.Error("Trigger.sweep: sweep failed, retrying next cycle", "error", err, "sent", report.Sent())
		return nil
	}
}
