package campaign

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BTreeMap/WinBackBot/internal/messaging"
	"github.com/BTreeMap/WinBackBot/internal/models"
	"github.com/BTreeMap/WinBackBot/internal/store"
	"github.com/BTreeMap/WinBackBot/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var now = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

var clock = testutil.FixedClock(now)

var tiers = []models.CampaignTier{
	{ThresholdDays: 60, MessageTemplate: "{name}, 25% OFF no {business_name}!"},
	{ThresholdDays: 14, MessageTemplate: "Oi {name}! 10% OFF"},
	{ThresholdDays: 30, MessageTemplate: "{name}, 15% OFF"},
}

func seed(st *store.InMemoryStore, phone, name string, inactive time.Duration) {
	testutil.SeedCustomer(st, phone, name, now, inactive)
}

func days(n int) time.Duration { return time.Duration(n) * testutil.Day }

type recordingObserver struct {
	mu     sync.Mutex
	sweeps int
	sent   map[int]int
	failed map[int]int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{sent: map[int]int{}, failed: map[int]int{}}
}

func (o *recordingObserver) SweepCompleted(time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sweeps++
}

func (o *recordingObserver) CampaignSend(tier int, delivered bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if delivered {
		o.sent[tier]++
	} else {
		o.failed[tier]++
	}
}

func TestEligible(t *testing.T) {
	customers := []models.Customer{
		{Phone: "+1", Name: "A", LastContact: models.Timestamp{Time: now.Add(-days(14) - 3*time.Hour)}},
		{Phone: "+2", Name: "B", LastContact: models.Timestamp{Time: now.Add(-days(14) + time.Hour)}},
		{Phone: "+3", Name: "C", LastContact: models.Timestamp{Time: now.Add(-days(20))}, CouponsSent: []int{14}},
		{Phone: "+4", Name: "D", LastContact: models.Timestamp{Time: now.Add(-days(14))}},
		{Phone: "+5", Name: "E", LastContact: models.Timestamp{Time: now.Add(-days(65))}, CouponsSent: []int{14}},
	}
	got := Eligible(customers, models.CampaignTier{ThresholdDays: 14, MessageTemplate: "x"}, now)
	assert.Equal(t, []models.EligibleCustomer{
		{Phone: "+1", Name: "A", DaysInactive: 14},
		{Phone: "+4", Name: "D", DaysInactive: 14},
	}, got)

	// A sent 14-day tier does not affect the later tiers.
	got = Eligible(customers, models.CampaignTier{ThresholdDays: 30, MessageTemplate: "x"}, now)
	assert.Equal(t, []models.EligibleCustomer{{Phone: "+5", Name: "E", DaysInactive: 65}}, got)
	got = Eligible(customers, models.CampaignTier{ThresholdDays: 60, MessageTemplate: "x"}, now)
	assert.Equal(t, []models.EligibleCustomer{{Phone: "+5", Name: "E", DaysInactive: 65}}, got)
}

func TestFindEligible_DoesNotModifyStore(t *testing.T) {
	st := store.NewInMemoryStore()
	seed(st, "+5581999999999", "Maria", days(31))
	before, err := st.Get(context.Background(), "+5581999999999")
	require.NoError(t, err)

	d := NewDetector(st, clock)
	got, err := d.FindEligible(context.Background(), models.CampaignTier{ThresholdDays: 30, MessageTemplate: "x"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 31, got[0].DaysInactive)

	after, err := st.Get(context.Background(), "+5581999999999")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRender(t *testing.T) {
	assert.Equal(t, "Oi Maria! Volte ao Sabor Caseiro {cupom}",
		Render("Oi {name}! Volte ao {business_name} {cupom}", "Maria", "Sabor Caseiro"))
}

func TestRunSweep_AllTiersInOneSweep(t *testing.T) {
	st := store.NewInMemoryStore()
	seed(st, "+5581999999999", "João", days(65))
	sender := messaging.NewMockSender()
	obs := newRecordingObserver()
	d := NewDispatcher(st, sender, WithClock(clock), WithObserver(obs), WithBusinessName("Sabor Caseiro"))

	report, err := d.RunSweep(context.Background(), tiers)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Sent())
	assert.Equal(t, 0, report.Failed())
	require.Len(t, report.Tiers, 3)
	assert.Equal(t, []int{14, 30, 60}, []int{report.Tiers[0].ThresholdDays, report.Tiers[1].ThresholdDays, report.Tiers[2].ThresholdDays})

	sent := sender.Messages()
	require.Len(t, sent, 3)
	assert.Equal(t, "Oi João! 10% OFF", sent[0].Body)
	assert.Equal(t, "João, 15% OFF", sent[1].Body)
	assert.Equal(t, "João, 25% OFF no Sabor Caseiro!", sent[2].Body)

	c, err := st.Get(context.Background(), "+5581999999999")
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{14, 30, 60}, c.CouponsSent)
	assert.Equal(t, 1, obs.sweeps)
	assert.Equal(t, 1, obs.sent[60])

	// Nothing is sent twice.
	report, err = d.RunSweep(context.Background(), tiers)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Sent())
	assert.Len(t, sender.Messages(), 3)
}

func TestRunSweep_FailedSendRetriedNextSweep(t *testing.T) {
	st := store.NewInMemoryStore()
	seed(st, "+5581111111111", "Ana", days(15))
	seed(st, "+5582222222222", "Bia", days(15))
	sender := messaging.NewMockSender()
	sender.SetFailing("+5581111111111", true)
	d := NewDispatcher(st, sender, WithClock(clock))

	report, err := d.RunSweep(context.Background(), tiers)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent())
	assert.Equal(t, 1, report.Failed())

	ana, err := st.Get(context.Background(), "+5581111111111")
	require.NoError(t, err)
	assert.Empty(t, ana.CouponsSent)
	bia, err := st.Get(context.Background(), "+5582222222222")
	require.NoError(t, err)
	assert.Equal(t, []int{14}, bia.CouponsSent)

	sender.SetFailing("+5581111111111", false)
	report, err = d.RunSweep(context.Background(), tiers)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent())

	ana, err = st.Get(context.Background(), "+5581111111111")
	require.NoError(t, err)
	assert.Equal(t, []int{14}, ana.CouponsSent)
}

func TestRunSweep_ThresholdUsesWholeDays(t *testing.T) {
	st := store.NewInMemoryStore()
	seed(st, "+5581111111111", "Ana", days(14)+3*time.Hour)
	seed(st, "+5582222222222", "Bia", days(14)-time.Minute)
	sender := messaging.NewMockSender()
	d := NewDispatcher(st, sender, WithClock(clock))

	report, err := d.RunSweep(context.Background(), tiers)
	require.NoError(t, err)
	require.Len(t, sender.Messages(), 1)
	assert.Equal(t, "+5581111111111", sender.Messages()[0].To)
	assert.Equal(t, 1, report.Tiers[0].Eligible)
	assert.Equal(t, 0, report.Tiers[1].Eligible)
}

func TestRunSweep_InvalidTiers(t *testing.T) {
	d := NewDispatcher(store.NewInMemoryStore(), messaging.NewMockSender(), WithClock(clock))
	_, err := d.RunSweep(context.Background(), nil)
	assert.ErrorIs(t, err, models.ErrNoTiers)
}

type brokenStore struct {
	*store.InMemoryStore
}

func (brokenStore) List(ctx context.Context) ([]models.Customer, error) {
	return nil, store.ErrCorruptSnapshot
}

func TestRunSweep_StoreFailureAborts(t *testing.T) {
	sender := messaging.NewMockSender()
	d := NewDispatcher(brokenStore{store.NewInMemoryStore()}, sender, WithClock(clock))

	report, err := d.RunSweep(context.Background(), tiers)
	assert.ErrorIs(t, err, store.ErrCorruptSnapshot)
	assert.Len(t, report.Tiers, 1)
	assert.Empty(t, sender.Messages())
}

// countingSweeper signals every sweep on calls.
type countingSweeper struct {
	calls chan struct{}
	err   error
}

func (s *countingSweeper) RunSweep(ctx context.Context, tiers []models.CampaignTier) (SweepReport, error) {
	select {
	case s.calls <- struct{}{}:
	default:
	}
	return SweepReport{}, s.err
}

func TestTrigger_SweepsImmediatelyThenOnInterval(t *testing.T) {
	sw := &countingSweeper{calls: make(chan struct{}, 10)}
	trig := NewTrigger(sw, tiers, WithInterval(20*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- trig.Run(ctx) }()

	for i := 0; i < 3; i++ {
		select {
		case <-sw.calls:
		case <-time.After(2 * time.Second):
			t.Fatalf("sweep %d did not happen", i+1)
		}
	}
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("trigger did not stop after cancellation")
	}
}

func TestTrigger_TransientErrorKeepsRunning(t *testing.T) {
	sw := &countingSweeper{calls: make(chan struct{}, 10), err: errors.New("temporary")}
	trig := NewTrigger(sw, tiers, WithInterval(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- trig.Run(ctx) }()

	for i := 0; i < 2; i++ {
		select {
		case <-sw.calls:
		case <-time.After(2 * time.Second):
			t.Fatalf("sweep %d did not happen", i+1)
		}
	}
	cancel()
	assert.NoError(t, <-done)
}

func TestTrigger_CorruptStoreStops(t *testing.T) {
	sw := &countingSweeper{calls: make(chan struct{}, 10), err: store.ErrCorruptSnapshot}
	trig := NewTrigger(sw, tiers, WithInterval(time.Hour))

	err := trig.Run(context.Background())
	assert.ErrorIs(t, err, store.ErrCorruptSnapshot)
}

func TestTrigger_CronModeSweepsAtStartup(t *testing.T) {
	sw := &countingSweeper{calls: make(chan struct{}, 10)}
	trig := NewTrigger(sw, tiers, WithCron("@daily"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- trig.Run(ctx) }()

	select {
	case <-sw.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("startup sweep did not happen")
	}
	cancel()
	assert.NoError(t, <-done)
}

func TestTrigger_InvalidCron(t *testing.T) {
	sw := &countingSweeper{calls: make(chan struct{}, 10)}
	err := NewTrigger(sw, tiers, WithCron("every day")).Run(context.Background())
	assert.Error(t, err)
	assert.Empty(t, sw.calls)
}
