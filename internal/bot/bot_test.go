package bot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/BTreeMap/WinBackBot/internal/campaign"
	"github.com/BTreeMap/WinBackBot/internal/messaging"
	"github.com/BTreeMap/WinBackBot/internal/models"
	"github.com/BTreeMap/WinBackBot/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockGenerator struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
	calls   [][]models.Turn
}

func (m *mockGenerator) Generate(ctx context.Context, systemPrompt string, history []models.Turn) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, systemPrompt)
	m.calls = append(m.calls, append([]models.Turn(nil), history...))
	return m.reply, m.err
}

type countingObserver struct {
	inbound, failures int
}

func (o *countingObserver) InboundMessage()   { o.inbound++ }
func (o *countingObserver) GenerationFailed() { o.failures++ }

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newBot(gen *mockGenerator, st store.Store, opts ...Option) *Bot {
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	return New(st, gen, "Você é o assistente.", opts...)
}

func TestHandleInbound_NewCustomerExtractsName(t *testing.T) {
	st := store.NewInMemoryStore()
	gen := &mockGenerator{reply: "Olá, João! Como posso ajudar?"}
	b := newBot(gen, st)

	reply := b.HandleInbound(context.Background(), "whatsapp:+5581999999999", "", "Oi, meu nome é João")
	assert.Equal(t, "Olá, João! Como posso ajudar?", reply)

	c, err := st.Get(context.Background(), "+5581999999999")
	require.NoError(t, err)
	assert.Equal(t, "João", c.Name)
	assert.Equal(t, 1, c.TotalMessages)
	assert.True(t, c.LastContact.Equal(testNow))
	require.Len(t, c.ConversationHistory, 2)
	assert.Equal(t, models.RoleUser, c.ConversationHistory[0].Role)
	assert.Equal(t, "Oi, meu nome é João", c.ConversationHistory[0].Content)
	assert.Equal(t, models.RoleAssistant, c.ConversationHistory[1].Role)
	assert.Equal(t, reply, c.ConversationHistory[1].Content)

	require.Len(t, gen.calls, 1)
	assert.Equal(t, []models.Turn{{Role: models.RoleUser, Content: "Oi, meu nome é João"}}, gen.calls[0])
	assert.Equal(t, "Você é o assistente.", gen.prompts[0])
}

func TestHandleInbound_ProfileNameKeptOverExtraction(t *testing.T) {
	st := store.NewInMemoryStore()
	b := newBot(&mockGenerator{reply: "Oi!"}, st)

	b.HandleInbound(context.Background(), "whatsapp:+5581999999999", "Maria", "me chamo Joana")

	c, err := st.Get(context.Background(), "+5581999999999")
	require.NoError(t, err)
	assert.Equal(t, "Maria", c.Name)
}

func TestHandleInbound_GenerationFailurePersistsApology(t *testing.T) {
	st := store.NewInMemoryStore()
	obs := &countingObserver{}
	b := newBot(&mockGenerator{err: errors.New("upstream unavailable")}, st, WithObserver(obs))

	reply := b.HandleInbound(context.Background(), "+5581999999999", "Maria", "Qual o cardápio?")
	assert.Equal(t, Apology, reply)

	c, err := st.Get(context.Background(), "+5581999999999")
	require.NoError(t, err)
	require.Len(t, c.ConversationHistory, 2)
	assert.Equal(t, Apology, c.ConversationHistory[1].Content)
	assert.Equal(t, 1, obs.inbound)
	assert.Equal(t, 1, obs.failures)
}

func TestHandleInbound_HistoryWindow(t *testing.T) {
	st := store.NewInMemoryStore()
	gen := &mockGenerator{reply: "ok"}
	b := newBot(gen, st)
	ctx := context.Background()

	// Seed a full window so the next exchange evicts the oldest entries.
	c := models.NewCustomer("+5581999999999", "Maria", testNow.Add(-time.Hour))
	for i := 1; i <= models.MaxHistoryMessages; i++ {
		c.AppendMessage(models.Message{Role: models.RoleUser, Content: fmt.Sprintf("m%d", i)}, models.MaxHistoryMessages)
	}
	st.Put(c)

	b.HandleInbound(ctx, "+5581999999999", "Maria", "m11")

	require.Len(t, gen.calls, 1)
	sent := gen.calls[0]
	require.Len(t, sent, models.MaxHistoryMessages)
	assert.Equal(t, "m2", sent[0].Content)
	assert.Equal(t, "m11", sent[len(sent)-1].Content)

	stored, err := st.Get(ctx, "+5581999999999")
	require.NoError(t, err)
	require.Len(t, stored.ConversationHistory, models.MaxHistoryMessages)
	assert.Equal(t, "m3", stored.ConversationHistory[0].Content)
	assert.Equal(t, "ok", stored.ConversationHistory[models.MaxHistoryMessages-1].Content)
}

func TestHandleInbound_InvalidSender(t *testing.T) {
	st := store.NewInMemoryStore()
	gen := &mockGenerator{reply: "ok"}
	b := newBot(gen, st)

	assert.Equal(t, Apology, b.HandleInbound(context.Background(), "whatsapp:", "", "Oi"))
	assert.Empty(t, gen.calls)
	all, err := st.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

type failingStore struct {
	store.Store
}

func (failingStore) GetOrCreate(ctx context.Context, phone, defaultName string, now time.Time) (models.Customer, error) {
	return models.Customer{}, store.ErrCorruptSnapshot
}

func TestHandleInbound_StoreFailureReturnsApology(t *testing.T) {
	gen := &mockGenerator{reply: "ok"}
	b := newBot(gen, failingStore{Store: store.NewInMemoryStore()})

	assert.Equal(t, Apology, b.HandleInbound(context.Background(), "+5581999999999", "", "Oi"))
	assert.Empty(t, gen.calls)
}

func TestHandleInbound_ReturningCustomerFromPrefixedSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "customers.json")
	snapshot := `{"whatsapp:+5581999999999": {"name": "João", "phone": "whatsapp:+5581999999999",
		"first_contact": "2024-03-01T12:00:00Z", "last_contact": "2024-04-01T12:00:00Z",
		"conversation_history": [], "coupons_sent": [14], "total_messages": 2}}`
	require.NoError(t, os.WriteFile(path, []byte(snapshot), 0644))
	st, err := store.NewJSONStore(store.WithJSONPath(path))
	require.NoError(t, err)

	b := newBot(&mockGenerator{reply: "Que bom te ver de novo!"}, st)
	b.HandleInbound(context.Background(), "whatsapp:+5581999999999", "João", "Oi, voltei")

	all, err := st.List(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1, "customer must keep a single record")
	assert.Equal(t, "+5581999999999", all[0].Phone)
	assert.Equal(t, 3, all[0].TotalMessages)
	assert.Equal(t, []int{14}, all[0].CouponsSent)

	sender := messaging.NewMockSender()
	d := campaign.NewDispatcher(st, sender, campaign.WithClock(func() time.Time { return testNow }))
	_, err = d.RunSweep(context.Background(), []models.CampaignTier{
		{ThresholdDays: 14, MessageTemplate: "14 {name}"},
		{ThresholdDays: 30, MessageTemplate: "30 {name}"},
	})
	require.NoError(t, err)
	assert.Empty(t, sender.Messages(), "a customer who just wrote in must not be targeted")
}

func TestExtractName(t *testing.T) {
	tests := []struct {
		msg    string
		want   string
		wantOK bool
	}{
		{"Oi, meu nome é João", "João", true},
		{"MEU NOME É joão!", "João", true},
		{"me chamo ana, tudo bem?", "Ana", true},
		{"Oi! Sou a MARIA.", "Maria", true},
		{"sou o pedro", "Pedro", true},
		{"quero pedir uma pizza", "", false},
		{"meu nome é ", "", false},
		{"meu nome é !!!", "", false},
	}
	for _, tt := range tests {
		got, ok := ExtractName(tt.msg)
		assert.Equal(t, tt.wantOK, ok, tt.msg)
		assert.Equal(t, tt.want, got, tt.msg)
	}
}
