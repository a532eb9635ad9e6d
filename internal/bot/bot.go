// Package bot answers inbound WhatsApp messages for WinBackBot.
//
// HandleInbound bootstraps the customer record, learns the customer's name when they
// introduce themselves, records the exchange and asks the generation service for a reply.
// It never fails outward: any failure becomes a fixed apology.
package bot

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/WinBackBot/internal/conversation"
	"github.com/BTreeMap/WinBackBot/internal/genai"
	"github.com/BTreeMap/WinBackBot/internal/messaging"
	"github.com/BTreeMap/WinBackBot/internal/models"
	"github.com/BTreeMap/WinBackBot/internal/store"
)

// Apology is sent, and persisted, whenever a reply cannot be generated.
const Apology = "Desculpe, tive um probleminha aqui! 😅 Por favor, tente novamente em alguns instantes."

// DefaultGenerateTimeout bounds a single generation call.
const DefaultGenerateTimeout = 30 * time.Second

// Observer receives inbound-path events. metrics.Metrics implements it.
type Observer interface {
	InboundMessage()
	GenerationFailed()
}

type noopObserver struct{}

func (noopObserver) InboundMessage()   {}
func (noopObserver) GenerationFailed() {}

// Bot handles inbound customer messages.
type Bot struct {
	store           store.Store
	conv            *conversation.Manager
	gen             genai.Generator
	systemPrompt    string
	now             func() time.Time
	observer        Observer
	generateTimeout time.Duration
}

var _ messaging.InboundHandler = (*Bot)(nil)

// Option configures a Bot.
type Option func(*Bot)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(b *Bot) { b.now = now }
}

// WithObserver registers an event observer.
func WithObserver(o Observer) Option {
	return func(b *Bot) {
		if o != nil {
			b.observer = o
		}
	}
}

// WithGenerateTimeout overrides DefaultGenerateTimeout. Zero disables the deadline.
func WithGenerateTimeout(d time.Duration) Option {
	return func(b *Bot) { b.generateTimeout = d }
}

// New creates a Bot answering with gen under systemPrompt.
func New(st store.Store, gen genai.Generator, systemPrompt string, opts ...Option) *Bot {
	b := &Bot{
		store:           st,
		gen:             gen,
		systemPrompt:    systemPrompt,
		now:             time.Now,
		observer:        noopObserver{},
		generateTimeout: DefaultGenerateTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.conv = conversation.NewManager(st, conversation.WithClock(b.now))
	return b
}

// HandleInbound processes one inbound message and returns the reply to send.
func (b *Bot) HandleInbound(ctx context.Context, phone, displayName, text string) string {
	b.observer.InboundMessage()

	phone, err := messaging.CanonicalizePhone(phone)
	if err != nil {
		slog.Warn("Bot.HandleInbound: invalid sender", "error", err)
		return Apology
	}
	text = strings.TrimSpace(text)
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = models.DefaultCustomerName
	}
	slog.Info("Bot.HandleInbound: message received", "phone", phone, "length", len(text))

	customer, err := b.store.GetOrCreate(ctx, phone, displayName, b.now())
	if err != nil {
		slog.Error("Bot.HandleInbound: customer bootstrap failed", "error", err, "phone", phone)
		return Apology
	}

	if customer.Name == models.DefaultCustomerName {
		if name, ok := ExtractName(text); ok {
			if err := store.SetName(ctx, b.store, phone, name); err != nil {
				slog.Error("Bot.HandleInbound: failed to save extracted name", "error", err, "phone", phone)
			} else {
				slog.Info("Bot.HandleInbound: name extracted", "phone", phone, "name", name)
			}
		}
	}

	if err := store.TouchContact(ctx, b.store, phone, b.now()); err != nil {
		slog.Error("Bot.HandleInbound: touch contact failed", "error", err, "phone", phone)
		return Apology
	}
	if err := b.conv.AppendMessage(ctx, phone, models.RoleUser, text); err != nil {
		slog.Error("Bot.HandleInbound: failed to record user message", "error", err, "phone", phone)
		return Apology
	}
	history, err := b.conv.GetContext(ctx, phone)
	if err != nil {
		slog.Error("Bot.HandleInbound: failed to load context", "error", err, "phone", phone)
		return Apology
	}

	reply := b.generate(ctx, phone, history)

	// The reply is returned even if it cannot be recorded; the customer still gets an answer.
	if err := b.conv.AppendMessage(ctx, phone, models.RoleAssistant, reply); err != nil {
		slog.Error("Bot.HandleInbound: failed to record reply", "error", err, "phone", phone)
	}
	return reply
}

func (b *Bot) generate(ctx context.Context, phone string, history []models.Turn) string {
	if b.generateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.generateTimeout)
		defer cancel()
	}
	reply, err := b.gen.Generate(ctx, b.systemPrompt, history)
	if err != nil {
		b.observer.GenerationFailed()
		slog.Warn("Bot.generate: generation failed, sending apology", "error", err, "phone", phone)
		return Apology
	}
	if strings.TrimSpace(reply) == "" {
		b.observer.GenerationFailed()
		slog.Warn("Bot.generate: empty reply, sending apology", "phone", phone)
		return Apology
	}
	return reply
}
