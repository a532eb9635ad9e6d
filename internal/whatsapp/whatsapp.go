// Package whatsapp wraps the whatsmeow client as an alternative WhatsApp transport for WinBackBot.
//
// It provides outbound delivery and bridges inbound text messages to the conversation handler.
package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/BTreeMap/WinBackBot/internal/messaging"
	"github.com/BTreeMap/WinBackBot/internal/store"
	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
)

// Constants for WhatsApp client configuration
const (
	// DefaultSQLitePath is the default path for the whatsmeow session database
	DefaultSQLitePath = "/var/lib/winbackbot/whatsmeow.db"
	// JIDSuffix is the WhatsApp JID server for regular users
	JIDSuffix = types.DefaultUserServer
)

var (
	ErrClientNotInitialized = errors.New("whatsapp client not initialized")
	ErrLoginFailed          = errors.New("whatsapp login did not complete")
)

// Opts holds configuration options for the WhatsApp client.
type Opts struct {
	DBDSN       string // whatsmeow session database connection string
	QRPath      string // path to write login QR code
	NumericCode bool   // print the raw pairing code instead of a QR code
}

// Option defines a configuration option for the WhatsApp client.
type Option func(*Opts)

// WithDBDSN sets the whatsmeow session database connection string.
func WithDBDSN(dsn string) Option {
	return func(o *Opts) { o.DBDSN = dsn }
}

// WithQRCodeOutput writes the login QR code to path instead of stdout.
func WithQRCodeOutput(path string) Option {
	return func(o *Opts) { o.QRPath = path }
}

// WithNumericCode prints the pairing code as text instead of a QR code.
func WithNumericCode() Option {
	return func(o *Opts) { o.NumericCode = true }
}

// Client wraps the whatsmeow client.
type Client struct {
	waClient *whatsmeow.Client
}

var _ messaging.Sender = (*Client)(nil)

// sessionDriver picks the database/sql driver for the session store.
func sessionDriver(dsn string) string {
	if store.DetectDSNType(dsn) == store.DSNTypePostgres {
		return "postgres"
	}
	return "sqlite3"
}

// NewClient opens the session store, logs in if needed and connects.
func NewClient(ctx context.Context, opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	dbDSN := cfg.DBDSN
	if dbDSN == "" {
		dbDSN = DefaultSQLitePath
		slog.Debug("No WhatsApp database DSN provided, using default SQLite path", "default_path", dbDSN)
	}
	driver := sessionDriver(dbDSN)
	if driver == "sqlite3" && !strings.Contains(dbDSN, "foreign_keys") {
		slog.Warn("SQLite session database for WhatsApp does not enable foreign keys; whatsmeow recommends '?_foreign_keys=on'",
			"dsn_example", "file:"+dbDSN+"?_foreign_keys=on")
	}

	container, err := sqlstore.New(ctx, driver, dbDSN, waLog.Stdout("Database", "INFO", true))
	if err != nil {
		slog.Error("Failed to initialize WhatsApp DB store", "error", err)
		return nil, fmt.Errorf("failed to initialize WhatsApp database store: %w", err)
	}
	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		slog.Error("Failed to get first device from store", "error", err)
		return nil, fmt.Errorf("failed to get device from WhatsApp store: %w", err)
	}

	waClient := whatsmeow.NewClient(deviceStore, waLog.Stdout("Client", "INFO", true))
	if waClient.Store.ID == nil {
		if err := login(ctx, waClient, cfg); err != nil {
			waClient.Disconnect()
			return nil, err
		}
	} else if err := waClient.Connect(); err != nil {
		slog.Error("Failed to connect to WhatsApp server", "error", err)
		return nil, fmt.Errorf("failed to connect to WhatsApp server: %w", err)
	}
	slog.Info("WhatsApp client connected successfully")
	return &Client{waClient: waClient}, nil
}

// login runs the QR pairing flow until the channel closes.
func login(ctx context.Context, waClient *whatsmeow.Client, cfg Opts) error {
	slog.Info("WhatsApp login required; starting QR code flow")
	qrChan, err := waClient.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("failed to open WhatsApp QR channel: %w", err)
	}
	if err := waClient.Connect(); err != nil {
		slog.Error("Failed to connect to WhatsApp during login", "error", err)
		return fmt.Errorf("failed to connect to WhatsApp during login: %w", err)
	}

	writer := io.Writer(os.Stdout)
	if cfg.QRPath != "" {
		f, err := os.Create(cfg.QRPath)
		if err != nil {
			return fmt.Errorf("failed to create QR file: %w", err)
		}
		defer f.Close()
		writer = f
	}
	return drainQR(qrChan, writer, cfg.NumericCode)
}

// drainQR renders pairing codes until the channel closes. Pairing succeeded only
// if a "success" event was seen.
func drainQR(qrChan <-chan whatsmeow.QRChannelItem, writer io.Writer, numeric bool) error {
	paired := false
	for evt := range qrChan {
		switch evt.Event {
		case "code":
			if numeric {
				fmt.Fprintln(writer, evt.Code)
			} else {
				qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, writer)
			}
		case "success":
			paired = true
			slog.Info("WhatsApp login succeeded")
		default:
			slog.Warn("WhatsApp login event", "event", evt.Event, "error", evt.Error)
		}
	}
	if !paired {
		return ErrLoginFailed
	}
	return nil
}

// SendMessage sends a text message to a customer phone.
func (c *Client) SendMessage(ctx context.Context, to string, body string) error {
	if c.waClient == nil || c.waClient.Store == nil {
		return ErrClientNotInitialized
	}
	if to == "" {
		return messaging.ErrEmptyRecipient
	}
	if body == "" {
		return messaging.ErrEmptyBody
	}
	digits, err := messaging.Digits(to)
	if err != nil {
		return err
	}

	jid := types.NewJID(digits, JIDSuffix)
	if _, err := c.waClient.SendMessage(ctx, jid, &waE2E.Message{Conversation: &body}); err != nil {
		slog.Error("Failed to send WhatsApp message", "error", err, "to", to)
		return fmt.Errorf("failed to send message to %s: %w", to, err)
	}
	slog.Debug("WhatsApp message sent successfully", "to", to)
	return nil
}

// Listen bridges inbound events to b until ctx is cancelled.
func (c *Client) Listen(ctx context.Context, b *Bridge) error {
	if c.waClient == nil {
		return ErrClientNotInitialized
	}
	id := c.waClient.AddEventHandler(func(evt interface{}) {
		b.HandleEvent(ctx, evt)
	})
	slog.Debug("WhatsApp event handler registered")
	<-ctx.Done()
	c.waClient.RemoveEventHandler(id)
	return nil
}

// Close disconnects from WhatsApp.
func (c *Client) Close() error {
	if c.waClient != nil {
		c.waClient.Disconnect()
	}
	return nil
}
