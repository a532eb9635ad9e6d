package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/BTreeMap/WinBackBot/internal/api"
	"github.com/BTreeMap/WinBackBot/internal/bot"
	"github.com/BTreeMap/WinBackBot/internal/campaign"
	"github.com/BTreeMap/WinBackBot/internal/config"
	"github.com/BTreeMap/WinBackBot/internal/genai"
	"github.com/BTreeMap/WinBackBot/internal/lockfile"
	"github.com/BTreeMap/WinBackBot/internal/messaging"
	"github.com/BTreeMap/WinBackBot/internal/metrics"
	"github.com/BTreeMap/WinBackBot/internal/store"
	"github.com/BTreeMap/WinBackBot/internal/twiliowhatsapp"
	"github.com/BTreeMap/WinBackBot/internal/util"
	"github.com/BTreeMap/WinBackBot/internal/whatsapp"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for WinBackBot state data
	DefaultStateDir = "/var/lib/winbackbot"
	// DefaultSnapshotFileName is the default customer snapshot filename
	DefaultSnapshotFileName = "customers.json"
	// DefaultWhatsAppDBFileName is the default whatsmeow session database filename
	DefaultWhatsAppDBFileName = "whatsmeow.db"
)

// Transports selectable with TRANSPORT / -transport
const (
	TransportTwilio    = "twilio"
	TransportWhatsmeow = "whatsmeow"
)

// Config holds environment configuration
type Config struct {
	StateDir          string
	DatabaseURL       string
	OpenAIKey         string
	OpenAIModel       string
	APIAddr           string
	Transport         string
	TwilioSID         string
	TwilioToken       string
	TwilioFrom        string
	ValidateSignature bool
	WebhookURL        string
	AdminToken        string
	WhatsAppDSN       string
	Interval          time.Duration
	Cron              string
	BusinessConfig    string
	LogLevel          string
}

// Flags holds command line flag values
type Flags struct {
	stateDir       *string
	dbDSN          *string
	openaiKey      *string
	openaiModel    *string
	apiAddr        *string
	transport      *string
	businessConfig *string
	interval       *time.Duration
	cron           *string
	qrOutput       *string
	numeric        *bool
}

func main() {
	env := loadEnvironmentConfig()
	initializeLogger(env.LogLevel)
	flags := parseCommandLineFlags(env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, env, flags); err != nil {
		slog.Error("WinBackBot failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("WinBackBot exited successfully")
}

// initializeLogger installs a text handler on stdout as the default logger.
func initializeLogger(level string) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: util.ParseLogLevel(level)}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := Config{
		StateDir:          util.GetEnv("WINBACK_STATE_DIR", DefaultStateDir),
		DatabaseURL:       util.GetEnv("DATABASE_URL", ""),
		OpenAIKey:         util.GetEnv("OPENAI_API_KEY", ""),
		OpenAIModel:       util.GetEnv("OPENAI_MODEL", ""),
		APIAddr:           util.GetEnv("API_ADDR", api.DefaultServerPort),
		Transport:         util.GetEnv("TRANSPORT", TransportTwilio),
		TwilioSID:         util.GetEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioToken:       util.GetEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFrom:        util.GetEnv("TWILIO_FROM_NUMBER", ""),
		ValidateSignature: util.ParseBoolEnv("TWILIO_VALIDATE_SIGNATURE", false),
		WebhookURL:        util.GetEnv("TWILIO_WEBHOOK_URL", ""),
		AdminToken:        util.GetEnv("API_ADMIN_TOKEN", ""),
		WhatsAppDSN:       util.GetEnv("WHATSAPP_DB_DSN", ""),
		Interval:          util.ParseDurationEnv("CAMPAIGN_INTERVAL", campaign.DefaultInterval),
		Cron:              util.GetEnv("CAMPAIGN_CRON", ""),
		BusinessConfig:    util.GetEnv("BUSINESS_CONFIG", ""),
		LogLevel:          util.GetEnv("LOG_LEVEL", "info"),
	}
	return cfg
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(env Config) Flags {
	flags := Flags{
		stateDir:       flag.String("state-dir", env.StateDir, "state directory for WinBackBot data (overrides $WINBACK_STATE_DIR)"),
		dbDSN:          flag.String("db-dsn", env.DatabaseURL, "customer store: postgres DSN, .json snapshot or SQLite path (overrides $DATABASE_URL)"),
		openaiKey:      flag.String("openai-api-key", env.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		openaiModel:    flag.String("openai-model", env.OpenAIModel, "OpenAI chat model (overrides $OPENAI_MODEL and the config file)"),
		apiAddr:        flag.String("api-addr", env.APIAddr, "API server address (overrides $API_ADDR)"),
		transport:      flag.String("transport", env.Transport, "WhatsApp transport: twilio or whatsmeow (overrides $TRANSPORT)"),
		businessConfig: flag.String("config", env.BusinessConfig, "business/campaign YAML file (overrides $BUSINESS_CONFIG)"),
		interval:       flag.Duration("campaign-interval", env.Interval, "time between campaign sweeps (overrides $CAMPAIGN_INTERVAL)"),
		cron:           flag.String("campaign-cron", env.Cron, "cron expression for campaign sweeps (overrides $CAMPAIGN_CRON)"),
		qrOutput:       flag.String("qr-output", "", "path to write the whatsmeow login QR code"),
		numeric:        flag.Bool("numeric-code", false, "print the whatsmeow pairing code instead of a QR code"),
	}
	flag.Parse()

	if *flags.dbDSN == "" {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultSnapshotFileName)
		slog.Debug("No customer store DSN provided, using JSON snapshot", "path", *flags.dbDSN)
	}
	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_type", store.DetectDSNType(*flags.dbDSN),
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"transport", *flags.transport,
		"config", *flags.businessConfig,
		"interval", *flags.interval,
		"cron", *flags.cron)
	return flags
}

// run wires the components and blocks until ctx is cancelled or a component fails.
func run(ctx context.Context, env Config, flags Flags) error {
	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	cfg, err := config.Load(*flags.businessConfig)
	if err != nil {
		return err
	}
	if *flags.openaiModel != "" {
		cfg.AI.Model = *flags.openaiModel
	}
	systemPrompt, err := cfg.SystemPrompt()
	if err != nil {
		return err
	}

	st, err := store.Open(*flags.dbDSN)
	if err != nil {
		if errors.Is(err, store.ErrCorruptSnapshot) {
			slog.Error("Customer store is corrupt; refusing to start", "dsn_type", store.DetectDSNType(*flags.dbDSN))
		}
		return fmt.Errorf("failed to open customer store: %w", err)
	}
	defer st.Close()

	gen, err := genai.NewClient(
		genai.WithAPIKey(*flags.openaiKey),
		genai.WithModel(cfg.AI.Model),
		genai.WithMaxTokens(cfg.AI.MaxTokens),
	)
	if err != nil {
		return fmt.Errorf("failed to create GenAI client: %w", err)
	}

	m := metrics.New(nil)
	handler := bot.New(st, gen, systemPrompt, bot.WithObserver(m))

	g, gctx := errgroup.WithContext(ctx)
	sender, apiOpts, err := buildTransport(gctx, g, env, flags, handler)
	if err != nil {
		return err
	}

	dispatcher := campaign.NewDispatcher(st, sender,
		campaign.WithBusinessName(cfg.Business.Name),
		campaign.WithObserver(m),
	)
	trigger := campaign.NewTrigger(dispatcher, cfg.Campaign.Tiers,
		campaign.WithInterval(*flags.interval),
		campaign.WithCron(*flags.cron),
	)

	apiOpts = append(apiOpts,
		api.WithAddr(*flags.apiAddr),
		api.WithAdminToken(env.AdminToken),
		api.WithMetricsHandler(m.Handler()),
		api.WithSweeper(dispatcher, cfg.Campaign.Tiers),
	)
	server := api.NewServer(handler, st, apiOpts...)

	slog.Info("Bootstrapping WinBackBot",
		"business", cfg.Business.Name,
		"transport", *flags.transport,
		"tiers", len(cfg.Campaign.Tiers),
		"store", store.DetectDSNType(*flags.dbDSN))

	g.Go(func() error { return server.Run(gctx) })
	g.Go(func() error { return trigger.Run(gctx) })
	return g.Wait()
}

// buildTransport creates the outbound sender and, for whatsmeow, starts the inbound bridge.
func buildTransport(ctx context.Context, g *errgroup.Group, env Config, flags Flags, handler messaging.InboundHandler) (messaging.Sender, []api.Option, error) {
	switch *flags.transport {
	case TransportTwilio:
		client, err := twiliowhatsapp.NewClient(
			twiliowhatsapp.WithAccountSID(env.TwilioSID),
			twiliowhatsapp.WithAuthToken(env.TwilioToken),
			twiliowhatsapp.WithFromWhats(env.TwilioFrom),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Twilio client: %w", err)
		}
		var opts []api.Option
		switch {
		case env.WebhookURL != "":
			opts = append(opts, api.WithSignatureValidator(twiliowhatsapp.NewSignatureValidator(env.TwilioToken, env.WebhookURL)))
		case env.ValidateSignature:
			return nil, nil, errors.New("TWILIO_WEBHOOK_URL is required when TWILIO_VALIDATE_SIGNATURE is enabled")
		default:
			slog.Warn("TWILIO_WEBHOOK_URL not set; webhook requests are not signature-checked")
		}
		return client, opts, nil

	case TransportWhatsmeow:
		dsn := env.WhatsAppDSN
		if dsn == "" {
			dsn = "file:" + filepath.Join(*flags.stateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
		}
		waOpts := []whatsapp.Option{whatsapp.WithDBDSN(dsn)}
		if *flags.qrOutput != "" {
			waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
		}
		if *flags.numeric {
			waOpts = append(waOpts, whatsapp.WithNumericCode())
		}
		client, err := whatsapp.NewClient(ctx, waOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create WhatsApp client: %w", err)
		}
		bridge := whatsapp.NewBridge(handler, client)
		g.Go(func() error {
			defer client.Close()
			return client.Listen(ctx, bridge)
		})
		return client, []api.Option{api.WithoutWebhook()}, nil

	default:
		return nil, nil, fmt.Errorf("unknown transport %q (want %s or %s)", *flags.transport, TransportTwilio, TransportWhatsmeow)
	}
}
