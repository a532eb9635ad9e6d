// Package api provides the HTTP server of WinBackBot.
//
// It receives the Twilio WhatsApp webhook and exposes health, customer read-outs,
// a manual campaign sweep and Prometheus metrics.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/WinBackBot/internal/campaign"
	"github.com/BTreeMap/WinBackBot/internal/messaging"
	"github.com/BTreeMap/WinBackBot/internal/models"
	"github.com/BTreeMap/WinBackBot/internal/store"
	"github.com/BTreeMap/WinBackBot/internal/twiliowhatsapp"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Constants for API server configuration
const (
	// DefaultServerPort is the default address for the API server
	DefaultServerPort = ":8080"
	// DefaultShutdownTimeout bounds graceful shutdown
	DefaultShutdownTimeout = 10 * time.Second
	// DefaultReadHeaderTimeout bounds reading request headers
	DefaultReadHeaderTimeout = 10 * time.Second
	// HealthMessage is returned by the health endpoint
	HealthMessage = "Bot está rodando! 🤖"
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr           string
	Validator      *twiliowhatsapp.SignatureValidator
	Metrics        http.Handler
	Sweeper        campaign.Sweeper
	Tiers          []models.CampaignTier
	AdminToken     string
	DisableWebhook bool
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithSignatureValidator rejects webhook requests without a valid Twilio signature.
func WithSignatureValidator(v *twiliowhatsapp.SignatureValidator) Option {
	return func(o *Opts) { o.Validator = v }
}

// WithMetricsHandler serves h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(o *Opts) { o.Metrics = h }
}

// WithAdminToken mounts the customer read-outs and the manual sweep behind
// "Authorization: Bearer <token>". Without a token those routes are not served.
func WithAdminToken(token string) Option {
	return func(o *Opts) { o.AdminToken = token }
}

// WithoutWebhook leaves POST /webhook unmounted, for transports that receive
// messages another way.
func WithoutWebhook() Option {
	return func(o *Opts) { o.DisableWebhook = true }
}

// WithSweeper enables POST /campaign/sweep over tiers.
func WithSweeper(s campaign.Sweeper, tiers []models.CampaignTier) Option {
	return func(o *Opts) {
		o.Sweeper = s
		o.Tiers = tiers
	}
}

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	addr      string
	handler   messaging.InboundHandler
	store     store.Store
	validator *twiliowhatsapp.SignatureValidator
	metrics   http.Handler
	sweeper   campaign.Sweeper
	tiers     []models.CampaignTier
	adminTok  string
	webhook   bool
	router    chi.Router
}

// NewServer creates a Server answering inbound messages with handler.
func NewServer(handler messaging.InboundHandler, st store.Store, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultServerPort}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultServerPort
	}
	s := &Server{
		addr:      cfg.Addr,
		handler:   handler,
		store:     st,
		validator: cfg.Validator,
		metrics:   cfg.Metrics,
		sweeper:   cfg.Sweeper,
		tiers:     cfg.Tiers,
		adminTok:  cfg.AdminToken,
		webhook:   !cfg.DisableWebhook,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	if s.webhook {
		r.Post("/webhook", s.webhookHandler)
	}
	r.Get("/health", s.healthHandler)

	if s.adminTok == "" {
		slog.Warn("Server.routes: no admin token configured, customer and sweep endpoints disabled")
	} else {
		r.Group(func(r chi.Router) {
			r.Use(requireBearer(s.adminTok))
			r.Get("/customers", s.listCustomersHandler)
			r.Get("/customers/{phone}", s.getCustomerHandler)
			if s.sweeper != nil {
				r.Post("/campaign/sweep", s.sweepHandler)
			}
		})
	}
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	return r
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server listening", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("API server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}
	return nil
}
