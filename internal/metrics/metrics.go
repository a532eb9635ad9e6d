// Package metrics exposes Prometheus counters for the win-back campaign and inbound path.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Send outcomes used as the outcome label.
const (
	OutcomeSent   = "sent"
	OutcomeFailed = "failed"
)

// Metrics holds the service counters, registered on its own registry.
type Metrics struct {
	registry           *prometheus.Registry
	sweeps             prometheus.Counter
	sweepDuration      prometheus.Histogram
	sends              *prometheus.CounterVec
	generationFailures prometheus.Counter
	inbound            prometheus.Counter
}

// New registers the counters on registry. A nil registry gets a fresh one.
func New(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		sweeps: factory.NewCounter(prometheus.CounterOpts{
			Name: "winback_sweeps_total",
			Help: "The total number of completed campaign sweeps",
		}),
		sweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "winback_sweep_duration_seconds",
			Help:    "Campaign sweep duration distribution",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		sends: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "winback_campaign_sends_total",
			Help: "The total number of campaign messages by tier and outcome",
		}, []string{"tier", "outcome"}),
		generationFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "winback_generation_failures_total",
			Help: "The total number of replies replaced by the apology",
		}),
		inbound: factory.NewCounter(prometheus.CounterOpts{
			Name: "winback_inbound_messages_total",
			Help: "The total number of inbound customer messages",
		}),
	}
}

// SweepCompleted records one finished sweep.
func (m *Metrics) SweepCompleted(d time.Duration) {
	m.sweeps.Inc()
	m.sweepDuration.Observe(d.Seconds())
}

// CampaignSend records one delivery attempt for a tier.
func (m *Metrics) CampaignSend(thresholdDays int, delivered bool) {
	outcome := OutcomeFailed
	if delivered {
		outcome = OutcomeSent
	}
	m.sends.WithLabelValues(strconv.Itoa(thresholdDays), outcome).Inc()
}

// InboundMessage counts an inbound customer message.
func (m *Metrics) InboundMessage() { m.inbound.Inc() }

// GenerationFailed counts a reply replaced by the apology.
func (m *Metrics) GenerationFailed() { m.generationFailures.Inc() }

// Registry returns the registry the counters live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
