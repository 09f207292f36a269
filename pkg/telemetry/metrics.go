package telemetry

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/covenantdao/covenant/pkg/engine"
)

var _ engine.Metrics = (*Metrics)(nil)

// Metrics provides Prometheus metrics for the governance engine.
type Metrics struct {
	config MetricsConfig
	logger zerolog.Logger

	// Operation metrics
	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec

	// Voting metrics
	votes       *prometheus.CounterVec
	voteWeight  *prometheus.CounterVec
	signatures  *prometheus.CounterVec
	proposals   prometheus.Counter
	actionsDone *prometheus.CounterVec

	// Error metrics
	errorsByClass *prometheus.CounterVec
	errorsByCode  *prometheus.CounterVec

	// Event metrics
	eventsDropped prometheus.Counter

	registry *prometheus.Registry
	server   *http.Server
}

// NewMetrics creates a new metrics collector with the given configuration.
// A disabled configuration yields a collector whose methods do nothing.
func NewMetrics(cfg MetricsConfig, logger zerolog.Logger) (*Metrics, error) {
	logger = logger.With().Str("component", "metrics").Logger()
	if !cfg.Enabled {
		return &Metrics{config: cfg, logger: logger}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		logger:   logger,
		registry: registry,

		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of governance operations by outcome",
			},
			[]string{"operation", "outcome"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of governance operations in seconds",
				Buckets:   buckets,
			},
			[]string{"operation"},
		),

		votes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "votes_total",
				Help:      "Total number of votes cast",
			},
			[]string{"type"},
		),
		voteWeight: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "vote_weight_total",
				Help:      "Total vote weight cast",
			},
			[]string{"type"},
		),
		signatures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "signatures_total",
				Help:      "Total number of role signatures",
			},
			[]string{"role"},
		),
		proposals: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "proposals_created_total",
				Help:      "Total number of proposals created",
			},
		),
		actionsDone: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actions_executed_total",
				Help:      "Total number of actions executed",
			},
			[]string{"target"},
		),

		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_code_total",
				Help:      "Total number of errors by error code",
			},
			[]string{"code"},
		),

		eventsDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_dropped_total",
				Help:      "Total number of governance events dropped because the buffer was full",
			},
		),
	}

	registry.MustRegister(
		m.operations,
		m.operationDuration,
		m.votes,
		m.voteWeight,
		m.signatures,
		m.proposals,
		m.actionsDone,
		m.errorsByClass,
		m.errorsByCode,
		m.eventsDropped,
	)

	return m, nil
}

// RecordOperation records the outcome and duration of a governance operation.
func (m *Metrics) RecordOperation(operation, outcome string, duration time.Duration) {
	if m.operations == nil {
		return
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordVote counts a vote and adds its weight.
func (m *Metrics) RecordVote(voteType engine.VoteType, weight *big.Int) {
	if m.votes == nil {
		return
	}
	m.votes.WithLabelValues(string(voteType)).Inc()
	if weight != nil && weight.Sign() > 0 {
		f, _ := new(big.Float).SetInt(weight).Float64()
		m.voteWeight.WithLabelValues(string(voteType)).Add(f)
	}
}

// RecordSignature counts a signature made on behalf of role.
func (m *Metrics) RecordSignature(role string) {
	if m.signatures == nil {
		return
	}
	m.signatures.WithLabelValues(role).Inc()
}

// RecordProposalCreated counts a new proposal.
func (m *Metrics) RecordProposalCreated() {
	if m.proposals == nil {
		return
	}
	m.proposals.Inc()
}

// RecordActionExecuted counts an executed action. target is "self" for registry calls.
func (m *Metrics) RecordActionExecuted(target string) {
	if m.actionsDone == nil {
		return
	}
	m.actionsDone.WithLabelValues(target).Inc()
}

// RecordError records an error by class and optionally by code.
func (m *Metrics) RecordError(class, code string) {
	if m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(class).Inc()
	if code != "" {
		m.errorsByCode.WithLabelValues(code).Inc()
	}
}

// RecordEventDropped counts an event the publisher could not buffer.
func (m *Metrics) RecordEventDropped() {
	if m.eventsDropped == nil {
		return
	}
	m.eventsDropped.Inc()
}

// Registry returns the Prometheus registry, or nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server exposing the metrics endpoint.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	m.server = &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error().Err(err).Str("address", m.config.ListenAddress).Msg("Metrics server failed")
		}
	}()

	m.logger.Info().
		Str("address", m.config.ListenAddress).
		Str("path", path).
		Msg("Metrics server started")

	return nil
}

// Shutdown stops the metrics server if it was started.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}
