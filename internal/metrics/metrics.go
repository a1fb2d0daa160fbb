// Package metrics holds the Prometheus collectors recorded by the analyzer.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rs/zerolog"

	"market-twin/internal/analysis"
)

// Metrics holds all Prometheus metrics for the signal engine.
type Metrics struct {
	registry *prometheus.Registry

	EvaluationsTotal *prometheus.CounterVec // labels: outcome=ok|error
	EvaluateDur      prometheus.Histogram
	SignalsTotal     *prometheus.CounterVec // labels: direction
	VerdictsTotal    *prometheus.CounterVec // labels: tier
	AdjustmentsTotal *prometheus.CounterVec // labels: field
	BarsEvaluated    prometheus.Counter
}

// New creates the collectors and registers them on a private registry, so
// several analyzers (and tests) never collide on the global one.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		EvaluationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "twin_evaluations_total",
			Help: "Series evaluations by outcome",
		}, []string{"outcome"}),
		EvaluateDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "twin_evaluate_duration_seconds",
			Help:    "Latency of one full series evaluation",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "twin_signals_total",
			Help: "Signals emitted by direction",
		}, []string{"direction"}),
		VerdictsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "twin_verdicts_total",
			Help: "Verdicts produced by tier",
		}, []string{"tier"}),
		AdjustmentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "twin_bar_adjustments_total",
			Help: "Malformed bar fields substituted during sanitisation",
		}, []string{"field"}),
		BarsEvaluated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "twin_bars_evaluated_total",
			Help: "Total bars passed through the indicator bank",
		}),
	}

	m.registry.MustRegister(
		m.EvaluationsTotal,
		m.EvaluateDur,
		m.SignalsTotal,
		m.VerdictsTotal,
		m.AdjustmentsTotal,
		m.BarsEvaluated,
	)

	return m
}

// Registry returns the private registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveEvaluation records one successful evaluation.
func (m *Metrics) ObserveEvaluation(bars int, dur time.Duration, signals []analysis.Signal, verdict analysis.Verdict) {
	if m == nil {
		return
	}
	m.EvaluationsTotal.WithLabelValues("ok").Inc()
	m.EvaluateDur.Observe(dur.Seconds())
	m.BarsEvaluated.Add(float64(bars))
	for _, s := range signals {
		m.SignalsTotal.WithLabelValues(string(s.Direction)).Inc()
	}
	m.VerdictsTotal.WithLabelValues(string(verdict.Tier)).Inc()
}

// ObserveFailure records an evaluation that returned an error.
func (m *Metrics) ObserveFailure() {
	if m == nil {
		return
	}
	m.EvaluationsTotal.WithLabelValues("error").Inc()
}

// ObserveAdjustment records one sanitised bar field.
func (m *Metrics) ObserveAdjustment(field string) {
	if m == nil {
		return
	}
	m.AdjustmentsTotal.WithLabelValues(field).Inc()
}

// Server exposes /metrics and /healthz over HTTP.
type Server struct {
	addr   string
	srv    *http.Server
	logger zerolog.Logger
}

// NewServer creates a metrics server for m on addr.
func NewServer(addr string, m *Metrics, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		s.logger.Info().Str("addr", s.addr).Msg("Metrics server listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
