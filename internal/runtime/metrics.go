package runtime

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics are the host's Prometheus instruments, registered on their own
// registry so tests can build as many as they like.
type Metrics struct {
	Registry *prometheus.Registry

	ResearchRequests *prometheus.CounterVec
	RateLimited      *prometheus.CounterVec
	StageDuration    *prometheus.HistogramVec
	TokensIssued     prometheus.Counter
	LiveTokens       prometheus.Gauge
}

// NewMetrics registers every instrument plus the Go and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		ResearchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "olexi_research_requests_total",
			Help: "Research requests by terminal outcome.",
		}, []string{"outcome"}),
		RateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "olexi_rate_limited_total",
			Help: "Research requests refused by the rate limiter.",
		}, []string{"kind"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "olexi_stage_duration_seconds",
			Help:    "Time spent in each research pipeline stage.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"stage"}),
		TokensIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "olexi_tokens_issued_total",
			Help: "Session tokens issued.",
		}),
		LiveTokens: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "olexi_live_tokens",
			Help: "Unexpired session tokens.",
		}),
	}
	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ResearchRequests,
		m.RateLimited,
		m.StageDuration,
		m.TokensIssued,
		m.LiveTokens,
	)
	return m
}

// ObserveStage records one pipeline stage duration.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}
