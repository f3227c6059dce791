// Package metrics exposes the bot's Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Result labels.
const (
	ResultSuccess = "success"
	ResultSkipped = "skipped"
	ResultError   = "error"
)

// Metrics holds all Prometheus metrics of the bot.
type Metrics struct {
	Registry *prometheus.Registry

	FetchCycles         *prometheus.CounterVec
	RankedVideos        prometheus.Gauge
	Publishes           *prometheus.CounterVec
	RenderSeconds       *prometheus.HistogramVec
	CircuitBreakerState *prometheus.GaugeVec
	QuotaUsed           prometheus.Gauge
}

// New registers every collector on a fresh registry, together with the Go
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		FetchCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "topmusic_fetch_cycles_total",
			Help: "Fetch cycles by result.",
		}, []string{"result"}),
		RankedVideos: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "topmusic_ranked_videos",
			Help: "Videos ranked by the last fetch cycle.",
		}),
		Publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "topmusic_publish_total",
			Help: "Publish attempts by platform and result.",
		}, []string{"platform", "result"}),
		RenderSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "topmusic_render_seconds",
			Help:    "Duration of render stages.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 180, 600},
		}, []string{"stage"}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "topmusic_circuit_breaker_state",
			Help: "Circuit breaker state: 0 closed, 1 half-open, 2 open.",
		}, []string{"name"}),
		QuotaUsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "topmusic_youtube_quota_used",
			Help: "YouTube API units used in the current quota day.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.FetchCycles,
		m.RankedVideos,
		m.Publishes,
		m.RenderSeconds,
		m.CircuitBreakerState,
		m.QuotaUsed,
	)
	return m
}

// ObserveRender records a render stage duration. Safe on a nil receiver.
func (m *Metrics) ObserveRender(stage string, started time.Time) {
	if m == nil {
		return
	}
	m.RenderSeconds.WithLabelValues(stage).Observe(time.Since(started).Seconds())
}

func (m *Metrics) FetchCycle(result string) {
	if m == nil {
		return
	}
	m.FetchCycles.WithLabelValues(result).Inc()
}

func (m *Metrics) Ranked(n int) {
	if m == nil {
		return
	}
	m.RankedVideos.Set(float64(n))
}

func (m *Metrics) Publish(platform, result string) {
	if m == nil {
		return
	}
	m.Publishes.WithLabelValues(platform, result).Inc()
}

// BreakerState maps a circuit breaker state name to the gauge value.
func (m *Metrics) BreakerState(name, state string) {
	if m == nil {
		return
	}
	value := 0.0
	switch state {
	case "HALF_OPEN":
		value = 1
	case "OPEN":
		value = 2
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(value)
}

func (m *Metrics) Quota(used int) {
	if m == nil {
		return
	}
	m.QuotaUsed.Set(float64(used))
}
