package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Synthesis outcomes recorded by the pipeline.
const (
	SynthesisHit      = "hit"
	SynthesisMiss     = "miss"
	SynthesisFailure  = "failure"
	SynthesisDangling = "dangling"
	SynthesisEmpty    = "empty"
)

// Metrics groups all Prometheus instruments used by the service. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	ActiveCalls       prometheus.Gauge
	CallEvents        *prometheus.CounterVec
	WebhookRequests   *prometheus.CounterVec
	SynthesisRequests *prometheus.CounterVec
	SynthesisLatency  prometheus.Histogram
	AudioEntries      prometheus.Gauge
	AudioEvictions    *prometheus.CounterVec
	BrainRequests     *prometheus.CounterVec
	BrainLatency      prometheus.Histogram

	latency *latencyWindow
}

func NewMetrics(namespace string) *Metrics {
	latencyBuckets := []float64{50, 100, 200, 400, 700, 1000, 1500, 2500, 4000, 8000}
	return &Metrics{
		ActiveCalls: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_calls",
			Help:      "Number of calls currently in progress.",
		}),
		CallEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_events_total",
			Help:      "Call lifecycle events by type.",
		}, []string{"event"}),
		WebhookRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_requests_total",
			Help:      "Telephony webhook requests by route and outcome.",
		}, []string{"route", "outcome"}),
		SynthesisRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesis_requests_total",
			Help:      "Synthesis pipeline requests by outcome.",
		}, []string{"outcome"}),
		SynthesisLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "synthesis_latency_ms",
			Help:      "Latency of upstream text-to-speech calls in milliseconds.",
			Buckets:   latencyBuckets,
		}),
		AudioEntries: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "audio_store_entries",
			Help:      "Audio clips currently held in memory.",
		}),
		AudioEvictions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_evictions_total",
			Help:      "Expired audio clips removed, by reason.",
		}, []string{"reason"}),
		BrainRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "brain_requests_total",
			Help:      "Language-model reply requests by outcome.",
		}, []string{"outcome"}),
		BrainLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "brain_latency_ms",
			Help:      "Latency of language-model replies in milliseconds.",
			Buckets:   latencyBuckets,
		}),
		latency: newLatencyWindow(512),
	}
}

func (m *Metrics) ObserveSynthesis(outcome string) {
	if m == nil {
		return
	}
	m.SynthesisRequests.WithLabelValues(outcome).Inc()
	m.latency.countOutcome(outcome)
}

func (m *Metrics) ObserveSynthesisLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.SynthesisLatency.Observe(float64(d.Milliseconds()))
	m.ObserveTurnStage(StageSynthesis, d)
}

func (m *Metrics) ObserveBrain(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.BrainRequests.WithLabelValues(outcome).Inc()
	m.BrainLatency.Observe(float64(d.Milliseconds()))
	m.ObserveTurnStage(StageBrain, d)
}

func (m *Metrics) ObserveWebhook(route, outcome string) {
	if m == nil {
		return
	}
	m.WebhookRequests.WithLabelValues(route, outcome).Inc()
}

func (m *Metrics) ObserveCallEvent(event string) {
	if m == nil {
		return
	}
	m.CallEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) SetActiveCalls(n int) {
	if m == nil {
		return
	}
	m.ActiveCalls.Set(float64(n))
}

func (m *Metrics) SetAudioEntries(n int) {
	if m == nil {
		return
	}
	m.AudioEntries.Set(float64(n))
}

func (m *Metrics) ObserveEvictions(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.AudioEvictions.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) ObserveTurnStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.latency.observe(stage, d)
}

// LatencySnapshot returns rolling latency percentiles for each call-turn stage.
func (m *Metrics) LatencySnapshot() LatencySnapshot {
	if m == nil {
		return LatencySnapshot{GeneratedAt: time.Now().UTC()}
	}
	return m.latency.snapshot()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
