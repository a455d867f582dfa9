package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder records funnel metrics in Prometheus.
type Recorder struct {
	registry          *prometheus.Registry
	exchangesTotal    *prometheus.CounterVec
	exchangeDuration  *prometheus.HistogramVec
	phaseTransitions  *prometheus.CounterVec
	activeSessions    prometheus.Gauge
	progressFallbacks prometheus.Counter
	progressTerminal  *prometheus.CounterVec
	voiceCaptures     *prometheus.CounterVec
}

// NewRecorder creates a recorder with its own registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		exchangesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "interview_exchanges_total",
				Help: "Interview message submissions by outcome",
			},
			[]string{"outcome"},
		),
		exchangeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "interview_exchange_duration_seconds",
				Help:    "Duration of reasoning round trips",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		phaseTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "interview_phase_transitions_total",
				Help: "Interview phase transitions",
			},
			[]string{"from", "to"},
		),
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "interview_active_sessions",
			Help: "Interview sessions held in memory",
		}),
		progressFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "report_progress_fallbacks_total",
			Help: "Progress monitors that switched to the simulated timeline",
		}),
		progressTerminal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "report_progress_terminal_total",
				Help: "Progress monitors reaching a terminal state",
			},
			[]string{"state", "source"},
		),
		voiceCaptures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "interview_voice_captures_total",
				Help: "Voice captures by outcome",
			},
			[]string{"outcome"},
		),
	}
}

// ObserveExchange records one submission. duration is zero for submissions
// that never reached the network.
func (r *Recorder) ObserveExchange(outcome string, duration time.Duration) {
	r.exchangesTotal.WithLabelValues(outcome).Inc()
	if duration > 0 {
		r.exchangeDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	}
}

// ObservePhaseTransition records a phase change.
func (r *Recorder) ObservePhaseTransition(from, to string) {
	r.phaseTransitions.WithLabelValues(from, to).Inc()
}

// SetActiveSessions reports the number of in-memory sessions.
func (r *Recorder) SetActiveSessions(n int) {
	r.activeSessions.Set(float64(n))
}

// IncProgressFallback records a switch to the simulated timeline.
func (r *Recorder) IncProgressFallback() {
	r.progressFallbacks.Inc()
}

// ObserveProgressTerminal records a monitor reaching a terminal state.
func (r *Recorder) ObserveProgressTerminal(state, source string) {
	r.progressTerminal.WithLabelValues(state, source).Inc()
}

// ObserveVoiceCapture records the outcome of one voice capture.
func (r *Recorder) ObserveVoiceCapture(outcome string) {
	r.voiceCaptures.WithLabelValues(outcome).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the registry for tests and custom exporters.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}
