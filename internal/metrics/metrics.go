// Package metrics exposes prometheus instrumentation for the intent core.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// UtterancesMatched counts resolved utterances by winning service.
	UtterancesMatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "aura", Subsystem: "intent", Name: "matched_total", Help: "Resolved utterances by winning matcher service."},
		[]string{"service"},
	)

	// IntentFailures counts utterances no matcher could handle.
	IntentFailures = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "aura", Subsystem: "intent", Name: "failures_total", Help: "Utterances that ended in complete_intent_failure."},
	)

	// ResolutionSeconds observes end-to-end pipeline latency.
	ResolutionSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{Namespace: "aura", Subsystem: "intent", Name: "resolution_seconds", Help: "Utterance resolution wall time.",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}},
	)

	// ActiveSkills tracks the size of the converse registry.
	ActiveSkills = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "aura", Subsystem: "converse", Name: "active_skills", Help: "Skills currently eligible for converse."},
	)

	// ConverseErrors counts converse protocol errors by kind.
	ConverseErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "aura", Subsystem: "converse", Name: "errors_total", Help: "Converse protocol errors by kind."},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(UtterancesMatched, IntentFailures, ResolutionSeconds, ActiveSkills, ConverseErrors)
}

// Stopwatch measures one operation's wall time.
type Stopwatch struct {
	start time.Time
}

// NewStopwatch starts timing immediately.
func NewStopwatch() *Stopwatch {
	return &Stopwatch{start: time.Now()}
}

// Elapsed returns the time since the stopwatch started.
func (s *Stopwatch) Elapsed() time.Duration {
	return time.Since(s.start)
}

// ObserveResolution records the elapsed time in the resolution histogram and
// returns it.
func (s *Stopwatch) ObserveResolution() time.Duration {
	d := s.Elapsed()
	ResolutionSeconds.Observe(d.Seconds())
	return d
}

// Handler returns the promhttp scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
