package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Session outcomes used as the outcome label.
const (
	OutcomeCompleted  = "completed"
	OutcomeFailed     = "failed"
	OutcomeCancelled  = "cancelled"
	OutcomeOpenFailed = "open_failed"
)

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name:        "schmackofatz_build_info",
			Help:        "Build information for the recipe server",
			ConstLabels: prometheus.Labels{"component": "server"},
		},
		[]string{"date", "sha", "version"},
	)

	sessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schmackofatz_relay_sessions_total",
			Help: "Relay sessions by language and terminal outcome",
		},
		[]string{"language", "outcome"},
	)

	sessionsInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "schmackofatz_relay_sessions_inflight",
			Help: "Relay sessions currently streaming",
		},
	)

	fragmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schmackofatz_relay_fragments_total",
			Help: "Fragments delivered to clients",
		},
		[]string{"language"},
	)

	sessionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "schmackofatz_relay_session_duration_seconds",
			Help:    "Time from upstream open to terminal state",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		},
		[]string{"language"},
	)
)

// Register registers all recipe server metrics on r.
func Register(r prometheus.Registerer) {
	r.MustRegister(buildInfo, sessionsTotal, sessionsInflight, fragmentsTotal, sessionDuration)
}

// SetServerBuildInfo sets the build info metric for the server.
func SetServerBuildInfo(version, sha, date string) {
	buildInfo.WithLabelValues(date, sha, version).Set(1)
}

// SessionStarted marks a session whose upstream opened successfully.
func SessionStarted() { sessionsInflight.Inc() }

// SessionOpenFailed counts a session that never reached the upstream stream.
func SessionOpenFailed(language string) {
	sessionsTotal.WithLabelValues(language, OutcomeOpenFailed).Inc()
}

// SessionFinished records the terminal outcome of a started session.
func SessionFinished(language, outcome string, fragments int64, dur time.Duration) {
	sessionsInflight.Dec()
	sessionsTotal.WithLabelValues(language, outcome).Inc()
	if fragments > 0 {
		fragmentsTotal.WithLabelValues(language).Add(float64(fragments))
	}
	sessionDuration.WithLabelValues(language).Observe(dur.Seconds())
}
