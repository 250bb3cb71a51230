// ABOUTME: Prometheus instruments for authentication outcomes
// ABOUTME: A nil *Metrics is valid and records nothing

package auth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the auth instruments.
type Metrics struct {
	attempts         *prometheus.CounterVec
	duration         *prometheus.HistogramVec
	tokensIssued     prometheus.Counter
	sessionsPromoted prometheus.Counter
}

// NewMetrics registers the auth instruments on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sanctum",
			Name:      "auth_attempts_total",
			Help:      "Authentication attempts by mode and result",
		}, []string{"mode", "result"}),

		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sanctum",
			Name:      "auth_duration_seconds",
			Help:      "Time spent authenticating a request",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"mode"}),

		tokensIssued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sanctum",
			Name:      "tokens_issued_total",
			Help:      "API tokens issued",
		}),

		sessionsPromoted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sanctum",
			Name:      "sessions_promoted_total",
			Help:      "Sessions promoted by a successful login",
		}),
	}
}

func (m *Metrics) observeAttempt(mode Mode, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(string(mode), result).Inc()
	m.duration.WithLabelValues(string(mode)).Observe(elapsed.Seconds())
}

func (m *Metrics) tokenIssued() {
	if m == nil {
		return
	}
	m.tokensIssued.Inc()
}

func (m *Metrics) sessionPromoted() {
	if m == nil {
		return
	}
	m.sessionsPromoted.Inc()
}
