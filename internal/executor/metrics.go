package executor

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports executor progress as Prometheus series.
type Metrics struct {
	attempts  *prometheus.CounterVec
	refreshes *prometheus.CounterVec
	backoff   *prometheus.CounterVec
	outcomes  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opsbridge_api_attempts_total",
			Help: "Upstream API sends by status code (0 = no response).",
		}, []string{"tenant", "operation", "code"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opsbridge_token_refreshes_total",
			Help: "Token refreshes by reason and result.",
		}, []string{"tenant", "reason", "result"}),
		backoff: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opsbridge_backoff_seconds_total",
			Help: "Time spent waiting after rate-limit responses.",
		}, []string{"tenant"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opsbridge_api_outcomes_total",
			Help: "Terminal Execute outcomes.",
		}, []string{"tenant", "operation", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "opsbridge_api_duration_seconds",
			Help:    "Execute wall time including retries and backoff.",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"operation", "outcome"}),
	}
	reg.MustRegister(m.attempts, m.refreshes, m.backoff, m.outcomes, m.duration)
	return m
}

func (m *Metrics) Observe(_ context.Context, ev Event) {
	switch ev.Kind {
	case EventAttempt:
		m.attempts.WithLabelValues(ev.Tenant, ev.Operation, strconv.Itoa(ev.Status)).Inc()
	case EventRefresh:
		result := "ok"
		if ev.Err != nil {
			result = "error"
		}
		m.refreshes.WithLabelValues(ev.Tenant, ev.Reason, result).Inc()
	case EventBackoff:
		m.backoff.WithLabelValues(ev.Tenant).Add(ev.Wait.Seconds())
	case EventDone:
		m.outcomes.WithLabelValues(ev.Tenant, ev.Operation, string(ev.Outcome)).Inc()
		m.duration.WithLabelValues(ev.Operation, string(ev.Outcome)).Observe(ev.Duration.Seconds())
	}
}
