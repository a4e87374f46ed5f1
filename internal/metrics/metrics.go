// Package metrics exposes Prometheus collectors for the sync engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/models"
	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/shared"
)

const namespace = "socialsync"

// Metrics holds every collector on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	TaskTransitions  *prometheus.CounterVec
	TaskDuration     *prometheus.HistogramVec
	ProviderCalls    *prometheus.CounterVec
	LimiterWait      prometheus.Histogram
	Notifications    *prometheus.CounterVec
	ScheduledRounds  *prometheus.CounterVec
	TasksByState     *prometheus.GaugeVec
	ActiveExecutions prometheus.Gauge
}

// New registers the collectors, along with the Go and process collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		TaskTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_transitions_total",
			Help:      "Task state transitions by platform, target state and error kind",
		}, []string{"platform", "state", "kind"}),
		TaskDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_attempt_duration_seconds",
			Help:      "Duration of one task attempt from claim to outcome",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"platform", "outcome"}),
		ProviderCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_calls_total",
			Help:      "Provider calls by platform, operation and outcome",
		}, []string{"platform", "op", "outcome"}),
		LimiterWait: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rate_limiter_wait_seconds",
			Help:      "Time spent waiting for rate limiter tokens",
			Buckets:   []float64{0, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admin_notifications_total",
			Help:      "Admin notifications sent by error kind",
		}, []string{"kind"}),
		ScheduledRounds: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_requests_total",
			Help:      "Scheduled sync requests by result",
		}, []string{"result"}),
		TasksByState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tasks",
			Help:      "Tasks in the store by state",
		}, []string{"state"}),
		ActiveExecutions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_executions",
			Help:      "Task attempts currently running",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveTransition counts a task moving to state.
func (m *Metrics) ObserveTransition(platform models.Platform, state models.TaskState, kind shared.ErrorKind) {
	m.TaskTransitions.WithLabelValues(platform.String(), state.String(), string(kind)).Inc()
}

// ObserveAttempt records how long an attempt took and how it ended.
func (m *Metrics) ObserveAttempt(platform models.Platform, outcome string, d time.Duration) {
	m.TaskDuration.WithLabelValues(platform.String(), outcome).Observe(d.Seconds())
}

// ObserveCall has the shape of a fetcher call observer.
func (m *Metrics) ObserveCall(platform models.Platform, op string, kind shared.ErrorKind) {
	outcome := string(kind)
	if kind == shared.KindNone {
		outcome = "ok"
	}
	m.ProviderCalls.WithLabelValues(platform.String(), op, outcome).Inc()
}

// ObserveWait has the shape of a rate limiter wait observer.
func (m *Metrics) ObserveWait(d time.Duration) {
	m.LimiterWait.Observe(d.Seconds())
}

// ObserveNotification counts an admin notification.
func (m *Metrics) ObserveNotification(kind shared.ErrorKind) {
	m.Notifications.WithLabelValues(string(kind)).Inc()
}

// SetTaskCounts replaces the per-state gauge values.
func (m *Metrics) SetTaskCounts(counts map[models.TaskState]int) {
	for _, s := range []models.TaskState{models.StatePending, models.StateStarted, models.StateSuccess, models.StateFailure, models.StateRevoked} {
		m.TasksByState.WithLabelValues(s.String()).Set(float64(counts[s]))
	}
}

// TrackExecution counts a running attempt until the returned func is called.
func (m *Metrics) TrackExecution() func() {
	m.ActiveExecutions.Inc()
	return m.ActiveExecutions.Dec
}

// ObserveSchedule counts the outcome of one scheduler round.
func (m *Metrics) ObserveSchedule(requested, skipped, failed int) {
	m.ScheduledRounds.WithLabelValues("requested").Add(float64(requested))
	m.ScheduledRounds.WithLabelValues("skipped").Add(float64(skipped))
	m.ScheduledRounds.WithLabelValues("failed").Add(float64(failed))
}
