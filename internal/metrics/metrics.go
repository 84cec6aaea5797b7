package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the pipeline's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	TasksTotal         *prometheus.CounterVec
	TaskRetries        *prometheus.CounterVec
	GenerationsTotal   *prometheus.CounterVec
	GenerationAttempts *prometheus.HistogramVec
	PostsTotal         *prometheus.CounterVec
	NotificationsTotal *prometheus.CounterVec
	TokenRefreshTotal  *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "promoter",
			Name:      "tasks_total",
			Help:      "Finished tasks by name and final status.",
		}, []string{"task", "status"}),
		TaskRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "promoter",
			Name:      "task_retries_total",
			Help:      "Task retries scheduled with backoff.",
		}, []string{"task"}),
		GenerationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "promoter",
			Name:      "generations_total",
			Help:      "Copy generation outcomes by platform.",
		}, []string{"platform", "result"}),
		GenerationAttempts: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "promoter",
			Name:      "generation_attempts",
			Help:      "Provider calls needed per generation.",
			Buckets:   []float64{1, 2, 3, 4, 5},
		}, []string{"platform"}),
		PostsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "promoter",
			Name:      "posts_total",
			Help:      "Posting outcomes by platform.",
		}, []string{"platform", "result"}),
		NotificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "promoter",
			Name:      "notifications_total",
			Help:      "Notification deliveries by channel and result.",
		}, []string{"channel", "result"}),
		TokenRefreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "promoter",
			Name:      "token_refresh_total",
			Help:      "Token refresh attempts by outcome.",
		}, []string{"outcome"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.TasksTotal,
			m.TaskRetries,
			m.GenerationsTotal,
			m.GenerationAttempts,
			m.PostsTotal,
			m.NotificationsTotal,
			m.TokenRefreshTotal,
		)
	}

	return m
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

func (m *Metrics) TaskFinished(task, status string) {
	if m == nil {
		return
	}
	m.TasksTotal.WithLabelValues(task, status).Inc()
}

func (m *Metrics) TaskRetried(task string) {
	if m == nil {
		return
	}
	m.TaskRetries.WithLabelValues(task).Inc()
}

func (m *Metrics) Generation(platform string, ok bool, attempts int) {
	if m == nil {
		return
	}
	m.GenerationsTotal.WithLabelValues(platform, result(ok)).Inc()
	m.GenerationAttempts.WithLabelValues(platform).Observe(float64(attempts))
}

func (m *Metrics) Post(platform string, ok bool) {
	if m == nil {
		return
	}
	m.PostsTotal.WithLabelValues(platform, result(ok)).Inc()
}

func (m *Metrics) Notification(channel string, ok bool) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(channel, result(ok)).Inc()
}

func (m *Metrics) TokenRefresh(outcome string) {
	if m == nil {
		return
	}
	m.TokenRefreshTotal.WithLabelValues(outcome).Inc()
}
