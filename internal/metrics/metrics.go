package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the control loop.
// All methods are safe to call on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	UpdatesReceived  prometheus.Counter
	PollErrors       *prometheus.CounterVec
	Dispatches       *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec
	SendAttempts     *prometheus.CounterVec
	SendFailures     *prometheus.CounterVec
	Running          prometheus.Gauge
}

// New creates and registers all collectors on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		UpdatesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hostctl_updates_received_total",
			Help: "Total number of updates fetched from the chat service",
		}),
		PollErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hostctl_poll_errors_total",
				Help: "Total number of failed update fetches",
			},
			[]string{"kind"},
		),
		Dispatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hostctl_dispatches_total",
				Help: "Total number of dispatched messages by command and outcome",
			},
			[]string{"command", "outcome"},
		),
		DispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hostctl_dispatch_duration_seconds",
				Help:    "Time spent holding the dispatch gate per command",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"command"},
		),
		SendAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hostctl_send_attempts_total",
				Help: "Total number of outbound send attempts by method",
			},
			[]string{"method"},
		),
		SendFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hostctl_send_failures_total",
				Help: "Total number of failed outbound send attempts by method and reason",
			},
			[]string{"method", "reason"},
		),
		Running: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hostctl_running",
			Help: "1 while a polling session is active",
		}),
	}

	registry.MustRegister(
		m.UpdatesReceived,
		m.PollErrors,
		m.Dispatches,
		m.DispatchDuration,
		m.SendAttempts,
		m.SendFailures,
		m.Running,
	)

	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) UpdateReceived() {
	if m == nil {
		return
	}
	m.UpdatesReceived.Inc()
}

func (m *Metrics) PollError(kind string) {
	if m == nil {
		return
	}
	m.PollErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) Dispatched(command, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.Dispatches.WithLabelValues(command, outcome).Inc()
	m.DispatchDuration.WithLabelValues(command).Observe(seconds)
}

func (m *Metrics) SendAttempt(method string) {
	if m == nil {
		return
	}
	m.SendAttempts.WithLabelValues(method).Inc()
}

func (m *Metrics) SendFailure(method, reason string) {
	if m == nil {
		return
	}
	m.SendFailures.WithLabelValues(method, reason).Inc()
}

func (m *Metrics) SetRunning(running bool) {
	if m == nil {
		return
	}
	if running {
		m.Running.Set(1)
		return
	}
	m.Running.Set(0)
}
