package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Submission outcomes recorded by the submissions counter.
const (
	outcomeAccepted  = "accepted"
	outcomeInvalid   = "invalid"
	outcomeDuplicate = "duplicate"
	outcomeUnknown   = "unknown_session"
	outcomeInactive  = "inactive"
	outcomeFailed    = "storage_error"
)

// Metrics holds the service counters on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	Submissions    *prometheus.CounterVec
	SessionsOpened prometheus.Counter
	FormsPublished prometheus.Counter
	FormsRemoved   prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "churchdesk",
			Name:      "submissions_total",
			Help:      "Form submissions by outcome.",
		}, []string{"outcome"}),
		SessionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "churchdesk",
			Name:      "sessions_opened_total",
			Help:      "Fill sessions opened through the public endpoint.",
		}),
		FormsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "churchdesk",
			Name:      "forms_published_total",
			Help:      "Forms published.",
		}),
		FormsRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "churchdesk",
			Name:      "forms_removed_total",
			Help:      "Forms deleted.",
		}),
	}
	m.registry.MustRegister(
		m.Submissions,
		m.SessionsOpened,
		m.FormsPublished,
		m.FormsRemoved,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
