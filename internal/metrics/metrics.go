// Package metrics defines the Prometheus collectors exported by the server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cycle outcomes.
const (
	OutcomePrompted    = "prompted"
	OutcomeRecommended = "recommended"
	OutcomeNotFound    = "not_found"
	OutcomeFailed      = "failed"
	OutcomeSummarized  = "summarized"
	OutcomeNoSummary   = "no_recommendation"
	OutcomeAnalyzed    = "analyzed"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	eventsPushed    *prometheus.CounterVec
	eventsDropped   *prometheus.CounterVec
	channelsOpen    *prometheus.GaugeVec
	cycles          *prometheus.CounterVec
	upstreamLatency *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		eventsPushed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatplan",
			Name:      "events_pushed_total",
			Help:      "Events delivered to push channels.",
		}, []string{"channel", "event"}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatplan",
			Name:      "events_dropped_total",
			Help:      "Events dropped because no channel was bound or the transport failed.",
		}, []string{"channel", "reason"}),
		channelsOpen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "chatplan",
			Name:      "channels_open",
			Help:      "Currently bound push channels.",
		}, []string{"channel"}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatplan",
			Name:      "cycles_total",
			Help:      "Completed dialogue cycles by outcome.",
		}, []string{"outcome"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "chatplan",
			Name:      "upstream_seconds",
			Help:      "Latency of calls to external collaborators.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"upstream", "status"}),
	}
	m.registry.MustRegister(
		m.eventsPushed,
		m.eventsDropped,
		m.channelsOpen,
		m.cycles,
		m.upstreamLatency,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) EventPushed(channel, event string) {
	if m == nil {
		return
	}
	m.eventsPushed.WithLabelValues(channel, event).Inc()
}

func (m *Metrics) EventDropped(channel, reason string) {
	if m == nil {
		return
	}
	m.eventsDropped.WithLabelValues(channel, reason).Inc()
}

func (m *Metrics) ChannelOpened(channel string) {
	if m == nil {
		return
	}
	m.channelsOpen.WithLabelValues(channel).Inc()
}

func (m *Metrics) ChannelClosed(channel string) {
	if m == nil {
		return
	}
	m.channelsOpen.WithLabelValues(channel).Dec()
}

func (m *Metrics) CycleFinished(outcome string) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(outcome).Inc()
}

// ObserveUpstream records one collaborator call.
func (m *Metrics) ObserveUpstream(upstream string, seconds float64, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.upstreamLatency.WithLabelValues(upstream, status).Observe(seconds)
}
