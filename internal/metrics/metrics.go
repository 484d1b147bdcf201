// Package metrics exposes Prometheus instrumentation for the streaming client.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the stream counters. A nil *Collector is valid and records
// nothing, so callers never need to guard their instrumentation sites.
type Collector struct {
	eventsTotal        *prometheus.CounterVec
	reconnectsTotal    prometheus.Counter
	tokensEmittedTotal prometheus.Counter
	parseErrorsTotal   prometheus.Counter
}

// NewCollector registers the stream metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentstream",
			Name:      "events_total",
			Help:      "Stream events received, by event type.",
		}, []string{"type"}),
		reconnectsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "agentstream",
			Name:      "reconnects_total",
			Help:      "Reconnection attempts after a dropped stream.",
		}),
		tokensEmittedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "agentstream",
			Name:      "tokens_emitted_total",
			Help:      "Tokens released by the pacing buffers.",
		}),
		parseErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "agentstream",
			Name:      "parse_errors_total",
			Help:      "Stream frames that failed to decode.",
		}),
	}
}

// EventReceived records one stream event of the given type.
func (c *Collector) EventReceived(eventType string) {
	if c == nil {
		return
	}
	c.eventsTotal.WithLabelValues(eventType).Inc()
}

// Reconnect records one reconnection attempt.
func (c *Collector) Reconnect() {
	if c == nil {
		return
	}
	c.reconnectsTotal.Inc()
}

// TokensEmitted records n tokens released to a transcript.
func (c *Collector) TokensEmitted(n int) {
	if c == nil {
		return
	}
	c.tokensEmittedTotal.Add(float64(n))
}

// ParseError records one undecodable frame.
func (c *Collector) ParseError() {
	if c == nil {
		return
	}
	c.parseErrorsTotal.Inc()
}
