package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.EventReceived("content")
	c.EventReceived("content")
	c.EventReceived("heartbeat")
	c.Reconnect()
	c.TokensEmitted(5)
	c.TokensEmitted(3)
	c.ParseError()

	assert.Equal(t, 2.0, testutil.ToFloat64(c.eventsTotal.WithLabelValues("content")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.eventsTotal.WithLabelValues("heartbeat")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.reconnectsTotal))
	assert.Equal(t, 8.0, testutil.ToFloat64(c.tokensEmittedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.parseErrorsTotal))
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	// None of these may panic.
	c.EventReceived("content")
	c.Reconnect()
	c.TokensEmitted(10)
	c.ParseError()
}
