package metrics_test

import (
	"net/http/httptest"
	"testing"

	"github.com/srg/boks/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_ExposesCounters(t *testing.T) {
	// GOAL: Verify recorded events appear on the metrics endpoint
	//
	// TEST SCENARIO: record session and write events → scrape handler → metric names present

	c := metrics.New()
	registry, err := c.Registry()
	require.NoError(t, err, "MUST register collectors")

	c.SessionOpened()
	c.Connected("AA", true)
	c.WriteAttempt()
	c.Write("volume", metrics.ResultOK)
	c.Applied("volume", "sent")
	c.Visible(2)
	c.Known(3)

	rec := httptest.NewRecorder()
	metrics.Handler(registry).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()

	assert.Contains(t, body, "boks_sessions_open 1")
	assert.Contains(t, body, `boks_writes_total{characteristic="volume",result="ok"} 1`)
	assert.Contains(t, body, "boks_devices_visible 2")
	assert.Contains(t, body, "boks_devices_known 3")
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *metrics.Collector
	assert.NotPanics(t, func() {
		c.SessionOpened()
		c.SessionClosed("AA")
		c.Write("volume", metrics.ResultError)
		c.Probe(metrics.ResultTimeout)
	}, "nil collector MUST be safe to use")
}
