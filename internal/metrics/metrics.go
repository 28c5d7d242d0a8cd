// Package metrics exposes session, write and sync counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Write outcomes.
const (
	ResultOK       = "ok"
	ResultTimeout  = "timeout"
	ResultError    = "error"
	ResultCanceled = "canceled"
)

// Collector holds every boks metric. A nil *Collector is valid and records nothing.
type Collector struct {
	openSessions  prometheus.Gauge
	sessionRefs   *prometheus.GaugeVec
	connected     *prometheus.GaugeVec
	writes        *prometheus.CounterVec
	writeAttempts prometheus.Counter
	applies       *prometheus.CounterVec
	visible       prometheus.Gauge
	known         prometheus.Gauge
	probes        *prometheus.CounterVec
}

// New creates the collectors. Register them with Describe/Collect or via Registry.
func New() *Collector {
	return &Collector{
		openSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "boks_sessions_open",
			Help: "Physical GATT sessions currently held by the pool",
		}),
		sessionRefs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "boks_session_refs",
			Help: "Logical holders per pooled session",
		}, []string{"address"}),
		connected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "boks_session_connected",
			Help: "Link state per session (1=connected, 0=disconnected)",
		}, []string{"address"}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boks_writes_total",
			Help: "Characteristic writes by outcome",
		}, []string{"characteristic", "result"}),
		writeAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "boks_write_attempts_total",
			Help: "Characteristic write attempts including retries",
		}),
		applies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boks_config_applies_total",
			Help: "Config field applications by outcome (sent, skipped, failed)",
		}, []string{"field", "result"}),
		visible: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "boks_devices_visible",
			Help: "Speakers in the current discovery output",
		}),
		known: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "boks_devices_known",
			Help: "Speakers remembered between discovery cycles",
		}),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boks_probes_total",
			Help: "Discovery probes by outcome",
		}, []string{"result"}),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.openSessions.Describe(ch)
	c.sessionRefs.Describe(ch)
	c.connected.Describe(ch)
	c.writes.Describe(ch)
	c.writeAttempts.Describe(ch)
	c.applies.Describe(ch)
	c.visible.Describe(ch)
	c.known.Describe(ch)
	c.probes.Describe(ch)
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.openSessions.Collect(ch)
	c.sessionRefs.Collect(ch)
	c.connected.Collect(ch)
	c.writes.Collect(ch)
	c.writeAttempts.Collect(ch)
	c.applies.Collect(ch)
	c.visible.Collect(ch)
	c.known.Collect(ch)
	c.probes.Collect(ch)
}

// Registry returns a fresh registry with the collector and Go runtime metrics.
func (c *Collector) Registry() (*prometheus.Registry, error) {
	registry := prometheus.NewRegistry()
	if err := registry.Register(c); err != nil {
		return nil, err
	}
	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}
	return registry, nil
}

// Handler exposes the registry.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	c.openSessions.Inc()
}

func (c *Collector) SessionClosed(address string) {
	if c == nil {
		return
	}
	c.openSessions.Dec()
	c.sessionRefs.DeleteLabelValues(address)
	c.connected.DeleteLabelValues(address)
}

func (c *Collector) SessionRefs(address string, refs int) {
	if c == nil {
		return
	}
	c.sessionRefs.WithLabelValues(address).Set(float64(refs))
}

func (c *Collector) Connected(address string, connected bool) {
	if c == nil {
		return
	}
	v := 0.0
	if connected {
		v = 1
	}
	c.connected.WithLabelValues(address).Set(v)
}

func (c *Collector) WriteAttempt() {
	if c == nil {
		return
	}
	c.writeAttempts.Inc()
}

func (c *Collector) Write(characteristic, result string) {
	if c == nil {
		return
	}
	c.writes.WithLabelValues(characteristic, result).Inc()
}

func (c *Collector) Applied(field, result string) {
	if c == nil {
		return
	}
	c.applies.WithLabelValues(field, result).Inc()
}

func (c *Collector) Visible(n int) {
	if c == nil {
		return
	}
	c.visible.Set(float64(n))
}

func (c *Collector) Known(n int) {
	if c == nil {
		return
	}
	c.known.Set(float64(n))
}

func (c *Collector) Probe(result string) {
	if c == nil {
		return
	}
	c.probes.WithLabelValues(result).Inc()
}
