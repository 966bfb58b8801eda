// Package metrics exposes Prometheus collectors for the hub.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "roomhub"

// Collector groups the hub's metrics. A nil *Collector is valid and records
// nothing, so components can take one unconditionally.
type Collector struct {
	connections      prometheus.Gauge
	topics           prometheus.Gauge
	frames           *prometheus.CounterVec
	broadcasts       prometheus.Counter
	deliveries       prometheus.Counter
	deliveryFailures prometheus.Counter
	evictions        *prometheus.CounterVec
	dispatchErrors   *prometheus.CounterVec
	hookDrops        prometheus.Counter
}

// NewCollector creates the collectors and registers them with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "connections",
			Help:      "Currently registered connections.",
		}),
		topics: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "topics",
			Help:      "Topics with at least one subscriber.",
		}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "frames_total",
			Help:      "Inbound frames by message type.",
		}, []string{"type"}),
		broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "broadcasts_total",
			Help:      "Messages fanned out to a topic.",
		}),
		deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "deliveries_total",
			Help:      "Frames handed to a transport successfully.",
		}),
		deliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "delivery_failures_total",
			Help:      "Frames a transport refused.",
		}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "evictions_total",
			Help:      "Connections removed by the hub rather than by the client.",
		}, []string{"reason"}),
		dispatchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "errors_total",
			Help:      "Error replies sent to clients by code.",
		}, []string{"code"}),
		hookDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "persistence",
			Name:      "dropped_total",
			Help:      "Messages the persistence queue dropped because it was full.",
		}),
	}

	reg.MustRegister(
		c.connections,
		c.topics,
		c.frames,
		c.broadcasts,
		c.deliveries,
		c.deliveryFailures,
		c.evictions,
		c.dispatchErrors,
		c.hookDrops,
	)
	return c
}

// NewRegistry returns a registry preloaded with the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (c *Collector) SetConnections(n int) {
	if c == nil {
		return
	}
	c.connections.Set(float64(n))
}

func (c *Collector) SetTopics(n int) {
	if c == nil {
		return
	}
	c.topics.Set(float64(n))
}

func (c *Collector) InboundFrame(msgType string) {
	if c == nil {
		return
	}
	if msgType == "" {
		msgType = "invalid"
	}
	c.frames.WithLabelValues(msgType).Inc()
}

func (c *Collector) Broadcast(delivered, failed int) {
	if c == nil {
		return
	}
	c.broadcasts.Inc()
	c.deliveries.Add(float64(delivered))
	c.deliveryFailures.Add(float64(failed))
}

func (c *Collector) Delivered() {
	if c == nil {
		return
	}
	c.deliveries.Inc()
}

func (c *Collector) DeliveryFailed() {
	if c == nil {
		return
	}
	c.deliveryFailures.Inc()
}

func (c *Collector) Evicted(reason string) {
	if c == nil {
		return
	}
	c.evictions.WithLabelValues(reason).Inc()
}

func (c *Collector) DispatchError(code string) {
	if c == nil {
		return
	}
	c.dispatchErrors.WithLabelValues(code).Inc()
}

func (c *Collector) HookDropped() {
	if c == nil {
		return
	}
	c.hookDrops.Inc()
}

// HookDrops exposes the drop counter for tests and health reporting.
func (c *Collector) HookDrops() prometheus.Counter {
	return c.hookDrops
}
