// Package metrics wraps Prometheus collectors for relay traffic, cache
// efficiency, stream delivery and wallet payments. Every method is safe on a
// nil *Collector so components can run without metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds one client's metrics on its own registry.
type Collector struct {
	registry *prometheus.Registry

	relayRequests    *prometheus.CounterVec
	relayFailures    *prometheus.CounterVec
	droppedEvents    *prometheus.CounterVec
	connections      prometheus.Gauge
	fetchLatency     *prometheus.HistogramVec
	fetchEvents      *prometheus.CounterVec
	cacheHits        *prometheus.CounterVec
	cacheMisses      *prometheus.CounterVec
	streamDeliveries *prometheus.CounterVec
	payments         *prometheus.CounterVec
}

// NewCollector creates a collector; namespace defaults to "universe".
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "universe"
	}

	c := &Collector{registry: prometheus.NewRegistry()}

	c.relayRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "requests_total",
			Help:      "Subscriptions and publishes sent to relays",
		},
		[]string{"relay", "op"},
	)
	c.relayFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "failures_total",
			Help:      "Failed relay operations",
		},
		[]string{"relay", "op"},
	)
	c.droppedEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "dropped_events_total",
			Help:      "Events dropped because of a full subscriber buffer or a bad signature",
		},
		[]string{"reason"},
	)
	c.connections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "connections",
			Help:      "Open relay websocket connections",
		},
	)
	c.fetchLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "duration_seconds",
			Help:      "Time taken by fetch layer operations",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"op"},
	)
	c.fetchEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "events_total",
			Help:      "Events returned by fetch layer operations",
		},
		[]string{"op"},
	)
	c.cacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Cache hits",
		},
		[]string{"cache"},
	)
	c.cacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Cache misses",
		},
		[]string{"cache"},
	)
	c.streamDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "deliveries_total",
			Help:      "Items delivered to stream consumers",
		},
		[]string{"channel", "type"},
	)
	c.payments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wallet",
			Name:      "payments_total",
			Help:      "Wallet connect payment attempts by result",
		},
		[]string{"result"},
	)

	c.registry.MustRegister(
		c.relayRequests,
		c.relayFailures,
		c.droppedEvents,
		c.connections,
		c.fetchLatency,
		c.fetchEvents,
		c.cacheHits,
		c.cacheMisses,
		c.streamDeliveries,
		c.payments,
	)

	return c
}

// Registry returns the Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordRelayRequest counts a relay operation and its failure, if any.
func (c *Collector) RecordRelayRequest(relay, op string, err error) {
	if c == nil {
		return
	}
	c.relayRequests.WithLabelValues(relay, op).Inc()
	if err != nil {
		c.relayFailures.WithLabelValues(relay, op).Inc()
	}
}

func (c *Collector) RecordDroppedEvent(reason string) {
	if c == nil {
		return
	}
	c.droppedEvents.WithLabelValues(reason).Inc()
}

func (c *Collector) SetConnections(n int) {
	if c == nil {
		return
	}
	c.connections.Set(float64(n))
}

// RecordFetch records latency and result size of a fetch operation.
func (c *Collector) RecordFetch(op string, duration time.Duration, events int) {
	if c == nil {
		return
	}
	c.fetchLatency.WithLabelValues(op).Observe(duration.Seconds())
	c.fetchEvents.WithLabelValues(op).Add(float64(events))
}

func (c *Collector) CacheHit(cache string) {
	if c == nil {
		return
	}
	c.cacheHits.WithLabelValues(cache).Inc()
}

func (c *Collector) CacheMiss(cache string) {
	if c == nil {
		return
	}
	c.cacheMisses.WithLabelValues(cache).Inc()
}

// RecordDelivery counts an item ("event" or "eose") handed to a stream consumer.
func (c *Collector) RecordDelivery(channel, typ string) {
	if c == nil {
		return
	}
	c.streamDeliveries.WithLabelValues(channel, typ).Inc()
}

// RecordPayment counts a payment outcome: paid, failed, timeout or error.
func (c *Collector) RecordPayment(result string) {
	if c == nil {
		return
	}
	c.payments.WithLabelValues(result).Inc()
}
