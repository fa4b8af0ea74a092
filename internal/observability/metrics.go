package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics of the synchronization core. It
// implements store.Metrics, feed.Metrics and gateway.Metrics.
type Collector struct {
	// Registry for this collector instance
	registry *prometheus.Registry

	// Store metrics
	OpsApplied    *prometheus.CounterVec
	OpsDropped    *prometheus.CounterVec
	SnapshotNodes prometheus.Gauge
	SnapshotEdges prometheus.Gauge

	// Feed metrics
	FeedEvents       *prometheus.CounterVec
	FeedDecodeErrors *prometheus.CounterVec

	// Gateway metrics
	GatewayCalls    *prometheus.CounterVec
	GatewayDuration *prometheus.HistogramVec

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Snapshot push metrics
	WSClients prometheus.Gauge
}

// NewCollector creates a collector with its own registry, so several can
// coexist in one process (tests, multiple stores).
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,

		OpsApplied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "operations_applied_total",
				Help:      "Operations that changed the snapshot, by kind",
			},
			[]string{"kind"},
		),
		OpsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "operations_dropped_total",
				Help:      "Operations dropped because their workspace was not active",
			},
			[]string{"kind", "reason"},
		),
		SnapshotNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "snapshot_nodes",
			Help:      "Nodes in the current snapshot",
		}),
		SnapshotEdges: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "snapshot_edges",
			Help:      "Edges in the current snapshot",
		}),

		FeedEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "feed",
				Name:      "events_total",
				Help:      "Change feed events forwarded to the store",
			},
			[]string{"table", "event", "applied"},
		),
		FeedDecodeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "feed",
				Name:      "decode_errors_total",
				Help:      "Change feed events that could not be decoded",
			},
			[]string{"table"},
		),

		GatewayCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "calls_total",
				Help:      "Gateway calls by operation and outcome",
			},
			[]string{"operation", "status"},
		),
		GatewayDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "call_duration_seconds",
				Help:      "Gateway call latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "clients",
			Help:      "Connected snapshot push clients",
		}),
	}

	registry.MustRegister(
		c.OpsApplied, c.OpsDropped, c.SnapshotNodes, c.SnapshotEdges,
		c.FeedEvents, c.FeedDecodeErrors,
		c.GatewayCalls, c.GatewayDuration,
		c.HTTPRequests, c.HTTPDuration,
		c.WSClients,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the registry the metrics live in.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// OperationApplied implements store.Metrics.
func (c *Collector) OperationApplied(kind string) {
	c.OpsApplied.WithLabelValues(kind).Inc()
}

// OperationDropped implements store.Metrics.
func (c *Collector) OperationDropped(kind, reason string) {
	c.OpsDropped.WithLabelValues(kind, reason).Inc()
}

// SnapshotSize implements store.Metrics.
func (c *Collector) SnapshotSize(nodes, edges int) {
	c.SnapshotNodes.Set(float64(nodes))
	c.SnapshotEdges.Set(float64(edges))
}

// FeedEvent implements feed.Metrics.
func (c *Collector) FeedEvent(table, event string, applied bool) {
	c.FeedEvents.WithLabelValues(table, event, strconv.FormatBool(applied)).Inc()
}

// FeedDecodeError implements feed.Metrics.
func (c *Collector) FeedDecodeError(table string) {
	c.FeedDecodeErrors.WithLabelValues(table).Inc()
}

// GatewayCall implements gateway.Metrics.
func (c *Collector) GatewayCall(operation, status string, elapsed time.Duration) {
	c.GatewayCalls.WithLabelValues(operation, status).Inc()
	c.GatewayDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// HTTPRequest records one served request.
func (c *Collector) HTTPRequest(method, route string, status int, elapsed time.Duration) {
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ClientConnected and ClientDisconnected track snapshot push clients.
func (c *Collector) ClientConnected()    { c.WSClients.Inc() }
func (c *Collector) ClientDisconnected() { c.WSClients.Dec() }
