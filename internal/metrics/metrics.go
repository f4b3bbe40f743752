// Package metrics provides Prometheus telemetry for the sync client:
// transport requests and retries, token refreshes, replay passes and
// journal depth.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what the transport, journal and engine report to.
// Implemented by Collector and NoOpCollector.
type Recorder interface {
	RecordRequest(method string, status int, duration time.Duration)
	RecordRetry(method string)
	RecordRefresh(err error)
	RecordSyncPass(sent int, duration time.Duration, err error)
	RecordRecordSynced(objectKind string)
	RecordJournalDepth(depth int)
}

// Collector records into its own Prometheus registry.
type Collector struct {
	registry *prometheus.Registry

	requestsTotal  *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	retriesTotal   *prometheus.CounterVec
	refreshesTotal *prometheus.CounterVec
	passesTotal    *prometheus.CounterVec
	passLatency    prometheus.Histogram
	recordsSynced  *prometheus.CounterVec
	journalDepth   prometheus.Gauge
}

// NewCollector creates a collector. An empty namespace defaults to "fieldsync".
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "fieldsync"
	}

	c := &Collector{registry: prometheus.NewRegistry()}

	c.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "requests_total",
			Help:      "HTTP requests sent to the remote service, by method and status (0 = network error)",
		},
		[]string{"method", "status"},
	)

	c.requestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "request_duration_seconds",
			Help:      "Latency of single HTTP attempts",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"method"},
	)

	c.retriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "retries_total",
			Help:      "Retried HTTP attempts after a transient failure",
		},
		[]string{"method"},
	)

	c.refreshesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "refreshes_total",
			Help:      "Access token refreshes, by result",
		},
		[]string{"result"},
	)

	c.passesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "passes_total",
			Help:      "Journal replay passes, by result",
		},
		[]string{"result"},
	)

	c.passLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "pass_duration_seconds",
			Help:      "Duration of journal replay passes",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		},
	)

	c.recordsSynced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "records_total",
			Help:      "Journal records confirmed by the remote service, by object kind",
		},
		[]string{"object_kind"},
	)

	c.journalDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "depth",
			Help:      "Pending journal records",
		},
	)

	c.registry.MustRegister(
		c.requestsTotal,
		c.requestLatency,
		c.retriesTotal,
		c.refreshesTotal,
		c.passesTotal,
		c.passLatency,
		c.recordsSynced,
		c.journalDepth,
	)

	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordRequest records one HTTP attempt.
func (c *Collector) RecordRequest(method string, status int, duration time.Duration) {
	c.requestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	c.requestLatency.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordRetry records a retried attempt.
func (c *Collector) RecordRetry(method string) {
	c.retriesTotal.WithLabelValues(method).Inc()
}

// RecordRefresh records a refresh outcome.
func (c *Collector) RecordRefresh(err error) {
	c.refreshesTotal.WithLabelValues(result(err)).Inc()
}

// RecordSyncPass records a finished replay pass.
func (c *Collector) RecordSyncPass(sent int, duration time.Duration, err error) {
	c.passesTotal.WithLabelValues(result(err)).Inc()
	c.passLatency.Observe(duration.Seconds())
}

// RecordRecordSynced records one confirmed journal record.
func (c *Collector) RecordRecordSynced(objectKind string) {
	c.recordsSynced.WithLabelValues(objectKind).Inc()
}

// RecordJournalDepth sets the pending-record gauge.
func (c *Collector) RecordJournalDepth(depth int) {
	c.journalDepth.Set(float64(depth))
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// NoOpCollector discards everything.
type NoOpCollector struct{}

// NewNoOpCollector returns a Recorder that records nothing.
func NewNoOpCollector() *NoOpCollector {
	return &NoOpCollector{}
}

func (*NoOpCollector) RecordRequest(method string, status int, d time.Duration) {}
func (*NoOpCollector) RecordRetry(method string)                                {}
func (*NoOpCollector) RecordRefresh(err error)                                  {}
func (*NoOpCollector) RecordSyncPass(sent int, d time.Duration, err error)      {}
func (*NoOpCollector) RecordRecordSynced(objectKind string)                     {}
func (*NoOpCollector) RecordJournalDepth(depth int)                             {}

var (
	_ Recorder = (*Collector)(nil)
	_ Recorder = (*NoOpCollector)(nil)
)
