package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the counters the request paths update directly.
type Metrics struct {
	XMLRequests   *prometheus.CounterVec
	XMLRenders    *prometheus.CounterVec
	HTTAPIActions *prometheus.CounterVec
	CDRIngested   *prometheus.CounterVec
	Invalidations *prometheus.CounterVec
}

// New creates the counters and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		XMLRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "switchyard_xml_requests_total",
			Help: "XML lookups served, by section and result (hit, miss, not_found, denied)",
		}, []string{"section", "result"}),
		XMLRenders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "switchyard_xml_renders_total",
			Help: "XML documents rendered from the store on a cache miss",
		}, []string{"section"}),
		HTTAPIActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "switchyard_httapi_requests_total",
			Help: "HTTAPI requests handled, by handler",
		}, []string{"handler"}),
		CDRIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "switchyard_cdr_ingested_total",
			Help: "CDR legs processed, by source and result (stored, duplicate, skipped, invalid)",
		}, []string{"source", "result"}),
		Invalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "switchyard_cache_invalidations_total",
			Help: "Cache invalidations applied, by entity kind",
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.XMLRequests, m.XMLRenders, m.HTTAPIActions, m.CDRIngested, m.Invalidations)
	}
	return m
}

// BusStatus reports whether the switch bus is up.
type BusStatus interface {
	Connected() bool
}

// SessionCounter returns the number of live HTTAPI sessions.
type SessionCounter interface {
	Count(ctx context.Context) (int, error)
}

// Collector is a prometheus.Collector that gathers gauges at scrape time.
type Collector struct {
	bus       BusStatus
	sessions  SessionCounter
	startTime time.Time

	busConnectedDesc *prometheus.Desc
	sessionsDesc     *prometheus.Desc
	uptimeDesc       *prometheus.Desc
}

// NewCollector creates a new metrics collector. Any provider may be nil if unavailable.
func NewCollector(bus BusStatus, sessions SessionCounter, startTime time.Time) *Collector {
	return &Collector{
		bus:       bus,
		sessions:  sessions,
		startTime: startTime,

		busConnectedDesc: prometheus.NewDesc(
			"switchyard_bus_connected",
			"Switch bus connection state (1=connected, 0=down)",
			nil, nil,
		),
		sessionsDesc: prometheus.NewDesc(
			"switchyard_httapi_sessions",
			"Number of live HTTAPI sessions",
			nil, nil,
		),
		uptimeDesc: prometheus.NewDesc(
			"switchyard_uptime_seconds",
			"Seconds since the switchyard process started",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.busConnectedDesc
	ch <- c.sessionsDesc
	ch <- c.uptimeDesc
}

// Collect implements prometheus.Collector. It queries all providers at scrape time.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if c.bus != nil {
		val := 0.0
		if c.bus.Connected() {
			val = 1.0
		}
		ch <- prometheus.MustNewConstMetric(c.busConnectedDesc, prometheus.GaugeValue, val)
	}

	if c.sessions != nil {
		n, err := c.sessions.Count(ctx)
		if err != nil {
			slog.Error("metrics: failed to count httapi sessions", "error", err)
		} else {
			ch <- prometheus.MustNewConstMetric(c.sessionsDesc, prometheus.GaugeValue, float64(n))
		}
	}

	ch <- prometheus.MustNewConstMetric(
		c.uptimeDesc, prometheus.GaugeValue,
		time.Since(c.startTime).Seconds(),
	)
}
