package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all metrics for the application
type Registry struct {
	// HTTP
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestsInFlight  prometheus.Gauge
	HTTPResponseSizeBytes *prometheus.HistogramVec
	WebsocketClients      prometheus.Gauge

	// Routing
	RoutesTotal          *prometheus.CounterVec
	RouteCost            *prometheus.HistogramVec
	PathSearchDuration   prometheus.Histogram
	ReroutesTotal        prometheus.Counter
	ReroutedOccupants    prometheus.Histogram
	BlockadesActive      prometheus.Gauge
	BlockadeChangesTotal *prometheus.CounterVec
	OccupantsTracked     prometheus.Gauge
	EvacuationsActive    prometheus.Gauge

	// Sensing
	ShakingReportsTotal *prometheus.CounterVec
	AlertsTotal         prometheus.Counter
	AlertConfidence     prometheus.Histogram
	EventsRetained      prometheus.Gauge
	ActiveDevices       prometheus.Gauge
	ReportsRateLimited  prometheus.Counter

	// Event hub and telemetry export
	EventsPublishedTotal *prometheus.CounterVec
	EventsDroppedTotal   *prometheus.CounterVec
	TelemetryWritesTotal *prometheus.CounterVec

	// System
	UptimeSeconds    prometheus.Gauge
	GoRoutines       prometheus.Gauge
	MemoryAllocBytes prometheus.Gauge
	BuildingNodes    prometheus.Gauge
	BuildingEdges    prometheus.Gauge

	registry  *prometheus.Registry
	startedAt time.Time
	mu        sync.Mutex
}

var (
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the global metrics registry
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	r := &Registry{
		registry:  prometheus.NewRegistry(),
		startedAt: time.Now(),
	}

	r.initHTTPMetrics()
	r.initRoutingMetrics()
	r.initSensingMetrics()
	r.initEventMetrics()
	r.initSystemMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}
