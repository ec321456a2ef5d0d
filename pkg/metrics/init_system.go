package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initSystemMetrics() {
	r.UptimeSeconds = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "echoaid_uptime_seconds",
			Help: "Time since the server started in seconds",
		},
	)

	r.GoRoutines = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "echoaid_goroutines",
			Help: "Number of goroutines",
		},
	)

	r.MemoryAllocBytes = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "echoaid_memory_alloc_bytes",
			Help: "Bytes of allocated heap objects",
		},
	)

	r.BuildingNodes = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "echoaid_building_nodes",
			Help: "Nodes in the loaded building graph",
		},
	)

	r.BuildingEdges = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "echoaid_building_edges",
			Help: "Edges in the loaded building graph",
		},
	)
}
