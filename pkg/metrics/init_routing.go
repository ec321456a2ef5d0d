package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initRoutingMetrics() {
	r.RoutesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "echoaid_routes_total",
			Help: "Route requests by mode (global, local) and result (found, none)",
		},
		[]string{"mode", "result"},
	)

	r.RouteCost = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "echoaid_route_cost",
			Help:    "Cost of assigned routes, distance plus congestion penalty",
			Buckets: prometheus.ExponentialBuckets(50, 2, 10),
		},
		[]string{"mode"},
	)

	r.PathSearchDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "echoaid_path_search_duration_seconds",
			Help:    "Time spent evaluating every exit for one route request",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		},
	)

	r.ReroutesTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "echoaid_reroutes_total",
			Help: "Number of reroute-all passes",
		},
	)

	r.ReroutedOccupants = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "echoaid_rerouted_occupants",
			Help:    "Occupants successfully rerouted per pass",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250},
		},
	)

	r.BlockadesActive = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "echoaid_blockades_active",
			Help: "Edges currently marked impassable",
		},
	)

	r.BlockadeChangesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "echoaid_blockade_changes_total",
			Help: "Blockade mutations by action (add, remove, clear)",
		},
		[]string{"action"},
	)

	r.OccupantsTracked = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "echoaid_occupants_tracked",
			Help: "Occupants with an assigned evacuation path",
		},
	)

	r.EvacuationsActive = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "echoaid_evacuations_active",
			Help: "Occupants currently being guided towards an exit",
		},
	)
}
