package metrics

import (
	"runtime"
	"strconv"
	"time"
)

// RecordHTTPRequest records an HTTP request with its duration
func (r *Registry) RecordHTTPRequest(method, path string, status int, duration time.Duration, size int) {
	code := strconv.Itoa(status)
	r.HTTPRequestsTotal.WithLabelValues(method, path, code).Inc()
	r.HTTPRequestDuration.WithLabelValues(method, path, code).Observe(duration.Seconds())
	r.HTTPResponseSizeBytes.WithLabelValues(method, path).Observe(float64(size))
}

// RecordRoute records one route request. cost is ignored when found is false.
func (r *Registry) RecordRoute(mode string, found bool, cost float64, duration time.Duration) {
	result := "none"
	if found {
		result = "found"
		r.RouteCost.WithLabelValues(mode).Observe(cost)
	}
	r.RoutesTotal.WithLabelValues(mode, result).Inc()
	r.PathSearchDuration.Observe(duration.Seconds())
}

// RecordReroute records a reroute-all pass
func (r *Registry) RecordReroute(rerouted int) {
	r.ReroutesTotal.Inc()
	r.ReroutedOccupants.Observe(float64(rerouted))
}

// RecordBlockadeChange records a blockade mutation and the resulting set size
func (r *Registry) RecordBlockadeChange(action string, active int) {
	r.BlockadeChangesTotal.WithLabelValues(action).Inc()
	r.BlockadesActive.Set(float64(active))
}

// RecordShakingReport records an accepted or rejected shaking report
func (r *Registry) RecordShakingReport(accepted bool, retained int) {
	outcome := "rejected"
	if accepted {
		outcome = "accepted"
		r.EventsRetained.Set(float64(retained))
	}
	r.ShakingReportsTotal.WithLabelValues(outcome).Inc()
}

// RecordAlert records a confirmed alert
func (r *Registry) RecordAlert(confidence float64) {
	r.AlertsTotal.Inc()
	r.AlertConfidence.Observe(confidence)
}

// RecordPublish records a hub publish and how many subscribers missed it
func (r *Registry) RecordPublish(topic string, dropped int) {
	r.EventsPublishedTotal.WithLabelValues(topic).Inc()
	if dropped > 0 {
		r.EventsDroppedTotal.WithLabelValues(topic).Add(float64(dropped))
	}
}

// RecordTelemetryWrite records one telemetry export attempt
func (r *Registry) RecordTelemetryWrite(measurement string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.TelemetryWritesTotal.WithLabelValues(measurement, status).Inc()
}

// SetBuilding publishes the size of the loaded building graph
func (r *Registry) SetBuilding(nodes, edges int) {
	r.BuildingNodes.Set(float64(nodes))
	r.BuildingEdges.Set(float64(edges))
}

// UpdateSystemMetrics refreshes uptime, goroutine and heap gauges
func (r *Registry) UpdateSystemMetrics() {
	r.mu.Lock()
	defer r.mu.Unlock()

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	r.UptimeSeconds.Set(time.Since(r.startedAt).Seconds())
	r.GoRoutines.Set(float64(runtime.NumGoroutine()))
	r.MemoryAllocBytes.Set(float64(m.Alloc))
}
