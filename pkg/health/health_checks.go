package health

import (
	"fmt"
	"runtime"
	"time"
)

// SimpleCheck creates a simple health check that always returns healthy
func SimpleCheck(name string) Check {
	return Check{
		Name:        name,
		Status:      StatusHealthy,
		LastChecked: time.Now(),
	}
}

// BuildingCheck reports the loaded floor plan. A building without exits
// cannot route anybody out, so it is unhealthy.
func BuildingCheck(getBuilding func() (name string, nodes, edges, exits int)) CheckFunc {
	return func() Check {
		check := Check{
			Name:    "building",
			Details: make(map[string]any),
		}

		name, nodes, edges, exits := getBuilding()
		check.Details["name"] = name
		check.Details["nodes"] = nodes
		check.Details["edges"] = edges
		check.Details["exits"] = exits

		switch {
		case nodes == 0:
			check.Status = StatusUnhealthy
			check.Message = "No building loaded"
		case exits == 0:
			check.Status = StatusUnhealthy
			check.Message = "Building has no exits"
		default:
			check.Status = StatusHealthy
			check.Message = fmt.Sprintf("%d nodes, %d exits", nodes, exits)
		}

		return check
	}
}

// SensingCheck reports aggregator activity. Alerts are expected output,
// not a fault, so they only show up in the details.
func SensingCheck(getSensing func() (activeDevices, alerts int, configErr error)) CheckFunc {
	return func() Check {
		check := Check{
			Name:    "sensing",
			Details: make(map[string]any),
		}

		devices, alerts, err := getSensing()
		check.Details["active_devices"] = devices
		check.Details["active_alerts"] = alerts

		if err != nil {
			check.Status = StatusUnhealthy
			check.Message = err.Error()
		} else {
			check.Status = StatusHealthy
			check.Message = "Aggregating"
		}

		return check
	}
}

// HubCheck reports the event hub that feeds websocket clients and telemetry.
func HubCheck(getHub func() (closed bool, subscribers int)) CheckFunc {
	return func() Check {
		check := Check{
			Name:    "event_hub",
			Details: make(map[string]any),
		}

		closed, subscribers := getHub()
		check.Details["subscribers"] = subscribers

		if closed {
			check.Status = StatusUnhealthy
			check.Message = "Hub shut down"
		} else {
			check.Status = StatusHealthy
			check.Message = "Publishing"
		}

		return check
	}
}

// EvacuationCheck reports occupant status counts.
func EvacuationCheck(getCounts func() (standby, evacuating, safe int)) CheckFunc {
	return func() Check {
		standby, evacuating, safe := getCounts()
		return Check{
			Name:    "evacuation",
			Status:  StatusHealthy,
			Message: fmt.Sprintf("%d evacuating", evacuating),
			Details: map[string]any{
				"standby":    standby,
				"evacuating": evacuating,
				"safe":       safe,
			},
		}
	}
}

// TelemetryCheck reports the InfluxDB forwarder. A failing sink degrades
// the server without making it unready: evacuation does not depend on it.
func TelemetryCheck(getStatus func() (enabled bool, written, failed uint64, lastErr error)) CheckFunc {
	return func() Check {
		check := Check{
			Name:    "telemetry",
			Details: make(map[string]any),
		}

		enabled, written, failed, lastErr := getStatus()
		check.Details["enabled"] = enabled
		check.Details["written"] = written
		check.Details["failed"] = failed

		switch {
		case !enabled:
			check.Status = StatusHealthy
			check.Message = "Telemetry disabled"
		case lastErr != nil:
			check.Status = StatusDegraded
			check.Message = lastErr.Error()
		default:
			check.Status = StatusHealthy
			check.Message = "Writing"
		}

		return check
	}
}

// MemoryCheck creates a health check for memory usage
func MemoryCheck(getUsage func() (alloc, sys uint64)) CheckFunc {
	return func() Check {
		check := Check{
			Name:    "memory",
			Details: make(map[string]any),
		}

		alloc, sys := getUsage()

		check.Details["alloc_bytes"] = alloc
		check.Details["sys_bytes"] = sys

		if sys == 0 {
			check.Status = StatusHealthy
			check.Message = "No memory statistics"
			return check
		}

		usagePercent := float64(alloc) / float64(sys) * 100
		check.Details["usage_percent"] = usagePercent

		if usagePercent > 90 {
			check.Status = StatusDegraded
			check.Message = "High memory usage"
		} else {
			check.Status = StatusHealthy
			check.Message = "Memory usage normal"
		}

		return check
	}
}

// RuntimeMemory reads heap usage from the Go runtime, for MemoryCheck.
func RuntimeMemory() (alloc, sys uint64) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.Alloc, m.Sys
}
