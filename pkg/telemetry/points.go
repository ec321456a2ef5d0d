package telemetry

import (
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/dd0wney/echoaid/pkg/evacuation"
	"github.com/dd0wney/echoaid/pkg/pubsub"
	"github.com/dd0wney/echoaid/pkg/sensing"
)

// Point converts a hub event into an InfluxDB point. Events without a
// time series representation return false.
func Point(ev pubsub.Event) (*write.Point, bool) {
	switch data := ev.Data.(type) {
	case sensing.Event:
		fields := map[string]interface{}{"intensity": data.Intensity}
		for k, v := range data.Features {
			fields[k] = v
		}
		return influxdb2.NewPoint("shaking",
			map[string]string{"cell": data.LocationCell, "device_id": data.DeviceID},
			fields,
			data.Timestamp,
		), true

	case sensing.Alert:
		return influxdb2.NewPoint("alert",
			map[string]string{"cell": data.CellID},
			map[string]interface{}{
				"device_count":  data.DeviceCount,
				"avg_intensity": data.AvgIntensity,
				"max_intensity": data.MaxIntensity,
				"confidence":    data.Confidence,
			},
			data.Timestamp,
		), true

	case evacuation.BlockadeChange:
		tags := map[string]string{"action": measurementFor(data.Action)}
		if data.Edge != "" {
			tags["edge"] = data.Edge
		}
		return influxdb2.NewPoint("blockades",
			tags,
			map[string]interface{}{
				"active":   len(data.Blockades),
				"rerouted": len(data.Rerouted),
			},
			ev.Time,
		), true

	case evacuation.Assignment:
		if len(data.Route.Path) == 0 {
			return nil, false
		}
		return influxdb2.NewPoint("route",
			map[string]string{"mode": string(data.Mode), "exit": string(data.Route.Exit)},
			map[string]interface{}{
				"distance":  data.Route.Distance,
				"penalty":   data.Route.Penalty,
				"waypoints": len(data.Route.Path),
			},
			ev.Time,
		), true
	}
	return nil, false
}
