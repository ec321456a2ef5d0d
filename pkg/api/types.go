package api

import (
	"time"

	"github.com/dd0wney/echoaid/pkg/algorithms"
	"github.com/dd0wney/echoaid/pkg/building"
	"github.com/dd0wney/echoaid/pkg/evacuation"
	"github.com/dd0wney/echoaid/pkg/pubsub"
	"github.com/dd0wney/echoaid/pkg/routing"
	"github.com/dd0wney/echoaid/pkg/sensing"
)

// Wire types. Every timestamp leaves the API as Unix milliseconds.

// millis converts t to Unix milliseconds. The zero time is 0.
func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// NodeResponse is one waypoint.
type NodeResponse struct {
	ID          building.NodeID `json:"id"`
	X           float64         `json:"x"`
	Y           float64         `json:"y"`
	Label       string          `json:"label,omitempty"`
	Feature     string          `json:"feature,omitempty"`
	DisplayName string          `json:"display_name"`
	Exit        bool            `json:"exit"`
	Cell        string          `json:"cell,omitempty"`
}

// BuildingResponse describes the loaded floor plan.
type BuildingResponse struct {
	Name  string               `json:"name"`
	Nodes []NodeResponse       `json:"nodes"`
	Edges [][2]building.NodeID `json:"edges"`
	Exits []building.NodeID    `json:"exits"`
	Walls [][4]float64         `json:"walls"`
	// Bounds is [minX, minY, maxX, maxY].
	Bounds [4]float64 `json:"bounds"`
}

// EventResponse is a shaking report.
type EventResponse struct {
	Timestamp    int64              `json:"timestamp"`
	LocationCell string             `json:"location_cell"`
	Intensity    float64            `json:"intensity"`
	DeviceID     string             `json:"device_id"`
	Features     map[string]float64 `json:"features,omitempty"`
}

func eventResponse(ev sensing.Event) EventResponse {
	return EventResponse{
		Timestamp:    millis(ev.Timestamp),
		LocationCell: ev.LocationCell,
		Intensity:    ev.Intensity,
		DeviceID:     ev.DeviceID,
		Features:     ev.Features,
	}
}

func eventResponses(evs []sensing.Event) []EventResponse {
	out := make([]EventResponse, 0, len(evs))
	for _, ev := range evs {
		out = append(out, eventResponse(ev))
	}
	return out
}

// AlertResponse is a confirmed earthquake alert.
type AlertResponse struct {
	ID           string   `json:"id"`
	Timestamp    int64    `json:"timestamp"`
	CellID       string   `json:"cell_id"`
	DeviceCount  int      `json:"device_count"`
	Devices      []string `json:"devices"`
	AvgIntensity float64  `json:"avg_intensity"`
	MaxIntensity float64  `json:"max_intensity"`
	Confidence   float64  `json:"confidence"`
	Status       string   `json:"status"`
}

func alertResponse(a sensing.Alert) AlertResponse {
	return AlertResponse{
		ID:           a.ID,
		Timestamp:    millis(a.Timestamp),
		CellID:       a.CellID,
		DeviceCount:  a.DeviceCount,
		Devices:      a.Devices,
		AvgIntensity: a.AvgIntensity,
		MaxIntensity: a.MaxIntensity,
		Confidence:   a.Confidence,
		Status:       a.Status,
	}
}

func alertPtr(a *sensing.Alert) *AlertResponse {
	if a == nil {
		return nil
	}
	r := alertResponse(*a)
	return &r
}

// ShakingResponse answers POST /api/shaking.
type ShakingResponse struct {
	Event     EventResponse  `json:"event"`
	Alert     *AlertResponse `json:"alert,omitempty"`
	Evacuated []string       `json:"evacuated,omitempty"`
}

// SimulationResponse answers POST /api/sensing/simulate.
type SimulationResponse struct {
	Cell      string          `json:"cell"`
	Events    []EventResponse `json:"events"`
	Alert     *AlertResponse  `json:"alert,omitempty"`
	Evacuated []string        `json:"evacuated,omitempty"`
}

// DeviceResponse is a device registry entry.
type DeviceResponse struct {
	ID       string `json:"id"`
	LastSeen int64  `json:"last_seen"`
}

// BlockadeResponse is one reported obstruction.
type BlockadeResponse struct {
	Edge       string          `json:"edge"`
	From       building.NodeID `json:"from"`
	To         building.NodeID `json:"to"`
	ReporterID string          `json:"reporter_id,omitempty"`
	CreatedAt  int64           `json:"created_at"`
}

func blockadeResponses(bs []routing.Blockade) []BlockadeResponse {
	out := make([]BlockadeResponse, 0, len(bs))
	for _, b := range bs {
		out = append(out, BlockadeResponse{
			Edge:       b.Edge.String(),
			From:       b.Edge.A,
			To:         b.Edge.B,
			ReporterID: b.ReporterID,
			CreatedAt:  millis(b.CreatedAt),
		})
	}
	return out
}

// BlockadeChangeResponse answers every blockade mutation and reroute.
type BlockadeChangeResponse struct {
	Action    string             `json:"action"`
	Edge      string             `json:"edge,omitempty"`
	Blockades []BlockadeResponse `json:"blockades"`
	Rerouted  []string           `json:"rerouted"`
}

func blockadeChangeResponse(c evacuation.BlockadeChange) BlockadeChangeResponse {
	return BlockadeChangeResponse{
		Action:    c.Action,
		Edge:      c.Edge,
		Blockades: blockadeResponses(c.Blockades),
		Rerouted:  c.Rerouted,
	}
}

// CongestionResponse reports planned load per node.
type CongestionResponse struct {
	Load map[building.NodeID]int `json:"load"`
	// Unreachable nodes cannot reach any exit under current blockades.
	Unreachable []building.NodeID `json:"unreachable"`
	Occupants   int               `json:"occupants"`
}

// DirectionsResponse answers GET /api/directions.
type DirectionsResponse struct {
	From       building.NodeID   `json:"from"`
	To         building.NodeID   `json:"to"`
	Distance   float64           `json:"distance"`
	Path       building.Path     `json:"path"`
	Directions []algorithms.Step `json:"directions"`
}

// CellResponse describes one grid cell.
type CellResponse struct {
	ID string `json:"id"`
	X  int    `json:"x"`
	Y  int    `json:"y"`
	// Bounds is [minX, minY, maxX, maxY].
	Bounds    [4]float64     `json:"bounds"`
	Center    [2]float64     `json:"center"`
	Neighbors []string       `json:"neighbors,omitempty"`
	Alert     *AlertResponse `json:"alert,omitempty"`
}

// CellsResponse lists the grid.
type CellsResponse struct {
	CellSize float64  `json:"cell_size"`
	Columns  int      `json:"columns"`
	Rows     int      `json:"rows"`
	Cells    []string `json:"cells"`
}

// StreamMessage is one websocket frame.
type StreamMessage struct {
	ID    string       `json:"id"`
	Topic pubsub.Topic `json:"topic"`
	Type  string       `json:"type"`
	Time  int64        `json:"time"`
	Data  any          `json:"data"`
}

// AnnouncementResponse is an announcement relayed on the stream.
type AnnouncementResponse struct {
	OccupantID string          `json:"occupant_id,omitempty"`
	Kind       evacuation.Kind `json:"kind"`
	Text       string          `json:"text"`
	At         int64           `json:"at"`
}

// streamMessage converts hub payloads carrying timestamps to their wire
// form; other payloads already serialise without any.
func streamMessage(ev pubsub.Event) StreamMessage {
	data := ev.Data
	switch v := ev.Data.(type) {
	case sensing.Event:
		data = eventResponse(v)
	case sensing.Alert:
		data = alertResponse(v)
	case evacuation.BlockadeChange:
		data = blockadeChangeResponse(v)
	case evacuation.Announcement:
		data = AnnouncementResponse{OccupantID: v.OccupantID, Kind: v.Kind, Text: v.Text, At: millis(v.At)}
	}
	return StreamMessage{ID: ev.ID, Topic: ev.Topic, Type: ev.Type, Time: millis(ev.Time), Data: data}
}

// OccupantsResponse lists located occupants and every route the
// coordinator is tracking, including seeded evacuees.
type OccupantsResponse struct {
	Occupants []evacuation.OccupantStatus `json:"occupants"`
	Routes    []routing.Occupant          `json:"routes"`
}
