package evacuation

import (
	"errors"
	"math/rand"
	"time"

	"github.com/dd0wney/echoaid/pkg/algorithms"
	"github.com/dd0wney/echoaid/pkg/building"
	"github.com/dd0wney/echoaid/pkg/cells"
	"github.com/dd0wney/echoaid/pkg/logging"
	"github.com/dd0wney/echoaid/pkg/metrics"
	"github.com/dd0wney/echoaid/pkg/pubsub"
	"github.com/dd0wney/echoaid/pkg/routing"
	"github.com/dd0wney/echoaid/pkg/sensing"
)

var (
	ErrNoRoute         = errors.New("no exit is reachable")
	ErrMissingOccupant = errors.New("occupant id is required")
	ErrInvalidMode     = errors.New("routing mode must be global or local")
	ErrNotLocated      = errors.New("occupant has no known location")
	ErrClosed          = errors.New("evacuation service is closed")
)

// Status is an occupant's evacuation state.
type Status string

const (
	StatusStandby    Status = "STANDBY"
	StatusEvacuating Status = "EVACUATING"
	StatusSafe       Status = "SAFE"
)

// Event types published on the hub.
const (
	EventShakingReported = "shaking.reported"
	EventAlertRaised     = "alert.raised"
	EventRouteAssigned   = "route.assigned"
	EventRouteMissing    = "route.missing"
	EventBlockadeAdded   = "blockade.added"
	EventBlockadeRemoved = "blockade.removed"
	EventBlockadesClear  = "blockades.cleared"
	EventRerouted        = "routes.rerouted"
	EventOccupantMoved   = "occupant.moved"
	EventOccupantSafe    = "occupant.safe"
)

const (
	// DefaultStepInterval is how long a simulated occupant takes per waypoint.
	DefaultStepInterval = 1800 * time.Millisecond
	// DefaultSimulatedDevices matches the four-phone cluster used in drills.
	DefaultSimulatedDevices = 4
	simulatedSpacing        = 500 * time.Millisecond
)

// Deps are the collaborators a Service sequences. Graph, Grid,
// Coordinator and Aggregator are required.
type Deps struct {
	Graph       *building.Graph
	Grid        *cells.Grid
	Coordinator *routing.Coordinator
	Aggregator  *sensing.Aggregator
	Hub         *pubsub.Hub
	Announcer   AnnouncementSink
	Logger      logging.Logger
	Metrics     *metrics.Registry
}

// Config tunes the service.
type Config struct {
	// StepInterval paces progress trackers. Zero selects
	// DefaultStepInterval; negative disables tracking.
	StepInterval time.Duration
	// AutoMode is used when an alert evacuates occupants automatically.
	AutoMode routing.Mode
	Clock    func() time.Time
	// Rand drives simulated quakes; nil seeds from the clock.
	Rand *rand.Rand
}

func (c Config) withDefaults() Config {
	if c.StepInterval == 0 {
		c.StepInterval = DefaultStepInterval
	}
	if c.AutoMode == "" {
		c.AutoMode = routing.ModeGlobal
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.Rand == nil {
		c.Rand = rand.New(rand.NewSource(c.Clock().UnixNano()))
	}
	return c
}

// Assignment is the outcome of one Evacuate call.
type Assignment struct {
	OccupantID string            `json:"occupant_id"`
	Mode       routing.Mode      `json:"mode"`
	Status     Status            `json:"status"`
	Route      routing.Route     `json:"route"`
	ExitLabel  string            `json:"exit_label"`
	Directions []algorithms.Step `json:"directions"`
}

// OccupantStatus is a snapshot of one located occupant.
type OccupantStatus struct {
	ID     string          `json:"id"`
	Node   building.NodeID `json:"node"`
	Cell   string          `json:"cell,omitempty"`
	Status Status          `json:"status"`
	Mode   routing.Mode    `json:"mode,omitempty"`
	// Remaining is the rest of the path being walked, current node first.
	Remaining building.Path `json:"remaining,omitempty"`
}

// ShakingOutcome is the result of routing one shaking report through the service.
type ShakingOutcome struct {
	Receipt sensing.Receipt `json:"receipt"`
	// Evacuated lists occupants whose evacuation the new alert started.
	Evacuated []string `json:"evacuated,omitempty"`
}

// Simulation summarises an injected quake.
type Simulation struct {
	Cell      string          `json:"cell"`
	Events    []sensing.Event `json:"events"`
	Alert     *sensing.Alert  `json:"alert,omitempty"`
	Evacuated []string        `json:"evacuated,omitempty"`
}

// BlockadeChange is published after every blockade mutation.
type BlockadeChange struct {
	Action    string             `json:"action"`
	Edge      string             `json:"edge,omitempty"`
	Blockades []routing.Blockade `json:"blockades"`
	Rerouted  []string           `json:"rerouted"`
}

// Movement is published each time a tracked occupant reaches a waypoint.
type Movement struct {
	OccupantID string          `json:"occupant_id"`
	Node       building.NodeID `json:"node"`
	Remaining  int             `json:"remaining"`
}

// occupant is the service's view of one person. Global occupants read
// their remaining path from the coordinator; path holds local routes.
type occupant struct {
	id      string
	node    building.NodeID
	status  Status
	mode    routing.Mode
	path    building.Path
	planned int
	steps   int
	halfway bool
	gen     uint64
	cancel  func()
}
