package routing

import (
	"errors"
	"time"

	"github.com/dd0wney/echoaid/pkg/building"
	"github.com/dd0wney/echoaid/pkg/logging"
	"github.com/dd0wney/echoaid/pkg/metrics"
)

var (
	ErrUnknownEdge     = errors.New("edge is not part of the building graph")
	ErrUnknownNode     = errors.New("node is not part of the building graph")
	ErrUnknownOccupant = errors.New("occupant has no assigned route")
)

// DefaultCongestionWeight converts one occupant's presence on a node into
// distance units when comparing exits. Tuned on the reference floor plan.
const DefaultCongestionWeight = 40.0

// Mode selects the routing strategy.
type Mode string

const (
	// ModeGlobal balances load across exits using shared congestion.
	ModeGlobal Mode = "global"
	// ModeLocal picks the nearest reachable exit without touching shared state.
	ModeLocal Mode = "local"
)

// Blockade marks an edge impassable until it is removed.
type Blockade struct {
	Edge       building.EdgeKey `json:"edge"`
	ReporterID string           `json:"reporter_id,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}

// Occupant is a tracked evacuee and their assigned path.
type Occupant struct {
	ID   string          `json:"id"`
	Node building.NodeID `json:"node"`
	Path building.Path   `json:"path"`
}

// Route is the result of evaluating every exit from one start node.
type Route struct {
	Path     building.Path   `json:"path"`
	Exit     building.NodeID `json:"exit"`
	Distance float64         `json:"distance"`
	// Penalty is the congestion term; zero for local routes.
	Penalty float64 `json:"penalty"`
}

// Rerouted is one occupant's route from a reroute pass.
type Rerouted struct {
	OccupantID string
	Route      Route
}

// Cost is the value exits are compared on.
func (r Route) Cost() float64 { return r.Distance + r.Penalty }

// Config holds coordinator dependencies and tuning.
type Config struct {
	// CongestionWeight defaults to DefaultCongestionWeight when zero.
	// Set a negative value to disable congestion balancing.
	CongestionWeight float64
	Clock            func() time.Time
	Logger           logging.Logger
	Metrics          *metrics.Registry
}

func (c Config) withDefaults() Config {
	if c.CongestionWeight == 0 {
		c.CongestionWeight = DefaultCongestionWeight
	} else if c.CongestionWeight < 0 {
		c.CongestionWeight = 0
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.Logger == nil {
		c.Logger = logging.NewNopLogger()
	}
	return c
}
