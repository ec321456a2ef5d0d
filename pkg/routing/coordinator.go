// Package routing assigns evacuation routes to occupants. It owns the
// blockade set and the occupant table; every public method runs under one
// mutex, so each call observes and leaves a consistent state.
package routing

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dd0wney/echoaid/pkg/algorithms"
	"github.com/dd0wney/echoaid/pkg/building"
	"github.com/dd0wney/echoaid/pkg/logging"
)

// Coordinator is the shared routing brain for one building.
type Coordinator struct {
	graph  *building.Graph
	cfg    Config
	logger logging.Logger

	mu        sync.Mutex
	blockades []Blockade // insertion order
	occupants map[string]*Occupant
	order     []string // occupant ids in first-seen order
}

// NewCoordinator creates a coordinator over an immutable graph.
func NewCoordinator(g *building.Graph, cfg Config) *Coordinator {
	cfg = cfg.withDefaults()
	return &Coordinator{
		graph:     g,
		cfg:       cfg,
		logger:    cfg.Logger.With(logging.Component("routing")),
		occupants: make(map[string]*Occupant),
	}
}

// Graph returns the building the coordinator routes on.
func (c *Coordinator) Graph() *building.Graph { return c.graph }

// CongestionWeight returns the effective weight.
func (c *Coordinator) CongestionWeight() float64 { return c.cfg.CongestionWeight }

// AddBlockade marks edge impassable. Adding an edge that is already
// blocked leaves the set unchanged. Returns the resulting set.
func (c *Coordinator) AddBlockade(edge building.EdgeKey, reporterID string) ([]Blockade, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.graph.HasEdge(edge) {
		return c.blockadeSnapshot(), fmt.Errorf("%w: %s", ErrUnknownEdge, edge)
	}
	if c.indexOfBlockade(edge) >= 0 {
		return c.blockadeSnapshot(), nil
	}

	c.blockades = append(c.blockades, Blockade{Edge: edge, ReporterID: reporterID, CreatedAt: c.cfg.Clock()})
	c.logger.Info("blockade added", logging.Edge(edge.String()), logging.String("reporter", reporterID))
	c.recordBlockades("add")
	return c.blockadeSnapshot(), nil
}

// RemoveBlockade clears edge if blocked and returns the remaining set.
func (c *Coordinator) RemoveBlockade(edge building.EdgeKey) []Blockade {
	c.mu.Lock()
	defer c.mu.Unlock()

	if i := c.indexOfBlockade(edge); i >= 0 {
		c.blockades = slices.Delete(c.blockades, i, i+1)
		c.logger.Info("blockade removed", logging.Edge(edge.String()))
		c.recordBlockades("remove")
	}
	return c.blockadeSnapshot()
}

// ClearAllBlockades empties the set. Occupant paths are left untouched.
func (c *Coordinator) ClearAllBlockades() []Blockade {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n := len(c.blockades); n > 0 {
		c.blockades = nil
		c.logger.Info("blockades cleared", logging.Count(n))
	}
	c.recordBlockades("clear")
	return c.blockadeSnapshot()
}

// Blockades returns the current blockades in the order they were added.
func (c *Coordinator) Blockades() []Blockade {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blockadeSnapshot()
}

// BlockedEdges returns the blockade set as a lookup set.
func (c *Coordinator) BlockedEdges() building.EdgeSet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blockedSet()
}

func (c *Coordinator) indexOfBlockade(edge building.EdgeKey) int {
	return slices.IndexFunc(c.blockades, func(b Blockade) bool { return b.Edge == edge })
}

func (c *Coordinator) blockadeSnapshot() []Blockade {
	return append([]Blockade{}, c.blockades...)
}

func (c *Coordinator) blockedSet() building.EdgeSet {
	set := make(building.EdgeSet, len(c.blockades))
	for _, b := range c.blockades {
		set[b.Edge] = struct{}{}
	}
	return set
}

func (c *Coordinator) recordBlockades(action string) {
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.RecordBlockadeChange(action, len(c.blockades))
	}
}

// Congestion counts, for every node, how many assigned paths pass through it.
func (c *Coordinator) Congestion() map[building.NodeID]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.congestion()
}

func (c *Coordinator) congestion() map[building.NodeID]int {
	counts := make(map[building.NodeID]int, c.graph.NodeCount())
	for _, n := range c.graph.Nodes() {
		counts[n.ID] = 0
	}
	for _, id := range c.order {
		for _, node := range c.occupants[id].Path {
			counts[node]++
		}
	}
	return counts
}

// RouteGlobal picks the exit minimising distance plus congestion penalty
// and assigns the path to occupantID. Ties go to the exit listed first.
// Returns false, leaving the occupant untouched, when no exit is reachable.
func (c *Coordinator) RouteGlobal(start building.NodeID, occupantID string) (Route, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	began := time.Now()
	route, ok := c.best(start, c.blockedSet(), c.congestion())
	c.record(ModeGlobal, route, ok, began)
	if !ok {
		c.logger.Warn("no route", logging.Occupant(occupantID), logging.Node(string(start)))
		return Route{}, false
	}
	c.assign(occupantID, start, route.Path)
	c.logger.Debug("route assigned",
		logging.Occupant(occupantID),
		logging.Exit(string(route.Exit)),
		logging.Float64("cost", route.Cost()),
	)
	return route, true
}

// RouteLocal picks the nearest reachable exit by distance alone. It does
// not read congestion and does not assign the route to anyone.
func (c *Coordinator) RouteLocal(start building.NodeID) (Route, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	began := time.Now()
	route, ok := c.best(start, c.blockedSet(), nil)
	c.record(ModeLocal, route, ok, began)
	return route, ok
}

// RerouteAll recomputes a global route for every occupant from their last
// known node, in the order occupants were first seen. Congestion is
// re-read before each occupant so earlier reassignments are visible to
// later ones. Returns the ids that received a route; occupants with no
// reachable exit keep their previous path.
func (c *Coordinator) RerouteAll() []string {
	routes := c.RerouteAllRoutes()
	ids := make([]string, 0, len(routes))
	for _, r := range routes {
		ids = append(ids, r.OccupantID)
	}
	if len(ids) == 0 {
		return nil
	}
	return ids
}

// RerouteAllRoutes is RerouteAll returning the assigned routes.
func (c *Coordinator) RerouteAllRoutes() []Rerouted {
	c.mu.Lock()
	defer c.mu.Unlock()

	blocked := c.blockedSet()
	var rerouted []Rerouted
	for _, id := range c.order {
		occ := c.occupants[id]
		route, ok := c.best(occ.Node, blocked, c.congestion())
		if !ok {
			continue
		}
		occ.Path = route.Path
		rerouted = append(rerouted, Rerouted{OccupantID: id, Route: route})
	}

	c.logger.Info("rerouted occupants", logging.Count(len(rerouted)), logging.Int("tracked", len(c.order)))
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.RecordReroute(len(rerouted))
	}
	return rerouted
}

// best evaluates every exit. A nil congestion map means distance only.
func (c *Coordinator) best(start building.NodeID, blocked building.EdgeSet, congestion map[building.NodeID]int) (Route, bool) {
	var (
		winner Route
		found  bool
	)
	for _, exit := range c.graph.Exits() {
		path, ok := algorithms.FindPath(c.graph, start, exit, blocked)
		if !ok {
			continue
		}
		candidate := Route{
			Path:     path,
			Exit:     exit,
			Distance: algorithms.PathLength(c.graph, path),
		}
		if congestion != nil {
			load := 0
			for _, node := range path {
				load += congestion[node]
			}
			candidate.Penalty = float64(load) * c.cfg.CongestionWeight
		}
		if !found || candidate.Cost() < winner.Cost() {
			winner, found = candidate, true
		}
	}
	return winner, found
}

func (c *Coordinator) assign(id string, node building.NodeID, path building.Path) {
	if occ, ok := c.occupants[id]; ok {
		occ.Node, occ.Path = node, path
		return
	}
	c.occupants[id] = &Occupant{ID: id, Node: node, Path: path}
	c.order = append(c.order, id)
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.OccupantsTracked.Set(float64(len(c.order)))
	}
}

func (c *Coordinator) record(mode Mode, r Route, ok bool, began time.Time) {
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.RecordRoute(string(mode), ok, r.Cost(), time.Since(began))
	}
}
