package routing

import (
	"fmt"
	"slices"

	"github.com/dd0wney/echoaid/pkg/building"
	"github.com/dd0wney/echoaid/pkg/logging"
)

// Occupants returns a copy of every tracked occupant in first-seen order.
func (c *Coordinator) Occupants() []Occupant {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Occupant, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.copyOf(id))
	}
	return out
}

// Occupant returns one occupant by id.
func (c *Coordinator) Occupant(id string) (Occupant, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.occupants[id]; !ok {
		return Occupant{}, false
	}
	return c.copyOf(id), true
}

// OccupantCount returns the number of tracked occupants.
func (c *Coordinator) OccupantCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

func (c *Coordinator) copyOf(id string) Occupant {
	occ := c.occupants[id]
	return Occupant{ID: occ.ID, Node: occ.Node, Path: slices.Clone(occ.Path)}
}

// MoveOccupant records that an occupant reached node. When node lies on
// the assigned path the walked prefix is dropped so it stops counting
// towards congestion.
func (c *Coordinator) MoveOccupant(id string, node building.NodeID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	occ, ok := c.occupants[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownOccupant, id)
	}
	if !c.graph.HasNode(node) {
		return fmt.Errorf("%w: %s", ErrUnknownNode, node)
	}

	occ.Node = node
	if i := slices.Index(occ.Path, node); i > 0 {
		occ.Path = slices.Clone(occ.Path[i:])
	}
	return nil
}

// Seed registers n simulated evacuees spread over the ROOM nodes in
// dataset order, wrapping when n exceeds the room count. Each is routed
// globally so they load the congestion map. Returns the ids that
// received a route.
func (c *Coordinator) Seed(n int) []string {
	rooms := c.graph.Rooms()
	if len(rooms) == 0 {
		return nil
	}

	var seeded []string
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("s%d", i)
		if _, ok := c.RouteGlobal(rooms[i%len(rooms)].ID, id); ok {
			seeded = append(seeded, id)
		}
	}
	c.logger.Info("seeded simulated occupants", logging.Count(len(seeded)))
	return seeded
}
