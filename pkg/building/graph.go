package building

import (
	"slices"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Graph is the read-only building graph. It is safe for concurrent use
// because nothing mutates it after New returns.
type Graph struct {
	name      string
	nodes     map[NodeID]Node
	order     []NodeID
	adjacency map[NodeID][]NodeID
	edges     []EdgeKey
	edgeSet   EdgeSet
	exits     []NodeID
	walls     []Wall
	bound     orb.Bound
}

// Name returns the dataset name.
func (g *Graph) Name() string { return g.name }

// Node looks a node up by id.
func (g *Graph) Node(id NodeID) (Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// HasNode reports whether id exists.
func (g *Graph) HasNode(id NodeID) bool {
	_, ok := g.nodes[id]
	return ok
}

// Nodes returns every node in dataset order.
func (g *Graph) Nodes() []Node {
	out := make([]Node, len(g.order))
	for i, id := range g.order {
		out[i] = g.nodes[id]
	}
	return out
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.order) }

// Edges returns every edge in dataset order.
func (g *Graph) Edges() []EdgeKey { return slices.Clone(g.edges) }

// EdgeCount returns the number of distinct edges.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// HasEdge reports whether k is an edge of the graph.
func (g *Graph) HasEdge(k EdgeKey) bool {
	_, ok := g.edgeSet[k]
	return ok
}

// Neighbors returns the nodes adjacent to id in the order their edges were declared.
func (g *Graph) Neighbors(id NodeID) []NodeID {
	return slices.Clone(g.adjacency[id])
}

// Degree returns the number of edges touching id.
func (g *Graph) Degree(id NodeID) int { return len(g.adjacency[id]) }

// Exits returns exit node ids in dataset order.
func (g *Graph) Exits() []NodeID { return slices.Clone(g.exits) }

// IsExit reports whether id is one of the exits.
func (g *Graph) IsExit(id NodeID) bool { return slices.Contains(g.exits, id) }

// Rooms returns the ROOM nodes in dataset order.
func (g *Graph) Rooms() []Node {
	var out []Node
	for _, id := range g.order {
		if n := g.nodes[id]; n.Feature == FeatureRoom {
			out = append(out, n)
		}
	}
	return out
}

// Walls returns the floor plan outline.
func (g *Graph) Walls() []Wall { return slices.Clone(g.walls) }

// Bound returns the bounding box of every node and wall.
func (g *Graph) Bound() orb.Bound { return g.bound }

// Distance is the Euclidean distance between two nodes. Unknown ids yield 0.
func (g *Graph) Distance(a, b NodeID) float64 {
	na, okA := g.nodes[a]
	nb, okB := g.nodes[b]
	if !okA || !okB {
		return 0
	}
	return planar.Distance(na.Pos, nb.Pos)
}

// Search returns nodes whose label or id contains query, case-insensitively.
// Exact label matches come first.
func (g *Graph) Search(query string) []Node {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	var exact, partial []Node
	for _, id := range g.order {
		n := g.nodes[id]
		label := strings.ToLower(n.Label)
		switch {
		case label == q || strings.ToLower(string(n.ID)) == q:
			exact = append(exact, n)
		case strings.Contains(label, q) || strings.Contains(strings.ToLower(string(n.ID)), q):
			partial = append(partial, n)
		}
	}
	return append(exact, partial...)
}

// Nearest returns the node closest to p, or false for an empty graph.
func (g *Graph) Nearest(p orb.Point) (Node, bool) {
	var (
		best  Node
		bestD = -1.0
	)
	for _, id := range g.order {
		n := g.nodes[id]
		if d := planar.DistanceSquared(n.Pos, p); bestD < 0 || d < bestD {
			best, bestD = n, d
		}
	}
	return best, bestD >= 0
}
