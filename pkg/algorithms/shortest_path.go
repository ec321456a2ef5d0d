package algorithms

import (
	"container/heap"

	"github.com/dd0wney/echoaid/pkg/building"
)

// FindPath runs A* from start to end, skipping every edge in blocked in
// either orientation. Edge cost and the heuristic are both Euclidean, so
// the heuristic is consistent and the first time end is popped its path
// is shortest. Returns false when either endpoint is missing or no path
// avoids the blockades. blocked is read, never modified.
func FindPath(g *building.Graph, start, end building.NodeID, blocked building.EdgeSet) (building.Path, bool) {
	if !g.HasNode(start) || !g.HasNode(end) {
		return nil, false
	}
	if start == end {
		return building.Path{start}, true
	}

	var (
		frontier = &openSet{}
		seq      uint64
		cost     = map[building.NodeID]float64{start: 0}
		parent   = map[building.NodeID]building.NodeID{}
		closed   = map[building.NodeID]bool{}
	)
	push := func(id building.NodeID, gScore float64) {
		heap.Push(frontier, &openEntry{node: id, f: gScore + g.Distance(id, end), seq: seq})
		seq++
	}
	push(start, 0)

	for frontier.Len() > 0 {
		current := heap.Pop(frontier).(*openEntry).node
		if closed[current] {
			continue
		}
		if current == end {
			return walkBack(parent, start, end), true
		}
		closed[current] = true

		for _, next := range g.Neighbors(current) {
			if closed[next] || blocked.Blocks(current, next) {
				continue
			}
			tentative := cost[current] + g.Distance(current, next)
			if known, seen := cost[next]; seen && tentative >= known {
				continue
			}
			cost[next] = tentative
			parent[next] = current
			push(next, tentative)
		}
	}
	return nil, false
}

func walkBack(parent map[building.NodeID]building.NodeID, start, end building.NodeID) building.Path {
	path := building.Path{end}
	for node := end; node != start; {
		node = parent[node]
		path = append(path, node)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// PathLength sums the Euclidean lengths of consecutive hops.
func PathLength(g *building.Graph, p building.Path) float64 {
	total := 0.0
	for i := 1; i < len(p); i++ {
		total += g.Distance(p[i-1], p[i])
	}
	return total
}

// DistancesFrom runs Dijkstra from source under the blockade set and
// returns the shortest distance to every reachable node.
func DistancesFrom(g *building.Graph, source building.NodeID, blocked building.EdgeSet) map[building.NodeID]float64 {
	dist := make(map[building.NodeID]float64)
	if !g.HasNode(source) {
		return dist
	}

	var (
		frontier = &openSet{}
		seq      uint64
		done     = map[building.NodeID]bool{}
	)
	dist[source] = 0
	heap.Push(frontier, &openEntry{node: source, f: 0})

	for frontier.Len() > 0 {
		e := heap.Pop(frontier).(*openEntry)
		if done[e.node] {
			continue
		}
		done[e.node] = true

		for _, next := range g.Neighbors(e.node) {
			if blocked.Blocks(e.node, next) {
				continue
			}
			d := dist[e.node] + g.Distance(e.node, next)
			if old, ok := dist[next]; !ok || d < old {
				dist[next] = d
				seq++
				heap.Push(frontier, &openEntry{node: next, f: d, seq: seq})
			}
		}
	}
	return dist
}

// Unreachable lists nodes, in dataset order, from which no exit can be reached.
func Unreachable(g *building.Graph, blocked building.EdgeSet) []building.NodeID {
	reach := make(map[building.NodeID]bool)
	for _, exit := range g.Exits() {
		// undirected graph: distances from the exit equal distances to it
		for id := range DistancesFrom(g, exit, blocked) {
			reach[id] = true
		}
	}
	var out []building.NodeID
	for _, n := range g.Nodes() {
		if !reach[n.ID] {
			out = append(out, n.ID)
		}
	}
	return out
}

type openEntry struct {
	node building.NodeID
	f    float64
	seq  uint64
}

// openSet is a min-heap on f; equal f values pop in insertion order.
type openSet []*openEntry

func (s openSet) Len() int { return len(s) }

func (s openSet) Less(i, j int) bool {
	if s[i].f != s[j].f {
		return s[i].f < s[j].f
	}
	return s[i].seq < s[j].seq
}

func (s openSet) Swap(i, j int) { s[i], s[j] = s[j], s[i] }

func (s *openSet) Push(x any) { *s = append(*s, x.(*openEntry)) }

func (s *openSet) Pop() any {
	old := *s
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*s = old[:n-1]
	return e
}

