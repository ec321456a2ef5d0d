package algorithms

import (
	"container/heap"
	"sort"

	"github.com/dd0wney/echoaid/pkg/building"
)

// RankedEdge is an edge with its share of evacuation traffic.
type RankedEdge struct {
	Edge building.EdgeKey `json:"edge"`
	// Score is the fraction of routed rooms whose evacuation path crosses the edge.
	Score float64 `json:"score"`
	Rooms int     `json:"rooms"`
	// Bridge is set when blocking the edge strands at least one room.
	Bridge bool `json:"bridge"`
}

// EvacuationLoad routes every room to its nearest reachable exit under
// blocked and counts how many of those routes cross each edge. routed is
// the number of rooms that reached an exit. Ties between exits go to the
// first in dataset order.
func EvacuationLoad(g *building.Graph, blocked building.EdgeSet) (load map[building.EdgeKey]int, routed int) {
	load = make(map[building.EdgeKey]int)
	exits := g.Exits()

	for _, room := range g.Rooms() {
		dist := DistancesFrom(g, room.ID, blocked)
		var (
			nearest building.NodeID
			best    float64
			found   bool
		)
		for _, exit := range exits {
			d, ok := dist[exit]
			if ok && (!found || d < best) {
				nearest, best, found = exit, d, true
			}
		}
		if !found {
			continue
		}

		path, ok := FindPath(g, room.ID, nearest, blocked)
		if !ok {
			continue
		}
		routed++
		for i := 1; i < len(path); i++ {
			load[building.NewEdgeKey(path[i-1], path[i])]++
		}
	}
	return load, routed
}

// ChokePoints returns the n edges carrying the most evacuation traffic,
// highest score first. Equal scores are ordered by edge key. Edges no
// route crosses are never returned.
func ChokePoints(g *building.Graph, blocked building.EdgeSet, n int) []RankedEdge {
	if n <= 0 {
		return nil
	}
	load, routed := EvacuationLoad(g, blocked)
	if routed == 0 {
		return nil
	}

	top := findTopEdges(g.Edges(), load, routed, n)

	stranded := countStrandedRooms(g, blocked)
	for i := range top {
		with := make(building.EdgeSet, len(blocked)+1)
		for k := range blocked {
			with[k] = struct{}{}
		}
		with[top[i].Edge] = struct{}{}
		top[i].Bridge = countStrandedRooms(g, with) > stranded
	}
	return top
}

func countStrandedRooms(g *building.Graph, blocked building.EdgeSet) int {
	stranded := 0
	for _, id := range Unreachable(g, blocked) {
		if n, ok := g.Node(id); ok && n.Feature == building.FeatureRoom {
			stranded++
		}
	}
	return stranded
}

// rankedEdgeHeap is a min-heap whose root is the weakest kept edge.
type rankedEdgeHeap []RankedEdge

func (h rankedEdgeHeap) Len() int           { return len(h) }
func (h rankedEdgeHeap) Less(i, j int) bool { return weaker(h[i], h[j]) }
func (h rankedEdgeHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *rankedEdgeHeap) Push(x any) {
	*h = append(*h, x.(RankedEdge))
}

func (h *rankedEdgeHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}

func weaker(a, b RankedEdge) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.Edge.String() > b.Edge.String()
}

// findTopEdges keeps the n strongest loaded edges using a min-heap.
func findTopEdges(edges []building.EdgeKey, load map[building.EdgeKey]int, routed, n int) []RankedEdge {
	h := make(rankedEdgeHeap, 0, n)
	heap.Init(&h)

	for _, k := range edges {
		count := load[k]
		if count == 0 {
			continue
		}
		re := RankedEdge{Edge: k, Score: float64(count) / float64(routed), Rooms: count}

		if h.Len() < n {
			heap.Push(&h, re)
		} else if weaker(h[0], re) {
			heap.Pop(&h)
			heap.Push(&h, re)
		}
	}

	result := make([]RankedEdge, h.Len())
	for i := h.Len() - 1; i >= 0; i-- {
		result[i] = heap.Pop(&h).(RankedEdge)
	}

	sort.SliceStable(result, func(i, j int) bool { return weaker(result[j], result[i]) })
	return result
}
