package graphql

import (
	"errors"
	"fmt"

	"github.com/graphql-go/graphql"

	"github.com/dd0wney/echoaid/pkg/algorithms"
	"github.com/dd0wney/echoaid/pkg/building"
	"github.com/dd0wney/echoaid/pkg/cells"
	"github.com/dd0wney/echoaid/pkg/routing"
	"github.com/dd0wney/echoaid/pkg/sensing"
)

// Resolvers hand graphql-go plain maps so the default field resolver can
// serve every scalar; only object-valued fields need their own resolver.

func (b *schemaBuilder) nodeMap(n building.Node) map[string]any {
	cell, err := b.src.Grid.CellOf(n.Pos)
	if err != nil {
		cell = ""
	}
	return map[string]any{
		"id":          string(n.ID),
		"label":       n.Label,
		"displayName": n.DisplayName(),
		"feature":     string(n.Feature),
		"x":           n.Pos.X(),
		"y":           n.Pos.Y(),
		"isExit":      n.IsExit(),
		"cell":        cell,
	}
}

func (b *schemaBuilder) nodeByID(id building.NodeID) any {
	n, ok := b.src.Graph.Node(id)
	if !ok {
		return nil
	}
	return b.nodeMap(n)
}

func (b *schemaBuilder) nodeList(nodes []building.Node) []any {
	out := make([]any, len(nodes))
	for i, n := range nodes {
		out[i] = b.nodeMap(n)
	}
	return out
}

func sourceString(p graphql.ResolveParams, key string) string {
	m, ok := p.Source.(map[string]any)
	if !ok {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

// resolveNodeRef resolves an object field whose source carries a node id
// under key.
func (b *schemaBuilder) resolveNodeRef(key string) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (any, error) {
		return b.nodeByID(building.NodeID(sourceString(p, key))), nil
	}
}

func (b *schemaBuilder) resolveNeighbors(p graphql.ResolveParams) (any, error) {
	ids := b.src.Graph.Neighbors(building.NodeID(sourceString(p, "id")))
	out := make([]any, 0, len(ids))
	for _, id := range ids {
		if n := b.nodeByID(id); n != nil {
			out = append(out, n)
		}
	}
	return out, nil
}

func (b *schemaBuilder) resolveBuilding(graphql.ResolveParams) (any, error) {
	g := b.src.Graph
	exits := make([]building.Node, 0, len(g.Exits()))
	for _, id := range g.Exits() {
		if n, ok := g.Node(id); ok {
			exits = append(exits, n)
		}
	}
	return map[string]any{
		"name":      g.Name(),
		"nodeCount": g.NodeCount(),
		"edgeCount": g.EdgeCount(),
		"exits":     b.nodeList(exits),
		"rooms":     b.nodeList(g.Rooms()),
	}, nil
}

func (b *schemaBuilder) resolveNode(p graphql.ResolveParams) (any, error) {
	id, _ := p.Args["id"].(string)
	return b.nodeByID(building.NodeID(id)), nil
}

func (b *schemaBuilder) resolveNodes(p graphql.ResolveParams) (any, error) {
	if q, _ := p.Args["query"].(string); q != "" {
		return b.nodeList(b.src.Graph.Search(q)), nil
	}
	return b.nodeList(b.src.Graph.Nodes()), nil
}

func (b *schemaBuilder) resolveBlockades(graphql.ResolveParams) (any, error) {
	blockades := b.src.Coordinator.Blockades()
	out := make([]any, len(blockades))
	for i, bl := range blockades {
		out[i] = map[string]any{
			"edge":       bl.Edge.String(),
			"from":       string(bl.Edge.A),
			"to":         string(bl.Edge.B),
			"reporterId": bl.ReporterID,
			"createdAt":  float64(bl.CreatedAt.UnixMilli()),
		}
	}
	return out, nil
}

// resolveCongestion lists loaded nodes in dataset order.
func (b *schemaBuilder) resolveCongestion(graphql.ResolveParams) (any, error) {
	load := b.src.Coordinator.Congestion()
	var out []any
	for _, n := range b.src.Graph.Nodes() {
		if c := load[n.ID]; c > 0 {
			out = append(out, map[string]any{"nodeId": string(n.ID), "occupants": c})
		}
	}
	return out, nil
}

func (b *schemaBuilder) resolveOccupants(p graphql.ResolveParams) (any, error) {
	want, _ := p.Args["status"].(string)
	var out []any
	for _, st := range b.src.Evacuation.Statuses() {
		if want != "" && string(st.Status) != want {
			continue
		}
		remaining := make([]string, len(st.Remaining))
		for i, id := range st.Remaining {
			remaining[i] = string(id)
		}
		out = append(out, map[string]any{
			"id":        st.ID,
			"nodeId":    string(st.Node),
			"status":    string(st.Status),
			"mode":      string(st.Mode),
			"cell":      st.Cell,
			"remaining": remaining,
		})
	}
	return out, nil
}

func alertMap(a sensing.Alert) map[string]any {
	return map[string]any{
		"id":           a.ID,
		"cellId":       a.CellID,
		"timestamp":    float64(a.Timestamp.UnixMilli()),
		"deviceCount":  a.DeviceCount,
		"devices":      a.Devices,
		"avgIntensity": a.AvgIntensity,
		"maxIntensity": a.MaxIntensity,
		"confidence":   a.Confidence,
		"status":       a.Status,
	}
}

func (b *schemaBuilder) resolveAlerts(p graphql.ResolveParams) (any, error) {
	cell, _ := p.Args["cell"].(string)
	var out []any
	for _, a := range b.src.Aggregator.Alerts() {
		if cell == "" || a.CellID == cell {
			out = append(out, alertMap(a))
		}
	}
	return out, nil
}

func (b *schemaBuilder) resolveCell(p graphql.ResolveParams) (any, error) {
	id, _ := p.Args["id"].(string)
	c, err := b.src.Grid.Parse(id)
	if err != nil {
		return nil, err
	}
	neighbors, err := b.src.Grid.Neighbors(c.ID, cells.All)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"id":        c.ID,
		"x":         c.X,
		"y":         c.Y,
		"neighbors": neighbors,
	}, nil
}

func (b *schemaBuilder) resolveCellAlert(p graphql.ResolveParams) (any, error) {
	a, ok := b.src.Aggregator.AlertForCell(sourceString(p, "id"))
	if !ok {
		return nil, nil
	}
	return alertMap(a), nil
}

func (b *schemaBuilder) resolveStats(graphql.ResolveParams) (any, error) {
	s := b.src.Aggregator.Stats()
	return map[string]any{
		"totalEvents":   s.TotalEvents,
		"totalAlerts":   s.TotalAlerts,
		"activeDevices": s.ActiveDevices,
	}, nil
}

// errNoRoute surfaces as a field error; the rest of the query still resolves.
var errNoRoute = errors.New("no reachable exit")

func (b *schemaBuilder) resolveRoute(p graphql.ResolveParams) (any, error) {
	from, _ := p.Args["from"].(string)
	start := building.NodeID(from)
	if !b.src.Graph.HasNode(start) {
		return nil, fmt.Errorf("%w: %q", routing.ErrUnknownNode, from)
	}

	r, ok := b.src.Coordinator.RouteLocal(start)
	if !ok {
		return nil, errNoRoute
	}

	path := make([]string, len(r.Path))
	for i, id := range r.Path {
		path[i] = string(id)
	}
	steps := algorithms.Directions(b.src.Graph, r.Path)
	directions := make([]any, len(steps))
	for i, s := range steps {
		directions[i] = map[string]any{
			"direction":   string(s.Turn),
			"to":          string(s.To),
			"distance":    s.Distance,
			"instruction": s.Instruction,
		}
	}
	return map[string]any{
		"exitId":     string(r.Exit),
		"distance":   r.Distance,
		"path":       path,
		"directions": directions,
	}, nil
}
