package building

import (
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/paulmach/orb"
)

// Dataset is the on-disk shape of a building. YAML and JSON share the tags.
type Dataset struct {
	Name  string      `yaml:"name" json:"name"`
	Nodes []NodeSpec  `yaml:"nodes" json:"nodes" validate:"required,min=1,dive"`
	Edges [][]string  `yaml:"edges" json:"edges" validate:"dive,len=2,dive,required"`
	Exits []string    `yaml:"exits,omitempty" json:"exits,omitempty" validate:"dive,required"`
	Walls [][]float64 `yaml:"walls,omitempty" json:"walls,omitempty" validate:"dive,len=4"`
}

// NodeSpec is one node entry of a Dataset.
type NodeSpec struct {
	ID      string  `yaml:"id" json:"id" validate:"required,node_id"`
	X       float64 `yaml:"x" json:"x"`
	Y       float64 `yaml:"y" json:"y"`
	Label   string  `yaml:"label,omitempty" json:"label,omitempty"`
	Feature string  `yaml:"feature,omitempty" json:"feature,omitempty" validate:"omitempty,oneof=ROOM EXIT"`
}

var nodeIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.:]+$`)

var datasetValidator = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("node_id", func(fl validator.FieldLevel) bool {
		return nodeIDPattern.MatchString(fl.Field().String())
	})
	return v
}()

// Validate checks field-level constraints. Referential checks happen in New.
func (d *Dataset) Validate() error {
	if err := datasetValidator.Struct(d); err != nil {
		return &DatasetError{Op: "validate", Entity: "dataset", Cause: err}
	}
	return nil
}

// New assembles an immutable Graph from a dataset. Duplicate edges are
// collapsed; an exit is any node tagged EXIT plus any id listed under exits.
func New(d Dataset) (*Graph, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	g := &Graph{
		name:      d.Name,
		nodes:     make(map[NodeID]Node, len(d.Nodes)),
		order:     make([]NodeID, 0, len(d.Nodes)),
		adjacency: make(map[NodeID][]NodeID, len(d.Nodes)),
		edgeSet:   make(EdgeSet, len(d.Edges)),
	}

	first := true
	extend := func(p orb.Point) {
		if first {
			g.bound = orb.Bound{Min: p, Max: p}
			first = false
			return
		}
		g.bound = g.bound.Extend(p)
	}

	for _, ns := range d.Nodes {
		id := NodeID(ns.ID)
		if _, dup := g.nodes[id]; dup {
			return nil, nodeError("build", ns.ID, ErrDuplicateNode)
		}
		n := Node{ID: id, Pos: orb.Point{ns.X, ns.Y}, Label: ns.Label, Feature: Feature(ns.Feature)}
		g.nodes[id] = n
		g.order = append(g.order, id)
		extend(n.Pos)
		if n.Feature == FeatureExit {
			g.exits = append(g.exits, id)
		}
	}

	for _, pair := range d.Edges {
		a, b := NodeID(pair[0]), NodeID(pair[1])
		label := fmt.Sprintf("%s%s%s", a, EdgeSeparator, b)
		if a == b {
			return nil, edgeError("build", label, ErrSelfLoop)
		}
		for _, end := range []NodeID{a, b} {
			if _, ok := g.nodes[end]; !ok {
				return nil, edgeError("build", label, fmt.Errorf("%w: %s", ErrUnknownEndpoint, end))
			}
		}
		k := NewEdgeKey(a, b)
		if _, seen := g.edgeSet[k]; seen {
			continue
		}
		g.edgeSet[k] = struct{}{}
		g.edges = append(g.edges, k)
		g.adjacency[a] = append(g.adjacency[a], b)
		g.adjacency[b] = append(g.adjacency[b], a)
	}

	for _, raw := range d.Exits {
		id := NodeID(raw)
		if _, ok := g.nodes[id]; !ok {
			return nil, &DatasetError{Op: "build", Entity: "exit", ID: raw, Cause: ErrNodeNotFound}
		}
		if !g.IsExit(id) {
			g.exits = append(g.exits, id)
		}
	}

	for _, w := range d.Walls {
		wall := Wall{From: orb.Point{w[0], w[1]}, To: orb.Point{w[2], w[3]}}
		g.walls = append(g.walls, wall)
		extend(wall.From)
		extend(wall.To)
	}

	return g, nil
}

// Dataset converts the graph back to its serialisable form.
func (g *Graph) Dataset() Dataset {
	d := Dataset{Name: g.name}
	for _, id := range g.order {
		n := g.nodes[id]
		d.Nodes = append(d.Nodes, NodeSpec{ID: string(n.ID), X: n.Pos.X(), Y: n.Pos.Y(), Label: n.Label, Feature: string(n.Feature)})
		if g.IsExit(id) && n.Feature != FeatureExit {
			d.Exits = append(d.Exits, string(id))
		}
	}
	for _, k := range g.edges {
		d.Edges = append(d.Edges, []string{string(k.A), string(k.B)})
	}
	for _, w := range g.walls {
		d.Walls = append(d.Walls, []float64{w.From.X(), w.From.Y(), w.To.X(), w.To.Y()})
	}
	return d
}
