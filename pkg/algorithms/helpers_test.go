package algorithms

import (
	"testing"

	"github.com/dd0wney/echoaid/pkg/building"
)

type nodeDef struct {
	id      string
	x, y    float64
	label   string
	feature string
}

func mustGraph(t testing.TB, nodes []nodeDef, edges ...[2]string) *building.Graph {
	t.Helper()
	d := building.Dataset{Name: "test"}
	for _, n := range nodes {
		d.Nodes = append(d.Nodes, building.NodeSpec{ID: n.id, X: n.x, Y: n.y, Label: n.label, Feature: n.feature})
	}
	for _, e := range edges {
		d.Edges = append(d.Edges, []string{e[0], e[1]})
	}
	g, err := building.New(d)
	if err != nil {
		t.Fatalf("building.New() error = %v", err)
	}
	return g
}

// corridorGraph is S - M - A(exit) with a detour S - D1 - D2 - B(exit).
//
//	S(0,0) ── M(100,0) ── A(200,0)
//	 │
//	D1(0,100) ── D2(100,100) ── B(200,100)
func corridorGraph(t testing.TB) *building.Graph {
	return mustGraph(t, []nodeDef{
		{"S", 0, 0, "Start", ""},
		{"M", 100, 0, "Mid", ""},
		{"A", 200, 0, "Exit A", "EXIT"},
		{"D1", 0, 100, "", ""},
		{"D2", 100, 100, "", ""},
		{"B", 200, 100, "Exit B", "EXIT"},
	},
		[2]string{"S", "M"}, [2]string{"M", "A"},
		[2]string{"S", "D1"}, [2]string{"D1", "D2"}, [2]string{"D2", "B"},
	)
}
