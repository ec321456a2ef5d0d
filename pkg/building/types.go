package building

import (
	"fmt"
	"slices"
	"strings"

	"github.com/paulmach/orb"
)

// NodeID identifies a navigable point. Ids never contain EdgeSeparator.
type NodeID string

// Feature tags a node as a room or an exit.
type Feature string

const (
	FeatureNone Feature = ""
	FeatureRoom Feature = "ROOM"
	FeatureExit Feature = "EXIT"
)

// Node is an immutable navigable point on the floor plan.
type Node struct {
	ID      NodeID    `json:"id"`
	Pos     orb.Point `json:"pos"`
	Label   string    `json:"label,omitempty"`
	Feature Feature   `json:"feature,omitempty"`
}

// IsExit reports whether the node is tagged as an exit.
func (n Node) IsExit() bool { return n.Feature == FeatureExit }

// DisplayName prefers the label and falls back to the id.
func (n Node) DisplayName() string {
	if n.Label != "" {
		return n.Label
	}
	return string(n.ID)
}

// EdgeSeparator joins the endpoints in an edge key string.
const EdgeSeparator = "-"

// EdgeKey is the canonical identifier of an undirected edge.
// NewEdgeKey(a, b) == NewEdgeKey(b, a).
type EdgeKey struct {
	A NodeID
	B NodeID
}

// NewEdgeKey orders the endpoints so both orientations produce the same key.
func NewEdgeKey(a, b NodeID) EdgeKey {
	if b < a {
		a, b = b, a
	}
	return EdgeKey{A: a, B: b}
}

// ParseEdgeKey accepts "a-b" in either orientation.
func ParseEdgeKey(s string) (EdgeKey, error) {
	a, b, ok := strings.Cut(s, EdgeSeparator)
	if !ok || a == "" || b == "" || strings.Contains(b, EdgeSeparator) {
		return EdgeKey{}, fmt.Errorf("%w: %q", ErrInvalidEdgeKey, s)
	}
	return NewEdgeKey(NodeID(a), NodeID(b)), nil
}

func (k EdgeKey) String() string {
	return string(k.A) + EdgeSeparator + string(k.B)
}

// Has reports whether id is one of the endpoints.
func (k EdgeKey) Has(id NodeID) bool {
	return k.A == id || k.B == id
}

// MarshalText lets edge keys serve as JSON map keys and string fields.
func (k EdgeKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses the "a-b" form.
func (k *EdgeKey) UnmarshalText(text []byte) error {
	parsed, err := ParseEdgeKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// EdgeSet is a set of undirected edges. Lookups are orientation-free.
type EdgeSet map[EdgeKey]struct{}

// NewEdgeSet builds a set from keys.
func NewEdgeSet(keys ...EdgeKey) EdgeSet {
	s := make(EdgeSet, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

// Blocks reports whether the edge between a and b is in the set.
// A nil set blocks nothing.
func (s EdgeSet) Blocks(a, b NodeID) bool {
	if len(s) == 0 {
		return false
	}
	_, ok := s[NewEdgeKey(a, b)]
	return ok
}

// Keys returns the members sorted by their string form.
func (s EdgeSet) Keys() []EdgeKey {
	keys := make([]EdgeKey, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(x, y EdgeKey) int { return strings.Compare(x.String(), y.String()) })
	return keys
}

// Path is an ordered walk of node ids from a start node to a destination.
type Path []NodeID

// Last returns the destination, or "" for an empty path.
func (p Path) Last() NodeID {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

// Contains reports whether id appears anywhere on the path.
func (p Path) Contains(id NodeID) bool {
	return slices.Contains(p, id)
}

// Traverses reports whether consecutive nodes of the path use edge k.
func (p Path) Traverses(k EdgeKey) bool {
	for i := 1; i < len(p); i++ {
		if NewEdgeKey(p[i-1], p[i]) == k {
			return true
		}
	}
	return false
}

// Wall is a line segment of the floor plan. It does not affect routing.
type Wall struct {
	From orb.Point `json:"from"`
	To   orb.Point `json:"to"`
}
