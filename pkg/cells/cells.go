// Package cells maps floor plan coordinates onto a fixed square grid.
// Cell ids have the form cell_<x>_<y> and are the grouping key for
// crowd-sourced shaking reports.
package cells

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"

	"github.com/paulmach/orb"
)

var (
	ErrInvalidCell     = errors.New("invalid cell id")
	ErrInvalidPosition = errors.New("position is not a finite coordinate")
	ErrInvalidGrid     = errors.New("invalid grid dimensions")
)

const (
	DefaultCellSize = 60
	DefaultWidth    = 1200
	DefaultHeight   = 820
)

var cellPattern = regexp.MustCompile(`^cell_(-?\d+)_(-?\d+)$`)

// Grid is a square tiling of a width by height extent starting at the origin.
type Grid struct {
	CellSize float64 `yaml:"cell_size" json:"cell_size"`
	Width    float64 `yaml:"width" json:"width"`
	Height   float64 `yaml:"height" json:"height"`
}

// DefaultGrid is the 60 unit grid over the 1200x820 floor plan.
func DefaultGrid() *Grid {
	return &Grid{CellSize: DefaultCellSize, Width: DefaultWidth, Height: DefaultHeight}
}

// NewGrid validates the dimensions.
func NewGrid(cellSize, width, height float64) (*Grid, error) {
	for _, v := range []float64{cellSize, width, height} {
		if !(v > 0) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: size=%v width=%v height=%v", ErrInvalidGrid, cellSize, width, height)
		}
	}
	return &Grid{CellSize: cellSize, Width: width, Height: height}, nil
}

// Cell is a parsed cell id.
type Cell struct {
	ID    string    `json:"id"`
	X     int       `json:"x"`
	Y     int       `json:"y"`
	Bound orb.Bound `json:"-"`
}

// Format renders grid indices as a cell id.
func Format(x, y int) string {
	return "cell_" + strconv.Itoa(x) + "_" + strconv.Itoa(y)
}

// CellID returns the id of the cell containing (x, y).
func (g *Grid) CellID(x, y float64) (string, error) {
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return "", fmt.Errorf("%w: (%v, %v)", ErrInvalidPosition, x, y)
	}
	cx, okX := g.index(x)
	cy, okY := g.index(y)
	if !okX || !okY {
		return "", fmt.Errorf("%w: (%v, %v) is outside the indexable range", ErrInvalidPosition, x, y)
	}
	return Format(cx, cy), nil
}

// maxIndex keeps cell indices exactly representable as float64.
const maxIndex = 1 << 53

// index returns the grid index holding v, nudged by one when float
// division rounds across a cell edge.
func (g *Grid) index(v float64) (int, bool) {
	q := math.Floor(v / g.CellSize)
	if q < -maxIndex || q > maxIndex {
		return 0, false
	}
	if lo := q * g.CellSize; lo > v {
		q--
	} else if lo+g.CellSize <= v {
		q++
	}
	return int(q), true
}

// CellOf is CellID for an orb point.
func (g *Grid) CellOf(p orb.Point) (string, error) {
	return g.CellID(p.X(), p.Y())
}

// Parse decodes a cell id and computes its bounds.
func (g *Grid) Parse(id string) (Cell, error) {
	m := cellPattern.FindStringSubmatch(id)
	if m == nil {
		return Cell{}, fmt.Errorf("%w: %q", ErrInvalidCell, id)
	}
	x, errX := strconv.Atoi(m[1])
	y, errY := strconv.Atoi(m[2])
	if errX != nil || errY != nil {
		return Cell{}, fmt.Errorf("%w: %q", ErrInvalidCell, id)
	}
	return Cell{ID: id, X: x, Y: y, Bound: g.bound(x, y)}, nil
}

func (g *Grid) bound(x, y int) orb.Bound {
	minX, minY := float64(x)*g.CellSize, float64(y)*g.CellSize
	return orb.Bound{
		Min: orb.Point{minX, minY},
		Max: orb.Point{minX + g.CellSize, minY + g.CellSize},
	}
}

// Bounds returns the rectangle covered by the cell.
func (g *Grid) Bounds(id string) (orb.Bound, error) {
	c, err := g.Parse(id)
	if err != nil {
		return orb.Bound{}, err
	}
	return c.Bound, nil
}

// Center returns the midpoint of the cell.
func (g *Grid) Center(id string) (orb.Point, error) {
	b, err := g.Bounds(id)
	if err != nil {
		return orb.Point{}, err
	}
	return b.Center(), nil
}

// InExtent reports whether the whole cell lies inside the grid extent.
func (g *Grid) InExtent(b orb.Bound) bool {
	return b.Min.X() >= 0 && b.Min.Y() >= 0 && b.Max.X() <= g.Width && b.Max.Y() <= g.Height
}

// Direction selects which neighbours Neighbors returns.
type Direction string

const (
	North     Direction = "north"
	South     Direction = "south"
	East      Direction = "east"
	West      Direction = "west"
	NorthEast Direction = "northeast"
	NorthWest Direction = "northwest"
	SouthEast Direction = "southeast"
	SouthWest Direction = "southwest"
	All       Direction = "all"
)

// y grows southwards, matching screen coordinates of the floor plan.
var offsets = map[Direction][2]int{
	North:     {0, -1},
	South:     {0, 1},
	East:      {1, 0},
	West:      {-1, 0},
	NorthEast: {1, -1},
	NorthWest: {-1, -1},
	SouthEast: {1, 1},
	SouthWest: {-1, 1},
}

// allOrder fixes the iteration order for All: orthogonal first, then diagonals.
var allOrder = []Direction{North, South, East, West, NorthEast, NorthWest, SouthEast, SouthWest}

// ParseDirection accepts the lowercase direction names; "" means All.
func ParseDirection(s string) (Direction, error) {
	d := Direction(s)
	if d == "" || d == All {
		return All, nil
	}
	if _, ok := offsets[d]; !ok {
		return "", fmt.Errorf("unknown direction %q", s)
	}
	return d, nil
}

// Neighbors returns the adjacent cell ids in direction dir, keeping only
// cells that lie entirely inside the extent.
func (g *Grid) Neighbors(id string, dir Direction) ([]string, error) {
	c, err := g.Parse(id)
	if err != nil {
		return nil, err
	}

	dirs := allOrder
	if dir != All && dir != "" {
		if _, ok := offsets[dir]; !ok {
			return nil, fmt.Errorf("unknown direction %q", dir)
		}
		dirs = []Direction{dir}
	}

	out := make([]string, 0, len(dirs))
	for _, d := range dirs {
		off := offsets[d]
		nx, ny := c.X+off[0], c.Y+off[1]
		if g.InExtent(g.bound(nx, ny)) {
			out = append(out, Format(nx, ny))
		}
	}
	return out, nil
}

// Columns and Rows give the grid dimensions in cells, rounding up.
func (g *Grid) Columns() int { return int(math.Ceil(g.Width / g.CellSize)) }
func (g *Grid) Rows() int    { return int(math.Ceil(g.Height / g.CellSize)) }

// AllCells enumerates every cell covering the extent, column by column.
// Edge cells may extend past the extent.
func (g *Grid) AllCells() []string {
	cols, rows := g.Columns(), g.Rows()
	out := make([]string, 0, cols*rows)
	for x := 0; x < cols; x++ {
		for y := 0; y < rows; y++ {
			out = append(out, Format(x, y))
		}
	}
	return out
}
