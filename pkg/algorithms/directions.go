package algorithms

import (
	"fmt"
	"math"

	"github.com/dd0wney/echoaid/pkg/building"
)

// Turn is the manoeuvre at a waypoint.
type Turn string

const (
	TurnStraight Turn = "straight"
	TurnLeft     Turn = "left"
	TurnRight    Turn = "right"
	TurnArrive   Turn = "arrive"
)

// straightTolerance is the largest heading change, in degrees, still announced as straight.
const straightTolerance = 30.0

// Step is one spoken navigation instruction.
type Step struct {
	Turn        Turn            `json:"direction"`
	To          building.NodeID `json:"to"`
	Distance    float64         `json:"distance"`
	Instruction string          `json:"instruction"`
}

// Directions turns a path into turn-by-turn steps: one per hop plus a
// final arrival step. Paths shorter than two nodes produce no steps.
func Directions(g *building.Graph, p building.Path) []Step {
	if len(p) < 2 {
		return nil
	}

	steps := make([]Step, 0, len(p))
	for i := 0; i+1 < len(p); i++ {
		next := p[i+1]
		dist := g.Distance(p[i], next)
		label := displayName(g, next)
		meters := int(dist)

		if i == 0 {
			steps = append(steps, Step{
				Turn:        TurnStraight,
				To:          next,
				Distance:    dist,
				Instruction: fmt.Sprintf("Proceed straight for %d meters to %s.", meters, label),
			})
			continue
		}

		turn := TurnAt(g, p[i-1], p[i], next)
		text := fmt.Sprintf("Turn %s and proceed %d meters to %s.", turn, meters, label)
		if turn == TurnStraight {
			text = fmt.Sprintf("Continue straight for %d meters to %s.", meters, label)
		}
		steps = append(steps, Step{Turn: turn, To: next, Distance: dist, Instruction: text})
	}

	last := p.Last()
	return append(steps, Step{
		Turn:        TurnArrive,
		To:          last,
		Instruction: fmt.Sprintf("You have arrived at %s.", displayName(g, last)),
	})
}

// TurnAt classifies the heading change at cur when walking prev -> cur -> next.
// Coordinates follow the floor plan image: y grows downwards, so a positive
// cross product is a clockwise, right-hand turn.
func TurnAt(g *building.Graph, prev, cur, next building.NodeID) Turn {
	a, _ := g.Node(prev)
	b, _ := g.Node(cur)
	c, _ := g.Node(next)

	v1x, v1y := b.Pos.X()-a.Pos.X(), b.Pos.Y()-a.Pos.Y()
	v2x, v2y := c.Pos.X()-b.Pos.X(), c.Pos.Y()-b.Pos.Y()
	cross := v1x*v2y - v1y*v2x
	dot := v1x*v2x + v1y*v2y

	deg := math.Atan2(cross, dot) * 180 / math.Pi
	switch {
	case math.Abs(deg) < straightTolerance:
		return TurnStraight
	case deg > 0:
		return TurnRight
	default:
		return TurnLeft
	}
}

func displayName(g *building.Graph, id building.NodeID) string {
	if n, ok := g.Node(id); ok {
		return n.DisplayName()
	}
	return string(id)
}
