// Package layout describes the physical pad for each supported game type.
//
// A Layout is pure data plus geometry queries: panel positions on a unit grid,
// which panels count as side/up/down arrows, how far a single foot can reach
// for a heel+toe bracket, and where the feet rest before the first step.
// The set of layouts is closed; ForGameType selects one by name.
package layout

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r2"
)

// ErrUnknownGameType is returned when no layout exists for a game type.
var ErrUnknownGameType = errors.New("unknown game type")

// DefaultBracketReach is the maximum heel-to-toe distance for a bracket.
// Diagonal neighbours on a dance pad are sqrt(2) apart; opposite panels are 2.
const DefaultBracketReach = 1.5

// Column is a single panel.
type Column struct {
	Pos  r2.Vec
	Side bool
	Up   bool
	Down bool
}

// Layout is the geometry of one game type.
type Layout struct {
	Name         string
	Columns      []Column
	BracketReach float64

	homeLeft  int
	homeRight int
}

// ColumnCount returns the number of panels.
func (l *Layout) ColumnCount() int {
	return len(l.Columns)
}

// Position returns the panel centre of col.
func (l *Layout) Position(col int) r2.Vec {
	return l.Columns[col].Pos
}

// Distance returns the Euclidean distance between two panels.
func (l *Layout) Distance(a, b int) float64 {
	return r2.Norm(r2.Sub(l.Columns[a].Pos, l.Columns[b].Pos))
}

// BracketCheck reports whether one foot can hold heel and toe on a and b.
func (l *Layout) BracketCheck(a, b int) bool {
	if a == b {
		return false
	}
	return l.Distance(a, b) <= l.BracketReach
}

// IsSide reports whether col is a side (left/right) arrow.
func (l *Layout) IsSide(col int) bool { return l.Columns[col].Side }

// IsUp reports whether col is an up arrow.
func (l *Layout) IsUp(col int) bool { return l.Columns[col].Up }

// IsDown reports whether col is a down arrow.
func (l *Layout) IsDown(col int) bool { return l.Columns[col].Down }

// HomeColumns returns the columns the left and right foot rest on before the
// first row of a chart.
func (l *Layout) HomeColumns() (left, right int) {
	return l.homeLeft, l.homeRight
}

// Midpoint returns the point halfway between p and q.
func Midpoint(p, q r2.Vec) r2.Vec {
	return r2.Scale(0.5, r2.Add(p, q))
}

// FacingVector returns the unit direction a player faces when standing with
// the left foot at left and the right foot at right. The stage front is +Y.
// ok is false when both points coincide.
func FacingVector(left, right r2.Vec) (r2.Vec, bool) {
	v := r2.Sub(right, left)
	if r2.Norm2(v) < 1e-12 {
		return r2.Vec{}, false
	}
	// Rotate left-to-right by +90 degrees.
	return r2.Unit(r2.Vec{X: -v.Y, Y: v.X}), true
}

// FacingAngle returns the facing direction in degrees, 0 forward, positive
// turning to the right, in (-180, 180].
func FacingAngle(left, right r2.Vec) (float64, bool) {
	f, ok := FacingVector(left, right)
	if !ok {
		return 0, false
	}
	a := math.Atan2(f.X, f.Y) * 180 / math.Pi
	if a <= -180 {
		a += 360
	}
	return a, true
}

// ForGameType returns the layout for name, e.g. "dance-single".
func ForGameType(name string) (*Layout, error) {
	build, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGameType, name)
	}
	return build(), nil
}

// GameTypes lists supported game types in sorted order.
func GameTypes() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var registry = map[string]func() *Layout{
	"dance-single": danceSingle,
	"dance-double": danceDouble,
	"dance-solo":   danceSolo,
	"pump-single":  pumpSingle,
	"pump-double":  pumpDouble,
}

func danceSingle() *Layout {
	return &Layout{
		Name:         "dance-single",
		Columns:      danceCols(0),
		BracketReach: DefaultBracketReach,
		homeLeft:     0,
		homeRight:    3,
	}
}

func danceDouble() *Layout {
	cols := append(danceCols(0), danceCols(3)...)
	return &Layout{
		Name:         "dance-double",
		Columns:      cols,
		BracketReach: DefaultBracketReach,
		homeLeft:     3,
		homeRight:    4,
	}
}

func danceSolo() *Layout {
	return &Layout{
		Name: "dance-solo",
		Columns: []Column{
			{Pos: r2.Vec{X: 0, Y: 1}, Side: true},
			{Pos: r2.Vec{X: 0.2, Y: 1.8}, Up: true},
			{Pos: r2.Vec{X: 1, Y: 0}, Down: true},
			{Pos: r2.Vec{X: 1, Y: 2}, Up: true},
			{Pos: r2.Vec{X: 1.8, Y: 1.8}, Up: true},
			{Pos: r2.Vec{X: 2, Y: 1}, Side: true},
		},
		BracketReach: DefaultBracketReach,
		homeLeft:     0,
		homeRight:    5,
	}
}

func pumpSingle() *Layout {
	return &Layout{
		Name:         "pump-single",
		Columns:      pumpCols(0),
		BracketReach: DefaultBracketReach,
		homeLeft:     0,
		homeRight:    4,
	}
}

func pumpDouble() *Layout {
	cols := append(pumpCols(0), pumpCols(3)...)
	return &Layout{
		Name:         "pump-double",
		Columns:      cols,
		BracketReach: DefaultBracketReach,
		homeLeft:     4,
		homeRight:    5,
	}
}

// danceCols returns Left, Down, Up, Right shifted by dx.
func danceCols(dx float64) []Column {
	return []Column{
		{Pos: r2.Vec{X: dx + 0, Y: 1}, Side: true},
		{Pos: r2.Vec{X: dx + 1, Y: 0}, Down: true},
		{Pos: r2.Vec{X: dx + 1, Y: 2}, Up: true},
		{Pos: r2.Vec{X: dx + 2, Y: 1}, Side: true},
	}
}

// pumpCols returns DownLeft, UpLeft, Center, UpRight, DownRight shifted by dx.
func pumpCols(dx float64) []Column {
	return []Column{
		{Pos: r2.Vec{X: dx + 0, Y: 0}, Down: true},
		{Pos: r2.Vec{X: dx + 0, Y: 2}, Up: true},
		{Pos: r2.Vec{X: dx + 1, Y: 1}},
		{Pos: r2.Vec{X: dx + 2, Y: 2}, Up: true},
		{Pos: r2.Vec{X: dx + 2, Y: 0}, Down: true},
	}
}
