package parity

import (
	"strconv"

	"github.com/vanderheijden86/stepparity/pkg/layout"
	"gonum.org/v1/gonum/spatial/r2"
)

// State is the placement of the feet after a row has been played.
// States are immutable once built.
type State struct {
	Beat   float64 `json:"beat"`
	Second float64 `json:"second"`
	// Columns is this row's assignment, one entry per column.
	Columns []Foot `json:"columns"`
	// Where maps each foot-part to the column it rests on, or -1.
	Where [footSlots]int `json:"where"`
	// Moved marks foot-parts that stepped on a note in this row.
	Moved [footSlots]bool `json:"moved"`
	// Holding marks foot-parts that stay down on a hold after this row.
	Holding   [footSlots]bool `json:"holding"`
	FrontFoot Side            `json:"frontFoot"`
	// Relax is the constraint relaxation level the assignment came from.
	Relax RelaxLevel `json:"relax,omitempty"`
	Key   string     `json:"key"`
}

const startKey = "start"

// initialState places the feet on the layout's home columns, one second
// before the first row.
func initialState(l *layout.Layout, first *Row) *State {
	s := &State{
		Beat:    first.Beat - 1,
		Second:  first.Second - 1,
		Columns: make([]Foot, l.ColumnCount()),
	}
	for i := range s.Where {
		s.Where[i] = -1
	}
	left, right := l.HomeColumns()
	s.Where[LeftHeel] = left
	s.Where[RightHeel] = right
	s.FrontFoot = frontFoot(l, s)
	s.Key = startKey + "|" + l.Name
	return s
}

// advance plays row from prev using the assignment action.
//
// A side that steps lifts whichever of its parts are not used in the row.
// A part left on a column that another part now takes is displaced.
func advance(l *layout.Layout, prev *State, row *Row, action Action) *State {
	next := &State{
		Beat:    row.Beat,
		Second:  row.Second,
		Columns: action.Feet,
		Where:   prev.Where,
		Relax:   action.Relax,
	}

	var assigned [footSlots]bool
	var sideMoved [2]bool
	for col, f := range action.Feet {
		if f == FootNone {
			continue
		}
		cell := row.Cells[col]
		assigned[f] = true
		if cell.Note {
			next.Moved[f] = true
			sideMoved[f.Side()] = true
		}
		next.Holding[f] = cell.holding()
	}

	for _, s := range sides {
		if !sideMoved[s] {
			continue
		}
		for _, f := range [...]Foot{s.Heel(), s.Toe()} {
			if !assigned[f] {
				next.Where[f] = -1
			}
		}
	}
	for col, f := range action.Feet {
		if f == FootNone {
			continue
		}
		for _, g := range footParts {
			if g != f && !assigned[g] && next.Where[g] == col {
				next.Where[g] = -1
			}
		}
		next.Where[f] = col
	}

	next.FrontFoot = frontFoot(l, next)
	next.Key = stateKey(next)
	return next
}

func stateKey(s *State) string {
	buf := make([]byte, 0, 32+2*len(s.Columns))
	buf = strconv.AppendFloat(buf, s.Beat, 'g', -1, 64)
	buf = append(buf, '|')
	for _, f := range s.Columns {
		buf = append(buf, byte('0'+f))
	}
	buf = append(buf, '|')
	for _, f := range footParts {
		if f != footParts[0] {
			buf = append(buf, ',')
		}
		buf = strconv.AppendInt(buf, int64(s.Where[f]), 10)
	}
	return string(buf)
}

// SidePos returns where a side stands: the heel, the toe, or the midpoint
// of both. ok is false when the side is off the pad.
func (s *State) SidePos(l *layout.Layout, side Side) (r2.Vec, bool) {
	heel, toe := s.Where[side.Heel()], s.Where[side.Toe()]
	switch {
	case heel >= 0 && toe >= 0:
		return layout.Midpoint(l.Position(heel), l.Position(toe)), true
	case heel >= 0:
		return l.Position(heel), true
	case toe >= 0:
		return l.Position(toe), true
	}
	return r2.Vec{}, false
}

// Stance returns both side positions.
func (s *State) Stance(l *layout.Layout) (left, right r2.Vec, ok bool) {
	left, lok := s.SidePos(l, Left)
	right, rok := s.SidePos(l, Right)
	return left, right, lok && rok
}

// SideMoved reports whether any part of side stepped in this row.
func (s *State) SideMoved(side Side) bool {
	return s.Moved[side.Heel()] || s.Moved[side.Toe()]
}

// SideHolding reports whether any part of side is down on a hold.
func (s *State) SideHolding(side Side) bool {
	return s.Holding[side.Heel()] || s.Holding[side.Toe()]
}

// occupies reports whether side rests on col.
func (s *State) occupies(side Side, col int) bool {
	return col >= 0 && (s.Where[side.Heel()] == col || s.Where[side.Toe()] == col)
}

// frontFoot returns the side standing closer to the front of the pad.
func frontFoot(l *layout.Layout, s *State) Side {
	left, right, ok := s.Stance(l)
	if !ok {
		return NoSide
	}
	switch {
	case left.Y > right.Y:
		return Left
	case right.Y > left.Y:
		return Right
	}
	return NoSide
}
