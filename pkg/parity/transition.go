package parity

import (
	"math"

	"github.com/vanderheijden86/stepparity/pkg/layout"
	"gonum.org/v1/gonum/spatial/r2"
)

// transition is the geometry of one step between two states. Both the cost
// calculator and the statistics deriver read it, so a technique tag always
// agrees with the cost that was paid for it.
type transition struct {
	elapsed float64

	moved     [2]bool
	prevMoved [2]bool
	newCol    [2]bool

	jack             [2]bool
	doublestep       [2]bool
	footswitch       [2]bool
	sideswitch       [2]bool
	bracket          [2]bool
	bracketStep      [2]bool
	bracketTap       [2]bool
	bracketJack      [2]bool
	missedFootswitch [2]bool
	candle           [2]Foot // the part that crossed between up and down arrows

	jump      bool
	crossed   bool
	crossover bool
	twisted   bool
	spin      bool
	facingOK  bool
	facingCos float64
	facing    float64

	distance     float64
	mines        int
	holdSwitch   float64
	holdSwitched bool
}

func analyzeTransition(l *layout.Layout, t *Tuning, prev, next *State, prevRow, row *Row) transition {
	tr := transition{elapsed: next.Second - prev.Second}

	var landsOwn [2]bool
	for _, s := range sides {
		tr.moved[s] = next.SideMoved(s)
		tr.prevMoved[s] = prev.SideMoved(s)
		landsOwn[s] = tr.moved[s]
	}

	for _, f := range footParts {
		if !next.Moved[f] {
			continue
		}
		s := f.Side()
		col := next.Where[f]
		if !prev.occupies(s, col) {
			tr.newCol[s] = true
			landsOwn[s] = false
		}
		if prev.occupies(s.Other(), col) {
			if l.IsSide(col) {
				tr.sideswitch[s] = true
			} else {
				tr.footswitch[s] = true
			}
		}
		if from := prevColumn(prev, f); from >= 0 {
			tr.distance += l.Distance(from, col)
			if (l.IsUp(from) && l.IsDown(col)) || (l.IsDown(from) && l.IsUp(col)) {
				tr.candle[s] = f
			}
		}
	}

	tr.jump = tr.moved[Left] && tr.moved[Right]
	for _, s := range sides {
		o := s.Other()
		alone := tr.moved[s] && tr.prevMoved[s] && !tr.prevMoved[o] && !tr.moved[o]
		tr.jack[s] = alone && landsOwn[s]
		tr.doublestep[s] = alone && !tr.jack[s] && !prev.SideHolding(o) && !next.SideHolding(o)

		heel, toe := s.Heel(), s.Toe()
		if tr.moved[s] && inRow(next, heel) && inRow(next, toe) {
			tr.bracket[s] = true
			switch {
			case next.Moved[heel] && next.Moved[toe]:
				tr.bracketStep[s] = true
				tr.bracketJack[s] = prev.Moved[heel] && prev.Moved[toe] &&
					prev.Where[heel] == next.Where[heel] && prev.Where[toe] == next.Where[toe]
			case next.Holding[heel] && !next.Moved[heel], next.Holding[toe] && !next.Moved[toe]:
				tr.bracketTap[s] = true
			}
		}

		if tr.jack[s] && prevRow != nil {
			for _, f := range [...]Foot{heel, toe} {
				if next.Moved[f] && prevRow.Cells[next.Where[f]].Mine {
					tr.missedFootswitch[s] = true
				}
			}
		}
	}

	if left, right, ok := next.Stance(l); ok {
		tr.crossed = right.X < left.X
		tr.crossover = tr.crossed && (tr.newCol[Left] || tr.newCol[Right])
		if f, ok := layout.FacingVector(left, right); ok {
			tr.facingOK = true
			tr.facingCos = f.Y
			tr.facing, _ = layout.FacingAngle(left, right)
			tr.twisted = tr.facingCos < t.TwistCos || toeTwisted(l, t, next, f)
		}
	}
	if tr.facingOK {
		if pl, pr, ok := prev.Stance(l); ok {
			if pa, ok := layout.FacingAngle(pl, pr); ok {
				na := tr.facing
				tr.spin = math.Abs(pa) > 90 && math.Abs(na) > 90 && (pa > 0) != (na > 0)
			}
		}
	}

	for col, cell := range row.Cells {
		if cell.Mine {
			for _, f := range footParts {
				if next.Where[f] == col {
					tr.mines++
					break
				}
			}
		}
		if !cell.Hold {
			continue
		}
		holder := FootNone
		for _, f := range footParts {
			if prev.Where[f] == col && prev.Holding[f] {
				holder = f
				break
			}
		}
		taker := next.Columns[col]
		if holder == FootNone || taker == FootNone || holder.Side() == taker.Side() {
			continue
		}
		tr.holdSwitched = true
		tr.holdSwitch++
		if from := prevColumn(prev, taker); from >= 0 {
			tr.holdSwitch += l.Distance(from, col)
		}
	}
	return tr
}

// prevColumn is where f was before the step, falling back to its partner
// when f itself was off the pad.
func prevColumn(prev *State, f Foot) int {
	if c := prev.Where[f]; c >= 0 {
		return c
	}
	return prev.Where[f.Partner()]
}

func inRow(s *State, f Foot) bool {
	c := s.Where[f]
	return c >= 0 && s.Columns[c] == f
}

// toeTwisted reports a bracket whose toe points behind the player.
func toeTwisted(l *layout.Layout, t *Tuning, s *State, facing r2.Vec) bool {
	for _, side := range sides {
		heel, toe := s.Where[side.Heel()], s.Where[side.Toe()]
		if heel < 0 || toe < 0 {
			continue
		}
		dir := r2.Unit(r2.Sub(l.Position(toe), l.Position(heel)))
		if r2.Dot(dir, facing) < t.ToeTwistDot {
			return true
		}
	}
	return false
}
