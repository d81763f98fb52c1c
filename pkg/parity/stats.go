package parity

import (
	"sort"

	"github.com/vanderheijden86/stepparity/pkg/layout"
)

// Technique is a movement pattern found on the best path.
type Technique string

const (
	TechCrossover  Technique = "crossover"
	TechFootswitch Technique = "footswitch"
	TechSideswitch Technique = "sideswitch"
	TechJack       Technique = "jack"
	TechBracket    Technique = "bracket"
	TechDoublestep Technique = "doublestep"
	TechHoldSwitch Technique = "holdswitch"
	TechJump       Technique = "jump"
)

// TechniqueError marks an assignment a charter may want to review.
type TechniqueError string

const (
	UnmarkedDoublestep TechniqueError = "unmarked_doublestep"
	MissedFootswitch   TechniqueError = "missed_footswitch"
	Ambiguous          TechniqueError = "ambiguous"
	OverrideConflict   TechniqueError = "override_conflict"
)

// RowStats is everything derived from the best path.
type RowStats struct {
	Techniques      [][]Technique            `json:"techniques"`
	Errors          map[int][]TechniqueError `json:"errors"`
	Facings         []float64                `json:"facings"`
	Candles         map[int]Foot             `json:"candles"`
	TechniqueCounts map[Technique]int        `json:"techniqueCounts"`
	ErrorCounts     map[TechniqueError]int   `json:"errorCounts"`
}

// DeriveStats classifies each transition of path. path[i] is the state for
// rows[i] and start is the state before the first row. ambiguous may be nil.
func DeriveStats(l *layout.Layout, t *Tuning, rows []Row, start *State, path []*State, ambiguous []bool) *RowStats {
	st := &RowStats{
		Techniques:      make([][]Technique, len(path)),
		Errors:          make(map[int][]TechniqueError),
		Facings:         make([]float64, len(path)),
		Candles:         make(map[int]Foot),
		TechniqueCounts: make(map[Technique]int),
		ErrorCounts:     make(map[TechniqueError]int),
	}

	prev := start
	for i, next := range path {
		var prevRow *Row
		if i > 0 {
			prevRow = &rows[i-1]
		}
		tr := analyzeTransition(l, t, prev, next, prevRow, &rows[i])

		techs := make([]Technique, 0, 2)
		var errs []TechniqueError
		tag := func(tech Technique, on bool) {
			if on {
				techs = append(techs, tech)
			}
		}
		flag := func(e TechniqueError, on bool) {
			if on {
				errs = append(errs, e)
			}
		}

		tag(TechCrossover, tr.crossover)
		tag(TechFootswitch, tr.footswitch[Left] || tr.footswitch[Right])
		tag(TechSideswitch, tr.sideswitch[Left] || tr.sideswitch[Right])
		tag(TechJack, tr.jack[Left] || tr.jack[Right])
		tag(TechBracket, tr.bracket[Left] || tr.bracket[Right])
		tag(TechDoublestep, tr.doublestep[Left] || tr.doublestep[Right])
		tag(TechHoldSwitch, tr.holdSwitched)
		tag(TechJump, tr.jump)

		for _, s := range sides {
			if tr.doublestep[s] && !sideOverridden(&rows[i], next, s) && !(prevRow != nil && sideOverridden(prevRow, prev, s)) {
				flag(UnmarkedDoublestep, true)
				break
			}
		}
		flag(MissedFootswitch, tr.missedFootswitch[Left] || tr.missedFootswitch[Right])
		flag(Ambiguous, i < len(ambiguous) && ambiguous[i])
		flag(OverrideConflict, next.Relax >= RelaxOverrides && rowHasOverride(&rows[i]))

		sort.Slice(techs, func(a, b int) bool { return techs[a] < techs[b] })
		st.Techniques[i] = techs
		for _, tech := range techs {
			st.TechniqueCounts[tech]++
		}
		if len(errs) > 0 {
			sort.Slice(errs, func(a, b int) bool { return errs[a] < errs[b] })
			st.Errors[i] = errs
			for _, e := range errs {
				st.ErrorCounts[e]++
			}
		}

		if tr.facingOK {
			st.Facings[i] = tr.facing
		}
		for _, s := range sides {
			if f := tr.candle[s]; f != FootNone {
				st.Candles[i] = f
				break
			}
		}
		prev = next
	}
	return st
}

// sideOverridden reports whether a note stepped by side in row carries an
// override.
func sideOverridden(row *Row, s *State, side Side) bool {
	for col, f := range s.Columns {
		if f != FootNone && f.Side() == side && row.Cells[col].Note && row.Cells[col].Override != OverrideNone {
			return true
		}
	}
	return false
}

func rowHasOverride(row *Row) bool {
	for _, c := range row.Cells {
		if c.Override != OverrideNone {
			return true
		}
	}
	return false
}
