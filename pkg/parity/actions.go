package parity

import (
	"sync"

	"github.com/vanderheijden86/stepparity/pkg/layout"
	"github.com/vanderheijden86/stepparity/pkg/metrics"
)

// RelaxLevel records which hard constraints were dropped to assign a row.
type RelaxLevel int8

const (
	// RelaxNone means every constraint held.
	RelaxNone RelaxLevel = iota
	// RelaxOverrides means overrides were ignored.
	RelaxOverrides
	// RelaxBrackets means heel+toe pairs no longer need to be in reach.
	RelaxBrackets
	// RelaxCoverage means some active columns were left without a foot-part.
	RelaxCoverage
)

// Action is one admissible assignment of foot-parts to a row's columns.
type Action struct {
	Feet  []Foot
	Relax RelaxLevel
}

// ActionCache enumerates and memoizes the admissible actions of a row.
// Actions depend only on the row's active columns and overrides, so rows
// with the same pattern share one entry.
type ActionCache struct {
	layout *layout.Layout

	mu    sync.Mutex
	cache map[string][]Action
}

// NewActionCache creates an empty cache for l.
func NewActionCache(l *layout.Layout) *ActionCache {
	return &ActionCache{layout: l, cache: make(map[string][]Action)}
}

// Len returns the number of cached patterns.
func (c *ActionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}

// Actions returns the admissible actions for row in a fixed order.
// The result is never empty for a row with at least one active column.
// Callers must not modify the returned slice.
func (c *ActionCache) Actions(row *Row) []Action {
	key := patternKey(row)

	c.mu.Lock()
	defer c.mu.Unlock()
	if acts, ok := c.cache[key]; ok {
		metrics.ActionCache.Hit()
		return acts
	}
	metrics.ActionCache.Miss()
	acts := c.generate(row)
	c.cache[key] = acts
	return acts
}

func patternKey(row *Row) string {
	buf := make([]byte, len(row.Cells))
	for i, cell := range row.Cells {
		switch {
		case !cell.Active():
			buf[i] = '.'
		default:
			buf[i] = byte('a' + cell.Override)
		}
	}
	return string(buf)
}

func (c *ActionCache) generate(row *Row) []Action {
	var active []int
	hasOverride := false
	for col, cell := range row.Cells {
		if cell.Active() {
			active = append(active, col)
			if cell.Override != OverrideNone {
				hasOverride = true
			}
		}
	}
	if len(active) == 0 {
		return []Action{{Feet: make([]Foot, len(row.Cells))}}
	}

	for _, level := range [...]RelaxLevel{RelaxNone, RelaxOverrides, RelaxBrackets, RelaxCoverage} {
		if level == RelaxOverrides && !hasOverride {
			continue
		}
		g := actionGen{
			layout: c.layout,
			row:    row,
			active: active,
			level:  level,
			feet:   make([]Foot, len(row.Cells)),
		}
		g.walk(0)
		if len(g.out) == 0 {
			continue
		}
		if level == RelaxCoverage {
			g.out = mostCovered(g.out)
		}
		if level >= RelaxOverrides && hasOverride {
			g.out = mostOverridden(row, g.out)
		}
		for i := range g.out {
			g.out[i].Relax = level
		}
		return g.out
	}
	// Unreachable: the coverage level always admits the empty assignment.
	return []Action{{Feet: make([]Foot, len(row.Cells)), Relax: RelaxCoverage}}
}

// actionGen walks every assignment of foot-parts to active columns.
type actionGen struct {
	layout *layout.Layout
	row    *Row
	active []int
	level  RelaxLevel

	feet []Foot
	used [footSlots]bool
	out  []Action
}

func (g *actionGen) walk(i int) {
	if i == len(g.active) {
		if g.valid() {
			feet := make([]Foot, len(g.feet))
			copy(feet, g.feet)
			g.out = append(g.out, Action{Feet: feet})
		}
		return
	}
	col := g.active[i]
	override := g.row.Cells[col].Override
	for _, f := range footParts {
		if g.used[f] {
			continue
		}
		if g.level < RelaxOverrides && !override.Allows(f) {
			continue
		}
		g.used[f] = true
		g.feet[col] = f
		g.walk(i + 1)
		g.used[f] = false
		g.feet[col] = FootNone
	}
	if g.level >= RelaxCoverage {
		g.walk(i + 1)
	}
}

func (g *actionGen) valid() bool {
	for _, s := range sides {
		heel, toe := s.Heel(), s.Toe()
		if !g.used[toe] {
			continue
		}
		if !g.used[heel] {
			// A toe may stand alone only where an override pins it.
			if !g.row.Cells[g.columnOf(toe)].Override.PinsToe() {
				return false
			}
			continue
		}
		if g.level >= RelaxBrackets {
			continue
		}
		if !g.layout.BracketCheck(g.columnOf(heel), g.columnOf(toe)) {
			return false
		}
	}
	return true
}

func (g *actionGen) columnOf(f Foot) int {
	for _, col := range g.active {
		if g.feet[col] == f {
			return col
		}
	}
	return -1
}

// mostOverridden keeps the actions that satisfy the most overrides, so a row
// with conflicting overrides still honors the ones it can.
func mostOverridden(row *Row, acts []Action) []Action {
	best := 0
	counts := make([]int, len(acts))
	for i, a := range acts {
		for col, cell := range row.Cells {
			if cell.Override != OverrideNone && a.Feet[col] != FootNone && cell.Override.Allows(a.Feet[col]) {
				counts[i]++
			}
		}
		best = max(best, counts[i])
	}
	out := acts[:0]
	for i, a := range acts {
		if counts[i] == best {
			out = append(out, a)
		}
	}
	return out
}

// mostCovered keeps the actions that assign the most columns.
func mostCovered(acts []Action) []Action {
	best := 0
	counts := make([]int, len(acts))
	for i, a := range acts {
		for _, f := range a.Feet {
			if f != FootNone {
				counts[i]++
			}
		}
		if counts[i] > best {
			best = counts[i]
		}
	}
	out := acts[:0]
	for i, a := range acts {
		if counts[i] == best {
			out = append(out, a)
		}
	}
	return out
}
