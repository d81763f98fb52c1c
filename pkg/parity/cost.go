package parity

import (
	"fmt"
	"math"

	"github.com/vanderheijden86/stepparity/pkg/layout"
)

// CostKind is a transition cost category.
type CostKind int

const (
	CostCrossover CostKind = iota
	CostFootswitch
	CostSideswitch
	CostJack
	CostBracketTap
	CostBracketJack
	CostSlowBracket
	CostDistance
	CostJump
	CostDoublestep
	CostTwistedFoot
	CostFacing
	CostSpin
	CostMissedFootswitch
	CostMine
	CostHoldSwitch

	numCostKinds
)

var costKindNames = [numCostKinds]string{
	"CROSSOVER",
	"FOOTSWITCH",
	"SIDESWITCH",
	"JACK",
	"BRACKETTAP",
	"BRACKETJACK",
	"SLOW_BRACKET",
	"DISTANCE",
	"JUMP",
	"DOUBLESTEP",
	"TWISTED_FOOT",
	"FACING",
	"SPIN",
	"MISSED_FOOTSWITCH",
	"MINE",
	"HOLDSWITCH",
}

func (k CostKind) String() string {
	if k < 0 || k >= numCostKinds {
		return fmt.Sprintf("CostKind(%d)", int(k))
	}
	return costKindNames[k]
}

// CostKinds lists every category in declaration order.
func CostKinds() []CostKind {
	out := make([]CostKind, numCostKinds)
	for i := range out {
		out[i] = CostKind(i)
	}
	return out
}

// ParseCostKind looks a category up by name.
func ParseCostKind(name string) (CostKind, bool) {
	for i, n := range costKindNames {
		if n == name {
			return CostKind(i), true
		}
	}
	return 0, false
}

// Weights multiply each raw category measure.
type Weights [numCostKinds]float64

// DefaultWeights returns the stock tuning.
func DefaultWeights() Weights {
	var w Weights
	w[CostDoublestep] = 850
	w[CostBracketJack] = 20
	w[CostJack] = 30
	w[CostJump] = 10
	w[CostSlowBracket] = 300
	w[CostTwistedFoot] = 100000
	w[CostBracketTap] = 400
	w[CostHoldSwitch] = 55
	w[CostMine] = 10000
	w[CostFootswitch] = 325
	w[CostMissedFootswitch] = 500
	w[CostFacing] = 2
	w[CostDistance] = 6
	w[CostSpin] = 1000
	w[CostSideswitch] = 130
	w[CostCrossover] = 40
	return w
}

// WeightsFromMap applies named weights on top of the defaults.
func WeightsFromMap(m map[string]float64) (Weights, error) {
	return DefaultWeights().Merge(m)
}

// Merge returns a copy of w with the named weights replaced. On error w is
// returned unchanged.
func (w Weights) Merge(m map[string]float64) (Weights, error) {
	out := w
	for name, v := range m {
		k, ok := ParseCostKind(name)
		if !ok {
			return w, fmt.Errorf("unknown cost category %q", name)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return w, fmt.Errorf("weight %s: must be a finite non-negative number, got %v", name, v)
		}
		out[k] = v
	}
	return out, nil
}

// Map returns the weights keyed by category name.
func (w Weights) Map() map[string]float64 {
	m := make(map[string]float64, numCostKinds)
	for i, v := range w {
		m[costKindNames[i]] = v
	}
	return m
}

// Cost is the weighted breakdown of one transition.
type Cost struct {
	Parts [numCostKinds]float64
	Total float64
}

func (c *Cost) add(k CostKind, w *Weights, raw float64) {
	if raw == 0 {
		return
	}
	v := raw * w[k]
	c.Parts[k] += v
	c.Total += v
}

// Breakdown returns the non-zero categories by name.
func (c Cost) Breakdown() map[string]float64 {
	m := make(map[string]float64)
	for i, v := range c.Parts {
		if v != 0 {
			m[costKindNames[i]] = v
		}
	}
	return m
}

// Tuning holds the time and angle thresholds of the cost model.
type Tuning struct {
	// JackCutoff is the elapsed time in seconds above which a jack is free.
	JackCutoff float64 `yaml:"jack_cutoff" json:"jackCutoff"`
	// SlowFootswitch starts the slow footswitch window.
	SlowFootswitch float64 `yaml:"slow_footswitch" json:"slowFootswitch"`
	// FootswitchIgnore is the elapsed time above which a footswitch is free.
	FootswitchIgnore float64 `yaml:"footswitch_ignore" json:"footswitchIgnore"`
	// SlowBracket is the elapsed time above which a stepped bracket costs.
	SlowBracket float64 `yaml:"slow_bracket" json:"slowBracket"`
	// MinElapsed floors the elapsed time used to scale distance.
	MinElapsed float64 `yaml:"min_elapsed" json:"minElapsed"`
	// TwistCos is the facing cosine below which the legs count as twisted.
	TwistCos float64 `yaml:"twist_cos" json:"twistCos"`
	// ToeTwistDot is the toe-direction dot product below which a bracket is twisted.
	ToeTwistDot float64 `yaml:"toe_twist_dot" json:"toeTwistDot"`
	// AmbiguityThreshold is the full-path cost margin under which a row's
	// assignment is flagged ambiguous.
	AmbiguityThreshold float64 `yaml:"ambiguity_threshold" json:"ambiguityThreshold"`
}

// DefaultTuning returns the stock thresholds.
func DefaultTuning() Tuning {
	return Tuning{
		JackCutoff:         0.15,
		SlowFootswitch:     0.2,
		FootswitchIgnore:   0.4,
		SlowBracket:        0.15,
		MinElapsed:         0.1,
		TwistCos:           -0.9,
		ToeTwistDot:        -0.5,
		AmbiguityThreshold: 5,
	}
}

// CostCalculator scores transitions. It holds no mutable state.
type CostCalculator struct {
	Layout  *layout.Layout
	Weights Weights
	Tuning  Tuning
}

// NewCostCalculator returns a calculator with default weights and tuning.
func NewCostCalculator(l *layout.Layout) *CostCalculator {
	return &CostCalculator{Layout: l, Weights: DefaultWeights(), Tuning: DefaultTuning()}
}

// ActionCost scores moving from prev into next, where next is the state for
// rows[i]. rows[i-1] is the row prev was played on; for i == 0 prev is the
// initial state.
func (c *CostCalculator) ActionCost(prev, next *State, rows []Row, i int) Cost {
	var prevRow *Row
	if i > 0 {
		prevRow = &rows[i-1]
	}
	tr := analyzeTransition(c.Layout, &c.Tuning, prev, next, prevRow, &rows[i])
	w := &c.Weights
	var cost Cost

	if tr.crossover {
		cost.add(CostCrossover, w, 1)
	}
	for _, s := range sides {
		if tr.footswitch[s] && tr.elapsed < c.Tuning.FootswitchIgnore {
			raw := 1.0
			if tr.elapsed >= c.Tuning.SlowFootswitch {
				raw = 1.5
			}
			cost.add(CostFootswitch, w, raw)
		}
		if tr.sideswitch[s] {
			cost.add(CostSideswitch, w, 1)
		}
		if tr.jack[s] && tr.elapsed < c.Tuning.JackCutoff {
			cost.add(CostJack, w, 1/math.Max(tr.elapsed, 1e-3)-1/c.Tuning.JackCutoff)
		}
		if tr.bracketTap[s] {
			cost.add(CostBracketTap, w, 1)
		}
		if tr.bracketStep[s] && tr.elapsed > c.Tuning.SlowBracket {
			cost.add(CostSlowBracket, w, tr.elapsed-c.Tuning.SlowBracket)
		}
		if tr.bracketJack[s] {
			cost.add(CostBracketJack, w, 1)
		}
		if tr.doublestep[s] {
			cost.add(CostDoublestep, w, 1)
		}
		if tr.missedFootswitch[s] {
			cost.add(CostMissedFootswitch, w, 1)
		}
	}
	cost.add(CostDistance, w, tr.distance/math.Max(tr.elapsed, c.Tuning.MinElapsed))
	if tr.jump {
		cost.add(CostJump, w, 1)
	}
	if tr.twisted {
		cost.add(CostTwistedFoot, w, 1)
	}
	if tr.facingOK {
		cost.add(CostFacing, w, 1-tr.facingCos)
	}
	if tr.spin {
		cost.add(CostSpin, w, 1)
	}
	cost.add(CostMine, w, float64(tr.mines))
	cost.add(CostHoldSwitch, w, tr.holdSwitch)
	return cost
}
