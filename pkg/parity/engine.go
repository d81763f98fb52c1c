package parity

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/vanderheijden86/stepparity/pkg/debug"
	"github.com/vanderheijden86/stepparity/pkg/layout"
	"github.com/vanderheijden86/stepparity/pkg/metrics"
)

// Engine owns the search graph for one chart. It is not safe for concurrent
// use; the worker package serializes access.
type Engine struct {
	layout  *layout.Layout
	calc    *CostCalculator
	actions *ActionCache
	states  stateStage

	// version is bumped on every weights change; pathVer is the version the
	// current cumulative costs were computed with.
	version uint64
	pathVer uint64

	graph *arena
	rows  []Row

	last      *Result
	lastDebug *ComputeDebug
	lastTime  time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithWeights sets the initial weights.
func WithWeights(w Weights) Option {
	return func(e *Engine) { e.calc.Weights = w }
}

// WithTuning sets the cost model thresholds.
func WithTuning(t Tuning) Option {
	return func(e *Engine) { e.calc.Tuning = t }
}

// NewEngine returns an engine for l with empty caches.
func NewEngine(l *layout.Layout, opts ...Option) *Engine {
	e := &Engine{
		layout:  l,
		calc:    NewCostCalculator(l),
		actions: NewActionCache(l),
		version: 1,
	}
	e.states = stateStage{layout: l, actions: e.actions}
	for _, opt := range opts {
		opt(e)
	}
	e.graph = newArena()
	return e
}

// Layout returns the engine's stage layout.
func (e *Engine) Layout() *layout.Layout { return e.layout }

// Weights returns the active weights.
func (e *Engine) Weights() Weights { return e.calc.Weights }

// Tuning returns the active thresholds.
func (e *Engine) Tuning() Tuning { return e.calc.Tuning }

// SetWeights replaces the weights. Every cached edge becomes stale.
func (e *Engine) SetWeights(w Weights) {
	if w == e.calc.Weights {
		return
	}
	e.calc.Weights = w
	e.version++
	e.last = nil
	debug.Log("weights changed, version %d", e.version)
}

// SetTuning replaces the thresholds. Every cached edge becomes stale.
func (e *Engine) SetTuning(t Tuning) {
	if t == e.calc.Tuning {
		return
	}
	e.calc.Tuning = t
	e.version++
	e.last = nil
}

// Reset drops every cache.
func (e *Engine) Reset() {
	e.graph = newArena()
	e.rows = nil
	e.actions = NewActionCache(e.layout)
	e.states.actions = e.actions
	e.last = nil
	e.lastDebug = nil
	e.pathVer = 0
}

// Compute recomputes parity after the notedata between start and end beats
// changed. notes is the whole chart. The first call, or a call with an
// infinite range, rebuilds everything.
//
// A nil result with a nil error means the chart has no playable notes.
// If the cached graph turns out to be inconsistent, caches are dropped and
// the compute is retried once from scratch.
func (e *Engine) Compute(start, end float64, notes []Note, withDebug bool) (*Result, error) {
	defer metrics.Timer(metrics.ComputeTotal)()

	res, err := e.compute(start, end, notes, withDebug)
	if errors.Is(err, ErrInvariant) {
		debug.Log("compute: %v; rebuilding from scratch", err)
		e.Reset()
		res, err = e.compute(math.Inf(-1), math.Inf(1), notes, withDebug)
	}
	if err != nil && !errors.Is(err, ErrMalformedNotedata) {
		e.Reset()
	}
	return res, err
}

func (e *Engine) compute(start, end float64, notes []Note, withDebug bool) (*Result, error) {
	began := time.Now()
	defer debug.LogEnterExit("compute")()

	stop := metrics.Timer(metrics.RowRecompute)
	var rows []Row
	var err error
	if len(e.rows) == 0 || math.IsInf(start, -1) || math.IsInf(end, 1) {
		rows, err = BuildRows(notes, e.layout.ColumnCount())
	} else {
		rows, err = RebuildRows(e.rows, notes, e.layout.ColumnCount(), start, end)
	}
	stop()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		e.graph = newArena()
		e.rows = nil
		e.last = nil
		e.lastDebug = nil
		return nil, nil
	}

	diff := DiffRows(e.rows, rows)
	fresh := e.pathVer != e.version || e.last == nil
	if !diff.Changed && !fresh {
		if withDebug {
			res := *e.last
			res.Debug = e.newComputeDebug(diff, nil, 0, time.Since(began))
			return &res, nil
		}
		return e.last, nil
	}

	from := len(rows)
	if diff.Changed {
		from = diff.First
	}
	g := e.graph
	if g.start == nil || from == 0 {
		if g.start != nil {
			delete(g.nodes, g.start.key)
		}
		s := initialState(e.layout, &rows[0])
		g.start = &node{key: s.Key, state: s}
		g.nodes[s.Key] = g.start
	}

	stop = metrics.Timer(metrics.StateRecompute)
	oldLayers := g.layers
	created, err := e.states.run(g, rows, from, diff, oldLayers)
	stop()
	if err != nil {
		return nil, err
	}

	pathFrom := from
	if fresh {
		pathFrom = 0
	}
	stop = metrics.Timer(metrics.CostRecompute)
	edges, err := costStage(g, e.calc, e.version, rows, pathFrom)
	stop()
	if err != nil {
		return nil, err
	}

	stop = metrics.Timer(metrics.PathRecompute)
	err = pathStage(g, rows, pathFrom)
	var path []*node
	if err == nil {
		path, err = backtrack(g)
	}
	if err == nil {
		togoStage(g)
	}
	stop()
	if err != nil {
		return nil, err
	}

	stop = metrics.Timer(metrics.StatsDerive)
	res := e.buildResult(rows, path)
	stop()

	removed := prune(g)
	e.rows = rows
	e.pathVer = e.version
	e.last = res
	e.lastTime = time.Now()

	e.lastDebug = e.newComputeDebug(diff, created, edges, time.Since(began))
	debug.Log("compute: rows=%d changed=[%d,%d] from=%d created=%d edges=%d pruned=%d cost=%.3f",
		len(rows), diff.First, diff.Last, from, len(created), edges, removed, res.Cost)

	if withDebug {
		check := e.CheckGraph()
		e.lastDebug.Graph = &check
		out := *res
		out.Debug = e.lastDebug
		return &out, nil
	}
	return res, nil
}

// buildResult assembles labels and statistics for the best path.
func (e *Engine) buildResult(rows []Row, path []*node) *Result {
	states := make([]*State, len(path))
	for i, n := range path {
		states[i] = n.state
	}
	ambiguous := e.ambiguity(path)
	stats := DeriveStats(e.layout, &e.calc.Tuning, rows, e.graph.start.state, states, ambiguous)

	res := &Result{
		ParityLabels: make(map[string]Foot),
		States:       states,
		Beats:        make([]float64, len(rows)),
		Seconds:      make([]float64, len(rows)),
		RowCosts:     make([]float64, len(rows)),
		Cost:         path[len(path)-1].cum,
	}
	for i, n := range path {
		if p, ok := e.graph.nodes[n.parent]; ok {
			res.RowCosts[i] = p.edges[n.key].Total
		}
	}
	for i := range rows {
		res.Beats[i] = rows[i].Beat
		res.Seconds[i] = rows[i].Second
		for col, cell := range rows[i].Cells {
			if cell.Note {
				res.ParityLabels[NoteKey(rows[i].Beat, col)] = states[i].Columns[col]
			}
		}
	}
	res.applyStats(stats)

	keys := make([]string, len(path))
	for i, n := range path {
		keys[i] = n.key
	}
	res.path = newBestPath(keys, res.Cost)
	return res
}

// ambiguity flags rows where a node with a different assignment lies on a
// full path whose cost is within the threshold of the best.
func (e *Engine) ambiguity(path []*node) []bool {
	out := make([]bool, len(path))
	threshold := e.calc.Tuning.AmbiguityThreshold
	if threshold <= 0 {
		return out
	}
	for i, best := range path {
		total := best.cum + best.togo
		alt := math.Inf(1)
		for _, k := range e.graph.layers[i] {
			n := e.graph.nodes[k]
			if sameColumns(n.state.Columns, best.state.Columns) {
				continue
			}
			if c := n.cum + n.togo; c < alt {
				alt = c
			}
		}
		out[i] = alt-total < threshold
	}
	return out
}

func sameColumns(a, b []Foot) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// LastResult returns the most recent successful result, or nil.
func (e *Engine) LastResult() *Result { return e.last }

// Stats reports cache sizes.
func (e *Engine) Stats() CacheSizes {
	return CacheSizes{
		Rows:           len(e.rows),
		Nodes:          len(e.graph.nodes),
		Edges:          e.graph.edgeCount(),
		ActionPatterns: e.actions.Len(),
	}
}

func (e *Engine) newComputeDebug(diff RowDiff, created []string, edges int, took time.Duration) *ComputeDebug {
	d := &ComputeDebug{
		ChangedFirst:  diff.First,
		ChangedLast:   diff.Last,
		ChangedNodes:  created,
		EdgesComputed: edges,
		Caches:        e.Stats(),
		Timings:       metrics.AllTimingStats(),
		CacheMetrics:  metrics.AllCacheStats(),
		DurationMs:    float64(took.Microseconds()) / 1000,
	}
	if d.ChangedNodes == nil {
		d.ChangedNodes = []string{}
	}
	if e.last != nil {
		d.BestPath = e.last.path
	}
	return d
}

// DebugSnapshot returns the full internal state of the last compute, or nil
// if there is none.
func (e *Engine) DebugSnapshot() *DebugSnapshot {
	if e.last == nil {
		return nil
	}
	snap := &DebugSnapshot{
		Nodes:    make(map[string]NodeView, len(e.graph.nodes)),
		BestPath: e.last.path,
		Rows:     e.rows,
		Weights:  e.calc.Weights.Map(),
		Caches:   e.Stats(),
		Stats:    e.last.stats(),
		Graph:    e.CheckGraph(),
		Computed: e.lastTime,
	}
	for i, layer := range e.graph.layers {
		for _, k := range layer {
			n := e.graph.nodes[k]
			snap.Nodes[k] = n.view(i)
		}
	}
	if s := e.graph.start; s != nil {
		snap.Nodes[s.key] = s.view(-1)
	}
	return snap
}

func (n *node) view(layer int) NodeView {
	v := NodeView{
		Layer:  layer,
		State:  n.state,
		Cum:    n.cum,
		ToGo:   n.togo,
		Parent: n.parent,
		Edges:  make(map[string]float64, len(n.edges)),
	}
	for k, c := range n.edges {
		v.Edges[k] = c.Total
	}
	return v
}

// String describes the engine for logs.
func (e *Engine) String() string {
	s := e.Stats()
	return fmt.Sprintf("Engine{%s rows=%d nodes=%d edges=%d}", e.layout.Name, s.Rows, s.Nodes, s.Edges)
}
