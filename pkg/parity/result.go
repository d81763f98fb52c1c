package parity

import (
	"sort"
	"time"

	"github.com/vanderheijden86/stepparity/pkg/metrics"
	"gonum.org/v1/gonum/floats"
)

// Result is the outcome of a compute: labels for every note plus the
// statistics derived from the best path.
type Result struct {
	ParityLabels         map[string]Foot          `json:"parityLabels"`
	States               []*State                 `json:"states"`
	Beats                []float64                `json:"beats"`
	Seconds              []float64                `json:"seconds"`
	Techniques           [][]Technique            `json:"techniques"`
	TechniqueErrors      map[int][]TechniqueError `json:"techniqueErrors"`
	TechniqueCounts      map[Technique]int        `json:"techniqueCounts"`
	TechniqueErrorCounts map[TechniqueError]int   `json:"techniqueErrorCounts"`
	Facings              []float64                `json:"facings"`
	Candles              map[int]Foot             `json:"candles"`
	RowCosts             []float64                `json:"rowCosts"`
	Cost                 float64                  `json:"cost"`

	Debug *ComputeDebug `json:"debug,omitempty"`

	path BestPath
}

func (r *Result) applyStats(st *RowStats) {
	r.Techniques = st.Techniques
	r.TechniqueErrors = st.Errors
	r.TechniqueCounts = st.TechniqueCounts
	r.TechniqueErrorCounts = st.ErrorCounts
	r.Facings = st.Facings
	r.Candles = st.Candles
}

func (r *Result) stats() *RowStats {
	return &RowStats{
		Techniques:      r.Techniques,
		Errors:          r.TechniqueErrors,
		Facings:         r.Facings,
		Candles:         r.Candles,
		TechniqueCounts: r.TechniqueCounts,
		ErrorCounts:     r.TechniqueErrorCounts,
	}
}

// BestPath returns the node keys of the chosen path.
func (r *Result) BestPath() BestPath { return r.path }

// Label returns the foot assigned to the note at beat on col.
func (r *Result) Label(beat float64, col int) (Foot, bool) {
	f, ok := r.ParityLabels[NoteKey(beat, col)]
	return f, ok
}

// Summary condenses a result for reports.
type Summary struct {
	Rows        int     `json:"rows"`
	Notes       int     `json:"notes"`
	Cost        float64 `json:"cost"`
	MeanRowCost float64 `json:"meanRowCost"`
	PeakRowCost float64 `json:"peakRowCost"`
	PeakRow     int     `json:"peakRow"`
	Errors      int     `json:"errors"`
}

// Summary computes aggregate figures over the row costs.
func (r *Result) Summary() Summary {
	s := Summary{Rows: len(r.States), Notes: len(r.ParityLabels), Cost: r.Cost, PeakRow: -1}
	if len(r.RowCosts) > 0 {
		s.MeanRowCost = floats.Sum(r.RowCosts) / float64(len(r.RowCosts))
		s.PeakRow = floats.MaxIdx(r.RowCosts)
		s.PeakRowCost = r.RowCosts[s.PeakRow]
	}
	for _, n := range r.TechniqueErrorCounts {
		s.Errors += n
	}
	return s
}

// SortedTechniques returns technique counts ordered by name.
func (r *Result) SortedTechniques() []Technique {
	out := make([]Technique, 0, len(r.TechniqueCounts))
	for t := range r.TechniqueCounts {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// BestPath is the chosen node per row.
type BestPath struct {
	Keys     []string        `json:"keys"`
	Cost     float64         `json:"cost"`
	Included map[string]bool `json:"included"`
}

func newBestPath(keys []string, cost float64) BestPath {
	inc := make(map[string]bool, len(keys))
	for _, k := range keys {
		inc[k] = true
	}
	return BestPath{Keys: keys, Cost: cost, Included: inc}
}

// CacheSizes reports how much the engine holds.
type CacheSizes struct {
	Rows           int `json:"rows"`
	Nodes          int `json:"nodes"`
	Edges          int `json:"edges"`
	ActionPatterns int `json:"actionPatterns"`
}

// ComputeDebug describes what one compute did.
type ComputeDebug struct {
	ChangedFirst  int                   `json:"changedFirst"`
	ChangedLast   int                   `json:"changedLast"`
	ChangedNodes  []string              `json:"changedNodes"`
	EdgesComputed int                   `json:"edgesComputed"`
	BestPath      BestPath              `json:"bestPath"`
	Caches        CacheSizes            `json:"caches"`
	Timings       []metrics.TimingStats `json:"timings"`
	CacheMetrics  []metrics.CacheStats  `json:"cacheMetrics"`
	DurationMs    float64               `json:"durationMs"`
	// Graph is set for computes that asked for debug output.
	Graph *GraphCheck `json:"graph,omitempty"`
}

// NodeView is a node as exposed in a debug snapshot.
type NodeView struct {
	Layer  int                `json:"layer"`
	State  *State             `json:"state"`
	Cum    float64            `json:"cum"`
	ToGo   float64            `json:"toGo"`
	Parent string             `json:"parent,omitempty"`
	Edges  map[string]float64 `json:"edges"`
}

// DebugSnapshot is the full internal state after the last compute.
type DebugSnapshot struct {
	Nodes    map[string]NodeView `json:"nodes"`
	BestPath BestPath            `json:"bestPath"`
	Rows     []Row               `json:"rows"`
	Weights  map[string]float64  `json:"weights"`
	Caches   CacheSizes          `json:"caches"`
	Stats    *RowStats           `json:"stats"`
	Graph    GraphCheck          `json:"graph"`
	Computed time.Time           `json:"computed"`
}
