package parity_test

import (
	"errors"
	"math"
	"path/filepath"
	"slices"
	"testing"

	json "github.com/goccy/go-json"
	"pgregory.net/rapid"

	"github.com/vanderheijden86/stepparity/pkg/layout"
	"github.com/vanderheijden86/stepparity/pkg/loader"
	"github.com/vanderheijden86/stepparity/pkg/parity"
	"github.com/vanderheijden86/stepparity/pkg/testutil"
)

var full = [2]float64{math.Inf(-1), math.Inf(1)}

// tb is the subset of testing.TB that rapid.T also satisfies.
type tb interface {
	Helper()
	Fatal(args ...any)
	Fatalf(format string, args ...any)
}

func newEngine(t tb, opts ...parity.Option) *parity.Engine {
	t.Helper()
	l, err := layout.ForGameType("dance-single")
	if err != nil {
		t.Fatal(err)
	}
	return parity.NewEngine(l, opts...)
}

func computeAll(t tb, e *parity.Engine, notes []parity.Note) *parity.Result {
	t.Helper()
	res, err := e.Compute(full[0], full[1], notes, false)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	return res
}

func mustJSON(t tb, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

func note(beat, second float64, col int) parity.Note {
	return parity.Note{Beat: beat, Second: second, Col: col}
}

func TestCompute_AlternationBaseline(t *testing.T) {
	notes := []parity.Note{note(0, 0, 0), note(2, 1, 3), note(4, 2, 0), note(6, 3, 3)}
	res := computeAll(t, newEngine(t), notes)

	testutil.AssertOneStatePerRow(t, res, 4)
	testutil.AssertLabels(t, res, notes, parity.LeftHeel, parity.RightHeel, parity.LeftHeel, parity.RightHeel)
	if res.TechniqueCounts[parity.TechDoublestep] != 0 {
		t.Errorf("alternating taps should not doublestep: %v", res.TechniqueCounts)
	}
}

func TestCompute_JackDetection(t *testing.T) {
	notes := []parity.Note{note(0, 0, 0), note(0.25, 0.08, 0)}
	res := computeAll(t, newEngine(t), notes)

	testutil.AssertLabels(t, res, notes, parity.LeftHeel, parity.LeftHeel)
	if !slices.Contains(res.Techniques[1], parity.TechJack) {
		t.Errorf("row 1 techniques = %v, want jack", res.Techniques[1])
	}
}

func TestCompute_OverridesRespected(t *testing.T) {
	gen := testutil.NewDefault()
	notes := gen.Stream(40)
	for i := range notes {
		switch i % 5 {
		case 1:
			notes[i].Override = parity.OverrideLeft
		case 3:
			notes[i].Override = parity.OverrideRight
		}
	}
	res := computeAll(t, newEngine(t), notes)
	testutil.AssertOverridesRespected(t, res, notes)
	if n := res.TechniqueErrorCounts[parity.OverrideConflict]; n != 0 {
		t.Errorf("satisfiable overrides reported %d conflicts", n)
	}

	t.Run("toes", func(t *testing.T) {
		a, b := note(0, 0, 1), note(1, 0.5, 2)
		a.Override = parity.OverrideLeftToe
		b.Override = parity.OverrideRightToe
		notes := []parity.Note{a, b}
		res := computeAll(t, newEngine(t), notes)

		testutil.AssertLabels(t, res, notes, parity.LeftToe, parity.RightToe)
		if n := res.TechniqueErrorCounts[parity.OverrideConflict]; n != 0 {
			t.Errorf("toe overrides reported %d conflicts: %v", n, res.TechniqueErrors)
		}
	})
}

func TestCompute_OverrideConflictIsReported(t *testing.T) {
	a, b := note(0, 0, 0), note(0, 0, 3)
	a.Override = parity.OverrideLeft
	b.Override = parity.OverrideLeft
	res := computeAll(t, newEngine(t), []parity.Note{a, b})

	errs := res.TechniqueErrors[0]
	if !slices.Contains(errs, parity.OverrideConflict) {
		t.Errorf("row 0 errors = %v, want override_conflict", errs)
	}
	testutil.AssertOneStatePerRow(t, res, 1)
}

func TestCompute_Coverage(t *testing.T) {
	notes := testutil.QuickRandom(120)
	rows, err := parity.BuildRows(notes, 4)
	if err != nil {
		t.Fatal(err)
	}
	res := computeAll(t, newEngine(t), notes)
	testutil.AssertOneStatePerRow(t, res, len(rows))
	testutil.AssertEveryNoteLabeled(t, res, notes)
}

func TestCompute_HoldKeepsOtherFootFree(t *testing.T) {
	notes := []parity.Note{
		{Beat: 0, Second: 0, Col: 0, Type: parity.NoteHold, EndBeat: 4, EndSecond: 2},
		note(1, 0.5, 1),
		note(2, 1, 2),
		note(3, 1.5, 1),
	}
	res := computeAll(t, newEngine(t), notes)
	testutil.AssertLabels(t, res, notes, parity.LeftHeel, parity.RightHeel, parity.RightHeel, parity.RightHeel)
	if res.TechniqueCounts[parity.TechDoublestep] != 0 {
		t.Errorf("steps while the other foot holds are not doublesteps: %v", res.Techniques)
	}
}

func TestCompute_AvoidsMines(t *testing.T) {
	notes := []parity.Note{
		note(0, 0, 1),
		{Beat: 0.5, Second: 0.25, Col: 3, Type: parity.NoteMine},
		note(1, 0.5, 2),
	}
	res := computeAll(t, newEngine(t), notes)
	if f, _ := res.Label(0, 1); f != parity.RightHeel {
		t.Errorf("down arrow before a mine under the right foot: got %s, want right_heel", f)
	}
}

func TestCompute_Empty(t *testing.T) {
	e := newEngine(t)
	res, err := e.Compute(full[0], full[1], nil, false)
	if err != nil || res != nil {
		t.Errorf("empty chart: res=%v err=%v, want nil, nil", res, err)
	}
	res, err = e.Compute(full[0], full[1], []parity.Note{{Beat: 1, Col: 2, Type: parity.NoteMine}}, false)
	if err != nil || res != nil {
		t.Errorf("mines only: res=%v err=%v, want nil, nil", res, err)
	}
}

func TestCompute_Malformed(t *testing.T) {
	e := newEngine(t)
	_, err := e.Compute(full[0], full[1], []parity.Note{note(0, 0, 7)}, false)
	if !errors.Is(err, parity.ErrMalformedNotedata) {
		t.Fatalf("err = %v, want ErrMalformedNotedata", err)
	}
	if res := computeAll(t, e, []parity.Note{note(0, 0, 1)}); res == nil {
		t.Error("engine should keep working after bad input")
	}
}

func TestCompute_DeterministicReplay(t *testing.T) {
	notes := testutil.QuickRandom(80)
	e := newEngine(t)
	a := mustJSON(t, computeAll(t, e, notes))
	b := mustJSON(t, computeAll(t, e, notes))
	c := mustJSON(t, computeAll(t, newEngine(t), notes))
	if a != b {
		t.Error("repeated compute on one engine differs")
	}
	if a != c {
		t.Error("compute on a fresh engine differs")
	}
}

func TestCompute_IncrementalEdits(t *testing.T) {
	gen := testutil.NewDefault()
	notes := gen.Random(60)
	e := newEngine(t)
	computeAll(t, e, notes)

	edits := []struct {
		name       string
		start, end float64
		apply      func([]parity.Note) []parity.Note
	}{
		{"move a tap", 10, 10, func(ns []parity.Note) []parity.Note {
			return replaceRange(ns, 10, 10, gen.Tap(10, 2))
		}},
		{"insert a jump", 7.25, 7.25, func(ns []parity.Note) []parity.Note {
			return replaceRange(ns, 7.25, 7.25, gen.Tap(7.25, 0), gen.Tap(7.25, 3))
		}},
		{"clear a range", 4, 8, func(ns []parity.Note) []parity.Note {
			return replaceRange(ns, 4, 8)
		}},
		{"add a long hold", 2, 2, func(ns []parity.Note) []parity.Note {
			return replaceRange(ns, 2, 2, gen.Hold(2, 12, 1))
		}},
		{"edit the first row", 0, 0, func(ns []parity.Note) []parity.Note {
			return replaceRange(ns, 0, 0, gen.Tap(0, 3))
		}},
	}
	for _, ed := range edits {
		notes = ed.apply(notes)
		got, err := e.Compute(ed.start, ed.end, notes, false)
		if err != nil {
			t.Fatalf("%s: %v", ed.name, err)
		}
		want := computeAll(t, newEngine(t), notes)
		if mustJSON(t, got) != mustJSON(t, want) {
			t.Fatalf("%s: incremental result differs from full recompute", ed.name)
		}
	}
}

// replaceRange drops notes starting in [start, end] and adds the notes of
// repl that do not collide with a kept note, so the edit stays inside the
// range.
func replaceRange(notes []parity.Note, start, end float64, repl ...parity.Note) []parity.Note {
	var kept []parity.Note
	for _, n := range notes {
		if n.Beat < start || n.Beat > end {
			kept = append(kept, n)
		}
	}
	out := slices.Clone(kept)
	for _, n := range testutil.Dedupe(repl) {
		if !testutil.Collides(kept, n) {
			out = append(out, n)
		}
	}
	testutil.SortNotes(out)
	return out
}

func drawChart(t *rapid.T, label string, lo, hi int) []parity.Note {
	gen := testutil.NewDefault()
	n := rapid.IntRange(0, 3*(hi-lo)).Draw(t, label+"_n")
	var notes []parity.Note
	for i := 0; i < n; i++ {
		beat := float64(rapid.IntRange(lo, hi-1).Draw(t, label+"_beat")) / 4
		col := rapid.IntRange(0, 3).Draw(t, label+"_col")
		switch rapid.IntRange(0, 7).Draw(t, label+"_kind") {
		case 0:
			notes = append(notes, gen.Hold(beat, beat+float64(rapid.IntRange(1, 8).Draw(t, label+"_len"))/4, col))
		case 1:
			notes = append(notes, gen.Mine(beat, col))
		default:
			notes = append(notes, gen.Tap(beat, col))
		}
	}
	return testutil.Dedupe(notes)
}

func TestCompute_IncrementalMatchesFull(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		notes := drawChart(t, "chart", 0, 48)
		e := newEngine(t)
		if _, err := e.Compute(full[0], full[1], notes, false); err != nil {
			t.Fatalf("initial compute: %v", err)
		}

		edits := rapid.IntRange(1, 3).Draw(t, "edits")
		for k := 0; k < edits; k++ {
			lo := rapid.IntRange(0, 47).Draw(t, "lo")
			hi := rapid.IntRange(lo, min(lo+8, 47)).Draw(t, "hi")
			start, end := float64(lo)/4, float64(hi)/4
			notes = replaceRange(notes, start, end, drawChart(t, "edit", lo, hi+1)...)

			got, err := e.Compute(start, end, notes, false)
			if err != nil {
				t.Fatalf("incremental compute: %v", err)
			}
			want, err := newEngine(t).Compute(full[0], full[1], notes, false)
			if err != nil {
				t.Fatalf("full compute: %v", err)
			}
			if mustJSON(t, got) != mustJSON(t, want) {
				t.Fatalf("edit %d over [%v,%v]: incremental result differs from full recompute", k, start, end)
			}
		}
	})
}

func TestCompute_CrossoverWeightMonotone(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		notes := drawChart(t, "chart", 0, 32)
		w1 := float64(rapid.IntRange(0, 200).Draw(t, "w1"))
		dw := float64(rapid.IntRange(1, 400).Draw(t, "dw"))

		count := func(w float64) int {
			weights := parity.DefaultWeights()
			weights[parity.CostCrossover] = w
			res, err := newEngine(t, parity.WithWeights(weights)).Compute(full[0], full[1], notes, false)
			if err != nil {
				t.Fatalf("compute: %v", err)
			}
			if res == nil {
				return 0
			}
			return res.TechniqueCounts[parity.TechCrossover]
		}
		lo, hi := count(w1), count(w1+dw)
		if hi > lo {
			t.Fatalf("crossovers rose from %d to %d when the weight grew from %v to %v", lo, hi, w1, w1+dw)
		}
	})
}

func TestCompute_WeightsChangeMatchesFresh(t *testing.T) {
	notes := testutil.QuickRandom(60)
	e := newEngine(t)
	computeAll(t, e, notes)

	w := parity.DefaultWeights()
	w[parity.CostCrossover] = 5
	w[parity.CostDoublestep] = 100
	e.SetWeights(w)
	got := computeAll(t, e, notes)
	want := computeAll(t, newEngine(t, parity.WithWeights(w)), notes)
	if mustJSON(t, got) != mustJSON(t, want) {
		t.Error("result after SetWeights differs from a fresh engine with those weights")
	}
}

func TestCompute_MatchesDijkstra(t *testing.T) {
	notes := testutil.QuickRandom(50)
	e := newEngine(t)
	res := computeAll(t, e, notes)

	sg, err := e.SearchGraph()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := sg.Order(); err != nil {
		t.Fatalf("search graph should be acyclic: %v", err)
	}
	keys, cost := sg.ShortestPath()
	if math.Abs(cost-res.Cost) > 1e-6*math.Max(1, res.Cost) {
		t.Errorf("dijkstra cost %v, dynamic programming cost %v", cost, res.Cost)
	}
	if len(keys) != len(res.States) {
		t.Errorf("dijkstra path has %d nodes, want %d", len(keys), len(res.States))
	}
}

func TestCompute_Debug(t *testing.T) {
	gen := testutil.NewDefault()
	notes := gen.Stream(20)
	e := newEngine(t)

	if e.DebugSnapshot() != nil {
		t.Error("no snapshot before the first compute")
	}
	res, err := e.Compute(full[0], full[1], notes, true)
	if err != nil {
		t.Fatal(err)
	}
	if res.Debug == nil || res.Debug.ChangedFirst != 0 || len(res.Debug.ChangedNodes) == 0 {
		t.Fatalf("first compute debug = %+v", res.Debug)
	}

	res, err = e.Compute(0, 0, notes, true)
	if err != nil {
		t.Fatal(err)
	}
	if res.Debug.ChangedFirst != -1 || len(res.Debug.ChangedNodes) != 0 {
		t.Errorf("no-op compute debug = %+v", res.Debug)
	}

	notes[5].Col = (notes[5].Col + 1) % 4
	if notes[5].Col == notes[4].Col || notes[5].Col == notes[6].Col {
		notes[5].Col = (notes[5].Col + 1) % 4
	}
	res, err = e.Compute(notes[5].Beat, notes[5].Beat, notes, true)
	if err != nil {
		t.Fatal(err)
	}
	if res.Debug.ChangedFirst != 5 {
		t.Errorf("changed first = %d, want 5", res.Debug.ChangedFirst)
	}
	if g := res.Debug.Graph; g == nil || !g.Acyclic || !g.CostAgrees || g.Error != "" {
		t.Errorf("graph check = %+v", g)
	} else if g.Nodes <= len(res.States) || g.Edges == 0 {
		t.Errorf("graph check counted %d nodes, %d edges", g.Nodes, g.Edges)
	}
	if plain, err := e.Compute(0, 0, notes, false); err != nil || plain.Debug != nil {
		t.Errorf("compute without debug should carry no debug payload: %v", err)
	}

	snap := e.DebugSnapshot()
	if snap == nil {
		t.Fatal("snapshot missing after compute")
	}
	for _, k := range snap.BestPath.Keys {
		if _, ok := snap.Nodes[k]; !ok {
			t.Errorf("best path node %s missing from snapshot", k)
		}
	}
	if len(snap.Rows) != 20 {
		t.Errorf("snapshot rows = %d, want 20", len(snap.Rows))
	}
	if !snap.Graph.CostAgrees || snap.Graph.PathCost != res.Cost {
		t.Errorf("snapshot graph check = %+v, cost %v", snap.Graph, res.Cost)
	}
}

func BenchmarkCompute_Full(b *testing.B) {
	notes := testutil.QuickRandom(500)
	for i := 0; i < b.N; i++ {
		newEngine(b).Compute(full[0], full[1], notes, false)
	}
}

func BenchmarkCompute_SingleEdit(b *testing.B) {
	gen := testutil.NewDefault()
	notes := gen.Random(500)
	e := newEngine(b)
	e.Compute(full[0], full[1], notes, false)
	for i := 0; i < b.N; i++ {
		notes = replaceRange(notes, 100, 100, gen.Tap(100, i%4))
		e.Compute(100, 100, notes, false)
	}
}

// BenchmarkCompute_Datasets runs the charts written by
// scripts/generate_testdata.go, when present.
func BenchmarkCompute_Datasets(b *testing.B) {
	for _, name := range []string{"small", "medium", "large"} {
		path := filepath.Join("testdata", "benchmark", name+".jsonl")
		chart, err := loader.LoadChart(path)
		if err != nil {
			b.Logf("skipping %s: %v", name, err)
			continue
		}
		b.Run(name, func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				newEngine(b).Compute(full[0], full[1], chart.Notes, false)
			}
		})
	}
}

func TestCompute_AmbiguousTap(t *testing.T) {
	// From the home stance either heel reaches the down arrow at the same cost.
	notes := []parity.Note{note(0, 0, 1)}
	res := computeAll(t, newEngine(t), notes)
	if !slices.Contains(res.TechniqueErrors[0], parity.Ambiguous) {
		t.Errorf("row 0 errors = %v, want ambiguous", res.TechniqueErrors[0])
	}

	tuning := parity.DefaultTuning()
	tuning.AmbiguityThreshold = 0
	res = computeAll(t, newEngine(t, parity.WithTuning(tuning)), notes)
	if slices.Contains(res.TechniqueErrors[0], parity.Ambiguous) {
		t.Error("a zero threshold disables the ambiguity check")
	}
}
