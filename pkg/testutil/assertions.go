package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/vanderheijden86/stepparity/pkg/parity"
)

// AssertOneStatePerRow verifies the result has exactly one state per row.
func AssertOneStatePerRow(t *testing.T, res *parity.Result, rows int) {
	t.Helper()
	if res == nil {
		t.Fatalf("expected a result for %d rows, got nil", rows)
	}
	if len(res.States) != rows {
		t.Errorf("expected %d states, got %d", rows, len(res.States))
	}
	if len(res.Beats) != rows || len(res.Seconds) != rows {
		t.Errorf("expected %d timestamps, got %d beats / %d seconds", rows, len(res.Beats), len(res.Seconds))
	}
}

// AssertEveryNoteLabeled verifies each playable note has exactly one label
// and that the label is a real foot-part.
func AssertEveryNoteLabeled(t *testing.T, res *parity.Result, notes []parity.Note) {
	t.Helper()
	want := make(map[string]bool)
	for _, n := range notes {
		if n.Playable() {
			want[n.Key()] = true
		}
	}
	if len(res.ParityLabels) != len(want) {
		t.Errorf("expected %d labels, got %d", len(want), len(res.ParityLabels))
	}
	for k := range want {
		f, ok := res.ParityLabels[k]
		if !ok {
			t.Errorf("note %s has no label", k)
			continue
		}
		if f == parity.FootNone {
			t.Errorf("note %s labeled none", k)
		}
	}
}

// AssertOverridesRespected verifies every overridden note got an allowed foot.
func AssertOverridesRespected(t *testing.T, res *parity.Result, notes []parity.Note) {
	t.Helper()
	for _, n := range notes {
		if n.Override == parity.OverrideNone || !n.Playable() {
			continue
		}
		f := res.ParityLabels[n.Key()]
		if !n.Override.Allows(f) {
			t.Errorf("note %s: override %s, got %s", n.Key(), n.Override, f)
		}
	}
}

// AssertLabels compares labels for the given notes in order.
func AssertLabels(t *testing.T, res *parity.Result, notes []parity.Note, want ...parity.Foot) {
	t.Helper()
	if len(notes) != len(want) {
		t.Fatalf("AssertLabels: %d notes but %d expected labels", len(notes), len(want))
	}
	got := make([]string, len(notes))
	ok := true
	for i, n := range notes {
		f := res.ParityLabels[n.Key()]
		got[i] = f.String()
		if f != want[i] {
			ok = false
		}
	}
	if !ok {
		exp := make([]string, len(want))
		for i, f := range want {
			exp[i] = f.String()
		}
		t.Errorf("labels mismatch:\nexpected: %s\nactual:   %s", strings.Join(exp, " "), strings.Join(got, " "))
	}
}

// AssertJSONEqual compares two values after JSON encoding.
func AssertJSONEqual(t *testing.T, expected, actual interface{}) {
	t.Helper()

	expectedJSON, err := json.Marshal(expected)
	if err != nil {
		t.Fatalf("failed to marshal expected: %v", err)
	}

	actualJSON, err := json.Marshal(actual)
	if err != nil {
		t.Fatalf("failed to marshal actual: %v", err)
	}

	if string(expectedJSON) != string(actualJSON) {
		t.Errorf("JSON mismatch:\nexpected: %s\nactual:   %s", expectedJSON, actualJSON)
	}
}

// GoldenFile handles golden file comparisons.
type GoldenFile struct {
	t      *testing.T
	dir    string
	name   string
	update bool
}

// NewGoldenFile creates a golden file helper.
// If GENERATE_GOLDEN env var is set, golden files will be updated.
func NewGoldenFile(t *testing.T, dir, name string) *GoldenFile {
	t.Helper()
	return &GoldenFile{
		t:      t,
		dir:    dir,
		name:   name,
		update: os.Getenv("GENERATE_GOLDEN") != "",
	}
}

// Path returns the full path to the golden file.
func (g *GoldenFile) Path() string {
	return filepath.Join(g.dir, g.name)
}

// Assert compares actual content against the golden file.
func (g *GoldenFile) Assert(actual string) {
	g.t.Helper()

	path := g.Path()
	if g.update {
		if err := os.MkdirAll(g.dir, 0755); err != nil {
			g.t.Fatalf("failed to create golden dir: %v", err)
		}
		if err := os.WriteFile(path, []byte(actual), 0644); err != nil {
			g.t.Fatalf("failed to write golden file: %v", err)
		}
		g.t.Logf("updated golden file: %s", path)
		return
	}

	expected, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			g.t.Fatalf("golden file does not exist: %s\nRun with GENERATE_GOLDEN=1 to create it", path)
		}
		g.t.Fatalf("failed to read golden file: %v", err)
	}

	if string(expected) != actual {
		expectedLines := strings.Split(string(expected), "\n")
		actualLines := strings.Split(actual, "\n")
		for i := 0; i < len(expectedLines) || i < len(actualLines); i++ {
			var expLine, actLine string
			if i < len(expectedLines) {
				expLine = expectedLines[i]
			}
			if i < len(actualLines) {
				actLine = actualLines[i]
			}
			if expLine != actLine {
				g.t.Errorf("golden file mismatch at line %d:\nexpected: %s\nactual:   %s", i+1, expLine, actLine)
				return
			}
		}
		g.t.Errorf("golden file mismatch (length differs)")
	}
}

// AssertJSON compares actual value as indented JSON against the golden file.
func (g *GoldenFile) AssertJSON(actual interface{}) {
	g.t.Helper()

	data, err := json.MarshalIndent(actual, "", "  ")
	if err != nil {
		g.t.Fatalf("failed to marshal actual value: %v", err)
	}
	g.Assert(string(data))
}

// WriteChartFile writes notes as JSONL to dir/name and returns the path.
func WriteChartFile(t *testing.T, dir, name string, notes []parity.Note) string {
	t.Helper()

	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(ToJSONL(notes)), 0644); err != nil {
		t.Fatalf("failed to write chart file: %v", err)
	}
	return path
}

// CountByType counts notes per type.
func CountByType(notes []parity.Note) map[parity.NoteType]int {
	counts := make(map[parity.NoteType]int)
	for _, n := range notes {
		counts[n.Type]++
	}
	return counts
}
