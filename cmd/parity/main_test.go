package main

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/vanderheijden86/stepparity/pkg/loader"
	"github.com/vanderheijden86/stepparity/pkg/testutil"
	"github.com/vanderheijden86/stepparity/pkg/version"

	_ "modernc.org/sqlite"
)

// runCLI runs the command with a config path that does not exist, so the
// user's own config never leaks into tests.
func runCLI(t *testing.T, stdin string, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	var out, errOut strings.Builder
	args = append([]string{"-config", filepath.Join(t.TempDir(), "none.yaml")}, args...)
	code = run(context.Background(), args, strings.NewReader(stdin), &out, &errOut)
	return code, out.String(), errOut.String()
}

type jsonReport struct {
	Chart    string `json:"chart"`
	GameType string `json:"gameType"`
	Summary  struct {
		Rows  int     `json:"rows"`
		Notes int     `json:"notes"`
		Cost  float64 `json:"cost"`
	} `json:"summary"`
	Result struct {
		ParityLabels map[string]string `json:"parityLabels"`
	} `json:"result"`
}

func decodeReports(t *testing.T, out string) []jsonReport {
	t.Helper()
	var reps []jsonReport
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		var r jsonReport
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			t.Fatalf("decode %q: %v", line, err)
		}
		reps = append(reps, r)
	}
	return reps
}

func TestRun_Version(t *testing.T) {
	code, out, _ := runCLI(t, "", "-version")
	if code != 0 || !strings.Contains(out, version.Version) {
		t.Errorf("-version: code %d, out %q", code, out)
	}
}

func TestRun_UsageErrors(t *testing.T) {
	dir := t.TempDir()
	a := testutil.WriteChartFile(t, dir, "a.jsonl", testutil.QuickStream(4))
	b := testutil.WriteChartFile(t, dir, "b.jsonl", testutil.QuickStream(4))

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"no chart", nil, 2},
		{"two charts without batch", []string{a, b}, 2},
		{"export with batch", []string{"-batch", "-export-sqlite", filepath.Join(dir, "x.db"), a, b}, 2},
		{"bad flag", []string{"-nope"}, 2},
		{"unknown game", []string{"-game", "dance-octuple", a}, 1},
		{"missing chart", []string{filepath.Join(dir, "missing.jsonl")}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code, _, stderr := runCLI(t, "", tt.args...); code != tt.want {
				t.Errorf("exit %d, want %d (%s)", code, tt.want, stderr)
			}
		})
	}
}

func TestRun_AnalyzeJSON(t *testing.T) {
	notes := testutil.QuickAlternating(0, 3, 6)
	path := testutil.WriteChartFile(t, t.TempDir(), "alt.jsonl", notes)

	code, out, stderr := runCLI(t, "", "-json", "-chart", path)
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	reps := decodeReports(t, out)
	if len(reps) != 1 {
		t.Fatalf("got %d reports", len(reps))
	}
	rep := reps[0]
	if rep.GameType != "dance-single" || rep.Summary.Rows != 6 || rep.Summary.Notes != 6 {
		t.Errorf("report = %+v", rep)
	}
	if got := rep.Result.ParityLabels[notes[0].Key()]; got != "left_heel" {
		t.Errorf("first label = %q, want left_heel", got)
	}
}

func TestRun_ChartGameType(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "solo.json")
	chart := loader.Chart{GameType: "dance-solo", Notes: testutil.QuickAlternating(0, 5, 4)}
	if err := loader.WriteChart(path, chart); err != nil {
		t.Fatal(err)
	}

	_, out, _ := runCLI(t, "", "-json", path)
	if got := decodeReports(t, out)[0].GameType; got != "dance-solo" {
		t.Errorf("chart game type ignored: %s", got)
	}

	code, _, _ := runCLI(t, "", "-json", "-game", "dance-single", path)
	if code != 1 {
		t.Errorf("column 5 does not exist on dance-single; exit %d, want 1", code)
	}
}

func TestRun_Batch(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i, n := range []int{3, 8, 5, 12} {
		paths = append(paths, testutil.WriteChartFile(t, dir, "c"+string(rune('a'+i))+".jsonl", testutil.QuickStream(n)))
	}

	code, out, stderr := runCLI(t, "", append([]string{"-batch", "-json"}, paths...)...)
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	reps := decodeReports(t, out)
	if len(reps) != len(paths) {
		t.Fatalf("got %d reports, want %d", len(reps), len(paths))
	}
	for i, rep := range reps {
		if rep.Chart != paths[i] {
			t.Errorf("report %d is %s, want %s", i, rep.Chart, paths[i])
		}
	}
	if reps[1].Summary.Rows != 8 || reps[3].Summary.Rows != 12 {
		t.Errorf("row counts wrong: %+v", reps)
	}
}

func TestRun_TextOutput(t *testing.T) {
	path := testutil.WriteChartFile(t, t.TempDir(), "stream.jsonl", testutil.QuickStream(10))
	code, out, stderr := runCLI(t, "", "-lanes", "3", path)
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	for _, want := range []string{"stream.jsonl (dance-single)", "rows: 10", "7 more rows"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRun_ExportSQLite(t *testing.T) {
	dir := t.TempDir()
	notes := testutil.QuickRandom(30)
	path := testutil.WriteChartFile(t, dir, "random.jsonl", notes)
	dbPath := filepath.Join(dir, "out.db")

	if code, _, stderr := runCLI(t, "", "-json", "-export-sqlite", dbPath, path); code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	var title string
	if err := db.QueryRow(`SELECT value FROM export_meta WHERE key = 'title'`).Scan(&title); err != nil {
		t.Fatal(err)
	}
	if title != "random.jsonl" {
		t.Errorf("title = %q", title)
	}
}

func TestRun_WeightsFile(t *testing.T) {
	dir := t.TempDir()
	chart := testutil.WriteChartFile(t, dir, "c.jsonl", testutil.QuickRandom(20))

	good := filepath.Join(dir, "good.yaml")
	if err := os.WriteFile(good, []byte("weights:\n  CROSSOVER: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if code, _, stderr := runCLI(t, "", "-json", "-weights", good, chart); code != 0 {
		t.Errorf("good weights: exit %d: %s", code, stderr)
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("weights:\n  BOGUS: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if code, _, _ := runCLI(t, "", "-json", "-weights", bad, chart); code != 1 {
		t.Errorf("unknown weight: exit %d, want 1", code)
	}
}

func TestRun_Serve(t *testing.T) {
	notes := testutil.QuickAlternating(0, 3, 4)
	data, err := json.Marshal(notes)
	if err != nil {
		t.Fatal(err)
	}
	stdin := `{"id":1,"type":"init","gameType":"dance-single"}` + "\n" +
		`{"id":2,"type":"compute","notedata":` + string(data) + `}` + "\n"

	code, out, stderr := runCLI(t, stdin, "-serve")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines:\n%s", len(lines), out)
	}
	var resp struct {
		ID   int64  `json:"id"`
		Type string `json:"type"`
	}
	if err := json.Unmarshal([]byte(lines[1]), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.ID != 2 || resp.Type != "compute" {
		t.Errorf("second response = %+v", resp)
	}
}

func TestRun_WatchWeightsNeedsFile(t *testing.T) {
	if code, _, _ := runCLI(t, "", "-serve", "-watch-weights"); code != 1 {
		t.Errorf("exit %d, want 1", code)
	}
}

func TestShouldSuppressTTYQueries(t *testing.T) {
	tests := []struct {
		args []string
		env  bool
		want bool
	}{
		{[]string{"chart.json"}, false, false},
		{[]string{"-json", "chart.json"}, false, true},
		{[]string{"--serve"}, false, true},
		{[]string{"-json=true"}, false, true},
		{[]string{"json"}, false, false},
		{nil, true, true},
	}
	for _, tt := range tests {
		if got := shouldSuppressTTYQueries(tt.args, tt.env); got != tt.want {
			t.Errorf("shouldSuppressTTYQueries(%v, %v) = %v, want %v", tt.args, tt.env, got, tt.want)
		}
	}
}
