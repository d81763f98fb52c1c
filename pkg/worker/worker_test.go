package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/vanderheijden86/stepparity/pkg/config"
	"github.com/vanderheijden86/stepparity/pkg/layout"
	"github.com/vanderheijden86/stepparity/pkg/parity"
	"github.com/vanderheijden86/stepparity/pkg/testutil"
	"github.com/vanderheijden86/stepparity/pkg/watcher"
)

func quiet() *LogLevel {
	l := LogLevelNone
	return &l
}

func startWorker(t *testing.T) *Worker {
	t.Helper()
	w := New(Config{Buffer: 4, LogLevel: quiet()})
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(w.Stop)
	return w
}

func do(t *testing.T, w *Worker, req Request) Response {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	resp, err := w.Do(ctx, req)
	if err != nil {
		t.Fatalf("Do(%s): %v", req.Type, err)
	}
	if resp.ID != req.ID {
		t.Fatalf("response id %d, want %d", resp.ID, req.ID)
	}
	return resp
}

func TestWorker_ComputeBeforeInit(t *testing.T) {
	w := startWorker(t)
	notes := testutil.QuickAlternating(0, 3, 4)

	resp := do(t, w, ComputeAll(1, notes, false))
	if !IsNotInitialized(resp) {
		t.Fatalf("expected not-initialized error, got %+v", resp)
	}
	if w.LastError() == nil || w.LastError().Phase != "compute" {
		t.Errorf("last error = %+v", w.LastError())
	}

	if resp := do(t, w, Init(2, "dance-single")); resp.Type != TypeInit {
		t.Fatalf("init failed: %+v", resp)
	}
	resp = do(t, w, ComputeAll(3, notes, false))
	if resp.Type != TypeCompute || resp.Result() == nil {
		t.Fatalf("compute after init failed: %+v", resp)
	}
	if w.LastError() != nil {
		t.Error("a successful request clears the last error")
	}
}

func TestWorker_UnknownGameType(t *testing.T) {
	w := startWorker(t)
	resp := do(t, w, Init(1, "dance-octuple"))
	if resp.Type != TypeError || !errors.Is(resp.Err, layout.ErrUnknownGameType) {
		t.Fatalf("expected unknown game type error, got %+v", resp)
	}
	if !IsNotInitialized(do(t, w, ComputeAll(2, nil, false))) {
		t.Error("a failed init leaves the worker uninitialized")
	}
}

func TestWorker_EmptyAndMalformed(t *testing.T) {
	w := startWorker(t)
	do(t, w, Init(1, "dance-single"))

	resp := do(t, w, ComputeAll(2, nil, false))
	if resp.Type != TypeCompute || resp.Data != nil {
		t.Errorf("empty chart: %+v, want compute with null data", resp)
	}

	resp = do(t, w, ComputeAll(3, []parity.Note{{Beat: 0, Col: -1}}, false))
	if resp.Type != TypeError || !errors.Is(resp.Err, parity.ErrMalformedNotedata) {
		t.Errorf("malformed chart: %+v", resp)
	}
}

func TestWorker_OrderedResponses(t *testing.T) {
	w := startWorker(t)
	ctx := context.Background()
	notes := testutil.QuickRandom(40)

	reqs := []Request{
		Init(10, "dance-single"),
		ComputeAll(11, notes, false),
		Compute(12, 5, 5, notes, true),
		GetDebug(13),
	}
	go func() {
		for _, r := range reqs {
			if err := w.Submit(ctx, r); err != nil {
				t.Errorf("Submit: %v", err)
				return
			}
		}
	}()
	for _, want := range reqs {
		select {
		case resp := <-w.Responses():
			if resp.ID != want.ID || resp.Type != want.Type {
				t.Fatalf("got %d/%s, want %d/%s (%s)", resp.ID, resp.Type, want.ID, want.Type, resp.Error)
			}
		case <-time.After(30 * time.Second):
			t.Fatal("timed out waiting for responses")
		}
	}
}

func TestWorker_DebugPayloads(t *testing.T) {
	w := startWorker(t)
	do(t, w, Init(1, "dance-single"))

	if resp := do(t, w, GetDebug(2)); resp.Data != nil {
		t.Errorf("getDebug before any compute should be null, got %T", resp.Data)
	}

	resp := do(t, w, ComputeAll(3, testutil.QuickStream(16), true))
	if resp.Debug == nil || resp.Debug.ChangedFirst != 0 {
		t.Fatalf("compute debug = %+v", resp.Debug)
	}
	if resp.Result().Debug != nil {
		t.Error("debug belongs beside data, not inside it")
	}

	snap := do(t, w, GetDebug(4)).Snapshot()
	if snap == nil || len(snap.BestPath.Keys) != 16 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestWorker_WeightsMessage(t *testing.T) {
	w := startWorker(t)
	notes := testutil.QuickRandom(40)

	resp := do(t, w, SetWeights(1, map[string]float64{"CROSSOVER": 1}, nil))
	if resp.Type != TypeWeights {
		t.Fatalf("weights before init: %+v", resp)
	}
	do(t, w, Init(2, "dance-single"))
	got := do(t, w, ComputeAll(3, notes, false)).Result()

	weights := parity.DefaultWeights()
	weights[parity.CostCrossover] = 1
	l, _ := layout.ForGameType("dance-single")
	want, err := parity.NewEngine(l, parity.WithWeights(weights)).Compute(-1e9, 1e9, notes, false)
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertJSONEqual(t, want, got)

	if resp := do(t, w, SetWeights(4, map[string]float64{"BOGUS": 1}, nil)); resp.Type != TypeError {
		t.Errorf("unknown weight name should be rejected: %+v", resp)
	}
}

func TestWorker_WatchWeightsReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.yaml")
	if err := os.WriteFile(path, []byte("weights:\n  CROSSOVER: 40\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	w := startWorker(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wt, err := w.WatchWeights(ctx, path, 20*time.Millisecond,
		watcher.WithForcePoll(true), watcher.WithPollInterval(25*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	defer wt.Stop()

	notes := testutil.QuickStream(8)
	do(t, w, Init(1, "dance-single"))
	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(path, []byte("weights:\n  CROSSOVER: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for id := int64(2); time.Now().Before(deadline); id += 2 {
		do(t, w, ComputeAll(id, notes, false))
		if snap := do(t, w, GetDebug(id+1)).Snapshot(); snap != nil && snap.Weights["CROSSOVER"] == 1 {
			return
		}
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatal("weights file change never reached the engine")
}

func TestWorker_PanicRecovery(t *testing.T) {
	w := startWorker(t)
	w.beforeHandle = func(r Request) {
		if r.ID == 3 {
			panic("boom")
		}
	}
	notes := testutil.QuickStream(12)
	do(t, w, Init(1, "dance-single"))
	do(t, w, ComputeAll(2, notes, false))

	resp := do(t, w, ComputeAll(3, notes, false))
	if resp.Type != TypeError || !strings.Contains(resp.Error, "boom") {
		t.Fatalf("panic should become an error response: %+v", resp)
	}
	if m := w.Metrics(); m.Recoveries != 1 {
		t.Errorf("recoveries = %d, want 1", m.Recoveries)
	}

	resp = do(t, w, ComputeAll(4, notes, false))
	if resp.Type != TypeCompute || resp.Result() == nil {
		t.Fatalf("worker should keep serving after a panic: %+v", resp)
	}
}

func TestWorker_StopAndSubmit(t *testing.T) {
	w := New(Config{LogLevel: quiet()})
	if err := w.Submit(context.Background(), Init(1, "dance-single")); !errors.Is(err, ErrStopped) {
		t.Errorf("submit before start: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := w.Start(context.Background()); err == nil {
		t.Error("second Start should fail")
	}
	w.Stop()
	w.Stop()
	select {
	case <-w.Done():
	default:
		t.Fatal("loop still running after Stop")
	}
	if err := w.Submit(context.Background(), Init(2, "dance-single")); !errors.Is(err, ErrStopped) {
		t.Errorf("submit after stop: %v", err)
	}
}

func TestServe_JSONLines(t *testing.T) {
	notes := testutil.QuickAlternating(0, 3, 4)
	var in strings.Builder
	enc := json.NewEncoder(&in)
	for _, r := range []Request{
		ComputeAll(1, notes, false),
		Init(2, "dance-single"),
		ComputeAll(3, notes, false),
	} {
		if err := enc.Encode(r); err != nil {
			t.Fatal(err)
		}
	}
	in.WriteString("{not json\n")
	in.WriteString(`{"id":5,"type":"getDebug"}` + "\n")

	var out strings.Builder
	if err := Serve(context.Background(), Config{LogLevel: quiet()}, strings.NewReader(in.String()), &out); err != nil {
		t.Fatalf("Serve: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 5 {
		t.Fatalf("got %d response lines, want 5:\n%s", len(lines), out.String())
	}
	type wire struct {
		ID    int64           `json:"id"`
		Type  MessageType     `json:"type"`
		Data  json.RawMessage `json:"data"`
		Error string          `json:"error"`
	}
	wantTypes := []MessageType{TypeError, TypeInit, TypeCompute, TypeError, TypeGetDebug}
	for i, line := range lines {
		var got wire
		if err := json.Unmarshal([]byte(line), &got); err != nil {
			t.Fatalf("line %d: %v", i, err)
		}
		if got.Type != wantTypes[i] {
			t.Errorf("line %d type = %s, want %s (%s)", i, got.Type, wantTypes[i], got.Error)
		}
	}

	var compute struct {
		Data struct {
			ParityLabels map[string]string `json:"parityLabels"`
		} `json:"data"`
	}
	if err := json.Unmarshal([]byte(lines[2]), &compute); err != nil {
		t.Fatal(err)
	}
	if got := compute.Data.ParityLabels[notes[0].Key()]; got != "left_heel" {
		t.Errorf("first note label = %q, want left_heel", got)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"":      LogLevelWarn,
		"off":   LogLevelNone,
		"ERROR": LogLevelError,
		"3":     LogLevelInfo,
		"debug": LogLevelDebug,
	}
	for in, want := range tests {
		if got := ParseLogLevel(in); got != want {
			t.Errorf("ParseLogLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestServe_PartialWeightsKeepActiveSettings(t *testing.T) {
	notes := testutil.QuickRandom(40)
	data, err := json.Marshal(notes)
	if err != nil {
		t.Fatal(err)
	}
	compute := func(id int) string {
		return `{"id":` + strconv.Itoa(id) + `,"type":"compute","notedata":` + string(data) + `}`
	}
	in := strings.Join([]string{
		`{"id":1,"type":"init","gameType":"dance-single"}`,
		compute(2),
		`{"id":3,"type":"weights","weights":{"CROSSOVER":1},"tuning":{"ambiguityThreshold":10}}`,
		`{"id":4,"type":"weights","weights":{"JACK":5}}`,
		`{"id":5,"type":"weights","tuning":{"minElapsed":0}}`,
		compute(6),
		`{"id":7,"type":"getDebug"}`,
	}, "\n") + "\n"

	var out strings.Builder
	if err := Serve(context.Background(), Config{LogLevel: quiet()}, strings.NewReader(in), &out); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 7 {
		t.Fatalf("got %d response lines, want 7:\n%s", len(lines), out.String())
	}

	type wire struct {
		Type  MessageType     `json:"type"`
		Data  json.RawMessage `json:"data"`
		Error string          `json:"error"`
	}
	resps := make([]wire, len(lines))
	for i, line := range lines {
		if err := json.Unmarshal([]byte(line), &resps[i]); err != nil {
			t.Fatalf("line %d: %v", i, err)
		}
	}
	wantTypes := []MessageType{TypeInit, TypeCompute, TypeWeights, TypeWeights, TypeError, TypeCompute, TypeGetDebug}
	for i, r := range resps {
		if r.Type != wantTypes[i] {
			t.Errorf("line %d type = %s, want %s (%s)", i, r.Type, wantTypes[i], r.Error)
		}
	}
	if !strings.Contains(resps[4].Error, "min_elapsed") {
		t.Errorf("invalid tuning error = %q", resps[4].Error)
	}

	weights := parity.DefaultWeights()
	weights[parity.CostCrossover] = 1
	weights[parity.CostJack] = 5
	tuning := parity.DefaultTuning()
	tuning.AmbiguityThreshold = 10
	l, _ := layout.ForGameType("dance-single")
	want, err := parity.NewEngine(l, parity.WithWeights(weights), parity.WithTuning(tuning)).Compute(-1e9, 1e9, notes, false)
	if err != nil {
		t.Fatal(err)
	}
	wantJSON, err := json.Marshal(want)
	if err != nil {
		t.Fatal(err)
	}
	var wantAny, gotAny any
	if err := json.Unmarshal(wantJSON, &wantAny); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(resps[5].Data, &gotAny); err != nil {
		t.Fatal(err)
	}
	testutil.AssertJSONEqual(t, wantAny, gotAny)

	var snap struct {
		Weights map[string]float64 `json:"weights"`
	}
	if err := json.Unmarshal(resps[6].Data, &snap); err != nil {
		t.Fatal(err)
	}
	if snap.Weights["CROSSOVER"] != 1 || snap.Weights["JACK"] != 5 {
		t.Errorf("weights did not accumulate: CROSSOVER=%v JACK=%v", snap.Weights["CROSSOVER"], snap.Weights["JACK"])
	}
}

func TestWorker_ReloadRevertsRemovedKeys(t *testing.T) {
	base := parity.DefaultWeights()
	base[parity.CostJump] = 7
	w := New(Config{Buffer: 4, Weights: base, LogLevel: quiet()})
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(w.Stop)

	ctx := context.Background()
	if err := w.Reload(ctx, config.WeightsFile{Weights: map[string]float64{"CROSSOVER": 1}, Tuning: parity.DefaultTuning()}); err != nil {
		t.Fatal(err)
	}
	if err := w.Reload(ctx, config.WeightsFile{Tuning: parity.DefaultTuning()}); err != nil {
		t.Fatal(err)
	}
	do(t, w, Init(1, "dance-single"))
	do(t, w, ComputeAll(2, testutil.QuickStream(6), false))
	snap := do(t, w, GetDebug(3)).Snapshot()
	if snap == nil {
		t.Fatal("no snapshot")
	}
	if got := snap.Weights["CROSSOVER"]; got != parity.DefaultWeights()[parity.CostCrossover] {
		t.Errorf("CROSSOVER = %v, want the default after the key was removed", got)
	}
	if got := snap.Weights["JUMP"]; got != 7 {
		t.Errorf("JUMP = %v, want the configured 7", got)
	}
}
