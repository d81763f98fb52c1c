// Package testutil provides step chart fixture generators for tests.
// All generators produce deterministic output for reproducible tests.
package testutil

import (
	"fmt"
	"math/rand"
	"slices"
	"sort"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/vanderheijden86/stepparity/pkg/parity"
)

// ChartFixture is a named chart as stored in testdata/charts/*.json.
type ChartFixture struct {
	Description string        `json:"description"`
	GameType    string        `json:"gameType"`
	Notes       []parity.Note `json:"notes"`
}

// GeneratorConfig controls chart generation.
type GeneratorConfig struct {
	Seed     int64   // Random seed for determinism (0 = fixed default)
	BPM      float64 // Tempo used to derive seconds from beats (default: 120)
	Columns  int     // Panel count (default: 4)
	Division float64 // Beats between consecutive generated rows (default: 0.5)
}

// DefaultConfig returns a config suitable for most tests.
func DefaultConfig() GeneratorConfig {
	return GeneratorConfig{
		Seed:     42,
		BPM:      120,
		Columns:  4,
		Division: 0.5,
	}
}

// Generator creates chart fixtures.
type Generator struct {
	cfg GeneratorConfig
	rng *rand.Rand
}

// New creates a Generator with the given config.
func New(cfg GeneratorConfig) *Generator {
	def := DefaultConfig()
	if cfg.Seed == 0 {
		cfg.Seed = def.Seed
	}
	if cfg.BPM <= 0 {
		cfg.BPM = def.BPM
	}
	if cfg.Columns <= 0 {
		cfg.Columns = def.Columns
	}
	if cfg.Division <= 0 {
		cfg.Division = def.Division
	}
	return &Generator{cfg: cfg, rng: rand.New(rand.NewSource(cfg.Seed))}
}

// NewDefault creates a Generator with default config.
func NewDefault() *Generator {
	return New(DefaultConfig())
}

// Seconds converts a beat to seconds at the generator's tempo.
func (g *Generator) Seconds(beat float64) float64 {
	return beat * 60 / g.cfg.BPM
}

// Tap returns a tap at beat on col.
func (g *Generator) Tap(beat float64, col int) parity.Note {
	return parity.Note{Beat: beat, Second: g.Seconds(beat), Col: col, Type: parity.NoteTap}
}

// Hold returns a hold from beat to end on col.
func (g *Generator) Hold(beat, end float64, col int) parity.Note {
	return parity.Note{
		Beat: beat, Second: g.Seconds(beat), Col: col, Type: parity.NoteHold,
		EndBeat: end, EndSecond: g.Seconds(end),
	}
}

// Mine returns a mine at beat on col.
func (g *Generator) Mine(beat float64, col int) parity.Note {
	return parity.Note{Beat: beat, Second: g.Seconds(beat), Col: col, Type: parity.NoteMine}
}

// Sequence places one tap per column in cols, one division apart.
func (g *Generator) Sequence(cols ...int) []parity.Note {
	notes := make([]parity.Note, len(cols))
	for i, c := range cols {
		notes[i] = g.Tap(float64(i)*g.cfg.Division, c)
	}
	return notes
}

// Alternating returns n taps alternating between columns a and b.
func (g *Generator) Alternating(a, b, n int) []parity.Note {
	cols := make([]int, n)
	for i := range cols {
		if i%2 == 0 {
			cols[i] = a
		} else {
			cols[i] = b
		}
	}
	return g.Sequence(cols...)
}

// Stream returns n random single taps with no immediate column repeats.
func (g *Generator) Stream(n int) []parity.Note {
	cols := make([]int, n)
	for i := range cols {
		c := g.rng.Intn(g.cfg.Columns)
		for i > 0 && c == cols[i-1] && g.cfg.Columns > 1 {
			c = g.rng.Intn(g.cfg.Columns)
		}
		cols[i] = c
	}
	return g.Sequence(cols...)
}

// Random returns a chart of n rows mixing taps, jumps, holds and mines.
func (g *Generator) Random(n int) []parity.Note {
	var notes []parity.Note
	for i := 0; i < n; i++ {
		beat := float64(i) * g.cfg.Division
		a := g.rng.Intn(g.cfg.Columns)
		switch r := g.rng.Float64(); {
		case r < 0.15:
			b := (a + 1 + g.rng.Intn(g.cfg.Columns-1)) % g.cfg.Columns
			notes = append(notes, g.Tap(beat, a), g.Tap(beat, b))
		case r < 0.25:
			notes = append(notes, g.Hold(beat, beat+g.cfg.Division*float64(1+g.rng.Intn(3)), a))
		default:
			notes = append(notes, g.Tap(beat, a))
		}
		if g.rng.Float64() < 0.1 {
			notes = append(notes, g.Mine(beat+g.cfg.Division/2, g.rng.Intn(g.cfg.Columns)))
		}
	}
	return Dedupe(notes)
}

// Dedupe sorts notes by beat, then drops notes that share a beat and column
// with an earlier one and notes that land inside a hold on the same column.
// The input slice is not modified.
func Dedupe(notes []parity.Note) []parity.Note {
	sorted := slices.Clone(notes)
	SortNotes(sorted)
	var out []parity.Note
	for _, n := range sorted {
		if Collides(out, n) {
			continue
		}
		out = append(out, n)
	}
	return out
}

// Collides reports whether n cannot be added to notes: it shares a beat and
// column with one of them, lands inside one of their holds, or is a hold
// covering one of them.
func Collides(notes []parity.Note, n parity.Note) bool {
	for _, m := range notes {
		if m.Col != n.Col {
			continue
		}
		switch {
		case m.Beat == n.Beat:
			return true
		case m.IsHold() && n.Beat > m.Beat && n.Beat <= m.EndBeat:
			return true
		case n.IsHold() && m.Beat > n.Beat && m.Beat <= n.EndBeat:
			return true
		}
	}
	return false
}

// SortNotes orders notes by beat then column.
func SortNotes(notes []parity.Note) {
	sort.SliceStable(notes, func(i, j int) bool {
		if notes[i].Beat != notes[j].Beat {
			return notes[i].Beat < notes[j].Beat
		}
		return notes[i].Col < notes[j].Col
	})
}

// Fixture wraps notes with a description.
func (g *Generator) Fixture(desc, gameType string, notes []parity.Note) ChartFixture {
	return ChartFixture{Description: desc, GameType: gameType, Notes: notes}
}

// ToJSONL converts notes to JSONL format (one JSON object per line).
func ToJSONL(notes []parity.Note) string {
	var sb strings.Builder
	for _, n := range notes {
		data, err := json.Marshal(n)
		if err != nil {
			continue
		}
		sb.Write(data)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// QuickStream creates a random stream with default settings.
func QuickStream(n int) []parity.Note {
	return NewDefault().Stream(n)
}

// QuickRandom creates a mixed chart with default settings.
func QuickRandom(n int) []parity.Note {
	return NewDefault().Random(n)
}

// QuickAlternating creates an alternating chart with default settings.
func QuickAlternating(a, b, n int) []parity.Note {
	return NewDefault().Alternating(a, b, n)
}

// Describe returns a one-line summary of a chart, for test logs.
func Describe(notes []parity.Note) string {
	counts := make(map[parity.NoteType]int)
	for _, n := range notes {
		counts[n.Type]++
	}
	return fmt.Sprintf("%d notes (%d taps, %d holds, %d mines)",
		len(notes), counts[parity.NoteTap], counts[parity.NoteHold], counts[parity.NoteMine])
}
