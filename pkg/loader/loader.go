// Package loader reads step charts from disk as JSON documents or JSON
// lines of notes.
package loader

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/vanderheijden86/stepparity/pkg/parity"
)

// DefaultMaxBufferSize is the default buffer size for the line reader (10MB).
const DefaultMaxBufferSize = 1024 * 1024 * 10

// Chart is a loaded chart.
type Chart struct {
	Description string        `json:"description,omitempty"`
	GameType    string        `json:"gameType,omitempty"`
	Notes       []parity.Note `json:"notes"`
}

// ParseOptions configures the behavior of ParseNotes.
type ParseOptions struct {
	// WarningHandler is called with warning messages (e.g., malformed JSON).
	// If nil, warnings are printed to os.Stderr.
	WarningHandler func(string)

	// BufferSize sets the maximum line size (in bytes) to read at once.
	// Lines longer than this are skipped with a warning.
	// If 0, uses DefaultMaxBufferSize (10MB).
	BufferSize int

	// Columns, when positive, rejects notes outside [0, Columns) with a
	// warning.
	Columns int

	// NoteFilter optionally filters parsed notes. Return true to include.
	NoteFilter func(*parity.Note) bool
}

// LoadChart reads a chart file. Files ending in .jsonl hold one note per
// line; anything else is a JSON chart document, or a bare JSON array of
// notes.
func LoadChart(path string) (Chart, error) {
	return LoadChartWithOptions(path, ParseOptions{})
}

// LoadChartWithOptions is LoadChart with custom options for JSONL input.
func LoadChartWithOptions(path string, opts ParseOptions) (Chart, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Chart{}, fmt.Errorf("no chart found at %s", path)
		}
		return Chart{}, fmt.Errorf("failed to open chart file: %w", err)
	}
	defer file.Close()

	if strings.EqualFold(filepath.Ext(path), ".jsonl") {
		notes, err := ParseNotesWithOptions(file, opts)
		if err != nil {
			return Chart{}, err
		}
		return Chart{Notes: notes}, nil
	}
	return ParseChart(file)
}

// ParseChart decodes a JSON chart document or a JSON array of notes.
func ParseChart(r io.Reader) (Chart, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Chart{}, fmt.Errorf("error reading chart: %w", err)
	}
	data = bytes.TrimSpace(stripBOM(data))
	if len(data) == 0 {
		return Chart{}, nil
	}

	var chart Chart
	if data[0] == '[' {
		err = json.Unmarshal(data, &chart.Notes)
	} else {
		err = json.Unmarshal(data, &chart)
	}
	if err != nil {
		return Chart{}, fmt.Errorf("%w: %v", parity.ErrMalformedNotedata, err)
	}
	return chart, nil
}

// ParseNotes parses JSONL content from a reader into notes.
func ParseNotes(r io.Reader) ([]parity.Note, error) {
	return ParseNotesWithOptions(r, ParseOptions{})
}

// ParseNotesWithOptions parses JSONL content with custom options. Malformed
// lines are skipped with a warning.
func ParseNotesWithOptions(r io.Reader, opts ParseOptions) ([]parity.Note, error) {
	maxCapacity := opts.BufferSize
	if maxCapacity <= 0 {
		maxCapacity = DefaultMaxBufferSize
	}
	reader := bufio.NewReaderSize(r, maxCapacity)

	warn := opts.WarningHandler
	if warn == nil {
		warn = func(msg string) {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", msg)
		}
	}

	var notes []parity.Note
	lineNum := 0
	for {
		lineNum++
		// ReadLine returns a single line, not including the end-of-line bytes.
		// If the line was too long for the buffer then isPrefix is set and the
		// beginning of the line is returned.
		line, isPrefix, err := reader.ReadLine()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("error reading chart stream at line %d: %w", lineNum, err)
		}

		if isPrefix {
			warn(fmt.Sprintf("skipping line %d: line too long (exceeds %d bytes)", lineNum, maxCapacity))
			for isPrefix {
				_, isPrefix, err = reader.ReadLine()
				if err == io.EOF {
					break
				}
				if err != nil {
					return nil, fmt.Errorf("error skipping long line at line %d: %w", lineNum, err)
				}
			}
			continue
		}

		if lineNum == 1 {
			line = stripBOM(line)
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		var n parity.Note
		if err := json.Unmarshal(line, &n); err != nil {
			warn(fmt.Sprintf("skipping malformed JSON on line %d: %v", lineNum, err))
			continue
		}
		if opts.Columns > 0 {
			if err := parity.ValidateNotes([]parity.Note{n}, opts.Columns); err != nil {
				warn(fmt.Sprintf("skipping invalid note on line %d: %v", lineNum, err))
				continue
			}
		}
		if opts.NoteFilter != nil && !opts.NoteFilter(&n) {
			continue
		}
		notes = append(notes, n)
	}

	return notes, nil
}

// WriteChart writes a chart as an indented JSON document.
func WriteChart(path string, chart Chart) error {
	data, err := json.MarshalIndent(chart, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling chart: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing chart: %w", err)
	}
	return nil
}

// stripBOM removes the UTF-8 Byte Order Mark if present
func stripBOM(b []byte) []byte {
	if bytes.HasPrefix(b, []byte{0xEF, 0xBB, 0xBF}) {
		return b[3:]
	}
	return b
}
