package parity

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// Sentinel errors returned by the engine.
var (
	ErrMalformedNotedata = errors.New("malformed notedata")
	ErrNoPath            = errors.New("no admissible path")
	ErrInvariant         = errors.New("parity graph invariant violated")
)

// NoteType classifies a chart note.
type NoteType int8

const (
	NoteTap NoteType = iota
	NoteHold
	NoteRoll
	NoteMine
	NoteLift
	NoteFake
)

var noteTypeNames = [...]string{"tap", "hold", "roll", "mine", "lift", "fake"}

func (t NoteType) String() string {
	if t < 0 || int(t) >= len(noteTypeNames) {
		return fmt.Sprintf("NoteType(%d)", int8(t))
	}
	return noteTypeNames[t]
}

// MarshalText encodes the type name.
func (t NoteType) MarshalText() ([]byte, error) {
	if t < 0 || int(t) >= len(noteTypeNames) {
		return nil, fmt.Errorf("invalid note type %d", int8(t))
	}
	return []byte(noteTypeNames[t]), nil
}

// UnmarshalText decodes a type name. An empty string is a tap.
func (t *NoteType) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*t = NoteTap
		return nil
	}
	for i, name := range noteTypeNames {
		if name == string(b) {
			*t = NoteType(i)
			return nil
		}
	}
	return fmt.Errorf("unknown note type %q", b)
}

// Note is one entry of chart notedata.
type Note struct {
	Beat      float64  `json:"beat"`
	Second    float64  `json:"second"`
	Col       int      `json:"col"`
	Type      NoteType `json:"type"`
	EndBeat   float64  `json:"endBeat,omitempty"`
	EndSecond float64  `json:"endSecond,omitempty"`
	Override  Override `json:"override,omitempty"`
}

// Key returns the note identity used for parity labels.
func (n Note) Key() string {
	return NoteKey(n.Beat, n.Col)
}

// NoteKey formats the label key for a note at beat on col.
func NoteKey(beat float64, col int) string {
	return strconv.FormatFloat(beat, 'f', -1, 64) + ":" + strconv.Itoa(col)
}

// Playable reports whether the note is stepped on. Mines and fakes are not.
func (n Note) Playable() bool {
	return n.Type != NoteMine && n.Type != NoteFake
}

// IsHold reports whether the note is a hold or roll head.
func (n Note) IsHold() bool {
	return n.Type == NoteHold || n.Type == NoteRoll
}

// ValidateNotes checks notedata against a column count.
func ValidateNotes(notes []Note, columns int) error {
	for i, n := range notes {
		if n.Col < 0 || n.Col >= columns {
			return fmt.Errorf("%w: note %d: column %d outside [0,%d)", ErrMalformedNotedata, i, n.Col, columns)
		}
		if !finite(n.Beat) || !finite(n.Second) {
			return fmt.Errorf("%w: note %d: non-finite timestamp", ErrMalformedNotedata, i)
		}
		if n.Type < NoteTap || n.Type > NoteFake {
			return fmt.Errorf("%w: note %d: invalid type %d", ErrMalformedNotedata, i, n.Type)
		}
		if n.Override < OverrideNone || n.Override > OverrideRightToe {
			return fmt.Errorf("%w: note %d: invalid override %d", ErrMalformedNotedata, i, n.Override)
		}
		if n.IsHold() {
			if !finite(n.EndBeat) || !finite(n.EndSecond) || n.EndBeat < n.Beat {
				return fmt.Errorf("%w: note %d: hold ends before it starts", ErrMalformedNotedata, i)
			}
		}
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
