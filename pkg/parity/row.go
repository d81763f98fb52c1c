package parity

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"sort"
	"strconv"
)

// Cell is the content of one column in a row.
type Cell struct {
	Note     bool     `json:"note,omitempty"`
	Type     NoteType `json:"type,omitempty"`
	Hold     bool     `json:"hold,omitempty"`
	HoldEnd  float64  `json:"holdEnd,omitempty"`
	Mine     bool     `json:"mine,omitempty"`
	Override Override `json:"override,omitempty"`
}

// Active reports whether a foot-part must be on this column during the row.
func (c Cell) Active() bool { return c.Note || c.Hold }

// holding reports whether the foot-part on this column stays down after the row.
func (c Cell) holding() bool {
	return c.Hold || (c.Note && (c.Type == NoteHold || c.Type == NoteRoll))
}

// Row is everything active at one timestamp.
//
// Mines are attached to the row whose placement the feet are in when the mine
// passes: a mine at beat m belongs to the last row with beat <= m.
type Row struct {
	Beat   float64 `json:"beat"`
	Second float64 `json:"second"`
	Cells  []Cell  `json:"cells"`
	Key    string  `json:"key"`
}

// ActiveCount returns the number of columns that need a foot-part.
func (r *Row) ActiveCount() int {
	n := 0
	for _, c := range r.Cells {
		if c.Active() {
			n++
		}
	}
	return n
}

// HasMine reports whether any mine is attached to the row.
func (r *Row) HasMine() bool {
	for _, c := range r.Cells {
		if c.Mine {
			return true
		}
	}
	return false
}

func (r *Row) maxHoldEnd() float64 {
	end := math.Inf(-1)
	for _, c := range r.Cells {
		if c.Note && c.HoldEnd > end {
			end = c.HoldEnd
		}
	}
	return end
}

// computeKey derives the content key. Identical content always gives an
// identical key.
func (r *Row) computeKey() string {
	h := sha256.New()
	buf := make([]byte, 0, 64)
	buf = strconv.AppendFloat(buf, r.Beat, 'g', -1, 64)
	buf = append(buf, 0)
	buf = strconv.AppendFloat(buf, r.Second, 'g', -1, 64)
	buf = append(buf, 0)
	h.Write(buf)
	for _, c := range r.Cells {
		buf = buf[:0]
		buf = strconv.AppendBool(buf, c.Note)
		buf = strconv.AppendInt(buf, int64(c.Type), 10)
		buf = strconv.AppendBool(buf, c.Hold)
		buf = strconv.AppendFloat(buf, c.HoldEnd, 'g', -1, 64)
		buf = strconv.AppendBool(buf, c.Mine)
		buf = strconv.AppendInt(buf, int64(c.Override), 10)
		buf = append(buf, 0)
		h.Write(buf)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// noteIndex holds notedata sorted for row construction.
type noteIndex struct {
	columns  int
	playable []Note
	holds    []Note
	mines    []Note
	beats    []float64
}

func newNoteIndex(notes []Note, columns int) *noteIndex {
	idx := &noteIndex{columns: columns}
	for _, n := range notes {
		switch {
		case n.Type == NoteMine:
			idx.mines = append(idx.mines, n)
		case n.Playable():
			idx.playable = append(idx.playable, n)
			if n.IsHold() {
				idx.holds = append(idx.holds, n)
			}
		}
	}
	byBeatCol := func(s []Note) func(i, j int) bool {
		return func(i, j int) bool {
			if s[i].Beat != s[j].Beat {
				return s[i].Beat < s[j].Beat
			}
			return s[i].Col < s[j].Col
		}
	}
	sort.SliceStable(idx.playable, byBeatCol(idx.playable))
	sort.SliceStable(idx.holds, byBeatCol(idx.holds))
	sort.SliceStable(idx.mines, byBeatCol(idx.mines))

	for i, n := range idx.playable {
		if i == 0 || n.Beat != idx.playable[i-1].Beat {
			idx.beats = append(idx.beats, n.Beat)
		}
	}
	return idx
}

// buildRow builds the row for idx.beats[k].
func (idx *noteIndex) buildRow(k int) Row {
	beat := idx.beats[k]
	next := math.Inf(1)
	if k+1 < len(idx.beats) {
		next = idx.beats[k+1]
	}
	row := Row{Beat: beat, Cells: make([]Cell, idx.columns)}

	lo := sort.Search(len(idx.playable), func(i int) bool { return idx.playable[i].Beat >= beat })
	row.Second = idx.playable[lo].Second
	for i := lo; i < len(idx.playable) && idx.playable[i].Beat == beat; i++ {
		n := idx.playable[i]
		c := &row.Cells[n.Col]
		if c.Note {
			// Duplicate note on the same column: keep the first, but let a
			// later override or hold length through.
			if c.Override == OverrideNone {
				c.Override = n.Override
			}
			if n.IsHold() && n.EndBeat > c.HoldEnd {
				c.Type = n.Type
				c.HoldEnd = n.EndBeat
			}
			continue
		}
		c.Note = true
		c.Type = n.Type
		c.Override = n.Override
		if n.IsHold() {
			c.HoldEnd = n.EndBeat
		}
	}

	for _, h := range idx.holds {
		if h.Beat >= beat {
			break
		}
		if h.EndBeat <= beat {
			continue
		}
		c := &row.Cells[h.Col]
		if c.Note {
			// A new note on a held column replaces the continuation.
			continue
		}
		c.Hold = true
		if h.EndBeat > c.HoldEnd {
			c.HoldEnd = h.EndBeat
		}
	}

	mlo := sort.Search(len(idx.mines), func(i int) bool { return idx.mines[i].Beat >= beat })
	for i := mlo; i < len(idx.mines) && idx.mines[i].Beat < next; i++ {
		row.Cells[idx.mines[i].Col].Mine = true
	}

	row.Key = row.computeKey()
	return row
}

// BuildRows converts notedata into ordered rows, one per distinct timestamp
// that has at least one playable note.
func BuildRows(notes []Note, columns int) ([]Row, error) {
	if err := ValidateNotes(notes, columns); err != nil {
		return nil, err
	}
	idx := newNoteIndex(notes, columns)
	rows := make([]Row, len(idx.beats))
	for k := range idx.beats {
		rows[k] = idx.buildRow(k)
	}
	return rows, nil
}

// RebuildRows rebuilds only the rows in [start, end] of prev from notes and
// splices them between the untouched rows. notes is the full chart notedata
// after the edit; the edit must lie inside [start, end].
//
// The range is widened backwards to the previous row, whose mine window may
// reach into the range, and forwards over every hold that starts inside it.
func RebuildRows(prev []Row, notes []Note, columns int, start, end float64) ([]Row, error) {
	if len(prev) == 0 || math.IsNaN(start) || math.IsNaN(end) {
		return BuildRows(notes, columns)
	}
	if err := ValidateNotes(notes, columns); err != nil {
		return nil, err
	}
	for _, r := range prev {
		if len(r.Cells) != columns {
			return BuildRows(notes, columns)
		}
	}
	if start > end {
		start, end = end, start
	}
	idx := newNoteIndex(notes, columns)

	s := start
	if b, ok := lastBeatBefore(idx.beats, start); ok && b < s {
		s = b
	}
	if k := lastRowBefore(prev, start); k >= 0 && prev[k].Beat < s {
		s = prev[k].Beat
	}

	e := end
	for {
		widened := e
		for _, h := range idx.holds {
			if h.Beat >= s && h.Beat <= e && h.EndBeat > widened {
				widened = h.EndBeat
			}
		}
		for i := range prev {
			if prev[i].Beat >= s && prev[i].Beat <= e {
				if he := prev[i].maxHoldEnd(); he > widened {
					widened = he
				}
			}
		}
		if widened == e {
			break
		}
		e = widened
	}

	out := make([]Row, 0, len(prev)+4)
	for _, r := range prev {
		if r.Beat < s {
			out = append(out, r)
		}
	}
	for k, b := range idx.beats {
		if b >= s && b <= e {
			out = append(out, idx.buildRow(k))
		}
	}
	for _, r := range prev {
		if r.Beat > e {
			out = append(out, r)
		}
	}
	return out, nil
}

func lastBeatBefore(beats []float64, x float64) (float64, bool) {
	i := sort.SearchFloat64s(beats, x)
	if i == 0 {
		return 0, false
	}
	return beats[i-1], true
}

func lastRowBefore(rows []Row, x float64) int {
	i := sort.Search(len(rows), func(i int) bool { return rows[i].Beat >= x })
	return i - 1
}

// RowDiff describes where two row sequences differ.
type RowDiff struct {
	Changed bool `json:"changed"`
	// First is the first differing index, in both sequences.
	First int `json:"first"`
	// Last is the last differing index in the new sequence. It is First-1
	// when rows were only removed.
	Last int `json:"last"`
}

// DiffRows compares rows by key.
func DiffRows(old, new []Row) RowDiff {
	n := len(old)
	if len(new) < n {
		n = len(new)
	}
	first := 0
	for first < n && old[first].Key == new[first].Key {
		first++
	}
	if first == len(old) && first == len(new) {
		return RowDiff{First: -1, Last: -1}
	}
	k := 0
	for k < n-first && old[len(old)-1-k].Key == new[len(new)-1-k].Key {
		k++
	}
	return RowDiff{Changed: true, First: first, Last: len(new) - 1 - k}
}
