// Package ui renders parity results for the terminal.
package ui

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/vanderheijden86/stepparity/pkg/parity"
)

// Report is one analyzed chart.
type Report struct {
	Name     string
	GameType string
	Result   *parity.Result
	Elapsed  time.Duration
	// Width caps the rendered width; zero means DefaultWidth.
	Width int
}

func (r Report) width() int {
	if r.Width <= 0 {
		return DefaultWidth
	}
	return r.Width
}

// RenderSummary renders the totals of a report in a bordered panel.
func (s *Styles) RenderSummary(rep Report) string {
	var b strings.Builder
	title := rep.Name
	if rep.GameType != "" {
		title += " (" + rep.GameType + ")"
	}
	b.WriteString(s.Title.Render(truncate(title, rep.width()-4)))
	b.WriteString("\n")

	res := rep.Result
	if res == nil {
		b.WriteString(s.Muted.Render("no playable notes"))
		return s.Panel.Render(b.String())
	}

	sum := res.Summary()
	b.WriteString(strings.Join([]string{
		s.RenderCount("rows", sum.Rows, s.Value),
		s.RenderCount("notes", sum.Notes, s.Value),
		s.RenderCount("cost", fmt.Sprintf("%.1f", sum.Cost), s.Value),
	}, "  "))
	b.WriteString("\n")
	if sum.PeakRow >= 0 {
		b.WriteString(strings.Join([]string{
			s.RenderCount("mean row", fmt.Sprintf("%.1f", sum.MeanRowCost), s.Value),
			s.RenderCount("peak row", fmt.Sprintf("%.1f @ beat %g", sum.PeakRowCost, res.Beats[sum.PeakRow]), s.Value),
		}, "  "))
		b.WriteString("\n")
	}
	if rep.Elapsed > 0 {
		b.WriteString(s.RenderCount("computed in", rep.Elapsed.Round(time.Microsecond), s.Muted))
		b.WriteString("\n")
	}

	if techs := res.SortedTechniques(); len(techs) > 0 {
		parts := make([]string, len(techs))
		for i, t := range techs {
			parts[i] = s.RenderCount(string(t), res.TechniqueCounts[t], s.Value)
		}
		b.WriteString("\n")
		b.WriteString(s.Label.Render("techniques"))
		b.WriteString("\n  ")
		b.WriteString(strings.Join(parts, "  "))
		b.WriteString("\n")
	}

	if sum.Errors > 0 {
		errs := make([]string, 0, len(res.TechniqueErrorCounts))
		for _, te := range sortedErrors(res.TechniqueErrorCounts) {
			errs = append(errs, s.RenderCount(string(te), res.TechniqueErrorCounts[te], s.Error))
		}
		b.WriteString("\n")
		b.WriteString(s.Warning.Render("review"))
		b.WriteString("\n  ")
		b.WriteString(strings.Join(errs, "  "))
		b.WriteString("\n")
	}

	return s.Panel.Render(strings.TrimRight(b.String(), "\n"))
}

// RenderLanes renders one line per row: the beat, a glyph per column, and
// any techniques or errors on that row. At most limit rows are rendered;
// limit <= 0 renders all.
func (s *Styles) RenderLanes(rep Report, limit int) string {
	res := rep.Result
	if res == nil {
		return ""
	}
	n := len(res.States)
	if limit > 0 && limit < n {
		n = limit
	}

	var b strings.Builder
	for i := 0; i < n; i++ {
		st := res.States[i]
		beat := padRight(fmt.Sprintf("%g", st.Beat), 8)
		b.WriteString(s.Muted.Render(beat))

		var lane strings.Builder
		for _, f := range st.Columns {
			lane.WriteString(s.Foot(f))
		}
		b.WriteString(lane.String())

		used := 8 + len(st.Columns)
		if candle, ok := res.Candles[i]; ok {
			b.WriteString(" ")
			b.WriteString(s.Warning.Render("candle:" + FootGlyph(candle)))
			used += 9
		}

		var notes []string
		if i < len(res.Techniques) {
			for _, t := range res.Techniques[i] {
				notes = append(notes, string(t))
			}
		}
		var errs []string
		for _, te := range res.TechniqueErrors[i] {
			errs = append(errs, string(te))
		}
		if room := rep.width() - used - 2; len(notes) > 0 && room > 0 {
			text := truncate(strings.Join(notes, ","), room)
			b.WriteString("  ")
			b.WriteString(s.Label.Render(text))
			used += 2 + lipgloss.Width(text)
		}
		if room := rep.width() - used - 2; len(errs) > 0 && room > 0 {
			b.WriteString("  ")
			b.WriteString(s.Error.Render(truncate("!"+strings.Join(errs, ",!"), room)))
		}
		b.WriteString("\n")
	}
	if n < len(res.States) {
		b.WriteString(s.Muted.Render(fmt.Sprintf("… %d more rows", len(res.States)-n)))
		b.WriteString("\n")
	}
	return b.String()
}

func sortedErrors(m map[parity.TechniqueError]int) []parity.TechniqueError {
	out := make([]parity.TechniqueError, 0, len(m))
	for te := range m {
		out = append(out, te)
	}
	slices.Sort(out)
	return out
}
