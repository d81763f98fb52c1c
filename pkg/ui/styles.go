package ui

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/vanderheijden86/stepparity/pkg/parity"
)

// ══════════════════════════════════════════════════════════════════════════════
// COLOR PALETTE - Adaptive colors for light and dark terminals
// ══════════════════════════════════════════════════════════════════════════════

var (
	ColorText    = lipgloss.AdaptiveColor{Light: "#1A1A1A", Dark: "#F8F8F2"}
	ColorSubtext = lipgloss.AdaptiveColor{Light: "#555555", Dark: "#BFBFBF"}
	ColorMuted   = lipgloss.AdaptiveColor{Light: "#666666", Dark: "#6272A4"}

	ColorPrimary = lipgloss.AdaptiveColor{Light: "#6B47D9", Dark: "#BD93F9"}
	ColorInfo    = lipgloss.AdaptiveColor{Light: "#006080", Dark: "#8BE9FD"}
	ColorSuccess = lipgloss.AdaptiveColor{Light: "#007700", Dark: "#50FA7B"}
	ColorWarning = lipgloss.AdaptiveColor{Light: "#B06800", Dark: "#FFB86C"}
	ColorDanger  = lipgloss.AdaptiveColor{Light: "#CC0000", Dark: "#FF5555"}

	// Foot colors: left is blue, right is red, toes are the lighter shade
	ColorLeftHeel  = lipgloss.AdaptiveColor{Light: "#0066CC", Dark: "#6699FF"}
	ColorLeftToe   = lipgloss.AdaptiveColor{Light: "#008080", Dark: "#8BE9FD"}
	ColorRightHeel = lipgloss.AdaptiveColor{Light: "#CC0000", Dark: "#FF5555"}
	ColorRightToe  = lipgloss.AdaptiveColor{Light: "#B06800", Dark: "#FFB86C"}
)

// Styles holds the styles of one output. Build it with NewStyles so color
// detection follows the destination writer.
type Styles struct {
	renderer *lipgloss.Renderer

	Title   lipgloss.Style
	Label   lipgloss.Style
	Value   lipgloss.Style
	Muted   lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Panel   lipgloss.Style
	feet    [5]lipgloss.Style
}

// NewStyles creates styles for output written to w. Writers that are not
// terminals get no colors.
func NewStyles(w io.Writer) *Styles {
	r := lipgloss.NewRenderer(w)
	s := &Styles{
		renderer: r,
		Title:    r.NewStyle().Bold(true).Foreground(ColorPrimary),
		Label:    r.NewStyle().Foreground(ColorSubtext),
		Value:    r.NewStyle().Bold(true).Foreground(ColorText),
		Muted:    r.NewStyle().Foreground(ColorMuted),
		Warning:  r.NewStyle().Foreground(ColorWarning),
		Error:    r.NewStyle().Bold(true).Foreground(ColorDanger),
		Panel: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorPrimary).
			Padding(0, 1),
	}
	s.feet[parity.FootNone] = r.NewStyle().Foreground(ColorMuted)
	s.feet[parity.LeftHeel] = r.NewStyle().Bold(true).Foreground(ColorLeftHeel)
	s.feet[parity.LeftToe] = r.NewStyle().Foreground(ColorLeftToe)
	s.feet[parity.RightHeel] = r.NewStyle().Bold(true).Foreground(ColorRightHeel)
	s.feet[parity.RightToe] = r.NewStyle().Foreground(ColorRightToe)
	return s
}

// Foot renders the short glyph of a foot-part: L/l for the left heel/toe,
// R/r for the right, and a dot for none.
func (s *Styles) Foot(f parity.Foot) string {
	if f < 0 || int(f) >= len(s.feet) {
		return "?"
	}
	return s.feet[f].Render(FootGlyph(f))
}

// FootGlyph returns the unstyled glyph of a foot-part.
func FootGlyph(f parity.Foot) string {
	switch f {
	case parity.LeftHeel:
		return "L"
	case parity.LeftToe:
		return "l"
	case parity.RightHeel:
		return "R"
	case parity.RightToe:
		return "r"
	default:
		return "·"
	}
}

// RenderCount returns a "label: value" pair, with the value styled by v.
func (s *Styles) RenderCount(label string, value any, v lipgloss.Style) string {
	return s.Label.Render(label+":") + " " + v.Render(fmt.Sprint(value))
}
