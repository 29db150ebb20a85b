package tui

import "github.com/charmbracelet/lipgloss"

// palette holds the ANSI 256 colours the UI draws with.
var palette = struct {
	accent, border, muted, dim, text, current lipgloss.Color
	prog, warn, ok, bad, review, finding     lipgloss.Color
}{
	accent:  "205",
	border:  "62",
	muted:   "240",
	dim:     "241",
	text:    "255",
	current: "212",
	prog:    "#e67e22",
	warn:    "208",
	ok:      "42",
	bad:     "196",
	review:  "117",
	finding: "214",
}

func fg(c lipgloss.Color) lipgloss.Style { return lipgloss.NewStyle().Foreground(c) }

func box(border lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(border).Padding(0, 1)
}

var (
	titleStyle     = fg(palette.accent).Bold(true).MarginBottom(1)
	statusBoxStyle = box(palette.border)
	logBoxStyle    = box(palette.muted)

	labelStyle   = fg(palette.dim)
	valueStyle   = fg(palette.text)
	currentStyle = fg(palette.current).Bold(true)
	helpStyle    = labelStyle

	progPrefixStyle = fg(palette.prog).Bold(true)
	pausedStyle     = fg(palette.warn).Bold(true)
	runningStyle    = fg(palette.ok)
	stoppedStyle    = fg(palette.bad).Bold(true)

	toolStyle    = labelStyle
	toolResStyle = fg("245")
	reviewStyle  = fg(palette.review)
	findingStyle = fg(palette.finding)
)
