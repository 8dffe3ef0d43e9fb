package monitor

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/rileyhilliard/sensord/internal/ui"
)

// Dashboard palette. Semantic colors come from the shared ui palette so
// the dashboard matches 'sensord read'.
const (
	ColorSurfaceBg = lipgloss.Color("#12121A")
	ColorBorder    = lipgloss.Color("#2A2A4A")
	ColorAccent    = lipgloss.Color("#FF2E97")
	ColorGraph     = lipgloss.Color("#00FFFF")

	ColorTextPrimary   = lipgloss.Color("#FFFFFF")
	ColorTextSecondary = lipgloss.Color("#B4B4D0")
)

var (
	HeaderStyle = lipgloss.NewStyle().
			Foreground(ColorTextPrimary).
			Background(ColorSurfaceBg).
			Bold(true).
			Padding(0, 1)

	FooterStyle = lipgloss.NewStyle().
			Foreground(ui.ColorMuted).
			Padding(0, 1)

	LabelStyle = lipgloss.NewStyle().
			Foreground(ColorTextSecondary)

	NameStyle = lipgloss.NewStyle().
			Foreground(ColorTextPrimary).
			Bold(true)

	SelectedStyle = lipgloss.NewStyle().
			Foreground(ColorAccent).
			Bold(true)
)

// StatusColor maps a sensor status to its color.
func StatusColor(s Status) lipgloss.Color {
	switch s {
	case StatusCritical:
		return ui.ColorError
	case StatusWarning:
		return ui.ColorWarning
	case StatusUnavailable:
		return ui.ColorMuted
	default:
		return ui.ColorSuccess
	}
}

// StatusGlyph is the plain marker for a sensor status.
func StatusGlyph(s Status) string {
	switch s {
	case StatusCritical:
		return ui.SymbolCritical
	case StatusWarning:
		return ui.SymbolWarning
	case StatusUnavailable:
		return ui.SymbolUnavailable
	}
	return ui.SymbolSuccess
}

// StatusSymbol is the colored row marker for a sensor status.
func StatusSymbol(s Status) string {
	return lipgloss.NewStyle().Foreground(StatusColor(s)).Render(StatusGlyph(s))
}

// SectionHeader renders a section header with the title on the left and value on the right.
// Format: ╭─ Title ────────────────────────────────────── Value ╮
func SectionHeader(title, value string, width int) string {
	if width < 10 {
		width = 10
	}

	leftWidth := 3 + lipgloss.Width(title) + 1
	rightWidth := 1 + lipgloss.Width(value) + 2
	fillWidth := width - leftWidth - rightWidth
	if fillWidth < 1 {
		fillWidth = 1
	}

	borderStyle := lipgloss.NewStyle().Foreground(ColorBorder)
	titleStyle := lipgloss.NewStyle().Foreground(ColorAccent).Bold(true)
	valueStyle := lipgloss.NewStyle().Foreground(ColorGraph).Bold(true)

	return borderStyle.Render("╭─ ") +
		titleStyle.Render(title) +
		borderStyle.Render(" "+strings.Repeat("─", fillWidth)+" ") +
		valueStyle.Render(value) +
		borderStyle.Render(" ╮")
}

// SectionFooter renders the bottom border of a section.
func SectionFooter(width int) string {
	if width < 2 {
		width = 2
	}
	return lipgloss.NewStyle().Foreground(ColorBorder).Render("╰" + strings.Repeat("─", width-2) + "╯")
}

// SectionContentLine renders a content line with side borders, padded to width.
func SectionContentLine(content string, width int) string {
	if width < 4 {
		width = 4
	}
	border := lipgloss.NewStyle().Foreground(ColorBorder).Render("│")

	padding := width - 4 - lipgloss.Width(content)
	if padding < 0 {
		padding = 0
	}
	return border + " " + content + strings.Repeat(" ", padding) + " " + border
}
