package monitor

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/rileyhilliard/sensord/internal/metrics"
	"github.com/rileyhilliard/sensord/internal/ui"
	"github.com/rileyhilliard/sensord/internal/util"
)

const (
	nameWidth      = 28
	valueWidth     = 14
	sparkWidth     = 24
	minDetailWidth = 50
)

// FormatValue renders a snapshot's value with its unit symbol, or "n/a".
func FormatValue(s metrics.Snapshot) string {
	if s.Value == nil {
		return "n/a"
	}
	out := strconv.FormatFloat(*s.Value, 'f', 2, 64)
	if s.Symbol != "" {
		out += " " + s.Symbol
	}
	return out
}

// ActiveAlarms lists the asserted threshold levels of s, sorted.
func ActiveAlarms(s metrics.Snapshot) []string {
	var out []string
	for level, asserted := range s.Alarms {
		if asserted {
			out = append(out, level)
		}
	}
	sort.Strings(out)
	return out
}

// renderDashboard renders the sensor list.
func (m Model) renderDashboard() string {
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")
	b.WriteString(m.renderRows())
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m Model) renderHeader() string {
	var updateText string
	switch n := m.SecondsSinceUpdate(); n {
	case 0:
		updateText = "just now"
	default:
		updateText = fmt.Sprintf("%ds ago", n)
	}

	title := lipgloss.NewStyle().
		Foreground(ColorAccent).
		Bold(true).
		Render("sensord monitor")

	stats := lipgloss.NewStyle().
		Foreground(ColorTextSecondary).
		Render(fmt.Sprintf(" | %s | %s | %s | sort %s | last update %s",
			m.title, util.Count(len(m.rows), "sensor"), util.Count(m.AlarmCount(), "alarm"), m.sortOrder, updateText))

	return HeaderStyle.Render(title + stats)
}

func (m Model) renderRows() string {
	if len(m.rows) == 0 {
		return LabelStyle.Render("No sensors")
	}

	// keep the selection on screen when the list is taller than the terminal
	first, last := 0, len(m.rows)
	if visible := m.height - 5; m.height > 0 && visible > 0 && visible < len(m.rows) {
		first = m.selected - visible/2
		if first < 0 {
			first = 0
		}
		if first+visible > len(m.rows) {
			first = len(m.rows) - visible
		}
		last = first + visible
	}

	lines := make([]string, 0, last-first)
	for i := first; i < last; i++ {
		lines = append(lines, m.renderRow(m.rows[i], i == m.selected))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderRow(s metrics.Snapshot, selected bool) string {
	st := SensorStatus(s)

	cursor := "  "
	name := NameStyle.Render(s.Name)
	if selected {
		cursor = SelectedStyle.Render("> ")
		name = SelectedStyle.Render(s.Name)
	}

	value := lipgloss.NewStyle().Foreground(StatusColor(st)).Render(FormatValue(s))
	spark := ui.RenderSparkline(m.history.Get(s.Name, sparkWidth), sparkWidth, ColorGraph)

	row := cursor + StatusSymbol(st) + " " +
		ui.PadRight(name, nameWidth) + " " +
		ui.PadRight(value, valueWidth) + " " +
		ui.PadRight(spark, sparkWidth)
	if alarms := ActiveAlarms(s); len(alarms) > 0 {
		row += " " + lipgloss.NewStyle().Foreground(StatusColor(st)).Render(strings.Join(alarms, ","))
	}
	return row
}

// renderDetail renders the selected sensor with its thresholds and a wide
// history graph.
func (m Model) renderDetail() string {
	s, ok := m.Selected()
	if !ok {
		return m.renderDashboard()
	}

	width := m.width
	if width < minDetailWidth {
		width = minDetailWidth
	}
	st := SensorStatus(s)

	var lines []string
	lines = append(lines, SectionHeader(s.Name, FormatValue(s), width))
	if s.Label != "" {
		lines = append(lines, SectionContentLine(LabelStyle.Render("Label    ")+s.Label, width))
	}
	lines = append(lines,
		SectionContentLine(LabelStyle.Render("Status   ")+StatusSymbol(st)+" "+st.String(), width),
		SectionContentLine(LabelStyle.Render("Unit     ")+s.Unit, width),
		SectionContentLine(LabelStyle.Render("Range    ")+fmt.Sprintf("%g .. %g", s.Min, s.Max), width),
	)

	if lo, avg, hi, ok := m.history.Stats(s.Name); ok {
		lines = append(lines, SectionContentLine(LabelStyle.Render("History  ")+
			fmt.Sprintf("min %.2f  avg %.2f  max %.2f  (%d samples)", lo, avg, hi, m.history.Count(s.Name)), width))
	}

	levels := make([]string, 0, len(s.Thresholds))
	for level := range s.Thresholds {
		levels = append(levels, level)
	}
	sort.Strings(levels)
	for _, level := range levels {
		mark := ui.SymbolSuccess
		if s.Alarms[level] {
			mark = ui.SymbolFail
		}
		lines = append(lines, SectionContentLine(
			LabelStyle.Render(ui.PadRight(level, 14))+fmt.Sprintf("%g %s", s.Thresholds[level], mark), width))
	}

	graphWidth := width - 4
	lines = append(lines,
		SectionContentLine(ui.RenderSparkline(m.history.Get(s.Name, graphWidth), graphWidth, ColorGraph), width),
		SectionFooter(width),
	)

	return m.renderHeader() + "\n\n" + strings.Join(lines, "\n") + "\n" + m.renderFooter()
}

func (m Model) renderFooter() string {
	hints := []string{"q quit", "r refresh", "s sort", "↑↓ select", "enter detail", "? help"}
	if m.viewMode == ViewDetail {
		hints = []string{"q quit", "esc back", "? help"}
	}
	return FooterStyle.Render(strings.Join(hints, " | "))
}
