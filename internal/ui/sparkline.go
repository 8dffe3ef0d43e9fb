package ui

import (
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Sparkline block characters representing 8 vertical levels (lowest to highest).
var sparklineBlocks = []rune("▁▂▃▄▅▆▇█")

// RenderSparkline draws the last width points of data scaled to their own
// min/max. NaN points (unavailable readings) render as a gap. The line is
// colored with color.
func RenderSparkline(data []float64, width int, color lipgloss.Color) string {
	if len(data) == 0 || width <= 0 {
		return ""
	}
	if len(data) > width {
		data = data[len(data)-width:]
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range data {
		if math.IsNaN(v) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	levels := len(sparklineBlocks)
	var sb strings.Builder
	for _, v := range data {
		if math.IsNaN(v) {
			sb.WriteRune(' ')
			continue
		}
		level := levels / 2
		if hi > lo {
			level = int((v - lo) / (hi - lo) * float64(levels-1))
			level = max(0, min(level, levels-1))
		}
		sb.WriteRune(sparklineBlocks[level])
	}
	return lipgloss.NewStyle().Foreground(color).Render(sb.String())
}
