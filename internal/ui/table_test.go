package ui

import (
	"testing"

	"github.com/charmbracelet/bubbles/table"
	"github.com/stretchr/testify/assert"
)

func TestNewTable(t *testing.T) {
	tbl := NewTable([]TableColumn{{Title: "Sensor", Width: 20}, {Title: "Value", Width: 10}},
		[]table.Row{{"CPU0_Temp", "42.0"}, {"Fan1", "3200"}}, 0)

	view := tbl.View()
	assert.Contains(t, view, "Sensor")
	assert.Contains(t, view, "CPU0_Temp")
	assert.Contains(t, view, "Fan1")
}

func TestRenderSimpleTable(t *testing.T) {
	cols := []TableColumn{{Title: "Sensor", Width: 12}}
	assert.Empty(t, RenderSimpleTable(cols, nil))

	out := RenderSimpleTable(cols, [][]string{{"PSU1_Temp"}})
	assert.Contains(t, out, "PSU1_Temp")
}

func TestPadRight(t *testing.T) {
	assert.Equal(t, "ab   ", PadRight("ab", 5))
	assert.Equal(t, "abcdef", PadRight("abcdef", 3))
	assert.Equal(t, "✓ ", PadRight("✓", 2))
}
