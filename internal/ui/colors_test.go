package ui

import (
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
)

func keepProfile(t *testing.T) {
	t.Helper()
	old := lipgloss.ColorProfile()
	t.Cleanup(func() { lipgloss.SetColorProfile(old) })
}

func TestStylesRender(t *testing.T) {
	for _, style := range []lipgloss.Style{SuccessStyle(), ErrorStyle(), WarningStyle(), InfoStyle(), MutedStyle()} {
		assert.Contains(t, style.Render("text"), "text")
	}
}

func TestSetColorMode(t *testing.T) {
	keepProfile(t)

	assert.NoError(t, SetColorMode("never"))
	assert.Equal(t, termenv.Ascii, lipgloss.ColorProfile())
	assert.Equal(t, "plain", ErrorStyle().Render("plain"))

	assert.NoError(t, SetColorMode("always"))
	assert.Equal(t, termenv.ANSI256, lipgloss.ColorProfile())

	assert.Error(t, SetColorMode("rainbow"))
}

func TestSetColorModeAutoWithoutTerminal(t *testing.T) {
	keepProfile(t)
	lipgloss.SetColorProfile(termenv.ANSI256)

	// go test's stdout is not a terminal
	t.Setenv("NO_COLOR", "1")
	assert.NoError(t, SetColorMode("auto"))
	assert.Equal(t, termenv.Ascii, lipgloss.ColorProfile())
}
