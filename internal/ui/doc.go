// Package ui holds the terminal styling shared by sensord's commands and
// the monitor dashboard.
//
// Colors are ANSI codes for broad terminal compatibility:
//
//	ColorSuccess   (green)  - readings within thresholds
//	ColorError     (red)    - critical alarms, failures
//	ColorWarning   (yellow) - warning alarms
//	ColorInfo      (cyan)   - informational text
//	ColorMuted     (gray)   - secondary text, unavailable sensors
//
// SetColorMode applies the output.color setting; DisableColors forces
// monochrome output.
//
// RenderSparkline draws a history as block characters and RenderSimpleTable
// prints a bubbles table without the interactive parts.
package ui
