// Package monitor implements 'sensord monitor', a live terminal dashboard
// of sensor readings, and the bus-less polling engine behind it and
// 'sensord read'.
//
// # Architecture
//
// The dashboard uses Bubble Tea (Model-Update-View):
//
//   - Model: sensor rows, per-sensor history, selection, sort order
//   - Update: keystrokes, window size, refresh ticks
//   - View: the sensor list, or the detail of one sensor
//
// Rows come from a Snapshotter. Engine is the usual one: it runs polling
// sensors on their own loop goroutine over a local or SSH opener and keeps
// their state in a metrics sink, whose snapshots are safe to read from the
// UI goroutine.
//
// # Keyboard Shortcuts
//
//	q, Ctrl+C   - Quit
//	r           - Refresh now
//	s           - Cycle sort order (name/value/alarm)
//	j/k, ↑/↓    - Navigate
//	Enter       - Sensor detail
//	Esc         - Back
//	?           - Toggle help overlay
package monitor
