package monitor

import (
	"math"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/rileyhilliard/sensord/internal/metrics"
)

// DefaultInterval is the dashboard refresh rate.
const DefaultInterval = time.Second

// Snapshotter supplies the sensor rows. Engine and metrics.Sink both
// satisfy it.
type Snapshotter interface {
	Sensors() []metrics.Snapshot
}

// Status summarizes one sensor for display.
type Status int

const (
	StatusOK Status = iota
	StatusWarning
	StatusCritical
	StatusUnavailable
)

// String returns a human-readable label for the status.
func (s Status) String() string {
	switch s {
	case StatusWarning:
		return "warning"
	case StatusCritical:
		return "critical"
	case StatusUnavailable:
		return "unavailable"
	default:
		return "ok"
	}
}

// SensorStatus derives a display status from a snapshot. Critical alarms
// win over warnings.
func SensorStatus(s metrics.Snapshot) Status {
	if !s.Available || s.Value == nil {
		return StatusUnavailable
	}
	st := StatusOK
	for level, asserted := range s.Alarms {
		if !asserted {
			continue
		}
		if strings.HasPrefix(level, "Critical") {
			return StatusCritical
		}
		st = StatusWarning
	}
	return st
}

// Model is the Bubble Tea model of the sensor dashboard.
type Model struct {
	source     Snapshotter
	title      string
	rows       []metrics.Snapshot
	history    *History
	selected   int
	sortOrder  SortOrder
	viewMode   ViewMode
	showHelp   bool
	quitting   bool
	width      int
	height     int
	interval   time.Duration
	lastUpdate time.Time
	now        func() time.Time
}

type tickMsg time.Time

// NewModel creates a dashboard over source. title names what is being
// watched, e.g. "local" or a host alias.
func NewModel(source Snapshotter, title string, interval time.Duration, historySize int) Model {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return Model{
		source:   source,
		title:    title,
		history:  NewHistory(historySize),
		interval: interval,
		now:      time.Now,
	}
}

// Init takes the first sample and starts the refresh tick.
func (m Model) Init() tea.Cmd {
	return func() tea.Msg { return tickMsg(time.Now()) }
}

// Update handles Bubble Tea messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if handled, cmd := m.HandleKeyMsg(msg); handled {
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.sample()
		return m, m.tickCmd()
	}
	return m, nil
}

// View renders the dashboard.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.showHelp {
		return m.renderHelpOverlay()
	}
	if m.viewMode == ViewDetail {
		return m.renderDetail()
	}
	return m.renderDashboard()
}

func (m Model) tickCmd() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// sample pulls fresh snapshots and extends every sensor's history.
func (m *Model) sample() {
	m.rows = m.source.Sensors()
	for _, s := range m.rows {
		v := math.NaN()
		if s.Value != nil && s.Available {
			v = *s.Value
		}
		m.history.Push(s.Name, v)
	}
	m.lastUpdate = m.now()
	m.sortRows()
}

// sortRows orders the rows and keeps the selection on the same sensor.
func (m *Model) sortRows() {
	var current string
	if m.selected >= 0 && m.selected < len(m.rows) {
		current = m.rows[m.selected].Name
	}

	rows := m.rows
	switch m.sortOrder {
	case SortByValue:
		sort.SliceStable(rows, func(i, j int) bool {
			vi, vj := rows[i].Value, rows[j].Value
			if vi == nil || vj == nil {
				return vi != nil
			}
			if *vi != *vj {
				return *vi > *vj
			}
			return rows[i].Name < rows[j].Name
		})
	case SortByAlarm:
		sort.SliceStable(rows, func(i, j int) bool {
			si, sj := alarmRank(SensorStatus(rows[i])), alarmRank(SensorStatus(rows[j]))
			if si != sj {
				return si > sj
			}
			return rows[i].Name < rows[j].Name
		})
	default:
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })
	}

	m.selected = 0
	for i, s := range rows {
		if s.Name == current {
			m.selected = i
			break
		}
	}
}

// alarmRank puts critical sensors first and unavailable ones last.
func alarmRank(s Status) int {
	switch s {
	case StatusCritical:
		return 3
	case StatusWarning:
		return 2
	case StatusOK:
		return 1
	default:
		return 0
	}
}

// Selected returns the highlighted sensor.
func (m Model) Selected() (metrics.Snapshot, bool) {
	if m.selected < 0 || m.selected >= len(m.rows) {
		return metrics.Snapshot{}, false
	}
	return m.rows[m.selected], true
}

// AlarmCount returns how many sensors have an asserted alarm.
func (m Model) AlarmCount() int {
	n := 0
	for _, s := range m.rows {
		if st := SensorStatus(s); st == StatusWarning || st == StatusCritical {
			n++
		}
	}
	return n
}

// SecondsSinceUpdate returns seconds elapsed since the last sample.
func (m Model) SecondsSinceUpdate() int {
	if m.lastUpdate.IsZero() {
		return 0
	}
	return int(m.now().Sub(m.lastUpdate).Seconds())
}
