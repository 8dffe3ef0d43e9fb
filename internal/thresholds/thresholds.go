// Package thresholds evaluates hysteretic alarm thresholds.
//
// Evaluate is pure: it reports which thresholds would flip for a value and
// leaves publishing to the caller. Set keeps the assertion state of one
// sensor, and Debouncer serializes its checks on the event loop.
package thresholds

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Severity of a threshold.
type Severity int

const (
	Warning Severity = iota
	Critical
)

func (s Severity) String() string {
	switch s {
	case Warning:
		return "Warning"
	case Critical:
		return "Critical"
	}
	return fmt.Sprintf("Severity(%d)", int(s))
}

// Direction of a threshold: Low alarms on falling values, High on rising ones.
type Direction int

const (
	Low Direction = iota
	High
)

func (d Direction) String() string {
	switch d {
	case Low:
		return "Low"
	case High:
		return "High"
	}
	return fmt.Sprintf("Direction(%d)", int(d))
}

// Threshold is one configured alarm level.
type Threshold struct {
	Severity   Severity
	Direction  Direction
	Value      float64
	Hysteresis float64
	Asserted   bool
}

// Level names the threshold the way the bus does, e.g. "WarningHigh".
func (t Threshold) Level() string {
	return t.Severity.String() + t.Direction.String()
}

// Event is a single assertion-state flip.
type Event struct {
	Severity  Severity
	Direction Direction
	Asserted  bool
	Threshold float64
	Value     float64
}

func (e Event) Level() string {
	return e.Severity.String() + e.Direction.String()
}

func (e Event) String() string {
	state := "deasserted"
	if e.Asserted {
		state = "asserted"
	}
	return fmt.Sprintf("%s %s at %g (threshold %g)", e.Level(), state, e.Value, e.Threshold)
}

// crossed reports the assertion state t should have after observing v.
func crossed(t Threshold, v float64) bool {
	if t.Direction == High {
		if t.Asserted {
			return !(v < t.Value-t.Hysteresis)
		}
		return v >= t.Value
	}
	if t.Asserted {
		return !(v > t.Value+t.Hysteresis)
	}
	return v <= t.Value
}

// Evaluate returns the flips that observing v would cause. It does not
// modify ts. NaN produces no events. Events are ordered warning before
// critical and low before high.
func Evaluate(ts []Threshold, v float64) []Event {
	if math.IsNaN(v) {
		return nil
	}
	var events []Event
	for _, t := range ts {
		if next := crossed(t, v); next != t.Asserted {
			events = append(events, Event{
				Severity:  t.Severity,
				Direction: t.Direction,
				Asserted:  next,
				Threshold: t.Value,
				Value:     v,
			})
		}
	}
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Severity != events[j].Severity {
			return events[i].Severity < events[j].Severity
		}
		return events[i].Direction < events[j].Direction
	})
	return events
}

// ParseLevel parses a level name such as "warning_high", "criticalLow" or
// "CriticalHigh".
func ParseLevel(s string) (Severity, Direction, error) {
	norm := strings.ToLower(strings.NewReplacer("_", "", "-", "", " ", "").Replace(s))
	switch norm {
	case "warninglow":
		return Warning, Low, nil
	case "warninghigh":
		return Warning, High, nil
	case "criticallow":
		return Critical, Low, nil
	case "criticalhigh":
		return Critical, High, nil
	}
	return 0, 0, fmt.Errorf("unknown threshold level %q", s)
}

// InterfaceName is the bus interface carrying thresholds of sev.
func InterfaceName(sev Severity) string {
	return "xyz.openbmc_project.Sensor.Threshold." + sev.String()
}

// ValueProperty is the bus property holding the threshold value, e.g. "WarningHigh".
func ValueProperty(sev Severity, dir Direction) string {
	return sev.String() + dir.String()
}

// AlarmProperty is the bus property holding the alarm state, e.g. "WarningAlarmHigh".
func AlarmProperty(sev Severity, dir Direction) string {
	return sev.String() + "Alarm" + dir.String()
}
