package thresholds

import (
	"fmt"
	"math"
)

// Set owns the thresholds of one sensor and applies flips to them.
type Set struct {
	ts []Threshold
}

// NewSet validates ts and returns a set with every threshold deasserted.
// At most one threshold per level is allowed.
func NewSet(ts []Threshold) (*Set, error) {
	seen := map[string]bool{}
	out := make([]Threshold, 0, len(ts))
	for _, t := range ts {
		if math.IsNaN(t.Value) || math.IsInf(t.Value, 0) {
			return nil, fmt.Errorf("%s: threshold value must be finite", t.Level())
		}
		if t.Hysteresis < 0 || math.IsNaN(t.Hysteresis) {
			return nil, fmt.Errorf("%s: hysteresis must be >= 0", t.Level())
		}
		if seen[t.Level()] {
			return nil, fmt.Errorf("%s configured more than once", t.Level())
		}
		seen[t.Level()] = true
		t.Asserted = false
		out = append(out, t)
	}
	return &Set{ts: out}, nil
}

// Len returns the number of thresholds.
func (s *Set) Len() int {
	return len(s.ts)
}

// Thresholds returns a copy of the current thresholds.
func (s *Set) Thresholds() []Threshold {
	return append([]Threshold(nil), s.ts...)
}

// Evaluate reports flips for v without applying them.
func (s *Set) Evaluate(v float64) []Event {
	return Evaluate(s.ts, v)
}

// Check evaluates v and applies the resulting flips.
func (s *Set) Check(v float64) []Event {
	events := Evaluate(s.ts, v)
	s.Apply(events)
	return events
}

// Apply records the assertion state carried by events.
func (s *Set) Apply(events []Event) {
	for _, e := range events {
		for i := range s.ts {
			if s.ts[i].Severity == e.Severity && s.ts[i].Direction == e.Direction {
				s.ts[i].Asserted = e.Asserted
			}
		}
	}
}

// Asserted reports the alarm state of a level; false when it is not configured.
func (s *Set) Asserted(sev Severity, dir Direction) bool {
	for _, t := range s.ts {
		if t.Severity == sev && t.Direction == dir {
			return t.Asserted
		}
	}
	return false
}

// Severities returns the configured severities in order.
func (s *Set) Severities() []Severity {
	var out []Severity
	for _, sev := range []Severity{Warning, Critical} {
		for _, t := range s.ts {
			if t.Severity == sev {
				out = append(out, sev)
				break
			}
		}
	}
	return out
}

// Interfaces returns the bus interfaces the set needs, in severity order.
func (s *Set) Interfaces() []string {
	var out []string
	for _, sev := range s.Severities() {
		out = append(out, InterfaceName(sev))
	}
	return out
}
