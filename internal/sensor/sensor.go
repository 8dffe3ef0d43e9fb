// Package sensor implements the per-sensor polling state machine: read a
// raw value from a Source, convert and clamp it, publish it to a Sink and
// check thresholds, gated by the host power state.
package sensor

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rileyhilliard/sensord/internal/logger"
	"github.com/rileyhilliard/sensord/internal/loop"
	"github.com/rileyhilliard/sensord/internal/power"
	"github.com/rileyhilliard/sensord/internal/thresholds"
)

// DefaultPollRate is used when a sensor does not configure one.
const DefaultPollRate = time.Second

// errorThreshold is the failure streak after which a sensor warns loudly.
const errorThreshold = 10

var (
	// ErrDestroyed is returned when activating a destroyed sensor.
	ErrDestroyed = errors.New("sensor destroyed")
	// ErrOverrideDenied is returned for value overrides outside manufacturing mode.
	ErrOverrideDenied = errors.New("sensor value is read-only outside manufacturing mode")
)

// Config is a fully resolved sensor configuration.
type Config struct {
	Name              string
	Label             string
	ObjectType        string
	ConfigurationPath string
	Unit              Unit

	// Path is the input file read on every cycle.
	Path string

	Factor   float64
	Offset   float64
	Min      float64
	Max      float64
	PollRate time.Duration

	PowerState power.Requirement
	Slot       int

	Thresholds []thresholds.Threshold
}

// Validate checks the invariants a sensor relies on.
func (c Config) Validate() error {
	switch {
	case c.Name == "":
		return errors.New("sensor name is required")
	case c.Unit.Name == "":
		return fmt.Errorf("%s: unit is required", c.Name)
	case c.Factor == 0 || math.IsNaN(c.Factor):
		return fmt.Errorf("%s: factor must be non-zero", c.Name)
	case math.IsNaN(c.Min) || math.IsNaN(c.Max) || c.Min >= c.Max:
		return fmt.Errorf("%s: min (%g) must be below max (%g)", c.Name, c.Min, c.Max)
	case c.PollRate < 0:
		return fmt.Errorf("%s: poll rate must not be negative", c.Name)
	}
	return nil
}

// Descriptor is what sinks learn about a sensor when it registers.
type Descriptor struct {
	Name              string
	Label             string
	ObjectType        string
	ConfigurationPath string
	Unit              Unit
	Min               float64
	Max               float64
	PowerState        power.Requirement
	Slot              int
	Thresholds        []thresholds.Threshold

	// Override, when set, lets a sink accept external value writes.
	// It may be called from any goroutine.
	Override func(value float64) error
}

// Sink receives a sensor's published state. Methods are called on the loop
// goroutine.
type Sink interface {
	Register(d Descriptor) error
	SetValue(name string, value float64) error
	SetAvailable(name string, available bool) error
	SetAlarm(name string, e thresholds.Event) error
	Unregister(name string) error
}

// PowerGate decides whether the hardware behind a sensor may be read.
// *power.Tracker implements it.
type PowerGate interface {
	ReadingStateGood(req power.Requirement, slot int) bool
}

type alwaysGood struct{}

func (alwaysGood) ReadingStateGood(power.Requirement, int) bool { return true }

// AlwaysGood is a gate for sensors read without power tracking.
var AlwaysGood PowerGate = alwaysGood{}

// Sensor holds the published state shared by every sensor kind.
// All methods run on the loop goroutine.
type Sensor struct {
	desc Descriptor
	l    *loop.Loop
	sink Sink
	gate PowerGate
	log  logger.Logger

	value      float64
	raw        float64
	errorCount int
	available  bool
	overridden bool

	set    *thresholds.Set
	checks *thresholds.Debouncer
}

func newSensor(l *loop.Loop, desc Descriptor, sink Sink, gate PowerGate, log logger.Logger, delay time.Duration) (*Sensor, error) {
	set, err := thresholds.NewSet(desc.Thresholds)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", desc.Name, err)
	}
	desc.Thresholds = set.Thresholds()
	s := &Sensor{
		desc:  desc,
		l:     l,
		sink:  sink,
		gate:  gate,
		log:   log,
		value: math.NaN(),
		raw:   math.NaN(),
		set:   set,
	}
	s.checks = thresholds.NewDebouncer(l, set, delay, s.thresholdValue, s.publishAlarms)
	return s, nil
}

func (s *Sensor) Name() string { return s.desc.Name }

// Descriptor returns the registration data.
func (s *Sensor) Descriptor() Descriptor { return s.desc }

// Value is the last published value; NaN while unavailable.
func (s *Sensor) Value() float64 { return s.value }

// RawValue is the last parsed reading before conversion.
func (s *Sensor) RawValue() float64 { return s.raw }

// ErrorCount is the number of failed reads since the last good one.
func (s *Sensor) ErrorCount() int { return s.errorCount }

func (s *Sensor) Available() bool { return s.available }

// Overridden reports whether an external value is pinned.
func (s *Sensor) Overridden() bool { return s.overridden }

// Thresholds returns the thresholds with their assertion state.
func (s *Sensor) Thresholds() []thresholds.Threshold { return s.set.Thresholds() }

func (s *Sensor) readingStateGood() bool {
	return s.gate.ReadingStateGood(s.desc.PowerState, s.desc.Slot)
}

// updateValue clamps v into [min, max] and publishes it if it changed.
func (s *Sensor) updateValue(v float64) {
	if !math.IsNaN(v) {
		v = math.Min(math.Max(v, s.desc.Min), s.desc.Max)
	}
	if v != s.value && !(math.IsNaN(v) && math.IsNaN(s.value)) {
		s.value = v
		if err := s.sink.SetValue(s.desc.Name, v); err != nil {
			s.log.Warn("%s: publishing value: %v", s.desc.Name, err)
		}
	}
	if !math.IsNaN(v) {
		s.checkThresholds()
	}
}

// markAvailable publishes availability. Unavailable sensors read NaN.
func (s *Sensor) markAvailable(ok bool) {
	if s.available != ok {
		s.available = ok
		if err := s.sink.SetAvailable(s.desc.Name, ok); err != nil {
			s.log.Warn("%s: publishing availability: %v", s.desc.Name, err)
		}
	}
	if !ok {
		s.updateValue(math.NaN())
	}
}

func (s *Sensor) incrementError() {
	s.errorCount++
	if s.errorCount == errorThreshold {
		s.log.Error("%s: %d consecutive read errors", s.desc.Name, s.errorCount)
	}
}

func (s *Sensor) checkThresholds() {
	if s.set.Len() == 0 || !s.readingStateGood() {
		return
	}
	s.checks.Check(s.value)
}

// thresholdValue feeds delayed threshold checks.
func (s *Sensor) thresholdValue() (float64, bool) {
	if math.IsNaN(s.value) || !s.readingStateGood() {
		return 0, false
	}
	return s.value, true
}

func (s *Sensor) publishAlarms(events []thresholds.Event) {
	for _, e := range events {
		if e.Asserted {
			s.log.Info("%s: threshold %s", s.desc.Name, e)
		} else {
			s.log.Debug("%s: threshold %s", s.desc.Name, e)
		}
		if err := s.sink.SetAlarm(s.desc.Name, e); err != nil {
			s.log.Warn("%s: publishing %s alarm: %v", s.desc.Name, e.Level(), err)
		}
	}
}

// SetExternalValue pins the published value to v (clamped) until
// ClearOverride. Polling continues but its readings are not published.
func (s *Sensor) SetExternalValue(v float64) {
	s.overridden = true
	s.log.Info("%s: value overridden to %g", s.desc.Name, v)
	s.markAvailable(true)
	s.updateValue(v)
}

// ClearOverride resumes publishing polled readings.
func (s *Sensor) ClearOverride() {
	if s.overridden {
		s.overridden = false
		s.log.Info("%s: override cleared", s.desc.Name)
	}
}
