package sensor

import (
	"github.com/rileyhilliard/sensord/internal/errors"
	"github.com/rileyhilliard/sensord/internal/thresholds"
)

// MultiSink fans every call out to each sink in order. All sinks are
// called even when one fails; the failures are joined.
type MultiSink []Sink

func (m MultiSink) Register(d Descriptor) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Register(d))
	}
	return errors.Join(errs...)
}

func (m MultiSink) SetValue(name string, value float64) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.SetValue(name, value))
	}
	return errors.Join(errs...)
}

func (m MultiSink) SetAvailable(name string, available bool) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.SetAvailable(name, available))
	}
	return errors.Join(errs...)
}

func (m MultiSink) SetAlarm(name string, e thresholds.Event) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.SetAlarm(name, e))
	}
	return errors.Join(errs...)
}

func (m MultiSink) Unregister(name string) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Unregister(name))
	}
	return errors.Join(errs...)
}

// DiscardSink ignores everything.
type DiscardSink struct{}

func (DiscardSink) Register(Descriptor) error               { return nil }
func (DiscardSink) SetValue(string, float64) error          { return nil }
func (DiscardSink) SetAvailable(string, bool) error         { return nil }
func (DiscardSink) SetAlarm(string, thresholds.Event) error { return nil }
func (DiscardSink) Unregister(string) error                 { return nil }
