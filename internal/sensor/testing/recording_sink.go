package testing

import (
	"fmt"
	"math"
	"sync"

	"github.com/rileyhilliard/sensord/internal/sensor"
	"github.com/rileyhilliard/sensord/internal/thresholds"
)

// RecordingSink remembers everything published to it.
type RecordingSink struct {
	mu           sync.Mutex
	descriptors  map[string]sensor.Descriptor
	values       map[string][]float64
	available    map[string][]bool
	alarms       map[string][]thresholds.Event
	unregistered []string

	// Err, when set, is returned from every call.
	Err error
}

// NewRecordingSink creates an empty sink.
func NewRecordingSink() *RecordingSink {
	return &RecordingSink{
		descriptors: map[string]sensor.Descriptor{},
		values:      map[string][]float64{},
		available:   map[string][]bool{},
		alarms:      map[string][]thresholds.Event{},
	}
}

func (s *RecordingSink) Register(d sensor.Descriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.descriptors[d.Name]; ok {
		return fmt.Errorf("%s already registered", d.Name)
	}
	s.descriptors[d.Name] = d
	return s.Err
}

func (s *RecordingSink) SetValue(name string, v float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name] = append(s.values[name], v)
	return s.Err
}

func (s *RecordingSink) SetAvailable(name string, ok bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.available[name] = append(s.available[name], ok)
	return s.Err
}

func (s *RecordingSink) SetAlarm(name string, e thresholds.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alarms[name] = append(s.alarms[name], e)
	return s.Err
}

func (s *RecordingSink) Unregister(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.descriptors, name)
	s.unregistered = append(s.unregistered, name)
	return s.Err
}

// Descriptor returns the registration of name.
func (s *RecordingSink) Descriptor(name string) (sensor.Descriptor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.descriptors[name]
	return d, ok
}

// Values returns every value published for name.
func (s *RecordingSink) Values(name string) []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64(nil), s.values[name]...)
}

// LastValue returns the latest value for name; NaN when none was published.
func (s *RecordingSink) LastValue(name string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	vs := s.values[name]
	if len(vs) == 0 {
		return math.NaN()
	}
	return vs[len(vs)-1]
}

// Availability returns every availability published for name.
func (s *RecordingSink) Availability(name string) []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bool(nil), s.available[name]...)
}

// LastAvailable returns the latest availability for name.
func (s *RecordingSink) LastAvailable(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	as := s.available[name]
	return len(as) > 0 && as[len(as)-1]
}

// Alarms returns every alarm flip published for name.
func (s *RecordingSink) Alarms(name string) []thresholds.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]thresholds.Event(nil), s.alarms[name]...)
}

// Unregistered lists unregistered names in order.
func (s *RecordingSink) Unregistered() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.unregistered...)
}

var _ sensor.Sink = (*RecordingSink)(nil)
