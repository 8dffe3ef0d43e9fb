// Package metrics exposes sensor state to Prometheus and over a small JSON
// API.
package metrics

import (
	"math"
	"sort"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/rileyhilliard/sensord/internal/errors"
	"github.com/rileyhilliard/sensord/internal/power"
	"github.com/rileyhilliard/sensord/internal/sensor"
	"github.com/rileyhilliard/sensord/internal/thresholds"
)

const namespace = "sensord"

// Snapshot is the JSON view of one sensor.
type Snapshot struct {
	Name      string          `json:"name"`
	Label     string          `json:"label,omitempty"`
	Unit      string          `json:"unit"`
	Symbol    string          `json:"symbol,omitempty"`
	Value     *float64        `json:"value"`
	Min       float64         `json:"min"`
	Max       float64         `json:"max"`
	Available bool            `json:"available"`
	Alarms    map[string]bool `json:"alarms,omitempty"`

	Thresholds map[string]float64 `json:"thresholds,omitempty"`
}

type tracked struct {
	desc      sensor.Descriptor
	value     float64
	available bool
	alarms    map[string]bool
}

// Sink mirrors sensor state into Prometheus gauges. Unlike the bus sink it
// is read from HTTP goroutines, so it guards its own state.
type Sink struct {
	registry *prometheus.Registry

	value     *prometheus.GaugeVec
	available *prometheus.GaugeVec
	asserted  *prometheus.GaugeVec
	power     *prometheus.GaugeVec

	mu      sync.RWMutex
	sensors map[string]*tracked
	powered map[string]bool
}

// NewSink creates a sink with its own registry. withRuntime adds the Go and
// process collectors.
func NewSink(withRuntime bool) *Sink {
	s := &Sink{
		registry: prometheus.NewRegistry(),
		value: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sensor_value",
			Help:      "Last published sensor value, in the sensor's unit.",
		}, []string{"sensor", "unit"}),
		available: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sensor_available",
			Help:      "1 when the sensor is readable.",
		}, []string{"sensor"}),
		asserted: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "threshold_asserted",
			Help:      "1 while a threshold alarm is asserted.",
		}, []string{"sensor", "level"}),
		power: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "power_state",
			Help:      "1 when the tracked power domain is on.",
		}, []string{"kind", "slot"}),
		sensors: map[string]*tracked{},
		powered: map[string]bool{},
	}
	s.registry.MustRegister(s.value, s.available, s.asserted, s.power)
	if withRuntime {
		s.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return s
}

// Registry is the registry the gauges live in.
func (s *Sink) Registry() *prometheus.Registry { return s.registry }

func (s *Sink) Register(d sensor.Descriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sensors[d.Name]; ok {
		return errors.New(errors.ErrSensor, "sensor "+d.Name+" is already tracked", "")
	}
	t := &tracked{desc: d, value: math.NaN(), alarms: map[string]bool{}}
	for _, th := range d.Thresholds {
		t.alarms[th.Level()] = false
		s.asserted.WithLabelValues(d.Name, th.Level()).Set(0)
	}
	s.sensors[d.Name] = t
	s.available.WithLabelValues(d.Name).Set(0)
	return nil
}

func (s *Sink) get(name string) (*tracked, error) {
	t, ok := s.sensors[name]
	if !ok {
		return nil, errors.New(errors.ErrSensor, "sensor "+name+" is not tracked", "")
	}
	return t, nil
}

// SetValue records v. NaN removes the value series so scrapes don't report
// stale readings.
func (s *Sink) SetValue(name string, v float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.get(name)
	if err != nil {
		return err
	}
	t.value = v
	if math.IsNaN(v) {
		s.value.DeleteLabelValues(name, t.desc.Unit.Name)
		return nil
	}
	s.value.WithLabelValues(name, t.desc.Unit.Name).Set(v)
	return nil
}

func (s *Sink) SetAvailable(name string, ok bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.get(name)
	if err != nil {
		return err
	}
	t.available = ok
	s.available.WithLabelValues(name).Set(boolGauge(ok))
	return nil
}

func (s *Sink) SetAlarm(name string, e thresholds.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.get(name)
	if err != nil {
		return err
	}
	t.alarms[e.Level()] = e.Asserted
	s.asserted.WithLabelValues(name, e.Level()).Set(boolGauge(e.Asserted))
	return nil
}

func (s *Sink) Unregister(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.get(name)
	if err != nil {
		return err
	}
	delete(s.sensors, name)
	s.value.DeleteLabelValues(name, t.desc.Unit.Name)
	s.available.DeleteLabelValues(name)
	s.asserted.DeletePartialMatch(prometheus.Labels{"sensor": name})
	return nil
}

// PowerChanged is a power.Listener.
func (s *Sink) PowerChanged(kind power.Kind, slot int, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.powered[kind.String()+strconv.Itoa(slot)] = on
	s.power.WithLabelValues(kind.String(), strconv.Itoa(slot)).Set(boolGauge(on))
}

// Power returns the last reported power states keyed like "host0".
func (s *Sink) Power() map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]bool, len(s.powered))
	for k, v := range s.powered {
		out[k] = v
	}
	return out
}

// Sensors returns every tracked sensor, sorted by name.
func (s *Sink) Sensors() []Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Snapshot, 0, len(s.sensors))
	for _, t := range s.sensors {
		out = append(out, t.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Sensor returns one sensor's snapshot.
func (s *Sink) Sensor(name string) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.sensors[name]
	if !ok {
		return Snapshot{}, false
	}
	return t.snapshot(), true
}

func (t *tracked) snapshot() Snapshot {
	snap := Snapshot{
		Name:      t.desc.Name,
		Label:     t.desc.Label,
		Unit:      t.desc.Unit.Name,
		Symbol:    t.desc.Unit.Symbol,
		Min:       t.desc.Min,
		Max:       t.desc.Max,
		Available: t.available,
	}
	if !math.IsNaN(t.value) {
		v := t.value
		snap.Value = &v
	}
	if len(t.alarms) > 0 {
		snap.Alarms = make(map[string]bool, len(t.alarms))
		for k, v := range t.alarms {
			snap.Alarms[k] = v
		}
	}
	if len(t.desc.Thresholds) > 0 {
		snap.Thresholds = make(map[string]float64, len(t.desc.Thresholds))
		for _, th := range t.desc.Thresholds {
			snap.Thresholds[th.Level()] = th.Value
		}
	}
	return snap
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

var _ sensor.Sink = (*Sink)(nil)
