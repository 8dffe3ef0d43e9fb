// Package publish exports sensors as objects on the bus.
package publish

import (
	"fmt"
	"math"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/rileyhilliard/sensord/internal/assoc"
	"github.com/rileyhilliard/sensord/internal/bus"
	"github.com/rileyhilliard/sensord/internal/errors"
	"github.com/rileyhilliard/sensord/internal/logger"
	"github.com/rileyhilliard/sensord/internal/sensor"
	"github.com/rileyhilliard/sensord/internal/thresholds"
)

// Interfaces published for every sensor.
const (
	SensorsRoot = "/xyz/openbmc_project/sensors"

	ValueInterface        = "xyz.openbmc_project.Sensor.Value"
	AvailabilityInterface = "xyz.openbmc_project.State.Decorator.Availability"
	OperationalInterface  = "xyz.openbmc_project.State.Decorator.OperationalStatus"

	// ThresholdAsserted is emitted on the threshold interface of the
	// flipped level.
	ThresholdAsserted = "ThresholdAsserted"
)

// ObjectPath returns where a sensor is published.
func ObjectPath(d sensor.Descriptor) dbus.ObjectPath {
	return dbus.ObjectPath(fmt.Sprintf("%s/%s/%s", SensorsRoot, d.Unit.Name, d.Name))
}

type entry struct {
	path   dbus.ObjectPath
	ifaces []string
}

// BusSink implements sensor.Sink by publishing each sensor's properties.
type BusSink struct {
	conn  bus.Conn
	assoc *assoc.Publisher
	log   logger.Logger

	mu      sync.Mutex
	sensors map[string]*entry
}

// NewBusSink publishes on conn. Associations are published through a when
// it is non-nil.
func NewBusSink(conn bus.Conn, a *assoc.Publisher, log logger.Logger) *BusSink {
	if log == nil {
		log = logger.Noop()
	}
	return &BusSink{
		conn:    conn,
		assoc:   a,
		log:     log,
		sensors: map[string]*entry{},
	}
}

func (s *BusSink) lookup(name string) (*entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sensors[name]
	if !ok {
		return nil, errors.New(errors.ErrBus, "sensor "+name+" is not published", "")
	}
	return e, nil
}

// Register exports the value, availability, operational status and
// threshold interfaces of d, and starts the association lookup.
func (s *BusSink) Register(d sensor.Descriptor) error {
	path := ObjectPath(d)
	if !path.IsValid() {
		return errors.New(errors.ErrBus, fmt.Sprintf("invalid object path %q", path),
			"Sensor names may only contain letters, digits and underscores.")
	}

	s.mu.Lock()
	if _, ok := s.sensors[d.Name]; ok {
		s.mu.Unlock()
		return errors.New(errors.ErrBus, "sensor "+d.Name+" is already published",
			"Give every sensor a unique name.")
	}
	e := &entry{path: path}
	s.sensors[d.Name] = e
	s.mu.Unlock()

	objs := s.conn.Objects()
	register := func(iface string, props []bus.Property) error {
		if err := objs.Register(path, iface, props); err != nil {
			return errors.WrapWithCode(err, errors.ErrBus, "Can't publish "+iface+" on "+string(path), "")
		}
		e.ifaces = append(e.ifaces, iface)
		return nil
	}

	value := bus.Property{Name: "Value", Value: math.NaN()}
	if d.Override != nil {
		override := d.Override
		value.Writable = true
		value.OnSet = func(v interface{}) error {
			f, ok := v.(float64)
			if !ok {
				return fmt.Errorf("value must be a double, got %T", v)
			}
			return override(f)
		}
	}

	err := errors.Join(
		register(ValueInterface, []bus.Property{
			value,
			{Name: "MaxValue", Value: d.Max},
			{Name: "MinValue", Value: d.Min},
			{Name: "Unit", Value: d.Unit.BusUnit},
		}),
		register(AvailabilityInterface, []bus.Property{{Name: "Available", Value: false}}),
		register(OperationalInterface, []bus.Property{{Name: "Functional", Value: true}}),
	)
	for sev, props := range thresholdProperties(d.Thresholds) {
		err = errors.Join(err, register(thresholds.InterfaceName(sev), props))
	}
	if err != nil {
		s.drop(d.Name, e)
		return err
	}

	if s.assoc != nil && d.ConfigurationPath != "" {
		s.assoc.Publish(path, d.ConfigurationPath)
	}
	return nil
}

// thresholdProperties groups a sensor's levels by severity interface.
func thresholdProperties(ts []thresholds.Threshold) map[thresholds.Severity][]bus.Property {
	out := map[thresholds.Severity][]bus.Property{}
	for _, t := range ts {
		out[t.Severity] = append(out[t.Severity],
			bus.Property{Name: thresholds.ValueProperty(t.Severity, t.Direction), Value: t.Value},
			bus.Property{Name: thresholds.AlarmProperty(t.Severity, t.Direction), Value: t.Asserted},
		)
	}
	return out
}

func (s *BusSink) SetValue(name string, v float64) error {
	e, err := s.lookup(name)
	if err != nil {
		return err
	}
	return s.conn.Objects().Set(e.path, ValueInterface, "Value", v)
}

func (s *BusSink) SetAvailable(name string, ok bool) error {
	e, err := s.lookup(name)
	if err != nil {
		return err
	}
	return s.conn.Objects().Set(e.path, AvailabilityInterface, "Available", ok)
}

// SetAlarm updates the alarm property of e's level and emits
// ThresholdAsserted(name, interface, property, asserted, value).
func (s *BusSink) SetAlarm(name string, ev thresholds.Event) error {
	e, err := s.lookup(name)
	if err != nil {
		return err
	}
	iface := thresholds.InterfaceName(ev.Severity)
	prop := thresholds.AlarmProperty(ev.Severity, ev.Direction)
	return errors.Join(
		s.conn.Objects().Set(e.path, iface, prop, ev.Asserted),
		s.conn.Emit(e.path, iface+"."+ThresholdAsserted, name, iface, prop, ev.Asserted, ev.Value),
	)
}

// Unregister removes every interface published for name.
func (s *BusSink) Unregister(name string) error {
	e, err := s.lookup(name)
	if err != nil {
		return err
	}
	if s.assoc != nil {
		s.assoc.Unpublish(e.path)
	}
	return s.drop(name, e)
}

func (s *BusSink) drop(name string, e *entry) error {
	s.mu.Lock()
	delete(s.sensors, name)
	s.mu.Unlock()

	var err error
	for _, iface := range e.ifaces {
		err = errors.Join(err, s.conn.Objects().Unregister(e.path, iface))
	}
	return err
}

// Published returns the object path of name.
func (s *BusSink) Published(name string) (dbus.ObjectPath, bool) {
	e, err := s.lookup(name)
	if err != nil {
		return "", false
	}
	return e.path, true
}

var _ sensor.Sink = (*BusSink)(nil)
