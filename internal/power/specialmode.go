package power

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/godbus/dbus/v5"

	"github.com/rileyhilliard/sensord/internal/bus"
	"github.com/rileyhilliard/sensord/internal/logger"
	"github.com/rileyhilliard/sensord/internal/loop"
)

// Special mode bus names.
const (
	SpecialModeService   = "xyz.openbmc_project.SpecialMode"
	SpecialModePath      = dbus.ObjectPath("/xyz/openbmc_project/security/special_mode")
	SpecialModeInterface = "xyz.openbmc_project.Security.SpecialMode"
	SpecialModeProperty  = "SpecialMode"

	ModeManufacturing      = "xyz.openbmc_project.Control.Security.SpecialMode.Modes.Manufacturing"
	ModeValidationUnsecure = "xyz.openbmc_project.Control.Security.SpecialMode.Modes.ValidationUnsecure"
)

// SpecialMode follows the platform's special mode. While manufacturing mode
// is on, published sensor values may be overridden from the bus.
//
// Active is safe from any goroutine; it is read by bus write callbacks.
type SpecialMode struct {
	l             *loop.Loop
	conn          bus.Conn
	log           logger.Logger
	allowUnsecure bool
	manufacturing atomic.Bool
	subs          []bus.Subscription

	listenersMu sync.Mutex
	listeners   []func(bool)
}

// NewSpecialMode creates a tracker. allowUnsecure also treats the
// ValidationUnsecure mode as manufacturing mode.
func NewSpecialMode(l *loop.Loop, conn bus.Conn, log logger.Logger, allowUnsecure bool) *SpecialMode {
	if log == nil {
		log = logger.Noop()
	}
	return &SpecialMode{l: l, conn: conn, log: log, allowUnsecure: allowUnsecure}
}

// Active reports whether manufacturing mode is on.
func (m *SpecialMode) Active() bool {
	return m.manufacturing.Load()
}

// OnChange registers fn for every mode update.
func (m *SpecialMode) OnChange(fn func(active bool)) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Setup subscribes to the special mode object appearing and changing and
// starts an initial read.
func (m *SpecialMode) Setup(ctx context.Context) error {
	added, err := m.conn.Subscribe(bus.InterfacesAdded(SpecialModePath), func(sig *dbus.Signal) {
		m.l.Post(func() { m.handleAdded(sig) })
	})
	if err != nil {
		return err
	}
	changed, err := m.conn.Subscribe(bus.MatchRule{
		Interface: bus.PropertiesInterface,
		Member:    "PropertiesChanged",
		Arg0:      SpecialModeInterface,
	}, func(sig *dbus.Signal) {
		m.l.Post(func() { m.handleChanged(sig) })
	})
	if err != nil {
		_ = added.Close()
		return err
	}
	m.subs = append(m.subs, added, changed)

	loop.Go(m.l, func() readResult {
		v, err := m.conn.GetProperty(ctx, SpecialModeService, SpecialModePath, SpecialModeInterface, SpecialModeProperty)
		return readResult{v: v, err: err}
	}, func(r readResult) {
		if r.err != nil {
			m.log.Warn("error getting SpecialMode status: %v", r.err)
			return
		}
		s, ok := r.v.Value().(string)
		if !ok {
			m.log.Warn("SpecialMode is %s, not a string", r.v.Signature())
			return
		}
		m.update(s)
	})
	return nil
}

func (m *SpecialMode) handleAdded(sig *dbus.Signal) {
	_, ifaces, ok := bus.InterfacesAddedBody(sig)
	if !ok {
		m.log.Warn("malformed InterfacesAdded payload ignored")
		return
	}
	props, ok := ifaces[SpecialModeInterface]
	if !ok {
		return
	}
	s, ok := bus.StringProperty(props, SpecialModeProperty)
	if !ok {
		m.log.Warn("SpecialMode property missing from InterfacesAdded")
		return
	}
	m.update(s)
}

func (m *SpecialMode) handleChanged(sig *dbus.Signal) {
	iface, changed, ok := bus.PropertiesChangedBody(sig)
	if !ok || iface != SpecialModeInterface {
		return
	}
	if _, present := changed[SpecialModeProperty]; !present {
		return
	}
	s, ok := bus.StringProperty(changed, SpecialModeProperty)
	if !ok {
		m.log.Warn("SpecialMode is not a string; ignored")
		return
	}
	m.update(s)
}

func (m *SpecialMode) update(mode string) {
	active := mode == ModeManufacturing || (m.allowUnsecure && mode == ModeValidationUnsecure)
	if m.manufacturing.Swap(active) != active {
		m.log.Info("manufacturing mode %s", onOff(active))
	}

	m.listenersMu.Lock()
	listeners := slices.Clone(m.listeners)
	m.listenersMu.Unlock()
	for _, fn := range listeners {
		fn(active)
	}
}

// Close drops the subscriptions.
func (m *SpecialMode) Close() error {
	var first error
	for _, s := range m.subs {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	m.subs = nil
	return first
}
