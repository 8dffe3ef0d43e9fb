package bus

import (
	"context"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/rileyhilliard/sensord/internal/errors"
	"github.com/rileyhilliard/sensord/internal/logger"
)

// DBusConn implements Conn on a godbus connection.
//
// All incoming signals arrive on one channel and are fanned out to
// subscriptions whose rule matches, so overlapping bus-side match rules
// never deliver a signal twice to the same handler.
type DBusConn struct {
	conn    *dbus.Conn
	log     logger.Logger
	objects *dbusObjects

	mu     sync.Mutex
	subs   map[uint64]*dbusSubscription
	nextID uint64

	signals chan *dbus.Signal
	done    chan struct{}
	once    sync.Once
}

type dbusSubscription struct {
	id   uint64
	rule MatchRule
	h    Handler
	c    *DBusConn
}

// ConnectSystem opens a connection to the system bus.
func ConnectSystem(log logger.Logger) (*DBusConn, error) {
	c, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrBus,
			"Can't connect to the system bus",
			"Is dbus-daemon running? Check DBUS_SYSTEM_BUS_ADDRESS.")
	}
	return NewDBusConn(c, log), nil
}

// ConnectSession opens a connection to the session bus. Useful for running
// the daemon unprivileged on a workstation.
func ConnectSession(log logger.Logger) (*DBusConn, error) {
	c, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrBus,
			"Can't connect to the session bus",
			"Check DBUS_SESSION_BUS_ADDRESS.")
	}
	return NewDBusConn(c, log), nil
}

// NewDBusConn wraps an established godbus connection and starts signal dispatch.
func NewDBusConn(c *dbus.Conn, log logger.Logger) *DBusConn {
	if log == nil {
		log = logger.Noop()
	}
	dc := &DBusConn{
		conn:    c,
		log:     log,
		objects: &dbusObjects{conn: c, objects: map[dbus.ObjectPath]*exportedObject{}},
		subs:    map[uint64]*dbusSubscription{},
		signals: make(chan *dbus.Signal, 64),
		done:    make(chan struct{}),
	}
	c.Signal(dc.signals)
	go dc.dispatch()
	return dc
}

// RequestName claims a well-known bus name.
func (c *DBusConn) RequestName(name string) error {
	reply, err := c.conn.RequestName(name, dbus.NameFlagDoNotQueue)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrBus,
			"Can't request bus name "+name,
			"Check the bus policy allows this service to own the name.")
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return errors.New(errors.ErrBus,
			"Bus name "+name+" is already owned",
			"Is another sensord instance running?")
	}
	return nil
}

func (c *DBusConn) dispatch() {
	for {
		select {
		case <-c.done:
			return
		case sig, ok := <-c.signals:
			if !ok {
				return
			}
			for _, s := range c.snapshot() {
				if s.rule.Matches(sig) {
					s.h(sig)
				}
			}
		}
	}
}

func (c *DBusConn) snapshot() []*dbusSubscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*dbusSubscription, 0, len(c.subs))
	for _, s := range c.subs {
		out = append(out, s)
	}
	return out
}

func (c *DBusConn) Call(ctx context.Context, dest string, path dbus.ObjectPath, iface, method string, args []interface{}, out ...interface{}) error {
	call := c.conn.Object(dest, path).CallWithContext(ctx, iface+"."+method, 0, args...)
	if call.Err != nil {
		return errors.WrapWithCode(call.Err, errors.ErrBus,
			"Call to "+iface+"."+method+" on "+dest+" failed", "")
	}
	if len(out) == 0 {
		return nil
	}
	if err := call.Store(out...); err != nil {
		return errors.WrapWithCode(err, errors.ErrBus,
			"Unexpected reply from "+iface+"."+method, "")
	}
	return nil
}

func (c *DBusConn) GetProperty(ctx context.Context, dest string, path dbus.ObjectPath, iface, name string) (dbus.Variant, error) {
	var v dbus.Variant
	err := c.Call(ctx, dest, path, PropertiesInterface, "Get", []interface{}{iface, name}, &v)
	return v, err
}

func (c *DBusConn) Subscribe(rule MatchRule, h Handler) (Subscription, error) {
	if err := c.conn.AddMatchSignal(rule.options()...); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrBus,
			"Can't add match rule "+rule.String(), "")
	}
	c.mu.Lock()
	c.nextID++
	s := &dbusSubscription{id: c.nextID, rule: rule, h: h, c: c}
	c.subs[s.id] = s
	c.mu.Unlock()
	c.log.Debug("subscribed: %s", rule)
	return s, nil
}

func (s *dbusSubscription) Close() error {
	s.c.mu.Lock()
	_, ok := s.c.subs[s.id]
	delete(s.c.subs, s.id)
	s.c.mu.Unlock()
	if !ok {
		return nil
	}
	return s.c.conn.RemoveMatchSignal(s.rule.options()...)
}

func (c *DBusConn) Emit(path dbus.ObjectPath, name string, values ...interface{}) error {
	return c.conn.Emit(path, name, values...)
}

func (c *DBusConn) Objects() ObjectServer {
	return c.objects
}

func (c *DBusConn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		c.conn.RemoveSignal(c.signals)
		err = c.conn.Close()
	})
	return err
}
