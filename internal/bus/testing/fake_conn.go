// Package testing provides in-memory bus fakes for unit tests.
package testing

import (
	"context"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/rileyhilliard/sensord/internal/bus"
)

// ErrNoReply is returned for calls that have no scripted reply.
var ErrNoReply = fmt.Errorf("fake bus: no scripted reply")

// CallRecord is one observed method call.
type CallRecord struct {
	Dest   string
	Path   dbus.ObjectPath
	Method string // iface.method
	Args   []interface{}
}

// CallHandler computes a reply from the call arguments.
type CallHandler func(args []interface{}) ([]interface{}, error)

type reply struct {
	body    []interface{}
	err     error
	handler CallHandler
}

type propFailure struct {
	remaining int
	err       error
}

// FakeConn is a scriptable bus.Conn.
//
// Call replies are looked up by dest, path and iface.method. Property reads
// are served from SetProperty values, with optional queued failures. Signals
// are delivered synchronously with Deliver.
type FakeConn struct {
	mu       sync.Mutex
	calls    []CallRecord
	replies  map[string]reply
	props    map[string]dbus.Variant
	failures map[string]*propFailure
	subs     map[int]*fakeSub
	nextSub  int
	emitted  []*dbus.Signal
	objects  *FakeObjectServer

	subtreePaths map[string][]string
}

type fakeSub struct {
	id   int
	rule bus.MatchRule
	h    bus.Handler
	f    *FakeConn
}

// NewFakeConn creates an empty fake connection.
func NewFakeConn() *FakeConn {
	return &FakeConn{
		replies:  map[string]reply{},
		props:    map[string]dbus.Variant{},
		failures: map[string]*propFailure{},
		subs:     map[int]*fakeSub{},
		objects:  NewFakeObjectServer(),

		subtreePaths: map[string][]string{},
	}
}

func callKey(dest string, path dbus.ObjectPath, method string) string {
	return dest + "|" + string(path) + "|" + method
}

func propKey(dest string, path dbus.ObjectPath, iface, name string) string {
	return dest + "|" + string(path) + "|" + iface + "|" + name
}

// OnCall scripts the reply for iface.method on dest/path.
func (f *FakeConn) OnCall(dest string, path dbus.ObjectPath, iface, method string, body ...interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[callKey(dest, path, iface+"."+method)] = reply{body: body}
}

// FailCall makes iface.method on dest/path return err.
func (f *FakeConn) FailCall(dest string, path dbus.ObjectPath, iface, method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[callKey(dest, path, iface+"."+method)] = reply{err: err}
}

// HandleCall answers iface.method on dest/path with h.
func (f *FakeConn) HandleCall(dest string, path dbus.ObjectPath, iface, method string, h CallHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[callKey(dest, path, iface+"."+method)] = reply{handler: h}
}

// OnSubTreePathsFor scripts the mapper's GetSubTreePaths reply for queries
// naming iface. Queries for interfaces with nothing scripted get no paths.
func (f *FakeConn) OnSubTreePathsFor(iface string, paths ...string) {
	f.mu.Lock()
	f.subtreePaths[iface] = paths
	f.mu.Unlock()

	f.HandleCall(bus.MapperBusName, bus.MapperPath, bus.MapperInterface, "GetSubTreePaths",
		func(args []interface{}) ([]interface{}, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			var out []string
			if len(args) > 2 {
				ifaces, _ := args[2].([]string)
				for _, i := range ifaces {
					out = append(out, f.subtreePaths[i]...)
				}
			}
			return []interface{}{out}, nil
		})
}

// OnSubTreePaths scripts the mapper's GetSubTreePaths reply.
func (f *FakeConn) OnSubTreePaths(paths ...string) {
	f.OnCall(bus.MapperBusName, bus.MapperPath, bus.MapperInterface, "GetSubTreePaths", paths)
}

// OnSubTree scripts the mapper's GetSubTree reply.
func (f *FakeConn) OnSubTree(tree bus.SubTree) {
	f.OnCall(bus.MapperBusName, bus.MapperPath, bus.MapperInterface, "GetSubTree", map[string]map[string][]string(tree))
}

// SetProperty sets the value returned by GetProperty.
func (f *FakeConn) SetProperty(dest string, path dbus.ObjectPath, iface, name string, value interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.props[propKey(dest, path, iface, name)] = dbus.MakeVariant(value)
}

// FailProperty makes the next times reads of the property fail with err.
func (f *FakeConn) FailProperty(dest string, path dbus.ObjectPath, iface, name string, times int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[propKey(dest, path, iface, name)] = &propFailure{remaining: times, err: err}
}

func (f *FakeConn) Call(_ context.Context, dest string, path dbus.ObjectPath, iface, method string, args []interface{}, out ...interface{}) error {
	f.mu.Lock()
	f.calls = append(f.calls, CallRecord{Dest: dest, Path: path, Method: iface + "." + method, Args: args})
	r, ok := f.replies[callKey(dest, path, iface+"."+method)]
	f.mu.Unlock()

	if !ok {
		return ErrNoReply
	}
	body, err := r.body, r.err
	if r.handler != nil {
		body, err = r.handler(args)
	}
	if err != nil {
		return err
	}
	if len(out) == 0 {
		return nil
	}
	return dbus.Store(body, out...)
}

func (f *FakeConn) GetProperty(_ context.Context, dest string, path dbus.ObjectPath, iface, name string) (dbus.Variant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, CallRecord{
		Dest: dest, Path: path, Method: bus.PropertiesInterface + ".Get",
		Args: []interface{}{iface, name},
	})

	key := propKey(dest, path, iface, name)
	if fail, ok := f.failures[key]; ok && fail.remaining > 0 {
		fail.remaining--
		return dbus.Variant{}, fail.err
	}
	v, ok := f.props[key]
	if !ok {
		return dbus.Variant{}, fmt.Errorf("fake bus: no property %s.%s on %s", iface, name, path)
	}
	return v, nil
}

func (f *FakeConn) Subscribe(rule bus.MatchRule, h bus.Handler) (bus.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextSub++
	s := &fakeSub{id: f.nextSub, rule: rule, h: h, f: f}
	f.subs[s.id] = s
	return s, nil
}

func (s *fakeSub) Close() error {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	delete(s.f.subs, s.id)
	return nil
}

func (f *FakeConn) Emit(path dbus.ObjectPath, name string, values ...interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emitted = append(f.emitted, &dbus.Signal{Path: path, Name: name, Body: values})
	return nil
}

func (f *FakeConn) Objects() bus.ObjectServer {
	return f.objects
}

// FakeObjects returns the fake object server for assertions.
func (f *FakeConn) FakeObjects() *FakeObjectServer {
	return f.objects
}

func (f *FakeConn) Close() error {
	return nil
}

// Deliver hands sig to every subscription whose rule matches, on the
// calling goroutine. Returns the number of handlers invoked.
func (f *FakeConn) Deliver(sig *dbus.Signal) int {
	f.mu.Lock()
	var matched []bus.Handler
	for id := 1; id <= f.nextSub; id++ {
		if s, ok := f.subs[id]; ok && s.rule.Matches(sig) {
			matched = append(matched, s.h)
		}
	}
	f.mu.Unlock()

	for _, h := range matched {
		h(sig)
	}
	return len(matched)
}

// DeliverPropertiesChanged builds and delivers a PropertiesChanged signal.
func (f *FakeConn) DeliverPropertiesChanged(path dbus.ObjectPath, iface string, changed map[string]interface{}) int {
	body := make(map[string]dbus.Variant, len(changed))
	for k, v := range changed {
		body[k] = dbus.MakeVariant(v)
	}
	return f.Deliver(&dbus.Signal{
		Path: path,
		Name: bus.PropertiesInterface + ".PropertiesChanged",
		Body: []interface{}{iface, body, []string{}},
	})
}

// DeliverInterfacesAdded builds and delivers an InterfacesAdded signal.
func (f *FakeConn) DeliverInterfacesAdded(path dbus.ObjectPath, ifaces map[string]map[string]interface{}) int {
	body := make(map[string]map[string]dbus.Variant, len(ifaces))
	for iface, props := range ifaces {
		m := make(map[string]dbus.Variant, len(props))
		for k, v := range props {
			m[k] = dbus.MakeVariant(v)
		}
		body[iface] = m
	}
	return f.Deliver(&dbus.Signal{
		Path: "/",
		Name: bus.ObjectManagerInterface + ".InterfacesAdded",
		Body: []interface{}{path, body},
	})
}

// Calls returns the recorded calls.
func (f *FakeConn) Calls() []CallRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]CallRecord(nil), f.calls...)
}

// CallCount counts recorded calls to method (iface.method).
func (f *FakeConn) CallCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Subscriptions returns the number of live subscriptions.
func (f *FakeConn) Subscriptions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Emitted returns the signals sent through Emit.
func (f *FakeConn) Emitted() []*dbus.Signal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*dbus.Signal(nil), f.emitted...)
}

var _ bus.Conn = (*FakeConn)(nil)
