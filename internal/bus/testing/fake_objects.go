package testing

import (
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/rileyhilliard/sensord/internal/bus"
)

// PropertyChange records one Set on the fake object server.
type PropertyChange struct {
	Path  dbus.ObjectPath
	Iface string
	Name  string
	Value interface{}
}

// FakeObjectServer keeps published properties in memory.
type FakeObjectServer struct {
	mu      sync.Mutex
	objects map[dbus.ObjectPath]map[string][]bus.Property
	changes []PropertyChange
}

// NewFakeObjectServer creates an empty server.
func NewFakeObjectServer() *FakeObjectServer {
	return &FakeObjectServer{objects: map[dbus.ObjectPath]map[string][]bus.Property{}}
}

func (s *FakeObjectServer) Register(path dbus.ObjectPath, iface string, props []bus.Property) error {
	if !path.IsValid() {
		return fmt.Errorf("invalid object path %q", path)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[path]
	if !ok {
		obj = map[string][]bus.Property{}
		s.objects[path] = obj
	}
	obj[iface] = append([]bus.Property(nil), props...)
	return nil
}

func (s *FakeObjectServer) Set(path dbus.ObjectPath, iface, name string, value interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.find(path, iface, name)
	if err != nil {
		return err
	}
	p.Value = value
	s.changes = append(s.changes, PropertyChange{Path: path, Iface: iface, Name: name, Value: value})
	return nil
}

func (s *FakeObjectServer) Unregister(path dbus.ObjectPath, iface string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[path]
	if !ok {
		return nil
	}
	delete(obj, iface)
	if len(obj) == 0 {
		delete(s.objects, path)
	}
	return nil
}

func (s *FakeObjectServer) find(path dbus.ObjectPath, iface, name string) (*bus.Property, error) {
	obj, ok := s.objects[path]
	if !ok {
		return nil, fmt.Errorf("%s is not registered", path)
	}
	props, ok := obj[iface]
	if !ok {
		return nil, fmt.Errorf("%s has no interface %s", path, iface)
	}
	for i := range props {
		if props[i].Name == name {
			return &props[i], nil
		}
	}
	return nil, fmt.Errorf("%s.%s has no property %s", path, iface, name)
}

// Write simulates a remote client setting a property. Read-only properties
// and writes rejected by OnSet return an error and leave the value alone.
func (s *FakeObjectServer) Write(path dbus.ObjectPath, iface, name string, value interface{}) error {
	s.mu.Lock()
	p, err := s.find(path, iface, name)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if !p.Writable {
		s.mu.Unlock()
		return fmt.Errorf("property %s is read-only", name)
	}
	onSet := p.OnSet
	s.mu.Unlock()

	if onSet != nil {
		if err := onSet(value); err != nil {
			return err
		}
	}
	return s.Set(path, iface, name, value)
}

// Get returns a published property value.
func (s *FakeObjectServer) Get(path dbus.ObjectPath, iface, name string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.find(path, iface, name)
	if err != nil {
		return nil, false
	}
	return p.Value, true
}

// Has reports whether iface is registered on path.
func (s *FakeObjectServer) Has(path dbus.ObjectPath, iface string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[path][iface]
	return ok
}

// Paths returns the number of registered object paths.
func (s *FakeObjectServer) Paths() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// Changes returns every Set recorded so far.
func (s *FakeObjectServer) Changes() []PropertyChange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]PropertyChange(nil), s.changes...)
}

// ChangesFor returns the recorded values of one property, in order.
func (s *FakeObjectServer) ChangesFor(path dbus.ObjectPath, iface, name string) []interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []interface{}
	for _, c := range s.changes {
		if c.Path == path && c.Iface == iface && c.Name == name {
			out = append(out, c.Value)
		}
	}
	return out
}

var _ bus.ObjectServer = (*FakeObjectServer)(nil)
