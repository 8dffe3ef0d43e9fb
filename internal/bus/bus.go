// Package bus is the object-bus boundary of sensord: method calls, signal
// subscriptions and property publishing. The production implementation sits
// on D-Bus (github.com/godbus/dbus/v5); tests use the fakes in bus/testing.
package bus

import (
	"context"

	"github.com/godbus/dbus/v5"
)

// Well-known names used across the daemon.
const (
	PropertiesInterface    = "org.freedesktop.DBus.Properties"
	ObjectManagerInterface = "org.freedesktop.DBus.ObjectManager"

	MapperBusName   = "xyz.openbmc_project.ObjectMapper"
	MapperPath      = "/xyz/openbmc_project/object_mapper"
	MapperInterface = "xyz.openbmc_project.ObjectMapper"

	InventoryPath = "/xyz/openbmc_project/inventory"
)

// Handler receives a signal that matched a subscription.
// Handlers run on the connection's dispatch goroutine; callers that own
// loop state must hand the work over to their loop.
type Handler func(sig *dbus.Signal)

// Subscription is an active signal match.
type Subscription interface {
	Close() error
}

// Conn is the subset of a bus connection the daemon relies on.
type Conn interface {
	// Call invokes iface.method on dest/path and stores the reply body in out.
	Call(ctx context.Context, dest string, path dbus.ObjectPath, iface, method string, args []interface{}, out ...interface{}) error

	// GetProperty reads a single property through org.freedesktop.DBus.Properties.Get.
	GetProperty(ctx context.Context, dest string, path dbus.ObjectPath, iface, name string) (dbus.Variant, error)

	// Subscribe registers h for signals matching rule.
	Subscribe(rule MatchRule, h Handler) (Subscription, error)

	// Emit sends a signal from path.
	Emit(path dbus.ObjectPath, name string, values ...interface{}) error

	// Objects returns the server used to publish properties.
	Objects() ObjectServer

	Close() error
}

// Property describes one published property.
type Property struct {
	Name  string
	Value interface{}

	// Writable properties accept external Set calls. OnSet, when present,
	// decides whether the write is accepted.
	Writable bool
	OnSet    func(value interface{}) error
}

// ObjectServer publishes interfaces and their properties on object paths.
type ObjectServer interface {
	Register(path dbus.ObjectPath, iface string, props []Property) error
	Set(path dbus.ObjectPath, iface, name string, value interface{}) error
	Unregister(path dbus.ObjectPath, iface string) error
}

// SubTree is the object mapper's GetSubTree reply: path → service → interfaces.
type SubTree map[string]map[string][]string

// GetSubTreePaths asks the object mapper for all paths below root (up to
// depth levels) implementing any of ifaces.
func GetSubTreePaths(ctx context.Context, c Conn, root string, depth int32, ifaces []string) ([]string, error) {
	var paths []string
	err := c.Call(ctx, MapperBusName, MapperPath, MapperInterface, "GetSubTreePaths",
		[]interface{}{root, depth, ifaces}, &paths)
	if err != nil {
		return nil, err
	}
	return paths, nil
}

// GetSubTree asks the object mapper for the objects below root implementing
// any of ifaces, together with their owning services.
func GetSubTree(ctx context.Context, c Conn, root string, depth int32, ifaces []string) (SubTree, error) {
	tree := SubTree{}
	err := c.Call(ctx, MapperBusName, MapperPath, MapperInterface, "GetSubTree",
		[]interface{}{root, depth, ifaces}, &tree)
	if err != nil {
		return nil, err
	}
	return tree, nil
}

// StringProperty extracts a string from a property map entry.
// ok is false when the property is absent or not a string.
func StringProperty(props map[string]dbus.Variant, name string) (value string, ok bool) {
	v, found := props[name]
	if !found {
		return "", false
	}
	s, isString := v.Value().(string)
	return s, isString
}

// PropertiesChangedBody decodes a PropertiesChanged signal body.
// ok is false when the body does not have the expected shape.
func PropertiesChangedBody(sig *dbus.Signal) (iface string, changed map[string]dbus.Variant, ok bool) {
	if sig == nil || len(sig.Body) < 2 {
		return "", nil, false
	}
	iface, ok = sig.Body[0].(string)
	if !ok {
		return "", nil, false
	}
	changed, ok = sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return "", nil, false
	}
	return iface, changed, true
}

// InterfacesAddedBody decodes an ObjectManager.InterfacesAdded signal body.
func InterfacesAddedBody(sig *dbus.Signal) (path dbus.ObjectPath, ifaces map[string]map[string]dbus.Variant, ok bool) {
	if sig == nil || len(sig.Body) < 2 {
		return "", nil, false
	}
	path, ok = sig.Body[0].(dbus.ObjectPath)
	if !ok {
		return "", nil, false
	}
	ifaces, ok = sig.Body[1].(map[string]map[string]dbus.Variant)
	if !ok {
		return "", nil, false
	}
	return path, ifaces, true
}
