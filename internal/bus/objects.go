package bus

import (
	"fmt"
	"sort"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"
)

const introspectableInterface = "org.freedesktop.DBus.Introspectable"

// dbusObjects exports properties with godbus/prop. prop.Export owns the whole
// Properties interface of a path, so adding or removing an interface on a
// path re-exports every interface it carries with their current values.
type dbusObjects struct {
	conn *dbus.Conn

	mu      sync.Mutex
	objects map[dbus.ObjectPath]*exportedObject
}

type exportedObject struct {
	ifaces map[string][]Property
	props  *prop.Properties
}

func (o *dbusObjects) Register(path dbus.ObjectPath, iface string, props []Property) error {
	if !path.IsValid() {
		return fmt.Errorf("invalid object path %q", path)
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	obj, ok := o.objects[path]
	if !ok {
		obj = &exportedObject{ifaces: map[string][]Property{}}
		o.objects[path] = obj
	}
	o.syncValues(obj)
	obj.ifaces[iface] = append([]Property(nil), props...)
	return o.export(path, obj)
}

func (o *dbusObjects) Set(path dbus.ObjectPath, iface, name string, value interface{}) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	obj, ok := o.objects[path]
	if !ok || obj.props == nil {
		return fmt.Errorf("%s is not registered", path)
	}
	props, ok := obj.ifaces[iface]
	if !ok {
		return fmt.Errorf("%s has no interface %s", path, iface)
	}
	for i := range props {
		if props[i].Name == name {
			props[i].Value = value
			if err := setProp(obj.props, iface, name, value); err != nil {
				return fmt.Errorf("set %s.%s on %s: %w", iface, name, path, err)
			}
			return nil
		}
	}
	return fmt.Errorf("%s.%s has no property %s", path, iface, name)
}

// setProp updates a property without running its write callback. SetMust
// panics when the PropertiesChanged emit fails, e.g. on a closed connection.
func setProp(p *prop.Properties, iface, name string, value interface{}) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
				return
			}
			err = fmt.Errorf("%v", r)
		}
	}()
	p.SetMust(iface, name, value)
	return nil
}

func (o *dbusObjects) Unregister(path dbus.ObjectPath, iface string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	obj, ok := o.objects[path]
	if !ok {
		return nil
	}
	o.syncValues(obj)
	delete(obj.ifaces, iface)
	if len(obj.ifaces) > 0 {
		return o.export(path, obj)
	}

	delete(o.objects, path)
	if err := o.conn.Export(nil, path, PropertiesInterface); err != nil {
		return err
	}
	return o.conn.Export(nil, path, introspectableInterface)
}

// syncValues copies values written by remote Set calls back into the
// registration so a re-export does not revert them.
func (o *dbusObjects) syncValues(obj *exportedObject) {
	if obj.props == nil {
		return
	}
	for iface, props := range obj.ifaces {
		for i := range props {
			if v, err := obj.props.Get(iface, props[i].Name); err == nil {
				props[i].Value = v.Value()
			}
		}
	}
}

func (o *dbusObjects) export(path dbus.ObjectPath, obj *exportedObject) error {
	m := prop.Map{}
	names := make([]string, 0, len(obj.ifaces))
	for iface, props := range obj.ifaces {
		names = append(names, iface)
		pm := make(map[string]*prop.Prop, len(props))
		for _, p := range props {
			pp := &prop.Prop{Value: p.Value, Writable: p.Writable, Emit: prop.EmitTrue}
			if p.OnSet != nil {
				onSet := p.OnSet
				pp.Callback = func(c *prop.Change) *dbus.Error {
					if err := onSet(c.Value); err != nil {
						return dbus.MakeFailedError(err)
					}
					return nil
				}
			}
			pm[p.Name] = pp
		}
		m[iface] = pm
	}
	sort.Strings(names)

	props, err := prop.Export(o.conn, path, m)
	if err != nil {
		return err
	}
	obj.props = props

	node := &introspect.Node{
		Name:       string(path),
		Interfaces: []introspect.Interface{introspect.IntrospectData, prop.IntrospectData},
	}
	for _, iface := range names {
		node.Interfaces = append(node.Interfaces, introspect.Interface{
			Name:       iface,
			Properties: props.Introspection(iface),
		})
	}
	return o.conn.Export(introspect.NewIntrospectable(node), path, introspectableInterface)
}
