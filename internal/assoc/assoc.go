// Package assoc links published sensors to their inventory and chassis.
package assoc

import (
	"context"
	"path"
	"sort"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/rileyhilliard/sensord/internal/bus"
	"github.com/rileyhilliard/sensord/internal/logger"
	"github.com/rileyhilliard/sensord/internal/loop"
)

// Bus names used for associations.
const (
	Interface = "xyz.openbmc_project.Association.Definitions"
	Property  = "Associations"

	SystemInventoryPath = bus.InventoryPath + "/system"
	systemInterface     = "xyz.openbmc_project.Inventory.Item.System"
)

// ChassisInterfaces are the inventory items a sensor can live in.
var ChassisInterfaces = []string{
	"xyz.openbmc_project.Inventory.Item.Board",
	"xyz.openbmc_project.Inventory.Item.Chassis",
}

// Association is one (forward, reverse, endpoint) triple; it marshals as (sss).
type Association struct {
	Forward  string
	Reverse  string
	Endpoint string
}

// FindContainingChassis picks the chassis for a sensor whose configuration
// lives under parent. parent wins when it is itself a chassis or board;
// otherwise the first object implementing the System item is used.
func FindContainingChassis(parent string, tree bus.SubTree) (string, bool) {
	if _, ok := tree[parent]; ok {
		return parent, true
	}

	objects := make([]string, 0, len(tree))
	for obj := range tree {
		objects = append(objects, obj)
	}
	sort.Strings(objects)
	for _, obj := range objects {
		for _, ifaces := range tree[obj] {
			for _, iface := range ifaces {
				if iface == systemInterface {
					return obj, true
				}
			}
		}
	}
	return "", false
}

// Inventory returns the full association set for a sensor.
func Inventory(parent, chassis string) []Association {
	return []Association{
		{Forward: "inventory", Reverse: "sensors", Endpoint: parent},
		{Forward: "chassis", Reverse: "all_sensors", Endpoint: chassis},
	}
}

// Simple returns the chassis association used without an inventory lookup.
func Simple(configPath string) []Association {
	return []Association{
		{Forward: "chassis", Reverse: "all_sensors", Endpoint: path.Dir(configPath)},
	}
}

// Publisher resolves and publishes associations. Methods run on the loop
// goroutine.
type Publisher struct {
	l       *loop.Loop
	conn    bus.Conn
	log     logger.Logger
	timeout time.Duration
	lookup  bool

	pending map[dbus.ObjectPath]uint64
	gen     uint64
}

// NewPublisher creates a publisher on conn.
func NewPublisher(l *loop.Loop, conn bus.Conn, log logger.Logger) *Publisher {
	if log == nil {
		log = logger.Noop()
	}
	return &Publisher{
		l:       l,
		conn:    conn,
		log:     log,
		timeout: 10 * time.Second,
		lookup:  true,
		pending: map[dbus.ObjectPath]uint64{},
	}
}

// SetInventoryLookup turns the inventory lookup of Publish on or off. When
// off, Publish behaves like PublishSimple.
func (p *Publisher) SetInventoryLookup(on bool) {
	p.lookup = on
}

type subtreeResult struct {
	tree bus.SubTree
	err  error
}

// Publish looks up the chassis containing configPath's parent and publishes
// the associations on sensorPath. It returns immediately; a lookup failure
// associates both links with the parent. Any previous set is replaced.
func (p *Publisher) Publish(sensorPath dbus.ObjectPath, configPath string) {
	if !p.lookup {
		p.PublishSimple(sensorPath, configPath)
		return
	}
	p.gen++
	gen := p.gen
	p.pending[sensorPath] = gen
	parent := path.Dir(configPath)

	loop.Go(p.l, func() subtreeResult {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		tree, err := bus.GetSubTree(ctx, p.conn, SystemInventoryPath, 2, ChassisInterfaces)
		return subtreeResult{tree: tree, err: err}
	}, func(r subtreeResult) {
		if p.pending[sensorPath] != gen {
			return
		}
		chassis := parent
		if r.err != nil {
			p.log.Debug("%s: inventory lookup failed, using parent: %v", sensorPath, r.err)
		} else if found, ok := FindContainingChassis(parent, r.tree); ok {
			chassis = found
		}
		p.set(sensorPath, Inventory(parent, chassis))
	})
}

// PublishSimple publishes the single chassis association synchronously.
func (p *Publisher) PublishSimple(sensorPath dbus.ObjectPath, configPath string) {
	p.gen++
	p.pending[sensorPath] = p.gen
	p.set(sensorPath, Simple(configPath))
}

func (p *Publisher) set(sensorPath dbus.ObjectPath, assocs []Association) {
	err := p.conn.Objects().Register(sensorPath, Interface, []bus.Property{
		{Name: Property, Value: assocs},
	})
	if err != nil {
		p.log.Warn("%s: publishing associations: %v", sensorPath, err)
	}
}

// Unpublish removes the associations of sensorPath and drops any lookup
// still in flight for it.
func (p *Publisher) Unpublish(sensorPath dbus.ObjectPath) {
	delete(p.pending, sensorPath)
	if err := p.conn.Objects().Unregister(sensorPath, Interface); err != nil {
		p.log.Debug("%s: removing associations: %v", sensorPath, err)
	}
}
