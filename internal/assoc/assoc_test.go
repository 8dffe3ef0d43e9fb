package assoc

import (
	"errors"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rileyhilliard/sensord/internal/bus"
	bustest "github.com/rileyhilliard/sensord/internal/bus/testing"
	"github.com/rileyhilliard/sensord/internal/loop"
)

const (
	board      = "/xyz/openbmc_project/inventory/system/board/PSU_Board"
	configPath = board + "/PSU1"
	system     = "/xyz/openbmc_project/inventory/system/chassis/Tyan_S7106"
	sensorPath = dbus.ObjectPath("/xyz/openbmc_project/sensors/voltage/PSU1_Input")
)

func TestFindContainingChassis(t *testing.T) {
	tree := bus.SubTree{
		board: {"xyz.openbmc_project.EntityManager": {"xyz.openbmc_project.Inventory.Item.Board"}},
		system: {"xyz.openbmc_project.EntityManager": {
			"xyz.openbmc_project.Inventory.Item.Chassis",
			"xyz.openbmc_project.Inventory.Item.System",
		}},
	}

	got, ok := FindContainingChassis(board, tree)
	assert.True(t, ok)
	assert.Equal(t, board, got, "a parent that is a board wins")

	got, ok = FindContainingChassis("/xyz/openbmc_project/inventory/system/other/Thing", tree)
	assert.True(t, ok)
	assert.Equal(t, system, got, "falls back to the system chassis")

	delete(tree, system)
	_, ok = FindContainingChassis("/xyz/openbmc_project/inventory/system/other/Thing", tree)
	assert.False(t, ok)
}

func TestFindContainingChassisDeterministic(t *testing.T) {
	sys := map[string][]string{"svc": {systemInterface}}
	tree := bus.SubTree{"/b": sys, "/a": sys, "/c": sys}
	for i := 0; i < 10; i++ {
		got, ok := FindContainingChassis("/x", tree)
		require.True(t, ok)
		assert.Equal(t, "/a", got)
	}
}

func TestSimple(t *testing.T) {
	assert.Equal(t, []Association{{"chassis", "all_sensors", board}}, Simple(configPath))
}

func newPublisher(t *testing.T) (*Publisher, *bustest.FakeConn, *loop.Loop) {
	t.Helper()
	conn := bustest.NewFakeConn()
	l := loop.NewManual(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	return NewPublisher(l, conn, nil), conn, l
}

func published(t *testing.T, conn *bustest.FakeConn) []Association {
	t.Helper()
	v, ok := conn.FakeObjects().Get(sensorPath, Interface, Property)
	require.True(t, ok, "associations published")
	return v.([]Association)
}

func TestPublishUsesSystemChassis(t *testing.T) {
	p, conn, l := newPublisher(t)
	conn.OnSubTree(bus.SubTree{
		system: {"xyz.openbmc_project.EntityManager": {systemInterface}},
	})

	p.Publish(sensorPath, configPath)
	l.RunPending()

	assert.Equal(t, Inventory(board, system), published(t, conn))

	calls := conn.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, bus.MapperInterface+".GetSubTree", calls[0].Method)
	assert.Equal(t, []interface{}{SystemInventoryPath, int32(2), ChassisInterfaces}, calls[0].Args)
}

func TestPublishFallsBackToParentOnError(t *testing.T) {
	p, conn, l := newPublisher(t)
	conn.FailCall(bus.MapperBusName, bus.MapperPath, bus.MapperInterface, "GetSubTree", errors.New("no mapper"))

	p.Publish(sensorPath, configPath)
	l.RunPending()

	assert.Equal(t, []Association{
		{"inventory", "sensors", board},
		{"chassis", "all_sensors", board},
	}, published(t, conn))
}

func TestPublishWithoutInventoryLookup(t *testing.T) {
	p, conn, l := newPublisher(t)
	p.SetInventoryLookup(false)

	p.Publish(sensorPath, configPath)
	assert.Equal(t, Simple(configPath), published(t, conn), "published without waiting for the loop")
	l.RunPending()
	assert.Empty(t, conn.Calls(), "no mapper lookup")
}

func TestPublishReplacesPreviousSet(t *testing.T) {
	p, conn, l := newPublisher(t)
	conn.OnSubTree(bus.SubTree{board: {"svc": {"xyz.openbmc_project.Inventory.Item.Board"}}})

	p.PublishSimple(sensorPath, configPath)
	p.Publish(sensorPath, configPath)
	l.RunPending()

	assert.Len(t, published(t, conn), 2, "replaced, not appended")
}

func TestUnpublishDropsLateReply(t *testing.T) {
	p, conn, l := newPublisher(t)
	conn.OnSubTree(bus.SubTree{})

	p.Publish(sensorPath, configPath)
	p.Unpublish(sensorPath)
	l.RunPending()

	assert.False(t, conn.FakeObjects().Has(sensorPath, Interface))
}
