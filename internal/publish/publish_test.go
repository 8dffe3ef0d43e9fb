package publish_test

import (
	"math"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rileyhilliard/sensord/internal/assoc"
	"github.com/rileyhilliard/sensord/internal/bus"
	bustest "github.com/rileyhilliard/sensord/internal/bus/testing"
	"github.com/rileyhilliard/sensord/internal/loop"
	"github.com/rileyhilliard/sensord/internal/publish"
	"github.com/rileyhilliard/sensord/internal/sensor"
	sensortest "github.com/rileyhilliard/sensord/internal/sensor/testing"
	"github.com/rileyhilliard/sensord/internal/thresholds"
)

const (
	inputPath  = "/sys/class/hwmon/hwmon3/in1_input"
	objectPath = dbus.ObjectPath("/xyz/openbmc_project/sensors/voltage/PSU1_Input_Voltage")
)

type harness struct {
	l      *loop.Loop
	conn   *bustest.FakeConn
	sink   *publish.BusSink
	opener *sensortest.FakeOpener
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		l:      loop.NewManual(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		conn:   bustest.NewFakeConn(),
		opener: sensortest.NewFakeOpener(),
	}
	h.sink = publish.NewBusSink(h.conn, assoc.NewPublisher(h.l, h.conn, nil), nil)
	h.opener.Add(inputPath, "50\n")
	return h
}

func config(t *testing.T) sensor.Config {
	t.Helper()
	unit, err := sensor.ParseUnit("voltage")
	require.NoError(t, err)
	return sensor.Config{
		Name:     "PSU1 Input Voltage",
		Unit:     unit,
		Path:     inputPath,
		Factor:   2,
		Min:      0,
		Max:      100,
		PollRate: time.Second,
	}
}

func (h *harness) newSensor(t *testing.T, cfg sensor.Config, opts ...sensor.Option) *sensor.PollingSensor {
	t.Helper()
	opts = append([]sensor.Option{sensor.WithOpener(h.opener.Open)}, opts...)
	s, err := sensor.NewPolling(h.l, cfg, h.sink, opts...)
	require.NoError(t, err)
	return s
}

func (h *harness) get(t *testing.T, iface, name string) interface{} {
	t.Helper()
	v, ok := h.conn.FakeObjects().Get(objectPath, iface, name)
	require.True(t, ok, "%s.%s published", iface, name)
	return v
}

func TestRegisterPublishesInterfaces(t *testing.T) {
	h := newHarness(t)
	h.newSensor(t, config(t))

	path, ok := h.sink.Published("PSU1_Input_Voltage")
	require.True(t, ok)
	assert.Equal(t, objectPath, path)

	assert.True(t, math.IsNaN(h.get(t, publish.ValueInterface, "Value").(float64)))
	assert.Equal(t, 100.0, h.get(t, publish.ValueInterface, "MaxValue"))
	assert.Equal(t, 0.0, h.get(t, publish.ValueInterface, "MinValue"))
	assert.Equal(t, "xyz.openbmc_project.Sensor.Value.Unit.Volts", h.get(t, publish.ValueInterface, "Unit"))
	assert.Equal(t, false, h.get(t, publish.AvailabilityInterface, "Available"))
	assert.Equal(t, true, h.get(t, publish.OperationalInterface, "Functional"))

	assert.False(t, h.conn.FakeObjects().Has(objectPath, thresholds.InterfaceName(thresholds.Warning)))
	assert.False(t, h.conn.FakeObjects().Has(objectPath, assoc.Interface), "no configuration path, no associations")
}

func TestValueAndAvailabilityFollowSensor(t *testing.T) {
	h := newHarness(t)
	s := h.newSensor(t, config(t))

	require.NoError(t, s.Activate(inputPath, nil))
	h.l.Advance(0)

	assert.Equal(t, 25.0, h.get(t, publish.ValueInterface, "Value"))
	assert.Equal(t, true, h.get(t, publish.AvailabilityInterface, "Available"))

	s.Deactivate()
	assert.True(t, math.IsNaN(h.get(t, publish.ValueInterface, "Value").(float64)))
	assert.Equal(t, false, h.get(t, publish.AvailabilityInterface, "Available"))
}

func TestThresholdAlarmAndSignal(t *testing.T) {
	h := newHarness(t)
	cfg := config(t)
	cfg.Thresholds = []thresholds.Threshold{
		{Severity: thresholds.Warning, Direction: thresholds.High, Value: 20},
		{Severity: thresholds.Critical, Direction: thresholds.High, Value: 40},
	}
	s := h.newSensor(t, cfg, sensor.WithThresholdDelay(0))

	warning := thresholds.InterfaceName(thresholds.Warning)
	critical := thresholds.InterfaceName(thresholds.Critical)
	assert.Equal(t, 20.0, h.get(t, warning, "WarningHigh"))
	assert.Equal(t, false, h.get(t, warning, "WarningAlarmHigh"))
	assert.Equal(t, 40.0, h.get(t, critical, "CriticalHigh"))

	require.NoError(t, s.Activate(inputPath, nil))
	h.l.Advance(0)

	assert.Equal(t, true, h.get(t, warning, "WarningAlarmHigh"))
	assert.Equal(t, false, h.get(t, critical, "CriticalAlarmHigh"))

	emitted := h.conn.Emitted()
	require.Len(t, emitted, 1)
	assert.Equal(t, objectPath, emitted[0].Path)
	assert.Equal(t, warning+".ThresholdAsserted", emitted[0].Name)
	assert.Equal(t, []interface{}{"PSU1_Input_Voltage", warning, "WarningAlarmHigh", true, 25.0}, emitted[0].Body)
}

func TestValueWriteRequiresOverride(t *testing.T) {
	h := newHarness(t)
	h.newSensor(t, config(t))

	err := h.conn.FakeObjects().Write(objectPath, publish.ValueInterface, "Value", 42.0)
	assert.Error(t, err, "read-only without an override gate")
}

func TestValueWriteOverridesSensor(t *testing.T) {
	h := newHarness(t)
	allowed := false
	s := h.newSensor(t, config(t), sensor.WithOverride(func() bool { return allowed }))
	require.NoError(t, s.Activate(inputPath, nil))
	h.l.Advance(0)

	err := h.conn.FakeObjects().Write(objectPath, publish.ValueInterface, "Value", 42.0)
	assert.ErrorIs(t, err, sensor.ErrOverrideDenied)
	assert.Equal(t, 25.0, h.get(t, publish.ValueInterface, "Value"))

	allowed = true
	assert.Error(t, h.conn.FakeObjects().Write(objectPath, publish.ValueInterface, "Value", "high"))

	require.NoError(t, h.conn.FakeObjects().Write(objectPath, publish.ValueInterface, "Value", 42.0))
	h.l.RunPending()
	assert.True(t, s.Overridden())
	assert.Equal(t, 42.0, s.Value())

	h.l.Advance(time.Second)
	assert.Equal(t, 42.0, h.get(t, publish.ValueInterface, "Value"), "polling does not replace an override")
}

func TestAssociationsPublished(t *testing.T) {
	h := newHarness(t)
	h.conn.OnSubTree(bus.SubTree{})
	cfg := config(t)
	cfg.ConfigurationPath = "/xyz/openbmc_project/inventory/system/board/PSU_Board/PSU1"
	h.newSensor(t, cfg)
	h.l.RunPending()

	parent := "/xyz/openbmc_project/inventory/system/board/PSU_Board"
	assert.Equal(t, assoc.Inventory(parent, parent), h.get(t, assoc.Interface, assoc.Property))
}

func TestDestroyUnpublishes(t *testing.T) {
	h := newHarness(t)
	cfg := config(t)
	cfg.Thresholds = []thresholds.Threshold{{Severity: thresholds.Warning, Direction: thresholds.Low, Value: 5}}
	s := h.newSensor(t, cfg)
	require.Equal(t, 1, h.conn.FakeObjects().Paths())

	s.Destroy()
	assert.Equal(t, 0, h.conn.FakeObjects().Paths())
	_, ok := h.sink.Published("PSU1_Input_Voltage")
	assert.False(t, ok)
	assert.Error(t, h.sink.SetValue("PSU1_Input_Voltage", 1))
}

func TestDuplicateRegistration(t *testing.T) {
	h := newHarness(t)
	h.newSensor(t, config(t))

	_, err := sensor.NewPolling(h.l, config(t), h.sink, sensor.WithOpener(h.opener.Open))
	assert.Error(t, err)
	assert.Equal(t, 1, h.conn.FakeObjects().Paths(), "the first sensor stays published")
}
