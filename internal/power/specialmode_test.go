package power

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bustest "github.com/rileyhilliard/sensord/internal/bus/testing"
	"github.com/rileyhilliard/sensord/internal/logger"
	"github.com/rileyhilliard/sensord/internal/loop"
)

func newSpecialMode(t *testing.T, initial string, allowUnsecure bool) (*SpecialMode, *bustest.FakeConn, *loop.Loop) {
	t.Helper()
	conn := bustest.NewFakeConn()
	if initial != "" {
		conn.SetProperty(SpecialModeService, SpecialModePath, SpecialModeInterface, SpecialModeProperty, initial)
	}
	l := loop.NewManual(epoch)
	m := NewSpecialMode(l, conn, logger.NewBufferLogger(), allowUnsecure)
	require.NoError(t, m.Setup(context.Background()))
	l.RunPending()
	return m, conn, l
}

func TestSpecialModeInitialRead(t *testing.T) {
	m, _, _ := newSpecialMode(t, ModeManufacturing, false)
	assert.True(t, m.Active())

	m, _, _ = newSpecialMode(t, "xyz.openbmc_project.Control.Security.SpecialMode.Modes.None", false)
	assert.False(t, m.Active())
}

func TestSpecialModeReadFailureLeavesOff(t *testing.T) {
	m, _, _ := newSpecialMode(t, "", false)
	assert.False(t, m.Active())
}

func TestSpecialModePropertiesChanged(t *testing.T) {
	m, conn, l := newSpecialMode(t, ModeManufacturing, false)
	var seen []bool
	m.OnChange(func(active bool) { seen = append(seen, active) })

	conn.DeliverPropertiesChanged(SpecialModePath, SpecialModeInterface,
		map[string]interface{}{SpecialModeProperty: "xyz.openbmc_project.Control.Security.SpecialMode.Modes.None"})
	l.RunPending()
	assert.False(t, m.Active())

	conn.DeliverPropertiesChanged(SpecialModePath, SpecialModeInterface,
		map[string]interface{}{"Unrelated": "x"})
	l.RunPending()
	assert.Equal(t, []bool{false}, seen)
}

func TestSpecialModeListenerMayRegisterListener(t *testing.T) {
	m, conn, l := newSpecialMode(t, "", false)
	var outer, inner []bool
	m.OnChange(func(active bool) {
		outer = append(outer, active)
		if len(outer) == 1 {
			m.OnChange(func(active bool) { inner = append(inner, active) })
		}
	})

	conn.DeliverPropertiesChanged(SpecialModePath, SpecialModeInterface,
		map[string]interface{}{SpecialModeProperty: ModeManufacturing})
	l.RunPending()
	assert.Equal(t, []bool{true}, outer)
	assert.Empty(t, inner, "listeners added during a notification wait for the next change")

	conn.DeliverPropertiesChanged(SpecialModePath, SpecialModeInterface,
		map[string]interface{}{SpecialModeProperty: "xyz.openbmc_project.Control.Security.SpecialMode.Modes.None"})
	l.RunPending()
	assert.Equal(t, []bool{true, false}, outer)
	assert.Equal(t, []bool{false}, inner)
}

func TestSpecialModeInterfacesAdded(t *testing.T) {
	tests := []struct {
		name          string
		mode          string
		allowUnsecure bool
		want          bool
	}{
		{"manufacturing", ModeManufacturing, false, true},
		{"unsecure not allowed", ModeValidationUnsecure, false, false},
		{"unsecure allowed", ModeValidationUnsecure, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, conn, l := newSpecialMode(t, "", tt.allowUnsecure)
			n := conn.DeliverInterfacesAdded(SpecialModePath, map[string]map[string]interface{}{
				SpecialModeInterface: {SpecialModeProperty: tt.mode},
			})
			require.Equal(t, 1, n)
			l.RunPending()
			assert.Equal(t, tt.want, m.Active())
		})
	}
}

func TestSpecialModeIgnoresOtherObjects(t *testing.T) {
	m, conn, l := newSpecialMode(t, "", false)
	n := conn.DeliverInterfacesAdded("/xyz/openbmc_project/other", map[string]map[string]interface{}{
		SpecialModeInterface: {SpecialModeProperty: ModeManufacturing},
	})
	l.RunPending()
	assert.Equal(t, 0, n)
	assert.False(t, m.Active())
}

func TestSpecialModeClose(t *testing.T) {
	m, conn, _ := newSpecialMode(t, "", false)
	assert.Equal(t, 2, conn.Subscriptions())
	require.NoError(t, m.Close())
	assert.Equal(t, 0, conn.Subscriptions())
}
