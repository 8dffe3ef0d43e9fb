package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", ConfigFileName)
	cfg := DefaultConfig()
	cfg.Sensors = append(cfg.Sensors, SensorConfig{
		Name: "CPU0 Temp",
		Path: "/sys/class/hwmon/hwmon1/temp1_input",
		Unit: "temperature",
		Max:  ptr(110),
		Thresholds: []ThresholdEntry{
			{Level: "critical_high", Value: 100},
		},
	})

	require.NoError(t, Write(path, cfg))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "debounce: 10s")
	assert.NotContains(t, string(data), "factor:", "unset optional fields are omitted")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Power, loaded.Power)
	require.Len(t, loaded.Sensors, 1)
	require.NotNil(t, loaded.Sensors[0].Max)
	assert.Equal(t, 110.0, *loaded.Sensors[0].Max)
}

func TestAddSensor(t *testing.T) {
	path := writeConfig(t, `# sensord config
version: 1
http:
  listen: ":9523" # metrics
sensors:
  - name: existing
    path: /a
    unit: voltage
`)

	require.NoError(t, AddSensor(path, SensorConfig{Name: "added", Path: "/b", Unit: "current"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# sensord config", "comments survive")
	assert.Contains(t, string(data), "# metrics")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Sensors, 2)
	assert.Equal(t, "added", cfg.Sensors[1].Name)

	err = AddSensor(path, SensorConfig{Name: "added", Path: "/c", Unit: "current"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestAddSensorCreatesList(t *testing.T) {
	path := writeConfig(t, "version: 1\n")
	require.NoError(t, AddSensor(path, SensorConfig{Name: "first", Path: "/a", Unit: "power"}))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Sensors, 1)
	assert.Equal(t, "power", cfg.Sensors[0].Unit)

	path = writeConfig(t, "version: 1\nsensors:\n")
	require.NoError(t, AddSensor(path, SensorConfig{Name: "first", Path: "/a", Unit: "power"}))
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Sensors, 1)
}

func TestAddSensorErrors(t *testing.T) {
	assert.Error(t, AddSensor("/nonexistent/sensord.yaml", SensorConfig{Name: "x"}))

	path := writeConfig(t, "sensors: 3\n")
	assert.Error(t, AddSensor(path, SensorConfig{Name: "x"}))
}
