package cli

import (
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rileyhilliard/sensord/internal/config"
	"github.com/rileyhilliard/sensord/internal/errors"
	"github.com/rileyhilliard/sensord/pkg/sshutil"
	sshtest "github.com/rileyhilliard/sensord/pkg/sshutil/testing"
)

// stubDialer replaces dialer for the duration of a test.
func stubDialer(t *testing.T, fn func(hosts []string) (sshutil.Runner, error)) {
	t.Helper()
	orig := dialer
	dialer = fn
	t.Cleanup(func() { dialer = orig })
}

func targetConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Sensors = []config.SensorConfig{
		{Name: "CPU0_Temp", Path: "/sys/class/hwmon/hwmon0/temp1_input", Unit: "temperature"},
	}
	cfg.Hosts["bmc1"] = config.Host{SSH: []string{"root@bmc1", "root@bmc1-alt"}}
	cfg.Hosts["bmc2"] = config.Host{
		SSH: []string{"bmc2"},
		Sensors: []config.SensorConfig{
			{Name: "P12V", Path: "/sys/class/hwmon/hwmon3/in1_input", Unit: "voltage"},
		},
	}
	return cfg
}

func TestOpenTargetLocal(t *testing.T) {
	cfg := targetConfig()

	tgt, err := openTarget(cfg, "")
	require.NoError(t, err)
	defer tgt.close()

	assert.Equal(t, "local", tgt.name)
	assert.Equal(t, cfg.Sensors, tgt.entries)

	f, err := os.CreateTemp(t.TempDir(), "in")
	require.NoError(t, err)
	_, err = f.WriteString("42000\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	src, err := tgt.opener(f.Name())
	require.NoError(t, err)
	defer src.Close()
	buf := make([]byte, 16)
	n, _ := src.ReadAt(buf, 0)
	assert.Equal(t, "42000\n", string(buf[:n]))
}

func TestOpenTargetUnknownHost(t *testing.T) {
	_, err := openTarget(targetConfig(), "bmc9")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
	assert.Contains(t, err.Error(), "No host named 'bmc9'")
	assert.Contains(t, err.Error(), "bmc1, bmc2")
	assert.Equal(t, ErrCodeHostNotFound, ErrorToJSON(err).Code)
}

func TestOpenTargetRemote(t *testing.T) {
	mock := sshtest.NewMockClient("bmc1")
	mock.WriteFile("/sys/class/hwmon/hwmon0/temp1_input", "41500\n")

	var dialed []string
	stubDialer(t, func(hosts []string) (sshutil.Runner, error) {
		dialed = hosts
		return mock, nil
	})

	tgt, err := openTarget(targetConfig(), "bmc1")
	require.NoError(t, err)

	assert.Equal(t, []string{"root@bmc1", "root@bmc1-alt"}, dialed)
	assert.Equal(t, "bmc1 via bmc1", tgt.name)
	require.Len(t, tgt.entries, 1)
	assert.Equal(t, "CPU0_Temp", tgt.entries[0].Name, "hosts without sensors use the top-level list")

	src, err := tgt.opener("/sys/class/hwmon/hwmon0/temp1_input")
	require.NoError(t, err)
	buf := make([]byte, 16)
	n, err := src.ReadAt(buf, 0)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "41500\n", string(buf[:n]))

	require.NoError(t, tgt.close())
	assert.True(t, mock.Closed())
}

func TestOpenTargetRemoteOwnSensors(t *testing.T) {
	stubDialer(t, func(hosts []string) (sshutil.Runner, error) {
		return sshtest.NewMockClient("bmc2.lab"), nil
	})

	tgt, err := openTarget(targetConfig(), "bmc2")
	require.NoError(t, err)
	defer tgt.close()

	assert.Equal(t, "bmc2 via bmc2.lab", tgt.name)
	require.Len(t, tgt.entries, 1)
	assert.Equal(t, "P12V", tgt.entries[0].Name)
}

func TestOpenTargetDialFailure(t *testing.T) {
	stubDialer(t, func(hosts []string) (sshutil.Runner, error) {
		return nil, errors.New(errors.ErrSSH, "Connection to 'root@bmc1' failed", "Check the host")
	})

	_, err := openTarget(targetConfig(), "bmc1")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrSSH))
}

func TestRemoteOpenerMissingFile(t *testing.T) {
	mock := sshtest.NewMockClient("bmc1")
	open := remoteOpener(sshutil.NewRemote(mock))

	src, err := open("/sys/class/hwmon/hwmon0/temp9_input")
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
	// a typed nil would make src != nil
	assert.True(t, src == nil)
}

func TestHostsSuggestion(t *testing.T) {
	assert.Contains(t, hostsSuggestion(config.DefaultConfig()), "sensord init --ssh")
	assert.Equal(t, "Configured hosts: bmc1, bmc2", hostsSuggestion(targetConfig()))
}
