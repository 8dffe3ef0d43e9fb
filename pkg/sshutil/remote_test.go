package sshutil_test

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rileyhilliard/sensord/pkg/sshutil"
	sshtest "github.com/rileyhilliard/sensord/pkg/sshutil/testing"
)

const tempInput = "/sys/class/hwmon/hwmon1/temp1_input"

func newRemote(t *testing.T) (*sshutil.Remote, *sshtest.MockClient) {
	t.Helper()
	mock := sshtest.NewMockClient("bmc1")
	mock.WriteFile(tempInput, "42000\n")
	mock.WriteFile("/sys/class/hwmon/hwmon1/temp2_input", "38500\n")
	mock.WriteFile("/sys/class/hwmon/hwmon2/in1_input", "12100\n")
	return sshutil.NewRemote(mock), mock
}

func TestRemoteReadAt(t *testing.T) {
	r, _ := newRemote(t)
	f, err := r.Open(tempInput)
	require.NoError(t, err)

	buf := make([]byte, 127)
	n, err := f.ReadAt(buf, 0)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "42000\n", string(buf[:n]))

	small := make([]byte, 2)
	n, err = f.ReadAt(small, 0)
	assert.NoError(t, err)
	assert.Equal(t, "42", string(small[:n]))

	n, err = f.ReadAt(buf, 100)
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, io.EOF)
}

func TestRemoteReadsFresh(t *testing.T) {
	r, mock := newRemote(t)
	f, err := r.Open(tempInput)
	require.NoError(t, err)

	buf := make([]byte, 16)
	n, _ := f.ReadAt(buf, 0)
	assert.Equal(t, "42000\n", string(buf[:n]))

	mock.WriteFile(tempInput, "43000\n")
	n, _ = f.ReadAt(buf, 0)
	assert.Equal(t, "43000\n", string(buf[:n]))
}

func TestRemoteOpenMissing(t *testing.T) {
	r, _ := newRemote(t)
	_, err := r.Open("/sys/class/hwmon/hwmon9/temp1_input")
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestRemoteDeviceGone(t *testing.T) {
	r, mock := newRemote(t)
	f, err := r.Open(tempInput)
	require.NoError(t, err)

	mock.Unbind(tempInput)
	_, err = f.ReadAt(make([]byte, 16), 0)
	assert.ErrorIs(t, err, syscall.ENODEV)

	mock.Remove(tempInput)
	_, err = f.ReadAt(make([]byte, 16), 0)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestRemoteClosed(t *testing.T) {
	r, mock := newRemote(t)
	f, err := r.Open(tempInput)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	before := len(mock.History())
	_, err = f.ReadAt(make([]byte, 16), 0)
	assert.ErrorIs(t, err, os.ErrClosed)
	assert.Len(t, mock.History(), before, "closed handles don't touch the BMC")
}

func TestRemoteTransportError(t *testing.T) {
	r, mock := newRemote(t)
	f, err := r.Open(tempInput)
	require.NoError(t, err)

	require.NoError(t, mock.Close())
	_, err = f.ReadAt(make([]byte, 16), 0)
	require.Error(t, err)
	assert.False(t, errors.Is(err, io.EOF))
}

func TestRemoteExistsAndGlob(t *testing.T) {
	r, mock := newRemote(t)
	assert.True(t, r.Exists(tempInput))
	assert.False(t, r.Exists("/nope"))

	paths, err := r.Glob("/sys/class/hwmon/*/temp*_input")
	require.NoError(t, err)
	assert.Equal(t, []string{tempInput, "/sys/class/hwmon/hwmon1/temp2_input"}, paths)

	paths, err = r.Glob("/sys/class/hwmon/*/fan*_input")
	require.NoError(t, err)
	assert.Empty(t, paths)

	_, err = r.Glob("/tmp/*; rm -rf /")
	assert.Error(t, err)
	assert.NotContains(t, mock.History(), "ls -1d /tmp/*; rm -rf / 2>/dev/null")

	assert.Equal(t, "bmc1", r.Host())
}

func TestRemoteQuotesPaths(t *testing.T) {
	r, mock := newRemote(t)
	odd := "/tmp/it's here"
	mock.WriteFile(odd, "1\n")

	f, err := r.Open(odd)
	require.NoError(t, err)
	n, _ := f.ReadAt(make([]byte, 8), 0)
	assert.Equal(t, 2, n)
	assert.Contains(t, mock.History(), `cat '/tmp/it'\''s here'`)
}
