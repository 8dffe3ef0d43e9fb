package sensor

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReading(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"50\n", 50},
		{"  -12\n", -12},
		{"+7", 7},
		{"3.25", 3.25},
		{".5", 0.5},
		{"5.", 5},
		{"1e3", 1000},
		{"2.5E-1\n", 0.25},
		{"45000 mC", 45000},
		{"12abc", 12},
		{"7e", 7},
		{"7e+", 7},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseReading([]byte(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseReadingRejects(t *testing.T) {
	for _, in := range []string{"", "\n", "abc", "-", ".", "nan", "inf", "1e999"} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseReading([]byte(in))
			assert.Error(t, err)
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		n    int
		err  error
		want outcome
	}{
		{"data", 3, nil, outcomeOK},
		{"data with eof", 3, io.EOF, outcomeOK},
		{"zero bytes", 0, nil, outcomeFailed},
		{"eof without data", 0, io.EOF, outcomeFailed},
		{"closed", 0, &os.PathError{Op: "read", Err: os.ErrClosed}, outcomeCancelled},
		{"context", 0, context.Canceled, outcomeCancelled},
		{"not found", 0, fs.ErrNotExist, outcomeGone},
		{"no device", 0, &os.PathError{Op: "read", Err: syscall.ENODEV}, outcomeGone},
		{"no such device or address", 0, syscall.ENXIO, outcomeGone},
		{"bad descriptor", 0, syscall.EBADF, outcomeGone},
		{"io error", 0, syscall.EIO, outcomeFailed},
		{"other", 0, errors.New("boom"), outcomeFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.n, tt.err))
		})
	}
}

func TestParseUnit(t *testing.T) {
	u, err := ParseUnit("temperature")
	require.NoError(t, err)
	assert.Equal(t, "xyz.openbmc_project.Sensor.Value.Unit.DegreesC", u.BusUnit)

	u, err = ParseUnit("xyz.openbmc_project.Sensor.Value.Unit.Volts")
	require.NoError(t, err)
	assert.Equal(t, "voltage", u.Name)

	u, err = ParseUnit("RPMS")
	require.NoError(t, err)
	assert.Equal(t, "fan_tach", u.Name)

	_, err = ParseUnit("furlongs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "temperature")
}

func TestEscapeName(t *testing.T) {
	assert.Equal(t, "PSU1_Input_Power", EscapeName("PSU1 Input Power"))
	assert.Equal(t, "CPU0_Temp_C_", EscapeName("CPU0-Temp(C)"))
	assert.Equal(t, "already_ok", EscapeName("already_ok"))
}
