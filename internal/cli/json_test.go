package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rileyhilliard/sensord/internal/errors"
	"github.com/rileyhilliard/sensord/pkg/sshutil"
)

func TestMachineMode_DefaultValue(t *testing.T) {
	// Reset to default
	oldMode := machineMode
	defer func() { machineMode = oldMode }()

	machineMode = false
	assert.False(t, MachineMode())

	machineMode = true
	assert.True(t, MachineMode())
}

func TestWriteJSONSuccess_BasicData(t *testing.T) {
	var buf bytes.Buffer

	data := map[string]string{"key": "value"}
	err := WriteJSONSuccess(&buf, data)
	require.NoError(t, err)

	var env JSONEnvelope
	err = json.Unmarshal(buf.Bytes(), &env)
	require.NoError(t, err)

	assert.True(t, env.Success)
	assert.Nil(t, env.Error)
	assert.NotNil(t, env.Data)

	// Verify data content
	dataMap, ok := env.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "value", dataMap["key"])
}

func TestWriteJSONSuccess_ComplexData(t *testing.T) {
	var buf bytes.Buffer

	data := struct {
		Name  string   `json:"name"`
		Count int      `json:"count"`
		Items []string `json:"items"`
	}{
		Name:  "test",
		Count: 42,
		Items: []string{"a", "b", "c"},
	}

	err := WriteJSONSuccess(&buf, data)
	require.NoError(t, err)

	var env JSONEnvelope
	err = json.Unmarshal(buf.Bytes(), &env)
	require.NoError(t, err)

	assert.True(t, env.Success)
	dataMap, ok := env.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "test", dataMap["name"])
	assert.Equal(t, float64(42), dataMap["count"]) // JSON numbers are float64
}

func TestWriteJSONSuccess_NilData(t *testing.T) {
	var buf bytes.Buffer

	err := WriteJSONSuccess(&buf, nil)
	require.NoError(t, err)

	var env JSONEnvelope
	err = json.Unmarshal(buf.Bytes(), &env)
	require.NoError(t, err)

	assert.True(t, env.Success)
	assert.Nil(t, env.Data)
	assert.Nil(t, env.Error)
}

func TestWriteJSONError_AllFields(t *testing.T) {
	var buf bytes.Buffer

	details := map[string]string{"host": "bmc1"}
	err := WriteJSONError(&buf, ErrCodeSSHConnectionFail, "Connection refused", "Check network connectivity", details)
	require.NoError(t, err)

	var env JSONEnvelope
	err = json.Unmarshal(buf.Bytes(), &env)
	require.NoError(t, err)

	assert.False(t, env.Success)
	assert.Nil(t, env.Data)
	require.NotNil(t, env.Error)

	assert.Equal(t, ErrCodeSSHConnectionFail, env.Error.Code)
	assert.Equal(t, "Connection refused", env.Error.Message)
	assert.Equal(t, "Check network connectivity", env.Error.Suggestion)

	detailsMap, ok := env.Error.Details.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "bmc1", detailsMap["host"])
}

func TestWriteJSONError_NoSuggestion(t *testing.T) {
	var buf bytes.Buffer

	err := WriteJSONError(&buf, ErrCodeUnknown, "Something went wrong", "", nil)
	require.NoError(t, err)

	var env JSONEnvelope
	err = json.Unmarshal(buf.Bytes(), &env)
	require.NoError(t, err)

	assert.False(t, env.Success)
	assert.Equal(t, ErrCodeUnknown, env.Error.Code)
	assert.Empty(t, env.Error.Suggestion)
	assert.Nil(t, env.Error.Details)
}

func TestWriteJSONFromError_NilError(t *testing.T) {
	var buf bytes.Buffer

	err := WriteJSONFromError(&buf, nil)
	require.NoError(t, err)

	var env JSONEnvelope
	err = json.Unmarshal(buf.Bytes(), &env)
	require.NoError(t, err)

	assert.False(t, env.Success)
	assert.Nil(t, env.Error)
}

func TestWriteJSONFromError_GenericError(t *testing.T) {
	var buf bytes.Buffer

	goErr := fmt.Errorf("something went wrong")
	err := WriteJSONFromError(&buf, goErr)
	require.NoError(t, err)

	var env JSONEnvelope
	err = json.Unmarshal(buf.Bytes(), &env)
	require.NoError(t, err)

	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, ErrCodeUnknown, env.Error.Code)
	assert.Equal(t, "something went wrong", env.Error.Message)
}

func TestWriteJSONFromError_StructuredError(t *testing.T) {
	var buf bytes.Buffer

	sErr := errors.New(errors.ErrConfig, "Config file not found", "Run 'sensord init' to create one")
	err := WriteJSONFromError(&buf, sErr)
	require.NoError(t, err)

	var env JSONEnvelope
	err = json.Unmarshal(buf.Bytes(), &env)
	require.NoError(t, err)

	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, ErrCodeConfigNotFound, env.Error.Code)
	assert.Equal(t, "Config file not found", env.Error.Message)
	assert.Equal(t, "Run 'sensord init' to create one", env.Error.Suggestion)
}

func TestWriteJSONFromError_WrappedStructuredError(t *testing.T) {
	var buf bytes.Buffer

	innerErr := errors.New(errors.ErrSSH, "Connection refused", "Check if SSH server is running")
	wrappedErr := fmt.Errorf("failed to connect: %w", innerErr)
	err := WriteJSONFromError(&buf, wrappedErr)
	require.NoError(t, err)

	var env JSONEnvelope
	err = json.Unmarshal(buf.Bytes(), &env)
	require.NoError(t, err)

	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, ErrCodeSSHConnectionFail, env.Error.Code)
}

func TestErrorToJSON_NilReturnsNil(t *testing.T) {
	result := ErrorToJSON(nil)
	assert.Nil(t, result)
}

func TestErrorToJSON_GenericError(t *testing.T) {
	err := fmt.Errorf("generic error message")
	result := ErrorToJSON(err)

	require.NotNil(t, result)
	assert.Equal(t, ErrCodeUnknown, result.Code)
	assert.Equal(t, "generic error message", result.Message)
	assert.Empty(t, result.Suggestion)
}

func TestErrorToJSON_AllInternalErrorCodes(t *testing.T) {
	tests := []struct {
		name         string
		internalCode string
		message      string
		wantCode     string
	}{
		{
			name:         "config not found",
			internalCode: errors.ErrConfig,
			message:      "Config file not found",
			wantCode:     ErrCodeConfigNotFound,
		},
		{
			name:         "config couldn't find",
			internalCode: errors.ErrConfig,
			message:      "Couldn't find config file",
			wantCode:     ErrCodeConfigNotFound,
		},
		{
			name:         "config invalid",
			internalCode: errors.ErrConfig,
			message:      "Config file has invalid syntax",
			wantCode:     ErrCodeConfigInvalid,
		},
		{
			name:         "ssh error",
			internalCode: errors.ErrSSH,
			message:      "SSH connection failed",
			wantCode:     ErrCodeSSHConnectionFail,
		},
		{
			name:         "ssh host key",
			internalCode: errors.ErrSSH,
			message:      "Host key for bmc1 has changed",
			wantCode:     ErrCodeSSHHostKey,
		},
		{
			name:         "unknown host",
			internalCode: errors.ErrConfig,
			message:      "No host named 'bmc9' in the config",
			wantCode:     ErrCodeHostNotFound,
		},
		{
			name:         "bus error",
			internalCode: errors.ErrBus,
			message:      "Couldn't connect to the system bus",
			wantCode:     ErrCodeBusUnavailable,
		},
		{
			name:         "io error",
			internalCode: errors.ErrIO,
			message:      "Read failed",
			wantCode:     ErrCodeReadFailed,
		},
		{
			name:         "power error",
			internalCode: errors.ErrPower,
			message:      "Power state unknown",
			wantCode:     ErrCodePowerState,
		},
		{
			name:         "sensor error",
			internalCode: errors.ErrSensor,
			message:      "Unknown sensor: Fan9",
			wantCode:     ErrCodeSensorInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := errors.New(tt.internalCode, tt.message, "some suggestion")
			result := ErrorToJSON(err)

			require.NotNil(t, result)
			assert.Equal(t, tt.wantCode, result.Code)
			assert.Equal(t, tt.message, result.Message)
		})
	}
}

func TestErrorToJSON_ConfigNotFoundVsInvalid(t *testing.T) {
	tests := []struct {
		message  string
		wantCode string
	}{
		{"Config file not found", ErrCodeConfigNotFound},
		{"couldn't find config", ErrCodeConfigNotFound},
		{"NOT FOUND anywhere", ErrCodeConfigNotFound},
		{"Config has invalid syntax", ErrCodeConfigInvalid},
		{"Failed to parse config", ErrCodeConfigInvalid},
		{"Schema validation error", ErrCodeConfigInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			err := errors.New(errors.ErrConfig, tt.message, "")
			result := ErrorToJSON(err)

			assert.Equal(t, tt.wantCode, result.Code)
		})
	}
}

func TestErrorToJSON_HostKeyMismatch(t *testing.T) {
	mismatch := &sshutil.HostKeyMismatchError{
		Hostname:   "bmc1",
		KeyType:    "ssh-ed25519",
		KnownHosts: "/home/op/.ssh/known_hosts",
	}

	result := ErrorToJSON(mismatch)

	require.NotNil(t, result)
	assert.Equal(t, ErrCodeSSHHostKey, result.Code)
	assert.NotEmpty(t, result.Suggestion)

	details, ok := result.Details.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "bmc1", details["hostname"])
	assert.Equal(t, "ssh-ed25519", details["key_type"])
}

func TestErrorToJSON_WrappedHostKeyMismatch(t *testing.T) {
	mismatch := &sshutil.HostKeyMismatchError{Hostname: "bmc1", KeyType: "ssh-rsa"}
	wrappedErr := fmt.Errorf("dial failed: %w", mismatch)

	result := ErrorToJSON(wrappedErr)

	require.NotNil(t, result)
	assert.Equal(t, ErrCodeSSHHostKey, result.Code)
}

func TestMapErrorCode_UnknownCode(t *testing.T) {
	result := mapErrorCode("UNKNOWN_INTERNAL_CODE", "Some message")
	assert.Equal(t, ErrCodeUnknown, result)
}

func TestJSONEnvelope_Structure(t *testing.T) {
	// Test that JSON envelope marshals with correct field names
	env := JSONEnvelope{
		Success: true,
		Data:    "test",
	}

	data, err := json.Marshal(env)
	require.NoError(t, err)

	assert.Contains(t, string(data), `"success":true`)
	assert.Contains(t, string(data), `"data":"test"`)
	assert.NotContains(t, string(data), `"error"`) // omitempty
}

func TestJSONEnvelope_ErrorStructure(t *testing.T) {
	env := JSONEnvelope{
		Success: false,
		Error: &JSONError{
			Code:       "TEST_CODE",
			Message:    "Test message",
			Suggestion: "Test suggestion",
			Details:    map[string]string{"key": "value"},
		},
	}

	data, err := json.Marshal(env)
	require.NoError(t, err)

	assert.Contains(t, string(data), `"success":false`)
	assert.Contains(t, string(data), `"code":"TEST_CODE"`)
	assert.Contains(t, string(data), `"message":"Test message"`)
	assert.Contains(t, string(data), `"suggestion":"Test suggestion"`)
	assert.NotContains(t, string(data), `"data"`) // omitempty
}

func TestJSONError_OmitsEmptyFields(t *testing.T) {
	jsonErr := JSONError{
		Code:    "TEST",
		Message: "Test",
		// Suggestion and Details empty
	}

	data, err := json.Marshal(jsonErr)
	require.NoError(t, err)

	assert.NotContains(t, string(data), `"suggestion"`)
	assert.NotContains(t, string(data), `"details"`)
}

func TestWriteJSONEnvelope_Formatting(t *testing.T) {
	var buf bytes.Buffer

	err := WriteJSONSuccess(&buf, map[string]string{"test": "value"})
	require.NoError(t, err)

	output := buf.String()

	// Should be indented with 2 spaces
	assert.Contains(t, output, "\n  ")
	// Should end with newline
	assert.True(t, output[len(output)-1] == '\n')
}

func TestErrorCodes_AreUnique(t *testing.T) {
	codes := []string{
		ErrCodeConfigNotFound,
		ErrCodeConfigInvalid,
		ErrCodeHostNotFound,
		ErrCodeSSHHostKey,
		ErrCodeSSHConnectionFail,
		ErrCodeBusUnavailable,
		ErrCodeReadFailed,
		ErrCodePowerState,
		ErrCodeSensorInvalid,
		ErrCodeUnknown,
	}

	seen := make(map[string]bool)
	for _, code := range codes {
		assert.False(t, seen[code], "duplicate error code: %s", code)
		seen[code] = true
	}
}

func TestErrorCodes_Format(t *testing.T) {
	// All error codes should be UPPER_SNAKE_CASE
	codes := []string{
		ErrCodeConfigNotFound,
		ErrCodeConfigInvalid,
		ErrCodeHostNotFound,
		ErrCodeSSHHostKey,
		ErrCodeSSHConnectionFail,
		ErrCodeBusUnavailable,
		ErrCodeReadFailed,
		ErrCodePowerState,
		ErrCodeSensorInvalid,
		ErrCodeUnknown,
	}

	for _, code := range codes {
		// Should not contain lowercase letters
		for _, r := range code {
			if r >= 'a' && r <= 'z' {
				t.Errorf("error code %q contains lowercase letter", code)
				break
			}
		}
	}
}
