package cli

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/rileyhilliard/sensord/internal/errors"
	"github.com/rileyhilliard/sensord/pkg/sshutil"
)

// Machine mode flag - when true, outputs JSON and suppresses human-friendly decorations
var machineMode bool

// MachineMode returns true if machine-readable output is enabled
func MachineMode() bool {
	return machineMode
}

// JSONEnvelope wraps command output in a consistent structure for machine parsing.
// All --json output should use this envelope.
type JSONEnvelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *JSONError  `json:"error,omitempty"`
}

// JSONError provides structured error information for machine parsing.
type JSONError struct {
	Code       string      `json:"code"`
	Message    string      `json:"message"`
	Suggestion string      `json:"suggestion,omitempty"`
	Details    interface{} `json:"details,omitempty"`
}

// Error codes for machine-readable output.
const (
	ErrCodeConfigNotFound    = "CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid     = "CONFIG_INVALID"
	ErrCodeHostNotFound      = "HOST_NOT_FOUND"
	ErrCodeSSHHostKey        = "SSH_HOST_KEY"
	ErrCodeSSHConnectionFail = "SSH_CONNECTION_FAILED"
	ErrCodeBusUnavailable    = "BUS_UNAVAILABLE"
	ErrCodeReadFailed        = "READ_FAILED"
	ErrCodePowerState        = "POWER_STATE"
	ErrCodeSensorInvalid     = "SENSOR_INVALID"
	ErrCodeUnknown           = "UNKNOWN"
)

// WriteJSONSuccess writes a successful response with data to the writer.
func WriteJSONSuccess(w io.Writer, data interface{}) error {
	return writeJSONEnvelope(w, JSONEnvelope{
		Success: true,
		Data:    data,
	})
}

// WriteJSONError writes an error response to the writer.
func WriteJSONError(w io.Writer, code, message, suggestion string, details interface{}) error {
	return writeJSONEnvelope(w, JSONEnvelope{
		Success: false,
		Error: &JSONError{
			Code:       code,
			Message:    message,
			Suggestion: suggestion,
			Details:    details,
		},
	})
}

// WriteJSONFromError converts a Go error to a JSON error response.
func WriteJSONFromError(w io.Writer, err error) error {
	return writeJSONEnvelope(w, JSONEnvelope{
		Success: false,
		Error:   ErrorToJSON(err),
	})
}

func writeJSONEnvelope(w io.Writer, env JSONEnvelope) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(env)
}

// ErrorToJSON converts a Go error to a JSONError with appropriate code mapping.
func ErrorToJSON(err error) *JSONError {
	if err == nil {
		return nil
	}

	var mismatch *sshutil.HostKeyMismatchError
	if errors.As(err, &mismatch) {
		return &JSONError{
			Code:       ErrCodeSSHHostKey,
			Message:    mismatch.Error(),
			Suggestion: mismatch.Suggestion(),
			Details: map[string]interface{}{
				"hostname": mismatch.Hostname,
				"key_type": mismatch.KeyType,
			},
		}
	}

	var sErr *errors.Error
	if errors.As(err, &sErr) {
		return &JSONError{
			Code:       mapErrorCode(sErr.Code, sErr.Message),
			Message:    sErr.Message,
			Suggestion: sErr.Suggestion,
		}
	}

	return &JSONError{
		Code:    ErrCodeUnknown,
		Message: err.Error(),
	}
}

// mapErrorCode maps internal error codes to machine-readable codes.
func mapErrorCode(internalCode, message string) string {
	switch internalCode {
	case errors.ErrConfig:
		msgLower := strings.ToLower(message)
		if strings.Contains(msgLower, "not found") || strings.Contains(msgLower, "couldn't find") {
			return ErrCodeConfigNotFound
		}
		if strings.Contains(msgLower, "no host") || strings.Contains(msgLower, "unknown host") {
			return ErrCodeHostNotFound
		}
		return ErrCodeConfigInvalid
	case errors.ErrSSH:
		if strings.Contains(strings.ToLower(message), "host key") {
			return ErrCodeSSHHostKey
		}
		return ErrCodeSSHConnectionFail
	case errors.ErrBus:
		return ErrCodeBusUnavailable
	case errors.ErrIO:
		return ErrCodeReadFailed
	case errors.ErrPower:
		return ErrCodePowerState
	case errors.ErrSensor:
		return ErrCodeSensorInvalid
	}
	return ErrCodeUnknown
}
