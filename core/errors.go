package core

import "fmt"

// Gateway names used in errors and log attrs.
const (
	GatewayCompletion = "completion"
	GatewaySpeech     = "speech"
)

// ValidationError reports bad local input, such as an empty submission.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

// NewValidationError creates a ValidationError with a formatted reason.
func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// UpstreamError reports a failed call to a remote provider: network failure,
// a non-2xx status, or a malformed response body.
type UpstreamError struct {
	Gateway string // GatewayCompletion or GatewaySpeech
	Status  int    // upstream HTTP status when known, 0 otherwise
	Err     error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s gateway: status %d: %v", e.Gateway, e.Status, e.Err)
	}
	return fmt.Sprintf("%s gateway: %v", e.Gateway, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// ConfigurationError reports a missing or unusable credential or setting.
// It is fatal at the gateway boundary: a gateway that would return it must
// never be constructed, so the error surfaces at startup rather than as a
// generic 500 on first use.
type ConfigurationError struct {
	Key string
}

func (e *ConfigurationError) Error() string {
	return "configuration: " + e.Key + " is not set"
}
