package types

import (
	"errors"
	"fmt"
)

// ErrEndOfStream is returned by an acquisition source when no further frames
// will be produced. It is a normal terminal signal, not a failure.
var ErrEndOfStream = errors.New("end of stream")

// ConfigurationError reports invalid startup configuration: a bad keypoint
// list, an unusable endpoint or an unusable acquisition source.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("configuration: %s: %s", e.Field, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ExitCode lets cmd mains distinguish configuration failures.
func (e *ConfigurationError) ExitCode() int { return 2 }

// NewConfigurationError builds a ConfigurationError
func NewConfigurationError(field, format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// EncodingError reports a pose that does not match the keypoint registry.
type EncodingError struct {
	Want int // registry size
	Got  int // coordinate triples supplied
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encoding: pose has %d coordinates, registry has %d keypoints", e.Got, e.Want)
}

// TransportError reports a local send failure. Loss on the network is never
// reported.
type TransportError struct {
	Op       string // "marshal" or "write"
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s %s: %v", e.Op, e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
