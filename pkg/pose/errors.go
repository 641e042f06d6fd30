package pose

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDetector is returned when a component is built without a detector.
	ErrNoDetector = errors.New("pose: detector capability required")

	// ErrMalformed is returned when a capability does not satisfy its contract.
	ErrMalformed = errors.New("pose: malformed capability")
)

// ConfigurationError reports a missing or malformed injected capability.
// It is fatal: the component that returns it cannot be used.
type ConfigurationError struct {
	// Component names the component being configured (e.g. "recorder").
	Component string

	// Err is ErrNoDetector, ErrMalformed, or a more specific cause.
	Err error
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: configuration: %v", e.Component, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// RequireDetector returns a ConfigurationError when d is nil.
func RequireDetector(component string, d Detector) error {
	if d == nil {
		return &ConfigurationError{Component: component, Err: ErrNoDetector}
	}
	return nil
}
