package libspec

import (
	"errors"
	"fmt"
)

// ErrConfiguration is the sentinel of every ConfigurationError.
var ErrConfiguration = errors.New("configuration error")

// ConfigurationError reports an input problem found before any work starts.
type ConfigurationError struct {
	Msg string
	Err error
}

func (e *ConfigurationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrConfiguration, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrConfiguration, e.Msg)
}

func (e *ConfigurationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrConfiguration, e.Err}
	}
	return []error{ErrConfiguration}
}

// Errorf builds a ConfigurationError.
func Errorf(format string, args ...any) error {
	return &ConfigurationError{Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds a ConfigurationError around a cause.
func Wrap(err error, format string, args ...any) error {
	return &ConfigurationError{Msg: fmt.Sprintf(format, args...), Err: err}
}
