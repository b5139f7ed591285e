package settings

import (
	"errors"
	"fmt"
)

var (
	// ErrImproperlyConfigured matches every resolution failure via errors.Is.
	ErrImproperlyConfigured = errors.New("improperly configured")
	// ErrInvalidModelLabel is returned when a model label is not "app_label.model_name".
	ErrInvalidModelLabel = errors.New("model label must be of the form 'app_label.model_name'")
	// ErrModelNotRegistered is returned when no model is registered under a label.
	ErrModelNotRegistered = errors.New("model is not registered")
	// ErrModuleNotRegistered is returned when a dotted path names an unknown module.
	ErrModuleNotRegistered = errors.New("module is not registered")
	// ErrNoSubscriber is returned by the default request hook when the request
	// context carries no subscriber.
	ErrNoSubscriber = errors.New("request carries no subscriber")
)

// ImproperlyConfiguredError reports a setting that is missing or has the wrong
// shape.
type ImproperlyConfiguredError struct {
	Setting string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ImproperlyConfiguredError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying cause, if any.
func (e *ImproperlyConfiguredError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrImproperlyConfigured.
func (e *ImproperlyConfiguredError) Is(target error) bool {
	return target == ErrImproperlyConfigured
}

func improperlyConfigured(setting string, err error, format string, args ...any) error {
	return &ImproperlyConfiguredError{
		Setting: setting,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}
