package lifecycle

import (
	"errors"
	"fmt"
)

// LoadErrorKind distinguishes load failures for the retry affordance.
type LoadErrorKind int

const (
	Generic LoadErrorKind = iota
	DevTargetUnreachable
)

func (k LoadErrorKind) String() string {
	if k == DevTargetUnreachable {
		return "dev_target_unreachable"
	}
	return "generic"
}

// LoadError is a content load failure.
type LoadError struct {
	Kind LoadErrorKind
	URL  string
	Err  error
}

func (e *LoadError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("load content (%s)", e.Kind)
	}
	return fmt.Sprintf("load content (%s): %v", e.Kind, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Message is the text shown next to the retry action.
func (e *LoadError) Message() string {
	if e.Kind == DevTargetUnreachable {
		if e.URL != "" {
			return fmt.Sprintf("Could not reach the development server at %s. Make sure it is running and try again.", e.URL)
		}
		return "Could not reach the development server. Make sure it is running and try again."
	}
	return "The app could not be loaded. Please try again."
}

// AsLoadError returns err as a *LoadError, wrapping it as Generic if needed.
func AsLoadError(err error) *LoadError {
	if err == nil {
		return &LoadError{Kind: Generic}
	}
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr
	}
	return &LoadError{Kind: Generic, Err: err}
}
