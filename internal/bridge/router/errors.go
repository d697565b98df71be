package router

import (
	"errors"
	"fmt"

	"github.com/GriffinCanCode/minihost/backend/internal/bridge/envelope"
)

// ErrHandlerTimeout is reported when a handler does not finish in time.
var ErrHandlerTimeout = errors.New("request timed out")

// HandlerError is a capability handler failure caught at the dispatch
// boundary.
type HandlerError struct {
	Topic envelope.Topic
	Err   error
	Panic any
}

func (e *HandlerError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("handler %s panicked: %v", e.Topic, e.Panic)
	}
	return fmt.Sprintf("handler %s: %v", e.Topic, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// Message is the text passed to the reject callback. Panic details stay in
// the host log.
func (e *HandlerError) Message() string {
	if e.Panic != nil || e.Err == nil {
		return "internal error"
	}
	return e.Err.Error()
}
