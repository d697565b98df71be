package router

import (
	"context"
	"encoding/json"
	"time"

	"github.com/GriffinCanCode/minihost/backend/internal/bridge/envelope"
)

// Handler performs the native work behind one topic. The returned value is
// passed to the route's resolve callback; an error goes to its reject
// callback.
type Handler interface {
	Handle(ctx context.Context, data json.RawMessage) (any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, data json.RawMessage) (any, error)

func (f HandlerFunc) Handle(ctx context.Context, data json.RawMessage) (any, error) {
	return f(ctx, data)
}

// Void is returned by handlers whose resolve callback takes no argument.
type Void struct{}

// Route binds a topic to its handler and outbound callbacks.
type Route struct {
	Topic   envelope.Topic
	Handler Handler
	// Resolve is invoked with the handler's result. Empty means the topic is
	// fire-and-forget: success emits nothing.
	Resolve string
	// Reject is invoked with the error message. Empty means failures are
	// only logged.
	Reject string
	// Timeout bounds one invocation. Zero uses the router default.
	Timeout time.Duration
}
