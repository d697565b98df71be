package envelope

import (
	"errors"
	"fmt"
)

// DecodeKind classifies a decode failure.
type DecodeKind int

const (
	MalformedJSON DecodeKind = iota
	MissingTopic
)

func (k DecodeKind) String() string {
	switch k {
	case MalformedJSON:
		return "malformed_json"
	case MissingTopic:
		return "missing_topic"
	default:
		return "unknown"
	}
}

var (
	ErrMalformedJSON = errors.New("malformed envelope")
	ErrMissingTopic  = errors.New("envelope has no topic")
)

// DecodeError describes an inbound message that could not be turned into an
// envelope. It is logged and dropped; the session carries on.
type DecodeError struct {
	Kind DecodeKind
	Raw  string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode envelope: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("decode envelope: %s", e.Kind)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinels.
func (e *DecodeError) Is(target error) bool {
	switch target {
	case ErrMalformedJSON:
		return e.Kind == MalformedJSON
	case ErrMissingTopic:
		return e.Kind == MissingTopic
	}
	return false
}
