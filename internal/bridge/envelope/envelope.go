// Package envelope implements the wire format exchanged with a content
// surface: inbound envelopes ({topic, data}) and outbound callback
// invocations.
package envelope

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/bytedance/sonic"
)

// Envelope is one inbound message from the content surface. Data is kept
// raw; each capability handler decodes its own payload shape.
type Envelope struct {
	Topic Topic           `json:"topic"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// HasData reports whether the envelope carried a non-null payload.
func (e Envelope) HasData() bool {
	trimmed := bytes.TrimSpace(e.Data)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// Decode parses a raw message posted by the content surface.
func Decode(raw string) (Envelope, error) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") {
		return Envelope{}, &DecodeError{Kind: MalformedJSON, Raw: raw}
	}

	var fields map[string]json.RawMessage
	if err := sonic.UnmarshalString(trimmed, &fields); err != nil {
		return Envelope{}, &DecodeError{Kind: MalformedJSON, Raw: raw, Err: err}
	}

	rawTopic, ok := fields["topic"]
	if !ok {
		return Envelope{}, &DecodeError{Kind: MissingTopic, Raw: raw}
	}
	var topic string
	if err := sonic.Unmarshal(rawTopic, &topic); err != nil || topic == "" {
		return Envelope{}, &DecodeError{Kind: MissingTopic, Raw: raw, Err: err}
	}

	return Envelope{Topic: Topic(topic), Data: fields["data"]}, nil
}

// ErrInvalidMethod is returned by Encode for names that are not plain
// JavaScript identifiers.
var ErrInvalidMethod = errors.New("invalid callback name")

var identifier = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// JSON is a JavaScript superset except for these two line terminators.
var lineTerminators = strings.NewReplacer("\u2028", `\u2028`, "\u2029", `\u2029`)

// Encode builds a script that calls window[method] with the payload, if and
// only if the surface defined it as a function. Exceptions thrown by the
// callback are swallowed inside the surface.
func Encode(method string, payload ...any) (string, error) {
	if !identifier.MatchString(method) {
		return "", fmt.Errorf("%w: %q", ErrInvalidMethod, method)
	}
	if len(payload) > 1 {
		return "", fmt.Errorf("callback %s takes at most one argument, got %d", method, len(payload))
	}

	arg := ""
	if len(payload) == 1 {
		encoded, err := sonic.ConfigStd.MarshalToString(payload[0])
		if err != nil {
			return "", fmt.Errorf("encode payload for %s: %w", method, err)
		}
		arg = lineTerminators.Replace(encoded)
	}

	var b strings.Builder
	b.WriteString(`(function(){var f=window["`)
	b.WriteString(method)
	b.WriteString(`"];if(typeof f==="function"){try{f(`)
	b.WriteString(arg)
	b.WriteString(`);}catch(e){}}})();`)
	return b.String(), nil
}
