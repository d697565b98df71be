// Package id generates the host's identifiers.
//
// Session ids are prefixed ULIDs ("sess_01J..."): sortable by creation time,
// readable in logs, and safe to put in URLs.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// SessionID identifies one launched micro-app session.
type SessionID string

// SessionPrefix tags session ids.
const SessionPrefix = "sess"

func (id SessionID) String() string { return string(id) }

// Generator generates ULIDs. Entropy is monotonic within a millisecond, so
// ids created back to back still sort in creation order.
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
	now     func() time.Time
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the process-wide generator.
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator(rand.Reader, time.Now)
	})
	return defaultGenerator
}

// NewGenerator creates a generator over the given entropy source and clock.
func NewGenerator(entropy io.Reader, now func() time.Time) *Generator {
	return &Generator{
		entropy: ulid.Monotonic(entropy, 0),
		now:     now,
	}
}

// Generate creates a new ULID.
func (g *Generator) Generate() ulid.ULID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(g.now()), g.entropy)
}

// WithPrefix creates a prefixed ULID string.
func (g *Generator) WithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewSessionID generates a new session id.
func NewSessionID() SessionID {
	return SessionID(Default().WithPrefix(SessionPrefix))
}

// ParseSessionID validates a session id taken from user input.
func ParseSessionID(raw string) (SessionID, error) {
	prefix, body, ok := strings.Cut(raw, "_")
	if !ok || prefix != SessionPrefix {
		return "", fmt.Errorf("invalid session id %q: missing %s_ prefix", raw, SessionPrefix)
	}
	if _, err := ulid.ParseStrict(body); err != nil {
		return "", fmt.Errorf("invalid session id %q: %w", raw, err)
	}
	return SessionID(raw), nil
}

// Created extracts the creation time of a session id.
func (id SessionID) Created() (time.Time, error) {
	_, body, _ := strings.Cut(string(id), "_")
	parsed, err := ulid.Parse(body)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}

// NewTraceID generates an unprefixed id for traces and spans.
func NewTraceID() string {
	return Default().Generate().String()
}
