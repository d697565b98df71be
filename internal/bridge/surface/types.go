package surface

import (
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Config bounds script execution inside a surface.
type Config struct {
	// ScriptTimeout bounds each script, timer callback and outbound
	// invocation.
	ScriptTimeout time.Duration
	// MaxCallStackSize bounds recursion.
	MaxCallStackSize int
	// ConsoleLimit is the number of console entries kept.
	ConsoleLimit int
}

// DefaultConfig returns the default limits.
func DefaultConfig() Config {
	return Config{
		ScriptTimeout:    5 * time.Second,
		MaxCallStackSize: 1024,
		ConsoleLimit:     200,
	}
}

// LogEntry is one console call made by the micro-app.
type LogEntry struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Script is one script of a page, in document order.
type Script struct {
	Name   string
	Source string
}

// Content is a page ready to run in a surface.
type Content struct {
	URL      string
	Title    string
	Document *goquery.Document
	Scripts  []Script
}

// Source says where a micro-app's content comes from: a remote URL or
// locally materialized HTML. DevMode marks a developer server, whose
// connection failures are reported as unreachable rather than generic.
type Source struct {
	URL     string `json:"url,omitempty" yaml:"url"`
	HTML    string `json:"html,omitempty" yaml:"html"`
	DevMode bool   `json:"devMode,omitempty" yaml:"devMode"`
}

// Scheduler runs a function on the session's event loop.
type Scheduler interface {
	Post(fn func()) bool
}
