// Package catalog is the client for the micro-app catalog backend, the
// credential exchange behind each session's broker, and a mock backend
// seeded from YAML for development and tests.
package catalog
