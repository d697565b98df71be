// Package http implements the host's REST API: the catalog proxy, session
// control and storage inspection.
package http
