// Package main is the entry point for the micro-app host.
//
// The host runs micro-apps in headless content surfaces and answers their
// bridge requests (credentials, storage, prompts, file transfers). Prompts
// are shown by a host shell connected over WebSocket at /shell.
//
// Configuration:
//   - Environment variables (see internal/infrastructure/config)
//   - CLI flags (override env vars)
//
// Usage:
//
//	./server -port 8000 -catalog http://localhost:8100
//
//	# Development mode (colored logs)
//	./server -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
