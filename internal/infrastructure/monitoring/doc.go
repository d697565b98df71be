/*
Package monitoring provides Prometheus metrics for the host.

# Overview

Metrics are registered on a registry owned by each Metrics instance rather
than the global default, so a process can run several hosts and tests can
build fresh collectors without duplicate-registration panics.

# Families

  - HTTP requests (count, latency)
  - Bridge envelopes by topic and outcome, handler latency, buffer drops
  - Lifecycle transitions
  - Credential requests and wait time
  - Sessions and connected shells

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	timer := monitoring.NewTimer(metrics, "QR_REQUEST")
	// ... run handler ...
	timer.Stop()
*/
package monitoring
