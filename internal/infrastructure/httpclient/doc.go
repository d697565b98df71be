// Package httpclient is the outbound HTTP client shared by the catalog
// client and the content loader: resty on a retrying transport, behind a
// rate limiter and a circuit breaker.
package httpclient
