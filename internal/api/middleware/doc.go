// Package middleware holds the gin middleware of the host API.
package middleware
