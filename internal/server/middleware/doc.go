// Package middleware provides the HTTP middleware chain for the gateway's
// public surface: client authentication with the documented exemptions,
// security headers, and request metrics.
package middleware
