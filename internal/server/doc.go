// Package server hosts the gateway's HTTP frontend and its dependency
// container.
//
// ServerContext carries every component (keystore, authenticator, session
// registry, command router, capability registry, admin service) behind a
// functional-options constructor, so handlers receive explicit dependencies
// rather than globals. The HTTP surface decodes and validates request bodies,
// dispatches to the components, and maps internal error kinds to status codes
// in one place.
package server
