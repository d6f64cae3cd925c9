// Package keystore provides a thin adapter over the ephemeral Redis-protocol
// store the gateway uses for sessions, command tracking, results, executor
// tokens, capability profiles, and pub/sub channels.
//
// The adapter exposes only the primitives the gateway needs: typed
// get/set-with-TTL, atomic set-if-absent, list push/trim, set membership,
// publish/subscribe, and prefix scans for admin paths. All values cross the
// wire as UTF-8 strings; composite values are JSON-encoded by callers.
//
// Store failures surface as errors wrapping ErrUnavailable so the frontend can
// map them to 503 uniformly.
package keystore
