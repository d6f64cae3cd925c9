// Package auth implements the gateway's authentication layer: static API keys
// with optional service identities, OIDC bearer-token verification against a
// published key set, and per-cluster executor tokens held in the keystore.
//
// Every authentication attempt is appended to a bounded audit ring in the
// keystore. Secret comparisons use constant-time primitives throughout.
package auth
