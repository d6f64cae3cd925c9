package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// oidcFixture is an in-process OIDC provider: discovery document plus a JWKS
// endpoint serving one RSA signing key.
type oidcFixture struct {
	server *httptest.Server
	key    *rsa.PrivateKey
	kid    string
}

func newOIDCFixture(t *testing.T) *oidcFixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	f := &oidcFixture{key: key, kid: "test-key-1"}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"issuer":   f.server.URL,
			"jwks_uri": f.server.URL + "/keys",
		})
	})
	mux.HandleFunc("/keys", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"keys": []map[string]string{{
				"kty": "RSA",
				"use": "sig",
				"kid": f.kid,
				"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
			}},
		})
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *oidcFixture) sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = f.kid
	raw, err := token.SignedString(f.key)
	require.NoError(t, err)
	return raw
}

func TestOIDCVerifierAcceptsValidToken(t *testing.T) {
	f := newOIDCFixture(t)
	v := NewOIDCVerifier(f.server.URL, "kube-debug-gateway", nil)

	raw := f.sign(t, jwt.MapClaims{
		"iss":   f.server.URL,
		"aud":   "kube-debug-gateway",
		"sub":   "user-123",
		"email": "dev@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	subject, err := v.Verify(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "dev@example.com", subject, "email claim wins over subject")
}

func TestOIDCVerifierFallsBackToSubject(t *testing.T) {
	f := newOIDCFixture(t)
	v := NewOIDCVerifier(f.server.URL, "aud", nil)

	raw := f.sign(t, jwt.MapClaims{
		"iss": f.server.URL,
		"aud": "aud",
		"sub": "service-account-7",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	subject, err := v.Verify(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "service-account-7", subject)
}

func TestOIDCVerifierRejections(t *testing.T) {
	f := newOIDCFixture(t)

	base := func() jwt.MapClaims {
		return jwt.MapClaims{
			"iss": f.server.URL,
			"aud": "aud",
			"sub": "u",
			"exp": time.Now().Add(time.Hour).Unix(),
		}
	}

	tests := []struct {
		name   string
		mutate func(jwt.MapClaims)
	}{
		{"expired", func(c jwt.MapClaims) { c["exp"] = time.Now().Add(-time.Minute).Unix() }},
		{"missing expiry", func(c jwt.MapClaims) { delete(c, "exp") }},
		{"wrong audience", func(c jwt.MapClaims) { c["aud"] = "someone-else" }},
		{"wrong issuer", func(c jwt.MapClaims) { c["iss"] = "https://evil.example.com" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewOIDCVerifier(f.server.URL, "aud", nil)
			claims := base()
			tt.mutate(claims)
			_, err := v.Verify(context.Background(), f.sign(t, claims))
			assert.ErrorIs(t, err, ErrInvalidCredentials)
		})
	}
}

func TestOIDCVerifierRejectsForeignKey(t *testing.T) {
	f := newOIDCFixture(t)
	v := NewOIDCVerifier(f.server.URL, "aud", nil)

	// Token signed by a key the provider never published, same kid.
	foreign, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss": f.server.URL,
		"aud": "aud",
		"sub": "u",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	token.Header["kid"] = f.kid
	raw, err := token.SignedString(foreign)
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), raw)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestOIDCVerifierRejectsUnsignedToken(t *testing.T) {
	f := newOIDCFixture(t)
	v := NewOIDCVerifier(f.server.URL, "aud", nil)

	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"iss": f.server.URL,
		"aud": "aud",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	raw, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), raw)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
