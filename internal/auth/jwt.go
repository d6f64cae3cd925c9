package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// jwksRefreshInterval is the minimum spacing between key-set refreshes, so an
// attacker spraying unknown key IDs can't turn the verifier into a request
// amplifier against the provider.
const jwksRefreshInterval = 5 * time.Minute

// OIDCVerifier validates bearer tokens against an OIDC provider's published
// key set. Discovery and the JWKS document are fetched lazily and cached;
// unknown key IDs trigger a rate-limited refresh.
type OIDCVerifier struct {
	issuer   string
	audience string
	client   *http.Client

	mu          sync.RWMutex
	keys        map[string]*rsa.PublicKey
	jwksURI     string
	lastRefresh time.Time
}

// NewOIDCVerifier builds a verifier for the given issuer and expected
// audience. httpClient may be nil to use a default with a short timeout.
func NewOIDCVerifier(issuer, audience string, httpClient *http.Client) *OIDCVerifier {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &OIDCVerifier{
		issuer:   strings.TrimRight(issuer, "/"),
		audience: audience,
		client:   httpClient,
		keys:     map[string]*rsa.PublicKey{},
	}
}

// Verify checks signature, issuer, audience, and expiry, and returns the
// token's identity: the email claim when present, otherwise the subject.
func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (string, error) {
	claims := struct {
		Email string `json:"email"`
		jwt.RegisteredClaims
	}{}

	_, err := jwt.ParseWithClaims(rawToken, &claims, func(token *jwt.Token) (interface{}, error) {
		kid, _ := token.Header["kid"].(string)
		return v.keyForKID(ctx, kid)
	},
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}

	if claims.Email != "" {
		return claims.Email, nil
	}
	if claims.Subject != "" {
		return claims.Subject, nil
	}
	return "", fmt.Errorf("%w: token carries neither email nor subject", ErrInvalidCredentials)
}

func (v *OIDCVerifier) keyForKID(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.RLock()
	key, ok := v.keys[kid]
	v.mu.RUnlock()
	if ok {
		return key, nil
	}

	if err := v.refresh(ctx); err != nil {
		return nil, err
	}

	v.mu.RLock()
	key, ok = v.keys[kid]
	v.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown signing key id %q", kid)
	}
	return key, nil
}

func (v *OIDCVerifier) refresh(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if time.Since(v.lastRefresh) < jwksRefreshInterval && len(v.keys) > 0 {
		return errors.New("key set refreshed recently")
	}

	if v.jwksURI == "" {
		uri, err := v.discoverJWKSURI(ctx)
		if err != nil {
			return err
		}
		v.jwksURI = uri
	}

	keys, err := v.fetchJWKS(ctx, v.jwksURI)
	if err != nil {
		return err
	}
	v.keys = keys
	v.lastRefresh = time.Now()
	return nil
}

func (v *OIDCVerifier) discoverJWKSURI(ctx context.Context) (string, error) {
	doc := struct {
		JWKSURI string `json:"jwks_uri"`
	}{}
	if err := v.getJSON(ctx, v.issuer+"/.well-known/openid-configuration", &doc); err != nil {
		return "", fmt.Errorf("oidc discovery: %w", err)
	}
	if doc.JWKSURI == "" {
		return "", errors.New("oidc discovery: provider advertises no jwks_uri")
	}
	return doc.JWKSURI, nil
}

func (v *OIDCVerifier) fetchJWKS(ctx context.Context, uri string) (map[string]*rsa.PublicKey, error) {
	doc := struct {
		Keys []struct {
			Kty string `json:"kty"`
			Kid string `json:"kid"`
			Use string `json:"use"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}{}
	if err := v.getJSON(ctx, uri, &doc); err != nil {
		return nil, fmt.Errorf("fetching jwks: %w", err)
	}

	keys := map[string]*rsa.PublicKey{}
	for _, k := range doc.Keys {
		if k.Kty != "RSA" || (k.Use != "" && k.Use != "sig") {
			continue
		}
		pub, err := rsaKeyFromJWK(k.N, k.E)
		if err != nil {
			continue
		}
		keys[k.Kid] = pub
	}
	if len(keys) == 0 {
		return nil, errors.New("jwks contains no usable RSA signing keys")
	}
	return keys, nil
}

func (v *OIDCVerifier) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func rsaKeyFromJWK(n, e string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("decoding modulus: %w", err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, fmt.Errorf("decoding exponent: %w", err)
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nb),
		E: int(new(big.Int).SetBytes(eb).Int64()),
	}, nil
}
