package logging

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeHost(t *testing.T) {
	tests := []struct {
		name string
		host string
		want string
	}{
		{"empty", "", "<empty>"},
		{"bare ipv4", "192.168.1.100", "<redacted-ip>"},
		{"url with ipv4", "https://192.168.1.100:6443", "https://<redacted-ip>:6443"},
		{"url with hostname", "https://gateway.example.com:6443", "https://gateway.example.com:6443"},
		{"bare hostname", "gateway.example.com:8080", "gateway.example.com:8080"},
		{"bare ipv6", "2001:db8::1", "<redacted-ip>"},
		{"url with ipv6", "https://[2001:db8::1]:6443", "https://<redacted-ip>:6443"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeHost(tt.host))
		})
	}
}

func TestAnonymizeEmail(t *testing.T) {
	assert.Empty(t, AnonymizeEmail(""))

	hashed := AnonymizeEmail("dev@example.com")
	assert.NotContains(t, hashed, "dev@example.com")
	assert.Contains(t, hashed, "user:")

	// Deterministic so log entries correlate.
	assert.Equal(t, hashed, AnonymizeEmail("dev@example.com"))
	assert.NotEqual(t, hashed, AnonymizeEmail("other@example.com"))
}

func TestSanitizeToken(t *testing.T) {
	assert.Equal(t, "<empty>", SanitizeToken(""))

	masked := SanitizeToken("super-secret-token")
	assert.NotContains(t, masked, "super-secret")
	assert.Equal(t, "[token:18 chars]", masked)
}

func TestErrAttr(t *testing.T) {
	attr := Err(errors.New("boom"))
	assert.Equal(t, KeyError, attr.Key)
	assert.Equal(t, "boom", attr.Value.String())

	assert.Equal(t, "", Err(nil).Value.String())
}

func TestSanitizedErrRedactsAddresses(t *testing.T) {
	attr := SanitizedErr(errors.New("dial tcp 10.0.0.5:6379: connection refused"))
	assert.NotContains(t, attr.Value.String(), "10.0.0.5")
	assert.Contains(t, attr.Value.String(), "<redacted-ip>")
}
