package cmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  ServeConfig
		wantErr string
	}{
		{
			name:   "valid minimal config",
			config: ServeConfig{HTTPAddr: ":8080", RedisAddr: "localhost:6379"},
		},
		{
			name:    "empty http address",
			config:  ServeConfig{RedisAddr: "localhost:6379"},
			wantErr: "http address",
		},
		{
			name:    "malformed http address",
			config:  ServeConfig{HTTPAddr: "no-port", RedisAddr: "localhost:6379"},
			wantErr: "invalid http address",
		},
		{
			name:    "missing keystore address",
			config:  ServeConfig{HTTPAddr: ":8080"},
			wantErr: "keystore address",
		},
		{
			name: "issuer without audience",
			config: ServeConfig{
				HTTPAddr:   ":8080",
				RedisAddr:  "localhost:6379",
				OIDCIssuer: "https://issuer.example.com",
			},
			wantErr: "must be set together",
		},
		{
			name: "issuer with audience",
			config: ServeConfig{
				HTTPAddr:     ":8080",
				RedisAddr:    "localhost:6379",
				OIDCIssuer:   "https://issuer.example.com",
				OIDCAudience: "kube-debug-gateway",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLoadEnvVars(t *testing.T) {
	t.Setenv("KDG_API_KEYS", "svc:env-key")
	t.Setenv("KDG_REDIS_PASSWORD", "env-secret")
	t.Setenv("KDG_SESSION_TTL_SECONDS", "600")
	t.Setenv("KDG_EXECUTE_API_KEY_ONLY", "true")
	t.Setenv("KDG_KEEPALIVE_INTERVAL", "30s")

	config := ServeConfig{}
	config.loadEnvVars()

	assert.Equal(t, "svc:env-key", config.APIKeys)
	assert.Equal(t, "env-secret", config.RedisPassword)
	assert.Equal(t, 600, config.SessionTTLSeconds)
	assert.True(t, config.ExecuteAPIKeyOnly)
	assert.Equal(t, 30*time.Second, config.KeepaliveInterval)
}

func TestLoadEnvVarsDoesNotOverrideFlags(t *testing.T) {
	t.Setenv("KDG_API_KEYS", "svc:env-key")

	config := ServeConfig{APIKeys: "svc:flag-key"}
	config.loadEnvVars()

	assert.Equal(t, "svc:flag-key", config.APIKeys)
}

func TestLoadEnvVarsIgnoresBadInteger(t *testing.T) {
	t.Setenv("KDG_SESSION_TTL_SECONDS", "not-a-number")

	config := ServeConfig{}
	config.loadEnvVars()

	assert.Equal(t, 0, config.SessionTTLSeconds)
}

func TestServeCmdFlags(t *testing.T) {
	cmd := newServeCmd()

	for _, flag := range []string{
		"http-addr", "redis-addr", "redis-password", "redis-db",
		"api-keys", "oidc-issuer", "oidc-audience",
		"log-level", "log-format",
		"session-ttl", "command-timeout", "execute-api-key-only",
		"keepalive-interval", "shutdown-timeout", "disable-metrics",
	} {
		assert.NotNil(t, cmd.Flags().Lookup(flag), flag)
	}
}
