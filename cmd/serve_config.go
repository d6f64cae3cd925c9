package cmd

import (
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"time"
)

// ServeConfig holds all configuration for the serve command.
type ServeConfig struct {
	// HTTP listener settings
	HTTPAddr string

	// Keystore settings
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Authentication
	APIKeys      string
	OIDCIssuer   string
	OIDCAudience string

	// Logging
	LogLevel  string
	LogFormat string

	// Gateway behavior
	SessionTTLSeconds     int
	CommandTimeoutSeconds int
	ExecuteAPIKeyOnly     bool
	KeepaliveInterval     time.Duration
	ShutdownTimeout       time.Duration

	// Metrics
	DisableMetrics bool
}

// Environment variable names accepted as fallbacks for unset flags.
const (
	envHTTPAddr          = "KDG_HTTP_ADDR"
	envRedisAddr         = "KDG_REDIS_ADDR"
	envRedisPassword     = "KDG_REDIS_PASSWORD"
	envRedisDB           = "KDG_REDIS_DB"
	envAPIKeys           = "KDG_API_KEYS"
	envOIDCIssuer        = "KDG_OIDC_ISSUER"
	envOIDCAudience      = "KDG_OIDC_AUDIENCE"
	envLogLevel          = "KDG_LOG_LEVEL"
	envLogFormat         = "KDG_LOG_FORMAT"
	envSessionTTL        = "KDG_SESSION_TTL_SECONDS"
	envCommandTimeout    = "KDG_COMMAND_TIMEOUT_SECONDS"
	envExecuteAPIKeyOnly = "KDG_EXECUTE_API_KEY_ONLY"
	envKeepaliveInterval = "KDG_KEEPALIVE_INTERVAL"
)

// envValueTrue is the string value that enables boolean environment variables.
const envValueTrue = "true"

// loadEnvIfEmpty loads an environment variable into a string pointer if it's
// empty.
func loadEnvIfEmpty(target *string, envKey string) {
	if *target == "" {
		*target = os.Getenv(envKey)
	}
}

// parseDurationEnv parses a duration from an environment variable value.
// Returns the parsed duration and true if successful. Logs a warning if the
// value is present but invalid.
func parseDurationEnv(value, envName string) (time.Duration, bool) {
	if value == "" {
		return 0, false
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("Warning: invalid duration for %s=%q: %v", envName, value, err)
		return 0, false
	}
	return d, true
}

// parseIntEnv parses an integer from an environment variable value. Returns
// the parsed int and true if successful. Logs a warning if the value is
// present but invalid.
func parseIntEnv(value, envName string) (int, bool) {
	if value == "" {
		return 0, false
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Warning: invalid integer for %s=%q: %v", envName, value, err)
		return 0, false
	}
	return n, true
}

// loadEnvVars applies KDG_* fallbacks for values the flags left unset.
func (c *ServeConfig) loadEnvVars() {
	loadEnvIfEmpty(&c.RedisPassword, envRedisPassword)
	loadEnvIfEmpty(&c.APIKeys, envAPIKeys)
	loadEnvIfEmpty(&c.OIDCIssuer, envOIDCIssuer)
	loadEnvIfEmpty(&c.OIDCAudience, envOIDCAudience)
	loadEnvIfEmpty(&c.LogLevel, envLogLevel)
	loadEnvIfEmpty(&c.LogFormat, envLogFormat)

	if c.HTTPAddr == "" {
		loadEnvIfEmpty(&c.HTTPAddr, envHTTPAddr)
	}
	if c.RedisAddr == "" {
		loadEnvIfEmpty(&c.RedisAddr, envRedisAddr)
	}
	if c.RedisDB == 0 {
		if db, ok := parseIntEnv(os.Getenv(envRedisDB), envRedisDB); ok {
			c.RedisDB = db
		}
	}
	if c.SessionTTLSeconds == 0 {
		if ttl, ok := parseIntEnv(os.Getenv(envSessionTTL), envSessionTTL); ok {
			c.SessionTTLSeconds = ttl
		}
	}
	if c.CommandTimeoutSeconds == 0 {
		if timeout, ok := parseIntEnv(os.Getenv(envCommandTimeout), envCommandTimeout); ok {
			c.CommandTimeoutSeconds = timeout
		}
	}
	if !c.ExecuteAPIKeyOnly && os.Getenv(envExecuteAPIKeyOnly) == envValueTrue {
		c.ExecuteAPIKeyOnly = true
	}
	if c.KeepaliveInterval == 0 {
		if interval, ok := parseDurationEnv(os.Getenv(envKeepaliveInterval), envKeepaliveInterval); ok {
			c.KeepaliveInterval = interval
		}
	}
}

// validate rejects configurations the gateway cannot start with.
func (c *ServeConfig) validate() error {
	if c.HTTPAddr == "" {
		return fmt.Errorf("http address must not be empty")
	}
	if _, _, err := net.SplitHostPort(c.HTTPAddr); err != nil {
		return fmt.Errorf("invalid http address %q: %w", c.HTTPAddr, err)
	}
	if c.RedisAddr == "" {
		return fmt.Errorf("keystore address must not be empty")
	}
	if (c.OIDCIssuer == "") != (c.OIDCAudience == "") {
		return fmt.Errorf("oidc-issuer and oidc-audience must be set together")
	}
	return nil
}
