package auth

import (
	"fmt"
	"strings"
)

// APIKey is one process-configured credential. Service is the optional
// service identity carried into audit records and downstream correlation; it
// is empty for anonymous keys.
type APIKey struct {
	Service string
	Key     string
}

// ParseAPIKeys parses the comma-separated KDG_API_KEYS form. Each entry is
// either a bare key or "service:key". Whitespace around entries is ignored;
// empty entries are rejected.
func ParseAPIKeys(raw string) ([]APIKey, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrNoAPIKeys
	}

	var keys []APIKey
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			return nil, fmt.Errorf("empty api key entry in configuration")
		}

		service, key, found := strings.Cut(entry, ":")
		if !found {
			keys = append(keys, APIKey{Key: entry})
			continue
		}
		if service == "" || key == "" {
			return nil, fmt.Errorf("malformed api key entry %q: want key or service:key", sanitizeEntry(entry))
		}
		keys = append(keys, APIKey{Service: service, Key: key})
	}
	return keys, nil
}

// sanitizeEntry redacts the secret portion of a malformed entry so it never
// reaches logs or error messages.
func sanitizeEntry(entry string) string {
	if service, _, found := strings.Cut(entry, ":"); found && service != "" {
		return service + ":<redacted>"
	}
	return "<redacted>"
}
