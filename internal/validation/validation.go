// Package validation enforces the wire contract at the request frontend:
// cluster identifiers, kubectl argument safety (forbidden verbs), and the
// extra-flag allow/deny lists. Nothing rejected here ever reaches the command
// router or the executor channel.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// Limits on the execute request shape.
const (
	MaxClusterIDLength = 100
	MaxArgs            = 20

	MinRequestTimeoutSeconds = 1
	MaxRequestTimeoutSeconds = 60
	MinCommandTimeoutSeconds = 1
	MaxCommandTimeoutSeconds = 30
)

// ValidationError reports which field failed and why. The offending value is
// included verbatim only for non-secret fields.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// forbiddenVerbs are mutation verbs rejected anywhere in args, as
// case-insensitive substrings. The executor enforces its own whitelist too;
// this gate keeps mutations from ever leaving the gateway.
var forbiddenVerbs = []string{
	"delete", "apply", "create", "patch", "edit", "replace", "scale",
}

// deniedFlags are rejected as substrings of any extra_args entry. They either
// redirect the executor at another cluster or smuggle credentials/files.
var deniedFlags = []string{
	"--token", "--kubeconfig", "--server", "--insecure",
	"--username", "--password", "--client-certificate",
	"--as", "--as-group", "--certificate-authority",
	"-f", "--filename", "--recursive",
}

// allowedFlags maps each permitted flag to whether it consumes a value.
var allowedFlags = map[string]bool{
	"-o": true, "--output": true,
	"-l": true, "--selector": true,
	"--field-selector": true,
	"--sort-by":        true,
	"--show-labels":    false,
	"--show-kind":      false,
	"--no-headers":     false,
	"-w":               false,
	"--watch":          false,
	"-A":               false,
	"--all-namespaces": false,
}

// allowedOutputFormats are the safe values for -o/--output. Structured formats
// keyed by an expression (custom-columns, go-template, jsonpath) are matched on
// their format name, with their -file variants excluded by the filename deny
// list anyway.
var allowedOutputFormats = map[string]bool{
	"json": true, "yaml": true, "wide": true, "name": true,
	"custom-columns": true, "custom-columns-file": true,
	"go-template": true, "go-template-file": true,
	"jsonpath": true, "jsonpath-file": true,
}

var clusterIDRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

// ClusterID validates the cluster identifier shape: lowercase alphanumeric
// with interior hyphens, 1-100 characters.
func ClusterID(id string) error {
	if id == "" {
		return &ValidationError{Field: "cluster_id", Reason: "must not be empty"}
	}
	if len(id) > MaxClusterIDLength {
		return &ValidationError{Field: "cluster_id", Reason: fmt.Sprintf("longer than %d characters", MaxClusterIDLength)}
	}
	if !clusterIDRegex.MatchString(id) {
		return &ValidationError{Field: "cluster_id", Value: id, Reason: "must be lowercase alphanumeric with interior hyphens"}
	}
	return nil
}

// containsForbiddenVerb reports the first mutation verb found in s, matched
// case-insensitively as a substring.
func containsForbiddenVerb(s string) (string, bool) {
	lower := strings.ToLower(s)
	for _, verb := range forbiddenVerbs {
		if strings.Contains(lower, verb) {
			return verb, true
		}
	}
	return "", false
}

// CommandType validates the kubectl verb: required, and never a mutation
// verb.
func CommandType(verb string) error {
	if verb == "" {
		return &ValidationError{Field: "command_type", Reason: "must not be empty"}
	}
	if v, ok := containsForbiddenVerb(verb); ok {
		return &ValidationError{Field: "command_type", Value: verb, Reason: fmt.Sprintf("forbidden verb %q", v)}
	}
	return nil
}

// Args validates the kubectl argument list: 1-20 entries, none containing a
// forbidden mutation verb. The verb itself travels separately and is not
// counted against the bound.
func Args(args []string) error {
	if len(args) == 0 {
		return &ValidationError{Field: "args", Reason: "at least one argument required"}
	}
	if len(args) > MaxArgs {
		return &ValidationError{Field: "args", Reason: fmt.Sprintf("more than %d entries", MaxArgs)}
	}
	for _, arg := range args {
		if verb, ok := containsForbiddenVerb(arg); ok {
			return &ValidationError{Field: "args", Value: arg, Reason: fmt.Sprintf("forbidden verb %q", verb)}
		}
	}
	return nil
}

// ExtraArgs validates the optional flag list against the deny list first,
// then the allow list. Value-consuming flags may carry their value in the next
// entry or inline as flag=value. Forbidden verbs are rejected here too, so a
// flag value cannot smuggle one past the args gate.
func ExtraArgs(extra []string) error {
	expectValueFor := ""
	for _, token := range extra {
		if verb, ok := containsForbiddenVerb(token); ok {
			return &ValidationError{Field: "extra_args", Value: token, Reason: fmt.Sprintf("forbidden verb %q", verb)}
		}

		lower := strings.ToLower(token)
		for _, denied := range deniedFlags {
			if matchesDeniedFlag(lower, denied) {
				return &ValidationError{Field: "extra_args", Value: token, Reason: fmt.Sprintf("flag %s is not permitted", denied)}
			}
		}

		if expectValueFor != "" {
			// This token is the value for the preceding flag.
			if err := checkFlagValue(expectValueFor, token); err != nil {
				return err
			}
			expectValueFor = ""
			continue
		}

		if !strings.HasPrefix(token, "-") {
			return &ValidationError{Field: "extra_args", Value: token, Reason: "expected a flag"}
		}

		flag, value, inline := strings.Cut(token, "=")
		takesValue, ok := allowedFlags[flag]
		if !ok {
			return &ValidationError{Field: "extra_args", Value: token, Reason: "flag is not on the allow list"}
		}
		if inline {
			if !takesValue {
				return &ValidationError{Field: "extra_args", Value: token, Reason: "flag does not take a value"}
			}
			if err := checkFlagValue(flag, value); err != nil {
				return err
			}
			continue
		}
		if takesValue {
			expectValueFor = flag
		}
	}
	if expectValueFor != "" {
		return &ValidationError{Field: "extra_args", Value: expectValueFor, Reason: "flag is missing its value"}
	}
	return nil
}

// matchesDeniedFlag guards against both the bare flag and its value-carrying
// forms without tripping on allow-listed flags that merely share a prefix
// ("-f" vs "--field-selector").
func matchesDeniedFlag(token, denied string) bool {
	if token == denied {
		return true
	}
	if strings.HasPrefix(token, denied+"=") {
		return true
	}
	// Long denied flags are also rejected as interior substrings, covering
	// constructions like "--v=--kubeconfig".
	if len(denied) > 2 && strings.Contains(token, denied) {
		return true
	}
	return false
}

func checkFlagValue(flag, value string) error {
	if flag != "-o" && flag != "--output" {
		return nil
	}
	// The format name is the part before any expression, e.g.
	// jsonpath={.items[*].metadata.name}.
	format, _, _ := strings.Cut(value, "=")
	if !allowedOutputFormats[strings.ToLower(format)] {
		return &ValidationError{Field: "extra_args", Value: value, Reason: "output format not permitted"}
	}
	return nil
}

// ClampRequestTimeout bounds the router-level timeout to [1, 60] seconds,
// applying the given default when zero.
func ClampRequestTimeout(seconds, def int) int {
	return clamp(seconds, def, MinRequestTimeoutSeconds, MaxRequestTimeoutSeconds)
}

// ClampCommandTimeout bounds the executor-side timeout to [1, 30] seconds,
// applying the given default when zero.
func ClampCommandTimeout(seconds, def int) int {
	return clamp(seconds, def, MinCommandTimeoutSeconds, MaxCommandTimeoutSeconds)
}

func clamp(v, def, lo, hi int) int {
	if v == 0 {
		v = def
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
