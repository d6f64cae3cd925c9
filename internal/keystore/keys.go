package keystore

// Key namespace for everything the gateway persists. Components own their own
// prefixes (see DESIGN.md); no component writes under a prefix it doesn't own.
const (
	sessionPrefix             = "session/"
	clusterActivePrefix       = "cluster_active/"
	clusterSessionPrefix      = "cluster_session/"
	correlationPrefix         = "correlation/"
	commandTrackingPrefix     = "command_tracking/"
	resultPrefix              = "result/"
	executorTokenPrefix       = "executor_token/"
	clusterCapabilitiesPrefix = "cluster_capabilities/"
	executorCommandsPrefix    = "executor_commands/"
	resultReadyPrefix         = "result_ready/"

	// SessionsActiveKey is the membership set of live session IDs.
	SessionsActiveKey = "sessions_active"

	// AuthAuditKey is the trimmed ring of authentication audit events.
	AuthAuditKey = "auth_audit"

	// SessionEventsChannel carries session.created / session.ended records.
	SessionEventsChannel = "session_events"
)

// SessionKey returns the key holding a session record.
func SessionKey(sessionID string) string { return sessionPrefix + sessionID }

// ClusterActiveKey returns the rolling-TTL fast-attention marker for a cluster.
func ClusterActiveKey(clusterID string) string { return clusterActivePrefix + clusterID }

// ClusterSessionKey returns the cluster -> session index key.
func ClusterSessionKey(clusterID string) string { return clusterSessionPrefix + clusterID }

// CorrelationSessionsKey returns the set of session IDs for a correlation ID.
func CorrelationSessionsKey(correlationID string) string {
	return correlationPrefix + correlationID + "/sessions"
}

// CommandTrackingKey returns the in-flight tracking entry for a command.
func CommandTrackingKey(commandID string) string { return commandTrackingPrefix + commandID }

// ResultKey returns the key a command result is stored under.
func ResultKey(commandID string) string { return resultPrefix + commandID }

// ExecutorTokenKey returns the key holding a cluster's executor token.
func ExecutorTokenKey(clusterID string) string { return executorTokenPrefix + clusterID }

// ClusterCapabilitiesKey returns the key holding a cluster's capability profile.
func ClusterCapabilitiesKey(clusterID string) string {
	return clusterCapabilitiesPrefix + clusterID
}

// ExecutorCommandsChannel returns the pub/sub channel an executor subscribes to.
func ExecutorCommandsChannel(clusterID string) string { return executorCommandsPrefix + clusterID }

// ResultReadyChannel returns the pub/sub channel signalled when a result lands.
func ResultReadyChannel(commandID string) string { return resultReadyPrefix + commandID }

// Prefix patterns for admin scans.
const (
	ClusterActivePattern       = clusterActivePrefix + "*"
	ClusterSessionPattern      = clusterSessionPrefix + "*"
	ExecutorTokenPattern       = executorTokenPrefix + "*"
	ClusterCapabilitiesPattern = clusterCapabilitiesPrefix + "*"
)

// StripPrefix removes the namespace prefix from a scanned key, returning the
// bare identifier. The second return reports whether the prefix matched.
func StripPrefix(key, pattern string) (string, bool) {
	// Patterns end in "*"; the prefix is everything before it.
	if len(pattern) == 0 || pattern[len(pattern)-1] != '*' {
		return key, false
	}
	prefix := pattern[:len(pattern)-1]
	if len(key) <= len(prefix) || key[:len(prefix)] != prefix {
		return key, false
	}
	return key[len(prefix):], true
}
