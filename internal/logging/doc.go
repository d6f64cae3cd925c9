// Package logging provides structured logging utilities for the gateway.
//
// It centralizes logging patterns on top of the standard library's slog:
// consistent attribute naming, PII sanitization (identity hashing, token
// masking), and host/IP redaction for anything that may carry network
// topology.
//
// Typical usage:
//
//	logger := logging.WithOperation(slog.Default(), "router.execute")
//	logger.Info("command dispatched",
//	    logging.Cluster("prod-us-1"),
//	    logging.Command(cmdID))
package logging
