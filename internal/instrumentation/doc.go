// Package instrumentation provides the gateway's metrics pipeline: an
// OpenTelemetry meter backed by the Prometheus exporter, plus typed recording
// helpers for the command router, session registry, executor streams, and the
// HTTP middleware.
//
// The pull-based /metrics endpoint is the only export surface; there is no
// push pipeline.
package instrumentation
