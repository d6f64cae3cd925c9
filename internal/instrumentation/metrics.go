package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys, constant for consistency across recordings.
const (
	attrCluster = "cluster"
	attrStatus  = "status"
	attrMethod  = "method"
	attrPath    = "path"
	attrResult  = "result"
)

// Metrics provides recording methods for the gateway's observable events.
// A nil *Metrics records nothing; callers never need to nil-check per call.
type Metrics struct {
	commandsTotal   metric.Int64Counter
	commandDuration metric.Float64Histogram
	sessionsActive  metric.Int64UpDownCounter
	executorStreams metric.Int64UpDownCounter
	authAttempts    metric.Int64Counter

	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram
}

// NewMetrics creates the gateway metric set on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.commandsTotal, err = meter.Int64Counter(
		"gateway_commands_total",
		metric.WithDescription("Total commands routed, by cluster and outcome"),
		metric.WithUnit("{command}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating gateway_commands_total: %w", err)
	}

	m.commandDuration, err = meter.Float64Histogram(
		"gateway_command_duration_seconds",
		metric.WithDescription("End-to-end command routing duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0),
	)
	if err != nil {
		return nil, fmt.Errorf("creating gateway_command_duration_seconds: %w", err)
	}

	m.sessionsActive, err = meter.Int64UpDownCounter(
		"gateway_sessions_active",
		metric.WithDescription("Debugging sessions currently live"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating gateway_sessions_active: %w", err)
	}

	m.executorStreams, err = meter.Int64UpDownCounter(
		"gateway_executor_streams",
		metric.WithDescription("Executor push streams currently connected"),
		metric.WithUnit("{stream}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating gateway_executor_streams: %w", err)
	}

	m.authAttempts, err = meter.Int64Counter(
		"gateway_auth_attempts_total",
		metric.WithDescription("Authentication attempts, by method and result"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating gateway_auth_attempts_total: %w", err)
	}

	m.httpRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating http_requests_total: %w", err)
	}

	m.httpRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0),
	)
	if err != nil {
		return nil, fmt.Errorf("creating http_request_duration_seconds: %w", err)
	}

	return m, nil
}

// RecordCommand records one routed command. Implements router.Recorder.
func (m *Metrics) RecordCommand(ctx context.Context, clusterID, status string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(attrCluster, clusterID),
		attribute.String(attrStatus, status),
	)
	m.commandsTotal.Add(ctx, 1, attrs)
	m.commandDuration.Record(ctx, duration.Seconds(), attrs)
}

// SessionOpened bumps the live-session gauge.
func (m *Metrics) SessionOpened(ctx context.Context) {
	if m == nil {
		return
	}
	m.sessionsActive.Add(ctx, 1)
}

// SessionClosed drops the live-session gauge.
func (m *Metrics) SessionClosed(ctx context.Context) {
	if m == nil {
		return
	}
	m.sessionsActive.Add(ctx, -1)
}

// StreamConnected bumps the executor-stream gauge for a cluster.
func (m *Metrics) StreamConnected(ctx context.Context, clusterID string) {
	if m == nil {
		return
	}
	m.executorStreams.Add(ctx, 1, metric.WithAttributes(attribute.String(attrCluster, clusterID)))
}

// StreamDisconnected drops the executor-stream gauge for a cluster.
func (m *Metrics) StreamDisconnected(ctx context.Context, clusterID string) {
	if m == nil {
		return
	}
	m.executorStreams.Add(ctx, -1, metric.WithAttributes(attribute.String(attrCluster, clusterID)))
}

// RecordAuthAttempt records one authentication attempt.
func (m *Metrics) RecordAuthAttempt(ctx context.Context, method string, success bool) {
	if m == nil {
		return
	}
	result := "failure"
	if success {
		result = "success"
	}
	m.authAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrMethod, method),
		attribute.String(attrResult, result),
	))
}

// RecordHTTPRequest records one served request. path must already be
// normalized to a bounded set to keep cardinality in check.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(status)),
	)
	m.httpRequestsTotal.Add(ctx, 1, attrs)
	m.httpRequestDuration.Record(ctx, duration.Seconds(), attrs)
}
