package instrumentation

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

func TestNewMetrics(t *testing.T) {
	provider := sdkmetric.NewMeterProvider()
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	m, err := NewMetrics(provider.Meter("test"))
	require.NoError(t, err)
	require.NotNil(t, m)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()

	// None of these may panic.
	m.RecordCommand(ctx, "c1", "success", time.Second)
	m.SessionOpened(ctx)
	m.SessionClosed(ctx)
	m.StreamConnected(ctx, "c1")
	m.StreamDisconnected(ctx, "c1")
	m.RecordAuthAttempt(ctx, "api_key", true)
	m.RecordHTTPRequest(ctx, "GET", "/debug/execute", 200, time.Millisecond)
}

func TestProviderExportsThroughPrometheus(t *testing.T) {
	p, err := NewProvider()
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	ctx := context.Background()
	p.Metrics().RecordCommand(ctx, "prod-us-1", "success", 120*time.Millisecond)
	p.Metrics().SessionOpened(ctx)
	p.Metrics().RecordAuthAttempt(ctx, "jwt", false)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	p.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "gateway_commands_total")
	assert.Contains(t, string(body), "gateway_sessions_active")
	assert.Contains(t, string(body), "gateway_auth_attempts_total")
	assert.Contains(t, string(body), `cluster="prod-us-1"`)
}

func TestNilProvider(t *testing.T) {
	var p *Provider
	assert.Nil(t, p.Metrics())
	assert.NoError(t, p.Shutdown(context.Background()))
}
