package instrumentation

import (
	"context"
	"fmt"
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// meterName identifies this instrumentation scope.
const meterName = "github.com/giantswarm/kube-debug-gateway"

// Provider wires the OTel meter to a Prometheus registry and owns the gateway
// metric set. A nil Provider is valid and records nothing.
type Provider struct {
	registry      *promclient.Registry
	meterProvider *sdkmetric.MeterProvider
	metrics       *Metrics
}

// NewProvider builds the metrics pipeline.
func NewProvider() (*Provider, error) {
	registry := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("creating prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	metrics, err := NewMetrics(meterProvider.Meter(meterName))
	if err != nil {
		return nil, err
	}

	return &Provider{
		registry:      registry,
		meterProvider: meterProvider,
		metrics:       metrics,
	}, nil
}

// Meter returns a meter in this provider's scope.
func (p *Provider) Meter() metric.Meter {
	return p.meterProvider.Meter(meterName)
}

// Metrics returns the gateway metric set, nil on a nil provider.
func (p *Provider) Metrics() *Metrics {
	if p == nil {
		return nil
	}
	return p.metrics
}

// Handler returns the /metrics HTTP handler.
func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the meter provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	return p.meterProvider.Shutdown(ctx)
}
