package observability

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

type metrics struct {
	engineOpsTotal     metric.Int64Counter
	engineOpDuration   metric.Float64Histogram
	faultsTotal        metric.Int64Counter
	httpRequestsTotal  metric.Int64Counter
	httpRequestLatency metric.Float64Histogram
}

var (
	metricsMu   sync.Mutex
	metricsInit bool
	m           metrics
)

func buildMeterProvider(ctx context.Context, cfg Config) (*sdkmetric.MeterProvider, error) {
	if !cfg.Enabled || !cfg.MetricsEnabled {
		return sdkmetric.NewMeterProvider(), nil
	}

	exporter, err := otlpmetricgrpc.New(
		ctx,
		otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create metric resource: %w", err)
	}

	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
	), nil
}

func instruments() *metrics {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	if !metricsInit {
		meter := otel.Meter("queryengine/engine")
		m.engineOpsTotal, _ = meter.Int64Counter("queryengine.engine.operations_total")
		m.engineOpDuration, _ = meter.Float64Histogram("queryengine.engine.operation_duration_ms")
		m.faultsTotal, _ = meter.Int64Counter("queryengine.engine.faults_total")
		m.httpRequestsTotal, _ = meter.Int64Counter("queryengine.http.server.requests_total")
		m.httpRequestLatency, _ = meter.Float64Histogram("queryengine.http.server.request_duration_ms")
		metricsInit = true
	}
	return &m
}

func resetInstruments() {
	metricsMu.Lock()
	metricsInit = false
	metricsMu.Unlock()
}

// RecordEngineOperation counts one boundary operation and its latency
func RecordEngineOperation(ctx context.Context, operation string, success bool, durationMS float64) {
	inst := instruments()
	attrs := metric.WithAttributes(
		attribute.String(AttrOperation, operation),
		attribute.Bool(AttrSuccess, success),
	)
	inst.engineOpsTotal.Add(ctx, 1, attrs)
	inst.engineOpDuration.Record(ctx, durationMS, attrs)
	engineOperations.WithLabelValues(operation, successLabel(success)).Inc()
}

// RecordFault counts a recovered panic
func RecordFault(ctx context.Context, operation string) {
	instruments().faultsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrOperation, operation)))
	engineFaults.WithLabelValues(operation).Inc()
}

// RecordHTTPRequest counts one served HTTP request
func RecordHTTPRequest(ctx context.Context, method, route string, status int, durationMS float64) {
	inst := instruments()
	attrs := metric.WithAttributes(
		attribute.String(AttrHTTPMethod, method),
		attribute.String(AttrHTTPRoute, route),
		attribute.Int(AttrHTTPStatusCode, status),
	)
	inst.httpRequestsTotal.Add(ctx, 1, attrs)
	inst.httpRequestLatency.Record(ctx, durationMS, attrs)
}

func successLabel(success bool) string {
	if success {
		return "true"
	}
	return "false"
}
