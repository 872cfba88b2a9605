package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// InstrumentationName names the meter and tracer of this service.
const InstrumentationName = "tracker-api"

// ServiceVersion is reported as a resource attribute on exported telemetry.
const ServiceVersion = "1.0.0"

// Metrics holds the OTLP instruments of the service
type Metrics struct {
	RequestsTotal       metric.Int64Counter
	RequestDuration     metric.Float64Histogram
	RateLimitRejections metric.Int64Counter
	AuthzDecisions      metric.Int64Counter
}

// NewMetrics creates every instrument on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	requestsTotal, err := meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create requests counter: %w", err)
	}

	requestDuration, err := meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	rateLimitRejections, err := meter.Int64Counter(
		"rate_limit_rejections_total",
		metric.WithDescription("Total number of rate limit rejections"),
		metric.WithUnit("{rejection}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limit counter: %w", err)
	}

	authzDecisions, err := meter.Int64Counter(
		"authz_decisions_total",
		metric.WithDescription("Authorization guard decisions by check and outcome"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create authz decision counter: %w", err)
	}

	return &Metrics{
		RequestsTotal:       requestsTotal,
		RequestDuration:     requestDuration,
		RateLimitRejections: rateLimitRejections,
		AuthzDecisions:      authzDecisions,
	}, nil
}

// NewNoopMetrics returns instruments that record nothing.
func NewNoopMetrics() *Metrics {
	m, err := NewMetrics(noop.NewMeterProvider().Meter(InstrumentationName))
	if err != nil {
		panic(err)
	}
	return m
}

// InitMetrics initializes OpenTelemetry metrics with OTLP gRPC exporter
func InitMetrics(ctx context.Context, serviceName, endpoint string) (*sdkmetric.MeterProvider, *Metrics, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(ServiceVersion),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create resource: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	exporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithInsecure(),
		otlpmetricgrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(30*time.Second),
		)),
	)
	otel.SetMeterProvider(mp)

	metrics, err := NewMetrics(mp.Meter(InstrumentationName))
	if err != nil {
		return nil, nil, err
	}
	return mp, metrics, nil
}

// AuthzRecorder counts guard decisions on both the OTLP and the Prometheus pipelines.
type AuthzRecorder struct {
	metrics *Metrics
}

// NewAuthzRecorder creates a recorder. metrics may be nil when OTLP export is disabled.
func NewAuthzRecorder(metrics *Metrics) *AuthzRecorder {
	return &AuthzRecorder{metrics: metrics}
}

// RecordDecision records one allow or deny outcome for the named check.
func (r *AuthzRecorder) RecordDecision(ctx context.Context, check string, allowed bool) {
	outcome := "deny"
	if allowed {
		outcome = "allow"
	}

	authzDecisionsTotal.WithLabelValues(check, outcome).Inc()

	if r == nil || r.metrics == nil {
		return
	}
	r.metrics.AuthzDecisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("check", check),
		attribute.String("outcome", outcome),
	))
}

// RecordRateLimitRejection counts a request rejected by the rate limiter.
func (r *AuthzRecorder) RecordRateLimitRejection(ctx context.Context, route string) {
	rateLimitRejectionsTotal.WithLabelValues(route).Inc()

	if r == nil || r.metrics == nil {
		return
	}
	r.metrics.RateLimitRejections.Add(ctx, 1, metric.WithAttributes(attribute.String("route", route)))
}
