// Package observability provides OpenTelemetry tracing, metrics, and
// audit logging for the video search daemon.
package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	// TracerName is the name used for the daemon tracer.
	TracerName = "github.com/efebarandurmaz/semanticvideo"
)

// TracingConfig configures the OpenTelemetry tracing.
type TracingConfig struct {
	// ServiceName is the name of the service (default: "semanticvideo")
	ServiceName string

	// ServiceVersion is the version of the service
	ServiceVersion string

	// Environment is the deployment environment (dev, staging, prod)
	Environment string

	// OTLPEndpoint is the OTLP gRPC endpoint (e.g., "localhost:4317")
	// If empty, tracing is disabled.
	OTLPEndpoint string

	// SampleRate is the trace sampling rate (0.0 to 1.0, default: 1.0)
	SampleRate float64
}

// DefaultTracingConfig returns a default tracing configuration.
func DefaultTracingConfig() *TracingConfig {
	return &TracingConfig{
		ServiceName:    "semanticvideo",
		ServiceVersion: "0.1.0",
		Environment:    "development",
		SampleRate:     1.0,
	}
}

// TracerProvider wraps the OpenTelemetry tracer provider.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// InitTracing initializes OpenTelemetry tracing.
// Returns a no-op tracer if OTLPEndpoint is empty.
func InitTracing(ctx context.Context, cfg *TracingConfig) (*TracerProvider, error) {
	if cfg == nil {
		cfg = DefaultTracingConfig()
	}

	// If no endpoint, return no-op tracer
	if cfg.OTLPEndpoint == "" {
		return &TracerProvider{
			tracer: otel.Tracer(TracerName),
		}, nil
	}

	// Create OTLP exporter
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(), // Use TLS in production
	)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	// Create resource with service info
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	// Create sampler
	var sampler sdktrace.Sampler
	if cfg.SampleRate >= 1.0 {
		sampler = sdktrace.AlwaysSample()
	} else if cfg.SampleRate <= 0 {
		sampler = sdktrace.NeverSample()
	} else {
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	// Create trace provider
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	// Set global provider and propagator
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &TracerProvider{
		provider: provider,
		tracer:   provider.Tracer(TracerName),
	}, nil
}

// Shutdown gracefully shuts down the tracer provider.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.provider != nil {
		return tp.provider.Shutdown(ctx)
	}
	return nil
}

// Tracer returns the underlying tracer.
func (tp *TracerProvider) Tracer() trace.Tracer {
	return tp.tracer
}

// SpanKind constants for daemon operations.
const (
	SpanKindExtract = "extract"
	SpanKindEmbed   = "embed"
	SpanKindIndex   = "index"
	SpanKindSearch  = "search"
	SpanKindStore   = "store"
)

// StartExtractSpan starts a span for a frame extraction run.
func StartExtractSpan(ctx context.Context, videoID string, samplingRate float64) (context.Context, trace.Span) {
	tracer := otel.Tracer(TracerName)
	ctx, span := tracer.Start(ctx, "extract.frames",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("semanticvideo.span.kind", SpanKindExtract),
			attribute.String("video.id", videoID),
			attribute.Float64("extract.sampling_rate", samplingRate),
		),
	)
	return ctx, span
}

// RecordExtractResult records extraction counts on a span.
func RecordExtractResult(span trace.Span, frameCount int, duration time.Duration) {
	span.SetAttributes(
		attribute.Int("extract.frame_count", frameCount),
		attribute.Int64("extract.duration_ms", duration.Milliseconds()),
	)
}

// StartEmbedSpan starts a span for an embedding provider call.
func StartEmbedSpan(ctx context.Context, provider, model string, inputCount int) (context.Context, trace.Span) {
	tracer := otel.Tracer(TracerName)
	ctx, span := tracer.Start(ctx, "embed.create",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("semanticvideo.span.kind", SpanKindEmbed),
			attribute.String("embed.provider", provider),
			attribute.String("embed.model", model),
			attribute.Int("embed.input_count", inputCount),
		),
	)
	return ctx, span
}

// StartIndexSpan starts a span for a video or image indexing batch.
func StartIndexSpan(ctx context.Context, videoID string, frameCount int) (context.Context, trace.Span) {
	tracer := otel.Tracer(TracerName)
	ctx, span := tracer.Start(ctx, "index.batch",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("semanticvideo.span.kind", SpanKindIndex),
			attribute.String("video.id", videoID),
			attribute.Int("index.frame_count", frameCount),
		),
	)
	return ctx, span
}

// RecordIndexResult records indexing outcome counts on a span.
func RecordIndexResult(span trace.Span, indexed, embedFailed, storageFailed int) {
	span.SetAttributes(
		attribute.Int("index.frames_indexed", indexed),
		attribute.Int("index.embed_failures", embedFailed),
		attribute.Int("index.storage_failures", storageFailed),
	)
	if storageFailed > 0 {
		span.SetStatus(codes.Error, "batch commit failed")
	}
}

// StartSearchSpan starts a span for a semantic search request.
func StartSearchSpan(ctx context.Context, kind string, topK int) (context.Context, trace.Span) {
	tracer := otel.Tracer(TracerName)
	ctx, span := tracer.Start(ctx, fmt.Sprintf("search.%s", kind),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("semanticvideo.span.kind", SpanKindSearch),
			attribute.String("search.kind", kind),
			attribute.Int("search.top_k", topK),
		),
	)
	return ctx, span
}

// RecordSearchResult records search result counts on a span.
func RecordSearchResult(span trace.Span, matchCount, resultCount int) {
	span.SetAttributes(
		attribute.Int("search.match_count", matchCount),
		attribute.Int("search.result_count", resultCount),
	)
}

// StartStoreSpan starts a span for a vector store operation.
func StartStoreSpan(ctx context.Context, backend, operation string) (context.Context, trace.Span) {
	tracer := otel.Tracer(TracerName)
	ctx, span := tracer.Start(ctx, fmt.Sprintf("store.%s", operation),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("semanticvideo.span.kind", SpanKindStore),
			attribute.String("store.backend", backend),
			attribute.String("store.operation", operation),
		),
	)
	return ctx, span
}

// RecordError records an error on a span.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
