// Package observability provides OpenTelemetry tracing and metrics for the
// coherence engine.
//
// Every orchestration operation is wrapped by TrackOperation, which opens a
// span and records RED metrics for it. Domain instruments track reported
// global scores and alert lifecycle transitions.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/Mindburn-Labs/coherence"

// Config selects the OTLP endpoint and sampling of the engine's telemetry.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string  // gRPC host:port
	SampleRate     float64 // fraction of traces kept, 1.0 keeps all
	ExportInterval time.Duration
	Enabled        bool
	Insecure       bool // plaintext gRPC, for local collectors
}

// DefaultConfig returns the settings used when no overrides are given.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "coherence-engine",
		ServiceVersion: "1.0.0",
		Environment:    "development",
		OTLPEndpoint:   "localhost:4317",
		SampleRate:     1.0,
		ExportInterval: 15 * time.Second,
		Enabled:        true,
	}
}

// instruments are the metric handles used by the provider. A zero value
// records nothing.
type instruments struct {
	operations  metric.Int64Counter
	failures    metric.Int64Counter
	latency     metric.Float64Histogram
	inFlight    metric.Int64UpDownCounter
	scores      metric.Float64Histogram
	gaming      metric.Int64Counter
	transitions metric.Int64Counter
}

// Provider owns the trace and meter providers and the engine instruments.
type Provider struct {
	config         *Config
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter
	inst           instruments
	logger         *slog.Logger
}

// New builds a provider exporting over OTLP gRPC and installs it as the
// global otel provider. A disabled config yields a provider that records
// nothing.
func New(ctx context.Context, config *Config) (*Provider, error) {
	if config == nil {
		config = DefaultConfig()
	}
	p := &Provider{config: config, logger: slog.Default().With("component", "observability")}
	if !config.Enabled {
		p.logger.InfoContext(ctx, "telemetry disabled")
		return p, nil
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(config.ServiceName),
		semconv.ServiceVersion(config.ServiceVersion),
		semconv.DeploymentEnvironment(config.Environment),
	))
	if err != nil {
		return nil, fmt.Errorf("build resource: %w", err)
	}

	if p.tracerProvider, err = newTracerProvider(ctx, config, res); err != nil {
		return nil, err
	}
	if p.meterProvider, err = newMeterProvider(ctx, config, res); err != nil {
		_ = p.tracerProvider.Shutdown(ctx)
		return nil, err
	}
	otel.SetTracerProvider(p.tracerProvider)
	otel.SetMeterProvider(p.meterProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	p.tracer = p.tracerProvider.Tracer(scopeName, trace.WithInstrumentationVersion(config.ServiceVersion))
	p.meter = p.meterProvider.Meter(scopeName, metric.WithInstrumentationVersion(config.ServiceVersion))
	if p.inst, err = newInstruments(p.meter); err != nil {
		return nil, err
	}

	p.logger.InfoContext(ctx, "telemetry enabled",
		"service", config.ServiceName,
		"endpoint", config.OTLPEndpoint,
		"sample_rate", config.SampleRate,
		"insecure", config.Insecure,
	)
	return p, nil
}

// NewWithProviders builds a provider on caller-owned SDK providers, such as
// ones wired to in-memory readers and exporters. Globals are left untouched.
func NewWithProviders(tp *sdktrace.TracerProvider, mp *sdkmetric.MeterProvider) (*Provider, error) {
	p := &Provider{
		config:         DefaultConfig(),
		tracerProvider: tp,
		meterProvider:  mp,
		tracer:         tp.Tracer(scopeName),
		meter:          mp.Meter(scopeName),
		logger:         slog.Default().With("component", "observability"),
	}
	var err error
	if p.inst, err = newInstruments(p.meter); err != nil {
		return nil, err
	}
	return p, nil
}

// Noop returns a provider that records spans and metrics through the
// global otel providers, which do nothing unless the host installs them.
func Noop() *Provider {
	return &Provider{
		config: &Config{},
		logger: slog.Default().With("component", "observability"),
	}
}

func newTracerProvider(ctx context.Context, cfg *Config, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	sampler := sdktrace.TraceIDRatioBased(cfg.SampleRate)
	switch {
	case cfg.SampleRate >= 1:
		sampler = sdktrace.AlwaysSample()
	case cfg.SampleRate <= 0:
		sampler = sdktrace.NeverSample()
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
	), nil
}

func newMeterProvider(ctx context.Context, cfg *Config, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}
	interval := cfg.ExportInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
	), nil
}

func newInstruments(m metric.Meter) (instruments, error) {
	var (
		in  instruments
		err error
	)
	if in.operations, err = m.Int64Counter("coherence.operations.total",
		metric.WithDescription("Operations started"), metric.WithUnit("{operation}")); err != nil {
		return in, fmt.Errorf("register operations counter: %w", err)
	}
	if in.failures, err = m.Int64Counter("coherence.errors.total",
		metric.WithDescription("Operations that returned an error"), metric.WithUnit("{error}")); err != nil {
		return in, fmt.Errorf("register errors counter: %w", err)
	}
	if in.latency, err = m.Float64Histogram("coherence.operation.duration",
		metric.WithDescription("Operation latency"), metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5)); err != nil {
		return in, fmt.Errorf("register duration histogram: %w", err)
	}
	if in.inFlight, err = m.Int64UpDownCounter("coherence.operations.active",
		metric.WithDescription("Operations in flight"), metric.WithUnit("{operation}")); err != nil {
		return in, fmt.Errorf("register active gauge: %w", err)
	}
	if in.scores, err = m.Float64Histogram("coherence.global_score",
		metric.WithDescription("Reported global coherence scores"), metric.WithUnit("{score}"),
		metric.WithExplicitBucketBoundaries(10, 20, 30, 40, 50, 60, 70, 80, 90, 100)); err != nil {
		return in, fmt.Errorf("register score histogram: %w", err)
	}
	if in.gaming, err = m.Int64Counter("coherence.gaming.detected",
		metric.WithDescription("Gaming violations detected, by tag"), metric.WithUnit("{violation}")); err != nil {
		return in, fmt.Errorf("register gaming counter: %w", err)
	}
	if in.transitions, err = m.Int64Counter("coherence.alerts.transitions",
		metric.WithDescription("Alert lifecycle transitions, by kind"), metric.WithUnit("{alert}")); err != nil {
		return in, fmt.Errorf("register transitions counter: %w", err)
	}
	return in, nil
}

// Shutdown flushes pending telemetry. Errors are logged, not returned.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "trace provider shutdown", "error", err)
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "meter provider shutdown", "error", err)
		}
	}
	return nil
}

// Tracer returns the provider tracer, or the global one.
func (p *Provider) Tracer() trace.Tracer {
	if p.tracer == nil {
		return otel.Tracer(scopeName)
	}
	return p.tracer
}

// Meter returns the provider meter, or the global one.
func (p *Provider) Meter() metric.Meter {
	if p.meter == nil {
		return otel.Meter(scopeName)
	}
	return p.meter
}

// StartSpan starts a span named name.
func (p *Provider) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return p.Tracer().Start(ctx, name, opts...)
}

// RecordError counts a failed operation.
func (p *Provider) RecordError(ctx context.Context, err error, attrs ...attribute.KeyValue) {
	if p.inst.failures == nil {
		return
	}
	all := append(append([]attribute.KeyValue{}, attrs...), attribute.String("error.type", fmt.Sprintf("%T", err)))
	p.inst.failures.Add(ctx, 1, metric.WithAttributes(all...))
}

// RecordScore records a reported global score.
func (p *Provider) RecordScore(ctx context.Context, score int, attrs ...attribute.KeyValue) {
	if p.inst.scores != nil {
		p.inst.scores.Record(ctx, float64(score), metric.WithAttributes(attrs...))
	}
}

// RecordGaming counts each detected gaming violation tag.
func (p *Provider) RecordGaming(ctx context.Context, tags []string) {
	if p.inst.gaming == nil {
		return
	}
	for _, tag := range tags {
		p.inst.gaming.Add(ctx, 1, metric.WithAttributes(AttrGamingViolation.String(tag)))
	}
}

// RecordAlertTransitions counts n alert transitions of one kind.
func (p *Provider) RecordAlertTransitions(ctx context.Context, kind string, n int) {
	if p.inst.transitions != nil && n > 0 {
		p.inst.transitions.Add(ctx, int64(n), metric.WithAttributes(AttrAlertTransition.String(kind)))
	}
}

// TrackOperation opens a span for name and returns the function that ends
// it, recording latency and, for a non-nil error, the failure.
func (p *Provider) TrackOperation(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	attrs = append(attrs, AttrOperation.String(name))
	set := metric.WithAttributes(attrs...)

	ctx, span := p.StartSpan(ctx, name, trace.WithSpanKind(trace.SpanKindInternal), trace.WithAttributes(attrs...))
	if p.inst.operations != nil {
		p.inst.operations.Add(ctx, 1, set)
		p.inst.inFlight.Add(ctx, 1, set)
	}

	return ctx, func(err error) {
		if p.inst.operations != nil {
			p.inst.inFlight.Add(ctx, -1, set)
			p.inst.latency.Record(ctx, time.Since(start).Seconds(), set)
		}
		if err != nil {
			span.RecordError(err)
			p.RecordError(ctx, err, attrs...)
		}
		span.End()
	}
}
