package telemetry

import (
	"context"
	stderrors "errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"

	"github.com/wippyai/uibridge/errors"
)

// ExportConfig describes where spans and metrics are shipped.
type ExportConfig struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string // host:port of an OTLP gRPC collector
	Insecure       bool
	SampleRate     float64
	Interval       time.Duration
}

// Exporter owns the SDK providers installed by Export.
type Exporter struct {
	traces  *sdktrace.TracerProvider
	metrics *sdkmetric.MeterProvider
	logger  *zap.Logger
}

// Export installs OTLP trace and metric providers as the global ones and
// returns instruments bound to them. Call Shutdown before exiting so
// buffered data is flushed.
func Export(ctx context.Context, cfg ExportConfig, logger *zap.Logger) (*Exporter, *Instruments, error) {
	if cfg.Endpoint == "" {
		return nil, nil, errors.InvalidInput(errors.PhaseConfig, "telemetry endpoint is empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "uibridge"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	))
	if err != nil {
		return nil, nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "telemetry resource")
	}

	topts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	mopts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		topts = append(topts, otlptracegrpc.WithInsecure())
		mopts = append(mopts, otlpmetricgrpc.WithInsecure())
	}

	spanExporter, err := otlptracegrpc.New(ctx, topts...)
	if err != nil {
		return nil, nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "trace exporter")
	}
	metricExporter, err := otlpmetricgrpc.New(ctx, mopts...)
	if err != nil {
		_ = spanExporter.Shutdown(ctx)
		return nil, nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "metric exporter")
	}

	e := &Exporter{
		traces: sdktrace.NewTracerProvider(
			sdktrace.WithResource(res),
			sdktrace.WithBatcher(spanExporter),
			sdktrace.WithSampler(Sampler(cfg.SampleRate)),
		),
		metrics: sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(cfg.Interval))),
		),
		logger: logger,
	}
	otel.SetTracerProvider(e.traces)
	otel.SetMeterProvider(e.metrics)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	inst, err := New(WithTracerProvider(e.traces), WithMeterProvider(e.metrics))
	if err != nil {
		_ = e.Shutdown(ctx)
		return nil, nil, err
	}
	logger.Info("telemetry export enabled",
		zap.String("endpoint", cfg.Endpoint),
		zap.Float64("sample_rate", cfg.SampleRate),
		zap.Bool("insecure", cfg.Insecure))
	return e, inst, nil
}

// Sampler maps a ratio onto a parent-based sampler. Ratios at or above one
// sample everything and ratios at or below zero sample nothing.
func Sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case rate <= 0:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
	}
}

// Shutdown flushes and stops both providers.
func (e *Exporter) Shutdown(ctx context.Context) error {
	if e == nil {
		return nil
	}
	var errs []error
	if err := e.traces.Shutdown(ctx); err != nil {
		e.logger.Warn("trace provider shutdown", zap.Error(err))
		errs = append(errs, err)
	}
	if err := e.metrics.Shutdown(ctx); err != nil {
		e.logger.Warn("meter provider shutdown", zap.Error(err))
		errs = append(errs, err)
	}
	return stderrors.Join(errs...)
}
