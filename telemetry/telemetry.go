// Package telemetry holds the OpenTelemetry instruments of the bridge.
//
// Instruments are created from the global providers unless others are
// passed in, so telemetry is a no-op until the embedding program installs
// an SDK.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/wippyai/uibridge/errors"
)

// InstrumentationName names the tracer and meter.
const InstrumentationName = "github.com/wippyai/uibridge"

// Attribute keys.
const (
	AttrOperation  = attribute.Key("uibridge.operation")
	AttrCallbackID = attribute.Key("uibridge.callback_id")
	AttrGeneration = attribute.Key("uibridge.generation")
	AttrErrorKind  = attribute.Key("uibridge.error.kind")
)

// Attr is one span attribute.
type Attr = attribute.KeyValue

// Operation names.
const (
	OpRender = "render"
	OpInvoke = "invoke"
)

// Instruments bundles the tracer and the RED metrics of interpreter entry.
type Instruments struct {
	tracer     trace.Tracer
	operations metric.Int64Counter
	failures   metric.Int64Counter
	coalesced  metric.Int64Counter
	duration   metric.Float64Histogram
}

type options struct {
	tp trace.TracerProvider
	mp metric.MeterProvider
}

// Option configures Instruments.
type Option func(*options)

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tp = tp }
}

// WithMeterProvider overrides the global meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.mp = mp }
}

// New creates the instruments.
func New(opts ...Option) (*Instruments, error) {
	o := options{tp: otel.GetTracerProvider(), mp: otel.GetMeterProvider()}
	for _, opt := range opts {
		opt(&o)
	}

	meter := o.mp.Meter(InstrumentationName)
	i := &Instruments{tracer: o.tp.Tracer(InstrumentationName)}

	var err error
	if i.operations, err = meter.Int64Counter("uibridge.interpreter.operations",
		metric.WithDescription("Interpreter entries by operation"),
		metric.WithUnit("{operation}")); err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "create operations counter")
	}
	if i.failures, err = meter.Int64Counter("uibridge.interpreter.failures",
		metric.WithDescription("Failed interpreter entries by operation and error kind"),
		metric.WithUnit("{operation}")); err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "create failures counter")
	}
	if i.coalesced, err = meter.Int64Counter("uibridge.render.coalesced",
		metric.WithDescription("Re-render requests folded into a queued render"),
		metric.WithUnit("{request}")); err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "create coalesced counter")
	}
	if i.duration, err = meter.Float64Histogram("uibridge.interpreter.duration",
		metric.WithDescription("Time spent inside the interpreter"),
		metric.WithUnit("ms")); err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "create duration histogram")
	}
	return i, nil
}

// Track starts a span for one interpreter entry. The returned function ends
// it and records the metrics; pass the error of the operation.
func (i *Instruments) Track(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	all := append([]attribute.KeyValue{AttrOperation.String(op)}, attrs...)
	ctx, span := i.tracer.Start(ctx, "uibridge."+op, trace.WithAttributes(all...))

	return ctx, func(err error) {
		set := metric.WithAttributes(AttrOperation.String(op))
		i.operations.Add(ctx, 1, set)
		i.duration.Record(ctx, float64(time.Since(start))/float64(time.Millisecond), set)
		if err != nil {
			kind := string(errors.KindOf(err))
			if kind == "" {
				kind = "unknown"
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.SetAttributes(AttrErrorKind.String(kind))
			i.failures.Add(ctx, 1, metric.WithAttributes(AttrOperation.String(op), AttrErrorKind.String(kind)))
		}
		span.End()
	}
}

// Coalesced counts a re-render request merged into an already queued one.
func (i *Instruments) Coalesced(ctx context.Context) {
	i.coalesced.Add(ctx, 1)
}
