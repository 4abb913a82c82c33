package telemetry

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/wippyai/uibridge/errors"
)

func setup(t *testing.T) (*Instruments, *tracetest.SpanRecorder, *sdkmetric.ManualReader) {
	t.Helper()
	spans := tracetest.NewSpanRecorder()
	reader := sdkmetric.NewManualReader()
	i, err := New(
		WithTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))),
		WithMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))),
	)
	if err != nil {
		t.Fatal(err)
	}
	return i, spans, reader
}

func sums(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatal(err)
	}
	out := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					out[m.Name] += dp.Value
				}
			}
		}
	}
	return out
}

func TestTrack(t *testing.T) {
	i, spans, reader := setup(t)
	ctx := context.Background()

	_, done := i.Track(ctx, OpRender, AttrGeneration.Int64(1))
	done(nil)
	_, done = i.Track(ctx, OpInvoke, AttrCallbackID.String("cb_1_a"))
	done(errors.CallbackNotFound("cb_1_a"))
	_, done = i.Track(ctx, OpInvoke)
	done(fmt.Errorf("plain"))
	i.Coalesced(ctx)

	ended := spans.Ended()
	if len(ended) != 3 {
		t.Fatalf("spans = %d", len(ended))
	}
	if ended[0].Name() != "uibridge.render" || ended[0].Status().Code == codes.Error {
		t.Errorf("render span = %s %v", ended[0].Name(), ended[0].Status())
	}
	if ended[1].Status().Code != codes.Error {
		t.Errorf("invoke span status = %v", ended[1].Status())
	}

	got := sums(t, reader)
	want := map[string]int64{
		"uibridge.interpreter.operations": 3,
		"uibridge.interpreter.failures":   2,
		"uibridge.render.coalesced":       1,
	}
	for name, n := range want {
		if got[name] != n {
			t.Errorf("%s = %d, want %d", name, got[name], n)
		}
	}
}

func TestNewWithGlobalProviders(t *testing.T) {
	i, err := New()
	if err != nil {
		t.Fatal(err)
	}
	_, done := i.Track(context.Background(), OpRender)
	done(nil)
}

func TestExportNeedsEndpoint(t *testing.T) {
	e, inst, err := Export(context.Background(), ExportConfig{}, nil)
	if errors.KindOf(err) != errors.KindInvalidInput {
		t.Fatalf("err = %v", err)
	}
	if e != nil || inst != nil {
		t.Error("returned providers without an endpoint")
	}
	if err := e.Shutdown(context.Background()); err != nil {
		t.Errorf("nil exporter shutdown: %v", err)
	}
}

func TestSampler(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{1, "root:AlwaysOnSampler"},
		{3, "root:AlwaysOnSampler"},
		{0, "root:AlwaysOffSampler"},
		{-1, "root:AlwaysOffSampler"},
		{0.5, "root:TraceIDRatioBased{0.5}"},
	}
	for _, tt := range tests {
		if got := Sampler(tt.rate).Description(); !strings.Contains(got, tt.want) {
			t.Errorf("Sampler(%v) = %s, want %s", tt.rate, got, tt.want)
		}
	}
}
