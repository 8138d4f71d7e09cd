package observe

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func useTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(orig) })
	return exp
}

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(orig) })
	return &buf
}

func TestCorrelationID(t *testing.T) {
	useTracer(t)

	spanCtx, span := StartSpan(context.Background(), "drill.turn")
	defer span.End()
	traceID := span.SpanContext().TraceID().String()

	tests := []struct {
		name string
		ctx  context.Context
		want string
	}{
		{name: "empty", ctx: context.Background(), want: ""},
		{name: "trace id", ctx: spanCtx, want: traceID},
		{name: "explicit id wins", ctx: WithCorrelationID(spanCtx, "req-7"), want: "req-7"},
		{name: "blank id ignored", ctx: WithCorrelationID(spanCtx, ""), want: traceID},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := CorrelationID(tc.ctx); got != tc.want {
				t.Errorf("CorrelationID = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestStartSpan_UsesGlobalProvider(t *testing.T) {
	exp := useTracer(t)

	_, span := StartSpan(context.Background(), "stt.session")
	span.End()

	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "stt.session" {
		t.Fatalf("spans = %v, want one stt.session span", spans)
	}
	if got := spans[0].InstrumentationScope.Name; got != tracerName {
		t.Errorf("scope = %q, want %q", got, tracerName)
	}
}

func TestLogger(t *testing.T) {
	useTracer(t)
	spanCtx, span := StartSpan(context.Background(), "tts.speak")
	defer span.End()

	tests := []struct {
		name    string
		ctx     context.Context
		want    []string
		notWant []string
	}{
		{
			name:    "plain context",
			ctx:     context.Background(),
			notWant: []string{"trace_id", "correlation_id"},
		},
		{
			name:    "active span",
			ctx:     spanCtx,
			want:    []string{"trace_id=", "span_id="},
			notWant: []string{"correlation_id"},
		},
		{
			name: "span and correlation id",
			ctx:  WithCorrelationID(spanCtx, "req-9"),
			want: []string{"correlation_id=req-9", "trace_id="},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			buf := captureLogs(t)
			Logger(tc.ctx).Info("speak prompt")
			out := buf.String()
			for _, s := range tc.want {
				if !strings.Contains(out, s) {
					t.Errorf("log %q missing %q", out, s)
				}
			}
			for _, s := range tc.notWant {
				if strings.Contains(out, s) {
					t.Errorf("log %q unexpectedly contains %q", out, s)
				}
			}
		})
	}
}
