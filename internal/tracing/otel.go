package tracing

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// instrumentationName names the tracer used by the agent.
const instrumentationName = "github.com/54b3r/docarag-go"

// OTelConfig controls OpenTelemetry initialisation.
type OTelConfig struct {
	// ServiceName is reported as service.name (default: docarag).
	ServiceName string
	// ServiceVersion is reported as service.version when non-empty.
	ServiceVersion string
}

// SetupOTel installs a global tracer provider when an exporter is
// configured:
//
//	OTEL_EXPORTER_OTLP_ENDPOINT set  → OTLP/gRPC (endpoint and TLS read from OTEL_* env)
//	OTEL_TRACES_EXPORTER=stdout      → pretty-printed spans on stdout
//
// Otherwise the global no-op provider stays in place and enabled is false.
// The returned shutdown flushes pending spans and is always non-nil.
func SetupOTel(ctx context.Context, cfg OTelConfig) (shutdown func(context.Context) error, enabled bool, err error) {
	noop := func(context.Context) error { return nil }

	exp, err := newExporter(ctx)
	if err != nil {
		return noop, false, err
	}
	if exp == nil {
		return noop, false, nil
	}

	name := cfg.ServiceName
	if name == "" {
		name = "docarag"
	}
	attrs := []attribute.KeyValue{attribute.String("service.name", name)}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, attribute.String("service.version", cfg.ServiceVersion))
	}
	res, err := resource.New(ctx, resource.WithAttributes(attrs...), resource.WithFromEnv())
	if err != nil {
		return noop, false, fmt.Errorf("tracing: create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			return fmt.Errorf("tracing: shutdown: %w", err)
		}
		return nil
	}, true, nil
}

// newExporter picks the span exporter from the environment. A nil exporter
// with a nil error means tracing is off.
func newExporter(ctx context.Context) (sdktrace.SpanExporter, error) {
	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" {
		exp, err := otlptracegrpc.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("tracing: create OTLP exporter: %w", err)
		}
		return exp, nil
	}
	if strings.EqualFold(os.Getenv("OTEL_TRACES_EXPORTER"), "stdout") {
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("tracing: create stdout exporter: %w", err)
		}
		return exp, nil
	}
	return nil, nil
}

// Start opens a span on the global tracer provider.
func Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// End finishes span, recording err on it when non-nil.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
