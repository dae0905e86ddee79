// Package tracing sets up OpenTelemetry tracing for gmntraj commands and
// instruments the HTTP requests made to remote data sources.
package tracing

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	serviceName      = "gmntraj"
	serviceNamespace = "gmn"
	shutdownTimeout  = 5 * time.Second
)

// Exporter selects where spans go.
type Exporter string

const (
	ExporterNone   Exporter = "none"
	ExporterStdout Exporter = "stdout"
	ExporterOTLP   Exporter = "otlp"
)

// ParseExporter maps a configuration value to an Exporter. The empty string
// is ExporterNone.
func ParseExporter(s string) (Exporter, error) {
	switch e := Exporter(strings.ToLower(s)); e {
	case "", ExporterNone:
		return ExporterNone, nil
	case ExporterStdout, ExporterOTLP:
		return e, nil
	}
	return "", fmt.Errorf("unknown otel exporter: %q (expected none, stdout, or otlp)", s)
}

// Config holds OpenTelemetry tracing configuration.
type Config struct {
	Exporter string
	// Endpoint overrides OTEL_EXPORTER_OTLP_ENDPOINT. A host:port connects
	// without TLS; a URL connects with TLS unless its scheme is http.
	Endpoint       string
	SampleRatio    float64 // head sampling ratio of root spans; <= 0 means 1
	ServiceVersion string
	// Writer receives stdout exporter output. Defaults to os.Stderr so that
	// spans never mix with table output written to stdout.
	Writer io.Writer
}

// Setup builds the TracerProvider described by cfg and installs it, with the
// W3C trace context propagator, as the global provider. The returned
// shutdown func flushes pending spans and must be called on exit.
//
// ExporterNone yields a noop provider and installs nothing.
func Setup(ctx context.Context, cfg Config, logger *slog.Logger) (trace.TracerProvider, func(), error) {
	kind, err := ParseExporter(cfg.Exporter)
	if err != nil {
		return nil, nil, err
	}
	if kind == ExporterNone {
		return noop.NewTracerProvider(), func() {}, nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	res, err := newResource(cfg.ServiceVersion)
	if err != nil {
		return nil, nil, err
	}
	exporter, err := newExporter(ctx, kind, cfg)
	if err != nil {
		return nil, nil, err
	}

	ratio := cfg.SampleRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	otel.SetTracerProvider(tp)

	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("otel tracer provider shutdown error", "error", err)
		}
	}

	logger.Debug("otel tracing enabled", "exporter", kind, "sample_ratio", ratio)
	return tp, shutdown, nil
}

func newResource(version string) (*resource.Resource, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceNamespace(serviceNamespace),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create otel resource: %w", err)
	}
	return res, nil
}

func newExporter(ctx context.Context, kind Exporter, cfg Config) (sdktrace.SpanExporter, error) {
	switch kind {
	case ExporterStdout:
		w := cfg.Writer
		if w == nil {
			w = os.Stderr
		}
		exp, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create stdout exporter: %w", err)
		}
		return exp, nil
	case ExporterOTLP:
		var opts []otlptracegrpc.Option
		switch {
		case strings.Contains(cfg.Endpoint, "://"):
			opts = append(opts, otlptracegrpc.WithEndpointURL(cfg.Endpoint))
		case cfg.Endpoint != "":
			opts = append(opts, otlptracegrpc.WithEndpoint(cfg.Endpoint), otlptracegrpc.WithInsecure())
		}
		exp, err := otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("create otlp exporter: %w", err)
		}
		return exp, nil
	}
	return nil, fmt.Errorf("no span exporter for %q", kind)
}

// InjectHTTP writes the trace context of ctx into h using the global
// propagator.
func InjectHTTP(ctx context.Context, h http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(h))
}

// FormatTraceparent returns the W3C traceparent of sc, or "" when sc is not
// valid.
func FormatTraceparent(sc trace.SpanContext) string {
	if !sc.IsValid() {
		return ""
	}
	return fmt.Sprintf("00-%s-%s-%s", sc.TraceID(), sc.SpanID(), sc.TraceFlags())
}
