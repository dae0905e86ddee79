package tracing

import (
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const transportTracer = "github.com/gmn-data-platform/gmntraj/tracing"

// Transport records a client span per request and propagates its context
// in the request headers.
type Transport struct {
	base   http.RoundTripper
	tracer trace.Tracer
	source string
}

// NewTransport wraps base (http.DefaultTransport when nil). source names
// the remote data source on every span.
func NewTransport(base http.RoundTripper, tp trace.TracerProvider, source string) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{base: base, tracer: tp.Tracer(transportTracer), source: source}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx, span := t.tracer.Start(req.Context(), "HTTP "+req.Method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.HTTPRequestMethodKey.String(req.Method),
			semconv.URLFull(req.URL.String()),
			attribute.String("gmn.source", t.source),
		),
	)
	defer span.End()

	req = req.Clone(ctx)
	InjectHTTP(ctx, req.Header)

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(semconv.HTTPResponseStatusCode(resp.StatusCode))
	if resp.StatusCode >= 400 {
		span.SetStatus(codes.Error, fmt.Sprintf("status %d", resp.StatusCode))
	}
	return resp, nil
}
