package tracing

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestTransport(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	var gotParent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotParent = r.Header.Get("Traceparent")
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	client := &http.Client{Transport: NewTransport(nil, tp, "data_directory")}

	for _, path := range []string{"/ok", "/missing"} {
		resp, err := client.Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if gotParent == "" {
			t.Fatalf("%s: no traceparent header sent", path)
		}
	}

	spans := rec.Ended()
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}
	if spans[0].Name() != "HTTP GET" {
		t.Errorf("span name = %q", spans[0].Name())
	}
	if spans[0].Status().Code == codes.Error {
		t.Errorf("ok request marked as error")
	}
	if spans[1].Status().Code != codes.Error {
		t.Errorf("404 request not marked as error")
	}

	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range spans[1].Attributes() {
		attrs[kv.Key] = kv.Value
	}
	if v := attrs["gmn.source"]; v.AsString() != "data_directory" {
		t.Errorf("gmn.source = %q", v.AsString())
	}
	if v := attrs["http.response.status_code"]; v.AsInt64() != 404 {
		t.Errorf("status code attr = %v", v.AsInt64())
	}
}
