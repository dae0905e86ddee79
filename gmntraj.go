// Package gmntraj reads Global Meteor Network trajectory summaries into
// typed tables and derives their Avro schema.
//
// ReadTable and ReadArray wrap the reader and table packages; SchemaProvider
// serves the Avro schema of a summary format version, synthesized from the
// embedded model file and cached in memory and on disk.
package gmntraj

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/gmn-data-platform/gmntraj/reader"
	"github.com/gmn-data-platform/gmntraj/schema"
	"github.com/gmn-data-platform/gmntraj/table"
)

const tracerName = "github.com/gmn-data-platform/gmntraj"

type readConfig struct {
	version           string
	camelCase         bool
	serializationSafe bool
	registry          *schema.Registry
	logger            *slog.Logger
	tracerProvider    trace.TracerProvider
}

// Option configures ReadTable and ReadArray.
type Option func(*readConfig)

// WithVersion declares the schema version of the input instead of
// inferring it.
func WithVersion(id string) Option {
	return func(c *readConfig) { c.version = id }
}

// WithCamelCase names the index and columns by their camel-case names.
func WithCamelCase(enabled bool) Option {
	return func(c *readConfig) { c.camelCase = enabled }
}

// WithSerializationSafe narrows dtypes to those every writer accepts.
func WithSerializationSafe(enabled bool) Option {
	return func(c *readConfig) { c.serializationSafe = enabled }
}

// WithRegistry resolves versions against r instead of schema.Default().
func WithRegistry(r *schema.Registry) Option {
	return func(c *readConfig) { c.registry = r }
}

// WithLogger sets the logger. If not set, slog.Default() is used.
func WithLogger(l *slog.Logger) Option {
	return func(c *readConfig) { c.logger = l }
}

// WithTracerProvider sets the OpenTelemetry TracerProvider
// (noop when not configured).
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *readConfig) { c.tracerProvider = tp }
}

func newReadConfig(opts []Option) readConfig {
	c := readConfig{
		registry:       schema.Default(),
		logger:         slog.Default(),
		tracerProvider: noop.NewTracerProvider(),
	}
	for _, o := range opts {
		o(&c)
	}
	return c
}

func (c readConfig) readerOptions() []reader.Option {
	opts := []reader.Option{reader.WithRegistry(c.registry), reader.WithLogger(c.logger)}
	if c.version != "" {
		opts = append(opts, reader.WithVersion(c.version))
	}
	return opts
}

// ReadTable normalizes input and coerces it into a typed table.
// See reader.Normalize for the accepted input types.
func ReadTable(input any, dialect reader.Dialect, opts ...Option) (*table.Table, error) {
	return ReadTableContext(context.Background(), input, dialect, opts...)
}

// ReadTableContext is ReadTable with a parent context for tracing.
func ReadTableContext(ctx context.Context, input any, dialect reader.Dialect, opts ...Option) (*table.Table, error) {
	c := newReadConfig(opts)
	_, span := c.tracerProvider.Tracer(tracerName).Start(ctx, "gmntraj.ReadTable",
		trace.WithAttributes(attribute.String("gmntraj.dialect", string(dialect))))
	defer span.End()

	rec, err := reader.Normalize(input, dialect, c.readerOptions()...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "normalize")
		return nil, err
	}
	t, err := table.Coerce(rec, table.Options{
		CamelCase:         c.camelCase,
		SerializationSafe: c.serializationSafe,
		Logger:            c.logger,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "coerce")
		return nil, err
	}

	rows, cols := t.Shape()
	span.SetAttributes(
		attribute.String("gmntraj.version", rec.Version.ID),
		attribute.Int("gmntraj.rows", rows),
		attribute.Int("gmntraj.columns", cols),
	)
	return t, nil
}

// ReadArray normalizes input and returns the raw rows × columns token
// matrix, without the index and without type coercion.
func ReadArray(input any, dialect reader.Dialect, opts ...Option) ([][]string, error) {
	c := newReadConfig(opts)
	rec, err := reader.Normalize(input, dialect, c.readerOptions()...)
	if err != nil {
		return nil, fmt.Errorf("read array: %w", err)
	}
	return rec.Array(), nil
}
