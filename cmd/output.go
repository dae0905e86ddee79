package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/hamba/avro/v2/ocf"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel/trace"

	"github.com/gmn-data-platform/gmntraj"
	"github.com/gmn-data-platform/gmntraj/export"
	"github.com/gmn-data-platform/gmntraj/internal/config"
	"github.com/gmn-data-platform/gmntraj/reader"
	"github.com/gmn-data-platform/gmntraj/table"
	"github.com/gmn-data-platform/gmntraj/transform"
)

// addTableFlags registers the flags shared by commands that produce a table.
func addTableFlags(f *pflag.FlagSet) {
	def := config.Default()
	f.String("dialect", def.Read.Dialect, "input dialect: data_directory, rest_api")
	f.String("schema-version", "", "summary format version of the input (default: infer)")
	f.Bool("camel-case", false, "name columns by their camel-case names")
	f.Bool("serialization-safe", false, "restrict dtypes to those every writer accepts")
	f.StringP("format", "f", def.Export.Format, "output format: jsonl, avro, parquet, arrow")
	f.String("avro-codec", def.Export.AvroCodec, "avro container codec: null, deflate, snappy, zstandard")
	f.Bool("compress", def.Export.Compress, "snappy-compress parquet pages")
	f.String("filter", "", "CEL expression selecting rows, e.g. 'iau_no == 4 && vgeo_km_s > 60.0'")
	f.StringSlice("keep", nil, "columns to keep (repeatable)")
	f.StringSlice("drop", nil, "columns to drop (repeatable)")
	f.StringSlice("iau-code", nil, "keep only rows of these IAU shower codes (repeatable)")
	f.StringP("output", "o", "-", "output file (- for stdout)")
	f.String("cache-dir", "", "directory of cached Avro schema files")
}

// bindTableFlags binds the table flags of the running command. Several
// commands share these keys, so binding happens at run time.
func bindTableFlags(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	mustBindPFlag("read.dialect", f.Lookup("dialect"))
	mustBindPFlag("read.version", f.Lookup("schema-version"))
	mustBindPFlag("read.camel_case", f.Lookup("camel-case"))
	mustBindPFlag("read.serialization_safe", f.Lookup("serialization-safe"))
	mustBindPFlag("export.format", f.Lookup("format"))
	mustBindPFlag("export.avro_codec", f.Lookup("avro-codec"))
	mustBindPFlag("export.compress", f.Lookup("compress"))
	mustBindPFlag("export.filter", f.Lookup("filter"))
	mustBindPFlag("export.keep_fields", f.Lookup("keep"))
	mustBindPFlag("export.drop_fields", f.Lookup("drop"))
	mustBindPFlag("schema.cache_dir", f.Lookup("cache-dir"))
	return nil
}

// readOptions maps the read section of cfg to facade options.
func readOptions(cfg config.Config, tp trace.TracerProvider) []gmntraj.Option {
	opts := []gmntraj.Option{
		gmntraj.WithCamelCase(cfg.Read.CamelCase),
		gmntraj.WithSerializationSafe(cfg.Read.SerializationSafe),
		gmntraj.WithLogger(slog.Default()),
		gmntraj.WithTracerProvider(tp),
	}
	if cfg.Read.Version != "" {
		opts = append(opts, gmntraj.WithVersion(cfg.Read.Version))
	}
	return opts
}

// readTable reads input with the dialect and options of cfg.
func readTable(ctx context.Context, cfg config.Config, tp trace.TracerProvider, input any) (*table.Table, error) {
	dialect, err := reader.ParseDialect(cfg.Read.Dialect)
	if err != nil {
		return nil, err
	}
	return gmntraj.ReadTableContext(ctx, input, dialect, readOptions(cfg, tp)...)
}

// buildTransform assembles the row filters and projections of cfg and the
// command flags. Returns nil when there is nothing to apply.
func buildTransform(cmd *cobra.Command, cfg config.Config) transform.TransformFunc {
	var fns []transform.TransformFunc
	if codes, _ := cmd.Flags().GetStringSlice("iau-code"); len(codes) > 0 {
		allowed := make([]any, len(codes))
		for i, c := range codes {
			allowed[i] = c
		}
		fns = append(fns, transform.FilterFieldIn("iau_code", allowed...))
	}
	if cfg.Export.Filter != "" {
		fns = append(fns, transform.FilterCEL(cfg.Export.Filter))
	}
	if len(cfg.Export.KeepFields) > 0 {
		fns = append(fns, transform.KeepColumns(cfg.Export.KeepFields...))
	}
	if len(cfg.Export.DropFields) > 0 {
		fns = append(fns, transform.DropColumns(cfg.Export.DropFields...))
	}
	return transform.Chain(fns...)
}

// emitTable applies the configured transforms to t and writes it to the
// --output destination in the configured format.
func emitTable(cmd *cobra.Command, cfg config.Config, t *table.Table) error {
	if fn := buildTransform(cmd, cfg); fn != nil {
		var err error
		if t, err = fn(t); err != nil {
			return err
		}
	}

	format, err := export.ParseFormat(cfg.Export.Format)
	if err != nil {
		return err
	}
	opts := []export.Option{
		export.WithAvroCodec(ocf.CodecName(cfg.Export.AvroCodec)),
		export.WithCompression(cfg.Export.Compress),
	}
	// The synthesized schema names every column in camel case, so it only
	// fits unprojected camel-case tables.
	if format == export.FormatAvro && t.CamelCase && len(t.Columns) == len(t.Version.Columns) {
		p := gmntraj.NewSchemaProvider(gmntraj.WithCacheDir(cfg.Schema.CacheDir), gmntraj.WithProviderLogger(slog.Default()))
		a, err := p.Schema(t.Version.ID)
		if err != nil {
			return err
		}
		opts = append(opts, export.WithArtifact(a))
	}

	output, _ := cmd.Flags().GetString("output")
	w, closeFn, err := openOutput(cmd, output)
	if err != nil {
		return err
	}
	n, err := export.Write(w, t, format, opts...)
	if cerr := closeFn(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", format, err)
	}
	slog.Info("table written", "format", format, "rows", n, "output", output)
	return nil
}

func openOutput(cmd *cobra.Command, path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create output: %w", err)
	}
	return f, f.Close, nil
}
