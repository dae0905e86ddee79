package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/trace"

	"github.com/gmn-data-platform/gmntraj/internal/config"
	"github.com/gmn-data-platform/gmntraj/tracing"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "gmntraj",
	Short: "Read GMN meteor trajectory summaries and derive their Avro schema",
	Long: `gmntraj normalizes Global Meteor Network trajectory summary files, from the
data directory or the data store REST API, into typed tables. Tables can be
filtered with CEL expressions and written as JSON lines, Avro, Parquet or
Arrow. The Avro schema of each summary format version is synthesized from
reference data and can be published to a schema registry.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogger()
	},
	SilenceUsage: true,
}

// Execute is called by main.go and is the entry point for the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Bound flag defaults take part in viper.Unmarshal, so they mirror
	// config.Default.
	def := config.Default()
	f := rootCmd.PersistentFlags()
	f.StringVar(&cfgFile, "config", "", "config file (default: ./gmntraj.yaml)")
	f.String("log-level", def.LogLevel, "log level: debug, info, warn, error")
	f.String("log-format", def.LogFormat, "log format: text, json")
	f.String("otel-exporter", def.OTel.Exporter, "trace exporter: none, stdout, otlp")
	f.String("otel-endpoint", "", "OTLP endpoint (default: OTEL_EXPORTER_OTLP_ENDPOINT)")
	f.Float64("otel-sample-ratio", def.OTel.SampleRatio, "trace sample ratio (0-1)")
	f.Duration("timeout", def.Timeout, "overall command timeout")

	mustBindPFlag("log_level", f.Lookup("log-level"))
	mustBindPFlag("log_format", f.Lookup("log-format"))
	mustBindPFlag("otel.exporter", f.Lookup("otel-exporter"))
	mustBindPFlag("otel.endpoint", f.Lookup("otel-endpoint"))
	mustBindPFlag("otel.sample_ratio", f.Lookup("otel-sample-ratio"))
	mustBindPFlag("timeout", f.Lookup("timeout"))

	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("gmntraj")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("GMNTRAJ")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Only warn if a config file was explicitly specified but could not be read.
			if cfgFile != "" {
				fmt.Fprintf(os.Stderr, "Warning: could not read config file: %v\n", err)
			}
		}
	}
}

// setupLogger installs the default logger described by the log_level and
// log_format settings. Logs go to stderr; stdout carries command output.
func setupLogger() error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log_level"))); err != nil {
		return fmt.Errorf("log level: %w (expected debug, info, warn, error)", err)
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch format := strings.ToLower(viper.GetString("log_format")); format {
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("unknown log format: %q (expected text, json)", format)
	}

	slog.SetDefault(slog.New(tracing.NewLogHandler(handler)))
	return nil
}

// loadConfig decodes the merged flag, env and file configuration on top of
// the defaults and validates it.
func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// commandContext returns the command context bounded by cfg.Timeout and a
// tracer provider built from cfg.OTel. The context carries a root span named
// after the command. The returned func ends the span and releases both.
func commandContext(cmd *cobra.Command, cfg config.Config) (context.Context, trace.TracerProvider, func(), error) {
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeout)
	tp, shutdown, err := tracing.Setup(ctx, tracing.Config{
		Exporter:       cfg.OTel.Exporter,
		Endpoint:       cfg.OTel.Endpoint,
		SampleRatio:    cfg.OTel.SampleRatio,
		ServiceVersion: Version,
	}, slog.Default())
	if err != nil {
		cancel()
		return nil, nil, nil, err
	}
	ctx, span := tp.Tracer("github.com/gmn-data-platform/gmntraj/cmd").Start(ctx, cmd.CommandPath())
	if parent := tracing.FormatTraceparent(span.SpanContext()); parent != "" {
		slog.DebugContext(ctx, "command traced", "traceparent", parent)
	}
	return ctx, tp, func() {
		span.End()
		shutdown()
		cancel()
	}, nil
}

func mustBindPFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("viper.BindPFlag(%q): %v", key, err))
	}
}
