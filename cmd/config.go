package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gmn-data-platform/gmntraj/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a gmntraj.yaml configuration template",
	Long:  `Generates a commented gmntraj.yaml configuration file holding the default values.`,
	RunE:  runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate [config-file]",
	Short: "Validate a gmntraj.yaml configuration file offline",
	Long:  `Parses and validates a YAML configuration file without contacting any remote source. Checks structural correctness, valid enum values, and configuration invariants.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	f := configInitCmd.Flags()
	f.Bool("registry", false, "include the schema registry section")
	f.StringP("output", "o", "gmntraj.yaml", "output file path (- for stdout)")
}

type configTemplateData struct {
	config.Config
	Registry bool
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	withRegistry, _ := cmd.Flags().GetBool("registry")
	output, _ := cmd.Flags().GetString("output")

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("parse template: %w", err)
	}

	var w *os.File
	if output == "-" {
		w = os.Stdout
	} else {
		w, err = os.Create(output)
		if err != nil {
			return fmt.Errorf("create %s: %w", output, err)
		}
		defer func() { _ = w.Close() }()
	}

	if err := tmpl.Execute(w, configTemplateData{Config: config.Default(), Registry: withRegistry}); err != nil {
		return fmt.Errorf("execute template: %w", err)
	}

	if output != "-" {
		fmt.Fprintf(os.Stderr, "Wrote %s\n", output)
	}
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		viper.SetConfigFile(args[0])
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
	} else if viper.ConfigFileUsed() == "" {
		return fmt.Errorf("no config file found; specify a path or ensure gmntraj.yaml exists in the current directory")
	}

	path := viper.ConfigFileUsed()
	if ext := filepath.Ext(path); ext == ".yaml" || ext == ".yml" {
		if err := config.CheckFile(path); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "ERROR: %v\n", err)
			return fmt.Errorf("config %s is invalid", path)
		}
	}

	if _, err := loadConfig(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "ERROR: %v\n", err)
		return fmt.Errorf("config %s is invalid", viper.ConfigFileUsed())
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Config %s is valid\n", viper.ConfigFileUsed())
	return nil
}

const configTemplate = `# gmntraj configuration

log_level: {{ .LogLevel }}      # debug, info, warn, error
log_format: {{ .LogFormat }}    # text, json
timeout: {{ .Timeout }}

# ─── Reading ───────────────────────────────────────────────────────────────

read:
  dialect: {{ .Read.Dialect }}   # data_directory or rest_api
  # version: "2.0"              # summary format version (default: infer)
  camel_case: {{ .Read.CamelCase }}
  serialization_safe: {{ .Read.SerializationSafe }}   # required for avro export

# ─── Schema synthesis ──────────────────────────────────────────────────────

schema:
  # cache_dir: ~/.cache/gmntraj  # persist synthesized .avsc files
  namespace: {{ .Schema.Namespace }}
  record_name: {{ .Schema.RecordName }}

# ─── Export ────────────────────────────────────────────────────────────────

export:
  format: {{ .Export.Format }}    # jsonl, avro, parquet, arrow
  avro_codec: {{ .Export.AvroCodec }}
  compress: {{ .Export.Compress }}
  # filter: 'iau_code == "PER"'
  # keep_fields: [iau_code, vgeo_km_s]
  # drop_fields: []

# ─── Remote sources ────────────────────────────────────────────────────────

source:
  directory_url: {{ .Source.DirectoryURL }}
  data_store_url: {{ .Source.DataStoreURL }}
  request_timeout: {{ .Source.RequestTimeout }}
  rate_limit: {{ .Source.RateLimit }}        # requests per second, 0 = unlimited
  rate_burst: {{ .Source.RateBurst }}
  max_retries: {{ .Source.MaxRetries }}
  backoff_base: {{ .Source.BackoffBase }}
  backoff_cap: {{ .Source.BackoffCap }}
  breaker_failures: {{ .Source.BreakerFailures }}   # 0 disables the circuit breaker
  breaker_reset: {{ .Source.BreakerReset }}
  concurrency: {{ .Source.Concurrency }}
  max_pages: {{ .Source.MaxPages }}
{{- if .Registry }}

# ─── Schema registry ───────────────────────────────────────────────────────

registry:
  url: http://localhost:8081
  # username: ""
  # password: ""
  subject: {{ .Config.Registry.Subject }}
{{- end }}

# ─── Tracing ───────────────────────────────────────────────────────────────

otel:
  exporter: {{ .OTel.Exporter }}   # none, stdout, otlp
  # endpoint: localhost:4317
  sample_ratio: {{ .OTel.SampleRatio }}
`
