package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gmn-data-platform/gmntraj/export"
	"github.com/gmn-data-platform/gmntraj/reader"
	"github.com/gmn-data-platform/gmntraj/tracing"
)

var knownCodecs = map[string]bool{"null": true, "deflate": true, "snappy": true, "zstandard": true}

// Validate performs structural validation on the config.
func (c Config) Validate() error {
	var errs []string

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("unknown log_level %q", c.LogLevel))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Sprintf("unknown log_format %q", c.LogFormat))
	}

	checkDur := func(path string, d time.Duration) {
		if d <= 0 {
			errs = append(errs, fmt.Sprintf("%s must be > 0", path))
		}
	}
	checkURL := func(path, raw string, required bool) {
		if raw == "" {
			if required {
				errs = append(errs, fmt.Sprintf("%s is required", path))
			}
			return
		}
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Sprintf("%s must be an http(s) URL, got %q", path, raw))
		}
	}

	checkDur("timeout", c.Timeout)

	// --- Read ---
	if _, err := reader.ParseDialect(c.Read.Dialect); err != nil {
		errs = append(errs, "read.dialect: "+err.Error())
	}

	// --- Schema ---
	if c.Schema.Namespace == "" || c.Schema.RecordName == "" {
		errs = append(errs, "schema.namespace and schema.record_name are required")
	}

	// --- Export ---
	format, err := export.ParseFormat(c.Export.Format)
	if err != nil {
		errs = append(errs, "export.format: "+err.Error())
	}
	if !knownCodecs[c.Export.AvroCodec] {
		errs = append(errs, fmt.Sprintf("unknown export.avro_codec %q", c.Export.AvroCodec))
	}
	if format == export.FormatAvro && !c.Read.SerializationSafe {
		errs = append(errs, "export.format avro requires read.serialization_safe")
	}
	if len(c.Export.KeepFields) > 0 && len(c.Export.DropFields) > 0 {
		errs = append(errs, "export.keep_fields and export.drop_fields are mutually exclusive")
	}

	// --- Source ---
	checkURL("source.directory_url", c.Source.DirectoryURL, true)
	checkURL("source.data_store_url", c.Source.DataStoreURL, true)
	checkDur("source.request_timeout", c.Source.RequestTimeout)
	checkDur("source.backoff_base", c.Source.BackoffBase)
	checkDur("source.backoff_cap", c.Source.BackoffCap)
	if c.Source.BackoffCap < c.Source.BackoffBase {
		errs = append(errs, "source.backoff_cap must be >= source.backoff_base")
	}
	if c.Source.RateLimit < 0 {
		errs = append(errs, "source.rate_limit must be >= 0")
	}
	if c.Source.RateLimit > 0 && c.Source.RateBurst <= 0 {
		errs = append(errs, "source.rate_burst must be > 0 when rate_limit is set")
	}
	if c.Source.MaxRetries < 0 {
		errs = append(errs, "source.max_retries must be >= 0")
	}
	if c.Source.BreakerFailures > 0 {
		checkDur("source.breaker_reset", c.Source.BreakerReset)
	}
	if c.Source.Concurrency <= 0 {
		errs = append(errs, fmt.Sprintf("source.concurrency must be > 0, got %d", c.Source.Concurrency))
	}
	if c.Source.MaxPages < 0 {
		errs = append(errs, "source.max_pages must be >= 0")
	}

	// --- Registry ---
	checkURL("registry.url", c.Registry.URL, false)
	if c.Registry.URL != "" && c.Registry.Subject == "" {
		errs = append(errs, "registry.subject is required with registry.url")
	}

	// --- OTel ---
	if _, err := tracing.ParseExporter(c.OTel.Exporter); err != nil {
		errs = append(errs, "otel.exporter: "+err.Error())
	}
	if c.OTel.SampleRatio < 0 || c.OTel.SampleRatio > 1 {
		errs = append(errs, fmt.Sprintf("otel.sample_ratio must be within [0, 1], got %v", c.OTel.SampleRatio))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation: %s", strings.Join(errs, "; "))
	}
	return nil
}
