package config

import "time"

type Config struct {
	LogLevel  string         `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string         `mapstructure:"log_format" yaml:"log_format"`
	Timeout   time.Duration  `mapstructure:"timeout" yaml:"timeout"`
	Read      ReadConfig     `mapstructure:"read" yaml:"read"`
	Schema    SchemaConfig   `mapstructure:"schema" yaml:"schema"`
	Export    ExportConfig   `mapstructure:"export" yaml:"export"`
	Source    SourceConfig   `mapstructure:"source" yaml:"source"`
	Registry  RegistryConfig `mapstructure:"registry" yaml:"registry"`
	OTel      OTelConfig     `mapstructure:"otel" yaml:"otel"`
}

type OTelConfig struct {
	Exporter    string  `mapstructure:"exporter" yaml:"exporter"`
	Endpoint    string  `mapstructure:"endpoint" yaml:"endpoint"`
	SampleRatio float64 `mapstructure:"sample_ratio" yaml:"sample_ratio"`
}

// ReadConfig controls normalization and coercion.
type ReadConfig struct {
	Dialect           string `mapstructure:"dialect" yaml:"dialect"` // "data_directory" or "rest_api"
	Version           string `mapstructure:"version" yaml:"version"` // empty = infer
	CamelCase         bool   `mapstructure:"camel_case" yaml:"camel_case"`
	SerializationSafe bool   `mapstructure:"serialization_safe" yaml:"serialization_safe"`
}

type SchemaConfig struct {
	CacheDir   string `mapstructure:"cache_dir" yaml:"cache_dir"`
	Namespace  string `mapstructure:"namespace" yaml:"namespace"`
	RecordName string `mapstructure:"record_name" yaml:"record_name"`
}

type ExportConfig struct {
	Format     string   `mapstructure:"format" yaml:"format"` // jsonl, avro, parquet, arrow
	AvroCodec  string   `mapstructure:"avro_codec" yaml:"avro_codec"`
	Compress   bool     `mapstructure:"compress" yaml:"compress"`
	Filter     string   `mapstructure:"filter" yaml:"filter"` // CEL expression
	KeepFields []string `mapstructure:"keep_fields" yaml:"keep_fields"`
	DropFields []string `mapstructure:"drop_fields" yaml:"drop_fields"`
}

type SourceConfig struct {
	DirectoryURL    string        `mapstructure:"directory_url" yaml:"directory_url"`
	DataStoreURL    string        `mapstructure:"data_store_url" yaml:"data_store_url"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	RateLimit       float64       `mapstructure:"rate_limit" yaml:"rate_limit"` // requests per second, 0 = unlimited
	RateBurst       int           `mapstructure:"rate_burst" yaml:"rate_burst"`
	MaxRetries      int           `mapstructure:"max_retries" yaml:"max_retries"`
	BackoffBase     time.Duration `mapstructure:"backoff_base" yaml:"backoff_base"`
	BackoffCap      time.Duration `mapstructure:"backoff_cap" yaml:"backoff_cap"`
	BreakerFailures int           `mapstructure:"breaker_failures" yaml:"breaker_failures"`
	BreakerReset    time.Duration `mapstructure:"breaker_reset" yaml:"breaker_reset"`
	Concurrency     int           `mapstructure:"concurrency" yaml:"concurrency"`
	MaxPages        int           `mapstructure:"max_pages" yaml:"max_pages"`
}

type RegistryConfig struct {
	URL      string `mapstructure:"url" yaml:"url"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	Subject  string `mapstructure:"subject" yaml:"subject"`
}

func Default() Config {
	return Config{
		LogLevel:  "info",
		LogFormat: "text",
		Timeout:   10 * time.Minute,
		Read: ReadConfig{
			Dialect: "data_directory",
		},
		Schema: SchemaConfig{
			Namespace:  "gmn",
			RecordName: "TrajectorySummary",
		},
		Export: ExportConfig{
			Format:    "jsonl",
			AvroCodec: "deflate",
			Compress:  true,
		},
		Source: SourceConfig{
			DirectoryURL:    "https://globalmeteornetwork.org/data/traj_summary_data/",
			DataStoreURL:    "https://globalmeteornetwork.org/gmn_data_store",
			RequestTimeout:  60 * time.Second,
			RateLimit:       2,
			RateBurst:       2,
			MaxRetries:      3,
			BackoffBase:     500 * time.Millisecond,
			BackoffCap:      10 * time.Second,
			BreakerFailures: 5,
			BreakerReset:    30 * time.Second,
			Concurrency:     4,
			MaxPages:        100,
		},
		Registry: RegistryConfig{
			Subject: "gmn-trajectory-summary",
		},
		OTel: OTelConfig{
			Exporter:    "none",
			SampleRatio: 1.0,
		},
	}
}
