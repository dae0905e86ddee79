package export

import (
	"github.com/hamba/avro/v2/ocf"

	"github.com/gmn-data-platform/gmntraj/encoding"
)

type options struct {
	artifact   *encoding.Artifact
	avroCodec  ocf.CodecName
	compressed bool
}

// Option configures the Avro and Parquet writers.
type Option func(*options)

// WithArtifact writes Avro files with a previously synthesized schema
// instead of generating one from the table.
func WithArtifact(a *encoding.Artifact) Option {
	return func(o *options) { o.artifact = a }
}

// WithAvroCodec sets the Avro container codec (default: deflate).
func WithAvroCodec(codec ocf.CodecName) Option {
	return func(o *options) { o.avroCodec = codec }
}

// WithCompression enables or disables Parquet snappy compression
// (default: enabled).
func WithCompression(enabled bool) Option {
	return func(o *options) { o.compressed = enabled }
}

func newOptions(opts []Option) options {
	o := options{avroCodec: ocf.Deflate, compressed: true}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}
