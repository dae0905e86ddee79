// Package encoding derives Avro schemas from typed trajectory summary tables
// and caches them in memory and on disk.
package encoding

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/hamba/avro/v2"
	"github.com/hamba/avro/v2/ocf"

	"github.com/gmn-data-platform/gmntraj/metrics"
	"github.com/gmn-data-platform/gmntraj/table"
)

// ErrNotSerializationSafe is returned for tables coerced without
// SerializationSafe; their int and category dtypes have no Avro type.
var ErrNotSerializationSafe = errors.New("table is not serialization-safe")

const schemaMetaKey = "avro.schema"

// Artifact is a synthesized Avro schema.
type Artifact struct {
	Version     string
	JSON        []byte
	Schema      avro.Schema
	Fingerprint string // hex SHA-256 of the canonical form
	ColumnHash  string // schema.Version.Hash the schema was derived from
}

// NewArtifact parses schema JSON into an Artifact for version.
func NewArtifact(version string, data []byte) (*Artifact, error) {
	s, err := avro.Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("parse avro schema: %w", err)
	}
	fp := s.Fingerprint()
	return &Artifact{
		Version:     version,
		JSON:        data,
		Schema:      s,
		Fingerprint: hex.EncodeToString(fp[:]),
	}, nil
}

// Fields returns the record field names in order, or nil when the schema
// is not a record.
func (a *Artifact) Fields() []string {
	rs, ok := a.Schema.(*avro.RecordSchema)
	if !ok {
		return nil
	}
	names := make([]string, len(rs.Fields()))
	for i, f := range rs.Fields() {
		names[i] = f.Name()
	}
	return names
}

// Synthesizer derives Avro schemas from tables through a container file
// round trip: the candidate schema is written with every row to a
// temporary object container file and the schema stored in that file's
// header is returned.
type Synthesizer struct {
	namespace string
	name      string
	codec     ocf.CodecName
	tempDir   string
	logger    *slog.Logger
}

// SynthOption configures a Synthesizer.
type SynthOption func(*Synthesizer)

// WithNamespace sets the Avro schema namespace (default: "gmn").
func WithNamespace(ns string) SynthOption {
	return func(s *Synthesizer) { s.namespace = ns }
}

// WithRecordName sets the Avro record name (default: "TrajectorySummary").
func WithRecordName(name string) SynthOption {
	return func(s *Synthesizer) { s.name = name }
}

// WithCodec sets the container codec used for the round trip (default: null).
func WithCodec(codec ocf.CodecName) SynthOption {
	return func(s *Synthesizer) { s.codec = codec }
}

// WithTempDir sets where the temporary container file is created
// (default: os.TempDir()).
func WithTempDir(dir string) SynthOption {
	return func(s *Synthesizer) { s.tempDir = dir }
}

// NewSynthesizer creates a Synthesizer.
func NewSynthesizer(logger *slog.Logger, opts ...SynthOption) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Synthesizer{
		namespace: "gmn",
		name:      "TrajectorySummary",
		codec:     ocf.Null,
		logger:    logger.With("component", "schema_synthesizer"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Synthesize derives the Avro schema of t. The table must be
// serialization-safe; every row is encoded, so a value that does not fit
// its column's type fails here rather than in a later writer.
func (s *Synthesizer) Synthesize(t *table.Table) (*Artifact, error) {
	if !t.SerializationSafe {
		return nil, ErrNotSerializationSafe
	}

	candidate, err := GenerateAvroSchema(s.namespace, s.name, t)
	if err != nil {
		return nil, fmt.Errorf("generate avro schema: %w", err)
	}

	f, err := os.CreateTemp(s.tempDir, "gmntraj-schema-*.avro")
	if err != nil {
		return nil, fmt.Errorf("create temp container: %w", err)
	}
	defer func() {
		_ = f.Close()
		_ = os.Remove(f.Name())
	}()

	if err := s.writeContainer(f, candidate, t); err != nil {
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind temp container: %w", err)
	}
	data, rows, err := readContainer(f)
	if err != nil {
		return nil, err
	}
	if rows != len(t.Index) {
		return nil, fmt.Errorf("container round trip: read %d rows, wrote %d", rows, len(t.Index))
	}

	var version, hash string
	if t.Version != nil {
		version, hash = t.Version.ID, t.Version.Hash
	}
	a, err := NewArtifact(version, data)
	if err != nil {
		return nil, err
	}
	a.ColumnHash = hash

	metrics.SchemaSynthesized.Inc()
	s.logger.Debug("synthesized schema",
		"version", version,
		"rows", rows,
		"fields", len(a.Fields()),
		"fingerprint", a.Fingerprint,
	)
	return a, nil
}

func (s *Synthesizer) writeContainer(w io.Writer, schemaJSON string, t *table.Table) error {
	enc, err := ocf.NewEncoder(schemaJSON, w, ocf.WithCodec(s.codec))
	if err != nil {
		return fmt.Errorf("create container encoder: %w", err)
	}
	for i := range t.Index {
		if err := enc.Encode(Record(t, i)); err != nil {
			return fmt.Errorf("encode row %s: %w", t.Index[i], err)
		}
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close container encoder: %w", err)
	}
	return nil
}

// readContainer returns the schema stored in a container header and the
// number of records in the file.
func readContainer(r io.Reader) ([]byte, int, error) {
	dec, err := ocf.NewDecoder(r)
	if err != nil {
		return nil, 0, fmt.Errorf("open container: %w", err)
	}
	data, ok := dec.Metadata()[schemaMetaKey]
	if !ok {
		return nil, 0, errors.New("container header has no schema")
	}

	rows := 0
	for dec.HasNext() {
		var rec map[string]any
		if err := dec.Decode(&rec); err != nil {
			return nil, 0, fmt.Errorf("decode row %d: %w", rows, err)
		}
		rows++
	}
	if err := dec.Error(); err != nil {
		return nil, 0, fmt.Errorf("read container: %w", err)
	}
	return data, rows, nil
}
