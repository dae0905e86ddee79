package export

import (
	"fmt"
	"io"

	"github.com/hamba/avro/v2/ocf"

	"github.com/gmn-data-platform/gmntraj/encoding"
	"github.com/gmn-data-platform/gmntraj/table"
)

// WriteAvro writes t as an Avro object container file. The table must be
// serialization-safe.
func WriteAvro(w io.Writer, t *table.Table, opts ...Option) (int, error) {
	if !t.SerializationSafe {
		return 0, encoding.ErrNotSerializationSafe
	}
	o := newOptions(opts)

	var schemaJSON string
	if o.artifact != nil {
		schemaJSON = string(o.artifact.JSON)
	} else {
		s, err := encoding.GenerateAvroSchema("gmn", "TrajectorySummary", t)
		if err != nil {
			return 0, err
		}
		schemaJSON = s
	}

	enc, err := ocf.NewEncoder(schemaJSON, w, ocf.WithCodec(o.avroCodec))
	if err != nil {
		return 0, fmt.Errorf("create avro encoder: %w", err)
	}
	for i := range t.Index {
		if err := enc.Encode(encoding.Record(t, i)); err != nil {
			_ = enc.Close()
			return i, fmt.Errorf("encode row %s: %w", t.Index[i], err)
		}
	}
	if err := enc.Close(); err != nil {
		return len(t.Index), fmt.Errorf("close avro encoder: %w", err)
	}
	return len(t.Index), nil
}
