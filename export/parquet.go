package export

import (
	"fmt"
	"io"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/gmn-data-platform/gmntraj/table"
)

// parquetNode returns the Parquet node for a dtype.
func parquetNode(dt table.DType) parquet.Node {
	switch dt {
	case table.Int, table.Int64:
		return parquet.Int(64)
	case table.Float64:
		return parquet.Leaf(parquet.DoubleType)
	case table.Bool:
		return parquet.Leaf(parquet.BooleanType)
	case table.DateTime:
		return parquet.Timestamp(parquet.Microsecond)
	default:
		return parquet.String()
	}
}

// ParquetSchema returns the Parquet schema of t: the index and every
// column, nullable columns optional.
func ParquetSchema(t *table.Table) *parquet.Schema {
	group := parquet.Group{t.IndexName: parquet.String()}
	for _, c := range t.Columns {
		node := parquetNode(c.DType)
		if c.Spec.Nullable {
			node = parquet.Optional(node)
		}
		group[c.Name] = node
	}
	return parquet.NewSchema("trajectory_summary", group)
}

// WriteParquet writes t as a Parquet file.
func WriteParquet(w io.Writer, t *table.Table, opts ...Option) (int, error) {
	o := newOptions(opts)
	sc := ParquetSchema(t)

	// Group fields are ordered by name; map each leaf back to its source.
	fields := sc.Fields()
	sources := make([]func(i int) any, len(fields))
	optional := make([]bool, len(fields))
	for k, f := range fields {
		optional[k] = f.Optional()
		if f.Name() == t.IndexName {
			sources[k] = func(i int) any { return t.Index[i] }
			continue
		}
		col, ok := t.Column(f.Name())
		if !ok {
			return 0, fmt.Errorf("parquet field %q has no column", f.Name())
		}
		sources[k] = func(i int) any { return col.Values[i] }
	}

	writerOpts := []parquet.WriterOption{sc}
	if o.compressed {
		writerOpts = append(writerOpts, parquet.Compression(&parquet.Snappy))
	}
	pw := parquet.NewWriter(w, writerOpts...)

	rows := make([]parquet.Row, len(t.Index))
	for i := range t.Index {
		row := make(parquet.Row, len(fields))
		for k := range fields {
			v, err := parquetValue(sources[k](i))
			if err != nil {
				return 0, fmt.Errorf("row %s field %s: %w", t.Index[i], fields[k].Name(), err)
			}
			def := 0
			if optional[k] && !v.IsNull() {
				def = 1
			}
			row[k] = v.Level(0, def, k)
		}
		rows[i] = row
	}

	if _, err := pw.WriteRows(rows); err != nil {
		return 0, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := pw.Close(); err != nil {
		return 0, fmt.Errorf("close parquet writer: %w", err)
	}
	return len(rows), nil
}

func parquetValue(v any) (parquet.Value, error) {
	switch x := v.(type) {
	case nil:
		return parquet.NullValue(), nil
	case int:
		return parquet.Int64Value(int64(x)), nil
	case int64:
		return parquet.Int64Value(x), nil
	case float64:
		return parquet.DoubleValue(x), nil
	case bool:
		return parquet.BooleanValue(x), nil
	case time.Time:
		return parquet.Int64Value(x.UnixMicro()), nil
	case string:
		return parquet.ByteArrayValue([]byte(x)), nil
	case table.Category:
		return parquet.ByteArrayValue([]byte(x)), nil
	default:
		return parquet.Value{}, fmt.Errorf("unsupported value type %T", v)
	}
}
