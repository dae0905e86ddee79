package export

import (
	"fmt"
	"io"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/gmn-data-platform/gmntraj/table"
)

// arrowType maps a dtype to the corresponding Arrow data type.
func arrowType(dt table.DType) arrow.DataType {
	switch dt {
	case table.Int, table.Int64:
		return arrow.PrimitiveTypes.Int64
	case table.Float64:
		return arrow.PrimitiveTypes.Float64
	case table.Bool:
		return arrow.FixedWidthTypes.Boolean
	case table.DateTime:
		return &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}
	default:
		return arrow.BinaryTypes.String
	}
}

// ArrowSchema returns the Arrow schema of t, index first.
func ArrowSchema(t *table.Table) *arrow.Schema {
	fields := make([]arrow.Field, 0, len(t.Columns)+1)
	fields = append(fields, arrow.Field{Name: t.IndexName, Type: arrow.BinaryTypes.String})
	for _, c := range t.Columns {
		fields = append(fields, arrow.Field{
			Name:     c.Name,
			Type:     arrowType(c.DType),
			Nullable: c.Spec.Nullable,
		})
	}
	md := arrow.NewMetadata([]string{"gmn.schema_version"}, []string{versionOf(t)})
	return arrow.NewSchema(fields, &md)
}

func versionOf(t *table.Table) string {
	if t.Version == nil {
		return ""
	}
	return t.Version.ID
}

// WriteArrow writes t as an Arrow IPC stream holding one record batch.
func WriteArrow(w io.Writer, t *table.Table) (int, error) {
	mem := memory.DefaultAllocator
	sc := ArrowSchema(t)
	b := array.NewRecordBuilder(mem, sc)
	defer b.Release()

	for i, id := range t.Index {
		b.Field(0).(*array.StringBuilder).Append(id)
		for j, c := range t.Columns {
			if err := appendArrow(b.Field(j+1), c.Values[i]); err != nil {
				return 0, fmt.Errorf("row %s column %s: %w", id, c.Name, err)
			}
		}
	}
	rec := b.NewRecord()
	defer rec.Release()

	iw := ipc.NewWriter(w, ipc.WithSchema(sc), ipc.WithAllocator(mem))
	if err := iw.Write(rec); err != nil {
		_ = iw.Close()
		return 0, fmt.Errorf("write arrow record: %w", err)
	}
	if err := iw.Close(); err != nil {
		return 0, fmt.Errorf("close arrow writer: %w", err)
	}
	return int(rec.NumRows()), nil
}

func appendArrow(fb array.Builder, v any) error {
	if v == nil {
		fb.AppendNull()
		return nil
	}
	switch x := v.(type) {
	case int:
		fb.(*array.Int64Builder).Append(int64(x))
	case int64:
		fb.(*array.Int64Builder).Append(x)
	case float64:
		fb.(*array.Float64Builder).Append(x)
	case bool:
		fb.(*array.BooleanBuilder).Append(x)
	case time.Time:
		fb.(*array.TimestampBuilder).Append(arrow.Timestamp(x.UnixMicro()))
	case string:
		fb.(*array.StringBuilder).Append(x)
	case table.Category:
		fb.(*array.StringBuilder).Append(string(x))
	default:
		return fmt.Errorf("unsupported value type %T", v)
	}
	return nil
}
