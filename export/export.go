// Package export writes typed trajectory summary tables to Avro object
// container files, Parquet, Arrow IPC streams and JSON lines.
package export

import (
	"fmt"
	"io"

	"github.com/gmn-data-platform/gmntraj/metrics"
	"github.com/gmn-data-platform/gmntraj/table"
)

// Format identifies an export file format.
type Format string

const (
	FormatJSONLines Format = "jsonl"
	FormatAvro      Format = "avro"
	FormatParquet   Format = "parquet"
	FormatArrow     Format = "arrow"
)

// ParseFormat parses a format name. Returns an error for unknown names.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "jsonl", "json", "":
		return FormatJSONLines, nil
	case "avro":
		return FormatAvro, nil
	case "parquet":
		return FormatParquet, nil
	case "arrow", "ipc":
		return FormatArrow, nil
	default:
		return "", fmt.Errorf("unknown export format: %q (expected jsonl, avro, parquet or arrow)", s)
	}
}

// Extension returns the file name extension of f, dot included.
func (f Format) Extension() string {
	switch f {
	case FormatAvro:
		return ".avro"
	case FormatParquet:
		return ".parquet"
	case FormatArrow:
		return ".arrow"
	default:
		return ".jsonl"
	}
}

// Write writes t to w in format f and returns the number of rows written.
func Write(w io.Writer, t *table.Table, f Format, opts ...Option) (int, error) {
	var (
		n   int
		err error
	)
	switch f {
	case FormatJSONLines:
		n, err = WriteJSONLines(w, t)
	case FormatAvro:
		n, err = WriteAvro(w, t, opts...)
	case FormatParquet:
		n, err = WriteParquet(w, t, opts...)
	case FormatArrow:
		n, err = WriteArrow(w, t)
	default:
		return 0, fmt.Errorf("unknown export format: %q", f)
	}
	if err != nil {
		return n, fmt.Errorf("export %s: %w", f, err)
	}
	metrics.RowsExported.WithLabelValues(string(f)).Add(float64(n))
	return n, nil
}
