package export

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/gmn-data-platform/gmntraj/table"
)

// WriteJSONLines writes one JSON object per row, keys in column order,
// index first. Nulls are written as null, datetimes as RFC 3339.
func WriteJSONLines(w io.Writer, t *table.Table) (int, error) {
	bw := bufio.NewWriter(w)
	keys := make([][]byte, len(t.Columns)+1)
	var err error
	if keys[0], err = json.Marshal(t.IndexName); err != nil {
		return 0, err
	}
	for j, c := range t.Columns {
		if keys[j+1], err = json.Marshal(c.Name); err != nil {
			return 0, err
		}
	}

	for i, id := range t.Index {
		bw.WriteByte('{')
		if err := writePair(bw, keys[0], id); err != nil {
			return i, err
		}
		for j, c := range t.Columns {
			bw.WriteByte(',')
			if err := writePair(bw, keys[j+1], c.Values[i]); err != nil {
				return i, fmt.Errorf("row %s column %s: %w", id, c.Name, err)
			}
		}
		bw.WriteString("}\n")
	}
	if err := bw.Flush(); err != nil {
		return len(t.Index), fmt.Errorf("flush json lines: %w", err)
	}
	return len(t.Index), nil
}

func writePair(bw *bufio.Writer, key []byte, v any) error {
	val, err := json.Marshal(v)
	if err != nil {
		return err
	}
	bw.Write(key)
	bw.WriteByte(':')
	bw.Write(val)
	return nil
}
