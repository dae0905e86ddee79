package encoding

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gmn-data-platform/gmntraj/schema"
	"github.com/gmn-data-platform/gmntraj/table"
)

// dtypeToAvro maps table dtypes to their Avro schema representation.
// Each value is either a string (simple type) or a map (logical type).
var dtypeToAvro = map[table.DType]any{
	table.Int64:    "long",
	table.Float64:  "double",
	table.String:   "string",
	table.Bool:     "boolean",
	table.DateTime: map[string]any{"type": "long", "logicalType": "timestamp-micros"},
}

// AvroTypeFor returns the Avro type for a dtype. Only serialization-safe
// dtypes have one.
func AvroTypeFor(dt table.DType) (any, bool) {
	t, ok := dtypeToAvro[dt]
	return t, ok
}

// GenerateAvroSchema derives a record schema from a serialization-safe
// table: the index first, then every column in position order. Nullable
// columns become ["null", <type>] unions with a null default.
func GenerateAvroSchema(namespace, name string, t *table.Table) (string, error) {
	fields := make([]map[string]any, 0, len(t.Columns)+1)
	fields = append(fields, map[string]any{
		"name": sanitizeAvroName(t.IndexName),
		"type": "string",
	})

	seen := map[string]string{fields[0]["name"].(string): t.IndexName}
	for _, col := range t.Columns {
		avroType, ok := AvroTypeFor(col.DType)
		if !ok {
			return "", fmt.Errorf("column %q: dtype %s has no avro type", col.Name, col.DType)
		}
		fieldName := sanitizeAvroName(col.Name)
		if prev, dup := seen[fieldName]; dup {
			return "", fmt.Errorf("columns %q and %q both map to avro field %q", prev, col.Name, fieldName)
		}
		seen[fieldName] = col.Name

		field := map[string]any{"name": fieldName}
		if col.Spec.Nullable {
			field["type"] = []any{"null", avroType}
			field["default"] = nil
		} else {
			field["type"] = avroType
		}
		fields = append(fields, field)
	}

	s := map[string]any{
		"type":      "record",
		"name":      sanitizeAvroName(name),
		"namespace": namespace,
		"fields":    fields,
	}

	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshal avro schema: %w", err)
	}
	return string(data), nil
}

// FieldNames returns the Avro field names a schema for v carries: the
// index followed by the columns.
func FieldNames(v *schema.Version, camelCase bool) []string {
	names := make([]string, 0, len(v.Columns)+1)
	if camelCase {
		names = append(names, sanitizeAvroName(v.Index.CamelCaseName))
	} else {
		names = append(names, sanitizeAvroName(v.Index.Name))
	}
	for _, n := range v.Names(camelCase) {
		names = append(names, sanitizeAvroName(n))
	}
	return names
}

// sanitizeAvroName replaces characters invalid in Avro names with underscores.
func sanitizeAvroName(name string) string {
	var b strings.Builder
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			b.WriteRune(r)
		case r >= '0' && r <= '9' && i > 0:
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}

// Record returns row i of t as an Avro record matching GenerateAvroSchema.
func Record(t *table.Table, i int) map[string]any {
	rec := make(map[string]any, len(t.Columns)+1)
	rec[sanitizeAvroName(t.IndexName)] = t.Index[i]
	for _, col := range t.Columns {
		rec[sanitizeAvroName(col.Name)] = col.Values[i]
	}
	return rec
}

