// Package testutil provides test helpers importable from any package.
package testutil

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"testing"

	"github.com/gmn-data-platform/gmntraj/model"
	"github.com/gmn-data-platform/gmntraj/schema"
)

// defaultToken returns a valid token for a column type.
func defaultToken(c schema.ColumnSpec) string {
	switch c.Type {
	case schema.Integer:
		return "3"
	case schema.Float:
		return "1.5"
	case schema.Datetime:
		return "2022-03-04 22:07:41.621138"
	case schema.Boolean:
		return "True"
	case schema.Category:
		return "PER"
	default:
		return "US0001,US0002"
	}
}

// DataDirectoryHeader returns the "#"-prefixed header lines of a data
// directory file for v.
func DataDirectoryHeader(v *schema.Version) []string {
	titles := []string{"Unique trajectory"}
	units := []string{"(identifier)"}
	for _, c := range v.FileColumns() {
		title, unit := c.Name, ""
		if i := strings.LastIndex(c.Name, " ("); i >= 0 {
			title, unit = c.Name[:i], c.Name[i+1:]
		}
		titles = append(titles, title)
		units = append(units, unit)
	}
	return []string{
		"# Summary generated on 2022-03-05 09:58:12.413208 UTC",
		"#",
		"# " + strings.Join(titles, " ; "),
		"# " + strings.Join(units, " ; "),
		"# " + strings.Repeat("-", 20),
	}
}

// DataDirectoryLine returns one data directory row for id. Columns not in
// overrides (keyed by camel-case name) get a valid default token.
func DataDirectoryLine(v *schema.Version, id string, overrides map[string]string) string {
	tokens := []string{id}
	for _, c := range v.FileColumns() {
		tok, ok := overrides[c.CamelCaseName]
		if !ok {
			tok = defaultToken(c)
		}
		tokens = append(tokens, tok)
	}
	return "  " + strings.Join(tokens, "; ")
}

// RESTHeader returns the CSV header line of the REST dialect for v.
func RESTHeader(v *schema.Version) string {
	return csvLine(append([]string{v.Index.CamelCaseName}, v.Names(true)...))
}

// RESTLine returns one REST CSV row for id. Derived columns default to the
// version identifier.
func RESTLine(v *schema.Version, id string, overrides map[string]string) string {
	tokens := []string{id}
	for _, c := range v.Columns {
		tok, ok := overrides[c.CamelCaseName]
		switch {
		case ok:
		case c.Derived:
			tok = v.ID
		default:
			tok = defaultToken(c)
		}
		tokens = append(tokens, tok)
	}
	return csvLine(tokens)
}

func csvLine(fields []string) string {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(fields)
	w.Flush()
	return strings.TrimSuffix(buf.String(), "\n")
}

// IDs returns n distinct trajectory identifiers in ascending order.
func IDs(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("20220304%06d_t%04d", 220000+i, i)
	}
	return out
}

// ModelLines returns the lines of the model file for version.
func ModelLines(t testing.TB, version string) []string {
	t.Helper()
	data, err := model.TrajectorySummary(version)
	if err != nil {
		t.Fatalf("model file: %v", err)
	}
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}
