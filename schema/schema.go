// Package schema holds the versioned column definitions of the GMN
// trajectory summary format. Each Version is an ordered, immutable list of
// ColumnSpecs; a Registry maps version identifiers to their definitions and
// resolves or infers the version of incoming data.
package schema

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// SemanticType is the declared type of a column's values.
type SemanticType string

const (
	Integer  SemanticType = "integer"
	Float    SemanticType = "float"
	String   SemanticType = "string"
	Datetime SemanticType = "datetime"
	Category SemanticType = "category"
	Boolean  SemanticType = "boolean"
)

// ColumnSpec describes a column within a schema version.
type ColumnSpec struct {
	Name          string       `json:"name"`
	CamelCaseName string       `json:"camel_case_name"`
	Type          SemanticType `json:"type"`
	Nullable      bool         `json:"nullable,omitempty"`
	Position      int          `json:"position"`
	// Derived columns are not present in data directory files; the reader
	// fills them in.
	Derived bool `json:"derived,omitempty"`
}

// Version is one generation of the trajectory summary format.
type Version struct {
	ID      string       `json:"version"`
	Index   ColumnSpec   `json:"index"`
	Columns []ColumnSpec `json:"columns"`
	Hash    string       `json:"hash"` // SHA-256 of canonical column definitions
}

// NewVersion builds a Version, assigning positions from the column order.
func NewVersion(id string, index ColumnSpec, columns []ColumnSpec) (*Version, error) {
	cols := make([]ColumnSpec, len(columns))
	copy(cols, columns)
	for i := range cols {
		cols[i].Position = i
	}
	v := &Version{ID: id, Index: index, Columns: cols}
	if err := v.Validate(); err != nil {
		return nil, err
	}
	v.Hash = ComputeHash(append([]ColumnSpec{index}, cols...))
	return v, nil
}

// Validate checks that positions are contiguous from zero and that plain and
// camel-case names are unique, including the index.
func (v *Version) Validate() error {
	if v.ID == "" {
		return fmt.Errorf("schema version: empty id")
	}
	if _, err := parseVersionID(v.ID); err != nil {
		return fmt.Errorf("schema version %q: %w", v.ID, err)
	}
	if v.Index.Name == "" || v.Index.CamelCaseName == "" {
		return fmt.Errorf("schema version %s: index column needs a name and a camel case name", v.ID)
	}
	names := map[string]bool{v.Index.Name: true}
	camel := map[string]bool{v.Index.CamelCaseName: true}
	for i, c := range v.Columns {
		if c.Position != i {
			return fmt.Errorf("schema version %s: column %q has position %d, want %d", v.ID, c.Name, c.Position, i)
		}
		if c.Name == "" || c.CamelCaseName == "" {
			return fmt.Errorf("schema version %s: column %d needs a name and a camel case name", v.ID, i)
		}
		if names[c.Name] {
			return fmt.Errorf("schema version %s: duplicate column name %q", v.ID, c.Name)
		}
		if camel[c.CamelCaseName] {
			return fmt.Errorf("schema version %s: duplicate camel case name %q", v.ID, c.CamelCaseName)
		}
		switch c.Type {
		case Integer, Float, String, Datetime, Category, Boolean:
		default:
			return fmt.Errorf("schema version %s: column %q has unknown type %q", v.ID, c.Name, c.Type)
		}
		names[c.Name] = true
		camel[c.CamelCaseName] = true
	}
	return nil
}

// FileColumns returns the columns carried by data directory files, in order.
func (v *Version) FileColumns() []ColumnSpec {
	out := make([]ColumnSpec, 0, len(v.Columns))
	for _, c := range v.Columns {
		if !c.Derived {
			out = append(out, c)
		}
	}
	return out
}

// Names returns the column names in position order, excluding the index.
func (v *Version) Names(camelCase bool) []string {
	out := make([]string, len(v.Columns))
	for i, c := range v.Columns {
		if camelCase {
			out[i] = c.CamelCaseName
		} else {
			out[i] = c.Name
		}
	}
	return out
}

// Column looks a column up by its plain or camel-case name.
func (v *Version) Column(name string) (ColumnSpec, bool) {
	for _, c := range v.Columns {
		if c.Name == name || c.CamelCaseName == name {
			return c, true
		}
	}
	return ColumnSpec{}, false
}

// ComputeHash returns a deterministic SHA-256 hash of the column definitions.
// Two versions with the same columns (in order) produce the same hash.
func ComputeHash(columns []ColumnSpec) string {
	data, _ := json.Marshal(columns)
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h)
}

// CompareIDs orders version identifiers numerically component by component:
// "2.0" < "2.1" < "10.0". Identifiers that do not parse sort after valid ones
// and among themselves lexically.
func CompareIDs(a, b string) int {
	pa, errA := parseVersionID(a)
	pb, errB := parseVersionID(b)
	switch {
	case errA != nil && errB != nil:
		return strings.Compare(a, b)
	case errA != nil:
		return 1
	case errB != nil:
		return -1
	}
	for i := 0; i < len(pa) || i < len(pb); i++ {
		var x, y int
		if i < len(pa) {
			x = pa[i]
		}
		if i < len(pb) {
			y = pb[i]
		}
		if x != y {
			if x < y {
				return -1
			}
			return 1
		}
	}
	return 0
}

func parseVersionID(id string) ([]int, error) {
	parts := strings.Split(id, ".")
	out := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid version component %q", p)
		}
		out[i] = n
	}
	return out, nil
}
