// Package table holds typed trajectory summary tables produced by Coerce.
package table

import (
	"github.com/gmn-data-platform/gmntraj/schema"
)

// Category is a value drawn from a small set, such as a shower code.
type Category string

// DType is the Go representation of a column's values.
type DType string

const (
	Int      DType = "int"
	Int64    DType = "int64"
	Float64  DType = "float64"
	String   DType = "string"
	Bool     DType = "bool"
	DateTime DType = "datetime"
	Cat      DType = "category"
)

// Column is one typed column. Null values are nil.
type Column struct {
	Name   string
	Spec   schema.ColumnSpec
	DType  DType
	Values []any
}

// Table is a typed, index-aligned trajectory summary table.
type Table struct {
	Version   *schema.Version
	IndexName string
	Index     []string
	Columns   []Column

	CamelCase         bool
	SerializationSafe bool
}

// Shape returns the number of rows and columns, index excluded.
func (t *Table) Shape() (rows, cols int) {
	return len(t.Index), len(t.Columns)
}

// ColumnNames returns the column names in position order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// DTypes returns the dtype of every column, aligned with ColumnNames.
func (t *Table) DTypes() []DType {
	out := make([]DType, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.DType
	}
	return out
}

// Column looks up a column by its table name, descriptive name or
// camel-case name.
func (t *Table) Column(name string) (*Column, bool) {
	for i := range t.Columns {
		c := &t.Columns[i]
		if c.Name == name || c.Spec.Name == name || c.Spec.CamelCaseName == name {
			return c, true
		}
	}
	return nil, false
}

// Value returns the value at row i of column j.
func (t *Table) Value(i, j int) any {
	return t.Columns[j].Values[i]
}

// Row returns row i keyed by column name, index included.
func (t *Table) Row(i int) map[string]any {
	row := make(map[string]any, len(t.Columns)+1)
	row[t.IndexName] = t.Index[i]
	for _, c := range t.Columns {
		row[c.Name] = c.Values[i]
	}
	return row
}

// Rows returns every row as produced by Row.
func (t *Table) Rows() []map[string]any {
	out := make([]map[string]any, len(t.Index))
	for i := range t.Index {
		out[i] = t.Row(i)
	}
	return out
}

// Select returns a new table holding the rows for which keep returns true,
// in their original order. Values are shared, not copied.
func (t *Table) Select(keep func(i int) bool) *Table {
	var rows []int
	for i := range t.Index {
		if keep(i) {
			rows = append(rows, i)
		}
	}

	out := &Table{
		Version:           t.Version,
		IndexName:         t.IndexName,
		Index:             make([]string, len(rows)),
		Columns:           make([]Column, len(t.Columns)),
		CamelCase:         t.CamelCase,
		SerializationSafe: t.SerializationSafe,
	}
	for k, i := range rows {
		out.Index[k] = t.Index[i]
	}
	for j, c := range t.Columns {
		vals := make([]any, len(rows))
		for k, i := range rows {
			vals[k] = c.Values[i]
		}
		out.Columns[j] = Column{Name: c.Name, Spec: c.Spec, DType: c.DType, Values: vals}
	}
	return out
}
