// Package transform composes table-to-table steps applied between coercion
// and export: column projection and row filters.
package transform

import (
	"fmt"
	"slices"

	"github.com/gmn-data-platform/gmntraj/filter"
	"github.com/gmn-data-platform/gmntraj/table"
)

// TransformFunc transforms a table. It must not modify its input.
type TransformFunc func(*table.Table) (*table.Table, error)

// Chain composes transforms left-to-right. Short-circuits on error.
// Returns nil if no functions are provided.
func Chain(fns ...TransformFunc) TransformFunc {
	if len(fns) == 0 {
		return nil
	}
	if len(fns) == 1 {
		return fns[0]
	}
	return func(t *table.Table) (*table.Table, error) {
		var err error
		for _, fn := range fns {
			t, err = fn(t)
			if err != nil {
				return nil, err
			}
		}
		return t, nil
	}
}

// project returns a shallow copy of t holding the columns keep accepts.
func project(t *table.Table, keep func(table.Column) bool) *table.Table {
	out := *t
	out.Columns = nil
	for _, c := range t.Columns {
		if keep(c) {
			out.Columns = append(out.Columns, c)
		}
	}
	return &out
}

func matches(c table.Column, names []string) bool {
	return slices.Contains(names, c.Name) || slices.Contains(names, c.Spec.Name) || slices.Contains(names, c.Spec.CamelCaseName)
}

// DropColumns returns a transform that removes the named columns. Names
// may be table, descriptive or camel-case names. Missing names are ignored.
func DropColumns(columns ...string) TransformFunc {
	return func(t *table.Table) (*table.Table, error) {
		return project(t, func(c table.Column) bool { return !matches(c, columns) }), nil
	}
}

// KeepColumns returns a transform that keeps only the named columns, in
// table order. Unknown names are an error.
func KeepColumns(columns ...string) TransformFunc {
	return func(t *table.Table) (*table.Table, error) {
		for _, name := range columns {
			if _, ok := t.Column(name); !ok {
				return nil, fmt.Errorf("keep columns: unknown column %q", name)
			}
		}
		return project(t, func(c table.Column) bool { return matches(c, columns) }), nil
	}
}

// FilterCEL returns a transform that keeps the rows for which the CEL
// expression is true. The expression is compiled against the version of
// the first table it sees.
func FilterCEL(expr string) TransformFunc {
	var prg *filter.Program
	return func(t *table.Table) (*table.Table, error) {
		if prg == nil || prg.Version() != t.Version.ID {
			p, err := filter.Compile(expr, t.Version)
			if err != nil {
				return nil, fmt.Errorf("compile filter expression: %w", err)
			}
			prg = p
		}
		out, _, err := prg.Apply(t, nil)
		return out, err
	}
}

// FilterFieldIn returns a transform that keeps rows whose column value,
// compared as fmt-printed strings, is in the allowed set.
func FilterFieldIn(column string, allowed ...any) TransformFunc {
	set := make(map[string]struct{}, len(allowed))
	for _, v := range allowed {
		set[fmt.Sprintf("%v", v)] = struct{}{}
	}
	return func(t *table.Table) (*table.Table, error) {
		c, ok := t.Column(column)
		if !ok {
			return nil, fmt.Errorf("filter: unknown column %q", column)
		}
		return t.Select(func(i int) bool {
			if c.Values[i] == nil {
				return false
			}
			_, found := set[fmt.Sprintf("%v", c.Values[i])]
			return found
		}), nil
	}
}
