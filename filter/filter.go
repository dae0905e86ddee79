// Package filter selects table rows with CEL expressions.
//
// Every column of the schema version is a variable named by its camel-case
// name, the index included:
//
//	iau_code == "PER" && vgeo_km_s != null && vgeo_km_s > 55.0
//	beginning_utc_time > timestamp("2022-03-04T23:00:00Z")
//
// Nullable columns are dynamically typed and null when missing. Rows whose
// evaluation fails, such as comparing a null value with a number, are not
// selected.
package filter

import (
	"fmt"
	"log/slog"

	"github.com/google/cel-go/cel"

	"github.com/gmn-data-platform/gmntraj/schema"
	"github.com/gmn-data-platform/gmntraj/table"
)

// Program is a compiled CEL expression ready for evaluation.
type Program struct {
	expr    string
	version *schema.Version
	program cel.Program
}

// celType maps a column to its declared CEL type.
func celType(c schema.ColumnSpec) *cel.Type {
	if c.Nullable {
		return cel.DynType
	}
	switch c.Type {
	case schema.Integer:
		return cel.IntType
	case schema.Float:
		return cel.DoubleType
	case schema.Datetime:
		return cel.TimestampType
	case schema.Boolean:
		return cel.BoolType
	default:
		return cel.StringType
	}
}

// Compile compiles a CEL expression over the columns of v into a Program.
// The expression must return bool.
func Compile(expr string, v *schema.Version) (*Program, error) {
	opts := []cel.EnvOption{cel.Variable(v.Index.CamelCaseName, celType(v.Index))}
	for _, c := range v.Columns {
		opts = append(opts, cel.Variable(c.CamelCaseName, celType(c)))
	}
	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("create cel env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile cel expression: %w", issues.Err())
	}

	// Verify the result type is bool.
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("cel expression must return bool, got %v", ast.OutputType())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program cel expression: %w", err)
	}

	return &Program{expr: expr, version: v, program: prg}, nil
}

// Version returns the schema version the program was compiled for.
func (p *Program) Version() string { return p.version.ID }

// String returns the source expression.
func (p *Program) String() string { return p.expr }

// Eval evaluates the expression against row i of t.
func (p *Program) Eval(t *table.Table, i int) (bool, error) {
	vars := make(map[string]any, len(t.Columns)+1)
	vars[t.Version.Index.CamelCaseName] = t.Index[i]
	for _, c := range t.Columns {
		vars[c.Spec.CamelCaseName] = activationValue(c.Values[i])
	}

	out, _, err := p.program.Eval(vars)
	if err != nil {
		return false, fmt.Errorf("eval cel: %w", err)
	}

	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("cel result is not bool: %T", out.Value())
	}
	return b, nil
}

func activationValue(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case table.Category:
		return string(x)
	default:
		return v
	}
}

// Apply returns the rows of t selected by p, in order, and the number of
// rows whose evaluation failed.
func (p *Program) Apply(t *table.Table, logger *slog.Logger) (*table.Table, int, error) {
	if t.Version.ID != p.version.ID {
		return nil, 0, fmt.Errorf("filter compiled for schema version %s, table has %s", p.version.ID, t.Version.ID)
	}
	if logger == nil {
		logger = slog.Default()
	}

	failed := 0
	out := t.Select(func(i int) bool {
		ok, err := p.Eval(t, i)
		if err != nil {
			failed++
			logger.Debug("filter evaluation failed", "component", "filter", "row", t.Index[i], "error", err)
			return false
		}
		return ok
	})
	return out, failed, nil
}
