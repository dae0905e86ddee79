package table

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gmn-data-platform/gmntraj/gmnerr"
	"github.com/gmn-data-platform/gmntraj/metrics"
	"github.com/gmn-data-platform/gmntraj/reader"
	"github.com/gmn-data-platform/gmntraj/schema"
)

// Options configures Coerce.
type Options struct {
	// CamelCase renames the index and columns to their camel-case names.
	CamelCase bool
	// SerializationSafe narrows dtypes to ones every writer accepts:
	// integers become int64 and categories plain strings.
	SerializationSafe bool
	Logger            *slog.Logger
}

// nullTokens are the tokens read as a missing value.
var nullTokens = map[string]bool{
	"":     true,
	"nan":  true,
	"NaN":  true,
	"...":  true,
	"None": true,
	"null": true,
}

// IsNull reports whether tok denotes a missing value.
func IsNull(tok string) bool { return nullTokens[tok] }

var datetimeLayouts = []string{
	"2006-01-02 15:04:05.999999",
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05.999999Z07:00",
}

var errNull = errors.New("null value in non-nullable column")

// Coerce converts every token of rec to its column's declared type.
// A single bad token rejects the whole batch with *gmnerr.TypeMismatchError.
func Coerce(rec *reader.Records, opts Options) (*Table, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "coerce")

	v := rec.Version
	t := &Table{
		Version:           v,
		IndexName:         columnName(v.Index, opts.CamelCase),
		Index:             make([]string, len(rec.Index)),
		Columns:           make([]Column, len(v.Columns)),
		CamelCase:         opts.CamelCase,
		SerializationSafe: opts.SerializationSafe,
	}
	copy(t.Index, rec.Index)

	for j, spec := range v.Columns {
		col := Column{
			Name:   columnName(spec, opts.CamelCase),
			Spec:   spec,
			DType:  dtypeFor(spec.Type, opts.SerializationSafe),
			Values: make([]any, len(rec.Rows)),
		}
		for i, row := range rec.Rows {
			val, err := parseToken(row[j], spec, opts.SerializationSafe)
			if err != nil {
				metrics.CoerceErrors.Inc()
				return nil, fmt.Errorf("coerce: %w", &gmnerr.TypeMismatchError{
					Column: col.Name,
					Type:   string(spec.Type),
					Row:    rec.Index[i],
					Token:  row[j],
					Err:    err,
				})
			}
			col.Values[i] = val
		}
		t.Columns[j] = col
	}

	logger.Debug("coerced table",
		"version", v.ID,
		"rows", len(t.Index),
		"columns", len(t.Columns),
		"camel_case", opts.CamelCase,
		"serialization_safe", opts.SerializationSafe,
	)
	return t, nil
}

func columnName(spec schema.ColumnSpec, camel bool) string {
	if camel {
		return spec.CamelCaseName
	}
	return spec.Name
}

// dtypeFor maps a semantic type to the dtype Coerce produces for it.
func dtypeFor(st schema.SemanticType, safe bool) DType {
	switch st {
	case schema.Integer:
		if safe {
			return Int64
		}
		return Int
	case schema.Float:
		return Float64
	case schema.Datetime:
		return DateTime
	case schema.Boolean:
		return Bool
	case schema.Category:
		if safe {
			return String
		}
		return Cat
	default:
		return String
	}
}

func parseToken(tok string, spec schema.ColumnSpec, safe bool) (any, error) {
	if IsNull(tok) {
		if !spec.Nullable {
			return nil, errNull
		}
		return nil, nil
	}

	switch spec.Type {
	case schema.Integer:
		n, err := strconv.ParseInt(tok, 10, 64)
		if err != nil {
			return nil, err
		}
		if safe {
			return n, nil
		}
		return int(n), nil
	case schema.Float:
		return strconv.ParseFloat(tok, 64)
	case schema.Datetime:
		return parseDatetime(tok)
	case schema.Boolean:
		return strconv.ParseBool(tok)
	case schema.Category:
		if safe {
			return tok, nil
		}
		return Category(tok), nil
	default:
		return tok, nil
	}
}

func parseDatetime(tok string) (time.Time, error) {
	var firstErr error
	for _, layout := range datetimeLayouts {
		ts, err := time.Parse(layout, tok)
		if err == nil {
			return ts.UTC(), nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}
