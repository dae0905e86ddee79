// Package gmnerr defines the failure kinds produced while reading trajectory
// summaries. Every kind is distinct and catchable with errors.Is / errors.As;
// none of them is retried internally.
package gmnerr

import (
	"errors"
	"fmt"
)

// ErrEmptyInput is returned when no data rows remain after header stripping.
var ErrEmptyInput = errors.New("no data rows in input")

// UnknownSchemaVersionError indicates that no registered schema version
// matches the declared or inferred one.
type UnknownSchemaVersionError struct {
	Version string
	Known   []string
}

func (e *UnknownSchemaVersionError) Error() string {
	if len(e.Known) == 0 {
		return fmt.Sprintf("unknown schema version %q", e.Version)
	}
	return fmt.Sprintf("unknown schema version %q (known: %v)", e.Version, e.Known)
}

// DuplicateRecordIdentifierError indicates that the same trajectory
// identifier appeared twice in one input, usually from overlapping chunks.
type DuplicateRecordIdentifierError struct {
	ID        string
	FirstLine int
	Line      int
}

func (e *DuplicateRecordIdentifierError) Error() string {
	return fmt.Sprintf("duplicate trajectory identifier %q at line %d (first seen at line %d)", e.ID, e.Line, e.FirstLine)
}

// TypeMismatchError indicates that a token cannot be parsed under its
// column's declared type. The whole batch is rejected.
type TypeMismatchError struct {
	Column string
	Type   string
	Row    string // trajectory identifier of the offending row
	Token  string
	Err    error
}

func (e *TypeMismatchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("column %q row %s: cannot parse %q as %s: %v", e.Column, e.Row, e.Token, e.Type, e.Err)
	}
	return fmt.Sprintf("column %q row %s: cannot parse %q as %s", e.Column, e.Row, e.Token, e.Type)
}

func (e *TypeMismatchError) Unwrap() error {
	return e.Err
}

// InvalidInputTypeError indicates that the input is neither text, a path,
// a byte slice, a reader nor a sequence of text chunks.
type InvalidInputTypeError struct {
	Type string
}

func (e *InvalidInputTypeError) Error() string {
	return fmt.Sprintf("invalid input type %s (expected string, reader.Path, []string, []byte or io.Reader)", e.Type)
}

// MalformedRowError indicates a line that cannot be tokenized, or whose
// token count does not match the resolved schema version. Err carries the
// tokenizer failure when there is one.
type MalformedRowError struct {
	Line int
	Got  int
	Want int
	Err  error
}

func (e *MalformedRowError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("line %d: got %d fields, want %d", e.Line, e.Got, e.Want)
}

func (e *MalformedRowError) Unwrap() error {
	return e.Err
}

// HeaderMismatchError indicates a header line whose column names differ
// from the resolved schema version at Position (0 is the index column).
type HeaderMismatchError struct {
	Line     int
	Version  string
	Position int
	Got      string
	Want     string
}

func (e *HeaderMismatchError) Error() string {
	return fmt.Sprintf("line %d: header column %d is %q, schema version %s expects %q", e.Line, e.Position, e.Got, e.Version, e.Want)
}

// HTTPStatusError indicates a non-2xx response from a remote data source.
type HTTPStatusError struct {
	URL        string
	StatusCode int
	Retries    int
}

func (e *HTTPStatusError) Error() string {
	if e.Retries > 0 {
		return fmt.Sprintf("GET %s: status %d after %d retries", e.URL, e.StatusCode, e.Retries)
	}
	return fmt.Sprintf("GET %s: status %d", e.URL, e.StatusCode)
}

// SchemaRegistryError indicates a failed call to a Confluent-compatible
// schema registry.
type SchemaRegistryError struct {
	Subject    string
	Operation  string
	StatusCode int
	Err        error
}

func (e *SchemaRegistryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("schema registry %s %q: status %d: %v", e.Operation, e.Subject, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("schema registry %s %q: %v", e.Operation, e.Subject, e.Err)
}

func (e *SchemaRegistryError) Unwrap() error {
	return e.Err
}
