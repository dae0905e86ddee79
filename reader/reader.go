// Package reader normalizes trajectory summary text into an ordered,
// header-free sequence of raw rows aligned to a schema version.
//
// Inputs may be split into chunks at arbitrary line boundaries and any chunk
// may repeat the dialect's header lines; the result is identical to reading
// the unsplit input.
package reader

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/gmn-data-platform/gmntraj/gmnerr"
	"github.com/gmn-data-platform/gmntraj/metrics"
	"github.com/gmn-data-platform/gmntraj/schema"
)

// Path is a file path input, as opposed to a text blob.
type Path string

// Records is the output of Normalize: raw string tokens in input order,
// indexed by trajectory identifier.
type Records struct {
	Dialect Dialect
	Version *schema.Version
	Index   []string
	// Rows holds one token per Version.Columns entry, in position order.
	Rows [][]string
	// HeaderLines counts the header, comment and blank lines dropped.
	HeaderLines int
	// TotalLines counts every line seen across all chunks. In the REST
	// dialect a quoted field spanning several physical lines counts once.
	TotalLines int
}

// Len returns the number of records.
func (r *Records) Len() int { return len(r.Index) }

// Array returns a copy of the raw token matrix, rows × columns, without the
// index and without type coercion.
func (r *Records) Array() [][]string {
	out := make([][]string, len(r.Rows))
	for i, row := range r.Rows {
		cp := make([]string, len(row))
		copy(cp, row)
		out[i] = cp
	}
	return out
}

// Option configures Normalize.
type Option func(*options)

type options struct {
	version  string
	registry *schema.Registry
	logger   *slog.Logger
}

// WithVersion declares the schema version instead of inferring it.
func WithVersion(id string) Option {
	return func(o *options) { o.version = id }
}

// WithRegistry resolves versions against r instead of schema.Default().
func WithRegistry(r *schema.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithLogger sets the logger (default: slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// line is a non-header line with its 1-based position across all chunks.
type line struct {
	no     int
	tokens []string
}

// Normalize splits input into lines, drops header lines in every chunk,
// resolves the schema version and aligns each row to its columns.
//
// input is a text blob (string or []byte), a Path, an io.Reader or a
// sequence of text chunks ([]string). Any other type fails with
// *gmnerr.InvalidInputTypeError before parsing starts.
func Normalize(input any, dialect Dialect, opts ...Option) (*Records, error) {
	o := options{registry: schema.Default()}
	for _, fn := range opts {
		fn(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	logger := o.logger.With("component", "reader", "dialect", string(dialect))

	chunks, err := chunksOf(input)
	if err != nil {
		return nil, err
	}

	rec, err := normalize(chunks, dialect, o)
	if err != nil {
		metrics.NormalizeErrors.WithLabelValues(string(dialect)).Inc()
		return nil, fmt.Errorf("normalize %s: %w", dialect, err)
	}

	metrics.RecordsNormalized.WithLabelValues(string(dialect)).Add(float64(rec.Len()))
	metrics.HeaderLinesDropped.WithLabelValues(string(dialect)).Add(float64(rec.HeaderLines))
	logger.Debug("normalized records",
		"version", rec.Version.ID,
		"chunks", len(chunks),
		"records", rec.Len(),
		"header_lines", rec.HeaderLines,
	)
	return rec, nil
}

func chunksOf(input any) ([]string, error) {
	switch v := input.(type) {
	case string:
		return []string{v}, nil
	case []byte:
		return []string{string(v)}, nil
	case Path:
		data, err := os.ReadFile(string(v))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", v, err)
		}
		return []string{string(data)}, nil
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out, nil
	case io.Reader:
		data, err := io.ReadAll(v)
		if err != nil {
			return nil, fmt.Errorf("read input: %w", err)
		}
		return []string{string(data)}, nil
	default:
		return nil, &gmnerr.InvalidInputTypeError{Type: fmt.Sprintf("%T", input)}
	}
}

// splitLines splits a chunk into lines. A trailing newline does not start a
// new line; an empty chunk has no lines.
func splitLines(chunk string) []string {
	if chunk == "" {
		return nil
	}
	chunk = strings.ReplaceAll(chunk, "\r\n", "\n")
	chunk = strings.TrimSuffix(chunk, "\n")
	return strings.Split(chunk, "\n")
}

func normalize(chunks []string, dialect Dialect, o options) (*Records, error) {
	var (
		p   parsed
		err error
	)
	switch dialect {
	case DataDirectory:
		p, err = scanDataDirectory(chunks)
	case RESTAPI:
		p, err = scanREST(chunks, o.registry)
	default:
		return nil, fmt.Errorf("unknown dialect %q", dialect)
	}
	if err != nil {
		return nil, err
	}

	if len(p.data) == 0 {
		return nil, gmnerr.ErrEmptyInput
	}

	v, err := resolveVersion(p, dialect, o)
	if err != nil {
		return nil, err
	}

	rec := &Records{
		Dialect:     dialect,
		Version:     v,
		Index:       make([]string, 0, len(p.data)),
		Rows:        make([][]string, 0, len(p.data)),
		HeaderLines: p.headerLines,
		TotalLines:  p.totalLines,
	}

	if dialect == RESTAPI {
		for _, h := range p.headers {
			if err := checkHeader(h, v); err != nil {
				return nil, err
			}
		}
	}

	seen := make(map[string]int, len(p.data))
	for _, l := range p.data {
		id, row, err := align(l, dialect, v)
		if err != nil {
			return nil, err
		}
		if first, dup := seen[id]; dup {
			return nil, &gmnerr.DuplicateRecordIdentifierError{ID: id, FirstLine: first, Line: l.no}
		}
		seen[id] = l.no
		rec.Index = append(rec.Index, id)
		rec.Rows = append(rec.Rows, row)
	}
	return rec, nil
}

// align maps a tokenized line onto the version's columns.
func align(l line, dialect Dialect, v *schema.Version) (string, []string, error) {
	tokens := l.tokens
	var want int
	if dialect == DataDirectory {
		want = len(v.FileColumns()) + 1
		// Tolerate a trailing delimiter.
		if len(tokens) == want+1 && tokens[want] == "" {
			tokens = tokens[:want]
		}
	} else {
		want = len(v.Columns) + 1
	}
	if len(tokens) != want {
		return "", nil, &gmnerr.MalformedRowError{Line: l.no, Got: len(tokens), Want: want}
	}

	id := tokens[0]
	if id == "" {
		return "", nil, &gmnerr.TypeMismatchError{
			Column: v.Index.Name,
			Type:   string(v.Index.Type),
			Row:    fmt.Sprintf("line %d", l.no),
			Token:  id,
		}
	}

	if dialect == RESTAPI {
		row := make([]string, len(v.Columns))
		copy(row, tokens[1:])
		return id, row, nil
	}

	row := make([]string, len(v.Columns))
	next := 1
	for i, c := range v.Columns {
		if c.Derived {
			row[i] = v.ID
			continue
		}
		row[i] = tokens[next]
		next++
	}
	return id, row, nil
}

// parsed is the dialect-specific scan result before version resolution.
type parsed struct {
	data        []line
	header      *line  // first header line (title line for data directory)
	headers     []line // every REST header line, repeats included
	headerLines int
	totalLines  int
}

func scanDataDirectory(chunks []string) (parsed, error) {
	var p parsed
	for _, chunk := range chunks {
		for _, raw := range splitLines(chunk) {
			p.totalLines++
			trimmed := strings.TrimSpace(raw)
			if trimmed == "" || strings.HasPrefix(trimmed, dataDirectoryComment) {
				p.headerLines++
				if p.header == nil {
					if tokens := splitDataDirectory(strings.TrimPrefix(trimmed, dataDirectoryComment)); tokens[0] == dataDirectoryTitle {
						p.header = &line{no: p.totalLines, tokens: tokens}
					}
				}
				continue
			}
			p.data = append(p.data, line{no: p.totalLines, tokens: splitDataDirectory(trimmed)})
		}
	}
	return p, nil
}

func splitDataDirectory(s string) []string {
	tokens := strings.Split(s, dataDirectoryDelimiter)
	for i, t := range tokens {
		tokens[i] = strings.TrimSpace(t)
	}
	return tokens
}

func scanREST(chunks []string, reg *schema.Registry) (parsed, error) {
	indexNames := make(map[string]bool)
	for _, v := range reg.List() {
		indexNames[v.Index.CamelCaseName] = true
	}

	var p parsed
	for _, chunk := range chunks {
		for _, raw := range logicalLines(splitLines(chunk)) {
			p.totalLines++
			if strings.TrimSpace(raw) == "" {
				p.headerLines++
				continue
			}
			r := csv.NewReader(strings.NewReader(raw))
			r.FieldsPerRecord = -1
			tokens, err := r.Read()
			if err != nil {
				return p, &gmnerr.MalformedRowError{Line: p.totalLines, Err: err}
			}
			if indexNames[strings.TrimSpace(tokens[0])] {
				p.headerLines++
				h := line{no: p.totalLines, tokens: trimAll(tokens)}
				if p.header == nil {
					p.header = &h
				}
				p.headers = append(p.headers, h)
				continue
			}
			p.data = append(p.data, line{no: p.totalLines, tokens: trimAll(tokens)})
		}
	}
	return p, nil
}

// logicalLines joins physical lines while a quoted field is open, so a
// quoted value may contain newlines. An unterminated quote runs to the end
// of the chunk and fails in the tokenizer.
func logicalLines(physical []string) []string {
	out := make([]string, 0, len(physical))
	var (
		pending strings.Builder
		open    bool
	)
	for _, raw := range physical {
		if open {
			pending.WriteByte('\n')
		}
		pending.WriteString(raw)
		if strings.Count(raw, `"`)%2 == 1 {
			open = !open
		}
		if !open {
			out = append(out, pending.String())
			pending.Reset()
		}
	}
	if open {
		out = append(out, pending.String())
	}
	return out
}

// checkHeader rejects a REST header that is not exactly v's header.
func checkHeader(h line, v *schema.Version) error {
	if want := len(v.Columns) + 1; len(h.tokens) != want {
		return &gmnerr.MalformedRowError{Line: h.no, Got: len(h.tokens), Want: want}
	}
	pos := v.HeaderMismatch(h.tokens)
	if pos < 0 {
		return nil
	}
	want := v.Index.CamelCaseName
	if pos > 0 {
		want = v.Columns[pos-1].CamelCaseName
	}
	return &gmnerr.HeaderMismatchError{Line: h.no, Version: v.ID, Position: pos, Got: h.tokens[pos], Want: want}
}

func trimAll(tokens []string) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = strings.TrimSpace(t)
	}
	return out
}

func resolveVersion(p parsed, dialect Dialect, o options) (*schema.Version, error) {
	if o.version != "" {
		return o.registry.Resolve(o.version)
	}

	switch dialect {
	case DataDirectory:
		if p.header != nil {
			return o.registry.InferByFileColumns(len(p.header.tokens) - 1)
		}
		first := p.data[0].tokens
		if n := len(first); n > 1 && first[n-1] == "" {
			first = first[:n-1]
		}
		return o.registry.InferByFileColumns(len(first) - 1)
	default:
		v, err := inferFromRow(p.data[0].tokens, o.registry)
		if err != nil && p.header != nil {
			return o.registry.InferByHeader(p.header.tokens)
		}
		return v, err
	}
}

// inferFromRow picks the version whose derived version column, at the
// position implied by the row width, holds that version's identifier.
func inferFromRow(tokens []string, reg *schema.Registry) (*schema.Version, error) {
	for _, v := range reg.List() {
		if len(tokens) != len(v.Columns)+1 {
			continue
		}
		for _, c := range v.Columns {
			if c.Derived && strings.TrimSpace(tokens[c.Position+1]) == v.ID {
				return v, nil
			}
		}
	}
	return nil, &gmnerr.UnknownSchemaVersionError{Version: fmt.Sprintf("<row of %d fields>", len(tokens)), Known: reg.IDs()}
}
