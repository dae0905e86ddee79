package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

const (
	DefaultDataStoreURL = "https://globalmeteornetwork.org/gmn_data_store"
	MeteorSummaryTable  = "meteor_summary"
)

// Format is the response encoding of a data store query.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// Shape is the datasette _shape of a JSON response.
type Shape string

const (
	ShapeArrays  Shape = "arrays"
	ShapeObjects Shape = "objects"
	ShapeArray   Shape = "array"
	ShapeObject  Shape = "object"
)

// Query addresses a table, or the whole database when Table is empty.
type Query struct {
	Table  string
	Format Format
	Shape  Shape
	Args   url.Values
}

// Page is one response of a paginated query.
type Page struct {
	Content string
	// NextURL is empty on the last page.
	NextURL string
}

// DataStore queries the datasette-backed GMN data store.
type DataStore struct {
	client   *Client
	baseURL  string
	maxPages int
	logger   *slog.Logger
}

// DataStoreOption configures a DataStore.
type DataStoreOption func(*DataStore)

func WithDataStoreURL(u string) DataStoreOption {
	return func(s *DataStore) { s.baseURL = strings.TrimSuffix(u, "/") }
}

// WithMaxPages bounds how many pages All follows. Zero means unbounded.
func WithMaxPages(n int) DataStoreOption {
	return func(s *DataStore) { s.maxPages = n }
}

func WithDataStoreLogger(l *slog.Logger) DataStoreOption {
	return func(s *DataStore) { s.logger = l }
}

func NewDataStore(c *Client, opts ...DataStoreOption) *DataStore {
	s := &DataStore{client: c, baseURL: DefaultDataStoreURL, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.With("component", "data_store")
	return s
}

// URL renders q against the store's base URL.
func (s *DataStore) URL(q Query) string {
	format := q.Format
	if format == "" {
		format = FormatJSON
	}
	shape := q.Shape
	if shape == "" {
		shape = ShapeArray
	}
	var b strings.Builder
	b.WriteString(s.baseURL)
	if q.Table != "" {
		b.WriteString("/")
		b.WriteString(url.PathEscape(q.Table))
	}
	b.WriteString(".")
	b.WriteString(string(format))
	b.WriteString("?_shape=")
	b.WriteString(url.QueryEscape(string(shape)))
	if len(q.Args) > 0 {
		b.WriteString("&")
		b.WriteString(q.Args.Encode())
	}
	return b.String()
}

// Get runs q and returns the first page.
func (s *DataStore) Get(ctx context.Context, q Query) (*Page, error) {
	return s.page(ctx, s.URL(q))
}

// Next fetches the page a previous Page pointed to.
func (s *DataStore) Next(ctx context.Context, p *Page) (*Page, error) {
	if p.NextURL == "" {
		return nil, fmt.Errorf("data store: no next page")
	}
	return s.page(ctx, p.NextURL)
}

// All runs q and follows next links, returning every page's content in
// order. The contents can be normalized together as a chunk sequence.
func (s *DataStore) All(ctx context.Context, q Query) ([]string, error) {
	p, err := s.Get(ctx, q)
	if err != nil {
		return nil, err
	}
	out := []string{p.Content}
	for p.NextURL != "" {
		if s.maxPages > 0 && len(out) >= s.maxPages {
			s.logger.Warn("page limit reached", "pages", len(out), "next", p.NextURL)
			break
		}
		if p, err = s.Next(ctx, p); err != nil {
			return nil, err
		}
		out = append(out, p.Content)
	}
	s.logger.Debug("query complete", "pages", len(out))
	return out, nil
}

// MeteorSummary queries the meteor summary table as CSV in the shape the
// REST dialect of the reader accepts. where is an optional SQL WHERE clause,
// e.g. "iau_no = 4".
func (s *DataStore) MeteorSummary(ctx context.Context, where string) (*Page, error) {
	q := Query{Table: MeteorSummaryTable, Format: FormatCSV, Shape: ShapeArray}
	if where != "" {
		q.Args = url.Values{"_where": {where}}
	}
	return s.Get(ctx, q)
}

// SQL runs a read-only SQL query against the whole database.
func (s *DataStore) SQL(ctx context.Context, sql string, format Format, shape Shape) (*Page, error) {
	return s.Get(ctx, Query{Format: format, Shape: shape, Args: url.Values{"sql": {sql}}})
}

func (s *DataStore) page(ctx context.Context, u string) (*Page, error) {
	resp, err := s.client.Get(ctx, u)
	if err != nil {
		return nil, err
	}
	return &Page{Content: string(resp.Body), NextURL: nextLink(resp.Header, resp.URL)}, nil
}

// nextLink returns the rel="next" target of the Link headers, resolved
// against the request URL. Targets may contain commas, so links are split on
// their angle brackets.
func nextLink(h http.Header, requestURL string) string {
	for _, v := range h.Values("Link") {
		for {
			i := strings.IndexByte(v, '<')
			if i < 0 {
				break
			}
			j := strings.IndexByte(v[i:], '>')
			if j < 0 {
				break
			}
			target := v[i+1 : i+j]
			v = v[i+j+1:]
			params := v
			if k := strings.IndexByte(v, '<'); k >= 0 {
				params = v[:k]
			}
			if hasRel(params, "next") {
				return resolve(requestURL, target)
			}
		}
	}
	return ""
}

func hasRel(params, want string) bool {
	for _, param := range strings.Split(params, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok || !strings.EqualFold(strings.TrimSpace(k), "rel") {
			continue
		}
		for _, rel := range strings.Fields(strings.Trim(strings.TrimSpace(v), `",`)) {
			if strings.EqualFold(rel, want) {
				return true
			}
		}
	}
	return false
}

func resolve(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
