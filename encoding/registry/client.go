// Package registry publishes synthesized trajectory summary schemas to a
// Confluent-compatible schema registry.
//
// This is distinct from the top-level schema package, which holds the
// versioned column definitions of the summary format.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gmn-data-platform/gmntraj/gmnerr"
)

// SchemaTypeAvro is the only schema type this client registers.
const SchemaTypeAvro = "AVRO"

const mediaType = "application/vnd.schemaregistry.v1+json"

// ErrIncompatible is returned when a schema fails the compatibility check
// against the latest version registered under its subject.
var ErrIncompatible = errors.New("schema incompatible with latest registered version")

type registration struct {
	subject string
	schema  string
}

// Client talks to one schema registry. Registered IDs are remembered per
// subject and schema, so publishing the same schema twice costs one request.
type Client struct {
	baseURL  string
	username string
	password string
	http     *http.Client
	logger   *slog.Logger

	mu  sync.RWMutex
	ids map[registration]int
}

type Option func(*Client)

func WithBasicAuth(username, password string) Option {
	return func(c *Client) {
		c.username = username
		c.password = password
	}
}

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for the registry at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http.DefaultClient,
		logger:  slog.Default(),
		ids:     make(map[registration]int),
	}
	for _, o := range opts {
		o(c)
	}
	c.logger = c.logger.With("component", "schema_registry")
	return c
}

// Subject returns the registry subject for a record name, following the
// topic-name strategy for message values.
func Subject(name string) string {
	return name + "-value"
}

type schemaRequest struct {
	Schema     string `json:"schema"`
	SchemaType string `json:"schemaType"`
}

// Register registers an Avro schema under subject and returns its global ID.
// Registering a schema the subject already holds returns the existing ID.
func (c *Client) Register(ctx context.Context, subject, schema string) (int, error) {
	key := registration{subject: subject, schema: schema}
	c.mu.RLock()
	id, ok := c.ids[key]
	c.mu.RUnlock()
	if ok {
		return id, nil
	}

	var resp struct {
		ID int `json:"id"`
	}
	path := "/subjects/" + url.PathEscape(subject) + "/versions"
	if err := c.call(ctx, "register", subject, http.MethodPost, path, schemaRequest{schema, SchemaTypeAvro}, &resp); err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.ids[key] = resp.ID
	c.mu.Unlock()
	c.logger.Debug("schema registered", "subject", subject, "id", resp.ID)
	return resp.ID, nil
}

// CheckCompatibility tests schema against the latest version registered
// under subject. A subject without versions accepts any schema.
func (c *Client) CheckCompatibility(ctx context.Context, subject, schema string) (bool, error) {
	var resp struct {
		IsCompatible bool `json:"is_compatible"`
	}
	path := "/compatibility/subjects/" + url.PathEscape(subject) + "/versions/latest"
	err := c.call(ctx, "check_compatibility", subject, http.MethodPost, path, schemaRequest{schema, SchemaTypeAvro}, &resp)
	var re *gmnerr.SchemaRegistryError
	if errors.As(err, &re) && re.StatusCode == http.StatusNotFound {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return resp.IsCompatible, nil
}

// GetByID retrieves a schema by its global ID.
func (c *Client) GetByID(ctx context.Context, id int) (string, error) {
	var resp struct {
		Schema string `json:"schema"`
	}
	if err := c.call(ctx, "get_by_id", "", http.MethodGet, fmt.Sprintf("/schemas/ids/%d", id), nil, &resp); err != nil {
		return "", err
	}
	return resp.Schema, nil
}

// call sends in as the JSON body (none when nil) and decodes a 200 response
// into out. Transport failures and other statuses are
// *gmnerr.SchemaRegistryError.
func (c *Client) call(ctx context.Context, op, subject, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create %s request: %w", op, err)
	}
	req.Header.Set("Accept", mediaType)
	if in != nil {
		req.Header.Set("Content-Type", mediaType)
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &gmnerr.SchemaRegistryError{Subject: subject, Operation: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return &gmnerr.SchemaRegistryError{
			Subject:    subject,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Err:        errors.New(strings.TrimSpace(string(data))),
		}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	return nil
}
