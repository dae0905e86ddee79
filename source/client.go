// Package source retrieves trajectory summary files from the GMN data
// directory and meteor summary queries from the GMN data store REST API.
//
// Requests go through a Client that rate-limits, retries 5xx and network
// failures with jittered exponential backoff and trips a circuit breaker
// when a source keeps failing.
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/html"

	"github.com/gmn-data-platform/gmntraj/gmnerr"
	"github.com/gmn-data-platform/gmntraj/internal/backoff"
	"github.com/gmn-data-platform/gmntraj/internal/circuitbreaker"
	"github.com/gmn-data-platform/gmntraj/internal/ratelimit"
	"github.com/gmn-data-platform/gmntraj/metrics"
	"github.com/gmn-data-platform/gmntraj/tracing"
)

const (
	defaultTimeout      = 60 * time.Second
	defaultMaxFailures  = 5
	defaultResetTimeout = 30 * time.Second
	userAgent           = "gmntraj/1.0"
	requestIDHeader     = "X-Request-Id"
)

// Response is a successful GET.
type Response struct {
	URL    string
	Header http.Header
	Body   []byte
}

// Client performs GET requests against one remote source.
type Client struct {
	name    string
	http    *http.Client
	limiter *ratelimit.Limiter
	breaker *circuitbreaker.CircuitBreaker
	retry   backoff.Policy
	logger  *slog.Logger
}

type clientConfig struct {
	httpClient   *http.Client
	rps          float64
	burst        int
	retry        backoff.Policy
	maxFailures  int
	resetTimeout time.Duration
	logger       *slog.Logger
	tp           trace.TracerProvider
}

// ClientOption configures a Client.
type ClientOption func(*clientConfig)

// WithHTTPClient replaces the default client (60s timeout).
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cfg *clientConfig) { cfg.httpClient = c }
}

// WithRateLimit caps requests per second. rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(cfg *clientConfig) {
		cfg.rps = rps
		cfg.burst = burst
	}
}

// WithRetryPolicy sets the retry policy. MaxRetries 0 disables retries.
func WithRetryPolicy(p backoff.Policy) ClientOption {
	return func(cfg *clientConfig) { cfg.retry = p }
}

// WithCircuitBreaker sets how many consecutive failed requests open the
// breaker and how long it stays open. maxFailures <= 0 disables it.
func WithCircuitBreaker(maxFailures int, resetTimeout time.Duration) ClientOption {
	return func(cfg *clientConfig) {
		cfg.maxFailures = maxFailures
		cfg.resetTimeout = resetTimeout
	}
}

func WithClientLogger(l *slog.Logger) ClientOption {
	return func(cfg *clientConfig) { cfg.logger = l }
}

// WithTracerProvider records a client span for every request attempt.
func WithTracerProvider(tp trace.TracerProvider) ClientOption {
	return func(cfg *clientConfig) { cfg.tp = tp }
}

// NewClient creates a client for the source called name. The name labels
// metrics and log lines.
func NewClient(name string, opts ...ClientOption) *Client {
	cfg := clientConfig{
		retry:        backoff.DefaultPolicy(),
		maxFailures:  defaultMaxFailures,
		resetTimeout: defaultResetTimeout,
	}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.httpClient == nil {
		cfg.httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if cfg.tp != nil {
		hc := *cfg.httpClient
		hc.Transport = tracing.NewTransport(hc.Transport, cfg.tp, name)
		cfg.httpClient = &hc
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	logger := cfg.logger.With("component", "source", "source", name)
	return &Client{
		name:    name,
		http:    cfg.httpClient,
		limiter: ratelimit.New(cfg.rps, cfg.burst, name, cfg.logger),
		breaker: circuitbreaker.New(name, cfg.maxFailures, cfg.resetTimeout, cfg.logger),
		retry:   cfg.retry,
		logger:  logger,
	}
}

// Fetch returns the body of rawURL.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	resp, err := c.Get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Get performs a GET, retrying 429, 5xx and network errors. Other non-2xx
// responses fail at once with *gmnerr.HTTPStatusError. All attempts carry
// the same X-Request-Id.
func (c *Client) Get(ctx context.Context, rawURL string) (*Response, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate request id: %w", err)
	}
	requestID := id.String()
	logger := c.logger.With("request_id", requestID)

	var lastStatus int
	var lastErr error

	for attempt := range c.retry.MaxRetries + 1 {
		if attempt > 0 {
			metrics.HTTPRetries.Inc()
			logger.Info("retrying request", "url", rawURL, "attempt", attempt+1)
			if err := c.retry.Sleep(ctx, attempt-1); err != nil {
				return nil, err
			}
		}
		if !c.breaker.Allow() {
			return nil, fmt.Errorf("GET %s: %w", rawURL, circuitbreaker.ErrOpen)
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		resp, status, err := c.do(ctx, rawURL, requestID, logger)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.breaker.RecordFailure()
			lastErr = err
			logger.Warn("http request failed", "url", rawURL, "attempt", attempt+1, "error", err)
			continue
		}

		switch {
		case status >= 200 && status < 300:
			c.breaker.RecordSuccess()
			return resp, nil
		case status == http.StatusTooManyRequests || status >= 500:
			c.breaker.RecordFailure()
			lastStatus = status
			lastErr = nil
			logger.Warn("retryable response", "url", rawURL, "status", status, "attempt", attempt+1)
		default:
			c.breaker.RecordSuccess()
			return nil, &gmnerr.HTTPStatusError{URL: rawURL, StatusCode: status}
		}
	}

	if lastErr != nil {
		return nil, fmt.Errorf("GET %s after %d retries: %w", rawURL, c.retry.MaxRetries, lastErr)
	}
	return nil, &gmnerr.HTTPStatusError{URL: rawURL, StatusCode: lastStatus, Retries: c.retry.MaxRetries}
}

func (c *Client) do(ctx context.Context, rawURL, requestID string, logger *slog.Logger) (*Response, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(requestIDHeader, requestID)

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.HTTPDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	metrics.HTTPRequests.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read body: %w", err)
	}
	logger.Debug("fetched", "url", rawURL, "status", resp.StatusCode, "bytes", len(body))
	return &Response{URL: rawURL, Header: resp.Header, Body: body}, resp.StatusCode, nil
}

// List fetches an HTML directory listing and returns the absolute URLs of
// the links whose path ends in ext, in page order. An empty ext keeps every
// link except parent and query links.
func (c *Client) List(ctx context.Context, dirURL, ext string) ([]string, error) {
	base, err := url.Parse(dirURL)
	if err != nil {
		return nil, fmt.Errorf("parse listing url: %w", err)
	}
	body, err := c.Fetch(ctx, dirURL)
	if err != nil {
		return nil, err
	}
	hrefs, err := extractHrefs(body)
	if err != nil {
		return nil, fmt.Errorf("parse listing %s: %w", dirURL, err)
	}

	var out []string
	for _, href := range hrefs {
		ref, err := url.Parse(href)
		if err != nil || ref.Path == "" || ref.RawQuery != "" || strings.HasPrefix(href, "..") {
			continue
		}
		if ext != "" && !strings.HasSuffix(ref.Path, ext) {
			continue
		}
		out = append(out, base.ResolveReference(ref).String())
	}
	return out, nil
}

func extractHrefs(body []byte) ([]string, error) {
	z := html.NewTokenizer(bytes.NewReader(body))
	var hrefs []string
	for {
		switch z.Next() {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return hrefs, nil
			}
			return nil, z.Err()
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "a" {
				continue
			}
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = z.TagAttr()
				if string(key) == "href" {
					hrefs = append(hrefs, string(val))
				}
			}
		}
	}
}
