// Package fetcher executes single JSON requests against the posts API with a fixed
// timeout and a normalized error taxonomy. It never retries.
package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/goliatone/go-query-cache/internal/metrics"
)

// DefaultTimeout bounds every request unless overridden with WithTimeout.
const DefaultTimeout = 10 * time.Second

const maxBodyBytes = 8 << 20

// Request describes one call. Path is resolved against BaseURL, or against the
// client's BaseURLSource when BaseURL is empty.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Body    any
	BaseURL string
	Header  http.Header
}

// Client performs JSON requests.
type Client struct {
	http    *http.Client
	base    BaseURLSource
	timeout time.Duration
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying transport client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-request timeout. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records request counts and durations.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// New creates a client that resolves paths against base at call time.
func New(base BaseURLSource, opts ...Option) *Client {
	c := &Client{
		http:    &http.Client{},
		base:    base,
		timeout: DefaultTimeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Timeout returns the per-request timeout.
func (c *Client) Timeout() time.Duration { return c.timeout }

// Get issues a GET and decodes the response into out.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query}, out)
}

// Post sends body as JSON and decodes the response into out.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body}, out)
}

// Put sends body as JSON and decodes the response into out.
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, Request{Method: http.MethodPut, Path: path, Body: body}, out)
}

// Delete issues a DELETE. out may be nil.
func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.Do(ctx, Request{Method: http.MethodDelete, Path: path}, out)
}

// Do executes req. out may be nil, in which case the body is discarded.
//
// The request is bounded by the client timeout. Expiry yields a TimedOut error,
// cancellation of ctx yields Aborted, transport failures yield NetworkError and
// non-2xx responses yield an HTTP error carrying the status as its Code.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	target, err := c.resolve(req)
	if err != nil {
		return err
	}

	var payload io.Reader
	if req.Body != nil {
		raw, err := json.Marshal(req.Body)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryBadInput, "encode request body").
				WithTextCode("INVALID_BODY")
		}
		payload = bytes.NewReader(raw)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, method, target, payload)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "build request").
			WithTextCode("INVALID_REQUEST")
	}

	requestID := uuid.NewString()
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", requestID)
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	logger := c.logger.With(
		zap.String("method", method),
		zap.String("url", target),
		zap.String("request_id", requestID),
	)
	logger.Debug("request started")

	start := time.Now()
	body, status, err := c.roundTrip(httpReq)
	if err != nil {
		err = c.classify(ctx, reqCtx, method, target, err)
	} else if status < 200 || status > 299 {
		err = httpError(method, target, status, body)
	} else if out != nil && len(bytes.TrimSpace(body)) > 0 {
		if derr := json.Unmarshal(body, out); derr != nil {
			err = decodeError(method, target, derr)
		}
	}
	elapsed := time.Since(start)

	outcome := "ok"
	if err != nil {
		outcome = KindOf(err).String()
		var gerr *goerrors.Error
		if errors.As(err, &gerr) {
			gerr.WithRequestID(requestID)
		}
		logger.Debug("request failed", zap.Duration("elapsed", elapsed), zap.Int("status", status), zap.Error(err))
	} else {
		logger.Debug("request finished", zap.Duration("elapsed", elapsed), zap.Int("status", status))
	}
	c.metrics.RecordRequest(method, outcome, elapsed)

	return err
}

func (c *Client) roundTrip(req *http.Request) ([]byte, int, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

// classify maps a transport error. The parent context decides between an
// explicit abort and our own timeout.
func (c *Client) classify(parent, reqCtx context.Context, method, target string, err error) error {
	switch {
	case parent.Err() != nil:
		return abortedError(method, target, parent.Err())
	case errors.Is(reqCtx.Err(), context.DeadlineExceeded):
		return timedOutError(method, target, c.timeout, err)
	default:
		return networkError(method, target, err)
	}
}

func (c *Client) resolve(req Request) (string, error) {
	base := req.BaseURL
	if base == "" && c.base != nil {
		base = c.base.BaseURL()
	}
	if base == "" {
		return "", goerrors.New("no base URL configured", goerrors.CategoryBadInput).
			WithTextCode("NO_BASE_URL")
	}

	u, err := url.Parse(strings.TrimRight(base, "/") + "/" + strings.TrimLeft(req.Path, "/"))
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid request URL").
			WithTextCode("INVALID_URL")
	}
	if len(req.Query) > 0 {
		q := u.Query()
		for k, vs := range req.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
