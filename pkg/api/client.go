package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// TokenSource supplies the current bearer token. The second return is false
// when no session is active; the request is then sent unauthenticated.
type TokenSource interface {
	Token() (string, bool)
}

// Client is the shared REST core. All resource clients (catalog, profile,
// vendor, negotiation) go through it so that auth, error decoding, retry and
// breaker behavior stay in one place.
//
// Only GETs are retried. A mutating request whose response was lost may have
// succeeded server-side, so retrying it risks a duplicate side effect; the
// caller surfaces the error and lets the user decide to re-submit.
type Client struct {
	baseURL        string
	http           *http.Client
	tokens         TokenSource
	onUnauthorized func()
	breaker        *gobreaker.CircuitBreaker
	retryMax       time.Duration
	log            *zap.SugaredLogger
}

type Option func(*Client)

// WithTokenSource attaches the session's token source.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithUnauthorizedHook registers the global 401/403 handler. It fires once
// per rejected response, after the error is built.
func WithUnauthorizedHook(fn func()) Option {
	return func(c *Client) { c.onUnauthorized = fn }
}

// WithTimeout bounds every request issued by the client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithRetryMaxElapsed bounds the total time spent retrying an idempotent GET.
func WithRetryMaxElapsed(d time.Duration) Option {
	return func(c *Client) { c.retryMax = d }
}

// WithLogger injects a logger; the default is a nop.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(c *Client) { c.log = log }
}

// NewClient builds a Client for the given base URL.
func NewClient(baseURL string, opts ...Option) *Client {
	tr := &http.Transport{
		DialContext:     (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
		MaxIdleConns:    32,
		IdleConnTimeout: 90 * time.Second,
	}
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Transport: tr, Timeout: 15 * time.Second},
		retryMax: 4 * time.Second,
		log:      zap.NewNop().Sugar(),
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "olament-api",
		Timeout: 10 * time.Second,
	})
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get fetches path and decodes the JSON body into out. Transient failures
// (network errors, 5xx) are retried with exponential backoff.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	operation := func() error {
		err := c.do(ctx, http.MethodGet, path, query, nil, "", out)
		if err == nil {
			return nil
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status < 500 {
			return backoff.Permanent(err)
		}
		return err
	}
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = c.retryMax
	return backoff.Retry(operation, backoff.WithContext(b, ctx))
}

// Post sends body as JSON and decodes the response into out. Never retried.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.send(ctx, http.MethodPost, path, body, out)
}

// Put sends body as JSON and decodes the response into out. Never retried.
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.send(ctx, http.MethodPut, path, body, out)
}

// PostMultipart sends a prebuilt multipart body. Never retried.
func (c *Client) PostMultipart(ctx context.Context, path string, body io.Reader, contentType string, out any) error {
	return c.do(ctx, http.MethodPost, path, nil, body, contentType, out)
}

// PutMultipart sends a prebuilt multipart body. Never retried.
func (c *Client) PutMultipart(ctx context.Context, path string, body io.Reader, contentType string, out any) error {
	return c.do(ctx, http.MethodPut, path, nil, body, contentType, out)
}

func (c *Client) send(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(buf)
	}
	return c.do(ctx, method, path, nil, rd, "application/json", out)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.tokens != nil {
		if tok, ok := c.tokens.Token(); ok {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	res, err := c.breaker.Execute(func() (any, error) {
		return c.http.Do(req)
	})
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	resp := res.(*http.Response)
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.responseError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) responseError(resp *http.Response) error {
	var env errorEnvelope
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err := json.Unmarshal(raw, &env); err != nil || env.Message == "" {
		env.Message = http.StatusText(resp.StatusCode)
	}
	apiErr := &APIError{Status: resp.StatusCode, Message: env.Message}
	if (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) && c.onUnauthorized != nil {
		c.log.Infow("credential rejected, invalidating session", "status", resp.StatusCode)
		c.onUnauthorized()
	}
	return apiErr
}
