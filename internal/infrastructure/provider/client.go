package provider

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

	domainerrors "offramp.backend/internal/domain/errors"
	"offramp.backend/internal/infrastructure/metrics"
)

// HTTPDoer abstracts http.Client for ease of testing.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client issues JSON requests to one external provider and maps every failure onto a
// domainerrors.ProviderError.
type Client struct {
	name    string
	baseURL string
	timeout time.Duration
	doer    HTTPDoer
	headers http.Header
}

// Option configures a Client
type Option func(*Client)

// WithDoer replaces the underlying http client
func WithDoer(doer HTTPDoer) Option {
	return func(c *Client) {
		if doer != nil {
			c.doer = doer
		}
	}
}

// WithHeader adds a header sent on every request. Empty values are skipped.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		if strings.TrimSpace(value) != "" {
			c.headers.Set(key, value)
		}
	}
}

// New creates a client for the provider at baseURL
func New(name, baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		name:    name,
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		timeout: timeout,
		doer:    http.DefaultClient,
		headers: make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the provider name used in errors and metrics
func (c *Client) Name() string {
	return c.name
}

// Request describes one provider call
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   []byte
	Header http.Header
}

// Do sends req and decodes a 2xx JSON body into out. out may be nil.
func (c *Client) Do(ctx context.Context, req Request, out interface{}) error {
	started := time.Now()
	err := c.do(ctx, req, out)
	outcome := "ok"
	if kind, ok := domainerrors.ProviderKind(err); ok {
		outcome = string(kind)
	}
	metrics.ObserveProvider(c.name, outcome, started)
	return err
}

func (c *Client) do(ctx context.Context, req Request, out interface{}) error {
	if c.baseURL == "" {
		return domainerrors.NewProviderError(c.name, domainerrors.ProviderUnavailable, "endpoint not configured", nil)
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	target := c.baseURL + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return domainerrors.NewProviderError(c.name, domainerrors.ProviderRejected, "build request", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, vals := range c.headers {
		for _, v := range vals {
			httpReq.Header.Set(k, v)
		}
	}
	for k, vals := range req.Header {
		for _, v := range vals {
			httpReq.Header.Set(k, v)
		}
	}

	resp, err := c.doer.Do(httpReq)
	if err != nil {
		return c.transportError(ctx, method, req.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		detail := fmt.Sprintf("%s %s: status %d: %s", method, req.Path, resp.StatusCode, strings.TrimSpace(string(snippet)))
		return domainerrors.NewProviderError(c.name, statusKind(resp.StatusCode), detail, nil)
	}
	if out == nil {
		return nil
	}

	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	if err := decoder.Decode(out); err != nil {
		return domainerrors.NewProviderError(c.name, domainerrors.ProviderInvalidResponse, "decode response", err)
	}
	return nil
}

func (c *Client) transportError(ctx context.Context, method, path string, err error) error {
	detail := method + " " + path
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return domainerrors.NewProviderError(c.name, domainerrors.ProviderTimeout, detail, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domainerrors.NewProviderError(c.name, domainerrors.ProviderTimeout, detail, err)
	}
	return domainerrors.NewProviderError(c.name, domainerrors.ProviderUnavailable, detail, err)
}

func statusKind(status int) domainerrors.ProviderErrorKind {
	switch {
	case status == http.StatusNotFound:
		return domainerrors.ProviderNotFound
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return domainerrors.ProviderTimeout
	case status == http.StatusTooManyRequests, status >= 500:
		return domainerrors.ProviderUnavailable
	default:
		return domainerrors.ProviderRejected
	}
}
