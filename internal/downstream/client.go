// Package downstream provides HTTP clients for backend services, wrapped in
// the gateway's resilience policies. Client speaks plain HTTP and classifies
// errors; Protected adds circuit breaking and retry on top.
package downstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/edgefront/bffgw/internal/observability"
)

const defaultTimeout = 10 * time.Second

// maxErrorBodySize caps how much of a rejection body is retained for
// pass-through.
const maxErrorBodySize = 64 * 1024

// Request describes one call to a downstream service.
type Request struct {
	// Method is the HTTP method. Defaults to GET.
	Method string

	// Path is the request path, relative to the client base URL. Segments
	// of the form {name} are expanded from PathParams.
	Path string

	// PathParams supplies values for {name} segments in Path.
	PathParams map[string]string

	// Query is appended to the request URL.
	Query url.Values

	// Headers are added to the outgoing request.
	Headers http.Header

	// Body is JSON-encoded as the request body when non-nil.
	Body any
}

// Client is an HTTP client for one downstream service.
type Client struct {
	name       string
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	logger     observability.Logger
	tracer     trace.Tracer
}

// ClientOption is a functional option for configuring the client.
type ClientOption func(*Client)

// WithClientLogger sets the logger for the client.
func WithClientLogger(logger observability.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithTimeout sets the per-call timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithHTTPClient sets the underlying http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient creates a client for the named service at baseURL.
func NewClient(name, baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: defaultTimeout,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 32,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: observability.NopLogger(),
		tracer: otel.Tracer("bffgw/downstream"),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Name returns the service name.
func (c *Client) Name() string {
	return c.name
}

// Do executes the request and decodes a JSON response body into out when
// out is non-nil. Connection failures, timeouts and 5xx responses return a
// TransportError; 4xx responses return a RemoteRejection carrying the body.
func (c *Client) Do(ctx context.Context, req *Request, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	fullURL, err := c.buildURL(req)
	if err != nil {
		return &TransportError{Service: c.name, Err: err}
	}

	ctx, span := c.tracer.Start(ctx, c.name+" "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.url", fullURL),
			attribute.String("peer.service", c.name),
		),
	)
	defer span.End()

	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			span.SetStatus(codes.Error, "encode request body")
			return &TransportError{Service: c.name, Err: fmt.Errorf("encode request body: %w", err)}
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		span.SetStatus(codes.Error, "build request")
		return &TransportError{Service: c.name, Err: err}
	}

	for key, values := range req.Headers {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return &TransportError{Service: c.name, Err: err}
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	switch {
	case resp.StatusCode >= 500:
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodySize)) //nolint:errcheck
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
		return &TransportError{Service: c.name, Status: resp.StatusCode}

	case resp.StatusCode >= 400:
		rejBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return &RemoteRejection{Service: c.name, Status: resp.StatusCode, Body: rejBody}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			span.SetStatus(codes.Error, "decode response body")
			return &TransportError{Service: c.name, Err: fmt.Errorf("decode response body: %w", err)}
		}
	} else {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
	}

	return nil
}

// buildURL joins the base URL, the expanded path and the query string. Path
// parameter values are escaped per segment.
func (c *Client) buildURL(req *Request) (string, error) {
	path := req.Path
	for name, value := range req.PathParams {
		placeholder := "{" + name + "}"
		if !strings.Contains(path, placeholder) {
			return "", fmt.Errorf("path %q has no parameter %q", req.Path, name)
		}
		path = strings.ReplaceAll(path, placeholder, url.PathEscape(value))
	}
	if i := strings.IndexByte(path, '{'); i >= 0 {
		return "", fmt.Errorf("path %q has unresolved parameters", path)
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	fullURL := c.baseURL + path
	if len(req.Query) > 0 {
		fullURL += "?" + req.Query.Encode()
	}

	return fullURL, nil
}
