// Package dispatchtest provides typed test helpers for dispatch routers.
package dispatchtest

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"io"
	"mime"
	"net/http"
	"net/http/httptest"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/bjaus/dispatch"
)

// Client wraps an httptest.Server for convenient API testing.
type Client struct {
	Server *httptest.Server
}

// NewClient creates a test client from a router.
func NewClient(t testing.TB, r *dispatch.Router) *Client {
	t.Helper()
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &Client{Server: srv}
}

// Response holds a decoded API response. Body is decoded according to the
// response Content-Type (JSON, XML or YAML); Raw keeps the bytes as sent.
type Response[T any] struct {
	Status  int
	Headers http.Header
	Body    *T
	Raw     []byte
}

// Option modifies an outgoing request.
type Option func(*http.Request)

// WithHeader sets a request header.
func WithHeader(key, value string) Option {
	return func(r *http.Request) {
		r.Header.Set(key, value)
	}
}

// WithAccept sets the Accept header.
func WithAccept(mediaType string) Option {
	return WithHeader("Accept", mediaType)
}

// Get sends a typed GET request.
func Get[Resp any](t testing.TB, c *Client, path string, opts ...Option) *Response[Resp] {
	t.Helper()
	return Do[Resp](t, c, http.MethodGet, path, nil, opts...)
}

// Post sends a typed POST request with a JSON body.
func Post[Req, Resp any](t testing.TB, c *Client, path string, body *Req, opts ...Option) *Response[Resp] {
	t.Helper()
	return Do[Resp](t, c, http.MethodPost, path, body, opts...)
}

// Put sends a typed PUT request with a JSON body.
func Put[Req, Resp any](t testing.TB, c *Client, path string, body *Req, opts ...Option) *Response[Resp] {
	t.Helper()
	return Do[Resp](t, c, http.MethodPut, path, body, opts...)
}

// Delete sends a typed DELETE request.
func Delete[Resp any](t testing.TB, c *Client, path string, opts ...Option) *Response[Resp] {
	t.Helper()
	return Do[Resp](t, c, http.MethodDelete, path, nil, opts...)
}

// Do sends a request. A non-nil body is sent as JSON unless an option sets
// another Content-Type, in which case body must be a []byte or string.
func Do[Resp any](t testing.TB, c *Client, method, path string, body any, opts ...Option) *Response[Resp] {
	t.Helper()

	req, err := http.NewRequestWithContext(context.Background(), method, c.Server.URL+path, nil)
	if err != nil {
		t.Fatalf("dispatchtest: create request: %v", err)
	}
	for _, opt := range opts {
		opt(req)
	}

	if body != nil {
		var b []byte
		switch v := body.(type) {
		case []byte:
			b = v
		case string:
			b = []byte(v)
		default:
			if b, err = json.Marshal(v); err != nil {
				t.Fatalf("dispatchtest: marshal request body: %v", err)
			}
		}
		req.Body = io.NopCloser(bytes.NewReader(b))
		req.ContentLength = int64(len(b))
		if req.Header.Get("Content-Type") == "" {
			req.Header.Set("Content-Type", "application/json")
		}
	}

	resp, err := c.Server.Client().Do(req)
	if err != nil {
		t.Fatalf("dispatchtest: execute request: %v", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			t.Errorf("dispatchtest: close body: %v", closeErr)
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("dispatchtest: read body: %v", err)
	}

	result := &Response[Resp]{
		Status:  resp.StatusCode,
		Headers: resp.Header,
		Raw:     raw,
	}
	if len(raw) == 0 {
		return result
	}

	var decoded Resp
	if decode(resp.Header.Get("Content-Type"), raw, &decoded) == nil {
		result.Body = &decoded
	}
	return result
}

func decode(contentType string, raw []byte, v any) error {
	mt, _, _ := mime.ParseMediaType(contentType)
	switch mt {
	case "application/xml", "text/xml":
		return xml.Unmarshal(raw, v)
	case "application/yaml", "application/x-yaml", "text/yaml":
		return yaml.Unmarshal(raw, v)
	default:
		return json.Unmarshal(raw, v)
	}
}

// Problem decodes an error response body.
func Problem(t testing.TB, raw []byte, contentType string) *dispatch.ProblemDetail {
	t.Helper()
	var p dispatch.ProblemDetail
	if err := decode(contentType, raw, &p); err != nil {
		t.Fatalf("dispatchtest: decode problem: %v", err)
	}
	return &p
}
