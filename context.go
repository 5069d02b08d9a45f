package dispatch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
)

type contextKey[T any] struct{}

// SetValue stores a typed value in the request context. For use in middleware.
func SetValue[T any](r *http.Request, val T) *http.Request {
	ctx := context.WithValue(r.Context(), contextKey[T]{}, val)
	return r.WithContext(ctx)
}

// GetValue retrieves a typed value from the request context. For use in handlers.
func GetValue[T any](ctx context.Context) (T, bool) {
	val, ok := ctx.Value(contextKey[T]{}).(T)
	return val, ok
}

// RawRequest can be embedded in a request type to get access to
// the underlying *http.Request.
type RawRequest struct {
	Request *http.Request
}

// RequestContext is the per-request state shared by every pipeline stage.
// It owns the response stream: once closed, further writes are dropped and
// the underlying writer is never finalized again.
type RequestContext struct {
	// Request is the inbound request. Filters may replace it (for example
	// to enrich its context) before the service is invoked.
	Request *http.Request

	// ResponseContentType is the negotiated media type for the response.
	ResponseContentType string

	// Attributes are the merged endpoint attributes for this request.
	Attributes Attributes

	// Route is the route this request was dispatched to.
	Route *Route

	w      *responseWriter
	closed atomic.Bool
	state  atomic.Int32
}

func newRequestContext(w http.ResponseWriter, r *http.Request, route *Route) *RequestContext {
	return &RequestContext{
		Request: r,
		Route:   route,
		w:       &responseWriter{ResponseWriter: w, status: http.StatusOK},
	}
}

// Context returns the request's context.
func (rc *RequestContext) Context() context.Context {
	return rc.Request.Context()
}

// ResponseWriter returns the writer for this request. Binders and filters
// that produce their own response write through it and then call Close.
func (rc *RequestContext) ResponseWriter() http.ResponseWriter {
	return rc.w
}

// IsClosed reports whether the response has been finalized.
func (rc *RequestContext) IsClosed() bool {
	return rc.closed.Load()
}

// Close finalizes the response. Only the first call has any effect.
func (rc *RequestContext) Close() error {
	if !rc.closed.CompareAndSwap(false, true) {
		return nil
	}
	return rc.w.finalize()
}

// State returns the pipeline state the request is in.
func (rc *RequestContext) State() State {
	return State(rc.state.Load())
}

// Status returns the status code written so far (200 if none was written).
func (rc *RequestContext) Status() int {
	return rc.w.Status()
}

// Committed reports whether headers have been sent to the client.
func (rc *RequestContext) Committed() bool {
	return rc.w.Written()
}

// responseWriter guards the client's http.ResponseWriter. It records status
// and size, and drops every write once finalized.
type responseWriter struct {
	http.ResponseWriter

	mu        sync.Mutex
	status    int
	size      int
	written   bool
	finalized bool
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.finalized || rw.written {
		return
	}
	rw.status = code
	rw.written = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.finalized {
		return 0, ErrResponseClosed
	}
	if !rw.written {
		rw.written = true
		rw.ResponseWriter.WriteHeader(rw.status)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

// Flush forwards to the client writer so streaming binders work.
func (rw *responseWriter) Flush() {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.finalized {
		return
	}
	if !rw.written {
		rw.written = true
		rw.ResponseWriter.WriteHeader(rw.status)
	}
	//nolint:errcheck // best-effort flush
	http.NewResponseController(rw.ResponseWriter).Flush()
}

func (rw *responseWriter) Status() int {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return rw.status
}

func (rw *responseWriter) Size() int {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return rw.size
}

func (rw *responseWriter) Written() bool {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return rw.written
}

// Unwrap returns the underlying ResponseWriter (supports http.ResponseController).
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// finalize flushes buffered output and closes the client writer when it
// supports closing. Called once, by RequestContext.Close.
func (rw *responseWriter) finalize() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	rw.finalized = true

	if rw.written {
		err := http.NewResponseController(rw.ResponseWriter).Flush()
		if err != nil && !errors.Is(err, http.ErrNotSupported) {
			return err
		}
	}
	if c, ok := rw.ResponseWriter.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
