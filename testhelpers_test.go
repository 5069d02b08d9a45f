package dispatch_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"

	"github.com/bjaus/dispatch"
)

// closingRecorder is an httptest.ResponseRecorder that counts Close calls.
type closingRecorder struct {
	*httptest.ResponseRecorder
	closes atomic.Int32
}

func newClosingRecorder() *closingRecorder {
	return &closingRecorder{ResponseRecorder: httptest.NewRecorder()}
}

func (c *closingRecorder) Close() error {
	c.closes.Add(1)
	return nil
}

var _ io.Closer = (*closingRecorder)(nil)

// countingEncoder counts Encode calls for its media type.
type countingEncoder struct {
	contentType string
	calls       atomic.Int32
}

func (e *countingEncoder) ContentType() string { return e.contentType }

func (e *countingEncoder) Encode(w io.Writer, _ any) error {
	e.calls.Add(1)
	_, err := io.WriteString(w, "counted")
	return err
}

// stateLog records pipeline state transitions.
type stateLog struct {
	mu     sync.Mutex
	states []dispatch.State
}

func (l *stateLog) OnState(_ *dispatch.RequestContext, s dispatch.State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, s)
}

func (l *stateLog) get() []dispatch.State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]dispatch.State(nil), l.states...)
}

// completionCounter counts completion calls and keeps the last result.
type completionCounter struct {
	mu     sync.Mutex
	calls  int
	result dispatch.ServiceResult
}

func (c *completionCounter) complete(r dispatch.ServiceResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.result = r
}

func (c *completionCounter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func newRequest(method, target string, body io.Reader) *http.Request {
	r := httptest.NewRequest(method, target, body)
	r.RemoteAddr = "127.0.0.1:54321"
	return r
}
