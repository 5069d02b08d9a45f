package dispatch

import (
	"sync"
	"sync/atomic"
)

// ServiceResult is the unit handed from the begin phase of a request to its
// end phase. It holds a response value, a failure, or nothing at all when
// processing was cancelled or short-circuited.
type ServiceResult struct {
	value any
	err   error
	ok    bool
}

// Completed wraps a response value.
func Completed(v any) ServiceResult {
	return ServiceResult{value: v, ok: true}
}

// Failed wraps an error raised after the begin phase returned, e.g. by
// deferred work.
func Failed(err error) ServiceResult {
	return ServiceResult{err: err}
}

// EmptyResult is the result of a short-circuited or cancelled request.
func EmptyResult() ServiceResult {
	return ServiceResult{}
}

// Value returns the response value. It is nil for empty or failed results.
func (r ServiceResult) Value() any { return r.value }

// Err returns the failure, if any.
func (r ServiceResult) Err() error { return r.err }

// IsEmpty reports whether the result carries neither a value nor an error.
func (r ServiceResult) IsEmpty() bool { return !r.ok && r.err == nil }

// CompleteFunc signals that the service phase of a request is over.
type CompleteFunc func(ServiceResult)

// completion is a one-shot signal between the begin and end phases. The
// first Complete wins; later calls are ignored.
type completion struct {
	once sync.Once
	ch   chan ServiceResult
}

func newCompletion() *completion {
	return &completion{ch: make(chan ServiceResult, 1)}
}

func (c *completion) Complete(r ServiceResult) {
	c.once.Do(func() {
		c.ch <- r
	})
}

func (c *completion) Done() <-chan ServiceResult {
	return c.ch
}

// onceCompleter forwards only the first completion to complete.
type onceCompleter struct {
	fired    atomic.Bool
	complete CompleteFunc
}

func (o *onceCompleter) Complete(r ServiceResult) {
	if o.fired.CompareAndSwap(false, true) {
		o.complete(r)
	}
}

// Fired reports whether a completion has been forwarded.
func (o *onceCompleter) Fired() bool { return o.fired.Load() }
