package dispatch

import (
	"fmt"
	"runtime/debug"
)

// RequestFilter inspects or mutates a request before the service runs.
// Returning handled=true means the filter produced the response itself and
// the rest of the request phase is skipped.
type RequestFilter interface {
	FilterRequest(rc *RequestContext, dto any) (handled bool, err error)
}

// ResponseFilter inspects or mutates a response before it is written.
// Returning handled=true means the filter wrote the response itself.
type ResponseFilter interface {
	FilterResponse(rc *RequestContext, response any) (handled bool, err error)
}

// RequestFilterFunc adapts a function to RequestFilter.
type RequestFilterFunc func(rc *RequestContext, dto any) (bool, error)

// FilterRequest calls f.
func (f RequestFilterFunc) FilterRequest(rc *RequestContext, dto any) (bool, error) {
	return f(rc, dto)
}

// ResponseFilterFunc adapts a function to ResponseFilter.
type ResponseFilterFunc func(rc *RequestContext, response any) (bool, error)

// FilterResponse calls f.
func (f ResponseFilterFunc) FilterResponse(rc *RequestContext, response any) (bool, error) {
	return f(rc, response)
}

// FilterChain runs filters in registration order and stops at the first
// filter that handles the exchange or fails.
type FilterChain struct {
	request  []RequestFilter
	response []ResponseFilter
}

// NewFilterChain returns a chain over copies of the given filters.
func NewFilterChain(request []RequestFilter, response []ResponseFilter) FilterChain {
	return FilterChain{
		request:  append([]RequestFilter(nil), request...),
		response: append([]ResponseFilter(nil), response...),
	}
}

// RunRequestFilters runs the request filters against dto.
func (fc FilterChain) RunRequestFilters(rc *RequestContext, dto any) (bool, error) {
	for i, f := range fc.request {
		handled, err := runFilter(func() (bool, error) { return f.FilterRequest(rc, dto) })
		if err != nil {
			return false, fmt.Errorf("request filter %d: %w", i, err)
		}
		if handled {
			return true, nil
		}
	}
	return false, nil
}

// RunResponseFilters runs the response filters against response.
func (fc FilterChain) RunResponseFilters(rc *RequestContext, response any) (bool, error) {
	for i, f := range fc.response {
		handled, err := runFilter(func() (bool, error) { return f.FilterResponse(rc, response) })
		if err != nil {
			return false, fmt.Errorf("response filter %d: %w", i, err)
		}
		if handled {
			return true, nil
		}
	}
	return false, nil
}

// with returns a chain with extra request filters appended.
func (fc FilterChain) with(request ...RequestFilter) FilterChain {
	if len(request) == 0 {
		return fc
	}
	out := FilterChain{
		request:  make([]RequestFilter, 0, len(fc.request)+len(request)),
		response: fc.response,
	}
	out.request = append(out.request, fc.request...)
	out.request = append(out.request, request...)
	return out
}

// runFilter converts a filter panic into an error.
func runFilter(fn func() (bool, error)) (handled bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			handled, err = false, &PanicError{Value: rec, Stack: debug.Stack()}
		}
	}()
	return fn()
}

// PanicError is a recovered panic from a filter, binder or service.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}
