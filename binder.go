package dispatch

import "runtime/debug"

// Binding is the outcome of offering a response to a ResponseBinder.
type Binding struct {
	result   ServiceResult
	claimed  bool
	deferred bool
}

// NotClaimed leaves the response to the next binder, or to default
// serialization.
func NotClaimed() Binding {
	return Binding{}
}

// Claimed takes over the response. The pipeline completes the request with
// result. A binder that wrote the response itself closes the RequestContext
// first.
func Claimed(result ServiceResult) Binding {
	return Binding{result: result, claimed: true}
}

// Deferred takes over the response and its completion: the binder calls the
// CompleteFunc it was given, exactly once, when it is done.
func Deferred() Binding {
	return Binding{claimed: true, deferred: true}
}

// IsClaimed reports whether a binder took over the response.
func (b Binding) IsClaimed() bool { return b.claimed }

// IsDeferred reports whether completion was handed to the binder.
func (b Binding) IsDeferred() bool { return b.deferred }

// Result returns the claimed result. It is empty for deferred bindings.
func (b Binding) Result() ServiceResult { return b.result }

// ResponseBinder may take over response production for a response value,
// e.g. to stream a body or issue a redirect.
type ResponseBinder interface {
	Bind(rc *RequestContext, response any, complete CompleteFunc) Binding
}

// ResponseBinderFunc adapts a function to ResponseBinder.
type ResponseBinderFunc func(rc *RequestContext, response any, complete CompleteFunc) Binding

// Bind calls f.
func (f ResponseBinderFunc) Bind(rc *RequestContext, response any, complete CompleteFunc) Binding {
	return f(rc, response, complete)
}

// BinderChain offers a response to each binder in order until one claims it.
type BinderChain struct {
	binders []ResponseBinder
}

// NewBinderChain returns a chain over a copy of binders.
func NewBinderChain(binders ...ResponseBinder) BinderChain {
	return BinderChain{binders: append([]ResponseBinder(nil), binders...)}
}

// TryConvert returns the first claiming binder's Binding, or NotClaimed.
// A panicking binder claims the response with a failed result.
func (bc BinderChain) TryConvert(rc *RequestContext, response any, complete CompleteFunc) (b Binding) {
	defer func() {
		if rec := recover(); rec != nil {
			b = Claimed(Failed(&PanicError{Value: rec, Stack: debug.Stack()}))
		}
	}()

	for _, binder := range bc.binders {
		if b := binder.Bind(rc, response, complete); b.claimed {
			return b
		}
	}
	return NotClaimed()
}

// builtinBinders handle the response types this package defines.
var builtinBinders = []ResponseBinder{
	ResponseBinderFunc(bindRedirect),
	ResponseBinderFunc(bindStream),
	ResponseBinderFunc(bindSSE),
	ResponseBinderFunc(bindAsync),
}
