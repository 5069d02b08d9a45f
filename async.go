package dispatch

import (
	"context"
	"runtime/debug"
)

// Async is a response whose value is produced after the handler returns.
// The pipeline keeps the request open until the function finishes or the
// client goes away, then writes its result like any other response.
type Async struct {
	run func(ctx context.Context) (any, error)
}

// Defer returns an Async response that runs fn on its own goroutine with
// the request's context.
func Defer(fn func(ctx context.Context) (any, error)) *Async {
	return &Async{run: fn}
}

func bindAsync(rc *RequestContext, response any, complete CompleteFunc) Binding {
	a, ok := response.(*Async)
	if !ok || a == nil || a.run == nil {
		return NotClaimed()
	}

	ctx := rc.Context()
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				complete(Failed(&PanicError{Value: rec, Stack: debug.Stack()}))
			}
		}()
		v, err := a.run(ctx)
		if err != nil {
			complete(Failed(err))
			return
		}
		complete(Completed(v))
	}()
	return Deferred()
}
