package dispatch

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
)

// Void is used as a type parameter when a request has no parameters/body
// or a response has no body (results in 204 No Content).
type Void struct{}

// Handler is the core typed handler signature. The framework owns
// serialization; handlers never see http.ResponseWriter or *http.Request.
type Handler[Req, Resp any] func(ctx context.Context, req *Req) (*Resp, error)

// RawHandler is an escape hatch for WebSocket upgrades or anything that
// needs direct access to the underlying http primitives. Raw routes bypass
// the pipeline.
type RawHandler func(w http.ResponseWriter, r *http.Request)

// ServiceInvoker executes the business operation for a resolved request.
// attrs are the merged attributes of the request; rc gives access to the
// request and response stream for services that need them.
type ServiceInvoker interface {
	Execute(ctx context.Context, dto any, attrs Attributes, rc *RequestContext) (any, error)
}

// InvokerFunc adapts a function to ServiceInvoker.
type InvokerFunc func(ctx context.Context, dto any, attrs Attributes, rc *RequestContext) (any, error)

// Execute calls f.
func (f InvokerFunc) Execute(ctx context.Context, dto any, attrs Attributes, rc *RequestContext) (any, error) {
	return f(ctx, dto, attrs, rc)
}

// Typed adapts a typed Handler to ServiceInvoker. A nil *Resp is reported
// as a nil response.
func Typed[Req, Resp any](h Handler[Req, Resp]) ServiceInvoker {
	return InvokerFunc(func(ctx context.Context, dto any, _ Attributes, _ *RequestContext) (any, error) {
		req, ok := dto.(*Req)
		if !ok {
			return nil, fmt.Errorf("dispatch: request is %T, handler wants *%T", dto, *new(Req))
		}
		resp, err := h(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp == nil {
			return nil, nil
		}
		return resp, nil
	})
}

// invoke runs svc, converting a panic into an error.
func invoke(ctx context.Context, svc ServiceInvoker, dto any, rc *RequestContext) (resp any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			resp, err = nil, &PanicError{Value: rec, Stack: debug.Stack()}
		}
	}()
	return svc.Execute(ctx, dto, rc.Attributes, rc)
}
