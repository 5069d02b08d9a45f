package dispatch

import (
	"context"
	"net/http"
	"reflect"
)

// Registrar is the interface accepted by the registration functions.
// Both *Router and *Group implement it.
type Registrar interface {
	mount(route *Route, svc ServiceInvoker)
	mountRaw(pattern string, h http.Handler)
	prefix() string
	defaults() []RouteOption
}

func (r *Router) mount(route *Route, svc ServiceInvoker) { r.handle(r.pipeline, route, svc) }

func (r *Router) mountRaw(pattern string, h http.Handler) { r.handleRaw(pattern, h) }

func (r *Router) prefix() string { return "" }

func (r *Router) defaults() []RouteOption { return nil }

// register is the internal generic registration function. It panics on an
// invalid pattern, like http.ServeMux.
func register[Req, Resp any](reg Registrar, method, pattern string, h Handler[Req, Resp], opts ...RouteOption) *Route {
	all := append(reg.defaults(), opts...)
	route := MustRoute(method, reg.prefix()+pattern, reflect.TypeFor[Req](), all...)
	reg.mount(route, Typed(h))
	return route
}

// Get registers a GET handler.
func Get[Req, Resp any](reg Registrar, pattern string, h Handler[Req, Resp], opts ...RouteOption) *Route {
	return register(reg, http.MethodGet, pattern, h, opts...)
}

// Post registers a POST handler.
func Post[Req, Resp any](reg Registrar, pattern string, h Handler[Req, Resp], opts ...RouteOption) *Route {
	return register(reg, http.MethodPost, pattern, h, opts...)
}

// Put registers a PUT handler.
func Put[Req, Resp any](reg Registrar, pattern string, h Handler[Req, Resp], opts ...RouteOption) *Route {
	return register(reg, http.MethodPut, pattern, h, opts...)
}

// Patch registers a PATCH handler.
func Patch[Req, Resp any](reg Registrar, pattern string, h Handler[Req, Resp], opts ...RouteOption) *Route {
	return register(reg, http.MethodPatch, pattern, h, opts...)
}

// Delete registers a DELETE handler.
func Delete[Req, Resp any](reg Registrar, pattern string, h Handler[Req, Resp], opts ...RouteOption) *Route {
	return register(reg, http.MethodDelete, pattern, h, opts...)
}

// Options registers an OPTIONS route for pattern so that CORS preflights
// reach the pipeline. Unless a filter answers the request, it responds 204.
func Options(reg Registrar, pattern string, opts ...RouteOption) *Route {
	return register[Void, Void](reg, http.MethodOptions, pattern, func(context.Context, *Void) (*Void, error) {
		return nil, nil
	}, opts...)
}

// Handle registers an untyped service for method and pattern. The service
// receives a pointer to a fresh requestType value (nil means Void).
func Handle(reg Registrar, method, pattern string, requestType reflect.Type, svc ServiceInvoker, opts ...RouteOption) *Route {
	all := append(reg.defaults(), opts...)
	route := MustRoute(method, reg.prefix()+pattern, requestType, all...)
	reg.mount(route, svc)
	return route
}

// Raw registers a plain handler that bypasses the pipeline, for WebSocket
// upgrades and similar.
func Raw(reg Registrar, method, pattern string, h RawHandler) {
	p := reg.prefix() + pattern
	if method != "" {
		p = method + " " + p
	}
	reg.mountRaw(p, http.HandlerFunc(h))
}
