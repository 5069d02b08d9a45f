package dispatch

import (
	"net/http"
	"slices"
)

// Group is a collection of routes under a shared prefix with shared request
// filters and route defaults.
type Group struct {
	router   *Router
	pipeline *Pipeline
	path     string
	filters  []RequestFilter
	opts     []RouteOption
}

// GroupOption configures a Group.
type GroupOption func(*Group)

// WithGroupTags adds default tags to all routes registered on the group.
func WithGroupTags(tags ...string) GroupOption {
	return func(g *Group) {
		g.opts = append(g.opts, WithTags(tags...))
	}
}

// WithGroupAttributes adds default attributes to all routes in the group.
func WithGroupAttributes(attrs Attributes) GroupOption {
	return func(g *Group) {
		g.opts = append(g.opts, WithAttributes(attrs))
	}
}

// WithGroupFilters adds request filters that run after the router's, for
// routes in the group only.
func WithGroupFilters(f ...RequestFilter) GroupOption {
	return func(g *Group) {
		g.filters = append(g.filters, f...)
	}
}

// Group creates a new route group with the given prefix and options.
func (r *Router) Group(prefix string, opts ...GroupOption) *Group {
	g := &Group{router: r, path: prefix}
	for _, opt := range opts {
		opt(g)
	}
	g.pipeline = r.pipeline.withRequestFilters(g.filters...)
	return g
}

// Group creates a nested group. It inherits the parent's prefix, filters
// and route defaults.
func (g *Group) Group(prefix string, opts ...GroupOption) *Group {
	sub := &Group{
		router: g.router,
		path:   g.path + prefix,
		opts:   slices.Clone(g.opts),
	}
	for _, opt := range opts {
		opt(sub)
	}
	sub.pipeline = g.pipeline.withRequestFilters(sub.filters...)
	return sub
}

func (g *Group) mount(route *Route, svc ServiceInvoker) { g.router.handle(g.pipeline, route, svc) }

func (g *Group) mountRaw(pattern string, h http.Handler) { g.router.handleRaw(pattern, h) }

func (g *Group) prefix() string { return g.path }

func (g *Group) defaults() []RouteOption { return slices.Clone(g.opts) }
