package dispatch

import (
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"strings"
)

// RequestFactory populates a decoded request DTO from the path and query of
// the request. It returns the DTO handed to filters and the service, which
// is normally dto itself.
type RequestFactory func(pathParams map[string]string, query url.Values, dto any) (any, error)

// Route is a path template bound to a request type and a parameter
// extraction rule. Routes are immutable once built.
type Route struct {
	Method      string
	Pattern     string
	RequestType reflect.Type

	// Status is the success status for responses that don't carry one.
	Status int

	// Attributes are the handler defaults merged into every request.
	Attributes Attributes

	// BodyLimit caps the request body in bytes. Zero means the pipeline
	// default.
	BodyLimit int64

	Summary string
	Tags    []string

	factory  RequestFactory
	segments []segment
}

type segment struct {
	literal  string
	param    string
	wildcard bool
}

// RouteOption configures a route at registration time.
type RouteOption func(*Route)

// WithStatus sets the default HTTP status code for the response.
func WithStatus(code int) RouteOption {
	return func(rt *Route) {
		rt.Status = code
	}
}

// WithSummary sets a short human description of the route, used in logs.
func WithSummary(s string) RouteOption {
	return func(rt *Route) {
		rt.Summary = s
	}
}

// WithTags adds tags to the route. Tags are reported as a metric label.
func WithTags(tags ...string) RouteOption {
	return func(rt *Route) {
		rt.Tags = append(rt.Tags, tags...)
	}
}

// WithAttributes adds handler default attributes, e.g. OneWay.
func WithAttributes(attrs Attributes) RouteOption {
	return func(rt *Route) {
		rt.Attributes |= attrs
	}
}

// WithBodyLimit sets a per-route maximum request body size in bytes.
func WithBodyLimit(maxBytes int64) RouteOption {
	return func(rt *Route) {
		rt.BodyLimit = maxBytes
	}
}

// WithRequestFactory replaces how extracted path and query parameters
// populate the request DTO.
func WithRequestFactory(f RequestFactory) RouteOption {
	return func(rt *Route) {
		rt.factory = f
	}
}

// NewRoute parses pattern (ServeMux syntax: "/items/{id}", "/files/{path...}")
// and binds it to requestType.
func NewRoute(method, pattern string, requestType reflect.Type, opts ...RouteOption) (*Route, error) {
	if requestType == nil {
		requestType = reflect.TypeFor[Void]()
	}
	if requestType.Kind() == reflect.Pointer {
		requestType = requestType.Elem()
	}

	segs, err := parsePattern(pattern)
	if err != nil {
		return nil, err
	}

	rt := &Route{
		Method:      method,
		Pattern:     pattern,
		RequestType: requestType,
		Attributes:  Reply,
		segments:    segs,
	}
	for _, opt := range opts {
		opt(rt)
	}
	if rt.Status == 0 {
		rt.Status = http.StatusOK
	}
	if rt.Attributes.Has(OneWay) {
		rt.Attributes &^= Reply
	}
	return rt, nil
}

// MustRoute is like NewRoute but panics on an invalid pattern.
func MustRoute(method, pattern string, requestType reflect.Type, opts ...RouteOption) *Route {
	rt, err := NewRoute(method, pattern, requestType, opts...)
	if err != nil {
		panic(err)
	}
	return rt
}

func parsePattern(pattern string) ([]segment, error) {
	if !strings.HasPrefix(pattern, "/") {
		return nil, fmt.Errorf("route pattern %q must start with /", pattern)
	}

	parts := strings.Split(strings.Trim(pattern, "/"), "/")
	segs := make([]segment, 0, len(parts))
	for i, p := range parts {
		if p == "" {
			continue
		}
		if !strings.HasPrefix(p, "{") || !strings.HasSuffix(p, "}") {
			segs = append(segs, segment{literal: p})
			continue
		}

		name := p[1 : len(p)-1]
		wildcard := strings.HasSuffix(name, "...")
		name = strings.TrimSuffix(name, "...")
		if name == "$" {
			continue
		}
		if name == "" {
			return nil, fmt.Errorf("route pattern %q: empty parameter name", pattern)
		}
		if wildcard && i != len(parts)-1 {
			return nil, fmt.Errorf("route pattern %q: %s... must be the last segment", pattern, name)
		}
		segs = append(segs, segment{param: name, wildcard: wildcard})
	}

	// A trailing slash makes the pattern a prefix match, as on ServeMux.
	if strings.HasSuffix(pattern, "/") && (len(segs) == 0 || !segs[len(segs)-1].wildcard) {
		segs = append(segs, segment{wildcard: true})
	}
	return segs, nil
}

// PathParams extracts the template parameters from pathInfo. It reports
// false if pathInfo does not match the template.
func (rt *Route) PathParams(pathInfo string) (map[string]string, bool) {
	parts := strings.Split(strings.Trim(pathInfo, "/"), "/")
	if len(parts) == 1 && parts[0] == "" {
		parts = nil
	}

	params := make(map[string]string)
	for i, seg := range rt.segments {
		if seg.wildcard {
			rest := ""
			if i < len(parts) {
				rest = strings.Join(parts[i:], "/")
			}
			if seg.param != "" {
				params[seg.param] = unescape(rest)
			}
			return params, true
		}
		if i >= len(parts) {
			return nil, false
		}
		if seg.literal != "" {
			if seg.literal != parts[i] {
				return nil, false
			}
			continue
		}
		params[seg.param] = unescape(parts[i])
	}
	if len(parts) != len(rt.segments) {
		return nil, false
	}
	return params, true
}

func unescape(s string) string {
	if u, err := url.PathUnescape(s); err == nil {
		return u
	}
	return s
}

// CreateRequest applies the route's extraction rule to pathInfo and query
// and populates dto. It runs for every request, with or without a body.
func (rt *Route) CreateRequest(pathInfo string, query url.Values, dto any) (any, error) {
	params, ok := rt.PathParams(pathInfo)
	if !ok {
		return nil, fmt.Errorf("%w: %q does not match %q", ErrBindPath, pathInfo, rt.Pattern)
	}
	if rt.factory != nil {
		return rt.factory(params, query, dto)
	}
	if err := bindPathQuery(dto, params, query); err != nil {
		return nil, err
	}
	return dto, nil
}

func (rt *Route) String() string {
	return rt.Method + " " + rt.Pattern
}

// muxPattern returns the pattern registered on http.ServeMux.
func (rt *Route) muxPattern() string {
	if rt.Method == "" {
		return rt.Pattern
	}
	return rt.Method + " " + rt.Pattern
}
