package dispatch

import (
	"context"

	"github.com/google/uuid"
)

// RequestIDHeader is the default header carrying the request ID.
const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// RequestIDConfig configures the RequestID filter.
type RequestIDConfig struct {
	Header    string        // default: "X-Request-ID"
	Generator func() string // default: random UUID
}

// RequestID returns a request filter that assigns a unique ID to each
// request. The ID is read from the request header (if present) or
// generated. It is stored in the request context and echoed on the
// response header.
func RequestID(cfg ...RequestIDConfig) RequestFilter {
	c := RequestIDConfig{
		Header:    RequestIDHeader,
		Generator: uuid.NewString,
	}
	if len(cfg) > 0 {
		if cfg[0].Header != "" {
			c.Header = cfg[0].Header
		}
		if cfg[0].Generator != nil {
			c.Generator = cfg[0].Generator
		}
	}

	return RequestFilterFunc(func(rc *RequestContext, _ any) (bool, error) {
		id := rc.Request.Header.Get(c.Header)
		if id == "" {
			id = c.Generator()
		}
		rc.Request = rc.Request.WithContext(context.WithValue(rc.Context(), requestIDKey{}, id))
		rc.ResponseWriter().Header().Set(c.Header, id)
		return false, nil
	})
}

// RequestIDFrom extracts the request ID stored by the RequestID filter.
func RequestIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok
}
