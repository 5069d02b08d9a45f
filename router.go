package dispatch

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"
)

// Router is the central type that holds routes, middleware, and the request
// pipeline. It implements http.Handler.
type Router struct {
	mux        *http.ServeMux
	middleware []Middleware
	routes     []*Route

	cfg      Config
	pipeline *Pipeline

	mu sync.Mutex
}

// RouterOption configures a Router.
type RouterOption func(*Config)

// WithSettings replaces the scalar pipeline settings, e.g. with the result
// of LoadSettings.
func WithSettings(s Settings) RouterOption {
	return func(c *Config) {
		c.Settings = s
	}
}

// WithJSONP enables wrapping response bodies in the callback named by the
// ?callback= query parameter.
func WithJSONP(enabled bool) RouterOption {
	return func(c *Config) {
		c.Settings.AllowJSONP = enabled
	}
}

// WithDefaultContentType sets the response type used when the client
// expresses no preference.
func WithDefaultContentType(contentType string) RouterOption {
	return func(c *Config) {
		c.Settings.DefaultContentType = contentType
	}
}

// WithMaxBodyBytes caps request bodies for every route without its own limit.
func WithMaxBodyBytes(n int64) RouterOption {
	return func(c *Config) {
		c.Settings.MaxBodyBytes = n
	}
}

// WithRequestFilters appends request filters, run in order before the service.
func WithRequestFilters(f ...RequestFilter) RouterOption {
	return func(c *Config) {
		c.RequestFilters = append(c.RequestFilters, f...)
	}
}

// WithResponseFilters appends response filters, run in order before the writer.
func WithResponseFilters(f ...ResponseFilter) RouterOption {
	return func(c *Config) {
		c.ResponseFilters = append(c.ResponseFilters, f...)
	}
}

// WithResponseBinders appends response binders. They are consulted before
// the built-in ones.
func WithResponseBinders(b ...ResponseBinder) RouterOption {
	return func(c *Config) {
		c.Binders = append(c.Binders, b...)
	}
}

// WithEncoder registers an additional response encoder. It takes precedence
// over a built-in encoder for the same media type.
func WithEncoder(enc Encoder) RouterOption {
	return func(c *Config) {
		c.Encoders = append(c.Encoders, enc)
	}
}

// WithDecoder registers an additional request body decoder.
func WithDecoder(dec Decoder) RouterOption {
	return func(c *Config) {
		c.Decoders = append(c.Decoders, dec)
	}
}

// WithLogger sets the logger for pipeline failures. Defaults to slog.Default.
func WithLogger(l *slog.Logger) RouterOption {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithTracer sets a tracing hook for the router.
func WithTracer(s SpanStarter) RouterOption {
	return func(c *Config) {
		c.Tracer = s
	}
}

// WithMetrics records pipeline metrics into m.
func WithMetrics(m *Metrics) RouterOption {
	return func(c *Config) {
		c.Metrics = m
	}
}

// WithObserver registers a state observer.
func WithObserver(o Observer) RouterOption {
	return func(c *Config) {
		c.Observers = append(c.Observers, o)
	}
}

// WithErrorMapper sets a function that rewrites errors before they are
// written to the client.
func WithErrorMapper(m ErrorMapper) RouterOption {
	return func(c *Config) {
		c.MapError = m
	}
}

// New creates a new Router with the given options.
func New(opts ...RouterOption) *Router {
	cfg := Config{Settings: DefaultSettings()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Router{
		mux:      http.NewServeMux(),
		cfg:      cfg,
		pipeline: NewPipeline(cfg),
	}
}

// Use adds middleware to the router. Middleware is applied in the order added.
func (r *Router) Use(mw ...Middleware) {
	r.middleware = append(r.middleware, mw...)
}

// Pipeline returns the router's request pipeline.
func (r *Router) Pipeline() *Pipeline { return r.pipeline }

// Routes returns the registered routes in registration order.
func (r *Router) Routes() []*Route {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.routes)
}

// ServeHTTP implements http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	handler := http.Handler(r.mux)
	for i := len(r.middleware) - 1; i >= 0; i-- {
		handler = r.middleware[i](handler)
	}
	handler.ServeHTTP(w, req)
}

// ListenAndServe starts an HTTP server on the given address.
// It blocks until the context is cancelled, then shuts down gracefully.
func (r *Router) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// handle mounts route on the mux, served by p.
func (r *Router) handle(p *Pipeline, route *Route, svc ServiceInvoker) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.mux.Handle(route.muxPattern(), p.Handler(route, svc))
	r.routes = append(r.routes, route)
}

// handleRaw mounts a handler that bypasses the pipeline.
func (r *Router) handleRaw(pattern string, h http.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.mux.Handle(pattern, h)
}
