package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"
)

// State is the lifecycle position of a request inside a Pipeline.
type State int32

// Pipeline states, in the order a request normally passes through them.
const (
	StateIdle State = iota
	StateResolving
	StateRequestFiltering
	StateInvoking
	StateBinding
	StateAwaitingCompletion
	StateResponseFiltering
	StateWriting
	StateClosed
)

var stateNames = [...]string{
	StateIdle:               "idle",
	StateResolving:          "resolving",
	StateRequestFiltering:   "request_filtering",
	StateInvoking:           "invoking",
	StateBinding:            "binding",
	StateAwaitingCompletion: "awaiting_completion",
	StateResponseFiltering:  "response_filtering",
	StateWriting:            "writing",
	StateClosed:             "closed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
	return stateNames[s]
}

// Observer is notified of every state a request enters. Observers run on
// the goroutine that drives the transition and must not block.
type Observer interface {
	OnState(rc *RequestContext, s State)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(rc *RequestContext, s State)

// OnState calls f.
func (f ObserverFunc) OnState(rc *RequestContext, s State) { f(rc, s) }

// Pipeline dispatches requests through resolution, request filters, the
// service, response binders, response filters and the writer. A request is
// processed in two phases: Begin runs up to and including the service and
// fires a completion; End writes the result. Between them, a binder may
// defer completion to another goroutine.
type Pipeline struct {
	settings  Settings
	codecs    *codecRegistry
	resolver  *Resolver
	filters   FilterChain
	binders   BinderChain
	writer    *ResponseWriter
	logger    *slog.Logger
	tracer    SpanStarter
	metrics   *Metrics
	observers []Observer
	mapError  ErrorMapper
}

// NewPipeline builds a pipeline from cfg. The built-in binders for redirects,
// streams, server-sent events and deferred responses run after cfg.Binders.
func NewPipeline(cfg Config) *Pipeline {
	settings := cfg.Settings.withDefaults()
	codecs := newCodecRegistry(cfg.Encoders, cfg.Decoders)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	binders := make([]ResponseBinder, 0, len(cfg.Binders)+len(builtinBinders))
	binders = append(binders, cfg.Binders...)
	binders = append(binders, builtinBinders...)

	return &Pipeline{
		settings: settings,
		codecs:   codecs,
		resolver: &Resolver{
			codecs:             codecs,
			defaultContentType: settings.DefaultContentType,
			maxBodyBytes:       settings.MaxBodyBytes,
		},
		filters: NewFilterChain(cfg.RequestFilters, cfg.ResponseFilters),
		binders: NewBinderChain(binders...),
		writer: &ResponseWriter{
			codecs:        codecs,
			allowJSONP:    settings.AllowJSONP,
			callbackParam: settings.CallbackParam,
		},
		logger:    logger,
		tracer:    cfg.Tracer,
		metrics:   cfg.Metrics,
		observers: append([]Observer(nil), cfg.Observers...),
		mapError:  cfg.MapError,
	}
}

// Settings returns the pipeline's effective settings.
func (p *Pipeline) Settings() Settings { return p.settings }

// ContentTypes returns the media types the pipeline can write, built-in
// encoders first.
func (p *Pipeline) ContentTypes() []string { return p.codecs.contentTypes() }

// withRequestFilters returns a copy of p with extra request filters run
// after its own.
func (p *Pipeline) withRequestFilters(filters ...RequestFilter) *Pipeline {
	if len(filters) == 0 {
		return p
	}
	cp := *p
	cp.filters = p.filters.with(filters...)
	return &cp
}

// Handler returns an http.Handler that serves route with svc.
func (p *Pipeline) Handler(route *Route, svc ServiceInvoker) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.Serve(w, r, route, svc)
	})
}

// NewRequestContext negotiates the response content type of r and merges
// the attributes of the request: the route's, the response format's and
// those derived from the connection and method.
func (p *Pipeline) NewRequestContext(w http.ResponseWriter, r *http.Request, route *Route) *RequestContext {
	rc := newRequestContext(w, r, route)
	rc.ResponseContentType = p.codecs.responseContentType(
		r.URL.Query().Get(p.settings.FormatParam),
		r.Header.Get("Accept"),
		p.settings.DefaultContentType,
	)
	rc.Attributes = route.Attributes | contentTypeAttributes(rc.ResponseContentType) | requestAttributes(r)
	return rc
}

// Serve processes one request end to end. It runs Begin, waits for the
// completion or for the request context to end, then runs End. When the
// context ends first, the request is completed with an empty result and
// any later completion from deferred work is ignored.
func (p *Pipeline) Serve(w http.ResponseWriter, r *http.Request, route *Route, svc ServiceInvoker) {
	start := time.Now()

	ctx, endSpan := p.startSpan(r.Context(), "dispatch "+route.String(), map[string]string{
		"http.method": r.Method,
		"http.route":  route.Pattern,
	})
	defer endSpan()

	rc := p.NewRequestContext(w, r.WithContext(ctx), route)
	p.metrics.started()

	done := newCompletion()
	p.Begin(rc, svc, done.Complete)

	// A completion signalled before Begin returned wins over a context
	// that ended in the meantime.
	var result ServiceResult
	select {
	case result = <-done.Done():
	default:
		select {
		case result = <-done.Done():
		case <-ctx.Done():
			// A cancellation cause carrying a status (Timeout) is reported
			// to the client; a plain disconnect is not.
			var sc StatusCoder
			if cause := context.Cause(ctx); errors.As(cause, &sc) {
				p.fail(rc, cause)
			}
			done.Complete(EmptyResult())
			result = <-done.Done()
		}
	}

	p.End(rc, result)
	p.metrics.finished(rc, time.Since(start))
}

// Begin runs the request phase: it checks that the negotiated response
// type can be encoded, resolves the request, runs request filters, invokes
// svc and offers the response to the binders. complete is called exactly
// once on every path, either before Begin returns or, for a deferred
// binding, later by the binder. Begin never panics.
//
// The returned result is what Begin completed with; it is empty for
// deferred bindings and for binders that completed on their own.
func (p *Pipeline) Begin(rc *RequestContext, svc ServiceInvoker, complete CompleteFunc) (result ServiceResult) {
	once := &onceCompleter{complete: complete}
	complete = once.Complete

	defer func() {
		if rec := recover(); rec != nil {
			result = EmptyResult()
			defer complete(result)
			p.fail(rc, &PanicError{Value: rec, Stack: debug.Stack()})
		}
	}()

	if _, ok := p.codecs.encoderFor(rc.ResponseContentType); !ok {
		return p.abort(rc, complete, unsupportedMediaType(http.StatusNotAcceptable, rc.ResponseContentType))
	}

	p.enter(rc, StateResolving)
	dto, err := p.resolver.Resolve(rc)
	if err != nil {
		return p.abort(rc, complete, err)
	}

	p.enter(rc, StateRequestFiltering)
	handled, err := p.filters.RunRequestFilters(rc, dto)
	if err != nil {
		return p.abort(rc, complete, serviceError(err))
	}
	if handled {
		p.metrics.shortCircuit("request")
		result = EmptyResult()
		complete(result)
		return result
	}

	p.enter(rc, StateInvoking)
	ctx, endSpan := p.startSpan(rc.Context(), "dispatch.invoke", map[string]string{
		"dispatch.attributes": rc.Attributes.String(),
	})
	resp, err := invoke(ctx, svc, dto, rc)
	endSpan()
	if err != nil {
		return p.abort(rc, complete, serviceError(err))
	}

	p.enter(rc, StateBinding)
	b := p.binders.TryConvert(rc, resp, complete)
	p.enter(rc, StateAwaitingCompletion)
	switch {
	case b.IsDeferred():
		return EmptyResult()
	case b.IsClaimed():
		result = b.Result()
		if once.Fired() {
			// The binder completed before failing; its completion stands.
			if err := result.Err(); err != nil {
				p.metrics.failed(err)
				p.logFailure(rc, err)
			}
			return EmptyResult()
		}
	default:
		result = Completed(resp)
	}
	complete(result)
	return result
}

// abort writes err and completes with an empty result.
func (p *Pipeline) abort(rc *RequestContext, complete CompleteFunc, err error) ServiceResult {
	p.fail(rc, err)
	complete(EmptyResult())
	return EmptyResult()
}

// End runs the response phase for result: response filters, then the
// writer. It does nothing but finalize when the response is already closed
// or result is empty. Failures are written as error responses. When End
// returns, rc is closed.
func (p *Pipeline) End(rc *RequestContext, result ServiceResult) {
	defer func() {
		if rec := recover(); rec != nil {
			p.fail(rc, &PanicError{Value: rec, Stack: debug.Stack()})
		}
		p.finish(rc)
	}()

	if rc.IsClosed() {
		return
	}
	if err := result.Err(); err != nil {
		p.fail(rc, serviceError(err))
		return
	}
	if result.IsEmpty() {
		return
	}

	p.enter(rc, StateResponseFiltering)
	handled, err := p.filters.RunResponseFilters(rc, result.Value())
	if err != nil {
		p.fail(rc, serviceError(err))
		return
	}
	if handled {
		p.metrics.shortCircuit("response")
		return
	}

	p.enter(rc, StateWriting)
	if err := p.writer.Write(rc, result.Value()); err != nil {
		p.fail(rc, err)
	}
}

// fail logs err and, when nothing has reached the client yet, writes it as
// an error response. Otherwise the connection is closed as is.
func (p *Pipeline) fail(rc *RequestContext, err error) {
	err = p.mapErr(rc, err)
	p.metrics.failed(err)
	p.logFailure(rc, err)

	if rc.IsClosed() {
		return
	}

	var we *WriteError
	if rc.Committed() || (errors.As(err, &we) && we.Committed) {
		p.forceClose(rc)
		return
	}

	if werr := p.writer.WriteError(rc, err, p.settings.DefaultContentType); werr != nil {
		p.logger.ErrorContext(rc.Context(), "dispatch: write error response",
			slog.String("route", rc.Route.String()),
			slog.Any("error", werr),
		)
		p.forceClose(rc)
	}
}

// mapErr applies the error mapper. A nil result or a panicking mapper
// leaves err unchanged.
func (p *Pipeline) mapErr(rc *RequestContext, err error) (mapped error) {
	if p.mapError == nil {
		return err
	}
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.ErrorContext(rc.Context(), "dispatch: error mapper panicked",
				slog.String("route", rc.Route.String()),
				slog.Any("panic", rec),
			)
			mapped = err
		}
	}()
	if m := p.mapError(rc, err); m != nil {
		return m
	}
	return err
}

func (p *Pipeline) finish(rc *RequestContext) {
	p.forceClose(rc)
	p.enter(rc, StateClosed)
}

func (p *Pipeline) forceClose(rc *RequestContext) {
	if err := rc.Close(); err != nil {
		p.logger.WarnContext(rc.Context(), "dispatch: close response",
			slog.String("route", rc.Route.String()),
			slog.Any("error", err),
		)
	}
}

func (p *Pipeline) logFailure(rc *RequestContext, err error) {
	status := ErrorStatus(err)
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}

	attrs := []slog.Attr{
		slog.String("method", rc.Request.Method),
		slog.String("path", rc.Request.URL.Path),
		slog.String("route", rc.Route.String()),
		slog.Int("status", status),
		slog.String("state", rc.State().String()),
		slog.Any("error", err),
	}
	if id, ok := RequestIDFrom(rc.Context()); ok {
		attrs = append(attrs, slog.String("request_id", id))
	}
	var pe *PanicError
	if errors.As(err, &pe) {
		attrs = append(attrs, slog.String("stack", string(pe.Stack)))
	}
	p.logger.LogAttrs(rc.Context(), level, "dispatch: request failed", attrs...)
}

func (p *Pipeline) enter(rc *RequestContext, s State) {
	rc.state.Store(int32(s))
	for _, o := range p.observers {
		o.OnState(rc, s)
	}
}

func (p *Pipeline) startSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, func()) {
	if p.tracer == nil {
		return ctx, func() {}
	}
	return p.tracer.StartSpan(ctx, name, attrs)
}
