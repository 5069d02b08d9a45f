// Package dispatchotel traces dispatch pipelines with OpenTelemetry.
package dispatchotel

import (
	"context"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/bjaus/dispatch"
)

// instrumentation is the instrumentation scope name.
const instrumentation = "github.com/bjaus/dispatch"

// Tracer implements dispatch.SpanStarter on an OpenTelemetry tracer.
type Tracer struct {
	tracer trace.Tracer
}

var _ dispatch.SpanStarter = (*Tracer)(nil)

// New returns a Tracer using tp, or the global provider when tp is nil.
func New(tp trace.TracerProvider) *Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Tracer{tracer: tp.Tracer(instrumentation)}
}

// StartSpan starts a server span named name carrying attrs.
func (t *Tracer) StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, func()) {
	kvs := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		kvs = append(kvs, attribute.String(k, v))
	}
	ctx, span := t.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(kvs...),
	)
	return ctx, func() { span.End() }
}

// Setup installs a global tracer provider that writes spans to w as JSON
// and returns its shutdown function.
func Setup(serviceName string, w io.Writer) (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes("", semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
