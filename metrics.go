package dispatch

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects Prometheus metrics for a Pipeline. A nil *Metrics
// records nothing.
type Metrics struct {
	inFlight      prometheus.Gauge
	requests      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	shortCircuits *prometheus.CounterVec
	failures      *prometheus.CounterVec
}

// NewMetrics creates the pipeline collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dispatch",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of requests inside the pipeline.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dispatch",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of requests dispatched.",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dispatch",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Time from request arrival to response close.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		}, []string{"method", "route"}),
		shortCircuits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dispatch",
			Subsystem: "filters",
			Name:      "short_circuits_total",
			Help:      "Requests handled by a filter before reaching the next stage.",
		}, []string{"phase"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dispatch",
			Subsystem: "pipeline",
			Name:      "failures_total",
			Help:      "Failed requests by error category.",
		}, []string{"kind"}),
	}
	reg.MustRegister(m.inFlight, m.requests, m.duration, m.shortCircuits, m.failures)
	return m
}

func (m *Metrics) started() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

func (m *Metrics) finished(rc *RequestContext, d time.Duration) {
	if m == nil {
		return
	}
	m.inFlight.Dec()
	route := rc.Route.Pattern
	m.requests.WithLabelValues(rc.Request.Method, route, strconv.Itoa(rc.Status())).Inc()
	m.duration.WithLabelValues(rc.Request.Method, route).Observe(d.Seconds())
}

func (m *Metrics) shortCircuit(phase string) {
	if m == nil {
		return
	}
	m.shortCircuits.WithLabelValues(phase).Inc()
}

func (m *Metrics) failed(err error) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(errorKind(err)).Inc()
}

// errorKind names the category of err for metric labels.
func errorKind(err error) string {
	var pe *PanicError
	switch {
	case errors.As(err, &pe):
		return "panic"
	case errors.Is(err, ErrDeserialization):
		return "deserialization"
	case errors.Is(err, ErrUnsupportedMediaType):
		return "unsupported_media_type"
	case errors.Is(err, ErrWrite):
		return "write"
	case errors.Is(err, ErrService):
		return "service"
	default:
		return "other"
	}
}
