package observability

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ScopeName is the instrumentation scope used for meters and tracers.
const ScopeName = "github.com/searchktools/tiny-server"

// Monitor records per-route request metrics. Every request is exported
// through OpenTelemetry and also aggregated locally for Snapshot.
type Monitor struct {
	tracer   trace.Tracer
	requests metric.Int64Counter
	duration metric.Float64Histogram

	routes sync.Map // route -> *RouteMetrics
	total  atomic.Uint64
	errors atomic.Uint64
}

// RouteMetrics stores per-route metrics
type RouteMetrics struct {
	Route         string
	Count         atomic.Uint64
	Errors        atomic.Uint64
	TotalDuration atomic.Uint64
	MinDuration   atomic.Uint64
	MaxDuration   atomic.Uint64
}

// NewMonitor creates a monitor on the given providers. Nil providers fall
// back to the global ones.
func NewMonitor(mp metric.MeterProvider, tp trace.TracerProvider) (*Monitor, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	meter := mp.Meter(ScopeName)

	requests, err := meter.Int64Counter("http.server.requests",
		metric.WithDescription("Number of requests answered"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram("http.server.duration",
		metric.WithDescription("Time spent handling a request"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	return &Monitor{
		tracer:   tp.Tracer(ScopeName),
		requests: requests,
		duration: duration,
	}, nil
}

// StartSpan starts the span covering one request.
func (m *Monitor) StartSpan(ctx context.Context, method string) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, method,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("http.request.method", method)))
}

// EndSpan names the span after the matched route and ends it.
func (m *Monitor) EndSpan(span trace.Span, method, route string, status int) {
	if route != "" {
		span.SetName(method + " " + route)
		span.SetAttributes(attribute.String("http.route", route))
	}
	span.SetAttributes(attribute.Int("http.response.status_code", status))
	if status >= 500 {
		span.SetStatus(codes.Error, "server error")
	}
	span.End()
}

// RecordRequest records a request. route is the matched pattern, empty when
// nothing matched.
func (m *Monitor) RecordRequest(ctx context.Context, method, route string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	isError := status >= 500

	attrs := metric.WithAttributes(
		attribute.String("http.request.method", method),
		attribute.String("http.route", route),
		attribute.Int("http.response.status_code", status))
	m.requests.Add(ctx, 1, attrs)
	m.duration.Record(ctx, durationMillis(d), attrs)

	key := method + " " + route
	val, _ := m.routes.LoadOrStore(key, &RouteMetrics{Route: key})
	metrics := val.(*RouteMetrics)

	metrics.Count.Add(1)
	m.total.Add(1)
	if isError {
		metrics.Errors.Add(1)
		m.errors.Add(1)
	}

	durationNs := uint64(d.Nanoseconds())
	metrics.TotalDuration.Add(durationNs)
	updateMinMax(metrics, durationNs)
}

func updateMinMax(m *RouteMetrics, d uint64) {
	for {
		min := m.MinDuration.Load()
		if min != 0 && d >= min {
			break
		}
		if m.MinDuration.CompareAndSwap(min, d) {
			break
		}
	}
	for {
		max := m.MaxDuration.Load()
		if d <= max {
			break
		}
		if m.MaxDuration.CompareAndSwap(max, d) {
			break
		}
	}
}

// RouteStats is a point-in-time copy of one route's metrics
type RouteStats struct {
	Route       string
	Count       uint64
	Errors      uint64
	AvgDuration time.Duration
	MinDuration time.Duration
	MaxDuration time.Duration
}

// Snapshot holds request totals and per-route stats sorted by route.
type Snapshot struct {
	TotalRequests uint64
	TotalErrors   uint64
	Routes        []RouteStats
}

// Snapshot returns the current aggregates
func (m *Monitor) Snapshot() Snapshot {
	snap := Snapshot{
		TotalRequests: m.total.Load(),
		TotalErrors:   m.errors.Load(),
	}

	m.routes.Range(func(key, value any) bool {
		rm := value.(*RouteMetrics)
		count := rm.Count.Load()
		rs := RouteStats{
			Route:       rm.Route,
			Count:       count,
			Errors:      rm.Errors.Load(),
			MinDuration: time.Duration(rm.MinDuration.Load()),
			MaxDuration: time.Duration(rm.MaxDuration.Load()),
		}
		if count > 0 {
			rs.AvgDuration = time.Duration(rm.TotalDuration.Load() / count)
		}
		snap.Routes = append(snap.Routes, rs)
		return true
	})

	sort.Slice(snap.Routes, func(i, j int) bool {
		return snap.Routes[i].Route < snap.Routes[j].Route
	})
	return snap
}

func durationMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
