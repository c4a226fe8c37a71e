package httpcache

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	metricsOnce     sync.Once
	cacheOperations metric.Int64Counter
	cacheDuration   metric.Float64Histogram
)

func initMetrics() {
	metricsOnce.Do(func() {
		meter := otel.Meter("github.com/gadgethost/bridge/internal/httpcache")

		var err error
		cacheOperations, err = meter.Int64Counter(
			"httpcache.operations",
			metric.WithDescription("Total response cache operations"),
		)
		if err != nil {
			otel.Handle(err)
		}

		cacheDuration, err = meter.Float64Histogram(
			"httpcache.operation.duration",
			metric.WithDescription("Response cache operation duration"),
			metric.WithUnit("s"),
		)
		if err != nil {
			otel.Handle(err)
		}
	})
}

// Instrumented wraps a Cache with metrics instrumentation.
type Instrumented struct {
	wrapped   Cache
	cacheType string
}

// NewInstrumented creates an instrumented cache wrapper.
func NewInstrumented(cache Cache, cacheType string) *Instrumented {
	initMetrics()
	return &Instrumented{
		wrapped:   cache,
		cacheType: cacheType,
	}
}

// Get retrieves a response from the cache.
func (i *Instrumented) Get(ctx context.Context, key Key) (Response, bool) {
	start := time.Now()

	value, found := i.wrapped.Get(ctx, key)

	duration := time.Since(start)
	i.recordDuration(ctx, "get", duration)

	status := "miss"
	if found {
		status = "hit"
	}
	i.recordOperation(ctx, "get", status)
	i.setSpanAttributes(ctx, "get", status, duration)

	return value, found
}

// Add stores a response in the cache.
func (i *Instrumented) Add(ctx context.Context, key Key, resp Response) (Response, bool) {
	start := time.Now()

	prev, had := i.wrapped.Add(ctx, key, resp)

	duration := time.Since(start)
	i.recordDuration(ctx, "add", duration)

	status := "stored"
	if had && !key.ForceRefresh() {
		status = "kept"
	}
	i.recordOperation(ctx, "add", status)
	i.setSpanAttributes(ctx, "add", status, duration)

	return prev, had
}

// Remove deletes a response from the cache.
func (i *Instrumented) Remove(ctx context.Context, key Key) (Response, bool) {
	start := time.Now()

	prev, had := i.wrapped.Remove(ctx, key)

	duration := time.Since(start)
	i.recordDuration(ctx, "remove", duration)

	status := "absent"
	if had {
		status = "removed"
	}
	i.recordOperation(ctx, "remove", status)
	i.setSpanAttributes(ctx, "remove", status, duration)

	return prev, had
}

func (i *Instrumented) recordOperation(ctx context.Context, operation, status string) {
	if cacheOperations == nil {
		return
	}
	cacheOperations.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("cache.type", i.cacheType),
			attribute.String("cache.operation", operation),
			attribute.String("cache.status", status),
		),
	)
}

func (i *Instrumented) recordDuration(ctx context.Context, operation string, duration time.Duration) {
	if cacheDuration == nil {
		return
	}
	cacheDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(
			attribute.String("cache.type", i.cacheType),
			attribute.String("cache.operation", operation),
		),
	)
}

func (i *Instrumented) setSpanAttributes(ctx context.Context, operation, status string, duration time.Duration) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("cache.type", i.cacheType),
		attribute.String("cache."+operation+".status", status),
		attribute.Float64("cache."+operation+".duration", duration.Seconds()),
	)
}
