package store

import (
	"context"
	"sync"
	"time"

	"github.com/smeagol-wiki/smeagol-client/internal/failure"
	"github.com/smeagol-wiki/smeagol-client/internal/resource"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/smeagol-wiki/smeagol-client/internal/store"

var (
	metricsOnce   sync.Once
	storeRequests metric.Int64Counter
	storeFetches  metric.Int64Counter
	fetchDuration metric.Float64Histogram
)

func initMetrics() {
	metricsOnce.Do(func() {
		meter := otel.Meter(instrumentationName)

		var err error
		storeRequests, err = meter.Int64Counter(
			"store.requests",
			metric.WithDescription("Fetch requests seen by the gate, by entry status"),
		)
		if err != nil {
			otel.Handle(err)
		}

		storeFetches, err = meter.Int64Counter(
			"store.fetches",
			metric.WithDescription("Completed fetches, by outcome"),
		)
		if err != nil {
			otel.Handle(err)
		}

		fetchDuration, err = meter.Float64Histogram(
			"store.fetch.duration",
			metric.WithDescription("Fetch duration"),
			metric.WithUnit("s"),
		)
		if err != nil {
			otel.Handle(err)
		}
	})
}

func tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

func recordRequest(ctx context.Context, kind resource.Kind, status string) {
	if storeRequests == nil {
		return
	}
	storeRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("store.kind", string(kind)),
			attribute.String("store.status", status),
		),
	)
}

func recordFetch(ctx context.Context, span trace.Span, kind resource.Kind, outcome State, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("store.kind", string(kind)),
		attribute.String("store.outcome", outcome.String()),
	}

	if storeFetches != nil {
		storeFetches.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	if fetchDuration != nil {
		fetchDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs[0]))
	}

	span.SetAttributes(attrs...)
	span.SetAttributes(attribute.Float64("store.fetch.duration", duration.Seconds()))
	if outcome == Failed {
		span.SetAttributes(attribute.String("store.failure", failure.Kind(err)))
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
	}
}
