// Package observability provides tracing for pool lifecycle operations
package observability

import (
	"context"
	"io"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ajitpratap0/connpool/pkg/connector/core"
	"github.com/ajitpratap0/connpool/pkg/logger"
	"github.com/ajitpratap0/connpool/pkg/metrics"
)

const instrumentationName = "github.com/ajitpratap0/connpool"

var (
	provider interface {
		Shutdown(ctx context.Context) error
	}

	initOnce sync.Once
)

// TracingConfig contains tracing configuration
type TracingConfig struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	SamplingRate   float64
	// Writer receives exported spans; stdout when nil
	Writer io.Writer
}

// Initialize installs the tracer provider. Only the first call has any
// effect; when tracing is disabled the global no-op provider stays in place.
func Initialize(cfg TracingConfig) error {
	var err error
	initOnce.Do(func() {
		if !cfg.Enabled {
			return
		}
		err = initTracing(cfg)
	})
	return err
}

// PoolTracer wraps lifecycle operations in spans and records their outcome.
type PoolTracer struct {
	component  string
	tracer     trace.Tracer
	operations metric.Int64Counter
}

// NewPoolTracer creates a tracer for the named component. The tracer and
// meter are taken from the global providers at call time.
func NewPoolTracer(component string) *PoolTracer {
	counter, err := otel.Meter(instrumentationName).Int64Counter(
		"connpool.lifecycle.operations",
		metric.WithDescription("Pool lifecycle operations"),
	)
	if err != nil {
		counter = nil
	}
	return &PoolTracer{
		component:  component,
		tracer:     otel.Tracer(instrumentationName),
		operations: counter,
	}
}

// StartSpan starts a span for operation on pool id.
func (pt *PoolTracer) StartSpan(ctx context.Context, operation string, id core.PoolIdentity) (context.Context, trace.Span) {
	return pt.tracer.Start(ctx, pt.component+"."+operation,
		trace.WithAttributes(
			attribute.String("pool.name", id.Name),
			attribute.String("pool.application", id.Application),
			attribute.String("pool.module", id.Module),
			attribute.String("connpool.operation", operation),
		))
}

// Trace runs fn inside a span and records the outcome in both the span and
// the lifecycle metrics.
func (pt *PoolTracer) Trace(ctx context.Context, operation string, id core.PoolIdentity, fn func(ctx context.Context) error) error {
	ctx, span := pt.StartSpan(ctx, operation, id)
	defer span.End()
	ctx = logger.WithOperation(ctx, id.String(), operation)

	start := time.Now()
	err := fn(ctx)
	metrics.ObserveOperation(operation, time.Since(start), err)

	if pt.operations != nil {
		pt.operations.Add(ctx, 1, metric.WithAttributes(
			attribute.String("operation", operation),
			attribute.String("status", metrics.Status(err)),
		))
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return err
}
