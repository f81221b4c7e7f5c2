package coordinator

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/BaSui01/agentcoord/coordinator"

// instruments OTel 追踪与指标
type instruments struct {
	tracer trace.Tracer
	// 柜台
	cycleTotal     metric.Int64Counter
	taskSubmitted  metric.Int64Counter
	rebalanceHints metric.Int64Counter
	// 直方图
	cycleDuration metric.Float64Histogram
}

func newInstruments(tp trace.TracerProvider, mp metric.MeterProvider) (*instruments, error) {
	meter := mp.Meter(instrumentationName)
	in := &instruments{tracer: tp.Tracer(instrumentationName)}

	var err error
	in.cycleTotal, err = meter.Int64Counter("coordinator.cycle.total",
		metric.WithDescription("Coordination cycles run"),
		metric.WithUnit("{cycle}"))
	if err != nil {
		return nil, err
	}

	in.taskSubmitted, err = meter.Int64Counter("coordinator.task.submitted",
		metric.WithDescription("Tasks submitted, by initial status"),
		metric.WithUnit("{task}"))
	if err != nil {
		return nil, err
	}

	in.rebalanceHints, err = meter.Int64Counter("coordinator.rebalance.hints",
		metric.WithDescription("Load rebalancing hints emitted"),
		metric.WithUnit("{hint}"))
	if err != nil {
		return nil, err
	}

	in.cycleDuration, err = meter.Float64Histogram("coordinator.cycle.duration",
		metric.WithDescription("Coordination cycle duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5))
	if err != nil {
		return nil, err
	}

	return in, nil
}

func (in *instruments) startStep(ctx context.Context, name string) (context.Context, trace.Span) {
	return in.tracer.Start(ctx, "coordinator."+name)
}

func (in *instruments) endCycle(ctx context.Context, span trace.Span, d time.Duration, err error) {
	defer span.End()

	result := "ok"
	if err != nil {
		result = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	attrs := metric.WithAttributes(attribute.String("result", result))
	in.cycleTotal.Add(ctx, 1, attrs)
	in.cycleDuration.Record(ctx, d.Seconds(), attrs)
}
