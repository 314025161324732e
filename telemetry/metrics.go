// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/absmach/fluxtopic/topic/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/absmach/fluxtopic"

// Metrics holds OpenTelemetry instruments for partition operations. It
// observes every operation executed by a topic service.
type Metrics struct {
	tracer trace.Tracer

	// Counters
	operations    metric.Int64Counter
	offered       metric.Int64Counter
	accepted      metric.Int64Counter
	rejected      metric.Int64Counter
	offers        metric.Int64Counter
	polls         metric.Int64Counter
	delivered     metric.Int64Counter
	commits       metric.Int64Counter
	evictions     metric.Int64Counter
	cleanupFailed metric.Int64Counter

	// Histograms
	duration metric.Float64Histogram
}

// NewMetrics creates instruments on the global meter and tracer providers.
func NewMetrics() (*Metrics, error) {
	return NewMetricsWith(otel.Meter(instrumentationName), otel.Tracer(instrumentationName))
}

// NewMetricsWith creates instruments on the given meter and tracer.
func NewMetricsWith(meter metric.Meter, tracer trace.Tracer) (*Metrics, error) {
	m := &Metrics{tracer: tracer}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.operations, "topic.operations.total", "Partition operations by op and result"},
		{&m.offered, "topic.elements.offered.total", "Elements offered to channels"},
		{&m.accepted, "topic.elements.accepted.total", "Elements appended to pages"},
		{&m.rejected, "topic.elements.rejected.total", "Elements rejected individually"},
		{&m.offers, "topic.offers.total", "Offers by status"},
		{&m.polls, "topic.polls.total", "Polls by status"},
		{&m.delivered, "topic.elements.delivered.total", "Elements returned by polls"},
		{&m.commits, "topic.commits.total", "Commits by status"},
		{&m.evictions, "topic.evictions.total", "Subscribers evicted by cleanup by reason"},
		{&m.cleanupFailed, "topic.cleanup.failed.total", "Topics whose cleanup sweep failed"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("failed to create %s counter: %w", c.name, err)
		}
		*c.dst = counter
	}

	var err error
	m.duration, err = meter.Float64Histogram(
		"topic.operation.duration.ms",
		metric.WithDescription("Partition operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	return m, nil
}

// Observe records the outcome of one partition operation.
func (m *Metrics) Observe(ctx context.Context, partition int, req types.Request, resp types.Response, err error, elapsed time.Duration) {
	op := req.Op().String()
	result := "ok"
	if err != nil {
		result = "error"
	}
	opAttr := attribute.String("op", op)

	m.operations.Add(ctx, 1, metric.WithAttributes(opAttr, attribute.String("result", result)))
	m.duration.Record(ctx, float64(elapsed)/float64(time.Millisecond), metric.WithAttributes(opAttr))
	m.span(ctx, partition, op, err, elapsed)

	if err != nil {
		return
	}
	switch r := resp.(type) {
	case *types.OfferResponse:
		if o, ok := req.(*types.OfferRequest); ok {
			m.offered.Add(ctx, int64(len(o.Elements)))
		}
		m.accepted.Add(ctx, int64(r.Accepted))
		if len(r.Errors) > 0 {
			m.rejected.Add(ctx, int64(len(r.Errors)))
		}
		m.offers.Add(ctx, 1, metric.WithAttributes(attribute.String("status", r.Status.String())))
	case *types.PollResponse:
		m.polls.Add(ctx, 1, metric.WithAttributes(attribute.String("status", r.Status.String())))
		if len(r.Elements) > 0 {
			m.delivered.Add(ctx, int64(len(r.Elements)))
		}
	case *types.CommitResponse:
		m.commits.Add(ctx, 1, metric.WithAttributes(attribute.String("status", r.Status.String())))
	case *types.CleanupResponse:
		for _, e := range r.Evicted {
			m.evictions.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", e.Reason.String())))
		}
		if len(r.Failed) > 0 {
			m.cleanupFailed.Add(ctx, int64(len(r.Failed)))
		}
	}
}

// span records an already finished operation.
func (m *Metrics) span(ctx context.Context, partition int, op string, err error, elapsed time.Duration) {
	end := time.Now()
	_, span := m.tracer.Start(ctx, "topic."+op,
		trace.WithTimestamp(end.Add(-elapsed)),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.Int("partition", partition)),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End(trace.WithTimestamp(end))
}
