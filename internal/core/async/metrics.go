package async

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// QueueMetrics defines the measurements taken by the worker pool.
type QueueMetrics interface {
	AddSubmitted(ctx context.Context, n int)
	ObserveTask(ctx context.Context, outcome string, d time.Duration)
	TrackActive(ctx context.Context, delta int)
}

// Task outcomes reported by ObserveTask.
const (
	OutcomeResult   = "result"
	OutcomeNoResult = "no_result"
	OutcomeFailed   = "failed"
)

type queueMetrics struct {
	submitted   metric.Int64Counter
	completed   metric.Int64Counter
	active      metric.Int64UpDownCounter
	processTime metric.Float64Histogram
}

const namespace = "resumescan.queue"

// NewQueueMetrics registers the queue instruments with mp.
func NewQueueMetrics(mp metric.MeterProvider) (QueueMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	m := new(queueMetrics)
	var err error

	if m.submitted, err = meter.Int64Counter(
		"tasks_submitted_total",
		metric.WithDescription("Total number of scan tasks accepted by the queue"),
	); err != nil {
		return nil, err
	}

	if m.completed, err = meter.Int64Counter(
		"tasks_completed_total",
		metric.WithDescription("Total number of scan tasks that reached a terminal state"),
	); err != nil {
		return nil, err
	}

	if m.active, err = meter.Int64UpDownCounter(
		"active_tasks",
		metric.WithDescription("Number of scan tasks currently running"),
	); err != nil {
		return nil, err
	}

	if m.processTime, err = meter.Float64Histogram(
		"task_process_time_seconds",
		metric.WithDescription("Time spent running one scan task"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *queueMetrics) AddSubmitted(ctx context.Context, n int) {
	m.submitted.Add(ctx, int64(n))
}

func (m *queueMetrics) ObserveTask(ctx context.Context, outcome string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.completed.Add(ctx, 1, attrs)
	m.processTime.Record(ctx, d.Seconds(), attrs)
}

func (m *queueMetrics) TrackActive(ctx context.Context, delta int) {
	m.active.Add(ctx, int64(delta))
}
