package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "agentrouter"

// Metrics holds the dispatch metric instruments and implements
// metrics.Recorder.
type Metrics struct {
	Selections   metric.Int64Counter
	TaskDuration metric.Float64Histogram
	Failovers    metric.Int64Counter
}

// NewMetrics creates all metric instruments on mp. A nil provider uses the
// global one.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(meterName)
	m := &Metrics{}
	var err error

	m.Selections, err = meter.Int64Counter("agentrouter.selection.attempts",
		metric.WithDescription("Number of agent selection attempts"))
	if err != nil {
		return nil, err
	}

	m.TaskDuration, err = meter.Float64Histogram("agentrouter.task.duration_seconds",
		metric.WithDescription("Agent task execution duration in seconds"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	m.Failovers, err = meter.Int64Counter("agentrouter.failovers",
		metric.WithDescription("Number of dispatches that succeeded after failover"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordSelection counts one selection attempt.
func (m *Metrics) RecordSelection(ctx context.Context, strategy, outcome, agentID string) {
	m.Selections.Add(ctx, 1, metric.WithAttributes(
		attribute.String("strategy", strategy),
		attribute.String("outcome", outcome),
		attribute.String("agent", agentID),
	))
}

// RecordExecution observes one agent execution.
func (m *Metrics) RecordExecution(ctx context.Context, agentID, taskType, outcome string, d time.Duration) {
	m.TaskDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("agent", agentID),
		attribute.String("task_type", taskType),
		attribute.String("outcome", outcome),
	))
}

// RecordFailover counts one failover.
func (m *Metrics) RecordFailover(ctx context.Context, initialAgent, finalAgent, taskType string) {
	m.Failovers.Add(ctx, 1, metric.WithAttributes(
		attribute.String("initial_agent", initialAgent),
		attribute.String("final_agent", finalAgent),
		attribute.String("task_type", taskType),
	))
}
