package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "runlens"

// Metrics holds all RunLens metric instruments.
type Metrics struct {
	RunsIngested  metric.Int64Counter
	RunsUpdated   metric.Int64Counter
	RunsCompleted metric.Int64Counter
	RunsFailed    metric.Int64Counter
	RunDuration   metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.RunsIngested, err = meter.Int64Counter("runlens.runs.ingested",
		metric.WithDescription("Number of runs first seen"))
	if err != nil {
		return nil, err
	}

	m.RunsUpdated, err = meter.Int64Counter("runlens.runs.updated",
		metric.WithDescription("Number of in-flight run merges"))
	if err != nil {
		return nil, err
	}

	m.RunsCompleted, err = meter.Int64Counter("runlens.runs.completed",
		metric.WithDescription("Number of runs reaching completed"))
	if err != nil {
		return nil, err
	}

	m.RunsFailed, err = meter.Int64Counter("runlens.runs.failed",
		metric.WithDescription("Number of runs reaching failed"))
	if err != nil {
		return nil, err
	}

	m.RunDuration, err = meter.Float64Histogram("runlens.run.duration_seconds",
		metric.WithDescription("Run duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
