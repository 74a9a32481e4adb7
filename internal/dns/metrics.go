package dns

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "go_subdns/internal/dns"

// Job outcomes as reported in metrics and logs
const (
	outcomeSuccess  = "success"
	outcomeRetrying = "retrying"
	outcomeFailed   = "failed"
	outcomeError    = "error" // the job could not be completed in the store
)

type syncMetrics struct {
	jobs         metric.Int64Counter
	providerCall metric.Float64Histogram
}

func newSyncMetrics(meter metric.Meter) (*syncMetrics, error) {
	if meter == nil {
		meter = otel.Meter(meterName)
	}

	jobs, err := meter.Int64Counter("dns_sync_jobs_total",
		metric.WithDescription("Sync jobs processed by the dispatcher"),
		metric.WithUnit("{job}"),
	)
	if err != nil {
		return nil, err
	}

	providerCall, err := meter.Float64Histogram("dns_sync_provider_call_duration_seconds",
		metric.WithDescription("Latency of DNS provider calls"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &syncMetrics{jobs: jobs, providerCall: providerCall}, nil
}

func (m *syncMetrics) recordJob(ctx context.Context, jobType, outcome string) {
	m.jobs.Add(ctx, 1, metric.WithAttributes(
		attribute.String("job_type", jobType),
		attribute.String("outcome", outcome),
	))
}

func (m *syncMetrics) recordProviderCall(ctx context.Context, jobType string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.providerCall.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
		attribute.String("job_type", jobType),
		attribute.String("result", result),
	))
}
