package firecracker

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the metrics instruments for control-plane calls.
type Metrics struct {
	APIDuration      metric.Float64Histogram
	APIErrorsTotal   metric.Int64Counter
	RateLimitedTotal metric.Int64Counter
}

// NewMetrics creates the instruments.
// If meter is nil, returns nil (metrics disabled).
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		return nil, nil
	}

	apiDuration, err := meter.Float64Histogram(
		"fcctl_firecracker_api_duration_seconds",
		metric.WithDescription("Firecracker API call duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	apiErrorsTotal, err := meter.Int64Counter(
		"fcctl_firecracker_api_errors_total",
		metric.WithDescription("Total number of failed Firecracker API calls"),
	)
	if err != nil {
		return nil, err
	}

	rateLimitedTotal, err := meter.Int64Counter(
		"fcctl_firecracker_rate_limited_total",
		metric.WithDescription("Total number of calls refused by the client request limiter"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		APIDuration:      apiDuration,
		APIErrorsTotal:   apiErrorsTotal,
		RateLimitedTotal: rateLimitedTotal,
	}, nil
}

// RecordAPICall records the duration and outcome of an API call.
func (m *Metrics) RecordAPICall(ctx context.Context, operation string, start time.Time, err error) {
	if m == nil {
		return
	}

	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil {
		status = "error"
		kind := KindOf(err)
		m.APIErrorsTotal.Add(ctx, 1,
			metric.WithAttributes(
				attribute.String("operation", operation),
				attribute.String("kind", kind.String()),
			))
		if kind == KindRateLimited {
			m.RateLimitedTotal.Add(ctx, 1,
				metric.WithAttributes(attribute.String("operation", operation)))
		}
	}

	m.APIDuration.Record(ctx, duration,
		metric.WithAttributes(
			attribute.String("operation", operation),
			attribute.String("status", status),
		))
}
