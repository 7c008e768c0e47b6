package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const meterName = "github.com/stockline/api/internal/platform/observability"

// MutationRecorder counts product mutations by operation and outcome.
type MutationRecorder struct {
	mutations metric.Int64Counter
	enabled   bool
}

// NewMutationRecorder registers the inventory.product.mutations counter on meter.
// A nil meter uses the global provider.
func NewMutationRecorder(meter metric.Meter, logger *zap.Logger) *MutationRecorder {
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(meterName)
	}
	counter, err := meter.Int64Counter(
		"inventory.product.mutations",
		metric.WithDescription("Product and variant mutations by operation and outcome"),
	)
	if err != nil && logger != nil {
		logger.Warn("observability: unable to register mutation counter", zap.Error(err))
	}
	return &MutationRecorder{mutations: counter, enabled: err == nil}
}

// RecordMutation increments the counter for op. Outcome is "success" when err is nil.
func (r *MutationRecorder) RecordMutation(ctx context.Context, op string, err error) {
	if r == nil || !r.enabled {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	r.mutations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	))
}

// AuthMetrics records token verification outcomes for the auth middleware.
type AuthMetrics struct {
	latency metric.Float64Histogram
	enabled bool
}

// NewAuthMetrics registers the auth.verification.latency histogram.
func NewAuthMetrics(meter metric.Meter, logger *zap.Logger) *AuthMetrics {
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(meterName)
	}
	histogram, err := meter.Float64Histogram(
		"auth.verification.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Token verification latency by kind and outcome"),
	)
	if err != nil && logger != nil {
		logger.Warn("observability: unable to register auth metric", zap.Error(err))
	}
	return &AuthMetrics{latency: histogram, enabled: err == nil}
}

// RecordVerification implements auth.MetricsRecorder.
func (m *AuthMetrics) RecordVerification(ctx context.Context, kind string, success bool, reason string, duration time.Duration) {
	if m == nil || !m.enabled {
		return
	}
	m.latency.Record(ctx, float64(duration)/float64(time.Millisecond), metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.Bool("success", success),
		attribute.String("reason", reason),
	))
}
