package recovery

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/corvid-labs/remedy/telemetry"
)

// MetricsCollector mirrors engine outcomes to an external metrics system.
// The engine's own Metrics stay authoritative; the collector is a second
// write path for dashboards and alerting.
type MetricsCollector interface {
	RecordError(kind Kind, model string)
	RecordRetry(kind Kind, attempt int)
	RecordRecovery(kind Kind, duration time.Duration)
	RecordFallbackSwitch(kind Kind, target string)
	RecordUnrecoverable(kind Kind)
	RecordBreakerTransition(model, from, to string)
}

// noopCollector is the default when no collector is configured.
type noopCollector struct{}

func (noopCollector) RecordError(kind Kind, model string)              {}
func (noopCollector) RecordRetry(kind Kind, attempt int)               {}
func (noopCollector) RecordRecovery(kind Kind, duration time.Duration) {}
func (noopCollector) RecordFallbackSwitch(kind Kind, target string)    {}
func (noopCollector) RecordUnrecoverable(kind Kind)                    {}
func (noopCollector) RecordBreakerTransition(model, from, to string)   {}

// OTelCollector implements MetricsCollector using OpenTelemetry instruments.
type OTelCollector struct {
	metrics *telemetry.MetricInstruments
	ctx     context.Context
}

// NewOTelCollector creates an OpenTelemetry-backed collector. The context
// is attached to every recorded measurement.
func NewOTelCollector(ctx context.Context) *OTelCollector {
	return &OTelCollector{
		metrics: telemetry.NewMetricInstruments("remedy-recovery"),
		ctx:     ctx,
	}
}

func (o *OTelCollector) RecordError(kind Kind, model string) {
	attrs := []attribute.KeyValue{attribute.String("error.kind", string(kind))}
	if model != "" {
		attrs = append(attrs, attribute.String("origin.model", model))
	}
	_ = o.metrics.RecordCounter(o.ctx, telemetry.MetricErrorsTotal, 1,
		metric.WithAttributes(attrs...))
}

func (o *OTelCollector) RecordRetry(kind Kind, attempt int) {
	_ = o.metrics.RecordCounter(o.ctx, telemetry.MetricRetryAttempts, 1,
		metric.WithAttributes(
			attribute.String("error.kind", string(kind)),
			attribute.Int("attempt", attempt),
		))
}

func (o *OTelCollector) RecordRecovery(kind Kind, duration time.Duration) {
	_ = o.metrics.RecordCounter(o.ctx, telemetry.MetricRecoveries, 1,
		metric.WithAttributes(attribute.String("error.kind", string(kind))))
	_ = o.metrics.RecordHistogram(o.ctx, telemetry.MetricRecoveryDuration,
		float64(duration.Milliseconds()),
		metric.WithAttributes(attribute.String("error.kind", string(kind))))
}

func (o *OTelCollector) RecordFallbackSwitch(kind Kind, target string) {
	_ = o.metrics.RecordCounter(o.ctx, telemetry.MetricFallbackSwitches, 1,
		metric.WithAttributes(
			attribute.String("error.kind", string(kind)),
			attribute.String("fallback.target", target),
		))
}

func (o *OTelCollector) RecordUnrecoverable(kind Kind) {
	_ = o.metrics.RecordCounter(o.ctx, telemetry.MetricUnrecoverable, 1,
		metric.WithAttributes(attribute.String("error.kind", string(kind))))
}

func (o *OTelCollector) RecordBreakerTransition(model, from, to string) {
	_ = o.metrics.RecordCounter(o.ctx, telemetry.MetricBreakerStateChanges, 1,
		metric.WithAttributes(
			attribute.String("origin.model", model),
			attribute.String("from", from),
			attribute.String("to", to),
		))
}
