package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"tankpit-bot/internal/bot"
)

const instrumentationName = "tankpit-bot/internal/telemetry"

// Metrics records loop counters on an OpenTelemetry meter.
type Metrics struct {
	ticks    metric.Int64Counter
	actions  metric.Int64Counter
	failures metric.Int64Counter
	fuel     metric.Int64Gauge
}

// NewMetrics creates the instruments on m, or on the global meter when m is
// nil (a no-op unless a provider was installed).
func NewMetrics(m metric.Meter) (*Metrics, error) {
	if m == nil {
		m = otel.Meter(instrumentationName)
	}
	var (
		out Metrics
		err error
	)
	out.ticks, err = m.Int64Counter("bot.ticks", metric.WithDescription("Control loop ticks"))
	if err != nil {
		return nil, fmt.Errorf("creating ticks counter: %w", err)
	}
	out.actions, err = m.Int64Counter("bot.actions", metric.WithDescription("Actions dispatched"))
	if err != nil {
		return nil, fmt.Errorf("creating actions counter: %w", err)
	}
	out.failures, err = m.Int64Counter("bot.dispatch.failures", metric.WithDescription("Failed action dispatches"))
	if err != nil {
		return nil, fmt.Errorf("creating failures counter: %w", err)
	}
	out.fuel, err = m.Int64Gauge("bot.fuel", metric.WithDescription("Last fuel reading"), metric.WithUnit("%"))
	if err != nil {
		return nil, fmt.Errorf("creating fuel gauge: %w", err)
	}
	return &out, nil
}

// Publish implements bot.StatusSink.
func (m *Metrics) Publish(r bot.Report) {
	ctx := context.Background()
	state := metric.WithAttributes(attribute.String("state", r.State.String()))

	m.ticks.Add(ctx, 1, state)
	m.fuel.Record(ctx, int64(r.Status.CurrentFuel),
		metric.WithAttributes(attribute.String("method", r.Fuel.Method)))
	if r.Action == nil {
		return
	}
	purpose := metric.WithAttributes(attribute.String("purpose", string(r.Action.Purpose)))
	if r.DispatchErr != nil {
		m.failures.Add(ctx, 1, purpose)
		return
	}
	m.actions.Add(ctx, 1, purpose)
}
