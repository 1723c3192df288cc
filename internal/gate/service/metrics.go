package service

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the decision counters.  With no meter provider installed
// the counters are no-ops, so emission can never affect a decision.
type Metrics struct {
	denials   metric.Int64Counter
	successes metric.Int64Counter
}

func NewMetrics() *Metrics {
	meter := otel.Meter("github.com/zonegate/server/internal/gate/service")

	denials, _ := meter.Int64Counter("access_denials_total",
		metric.WithDescription("Denied transition attempts by reason"))
	successes, _ := meter.Int64Counter("access_events_success_total",
		metric.WithDescription("Committed zone transitions"))

	return &Metrics{denials: denials, successes: successes}
}

func (m *Metrics) Denial(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.denials.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *Metrics) Success(ctx context.Context) {
	if m == nil {
		return
	}
	m.successes.Add(ctx, 1)
}
