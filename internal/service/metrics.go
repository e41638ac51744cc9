package service

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "vaicheck.session"

type sessionMetrics struct {
	transitions   metric.Int64Counter
	oracleResults metric.Int64Counter
	races         metric.Int64Counter
}

// newSessionMetrics binds counters on mp, or on the global provider when mp
// is nil.
func newSessionMetrics(mp metric.MeterProvider) *sessionMetrics {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(meterName)
	m := &sessionMetrics{}
	m.transitions, _ = meter.Int64Counter("vaicheck.session.transitions",
		metric.WithDescription("Committed session status changes"),
		metric.WithUnit("{transition}"),
	)
	m.oracleResults, _ = meter.Int64Counter("vaicheck.oracle.results",
		metric.WithDescription("Biometric oracle outcomes by checkpoint"),
		metric.WithUnit("{call}"),
	)
	m.races, _ = meter.Int64Counter("vaicheck.session.write_conflicts",
		metric.WithDescription("Conditional writes that lost to a concurrent writer"),
		metric.WithUnit("{conflict}"),
	)
	return m
}

func (m *sessionMetrics) transition(ctx context.Context, from, to string) {
	if m.transitions == nil || from == to {
		return
	}
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

func (m *sessionMetrics) oracle(ctx context.Context, checkpoint, result string) {
	if m.oracleResults == nil {
		return
	}
	m.oracleResults.Add(ctx, 1, metric.WithAttributes(
		attribute.String("checkpoint", checkpoint),
		attribute.String("result", result),
	))
}

func (m *sessionMetrics) lostRace(ctx context.Context) {
	if m.races == nil {
		return
	}
	m.races.Add(ctx, 1)
}
