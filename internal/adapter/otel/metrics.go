package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "studiogate"

// Metrics holds the edge metric instruments. A nil *Metrics records nothing.
type Metrics struct {
	Decisions    metric.Int64Counter
	AuthFailures metric.Int64Counter
	AuthDuration metric.Float64Histogram
	Landings     metric.Int64Counter
}

// NewMetrics creates all metric instruments on mp, or on the global
// provider when mp is nil.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(meterName)
	m := &Metrics{}
	var err error

	m.Decisions, err = meter.Int64Counter("studiogate.edge.decisions",
		metric.WithDescription("Edge pipeline outcomes by kind"))
	if err != nil {
		return nil, err
	}

	m.AuthFailures, err = meter.Int64Counter("studiogate.edge.auth_failures",
		metric.WithDescription("Unexpected session provider failures (request failed open)"))
	if err != nil {
		return nil, err
	}

	m.AuthDuration, err = meter.Float64Histogram("studiogate.session.authenticate.duration_seconds",
		metric.WithDescription("Session authentication latency in seconds"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	m.Landings, err = meter.Int64Counter("studiogate.landing.redirects",
		metric.WithDescription("Post-login redirects by target portal"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordDecision counts one pipeline outcome for tenant.
func (m *Metrics) RecordDecision(ctx context.Context, outcome, tenant string) {
	if m == nil {
		return
	}
	m.Decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("tenant", tenant),
	))
}

// RecordAuthFailure counts one unexpected authentication failure.
func (m *Metrics) RecordAuthFailure(ctx context.Context) {
	if m == nil {
		return
	}
	m.AuthFailures.Add(ctx, 1)
}

// RecordAuthDuration records one authentication call.
func (m *Metrics) RecordAuthDuration(ctx context.Context, d time.Duration, anonymous bool) {
	if m == nil {
		return
	}
	m.AuthDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.Bool("anonymous", anonymous)))
}

// RecordLanding counts one post-login redirect.
func (m *Metrics) RecordLanding(ctx context.Context, target string) {
	if m == nil {
		return
	}
	m.Landings.Add(ctx, 1, metric.WithAttributes(attribute.String("target", target)))
}
