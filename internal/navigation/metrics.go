package navigation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/breatheroute/wayfinder/internal/navigation"

// Metrics holds navigation instruments. A nil *Metrics records nothing.
type Metrics struct {
	fixes         metric.Int64Counter
	alerts        metric.Int64Counter
	tones         metric.Int64Counter
	steps         metric.Int64Counter
	arrivals      metric.Int64Counter
	audioFailures metric.Int64Counter
	active        metric.Int64UpDownCounter
}

// NewMetrics creates navigation instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	return NewMetricsWithMeter(otel.Meter(meterName))
}

// NewMetricsWithMeter creates navigation instruments on meter.
func NewMetricsWithMeter(meter metric.Meter) (*Metrics, error) {
	fixes, err := meter.Int64Counter(
		"navigation.fix.total",
		metric.WithDescription("Position fixes processed by active sessions"),
		metric.WithUnit("{fix}"),
	)
	if err != nil {
		return nil, err
	}

	alerts, err := meter.Int64Counter(
		"navigation.alert.total",
		metric.WithDescription("Turn alerts spoken"),
		metric.WithUnit("{alert}"),
	)
	if err != nil {
		return nil, err
	}

	tones, err := meter.Int64Counter(
		"navigation.tone.total",
		metric.WithDescription("Proximity tones played"),
		metric.WithUnit("{tone}"),
	)
	if err != nil {
		return nil, err
	}

	steps, err := meter.Int64Counter(
		"navigation.step.completed",
		metric.WithDescription("Route steps completed"),
		metric.WithUnit("{step}"),
	)
	if err != nil {
		return nil, err
	}

	arrivals, err := meter.Int64Counter(
		"navigation.arrival.total",
		metric.WithDescription("Destinations reached"),
		metric.WithUnit("{arrival}"),
	)
	if err != nil {
		return nil, err
	}

	audioFailures, err := meter.Int64Counter(
		"navigation.audio.failure",
		metric.WithDescription("Speech or tone requests that failed"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, err
	}

	active, err := meter.Int64UpDownCounter(
		"navigation.session.active",
		metric.WithDescription("Sessions currently navigating"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		fixes:         fixes,
		alerts:        alerts,
		tones:         tones,
		steps:         steps,
		arrivals:      arrivals,
		audioFailures: audioFailures,
		active:        active,
	}, nil
}

func (m *Metrics) recordFix(ctx context.Context) {
	if m == nil {
		return
	}
	m.fixes.Add(ctx, 1)
}

func (m *Metrics) recordAlert(ctx context.Context, policy AlertPolicy, kind string) {
	if m == nil {
		return
	}
	m.alerts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("alert.policy", string(policy)),
		attribute.String("alert.kind", kind),
	))
}

func (m *Metrics) recordTone(ctx context.Context) {
	if m == nil {
		return
	}
	m.tones.Add(ctx, 1)
}

func (m *Metrics) recordStep(ctx context.Context) {
	if m == nil {
		return
	}
	m.steps.Add(ctx, 1)
}

func (m *Metrics) recordArrival(ctx context.Context) {
	if m == nil {
		return
	}
	m.arrivals.Add(ctx, 1)
}

func (m *Metrics) recordActive(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.active.Add(ctx, delta)
}

// RecordAudioFailure counts a failed speech ("speak") or tone ("tone") request.
// It is exported so asynchronous dispatchers can report failures too.
func (m *Metrics) RecordAudioFailure(ctx context.Context, op string) {
	if m == nil {
		return
	}
	m.audioFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("audio.op", op)))
}
