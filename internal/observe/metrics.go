// Package observe holds storyloom's OpenTelemetry metric instruments and the
// Prometheus bridge that exposes them.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "storyloom"

// Metrics holds the instruments recorded across playback, export and
// generation. A nil *Metrics records nothing.
type Metrics struct {
	// ScenesPlayed counts scenes started by the interactive player.
	ScenesPlayed metric.Int64Counter

	// ExportFrames counts video frames handed to the recorder.
	ExportFrames metric.Int64Counter

	// ExportDuration tracks wall time per export. Use with attribute:
	//   attribute.String("status", ...)
	ExportDuration metric.Float64Histogram

	// GenerationDuration tracks generator latency. Use with attributes:
	//   attribute.String("kind", ...), attribute.String("engine", ...)
	GenerationDuration metric.Float64Histogram

	// GenerationErrors counts failed generator calls by kind and engine.
	GenerationErrors metric.Int64Counter
}

var latencyBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300,
}

func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ScenesPlayed, err = m.Int64Counter("storyloom.player.scenes",
		metric.WithDescription("Scenes started by the interactive player."),
	); err != nil {
		return nil, err
	}
	if met.ExportFrames, err = m.Int64Counter("storyloom.export.frames",
		metric.WithDescription("Video frames rendered for export."),
	); err != nil {
		return nil, err
	}
	if met.ExportDuration, err = m.Float64Histogram("storyloom.export.duration",
		metric.WithDescription("Wall time of a whole export."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.GenerationDuration, err = m.Float64Histogram("storyloom.generation.duration",
		metric.WithDescription("Latency of script, image and speech generation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.GenerationErrors, err = m.Int64Counter("storyloom.generation.errors",
		metric.WithDescription("Failed generation calls by kind and engine."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns metrics on the global meter provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

func (m *Metrics) RecordScene(ctx context.Context, mood string) {
	if m == nil {
		return
	}
	m.ScenesPlayed.Add(ctx, 1, metric.WithAttributes(attribute.String("mood", mood)))
}

func (m *Metrics) RecordFrames(ctx context.Context, n int) {
	if m == nil {
		return
	}
	m.ExportFrames.Add(ctx, int64(n))
}

func (m *Metrics) RecordExport(ctx context.Context, d time.Duration, status string) {
	if m == nil {
		return
	}
	m.ExportDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("status", status)))
}

// RecordGeneration records one generator call, counting it as an error when
// err is non-nil.
func (m *Metrics) RecordGeneration(ctx context.Context, kind, engine string, d time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("engine", engine),
	)
	m.GenerationDuration.Record(ctx, d.Seconds(), attrs)
	if err != nil {
		m.GenerationErrors.Add(ctx, 1, attrs)
	}
}
