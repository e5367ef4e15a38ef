package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Recorder publishes cache resolution metrics through an OpenTelemetry
// meter. All methods are safe for concurrent use and never panic.
type Recorder struct {
	exactHits      metric.Int64Counter
	perceptualHits metric.Int64Counter
	misses         metric.Int64Counter
	cachedFailures metric.Int64Counter
	sweptEntries   metric.Int64Counter
	hitDistance    metric.Int64Histogram
	renderDuration metric.Float64Histogram
}

// New registers all cache instruments on the given meter.
func New(meter metric.Meter) (*Recorder, error) {
	exactHits, err := meter.Int64Counter(
		"facetrace.cache.exact_hits",
		metric.WithDescription("Requests satisfied by an exact fingerprint match"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return nil, err
	}

	perceptualHits, err := meter.Int64Counter(
		"facetrace.cache.perceptual_hits",
		metric.WithDescription("Requests satisfied by a perceptual similarity match"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return nil, err
	}

	misses, err := meter.Int64Counter(
		"facetrace.cache.misses",
		metric.WithDescription("Requests that required a fresh render"),
		metric.WithUnit("{miss}"),
	)
	if err != nil {
		return nil, err
	}

	cachedFailures, err := meter.Int64Counter(
		"facetrace.cache.cached_failures",
		metric.WithDescription("Requests answered by a previously cached failure"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return nil, err
	}

	sweptEntries, err := meter.Int64Counter(
		"facetrace.cache.swept_entries",
		metric.WithDescription("Entries removed by the periodic sweep"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, err
	}

	hitDistance, err := meter.Int64Histogram(
		"facetrace.cache.perceptual_distance",
		metric.WithDescription("Hamming distance of perceptual hits"),
		metric.WithUnit("{bit}"),
	)
	if err != nil {
		return nil, err
	}

	renderDuration, err := meter.Float64Histogram(
		"facetrace.render.duration_ms",
		metric.WithDescription("Fresh render duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &Recorder{
		exactHits:      exactHits,
		perceptualHits: perceptualHits,
		misses:         misses,
		cachedFailures: cachedFailures,
		sweptEntries:   sweptEntries,
		hitDistance:    hitDistance,
		renderDuration: renderDuration,
	}, nil
}

// NewNoop returns a Recorder whose instruments discard every measurement.
func NewNoop() *Recorder {
	r, _ := New(noop.NewMeterProvider().Meter("noop"))
	return r
}

// ExactHit counts a request satisfied by an exact fingerprint match.
func (r *Recorder) ExactHit(ctx context.Context) {
	r.exactHits.Add(ctx, 1)
}

// PerceptualHit counts a similarity match and records its distance.
func (r *Recorder) PerceptualHit(ctx context.Context, distance int) {
	r.perceptualHits.Add(ctx, 1)
	r.hitDistance.Record(ctx, int64(distance))
}

// Miss counts a request that fell through to a fresh render.
func (r *Recorder) Miss(ctx context.Context) {
	r.misses.Add(ctx, 1)
}

// CachedFailure counts a request answered by a stored failure.
func (r *Recorder) CachedFailure(ctx context.Context) {
	r.cachedFailures.Add(ctx, 1)
}

// Swept records how many entries a sweep removed.
func (r *Recorder) Swept(ctx context.Context, removed int64) {
	r.sweptEntries.Add(ctx, removed)
}

// RenderDuration records how long a fresh render took.
func (r *Recorder) RenderDuration(ctx context.Context, d time.Duration) {
	r.renderDuration.Record(ctx, float64(d.Milliseconds()))
}

// NewPrometheusProvider builds a meter provider that exports through the
// Prometheus default registry, registers it globally, and returns a meter
// for the given service name. Scrape the measurements via promhttp.
func NewPrometheusProvider(serviceName string) (*sdkmetric.MeterProvider, metric.Meter, error) {
	reader, err := prometheus.New()
	if err != nil {
		return nil, nil, fmt.Errorf("prometheus exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(mp)
	return mp, mp.Meter(serviceName), nil
}
