package core

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName names the tracer every core span is started on.
const TracerName = "epss.core"

// Metrics counts cache and changelog activity on a dedicated registry and
// traces the slow operations.
type Metrics struct {
	registry *prometheus.Registry
	tracer   trace.Tracer

	fetches       *prometheus.CounterVec
	fetchDuration prometheus.Histogram
	cacheLookups  *prometheus.CounterVec
	pairs         *prometheus.CounterVec
	partitions    *prometheus.CounterVec
}

// NewMetrics registers every collector on a fresh registry. Spans go to the
// global tracer provider.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		tracer:   otel.Tracer(TracerName),
		fetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "epss",
			Name:      "snapshot_fetches_total",
			Help:      "Snapshot fetches from the score source by outcome.",
		}, []string{"outcome"}),
		fetchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "epss",
			Name:      "snapshot_fetch_duration_seconds",
			Help:      "Time spent fetching and persisting one snapshot.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		cacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "epss",
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by kind and result.",
		}, []string{"kind", "result"}),
		pairs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "epss",
			Name:      "changelog_pairs_total",
			Help:      "Adjacent date pairs processed by the changelog builder.",
		}, []string{"outcome"}),
		partitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "epss",
			Name:      "partitions_total",
			Help:      "Partition files by outcome.",
		}, []string{"outcome"}),
	}
}

// WithTracerProvider sends spans to tp instead of the global provider.
func (m *Metrics) WithTracerProvider(tp trace.TracerProvider) *Metrics {
	m.tracer = tp.Tracer(TracerName)
	return m
}

// Registry returns the registry holding every collector.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteToTextfile writes the current values in the text exposition format.
func (m *Metrics) WriteToTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

// endSpan records err on span before ending it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
