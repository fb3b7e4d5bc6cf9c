package service

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("unreal.pipeline")

// Metrics are the pipeline's Prometheus instruments. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	analyses          *prometheus.CounterVec
	analysisDuration  prometheus.Histogram
	layerDuration     *prometheus.HistogramVec
	layerUnavailable  *prometheus.CounterVec
	validatorOutcomes *prometheus.CounterVec
	cacheLookups      *prometheus.CounterVec
}

// NewMetrics registers the pipeline instruments with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		analyses: f.NewCounterVec(prometheus.CounterOpts{
			Name: "unreal_analyses_total",
			Help: "Completed analyses by risk level.",
		}, []string{"risk"}),
		analysisDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "unreal_analysis_duration_seconds",
			Help:    "End-to-end pipeline duration.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		layerDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "unreal_layer_duration_seconds",
			Help:    "Per-layer analysis duration.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"layer"}),
		layerUnavailable: f.NewCounterVec(prometheus.CounterOpts{
			Name: "unreal_layer_unavailable_total",
			Help: "Layers that could not run.",
		}, []string{"layer"}),
		validatorOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "unreal_validator_outcomes_total",
			Help: "Validator invocations and skips by outcome.",
		}, []string{"outcome"}),
		cacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "unreal_cache_lookups_total",
			Help: "Result cache lookups by outcome.",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) observeAnalysis(risk RiskLevel, d time.Duration) {
	if m == nil {
		return
	}
	m.analyses.WithLabelValues(string(risk)).Inc()
	m.analysisDuration.Observe(d.Seconds())
}

func (m *Metrics) observeLayer(r LayerResult) {
	if m == nil {
		return
	}
	m.layerDuration.WithLabelValues(string(r.Layer)).Observe(r.ProcessingTimeMs / 1000)
	if !r.Available {
		m.layerUnavailable.WithLabelValues(string(r.Layer)).Inc()
	}
}

func (m *Metrics) observeValidator(outcome string) {
	if m == nil {
		return
	}
	m.validatorOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeCache(hit bool) {
	if m == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.cacheLookups.WithLabelValues(outcome).Inc()
}

// startLayerSpan opens a span around one analyzer.
func startLayerSpan(ctx context.Context, layer Layer) (context.Context, trace.Span) {
	return tracer.Start(ctx, "layer."+string(layer),
		trace.WithAttributes(attribute.String("unreal.layer", string(layer))),
	)
}

// endLayerSpan records the layer outcome and closes the span.
func endLayerSpan(span trace.Span, r LayerResult) {
	span.SetAttributes(
		attribute.Bool("unreal.available", r.Available),
		attribute.Float64("unreal.score", r.Score),
		attribute.Int("unreal.findings", len(r.Findings)),
	)
	if !r.Available {
		span.SetStatus(codes.Error, r.Reason)
	}
	span.End()
}
