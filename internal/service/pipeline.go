package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ajharshal45/UnReal-Extension-sub001/internal/config"
	"github.com/ajharshal45/UnReal-Extension-sub001/internal/imaging"
	"github.com/ajharshal45/UnReal-Extension-sub001/pkg/logger"
)

// PixelAnalyzer is any layer that reads pixels. Implementations fail soft by
// returning an unavailable LayerResult; panics are recovered by the
// pipeline.
type PixelAnalyzer interface {
	Analyze(ctx context.Context, buf *imaging.PixelBuffer) LayerResult
}

// ResultCache stores encoded results by content fingerprint. It is owned by
// the caller and injected with WithCache.
type ResultCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Pipeline runs every layer and fuses the result. Safe for concurrent use;
// the configuration is read-only after construction.
type Pipeline struct {
	cfg          config.PipelineConfig
	metadata     *MetadataAnalyzer
	forensic     PixelAnalyzer
	mathematical PixelAnalyzer
	model        PixelAnalyzer
	validator    ExternalValidator
	cache        ResultCache
	metrics      *Metrics
	logger       *logger.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithValidator enables the external validator.
func WithValidator(v ExternalValidator) Option {
	return func(p *Pipeline) { p.validator = v }
}

// WithModel enables the local ML layer.
func WithModel(m PixelAnalyzer) Option {
	return func(p *Pipeline) { p.model = m }
}

// WithForensic replaces the forensic layer.
func WithForensic(a PixelAnalyzer) Option {
	return func(p *Pipeline) { p.forensic = a }
}

// WithMathematical replaces the mathematical layer.
func WithMathematical(a PixelAnalyzer) Option {
	return func(p *Pipeline) { p.mathematical = a }
}

// WithCache enables result caching by fingerprint.
func WithCache(c ResultCache) Option {
	return func(p *Pipeline) { p.cache = c }
}

// WithMetrics records Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// NewPipeline creates a pipeline with the built-in analyzers.
func NewPipeline(cfg config.PipelineConfig, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:          cfg,
		metadata:     NewMetadataAnalyzer(),
		forensic:     NewForensicAnalyzer(cfg.MaxAnalysisDimension),
		mathematical: NewMathematicalAnalyzer(),
		logger:       logger.NopLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.Component("pipeline")
	return p
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() config.PipelineConfig {
	return p.cfg
}

// Analyze runs a full analysis. It never panics and never returns nil.
// buf may be nil when only the ImageSignal is known.
func (p *Pipeline) Analyze(ctx context.Context, buf *imaging.PixelBuffer, signal imaging.ImageSignal) (result *FinalResult) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "Pipeline.Analyze")
	defer span.End()
	log := p.logger.WithContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			log.Error("analysis aborted", "panic", r)
			result = ErrorResult(fmt.Errorf("internal error: %v", r))
			result.ProcessingTimeMs = msSince(start)
		}
	}()

	hasPixels := buf != nil && buf.Validate() == nil
	if !hasPixels && signal == (imaging.ImageSignal{}) {
		return ErrorResult(errors.New("no image data supplied"))
	}
	if hasPixels && signal.Width == 0 && signal.Height == 0 {
		signal.Width, signal.Height = buf.Width, buf.Height
	}

	var fingerprint, key string
	if hasPixels {
		fingerprint = buf.Fingerprint()
		key = resultKey(fingerprint, signal)
		span.SetAttributes(attribute.String("unreal.fingerprint", fingerprint))
		if cached, ok := p.lookup(ctx, key); ok {
			return cached
		}
	}

	result = p.run(ctx, buf, signal, span)
	result.Fingerprint = fingerprint
	result.ProcessingTimeMs = msSince(start)

	p.metrics.observeAnalysis(result.RiskLevel, time.Since(start))
	log.Info("analysis complete",
		"fingerprint", fingerprint,
		"score", result.Score,
		"risk", result.RiskLevel,
		"processing_time_ms", result.ProcessingTimeMs,
	)

	if fingerprint != "" && result.Error == "" {
		p.store(ctx, result, key, fingerprint)
	}
	return result
}

// resultKey identifies an analysis of the given pixels seen through signal.
// The metadata layer and validator gating depend on the signal, so the same
// pixels from another URL or filename are a different analysis.
func resultKey(fingerprint string, signal imaging.ImageSignal) string {
	data, _ := json.Marshal(signal)
	sum := sha256.Sum256(data)
	return fingerprint + ":" + hex.EncodeToString(sum[:8])
}

// Lookup returns the most recent cached result for fingerprint, whatever
// signal it was analysed with.
func (p *Pipeline) Lookup(ctx context.Context, fingerprint string) (*FinalResult, bool) {
	return p.lookup(ctx, fingerprint)
}

func (p *Pipeline) lookup(ctx context.Context, key string) (*FinalResult, bool) {
	if p.cache == nil || key == "" {
		return nil, false
	}
	data, ok, err := p.cache.Get(ctx, key)
	if err != nil {
		p.logger.WithContext(ctx).Warn("cache lookup failed", "error", err)
		return nil, false
	}
	p.metrics.observeCache(ok)
	if !ok {
		return nil, false
	}
	var res FinalResult
	if err := json.Unmarshal(data, &res); err != nil {
		p.logger.WithContext(ctx).Warn("discarding corrupt cache entry", "key", key, "error", err)
		return nil, false
	}
	res.Cached = true
	return &res, true
}

func (p *Pipeline) store(ctx context.Context, res *FinalResult, keys ...string) {
	if p.cache == nil {
		return
	}
	data, err := json.Marshal(res)
	if err != nil {
		return
	}
	for _, key := range keys {
		if err := p.cache.Set(ctx, key, data); err != nil {
			p.logger.WithContext(ctx).Warn("cache store failed", "key", key, "error", err)
			return
		}
	}
}

func (p *Pipeline) run(ctx context.Context, buf *imaging.PixelBuffer, signal imaging.ImageSignal, span trace.Span) *FinalResult {
	st := &FusionState{}

	// Stage A: metadata inline, pixel layers concurrently.
	set := layerSet{
		metadata: p.runLayer(ctx, LayerMetadata, func(context.Context) LayerResult {
			return p.metadata.Analyze(signal)
		}),
	}
	var mlResult LayerResult
	var g errgroup.Group
	g.Go(func() error {
		set.forensic = p.runLayer(ctx, LayerForensic, func(ctx context.Context) LayerResult {
			if buf == nil {
				return Unavailable(LayerForensic, "no pixel data")
			}
			return p.forensic.Analyze(ctx, buf)
		})
		return nil
	})
	g.Go(func() error {
		set.mathematical = p.runLayer(ctx, LayerMathematical, func(ctx context.Context) LayerResult {
			if buf == nil {
				return Unavailable(LayerMathematical, "no pixel data")
			}
			in := buf
			if buf.Validate() == nil {
				in = imaging.Resize(buf, p.cfg.MathematicalSize, p.cfg.MathematicalSize)
			}
			return p.mathematical.Analyze(ctx, in)
		})
		return nil
	})
	if p.model != nil {
		g.Go(func() error {
			mlResult = p.runLayer(ctx, LayerLocalML, func(ctx context.Context) LayerResult {
				if buf == nil {
					return Unavailable(LayerLocalML, "no pixel data")
				}
				return p.model.Analyze(ctx, buf)
			})
			return nil
		})
	}
	_ = g.Wait()
	if p.model != nil {
		set.localML = &mlResult
	}

	results := []LayerResult{set.metadata, set.forensic, set.mathematical}
	if set.localML != nil {
		results = append(results, *set.localML)
	}
	for _, r := range results {
		if !r.Available {
			st.note("%s layer unavailable: %s", r.Layer, r.Reason)
		}
	}
	var findings []Finding
	for _, r := range results {
		findings = append(findings, r.Findings...)
	}

	// Stage B.
	score := preliminaryScore(p.cfg, set, st)
	span.SetAttributes(attribute.Float64("unreal.preliminary_score", st.PreliminaryScore))

	// Stage C.
	validatorResult, verdict := p.consultValidator(ctx, buf, score, findings, st)
	results = append(results, validatorResult)
	findings = append(findings, validatorResult.Findings...)

	// Stage D.
	score = fuse(p.cfg, set, score, verdict, findings, st)

	// Stage E.
	final := round2(clamp100(score))
	st.FinalScore = final
	st.RiskLevel = classify(p.cfg, final)
	st.note("final score %.1f, risk %s", final, st.RiskLevel)

	layers := make([]LayerBreakdown, 0, len(results))
	for _, r := range results {
		layers = append(layers, breakdownOf(r))
	}
	span.SetAttributes(
		attribute.Float64("unreal.score", final),
		attribute.String("unreal.risk", string(st.RiskLevel)),
	)

	return &FinalResult{
		Score:            final,
		RiskLevel:        st.RiskLevel,
		IsAIGenerated:    final >= p.cfg.AIThreshold,
		Confidence:       overallConfidence(results),
		PreliminaryScore: st.PreliminaryScore,
		Reasoning:        reasoning(p.cfg, final, findings, verdict),
		Findings:         nonNil(findings),
		Layers:           layers,
		LogicTrail:       st.LogicTrail,
	}
}

// runLayer isolates one layer: panics become an unavailable result and
// unavailable layers never leak a score or findings.
func (p *Pipeline) runLayer(ctx context.Context, layer Layer, fn func(context.Context) LayerResult) (res LayerResult) {
	ctx, span := startLayerSpan(ctx, layer)
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			p.logger.WithContext(ctx).Warn("layer failed", "layer", layer, "panic", r)
			res = Unavailable(layer, fmt.Sprintf("layer failed: %v", r))
		}
		res.Layer = layer
		if res.ProcessingTimeMs == 0 {
			res.ProcessingTimeMs = msSince(start)
		}
		if !res.Available {
			res.Score = 0
			res.Findings = []Finding{}
		}
		if res.Findings == nil {
			res.Findings = []Finding{}
		}
		p.metrics.observeLayer(res)
		endLayerSpan(span, res)
	}()
	return fn(ctx)
}

// consultValidator is Stage C. It returns the validator's layer result and
// the verdict, or nil when the validator was skipped.
func (p *Pipeline) consultValidator(ctx context.Context, buf *imaging.PixelBuffer, preliminary float64, findings []Finding, st *FusionState) (LayerResult, *ValidatorVerdict) {
	skip := func(reason string) (LayerResult, *ValidatorVerdict) {
		st.note("validator skipped: %s", reason)
		p.metrics.observeValidator(skipOutcome(reason))
		p.logger.WithContext(ctx).Debug("validator skipped", "reason", reason, "preliminary_score", preliminary)
		return Unavailable(LayerValidator, reason), nil
	}

	band := p.cfg.ValidatorBand
	switch {
	case p.validator == nil:
		return skip("not configured")
	case !band.Contains(preliminary):
		if preliminary < band.Low {
			return skip("below threshold")
		}
		return skip("above threshold")
	case buf == nil || buf.Validate() != nil:
		return skip("no pixel data")
	}

	var verdict *ValidatorVerdict
	var callErr error
	res := p.runLayer(ctx, LayerValidator, func(ctx context.Context) LayerResult {
		vctx, cancel := context.WithTimeout(ctx, p.cfg.ValidatorTimeout)
		defer cancel()

		v, err := p.validator.Validate(vctx, ValidationRequest{
			Buffer:           buf,
			PreliminaryScore: preliminary,
			Findings:         append([]Finding(nil), findings...),
		})
		switch {
		case err != nil && (errors.Is(err, context.DeadlineExceeded) || vctx.Err() == context.DeadlineExceeded):
			callErr = err
			return Unavailable(LayerValidator, "timeout")
		case errors.Is(err, ErrValidatorSkipped):
			callErr = err
			return Unavailable(LayerValidator, "skipped by validator")
		case err != nil:
			callErr = err
			return Unavailable(LayerValidator, "error: "+err.Error())
		case v == nil:
			return Unavailable(LayerValidator, "no verdict")
		}

		verdict = v
		score := v.Confidence
		if !v.IsAIGenerated {
			score = 100 - v.Confidence
		}
		out := LayerResult{
			Layer:      LayerValidator,
			Score:      clamp100(score),
			Confidence: clamp100(v.Confidence),
			Available:  true,
		}
		for _, f := range v.Findings {
			f.Layer = LayerValidator
			out.Findings = append(out.Findings, f)
		}
		return out
	})

	if !res.Available {
		// A recovered panic leaves verdict possibly set; it must not count.
		verdict = nil
		if callErr != nil {
			p.logger.WithContext(ctx).Warn("validator failed", "error", callErr)
		}
		st.note("validator skipped: %s", res.Reason)
		p.metrics.observeValidator(skipOutcome(res.Reason))
		return res, nil
	}

	p.metrics.observeValidator("invoked")
	st.note("validator verdict: ai=%t confidence %.0f%%", verdict.IsAIGenerated, verdict.Confidence)
	return res, verdict
}

func skipOutcome(reason string) string {
	switch reason {
	case "not configured", "below threshold", "above threshold", "timeout", "no pixel data":
		return reason
	}
	return "error"
}
