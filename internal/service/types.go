// Package service implements the UnReal image authenticity engine.
//
// An analysis runs several independent layers over one decoded image and
// fuses their scores into a single verdict:
//  1. Metadata heuristics over the URL, filename and dimensions
//  2. Pixel forensics (texture, lighting, edges, blur, background)
//  3. Mathematical analysis (frequency spectrum, noise residual, histogram)
//  4. An optional local ML model
//  5. An optional external validator, consulted only when the others are
//     uncertain
//
// Every layer fails soft: a layer that cannot run reports Available=false
// and is left out of the weighting. Pipeline.Analyze always returns a
// well-formed FinalResult.
package service

import (
	"errors"
	"fmt"
	"math"
)

// Layer identifies the analyzer that produced a result or finding.
type Layer string

const (
	LayerMetadata     Layer = "metadata"
	LayerForensic     Layer = "forensic"
	LayerFrequency    Layer = "frequency"
	LayerNoise        Layer = "noise"
	LayerHistogram    Layer = "histogram"
	LayerValidator    Layer = "validator"
	LayerLocalML      Layer = "local_ml"
	LayerMathematical Layer = "mathematical"
)

// RiskLevel is the coarse classification of a final score.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

var (
	// ErrImageTooSmall is reported when an image is below an analyzer's
	// minimum working size.
	ErrImageTooSmall = errors.New("image too small for analysis")

	// ErrUnsuitableDimensions is reported when the mathematical layer is
	// handed a buffer that is not a power-of-two square.
	ErrUnsuitableDimensions = errors.New("image must be a power-of-two square")

	// ErrValidatorSkipped lets a validator decline without it counting as a
	// failure.
	ErrValidatorSkipped = errors.New("validator skipped")
)

// Finding is a single piece of evidence. Immutable once created.
type Finding struct {
	Layer       Layer   `json:"layer"`
	Kind        string  `json:"kind"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
}

// LayerResult is what every analyzer returns.
type LayerResult struct {
	Layer            Layer              `json:"layer"`
	Score            float64            `json:"score"`
	Confidence       float64            `json:"confidence"`
	Findings         []Finding          `json:"findings"`
	ProcessingTimeMs float64            `json:"processing_time_ms"`
	Available        bool               `json:"available"`
	Reason           string             `json:"reason,omitempty"`
	Metrics          map[string]float64 `json:"metrics,omitempty"`
	Flags            map[string]bool    `json:"flags,omitempty"`
}

// Unavailable builds the result of a layer that could not run.
func Unavailable(layer Layer, reason string) LayerResult {
	return LayerResult{Layer: layer, Available: false, Reason: reason, Findings: []Finding{}}
}

// LayerBreakdown is the per-layer summary attached to a FinalResult.
type LayerBreakdown struct {
	Layer            Layer   `json:"layer"`
	Score            float64 `json:"score"`
	Confidence       float64 `json:"confidence"`
	Available        bool    `json:"available"`
	Skipped          bool    `json:"skipped"`
	Reason           string  `json:"reason,omitempty"`
	ProcessingTimeMs float64 `json:"processing_time_ms"`
	FindingCount     int     `json:"finding_count"`
}

func breakdownOf(r LayerResult) LayerBreakdown {
	return LayerBreakdown{
		Layer:            r.Layer,
		Score:            round2(r.Score),
		Confidence:       round2(r.Confidence),
		Available:        r.Available,
		Skipped:          !r.Available,
		Reason:           r.Reason,
		ProcessingTimeMs: round2(r.ProcessingTimeMs),
		FindingCount:     len(r.Findings),
	}
}

// FinalResult is the stable output schema of an analysis.
type FinalResult struct {
	Score            float64          `json:"score"`
	RiskLevel        RiskLevel        `json:"risk_level"`
	IsAIGenerated    bool             `json:"is_ai_generated"`
	Confidence       float64          `json:"confidence"`
	PreliminaryScore float64          `json:"preliminary_score"`
	Reasoning        string           `json:"reasoning"`
	Findings         []Finding        `json:"findings"`
	Layers           []LayerBreakdown `json:"layers"`
	LogicTrail       []string         `json:"logic_trail"`
	ProcessingTimeMs float64          `json:"processing_time_ms"`
	Fingerprint      string           `json:"fingerprint,omitempty"`
	Cached           bool             `json:"cached"`
	Error            string           `json:"error,omitempty"`
}

// ErrorResult is the terminal result for a catastrophic failure.
func ErrorResult(err error) *FinalResult {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return &FinalResult{
		Score:      0,
		RiskLevel:  RiskLow,
		Reasoning:  "Analysis failed: " + msg,
		Findings:   []Finding{},
		Layers:     []LayerBreakdown{},
		LogicTrail: []string{"analysis aborted: " + msg},
		Error:      msg,
	}
}

// Layer returns the breakdown for layer, if present.
func (r *FinalResult) Layer(layer Layer) (LayerBreakdown, bool) {
	for _, l := range r.Layers {
		if l.Layer == layer {
			return l, true
		}
	}
	return LayerBreakdown{}, false
}

// FusionState is the transient record built while fusing layer scores.
type FusionState struct {
	PreliminaryScore float64
	FinalScore       float64
	RiskLevel        RiskLevel
	LogicTrail       []string
}

func (s *FusionState) note(format string, args ...any) {
	s.LogicTrail = append(s.LogicTrail, fmt.Sprintf(format, args...))
}

func clamp100(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(100, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// findingCollector caps the number of findings a sub-analysis may emit.
type findingCollector struct {
	layer    Layer
	limit    int
	findings []Finding
}

func newCollector(layer Layer, limit int) *findingCollector {
	return &findingCollector{layer: layer, limit: limit}
}

func (c *findingCollector) add(kind string, confidence float64, format string, args ...any) {
	if len(c.findings) >= c.limit {
		return
	}
	c.findings = append(c.findings, Finding{
		Layer:       c.layer,
		Kind:        kind,
		Description: fmt.Sprintf(format, args...),
		Confidence:  round2(clamp100(confidence)),
	})
}
