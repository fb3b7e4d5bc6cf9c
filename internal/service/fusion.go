package service

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ajharshal45/UnReal-Extension-sub001/internal/config"
	"github.com/ajharshal45/UnReal-Extension-sub001/internal/dsp"
)

// =============================================================================
// Score fusion
// =============================================================================
//
// Pure functions from layer results (and an optional validator verdict) to
// a final score. Every adjustment appends a line to the logic trail so the
// verdict can be audited.
//
// =============================================================================

const maxReasoningFindings = 4

// layerSet holds one analysis' layer results.
type layerSet struct {
	metadata     LayerResult
	forensic     LayerResult
	mathematical LayerResult
	localML      *LayerResult // nil when no model is configured
}

type weightedScore struct {
	layer  Layer
	score  float64
	weight float64
}

// weighted lists the available pixel-level layers with their weights. The
// local ML weight is multiplied by mlFactor.
func (s layerSet) weighted(w config.LayerWeights, mlFactor float64) []weightedScore {
	var out []weightedScore
	if s.forensic.Available && w.Forensic > 0 {
		out = append(out, weightedScore{LayerForensic, s.forensic.Score, w.Forensic})
	}
	if s.mathematical.Available && w.Mathematical > 0 {
		out = append(out, weightedScore{LayerMathematical, s.mathematical.Score, w.Mathematical})
	}
	if s.localML != nil && s.localML.Available && w.LocalML > 0 {
		out = append(out, weightedScore{LayerLocalML, s.localML.Score, w.LocalML * mlFactor})
	}
	return out
}

// combine computes the weighted average, adds the metadata bonus and applies
// the agreement adjustment.
func combine(cfg config.PipelineConfig, s layerSet, mlFactor float64) (score, agreement float64) {
	items := s.weighted(cfg.Weights, mlFactor)

	var sum, weights float64
	scores := make([]float64, 0, len(items))
	for _, it := range items {
		sum += it.score * it.weight
		weights += it.weight
		scores = append(scores, it.score)
	}
	var base float64
	if weights > 0 {
		base = sum / weights
	}

	if s.metadata.Available && s.metadata.Score >= cfg.MetadataBonusMin {
		base += s.metadata.Score
	}

	agreement = 1.0
	if len(scores) > 1 {
		agreement = 1 - math.Min(1, dsp.StdDev(scores)/cfg.AgreementSpread)
	}
	return clamp100(base * (cfg.AgreementBase + (1-cfg.AgreementBase)*agreement)), agreement
}

// preliminaryScore is Stage B.
func preliminaryScore(cfg config.PipelineConfig, s layerSet, st *FusionState) float64 {
	items := s.weighted(cfg.Weights, 1)
	score, agreement := combine(cfg, s, 1)

	names := make([]string, 0, len(items))
	for _, it := range items {
		names = append(names, fmt.Sprintf("%s=%.1f", it.layer, it.score))
	}
	if len(names) == 0 {
		st.note("no pixel-level layer available; preliminary score rests on metadata only")
	} else {
		st.note("weighted layers: %s", strings.Join(names, ", "))
	}
	if s.metadata.Available && s.metadata.Score >= cfg.MetadataBonusMin {
		st.note("metadata bonus +%.1f applied", s.metadata.Score)
	} else if s.metadata.Score > 0 {
		st.note("metadata score %.1f below %.0f, ignored", s.metadata.Score, cfg.MetadataBonusMin)
	}
	st.note("layer agreement %.2f, preliminary score %.1f", agreement, score)

	st.PreliminaryScore = round2(score)
	return score
}

// fuse applies Stage D to the preliminary score. verdict is nil when the
// validator did not run.
func fuse(cfg config.PipelineConfig, s layerSet, score float64, verdict *ValidatorVerdict, findings []Finding, st *FusionState) float64 {
	// 1. Weak local ML signals keep only score/100 of their weight.
	if s.localML != nil && s.localML.Available && s.localML.Score > 0 && s.localML.Score < cfg.MLDampenCeiling {
		factor := s.localML.Score / 100
		dampened, _ := combine(cfg, s, factor)
		st.note("local ML score %.1f is weak; weight dampened to %.0f%%, score %.1f -> %.1f",
			s.localML.Score, factor*100, score, dampened)
		score = dampened
	}

	// 2 and 3. Validator verdict.
	if verdict != nil {
		c := verdict.Confidence
		switch {
		case c >= cfg.HighConfidence && verdict.IsAIGenerated:
			boost := (c - 50) * cfg.BoostFactor
			st.note("validator confident AI (%.0f%%): boost +%.1f", c, boost)
			score += boost
		case c >= cfg.HighConfidence:
			penalty := c * cfg.VetoFactor
			vetoed := math.Max(score-penalty, math.Min(score, cfg.VetoFloor))
			for _, it := range s.weighted(cfg.Weights, 1) {
				if it.score >= cfg.DisagreementThreshold {
					st.note("validator disagrees with %s (%.1f); veto still applied", it.layer, it.score)
				}
			}
			st.note("validator confident authentic (%.0f%%): veto -%.1f, score %.1f -> %.1f (floor %.0f)",
				c, penalty, score, vetoed, cfg.VetoFloor)
			score = vetoed
		default:
			var target float64
			if verdict.IsAIGenerated {
				target = math.Max(cfg.AITargetFloor, c)
			} else {
				target = math.Min(cfg.AuthenticTargetCeil, 100-c)
			}
			blended := cfg.PreliminaryBlend*score + (1-cfg.PreliminaryBlend)*target
			st.note("validator medium confidence (%.0f%%): blended toward %.1f, score %.1f -> %.1f",
				c, target, score, blended)
			score = blended
		}
	}

	// 4. Many independent strong findings corroborate each other.
	strong := 0
	for _, f := range findings {
		if f.Confidence >= cfg.StrongFindingConfidence {
			strong++
		}
	}
	if strong >= cfg.StrongFindingCount {
		boost := math.Min(cfg.StrongFindingBoostCap, float64(strong-cfg.StrongFindingCount+1)*2)
		st.note("%d strong findings corroborate: boost +%.1f", strong, boost)
		score += boost
	}

	return score
}

// classify is Stage E's risk tiering.
func classify(cfg config.PipelineConfig, score float64) RiskLevel {
	switch {
	case score >= cfg.RiskHigh:
		return RiskHigh
	case score < cfg.RiskMedium:
		return RiskLow
	default:
		return RiskMedium
	}
}

// reasoning assembles the human-readable explanation.
func reasoning(cfg config.PipelineConfig, score float64, findings []Finding, verdict *ValidatorVerdict) string {
	var b strings.Builder
	switch {
	case score >= cfg.AIThreshold:
		fmt.Fprintf(&b, "Likely AI-generated (score %.0f/100).", score)
	case score >= cfg.RiskMedium:
		fmt.Fprintf(&b, "Inconclusive, with some signs of AI generation (score %.0f/100).", score)
	default:
		fmt.Fprintf(&b, "Likely authentic (score %.0f/100).", score)
	}

	top := topFindings(findings, cfg.MinFindingConfidence, maxReasoningFindings)
	if len(top) > 0 {
		descs := make([]string, len(top))
		for i, f := range top {
			descs[i] = f.Description
		}
		fmt.Fprintf(&b, " Key signals: %s.", strings.Join(descs, "; "))
	}

	if verdict != nil && verdict.Reasoning != "" {
		fmt.Fprintf(&b, " Validator: %s", strings.TrimSpace(verdict.Reasoning))
	}
	return b.String()
}

// topFindings returns up to n findings at or above minConfidence, strongest
// first. Ties keep insertion order.
func topFindings(findings []Finding, minConfidence float64, n int) []Finding {
	var eligible []Finding
	for _, f := range findings {
		if f.Layer != LayerValidator && f.Confidence >= minConfidence {
			eligible = append(eligible, f)
		}
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].Confidence > eligible[j].Confidence
	})
	if len(eligible) > n {
		eligible = eligible[:n]
	}
	return eligible
}

// overallConfidence averages the confidence of the layers that ran.
func overallConfidence(results []LayerResult) float64 {
	var sum float64
	n := 0
	for _, r := range results {
		if !r.Available || r.Layer == LayerMetadata {
			continue
		}
		sum += r.Confidence
		n++
	}
	if n == 0 {
		return 0
	}
	return round2(sum / float64(n))
}
