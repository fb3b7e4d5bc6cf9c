package service

import (
	"math"

	"github.com/ajharshal45/UnReal-Extension-sub001/internal/dsp"
)

const (
	edgeGrid         = 8
	edgeSampleStep   = 2
	edgeLowCV        = 0.3
	edgeHighCV       = 1.5
	edgeJumpRatio    = 5.0
	edgeDropRatio    = 0.2
	edgeJumpPoints   = 8.0
	edgeJumpCap      = 40.0
	edgeUniformScale = 60.0
)

// analyzeEdges measures how sharpness is distributed over an 8x8 grid.
func analyzeEdges(f *forensicFrame) subScore {
	findings := newCollector(LayerForensic, maxFindingsPerCheck)
	cw, ch := f.w/edgeGrid, f.h/edgeGrid

	sharp := make([]float64, edgeGrid*edgeGrid)
	for gy := 0; gy < edgeGrid; gy++ {
		for gx := 0; gx < edgeGrid; gx++ {
			sharp[gy*edgeGrid+gx] = f.cellMean(gx*cw, gy*ch, (gx+1)*cw, (gy+1)*ch, edgeSampleStep)
		}
	}

	cv, ok := dsp.CoefficientOfVariation(sharp)
	if !ok {
		// No edges anywhere; nothing to compare.
		return subScore{metrics: map[string]float64{"sharpness_mean": 0}}
	}

	var score float64
	switch {
	case cv < edgeLowCV:
		score += edgeUniformScale * (1 - cv/edgeLowCV)
		findings.add("uniform_sharpness", 45+(1-cv/edgeLowCV)*40,
			"Sharpness is suspiciously uniform across the image (CV %.2f)", cv)
	case cv > edgeHighCV:
		score += math.Min(edgeUniformScale, 30+(cv-edgeHighCV)*30)
		findings.add("inconsistent_sharpness", math.Min(90, 50+(cv-edgeHighCV)*20),
			"Sharpness varies sharply between regions (CV %.2f), suggesting compositing", cv)
	}

	transitions := 0
	ratioOf := func(a, b float64) bool {
		r := (a + 1) / (b + 1)
		return r > edgeJumpRatio || r < edgeDropRatio
	}
	for gy := 0; gy < edgeGrid; gy++ {
		for gx := 0; gx < edgeGrid; gx++ {
			i := gy*edgeGrid + gx
			if gx+1 < edgeGrid && ratioOf(sharp[i], sharp[i+1]) {
				transitions++
			}
			if gy+1 < edgeGrid && ratioOf(sharp[i], sharp[i+edgeGrid]) {
				transitions++
			}
		}
	}
	if transitions > 0 {
		score += math.Min(edgeJumpCap, float64(transitions)*edgeJumpPoints)
		findings.add("sharpness_transition", math.Min(85, 40+float64(transitions)*5),
			"%d abrupt sharpness transitions between neighbouring regions", transitions)
	}

	return subScore{
		score:    score,
		findings: findings.findings,
		metrics: map[string]float64{
			"sharpness_mean": dsp.Mean(sharp),
			"sharpness_cv":   cv,
			"transitions":    float64(transitions),
		},
	}
}
