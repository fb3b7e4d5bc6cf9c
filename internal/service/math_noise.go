package service

import (
	"math"

	"github.com/ajharshal45/UnReal-Extension-sub001/internal/dsp"
	"github.com/ajharshal45/UnReal-Extension-sub001/internal/imaging"
)

const (
	prnuThreshold       = 0.05
	noiseUniformCV      = 0.3
	noiseGrid           = 4
	prnuBaseScore       = 30.0
	uniformityBaseScore = 25.0
)

// analyzeNoise examines the high-pass residual for a sensor fingerprint and
// for natural variation in noise strength.
func analyzeNoise(gray *imaging.Plane) mathPart {
	w, h := gray.Width, gray.Height
	residual := dsp.Convolve(gray.Data, w, h, dsp.HighPass)
	findings := newCollector(LayerNoise, maxFindingsPerCheck)
	metrics := map[string]float64{}
	flags := map[string]bool{"prnu_absent": false, "noise_uniform": false}
	var score float64

	// A perfectly flat residual carries no evidence either way.
	if dsp.Variance(residual) > 0 {
		hw, hh := w/2, h/2
		quadrant := func(qx, qy int) []float64 {
			out := make([]float64, 0, hw*hh)
			for y := qy * hh; y < (qy+1)*hh; y++ {
				out = append(out, residual[y*w+qx*hw:y*w+(qx+1)*hw]...)
			}
			return out
		}
		tl, tr, bl, br := quadrant(0, 0), quadrant(1, 0), quadrant(0, 1), quadrant(1, 1)
		avg := (math.Abs(dsp.Pearson(tl, tr)) +
			math.Abs(dsp.Pearson(bl, br)) +
			math.Abs(dsp.Pearson(tl, br)) +
			math.Abs(dsp.Pearson(tr, bl))) / 4
		metrics["prnu_correlation"] = avg
		if avg < prnuThreshold {
			flags["prnu_absent"] = true
			score += prnuBaseScore + prnuBaseScore*(1-avg/prnuThreshold)
			findings.add("prnu_absent", 55+(1-avg/prnuThreshold)*20,
				"No consistent camera sensor pattern (mean correlation %.3f)", avg)
		}
	}

	cw, ch := w/noiseGrid, h/noiseGrid
	variances := make([]float64, 0, noiseGrid*noiseGrid)
	cell := make([]float64, 0, cw*ch)
	for gy := 0; gy < noiseGrid; gy++ {
		for gx := 0; gx < noiseGrid; gx++ {
			cell = cell[:0]
			for y := max(1, gy*ch); y < min(h-1, (gy+1)*ch); y++ {
				for x := max(1, gx*cw); x < min(w-1, (gx+1)*cw); x++ {
					cell = append(cell, residual[y*w+x])
				}
			}
			variances = append(variances, dsp.Variance(cell))
		}
	}
	if cv, ok := dsp.CoefficientOfVariation(variances); ok {
		metrics["noise_cv"] = cv
		if cv < noiseUniformCV {
			flags["noise_uniform"] = true
			score += uniformityBaseScore + uniformityBaseScore*(1-cv/noiseUniformCV)
			findings.add("uniform_noise", 50+(1-cv/noiseUniformCV)*25,
				"Noise is suspiciously uniform across the image (CV %.2f)", cv)
		}
	}

	return mathPart{score: math.Min(100, score), findings: findings.findings, metrics: metrics, flags: flags}
}
