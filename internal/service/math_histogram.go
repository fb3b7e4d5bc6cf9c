package service

import (
	"math"

	"github.com/ajharshal45/UnReal-Extension-sub001/internal/dsp"
	"github.com/ajharshal45/UnReal-Extension-sub001/internal/imaging"
)

const (
	lowEntropyBits      = 5.0
	gapMargin           = 10
	gapThreshold        = 50
	smoothThreshold     = 0.9
	entropyPoints       = 40.0
	gapPoints           = 30.0
	smoothnessPoints    = 30.0
	histogramBins       = 256
	histogramChannelCnt = 3
)

// analyzeHistogram inspects the per-channel color distribution.
func analyzeHistogram(buf *imaging.PixelBuffer) mathPart {
	var hist [histogramChannelCnt][histogramBins]float64
	for i := 0; i < len(buf.Pix); i += 4 {
		hist[0][buf.Pix[i]]++
		hist[1][buf.Pix[i+1]]++
		hist[2][buf.Pix[i+2]]++
	}

	findings := newCollector(LayerHistogram, maxFindingsPerCheck)
	var entropy, smooth float64
	gaps := 0
	for c := 0; c < histogramChannelCnt; c++ {
		counts := hist[c][:]
		entropy += dsp.Entropy(counts)
		gaps += countGaps(counts)

		logs := make([]float64, histogramBins)
		for i, v := range counts {
			logs[i] = math.Log1p(v)
		}
		smooth += dsp.Lag1Autocorrelation(logs)
	}
	entropy /= histogramChannelCnt
	smooth /= histogramChannelCnt

	var score float64
	flags := map[string]bool{}
	if entropy < lowEntropyBits {
		flags["low_entropy"] = true
		score += entropyPoints
		findings.add("limited_color_variation", 60,
			"Limited color variation (entropy %.2f bits)", entropy)
	}
	if gaps > gapThreshold {
		flags["banding"] = true
		score += gapPoints
		findings.add("histogram_gaps", 55,
			"Color histogram has %d gaps, indicating banding", gaps)
	}
	if smooth > smoothThreshold {
		flags["smooth_histogram"] = true
		score += smoothnessPoints
		findings.add("smooth_histogram", 50,
			"Color distribution is unnaturally smooth (autocorrelation %.2f)", smooth)
	}

	return mathPart{
		score:    math.Min(100, score),
		findings: findings.findings,
		metrics: map[string]float64{
			"entropy":    round2(entropy),
			"gap_count":  float64(gaps),
			"smoothness": round2(smooth),
		},
		flags: flags,
	}
}

// countGaps counts runs of empty bins, ignoring the outer margins.
func countGaps(counts []float64) int {
	gaps := 0
	inGap := false
	for i := gapMargin; i < len(counts)-gapMargin; i++ {
		if counts[i] == 0 {
			if !inGap {
				gaps++
				inGap = true
			}
			continue
		}
		inGap = false
	}
	return gaps
}
