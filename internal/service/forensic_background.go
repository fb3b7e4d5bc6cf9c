package service

import (
	"math"

	"github.com/ajharshal45/UnReal-Extension-sub001/internal/dsp"
)

const (
	backgroundBlock      = 8
	texturedVariance     = 25.0
	repeatTolerance      = 2.0
	repeatMatchRatio     = 0.5
	minRepeatSamples     = 50
	warpGradient         = 50.0
	warpMinRun           = 40
	warpResidual         = 1.0
	warpRowStep          = 4
	warpPoints           = 10.0
	warpCap              = 40.0
	repetitionScoreScale = 100.0
	repetitionCap        = 60.0
)

// repeatOffsets are grid-unit offsets: 32 and 64 px horizontally,
// vertically and diagonally.
var repeatOffsets = [][2]int{{4, 0}, {0, 4}, {4, 4}, {8, 0}, {0, 8}, {8, 8}}

// analyzeBackground looks for tiled repetition and warped straight lines.
func analyzeBackground(f *forensicFrame) subScore {
	findings := newCollector(LayerForensic, maxFindingsPerCheck)
	var score float64

	bestRatio, bestOffset := repetition(f)
	if bestRatio > repeatMatchRatio {
		score += math.Min(repetitionCap, bestRatio*repetitionScoreScale)
		findings.add("background_repetition", 40+bestRatio*45,
			"Background repeats at a %d px offset (%.0f%% of textured samples match)",
			bestOffset*backgroundBlock, bestRatio*100)
	}

	runs, warped := warpedRuns(f)
	if warped > 0 {
		score += math.Min(warpCap, float64(warped)*warpPoints)
		findings.add("warped_lines", math.Min(80, 40+float64(warped)*8),
			"%d straight edges show unnatural warping", warped)
	}

	return subScore{
		score:    score,
		findings: findings.findings,
		metrics: map[string]float64{
			"repetition_ratio": bestRatio,
			"edge_runs":        float64(runs),
			"warped_runs":      float64(warped),
		},
	}
}

// repetition returns the highest match ratio across offsets and the offset
// magnitude (in grid units) that produced it. Only textured blocks count, so
// flat images do not look tiled.
func repetition(f *forensicFrame) (float64, int) {
	cols, rows := f.w/backgroundBlock, f.h/backgroundBlock
	means := make([]float64, cols*rows)
	textured := make([]bool, cols*rows)
	block := make([]float64, 0, backgroundBlock*backgroundBlock)

	for by := 0; by < rows; by++ {
		for bx := 0; bx < cols; bx++ {
			block = block[:0]
			for y := by * backgroundBlock; y < (by+1)*backgroundBlock; y++ {
				block = append(block, f.gray[y*f.w+bx*backgroundBlock:y*f.w+(bx+1)*backgroundBlock]...)
			}
			i := by*cols + bx
			means[i] = dsp.Mean(block)
			textured[i] = dsp.Variance(block) > texturedVariance
		}
	}

	var best float64
	bestOffset := 0
	for _, off := range repeatOffsets {
		samples, matches := 0, 0
		for by := 0; by+off[1] < rows; by++ {
			for bx := 0; bx+off[0] < cols; bx++ {
				i := by*cols + bx
				j := (by+off[1])*cols + bx + off[0]
				if !textured[i] || !textured[j] {
					continue
				}
				samples++
				if math.Abs(means[i]-means[j]) < repeatTolerance {
					matches++
				}
			}
		}
		if samples < minRepeatSamples {
			continue
		}
		if ratio := float64(matches) / float64(samples); ratio > best {
			best = ratio
			bestOffset = max(off[0], off[1])
		}
	}
	return best, bestOffset
}

// warpedRuns traces horizontal edges left to right and counts those whose
// vertical positions deviate from a straight line.
func warpedRuns(f *forensicFrame) (runs, warped int) {
	isEdge := func(x, y int) bool {
		if x < 1 || y < 1 || x >= f.w-1 || y >= f.h-1 {
			return false
		}
		gx := dsp.SobelX.Apply(f.gray, f.w, x, y)
		gy := dsp.SobelY.Apply(f.gray, f.w, x, y)
		return math.Abs(gy) > warpGradient && math.Abs(gy) > 2*math.Abs(gx)
	}

	visited := make([]bool, f.w*f.h)
	for y := 1; y < f.h-1; y += warpRowStep {
		for x := 1; x < f.w-1; x++ {
			if visited[y*f.w+x] || !isEdge(x, y) {
				continue
			}
			xs := []float64{float64(x)}
			ys := []float64{float64(y)}
			visited[y*f.w+x] = true
			cy := y
			for nx := x + 1; nx < f.w-1; nx++ {
				next := -1
				for _, dy := range []int{0, -1, 1} {
					if isEdge(nx, cy+dy) {
						next = cy + dy
						break
					}
				}
				if next < 0 {
					break
				}
				cy = next
				visited[cy*f.w+nx] = true
				xs = append(xs, float64(nx))
				ys = append(ys, float64(cy))
			}
			if len(xs) < warpMinRun {
				continue
			}
			runs++
			if lineResidual(xs, ys) > warpResidual {
				warped++
			}
			x = int(xs[len(xs)-1])
		}
	}
	return runs, warped
}

func lineResidual(xs, ys []float64) float64 {
	slope, intercept := dsp.LinearRegression(xs, ys)
	res := make([]float64, len(xs))
	for i := range xs {
		res[i] = ys[i] - (slope*xs[i] + intercept)
	}
	return dsp.StdDev(res)
}
