package service

import (
	"math"

	"github.com/ajharshal45/UnReal-Extension-sub001/internal/imaging"
)

const (
	textureStride        = 8
	textureRadius        = 2 // 5x5 window
	skinSmoothVariance   = 20.0
	flatVariance         = 10.0
	minSkinSamples       = 20
	flatRatioThreshold   = 0.5
	plasticSkinThreshold = 0.6
)

// isSkin applies the YCbCr skin-tone box.
func isSkin(r, g, b uint8) bool {
	y, cb, cr := imaging.YCbCr(r, g, b)
	return y > 80 && cb > 77 && cb < 127 && cr > 133 && cr < 173
}

// localVariance is the luminance variance of the window around (x, y).
func localVariance(f *forensicFrame, x, y, radius int) float64 {
	var sum, sumSq float64
	n := 0
	for dy := -radius; dy <= radius; dy++ {
		row := (y + dy) * f.w
		for dx := -radius; dx <= radius; dx++ {
			v := f.gray[row+x+dx]
			sum += v
			sumSq += v * v
			n++
		}
	}
	mean := sum / float64(n)
	return math.Max(0, sumSq/float64(n)-mean*mean)
}

// analyzeTexture scores plastic-looking skin and globally flat surfaces.
func analyzeTexture(f *forensicFrame) subScore {
	findings := newCollector(LayerForensic, maxFindingsPerCheck)

	var skin, smoothSkin, other, flatOther int
	for y := textureRadius; y < f.h-textureRadius; y += textureStride {
		for x := textureRadius; x < f.w-textureRadius; x += textureStride {
			v := localVariance(f, x, y, textureRadius)
			r, g, b, _ := f.buf.At(x, y)
			if isSkin(r, g, b) {
				skin++
				if v < skinSmoothVariance {
					smoothSkin++
				}
				continue
			}
			other++
			if v < flatVariance {
				flatOther++
			}
		}
	}

	var skinScore, flatScore, skinRatio, flatRatio float64
	if skin >= minSkinSamples {
		skinRatio = float64(smoothSkin) / float64(skin)
		skinScore = skinRatio * 100
		if skinRatio > plasticSkinThreshold {
			findings.add("plastic_skin", 50+skinRatio*40,
				"%.0f%% of skin regions are unnaturally smooth", skinRatio*100)
		}
	}
	if other > 0 {
		flatRatio = float64(flatOther) / float64(other)
		if flatRatio > flatRatioThreshold {
			flatScore = flatRatio * 100
			findings.add("flat_texture", 40+flatRatio*40,
				"%.0f%% of non-skin regions lack natural texture", flatRatio*100)
		}
	}

	return subScore{
		score:    math.Min(100, skinScore+flatScore),
		findings: findings.findings,
		metrics: map[string]float64{
			"skin_samples":      float64(skin),
			"smooth_skin_ratio": skinRatio,
			"flat_ratio":        flatRatio,
		},
	}
}
