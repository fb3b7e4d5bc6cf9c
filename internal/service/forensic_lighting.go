package service

import (
	"math"

	"github.com/ajharshal45/UnReal-Extension-sub001/internal/dsp"
)

const (
	lightingGrid          = 4
	lightingSampleStep    = 4
	strongGradient        = 30.0
	minStrongPerCell      = 5
	opposingAngle         = 120 * math.Pi / 180
	lightingVarianceScale = 60.0
	opposingPairPoints    = 10.0
	opposingPairCap       = 40.0
)

// analyzeLighting compares dominant gradient directions across a 4x4 grid.
func analyzeLighting(f *forensicFrame) subScore {
	findings := newCollector(LayerForensic, maxFindingsPerCheck)
	cw, ch := f.w/lightingGrid, f.h/lightingGrid

	directions := make([]float64, lightingGrid*lightingGrid)
	valid := make([]bool, lightingGrid*lightingGrid)
	var cellMeans []float64

	for gy := 0; gy < lightingGrid; gy++ {
		for gx := 0; gx < lightingGrid; gx++ {
			var angles []float64
			for y := max(1, gy*ch); y < min(f.h-1, (gy+1)*ch); y += lightingSampleStep {
				for x := max(1, gx*cw); x < min(f.w-1, (gx+1)*cw); x += lightingSampleStep {
					mag, angle := dsp.Gradient(f.gray, f.w, x, y)
					if mag > strongGradient {
						angles = append(angles, angle)
					}
				}
			}
			if len(angles) < minStrongPerCell {
				continue
			}
			i := gy*lightingGrid + gx
			directions[i] = dsp.CircularMean(angles)
			valid[i] = true
			cellMeans = append(cellMeans, directions[i])
		}
	}

	if len(cellMeans) < 2 {
		return subScore{metrics: map[string]float64{"valid_cells": float64(len(cellMeans))}}
	}

	variance := dsp.CircularVariance(cellMeans)
	score := variance * lightingVarianceScale
	if variance > 0.5 {
		findings.add("inconsistent_lighting", 40+variance*40,
			"Light direction varies strongly across the image (circular variance %.2f)", variance)
	}

	opposing := 0
	for gy := 0; gy < lightingGrid; gy++ {
		for gx := 0; gx < lightingGrid; gx++ {
			i := gy*lightingGrid + gx
			if !valid[i] {
				continue
			}
			if gx+1 < lightingGrid && valid[i+1] && dsp.AngleDiff(directions[i], directions[i+1]) > opposingAngle {
				opposing++
			}
			if gy+1 < lightingGrid && valid[i+lightingGrid] && dsp.AngleDiff(directions[i], directions[i+lightingGrid]) > opposingAngle {
				opposing++
			}
		}
	}
	if opposing > 0 {
		score += math.Min(opposingPairCap, float64(opposing)*opposingPairPoints)
		findings.add("opposing_light", math.Min(90, 50+float64(opposing)*10),
			"%d neighbouring regions are lit from opposing directions", opposing)
	}

	return subScore{
		score:    score,
		findings: findings.findings,
		metrics: map[string]float64{
			"valid_cells":        float64(len(cellMeans)),
			"circular_variance":  variance,
			"opposing_neighbors": float64(opposing),
		},
	}
}
