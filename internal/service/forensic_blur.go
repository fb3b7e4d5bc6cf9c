package service

import "math"

const (
	blurCell       = 10
	blurJumpDelta  = 15.0
	blurJumpScale  = 300.0
	blurJumpCap    = 60.0
	haloCenter     = 1.5
	haloOuter      = 1.3
	haloPoints     = 10.0
	haloCap        = 40.0
	blurSampleStep = 2
)

// analyzeBlur builds a coarse sharpness map and looks for focus jumps and
// halo rings.
func analyzeBlur(f *forensicFrame) subScore {
	findings := newCollector(LayerForensic, maxFindingsPerCheck)
	cols, rows := f.w/blurCell, f.h/blurCell
	if cols < 2 || rows < 2 {
		return subScore{}
	}

	sharp := make([]float64, cols*rows)
	for cy := 0; cy < rows; cy++ {
		for cx := 0; cx < cols; cx++ {
			sharp[cy*cols+cx] = f.cellMean(cx*blurCell, cy*blurCell, (cx+1)*blurCell, (cy+1)*blurCell, blurSampleStep)
		}
	}

	jumps, pairs := 0, 0
	for cy := 0; cy < rows; cy++ {
		for cx := 0; cx < cols; cx++ {
			i := cy*cols + cx
			if cx+1 < cols {
				pairs++
				if math.Abs(sharp[i]-sharp[i+1]) > blurJumpDelta {
					jumps++
				}
			}
			if cy+1 < rows {
				pairs++
				if math.Abs(sharp[i]-sharp[i+cols]) > blurJumpDelta {
					jumps++
				}
			}
		}
	}

	var score float64
	jumpRatio := float64(jumps) / float64(pairs)
	if jumps > 0 {
		score += math.Min(blurJumpCap, jumpRatio*blurJumpScale)
		if jumpRatio > 0.05 {
			findings.add("blur_jump", math.Min(85, 40+jumpRatio*200),
				"%d abrupt focus changes between neighbouring regions", jumps)
		}
	}

	ring := func(cx, cy, r int) float64 {
		var sum float64
		n := 0
		for dy := -r; dy <= r; dy++ {
			for dx := -r; dx <= r; dx++ {
				if max(abs(dx), abs(dy)) != r {
					continue
				}
				sum += sharp[(cy+dy)*cols+cx+dx]
				n++
			}
		}
		return sum / float64(n)
	}

	halos := 0
	for cy := 2; cy < rows-2; cy++ {
		for cx := 2; cx < cols-2; cx++ {
			s0 := sharp[cy*cols+cx]
			ring1, ring2 := ring(cx, cy, 1), ring(cx, cy, 2)
			if s0 > haloCenter*ring1 && ring2 > haloOuter*ring1 {
				halos++
			}
		}
	}
	if halos > 0 {
		score += math.Min(haloCap, float64(halos)*haloPoints)
		findings.add("blur_halo", math.Min(85, 50+float64(halos)*5),
			"%d halo patterns around sharp regions suggest a composited subject", halos)
	}

	return subScore{
		score:    score,
		findings: findings.findings,
		metrics: map[string]float64{
			"jump_ratio": jumpRatio,
			"halos":      float64(halos),
		},
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
