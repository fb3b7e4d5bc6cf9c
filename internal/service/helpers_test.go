package service

import (
	"context"
	"math"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/ajharshal45/UnReal-Extension-sub001/internal/imaging"
)

func solidBuffer(w, h int, r, g, b uint8) *imaging.PixelBuffer {
	pix := make([]uint8, 4*w*h)
	for i := 0; i < len(pix); i += 4 {
		pix[i], pix[i+1], pix[i+2], pix[i+3] = r, g, b, 255
	}
	return &imaging.PixelBuffer{Width: w, Height: h, Pix: pix}
}

// noisyBuffer is a deterministic random-texture image.
func noisyBuffer(w, h int, seed uint64) *imaging.PixelBuffer {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	pix := make([]uint8, 4*w*h)
	for i := 0; i < len(pix); i += 4 {
		base := 60 + rng.IntN(140)
		pix[i] = uint8(base + rng.IntN(20))
		pix[i+1] = uint8(base + rng.IntN(20))
		pix[i+2] = uint8(base + rng.IntN(20))
		pix[i+3] = 255
	}
	return &imaging.PixelBuffer{Width: w, Height: h, Pix: pix}
}

// checkerboard has a single spatial frequency at a quarter of the size on
// both axes.
func checkerboard(n int) *imaging.PixelBuffer {
	pix := make([]uint8, 4*n*n)
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			v := 128 + 60*math.Cos(2*math.Pi*float64(x)/4) + 60*math.Cos(2*math.Pi*float64(y)/4)
			i := 4 * (y*n + x)
			pix[i], pix[i+1], pix[i+2], pix[i+3] = uint8(v), uint8(v), uint8(v), 255
		}
	}
	return &imaging.PixelBuffer{Width: n, Height: n, Pix: pix}
}

// skinBuffer is a skin-toned image whose rows above smoothRows are flat and
// whose remaining rows carry luminance-only noise.
func skinBuffer(n, smoothRows int, seed uint64) *imaging.PixelBuffer {
	rng := rand.New(rand.NewPCG(seed, 7))
	pix := make([]uint8, 4*n*n)
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			d := 0
			if y >= smoothRows {
				d = rng.IntN(81) - 40
			}
			i := 4 * (y*n + x)
			pix[i], pix[i+1], pix[i+2], pix[i+3] = uint8(200+d), uint8(150+d), uint8(120+d), 255
		}
	}
	return &imaging.PixelBuffer{Width: n, Height: n, Pix: pix}
}

// fixedLayer returns a constant score, or panics.
type fixedLayer struct {
	layer  Layer
	score  float64
	panics bool
}

func (f fixedLayer) Analyze(context.Context, *imaging.PixelBuffer) LayerResult {
	if f.panics {
		panic("layer exploded")
	}
	return LayerResult{Layer: f.layer, Score: f.score, Confidence: 70, Available: true}
}

// countingValidator records invocations and returns a canned answer.
type countingValidator struct {
	calls   atomic.Int32
	verdict *ValidatorVerdict
	err     error
	delay   time.Duration
}

func (v *countingValidator) Validate(ctx context.Context, _ ValidationRequest) (*ValidatorVerdict, error) {
	v.calls.Add(1)
	if v.delay > 0 {
		select {
		case <-time.After(v.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return v.verdict, v.err
}

// mapCache is an in-memory ResultCache.
type mapCache struct {
	data map[string][]byte
}

func newMapCache() *mapCache { return &mapCache{data: map[string][]byte{}} }

func (c *mapCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *mapCache) Set(_ context.Context, key string, value []byte) error {
	c.data[key] = value
	return nil
}

func findingKinds(findings []Finding) []string {
	kinds := make([]string, len(findings))
	for i, f := range findings {
		kinds[i] = f.Kind
	}
	return kinds
}
