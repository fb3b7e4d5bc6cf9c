package service

import (
	"math"
	"math/cmplx"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajharshal45/UnReal-Extension-sub001/internal/dsp"
	"github.com/ajharshal45/UnReal-Extension-sub001/internal/imaging"
)

// spectrumPlane synthesises an n×n plane whose spectrum has magnitude
// amp(r) at radius r. A nil rng gives zero phase, so the plane is real and
// its spectrum is exactly amp; otherwise phases are random and the plane is
// the real part of the inverse transform.
func spectrumPlane(t *testing.T, n int, amp func(r float64) float64, rng *rand.Rand) *imaging.Plane {
	t.Helper()
	signed := func(k int) float64 {
		if k > n/2 {
			return float64(k - n)
		}
		return float64(k)
	}
	grid := make([]complex128, n*n)
	for ky := 0; ky < n; ky++ {
		for kx := 0; kx < n; kx++ {
			phase := 0.0
			if rng != nil {
				phase = 2 * math.Pi * rng.Float64()
			}
			grid[ky*n+kx] = cmplx.Rect(amp(math.Hypot(signed(kx), signed(ky))), -phase)
		}
	}

	// conj(FFT(conj(X))) is the inverse transform up to a constant factor.
	for y := 0; y < n; y++ {
		require.NoError(t, dsp.FFT1D(grid[y*n:(y+1)*n]))
	}
	col := make([]complex128, n)
	for x := 0; x < n; x++ {
		for y := 0; y < n; y++ {
			col[y] = grid[y*n+x]
		}
		require.NoError(t, dsp.FFT1D(col))
		for y := 0; y < n; y++ {
			grid[y*n+x] = col[y]
		}
	}

	p := imaging.NewPlane(n, n)
	for i, c := range grid {
		p.Data[i] = real(c)
	}
	return p
}

func powerLaw(alpha float64) func(float64) float64 {
	return func(r float64) float64 {
		if r == 0 {
			return 1e6
		}
		return 1e6 * math.Pow(r, -alpha)
	}
}

func whitePlane(n int, seed uint64) *imaging.Plane {
	rng := rand.New(rand.NewPCG(seed, 1))
	p := imaging.NewPlane(n, n)
	for i := range p.Data {
		p.Data[i] = 100 * rng.Float64()
	}
	return p
}

func TestFrequencySpectralSlope(t *testing.T) {
	t.Run("natural 1/f falloff is not flagged", func(t *testing.T) {
		part, err := analyzeFrequency(spectrumPlane(t, 256, powerLaw(1.25), rand.New(rand.NewPCG(3, 4))))
		require.NoError(t, err)

		slope := part.metrics["spectral_slope"]
		assert.InDelta(t, -1.25, slope, 0.2)
		assert.GreaterOrEqual(t, slope, -1.5)
		assert.LessOrEqual(t, slope, -1.0)
		assert.False(t, part.flags["slope_anomalous"])
		assert.NotContains(t, findingKinds(part.findings), "spectral_slope")
	})

	t.Run("white noise is too flat", func(t *testing.T) {
		part, err := analyzeFrequency(whitePlane(256, 9))
		require.NoError(t, err)

		assert.Greater(t, part.metrics["spectral_slope"], slopeFlat)
		assert.True(t, part.flags["slope_anomalous"])
		assert.Contains(t, findingKinds(part.findings), "spectral_slope")
	})

	t.Run("steep falloff is flagged", func(t *testing.T) {
		part, err := analyzeFrequency(spectrumPlane(t, 256, powerLaw(3), rand.New(rand.NewPCG(5, 6))))
		require.NoError(t, err)

		assert.Less(t, part.metrics["spectral_slope"], slopeSteep)
		assert.True(t, part.flags["slope_anomalous"])
	})
}

func TestFrequencyDiffusionSignature(t *testing.T) {
	t.Run("smooth radial falloff is flagged", func(t *testing.T) {
		smooth := func(r float64) float64 { return 1e3 * math.Exp(-r/20) }
		part, err := analyzeFrequency(spectrumPlane(t, 256, smooth, nil))
		require.NoError(t, err)

		assert.Less(t, part.metrics["diffusion_variance"], diffusionThreshold)
		assert.True(t, part.flags["diffusion_detected"])
		assert.Contains(t, findingKinds(part.findings), "diffusion_signature")
	})

	t.Run("noisy natural spectrum is not", func(t *testing.T) {
		part, err := analyzeFrequency(spectrumPlane(t, 256, powerLaw(1.25), rand.New(rand.NewPCG(7, 8))))
		require.NoError(t, err)

		assert.False(t, part.flags["diffusion_detected"])
		assert.False(t, part.flags["gan_detected"], "no energy concentrated at quarter frequency")
	})
}

func TestNoisePRNU(t *testing.T) {
	t.Run("independent noise has no sensor pattern", func(t *testing.T) {
		part := analyzeNoise(whitePlane(256, 11))

		assert.Less(t, part.metrics["prnu_correlation"], prnuThreshold)
		assert.True(t, part.flags["prnu_absent"])
		assert.Contains(t, findingKinds(part.findings), "prnu_absent")
	})

	t.Run("fixed pattern repeated across quadrants is a sensor fingerprint", func(t *testing.T) {
		rng := rand.New(rand.NewPCG(12, 13))
		pattern := make([]float64, 128*128)
		for i := range pattern {
			pattern[i] = 40 * rng.Float64()
		}
		p := imaging.NewPlane(256, 256)
		for y := 0; y < 256; y++ {
			for x := 0; x < 256; x++ {
				p.Data[y*256+x] = pattern[(y%128)*128+x%128] + 10*rng.Float64()
			}
		}
		part := analyzeNoise(p)

		assert.Greater(t, part.metrics["prnu_correlation"], 0.5)
		assert.False(t, part.flags["prnu_absent"])
		assert.NotContains(t, findingKinds(part.findings), "prnu_absent")
	})
}

func TestNoiseUniformity(t *testing.T) {
	t.Run("stationary noise is uniform", func(t *testing.T) {
		part := analyzeNoise(whitePlane(256, 14))

		assert.Less(t, part.metrics["noise_cv"], noiseUniformCV)
		assert.True(t, part.flags["noise_uniform"])
		assert.Contains(t, findingKinds(part.findings), "uniform_noise")
	})

	t.Run("noise strength varying across the frame is not", func(t *testing.T) {
		rng := rand.New(rand.NewPCG(15, 16))
		amps := []float64{2, 8, 20, 40}
		p := imaging.NewPlane(256, 256)
		for y := 0; y < 256; y++ {
			for x := 0; x < 256; x++ {
				p.Data[y*256+x] = 128 + amps[x/64]*rng.Float64()
			}
		}
		part := analyzeNoise(p)

		assert.Greater(t, part.metrics["noise_cv"], noiseUniformCV)
		assert.False(t, part.flags["noise_uniform"])
	})
}

// histogramBuffer is a one-row buffer of gray pixels, count[v] of value v.
func histogramBuffer(count func(v int) int) *imaging.PixelBuffer {
	var pix []uint8
	for v := 0; v < 256; v++ {
		for i := 0; i < count(v); i++ {
			pix = append(pix, uint8(v), uint8(v), uint8(v), 255)
		}
	}
	return &imaging.PixelBuffer{Width: len(pix) / 4, Height: 1, Pix: pix}
}

func TestHistogramChecks(t *testing.T) {
	comb := histogramBuffer(func(v int) int {
		if v%4 == 0 {
			return 64
		}
		return 0
	})
	triangle := histogramBuffer(func(v int) int { return 1 + 4*min(v, 255-v) })

	t.Run("every fourth value used is banding", func(t *testing.T) {
		part := analyzeHistogram(comb)

		assert.Greater(t, part.metrics["gap_count"], float64(gapThreshold))
		assert.True(t, part.flags["banding"])
		assert.Contains(t, findingKinds(part.findings), "histogram_gaps")
		assert.False(t, part.flags["smooth_histogram"], "alternating bins are not smooth")
		assert.False(t, part.flags["low_entropy"], "64 levels carry 6 bits")
	})

	t.Run("bell-shaped distribution is unnaturally smooth", func(t *testing.T) {
		part := analyzeHistogram(triangle)

		assert.Greater(t, part.metrics["smoothness"], smoothThreshold)
		assert.True(t, part.flags["smooth_histogram"])
		assert.Contains(t, findingKinds(part.findings), "smooth_histogram")
		assert.Equal(t, 0.0, part.metrics["gap_count"])
		assert.False(t, part.flags["banding"])
	})
}
