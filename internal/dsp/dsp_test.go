package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFFT1D(t *testing.T) {
	t.Run("impulse has flat spectrum", func(t *testing.T) {
		x := make([]complex128, 8)
		x[0] = 1
		require.NoError(t, FFT1D(x))
		for _, v := range x {
			assert.InDelta(t, 1, real(v), 1e-9)
			assert.InDelta(t, 0, imag(v), 1e-9)
		}
	})

	t.Run("cosine concentrates at its frequency", func(t *testing.T) {
		n := 16
		x := make([]complex128, n)
		for i := range x {
			x[i] = complex(math.Cos(2*math.Pi*3*float64(i)/float64(n)), 0)
		}
		require.NoError(t, FFT1D(x))
		assert.InDelta(t, 8, real(x[3]), 1e-9)
		assert.InDelta(t, 8, real(x[13]), 1e-9)
		assert.InDelta(t, 0, math.Hypot(real(x[5]), imag(x[5])), 1e-9)
	})

	t.Run("rejects non power of two", func(t *testing.T) {
		assert.ErrorIs(t, FFT1D(make([]complex128, 6)), ErrNotPowerOfTwo)
	})
}

func TestFFT2DShiftsDC(t *testing.T) {
	data := make([]float64, 16*16)
	for i := range data {
		data[i] = 2
	}
	spectrum, err := FFT2D(data, 16, 16)
	require.NoError(t, err)

	assert.InDelta(t, 512, spectrum[8*16+8], 1e-9)
	assert.InDelta(t, 0, spectrum[0], 1e-9)

	_, err = FFT2D(make([]float64, 12*16), 12, 16)
	assert.ErrorIs(t, err, ErrNotPowerOfTwo)
}

func TestRadialProfile(t *testing.T) {
	spectrum := make([]float64, 8*8)
	spectrum[4*8+4] = 10
	profile := RadialProfile(spectrum, 8, 8)
	require.Len(t, profile, 5)
	assert.Equal(t, 10.0, profile[0])
	assert.Equal(t, 0.0, profile[3])
}

func TestKernels(t *testing.T) {
	flat := make([]float64, 5*5)
	for i := range flat {
		flat[i] = 100
	}
	assert.InDelta(t, 0, Laplacian.Apply(flat, 5, 2, 2), 1e-9)
	assert.InDelta(t, 0, HighPass.Apply(flat, 5, 2, 2), 1e-9)

	ramp := make([]float64, 5*5)
	for y := 0; y < 5; y++ {
		for x := 0; x < 5; x++ {
			ramp[y*5+x] = float64(10 * x)
		}
	}
	mag, angle := Gradient(ramp, 5, 2, 2)
	assert.InDelta(t, 80, mag, 1e-9)
	assert.InDelta(t, 0, angle, 1e-9)

	out := Convolve(ramp, 5, 5, Laplacian)
	assert.Equal(t, 0.0, out[0], "border stays zero")

	// A lone spike keeps its full height against zero neighbours, and each
	// neighbour sees an eighth of it.
	spike := make([]float64, 5*5)
	spike[2*5+2] = 80
	assert.InDelta(t, 80, HighPass.Apply(spike, 5, 2, 2), 1e-9)
	assert.InDelta(t, -10, HighPass.Apply(spike, 5, 1, 1), 1e-9)
}

func TestStats(t *testing.T) {
	xs := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	assert.InDelta(t, 5, Mean(xs), 1e-9)
	assert.InDelta(t, 4, Variance(xs), 1e-9)
	assert.InDelta(t, 2, StdDev(xs), 1e-9)

	cv, ok := CoefficientOfVariation(xs)
	assert.True(t, ok)
	assert.InDelta(t, 0.4, cv, 1e-9)
	_, ok = CoefficientOfVariation([]float64{0, 0})
	assert.False(t, ok)

	assert.Equal(t, 0.0, Mean(nil))
}

func TestPearson(t *testing.T) {
	a := []float64{1, 2, 3, 4}
	assert.InDelta(t, 1, Pearson(a, []float64{2, 4, 6, 8}), 1e-9)
	assert.InDelta(t, -1, Pearson(a, []float64{8, 6, 4, 2}), 1e-9)
	assert.Equal(t, 0.0, Pearson(a, []float64{3, 3, 3, 3}))
	assert.Equal(t, 0.0, Pearson(a, []float64{1}))
}

func TestEntropy(t *testing.T) {
	assert.InDelta(t, 0, Entropy([]float64{10, 0, 0}), 1e-9)
	assert.InDelta(t, 1, Entropy([]float64{5, 5}), 1e-9)
	assert.InDelta(t, 8, Entropy(uniform(256)), 1e-9)
	assert.Equal(t, 0.0, Entropy(nil))
}

func TestLinearRegression(t *testing.T) {
	slope, intercept := LinearRegression([]float64{0, 1, 2, 3}, []float64{1, 3, 5, 7})
	assert.InDelta(t, 2, slope, 1e-9)
	assert.InDelta(t, 1, intercept, 1e-9)

	slope, _ = LinearRegression([]float64{1, 1}, []float64{1, 5})
	assert.Equal(t, 0.0, slope)
}

func TestCircular(t *testing.T) {
	assert.InDelta(t, 0, CircularVariance([]float64{0.5, 0.5, 0.5}), 1e-9)
	assert.InDelta(t, 1, CircularVariance([]float64{0, math.Pi / 2, math.Pi, 3 * math.Pi / 2}), 1e-9)
	assert.InDelta(t, math.Pi, AngleDiff(-math.Pi/2, math.Pi/2), 1e-9)
	assert.InDelta(t, 0.2, AngleDiff(math.Pi-0.1, -math.Pi+0.1), 1e-9)
	assert.InDelta(t, 0.3, CircularMean([]float64{0.2, 0.4}), 1e-9)
}

func TestLag1Autocorrelation(t *testing.T) {
	smooth := make([]float64, 100)
	for i := range smooth {
		smooth[i] = float64(i)
	}
	assert.Greater(t, Lag1Autocorrelation(smooth), 0.9)

	alternating := []float64{1, -1, 1, -1, 1, -1}
	assert.Less(t, Lag1Autocorrelation(alternating), -0.5)
	assert.Equal(t, 0.0, Lag1Autocorrelation([]float64{3, 3, 3}))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, Clamp(-5, 0, 100))
	assert.Equal(t, 100.0, Clamp(150, 0, 100))
	assert.Equal(t, 42.0, Clamp(42, 0, 100))
}

func uniform(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1
	}
	return out
}
