// Package dsp holds the numeric primitives the analyzers share: a radix-2
// FFT, 3x3 convolution kernels and small statistics helpers.
package dsp

import (
	"errors"
	"math"
	"math/cmplx"
)

// ErrNotPowerOfTwo is returned when a transform size is not a power of two.
var ErrNotPowerOfTwo = errors.New("size is not a power of two")

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// FFT1D performs an in-place iterative radix-2 forward transform.
func FFT1D(x []complex128) error {
	n := len(x)
	if !IsPowerOfTwo(n) {
		return ErrNotPowerOfTwo
	}

	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j ^= bit
		if i < j {
			x[i], x[j] = x[j], x[i]
		}
	}

	for size := 2; size <= n; size <<= 1 {
		step := cmplx.Exp(complex(0, -2*math.Pi/float64(size)))
		half := size / 2
		for start := 0; start < n; start += size {
			w := complex(1, 0)
			for k := 0; k < half; k++ {
				a := x[start+k]
				b := x[start+k+half] * w
				x[start+k] = a + b
				x[start+k+half] = a - b
				w *= step
			}
		}
	}
	return nil
}

// FFT2D transforms a row-major real grid and returns the magnitude
// spectrum with the DC term shifted to the center.
func FFT2D(data []float64, width, height int) ([]float64, error) {
	if !IsPowerOfTwo(width) || !IsPowerOfTwo(height) {
		return nil, ErrNotPowerOfTwo
	}
	if len(data) != width*height {
		return nil, errors.New("data length does not match dimensions")
	}

	grid := make([]complex128, width*height)
	for i, v := range data {
		grid[i] = complex(v, 0)
	}

	for y := 0; y < height; y++ {
		if err := FFT1D(grid[y*width : (y+1)*width]); err != nil {
			return nil, err
		}
	}

	col := make([]complex128, height)
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			col[y] = grid[y*width+x]
		}
		if err := FFT1D(col); err != nil {
			return nil, err
		}
		for y := 0; y < height; y++ {
			grid[y*width+x] = col[y]
		}
	}

	mag := make([]float64, width*height)
	for i, c := range grid {
		mag[i] = cmplx.Abs(c)
	}
	return Shift(mag, width, height), nil
}

// Shift swaps quadrants so the zero-frequency term sits at (w/2, h/2).
func Shift(data []float64, width, height int) []float64 {
	out := make([]float64, len(data))
	hw, hh := width/2, height/2
	for y := 0; y < height; y++ {
		ny := (y + hh) % height
		for x := 0; x < width; x++ {
			nx := (x + hw) % width
			out[ny*width+nx] = data[y*width+x]
		}
	}
	return out
}

// RadialProfile averages a centered spectrum over integer-radius rings out
// to the Nyquist radius.
func RadialProfile(spectrum []float64, width, height int) []float64 {
	cx, cy := width/2, height/2
	nyquist := min(cx, cy)
	sums := make([]float64, nyquist+1)
	counts := make([]int, nyquist+1)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			dx, dy := float64(x-cx), float64(y-cy)
			r := int(math.Round(math.Sqrt(dx*dx + dy*dy)))
			if r > nyquist {
				continue
			}
			sums[r] += spectrum[y*width+x]
			counts[r]++
		}
	}

	for r := range sums {
		if counts[r] > 0 {
			sums[r] /= float64(counts[r])
		}
	}
	return sums
}
