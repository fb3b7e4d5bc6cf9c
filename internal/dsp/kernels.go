package dsp

import "math"

// Kernel3 is a 3x3 convolution kernel in row-major order.
type Kernel3 [9]float64

var (
	SobelX    = Kernel3{-1, 0, 1, -2, 0, 2, -1, 0, 1}
	SobelY    = Kernel3{-1, -2, -1, 0, 0, 0, 1, 2, 1}
	Laplacian = Kernel3{0, 1, 0, 1, -4, 1, 0, 1, 0}
	// HighPass subtracts the mean of the eight neighbours, leaving the
	// noise residual.
	HighPass = Kernel3{
		-1.0 / 8, -1.0 / 8, -1.0 / 8,
		-1.0 / 8, 1, -1.0 / 8,
		-1.0 / 8, -1.0 / 8, -1.0 / 8,
	}
)

// Apply evaluates k centered on (x, y). The caller keeps (x, y) at least
// one pixel from every border.
func (k Kernel3) Apply(data []float64, width, x, y int) float64 {
	var sum float64
	i := 0
	for dy := -1; dy <= 1; dy++ {
		row := (y + dy) * width
		for dx := -1; dx <= 1; dx++ {
			sum += k[i] * data[row+x+dx]
			i++
		}
	}
	return sum
}

// Convolve applies k over the interior and leaves a zero one-pixel border.
func Convolve(data []float64, width, height int, k Kernel3) []float64 {
	out := make([]float64, len(data))
	for y := 1; y < height-1; y++ {
		for x := 1; x < width-1; x++ {
			out[y*width+x] = k.Apply(data, width, x, y)
		}
	}
	return out
}

// Gradient returns the Sobel magnitude and direction (radians) at (x, y).
func Gradient(data []float64, width, x, y int) (magnitude, angle float64) {
	gx := SobelX.Apply(data, width, x, y)
	gy := SobelY.Apply(data, width, x, y)
	return math.Hypot(gx, gy), math.Atan2(gy, gx)
}
