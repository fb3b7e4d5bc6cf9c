package imaging

// Luma returns the Rec. 601 luminance of an RGB triple in [0, 255].
func Luma(r, g, b uint8) float64 {
	return 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
}

// YCbCr converts an RGB triple to full-range JPEG YCbCr.
func YCbCr(r, g, b uint8) (y, cb, cr float64) {
	rf, gf, bf := float64(r), float64(g), float64(b)
	y = 0.299*rf + 0.587*gf + 0.114*bf
	cb = 128 - 0.168736*rf - 0.331264*gf + 0.5*bf
	cr = 128 + 0.5*rf - 0.418688*gf - 0.081312*bf
	return y, cb, cr
}

// Plane is a row-major float64 image channel.
type Plane struct {
	Width  int
	Height int
	Data   []float64
}

// NewPlane allocates a zeroed plane.
func NewPlane(w, h int) *Plane {
	return &Plane{Width: w, Height: h, Data: make([]float64, w*h)}
}

// At returns the sample at (x, y). No bounds checking.
func (p *Plane) At(x, y int) float64 {
	return p.Data[y*p.Width+x]
}

// Set writes the sample at (x, y).
func (p *Plane) Set(x, y int, v float64) {
	p.Data[y*p.Width+x] = v
}

// Gray derives a luminance plane. The buffer itself is untouched.
func (b *PixelBuffer) Gray() *Plane {
	p := NewPlane(b.Width, b.Height)
	for i, j := 0, 0; j < len(p.Data); i, j = i+4, j+1 {
		p.Data[j] = Luma(b.Pix[i], b.Pix[i+1], b.Pix[i+2])
	}
	return p
}
