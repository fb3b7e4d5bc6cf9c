// Package imaging holds the decoded pixel representation shared by every
// analyzer, plus the decode/resample/grayscale helpers around it.
//
// A PixelBuffer is immutable once built. Analyzers derive private working
// copies (grayscale planes, resampled buffers) and never write back.
package imaging

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var (
	ErrEmptyImage      = errors.New("image has no pixels")
	ErrMalformedBuffer = errors.New("pixel buffer length does not match dimensions")
	ErrTooManyPixels   = errors.New("image exceeds the pixel limit")
)

// DefaultMaxPixels is the decode budget used by Decode: 50 megapixels, or
// about 200 MB of RGBA.
const DefaultMaxPixels = 50_000_000

// PixelBuffer is interleaved 8-bit RGBA with explicit dimensions.
type PixelBuffer struct {
	Width  int
	Height int
	Pix    []uint8
}

// ImageSignal is cheap side metadata that is available even when pixel
// decoding fails.
type ImageSignal struct {
	SourceURL  string      `json:"source_url,omitempty"`
	Filename   string      `json:"filename,omitempty"`
	Width      int         `json:"width"`
	Height     int         `json:"height"`
	Provenance *Provenance `json:"provenance,omitempty"`
}

// NewPixelBuffer wraps pix without copying. Callers hand over ownership.
func NewPixelBuffer(width, height int, pix []uint8) (*PixelBuffer, error) {
	b := &PixelBuffer{Width: width, Height: height, Pix: pix}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// Validate checks that the buffer is non-empty and consistently sized.
func (b *PixelBuffer) Validate() error {
	if b == nil || b.Width <= 0 || b.Height <= 0 {
		return ErrEmptyImage
	}
	if len(b.Pix) != 4*b.Width*b.Height {
		return fmt.Errorf("%w: %dx%d needs %d bytes, got %d",
			ErrMalformedBuffer, b.Width, b.Height, 4*b.Width*b.Height, len(b.Pix))
	}
	return nil
}

// At returns the RGBA sample at (x, y). No bounds checking.
func (b *PixelBuffer) At(x, y int) (r, g, bl, a uint8) {
	i := 4 * (y*b.Width + x)
	return b.Pix[i], b.Pix[i+1], b.Pix[i+2], b.Pix[i+3]
}

// Signal returns an ImageSignal carrying the buffer dimensions.
func (b *PixelBuffer) Signal(sourceURL, filename string) ImageSignal {
	return ImageSignal{SourceURL: sourceURL, Filename: filename, Width: b.Width, Height: b.Height}
}

// Fingerprint is a stable content hash over dimensions and pixels, used as
// the result cache key.
func (b *PixelBuffer) Fingerprint() string {
	h := sha256.New()
	var dims [8]byte
	binary.BigEndian.PutUint32(dims[:4], uint32(b.Width))
	binary.BigEndian.PutUint32(dims[4:], uint32(b.Height))
	h.Write(dims[:])
	h.Write(b.Pix)
	return hex.EncodeToString(h.Sum(nil))
}

// Image exposes the buffer as an *image.RGBA sharing the same memory.
// Callers must not draw into it.
func (b *PixelBuffer) Image() *image.RGBA {
	return &image.RGBA{
		Pix:    b.Pix,
		Stride: 4 * b.Width,
		Rect:   image.Rect(0, 0, b.Width, b.Height),
	}
}

// FromImage converts any image.Image into a freshly allocated PixelBuffer.
func FromImage(img image.Image) (*PixelBuffer, error) {
	if img == nil {
		return nil, ErrEmptyImage
	}
	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, ErrEmptyImage
	}

	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != 4*bounds.Dx() || bounds.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	} else {
		cp := make([]uint8, len(rgba.Pix))
		copy(cp, rgba.Pix)
		rgba = &image.RGBA{Pix: cp, Stride: rgba.Stride, Rect: rgba.Rect}
	}

	return &PixelBuffer{Width: bounds.Dx(), Height: bounds.Dy(), Pix: rgba.Pix}, nil
}

// Decode parses an encoded image (JPEG, PNG, GIF, WebP, BMP, TIFF) within
// DefaultMaxPixels.
func Decode(data []byte) (*PixelBuffer, string, error) {
	return DecodeLimited(data, DefaultMaxPixels)
}

// DecodeLimited reads the header first and rejects images whose declared
// size exceeds maxPixels before any pixel memory is allocated. A
// non-positive maxPixels disables the check.
func DecodeLimited(data []byte, maxPixels int64) (*PixelBuffer, string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	if maxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > maxPixels {
		return nil, format, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrTooManyPixels, cfg.Width, cfg.Height, maxPixels)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	buf, err := FromImage(img)
	if err != nil {
		return nil, format, err
	}
	return buf, format, nil
}

// Downscale returns a copy whose longest side is at most maxDim. The
// original is returned unchanged when it already fits.
func Downscale(b *PixelBuffer, maxDim int) *PixelBuffer {
	longest := max(b.Width, b.Height)
	if maxDim <= 0 || longest <= maxDim {
		return b
	}
	scale := float64(maxDim) / float64(longest)
	w := max(1, int(float64(b.Width)*scale+0.5))
	h := max(1, int(float64(b.Height)*scale+0.5))
	return Resize(b, w, h)
}

// Resize resamples to exactly w×h with bilinear interpolation.
func Resize(b *PixelBuffer, w, h int) *PixelBuffer {
	if w == b.Width && h == b.Height {
		return b
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.BiLinear.Scale(dst, dst.Bounds(), b.Image(), b.Image().Bounds(), xdraw.Src, nil)
	return &PixelBuffer{Width: w, Height: h, Pix: dst.Pix}
}
