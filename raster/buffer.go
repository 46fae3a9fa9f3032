// Package raster provides the in-memory RGB image buffer shared by the
// codec, the filter engine and the exporters.
package raster

import (
	"errors"
	"image"
	"image/color"
)

// Common errors for buffer construction.
var (
	// ErrInvalidDimensions is returned when width or height is non-positive.
	ErrInvalidDimensions = errors.New("raster: invalid dimensions")

	// ErrDataSize is returned when a pixel slice does not match width*height.
	ErrDataSize = errors.New("raster: pixel data does not match dimensions")
)

// Pixel is a single RGB sample. There is no alpha channel.
type Pixel struct {
	R, G, B uint8
}

// Buffer is a row-major RGB raster with its origin at the top-left corner.
// Pixel (x, y) lives at index y*width + x.
//
// A Buffer is owned by exactly one stage at a time (decoder, engine,
// encoder). Concurrent reads are safe; concurrent writes are safe only when
// the writers touch disjoint rows, which is how the filter engine uses it.
type Buffer struct {
	width  int
	height int
	pix    []Pixel
}

// New allocates a zero-filled (black) buffer.
func New(width, height int) (*Buffer, error) {
	if width <= 0 || height <= 0 {
		return nil, ErrInvalidDimensions
	}
	return &Buffer{
		width:  width,
		height: height,
		pix:    make([]Pixel, width*height),
	}, nil
}

// FromPixels wraps an existing pixel slice without copying.
func FromPixels(width, height int, pix []Pixel) (*Buffer, error) {
	if width <= 0 || height <= 0 {
		return nil, ErrInvalidDimensions
	}
	if len(pix) != width*height {
		return nil, ErrDataSize
	}
	return &Buffer{width: width, height: height, pix: pix}, nil
}

// Width returns the image width in pixels.
func (b *Buffer) Width() int {
	return b.width
}

// Height returns the image height in pixels.
func (b *Buffer) Height() int {
	return b.height
}

// Len returns the number of pixels.
func (b *Buffer) Len() int {
	return len(b.pix)
}

// Pixels returns the backing slice. Writes through it modify the buffer.
func (b *Buffer) Pixels() []Pixel {
	return b.pix
}

// Row returns the pixels of row y, or nil if y is out of range.
func (b *Buffer) Row(y int) []Pixel {
	if y < 0 || y >= b.height {
		return nil
	}
	start := y * b.width
	return b.pix[start : start+b.width]
}

// PixelAt returns the pixel at (x, y). Coordinates must be in range.
func (b *Buffer) PixelAt(x, y int) Pixel {
	return b.pix[y*b.width+x]
}

// SetPixel stores p at (x, y). Coordinates must be in range.
func (b *Buffer) SetPixel(x, y int, p Pixel) {
	b.pix[y*b.width+x] = p
}

// Equal reports whether two buffers have identical dimensions and pixels.
func (b *Buffer) Equal(other *Buffer) bool {
	if b == nil || other == nil {
		return b == other
	}
	if b.width != other.width || b.height != other.height {
		return false
	}
	for i := range b.pix {
		if b.pix[i] != other.pix[i] {
			return false
		}
	}
	return true
}

// Release drops the pixel storage so the memory can be reclaimed while the
// Buffer value itself is still referenced.
func (b *Buffer) Release() {
	b.pix = nil
	b.width = 0
	b.height = 0
}

// ColorModel implements image.Image.
func (b *Buffer) ColorModel() color.Model {
	return color.RGBAModel
}

// Bounds implements image.Image.
func (b *Buffer) Bounds() image.Rectangle {
	return image.Rect(0, 0, b.width, b.height)
}

// At implements image.Image so a Buffer can be handed to the standard and
// golang.org/x/image encoders.
func (b *Buffer) At(x, y int) color.Color {
	if x < 0 || x >= b.width || y < 0 || y >= b.height {
		return color.RGBA{}
	}
	p := b.pix[y*b.width+x]
	return color.RGBA{R: p.R, G: p.G, B: p.B, A: 0xff}
}

// ToRGBA converts the buffer to an opaque *image.RGBA.
func (b *Buffer) ToRGBA() *image.RGBA {
	img := image.NewRGBA(b.Bounds())
	for i, p := range b.pix {
		o := i * 4
		img.Pix[o] = p.R
		img.Pix[o+1] = p.G
		img.Pix[o+2] = p.B
		img.Pix[o+3] = 0xff
	}
	return img
}
