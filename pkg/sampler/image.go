// Package sampler provides the float intensity image used throughout the
// alignment pipeline, together with bilinear intensity and gradient sampling
// at real-valued coordinates.
package sampler

import (
	"image"
	"math"
)

// Image is a single-channel 2D grid of float64 intensities stored in
// row-major order. It is treated as read-only for the duration of an
// alignment session.
type Image struct {
	// Pix holds the intensities, one float64 per pixel, row by row.
	Pix []float64

	// Width and Height are the image dimensions in pixels.
	Width  int
	Height int
}

// New creates a zero-valued image of the given dimensions.
func New(width, height int) *Image {
	return &Image{
		Pix:    make([]float64, width*height),
		Width:  width,
		Height: height,
	}
}

// FromImage converts a standard library image to a single-channel float
// image with intensities in [0, 1], using the usual luma weighting.
func FromImage(img image.Image) *Image {
	bounds := img.Bounds()
	out := New(bounds.Dx(), bounds.Dy())

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			luma := (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)) / 65535.0
			out.Set(x-bounds.Min.X, y-bounds.Min.Y, luma)
		}
	}

	return out
}

// At returns the intensity at integer coordinates (x, y).
func (p *Image) At(x, y int) float64 {
	return p.Pix[y*p.Width+x]
}

// Set stores an intensity at integer coordinates (x, y).
func (p *Image) Set(x, y int, v float64) {
	p.Pix[y*p.Width+x] = v
}

// SubImage copies the given rectangle into a new image. The rectangle must
// lie entirely within the image bounds.
func (p *Image) SubImage(r image.Rectangle) *Image {
	out := New(r.Dx(), r.Dy())
	for y := 0; y < r.Dy(); y++ {
		for x := 0; x < r.Dx(); x++ {
			out.Set(x, y, p.At(r.Min.X+x, r.Min.Y+y))
		}
	}
	return out
}

// Inside reports whether the real-valued coordinate (x, y) can be sampled
// with the given margin. A margin of 1 guarantees that both the bilinear
// sample and its neighbour-based gradient are well defined.
func (p *Image) Inside(x, y float64, margin int) bool {
	m := float64(margin)
	return x >= m && y >= m && x <= float64(p.Width-1)-m && y <= float64(p.Height-1)-m
}

// Bilinear samples the intensity at a real-valued coordinate by bilinear
// interpolation of the four surrounding pixels. The coordinate must satisfy
// Inside(x, y, 0).
func (p *Image) Bilinear(x, y float64) float64 {
	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	fx := x - float64(x0)
	fy := y - float64(y0)

	x1, y1 := x0+1, y0+1
	if x1 > p.Width-1 {
		x1 = p.Width - 1
	}
	if y1 > p.Height-1 {
		y1 = p.Height - 1
	}

	top := p.At(x0, y0)*(1-fx) + p.At(x1, y0)*fx
	bot := p.At(x0, y1)*(1-fx) + p.At(x1, y1)*fx
	return top*(1-fy) + bot*fy
}

// Gradient samples the 2-component image gradient at a real-valued
// coordinate, using central differences of bilinear samples. The coordinate
// must satisfy Inside(x, y, 1).
func (p *Image) Gradient(x, y float64) (gx, gy float64) {
	gx = (p.Bilinear(x+1, y) - p.Bilinear(x-1, y)) / 2.0
	gy = (p.Bilinear(x, y+1) - p.Bilinear(x, y-1)) / 2.0
	return gx, gy
}
