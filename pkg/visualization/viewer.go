// Package visualization renders dense flow fields to standard images for
// inspection: a grayscale magnitude view and a chroma-coded direction view.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"patchflow/internal/models"
)

// Viewer renders a dense flow field to viewable images.
type Viewer struct {
	field *models.FlowField
}

// NewViewer creates a viewer over the given flow field.
func NewViewer(field *models.FlowField) *Viewer {
	return &Viewer{field: field}
}

// MagnitudeImage renders the per-pixel flow magnitude as a 16-bit grayscale
// image, scaled so the largest magnitude maps to white.
func (v *Viewer) MagnitudeImage() image.Image {
	img := image.NewGray16(image.Rect(0, 0, v.field.Width, v.field.Height))

	maxMag := 0.0
	for y := 0; y < v.field.Height; y++ {
		for x := 0; x < v.field.Width; x++ {
			fx, fy := v.field.At(x, y)
			if m := math.Hypot(fx, fy); m > maxMag {
				maxMag = m
			}
		}
	}
	if maxMag == 0 {
		maxMag = 1
	}

	for y := 0; y < v.field.Height; y++ {
		for x := 0; x < v.field.Width; x++ {
			fx, fy := v.field.At(x, y)
			value := uint16(math.Max(0, math.Min(65535, math.Hypot(fx, fy)/maxMag*65535)))
			img.SetGray16(x, y, color.Gray16{Y: value})
		}
	}

	return img
}

// DirectionImage encodes the flow direction in the chroma channels of a
// YCbCr image: horizontal motion drives Cb, vertical motion drives Cr, and
// luminance carries the magnitude. Zero flow renders neutral gray.
func (v *Viewer) DirectionImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, v.field.Width, v.field.Height))

	maxMag := 0.0
	for y := 0; y < v.field.Height; y++ {
		for x := 0; x < v.field.Width; x++ {
			fx, fy := v.field.At(x, y)
			if m := math.Hypot(fx, fy); m > maxMag {
				maxMag = m
			}
		}
	}
	if maxMag == 0 {
		maxMag = 1
	}

	scale := 127.0 / maxMag
	for y := 0; y < v.field.Height; y++ {
		for x := 0; x < v.field.Width; x++ {
			fx, fy := v.field.At(x, y)
			luma := clampByte(math.Hypot(fx, fy) / maxMag * 255.0)
			cb := clampByte(fx*scale + 127.5)
			cr := clampByte(fy*scale + 127.5)
			img.Set(x, y, color.YCbCr{Y: luma, Cb: cb, Cr: cr})
		}
	}

	return img
}

// SaveImage writes an image to disk, choosing the encoder from the file
// extension (.png, .jpg or .jpeg).
func (v *Viewer) SaveImage(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".png":
		return png.Encode(file, img)
	case ".jpg", ".jpeg":
		return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
	default:
		return fmt.Errorf("unsupported image format: %s", filepath.Ext(filename))
	}
}

func clampByte(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
