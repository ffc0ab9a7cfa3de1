package visualization

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"patchflow/internal/models"
)

// TestMagnitudeImageDimensions verifies that the rendering matches the field
// extent
func TestMagnitudeImageDimensions(t *testing.T) {
	field := models.NewFlowField(32, 24)
	v := NewViewer(field)

	img := v.MagnitudeImage()
	bounds := img.Bounds()
	if bounds.Dx() != 32 || bounds.Dy() != 24 {
		t.Errorf("Magnitude image is %dx%d, want 32x24", bounds.Dx(), bounds.Dy())
	}
}

// TestMagnitudeScaling verifies that the largest magnitude maps to white and
// zero flow maps to black
func TestMagnitudeScaling(t *testing.T) {
	field := models.NewFlowField(16, 16)
	field.Set(8, 8, 3, 4) // magnitude 5
	field.Set(4, 4, 0.6, 0.8)

	v := NewViewer(field)
	img := v.MagnitudeImage().(*image.Gray16)

	if got := img.Gray16At(8, 8).Y; got != 65535 {
		t.Errorf("Largest magnitude rendered as %d, want 65535", got)
	}
	if got := img.Gray16At(0, 0).Y; got != 0 {
		t.Errorf("Zero flow rendered as %d, want 0", got)
	}

	// Magnitude 1 out of a maximum of 5 should land at a fifth of the range.
	got := img.Gray16At(4, 4).Y
	want := uint16(65535 / 5)
	if diff := int(got) - int(want); diff < -1 || diff > 1 {
		t.Errorf("Intermediate magnitude rendered as %d, want about %d", got, want)
	}
}

// TestZeroFieldRendering verifies that an all-zero field renders without
// dividing by zero
func TestZeroFieldRendering(t *testing.T) {
	field := models.NewFlowField(16, 16)
	v := NewViewer(field)

	mag := v.MagnitudeImage().(*image.Gray16)
	if got := mag.Gray16At(8, 8).Y; got != 0 {
		t.Errorf("Zero field magnitude rendered as %d, want 0", got)
	}

	dir := v.DirectionImage()
	r, g, b, _ := dir.At(8, 8).RGBA()
	// Neutral chroma with zero luma decodes to black.
	if r>>8 > 2 || g>>8 > 2 || b>>8 > 2 {
		t.Errorf("Zero field direction rendered as (%d, %d, %d), want near black", r>>8, g>>8, b>>8)
	}
}

// TestDirectionChroma verifies that opposite flow directions land on
// opposite sides of the neutral chroma point
func TestDirectionChroma(t *testing.T) {
	field := models.NewFlowField(16, 16)
	field.Set(4, 8, 2, 0)
	field.Set(12, 8, -2, 0)

	v := NewViewer(field)
	img := v.DirectionImage()

	_, cbRight, _ := toYCbCr(img.At(4, 8))
	_, cbLeft, _ := toYCbCr(img.At(12, 8))

	if cbRight <= 127 {
		t.Errorf("Rightward flow Cb = %d, want above neutral", cbRight)
	}
	if cbLeft >= 128 {
		t.Errorf("Leftward flow Cb = %d, want below neutral", cbLeft)
	}
}

func toYCbCr(c color.Color) (y, cb, cr uint8) {
	r, g, b, _ := c.RGBA()
	return color.RGBToYCbCr(uint8(r>>8), uint8(g>>8), uint8(b>>8))
}

// TestSaveImage verifies the extension-driven encoder selection
func TestSaveImage(t *testing.T) {
	field := models.NewFlowField(8, 8)
	field.Set(4, 4, 1, 1)
	v := NewViewer(field)
	img := v.MagnitudeImage()

	dir := t.TempDir()

	for _, name := range []string{"flow.png", "flow.jpg"} {
		path := filepath.Join(dir, name)
		if err := v.SaveImage(img, path); err != nil {
			t.Errorf("SaveImage(%s) failed: %v", name, err)
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			t.Errorf("Saved file %s missing: %v", name, err)
		} else if info.Size() == 0 {
			t.Errorf("Saved file %s is empty", name)
		}
	}

	if err := v.SaveImage(img, filepath.Join(dir, "flow.bmp")); err == nil {
		t.Error("Expected an error for an unsupported image format")
	}
}
