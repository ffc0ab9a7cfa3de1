package sampler

import (
	"image"
	"image/color"
	"math"
	"testing"
)

// makeRamp creates an image whose intensity is a linear ramp a*x + b*y + c.
func makeRamp(width, height int, a, b, c float64) *Image {
	img := New(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, a*float64(x)+b*float64(y)+c)
		}
	}
	return img
}

// TestNew verifies dimensions and zero initialization
func TestNew(t *testing.T) {
	img := New(8, 6)

	if img.Width != 8 || img.Height != 6 {
		t.Errorf("Expected 8x6 image, got %dx%d", img.Width, img.Height)
	}

	if len(img.Pix) != 48 {
		t.Errorf("Expected 48 pixels, got %d", len(img.Pix))
	}

	for i, v := range img.Pix {
		if v != 0 {
			t.Errorf("Expected zero intensity at index %d, got %f", i, v)
		}
	}
}

// TestBilinearAtGridPoints verifies that bilinear sampling at integer
// coordinates reproduces the stored intensities exactly
func TestBilinearAtGridPoints(t *testing.T) {
	img := makeRamp(6, 6, 0.1, 0.2, 0.05)

	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			got := img.Bilinear(float64(x), float64(y))
			want := img.At(x, y)
			if math.Abs(got-want) > 1e-12 {
				t.Errorf("Bilinear(%d, %d) = %f, want %f", x, y, got, want)
			}
		}
	}
}

// TestBilinearMidpoint verifies interpolation halfway between pixels
func TestBilinearMidpoint(t *testing.T) {
	img := New(2, 2)
	img.Set(0, 0, 0.0)
	img.Set(1, 0, 1.0)
	img.Set(0, 1, 0.0)
	img.Set(1, 1, 1.0)

	got := img.Bilinear(0.5, 0.5)
	if math.Abs(got-0.5) > 1e-12 {
		t.Errorf("Bilinear(0.5, 0.5) = %f, want 0.5", got)
	}
}

// TestBilinearOnRamp verifies that bilinear sampling of a linear ramp is
// exact at arbitrary sub-pixel positions
func TestBilinearOnRamp(t *testing.T) {
	a, b, c := 0.05, -0.03, 0.4
	img := makeRamp(10, 10, a, b, c)

	positions := [][2]float64{{1.25, 2.75}, {4.5, 4.5}, {7.9, 1.1}, {3.0, 6.6}}
	for _, p := range positions {
		got := img.Bilinear(p[0], p[1])
		want := a*p[0] + b*p[1] + c
		if math.Abs(got-want) > 1e-12 {
			t.Errorf("Bilinear(%f, %f) = %f, want %f", p[0], p[1], got, want)
		}
	}
}

// TestGradientOnRamp verifies that the sampled gradient of a linear ramp
// recovers the ramp slopes
func TestGradientOnRamp(t *testing.T) {
	a, b := 0.07, -0.02
	img := makeRamp(12, 12, a, b, 0.5)

	gx, gy := img.Gradient(5.3, 6.7)
	if math.Abs(gx-a) > 1e-12 {
		t.Errorf("Gradient x = %f, want %f", gx, a)
	}
	if math.Abs(gy-b) > 1e-12 {
		t.Errorf("Gradient y = %f, want %f", gy, b)
	}
}

// TestInside verifies the margin-aware bounds predicate
func TestInside(t *testing.T) {
	img := New(10, 8)

	cases := []struct {
		x, y   float64
		margin int
		want   bool
	}{
		{0, 0, 0, true},
		{9, 7, 0, true},
		{-0.1, 0, 0, false},
		{9.1, 0, 0, false},
		{1, 1, 1, true},
		{0.9, 1, 1, false},
		{8, 6, 1, true},
		{8.1, 6, 1, false},
		{5, 6.1, 1, false},
	}

	for _, c := range cases {
		if got := img.Inside(c.x, c.y, c.margin); got != c.want {
			t.Errorf("Inside(%f, %f, %d) = %v, want %v", c.x, c.y, c.margin, got, c.want)
		}
	}
}

// TestSubImage verifies that a cropped copy preserves intensities and does
// not alias the parent
func TestSubImage(t *testing.T) {
	img := makeRamp(10, 10, 0.1, 0.01, 0)

	sub := img.SubImage(image.Rect(2, 3, 7, 8))
	if sub.Width != 5 || sub.Height != 5 {
		t.Fatalf("Expected 5x5 crop, got %dx%d", sub.Width, sub.Height)
	}

	for y := 0; y < 5; y++ {
		for x := 0; x < 5; x++ {
			if sub.At(x, y) != img.At(x+2, y+3) {
				t.Errorf("Crop mismatch at (%d, %d)", x, y)
			}
		}
	}

	sub.Set(0, 0, 42)
	if img.At(2, 3) == 42 {
		t.Error("SubImage aliases the parent image")
	}
}

// TestFromImage verifies luma conversion of a grayscale image into [0, 1]
func TestFromImage(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			src.SetGray(x, y, color.Gray{Y: uint8(x * 60)})
		}
	}

	img := FromImage(src)
	if img.Width != 4 || img.Height != 4 {
		t.Fatalf("Expected 4x4 image, got %dx%d", img.Width, img.Height)
	}

	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			want := float64(uint8(x*60)) / 255.0
			if math.Abs(img.At(x, y)-want) > 1e-2 {
				t.Errorf("At(%d, %d) = %f, want about %f", x, y, img.At(x, y), want)
			}
		}
	}
}
