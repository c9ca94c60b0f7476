package utils

import (
	"image"
	"image/color"
	"math"
	"testing"
)

func TestLuminance(t *testing.T) {
	tests := []struct {
		name     string
		r, g, b  uint8
		expected float64
	}{
		{"black", 0, 0, 0, 0},
		{"white", 255, 255, 255, 255},
		{"pure green", 0, 255, 0, 0.7152 * 255},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Luminance(tt.r, tt.g, tt.b)
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("Expected %.3f, got %.3f", tt.expected, got)
			}
		})
	}
}

func TestUnpremultiply(t *testing.T) {
	if got := Unpremultiply(50, 0); got != 0 {
		t.Errorf("Expected 0 for transparent pixel, got %d", got)
	}
	if got := Unpremultiply(200, 255); got != 200 {
		t.Errorf("Expected opaque channel unchanged, got %d", got)
	}
	if got := Unpremultiply(64, 128); got != 128 {
		t.Errorf("Expected 128, got %d", got)
	}
}

func TestScaleChannels(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.SetRGBA(0, 0, color.RGBA{R: 100, G: 50, B: 200, A: 255})
	img.SetRGBA(1, 0, color.RGBA{R: 60, G: 60, B: 60, A: 80})

	ScaleChannels(img, 2)

	if got := img.RGBAAt(0, 0); got != (color.RGBA{R: 200, G: 100, B: 255, A: 255}) {
		t.Errorf("Unexpected opaque pixel after scaling: %+v", got)
	}
	if got := img.RGBAAt(1, 0); got != (color.RGBA{R: 80, G: 80, B: 80, A: 80}) {
		t.Errorf("Expected channels capped at alpha, got %+v", got)
	}
}

func TestEnsureRGBA(t *testing.T) {
	buf := EnsureRGBA(nil, 4, 3)
	if buf.Bounds().Dx() != 4 || buf.Bounds().Dy() != 3 {
		t.Fatalf("Unexpected bounds %v", buf.Bounds())
	}
	if again := EnsureRGBA(buf, 4, 3); again != buf {
		t.Error("Expected surface to be reused when size is unchanged")
	}
	if resized := EnsureRGBA(buf, 5, 3); resized == buf {
		t.Error("Expected new surface when size changes")
	}
}

func TestToGray(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 1, 1))
	src.SetRGBA(0, 0, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	gray := ToGray(src)
	if gray.GrayAt(0, 0).Y != 255 {
		t.Errorf("Expected white, got %d", gray.GrayAt(0, 0).Y)
	}
}

func TestResizeGray(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 4, 4))
	for i := range src.Pix {
		src.Pix[i] = 200
	}
	dst := ResizeGray(src, 8, 6)
	if b := dst.Bounds(); b.Dx() != 8 || b.Dy() != 6 {
		t.Fatalf("Unexpected bounds %v", b)
	}
	if v := dst.GrayAt(5, 3).Y; v < 199 || v > 201 {
		t.Errorf("Expected uniform mask to stay near 200, got %d", v)
	}
}
