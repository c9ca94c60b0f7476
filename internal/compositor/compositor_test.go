package compositor

import (
	"errors"
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/MrCodeEU/livecheck/internal/quality"
)

func gradientFrame(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x * 10), G: uint8(y * 10), B: 50, A: 255})
		}
	}
	return img
}

func solidFrame(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func sharpParams(w, h int) Params {
	return Params{
		Brightness:  1,
		Zoom:        1,
		AspectRatio: float64(w) / float64(h),
	}
}

func TestCenterCrop(t *testing.T) {
	tests := []struct {
		name     string
		bounds   image.Rectangle
		aspect   float64
		expected image.Rectangle
	}{
		{"4:3 to 16:9", image.Rect(0, 0, 640, 480), 16.0 / 9.0, image.Rect(0, 60, 640, 420)},
		{"4:3 to square", image.Rect(0, 0, 640, 480), 1, image.Rect(80, 0, 560, 480)},
		{"16:9 to 4:3", image.Rect(0, 0, 1920, 1080), 4.0 / 3.0, image.Rect(240, 0, 1680, 1080)},
		{"already matching", image.Rect(0, 0, 400, 400), 1, image.Rect(0, 0, 400, 400)},
		{"offset bounds", image.Rect(10, 10, 50, 30), 1, image.Rect(20, 10, 40, 30)},
		{"non-positive aspect", image.Rect(0, 0, 30, 20), 0, image.Rect(0, 0, 30, 20)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CenterCrop(tt.bounds, tt.aspect); got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestCompositeSkipsEmptyFrame(t *testing.T) {
	c := New(nil)
	if _, ok := c.Composite(nil, nil, DefaultParams()); ok {
		t.Error("Expected nil frame to be skipped")
	}
	if _, ok := c.Composite(image.NewRGBA(image.Rect(0, 0, 0, 480)), nil, DefaultParams()); ok {
		t.Error("Expected zero-width frame to be skipped")
	}
	if c.out != nil {
		t.Error("Expected no surfaces to be allocated for a skipped tick")
	}
}

func TestMirror(t *testing.T) {
	frame := gradientFrame(16, 8)

	t.Run("mirrored", func(t *testing.T) {
		params := sharpParams(16, 8)
		params.Mirror = true

		res, ok := New(nil).Composite(frame, nil, params)
		if !ok {
			t.Fatal("Expected composite")
		}
		for y := 0; y < 8; y++ {
			for x := 0; x < 16; x++ {
				if got, want := res.Image.RGBAAt(x, y), frame.RGBAAt(15-x, y); got != want {
					t.Fatalf("At (%d,%d) expected %v, got %v", x, y, want, got)
				}
			}
		}
	})

	t.Run("unmirrored", func(t *testing.T) {
		res, _ := New(nil).Composite(frame, nil, sharpParams(16, 8))
		for y := 0; y < 8; y++ {
			for x := 0; x < 16; x++ {
				if got, want := res.Image.RGBAAt(x, y), frame.RGBAAt(x, y); got != want {
					t.Fatalf("At (%d,%d) expected %v, got %v", x, y, want, got)
				}
			}
		}
	})
}

func TestBrightness(t *testing.T) {
	frame := solidFrame(8, 8, color.RGBA{R: 100, G: 60, B: 200, A: 255})

	tests := []struct {
		name       string
		brightness float64
		expected   color.RGBA
	}{
		{"unchanged", 1, color.RGBA{R: 100, G: 60, B: 200, A: 255}},
		{"doubled and capped", 2, color.RGBA{R: 200, G: 120, B: 255, A: 255}},
		{"black", 0, color.RGBA{A: 255}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := sharpParams(8, 8)
			params.Brightness = tt.brightness
			res, _ := New(nil).Composite(frame, nil, params)
			if got := res.Image.RGBAAt(3, 3); got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestMaskSelectsForeground(t *testing.T) {
	frame := gradientFrame(16, 8)

	// Half-resolution mask: left half foreground, right half background
	mask := image.NewGray(image.Rect(0, 0, 8, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			mask.SetGray(x, y, color.Gray{Y: 255})
		}
	}

	res, ok := New(nil).Composite(frame, mask, sharpParams(16, 8))
	if !ok {
		t.Fatal("Expected composite")
	}

	if a := res.Foreground.RGBAAt(2, 2).A; a != 255 {
		t.Errorf("Expected masked-in pixel to be opaque, got alpha %d", a)
	}
	if px := res.Foreground.RGBAAt(12, 2); px != (color.RGBA{}) {
		t.Errorf("Expected masked-out pixel to be transparent, got %v", px)
	}
	// Background fills in where the foreground is masked out
	if got, want := res.Image.RGBAAt(12, 2), frame.RGBAAt(12, 2); got != want {
		t.Errorf("Expected background %v, got %v", want, got)
	}
}

func TestPartialMaskIsProportional(t *testing.T) {
	frame := solidFrame(4, 4, color.RGBA{R: 200, G: 200, B: 200, A: 255})
	mask := image.NewGray(image.Rect(0, 0, 4, 4))
	for i := range mask.Pix {
		mask.Pix[i] = 128
	}

	res, _ := New(nil).Composite(frame, mask, sharpParams(4, 4))
	px := res.Foreground.RGBAAt(1, 1)
	if px.A != 128 || px.R != 100 {
		t.Errorf("Expected premultiplied half coverage, got %v", px)
	}
}

func TestZoomCoversOutput(t *testing.T) {
	frame := solidFrame(20, 20, color.RGBA{R: 80, G: 90, B: 100, A: 255})
	params := sharpParams(20, 20)
	params.Zoom = 2
	params.Mirror = true

	res, _ := New(nil).Composite(frame, nil, params)
	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			px := res.Image.RGBAAt(x, y)
			if px.A != 255 || absDiff(px.R, 80) > 1 || absDiff(px.B, 100) > 1 {
				t.Fatalf("At (%d,%d) expected opaque frame color, got %v", x, y, px)
			}
		}
	}
}

func TestZoomScalesAboutCenter(t *testing.T) {
	// Left half red, right half blue
	frame := image.NewRGBA(image.Rect(0, 0, 40, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 40; x++ {
			c := color.RGBA{R: 255, A: 255}
			if x >= 20 {
				c = color.RGBA{B: 255, A: 255}
			}
			frame.SetRGBA(x, y, c)
		}
	}
	params := sharpParams(40, 20)
	params.Zoom = 2

	res, _ := New(nil).Composite(frame, nil, params)
	if px := res.Image.RGBAAt(2, 10); px.R < 250 || px.B > 5 {
		t.Errorf("Expected left edge to stay red after zoom, got %v", px)
	}
	if px := res.Image.RGBAAt(37, 10); px.B < 250 || px.R > 5 {
		t.Errorf("Expected right edge to stay blue after zoom, got %v", px)
	}
}

func TestBlurSoftensBackground(t *testing.T) {
	frame := image.NewRGBA(image.Rect(0, 0, 20, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			v := uint8(0)
			if x >= 10 {
				v = 255
			}
			frame.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	mask := image.NewGray(frame.Bounds())

	params := sharpParams(20, 20)
	params.BlurRadius = 3

	res, _ := New(nil).Composite(frame, mask, params)
	edge := res.Image.RGBAAt(9, 10).R
	if edge == 0 || edge == 255 {
		t.Errorf("Expected blurred edge to be intermediate, got %d", edge)
	}
}

func TestSurfacesReused(t *testing.T) {
	c := New(nil)
	frame := gradientFrame(16, 12)
	params := sharpParams(16, 12)

	first, _ := c.Composite(frame, nil, params)
	second, _ := c.Composite(frame, nil, params)
	if first.Image != second.Image || first.Foreground != second.Foreground {
		t.Error("Expected surfaces to be reused for equal crop sizes")
	}

	params.AspectRatio = 1
	third, _ := c.Composite(frame, nil, params)
	if third.Image == first.Image {
		t.Error("Expected new surface when crop size changes")
	}
	if b := third.Image.Bounds(); b.Dx() != 12 || b.Dy() != 12 {
		t.Errorf("Expected 12x12 output, got %v", b)
	}
}

func TestQualityOverlay(t *testing.T) {
	c := New(quality.NewScorer(quality.DefaultOptions()))
	frame := solidFrame(40, 40, color.RGBA{R: 128, G: 128, B: 128, A: 255})
	params := sharpParams(40, 40)

	res, _ := c.Composite(frame, nil, params)
	if res.Scored {
		t.Error("Expected no score with overlay disabled")
	}

	params.QualityOverlay = true
	res, _ = c.Composite(frame, nil, params)
	if !res.Scored {
		t.Fatal("Expected score with overlay enabled")
	}
	if res.Quality.Lighting != 95 || res.Quality.Sharpness != 0 || res.Quality.Contrast != 0 {
		t.Errorf("Unexpected score for uniform frame: %+v", res.Quality)
	}

	empty := image.NewGray(frame.Bounds())
	res, _ = c.Composite(frame, empty, params)
	if res.Quality.Lighting != 0 {
		t.Errorf("Expected zero lighting with empty mask, got %d", res.Quality.Lighting)
	}
}

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Params)
		valid  bool
	}{
		{"defaults", func(*Params) {}, true},
		{"max blur", func(p *Params) { p.BlurRadius = 50 }, true},
		{"blur too high", func(p *Params) { p.BlurRadius = 51 }, false},
		{"negative brightness", func(p *Params) { p.Brightness = -0.1 }, false},
		{"brightness too high", func(p *Params) { p.Brightness = 3.5 }, false},
		{"zoom below one", func(p *Params) { p.Zoom = 0.5 }, false},
		{"zoom too high", func(p *Params) { p.Zoom = 4 }, false},
		{"zero aspect", func(p *Params) { p.AspectRatio = 0 }, false},
		{"nan zoom", func(p *Params) { p.Zoom = math.NaN() }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)
			err := p.Validate()
			if tt.valid && err != nil {
				t.Errorf("Expected valid, got %v", err)
			}
			if !tt.valid && !errors.Is(err, ErrInvalidParams) {
				t.Errorf("Expected ErrInvalidParams, got %v", err)
			}
		})
	}
}

func TestParseAspect(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"16:9", 16.0 / 9.0, false},
		{" 4 : 3 ", 4.0 / 3.0, false},
		{"1.5", 1.5, false},
		{"0:1", 0, true},
		{"wide", 0, true},
		{"-1", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseAspect(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseAspect(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("ParseAspect(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	for _, p := range AspectPresets {
		if r, err := ParseAspect(p.Name); err != nil || math.Abs(r-p.Ratio) > 1e-9 {
			t.Errorf("Preset %s does not parse to its ratio", p.Name)
		}
	}
}

func absDiff(a, b uint8) uint8 {
	if a > b {
		return a - b
	}
	return b - a
}
