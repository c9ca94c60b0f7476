package quality

import (
	"image"
	"image/color"
	"testing"
)

func uniform(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func checkerboard(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(0)
			if (x+y)%2 == 0 {
				v = 255
			}
			img.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

func TestScoreEmptyMask(t *testing.T) {
	s := NewScorer(Options{})
	img := uniform(64, 48, color.RGBA{})

	got := s.Score(img)
	if got.Lighting != 0 || got.Sharpness != 0 || got.Contrast != 0 {
		t.Errorf("Expected zero scores for empty mask, got %+v", got)
	}
}

func TestScoreNilImage(t *testing.T) {
	s := NewScorer(DefaultOptions())
	if got := s.Score(nil); got != (Score{}) {
		t.Errorf("Expected zero score for nil image, got %+v", got)
	}
}

func TestLighting(t *testing.T) {
	s := NewScorer(DefaultOptions())

	tests := []struct {
		name     string
		gray     uint8
		expected int
	}{
		{"well lit", 128, 95},
		{"dark", 35, 50},
		{"black", 0, 20},
		{"overexposed", 255, 35},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := uniform(32, 32, color.RGBA{R: tt.gray, G: tt.gray, B: tt.gray, A: 255})
			if got := s.Lighting(img); got != tt.expected {
				t.Errorf("Expected lighting %d, got %d", tt.expected, got)
			}
		})
	}
}

func TestLightingGlarePenalty(t *testing.T) {
	s := NewScorer(DefaultOptions())
	img := uniform(10, 10, color.RGBA{R: 100, G: 100, B: 100, A: 255})
	// 30% blown-out pixels pull the mean well above the median
	for i := 0; i < 30; i++ {
		img.SetRGBA(i%10, i/10, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	}

	got := s.Lighting(img)
	if got != 81 {
		t.Errorf("Expected glare penalty to give 81, got %d", got)
	}
}

func TestSharpness(t *testing.T) {
	s := NewScorer(DefaultOptions())

	if got := s.Sharpness(uniform(40, 40, color.RGBA{R: 90, G: 90, B: 90, A: 255})); got != 0 {
		t.Errorf("Expected flat region to have zero sharpness, got %d", got)
	}
	if got := s.Sharpness(checkerboard(40, 40)); got != 100 {
		t.Errorf("Expected checkerboard to be fully sharp, got %d", got)
	}
	if got := s.Sharpness(checkerboard(4, 4)); got != 0 {
		t.Errorf("Expected too few samples to give zero, got %d", got)
	}
}

func TestContrast(t *testing.T) {
	s := NewScorer(DefaultOptions())

	if got := s.Contrast(uniform(20, 20, color.RGBA{R: 200, G: 200, B: 200, A: 255})); got != 0 {
		t.Errorf("Expected uniform region to have zero contrast, got %d", got)
	}
	if got := s.Contrast(checkerboard(20, 20)); got != 100 {
		t.Errorf("Expected checkerboard contrast to saturate, got %d", got)
	}
}

func TestMaskedPixelsIgnored(t *testing.T) {
	s := NewScorer(DefaultOptions())
	img := uniform(20, 20, color.RGBA{R: 128, G: 128, B: 128, A: 255})
	// Faint alpha below the threshold must not contribute
	for x := 0; x < 20; x++ {
		img.SetRGBA(x, 0, color.RGBA{R: 10, G: 10, B: 10, A: 10})
	}

	if got := s.Contrast(img); got != 0 {
		t.Errorf("Expected masked pixels to be ignored, got contrast %d", got)
	}
}

func TestClarity(t *testing.T) {
	tests := []struct {
		name                          string
		lighting, sharpness, contrast int
		expected                      int
	}{
		{"all perfect", 100, 100, 100, 100},
		{"weighted blend", 50, 90, 40, 73},
		{"all zero", 0, 0, 0, 0},
		{"bonus applied", 90, 90, 80, 93},
		{"no bonus when soft", 100, 85, 100, 91},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Clarity(tt.lighting, tt.sharpness, tt.contrast); got != tt.expected {
				t.Errorf("Expected clarity %d, got %d", tt.expected, got)
			}
		})
	}
}

func TestDownsampleBounds(t *testing.T) {
	g := Downsample(uniform(640, 480, color.RGBA{A: 255}), 120)
	if g.Width != 120 || g.Height != 90 {
		t.Errorf("Expected 120x90, got %dx%d", g.Width, g.Height)
	}

	small := Downsample(uniform(50, 30, color.RGBA{A: 255}), 120)
	if small.Width != 50 || small.Height != 30 {
		t.Errorf("Expected small image to keep its size, got %dx%d", small.Width, small.Height)
	}
}

func TestResolutionLabel(t *testing.T) {
	tests := []struct {
		w, h     int
		expected string
	}{
		{3840, 2160, "4K"},
		{1920, 1080, "Full HD"},
		{1280, 720, "HD"},
		{640, 480, "SD"},
		{0, 0, "Unknown"},
	}

	for _, tt := range tests {
		if got := ResolutionLabel(tt.w, tt.h); got != tt.expected {
			t.Errorf("ResolutionLabel(%d, %d) = %q, want %q", tt.w, tt.h, got, tt.expected)
		}
	}
}

func TestLevel(t *testing.T) {
	if Level(80) != "good" || Level(60) != "fair" || Level(10) != "poor" {
		t.Error("Unexpected clarity level buckets")
	}
}

func TestNewScorerFillsDefaults(t *testing.T) {
	if got := NewScorer(Options{}).opts; got != DefaultOptions() {
		t.Errorf("Expected zero options to select defaults, got %+v", got)
	}
	custom := Options{StatsDimension: 60, SharpnessDimension: 80, MaskThreshold: 1}
	if got := NewScorer(custom).opts; got != custom {
		t.Errorf("Expected explicit options to be kept, got %+v", got)
	}
}
