// Package compositor renders the blurred-background, sharp-foreground preview frame
package compositor

import (
	"errors"
	"fmt"
	"image"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidParams is returned for compositor parameters outside their ranges
var ErrInvalidParams = errors.New("invalid compositor parameters")

// Parameter ranges
const (
	MaxBlurRadius = 50.0
	MaxBrightness = 3.0
	MinZoom       = 1.0
	MaxZoom       = 3.0
)

// Params are the user-controlled rendering settings, read fresh on every tick
type Params struct {
	BlurRadius     float64 `mapstructure:"blur_radius" json:"blur_radius" yaml:"blur_radius"`
	Brightness     float64 `mapstructure:"brightness" json:"brightness" yaml:"brightness"`
	Zoom           float64 `mapstructure:"zoom" json:"zoom" yaml:"zoom"`
	AspectRatio    float64 `mapstructure:"aspect_ratio" json:"aspect_ratio" yaml:"aspect_ratio"`
	Mirror         bool    `mapstructure:"mirror" json:"mirror" yaml:"mirror"`
	QualityOverlay bool    `mapstructure:"quality_overlay" json:"quality_overlay" yaml:"quality_overlay"`
}

// DefaultParams returns a selfie-view 16:9 preview with moderate blur
func DefaultParams() Params {
	return Params{
		BlurRadius:     10,
		Brightness:     1,
		Zoom:           1,
		AspectRatio:    16.0 / 9.0,
		Mirror:         true,
		QualityOverlay: true,
	}
}

// Validate checks every parameter against its range
func (p Params) Validate() error {
	switch {
	case math.IsNaN(p.BlurRadius) || p.BlurRadius < 0 || p.BlurRadius > MaxBlurRadius:
		return fmt.Errorf("%w: blur radius %.1f outside [0,%.0f]", ErrInvalidParams, p.BlurRadius, MaxBlurRadius)
	case math.IsNaN(p.Brightness) || p.Brightness < 0 || p.Brightness > MaxBrightness:
		return fmt.Errorf("%w: brightness %.2f outside [0,%.0f]", ErrInvalidParams, p.Brightness, MaxBrightness)
	case math.IsNaN(p.Zoom) || p.Zoom < MinZoom || p.Zoom > MaxZoom:
		return fmt.Errorf("%w: zoom %.2f outside [%.0f,%.0f]", ErrInvalidParams, p.Zoom, MinZoom, MaxZoom)
	case math.IsNaN(p.AspectRatio) || math.IsInf(p.AspectRatio, 0) || p.AspectRatio <= 0:
		return fmt.Errorf("%w: aspect ratio %.3f must be positive", ErrInvalidParams, p.AspectRatio)
	}
	return nil
}

// clamped pulls out-of-range values back into range
func (p Params) clamped() Params {
	p.BlurRadius = clampFloat(p.BlurRadius, 0, MaxBlurRadius)
	p.Brightness = clampFloat(p.Brightness, 0, MaxBrightness)
	p.Zoom = clampFloat(p.Zoom, MinZoom, MaxZoom)
	return p
}

func clampFloat(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

// AspectPreset is a named target aspect ratio offered to the user
type AspectPreset struct {
	Name  string  `json:"name" yaml:"name"`
	Ratio float64 `json:"ratio" yaml:"ratio"`
}

// AspectPresets lists the selectable aspect ratios
var AspectPresets = []AspectPreset{
	{Name: "16:9", Ratio: 16.0 / 9.0},
	{Name: "4:3", Ratio: 4.0 / 3.0},
	{Name: "1:1", Ratio: 1},
}

// ParseAspect accepts "W:H" or a decimal ratio
func ParseAspect(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if w, h, ok := strings.Cut(s, ":"); ok {
		wf, err := strconv.ParseFloat(strings.TrimSpace(w), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: aspect %q: %v", ErrInvalidParams, s, err)
		}
		hf, err := strconv.ParseFloat(strings.TrimSpace(h), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: aspect %q: %v", ErrInvalidParams, s, err)
		}
		if wf <= 0 || hf <= 0 {
			return 0, fmt.Errorf("%w: aspect %q must be positive", ErrInvalidParams, s)
		}
		return wf / hf, nil
	}

	r, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: aspect %q: %v", ErrInvalidParams, s, err)
	}
	if r <= 0 {
		return 0, fmt.Errorf("%w: aspect %q must be positive", ErrInvalidParams, s)
	}
	return r, nil
}

// CenterCrop returns the largest rectangle of the given aspect ratio centered in bounds.
// A non-positive aspect keeps the full bounds.
func CenterCrop(bounds image.Rectangle, aspect float64) image.Rectangle {
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 || aspect <= 0 {
		return bounds
	}

	cw, ch := w, h
	if float64(w)/float64(h) > aspect {
		cw = int(math.Round(float64(h) * aspect))
	} else {
		ch = int(math.Round(float64(w) / aspect))
	}
	cw = max(1, min(cw, w))
	ch = max(1, min(ch, h))

	x0 := bounds.Min.X + (w-cw)/2
	y0 := bounds.Min.Y + (h-ch)/2
	return image.Rect(x0, y0, x0+cw, y0+ch)
}
