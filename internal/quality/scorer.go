// Package quality scores the lighting, sharpness and contrast of a masked frame region
package quality

import (
	"image"
	"math"
	"sort"
)

// Score is the instantaneous visual quality of the foreground, each value in [0,100]
type Score struct {
	Lighting  int `json:"lighting"`
	Sharpness int `json:"sharpness"`
	Contrast  int `json:"contrast"`
	Clarity   int `json:"clarity"`
}

// Options controls downsampling and mask validity
type Options struct {
	// StatsDimension bounds the downsampled size used for lighting and contrast
	StatsDimension int `mapstructure:"stats_dimension" yaml:"stats_dimension"`
	// SharpnessDimension bounds the downsampled size used for the Laplacian
	SharpnessDimension int `mapstructure:"sharpness_dimension" yaml:"sharpness_dimension"`
	// MaskThreshold is the alpha above which a pixel belongs to the foreground.
	// Zero selects the default.
	MaskThreshold uint8 `mapstructure:"mask_threshold" yaml:"mask_threshold"`
}

// DefaultOptions returns the tuned downsampling sizes and mask threshold
func DefaultOptions() Options {
	return Options{
		StatsDimension:     120,
		SharpnessDimension: 160,
		MaskThreshold:      20,
	}
}

// Scorer computes quality scores over the alpha-masked pixels of an RGBA image
type Scorer struct {
	opts Options
}

// NewScorer creates a scorer, filling zero or negative options with defaults
func NewScorer(opts Options) *Scorer {
	def := DefaultOptions()
	if opts.StatsDimension <= 0 {
		opts.StatsDimension = def.StatsDimension
	}
	if opts.SharpnessDimension <= 0 {
		opts.SharpnessDimension = def.SharpnessDimension
	}
	if opts.MaskThreshold == 0 {
		opts.MaskThreshold = def.MaskThreshold
	}
	return &Scorer{opts: opts}
}

// Score computes all four scores for img
func (s *Scorer) Score(img *image.RGBA) Score {
	lighting := s.Lighting(img)
	sharpness := s.Sharpness(img)
	contrast := s.Contrast(img)

	return Score{
		Lighting:  lighting,
		Sharpness: sharpness,
		Contrast:  contrast,
		Clarity:   Clarity(lighting, sharpness, contrast),
	}
}

// Lighting maps the median foreground luminance to a score, penalizing glare hotspots
func (s *Scorer) Lighting(img *image.RGBA) int {
	vals := Downsample(img, s.opts.StatsDimension).valid(s.opts.MaskThreshold)
	if len(vals) == 0 {
		return 0
	}

	sort.Float64s(vals)
	median := medianOf(vals)
	mean := meanOf(vals)

	// Desired median sits between 70 and 180
	var score float64
	switch {
	case median < 70:
		score = math.Round(20 + (median/70)*60)
	case median > 180:
		score = math.Round(math.Max(30, 95-((median-180)/75)*60))
	default:
		score = 95
	}

	// A mean well above the median means a few very bright pixels
	if skew := mean - median; skew > 20 {
		score = math.Max(30, score-math.Round((skew/100)*30))
	}

	return clampScore(score)
}

// Sharpness measures the mean squared discrete Laplacian inside the mask
func (s *Scorer) Sharpness(img *image.RGBA) int {
	g := Downsample(img, s.opts.SharpnessDimension)
	th := s.opts.MaskThreshold

	if len(g.valid(th)) < 25 {
		return 0
	}

	var sumSq float64
	count := 0
	w := g.Width
	for y := 1; y < g.Height-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*w + x
			if g.Alpha[i] <= th ||
				g.Alpha[i-w] <= th || g.Alpha[i+w] <= th ||
				g.Alpha[i-1] <= th || g.Alpha[i+1] <= th {
				continue
			}

			lap := 4*g.Lum[i] - (g.Lum[i-w] + g.Lum[i+w] + g.Lum[i-1] + g.Lum[i+1])
			sumSq += lap * lap
			count++
		}
	}

	if count == 0 {
		return 0
	}

	variance := sumSq / float64(count)
	mapped := math.Log10(variance+1) / 2.2
	return clampScore(math.Round(mapped * 100))
}

// Contrast is the standard deviation of foreground luminance scaled so 60 maps to 100
func (s *Scorer) Contrast(img *image.RGBA) int {
	vals := Downsample(img, s.opts.StatsDimension).valid(s.opts.MaskThreshold)
	if len(vals) == 0 {
		return 0
	}

	mean := meanOf(vals)
	var variance float64
	for _, v := range vals {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(vals))

	return clampScore(math.Round(math.Sqrt(variance) / 60 * 100))
}

// Clarity blends the three scores, weighting sharpness most.
// Very sharp, well-rounded frames get a small bonus.
func Clarity(lighting, sharpness, contrast int) int {
	combined := float64(lighting)*0.3 + float64(sharpness)*0.6 + float64(contrast)*0.1
	if combined > 86 && sharpness > 85 {
		combined = math.Min(100, combined+4)
	}
	return clampScore(math.Round(combined))
}

func medianOf(sorted []float64) float64 {
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func meanOf(vals []float64) float64 {
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func clampScore(v float64) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return int(v)
}
