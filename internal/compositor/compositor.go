package compositor

import (
	"image"

	"github.com/MrCodeEU/livecheck/internal/quality"
	"github.com/MrCodeEU/livecheck/pkg/utils"
	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// Result is the output of one composite. Image and Foreground point at surfaces
// owned by the Compositor and are overwritten by the next call; copy them to keep them.
type Result struct {
	Image      *image.RGBA
	Foreground *image.RGBA
	Crop       image.Rectangle
	Quality    quality.Score
	Scored     bool
}

// Compositor renders preview frames onto reusable offscreen surfaces.
// It is not safe for concurrent use.
type Compositor struct {
	scorer *quality.Scorer

	bg  *image.RGBA
	fg  *image.RGBA
	out *image.RGBA

	maskCols []int
}

// New creates a compositor. A nil scorer disables quality scoring.
func New(scorer *quality.Scorer) *Compositor {
	return &Compositor{scorer: scorer}
}

// Composite renders frame with mask under params. It returns false without
// touching any surface when the frame has no pixels yet. A nil mask treats the
// whole frame as foreground.
func (c *Compositor) Composite(frame *image.RGBA, mask *image.Gray, params Params) (Result, bool) {
	if frame == nil || frame.Bounds().Empty() {
		return Result{}, false
	}
	params = params.clamped()

	crop := CenterCrop(frame.Bounds(), params.AspectRatio)
	w, h := crop.Dx(), crop.Dy()

	c.bg = utils.EnsureRGBA(c.bg, w, h)
	c.fg = utils.EnsureRGBA(c.fg, w, h)
	c.out = utils.EnsureRGBA(c.out, w, h)

	c.renderBackground(frame, crop, params)
	c.renderForeground(frame, mask, crop, params)
	c.compose(params)

	res := Result{
		Image:      c.out,
		Foreground: c.fg,
		Crop:       crop,
	}
	if params.QualityOverlay && c.scorer != nil {
		res.Quality = c.scorer.Score(c.fg)
		res.Scored = true
	}
	return res, true
}

func (c *Compositor) renderBackground(frame *image.RGBA, crop image.Rectangle, params Params) {
	src := frame.SubImage(crop)
	if params.BlurRadius > 0 {
		blurred := imaging.Blur(src, params.BlurRadius)
		draw.Draw(c.bg, c.bg.Bounds(), blurred, blurred.Bounds().Min, draw.Src)
	} else {
		draw.Draw(c.bg, c.bg.Bounds(), src, crop.Min, draw.Src)
	}
	utils.ScaleChannels(c.bg, params.Brightness)
}

func (c *Compositor) renderForeground(frame *image.RGBA, mask *image.Gray, crop image.Rectangle, params Params) {
	draw.Draw(c.fg, c.fg.Bounds(), frame, crop.Min, draw.Src)
	utils.ScaleChannels(c.fg, params.Brightness)
	if mask != nil {
		c.applyMask(frame.Bounds(), mask, crop)
	}
}

// applyMask keeps foreground pixels in proportion to the mask value (destination-in).
// The mask covers the whole frame and may have a different resolution.
func (c *Compositor) applyMask(frameBounds image.Rectangle, mask *image.Gray, crop image.Rectangle) {
	mb := mask.Bounds()
	if mb.Empty() {
		clear(c.fg.Pix)
		return
	}
	fw, fh := frameBounds.Dx(), frameBounds.Dy()

	if cap(c.maskCols) < crop.Dx() {
		c.maskCols = make([]int, crop.Dx())
	}
	cols := c.maskCols[:crop.Dx()]
	for x := range cols {
		fx := crop.Min.X + x - frameBounds.Min.X
		cols[x] = mb.Min.X + fx*mb.Dx()/fw
	}

	for y := 0; y < crop.Dy(); y++ {
		fy := crop.Min.Y + y - frameBounds.Min.Y
		my := mb.Min.Y + fy*mb.Dy()/fh
		row := c.fg.Pix[y*c.fg.Stride : y*c.fg.Stride+4*len(cols)]
		maskRow := mask.Pix[(my-mb.Min.Y)*mask.Stride:]
		for x, mx := range cols {
			a := uint32(maskRow[mx-mb.Min.X])
			if a == 255 {
				continue
			}
			px := row[4*x : 4*x+4 : 4*x+4]
			for k := range px {
				px[k] = uint8((uint32(px[k])*a + 127) / 255)
			}
		}
	}
}

// compose clears the output and draws both layers through one mirror and zoom transform
func (c *Compositor) compose(params Params) {
	clear(c.out.Pix)

	w := float64(c.out.Rect.Dx())
	h := float64(c.out.Rect.Dy())
	z := params.Zoom

	// Scale by z about the center, flipping x for the selfie view
	sx, tx := z, w/2*(1-z)
	if params.Mirror {
		sx, tx = -z, w/2*(1+z)
	}
	m := f64.Aff3{
		sx, 0, tx,
		0, z, h / 2 * (1 - z),
	}

	var interp draw.Transformer = draw.BiLinear
	if z == 1 {
		interp = draw.NearestNeighbor
	}
	interp.Transform(c.out, m, c.bg, c.bg.Bounds(), draw.Over, nil)
	interp.Transform(c.out, m, c.fg, c.fg.Bounds(), draw.Over, nil)
}
