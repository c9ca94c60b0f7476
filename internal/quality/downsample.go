package quality

import (
	"image"

	"github.com/MrCodeEU/livecheck/pkg/utils"
)

// Gray is a downsampled luminance buffer carrying the mask alpha of each kept pixel
type Gray struct {
	Lum    []float64
	Alpha  []uint8
	Width  int
	Height int
}

// Downsample reduces img with nearest-neighbor sampling so that neither side exceeds maxDim.
// Luminance is taken from straight (non-premultiplied) color so partially masked pixels
// are not darkened. Images already within bounds keep their size.
func Downsample(img *image.RGBA, maxDim int) Gray {
	if img == nil {
		return Gray{}
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return Gray{}
	}

	scale := 1.0
	if longest := max(w, h); maxDim > 0 && longest > maxDim {
		scale = float64(maxDim) / float64(longest)
	}
	newW := max(1, int(float64(w)*scale))
	newH := max(1, int(float64(h)*scale))

	g := Gray{
		Lum:    make([]float64, newW*newH),
		Alpha:  make([]uint8, newW*newH),
		Width:  newW,
		Height: newH,
	}

	xStep := float64(w) / float64(newW)
	yStep := float64(h) / float64(newH)

	idx := 0
	for y := 0; y < newH; y++ {
		srcY := b.Min.Y + int(float64(y)*yStep)
		for x := 0; x < newW; x++ {
			srcX := b.Min.X + int(float64(x)*xStep)
			off := img.PixOffset(srcX, srcY)
			px := img.Pix[off : off+4 : off+4]
			a := px[3]
			r := utils.Unpremultiply(px[0], a)
			gr := utils.Unpremultiply(px[1], a)
			bl := utils.Unpremultiply(px[2], a)
			g.Lum[idx] = utils.Luminance(r, gr, bl)
			g.Alpha[idx] = a
			idx++
		}
	}

	return g
}

// valid returns the luminance of every pixel whose alpha exceeds threshold
func (g Gray) valid(threshold uint8) []float64 {
	vals := make([]float64, 0, len(g.Lum))
	for i, a := range g.Alpha {
		if a > threshold {
			vals = append(vals, g.Lum[i])
		}
	}
	return vals
}
