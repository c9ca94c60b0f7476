// Package utils provides utility functions for image processing
package utils

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

// Luminance returns the Rec. 709 luma of an 8-bit color
func Luminance(r, g, b uint8) float64 {
	return 0.2126*float64(r) + 0.7152*float64(g) + 0.0722*float64(b)
}

// Unpremultiply converts a premultiplied 8-bit channel back to straight color
func Unpremultiply(c, a uint8) uint8 {
	switch a {
	case 0:
		return 0
	case 255:
		return c
	}
	v := (uint32(c)*255 + uint32(a)/2) / uint32(a)
	if v > 255 {
		v = 255
	}
	return uint8(v)
}

// ToRGBA returns img as *image.RGBA, converting only when needed
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	bounds := img.Bounds()
	rgba := image.NewRGBA(bounds)
	// Draw source to RGBA (handles format conversion)
	draw.Draw(rgba, bounds, img, bounds.Min, draw.Src)
	return rgba
}

// ToGray returns img as *image.Gray, converting only when needed
func ToGray(img image.Image) *image.Gray {
	if gray, ok := img.(*image.Gray); ok {
		return gray
	}
	bounds := img.Bounds()
	gray := image.NewGray(bounds)
	draw.Draw(gray, bounds, img, bounds.Min, draw.Src)
	return gray
}

// ResizeGray scales a mask to w×h with bilinear filtering
func ResizeGray(src *image.Gray, w, h int) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

// EnsureRGBA reuses buf when it already has size w×h, otherwise allocates a new surface
func EnsureRGBA(buf *image.RGBA, w, h int) *image.RGBA {
	if buf != nil && buf.Rect.Dx() == w && buf.Rect.Dy() == h && buf.Rect.Min == (image.Point{}) {
		return buf
	}
	return image.NewRGBA(image.Rect(0, 0, w, h))
}

// ScaleChannels multiplies the color channels of a premultiplied RGBA image by factor.
// Channels are capped at their pixel's alpha so the result stays valid premultiplied color.
func ScaleChannels(img *image.RGBA, factor float64) {
	if factor == 1 {
		return
	}
	pix := img.Pix
	for i := 0; i+3 < len(pix); i += 4 {
		a := float64(pix[i+3])
		for k := 0; k < 3; k++ {
			pix[i+k] = uint8(math.Round(Clamp(float64(pix[i+k])*factor, 0, a)))
		}
	}
}

// Clamp clamps a value between min and max
func Clamp(val, min, max float64) float64 {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
