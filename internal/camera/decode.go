package camera

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/MrCodeEU/livecheck/pkg/utils"
	"github.com/vladimirvivien/go4vl/v4l2"
)

// decode converts a raw device buffer into an RGBA image
func decode(data []byte, format v4l2.FourCCType, width, height int) (*image.RGBA, error) {
	switch format {
	case v4l2.PixelFmtMJPEG:
		img, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode MJPEG frame: %w", err)
		}
		return utils.ToRGBA(img), nil
	case v4l2.PixelFmtYUYV:
		return yuyvToRGBA(data, width, height)
	default:
		return nil, fmt.Errorf("unsupported pixel format: %v", format)
	}
}

// yuyvToRGBA converts packed YUYV 4:2:2 (4 bytes per 2 pixels) using BT.601
func yuyvToRGBA(data []byte, width, height int) (*image.RGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", width, height)
	}
	if len(data) < width*height*2 {
		return nil, fmt.Errorf("short YUYV frame: %d bytes for %dx%d", len(data), width, height)
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x += 2 {
			idx := (y*width + x) * 2
			y0 := int(data[idx])
			u := int(data[idx+1]) - 128
			y1 := int(data[idx+2])
			v := int(data[idx+3]) - 128

			off := img.PixOffset(x, y)
			r, g, b := yuvToRGB(y0, u, v)
			img.Pix[off], img.Pix[off+1], img.Pix[off+2], img.Pix[off+3] = r, g, b, 255

			if x+1 < width {
				r, g, b = yuvToRGB(y1, u, v)
				img.Pix[off+4], img.Pix[off+5], img.Pix[off+6], img.Pix[off+7] = r, g, b, 255
			}
		}
	}
	return img, nil
}

func yuvToRGB(y, u, v int) (uint8, uint8, uint8) {
	c := y - 16
	r := (298*c + 409*v + 128) >> 8
	g := (298*c - 100*u - 208*v + 128) >> 8
	b := (298*c + 516*u + 128) >> 8
	return clampUint8(r), clampUint8(g), clampUint8(b)
}

func clampUint8(val int) uint8 {
	if val < 0 {
		return 0
	}
	if val > 255 {
		return 255
	}
	return uint8(val)
}
