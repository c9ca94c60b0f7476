// Package models provides segmentation and face landmark inference via gRPC
package models

import (
	"context"
	"errors"
	"image"
	"time"

	"github.com/MrCodeEU/livecheck/internal/geometry"
)

// ErrNotReady is returned when a model handle is used before it is connected or after it is closed
var ErrNotReady = errors.New("model not ready")

// Frame is one camera capture. Frames are not retained past the tick that uses them.
type Frame struct {
	Image     *image.RGBA
	Timestamp time.Time
}

// Ready reports whether the frame has pixels
func (f Frame) Ready() bool {
	return f.Image != nil && !f.Image.Bounds().Empty()
}

// Segmenter produces a per-pixel foreground mask for a frame
type Segmenter interface {
	Segment(ctx context.Context, img *image.RGBA) (*image.Gray, error)
}

// LandmarkDetector produces face-mesh landmarks for a frame. An empty set means no face.
type LandmarkDetector interface {
	Detect(ctx context.Context, img *image.RGBA) (geometry.LandmarkSet, error)
	Close() error
}

// LandmarkOpener opens a landmark detector owned by the caller until Close
type LandmarkOpener interface {
	OpenLandmarks(ctx context.Context) (LandmarkDetector, error)
}
