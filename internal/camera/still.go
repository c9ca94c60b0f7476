package camera

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/MrCodeEU/livecheck/pkg/models"
	"github.com/MrCodeEU/livecheck/pkg/utils"
)

// Still replays one image at a fixed rate, for running without a camera
type Still struct {
	img      *image.RGBA
	interval time.Duration

	frameChan chan models.Frame
	once      sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewStill creates a source that emits img fps times per second
func NewStill(img image.Image, fps int) (*Still, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("still image is empty")
	}
	if fps <= 0 {
		return nil, fmt.Errorf("fps must be positive")
	}
	return &Still{
		img:       utils.ToRGBA(img),
		interval:  time.Second / time.Duration(fps),
		frameChan: make(chan models.Frame, 1),
	}, nil
}

// Start begins emitting frames until ctx is done or Close is called
func (s *Still) Start(ctx context.Context) error {
	started := false
	s.once.Do(func() {
		ctx, s.cancel = context.WithCancel(ctx)
		s.done = make(chan struct{})
		started = true
		go s.loop(ctx)
	})
	if !started {
		return fmt.Errorf("still source already started")
	}
	return nil
}

func (s *Still) loop(ctx context.Context) {
	defer close(s.done)
	defer close(s.frameChan)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			// Each frame gets its own copy since consumers may hold it past the next tick
			img := image.NewRGBA(s.img.Bounds())
			copy(img.Pix, s.img.Pix)
			offerLatest(s.frameChan, models.Frame{Image: img, Timestamp: now})
		}
	}
}

// Frames returns the frame stream
func (s *Still) Frames() <-chan models.Frame {
	return s.frameChan
}

// Close stops the source
func (s *Still) Close() error {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	return nil
}
