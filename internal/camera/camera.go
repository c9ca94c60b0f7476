// Package camera provides video capture functionality using V4L2
package camera

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MrCodeEU/livecheck/internal/config"
	"github.com/MrCodeEU/livecheck/pkg/models"
	"github.com/sirupsen/logrus"
	"github.com/vladimirvivien/go4vl/device"
	"github.com/vladimirvivien/go4vl/v4l2"
)

// Source delivers decoded frames. The channel holds at most one pending frame
// and is closed when the source stops.
type Source interface {
	Start(ctx context.Context) error
	Frames() <-chan models.Frame
	Close() error
}

// streamer is the part of a V4L2 device the capture loop uses
type streamer interface {
	Start(ctx context.Context) error
	Stop() error
	Close() error
	GetOutput() <-chan []byte
}

// Camera represents a V4L2 camera device
type Camera struct {
	device    streamer
	config    config.CameraConfig
	format    v4l2.FourCCType
	frameChan chan models.Frame
	cancel    context.CancelFunc
	done      chan struct{}
	closed    bool
	mu        sync.Mutex
	logger    *logrus.Logger
}

// pixelFormat maps a configured format name to its V4L2 code
func pixelFormat(name string) (v4l2.FourCCType, error) {
	switch strings.ToUpper(name) {
	case "MJPEG", "":
		return v4l2.PixelFmtMJPEG, nil
	case "YUYV":
		return v4l2.PixelFmtYUYV, nil
	default:
		return 0, fmt.Errorf("unsupported pixel format: %s", name)
	}
}

// NewCamera opens the configured device
func NewCamera(cfg config.CameraConfig, logger *logrus.Logger) (*Camera, error) {
	format, err := pixelFormat(cfg.PixelFormat)
	if err != nil {
		return nil, err
	}

	// Open the device
	dev, err := device.Open(cfg.Device,
		device.WithPixFormat(v4l2.PixFormat{
			Width:       uint32(cfg.Width),
			Height:      uint32(cfg.Height),
			PixelFormat: format,
		}),
		device.WithFPS(uint32(cfg.FPS)),
		device.WithBufferSize(2),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open camera device %s: %w", cfg.Device, err)
	}

	return &Camera{
		device:    dev,
		config:    cfg,
		format:    format,
		frameChan: make(chan models.Frame, 1),
		logger:    logger,
	}, nil
}

// Start begins video capture
func (c *Camera) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("camera closed")
	}
	if c.cancel != nil {
		return fmt.Errorf("camera already started")
	}

	ctx, cancel := context.WithCancel(ctx)

	// Start the device
	if err := c.device.Start(ctx); err != nil {
		cancel()
		return fmt.Errorf("failed to start camera: %w", err)
	}

	c.cancel = cancel
	c.done = make(chan struct{})
	c.logger.Infof("Camera %s streaming %dx%d@%d", c.config.Device, c.config.Width, c.config.Height, c.config.FPS)

	// Start frame capture goroutine
	go c.captureLoop(ctx)
	return nil
}

// Frames returns the decoded frame stream
func (c *Camera) Frames() <-chan models.Frame {
	return c.frameChan
}

// captureLoop decodes device buffers into frames, keeping only the newest one pending
func (c *Camera) captureLoop(ctx context.Context) {
	defer close(c.done)
	defer close(c.frameChan)

	output := c.device.GetOutput()
	for {
		select {
		case <-ctx.Done():
			return
		case buf, ok := <-output:
			if !ok {
				return
			}

			img, err := decode(buf, c.format, c.config.Width, c.config.Height)
			if err != nil {
				c.logger.Debugf("Dropping undecodable frame: %v", err)
				continue
			}
			offerLatest(c.frameChan, models.Frame{Image: img, Timestamp: time.Now()})
		}
	}
}

// offerLatest sends frame, replacing any frame still waiting in ch
func offerLatest(ch chan models.Frame, frame models.Frame) {
	select {
	case ch <- frame:
		return
	default:
	}
	// Channel full, drop oldest frame and try again
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- frame:
	default:
		// Still can't send, drop this frame
	}
}

// Close stops capture and releases the device. Later calls are no-ops.
func (c *Camera) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel, done, dev := c.cancel, c.done, c.device
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		if err := dev.Stop(); err != nil {
			c.logger.Warnf("Failed to stop camera: %v", err)
		}
		<-done
	}

	if dev != nil {
		return dev.Close()
	}
	return nil
}
