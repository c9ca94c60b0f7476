package models

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // masks arrive as PNG
	"sync"
	"time"

	"github.com/MrCodeEU/livecheck/internal/geometry"
	"github.com/MrCodeEU/livecheck/pkg/utils"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const defaultCallTimeout = 5 * time.Second

// InferenceClient manages a connection to the inference service.
// It serves as both Segmenter and LandmarkDetector.
type InferenceClient struct {
	mu      sync.RWMutex
	conn    *grpc.ClientConn
	timeout time.Duration

	Version string
	Device  string
}

// Connect dials address and waits for a healthy service, retrying per policy.
// Extra dial options are appended after insecure transport credentials.
func Connect(ctx context.Context, address string, policy RetryPolicy, logger *logrus.Logger, opts ...grpc.DialOption) (*InferenceClient, error) {
	if address == "" {
		return nil, &InitError{Model: "inference service", Attempts: 0, Err: fmt.Errorf("address not configured")}
	}

	dialOpts := append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(address, dialOpts...)
	if err != nil {
		return nil, &InitError{Model: "inference service", Attempts: 1, Err: fmt.Errorf("failed to create client for %s: %w", address, err)}
	}

	c := &InferenceClient{conn: conn, timeout: defaultCallTimeout}

	err = Retry(ctx, "inference service", policy, logger, c.checkHealth)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	if logger != nil {
		logger.Infof("Connected to inference service v%s on %s", c.Version, c.Device)
	}
	return c, nil
}

// SetTimeout sets the per-call deadline for Segment and Detect
func (c *InferenceClient) SetTimeout(d time.Duration) {
	if d > 0 {
		c.timeout = d
	}
}

func (c *InferenceClient) checkHealth(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp := new(structpb.Struct)
	if err := c.invoke(ctx, methodHealth, &emptypb.Empty{}, resp); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	fields := resp.GetFields()
	if !fields["healthy"].GetBoolValue() {
		return fmt.Errorf("inference service is not healthy")
	}
	c.Version = fields["version"].GetStringValue()
	c.Device = fields["device"].GetStringValue()
	return nil
}

func (c *InferenceClient) invoke(ctx context.Context, method string, in, out any) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.conn == nil {
		return ErrNotReady
	}
	return c.conn.Invoke(ctx, method, in, out)
}

// Segment returns the foreground mask of img, resized to img's bounds if the service answers at another resolution
func (c *InferenceClient) Segment(ctx context.Context, img *image.RGBA) (*image.Gray, error) {
	data, err := encodeFrame(img)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp := new(wrapperspb.BytesValue)
	if err := c.invoke(ctx, methodSegment, wrapperspb.Bytes(data), resp); err != nil {
		return nil, fmt.Errorf("segmentation failed: %w", err)
	}

	decoded, _, err := image.Decode(bytes.NewReader(resp.GetValue()))
	if err != nil {
		return nil, fmt.Errorf("failed to decode mask: %w", err)
	}

	mask := utils.ToGray(decoded)
	if b := img.Bounds(); mask.Bounds().Size() != b.Size() {
		mask = utils.ResizeGray(mask, b.Dx(), b.Dy())
	}
	return mask, nil
}

// Detect returns face-mesh landmarks for img; an empty set means no face was found
func (c *InferenceClient) Detect(ctx context.Context, img *image.RGBA) (geometry.LandmarkSet, error) {
	data, err := encodeFrame(img)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp := new(structpb.ListValue)
	if err := c.invoke(ctx, methodLandmarks, wrapperspb.Bytes(data), resp); err != nil {
		return nil, fmt.Errorf("landmark detection failed: %w", err)
	}

	set, err := DecodeLandmarks(resp)
	if err != nil {
		return nil, fmt.Errorf("invalid landmark response: %w", err)
	}
	return set, nil
}

// Close closes the client connection. Calls after Close return ErrNotReady.
func (c *InferenceClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func encodeFrame(img *image.RGBA) ([]byte, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("empty frame")
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// Dialer opens a dedicated inference connection per landmark session
type Dialer struct {
	Address string
	Policy  RetryPolicy
	Timeout time.Duration
	Logger  *logrus.Logger
	Options []grpc.DialOption
}

// OpenLandmarks connects a new client owned by the caller
func (d Dialer) OpenLandmarks(ctx context.Context) (LandmarkDetector, error) {
	c, err := Connect(ctx, d.Address, d.Policy, d.Logger, d.Options...)
	if err != nil {
		return nil, err
	}
	c.SetTimeout(d.Timeout)
	return c, nil
}
