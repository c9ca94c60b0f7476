package daemon

import (
	"context"
	"image"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrCodeEU/livecheck/internal/camera"
	"github.com/MrCodeEU/livecheck/internal/config"
	"github.com/MrCodeEU/livecheck/internal/geometry"
	"github.com/MrCodeEU/livecheck/internal/geometry/geometrytest"
	"github.com/MrCodeEU/livecheck/internal/liveness"
	"github.com/MrCodeEU/livecheck/internal/session"
	"github.com/MrCodeEU/livecheck/pkg/models"
	"github.com/sirupsen/logrus"
)

type smilingDetector struct{}

func (smilingDetector) Detect(context.Context, *image.RGBA) (geometry.LandmarkSet, error) {
	return geometrytest.New().Smiling().Landmarks(), nil
}

func (smilingDetector) Close() error { return nil }

type smilingOpener struct{}

func (smilingOpener) OpenLandmarks(context.Context) (models.LandmarkDetector, error) {
	return smilingDetector{}, nil
}

type fullMask struct{}

func (fullMask) Segment(_ context.Context, img *image.RGBA) (*image.Gray, error) {
	mask := image.NewGray(img.Bounds())
	for i := range mask.Pix {
		mask.Pix[i] = 255
	}
	return mask, nil
}

type eventObserver struct {
	events chan session.CaptureEvent
}

func (o *eventObserver) SessionStarted(string, time.Time) {}

func (o *eventObserver) ChallengeCompleted(ev session.CaptureEvent) {
	select {
	case o.events <- ev:
	default:
	}
}

func (o *eventObserver) SessionStopped(string, time.Time, bool) {}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Server.Enabled = false
	cfg.Storage.DatabasePath = filepath.Join(t.TempDir(), "audit.db")
	return cfg
}

func stillSource(t *testing.T) camera.Source {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	src, err := camera.NewStill(img, 50)
	if err != nil {
		t.Fatalf("Failed to create still source: %v", err)
	}
	return src
}

func TestDaemonVerifiesSmile(t *testing.T) {
	obs := &eventObserver{events: make(chan session.CaptureEvent, 8)}
	d, err := New(context.Background(), testConfig(t), Deps{
		Source:    stillSource(t),
		Segmenter: fullMask{},
		Landmarks: smilingOpener{},
		Observers: []session.Observer{obs},
	}, quietLogger())
	if err != nil {
		t.Fatalf("Failed to create daemon: %v", err)
	}
	defer func() { _ = d.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	id, err := d.Session().Start(ctx)
	if err != nil {
		t.Fatalf("Failed to start verification: %v", err)
	}

	select {
	case ev := <-obs.events:
		if ev.Challenge != liveness.Smile || ev.SessionID != id {
			t.Errorf("Expected smile for %s, got %v for %s", id, ev.Challenge, ev.SessionID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for smile completion")
	}

	if err := d.Session().Stop(); err != nil {
		t.Fatalf("Failed to stop verification: %v", err)
	}

	rec, err := d.store.GetSession(id)
	if err != nil {
		t.Fatalf("Expected session in audit log: %v", err)
	}
	if rec.StoppedAt == nil || len(rec.Challenges) == 0 || rec.Challenges[0].Challenge != liveness.ChallengeSmile {
		t.Errorf("Unexpected audit record %+v", rec)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for shutdown")
	}
}

func TestApplyReloadsAdjustableSettings(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.DatabasePath = ""
	d, err := New(context.Background(), cfg, Deps{
		Source:    stillSource(t),
		Segmenter: fullMask{},
		Landmarks: smilingOpener{},
	}, quietLogger())
	if err != nil {
		t.Fatalf("Failed to create daemon: %v", err)
	}
	defer func() { _ = d.Close() }()

	updated := config.DefaultConfig()
	updated.Compositor.Zoom = 2.5
	updated.Liveness.TurnTriggerDeg = 40
	d.Apply(updated)

	if d.Session().Params().Zoom != 2.5 {
		t.Errorf("Expected zoom 2.5, got %v", d.Session().Params().Zoom)
	}
	if d.Session().Thresholds().TurnTriggerDeg != 40 {
		t.Errorf("Expected trigger 40, got %v", d.Session().Thresholds().TurnTriggerDeg)
	}

	// Invalid values are rejected and the previous ones kept
	bad := config.DefaultConfig()
	bad.Compositor.Zoom = 9
	d.Apply(bad)
	if d.Session().Params().Zoom != 2.5 {
		t.Errorf("Expected zoom to stay 2.5, got %v", d.Session().Params().Zoom)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Compositor.BlurRadius = -1
	if _, err := New(context.Background(), cfg, Deps{Source: stillSource(t), Segmenter: fullMask{}}, quietLogger()); err == nil {
		t.Error("Expected invalid configuration error")
	}
}

func TestRunFailsWhenSourceEnds(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.DatabasePath = ""
	src := stillSource(t)
	d, err := New(context.Background(), cfg, Deps{Source: src, Segmenter: fullMask{}, Landmarks: smilingOpener{}}, quietLogger())
	if err != nil {
		t.Fatalf("Failed to create daemon: %v", err)
	}
	defer func() { _ = d.Close() }()

	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background()) }()

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, ok := d.Session().Preview(); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for the first frame")
		}
		time.Sleep(10 * time.Millisecond)
	}
	_ = src.Close()

	select {
	case err := <-done:
		if err == nil {
			t.Error("Expected error when the frame source stops")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for Run to return")
	}
}
