// Package session drives one camera timeline through compositing, quality scoring and liveness verification
package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrCodeEU/livecheck/internal/compositor"
	"github.com/MrCodeEU/livecheck/internal/geometry"
	"github.com/MrCodeEU/livecheck/internal/liveness"
	"github.com/MrCodeEU/livecheck/internal/quality"
	"github.com/MrCodeEU/livecheck/pkg/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrNotVerifying is returned by Stop when no verification is running
var ErrNotVerifying = errors.New("verification not running")

// CaptureEvent describes a challenge completion. Frame is a private copy of the
// composited preview for the completing tick, nil if none was rendered.
type CaptureEvent struct {
	SessionID string
	Challenge liveness.ChallengeID
	Label     string
	Frame     *image.RGBA
	At        time.Time
}

// Observer receives verification lifecycle events. ChallengeCompleted is called
// on the processing timeline after the engine lock is released, so observers may
// read session state but must not call Start or Stop. A completion racing with
// Stop can arrive after SessionStopped; events carry their session id.
type Observer interface {
	SessionStarted(id string, at time.Time)
	ChallengeCompleted(ev CaptureEvent)
	SessionStopped(id string, at time.Time, verified bool)
}

// Options configures a Session
type Options struct {
	// Segmenter produces foreground masks; nil treats every frame as foreground
	Segmenter models.Segmenter
	// Landmarks opens the landmark detector when verification starts
	Landmarks models.LandmarkOpener
	// Scorer enables quality scoring when the quality overlay is on
	Scorer     *quality.Scorer
	Params     compositor.Params
	Thresholds liveness.Thresholds
	Observers  []Observer
	// OnTick is called after every processed tick
	OnTick func(TickResult)
}

// TickResult summarizes one processed frame. Composite surfaces are only valid
// until the next tick.
type TickResult struct {
	Skipped   bool
	Composite compositor.Result
	Landmarks int
	Completed []liveness.ChallengeID
}

// State is a read-only view of the session for presentation
type State struct {
	SessionID    string            `json:"session_id,omitempty"`
	Liveness     liveness.Snapshot `json:"liveness"`
	Quality      *quality.Score    `json:"quality,omitempty"`
	QualityLevel string            `json:"quality_level,omitempty"`
	Resolution   string            `json:"resolution"`
	Dropped      uint64            `json:"dropped_ticks"`
}

// Session owns the compositor, the liveness engine and the per-session landmark handle
type Session struct {
	logger    *logrus.Logger
	segmenter models.Segmenter
	opener    models.LandmarkOpener
	observers []Observer
	onTick    func(TickResult)

	// lifeMu serializes Start and Stop
	lifeMu sync.Mutex

	// mu guards the engine and the fields below it
	mu           sync.Mutex
	engine       *liveness.Engine
	id           string
	detector     models.LandmarkDetector
	generation   uint64
	pendingFrame *image.RGBA
	pending      []CaptureEvent

	paramsMu   sync.RWMutex
	params     compositor.Params
	thresholds liveness.Thresholds

	// tickMu keeps ticks on one timeline; busy lets Offer drop instead of queueing
	tickMu     sync.Mutex
	busy       atomic.Bool
	dropped    atomic.Uint64
	compositor *compositor.Compositor

	viewMu     sync.RWMutex
	preview    *image.RGBA
	score      quality.Score
	scored     bool
	resolution string
}

// New creates an idle session
func New(opts Options, logger *logrus.Logger) (*Session, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	if err := opts.Params.Validate(); err != nil {
		return nil, err
	}
	if err := opts.Thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("invalid liveness thresholds: %w", err)
	}

	s := &Session{
		logger:     logger,
		segmenter:  opts.Segmenter,
		opener:     opts.Landmarks,
		observers:  opts.Observers,
		onTick:     opts.OnTick,
		params:     opts.Params,
		thresholds: opts.Thresholds,
		compositor: compositor.New(opts.Scorer),
		resolution: quality.ResolutionLabel(0, 0),
	}
	s.engine = liveness.NewEngine(logger, s.captured)
	return s, nil
}

// Start opens a landmark detector and begins a fresh verification. A running
// verification is stopped first. On failure the session stays idle.
func (s *Session) Start(ctx context.Context) (string, error) {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	if s.opener == nil {
		return "", fmt.Errorf("landmark detector not configured")
	}
	if err := s.stopLocked(); err != nil && !errors.Is(err, ErrNotVerifying) {
		return "", err
	}

	det, err := s.opener.OpenLandmarks(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to open landmark detector: %w", err)
	}

	now := time.Now()
	id := uuid.NewString()

	s.mu.Lock()
	s.id = id
	s.detector = det
	s.generation++
	s.engine.Start()
	s.mu.Unlock()

	s.logger.Infof("Verification session %s started", id)
	for _, o := range s.observers {
		o.SessionStarted(id, now)
	}
	return id, nil
}

// Stop ends the running verification and releases its landmark detector.
// Landmarks still in flight for the stopped session are discarded.
func (s *Session) Stop() error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	return s.stopLocked()
}

func (s *Session) stopLocked() error {
	s.mu.Lock()
	if !s.engine.IsVerifying() {
		s.mu.Unlock()
		return ErrNotVerifying
	}
	id := s.id
	verified := s.engine.IsAllVerified()
	det := s.detector

	s.detector = nil
	s.id = ""
	s.generation++
	s.engine.Stop()
	s.mu.Unlock()

	if det != nil {
		if err := det.Close(); err != nil {
			s.logger.Warnf("Failed to close landmark detector: %v", err)
		}
	}

	s.logger.Infof("Verification session %s stopped (verified: %v)", id, verified)
	for _, o := range s.observers {
		o.SessionStopped(id, time.Now(), verified)
	}
	return nil
}

// Close stops any running verification
func (s *Session) Close() error {
	if err := s.Stop(); err != nil && !errors.Is(err, ErrNotVerifying) {
		return err
	}
	return nil
}

// Offer processes frame unless a tick is already in flight, in which case the
// frame is dropped and Offer returns false
func (s *Session) Offer(ctx context.Context, frame models.Frame) bool {
	if !s.busy.CompareAndSwap(false, true) {
		n := s.dropped.Add(1)
		s.logger.Debugf("Dropped frame while tick in flight (%d dropped)", n)
		return false
	}
	defer s.busy.Store(false)

	res, err := s.Tick(ctx, frame)
	if err != nil {
		s.logger.Debugf("Tick failed: %v", err)
		return true
	}
	if s.onTick != nil && !res.Skipped {
		s.onTick(res)
	}
	return true
}

// Run feeds frames to Offer until ctx is done or frames is closed. Ticks run
// off the receiving goroutine so frames arriving mid-tick are dropped.
func (s *Session) Run(ctx context.Context, frames <-chan models.Frame) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case frame, ok := <-frames:
			if !ok {
				return nil
			}
			if s.busy.Load() {
				n := s.dropped.Add(1)
				s.logger.Debugf("Dropped frame while tick in flight (%d dropped)", n)
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.Offer(ctx, frame)
			}()
		}
	}
}

// Tick runs one frame through segmentation, compositing, scoring and, while
// verifying, landmark detection and the challenge engine
func (s *Session) Tick(ctx context.Context, frame models.Frame) (TickResult, error) {
	if !frame.Ready() {
		return TickResult{Skipped: true}, nil
	}

	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	params, th := s.settings()

	var mask *image.Gray
	if s.segmenter != nil {
		m, err := s.segmenter.Segment(ctx, frame.Image)
		if err != nil {
			return TickResult{}, fmt.Errorf("segmentation failed: %w", err)
		}
		mask = m
	}

	res, ok := s.compositor.Composite(frame.Image, mask, params)
	if !ok {
		return TickResult{Skipped: true}, nil
	}
	s.publish(frame.Image.Bounds(), res)

	result := TickResult{Composite: res}

	s.mu.Lock()
	det, gen, verifying := s.detector, s.generation, s.engine.IsVerifying()
	s.mu.Unlock()
	if !verifying || det == nil {
		return result, nil
	}

	landmarks, err := det.Detect(ctx, frame.Image)
	if err != nil {
		s.logger.Debugf("Landmark detection failed: %v", err)
		landmarks = nil
	}
	result.Landmarks = len(landmarks)

	result.Completed = s.process(gen, landmarks, th, res.Image)
	return result, nil
}

// process feeds landmarks to the engine unless the session changed while they
// were computed, then notifies observers of the completions
func (s *Session) process(gen uint64, landmarks geometry.LandmarkSet, th liveness.Thresholds, frame *image.RGBA) []liveness.ChallengeID {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		s.logger.Debug("Discarding landmarks from a stopped session")
		return nil
	}

	s.pendingFrame = frame
	fired := s.engine.Process(landmarks, th)
	events := s.pending
	s.pendingFrame = nil
	s.pending = nil
	s.mu.Unlock()

	for _, ev := range events {
		for _, o := range s.observers {
			o.ChallengeCompleted(ev)
		}
	}
	return fired
}

// captured is the engine callback; it runs with s.mu held and only queues the event
func (s *Session) captured(id liveness.ChallengeID, label string) {
	ev := CaptureEvent{
		SessionID: s.id,
		Challenge: id,
		Label:     label,
		At:        time.Now(),
	}
	if s.pendingFrame != nil {
		ev.Frame = cloneRGBA(s.pendingFrame)
	}
	s.pending = append(s.pending, ev)
}

func (s *Session) publish(frameBounds image.Rectangle, res compositor.Result) {
	s.viewMu.Lock()
	defer s.viewMu.Unlock()

	s.resolution = quality.ResolutionLabel(frameBounds.Dx(), frameBounds.Dy())
	s.scored = res.Scored
	if res.Scored {
		s.score = res.Quality
	}

	b := res.Image.Bounds()
	if s.preview == nil || s.preview.Bounds() != b {
		s.preview = image.NewRGBA(b)
	}
	copy(s.preview.Pix, res.Image.Pix)
}

func (s *Session) settings() (compositor.Params, liveness.Thresholds) {
	s.paramsMu.RLock()
	defer s.paramsMu.RUnlock()
	return s.params, s.thresholds
}

// Params returns the current compositor parameters
func (s *Session) Params() compositor.Params {
	p, _ := s.settings()
	return p
}

// SetParams validates and installs compositor parameters for the next tick
func (s *Session) SetParams(p compositor.Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.paramsMu.Lock()
	s.params = p
	s.paramsMu.Unlock()
	return nil
}

// Thresholds returns the current liveness thresholds
func (s *Session) Thresholds() liveness.Thresholds {
	_, th := s.settings()
	return th
}

// SetThresholds validates and installs liveness thresholds for the next tick
func (s *Session) SetThresholds(th liveness.Thresholds) error {
	if err := th.Validate(); err != nil {
		return fmt.Errorf("invalid liveness thresholds: %w", err)
	}
	s.paramsMu.Lock()
	s.thresholds = th
	s.paramsMu.Unlock()
	return nil
}

// Quality returns the latest quality score and whether one has been computed
// for the most recent tick
func (s *Session) Quality() (quality.Score, bool) {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	return s.score, s.scored
}

// Preview returns a copy of the latest composited frame
func (s *Session) Preview() (*image.RGBA, bool) {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	if s.preview == nil {
		return nil, false
	}
	return cloneRGBA(s.preview), true
}

// Snapshot returns the liveness state
func (s *Session) Snapshot() liveness.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Snapshot()
}

// ID returns the running session id, empty while idle
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Dropped returns how many frames were dropped because a tick was in flight
func (s *Session) Dropped() uint64 {
	return s.dropped.Load()
}

// State assembles the presentation view
func (s *Session) State() State {
	s.mu.Lock()
	st := State{
		SessionID: s.id,
		Liveness:  s.engine.Snapshot(),
	}
	s.mu.Unlock()

	s.viewMu.RLock()
	st.Resolution = s.resolution
	if s.scored {
		score := s.score
		st.Quality = &score
		st.QualityLevel = quality.Level(score.Clarity)
	}
	s.viewMu.RUnlock()

	st.Dropped = s.dropped.Load()
	return st
}

func cloneRGBA(src *image.RGBA) *image.RGBA {
	dst := image.NewRGBA(src.Bounds())
	copy(dst.Pix, src.Pix)
	return dst
}
