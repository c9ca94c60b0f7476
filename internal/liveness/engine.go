package liveness

import (
	"io"

	"github.com/MrCodeEU/livecheck/internal/geometry"
	"github.com/sirupsen/logrus"
)

// State is the externally visible engine state
type State string

const (
	StateIdle      State = "idle"
	StateVerifying State = "verifying"
	// StateVerified is reported while verifying with every challenge complete
	StateVerified State = "verified"
)

// CaptureFunc is invoked at most once per challenge per session
type CaptureFunc func(id ChallengeID, label string)

// Snapshot is a read-only copy of the engine state for presentation
type Snapshot struct {
	State         State           `json:"state"`
	IsVerifying   bool            `json:"is_verifying"`
	Completed     []ChallengeID   `json:"completed"`
	IsAllVerified bool            `json:"is_all_verified"`
	Signals       geometry.Sample `json:"signals"`
}

// Engine is the challenge state machine. It is not safe for concurrent use:
// Start, Stop and Process must be called from one timeline or under a caller's lock.
type Engine struct {
	logger    *logrus.Logger
	onCapture CaptureFunc

	verifying bool
	completed ChallengeSet
	captured  ChallengeSet

	pitchHistory history
	yawHistory   history

	leftTurn    bool
	rightTurn   bool
	previousEAR float64

	last geometry.Sample
}

// NewEngine creates an idle engine. onCapture may be nil.
func NewEngine(logger *logrus.Logger, onCapture CaptureFunc) *Engine {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Engine{
		logger:    logger,
		onCapture: onCapture,
	}
}

// Start clears all progress and begins verifying
func (e *Engine) Start() {
	e.reset()
	e.verifying = true
	e.logger.Info("Liveness verification started")
}

// Stop clears all progress and returns to idle
func (e *Engine) Stop() {
	wasVerifying := e.verifying
	e.reset()
	e.verifying = false
	if wasVerifying {
		e.logger.Info("Liveness verification stopped")
	}
}

func (e *Engine) reset() {
	e.completed = 0
	e.captured = 0
	e.pitchHistory.reset()
	e.yawHistory.reset()
	e.leftTurn = false
	e.rightTurn = false
	e.previousEAR = 0
	e.last = geometry.Sample{}
}

// Process runs every detector over one landmark sample and returns the challenges
// completed by it. Samples are ignored while idle. An empty set means no face was
// found and leaves all state untouched.
func (e *Engine) Process(landmarks geometry.LandmarkSet, th Thresholds) []ChallengeID {
	// Missing or partial face: no signal, history and latches untouched
	if !e.verifying || !landmarks.Complete() {
		return nil
	}

	s := geometry.Measure(landmarks, th.Smile)
	e.last = s

	var fired []ChallengeID

	// Blink: falling edge of the eye aspect ratio
	if e.previousEAR > th.BlinkOpenEAR && s.EyeAspectRatio < th.BlinkClosedEAR {
		e.complete(Blink, &fired)
	}
	e.previousEAR = s.EyeAspectRatio

	// Turning left moves the nose right of center, giving a positive angle
	if s.HeadYawDeg > th.TurnTriggerDeg && !e.leftTurn {
		e.leftTurn = true
		e.complete(TurnLeft, &fired)
	}
	if s.HeadYawDeg < th.TurnResetDeg {
		e.leftTurn = false
	}

	if s.HeadYawDeg < -th.TurnTriggerDeg && !e.rightTurn {
		e.rightTurn = true
		e.complete(TurnRight, &fired)
	}
	if s.HeadYawDeg > -th.TurnResetDeg {
		e.rightTurn = false
	}

	if s.IsSmiling {
		e.complete(Smile, &fired)
	}

	e.pitchHistory.push(s.HeadPitch)
	if e.pitchHistory.len() >= minHistory && e.pitchHistory.spread() > th.NodYesDelta {
		e.complete(NodYes, &fired)
	}

	e.yawHistory.push(s.YawOffset)
	if e.yawHistory.len() >= minHistory && e.yawHistory.spread() > th.NodNoDelta {
		e.complete(NodNo, &fired)
	}

	return fired
}

// complete marks id done and fires the capture callback the first time only
func (e *Engine) complete(id ChallengeID, fired *[]ChallengeID) {
	if !e.completed.Add(id) {
		return
	}
	*fired = append(*fired, id)

	label := Label(id)
	e.logger.Infof("Challenge completed: %s (%d/%d)", label, e.completed.Len(), NumChallenges)

	if e.captured.Add(id) && e.onCapture != nil {
		e.onCapture(id, label)
	}
	if e.completed.Full() {
		e.logger.Info("All liveness challenges completed")
	}
}

// IsVerifying reports whether samples are being processed
func (e *Engine) IsVerifying() bool {
	return e.verifying
}

// Completed returns the set of completed challenges
func (e *Engine) Completed() ChallengeSet {
	return e.completed
}

// IsAllVerified reports whether every challenge has completed
func (e *Engine) IsAllVerified() bool {
	return e.completed.Full()
}

// State returns the current state
func (e *Engine) State() State {
	switch {
	case !e.verifying:
		return StateIdle
	case e.completed.Full():
		return StateVerified
	default:
		return StateVerifying
	}
}

// Snapshot copies the presentation state
func (e *Engine) Snapshot() Snapshot {
	return Snapshot{
		State:         e.State(),
		IsVerifying:   e.verifying,
		Completed:     e.completed.IDs(),
		IsAllVerified: e.completed.Full(),
		Signals:       e.last,
	}
}
