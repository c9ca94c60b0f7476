package liveness

import (
	"fmt"

	"github.com/MrCodeEU/livecheck/internal/geometry"
)

// Thresholds holds the empirical detector thresholds. They are passed to every
// Process call so a config reload applies on the next tick.
type Thresholds struct {
	// Blink fires when EAR falls from above BlinkOpenEAR to below BlinkClosedEAR
	BlinkOpenEAR   float64 `mapstructure:"blink_open_ear" yaml:"blink_open_ear"`
	BlinkClosedEAR float64 `mapstructure:"blink_closed_ear" yaml:"blink_closed_ear"`

	// Head turns fire beyond TurnTriggerDeg and re-arm inside TurnResetDeg
	TurnTriggerDeg float64 `mapstructure:"turn_trigger_deg" yaml:"turn_trigger_deg"`
	TurnResetDeg   float64 `mapstructure:"turn_reset_deg" yaml:"turn_reset_deg"`

	// Nods fire when the pitch or yaw-offset window spans more than these deltas
	NodYesDelta float64 `mapstructure:"nod_yes_delta" yaml:"nod_yes_delta"`
	NodNoDelta  float64 `mapstructure:"nod_no_delta" yaml:"nod_no_delta"`

	Smile geometry.SmileThresholds `mapstructure:"smile" yaml:"smile"`
}

// DefaultThresholds returns the tuned defaults
func DefaultThresholds() Thresholds {
	return Thresholds{
		BlinkOpenEAR:   0.25,
		BlinkClosedEAR: 0.2,
		TurnTriggerDeg: 30,
		TurnResetDeg:   20,
		NodYesDelta:    0.3,
		NodNoDelta:     0.4,
		Smile:          geometry.DefaultSmileThresholds(),
	}
}

// Validate checks that the thresholds describe a usable detector
func (t Thresholds) Validate() error {
	if t.BlinkClosedEAR <= 0 || t.BlinkOpenEAR <= t.BlinkClosedEAR {
		return fmt.Errorf("blink thresholds must satisfy 0 < closed (%.3f) < open (%.3f)", t.BlinkClosedEAR, t.BlinkOpenEAR)
	}
	if t.TurnResetDeg < 0 || t.TurnTriggerDeg <= t.TurnResetDeg || t.TurnTriggerDeg >= 90 {
		return fmt.Errorf("turn thresholds must satisfy 0 <= reset (%.1f) < trigger (%.1f) < 90", t.TurnResetDeg, t.TurnTriggerDeg)
	}
	if t.NodYesDelta <= 0 || t.NodNoDelta <= 0 {
		return fmt.Errorf("nod deltas must be positive")
	}
	if t.Smile.CornerElevation <= 0 || t.Smile.CheekLift <= 0 || t.Smile.MouthWidth <= 0 {
		return fmt.Errorf("smile thresholds must be positive")
	}
	return nil
}
