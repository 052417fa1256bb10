// Package duck attenuates assistant output volume in proportion to the
// confidence that the user is speaking, independent of whether a barge-in
// will follow. Volume never jumps; it moves toward its target by a bounded
// step each analysis tick so the fade stays audible and smooth.
package duck

import (
	"fmt"
	"time"
)

// Level classifies the user's concurrent speech for ducking purposes. The
// thresholds are analogous to barge-in classification but deliberately
// separate, so tuning one never detunes the other.
type Level int

const (
	// LevelSilence means the user is not speaking; full volume.
	LevelSilence Level = iota
	// LevelBackchannel is a brief quiet burst; slight duck.
	LevelBackchannel
	// LevelTentative is speech that may become a turn claim; half volume.
	LevelTentative
	// LevelClear is sustained or loud speech; deep duck.
	LevelClear
)

func (l Level) String() string {
	switch l {
	case LevelSilence:
		return "silence"
	case LevelBackchannel:
		return "backchannel"
	case LevelTentative:
		return "tentative"
	case LevelClear:
		return "clear"
	default:
		return fmt.Sprintf("unknown(%d)", int(l))
	}
}

// Target volumes per level.
const (
	volumeSilence     = 1.0
	volumeBackchannel = 0.80
	volumeTentative   = 0.50
	volumeClear       = 0.20
)

// Config tunes classification and fade speed. Zero values select defaults.
type Config struct {
	// QuietIntensity is the RMS below which a short burst still ducks only
	// slightly. Default 0.04.
	QuietIntensity float64

	// ClearIntensity is the RMS at which speech ducks deeply regardless of
	// duration. Default 0.06.
	ClearIntensity float64

	// ShortBurstMax is the speech duration below which a quiet burst is
	// treated as a backchannel. Default 1s.
	ShortBurstMax time.Duration

	// ClearDuration is the sustained speech duration that ducks deeply even
	// at moderate intensity. Default 800ms.
	ClearDuration time.Duration

	// Step bounds the volume change per tick. Default 0.05, which settles a
	// full-depth duck in roughly 300ms at the 20ms tick cadence.
	Step float64
}

func (c Config) withDefaults() Config {
	if c.QuietIntensity <= 0 {
		c.QuietIntensity = 0.04
	}
	if c.ClearIntensity <= 0 {
		c.ClearIntensity = 0.06
	}
	if c.ShortBurstMax <= 0 {
		c.ShortBurstMax = time.Second
	}
	if c.ClearDuration <= 0 {
		c.ClearDuration = 800 * time.Millisecond
	}
	if c.Step <= 0 {
		c.Step = 0.05
	}
	return c
}

// Controller holds the current and target volume. The tick loop owns it; it
// is not safe for concurrent use.
type Controller struct {
	cfg    Config
	volume float64
	target float64
	level  Level
}

// NewController starts at full volume.
func NewController(cfg Config) *Controller {
	return &Controller{cfg: cfg.withDefaults(), volume: 1.0, target: 1.0}
}

// Reset snaps back to full volume for a new playback session, so a reply
// never starts pre-ducked by where the previous session settled.
func (c *Controller) Reset() {
	c.volume = 1.0
	c.target = 1.0
	c.level = LevelSilence
}

// Observe classifies the user's current speech and updates the target
// volume. speechDur is the length of the continuous speech run so far.
func (c *Controller) Observe(speaking bool, speechDur time.Duration, intensity float64) Level {
	c.level = c.classify(speaking, speechDur, intensity)
	switch c.level {
	case LevelBackchannel:
		c.target = volumeBackchannel
	case LevelTentative:
		c.target = volumeTentative
	case LevelClear:
		c.target = volumeClear
	default:
		c.target = volumeSilence
	}
	return c.level
}

func (c *Controller) classify(speaking bool, speechDur time.Duration, intensity float64) Level {
	if !speaking {
		return LevelSilence
	}
	if speechDur >= c.cfg.ClearDuration || intensity >= c.cfg.ClearIntensity {
		return LevelClear
	}
	if speechDur < c.cfg.ShortBurstMax && intensity <= c.cfg.QuietIntensity {
		return LevelBackchannel
	}
	return LevelTentative
}

// Tick moves volume one bounded step toward the target and returns the new
// volume. At steady state it returns the same value indefinitely.
func (c *Controller) Tick() float64 {
	// The epsilon keeps accumulated float error from leaving the volume one
	// hair short of its target forever.
	const eps = 1e-9
	diff := c.target - c.volume
	switch {
	case diff > c.cfg.Step+eps:
		c.volume += c.cfg.Step
	case diff < -(c.cfg.Step + eps):
		c.volume -= c.cfg.Step
	default:
		c.volume = c.target
	}
	return c.volume
}

// Volume returns the current output volume.
func (c *Controller) Volume() float64 { return c.volume }

// Target returns the volume the controller is fading toward.
func (c *Controller) Target() float64 { return c.target }

// Level returns the most recent classification.
func (c *Controller) Level() Level { return c.level }
