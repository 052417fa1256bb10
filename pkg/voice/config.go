package voice

import (
	"fmt"
	"time"

	"github.com/cadencevoice/duplex-go/pkg/backchannel"
	"github.com/cadencevoice/duplex-go/pkg/duck"
	"github.com/cadencevoice/duplex-go/pkg/features"
	"github.com/cadencevoice/duplex-go/pkg/fusion"
	"github.com/cadencevoice/duplex-go/pkg/interrupt"
	"github.com/cadencevoice/duplex-go/pkg/playback"
)

// Config is the single tunable surface of the conversation engine. Every
// threshold that used to be an implicit constant lives here; construction
// rejects combinations that cannot work rather than misbehaving at runtime.
type Config struct {
	// TickInterval is the analysis cadence. Default 20ms.
	TickInterval time.Duration

	Features    features.Config
	Fusion      fusion.Config
	Interrupt   interrupt.Config
	Playback    playback.QueueConfig
	Duck        duck.Config
	Backchannel backchannel.Config

	// MinUtterance is the shortest speech burst treated as meaningful input
	// in normal operation. Default 900ms.
	MinUtterance time.Duration

	// ResumeMinUtterance applies instead while a session is paused, so brief
	// control words like "continue" are not discarded as noise. Default
	// 300ms.
	ResumeMinUtterance time.Duration

	// PausedExpiry bounds how long a paused session waits for a resume
	// before it is abandoned. Default 30s.
	PausedExpiry time.Duration

	// ClipDir optionally points at a directory of acknowledgment WAV clips.
	ClipDir string
}

// WithDefaults fills unset fields.
func (c Config) WithDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = 20 * time.Millisecond
	}
	if c.Features.TickInterval <= 0 {
		c.Features.TickInterval = c.TickInterval
	}
	if c.MinUtterance <= 0 {
		c.MinUtterance = 900 * time.Millisecond
	}
	if c.ResumeMinUtterance <= 0 {
		c.ResumeMinUtterance = 300 * time.Millisecond
	}
	if c.PausedExpiry <= 0 {
		c.PausedExpiry = 30 * time.Second
	}
	return c
}

// Validate rejects configurations that cannot behave correctly. It checks
// only explicitly set values; zero fields take their defaults downstream.
func (c Config) Validate() error {
	if c.TickInterval < 0 {
		return fmt.Errorf("config: negative tick interval %v", c.TickInterval)
	}
	if w := c.Fusion.TextWeight; w < 0 || w > 1 {
		return fmt.Errorf("config: text weight %v outside [0,1]", w)
	}
	if th := c.Fusion.DecisionThreshold; th < 0 || th > 1 {
		return fmt.Errorf("config: decision threshold %v outside [0,1]", th)
	}
	if th := c.Features.SpeakingThreshold; th < 0 || th >= 1 {
		return fmt.Errorf("config: speaking threshold %v outside [0,1)", th)
	}
	if s := c.Duck.Step; s < 0 || s > 1 {
		return fmt.Errorf("config: duck step %v outside [0,1]", s)
	}
	if c.MinUtterance > 0 && c.ResumeMinUtterance > c.MinUtterance {
		return fmt.Errorf("config: resume minimum utterance %v exceeds normal minimum %v",
			c.ResumeMinUtterance, c.MinUtterance)
	}
	if min, max := c.Playback.Chunker.MinChunkLen, c.Playback.Chunker.MaxChunkLen; min > 0 && max > 0 && min > max {
		return fmt.Errorf("config: min chunk length %d exceeds max %d", min, max)
	}
	if bc, bi := c.Interrupt.BackchannelMaxDuration, c.Interrupt.BargeInThreshold; bc < 0 || bi < 0 {
		return fmt.Errorf("config: negative interruption thresholds (%v, %v)", bc, bi)
	}
	return nil
}
