// Package backchannel schedules short acknowledgment clips while the user
// speaks at length and the assistant is silent. The clip must never be heard
// by the rest of the pipeline: playback inhibits the transcription feed for
// a short window so the acknowledgment cannot leak into the user's own
// transcript or trigger ducking on itself.
package backchannel

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cadencevoice/duplex-go/pkg/audio/wav"
	"github.com/cadencevoice/duplex-go/pkg/interrupt"
	"github.com/cadencevoice/duplex-go/pkg/rtc"
)

// Config tunes the trigger predicate. Zero values select defaults.
type Config struct {
	// MinSpeechDuration is the continuous user speech required before an
	// acknowledgment makes sense. Default 1800ms.
	MinSpeechDuration time.Duration

	// MinInterval is the minimum spacing between acknowledgments. Default 8s.
	MinInterval time.Duration

	// InhibitWindow is how long the transcription feed is suppressed after a
	// clip starts, so the clip never contaminates the user's transcript.
	// Default 500ms.
	InhibitWindow time.Duration
}

func (c Config) withDefaults() Config {
	if c.MinSpeechDuration <= 0 {
		c.MinSpeechDuration = 1800 * time.Millisecond
	}
	if c.MinInterval <= 0 {
		c.MinInterval = 8 * time.Second
	}
	if c.InhibitWindow <= 0 {
		c.InhibitWindow = 500 * time.Millisecond
	}
	return c
}

// Input is the per-tick state the trigger predicate evaluates.
type Input struct {
	// SpeechDuration is the length of the user's continuous speech run.
	SpeechDuration time.Duration

	// Silence is the current user silence duration. A nonzero value means
	// the user is at a possible utterance boundary, where an acknowledgment
	// would collide with a turn decision.
	Silence time.Duration

	// AssistantPlaying reports whether reply audio is active.
	AssistantPlaying bool

	// Finalizing reports whether a transcription is being finalized.
	Finalizing bool
}

// Scheduler decides when to play an acknowledgment and which clip. The tick
// loop owns it.
type Scheduler struct {
	cfg   Config
	convo *interrupt.ConversationContext
	clips [][]rtc.AudioFrame
	next  int
}

// NewScheduler creates a scheduler over the shared conversation context.
// Clips may be empty, in which case ShouldPlay never fires.
func NewScheduler(cfg Config, convo *interrupt.ConversationContext, clips [][]rtc.AudioFrame) *Scheduler {
	return &Scheduler{cfg: cfg.withDefaults(), convo: convo, clips: clips}
}

// ShouldPlay evaluates the trigger predicate. Every condition must hold.
func (s *Scheduler) ShouldPlay(in Input, now time.Time) bool {
	if len(s.clips) == 0 {
		return false
	}
	if in.SpeechDuration < s.cfg.MinSpeechDuration {
		return false
	}
	if in.AssistantPlaying || in.Finalizing {
		return false
	}
	if in.Silence > 0 {
		return false
	}
	if last := s.convo.LastBackchannelPlayed(); !last.IsZero() && now.Sub(last) < s.cfg.MinInterval {
		return false
	}
	return true
}

// Play returns the next clip in rotation, records the play time, and returns
// the instant until which the transcription feed must be inhibited.
func (s *Scheduler) Play(now time.Time) ([]rtc.AudioFrame, time.Time) {
	clip := s.clips[s.next%len(s.clips)]
	s.next++
	s.convo.RecordBackchannelPlayed(now)
	return clip, now.Add(s.cfg.InhibitWindow)
}

// InhibitWindow returns the configured suppression window.
func (s *Scheduler) InhibitWindow() time.Duration { return s.cfg.InhibitWindow }

// LoadClips reads every .wav file in dir, sorted by name.
func LoadClips(dir string) ([][]rtc.AudioFrame, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read clip dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".wav" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var clips [][]rtc.AudioFrame
	for _, name := range names {
		frames, err := wav.LoadClip(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("load clip %s: %w", name, err)
		}
		clips = append(clips, frames)
	}
	return clips, nil
}
