// Package interrupt classifies user speech bursts that occur while the
// assistant is speaking and tracks the rolling conversation counters used
// for impatience detection and backchannel rate limiting.
package interrupt

import (
	"fmt"
	"time"
)

// Kind labels one classified speech burst.
type Kind int

const (
	// Backchannel is a brief acknowledgment that does not claim the floor.
	Backchannel Kind = iota
	// Interruption is a genuine attempt to take the floor.
	Interruption
	// Pause is an explicit request to hold playback, resumable later.
	Pause
	// Correction rejects what the assistant is saying.
	Correction
	// TopicShift steers the conversation elsewhere.
	TopicShift
	// Impatience is advisory: repeated interruptions in a short window.
	Impatience
)

func (k Kind) String() string {
	switch k {
	case Backchannel:
		return "backchannel"
	case Interruption:
		return "interruption"
	case Pause:
		return "pause"
	case Correction:
		return "correction"
	case TopicShift:
		return "topic_shift"
	case Impatience:
		return "impatience"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Event is one classified burst during assistant speech.
type Event struct {
	Kind       Kind
	Confidence float64
	// ChunkIndex is the chunk playing when the burst occurred; -1 when the
	// assistant was between chunks.
	ChunkIndex int
	At         time.Time
}

// Burst describes one user speech burst observed while assistant audio is
// active: its sustained duration, intensity, and whatever partial transcript
// is available (may be empty).
type Burst struct {
	Duration   time.Duration
	Intensity  float64
	Transcript string
}
