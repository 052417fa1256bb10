// Package voice holds the cross-cutting pieces of the conversation pipeline:
// the transcription gate that decides which microphone frames reach the
// transcription collaborator, and the validated engine configuration.
package voice

import (
	"sync/atomic"
	"time"
)

// Gate decides whether captured microphone audio is forwarded to the
// transcription collaborator. Frames are dropped while the gate is muted
// (an aborted session discarding stale input) or inside the inhibit window
// that follows an acknowledgment clip, so the assistant's own "mm-hmm" never
// leaks into the user's transcript.
//
// Atomics rather than a mutex: the capture callback may run off the tick
// loop and must never block it.
type Gate struct {
	muted        atomic.Bool
	inhibitUntil atomic.Int64 // unix nanos
}

// NewGate creates an open gate.
func NewGate() *Gate {
	return &Gate{}
}

// SetMuted opens or closes the gate outright.
func (g *Gate) SetMuted(muted bool) {
	g.muted.Store(muted)
}

// InhibitUntil suppresses forwarding until the given instant. A later
// instant extends the window; an earlier one never shortens it.
func (g *Gate) InhibitUntil(t time.Time) {
	n := t.UnixNano()
	for {
		cur := g.inhibitUntil.Load()
		if n <= cur {
			return
		}
		if g.inhibitUntil.CompareAndSwap(cur, n) {
			return
		}
	}
}

// ShouldForward reports whether a frame captured at now may be transcribed.
func (g *Gate) ShouldForward(now time.Time) bool {
	if g.muted.Load() {
		return false
	}
	return now.UnixNano() >= g.inhibitUntil.Load()
}

// Inhibited reports whether the inhibit window is active at now.
func (g *Gate) Inhibited(now time.Time) bool {
	return now.UnixNano() < g.inhibitUntil.Load()
}
