package interrupt

import (
	"sync"
	"time"
)

// ConversationContext holds the rolling counters shared between the
// classifier and the backchannel scheduler: interruption history for
// impatience detection and backchannel timestamps for rate limiting. It
// persists for the life of one conversation session.
//
// The engine runs everything on one goroutine, but the counters are guarded
// by a single mutex so out-of-loop readers (metrics, tests) stay safe.
type ConversationContext struct {
	mu sync.Mutex

	consecutiveInterruptions int
	lastInterruptionAt       time.Time
	lastBackchannelHeardAt   time.Time
	lastBackchannelPlayedAt  time.Time
	interruptionTimes        []time.Time
}

// NewConversationContext creates empty counters.
func NewConversationContext() *ConversationContext {
	return &ConversationContext{}
}

// RecordInterruption notes one user interruption.
func (c *ConversationContext) RecordInterruption(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consecutiveInterruptions++
	c.lastInterruptionAt = now
	c.interruptionTimes = append(c.interruptionTimes, now)
	c.trimLocked(now)
}

// ResetInterruptions clears the consecutive counter, called when a reply
// plays to completion without being interrupted.
func (c *ConversationContext) ResetInterruptions() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consecutiveInterruptions = 0
}

// ConsecutiveInterruptions returns the current streak.
func (c *ConversationContext) ConsecutiveInterruptions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.consecutiveInterruptions
}

// InterruptionsWithin counts interruptions inside the trailing window.
func (c *ConversationContext) InterruptionsWithin(window time.Duration, now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.interruptionTimes {
		if now.Sub(t) <= window {
			n++
		}
	}
	return n
}

// RecordBackchannelHeard notes a user backchannel.
func (c *ConversationContext) RecordBackchannelHeard(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastBackchannelHeardAt = now
}

// RecordBackchannelPlayed notes an assistant acknowledgment; the scheduler
// rate-limits against this timestamp.
func (c *ConversationContext) RecordBackchannelPlayed(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastBackchannelPlayedAt = now
}

// LastBackchannelPlayed returns when the assistant last acknowledged, or the
// zero time.
func (c *ConversationContext) LastBackchannelPlayed() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastBackchannelPlayedAt
}

// LastInterruption returns the most recent interruption time, or the zero time.
func (c *ConversationContext) LastInterruption() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastInterruptionAt
}

// trimLocked drops interruption timestamps older than any plausible window.
func (c *ConversationContext) trimLocked(now time.Time) {
	const keep = 5 * time.Minute
	i := 0
	for ; i < len(c.interruptionTimes); i++ {
		if now.Sub(c.interruptionTimes[i]) <= keep {
			break
		}
	}
	c.interruptionTimes = c.interruptionTimes[i:]
}
