package playback

import (
	"errors"
	"fmt"
	"time"
)

// State is the playback session lifecycle state.
type State int

const (
	// StateIdle means the session exists but nothing has played yet.
	StateIdle State = iota
	// StatePlaying means chunks are being played in order.
	StatePlaying
	// StatePaused means output is held at a captured chunk index.
	StatePaused
	// StateAborted is terminal: the session was superseded or barged in on.
	StateAborted
	// StateCompleted is terminal: every chunk played to the end.
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateAborted:
		return "aborted"
	case StateCompleted:
		return "completed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

var (
	// ErrOutOfOrder means a chunk arrived or was started out of sequence.
	ErrOutOfOrder = errors.New("playback: chunk out of order")
	// ErrBadState means the operation is invalid in the current state.
	ErrBadState = errors.New("playback: invalid state transition")
)

// Session is the per-reply playback state machine. The chunk index only
// moves forward, except when a resume restores the index captured at pause.
// One goroutine owns it; the queue serializes all access.
type Session struct {
	id        uint64
	state     State
	next      int // next index accepted by Enqueue
	playing   int // index currently playing, -1 when none
	played    int // highest fully played index, -1 initially
	resumeAt  int
	final     bool
	pausedAt  time.Time
	startedAt time.Time
}

// NewSession creates an idle session with the given identity. Identities are
// generation counters; a response carrying a stale identity is discarded.
func NewSession(id uint64, now time.Time) *Session {
	return &Session{
		id:        id,
		state:     StateIdle,
		playing:   -1,
		played:    -1,
		resumeAt:  -1,
		startedAt: now,
	}
}

// ID returns the session identity.
func (s *Session) ID() uint64 { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State { return s.state }

// Done reports whether the session reached a terminal state.
func (s *Session) Done() bool {
	return s.state == StateAborted || s.state == StateCompleted
}

// PlayingIndex returns the chunk currently playing, or -1.
func (s *Session) PlayingIndex() int { return s.playing }

// PausedAt returns when the session was paused, or the zero time.
func (s *Session) PausedAt() time.Time { return s.pausedAt }

// Enqueue registers one more chunk. Chunks must arrive with strictly
// ascending contiguous indices.
func (s *Session) Enqueue(index int) error {
	if s.Done() {
		return fmt.Errorf("%w: enqueue in state %v", ErrBadState, s.state)
	}
	if s.final {
		return fmt.Errorf("%w: enqueue after finalize", ErrBadState)
	}
	if index != s.next {
		return fmt.Errorf("%w: got %d, want %d", ErrOutOfOrder, index, s.next)
	}
	s.next++
	return nil
}

// Finalize marks the chunk stream complete. If everything already played,
// the session completes immediately.
func (s *Session) Finalize() {
	s.final = true
	s.maybeComplete()
}

// StartChunk begins playback of the next chunk in order. Only one chunk may
// play at a time.
func (s *Session) StartChunk(index int) error {
	if s.state != StateIdle && s.state != StatePlaying {
		return fmt.Errorf("%w: start in state %v", ErrBadState, s.state)
	}
	if s.playing >= 0 {
		return fmt.Errorf("%w: chunk %d still playing", ErrBadState, s.playing)
	}
	if index != s.played+1 {
		return fmt.Errorf("%w: start %d, want %d", ErrOutOfOrder, index, s.played+1)
	}
	if index >= s.next {
		return fmt.Errorf("%w: start %d before enqueue", ErrOutOfOrder, index)
	}
	s.playing = index
	s.state = StatePlaying
	return nil
}

// FinishChunk records that the playing chunk reached its end.
func (s *Session) FinishChunk(index int) error {
	if index != s.playing {
		return fmt.Errorf("%w: finish %d while playing %d", ErrOutOfOrder, index, s.playing)
	}
	s.played = index
	s.playing = -1
	s.maybeComplete()
	return nil
}

// Pause holds playback and captures the index to resume from. The chunk that
// was interrupted mid-play is replayed from its start on resume.
func (s *Session) Pause(now time.Time) error {
	if s.state != StatePlaying {
		return fmt.Errorf("%w: pause in state %v", ErrBadState, s.state)
	}
	if s.playing >= 0 {
		s.resumeAt = s.playing
		s.playing = -1
	} else {
		s.resumeAt = s.played + 1
	}
	s.state = StatePaused
	s.pausedAt = now
	return nil
}

// Resume returns to playing at the captured index.
func (s *Session) Resume() (int, error) {
	if s.state != StatePaused {
		return 0, fmt.Errorf("%w: resume in state %v", ErrBadState, s.state)
	}
	s.played = s.resumeAt - 1
	s.state = StatePlaying
	s.pausedAt = time.Time{}
	s.maybeComplete()
	return s.resumeAt, nil
}

// Abort terminates the session. Idempotent.
func (s *Session) Abort() {
	if s.state == StateCompleted {
		return
	}
	s.state = StateAborted
	s.playing = -1
}

func (s *Session) maybeComplete() {
	if s.final && s.state != StateAborted && s.playing < 0 && s.played == s.next-1 {
		s.state = StateCompleted
	}
}
