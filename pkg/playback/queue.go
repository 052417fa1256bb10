package playback

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cadencevoice/duplex-go/pkg/ai/tts"
	"github.com/cadencevoice/duplex-go/pkg/rtc"
)

// QueueConfig tunes the playback queue.
type QueueConfig struct {
	Chunker ChunkerConfig

	// Voice, Language and Speed are forwarded to every synthesis request.
	Voice    string
	Language string
	Speed    float32
}

type eventKind int

const (
	eventSynthesized eventKind = iota
	eventPlayed
)

// queueEvent carries an async result back onto the tick loop. Events from a
// superseded session are discarded by identity, not by flag.
type queueEvent struct {
	session uint64
	index   int
	kind    eventKind
	seq     uint64
	frames  []rtc.AudioFrame
	err     error
}

// Queue turns streamed reply text into ordered chunk playback. All methods
// run on the tick loop goroutine; synthesis and device output run on
// goroutines the queue owns, reporting back through an event channel that
// Tick drains. At most one chunk produces sound at any moment.
type Queue struct {
	cfg    QueueConfig
	synth  tts.Synthesizer
	device Device
	logger *slog.Logger

	gen     atomic.Uint64
	chunker *Chunker
	sess    *Session

	chunks         map[int]Chunk
	audio          map[int][]rtc.AudioFrame
	synthCancels   map[int]context.CancelFunc
	playCancel     context.CancelFunc
	fallbackCancel context.CancelFunc

	// playSeq numbers every play attempt; curSeq identifies the active one.
	// A canceled play's completion event carries a stale seq and is ignored,
	// which matters when a paused chunk is replayed.
	playSeq uint64
	curSeq  uint64

	events chan queueEvent
}

// NewQueue creates a playback queue over the given synthesizer and device.
func NewQueue(synth tts.Synthesizer, device Device, logger *slog.Logger, cfg QueueConfig) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		cfg:     cfg,
		synth:   synth,
		device:  device,
		logger:  logger,
		chunker: NewChunker(cfg.Chunker),
		events:  make(chan queueEvent, 128),
	}
}

// Begin starts a fresh session for a new reply, superseding any live one.
// Returns the new session identity.
func (q *Queue) Begin(now time.Time) uint64 {
	if q.sess != nil && !q.sess.Done() {
		q.abortLocked()
	}
	id := q.gen.Add(1)
	q.sess = NewSession(id, now)
	q.chunker.Reset()
	q.chunks = make(map[int]Chunk)
	q.audio = make(map[int][]rtc.AudioFrame)
	q.synthCancels = make(map[int]context.CancelFunc)
	q.fallbackCancel = nil
	return id
}

// Session returns the live session, or nil before the first Begin.
func (q *Queue) Session() *Session { return q.sess }

// State returns the live session state, or StateIdle before the first Begin.
func (q *Queue) State() State {
	if q.sess == nil {
		return StateIdle
	}
	return q.sess.State()
}

// SetFallbackCancel registers the cancel handle of a whole-reply synthesis
// running as a fallback path. It is canceled the moment chunked playback
// starts, so the reply is never spoken twice.
func (q *Queue) SetFallbackCancel(cancel context.CancelFunc) {
	q.fallbackCancel = cancel
}

// PushText feeds streamed reply text into the chunker and dispatches
// synthesis for any chunk it completes.
func (q *Queue) PushText(ctx context.Context, text string, now time.Time) error {
	if q.sess == nil || q.sess.Done() {
		return ErrBadState
	}
	return q.admit(ctx, q.chunker.Push(text, now))
}

// FinishText marks the reply stream complete and flushes the remainder.
func (q *Queue) FinishText(ctx context.Context) error {
	if q.sess == nil || q.sess.Done() {
		return ErrBadState
	}
	if err := q.admit(ctx, q.chunker.Flush()); err != nil {
		return err
	}
	q.sess.Finalize()
	return nil
}

// Tick drains async events, applies the chunker's latency ceiling, and
// starts the next chunk when its audio is ready. Called once per analysis
// tick; a pause or abort decided on the previous tick has already taken
// effect before any event here is acted on.
func (q *Queue) Tick(ctx context.Context, now time.Time) {
	q.drainEvents()
	if q.sess == nil || q.sess.Done() {
		return
	}
	if err := q.admit(ctx, q.chunker.Tick(now)); err != nil {
		q.logger.Warn("chunk admission failed", "error", err)
	}
	q.startNext(ctx)
}

// Pause stops output and captures the current chunk for replay. In-flight
// synthesis requests keep running so resume is instant.
func (q *Queue) Pause(now time.Time) error {
	if q.sess == nil {
		return ErrBadState
	}
	if err := q.sess.Pause(now); err != nil {
		return err
	}
	q.stopPlayback()
	q.logger.Debug("playback paused", "session", q.sess.ID())
	return nil
}

// Resume restores playback at the index captured by Pause. The interrupted
// chunk replays from its start.
func (q *Queue) Resume(ctx context.Context) error {
	if q.sess == nil {
		return ErrBadState
	}
	idx, err := q.sess.Resume()
	if err != nil {
		return err
	}
	q.logger.Debug("playback resumed", "session", q.sess.ID(), "chunk", idx)
	q.startNext(ctx)
	return nil
}

// Abort terminates the session: output stops immediately and every in-flight
// synthesis request the session owns is canceled before Abort returns.
func (q *Queue) Abort() {
	if q.sess == nil {
		return
	}
	q.abortLocked()
}

func (q *Queue) abortLocked() {
	q.sess.Abort()
	q.stopPlayback()
	for idx, cancel := range q.synthCancels {
		cancel()
		delete(q.synthCancels, idx)
	}
	if q.fallbackCancel != nil {
		q.fallbackCancel()
		q.fallbackCancel = nil
	}
	q.audio = map[int][]rtc.AudioFrame{}
	q.logger.Debug("playback aborted", "session", q.sess.ID())
}

func (q *Queue) stopPlayback() {
	if q.playCancel != nil {
		q.playCancel()
		q.playCancel = nil
	}
	q.curSeq = 0
	q.device.Stop()
}

func (q *Queue) admit(ctx context.Context, chunks []Chunk) error {
	for _, chunk := range chunks {
		if err := q.sess.Enqueue(chunk.Index); err != nil {
			return err
		}
		q.chunks[chunk.Index] = chunk
		q.dispatchSynthesis(ctx, chunk)
	}
	return nil
}

func (q *Queue) dispatchSynthesis(ctx context.Context, chunk Chunk) {
	ctx, cancel := context.WithCancel(ctx)
	q.synthCancels[chunk.Index] = cancel
	session := q.sess.ID()

	go func() {
		syn, err := q.synth.Synthesize(ctx, tts.SynthesizeRequest{
			Text:     chunk.Text,
			Voice:    q.cfg.Voice,
			Language: q.cfg.Language,
			Speed:    q.cfg.Speed,
		})
		if err != nil {
			q.events <- queueEvent{session: session, index: chunk.Index, kind: eventSynthesized, err: err}
			return
		}
		var frames []rtc.AudioFrame
		for f := range syn.Frames() {
			frames = append(frames, f)
		}
		q.events <- queueEvent{session: session, index: chunk.Index, kind: eventSynthesized, frames: frames, err: syn.Err()}
	}()
}

func (q *Queue) drainEvents() {
	for {
		select {
		case ev := <-q.events:
			q.handleEvent(ev)
		default:
			return
		}
	}
}

func (q *Queue) handleEvent(ev queueEvent) {
	if q.sess == nil || ev.session != q.sess.ID() {
		q.logger.Debug("discarding result from superseded session",
			"session", ev.session, "chunk", ev.index)
		return
	}
	switch ev.kind {
	case eventSynthesized:
		delete(q.synthCancels, ev.index)
		if ev.err != nil {
			if !errors.Is(ev.err, context.Canceled) {
				q.logger.Warn("chunk synthesis failed", "chunk", ev.index, "error", ev.err)
			}
			return
		}
		if q.sess.Done() {
			return
		}
		q.audio[ev.index] = ev.frames
	case eventPlayed:
		if ev.seq == 0 || ev.seq != q.curSeq {
			// Pause or abort already stopped this play.
			return
		}
		q.curSeq = 0
		if ev.err != nil && !errors.Is(ev.err, context.Canceled) {
			q.logger.Warn("chunk playback failed", "chunk", ev.index, "error", ev.err)
		}
		q.playCancel = nil
		if err := q.sess.FinishChunk(ev.index); err != nil {
			q.logger.Warn("chunk bookkeeping failed", "chunk", ev.index, "error", err)
		}
	}
}

// startNext begins the next chunk if the session is able to play, nothing is
// currently playing, and the chunk's audio has arrived.
func (q *Queue) startNext(ctx context.Context) {
	if q.sess.State() != StateIdle && q.sess.State() != StatePlaying {
		return
	}
	if q.sess.PlayingIndex() >= 0 {
		return
	}
	next := q.sess.played + 1
	frames, ok := q.audio[next]
	if !ok {
		return
	}
	if err := q.sess.StartChunk(next); err != nil {
		q.logger.Warn("chunk start refused", "chunk", next, "error", err)
		return
	}
	if q.fallbackCancel != nil {
		// Chunked playback has begun; the whole-reply fallback must never
		// also be spoken.
		q.fallbackCancel()
		q.fallbackCancel = nil
	}

	playCtx, cancel := context.WithCancel(ctx)
	q.playCancel = cancel
	q.playSeq++
	q.curSeq = q.playSeq
	session := q.sess.ID()
	seq := q.curSeq

	go func() {
		defer cancel()
		err := q.playFrames(playCtx, frames)
		q.events <- queueEvent{session: session, index: next, kind: eventPlayed, seq: seq, err: err}
	}()
}

func (q *Queue) playFrames(ctx context.Context, frames []rtc.AudioFrame) error {
	ch := make(chan rtc.AudioFrame)
	go func() {
		defer close(ch)
		for _, f := range frames {
			select {
			case ch <- f:
			case <-ctx.Done():
				return
			}
		}
	}()
	return q.device.Play(ctx, ch)
}
