// Package agent runs the conversation engine: a single-goroutine tick loop
// that owns feature extraction, turn decisions, interruption handling,
// chunked playback, ducking, and backchannel scheduling. Collaborator
// results always re-enter the loop as events; no decision computation runs
// concurrently with another.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cadencevoice/duplex-go/pkg/ai/llm"
	"github.com/cadencevoice/duplex-go/pkg/ai/stt"
	"github.com/cadencevoice/duplex-go/pkg/ai/tts"
	"github.com/cadencevoice/duplex-go/pkg/backchannel"
	"github.com/cadencevoice/duplex-go/pkg/duck"
	"github.com/cadencevoice/duplex-go/pkg/features"
	"github.com/cadencevoice/duplex-go/pkg/fusion"
	"github.com/cadencevoice/duplex-go/pkg/interrupt"
	"github.com/cadencevoice/duplex-go/pkg/playback"
	"github.com/cadencevoice/duplex-go/pkg/rtc"
	"github.com/cadencevoice/duplex-go/pkg/score"
	"github.com/cadencevoice/duplex-go/pkg/voice"
)

// State is the engine's conversation state.
type State int32

const (
	// StateListening means the user holds the floor.
	StateListening State = iota
	// StateThinking means a turn was taken and the reply has not started
	// producing audio yet.
	StateThinking
	// StateSpeaking means reply audio is playing.
	StateSpeaking
	// StatePaused means playback is held awaiting a resume.
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateListening:
		return "listening"
	case StateThinking:
		return "thinking"
	case StateSpeaking:
		return "speaking"
	case StatePaused:
		return "paused"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Predictor produces turn decisions. Both the local fusion engine and the
// remote predictor satisfy it.
type Predictor interface {
	Predict(ctx context.Context, in fusion.Input) fusion.Decision
}

// Config assembles an engine.
type Config struct {
	Voice voice.Config

	Transcriber stt.Transcriber
	Chat        llm.ChatModel
	Synthesizer tts.Synthesizer
	Device      playback.Device

	// Frames is the microphone capture channel.
	Frames <-chan rtc.AudioFrame

	// Predictor overrides the built-in local fusion engine, e.g. with a
	// RemotePredictor.
	Predictor Predictor

	// Completion overrides the heuristic completion scorer, e.g. with the
	// trained model scorer.
	Completion score.CompletionScorer

	// Clips are the acknowledgment clips for the backchannel scheduler.
	Clips [][]rtc.AudioFrame

	// SystemPrompt seeds the conversation history.
	SystemPrompt string

	Logger *slog.Logger
}

type eventKind int

const (
	evDelta eventKind = iota
	evFallbackAudio
)

// engineEvent carries an async collaborator result back onto the tick loop.
type engineEvent struct {
	kind    eventKind
	session uint64
	delta   llm.Delta
	frames  []rtc.AudioFrame
}

// Engine is the conversation engine. Run owns all mutable turn state; the
// exported accessors read only atomics.
type Engine struct {
	cfg    voice.Config
	logger *slog.Logger

	transcriber stt.Transcriber
	chat        llm.ChatModel
	synth       tts.Synthesizer
	device      playback.Device
	predictor   Predictor
	fuser       *fusion.Engine

	queue      *playback.Queue
	extractor  *features.Extractor
	convo      *interrupt.ConversationContext
	classifier *interrupt.Classifier
	ducker     *duck.Controller
	scheduler  *backchannel.Scheduler
	gate       *voice.Gate

	frames <-chan rtc.AudioFrame
	events chan engineEvent

	shutdown     chan struct{}
	shutdownOnce sync.Once

	state   atomic.Int32
	metrics *Metrics

	// Turn state, owned by the run loop.
	sttStream    stt.Stream
	sttEvents    <-chan stt.Event
	partial      string
	finalText    string
	utteranceDur time.Duration
	burstHandled bool
	burstAcked   bool
	lastFeatures features.AudioFeatures
	haveFeatures bool

	history      []llm.Message
	lastDecision fusion.Decision
	replyCancel  context.CancelFunc
	replyText    strings.Builder
	clipCancel   context.CancelFunc
}

// New validates the configuration and assembles an engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Transcriber == nil {
		return nil, fmt.Errorf("transcriber is required")
	}
	if cfg.Chat == nil {
		return nil, fmt.Errorf("chat model is required")
	}
	if cfg.Synthesizer == nil {
		return nil, fmt.Errorf("synthesizer is required")
	}
	if cfg.Device == nil {
		return nil, fmt.Errorf("playback device is required")
	}
	if cfg.Frames == nil {
		return nil, fmt.Errorf("frame channel is required")
	}
	if err := cfg.Voice.Validate(); err != nil {
		return nil, err
	}
	vc := cfg.Voice.WithDefaults()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	completion := cfg.Completion
	if completion == nil {
		completion = score.NewHeuristic()
	}
	fuser := fusion.NewEngine(completion, score.NewHeuristicProsody(score.ProsodyConfig{}), vc.Fusion)

	predictor := cfg.Predictor
	if predictor == nil {
		predictor = fuser
	}

	convo := interrupt.NewConversationContext()

	e := &Engine{
		cfg:         vc,
		logger:      logger,
		transcriber: cfg.Transcriber,
		chat:        cfg.Chat,
		synth:       cfg.Synthesizer,
		device:      cfg.Device,
		predictor:   predictor,
		fuser:       fuser,
		queue:       playback.NewQueue(cfg.Synthesizer, cfg.Device, logger, vc.Playback),
		extractor:   features.NewExtractor(vc.Features),
		convo:       convo,
		classifier:  interrupt.NewClassifier(vc.Interrupt, convo),
		ducker:      duck.NewController(vc.Duck),
		scheduler:   backchannel.NewScheduler(vc.Backchannel, convo, cfg.Clips),
		gate:        voice.NewGate(),
		frames:      cfg.Frames,
		events:      make(chan engineEvent, 64),
		shutdown:    make(chan struct{}),
		metrics:     newMetrics(),
	}
	if cfg.SystemPrompt != "" {
		e.history = append(e.history, llm.Message{Role: llm.RoleSystem, Content: cfg.SystemPrompt})
	}
	e.state.Store(int32(StateListening))
	return e, nil
}

// State returns the engine's conversation state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Metrics exposes the engine's counters.
func (e *Engine) Metrics() *Metrics { return e.metrics }

// Gate exposes the transcription gate, shared with the capture path.
func (e *Engine) Gate() *voice.Gate { return e.gate }

// Close stops the run loop.
func (e *Engine) Close() error {
	e.shutdownOnce.Do(func() { close(e.shutdown) })
	return nil
}

func (e *Engine) setState(s State) {
	old := State(e.state.Swap(int32(s)))
	if old != s {
		e.metrics.recordTransition(old, s)
		e.logger.Debug("state changed", "from", old.String(), "to", s.String())
	}
}

// Run executes the tick loop until the context is done or Close is called.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.startTranscription(ctx); err != nil {
		return fmt.Errorf("start transcription: %w", err)
	}
	defer e.stopTranscription()
	defer e.queue.Abort()

	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.shutdown:
			return nil
		case frame, ok := <-e.frames:
			if !ok {
				return nil
			}
			e.onFrame(frame)
		case ev, ok := <-e.sttEvents:
			if !ok {
				e.sttEvents = nil
				continue
			}
			e.onTranscript(ctx, ev)
		case ev := <-e.events:
			e.onEvent(ctx, ev)
		case now := <-ticker.C:
			e.onTick(ctx, now)
		}
	}
}

func (e *Engine) startTranscription(ctx context.Context) error {
	stream, err := e.transcriber.NewStream(ctx, stt.StreamConfig{
		SampleRate:  48000,
		NumChannels: 1,
		Language:    "en-US",
		MaxRetry:    3,
	})
	if err != nil {
		return err
	}
	e.sttStream = stream
	e.sttEvents = stream.Events()
	return nil
}

func (e *Engine) stopTranscription() {
	if e.sttStream != nil {
		e.sttStream.Cancel()
		e.sttStream = nil
	}
}

// onFrame runs feature extraction on every captured frame and forwards it to
// transcription unless the gate is closed.
func (e *Engine) onFrame(frame rtc.AudioFrame) {
	playing := e.queue.State() == playback.StatePlaying
	e.lastFeatures = e.extractor.Analyze(&frame, playing)
	e.haveFeatures = true

	if e.lastFeatures.IsSpeaking {
		if run := e.extractor.ContinuousSpeech(); run > e.utteranceDur {
			e.utteranceDur = run
		}
	}

	if e.sttStream != nil && e.gate.ShouldForward(time.Now()) {
		if err := e.sttStream.Push(frame); err != nil {
			e.logger.Warn("transcription push failed", "error", err)
		}
	}
}

func (e *Engine) onTranscript(ctx context.Context, ev stt.Event) {
	switch ev.Type {
	case stt.EventPartial:
		e.partial = ev.Utterance.Text
	case stt.EventFinal:
		if ev.Utterance.Text != "" {
			if e.finalText != "" {
				e.finalText += " "
			}
			e.finalText += ev.Utterance.Text
		}
		e.partial = ""
	case stt.EventError:
		// Conservative default: a failed transcription never fabricates a
		// turn decision. Log and restart the stream; the silence fallback
		// carries the conversation meanwhile.
		e.logger.Warn("transcription stream error", "error", ev.Err)
		e.metrics.TranscriptionErrors.Add(1)
		e.stopTranscription()
		if err := e.startTranscription(ctx); err != nil {
			e.logger.Error("transcription restart failed", "error", err)
		}
	}
}

// transcript joins finalized text with the live partial.
func (e *Engine) transcript() string {
	switch {
	case e.finalText == "":
		return e.partial
	case e.partial == "":
		return e.finalText
	default:
		return e.finalText + " " + e.partial
	}
}

// onTick is the heart of the engine. Ordering matters: playback bookkeeping
// first, so a pause or abort decided on the previous tick has taken effect
// before this tick evaluates new audio.
func (e *Engine) onTick(ctx context.Context, now time.Time) {
	e.queue.Tick(ctx, now)

	speaking := e.lastFeatures.IsSpeaking
	speechDur := e.extractor.ContinuousSpeech()
	silence := e.extractor.SilenceDuration()

	switch e.queue.State() {
	case playback.StatePlaying:
		if e.State() == StateThinking {
			e.setState(StateSpeaking)
		}
		e.duckTick(speaking, speechDur)
		e.classifyBurst(now, speaking, speechDur)

	case playback.StatePaused:
		e.duckTick(speaking, speechDur)
		if now.Sub(e.queue.Session().PausedAt()) >= e.cfg.PausedExpiry {
			e.logger.Info("paused session expired", "after", e.cfg.PausedExpiry)
			e.abortReply(false)
			break
		}
		if speaking && speechDur >= e.cfg.ResumeMinUtterance && e.classifier.MatchesResume(e.transcript()) {
			e.resumeReply(ctx)
		}

	case playback.StateCompleted:
		if e.State() == StateSpeaking || e.State() == StateThinking {
			e.finishReply()
		}
		e.listenTick(ctx, now, speaking, speechDur, silence)

	default:
		if e.State() == StateListening {
			e.listenTick(ctx, now, speaking, speechDur, silence)
		}
	}
}

func (e *Engine) duckTick(speaking bool, speechDur time.Duration) {
	e.ducker.Observe(speaking, speechDur, e.lastFeatures.IntensityRMS)
	if err := e.device.SetVolume(e.ducker.Tick()); err != nil {
		e.logger.Warn("volume update failed", "error", err)
	}
}

// classifyBurst labels the user's concurrent speech. A state-changing verdict
// is applied at most once per burst; a backchannel verdict is provisional,
// because the transcript lags the audio onset and a quiet "wait, hold on" must
// not be frozen as a backchannel by its first few frames. The burst keeps
// being re-evaluated until it ends or changes state.
func (e *Engine) classifyBurst(now time.Time, speaking bool, speechDur time.Duration) {
	if !speaking {
		e.burstHandled = false
		e.burstAcked = false
		return
	}
	if e.burstHandled {
		return
	}
	chunkIndex := e.queue.Session().PlayingIndex()
	ev, ok := e.classifier.Classify(interrupt.Burst{
		Duration:   speechDur,
		Intensity:  e.lastFeatures.IntensityRMS,
		Transcript: e.transcript(),
	}, chunkIndex, now)
	if !ok {
		return
	}

	if ev.Kind == interrupt.Backchannel {
		// The user is following along; playback continues. Count it once.
		if !e.burstAcked {
			e.burstAcked = true
			e.metrics.Interruptions.Add(ev.Kind.String(), 1)
			e.logger.Info("burst classified", "kind", ev.Kind.String(),
				"confidence", ev.Confidence, "chunk", ev.ChunkIndex)
		}
		return
	}

	e.burstHandled = true
	e.metrics.Interruptions.Add(ev.Kind.String(), 1)
	e.logger.Info("burst classified", "kind", ev.Kind.String(),
		"confidence", ev.Confidence, "chunk", ev.ChunkIndex)

	switch ev.Kind {
	case interrupt.Pause:
		if err := e.queue.Pause(now); err != nil {
			e.logger.Warn("pause failed", "error", err)
			return
		}
		e.clearUserTurn()
		e.setState(StatePaused)
	default:
		// Interruption, correction, topic shift: the floor changes hands and
		// the user's speech proceeds as a fresh turn.
		e.abortReply(true)
	}
}

// listenTick handles the user-holds-the-floor half: backchannels and turn
// decisions.
func (e *Engine) listenTick(ctx context.Context, now time.Time, speaking bool, speechDur, silence time.Duration) {
	finalizing := e.partial != "" && silence > 0

	if e.scheduler.ShouldPlay(backchannel.Input{
		SpeechDuration:   speechDur,
		Silence:          silence,
		AssistantPlaying: false,
		Finalizing:       finalizing,
	}, now) {
		clip, inhibitUntil := e.scheduler.Play(now)
		e.gate.InhibitUntil(inhibitUntil)
		e.metrics.Backchannels.Add(1)
		e.playClip(ctx, clip)
	}

	if speaking {
		return
	}
	transcript := e.transcript()
	if transcript == "" && e.haveFeatures {
		return
	}
	if transcript != "" && e.utteranceDur < e.cfg.MinUtterance {
		return
	}

	var feat *features.AudioFeatures
	if e.haveFeatures {
		f := e.lastFeatures
		feat = &f
	}
	d := e.predictor.Predict(ctx, fusion.Input{
		Transcript: transcript,
		Features:   feat,
		Silence:    silence,
	})
	if !d.TakeTurn {
		return
	}
	e.metrics.TurnsTaken.Add(1)
	e.logger.Info("taking turn", "fused", d.FusedScore, "confidence", d.Confidence,
		"method", string(d.Method), "transcript", transcript)
	e.startReply(ctx, now, transcript, d)
}

func (e *Engine) startReply(ctx context.Context, now time.Time, transcript string, d fusion.Decision) {
	e.lastDecision = d
	e.history = append(e.history, llm.Message{Role: llm.RoleUser, Content: transcript})
	e.clearUserTurn()
	e.replyText.Reset()

	hint := llm.HintNone
	if e.classifier.Impatient(now) {
		hint = llm.HintConcise
		e.metrics.ConciseHints.Add(1)
	}

	session := e.queue.Begin(now)
	e.ducker.Reset()
	if err := e.device.SetVolume(1.0); err != nil {
		e.logger.Warn("volume reset failed", "error", err)
	}
	e.setState(StateThinking)

	rctx, cancel := context.WithCancel(ctx)
	e.replyCancel = cancel
	stream, err := e.chat.StreamChat(rctx, llm.ChatRequest{Messages: e.history, Hint: hint})
	if err != nil {
		e.logger.Warn("reply generation failed to start", "error", err)
		e.abortReply(false)
		return
	}

	go func() {
		for delta := range stream.Deltas() {
			select {
			case e.events <- engineEvent{kind: evDelta, session: session, delta: delta}:
			case <-e.shutdown:
				return
			}
		}
	}()
}

func (e *Engine) onEvent(ctx context.Context, ev engineEvent) {
	sess := e.queue.Session()
	if sess == nil || ev.session != sess.ID() {
		e.metrics.DiscardedResults.Add(1)
		e.logger.Debug("discarding result from superseded session", "session", ev.session)
		return
	}

	switch ev.kind {
	case evDelta:
		e.onDelta(ctx, ev.delta)
	case evFallbackAudio:
		e.onFallbackAudio(ctx, ev.frames)
	}
}

func (e *Engine) onDelta(ctx context.Context, delta llm.Delta) {
	if delta.Err != nil {
		// Conservative default: a failed generation aborts the reply rather
		// than speaking a fragment with no ending.
		e.logger.Warn("reply stream error", "error", delta.Err)
		e.abortReply(false)
		return
	}
	if delta.Content != "" {
		e.replyText.WriteString(delta.Content)
		if err := e.queue.PushText(ctx, delta.Content, time.Now()); err != nil {
			e.logger.Warn("reply text rejected", "error", err)
		}
	}
	if delta.Done {
		reply := e.replyText.String()
		if err := e.queue.FinishText(ctx); err != nil {
			e.logger.Warn("reply finalize failed", "error", err)
		}
		if reply != "" {
			e.history = append(e.history, llm.Message{Role: llm.RoleAssistant, Content: reply})
		}
		if e.queue.State() == playback.StateIdle {
			// Nothing has played yet; race a whole-reply synthesis as a
			// fallback path. The queue cancels it the instant chunked
			// playback starts.
			e.startFallbackSynthesis(ctx, reply)
		}
	}
}

func (e *Engine) startFallbackSynthesis(ctx context.Context, reply string) {
	if reply == "" {
		return
	}
	sess := e.queue.Session()
	if sess == nil {
		return
	}
	session := sess.ID()

	fctx, cancel := context.WithCancel(ctx)
	e.queue.SetFallbackCancel(cancel)

	go func() {
		syn, err := e.synth.Synthesize(fctx, tts.SynthesizeRequest{Text: reply})
		if err != nil {
			return
		}
		var frames []rtc.AudioFrame
		for f := range syn.Frames() {
			frames = append(frames, f)
		}
		if fctx.Err() != nil || syn.Err() != nil {
			return
		}
		select {
		case e.events <- engineEvent{kind: evFallbackAudio, session: session, frames: frames}:
		case <-e.shutdown:
		}
	}()
}

// onFallbackAudio plays the whole-reply synthesis only if chunked playback
// still has not produced sound; otherwise the reply would be spoken twice.
func (e *Engine) onFallbackAudio(ctx context.Context, frames []rtc.AudioFrame) {
	if e.queue.State() != playback.StateIdle {
		return
	}
	e.logger.Info("falling back to whole-reply synthesis")
	e.queue.Abort()
	e.setState(StateSpeaking)
	e.playClip(ctx, frames)
	e.finishReply()
}

// playClip streams frames to the device on a goroutine of their own. Used
// for backchannel clips and the whole-reply fallback, never for chunks.
func (e *Engine) playClip(ctx context.Context, frames []rtc.AudioFrame) {
	if e.clipCancel != nil {
		e.clipCancel()
	}
	cctx, cancel := context.WithCancel(ctx)
	e.clipCancel = cancel

	go func() {
		defer cancel()
		ch := make(chan rtc.AudioFrame)
		go func() {
			defer close(ch)
			for _, f := range frames {
				select {
				case ch <- f:
				case <-cctx.Done():
					return
				}
			}
		}()
		if err := e.device.Play(cctx, ch); err != nil && cctx.Err() == nil {
			e.logger.Warn("clip playback failed", "error", err)
		}
	}()
}

func (e *Engine) resumeReply(ctx context.Context) {
	if err := e.queue.Resume(ctx); err != nil {
		e.logger.Warn("resume failed", "error", err)
		return
	}
	e.logger.Info("resuming playback")
	e.clearUserTurn()
	// The resume command itself must not be re-classified as a barge-in on
	// the next tick.
	e.burstHandled = true
	e.setState(StateSpeaking)
}

// finishReply closes out a completed reply: the interruption streak resets
// and the turn decision that started the reply is confirmed.
func (e *Engine) finishReply() {
	e.convo.ResetInterruptions()
	e.fuser.RecordFeedback(e.lastDecision, true)
	e.metrics.RepliesCompleted.Add(1)
	e.setState(StateListening)
}

// abortReply terminates the live reply. bargeIn marks decisions the user
// contradicted, which feeds weight adaptation.
func (e *Engine) abortReply(bargeIn bool) {
	e.queue.Abort()
	if e.replyCancel != nil {
		e.replyCancel()
		e.replyCancel = nil
	}
	if bargeIn {
		e.fuser.RecordFeedback(e.lastDecision, false)
	}
	e.metrics.RepliesAborted.Add(1)
	e.setState(StateListening)
}

// clearUserTurn resets the accumulated user transcript and utterance timer.
func (e *Engine) clearUserTurn() {
	e.partial = ""
	e.finalText = ""
	e.utteranceDur = 0
}
