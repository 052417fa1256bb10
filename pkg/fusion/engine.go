// Package fusion combines the completion and prosody scorers into one
// actionable turn decision, with a silence-threshold fallback when either
// signal is unavailable and optional online adaptation of the text weight.
package fusion

import (
	"context"
	"math"
	"time"

	"github.com/cadencevoice/duplex-go/pkg/features"
	"github.com/cadencevoice/duplex-go/pkg/score"
)

// Method records which decision procedure produced a Decision.
type Method string

const (
	MethodFusion   Method = "fusion"
	MethodFallback Method = "fallback"
)

// Decision is one immutable turn decision. Decisions are created fresh per
// tick and superseded, never mutated.
type Decision struct {
	TextScore  float64
	AudioScore float64 // shift probability
	FusedScore float64
	Confidence float64
	TakeTurn   bool
	Method     Method
}

// Input carries everything a decision tick needs. Features is nil when no
// audio analysis is available; Silence is the raw counter used by the
// fallback path.
type Input struct {
	Transcript string
	Features   *features.AudioFeatures
	Silence    time.Duration
}

// Config tunes the engine. Zero values select defaults.
type Config struct {
	TextWeight        float64       // default 0.6, adapted within [0.3, 0.8]
	DecisionThreshold float64       // default 0.7
	FallbackThreshold time.Duration // default 1500ms
	AdaptWeights      bool          // enable online weight adaptation
}

func (c Config) withDefaults() Config {
	if c.TextWeight == 0 {
		c.TextWeight = 0.6
	}
	if c.DecisionThreshold == 0 {
		c.DecisionThreshold = 0.7
	}
	if c.FallbackThreshold == 0 {
		c.FallbackThreshold = 1500 * time.Millisecond
	}
	return c
}

const (
	minTextWeight = 0.3
	maxTextWeight = 0.8
	weightNudge   = 0.05
)

// Engine fuses the two scorers. Not safe for concurrent use; the engine
// lives on the conversation tick loop.
type Engine struct {
	completion score.CompletionScorer
	prosody    score.ProsodyScorer
	cfg        Config
	textWeight float64
}

// NewEngine creates a fusion engine over the given scorer strategies.
func NewEngine(completion score.CompletionScorer, prosody score.ProsodyScorer, cfg Config) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		completion: completion,
		prosody:    prosody,
		cfg:        cfg,
		textWeight: cfg.TextWeight,
	}
}

// Decide produces a turn decision for the current tick. When either the
// transcript or the audio features are missing it degrades to the pure
// silence-threshold fallback rather than blocking the conversation.
func (e *Engine) Decide(in Input) Decision {
	if in.Transcript == "" || in.Features == nil {
		return e.fallback(in.Silence)
	}

	textScore := e.completion.ScoreCompletion(in.Transcript)
	hs := e.prosody.ScoreProsody(*in.Features)

	fused := textScore*e.textWeight + hs.Shift*(1-e.textWeight)

	// Agreement between the scorers is the confidence signal; the formula
	// bounds it to [0.5, 1].
	confidence := 1 - 0.5*math.Abs(textScore-hs.Shift)

	return Decision{
		TextScore:  textScore,
		AudioScore: hs.Shift,
		FusedScore: fused,
		Confidence: confidence,
		TakeTurn:   fused >= e.cfg.DecisionThreshold,
		Method:     MethodFusion,
	}
}

// Predict satisfies the predictor contract shared with RemotePredictor.
func (e *Engine) Predict(_ context.Context, in Input) Decision {
	return e.Decide(in)
}

// fallback is the simple silence-threshold decision. FusedScore is the
// silence ratio and may exceed 1.0.
func (e *Engine) fallback(silence time.Duration) Decision {
	ratio := float64(silence) / float64(e.cfg.FallbackThreshold)
	return Decision{
		TextScore:  0.5,
		AudioScore: 0.5,
		FusedScore: ratio,
		Confidence: 0.5,
		TakeTurn:   silence >= e.cfg.FallbackThreshold,
		Method:     MethodFallback,
	}
}

// RecordFeedback adapts the text weight after a decision proved wrong: the
// weight moves toward whichever scorer sat closer to neutral, bounded to
// [0.3, 0.8]. No-op unless adaptation is enabled and the decision was a
// fusion decision.
func (e *Engine) RecordFeedback(d Decision, wasCorrect bool) {
	if wasCorrect || !e.cfg.AdaptWeights || d.Method != MethodFusion {
		return
	}

	textDev := math.Abs(d.TextScore - 0.5)
	audioDev := math.Abs(d.AudioScore - 0.5)

	switch {
	case textDev < audioDev:
		e.textWeight += weightNudge
	case audioDev < textDev:
		e.textWeight -= weightNudge
	}

	if e.textWeight < minTextWeight {
		e.textWeight = minTextWeight
	} else if e.textWeight > maxTextWeight {
		e.textWeight = maxTextWeight
	}
}

// TextWeight returns the current (possibly adapted) text weight.
func (e *Engine) TextWeight() float64 { return e.textWeight }

// FallbackThreshold returns the configured fallback silence threshold.
func (e *Engine) FallbackThreshold() time.Duration { return e.cfg.FallbackThreshold }
