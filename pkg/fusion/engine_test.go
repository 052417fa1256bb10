package fusion

import (
	"math"
	"testing"
	"time"

	"github.com/cadencevoice/duplex-go/pkg/features"
	"github.com/cadencevoice/duplex-go/pkg/score"
)

// neutralFeatures produces no prosody adjustment beyond the silence band.
func neutralFeatures(silence time.Duration) *features.AudioFeatures {
	return &features.AudioFeatures{
		SilenceDuration: silence,
		IntensityRMS:    0.05,
		PitchTrend:      0,
		SpeakingRate:    3.0,
	}
}

func newTestEngine(cfg Config) *Engine {
	return NewEngine(score.NewHeuristic(), score.NewHeuristicProsody(score.ProsodyConfig{}), cfg)
}

func TestDecide_ReferenceScenarios(t *testing.T) {
	e := newTestEngine(Config{})

	tests := []struct {
		name       string
		transcript string
		silence    time.Duration
		wantFused  float64
		wantTake   bool
	}{
		{"complete greeting question", "Hello how are you?", 600 * time.Millisecond, 0.714, true},
		{"long indirect request just below threshold", "I was wondering if you could help me with something?", 700 * time.Millisecond, 0.69, false},
		{"bare acknowledgment", "Yes.", 600 * time.Millisecond, 0.648, false},
		{"wh question with long silence", "What time is it?", 1000 * time.Millisecond, 0.777, true},
		{"hesitation overrides high shift", "um...", 1200 * time.Millisecond, 0.508, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := e.Decide(Input{
				Transcript: tt.transcript,
				Features:   neutralFeatures(tt.silence),
				Silence:    tt.silence,
			})

			if d.Method != MethodFusion {
				t.Fatalf("Method = %v, want fusion", d.Method)
			}
			if math.Abs(d.FusedScore-tt.wantFused) > 0.005 {
				t.Errorf("FusedScore = %.4f, want %.4f", d.FusedScore, tt.wantFused)
			}
			if d.TakeTurn != tt.wantTake {
				t.Errorf("TakeTurn = %v, want %v", d.TakeTurn, tt.wantTake)
			}
		})
	}
}

func TestDecide_ScoresInRange(t *testing.T) {
	e := newTestEngine(Config{})

	transcripts := []string{"Hello how are you?", "and", "What?", "Tell me more please."}
	silences := []time.Duration{0, 300 * time.Millisecond, 900 * time.Millisecond, 3 * time.Second}

	for _, tr := range transcripts {
		for _, sil := range silences {
			d := e.Decide(Input{Transcript: tr, Features: neutralFeatures(sil), Silence: sil})
			for name, v := range map[string]float64{
				"TextScore":  d.TextScore,
				"AudioScore": d.AudioScore,
				"FusedScore": d.FusedScore,
				"Confidence": d.Confidence,
			} {
				if v < 0 || v > 1 {
					t.Errorf("%q @ %v: %s = %v out of [0,1]", tr, sil, name, v)
				}
			}
		}
	}
}

func TestDecide_MonotonicInSilence(t *testing.T) {
	e := newTestEngine(Config{})

	prev := -1.0
	for ms := 0; ms <= 3000; ms += 50 {
		sil := time.Duration(ms) * time.Millisecond
		d := e.Decide(Input{Transcript: "Hello how are you?", Features: neutralFeatures(sil), Silence: sil})
		if d.FusedScore < prev {
			t.Fatalf("FusedScore decreased at %v: %v -> %v", sil, prev, d.FusedScore)
		}
		prev = d.FusedScore
	}
}

func TestDecide_FallbackMode(t *testing.T) {
	e := newTestEngine(Config{FallbackThreshold: 1500 * time.Millisecond})

	tests := []struct {
		name     string
		in       Input
		wantTake bool
	}{
		{"no transcript, short silence", Input{Features: neutralFeatures(0), Silence: 500 * time.Millisecond}, false},
		{"no transcript, long silence", Input{Features: neutralFeatures(2 * time.Second), Silence: 2 * time.Second}, true},
		{"no features", Input{Transcript: "What time is it?", Silence: 1600 * time.Millisecond}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := e.Decide(tt.in)
			if d.Method != MethodFallback {
				t.Fatalf("Method = %v, want fallback", d.Method)
			}
			if d.TakeTurn != tt.wantTake {
				t.Errorf("TakeTurn = %v, want %v", d.TakeTurn, tt.wantTake)
			}
			if d.Confidence != 0.5 {
				t.Errorf("Confidence = %v, want 0.5", d.Confidence)
			}
		})
	}

	// The fallback score is the silence ratio and may exceed 1.0.
	d := e.Decide(Input{Silence: 3 * time.Second})
	if d.FusedScore != 2.0 {
		t.Errorf("fallback FusedScore = %v, want 2.0", d.FusedScore)
	}
}

func TestConfidence_AgreementBounds(t *testing.T) {
	e := newTestEngine(Config{})

	// Scorers in agreement: short utterance plus matching silence.
	agree := e.Decide(Input{Transcript: "What time is it?", Features: neutralFeatures(1200 * time.Millisecond), Silence: 1200 * time.Millisecond})
	// Scorers in conflict: hesitation with long silence.
	conflict := e.Decide(Input{Transcript: "um...", Features: neutralFeatures(1200 * time.Millisecond), Silence: 1200 * time.Millisecond})

	if agree.Confidence <= conflict.Confidence {
		t.Errorf("agreement confidence %v should exceed conflict confidence %v",
			agree.Confidence, conflict.Confidence)
	}
	for _, d := range []Decision{agree, conflict} {
		if d.Confidence < 0.5 || d.Confidence > 1 {
			t.Errorf("Confidence = %v out of [0.5,1]", d.Confidence)
		}
	}
}

func TestRecordFeedback_NudgesWeight(t *testing.T) {
	e := newTestEngine(Config{AdaptWeights: true})

	// Text far from neutral, audio close to it: a wrong decision should
	// shift weight away from the text scorer.
	d := Decision{TextScore: 0.95, AudioScore: 0.55, Method: MethodFusion}
	e.RecordFeedback(d, false)
	if got := e.TextWeight(); math.Abs(got-0.55) > 1e-9 {
		t.Errorf("TextWeight = %v, want 0.55", got)
	}

	// Correct decisions never adapt.
	e.RecordFeedback(d, true)
	if got := e.TextWeight(); math.Abs(got-0.55) > 1e-9 {
		t.Errorf("TextWeight after correct feedback = %v, want 0.55", got)
	}
}

func TestRecordFeedback_Bounded(t *testing.T) {
	e := newTestEngine(Config{AdaptWeights: true})

	d := Decision{TextScore: 0.99, AudioScore: 0.51, Method: MethodFusion}
	for i := 0; i < 20; i++ {
		e.RecordFeedback(d, false)
	}
	if got := e.TextWeight(); got != 0.3 {
		t.Errorf("TextWeight = %v, want lower bound 0.3", got)
	}

	up := Decision{TextScore: 0.51, AudioScore: 0.99, Method: MethodFusion}
	for i := 0; i < 20; i++ {
		e.RecordFeedback(up, false)
	}
	if got := e.TextWeight(); got != 0.8 {
		t.Errorf("TextWeight = %v, want upper bound 0.8", got)
	}
}

func TestRecordFeedback_DisabledByDefault(t *testing.T) {
	e := newTestEngine(Config{})
	e.RecordFeedback(Decision{TextScore: 0.95, AudioScore: 0.55, Method: MethodFusion}, false)
	if got := e.TextWeight(); got != 0.6 {
		t.Errorf("TextWeight = %v, want unchanged 0.6", got)
	}
}
