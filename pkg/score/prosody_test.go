package score

import (
	"math"
	"testing"
	"time"

	"github.com/cadencevoice/duplex-go/pkg/features"
)

// neutralFeatures triggers no prosody adjustment except the silence band.
func neutralFeatures(silence time.Duration) features.AudioFeatures {
	return features.AudioFeatures{
		SilenceDuration: silence,
		IntensityRMS:    0.05,
		PitchTrend:      0,
		SpeakingRate:    3.0,
	}
}

func TestScoreProsody_SilenceBands(t *testing.T) {
	p := NewHeuristicProsody(ProsodyConfig{})

	tests := []struct {
		silence   time.Duration
		wantShift float64
	}{
		{0, 0.5},
		{400 * time.Millisecond, 0.5},
		{600 * time.Millisecond, 0.6},
		{1200 * time.Millisecond, 0.7},
		{2500 * time.Millisecond, 0.8},
	}

	for _, tt := range tests {
		hs := p.ScoreProsody(neutralFeatures(tt.silence))
		if math.Abs(hs.Shift-tt.wantShift) > 1e-9 {
			t.Errorf("silence %v: Shift = %v, want %v", tt.silence, hs.Shift, tt.wantShift)
		}
		if math.Abs(hs.Hold+hs.Shift-1.0) > 1e-9 {
			t.Errorf("silence %v: Hold+Shift = %v, want 1.0", tt.silence, hs.Hold+hs.Shift)
		}
	}
}

func TestScoreProsody_MonotonicInSilence(t *testing.T) {
	p := NewHeuristicProsody(ProsodyConfig{})

	prev := -1.0
	for ms := 0; ms <= 3000; ms += 100 {
		hs := p.ScoreProsody(neutralFeatures(time.Duration(ms) * time.Millisecond))
		if hs.Shift < prev {
			t.Fatalf("Shift decreased at silence %dms: %v -> %v", ms, prev, hs.Shift)
		}
		prev = hs.Shift
	}
}

func TestScoreProsody_Cues(t *testing.T) {
	p := NewHeuristicProsody(ProsodyConfig{})
	base := p.ScoreProsody(neutralFeatures(600 * time.Millisecond))

	falling := neutralFeatures(600 * time.Millisecond)
	falling.PitchTrend = -0.5
	if hs := p.ScoreProsody(falling); hs.Shift <= base.Shift {
		t.Errorf("falling pitch Shift = %v, want > %v", hs.Shift, base.Shift)
	}

	rising := neutralFeatures(600 * time.Millisecond)
	rising.PitchTrend = 0.5
	if hs := p.ScoreProsody(rising); hs.Hold <= base.Hold {
		t.Errorf("rising pitch Hold = %v, want > %v", hs.Hold, base.Hold)
	}

	quiet := neutralFeatures(600 * time.Millisecond)
	quiet.IntensityRMS = 0.01
	if hs := p.ScoreProsody(quiet); hs.Shift <= base.Shift {
		t.Errorf("low intensity Shift = %v, want > %v", hs.Shift, base.Shift)
	}

	fast := neutralFeatures(600 * time.Millisecond)
	fast.SpeakingRate = 5.0
	if hs := p.ScoreProsody(fast); hs.Hold <= base.Hold {
		t.Errorf("fast rate Hold = %v, want > %v", hs.Hold, base.Hold)
	}
}

func TestScoreProsody_AlwaysNormalized(t *testing.T) {
	p := NewHeuristicProsody(ProsodyConfig{})

	extreme := features.AudioFeatures{
		SilenceDuration: 5 * time.Second,
		IntensityRMS:    0.001,
		PitchTrend:      -1,
		SpeakingRate:    1.0,
	}
	hs := p.ScoreProsody(extreme)
	if math.Abs(hs.Hold+hs.Shift-1.0) > 1e-9 {
		t.Errorf("Hold+Shift = %v, want 1.0", hs.Hold+hs.Shift)
	}
	if hs.Shift < 0 || hs.Shift > 1 || hs.Hold < 0 || hs.Hold > 1 {
		t.Errorf("out of range: %+v", hs)
	}
}
