package features

import (
	"math"
	"testing"
	"time"

	"github.com/cadencevoice/duplex-go/pkg/rtc"
)

const testSampleRate = 16000

// toneFrame builds a 50ms sine frame at the given amplitude and frequency.
func toneFrame(amplitude float64, freq float64) *rtc.AudioFrame {
	samples := make([]int16, testSampleRate/20)
	for i := range samples {
		v := amplitude * math.Sin(2*math.Pi*freq*float64(i)/testSampleRate)
		samples[i] = int16(v * 32767)
	}
	return rtc.FrameFromSamples(samples, testSampleRate, 1, 0)
}

func silentFrame() *rtc.AudioFrame {
	return rtc.FrameFromSamples(make([]int16, testSampleRate/20), testSampleRate, 1, 0)
}

func TestAnalyze_EmptyBufferNeverFails(t *testing.T) {
	e := NewExtractor(Config{})

	for _, frame := range []*rtc.AudioFrame{nil, {}, rtc.FrameFromSamples(nil, testSampleRate, 1, 0)} {
		f := e.Analyze(frame, false)
		if f.IsSpeaking {
			t.Errorf("empty buffer reported as speaking")
		}
		if f.IntensityRMS != 0 {
			t.Errorf("empty buffer IntensityRMS = %v, want 0", f.IntensityRMS)
		}
	}
}

func TestAnalyze_SpeakingDetection(t *testing.T) {
	e := NewExtractor(Config{})

	f := e.Analyze(toneFrame(0.2, 200), false)
	if !f.IsSpeaking {
		t.Fatalf("loud tone not detected as speech, rms=%v", f.IntensityRMS)
	}
	if f.SilenceDuration != 0 {
		t.Errorf("SilenceDuration = %v during speech, want 0", f.SilenceDuration)
	}
}

func TestAnalyze_SilenceAccumulates(t *testing.T) {
	e := NewExtractor(Config{TickInterval: 50 * time.Millisecond})

	for i := 0; i < 4; i++ {
		e.Analyze(silentFrame(), false)
	}
	f := e.Analyze(silentFrame(), false)
	if f.SilenceDuration != 250*time.Millisecond {
		t.Errorf("SilenceDuration = %v, want 250ms", f.SilenceDuration)
	}

	// Speech resets the counter.
	f = e.Analyze(toneFrame(0.2, 200), false)
	if f.SilenceDuration != 0 {
		t.Errorf("SilenceDuration = %v after speech, want 0", f.SilenceDuration)
	}
}

func TestAnalyze_PlaybackBoostSuppressesLeakage(t *testing.T) {
	e := NewExtractor(Config{SpeakingThreshold: 0.05, PlaybackBoost: 1.5})

	// Amplitude chosen so RMS (~amp/sqrt2) lands between the base threshold
	// and the boosted one.
	quiet := toneFrame(0.09, 200)

	if f := e.Analyze(quiet, false); !f.IsSpeaking {
		t.Fatalf("leakage-level tone should pass the base threshold, rms=%v", f.IntensityRMS)
	}

	e2 := NewExtractor(Config{SpeakingThreshold: 0.05, PlaybackBoost: 1.5})
	if f := e2.Analyze(quiet, true); f.IsSpeaking {
		t.Errorf("leakage-level tone should not pass the boosted threshold, rms=%v", f.IntensityRMS)
	}
}

func TestAnalyze_PitchTrendDirection(t *testing.T) {
	e := NewExtractor(Config{HistoryTicks: 8})

	// Rising frequency across the window should give a positive trend.
	freqs := []float64{120, 140, 160, 190, 220, 260, 300, 340}
	var f AudioFeatures
	for _, freq := range freqs {
		f = e.Analyze(toneFrame(0.2, freq), false)
	}
	if f.PitchTrend <= 0 {
		t.Errorf("rising tone sweep PitchTrend = %v, want > 0", f.PitchTrend)
	}

	e2 := NewExtractor(Config{HistoryTicks: 8})
	for i := len(freqs) - 1; i >= 0; i-- {
		f = e2.Analyze(toneFrame(0.2, freqs[i]), false)
	}
	if f.PitchTrend >= 0 {
		t.Errorf("falling tone sweep PitchTrend = %v, want < 0", f.PitchTrend)
	}
}

func TestContinuousSpeechRun(t *testing.T) {
	e := NewExtractor(Config{TickInterval: 50 * time.Millisecond})

	for i := 0; i < 10; i++ {
		e.Analyze(toneFrame(0.2, 200), false)
	}
	if got := e.ContinuousSpeech(); got != 500*time.Millisecond {
		t.Errorf("ContinuousSpeech() = %v, want 500ms", got)
	}

	e.Analyze(silentFrame(), false)
	if got := e.ContinuousSpeech(); got != 0 {
		t.Errorf("ContinuousSpeech() after silence = %v, want 0", got)
	}
}
