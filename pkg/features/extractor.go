// Package features converts raw PCM buffers into the per-tick audio features
// the scorers, classifier, ducker and scheduler consume: a speaking flag,
// silence duration, RMS intensity, and lightweight prosody proxies.
package features

import (
	"math"
	"time"

	"github.com/cadencevoice/duplex-go/pkg/rtc"
)

// AudioFeatures is one analysis-tick snapshot of the microphone signal.
// It is ephemeral: produced once per tick and never persisted.
type AudioFeatures struct {
	SilenceDuration time.Duration
	IntensityRMS    float64 // [0,1]
	PitchTrend      float64 // [-1,1], falling to rising
	SpeakingRate    float64 // Hz, envelope-peak proxy for syllable rate
	IsSpeaking      bool
}

// Config tunes the extractor. Zero values select defaults.
type Config struct {
	// TickInterval is the analysis cadence, used when a frame carries no
	// duration of its own. Default 50ms.
	TickInterval time.Duration

	// SpeakingThreshold is the base RMS level above which a tick counts as
	// speech. Default 0.02.
	SpeakingThreshold float64

	// PlaybackBoost multiplies the speaking threshold while assistant audio
	// is playing, to suppress speaker-to-microphone leakage. Default 1.5.
	PlaybackBoost float64

	// HistoryTicks is the window used for the pitch-trend and speaking-rate
	// proxies. Default 12.
	HistoryTicks int
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = 50 * time.Millisecond
	}
	if c.SpeakingThreshold <= 0 {
		c.SpeakingThreshold = 0.02
	}
	if c.PlaybackBoost <= 0 {
		c.PlaybackBoost = 1.5
	}
	if c.HistoryTicks <= 0 {
		c.HistoryTicks = 12
	}
	return c
}

// Extractor turns tick buffers into AudioFeatures. Not safe for concurrent
// use; the engine calls it from the tick loop only.
type Extractor struct {
	cfg Config

	silence    time.Duration
	speechRun  time.Duration
	rmsHist    []float64
	zcrHist    []float64
	lastRising bool
}

// NewExtractor creates an extractor with the given configuration.
func NewExtractor(cfg Config) *Extractor {
	return &Extractor{cfg: cfg.withDefaults()}
}

// Analyze consumes the audio buffered since the last tick and returns the
// tick's features. A nil, empty or silent frame degrades to a not-speaking
// tick; Analyze never fails.
func (e *Extractor) Analyze(frame *rtc.AudioFrame, assistantPlaying bool) AudioFeatures {
	tick := e.cfg.TickInterval
	var samples []int16
	if frame != nil && len(frame.Data) >= 2 {
		samples = frame.Samples()
		if d := frame.Duration(); d > 0 {
			tick = d
		}
	}

	rms := rmsLevel(samples)
	zcr := zeroCrossingRate(samples, tick)
	e.push(rms, zcr)

	threshold := e.cfg.SpeakingThreshold
	if assistantPlaying {
		threshold *= e.cfg.PlaybackBoost
	}
	speaking := rms > threshold

	if speaking {
		e.silence = 0
		e.speechRun += tick
	} else {
		e.silence += tick
		e.speechRun = 0
	}

	return AudioFeatures{
		SilenceDuration: e.silence,
		IntensityRMS:    rms,
		PitchTrend:      e.pitchTrend(),
		SpeakingRate:    e.speakingRate(threshold),
		IsSpeaking:      speaking,
	}
}

// ContinuousSpeech returns how long the user has been speaking without a
// silent tick; the backchannel scheduler reads this.
func (e *Extractor) ContinuousSpeech() time.Duration { return e.speechRun }

// SilenceDuration returns the running silence counter.
func (e *Extractor) SilenceDuration() time.Duration { return e.silence }

// Reset clears all rolling state, for the start of a new conversation.
func (e *Extractor) Reset() {
	e.silence = 0
	e.speechRun = 0
	e.rmsHist = e.rmsHist[:0]
	e.zcrHist = e.zcrHist[:0]
}

func (e *Extractor) push(rms, zcr float64) {
	e.rmsHist = append(e.rmsHist, rms)
	e.zcrHist = append(e.zcrHist, zcr)
	if len(e.rmsHist) > e.cfg.HistoryTicks {
		e.rmsHist = e.rmsHist[1:]
		e.zcrHist = e.zcrHist[1:]
	}
}

// pitchTrend compares zero-crossing rates in the newer and older halves of
// the history window. Rising pitch raises the crossing rate, so the
// normalized difference is a cheap directional proxy; precision is secondary
// to sign.
func (e *Extractor) pitchTrend() float64 {
	n := len(e.zcrHist)
	if n < 4 {
		return 0
	}
	half := n / 2
	older := mean(e.zcrHist[:half])
	newer := mean(e.zcrHist[half:])
	if older < 1e-9 && newer < 1e-9 {
		return 0
	}
	trend := (newer - older) / (older + 1e-9)
	return clamp(trend, -1, 1)
}

// speakingRate counts energy-envelope peaks above the speaking threshold
// across the history window and converts to peaks per second. Envelope peaks
// roughly track syllable nuclei.
func (e *Extractor) speakingRate(threshold float64) float64 {
	n := len(e.rmsHist)
	if n < 3 {
		return 3.0 // neutral before the window fills
	}
	peaks := 0
	for i := 1; i < n-1; i++ {
		v := e.rmsHist[i]
		if v > threshold && v >= e.rmsHist[i-1] && v > e.rmsHist[i+1] {
			peaks++
		}
	}
	window := time.Duration(n) * e.cfg.TickInterval
	if window <= 0 {
		return 3.0
	}
	rate := float64(peaks) / window.Seconds()
	if peaks == 0 {
		return 3.0
	}
	return rate
}

func rmsLevel(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / 32768.0
		sum += v * v
	}
	return clamp(math.Sqrt(sum/float64(len(samples))), 0, 1)
}

func zeroCrossingRate(samples []int16, tick time.Duration) float64 {
	if len(samples) < 2 || tick <= 0 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(samples); i++ {
		if (samples[i-1] >= 0) != (samples[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / tick.Seconds()
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
