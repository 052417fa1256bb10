package score

import (
	"github.com/cadencevoice/duplex-go/pkg/features"
)

// Prosody thresholds. Hand-tuned starting points, overridable via
// ProsodyConfig; structure matters more than the exact cutoffs.
type ProsodyConfig struct {
	LongSilenceMs   int64   // default 2000
	MediumSilenceMs int64   // default 1000
	ShortSilenceMs  int64   // default 500
	FallingPitch    float64 // default -0.2
	RisingPitch     float64 // default 0.2
	LowIntensity    float64 // default 0.02
	HighIntensity   float64 // default 0.08
	SlowRate        float64 // default 2.5
	FastRate        float64 // default 4.0
}

func (c ProsodyConfig) withDefaults() ProsodyConfig {
	if c.LongSilenceMs == 0 {
		c.LongSilenceMs = 2000
	}
	if c.MediumSilenceMs == 0 {
		c.MediumSilenceMs = 1000
	}
	if c.ShortSilenceMs == 0 {
		c.ShortSilenceMs = 500
	}
	if c.FallingPitch == 0 {
		c.FallingPitch = -0.2
	}
	if c.RisingPitch == 0 {
		c.RisingPitch = 0.2
	}
	if c.LowIntensity == 0 {
		c.LowIntensity = 0.02
	}
	if c.HighIntensity == 0 {
		c.HighIntensity = 0.08
	}
	if c.SlowRate == 0 {
		c.SlowRate = 2.5
	}
	if c.FastRate == 0 {
		c.FastRate = 4.0
	}
	return c
}

// HeuristicProsody adjusts a 0.5/0.5 prior by silence band, pitch trend,
// intensity and speaking rate, then clamps and renormalizes.
type HeuristicProsody struct {
	cfg ProsodyConfig
}

// NewHeuristicProsody creates the default prosody scorer.
func NewHeuristicProsody(cfg ProsodyConfig) *HeuristicProsody {
	return &HeuristicProsody{cfg: cfg.withDefaults()}
}

// ScoreProsody estimates hold vs shift for the next window. Only the highest
// matching silence band applies.
func (p *HeuristicProsody) ScoreProsody(f features.AudioFeatures) HoldShift {
	hold, shift := 0.5, 0.5

	silMs := f.SilenceDuration.Milliseconds()
	switch {
	case silMs > p.cfg.LongSilenceMs:
		shift += 0.3
		hold -= 0.3
	case silMs > p.cfg.MediumSilenceMs:
		shift += 0.2
		hold -= 0.2
	case silMs > p.cfg.ShortSilenceMs:
		shift += 0.1
		hold -= 0.1
	}

	if f.PitchTrend < p.cfg.FallingPitch {
		shift += 0.15
	} else if f.PitchTrend > p.cfg.RisingPitch {
		hold += 0.15
	}

	if f.IntensityRMS < p.cfg.LowIntensity {
		shift += 0.1
	} else if f.IntensityRMS > p.cfg.HighIntensity {
		hold += 0.1
	}

	if f.SpeakingRate < p.cfg.SlowRate {
		shift += 0.1
	} else if f.SpeakingRate > p.cfg.FastRate {
		hold += 0.1
	}

	hold = clampUnit(hold)
	shift = clampUnit(shift)

	sum := hold + shift
	if sum == 0 {
		return HoldShift{Hold: 0.5, Shift: 0.5}
	}
	return HoldShift{Hold: hold / sum, Shift: shift / sum}
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
