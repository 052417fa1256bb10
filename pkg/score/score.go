// Package score holds the two turn-taking scorer strategies: completion
// scoring over the live transcript and hold/shift scoring over audio
// features. Both sit behind narrow interfaces so a trained model can replace
// a heuristic without touching the fusion engine.
package score

import "github.com/cadencevoice/duplex-go/pkg/features"

// HoldShift is a normalized pair of probabilities for the next window:
// hold (speaker continues) and shift (speaker yields the turn). Hold+Shift
// always sums to 1.
type HoldShift struct {
	Hold  float64
	Shift float64
}

// CompletionScorer estimates the probability in [0,1] that the transcript
// represents a finished thought.
type CompletionScorer interface {
	ScoreCompletion(transcript string) float64
}

// ProsodyScorer estimates hold/shift probabilities from one tick of audio
// features.
type ProsodyScorer interface {
	ScoreProsody(f features.AudioFeatures) HoldShift
}
