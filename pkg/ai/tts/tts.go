// Package tts defines the synthesis collaborator boundary. Speech chunks are
// synthesized independently; each synthesis is a cancelable handle the
// playback queue holds until the chunk has been played or the session aborts.
package tts

import (
	"context"

	"github.com/cadencevoice/duplex-go/pkg/ai"
	"github.com/cadencevoice/duplex-go/pkg/rtc"
)

var (
	ErrRecoverable = ai.ErrRecoverable
	ErrFatal       = ai.ErrFatal
)

// SynthesizeRequest contains parameters for one chunk synthesis.
type SynthesizeRequest struct {
	Text     string
	Voice    string
	Language string
	Speed    float32
}

// Capabilities describes a synthesis provider.
type Capabilities struct {
	Streaming          bool
	SupportedLanguages []string
	SupportedVoices    []string
	SampleRates        []int
}

// Synthesis is the playable handle for one synthesized chunk. Frames become
// available as the provider produces them; Cancel stops production and
// releases resources. Canceling a finished synthesis is a no-op.
type Synthesis interface {
	// Frames returns the audio frame channel; closed when synthesis
	// completes, fails, or is canceled.
	Frames() <-chan rtc.AudioFrame

	// Cancel aborts the synthesis.
	Cancel()

	// Err reports the terminal error, if any, once Frames is closed.
	Err() error

	// ID returns the request identity used to guard against late results.
	ID() ai.RequestID
}

// Synthesizer is the synthesis collaborator contract.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthesizeRequest) (Synthesis, error)
	Capabilities() Capabilities
}
