// Package fake provides a synthesis collaborator for tests that generates
// sine-wave audio proportional to the text length.
package fake

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/cadencevoice/duplex-go/pkg/ai"
	"github.com/cadencevoice/duplex-go/pkg/ai/tts"
	"github.com/cadencevoice/duplex-go/pkg/rtc"
)

// FakeSynthesizer produces deterministic audio for any text.
type FakeSynthesizer struct {
	// FrameDelay simulates synthesis pacing; zero emits frames immediately.
	FrameDelay time.Duration

	mu     sync.Mutex
	synths []*FakeSynthesis
}

// NewFakeSynthesizer creates a fake synthesis provider.
func NewFakeSynthesizer() *FakeSynthesizer {
	return &FakeSynthesizer{}
}

// Synthesize generates ~10ms of sine wave per character of input text.
func (f *FakeSynthesizer) Synthesize(ctx context.Context, req tts.SynthesizeRequest) (tts.Synthesis, error) {
	ctx, cancel := context.WithCancel(ctx)
	s := &FakeSynthesis{
		id:     ai.NextRequestID(),
		text:   req.Text,
		frames: make(chan rtc.AudioFrame, 16),
		cancel: cancel,
	}
	f.mu.Lock()
	f.synths = append(f.synths, s)
	f.mu.Unlock()

	go s.generate(ctx, f.FrameDelay)
	return s, nil
}

// Capabilities reports a streaming mono 48kHz provider.
func (f *FakeSynthesizer) Capabilities() tts.Capabilities {
	return tts.Capabilities{
		Streaming:          true,
		SupportedLanguages: []string{"en-US"},
		SupportedVoices:    []string{"default"},
		SampleRates:        []int{48000},
	}
}

// Syntheses returns all syntheses created so far.
func (f *FakeSynthesizer) Syntheses() []*FakeSynthesis {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*FakeSynthesis, len(f.synths))
	copy(out, f.synths)
	return out
}

// FakeSynthesis is a cancelable fake audio handle.
type FakeSynthesis struct {
	id     ai.RequestID
	text   string
	frames chan rtc.AudioFrame
	cancel context.CancelFunc

	mu       sync.Mutex
	canceled bool
	err      error
}

func (s *FakeSynthesis) generate(ctx context.Context, delay time.Duration) {
	defer close(s.frames)

	const sampleRate = 48000
	samplesPerFrame := sampleRate / 100 // 10ms
	frameCount := len(s.text)
	if frameCount == 0 {
		frameCount = 1
	}

	for i := 0; i < frameCount; i++ {
		samples := make([]int16, samplesPerFrame)
		for j := range samples {
			idx := i*samplesPerFrame + j
			v := 0.3 * math.Sin(2*math.Pi*440*float64(idx)/float64(sampleRate))
			samples[j] = int16(v * 32767)
		}
		frame := rtc.FrameFromSamples(samples, sampleRate, 1, time.Duration(i)*10*time.Millisecond)

		select {
		case s.frames <- *frame:
		case <-ctx.Done():
			return
		}
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
		}
	}
}

// Frames returns the audio channel.
func (s *FakeSynthesis) Frames() <-chan rtc.AudioFrame { return s.frames }

// Cancel aborts frame generation.
func (s *FakeSynthesis) Cancel() {
	s.mu.Lock()
	s.canceled = true
	s.mu.Unlock()
	s.cancel()
}

// Err reports a terminal error; always nil for the fake.
func (s *FakeSynthesis) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// ID returns the request identity.
func (s *FakeSynthesis) ID() ai.RequestID { return s.id }

// Canceled reports whether Cancel was called.
func (s *FakeSynthesis) Canceled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canceled
}

// Text returns the text this synthesis was created for.
func (s *FakeSynthesis) Text() string { return s.text }
