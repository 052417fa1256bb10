// Package fake provides a scripted transcription collaborator for tests.
package fake

import (
	"context"
	"sync"
	"time"

	"github.com/cadencevoice/duplex-go/pkg/ai"
	"github.com/cadencevoice/duplex-go/pkg/ai/stt"
	"github.com/cadencevoice/duplex-go/pkg/rtc"
)

// FakeTranscriber creates streams whose transcript events are driven by the
// test through EmitPartial/EmitFinal rather than by audio content.
type FakeTranscriber struct {
	mu      sync.Mutex
	streams []*FakeStream
}

// NewFakeTranscriber creates a new scripted transcriber.
func NewFakeTranscriber() *FakeTranscriber {
	return &FakeTranscriber{}
}

// NewStream creates a new fake stream and remembers it so the test can drive it.
func (f *FakeTranscriber) NewStream(ctx context.Context, cfg stt.StreamConfig) (stt.Stream, error) {
	s := &FakeStream{
		id:     ai.NextRequestID(),
		events: make(chan stt.Event, 16),
		done:   ctx.Done(),
	}
	f.mu.Lock()
	f.streams = append(f.streams, s)
	f.mu.Unlock()
	return s, nil
}

// Capabilities reports streaming with partial results.
func (f *FakeTranscriber) Capabilities() stt.Capabilities {
	return stt.Capabilities{
		Streaming:          true,
		PartialResults:     true,
		SupportedLanguages: []string{"en-US"},
		SampleRates:        []int{16000, 48000},
	}
}

// LastStream returns the most recently created stream, or nil.
func (f *FakeTranscriber) LastStream() *FakeStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.streams) == 0 {
		return nil
	}
	return f.streams[len(f.streams)-1]
}

// FakeStream is a test-driven transcription stream.
type FakeStream struct {
	id     ai.RequestID
	events chan stt.Event
	done   <-chan struct{}

	mu       sync.Mutex
	pushed   int
	closed   bool
	canceled bool
}

// Push counts frames; content is ignored.
func (s *FakeStream) Push(frame rtc.AudioFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.canceled {
		return stt.ErrFatal
	}
	s.pushed++
	return nil
}

// Events returns the event channel.
func (s *FakeStream) Events() <-chan stt.Event { return s.events }

// CloseSend marks the input side closed.
func (s *FakeStream) CloseSend() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Cancel aborts the stream and closes the event channel.
func (s *FakeStream) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.canceled {
		return
	}
	s.canceled = true
	close(s.events)
}

// ID returns the stream's request identity.
func (s *FakeStream) ID() ai.RequestID { return s.id }

// Canceled reports whether Cancel was called.
func (s *FakeStream) Canceled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canceled
}

// PushedFrames reports how many frames were pushed.
func (s *FakeStream) PushedFrames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pushed
}

// EmitPartial injects an interim transcript event.
func (s *FakeStream) EmitPartial(text string) {
	s.emit(stt.Event{
		Type:      stt.EventPartial,
		Utterance: stt.Utterance{Text: text, StartedAt: time.Now()},
	})
}

// EmitFinal injects a final transcript event.
func (s *FakeStream) EmitFinal(text string) {
	s.emit(stt.Event{
		Type:      stt.EventFinal,
		Utterance: stt.Utterance{Text: text, IsFinal: true, StartedAt: time.Now()},
	})
}

// EmitError injects a stream error event.
func (s *FakeStream) EmitError(err error) {
	s.emit(stt.Event{Type: stt.EventError, Err: err})
}

func (s *FakeStream) emit(ev stt.Event) {
	s.mu.Lock()
	if s.canceled {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	select {
	case s.events <- ev:
	case <-s.done:
	}
}
