// Package stt defines the transcription collaborator boundary. The engine
// consumes a stream of partial and final utterances for the current user turn
// and may cancel the stream on barge-in or session supersede.
package stt

import (
	"context"
	"time"

	"github.com/cadencevoice/duplex-go/pkg/ai"
	"github.com/cadencevoice/duplex-go/pkg/rtc"
)

// Transcription error classes, aliased for callers that import only this package.
var (
	ErrRecoverable = ai.ErrRecoverable
	ErrFatal       = ai.ErrFatal
)

// Utterance is one transcript update for the current user turn.
// The engine only reads utterances; the stream owns them.
type Utterance struct {
	Text      string
	IsFinal   bool
	StartedAt time.Time
}

// EventType distinguishes transcript updates from stream errors.
type EventType int

const (
	// EventPartial is an interim transcript that may still change.
	EventPartial EventType = iota
	// EventFinal is a finalized transcript for the utterance.
	EventFinal
	// EventError reports a stream failure; the utterance field is empty.
	EventError
)

// Event is one item on a transcription stream.
type Event struct {
	Type      EventType
	Utterance Utterance
	Err       error // set only for EventError
}

// StreamConfig configures a transcription stream.
type StreamConfig struct {
	SampleRate  int
	NumChannels int
	Language    string
	MaxRetry    int
}

// Capabilities describes a transcription provider.
type Capabilities struct {
	Streaming          bool
	PartialResults     bool
	SupportedLanguages []string
	SampleRates        []int
}

// Stream is an active transcription session. Cancel is cooperative: it is a
// no-op on a completed stream, and events arriving after Cancel are dropped
// by the engine based on the stream's request identity.
type Stream interface {
	// Push sends an audio frame for transcription.
	Push(frame rtc.AudioFrame) error

	// Events returns the transcript event channel. It is closed when the
	// stream ends, is canceled, or the context is done.
	Events() <-chan Event

	// CloseSend signals that no more audio will be pushed and flushes
	// pending data so a final utterance can be emitted.
	CloseSend() error

	// Cancel aborts the stream and discards in-flight work.
	Cancel()

	// ID returns the request identity used to guard against late results.
	ID() ai.RequestID
}

// Transcriber is the transcription collaborator contract.
type Transcriber interface {
	NewStream(ctx context.Context, cfg StreamConfig) (Stream, error)
	Capabilities() Capabilities
}
