// Package fake provides a scripted reply-generation collaborator for tests.
package fake

import (
	"context"
	"strings"
	"sync"

	"github.com/cadencevoice/duplex-go/pkg/ai"
	"github.com/cadencevoice/duplex-go/pkg/ai/llm"
)

// FakeChatModel streams a fixed reply split into word-sized deltas.
type FakeChatModel struct {
	// Reply is the full text streamed for every request.
	Reply string

	mu       sync.Mutex
	requests []llm.ChatRequest
	streams  []*FakeChatStream
}

// NewFakeChatModel creates a fake model streaming the given reply.
func NewFakeChatModel(reply string) *FakeChatModel {
	return &FakeChatModel{Reply: reply}
}

// StreamChat records the request and returns a stream of word deltas.
func (f *FakeChatModel) StreamChat(ctx context.Context, req llm.ChatRequest) (llm.ChatStream, error) {
	ctx, cancel := context.WithCancel(ctx)
	s := &FakeChatStream{
		id:     ai.NextRequestID(),
		deltas: make(chan llm.Delta, 16),
		cancel: cancel,
	}
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.streams = append(f.streams, s)
	reply := f.Reply
	f.mu.Unlock()

	go s.stream(ctx, reply)
	return s, nil
}

// Requests returns all chat requests seen so far.
func (f *FakeChatModel) Requests() []llm.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]llm.ChatRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

// LastStream returns the most recently created stream, or nil.
func (f *FakeChatModel) LastStream() *FakeChatStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.streams) == 0 {
		return nil
	}
	return f.streams[len(f.streams)-1]
}

// FakeChatStream is a cancelable scripted reply stream.
type FakeChatStream struct {
	id     ai.RequestID
	deltas chan llm.Delta
	cancel context.CancelFunc

	mu       sync.Mutex
	canceled bool
}

func (s *FakeChatStream) stream(ctx context.Context, reply string) {
	defer close(s.deltas)

	words := strings.SplitAfter(reply, " ")
	for _, w := range words {
		select {
		case s.deltas <- llm.Delta{Content: w}:
		case <-ctx.Done():
			return
		}
	}
	select {
	case s.deltas <- llm.Delta{Done: true}:
	case <-ctx.Done():
	}
}

// Deltas returns the delta channel.
func (s *FakeChatStream) Deltas() <-chan llm.Delta { return s.deltas }

// Cancel aborts generation.
func (s *FakeChatStream) Cancel() {
	s.mu.Lock()
	s.canceled = true
	s.mu.Unlock()
	s.cancel()
}

// ID returns the request identity.
func (s *FakeChatStream) ID() ai.RequestID { return s.id }

// Canceled reports whether Cancel was called.
func (s *FakeChatStream) Canceled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canceled
}
