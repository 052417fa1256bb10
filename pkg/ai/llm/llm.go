// Package llm defines the reply-generation collaborator boundary. Replies
// stream in as text deltas that the playback chunker consumes; the whole
// stream is cancelable on barge-in.
package llm

import (
	"context"

	"github.com/cadencevoice/duplex-go/pkg/ai"
)

var (
	ErrRecoverable = ai.ErrRecoverable
	ErrFatal       = ai.ErrFatal
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of conversation history.
type Message struct {
	Role    Role
	Content string
}

// Hint is an advisory passed with a chat request. The engine raises
// HintConcise after repeated interruptions (impatience) so the collaborator
// can prefer shorter replies; providers may ignore it.
type Hint int

const (
	HintNone Hint = iota
	HintConcise
)

// ChatRequest asks for a streamed assistant reply.
type ChatRequest struct {
	Messages []Message
	Hint     Hint
}

// Delta is one increment of a streamed reply. Done is set on the final
// delta; Err is set instead of Content when the stream fails.
type Delta struct {
	Content string
	Done    bool
	Err     error
}

// ChatStream is an active reply generation. Cancel is cooperative and safe
// to call after completion.
type ChatStream interface {
	// Deltas returns the reply increment channel; closed after the Done or
	// error delta.
	Deltas() <-chan Delta

	// Cancel aborts generation.
	Cancel()

	// ID returns the request identity used to guard against late results.
	ID() ai.RequestID
}

// ChatModel is the reply-generation collaborator contract.
type ChatModel interface {
	StreamChat(ctx context.Context, req ChatRequest) (ChatStream, error)
}
