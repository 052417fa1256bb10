package openai

import (
	"context"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/cadencevoice/duplex-go/pkg/ai"
	"github.com/cadencevoice/duplex-go/pkg/ai/llm"
)

// conciseInstruction is appended as a system message when the engine raises
// the concise hint after repeated interruptions.
const conciseInstruction = "The user has interrupted your last few replies. Answer in one or two short sentences."

// ChatModel implements llm.ChatModel over the chat completions streaming API.
type ChatModel struct {
	client *openai.Client
	model  string
}

// NewChatModel creates a GPT-backed chat model.
func NewChatModel(cfg Config) (*ChatModel, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &ChatModel{client: newClient(cfg.APIKey, cfg.BaseURL), model: model}, nil
}

// StreamChat starts a streamed completion. Deltas map one to one onto the
// upstream stream chunks.
func (m *ChatModel) StreamChat(ctx context.Context, req llm.ChatRequest) (llm.ChatStream, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	for _, msg := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}
	if req.Hint == llm.HintConcise {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: conciseInstruction,
		})
	}

	ctx, cancel := context.WithCancel(ctx)
	upstream, err := m.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    m.model,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		cancel()
		return nil, ai.NewRecoverableError(err, "chat completion stream failed to start")
	}

	s := &chatStream{
		id:     ai.NextRequestID(),
		deltas: make(chan llm.Delta, 16),
		cancel: cancel,
	}
	go s.pump(ctx, upstream)
	return s, nil
}

type chatStream struct {
	id     ai.RequestID
	deltas chan llm.Delta
	cancel context.CancelFunc
}

func (s *chatStream) pump(ctx context.Context, upstream *openai.ChatCompletionStream) {
	defer close(s.deltas)
	defer upstream.Close()

	for {
		resp, err := upstream.Recv()
		if errors.Is(err, io.EOF) {
			s.send(ctx, llm.Delta{Done: true})
			return
		}
		if err != nil {
			if ctx.Err() == nil {
				s.send(ctx, llm.Delta{Err: ai.NewRecoverableError(err, "chat completion stream failed")})
			}
			return
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if content := resp.Choices[0].Delta.Content; content != "" {
			s.send(ctx, llm.Delta{Content: content})
		}
	}
}

func (s *chatStream) send(ctx context.Context, d llm.Delta) {
	select {
	case s.deltas <- d:
	case <-ctx.Done():
	}
}

func (s *chatStream) Deltas() <-chan llm.Delta { return s.deltas }

func (s *chatStream) Cancel() { s.cancel() }

func (s *chatStream) ID() ai.RequestID { return s.id }
