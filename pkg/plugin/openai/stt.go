// Package openai provides collaborator implementations backed by the OpenAI
// APIs: Whisper transcription, GPT reply generation, and speech synthesis.
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/cadencevoice/duplex-go/pkg/ai"
	"github.com/cadencevoice/duplex-go/pkg/ai/stt"
	"github.com/cadencevoice/duplex-go/pkg/audio/wav"
	"github.com/cadencevoice/duplex-go/pkg/rtc"
)

// flushInterval is how often buffered audio is sent for transcription.
// Whisper has no streaming endpoint, so the stream batches.
const flushInterval = 3 * time.Second

// minBatch is the shortest audio Whisper accepts.
const minBatch = 100 * time.Millisecond

// Config holds the shared OpenAI provider configuration.
type Config struct {
	APIKey   string
	Model    string
	Language string

	// BaseURL overrides the API endpoint, for gateways and tests.
	BaseURL string
}

// newClient builds an API client, honoring a BaseURL override.
func newClient(apiKey, baseURL string) *openai.Client {
	if baseURL == "" {
		return openai.NewClient(apiKey)
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return openai.NewClientWithConfig(cfg)
}

// WhisperTranscriber implements stt.Transcriber over the Whisper API with
// batched pseudo-streaming: partial results are not available, so every batch
// produces a final utterance.
type WhisperTranscriber struct {
	client   *openai.Client
	model    string
	language string
}

// NewWhisperTranscriber creates a Whisper-backed transcriber.
func NewWhisperTranscriber(cfg Config) (*WhisperTranscriber, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = openai.Whisper1
	}
	return &WhisperTranscriber{
		client:   newClient(cfg.APIKey, cfg.BaseURL),
		model:    model,
		language: cfg.Language,
	}, nil
}

// NewStream opens a batched transcription session.
func (w *WhisperTranscriber) NewStream(ctx context.Context, cfg stt.StreamConfig) (stt.Stream, error) {
	ctx, cancel := context.WithCancel(ctx)
	s := &whisperStream{
		id:     ai.NextRequestID(),
		parent: w,
		cfg:    cfg,
		events: make(chan stt.Event, 16),
		ctx:    ctx,
		cancel: cancel,
	}
	go s.run()
	return s, nil
}

// Capabilities reports batched streaming without partial results.
func (w *WhisperTranscriber) Capabilities() stt.Capabilities {
	return stt.Capabilities{
		Streaming:          true,
		PartialResults:     false,
		SupportedLanguages: []string{"en", "de", "es", "fr", "it", "ja", "ko", "pt", "zh"},
		SampleRates:        []int{16000, 24000, 48000},
	}
}

type whisperStream struct {
	id     ai.RequestID
	parent *WhisperTranscriber
	cfg    stt.StreamConfig
	events chan stt.Event
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	buf    []byte
	bufDur time.Duration
	closed bool
}

func (s *whisperStream) Push(frame rtc.AudioFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("push on closed stream: %w", stt.ErrFatal)
	}
	s.buf = append(s.buf, frame.Data...)
	s.bufDur += frame.Duration()
	return nil
}

func (s *whisperStream) Events() <-chan stt.Event { return s.events }

func (s *whisperStream) CloseSend() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *whisperStream) Cancel() { s.cancel() }

func (s *whisperStream) ID() ai.RequestID { return s.id }

func (s *whisperStream) run() {
	defer close(s.events)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.flush()
		}

		s.mu.Lock()
		done := s.closed && len(s.buf) == 0
		s.mu.Unlock()
		if done {
			return
		}
	}
}

// flush transcribes the batch accumulated since the last tick.
func (s *whisperStream) flush() {
	s.mu.Lock()
	data := s.buf
	dur := s.bufDur
	s.buf = nil
	s.bufDur = 0
	s.mu.Unlock()

	if dur < minBatch {
		return
	}

	body := wav.Encode(data, s.cfg.SampleRate, s.cfg.NumChannels)
	resp, err := s.transcribe(body)
	if err != nil {
		if s.ctx.Err() != nil || ai.IsCanceled(err) {
			return
		}
		slog.Warn("whisper transcription failed", "error", err, "maxRetry", s.cfg.MaxRetry)
		s.emit(stt.Event{Type: stt.EventError, Err: err})
		return
	}
	if resp.Text == "" {
		return
	}
	s.emit(stt.Event{
		Type:      stt.EventFinal,
		Utterance: stt.Utterance{Text: resp.Text, IsFinal: true, StartedAt: time.Now().Add(-dur)},
	})
}

// transcribe sends one batch, retrying recoverable failures up to the
// stream's MaxRetry budget with backoff.
func (s *whisperStream) transcribe(body []byte) (openai.AudioResponse, error) {
	var resp openai.AudioResponse
	err := ai.DefaultRetryConfig.Retry(s.ctx, s.cfg.MaxRetry, func() error {
		var err error
		resp, err = s.parent.client.CreateTranscription(s.ctx, openai.AudioRequest{
			Model:    s.parent.model,
			Language: s.parent.language,
			Format:   openai.AudioResponseFormatJSON,
			Reader:   bytes.NewReader(body),
			FilePath: "audio.wav",
		})
		if err != nil {
			return classifyAPIError(err, "whisper transcription failed")
		}
		return nil
	})
	return resp, err
}

// classifyAPIError maps API failures onto the retry taxonomy: request
// rejections will not succeed on a retry, everything else might.
func classifyAPIError(err error, message string) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return ai.NewFatalError(err, message)
		}
	}
	return ai.NewRecoverableError(err, message)
}

func (s *whisperStream) emit(ev stt.Event) {
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}
