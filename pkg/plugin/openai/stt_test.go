package openai

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/cadencevoice/duplex-go/pkg/ai"
	"github.com/cadencevoice/duplex-go/pkg/ai/stt"
	"github.com/cadencevoice/duplex-go/pkg/audio/wav"
)

func newTestWhisperStream(t *testing.T, baseURL string, maxRetry int) *whisperStream {
	t.Helper()
	tr, err := NewWhisperTranscriber(Config{APIKey: "test-key", BaseURL: baseURL})
	if err != nil {
		t.Fatalf("NewWhisperTranscriber: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return &whisperStream{
		id:     ai.NextRequestID(),
		parent: tr,
		cfg: stt.StreamConfig{
			SampleRate:  16000,
			NumChannels: 1,
			MaxRetry:    maxRetry,
		},
		events: make(chan stt.Event, 16),
		ctx:    ctx,
		cancel: cancel,
	}
}

func TestWhisperTranscribe_RetriesRateLimit(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"message":"rate limited","type":"requests"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":"hello there"}`))
	}))
	t.Cleanup(srv.Close)

	s := newTestWhisperStream(t, srv.URL+"/v1", 2)
	resp, err := s.transcribe(wav.Encode(make([]byte, 3200), 16000, 1))
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if resp.Text != "hello there" {
		t.Errorf("Text = %q, want %q", resp.Text, "hello there")
	}
	if got := requests.Load(); got != 2 {
		t.Errorf("requests = %d, want 2", got)
	}
}

func TestWhisperTranscribe_AuthFailureFailsFast(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"invalid api key","type":"invalid_request_error"}}`))
	}))
	t.Cleanup(srv.Close)

	s := newTestWhisperStream(t, srv.URL+"/v1", 3)
	_, err := s.transcribe(wav.Encode(make([]byte, 3200), 16000, 1))
	if !ai.IsFatal(err) {
		t.Fatalf("transcribe err = %v, want fatal", err)
	}
	if got := requests.Load(); got != 1 {
		t.Errorf("requests = %d, want 1", got)
	}
}

func TestClassifyAPIError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantFatal bool
	}{
		{"bad request", &openai.APIError{HTTPStatusCode: http.StatusBadRequest}, true},
		{"unauthorized", &openai.APIError{HTTPStatusCode: http.StatusUnauthorized}, true},
		{"rate limited", &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests}, false},
		{"server error", &openai.APIError{HTTPStatusCode: http.StatusInternalServerError}, false},
		{"plain network error", errors.New("connection refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyAPIError(tt.err, "whisper transcription failed")
			if ai.IsFatal(got) != tt.wantFatal {
				t.Errorf("IsFatal = %v, want %v", ai.IsFatal(got), tt.wantFatal)
			}
			if !tt.wantFatal && !ai.IsRecoverable(got) {
				t.Errorf("expected a recoverable classification, got %v", got)
			}
		})
	}
}
