// Package realtime provides a websocket streaming transcriber for gateways
// that accept raw PCM and return incremental transcripts, the low-latency
// alternative to batched Whisper requests.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cadencevoice/duplex-go/pkg/ai"
	"github.com/cadencevoice/duplex-go/pkg/ai/stt"
	"github.com/cadencevoice/duplex-go/pkg/rtc"
)

const (
	handshakeTimeout = 10 * time.Second
	pingInterval     = 15 * time.Second
	writeTimeout     = 5 * time.Second
)

// startMessage opens a transcription session on the gateway.
type startMessage struct {
	Type        string `json:"type"` // "start"
	SampleRate  int    `json:"sampleRate"`
	NumChannels int    `json:"numChannels"`
	Language    string `json:"language,omitempty"`
}

// controlMessage carries session control, currently only "stop".
type controlMessage struct {
	Type string `json:"type"`
}

// serverEvent is one message from the gateway.
type serverEvent struct {
	Type  string `json:"type"` // "partial", "final", "error"
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

// Config locates the transcription gateway.
type Config struct {
	URL    string
	Token  string // optional bearer token
	Logger *slog.Logger
}

// Transcriber implements stt.Transcriber over a websocket gateway.
type Transcriber struct {
	cfg    Config
	logger *slog.Logger
}

// NewTranscriber creates a gateway-backed transcriber.
func NewTranscriber(cfg Config) (*Transcriber, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("realtime: gateway URL is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Transcriber{cfg: cfg, logger: logger}, nil
}

// NewStream dials the gateway and opens a transcription session. Transient
// dial failures are retried with backoff up to the stream's MaxRetry budget;
// a credential rejection fails immediately.
func (t *Transcriber) NewStream(ctx context.Context, cfg stt.StreamConfig) (stt.Stream, error) {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = handshakeTimeout

	var header http.Header
	if t.cfg.Token != "" {
		header = http.Header{"Authorization": []string{"Bearer " + t.cfg.Token}}
	}

	var conn *websocket.Conn
	err := ai.DefaultRetryConfig.Retry(ctx, cfg.MaxRetry, func() error {
		c, resp, err := dialer.DialContext(ctx, t.cfg.URL, header)
		if err != nil {
			if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
				return ai.NewFatalError(err, "realtime gateway rejected credentials")
			}
			t.logger.Debug("realtime gateway dial failed", "error", err)
			return ai.NewRecoverableError(err, "realtime gateway dial failed")
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &stream{
		id:     ai.NextRequestID(),
		conn:   conn,
		events: make(chan stt.Event, 16),
		logger: t.logger,
		ctx:    ctx,
		cancel: cancel,
	}

	if err := s.writeJSON(startMessage{
		Type:        "start",
		SampleRate:  cfg.SampleRate,
		NumChannels: cfg.NumChannels,
		Language:    cfg.Language,
	}); err != nil {
		s.Cancel()
		return nil, ai.NewRecoverableError(err, "realtime session start failed")
	}

	go s.readLoop()
	go s.pingLoop()
	return s, nil
}

// Capabilities reports a live streaming provider with partial results.
func (t *Transcriber) Capabilities() stt.Capabilities {
	return stt.Capabilities{
		Streaming:          true,
		PartialResults:     true,
		SupportedLanguages: []string{"en-US"},
		SampleRates:        []int{16000, 48000},
	}
}

type stream struct {
	id     ai.RequestID
	conn   *websocket.Conn
	events chan stt.Event
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	// The websocket permits one concurrent writer; Push, CloseSend and the
	// ping loop all write.
	writeMu sync.Mutex
	closed  bool

	closeOnce sync.Once
}

func (s *stream) Push(frame rtc.AudioFrame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed || s.ctx.Err() != nil {
		return fmt.Errorf("push on closed stream: %w", stt.ErrFatal)
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := s.conn.WriteMessage(websocket.BinaryMessage, frame.Data); err != nil {
		return ai.NewRecoverableError(err, "realtime frame write failed")
	}
	return nil
}

func (s *stream) Events() <-chan stt.Event { return s.events }

func (s *stream) CloseSend() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := s.conn.WriteJSON(controlMessage{Type: "stop"}); err != nil {
		return ai.NewRecoverableError(err, "realtime stop write failed")
	}
	return nil
}

func (s *stream) Cancel() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.conn.Close()
	})
}

func (s *stream) ID() ai.RequestID { return s.id }

func (s *stream) writeJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteJSON(v)
}

// readLoop turns gateway messages into transcript events until the
// connection ends.
func (s *stream) readLoop() {
	defer close(s.events)
	defer s.Cancel()

	for {
		var ev serverEvent
		if err := s.conn.ReadJSON(&ev); err != nil {
			if s.ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				s.emit(stt.Event{Type: stt.EventError, Err: ai.NewRecoverableError(err, "realtime gateway read failed")})
			}
			return
		}

		switch ev.Type {
		case "partial":
			s.emit(stt.Event{
				Type:      stt.EventPartial,
				Utterance: stt.Utterance{Text: ev.Text, StartedAt: time.Now()},
			})
		case "final":
			s.emit(stt.Event{
				Type:      stt.EventFinal,
				Utterance: stt.Utterance{Text: ev.Text, IsFinal: true, StartedAt: time.Now()},
			})
		case "error":
			s.emit(stt.Event{Type: stt.EventError, Err: ai.NewRecoverableError(errors.New(ev.Error), "gateway reported error")})
		default:
			s.logger.Debug("unknown gateway event", "type", ev.Type)
		}
	}
}

func (s *stream) emit(ev stt.Event) {
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}

func (s *stream) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.writeMu.Lock()
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := s.conn.WriteMessage(websocket.PingMessage, nil)
			s.writeMu.Unlock()
			if err != nil {
				s.logger.Debug("gateway ping failed", "error", err)
				return
			}
		}
	}
}
