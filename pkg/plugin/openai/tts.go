package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/cadencevoice/duplex-go/pkg/ai"
	"github.com/cadencevoice/duplex-go/pkg/ai/tts"
	"github.com/cadencevoice/duplex-go/pkg/rtc"
)

// The PCM response format is 16-bit mono at 24kHz.
const synthSampleRate = 24000

// Synthesizer implements tts.Synthesizer over the speech API, requesting raw
// PCM so the response slices directly into playback frames.
type Synthesizer struct {
	client *openai.Client
	model  string
	voice  string
}

// SynthConfig configures the speech provider.
type SynthConfig struct {
	APIKey string
	Model  string
	Voice  string

	// BaseURL overrides the API endpoint, for gateways and tests.
	BaseURL string
}

// NewSynthesizer creates a speech-API-backed synthesizer.
func NewSynthesizer(cfg SynthConfig) (*Synthesizer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = string(openai.TTSModel1)
	}
	voice := cfg.Voice
	if voice == "" {
		voice = string(openai.VoiceAlloy)
	}
	return &Synthesizer{
		client: newClient(cfg.APIKey, cfg.BaseURL),
		model:  model,
		voice:  voice,
	}, nil
}

// Synthesize requests speech for one chunk and streams it as 10ms frames.
func (s *Synthesizer) Synthesize(ctx context.Context, req tts.SynthesizeRequest) (tts.Synthesis, error) {
	ctx, cancel := context.WithCancel(ctx)
	syn := &synthesis{
		id:     ai.NextRequestID(),
		frames: make(chan rtc.AudioFrame, 16),
		cancel: cancel,
	}

	voice := s.voice
	if req.Voice != "" {
		voice = req.Voice
	}
	speechReq := openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(s.model),
		Input:          req.Text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormatPcm,
	}
	if req.Speed > 0 {
		speechReq.Speed = float64(req.Speed)
	}

	go syn.stream(ctx, s.client, speechReq)
	return syn, nil
}

// Capabilities reports the speech API surface.
func (s *Synthesizer) Capabilities() tts.Capabilities {
	return tts.Capabilities{
		Streaming:          true,
		SupportedLanguages: []string{"en", "de", "es", "fr", "it", "ja", "ko", "pt", "zh"},
		SupportedVoices:    []string{"alloy", "echo", "fable", "onyx", "nova", "shimmer"},
		SampleRates:        []int{synthSampleRate},
	}
}

type synthesis struct {
	id     ai.RequestID
	frames chan rtc.AudioFrame
	cancel context.CancelFunc

	mu  sync.Mutex
	err error
}

func (s *synthesis) stream(ctx context.Context, client *openai.Client, req openai.CreateSpeechRequest) {
	defer close(s.frames)

	resp, err := client.CreateSpeech(ctx, req)
	if err != nil {
		s.fail(ai.NewRecoverableError(err, "speech synthesis failed"))
		return
	}
	defer resp.Close()

	const bytesPerFrame = synthSampleRate / 100 * 2 // 10ms of 16-bit mono
	buf := make([]byte, bytesPerFrame)
	for i := 0; ; i++ {
		n, err := io.ReadFull(resp, buf)
		if n > 0 {
			data := make([]byte, bytesPerFrame)
			copy(data, buf[:n]) // zero-padded tail frame
			frame := rtc.AudioFrame{
				Data:              data,
				SampleRate:        synthSampleRate,
				SamplesPerChannel: bytesPerFrame / 2,
				NumChannels:       1,
				Timestamp:         time.Duration(i) * 10 * time.Millisecond,
			}
			select {
			case s.frames <- frame:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) && ctx.Err() == nil {
				s.fail(ai.NewRecoverableError(err, "speech response read failed"))
			}
			return
		}
	}
}

func (s *synthesis) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *synthesis) Frames() <-chan rtc.AudioFrame { return s.frames }

func (s *synthesis) Cancel() { s.cancel() }

func (s *synthesis) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *synthesis) ID() ai.RequestID { return s.id }
