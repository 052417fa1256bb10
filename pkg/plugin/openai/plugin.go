package openai

import (
	"fmt"
	"os"

	"github.com/cadencevoice/duplex-go/pkg/plugin"
)

// apiKey resolves the key from configuration or the environment.
func apiKey(cfg map[string]any) (string, error) {
	if key, ok := cfg["api_key"].(string); ok && key != "" {
		return key, nil
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		return key, nil
	}
	return "", fmt.Errorf("openai: API key is required (api_key config or OPENAI_API_KEY)")
}

func stringOpt(cfg map[string]any, name string) string {
	v, _ := cfg[name].(string)
	return v
}

func newTranscriber(cfg map[string]any) (any, error) {
	key, err := apiKey(cfg)
	if err != nil {
		return nil, err
	}
	return NewWhisperTranscriber(Config{
		APIKey:   key,
		Model:    stringOpt(cfg, "model"),
		Language: stringOpt(cfg, "language"),
	})
}

func newChatModel(cfg map[string]any) (any, error) {
	key, err := apiKey(cfg)
	if err != nil {
		return nil, err
	}
	return NewChatModel(Config{
		APIKey: key,
		Model:  stringOpt(cfg, "model"),
	})
}

func newSynthesizer(cfg map[string]any) (any, error) {
	key, err := apiKey(cfg)
	if err != nil {
		return nil, err
	}
	return NewSynthesizer(SynthConfig{
		APIKey: key,
		Model:  stringOpt(cfg, "model"),
		Voice:  stringOpt(cfg, "voice"),
	})
}

func init() {
	plugin.RegisterProvider(&plugin.Provider{
		Kind:        plugin.KindTranscriber,
		Name:        "openai",
		Factory:     newTranscriber,
		Description: "Whisper transcription, batched pseudo-streaming",
		Version:     "1.0.0",
		Config: map[string]any{
			"api_key":  "OpenAI API key (or OPENAI_API_KEY)",
			"model":    "whisper-1",
			"language": "language code, empty for auto-detect",
		},
	})
	plugin.RegisterProvider(&plugin.Provider{
		Kind:        plugin.KindChatModel,
		Name:        "openai",
		Factory:     newChatModel,
		Description: "GPT streamed chat completion",
		Version:     "1.0.0",
		Config: map[string]any{
			"api_key": "OpenAI API key (or OPENAI_API_KEY)",
			"model":   "gpt-4o-mini",
		},
	})
	plugin.RegisterProvider(&plugin.Provider{
		Kind:        plugin.KindSynthesizer,
		Name:        "openai",
		Factory:     newSynthesizer,
		Description: "Speech synthesis returning raw 24kHz PCM",
		Version:     "1.0.0",
		Config: map[string]any{
			"api_key": "OpenAI API key (or OPENAI_API_KEY)",
			"model":   "tts-1",
			"voice":   "alloy",
		},
	})
}
