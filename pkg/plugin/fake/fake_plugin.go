// Package fake registers the in-memory collaborator fakes with the provider
// registry so demos and tests can assemble a full conversation pipeline from
// configuration alone.
package fake

import (
	"time"

	llmfake "github.com/cadencevoice/duplex-go/pkg/ai/llm/fake"
	sttfake "github.com/cadencevoice/duplex-go/pkg/ai/stt/fake"
	ttsfake "github.com/cadencevoice/duplex-go/pkg/ai/tts/fake"
	"github.com/cadencevoice/duplex-go/pkg/plugin"
	"github.com/cadencevoice/duplex-go/pkg/score"
)

func newFakeTranscriber(cfg map[string]any) (any, error) {
	return sttfake.NewFakeTranscriber(), nil
}

func newFakeChatModel(cfg map[string]any) (any, error) {
	reply := "This is a scripted reply from the fake chat model."
	if r, ok := cfg["reply"].(string); ok {
		reply = r
	}
	return llmfake.NewFakeChatModel(reply), nil
}

func newFakeSynthesizer(cfg map[string]any) (any, error) {
	s := ttsfake.NewFakeSynthesizer()
	if ms, ok := cfg["frame_delay_ms"].(int); ok {
		s.FrameDelay = time.Duration(ms) * time.Millisecond
	}
	return s, nil
}

func newHeuristicScorer(cfg map[string]any) (any, error) {
	return score.NewHeuristic(), nil
}

func init() {
	plugin.RegisterProvider(&plugin.Provider{
		Kind:        plugin.KindTranscriber,
		Name:        "fake",
		Factory:     newFakeTranscriber,
		Description: "Test-driven transcriber; transcripts are injected, audio is ignored",
		Version:     "1.0.0",
	})
	plugin.RegisterProvider(&plugin.Provider{
		Kind:        plugin.KindChatModel,
		Name:        "fake",
		Factory:     newFakeChatModel,
		Description: "Chat model streaming one fixed reply",
		Version:     "1.0.0",
		Config: map[string]any{
			"reply": "full reply text streamed for every request",
		},
	})
	plugin.RegisterProvider(&plugin.Provider{
		Kind:        plugin.KindSynthesizer,
		Name:        "fake",
		Factory:     newFakeSynthesizer,
		Description: "Synthesizer producing sine-wave audio proportional to text length",
		Version:     "1.0.0",
		Config: map[string]any{
			"frame_delay_ms": "pacing between generated frames",
		},
	})
	plugin.RegisterProvider(&plugin.Provider{
		Kind:        plugin.KindScorer,
		Name:        "heuristic",
		Factory:     newHeuristicScorer,
		Description: "Lexicon-based completion scorer, no model files",
		Version:     "1.0.0",
	})
}
