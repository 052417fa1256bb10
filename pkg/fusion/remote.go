package fusion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Wire types for the hosted turn-prediction endpoint. The same shapes are
// served by internal/turnapi.

// WireFeatures is the JSON form of one tick's audio features.
type WireFeatures struct {
	SilenceDurationMs uint64  `json:"silenceDurationMs"`
	IntensityRms      float64 `json:"intensityRms"`
	PitchTrend        float64 `json:"pitchTrend"`
	SpeakingRateHz    float64 `json:"speakingRateHz"`
	IsSpeaking        bool    `json:"isSpeaking"`
}

// Request is the prediction request payload.
type Request struct {
	Transcript          string        `json:"transcript"`
	AudioFeatures       *WireFeatures `json:"audioFeatures,omitempty"`
	SilenceDurationMs   uint64        `json:"silenceDurationMs"`
	FallbackThresholdMs uint64        `json:"fallbackThresholdMs"`
}

// Breakdown exposes the per-scorer components of a fused decision.
type Breakdown struct {
	TRP         float64 `json:"trp"`
	VapShift    float64 `json:"vapShift"`
	VapHold     float64 `json:"vapHold"`
	TextWeight  float64 `json:"textWeight"`
	AudioWeight float64 `json:"audioWeight"`
}

// Response is the prediction response payload. Method is "fusion" or
// "simple_threshold".
type Response struct {
	TakeTurn   bool      `json:"takeTurn"`
	FusedScore float64   `json:"fusedScore"`
	Confidence float64   `json:"confidence"`
	Breakdown  Breakdown `json:"breakdown"`
	Method     string    `json:"method"`
	Error      string    `json:"error,omitempty"`
}

// WireMethod maps an internal method to its wire name.
func WireMethod(m Method) string {
	if m == MethodFallback {
		return "simple_threshold"
	}
	return "fusion"
}

func methodFromWire(s string) Method {
	if s == "simple_threshold" {
		return MethodFallback
	}
	return MethodFusion
}

// RemotePredictor asks a hosted endpoint for turn decisions, falling back to
// a local engine whenever the endpoint misbehaves. The conversation never
// blocks on the remote path.
type RemotePredictor struct {
	endpoint   string
	httpClient *http.Client
	local      *Engine
	logger     *slog.Logger
}

// NewRemotePredictor creates a remote predictor. local must not be nil; it
// serves every request the endpoint cannot.
func NewRemotePredictor(endpoint string, local *Engine, logger *slog.Logger) *RemotePredictor {
	if logger == nil {
		logger = slog.Default()
	}
	return &RemotePredictor{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 2 * time.Second,
		},
		local:  local,
		logger: logger,
	}
}

// Predict requests a decision from the endpoint.
func (p *RemotePredictor) Predict(ctx context.Context, in Input) Decision {
	req := Request{
		Transcript:          in.Transcript,
		SilenceDurationMs:   uint64(in.Silence.Milliseconds()),
		FallbackThresholdMs: uint64(p.local.FallbackThreshold().Milliseconds()),
	}
	if in.Features != nil {
		req.AudioFeatures = &WireFeatures{
			SilenceDurationMs: uint64(in.Features.SilenceDuration.Milliseconds()),
			IntensityRms:      in.Features.IntensityRMS,
			PitchTrend:        in.Features.PitchTrend,
			SpeakingRateHz:    in.Features.SpeakingRate,
			IsSpeaking:        in.Features.IsSpeaking,
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return p.localPredict(in, fmt.Errorf("failed to marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return p.localPredict(in, fmt.Errorf("failed to create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", "duplex-go/turn-predictor")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return p.localPredict(in, fmt.Errorf("HTTP request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return p.localPredict(in, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(msg)))
	}

	var wire Response
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return p.localPredict(in, fmt.Errorf("failed to decode response: %w", err))
	}
	if wire.Error != "" {
		return p.localPredict(in, fmt.Errorf("remote error: %s", wire.Error))
	}
	if wire.Confidence < 0 || wire.Confidence > 1 {
		return p.localPredict(in, fmt.Errorf("invalid confidence: %f", wire.Confidence))
	}

	return Decision{
		TextScore:  wire.Breakdown.TRP,
		AudioScore: wire.Breakdown.VapShift,
		FusedScore: wire.FusedScore,
		Confidence: wire.Confidence,
		TakeTurn:   wire.TakeTurn,
		Method:     methodFromWire(wire.Method),
	}
}

func (p *RemotePredictor) localPredict(in Input, cause error) Decision {
	p.logger.Debug("remote turn prediction failed, using local engine",
		slog.String("error", cause.Error()))
	return p.local.Decide(in)
}
