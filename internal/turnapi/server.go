// Package turnapi serves the hosted turn-prediction endpoint consumed by
// fusion.RemotePredictor. It scores transcripts and audio features with the
// same heuristic scorers the in-process engine uses, so a client falling back
// to its local engine sees consistent decisions.
package turnapi

import (
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/cadencevoice/duplex-go/pkg/features"
	"github.com/cadencevoice/duplex-go/pkg/fusion"
	"github.com/cadencevoice/duplex-go/pkg/score"
)

const (
	readTimeout     = 5 * time.Second
	writeTimeout    = 5 * time.Second
	shutdownTimeout = 10 * time.Second
	maxBodyBytes    = 64 * 1024
)

// Config tunes the server. Zero values select defaults.
type Config struct {
	Addr   string // default ":8090"
	Fusion fusion.Config
	Logger *slog.Logger
}

// Server answers POST /v1/predict with fused turn decisions.
type Server struct {
	cfg        Config
	logger     *slog.Logger
	completion score.CompletionScorer
	prosody    score.ProsodyScorer

	requests    *expvar.Int
	badRequests *expvar.Int
	fallbacks   *expvar.Int
}

// New creates a prediction server over the default heuristic scorers.
func New(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8090"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{
		cfg:         cfg,
		logger:      cfg.Logger,
		completion:  score.NewHeuristic(),
		prosody:     score.NewHeuristicProsody(score.ProsodyConfig{}),
		requests:    new(expvar.Int),
		badRequests: new(expvar.Int),
		fallbacks:   new(expvar.Int),
	}
}

// Handler returns the HTTP handler, exposed separately so tests can drive it
// through httptest without binding a port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/predict", s.handlePredict)
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("turn prediction API listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown failed: %w", err)
		}
		s.logger.Info("turn prediction API stopped")
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintln(w, `{"status":"ok"}`)
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		s.writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	s.requests.Add(1)

	var req fusion.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		s.badRequests.Add(1)
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}

	decision := s.decide(req)
	if decision.Method == fusion.MethodFallback {
		s.fallbacks.Add(1)
	}

	engine := s.engineFor(req)
	resp := fusion.Response{
		TakeTurn:   decision.TakeTurn,
		FusedScore: decision.FusedScore,
		Confidence: decision.Confidence,
		Method:     fusion.WireMethod(decision.Method),
		Breakdown: fusion.Breakdown{
			TRP:         decision.TextScore,
			VapShift:    decision.AudioScore,
			VapHold:     1 - decision.AudioScore,
			TextWeight:  engine.TextWeight(),
			AudioWeight: 1 - engine.TextWeight(),
		},
	}

	s.logger.Debug("turn prediction served",
		"method", resp.Method,
		"takeTurn", resp.TakeTurn,
		"fusedScore", resp.FusedScore)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("response write failed", "error", err)
	}
}

// decide runs one stateless decision. The engine is rebuilt per request so a
// client-supplied fallback threshold applies without cross-request state.
func (s *Server) decide(req fusion.Request) fusion.Decision {
	return s.engineFor(req).Decide(inputFromWire(req))
}

func (s *Server) engineFor(req fusion.Request) *fusion.Engine {
	cfg := s.cfg.Fusion
	if req.FallbackThresholdMs > 0 {
		cfg.FallbackThreshold = time.Duration(req.FallbackThresholdMs) * time.Millisecond
	}
	return fusion.NewEngine(s.completion, s.prosody, cfg)
}

func inputFromWire(req fusion.Request) fusion.Input {
	in := fusion.Input{
		Transcript: req.Transcript,
		Silence:    time.Duration(req.SilenceDurationMs) * time.Millisecond,
	}
	if req.AudioFeatures != nil {
		in.Features = &features.AudioFeatures{
			SilenceDuration: time.Duration(req.AudioFeatures.SilenceDurationMs) * time.Millisecond,
			IntensityRMS:    req.AudioFeatures.IntensityRms,
			PitchTrend:      req.AudioFeatures.PitchTrend,
			SpeakingRate:    req.AudioFeatures.SpeakingRateHz,
			IsSpeaking:      req.AudioFeatures.IsSpeaking,
		}
	}
	return in
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(fusion.Response{Error: msg})
}

// Metrics reports request counters for debugging.
func (s *Server) Metrics() (requests, badRequests, fallbacks int64) {
	return s.requests.Value(), s.badRequests.Value(), s.fallbacks.Value()
}
