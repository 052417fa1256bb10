// Package model provides a trained end-of-utterance model as a drop-in
// completion scorer. It loads an ONNX model and HuggingFace tokenizer lazily
// and falls back to a configurable scorer when inference is unavailable, so
// the fusion engine never notices which strategy is active.
package model

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/cadencevoice/duplex-go/pkg/score"
)

const modelFileRel = "onnx/model_q8.onnx"

// Scorer runs EOU inference over the transcript. Implements
// score.CompletionScorer.
type Scorer struct {
	info      Info
	modelPath string
	fallback  score.CompletionScorer
	logger    *slog.Logger

	tokenizerOnce sync.Once
	tokenizer     *tokenizer.Tokenizer
	tokenizerErr  error
}

// NewScorer creates a model-backed completion scorer. fallback is consulted
// whenever the model cannot produce a score; it must not be nil.
func NewScorer(modelName, modelPath string, fallback score.CompletionScorer, logger *slog.Logger) (*Scorer, error) {
	if fallback == nil {
		return nil, fmt.Errorf("fallback scorer is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	var info Info
	found := false
	for _, m := range AllModels {
		if m.Name == modelName {
			info = m
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("unknown model: %s", modelName)
	}

	if modelPath == "" {
		modelPath = DefaultModelPath()
	}

	return &Scorer{
		info:      info,
		modelPath: modelPath,
		fallback:  fallback,
		logger:    logger,
	}, nil
}

// ScoreCompletion returns the model's completion probability for the
// transcript, or the fallback scorer's result if inference fails.
func (s *Scorer) ScoreCompletion(transcript string) float64 {
	if transcript == "" {
		return 0.5
	}

	tokens, err := s.tokenize(transcript)
	if err != nil {
		s.logger.Debug("model tokenization failed, using fallback scorer", slog.String("error", err.Error()))
		return s.fallback.ScoreCompletion(transcript)
	}

	prob, err := s.infer(tokens)
	if err != nil {
		s.logger.Debug("model inference failed, using fallback scorer", slog.String("error", err.Error()))
		return s.fallback.ScoreCompletion(transcript)
	}
	return prob
}

// tokenize applies the model's chat template to the transcript as a single
// user turn and left-truncates to 128 tokens.
func (s *Scorer) tokenize(transcript string) ([]int32, error) {
	if err := s.loadTokenizer(); err != nil {
		return nil, err
	}

	text := fmt.Sprintf("<|im_start|><|user|>%s<|im_end|>", transcript)
	encoding, err := s.tokenizer.EncodeSingle(text, false)
	if err != nil {
		return nil, fmt.Errorf("tokenization failed: %w", err)
	}

	ids := encoding.GetIds()
	if len(ids) > 128 {
		ids = ids[len(ids)-128:]
	}

	out := make([]int32, len(ids))
	for i, id := range ids {
		out[i] = int32(id)
	}
	return out, nil
}

func (s *Scorer) loadTokenizer() error {
	s.tokenizerOnce.Do(func() {
		file := FilePath(s.modelPath, s.info.Revision, "tokenizer.json")
		if _, err := os.Stat(file); os.IsNotExist(err) {
			s.tokenizerErr = fmt.Errorf("tokenizer file not found: %s (run 'duplexd scorer download' first)", file)
			return
		}
		tk, err := pretrained.FromFile(file)
		if err != nil {
			s.tokenizerErr = fmt.Errorf("failed to load tokenizer: %w", err)
			return
		}
		s.tokenizer = tk
	})
	return s.tokenizerErr
}

// infer runs the ONNX model over the token sequence. Sessions are created
// per call because the input length varies; the environment itself is
// initialized once per process.
func (s *Scorer) infer(tokens []int32) (float64, error) {
	if len(tokens) == 0 {
		return 0.5, nil
	}

	modelFile := FilePath(s.modelPath, s.info.Revision, modelFileRel)
	if _, err := os.Stat(modelFile); os.IsNotExist(err) {
		return 0, fmt.Errorf("model file not found: %s (run 'duplexd scorer download' first)", modelFile)
	}

	if err := ensureOrtEnv(); err != nil {
		return 0, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
	}

	inputData := make([]float32, len(tokens))
	for i, t := range tokens {
		inputData[i] = float32(t)
	}

	inputShape := ort.NewShape(1, int64(len(tokens)))
	inputTensor, err := ort.NewTensor(inputShape, inputData)
	if err != nil {
		return 0, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		return 0, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	session, err := ort.NewSession[float32](
		modelFile,
		[]string{"input_ids"},
		[]string{"logits"},
		[]*ort.Tensor[float32]{inputTensor},
		[]*ort.Tensor[float32]{outputTensor},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create ONNX session: %w", err)
	}
	defer session.Destroy()

	if err := session.Run(); err != nil {
		return 0, fmt.Errorf("ONNX inference failed: %w", err)
	}

	out := outputTensor.GetData()
	if len(out) == 0 {
		return 0, fmt.Errorf("empty output tensor")
	}

	prob := float64(out[0])
	if prob < 0 {
		prob = 0
	} else if prob > 1 {
		prob = 1
	}
	return prob, nil
}

// DefaultModelPath returns where model files are stored.
func DefaultModelPath() string {
	if path := os.Getenv("DUPLEX_MODEL_PATH"); path != "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/duplex-models"
	}
	return filepath.Join(home, ".duplex", "models")
}
