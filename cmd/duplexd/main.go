package main

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cadencevoice/duplex-go/internal/turnapi"
	"github.com/cadencevoice/duplex-go/pkg/agent"
	"github.com/cadencevoice/duplex-go/pkg/ai/llm"
	sttfake "github.com/cadencevoice/duplex-go/pkg/ai/stt/fake"
	"github.com/cadencevoice/duplex-go/pkg/ai/tts"
	"github.com/cadencevoice/duplex-go/pkg/features"
	"github.com/cadencevoice/duplex-go/pkg/fusion"
	pbfake "github.com/cadencevoice/duplex-go/pkg/playback/fake"
	"github.com/cadencevoice/duplex-go/pkg/plugin"
	_ "github.com/cadencevoice/duplex-go/pkg/plugin/fake"     // register fake providers
	_ "github.com/cadencevoice/duplex-go/pkg/plugin/openai"   // register OpenAI providers
	_ "github.com/cadencevoice/duplex-go/pkg/plugin/realtime" // register gateway transcriber
	"github.com/cadencevoice/duplex-go/pkg/rtc"
	"github.com/cadencevoice/duplex-go/pkg/score"
	"github.com/cadencevoice/duplex-go/pkg/score/model"
	"github.com/cadencevoice/duplex-go/pkg/version"
)

var rootCmd = &cobra.Command{
	Use:   "duplexd",
	Short: "Duplex - a real-time turn-taking engine for spoken dialogue",
	Long: `duplexd runs the duplex conversation engine and its supporting tools:
turn prediction over transcripts and audio features, the hosted prediction
API, provider management, and a scripted console demo.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.GetVersionInfo())
	},
}

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Predict a turn decision from JSON on stdin",
	Long: `Read a prediction request from stdin and print the decision as JSON.
Input format:  {"transcript": "What time is it?", "audioFeatures": {...}, "silenceDurationMs": 600}
Output format: {"takeTurn": true, "fusedScore": 0.79, "method": "fusion", ...}`,
	RunE: func(cmd *cobra.Command, args []string) error {
		endpoint, _ := cmd.Flags().GetString("endpoint")
		fallbackMs, _ := cmd.Flags().GetUint64("fallback-ms")
		scorerModel, _ := cmd.Flags().GetString("scorer-model")

		logger := setupLogger()
		return runPredict(endpoint, fallbackMs, scorerModel, logger)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the turn-prediction HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")

		logger := setupLogger()
		logger.Info("starting prediction API",
			slog.String("service", "duplexd"),
			slog.String("version", version.Version),
			slog.String("addr", addr))

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		srv := turnapi.New(turnapi.Config{Addr: addr, Logger: logger})
		return srv.Run(ctx)
	},
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a scripted conversation against the fake providers",
	Long: `Assemble the full conversation engine from the registered fake providers,
feed it one spoken question, and print what happened. No audio hardware or
API keys required.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		question, _ := cmd.Flags().GetString("question")
		reply, _ := cmd.Flags().GetString("reply")
		timeout, _ := cmd.Flags().GetDuration("timeout")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

		logger := setupLogger()
		logger.Info("starting console demo",
			slog.String("service", "duplexd"),
			slog.String("question", question))

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		return runDemo(ctx, question, reply, timeout, metricsAddr, logger)
	},
}

var pluginCmd = &cobra.Command{
	Use:   "plugin",
	Short: "Provider management commands",
}

var pluginListCmd = &cobra.Command{
	Use:   "list [kind]",
	Short: "List registered providers",
	Long: `List all registered providers or providers of a specific kind.
Available kinds: stt, llm, tts, scorer`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var kind plugin.Kind
		if len(args) > 0 {
			kind = plugin.Kind(args[0])
		}

		providers := plugin.List(kind)
		if len(providers) == 0 {
			if kind == "" {
				fmt.Println("No providers registered")
			} else {
				fmt.Printf("No providers registered for kind: %s\n", kind)
			}
			return nil
		}

		fmt.Printf("%-8s %-12s %-10s %s\n", "KIND", "NAME", "VERSION", "DESCRIPTION")
		fmt.Println("------------------------------------------------------------")
		for _, p := range providers {
			v := p.Version
			if v == "" {
				v = "N/A"
			}
			d := p.Description
			if d == "" {
				d = "No description"
			}
			fmt.Printf("%-8s %-12s %-10s %s\n", p.Kind, p.Name, v, d)
		}
		return nil
	},
}

var pluginDownloadCmd = &cobra.Command{
	Use:   "download-files",
	Short: "Download missing model files for all registered providers",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := setupLogger()

		downloaded := 0
		failed := 0
		for _, p := range plugin.List("") {
			if p.Downloader == nil {
				continue
			}
			logger.Info("downloading model files",
				slog.String("kind", string(p.Kind)),
				slog.String("name", p.Name))
			if err := p.Downloader.Download(); err != nil {
				logger.Error("download failed",
					slog.String("kind", string(p.Kind)),
					slog.String("name", p.Name),
					slog.String("error", err.Error()))
				failed++
			} else {
				downloaded++
			}
		}

		if downloaded == 0 && failed == 0 {
			fmt.Println("No model files needed downloading")
		} else {
			fmt.Printf("Downloaded model files for %d providers\n", downloaded)
		}
		if failed > 0 {
			return fmt.Errorf("failed to download files for %d providers", failed)
		}
		return nil
	},
}

var pluginLoadCmd = &cobra.Command{
	Use:   "load [directory]",
	Short: "Load dynamic providers from directory (Linux only with -tags=plugindyn)",
	Long: `Load .so provider files from the specified directory.
If no directory is specified, uses DUPLEX_PLUGIN_PATH or the default
/usr/local/lib/duplex/plugins.

Each .so file must export a RegisterProviders() error function.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := setupLogger()

		dir := ""
		if len(args) > 0 {
			dir = args[0]
		}
		logger.Info("loading dynamic providers", slog.String("directory", dir))

		if err := plugin.LoadDynamicProviders(dir); err != nil {
			return err
		}
		logger.Info("dynamic provider loading completed")
		return nil
	},
}

var scorerCmd = &cobra.Command{
	Use:   "scorer",
	Short: "Completion scorer model commands",
}

var scorerDownloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download end-of-utterance scorer models",
	Long: `Download the English and multilingual end-of-utterance models.
Models are stored in $DUPLEX_MODEL_PATH or ~/.duplex/models.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("path")

		logger := setupLogger()
		logger.Info("downloading scorer models")

		if err := model.NewDownloader(path).DownloadAll(); err != nil {
			return err
		}
		logger.Info("scorer models downloaded")
		return nil
	},
}

func setupLogger() *slog.Logger {
	logFormat := os.Getenv("DUPLEX_LOG_FORMAT")
	logLevel := os.Getenv("DUPLEX_LOG_LEVEL")

	opts := &slog.HandlerOptions{}
	switch logLevel {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	var handler slog.Handler
	if logFormat == "console" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func runPredict(endpoint string, fallbackMs uint64, scorerModel string, logger *slog.Logger) error {
	var req fusion.Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		return fmt.Errorf("failed to decode input JSON: %w", err)
	}

	var completion score.CompletionScorer = score.NewHeuristic()
	if scorerModel != "" {
		s, err := model.NewScorer(scorerModel, "", completion, logger)
		if err != nil {
			return fmt.Errorf("failed to create model scorer: %w", err)
		}
		completion = s
	}

	cfg := fusion.Config{}
	if fallbackMs > 0 {
		cfg.FallbackThreshold = time.Duration(fallbackMs) * time.Millisecond
	} else if req.FallbackThresholdMs > 0 {
		cfg.FallbackThreshold = time.Duration(req.FallbackThresholdMs) * time.Millisecond
	}
	engine := fusion.NewEngine(completion, score.NewHeuristicProsody(score.ProsodyConfig{}), cfg)

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

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var d fusion.Decision
	if endpoint != "" {
		d = fusion.NewRemotePredictor(endpoint, engine, logger).Predict(ctx, in)
	} else {
		d = engine.Decide(in)
	}

	resp := fusion.Response{
		TakeTurn:   d.TakeTurn,
		FusedScore: d.FusedScore,
		Confidence: d.Confidence,
		Method:     fusion.WireMethod(d.Method),
		Breakdown: fusion.Breakdown{
			TRP:         d.TextScore,
			VapShift:    d.AudioScore,
			VapHold:     1 - d.AudioScore,
			TextWeight:  engine.TextWeight(),
			AudioWeight: 1 - engine.TextWeight(),
		},
	}
	return json.NewEncoder(os.Stdout).Encode(resp)
}

func runDemo(ctx context.Context, question, reply string, timeout time.Duration, metricsAddr string, logger *slog.Logger) error {
	transcriber := sttfake.NewFakeTranscriber()

	chatFactory, ok := plugin.Lookup(plugin.KindChatModel, "fake")
	if !ok {
		return fmt.Errorf("fake chat model not registered")
	}
	chatAny, err := chatFactory(map[string]any{"reply": reply})
	if err != nil {
		return err
	}
	chat := chatAny.(llm.ChatModel)

	synthFactory, ok := plugin.Lookup(plugin.KindSynthesizer, "fake")
	if !ok {
		return fmt.Errorf("fake synthesizer not registered")
	}
	synthAny, err := synthFactory(map[string]any{"frame_delay_ms": 2})
	if err != nil {
		return err
	}
	synth := synthAny.(tts.Synthesizer)

	device := pbfake.NewFakeDevice()
	frames := make(chan rtc.AudioFrame, 256)

	eng, err := agent.New(agent.Config{
		Transcriber:  transcriber,
		Chat:         chat,
		Synthesizer:  synth,
		Device:       device,
		Frames:       frames,
		SystemPrompt: "You are a helpful voice assistant. Keep replies brief.",
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("failed to assemble engine: %w", err)
	}
	defer eng.Close()

	if metricsAddr != "" {
		eng.Metrics().Publish("duplex")
		go func() {
			logger.Info("metrics server listening", slog.String("addr", metricsAddr))
			mux := http.NewServeMux()
			mux.Handle("/debug/vars", expvar.Handler())
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				logger.Error("metrics server failed", slog.String("error", err.Error()))
			}
		}()
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- eng.Run(runCtx) }()

	go speakQuestion(runCtx, frames, transcriber, question, logger)

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case err := <-done:
			if err != nil && runCtx.Err() == nil {
				return err
			}
			return printDemoSummary(eng, device)
		case <-runCtx.Done():
			<-done
			return printDemoSummary(eng, device)
		case <-ticker.C:
			if eng.Metrics().RepliesCompleted.Value() > 0 && eng.State() == agent.StateListening {
				cancel()
			}
		}
	}
}

// speakQuestion plays the part of the user: 1.2s of voiced audio carrying the
// question, then silence while the reply plays.
func speakQuestion(ctx context.Context, frames chan<- rtc.AudioFrame, transcriber *sttfake.FakeTranscriber, question string, logger *slog.Logger) {
	const frameDur = 10 * time.Millisecond

	// Wait for the engine to open its transcription stream.
	var stream *sttfake.FakeStream
	for stream == nil {
		select {
		case <-ctx.Done():
			return
		case <-time.After(frameDur):
			stream = transcriber.LastStream()
		}
	}

	sendFrame := func(f *rtc.AudioFrame) bool {
		select {
		case frames <- *f:
			return true
		case <-ctx.Done():
			return false
		}
	}

	logger.Info("user speaking", slog.String("text", question))
	for i := 0; i < 120; i++ {
		if !sendFrame(demoSpeechFrame(i)) {
			return
		}
		if i == 60 {
			stream.EmitPartial(question)
		}
		time.Sleep(frameDur)
	}
	stream.EmitFinal(question)

	for {
		if !sendFrame(demoSilenceFrame()) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(frameDur):
		}
	}
}

func demoSpeechFrame(i int) *rtc.AudioFrame {
	const sampleRate = 48000
	samples := make([]int16, sampleRate/100)
	for j := range samples {
		idx := i*len(samples) + j
		v := 0.1 * math.Sin(2*math.Pi*200*float64(idx)/float64(sampleRate))
		samples[j] = int16(v * 32767)
	}
	return rtc.FrameFromSamples(samples, sampleRate, 1, time.Duration(i)*10*time.Millisecond)
}

func demoSilenceFrame() *rtc.AudioFrame {
	return rtc.FrameFromSamples(make([]int16, 480), 48000, 1, 0)
}

func printDemoSummary(eng *agent.Engine, device *pbfake.FakeDevice) error {
	m := eng.Metrics()
	fmt.Printf("turns taken:       %d\n", m.TurnsTaken.Value())
	fmt.Printf("replies completed: %d\n", m.RepliesCompleted.Value())
	fmt.Printf("replies aborted:   %d\n", m.RepliesAborted.Value())
	fmt.Printf("backchannels:      %d\n", m.Backchannels.Value())
	fmt.Printf("frames played:     %d\n", device.FrameCount())

	if m.RepliesCompleted.Value() == 0 {
		return fmt.Errorf("demo finished without a completed reply")
	}
	return nil
}

func init() {
	predictCmd.Flags().String("endpoint", "", "Hosted prediction endpoint (local engine when empty)")
	predictCmd.Flags().Uint64("fallback-ms", 0, "Override the silence fallback threshold")
	predictCmd.Flags().String("scorer-model", "", "Use a trained completion scorer (english, multilingual)")

	serveCmd.Flags().String("addr", ":8090", "Listen address")

	demoCmd.Flags().String("question", "What time is it?", "Question the simulated user asks")
	demoCmd.Flags().String("reply", "It is just after three in the afternoon. Anything else?", "Reply the fake chat model streams")
	demoCmd.Flags().Duration("timeout", 30*time.Second, "Demo timeout")
	demoCmd.Flags().String("metrics-addr", "", "Expose engine metrics at this address")

	scorerDownloadCmd.Flags().String("path", "", "Model storage directory (default $DUPLEX_MODEL_PATH)")

	pluginCmd.AddCommand(pluginListCmd, pluginDownloadCmd, pluginLoadCmd)
	scorerCmd.AddCommand(scorerDownloadCmd)
	rootCmd.AddCommand(versionCmd, predictCmd, serveCmd, demoCmd, pluginCmd, scorerCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
