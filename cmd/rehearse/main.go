// Command rehearse runs a live mock-interview session from the terminal:
// questions are narrated aloud, answers are transcribed while speaking, and
// each answer is scored for fluency and body language before submission.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/parakeetlabs/rehearse/internal/api"
	"github.com/parakeetlabs/rehearse/internal/audiolevel"
	"github.com/parakeetlabs/rehearse/internal/bodylang"
	"github.com/parakeetlabs/rehearse/internal/config"
	"github.com/parakeetlabs/rehearse/internal/observe"
	"github.com/parakeetlabs/rehearse/internal/resilience"
	"github.com/parakeetlabs/rehearse/internal/session"
	"github.com/parakeetlabs/rehearse/internal/voicemetrics"
	audiomalgo "github.com/parakeetlabs/rehearse/pkg/audio/malgo"
	"github.com/parakeetlabs/rehearse/pkg/camera/mjpeg"
	"github.com/parakeetlabs/rehearse/pkg/provider/stt"
	"github.com/parakeetlabs/rehearse/pkg/provider/stt/deepgram"
	"github.com/parakeetlabs/rehearse/pkg/provider/stt/whisper"
	"github.com/parakeetlabs/rehearse/pkg/provider/tts"
	"github.com/parakeetlabs/rehearse/pkg/provider/tts/aura"
	"github.com/parakeetlabs/rehearse/pkg/provider/tts/espeak"
	"github.com/parakeetlabs/rehearse/pkg/provider/tts/player"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	interviewID := flag.String("interview", "", "interview identifier (overrides config; empty generates one)")
	flag.Parse()

	// Secrets like DEEPGRAM_API_KEY may live in a .env file next to the
	// binary; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "rehearse: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "rehearse: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	id := *interviewID
	if id == "" {
		id = cfg.Interview.ID
	}
	if id == "" {
		id = uuid.NewString()
		slog.Info("no interview id given, starting a fresh practice session", "interview_id", id)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "rehearse"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	if cfg.Observe.MetricsAddr != "" {
		go serveMetrics(cfg.Observe.MetricsAddr)
	}

	// ── Audio backend ─────────────────────────────────────────────────────────
	audioCtx, err := audiomalgo.NewContext()
	if err != nil {
		slog.Error("failed to initialise audio backend", "err", err)
		return 1
	}
	defer audioCtx.Close()

	// ── Speech providers ──────────────────────────────────────────────────────
	sttChain, err := buildSTT(cfg)
	if err != nil {
		slog.Error("failed to build speech-to-text providers", "err", err)
		return 1
	}
	narrator, err := buildNarrator(cfg)
	if err != nil {
		slog.Error("failed to build narrator", "err", err)
		return 1
	}

	// ── Body-language capture ─────────────────────────────────────────────────
	body := buildBodyCapture(cfg)

	// ── Session controller ────────────────────────────────────────────────────
	statePath := cfg.Interview.StateFile
	if statePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		statePath = filepath.Join(home, ".rehearse", "sessions.json")
	}

	ctrl, err := session.NewController(session.Config{
		InterviewID:  id,
		Backend:      api.NewClient(cfg.Server.BaseURL),
		Narrator:     narrator,
		STT:          sttChain,
		AudioContext: audioCtx,
		Body:         body,
		Store:        session.NewStore(statePath),
		Level: audiolevel.Config{
			SampleRate:      uint32(cfg.Audio.SampleRate),
			SpeechThreshold: cfg.Audio.SpeechThreshold,
			Calibration:     cfg.Audio.Calibration,
		},
		Voice: voicemetrics.Config{
			PauseThreshold: time.Duration(cfg.Voice.PauseThresholdMs) * time.Millisecond,
			FillerLexicon:  cfg.Voice.FillerWords,
		},
		Language:      cfg.Providers.STT.Language,
		ChunkInterval: time.Duration(cfg.Audio.ChunkMs) * time.Millisecond,
		AttachAudio:   cfg.Interview.AttachAudio,
		Logger:        logger,
	})
	if err != nil {
		slog.Error("failed to initialise session", "err", err)
		return 1
	}
	defer ctrl.Close()

	if err := interviewLoop(ctx, ctrl); err != nil {
		if errors.Is(err, context.Canceled) {
			slog.Info("interrupted, session state saved for resume")
			return 0
		}
		slog.Error("session error", "err", err)
		return 1
	}
	return 0
}

// interviewLoop drives the controller from the terminal: Enter starts the
// interview, and during each answer Enter submits it.
func interviewLoop(ctx context.Context, ctrl *session.Controller) error {
	in := bufio.NewReader(os.Stdin)

	if ctrl.State() == session.StateRestoring {
		fmt.Println("A previous session was interrupted. Press Enter to resume where you left off.")
	} else {
		fmt.Println("Press Enter to begin the interview.")
	}
	if err := waitEnter(ctx, in); err != nil {
		return err
	}

	if err := ctrl.Start(ctx); err != nil {
		return err
	}

	for ctrl.State() == session.StateRecording || ctrl.State() == session.StateSubmitting {
		q, _ := ctrl.CurrentQuestion()
		fmt.Printf("\n── %s\n", q.Text)
		fmt.Println("Recording. Answer aloud, then press Enter to submit.")
		if err := waitEnter(ctx, in); err != nil {
			return err
		}

		if live := strings.TrimSpace(ctrl.LiveTranscript()); live != "" {
			fmt.Printf("Heard: %s\n", live)
		}
		if err := ctrl.Submit(ctx); err != nil {
			if errors.Is(err, session.ErrSubmitInFlight) {
				continue
			}
			fmt.Println("Submission failed. Press Enter to retry.")
			slog.Warn("submission failed", "err", err)
			if werr := waitEnter(ctx, in); werr != nil {
				return werr
			}
			continue
		}
	}

	if ctrl.State() == session.StateCompleted {
		fmt.Println("\nInterview complete. Your results are ready on the review page.")
		return nil
	}
	return fmt.Errorf("session ended in state %s", ctrl.State())
}

// waitEnter blocks until the user presses Enter or ctx is cancelled.
func waitEnter(ctx context.Context, in *bufio.Reader) error {
	lines := make(chan error, 1)
	go func() {
		_, err := in.ReadString('\n')
		lines <- err
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-lines:
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}
		return nil
	}
}

// buildSTT assembles the sticky failover chain: the streaming cloud
// transcriber first, the on-device recognizer as fallback.
func buildSTT(cfg *config.Config) (stt.Provider, error) {
	var primary stt.Provider
	primaryName := cfg.Providers.STT.Name

	switch primaryName {
	case "", "deepgram":
		primaryName = "deepgram"
		apiKey := cfg.Providers.STT.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("DEEPGRAM_API_KEY")
		}
		var opts []deepgram.Option
		if cfg.Providers.STT.Model != "" {
			opts = append(opts, deepgram.WithModel(cfg.Providers.STT.Model))
		}
		if cfg.Providers.STT.Language != "" {
			opts = append(opts, deepgram.WithLanguage(cfg.Providers.STT.Language))
		}
		if cfg.Audio.SampleRate != 0 {
			opts = append(opts, deepgram.WithSampleRate(cfg.Audio.SampleRate))
		}
		p, err := deepgram.New(apiKey, opts...)
		if err != nil {
			return nil, err
		}
		primary = p
	case "whisper":
		p, err := whisper.New(cfg.Providers.STT.Model, whisper.WithLanguage(cfg.Providers.STT.Language))
		if err != nil {
			return nil, err
		}
		primary = p
	default:
		return nil, fmt.Errorf("unknown stt provider %q", primaryName)
	}

	chain := resilience.NewSTTFailover(primary, primaryName)
	if cfg.Providers.STTFallback.Name == "whisper" {
		fb, err := whisper.New(cfg.Providers.STTFallback.Model,
			whisper.WithLanguage(cfg.Providers.STTFallback.Language))
		if err != nil {
			slog.Warn("on-device recognizer unavailable, running without STT fallback", "err", err)
		} else {
			chain.AddFallback("whisper", fb)
		}
	}
	return chain, nil
}

// buildNarrator assembles the non-sticky synthesis chain and the audio
// player. The backend voice endpoint is primary; espeak covers offline runs.
func buildNarrator(cfg *config.Config) (*session.Narrator, error) {
	var primary tts.Synthesizer
	primaryName := cfg.Providers.TTS.Name

	switch primaryName {
	case "", "aura":
		primaryName = "aura"
		var opts []aura.Option
		if cfg.Providers.TTS.Model != "" {
			opts = append(opts, aura.WithVoice(cfg.Providers.TTS.Model))
		}
		p, err := aura.New(cfg.Server.BaseURL, opts...)
		if err != nil {
			return nil, err
		}
		primary = p
	case "espeak":
		var opts []espeak.Option
		if cfg.Providers.TTS.Rate > 0 {
			opts = append(opts, espeak.WithRate(cfg.Providers.TTS.Rate))
		}
		p, err := espeak.New(opts...)
		if err != nil {
			return nil, err
		}
		primary = p
	default:
		return nil, fmt.Errorf("unknown tts provider %q", primaryName)
	}

	chain := resilience.NewNarratorFailover(primary, primaryName)
	if cfg.Providers.TTSFallback.Name == "espeak" {
		var opts []espeak.Option
		if cfg.Providers.TTSFallback.Rate > 0 {
			opts = append(opts, espeak.WithRate(cfg.Providers.TTSFallback.Rate))
		}
		fb, err := espeak.New(opts...)
		if err != nil {
			slog.Warn("on-device synthesizer unavailable, running without TTS fallback", "err", err)
		} else {
			chain.AddFallback("espeak", fb)
		}
	}

	play, err := player.New()
	if err != nil {
		slog.Warn("no audio player found, narration will be silent when using the cloud voice", "err", err)
		return session.NewNarrator(chain, nil, nil), nil
	}
	return session.NewNarrator(chain, play, nil), nil
}

// buildBodyCapture wires the configured strategy to the webcam. No landmark
// model ships with the binary, so the landmark strategy falls back to photo
// capture here; it remains available to programs that embed the bodylang
// package with their own model.
func buildBodyCapture(cfg *config.Config) bodylang.Strategy {
	strategy := cfg.Camera.Strategy
	if strategy == config.CameraOff {
		return nil
	}
	if strategy == config.CameraLandmark {
		slog.Warn("landmark tracking requires an embedded model, using photo capture instead")
	}

	opener := &mjpeg.Opener{URL: cfg.Camera.MJPEGURL}
	return bodylang.NewPhotoStrategy(opener, bodylang.PhotoConfig{
		WarmupDelay:     time.Duration(cfg.Camera.WarmupMs) * time.Millisecond,
		CaptureInterval: time.Duration(cfg.Camera.IntervalMs) * time.Millisecond,
		MaxPhotos:       cfg.Camera.MaxPhotos,
	}, nil)
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	slog.Info("metrics endpoint listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Warn("metrics endpoint stopped", "err", err)
	}
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
