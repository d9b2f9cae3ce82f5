package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt": {"deepgram", "whisper"},
	"tts": {"aura", "espeak"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.BaseURL == "" {
		errs = append(errs, errors.New("server.base_url is required"))
	} else if u, err := url.Parse(cfg.Server.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("server.base_url %q is not an absolute URL", cfg.Server.BaseURL))
	}
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("stt", cfg.Providers.STTFallback.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("tts", cfg.Providers.TTSFallback.Name)

	if cfg.Providers.STT.Name == "deepgram" && cfg.Providers.STT.APIKey == "" {
		slog.Warn("providers.stt.api_key is empty; streaming transcription will fail over to the on-device recognizer")
	}
	if cfg.Providers.STTFallback.Name == "whisper" && cfg.Providers.STTFallback.Model == "" {
		errs = append(errs, errors.New("providers.stt_fallback.model (ggml model path) is required when the fallback is whisper"))
	}

	if cfg.Audio.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must not be negative", cfg.Audio.SampleRate))
	}
	if cfg.Audio.SpeechThreshold < 0 || cfg.Audio.SpeechThreshold > 1 {
		errs = append(errs, fmt.Errorf("audio.speech_threshold %.3f is out of range [0, 1]", cfg.Audio.SpeechThreshold))
	}
	if cfg.Voice.PauseThresholdMs < 0 {
		errs = append(errs, fmt.Errorf("voice.pause_threshold_ms %d must not be negative", cfg.Voice.PauseThresholdMs))
	}

	if cfg.Camera.Strategy != "" && !cfg.Camera.Strategy.IsValid() {
		errs = append(errs, fmt.Errorf("camera.strategy %q is invalid; valid values: landmark, photo, off", cfg.Camera.Strategy))
	}
	if cfg.Camera.Strategy != CameraOff && cfg.Camera.Strategy != "" && cfg.Camera.MJPEGURL == "" {
		slog.Warn("camera.mjpeg_url is empty; body-language capture will run degraded",
			"strategy", cfg.Camera.Strategy)
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
