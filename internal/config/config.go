// Package config provides the configuration schema and loader for the
// rehearse interview client.
package config

// LogLevel controls log verbosity for the client.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// CameraStrategy selects the body-language capture mode.
type CameraStrategy string

const (
	// CameraLandmark runs continuous face/pose landmark tracking.
	CameraLandmark CameraStrategy = "landmark"

	// CameraPhoto captures periodic stills for server-side analysis.
	CameraPhoto CameraStrategy = "photo"

	// CameraOff disables body-language capture entirely.
	CameraOff CameraStrategy = "off"
)

// IsValid reports whether s is a recognised camera strategy.
func (s CameraStrategy) IsValid() bool {
	switch s {
	case CameraLandmark, CameraPhoto, CameraOff:
		return true
	}
	return false
}

// Config is the root configuration structure for the client.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Interview InterviewConfig `yaml:"interview"`
	Providers ProvidersConfig `yaml:"providers"`
	Audio     AudioConfig     `yaml:"audio"`
	Voice     VoiceConfig     `yaml:"voice"`
	Camera    CameraConfig    `yaml:"camera"`
	Observe   ObserveConfig   `yaml:"observe"`
}

// ServerConfig holds the backend endpoint and logging settings.
type ServerConfig struct {
	// BaseURL is the interview backend root (e.g., "http://localhost:8000").
	BaseURL string `yaml:"base_url"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// InterviewConfig identifies the session and its durable state.
type InterviewConfig struct {
	// ID is the interview to run. May be overridden on the command line.
	ID string `yaml:"id"`

	// StateFile is where the in-progress session position is persisted so a
	// restart can resume. Empty means a per-user default next to the config.
	StateFile string `yaml:"state_file"`

	// AttachAudio uploads the FLAC recording of each answer when true.
	AttachAudio bool `yaml:"attach_audio"`
}

// ProvidersConfig declares the primary and fallback implementation for each
// speech direction.
type ProvidersConfig struct {
	STT         ProviderEntry `yaml:"stt"`
	STTFallback ProviderEntry `yaml:"stt_fallback"`
	TTS         ProviderEntry `yaml:"tts"`
	TTSFallback ProviderEntry `yaml:"tts_fallback"`
}

// ProviderEntry is the common configuration block shared by all provider
// types.
type ProviderEntry struct {
	// Name selects the implementation (e.g., "deepgram", "whisper", "aura",
	// "espeak").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// Model selects a specific model within the provider (e.g., "nova-3",
	// a whisper ggml file path, or an aura voice name).
	Model string `yaml:"model"`

	// Language is the transcription language hint (e.g., "en").
	Language string `yaml:"language"`

	// Rate is the speaking rate in words per minute for on-device synthesis.
	Rate int `yaml:"rate"`
}

// AudioConfig tunes microphone capture and the level monitor.
type AudioConfig struct {
	// SampleRate for all capture streams. Default 16000.
	SampleRate int `yaml:"sample_rate"`

	// ChunkMs is the cadence at which encoded audio is fed to the streaming
	// transcriber. Default 250.
	ChunkMs int `yaml:"chunk_ms"`

	// SpeechThreshold is the normalized level above which the interviewee
	// counts as speaking. Default 0.08.
	SpeechThreshold float64 `yaml:"speech_threshold"`

	// Calibration divides the raw level before clamping to [0,1]. Default 0.2.
	Calibration float64 `yaml:"calibration"`
}

// VoiceConfig tunes the per-answer fluency computation.
type VoiceConfig struct {
	// PauseThresholdMs is the minimum silence that counts as a pause.
	// Default 1500.
	PauseThresholdMs int `yaml:"pause_threshold_ms"`

	// FillerWords overrides the built-in filler lexicon when non-empty.
	FillerWords []string `yaml:"filler_words"`
}

// CameraConfig selects and tunes body-language capture.
type CameraConfig struct {
	// Strategy picks the capture mode. Default "photo".
	Strategy CameraStrategy `yaml:"strategy"`

	// MJPEGURL is the webcam's MJPEG stream endpoint.
	MJPEGURL string `yaml:"mjpeg_url"`

	// WarmupMs delays the first photo capture. Default 2000.
	WarmupMs int `yaml:"warmup_ms"`

	// IntervalMs is the photo capture cadence. Default 5000.
	IntervalMs int `yaml:"interval_ms"`

	// MaxPhotos bounds the retained photo window. Default 12.
	MaxPhotos int `yaml:"max_photos"`
}

// ObserveConfig configures the metrics endpoint.
type ObserveConfig struct {
	// MetricsAddr is the Prometheus scrape address (e.g., ":9464").
	// Empty disables the endpoint.
	MetricsAddr string `yaml:"metrics_addr"`
}
