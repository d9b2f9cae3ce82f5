// Package whisper provides an on-device STT provider backed by the
// whisper.cpp CGO bindings. It is the fallback recognizer engaged when the
// streaming cloud service cannot be reached: no network, no credentials, just
// a local model file.
//
// whisper.cpp is a batch engine, not a streaming one, so the session buffers
// speech audio and flushes it through inference whenever a run of silence is
// detected (or the buffer grows past a cap). Each flush produces one final
// transcript event; true low-latency interims are not available on this path.
//
// The whisper.cpp static library (libwhisper.a) and headers must be available
// at link time via LIBRARY_PATH and C_INCLUDE_PATH.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/parakeetlabs/rehearse/pkg/provider/stt"
)

const (
	defaultLanguage   = "en"
	defaultSampleRate = 16000

	// bitsPerSample is fixed at 16 for the signed little-endian PCM the
	// pipeline produces.
	bitsPerSample = 16

	// defaultRMSThreshold is the root-mean-square energy (in 16-bit PCM
	// units) below which a chunk counts as silence for flush detection.
	defaultRMSThreshold = 300.0

	// defaultSilenceThresholdMs is the consecutive-silence duration that
	// triggers a flush of the buffered speech to inference.
	defaultSilenceThresholdMs = 700

	// defaultMaxBufferDurationMs caps the buffered audio before a forced
	// flush, bounding inference latency for long uninterrupted answers.
	defaultMaxBufferDurationMs = 15000
)

// Compile-time interface assertions.
var (
	_ stt.Provider      = (*Provider)(nil)
	_ stt.SessionHandle = (*session)(nil)
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithLanguage sets the language code for transcription (e.g., "en", "de").
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithSampleRate sets the expected PCM sample rate in Hz. Must match the
// audio delivered via SendAudio. Defaults to 16000.
func WithSampleRate(rate int) Option {
	return func(p *Provider) { p.sampleRate = rate }
}

// WithSilenceThresholdMs sets the consecutive-silence duration (ms) that
// flushes the speech buffer to inference.
func WithSilenceThresholdMs(ms int) Option {
	return func(p *Provider) { p.silenceThresholdMs = ms }
}

// WithMaxBufferDurationMs sets the maximum buffered audio duration (ms)
// before a forced flush.
func WithMaxBufferDurationMs(ms int) Option {
	return func(p *Provider) { p.maxBufferDurationMs = ms }
}

// Provider implements stt.Provider using a local whisper.cpp model. The model
// is loaded once and shared across sessions; each session creates its own
// inference context.
type Provider struct {
	model    whisperlib.Model
	language string

	sampleRate          int
	silenceThresholdMs  int
	maxBufferDurationMs int
}

// New loads the whisper.cpp model from modelPath. The caller must call Close
// when the provider is no longer needed.
func New(modelPath string, opts ...Option) (*Provider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	p := &Provider{
		model:               model,
		language:            defaultLanguage,
		sampleRate:          defaultSampleRate,
		silenceThresholdMs:  defaultSilenceThresholdMs,
		maxBufferDurationMs: defaultMaxBufferDurationMs,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model.
func (p *Provider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// StartStream opens a new transcription session.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: context already cancelled: %w", err)
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	sr := cfg.SampleRate
	if sr <= 0 {
		sr = p.sampleRate
	}
	ch := cfg.Channels
	if ch <= 0 {
		ch = 1
	}

	s := &session{
		model:               p.model,
		language:            lang,
		sampleRate:          sr,
		channels:            ch,
		silenceThresholdMs:  p.silenceThresholdMs,
		maxBufferDurationMs: p.maxBufferDurationMs,

		audioCh:  make(chan []byte, 256),
		partials: make(chan stt.Transcript, 64),
		finals:   make(chan stt.Transcript, 64),
		done:     make(chan struct{}),
	}

	s.wg.Add(1)
	go s.processLoop(ctx)

	return s, nil
}

// session is a live whisper transcription session. All buffering and silence
// state is confined to the processLoop goroutine.
type session struct {
	model               whisperlib.Model
	language            string
	sampleRate          int
	channels            int
	silenceThresholdMs  int
	maxBufferDurationMs int

	audioCh  chan []byte
	partials chan stt.Transcript
	finals   chan stt.Transcript

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// SendAudio queues a chunk of raw 16-bit little-endian PCM for buffering.
func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return errors.New("whisper: session is closed")
	default:
	}
	select {
	case s.audioCh <- chunk:
		return nil
	case <-s.done:
		return errors.New("whisper: session is closed")
	}
}

// Partials returns the channel of interim transcripts. The whisper path emits
// at most one partial per flush, immediately before the matching final.
func (s *session) Partials() <-chan stt.Transcript { return s.partials }

// Finals returns the channel of committed transcripts.
func (s *session) Finals() <-chan stt.Transcript { return s.finals }

// Close terminates the session, flushing any buffered speech through
// inference first. Repeated calls are no-ops.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
	return nil
}

// processLoop is the single goroutine responsible for silence detection,
// buffering, and inference dispatch.
func (s *session) processLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.partials)
	defer close(s.finals)

	var (
		buffer    []byte
		hadSpeech bool
		silenceMs int
	)

	bytesPerMs := s.sampleRate * s.channels * (bitsPerSample / 8) / 1000
	if bytesPerMs <= 0 {
		bytesPerMs = 32
	}
	maxBufferBytes := s.maxBufferDurationMs * bytesPerMs

	flush := func() {
		if len(buffer) == 0 || !hadSpeech {
			buffer = nil
			hadSpeech = false
			silenceMs = 0
			return
		}

		pcm := buffer
		buffer = nil
		hadSpeech = false
		silenceMs = 0

		text, err := s.infer(pcm)
		if err != nil {
			slog.Error("whisper inference failed", "error", err)
			return
		}
		if text == "" {
			return
		}

		select {
		case s.partials <- stt.Transcript{Text: text}:
		default:
		}
		select {
		case s.finals <- stt.Transcript{Text: text, IsFinal: true}:
		default:
		}
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case <-s.done:
			flush()
			return

		case chunk := <-s.audioCh:
			chunkMs := len(chunk) / bytesPerMs

			if rms(chunk) < defaultRMSThreshold {
				if hadSpeech {
					silenceMs += chunkMs
					buffer = append(buffer, chunk...)
					if silenceMs >= s.silenceThresholdMs {
						flush()
					}
				}
			} else {
				hadSpeech = true
				silenceMs = 0
				buffer = append(buffer, chunk...)
				if maxBufferBytes > 0 && len(buffer) >= maxBufferBytes {
					flush()
				}
			}
		}
	}
}

// infer converts buffered PCM to float32 mono, runs whisper.cpp inference on
// a fresh context, and returns the concatenated segment text. Contexts are
// not thread-safe, but the shared model is.
func (s *session) infer(pcm []byte) (string, error) {
	samples := pcmToFloat32Mono(pcm, s.channels)

	wctx, err := s.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}

	if err := wctx.SetLanguage(s.language); err != nil {
		slog.Warn("whisper: failed to set language, using default",
			"language", s.language, "error", err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, " "), nil
}

// rms computes the root-mean-square energy of a 16-bit PCM chunk.
func rms(chunk []byte) float64 {
	n := len(chunk) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := int16(chunk[i*2]) | int16(chunk[i*2+1])<<8
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(n))
}

// pcmToFloat32Mono converts interleaved 16-bit PCM to float32 in [-1, 1],
// downmixing to mono by channel averaging.
func pcmToFloat32Mono(pcm []byte, channels int) []float32 {
	if channels <= 0 {
		channels = 1
	}
	frames := len(pcm) / 2 / channels
	out := make([]float32, frames)
	for f := 0; f < frames; f++ {
		var acc float64
		for c := 0; c < channels; c++ {
			i := (f*channels + c) * 2
			s := int16(pcm[i]) | int16(pcm[i+1])<<8
			acc += float64(s)
		}
		out[f] = float32(acc / float64(channels) / 32768.0)
	}
	return out
}
