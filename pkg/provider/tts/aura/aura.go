// Package aura provides the cloud TTS backend: it requests synthesized
// narration audio from the coaching backend's speak endpoint, which proxies
// Deepgram's Aura voices. It implements the tts.Synthesizer interface.
package aura

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	speakPath      = "/interviews/speak"
	defaultVoice   = "aura-asteria-en"
	defaultTimeout = 30 * time.Second

	// maxAudioBytes bounds the response body read.
	maxAudioBytes = 32 << 20
)

// Option is a functional option for configuring the Synthesizer.
type Option func(*Synthesizer)

// WithVoice sets the Aura voice model (e.g., "aura-asteria-en").
func WithVoice(voice string) Option {
	return func(s *Synthesizer) { s.voice = voice }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Synthesizer) { s.client.Timeout = d }
}

// WithHTTPClient overrides the HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Synthesizer) { s.client = c }
}

// Synthesizer requests narration audio from the backend speak endpoint.
type Synthesizer struct {
	baseURL string
	voice   string
	client  *http.Client
}

// New creates a Synthesizer targeting the backend at baseURL.
func New(baseURL string, opts ...Option) (*Synthesizer, error) {
	if baseURL == "" {
		return nil, errors.New("aura: baseURL must not be empty")
	}
	s := &Synthesizer{
		baseURL: strings.TrimRight(baseURL, "/"),
		voice:   defaultVoice,
		client:  &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// speakRequest is the JSON body posted to the speak endpoint.
type speakRequest struct {
	Text  string `json:"text"`
	Model string `json:"model,omitempty"`
}

// Synthesize posts the text and returns the audio bytes from the response.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("aura: text must not be empty")
	}

	body, err := json.Marshal(speakRequest{Text: text, Model: s.voice})
	if err != nil {
		return nil, fmt.Errorf("aura: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+speakPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("aura: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("aura: speak request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("aura: speak returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		return nil, fmt.Errorf("aura: read audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, errors.New("aura: speak returned empty audio")
	}
	return audio, nil
}
