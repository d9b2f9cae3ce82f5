// Package espeak provides the on-device TTS fallback: it shells out to the
// platform speech synthesizer (espeak-ng on Linux, say on macOS) and blocks
// until the utterance finishes. It implements the tts.Synthesizer interface.
//
// Because the platform binary plays audio itself, Synthesize returns nil
// bytes on success; callers must not expect an encoded payload from this
// backend.
package espeak

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
)

// defaultRate is the speaking rate in words per minute for espeak-ng.
const defaultRate = 160

// Option is a functional option for configuring the Synthesizer.
type Option func(*Synthesizer)

// WithRate sets the speaking rate in words per minute.
func WithRate(wpm int) Option {
	return func(s *Synthesizer) {
		if wpm > 0 {
			s.rate = wpm
		}
	}
}

// WithBinary overrides the synthesizer binary, mainly for tests.
func WithBinary(path string) Option {
	return func(s *Synthesizer) { s.binary = path }
}

// Synthesizer speaks text through a platform synthesizer subprocess.
type Synthesizer struct {
	binary string
	rate   int
}

// New creates a Synthesizer, locating the platform binary on PATH. Returns an
// error when no synthesizer is installed so the caller can skip registering
// the fallback.
func New(opts ...Option) (*Synthesizer, error) {
	s := &Synthesizer{rate: defaultRate}
	for _, o := range opts {
		o(s)
	}
	if s.binary == "" {
		binary, err := locateBinary()
		if err != nil {
			return nil, err
		}
		s.binary = binary
	}
	return s, nil
}

// locateBinary finds the platform speech binary on PATH.
func locateBinary() (string, error) {
	var candidates []string
	if runtime.GOOS == "darwin" {
		candidates = []string{"say"}
	} else {
		candidates = []string{"espeak-ng", "espeak"}
	}
	for _, c := range candidates {
		if path, err := exec.LookPath(c); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("espeak: no speech synthesizer found on PATH (tried %s)",
		strings.Join(candidates, ", "))
}

// Synthesize speaks the text aloud, blocking until the utterance ends or ctx
// is cancelled. The returned byte slice is always nil on this backend.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("espeak: text must not be empty")
	}

	var args []string
	if strings.HasSuffix(s.binary, "say") {
		// macOS say: rate flag is -r.
		args = []string{"-r", strconv.Itoa(s.rate), text}
	} else {
		args = []string{"-s", strconv.Itoa(s.rate), text}
	}

	cmd := exec.CommandContext(ctx, s.binary, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("espeak: %s: %w (%s)", s.binary, err, strings.TrimSpace(string(out)))
	}
	return nil, nil
}
