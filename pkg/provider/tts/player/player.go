// Package player plays encoded narration audio through a platform audio
// utility (afplay on macOS, paplay/aplay/mpg123 on Linux). It implements the
// tts.Player interface.
package player

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/parakeetlabs/rehearse/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Player = (*ExecPlayer)(nil)

// ExecPlayer shells out to a platform utility to play audio bytes. The bytes
// are written to a temp file because the common utilities cannot reliably
// read every container format from a pipe.
type ExecPlayer struct {
	binary string
}

// New locates a playback utility on PATH.
func New() (*ExecPlayer, error) {
	var candidates []string
	if runtime.GOOS == "darwin" {
		candidates = []string{"afplay"}
	} else {
		candidates = []string{"mpg123", "paplay", "aplay", "ffplay"}
	}
	for _, c := range candidates {
		if path, err := exec.LookPath(c); err == nil {
			return &ExecPlayer{binary: path}, nil
		}
	}
	return nil, errors.New("player: no audio playback utility found on PATH")
}

// Play writes the audio to a temp file and plays it, blocking until playback
// completes or ctx is cancelled.
func (p *ExecPlayer) Play(ctx context.Context, audio []byte) error {
	if len(audio) == 0 {
		return errors.New("player: empty audio")
	}

	f, err := os.CreateTemp("", "rehearse-tts-*.audio")
	if err != nil {
		return fmt.Errorf("player: temp file: %w", err)
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(audio); err != nil {
		f.Close()
		return fmt.Errorf("player: write audio: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("player: close audio file: %w", err)
	}

	args := []string{f.Name()}
	if strings.HasSuffix(p.binary, "ffplay") {
		args = []string{"-nodisp", "-autoexit", "-loglevel", "quiet", f.Name()}
	}

	cmd := exec.CommandContext(ctx, p.binary, args...)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("player: %s: %w", p.binary, err)
	}
	return nil
}
