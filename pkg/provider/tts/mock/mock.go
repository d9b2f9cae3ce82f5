// Package mock provides scripted tts.Synthesizer and tts.Player
// implementations for tests.
package mock

import (
	"context"
	"sync"

	"github.com/parakeetlabs/rehearse/pkg/provider/tts"
)

// Compile-time interface assertions.
var (
	_ tts.Synthesizer = (*Synthesizer)(nil)
	_ tts.Player      = (*Player)(nil)
)

// Synthesizer records synthesize calls and returns scripted results.
type Synthesizer struct {
	// Audio is returned on success. Defaults to a short non-empty payload.
	Audio []byte

	// Err, when non-nil, is returned by every Synthesize call.
	Err error

	mu    sync.Mutex
	texts []string
}

func (s *Synthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	s.mu.Lock()
	s.texts = append(s.texts, text)
	s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	if s.Audio == nil {
		return []byte("audio"), nil
	}
	return s.Audio, nil
}

// Texts returns every text passed to Synthesize, in order.
func (s *Synthesizer) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

// Player records play calls and returns a scripted error.
type Player struct {
	// Err, when non-nil, is returned by every Play call.
	Err error

	mu    sync.Mutex
	plays int
}

func (p *Player) Play(ctx context.Context, audio []byte) error {
	p.mu.Lock()
	p.plays++
	p.mu.Unlock()
	return p.Err
}

// Plays reports how many times Play was called.
func (p *Player) Plays() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.plays
}
