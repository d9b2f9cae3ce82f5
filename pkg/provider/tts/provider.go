// Package tts defines the Synthesizer interface for text-to-speech backends
// used to narrate interview questions.
//
// Two backends exist: the aura subpackage requests synthesized audio from the
// coaching backend (which proxies a cloud voice service), and the espeak
// subpackage drives the platform's on-device synthesizer as a fallback. The
// narration fallback chain itself lives in internal/resilience.
package tts

import "context"

// Synthesizer is the abstraction over any TTS backend.
//
// Implementations must be safe for concurrent use.
type Synthesizer interface {
	// Synthesize converts text to playable audio and returns the encoded
	// bytes (WAV or MP3, backend-dependent). Backends that play audio
	// directly on the device (espeak) return a nil byte slice and block until
	// playback finishes.
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Player plays encoded audio bytes to the default output device, blocking
// until playback completes or ctx is cancelled.
type Player interface {
	Play(ctx context.Context, audio []byte) error
}
