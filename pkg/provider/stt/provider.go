// Package stt defines the Provider interface for speech-to-text backends.
//
// An STT provider wraps a transcription engine — the Deepgram streaming API or
// a local whisper.cpp model — behind a uniform streaming interface. The
// central abstraction is SessionHandle: once opened, a session accepts raw PCM
// audio chunks and emits two streams of Transcript values, low-latency interim
// guesses for the live caption and authoritative finals for the answer record.
//
// Implementations must be safe for concurrent use.
package stt

import "context"

// StreamConfig describes the audio format for a new transcription session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. The interview client captures
	// at 16000.
	SampleRate int

	// Channels is the number of audio channels. 1 = mono, which is what every
	// supported backend expects.
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g., "en-US").
	// Empty lets the provider use its default.
	Language string
}

// SessionHandle represents an open transcription session.
//
// Callers must call Close when the session is no longer needed; failing to do
// so leaks goroutines and network connections inside the provider. All methods
// are safe for concurrent use, and Close is idempotent.
type SessionHandle interface {
	// SendAudio delivers a chunk of raw 16-bit little-endian PCM to the
	// provider. Chunks should be short (the pipeline sends ~250ms) so interim
	// results stay responsive. Calling SendAudio after Close returns an error.
	SendAudio(chunk []byte) error

	// Partials emits interim transcripts. Each value replaces the previous
	// partial; partials must not be appended to the answer record. The channel
	// is closed when the session ends.
	Partials() <-chan Transcript

	// Finals emits committed transcripts. The channel is closed when the
	// session ends.
	Finals() <-chan Transcript

	// Close terminates the session, flushes pending audio, and releases the
	// socket or recognizer handle. Calling Close more than once is safe and
	// returns nil.
	Close() error
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// StartStream opens a new transcription session. The returned handle is
	// ready to accept audio immediately. Returns an error if the session
	// cannot be established (missing credentials, connection failure, or ctx
	// already cancelled).
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
