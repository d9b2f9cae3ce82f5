// Package mock provides scripted stt.Provider and stt.SessionHandle
// implementations for tests.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/parakeetlabs/rehearse/pkg/provider/stt"
)

// Compile-time interface assertions.
var (
	_ stt.Provider      = (*Provider)(nil)
	_ stt.SessionHandle = (*Session)(nil)
)

// Provider is a scripted STT provider.
type Provider struct {
	// StartErr, when non-nil, is returned by every StartStream call. Used to
	// drive the failover path.
	StartErr error

	mu       sync.Mutex
	sessions []*Session
	starts   int
}

// StartStream returns a fresh scripted session, or StartErr if set.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.starts++
	if p.StartErr != nil {
		return nil, p.StartErr
	}
	s := NewSession()
	p.sessions = append(p.sessions, s)
	return s, nil
}

// Starts reports how many times StartStream was called.
func (p *Provider) Starts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.starts
}

// Sessions returns every session handed out, in order.
func (p *Provider) Sessions() []*Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Session(nil), p.sessions...)
}

// Session is a scripted transcription session. Tests push events with
// EmitPartial and EmitFinal.
type Session struct {
	partials chan stt.Transcript
	finals   chan stt.Transcript

	mu     sync.Mutex
	closed bool
	audio  [][]byte
}

// NewSession creates an open scripted session.
func NewSession() *Session {
	return &Session{
		partials: make(chan stt.Transcript, 64),
		finals:   make(chan stt.Transcript, 64),
	}
}

func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("mock: session is closed")
	}
	s.audio = append(s.audio, append([]byte(nil), chunk...))
	return nil
}

func (s *Session) Partials() <-chan stt.Transcript { return s.partials }
func (s *Session) Finals() <-chan stt.Transcript   { return s.finals }

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.partials)
	close(s.finals)
	return nil
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// AudioChunks returns the chunks received via SendAudio.
func (s *Session) AudioChunks() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.audio...)
}

// EmitPartial pushes an interim transcript event.
func (s *Session) EmitPartial(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.partials <- stt.Transcript{Text: text}
}

// EmitFinal pushes a committed transcript event.
func (s *Session) EmitFinal(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.finals <- stt.Transcript{Text: text, IsFinal: true, Confidence: 1}
}
