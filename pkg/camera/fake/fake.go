// Package fake provides a scripted camera frame source for tests.
package fake

import (
	"context"
	"errors"
	"image"
	"sync"

	"github.com/parakeetlabs/rehearse/pkg/camera"
)

// Compile-time interface assertions.
var (
	_ camera.Opener      = (*Opener)(nil)
	_ camera.FrameSource = (*Source)(nil)
)

// Opener hands out a pre-constructed Source, optionally failing first.
type Opener struct {
	// Source is the source returned by Open. A nil Source with FailOpen false
	// yields an empty (never-ready) source.
	Source *Source

	// FailOpen makes Open return an error.
	FailOpen bool
}

func (o *Opener) Open(ctx context.Context) (camera.FrameSource, error) {
	if o.FailOpen {
		return nil, errors.New("fake: camera unavailable")
	}
	if o.Source == nil {
		o.Source = &Source{}
	}
	return o.Source, nil
}

// Source is a scripted frame source. Tests install frames with SetFrame;
// until then Grab reports camera.ErrNotReady. NotReadyGrabs counts the probes
// made before the first frame, so backoff behaviour can be asserted.
type Source struct {
	mu           sync.Mutex
	frame        image.Image
	closed       bool
	notReadyGrab int
}

// SetFrame installs the frame returned by subsequent Grab calls.
func (s *Source) SetFrame(img image.Image) {
	s.mu.Lock()
	s.frame = img
	s.mu.Unlock()
}

func (s *Source) Grab(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.New("fake: source is closed")
	}
	if s.frame == nil {
		s.notReadyGrab++
		return nil, camera.ErrNotReady
	}
	return s.frame, nil
}

func (s *Source) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Closed reports whether Close has been called.
func (s *Source) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// NotReadyGrabs reports how many Grab calls saw no frame.
func (s *Source) NotReadyGrabs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notReadyGrab
}
