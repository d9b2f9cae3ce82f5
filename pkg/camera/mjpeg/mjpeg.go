// Package mjpeg implements a camera frame source that reads an MJPEG stream
// over HTTP (the multipart/x-mixed-replace format served by IP webcams and
// by webcam bridge tools such as mjpg-streamer).
package mjpeg

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"mime"
	"mime/multipart"
	"net/http"
	"sync"

	"github.com/parakeetlabs/rehearse/pkg/camera"
)

// Compile-time interface assertions.
var (
	_ camera.Opener      = (*Opener)(nil)
	_ camera.FrameSource = (*source)(nil)
)

// Opener dials an MJPEG HTTP endpoint.
type Opener struct {
	// URL is the stream endpoint, e.g. "http://localhost:8081/stream".
	URL string

	// Client overrides the HTTP client. Nil uses a client with no overall
	// deadline, since the stream is long-lived.
	Client *http.Client
}

// Open connects to the stream and starts the background frame reader.
func (o *Opener) Open(ctx context.Context) (camera.FrameSource, error) {
	client := o.Client
	if client == nil {
		client = &http.Client{Timeout: 0}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("mjpeg: build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mjpeg: connect %q: %w", o.URL, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("mjpeg: connect %q: unexpected status %s", o.URL, resp.Status)
	}

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/x-mixed-replace" || params["boundary"] == "" {
		resp.Body.Close()
		return nil, fmt.Errorf("mjpeg: %q is not an MJPEG stream (content-type %q)", o.URL, resp.Header.Get("Content-Type"))
	}

	s := &source{
		body:   resp.Body,
		reader: multipart.NewReader(resp.Body, params["boundary"]),
		done:   make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

// source holds the latest decoded frame from the stream.
type source struct {
	body   interface{ Close() error }
	reader *multipart.Reader

	mu    sync.Mutex
	frame image.Image

	done      chan struct{}
	closeOnce sync.Once
}

// readLoop decodes JPEG parts as they arrive and keeps only the newest frame.
func (s *source) readLoop() {
	for {
		select {
		case <-s.done:
			return
		default:
		}
		part, err := s.reader.NextPart()
		if err != nil {
			return
		}
		img, err := jpeg.Decode(part)
		part.Close()
		if err != nil {
			continue
		}
		s.mu.Lock()
		s.frame = img
		s.mu.Unlock()
	}
}

// Grab returns the most recent frame, or camera.ErrNotReady before the first
// part has arrived.
func (s *source) Grab(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	select {
	case <-s.done:
		return nil, errors.New("mjpeg: source is closed")
	default:
	}
	s.mu.Lock()
	frame := s.frame
	s.mu.Unlock()
	if frame == nil {
		return nil, camera.ErrNotReady
	}
	return frame, nil
}

// Close terminates the stream. Safe to call more than once.
func (s *source) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.body.Close()
	})
	return nil
}
