// Package camera defines the webcam frame source abstraction used by the
// body-language capture strategies.
//
// A FrameSource yields decoded still frames on demand. Sources are typically
// slow to warm up (the device needs a moment before it produces frames), so
// Acquire wraps the open-and-first-frame handshake with bounded retries.
package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"
)

// ErrNotReady is returned by Grab while the source has not yet produced a
// usable frame.
var ErrNotReady = errors.New("camera: source not ready")

// FrameSource is one open camera stream.
type FrameSource interface {
	// Grab returns the most recent frame. Returns ErrNotReady while the device
	// is still warming up.
	Grab(ctx context.Context) (image.Image, error)

	// Close releases the camera. Close is idempotent.
	Close() error
}

// Opener opens a FrameSource. Implementations: the mjpeg subpackage for
// networked cameras, the fake subpackage for tests.
type Opener interface {
	Open(ctx context.Context) (FrameSource, error)
}

// AcquireConfig bounds the open-and-warm-up handshake performed by Acquire.
type AcquireConfig struct {
	// MaxAttempts is the number of Grab probes before giving up. Default: 10.
	MaxAttempts int

	// Backoff is the initial delay between probes; it doubles per attempt up
	// to MaxBackoff. Default: 200ms.
	Backoff time.Duration

	// MaxBackoff caps the probe delay. Default: 2s.
	MaxBackoff time.Duration
}

// Acquire opens the source and waits until it produces its first frame,
// retrying with exponential backoff. On failure the source is closed and an
// error is returned; the caller can continue with degraded metrics.
func Acquire(ctx context.Context, opener Opener, cfg AcquireConfig) (FrameSource, error) {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 200 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 2 * time.Second
	}

	src, err := opener.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("camera: open: %w", err)
	}

	backoff := cfg.Backoff
	for attempt := 1; ; attempt++ {
		_, err := src.Grab(ctx)
		if err == nil {
			return src, nil
		}
		if !errors.Is(err, ErrNotReady) {
			_ = src.Close()
			return nil, fmt.Errorf("camera: first frame: %w", err)
		}
		if attempt >= cfg.MaxAttempts {
			_ = src.Close()
			return nil, fmt.Errorf("camera: not ready after %d attempts: %w", attempt, err)
		}
		select {
		case <-ctx.Done():
			_ = src.Close()
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}
}
