package bodylang

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"log/slog"
	"sync"
	"time"

	"github.com/parakeetlabs/rehearse/pkg/camera"
)

const captureIssueKind = "capture"

// PhotoConfig tunes the periodic-photo strategy. Zero values take the listed
// defaults.
type PhotoConfig struct {
	WarmupDelay     time.Duration // before the first capture; default 2s
	CaptureInterval time.Duration // between captures; default 5s
	MaxPhotos       int           // retained window; default 12
	TargetWidth     int           // downscale width in pixels; default 320
	JPEGQuality     int           // default 70

	Acquire camera.AcquireConfig
}

func (c *PhotoConfig) applyDefaults() {
	if c.WarmupDelay <= 0 {
		c.WarmupDelay = 2 * time.Second
	}
	if c.CaptureInterval <= 0 {
		c.CaptureInterval = 5 * time.Second
	}
	if c.MaxPhotos <= 0 {
		c.MaxPhotos = 12
	}
	if c.TargetWidth <= 0 {
		c.TargetWidth = 320
	}
	if c.JPEGQuality <= 0 {
		c.JPEGQuality = 70
	}
}

// PhotoStrategy captures a downscaled, mirrored JPEG still on a fixed
// interval, keeping only the most recent window for submission. No live
// face metrics are derived; the stills are analyzed server side.
type PhotoStrategy struct {
	cfg    PhotoConfig
	opener camera.Opener
	log    *slog.Logger
	clock  func() time.Time

	issues *issueLog

	mu      sync.Mutex
	src     camera.FrameSource
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
	metrics Metrics
	photos  []Photo
}

var _ Strategy = (*PhotoStrategy)(nil)

// NewPhotoStrategy builds the periodic-photo strategy.
func NewPhotoStrategy(opener camera.Opener, cfg PhotoConfig, log *slog.Logger) *PhotoStrategy {
	cfg.applyDefaults()
	if log == nil {
		log = slog.Default()
	}
	return &PhotoStrategy{
		cfg:    cfg,
		opener: opener,
		log:    log,
		clock:  time.Now,
		issues: newIssueLog(nil),
	}
}

// Start acquires the camera and schedules captures: the first after the
// warm-up delay, then one per interval. Camera failure degrades silently.
func (s *PhotoStrategy) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	src, err := camera.Acquire(ctx, s.opener, s.cfg.Acquire)
	if err != nil {
		s.log.Warn("camera unavailable, photo capture disabled", "error", err)
		s.metrics.CameraActive = false
		s.metrics.Err = err
		return
	}

	s.src = src
	s.metrics.CameraActive = true
	s.metrics.Err = nil
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.running = true
	go s.loop(ctx, src, s.stopCh, s.doneCh)
}

func (s *PhotoStrategy) loop(ctx context.Context, src camera.FrameSource, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	warmup := time.NewTimer(s.cfg.WarmupDelay)
	defer warmup.Stop()
	select {
	case <-stop:
		return
	case <-ctx.Done():
		return
	case <-warmup.C:
	}
	s.CaptureOnce(ctx, src)

	ticker := time.NewTicker(s.cfg.CaptureInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.CaptureOnce(ctx, src)
		}
	}
}

// CaptureOnce grabs a frame, downscales and mirrors it, encodes it as JPEG
// and appends it to the bounded retention window. Grab or encode failures
// are skipped; the next tick tries again.
func (s *PhotoStrategy) CaptureOnce(ctx context.Context, src camera.FrameSource) {
	img, err := src.Grab(ctx)
	if err != nil {
		return
	}

	scaled := mirrorAndScale(img, s.cfg.TargetWidth)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: s.cfg.JPEGQuality}); err != nil {
		s.log.Warn("photo encode failed", "error", err)
		return
	}

	at := s.clock()
	s.mu.Lock()
	s.photos = append(s.photos, Photo{At: at, JPEG: buf.Bytes()})
	if len(s.photos) > s.cfg.MaxPhotos {
		s.photos = s.photos[len(s.photos)-s.cfg.MaxPhotos:]
	}
	n := len(s.photos)
	s.mu.Unlock()

	s.issues.add(at, captureIssueKind, "snapshot captured")
	s.log.Debug("photo captured", "retained", n)
}

// mirrorAndScale downscales img to targetWidth preserving aspect ratio and
// flips it horizontally, matching what the interviewee sees in a mirror
// preview. Nearest-neighbor sampling; the stills feed coarse server-side
// analysis, not display.
func mirrorAndScale(img image.Image, targetWidth int) image.Image {
	b := img.Bounds()
	srcW, srcH := b.Dx(), b.Dy()
	if srcW == 0 || srcH == 0 {
		return img
	}
	w := targetWidth
	if w > srcW {
		w = srcW
	}
	h := srcH * w / srcW
	if h == 0 {
		h = 1
	}

	out := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		sy := b.Min.Y + y*srcH/h
		for x := 0; x < w; x++ {
			sx := b.Min.X + (w-1-x)*srcW/w
			out.Set(x, y, img.At(sx, sy))
		}
	}
	return out
}

// Stop halts the capture loop and releases the camera. Idempotent.
func (s *PhotoStrategy) Stop() {
	s.mu.Lock()
	if !s.running {
		src := s.src
		s.src = nil
		s.mu.Unlock()
		if src != nil {
			_ = src.Close()
		}
		return
	}
	s.running = false
	close(s.stopCh)
	done := s.doneCh
	src := s.src
	s.src = nil
	s.mu.Unlock()

	<-done
	if src != nil {
		_ = src.Close()
	}

	s.mu.Lock()
	s.metrics.CameraActive = false
	s.mu.Unlock()
}

// Metrics reports camera liveness only; this strategy derives no live face
// signals.
func (s *PhotoStrategy) Metrics() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics
}

// Issues returns one capture event per retained photo attempt.
func (s *PhotoStrategy) Issues() []Issue {
	return s.issues.snapshot()
}

// Aggregate returns the retained photo window. Score fields stay zero.
func (s *PhotoStrategy) Aggregate() Aggregate {
	s.mu.Lock()
	defer s.mu.Unlock()
	photos := make([]Photo, len(s.photos))
	copy(photos, s.photos)
	return Aggregate{
		PostureCounts: map[string]int{},
		GazeCounts:    map[string]int{},
		SampleCount:   len(photos),
		Photos:        photos,
	}
}

// Reset discards the photo window and issue log for the next turn.
func (s *PhotoStrategy) Reset() {
	s.mu.Lock()
	s.photos = nil
	s.mu.Unlock()
	s.issues.reset()
}
