package bodylang

import (
	"context"
	"image"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/parakeetlabs/rehearse/pkg/camera"
)

// Landmarks holds the normalized face/pose points one frame yields. All
// coordinates are in [0,1] relative to the frame, origin top-left.
type Landmarks struct {
	NoseX, NoseY   float64
	LeftShoulderY  float64
	RightShoulderY float64
	FaceDetected   bool
}

// Landmarker extracts Landmarks from a frame. The concrete model is a
// deployment choice; tests use a scripted implementation.
type Landmarker interface {
	Detect(img image.Image) (Landmarks, error)
}

const (
	fidgetWindow = 30

	postureIssueKind    = "posture"
	eyeContactIssueKind = "eye_contact"
)

// LandmarkConfig tunes the continuous tracking strategy. Zero values take
// the listed defaults.
type LandmarkConfig struct {
	SampleInterval time.Duration // default 100ms

	// Gaze bands: the nose is "centered" when NoseX is within
	// [GazeCenterMin, GazeCenterMax] and NoseY is above GazeUpMax. Defaults:
	// 0.4, 0.6, 0.35.
	GazeCenterMin float64
	GazeCenterMax float64
	GazeUpMax     float64

	// ShoulderTilt is the vertical shoulder asymmetry above which posture is
	// reported as slouching. Default: 0.05.
	ShoulderTilt float64

	// FidgetScale rescales the smoothed nose displacement into [0,1].
	// Default: 12.
	FidgetScale float64

	// Throttle windows for issue events. Defaults: 2s posture, 3s eye contact.
	PostureIssueEvery    time.Duration
	EyeContactIssueEvery time.Duration

	Acquire camera.AcquireConfig
}

func (c *LandmarkConfig) applyDefaults() {
	if c.SampleInterval <= 0 {
		c.SampleInterval = 100 * time.Millisecond
	}
	if c.GazeCenterMin == 0 {
		c.GazeCenterMin = 0.4
	}
	if c.GazeCenterMax == 0 {
		c.GazeCenterMax = 0.6
	}
	if c.GazeUpMax == 0 {
		c.GazeUpMax = 0.35
	}
	if c.ShoulderTilt == 0 {
		c.ShoulderTilt = 0.05
	}
	if c.FidgetScale == 0 {
		c.FidgetScale = 12
	}
	if c.PostureIssueEvery <= 0 {
		c.PostureIssueEvery = 2 * time.Second
	}
	if c.EyeContactIssueEvery <= 0 {
		c.EyeContactIssueEvery = 3 * time.Second
	}
}

// LandmarkStrategy runs a face/pose landmark model over every sampled frame
// and derives gaze, posture and fidget signals.
type LandmarkStrategy struct {
	cfg        LandmarkConfig
	opener     camera.Opener
	landmarker Landmarker
	log        *slog.Logger
	clock      func() time.Time

	issues *issueLog

	mu      sync.Mutex
	src     camera.FrameSource
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool

	metrics Metrics

	prevNose    *Landmarks
	fidgetRing  []float64
	eyeRing     []float64
	sumEye      float64
	sumFidget   float64
	postureDist map[string]int
	gazeDist    map[string]int
	samples     int
}

var _ Strategy = (*LandmarkStrategy)(nil)

// NewLandmarkStrategy builds the continuous tracking strategy.
func NewLandmarkStrategy(opener camera.Opener, landmarker Landmarker, cfg LandmarkConfig, log *slog.Logger) *LandmarkStrategy {
	cfg.applyDefaults()
	if log == nil {
		log = slog.Default()
	}
	s := &LandmarkStrategy{
		cfg:        cfg,
		opener:     opener,
		landmarker: landmarker,
		log:        log,
		clock:      time.Now,
		issues: newIssueLog(map[string]time.Duration{
			postureIssueKind:    cfg.PostureIssueEvery,
			eyeContactIssueKind: cfg.EyeContactIssueEvery,
		}),
	}
	s.resetLocked()
	return s
}

// Start acquires the camera and begins the sampling loop. Camera failure
// degrades silently: metrics stay zeroed with CameraActive false and the
// turn proceeds without body-language signals.
func (s *LandmarkStrategy) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	src, err := camera.Acquire(ctx, s.opener, s.cfg.Acquire)
	if err != nil {
		s.log.Warn("camera unavailable, body-language capture disabled", "error", err)
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

func (s *LandmarkStrategy) loop(ctx context.Context, src camera.FrameSource, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.cfg.SampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		img, err := src.Grab(ctx)
		if err != nil {
			continue
		}
		lm, err := s.landmarker.Detect(img)
		if err != nil {
			continue
		}
		s.Observe(lm, s.clock())
	}
}

// Observe folds one frame's landmarks into the running signals. The sampling
// loop calls this on every frame; exported so the derivations are testable
// without timers.
func (s *LandmarkStrategy) Observe(lm Landmarks, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics.FaceDetected = lm.FaceDetected
	if !lm.FaceDetected {
		s.prevNose = nil
		return
	}

	gaze := s.gazeFrom(lm)
	posture := s.postureFrom(lm)
	fidget := s.fidgetFrom(lm)
	eye := 0.0
	if gaze == "center" {
		eye = 1.0
	}
	eye = s.pushRing(&s.eyeRing, eye)

	s.metrics.GazeDirection = gaze
	s.metrics.Posture = posture
	s.metrics.FidgetScore = fidget
	s.metrics.EyeContact = eye

	s.samples++
	s.sumEye += eye
	s.sumFidget += fidget
	s.postureDist[posture]++
	s.gazeDist[gaze]++

	if posture != "good" {
		s.issues.add(at, postureIssueKind, "slouching detected")
	}
	if eye < 0.3 {
		s.issues.add(at, eyeContactIssueKind, "looking away from camera")
	}
}

func (s *LandmarkStrategy) gazeFrom(lm Landmarks) string {
	switch {
	case lm.NoseY < s.cfg.GazeUpMax:
		return "up"
	case lm.NoseX < s.cfg.GazeCenterMin:
		return "left"
	case lm.NoseX > s.cfg.GazeCenterMax:
		return "right"
	default:
		return "center"
	}
}

func (s *LandmarkStrategy) postureFrom(lm Landmarks) string {
	tilt := lm.LeftShoulderY - lm.RightShoulderY
	if tilt < 0 {
		tilt = -tilt
	}
	if tilt > s.cfg.ShoulderTilt {
		return "slouching"
	}
	return "good"
}

func (s *LandmarkStrategy) fidgetFrom(lm Landmarks) float64 {
	var displacement float64
	if s.prevNose != nil {
		displacement = math.Hypot(lm.NoseX-s.prevNose.NoseX, lm.NoseY-s.prevNose.NoseY)
	}
	prev := lm
	s.prevNose = &prev

	smoothed := s.pushRing(&s.fidgetRing, displacement)
	score := smoothed * s.cfg.FidgetScale
	if score > 1 {
		score = 1
	}
	return score
}

// pushRing appends v to a rolling window of fidgetWindow samples and returns
// the window mean.
func (s *LandmarkStrategy) pushRing(ring *[]float64, v float64) float64 {
	*ring = append(*ring, v)
	if len(*ring) > fidgetWindow {
		*ring = (*ring)[1:]
	}
	var sum float64
	for _, x := range *ring {
		sum += x
	}
	return sum / float64(len(*ring))
}

// Stop halts the sampling loop and releases the camera. Safe to call
// repeatedly and in any state.
func (s *LandmarkStrategy) Stop() {
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

// Metrics returns the latest snapshot.
func (s *LandmarkStrategy) Metrics() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics
}

// Issues returns the throttled issue events recorded so far this turn.
func (s *LandmarkStrategy) Issues() []Issue {
	return s.issues.snapshot()
}

// Aggregate reduces the turn's samples to averages and distributions.
func (s *LandmarkStrategy) Aggregate() Aggregate {
	s.mu.Lock()
	defer s.mu.Unlock()

	agg := Aggregate{
		PostureCounts: make(map[string]int, len(s.postureDist)),
		GazeCounts:    make(map[string]int, len(s.gazeDist)),
		SampleCount:   s.samples,
	}
	for k, v := range s.postureDist {
		agg.PostureCounts[k] = v
	}
	for k, v := range s.gazeDist {
		agg.GazeCounts[k] = v
	}
	if s.samples > 0 {
		agg.AverageEyeContact = s.sumEye / float64(s.samples)
		agg.AverageFidget = s.sumFidget / float64(s.samples)
	}
	return agg
}

// Reset clears the per-turn buffers. Called at the narration-to-recording
// transition.
func (s *LandmarkStrategy) Reset() {
	s.mu.Lock()
	s.resetLocked()
	s.mu.Unlock()
	s.issues.reset()
}

func (s *LandmarkStrategy) resetLocked() {
	s.prevNose = nil
	s.fidgetRing = nil
	s.eyeRing = nil
	s.sumEye, s.sumFidget = 0, 0
	s.postureDist = make(map[string]int)
	s.gazeDist = make(map[string]int)
	s.samples = 0
	active := s.metrics.CameraActive
	s.metrics = Metrics{Posture: "good", GazeDirection: "center", CameraActive: active}
}
