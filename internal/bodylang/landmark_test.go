package bodylang

import (
	"context"
	"image"
	"testing"
	"time"

	camerafake "github.com/parakeetlabs/rehearse/pkg/camera/fake"
)

func centeredFace() Landmarks {
	return Landmarks{
		NoseX: 0.5, NoseY: 0.5,
		LeftShoulderY: 0.7, RightShoulderY: 0.7,
		FaceDetected: true,
	}
}

func TestGazeBands(t *testing.T) {
	s := NewLandmarkStrategy(nil, nil, LandmarkConfig{}, nil)

	cases := []struct {
		name string
		lm   Landmarks
		want string
	}{
		{"center", Landmarks{NoseX: 0.5, NoseY: 0.5, FaceDetected: true}, "center"},
		{"left", Landmarks{NoseX: 0.2, NoseY: 0.5, FaceDetected: true}, "left"},
		{"right", Landmarks{NoseX: 0.8, NoseY: 0.5, FaceDetected: true}, "right"},
		{"up", Landmarks{NoseX: 0.5, NoseY: 0.2, FaceDetected: true}, "up"},
	}
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for _, tc := range cases {
		s.Observe(tc.lm, at)
		if got := s.Metrics().GazeDirection; got != tc.want {
			t.Errorf("%s: gaze = %q, want %q", tc.name, got, tc.want)
		}
		at = at.Add(5 * time.Second)
	}
}

func TestPostureFromShoulderAsymmetry(t *testing.T) {
	s := NewLandmarkStrategy(nil, nil, LandmarkConfig{}, nil)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	level := centeredFace()
	s.Observe(level, at)
	if got := s.Metrics().Posture; got != "good" {
		t.Fatalf("level shoulders: posture = %q, want good", got)
	}

	tilted := centeredFace()
	tilted.LeftShoulderY = 0.8
	s.Observe(tilted, at.Add(time.Second))
	if got := s.Metrics().Posture; got != "slouching" {
		t.Fatalf("tilted shoulders: posture = %q, want slouching", got)
	}
}

func TestFidgetScoreFromNoseMovement(t *testing.T) {
	s := NewLandmarkStrategy(nil, nil, LandmarkConfig{}, nil)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	still := centeredFace()
	for i := 0; i < 5; i++ {
		s.Observe(still, at)
		at = at.Add(100 * time.Millisecond)
	}
	if got := s.Metrics().FidgetScore; got != 0 {
		t.Fatalf("still head: fidget = %v, want 0", got)
	}

	// large oscillation every frame saturates the score
	for i := 0; i < 60; i++ {
		lm := centeredFace()
		if i%2 == 0 {
			lm.NoseX = 0.45
		} else {
			lm.NoseX = 0.55
		}
		s.Observe(lm, at)
		at = at.Add(100 * time.Millisecond)
	}
	if got := s.Metrics().FidgetScore; got != 1 {
		t.Fatalf("oscillating head: fidget = %v, want saturated 1", got)
	}
}

func TestIssueThrottling(t *testing.T) {
	s := NewLandmarkStrategy(nil, nil, LandmarkConfig{}, nil)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	slouch := centeredFace()
	slouch.LeftShoulderY = 0.9

	// 1.5s of slouching at 100ms cadence: inside the 2s window, one event
	for i := 0; i < 15; i++ {
		s.Observe(slouch, at.Add(time.Duration(i)*100*time.Millisecond))
	}
	if got := countKind(s.Issues(), postureIssueKind); got != 1 {
		t.Fatalf("posture issues inside window = %d, want 1", got)
	}

	// one more frame past the 2s window
	s.Observe(slouch, at.Add(2100*time.Millisecond))
	if got := countKind(s.Issues(), postureIssueKind); got != 2 {
		t.Fatalf("posture issues after window = %d, want 2", got)
	}
}

func TestEyeContactIssueThrottledSeparately(t *testing.T) {
	s := NewLandmarkStrategy(nil, nil, LandmarkConfig{}, nil)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	away := centeredFace()
	away.NoseX = 0.1
	for i := 0; i < 35; i++ {
		s.Observe(away, at.Add(time.Duration(i)*100*time.Millisecond))
	}

	// 3.4s looking away: events at t=0 and t>=3s only
	if got := countKind(s.Issues(), eyeContactIssueKind); got != 2 {
		t.Fatalf("eye-contact issues = %d, want 2", got)
	}
}

func TestNoFaceYieldsNoSignals(t *testing.T) {
	s := NewLandmarkStrategy(nil, nil, LandmarkConfig{}, nil)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	s.Observe(Landmarks{FaceDetected: false}, at)

	m := s.Metrics()
	if m.FaceDetected {
		t.Fatal("FaceDetected = true, want false")
	}
	if got := s.Aggregate().SampleCount; got != 0 {
		t.Fatalf("faceless frames counted: %d samples", got)
	}
}

func TestAggregateAveragesAndDistributions(t *testing.T) {
	s := NewLandmarkStrategy(nil, nil, LandmarkConfig{}, nil)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	center := centeredFace()
	left := centeredFace()
	left.NoseX = 0.1

	s.Observe(center, at)
	s.Observe(center, at.Add(time.Second))
	s.Observe(left, at.Add(2*time.Second))
	s.Observe(left, at.Add(3*time.Second))

	agg := s.Aggregate()
	if agg.SampleCount != 4 {
		t.Fatalf("sample count = %d, want 4", agg.SampleCount)
	}
	if agg.GazeCounts["center"] != 2 || agg.GazeCounts["left"] != 2 {
		t.Fatalf("gaze counts = %v, want center:2 left:2", agg.GazeCounts)
	}
	if agg.PostureCounts["good"] != 4 {
		t.Fatalf("posture counts = %v, want good:4", agg.PostureCounts)
	}
	if agg.AverageEyeContact <= 0 || agg.AverageEyeContact >= 1 {
		t.Fatalf("average eye contact = %v, want strictly between 0 and 1", agg.AverageEyeContact)
	}
}

func TestResetClearsTurnBuffers(t *testing.T) {
	s := NewLandmarkStrategy(nil, nil, LandmarkConfig{}, nil)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	slouch := centeredFace()
	slouch.LeftShoulderY = 0.9
	s.Observe(slouch, at)

	s.Reset()

	if got := s.Aggregate().SampleCount; got != 0 {
		t.Fatalf("sample count after reset = %d, want 0", got)
	}
	if got := len(s.Issues()); got != 0 {
		t.Fatalf("issues after reset = %d, want 0", got)
	}
}

func TestStartDegradesWithoutCamera(t *testing.T) {
	opener := &camerafake.Opener{FailOpen: true}
	s := NewLandmarkStrategy(opener, nil, LandmarkConfig{}, nil)

	s.Start(context.Background())

	m := s.Metrics()
	if m.CameraActive {
		t.Fatal("CameraActive = true after failed acquisition")
	}
	if m.Err == nil {
		t.Fatal("Err not set after failed acquisition")
	}
	s.Stop()
}

func TestStopReleasesCamera(t *testing.T) {
	src := &camerafake.Source{}
	src.SetFrame(image.NewRGBA(image.Rect(0, 0, 4, 4)))
	opener := &camerafake.Opener{Source: src}

	s := NewLandmarkStrategy(opener, staticLandmarker{centeredFace()}, LandmarkConfig{
		SampleInterval: 5 * time.Millisecond,
	}, nil)

	s.Start(context.Background())
	if !s.Metrics().CameraActive {
		t.Fatal("CameraActive = false after Start")
	}

	s.Stop()
	s.Stop()

	if !src.Closed() {
		t.Fatal("camera source not closed after Stop")
	}
	if s.Metrics().CameraActive {
		t.Fatal("CameraActive = true after Stop")
	}
}

type staticLandmarker struct {
	lm Landmarks
}

func (s staticLandmarker) Detect(image.Image) (Landmarks, error) {
	return s.lm, nil
}

func countKind(issues []Issue, kind string) int {
	n := 0
	for _, is := range issues {
		if is.Kind == kind {
			n++
		}
	}
	return n
}
