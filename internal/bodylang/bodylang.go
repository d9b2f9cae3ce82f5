// Package bodylang derives body-language signals from webcam frames during a
// recording turn. Two interchangeable strategies are provided: continuous
// landmark tracking and periodic photo capture.
package bodylang

import (
	"context"
	"sync"
	"time"
)

// Metrics is the latest body-language snapshot exposed to the session
// controller and UI.
type Metrics struct {
	EyeContact    float64 // 0..1
	Posture       string  // "good" or "slouching"
	FidgetScore   float64 // 0..1
	GazeDirection string  // "center", "left", "right", "up"
	FaceDetected  bool
	CameraActive  bool
	Err           error
}

// Issue is one timestamped notable event for later narrative feedback.
type Issue struct {
	At     time.Time `json:"at"`
	Kind   string    `json:"kind"`
	Detail string    `json:"detail"`
}

// Aggregate is the per-turn reduction submitted with the answer payload.
type Aggregate struct {
	AverageEyeContact float64        `json:"averageEyeContact"`
	AverageFidget     float64        `json:"averageFidget"`
	PostureCounts     map[string]int `json:"postureCounts"`
	GazeCounts        map[string]int `json:"gazeCounts"`
	SampleCount       int            `json:"sampleCount"`
	// Photos holds the retained JPEG snapshots when the periodic-photo
	// strategy is in use; nil for landmark tracking.
	Photos []Photo `json:"-"`
}

// Photo is one captured webcam still.
type Photo struct {
	At   time.Time
	JPEG []byte
}

// Strategy is the common surface of both capture strategies. Start degrades
// silently when the camera cannot be acquired; the session continues with
// zeroed signals. Stop is idempotent and releases the camera.
type Strategy interface {
	Start(ctx context.Context)
	Stop()
	Metrics() Metrics
	Issues() []Issue
	Aggregate() Aggregate
	Reset()
}

// issueLog collects Issues with a per-kind minimum interval so a sustained
// bad-posture stretch produces one event per window, not one per frame.
type issueLog struct {
	mu         sync.Mutex
	events     []Issue
	lastByKind map[string]time.Time
	minByKind  map[string]time.Duration
}

func newIssueLog(minByKind map[string]time.Duration) *issueLog {
	return &issueLog{
		lastByKind: make(map[string]time.Time),
		minByKind:  minByKind,
	}
}

// add records the event unless one of the same kind fired within its
// throttle window. Returns whether the event was recorded.
func (l *issueLog) add(at time.Time, kind, detail string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if min, ok := l.minByKind[kind]; ok {
		if last, seen := l.lastByKind[kind]; seen && at.Sub(last) < min {
			return false
		}
	}
	l.lastByKind[kind] = at
	l.events = append(l.events, Issue{At: at, Kind: kind, Detail: detail})
	return true
}

func (l *issueLog) snapshot() []Issue {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Issue, len(l.events))
	copy(out, l.events)
	return out
}

func (l *issueLog) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = nil
	l.lastByKind = make(map[string]time.Time)
}
