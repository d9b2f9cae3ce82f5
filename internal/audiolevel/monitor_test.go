package audiolevel

import (
	"context"
	"sync"
	"testing"
	"time"

	audiofake "github.com/parakeetlabs/rehearse/pkg/audio/fake"
)

// loudFrame returns one 50ms frame of near-full-scale samples.
func loudFrame() []int16 {
	frame := make([]int16, 800)
	for i := range frame {
		frame[i] = 16000
	}
	return frame
}

func TestMonitor_SpeakingDecision(t *testing.T) {
	fctx := &audiofake.Context{}

	var mu sync.Mutex
	var samples []Sample
	m := NewMonitor(fctx, Config{Interval: 10 * time.Millisecond}, func(s Sample) {
		mu.Lock()
		samples = append(samples, s)
		mu.Unlock()
	})

	m.Start(context.Background())
	defer m.Stop()

	dev := fctx.OpenDevices()[0]
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		dev.Feed(loudFrame())
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		n := len(samples)
		mu.Unlock()
		if n >= 3 {
			break
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(samples) == 0 {
		t.Fatal("no samples delivered")
	}
	sawSpeaking := false
	for _, s := range samples {
		if s.Level < 0 || s.Level > 1 {
			t.Fatalf("level %v out of [0,1]", s.Level)
		}
		if s.Speaking {
			sawSpeaking = true
		}
	}
	if !sawSpeaking {
		t.Fatal("loud input never classified as speaking")
	}
}

func TestMonitor_StopReleasesDeviceAndHaltsSamples(t *testing.T) {
	fctx := &audiofake.Context{}

	var mu sync.Mutex
	count := 0
	m := NewMonitor(fctx, Config{Interval: 5 * time.Millisecond}, func(Sample) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	m.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	m.Stop()

	if got := fctx.LiveCount(); got != 0 {
		t.Fatalf("%d capture devices still live after Stop", got)
	}
	if !fctx.OpenDevices()[0].Closed() {
		t.Fatal("capture device not closed after Stop")
	}

	mu.Lock()
	after := count
	mu.Unlock()
	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if count != after {
		t.Fatalf("samples delivered after Stop: %d -> %d", after, count)
	}
	if m.Level() != 0 {
		t.Fatalf("Level() = %v after Stop, want 0", m.Level())
	}
}

func TestMonitor_DeviceUnavailableDegradesSilently(t *testing.T) {
	fctx := &audiofake.Context{FailCapture: true}

	m := NewMonitor(fctx, Config{Interval: 5 * time.Millisecond}, func(s Sample) {
		if s.Level != 0 || s.Speaking {
			t.Errorf("degraded monitor emitted non-zero sample: %+v", s)
		}
	})

	m.Start(context.Background())
	defer m.Stop()

	if !m.Degraded() {
		t.Fatal("Degraded() = false, want true")
	}
	if m.Level() != 0 {
		t.Fatalf("Level() = %v, want 0", m.Level())
	}
}

func TestMonitor_StartStopIdempotent(t *testing.T) {
	fctx := &audiofake.Context{}
	m := NewMonitor(fctx, Config{}, nil)

	m.Start(context.Background())
	m.Start(context.Background()) // no-op while running
	m.Stop()
	m.Stop() // no-op when stopped

	if got := len(fctx.OpenDevices()); got != 1 {
		t.Fatalf("opened %d devices, want 1", got)
	}
}
