// Package audiolevel samples microphone energy to drive voice-activity
// detection, the live level indicator, and the per-turn volume metrics.
//
// The monitor opens its own microphone-only capture device, separate from any
// stream the speech-to-text feeder holds, so one subsystem's Stop can never
// kill audio the other depends on.
package audiolevel

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/parakeetlabs/rehearse/pkg/audio"
)

// Sample is one timestamped level observation delivered to the sink.
type Sample struct {
	// At is when the sample was taken.
	At time.Time

	// Level is the normalized energy in [0, 1].
	Level float64

	// Speaking reports whether Level cleared the speech threshold.
	Speaking bool
}

// Config holds the monitor's tuning parameters. The thresholds are empirical
// and surfaced through the application config rather than hard-coded.
type Config struct {
	// SampleRate of the capture stream in Hz. Default: 16000.
	SampleRate uint32

	// Interval is the sampling cadence. Default: 50ms.
	Interval time.Duration

	// SpeechThreshold is the normalized level above which the candidate
	// counts as speaking. Default: 0.08.
	SpeechThreshold float64

	// Calibration is the mean-magnitude value mapped to full scale. Raising
	// it makes the indicator less sensitive. Default: 0.2.
	Calibration float64
}

func (c *Config) applyDefaults() {
	if c.SampleRate == 0 {
		c.SampleRate = 16000
	}
	if c.Interval <= 0 {
		c.Interval = 50 * time.Millisecond
	}
	if c.SpeechThreshold <= 0 {
		c.SpeechThreshold = 0.08
	}
	if c.Calibration <= 0 {
		c.Calibration = 0.2
	}
}

// Monitor owns one microphone capture stream and produces level samples while
// a turn is active. Start/Stop delimit a turn; the Monitor may be reused
// across turns. All methods are safe for concurrent use.
type Monitor struct {
	ctx  audio.Context
	cfg  Config
	sink func(Sample)

	level atomic.Uint64 // math.Float64bits of the latest level

	mu       sync.Mutex
	device   audio.CaptureDevice
	stopCh   chan struct{}
	doneCh   chan struct{}
	degraded bool

	// accumulator written by the capture callback, drained per tick
	accMu    sync.Mutex
	accSum   float64
	accCount int
}

// NewMonitor creates a Monitor that opens capture devices from ctx and pushes
// samples to sink. sink may be nil when only the live level is wanted.
func NewMonitor(ctx audio.Context, cfg Config, sink func(Sample)) *Monitor {
	cfg.applyDefaults()
	return &Monitor{ctx: ctx, cfg: cfg, sink: sink}
}

// Start acquires the microphone and begins the sampling loop. A device
// acquisition failure is not an error: the monitor degrades to a permanent
// zero signal so the interview continues without audio metrics.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopCh != nil {
		return // already running
	}

	dev, err := m.ctx.NewCapture(nil, audio.CaptureConfig{
		SampleRate: m.cfg.SampleRate,
		Channels:   1,
	})
	if err == nil {
		dev.SetCallback(m.onData)
		if startErr := dev.Start(); startErr != nil {
			dev.Close()
			dev, err = nil, startErr
		}
	}
	if err != nil {
		slog.Warn("audio level monitor unavailable, continuing without audio metrics", "error", err)
		m.degraded = true
		m.device = nil
	} else {
		m.degraded = false
		m.device = dev
	}

	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	go m.loop(ctx, m.stopCh, m.doneCh)
}

// Stop cancels the sampling loop and releases the microphone. It blocks until
// the loop has exited, so no sample is delivered after Stop returns. Repeated
// calls are no-ops.
func (m *Monitor) Stop() {
	m.mu.Lock()
	stopCh, doneCh, dev := m.stopCh, m.doneCh, m.device
	m.stopCh, m.doneCh, m.device = nil, nil, nil
	m.mu.Unlock()

	if stopCh == nil {
		return
	}
	close(stopCh)
	<-doneCh

	if dev != nil {
		dev.Stop()
		dev.Close()
	}
	m.level.Store(0)
}

// Level returns the latest normalized level in [0, 1] for the live
// indicator.
func (m *Monitor) Level() float64 {
	return math.Float64frombits(m.level.Load())
}

// Degraded reports whether the last Start failed to acquire a microphone.
func (m *Monitor) Degraded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.degraded
}

// onData accumulates mean absolute magnitude from the capture callback.
// It runs on the audio backend's thread and must stay cheap.
func (m *Monitor) onData(data []byte, _ uint32) {
	n := len(data) / 2
	if n == 0 {
		return
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := int16(data[i*2]) | int16(data[i*2+1])<<8
		sum += math.Abs(float64(s)) / 32768.0
	}
	m.accMu.Lock()
	m.accSum += sum
	m.accCount += n
	m.accMu.Unlock()
}

// loop is the recurring sampling task. It checks its stop channel every tick
// and terminates immediately when the turn ends.
func (m *Monitor) loop(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.accMu.Lock()
			sum, count := m.accSum, m.accCount
			m.accSum, m.accCount = 0, 0
			m.accMu.Unlock()

			var level float64
			if count > 0 {
				level = (sum / float64(count)) / m.cfg.Calibration
				if level > 1 {
					level = 1
				}
			}
			m.level.Store(math.Float64bits(level))

			if m.sink != nil {
				m.sink(Sample{
					At:       now,
					Level:    level,
					Speaking: level >= m.cfg.SpeechThreshold,
				})
			}
		}
	}
}
