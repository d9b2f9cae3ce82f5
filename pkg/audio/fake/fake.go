// Package fake provides an in-memory audio capture backend for tests.
// Test code feeds PCM chunks directly instead of reading a real microphone.
package fake

import (
	"errors"
	"sync"

	"github.com/parakeetlabs/rehearse/pkg/audio"
)

// Compile-time interface assertions.
var (
	_ audio.Context       = (*Context)(nil)
	_ audio.CaptureDevice = (*Capture)(nil)
)

// Context is a scripted capture backend. The zero value is usable.
type Context struct {
	// FailCapture, when true, makes NewCapture return an error. Used to test
	// the device-unavailable degradation path.
	FailCapture bool

	mu      sync.Mutex
	devices []*Capture
}

// Devices reports a single synthetic device.
func (c *Context) Devices() ([]audio.DeviceInfo, error) {
	return []audio.DeviceInfo{{ID: "fake-0", Name: "Fake Microphone"}}, nil
}

// NewCapture opens a scripted capture device.
func (c *Context) NewCapture(_ *audio.DeviceInfo, cfg audio.CaptureConfig) (audio.CaptureDevice, error) {
	if c.FailCapture {
		return nil, errors.New("fake: capture device unavailable")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	dev := &Capture{cfg: cfg}
	c.devices = append(c.devices, dev)
	return dev, nil
}

// Close is a no-op for the fake backend.
func (c *Context) Close() {}

// OpenDevices returns every device handed out by NewCapture, in order.
func (c *Context) OpenDevices() []*Capture {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Capture(nil), c.devices...)
}

// LiveCount reports how many handed-out devices are still running.
func (c *Context) LiveCount() int {
	n := 0
	for _, d := range c.OpenDevices() {
		if d.Running() {
			n++
		}
	}
	return n
}

// Capture is a scripted capture device. Feed delivers PCM to the installed
// callback as if it came from the hardware.
type Capture struct {
	cfg audio.CaptureConfig

	mu      sync.Mutex
	cb      audio.DataCallback
	running bool
	closed  bool
}

func (d *Capture) SetCallback(cb audio.DataCallback) {
	d.mu.Lock()
	d.cb = cb
	d.mu.Unlock()
}

func (d *Capture) ClearCallback() {
	d.mu.Lock()
	d.cb = nil
	d.mu.Unlock()
}

func (d *Capture) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errors.New("fake: capture device is closed")
	}
	d.running = true
	return nil
}

func (d *Capture) Stop() {
	d.mu.Lock()
	d.running = false
	d.mu.Unlock()
}

func (d *Capture) Close() {
	d.mu.Lock()
	d.running = false
	d.closed = true
	d.cb = nil
	d.mu.Unlock()
}

// Running reports whether the device is started and not yet stopped or closed.
func (d *Capture) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Closed reports whether Close has been called.
func (d *Capture) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Feed delivers samples to the installed callback, mimicking the hardware
// data path. Feeding a stopped or closed device is a silent no-op.
func (d *Capture) Feed(samples []int16) {
	d.mu.Lock()
	cb := d.cb
	running := d.running
	d.mu.Unlock()
	if cb == nil || !running {
		return
	}
	data := audio.EncodePCM16(samples)
	cb(data, uint32(len(samples)))
}
