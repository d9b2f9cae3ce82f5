// Package malgo implements the audio capture abstraction on top of the
// miniaudio library via the gen2brain/malgo bindings. It works on Linux,
// macOS, and Windows without requiring a system audio daemon API.
package malgo

import (
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"

	malgolib "github.com/gen2brain/malgo"

	"github.com/parakeetlabs/rehearse/pkg/audio"
)

// Compile-time interface assertions.
var (
	_ audio.Context       = (*Context)(nil)
	_ audio.CaptureDevice = (*capture)(nil)
)

// Context wraps a malgo allocated context.
type Context struct {
	ctx *malgolib.AllocatedContext
}

// NewContext initialises the miniaudio backend.
func NewContext() (*Context, error) {
	ctx, err := malgolib.InitContext(nil, malgolib.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("malgo: init context: %w", err)
	}
	return &Context{ctx: ctx}, nil
}

// Devices lists the available capture devices.
func (c *Context) Devices() ([]audio.DeviceInfo, error) {
	devices, err := c.ctx.Devices(malgolib.Capture)
	if err != nil {
		return nil, fmt.Errorf("malgo: enumerate devices: %w", err)
	}
	result := make([]audio.DeviceInfo, 0, len(devices))
	for _, d := range devices {
		result = append(result, audio.DeviceInfo{
			ID:   hex.EncodeToString(d.ID.Pointer()[:]),
			Name: d.Name(),
		})
	}
	return result, nil
}

// NewCapture opens a capture device. A nil device selects the system default
// input.
func (c *Context) NewCapture(device *audio.DeviceInfo, cfg audio.CaptureConfig) (audio.CaptureDevice, error) {
	deviceConfig := malgolib.DefaultDeviceConfig(malgolib.Capture)
	deviceConfig.Capture.Format = malgolib.FormatS16
	deviceConfig.Capture.Channels = cfg.Channels
	deviceConfig.SampleRate = cfg.SampleRate

	if device != nil {
		idBytes, err := hex.DecodeString(device.ID)
		if err != nil {
			return nil, fmt.Errorf("malgo: invalid device ID %q: %w", device.ID, err)
		}
		var devID malgolib.DeviceID
		copy(devID[:], idBytes)
		deviceConfig.Capture.DeviceID = devID.Pointer()
	}

	cap := &capture{}

	callbacks := malgolib.DeviceCallbacks{
		Data: func(_, data []byte, frameCount uint32) {
			if cb := cap.cb.Load(); cb != nil {
				(*cb)(data, frameCount)
			}
		},
	}

	dev, err := malgolib.InitDevice(c.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, fmt.Errorf("malgo: init capture device: %w", err)
	}
	cap.device = dev
	return cap, nil
}

// Close releases the miniaudio backend.
func (c *Context) Close() {
	_ = c.ctx.Uninit()
	c.ctx.Free()
}

// capture is one open malgo capture device. The data callback is held in an
// atomic pointer because malgo fixes its callbacks at InitDevice time.
type capture struct {
	device    *malgolib.Device
	cb        atomic.Pointer[audio.DataCallback]
	closeOnce sync.Once
}

func (c *capture) SetCallback(cb audio.DataCallback) {
	c.cb.Store(&cb)
}

func (c *capture) ClearCallback() {
	c.cb.Store(nil)
}

func (c *capture) Start() error {
	if err := c.device.Start(); err != nil {
		return fmt.Errorf("malgo: start capture: %w", err)
	}
	return nil
}

func (c *capture) Stop() {
	_ = c.device.Stop()
}

func (c *capture) Close() {
	c.closeOnce.Do(func() {
		c.cb.Store(nil)
		c.device.Uninit()
	})
}
