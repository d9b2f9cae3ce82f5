// Package audio defines the microphone capture abstraction used by the live
// interview pipeline.
//
// A Context enumerates input devices and opens CaptureDevice instances. Each
// capture device delivers raw PCM (16-bit little-endian mono) through a data
// callback. Subsystems that consume microphone audio — the level monitor and
// the speech-to-text feeder — each open their own capture device so that one
// subsystem stopping its stream can never silently kill audio the other
// depends on.
package audio

import "encoding/binary"

// DataCallback receives a chunk of raw PCM bytes and the number of frames it
// contains. Callbacks run on the capture backend's thread and must not block.
type DataCallback func(data []byte, frameCount uint32)

// CaptureConfig describes the PCM format requested from a capture device.
type CaptureConfig struct {
	// SampleRate in Hz. The interview pipeline uses 16000 (STT-optimised mono).
	SampleRate uint32

	// Channels is the number of audio channels. 1 = mono.
	Channels uint32
}

// DeviceInfo identifies a capture device on the host.
type DeviceInfo struct {
	// ID is an opaque platform-specific identifier.
	ID string

	// Name is the human-readable device name.
	Name string
}

// Context is the entry point to a capture backend. Implementations wrap a
// platform audio library (see the malgo subpackage) or provide scripted data
// for tests (see the fake subpackage).
type Context interface {
	// Devices lists the available capture devices.
	Devices() ([]DeviceInfo, error)

	// NewCapture opens a capture device with the given format. A nil device
	// selects the system default input. The returned device is stopped; call
	// Start to begin delivery.
	NewCapture(device *DeviceInfo, cfg CaptureConfig) (CaptureDevice, error)

	// Close releases the backend. All devices opened from this context must be
	// closed first.
	Close()
}

// CaptureDevice is one open microphone stream.
//
// Stop and Close must be safe to call more than once; after Close the device
// must never invoke its callback again.
type CaptureDevice interface {
	Start() error
	Stop()
	Close()

	// SetCallback installs the data callback. Must be called before Start.
	SetCallback(cb DataCallback)

	// ClearCallback removes the data callback.
	ClearCallback()
}

// DecodePCM16 converts raw 16-bit little-endian PCM bytes into int16 samples.
// A trailing odd byte is ignored.
func DecodePCM16(data []byte) []int16 {
	n := len(data) / 2
	samples := make([]int16, n)
	for i := 0; i < n; i++ {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}

// EncodePCM16 converts int16 samples into raw 16-bit little-endian PCM bytes.
func EncodePCM16(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}
	return data
}
