// Package encoder compresses a turn's recorded answer audio into the FLAC
// attachment uploaded with the submission.
package encoder

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"
)

const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
	BlockSize     = 4096
)

// Flac accumulates mono 16-bit PCM blocks into one FLAC stream. Create one
// per recording turn; after Close, Bytes holds the finished attachment.
type Flac struct {
	mu           sync.Mutex
	buf          bytes.Buffer
	enc          *flac.Encoder
	totalSamples uint64
	closed       bool
}

// NewFlac opens a FLAC stream for one answer recording.
func NewFlac() (*Flac, error) {
	e := &Flac{}
	info := &meta.StreamInfo{
		BlockSizeMin:  BlockSize,
		BlockSizeMax:  BlockSize,
		SampleRate:    SampleRate,
		NChannels:     Channels,
		BitsPerSample: BitsPerSample,
		NSamples:      0,
	}
	enc, err := flac.NewEncoder(&e.buf, info)
	if err != nil {
		return nil, fmt.Errorf("encoder: creating flac encoder: %w", err)
	}
	enc.EnablePredictionAnalysis(true)
	e.enc = enc
	return e, nil
}

// EncodeBlock appends one block of mono samples to the stream. Blocks may be
// shorter than BlockSize; the last block of a turn usually is.
func (e *Flac) EncodeBlock(block []int16) error {
	if len(block) == 0 {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return fmt.Errorf("encoder: stream already closed")
	}

	samples32 := make([]int32, len(block))
	for i, s := range block {
		samples32[i] = int32(s)
	}

	subframe := &frame.Subframe{
		SubHeader: frame.SubHeader{
			Pred: frame.PredVerbatim,
		},
		Samples:  samples32,
		NSamples: len(block),
	}

	f := &frame.Frame{
		Header: frame.Header{
			BlockSize:     uint16(len(block)),
			SampleRate:    SampleRate,
			Channels:      frame.ChannelsMono,
			BitsPerSample: BitsPerSample,
		},
		Subframes: []*frame.Subframe{subframe},
	}

	if err := e.enc.WriteFrame(f); err != nil {
		return fmt.Errorf("encoder: writing flac frame: %w", err)
	}
	e.totalSamples += uint64(len(block))
	return nil
}

// Close finalizes the stream. Idempotent.
func (e *Flac) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return e.enc.Close()
}

// Bytes returns the encoded stream. Valid after Close.
func (e *Flac) Bytes() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buf.Bytes()
}

// TotalSamples reports how many samples were written.
func (e *Flac) TotalSamples() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.totalSamples
}
