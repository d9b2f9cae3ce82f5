package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/parakeetlabs/rehearse/internal/encoder"
	"github.com/parakeetlabs/rehearse/internal/transcript"
	"github.com/parakeetlabs/rehearse/pkg/audio"
	"github.com/parakeetlabs/rehearse/pkg/provider/stt"
)

// turnRecorder owns one answer's microphone stream, transcription session
// and optional FLAC capture. It opens its own capture device, separate from
// the level monitor's, and feeds the transcriber in short chunks so interim
// results stay responsive.
type turnRecorder struct {
	handle stt.SessionHandle // nil when transcription is fully degraded
	device audio.CaptureDevice
	flac   *encoder.Flac
	state  *transcript.State
	corr   *transcript.Corrector
	log    *slog.Logger

	chunk time.Duration

	bufMu sync.Mutex
	buf   []int16

	g      *errgroup.Group
	stopCh chan struct{}
	once   sync.Once
}

// startTurnRecorder wires up the recording pipeline for one turn. Both the
// microphone and the transcription session may independently fail to come
// up; each failure degrades its own signal and the turn proceeds with what
// remains.
func startTurnRecorder(ctx context.Context, audioCtx audio.Context, provider stt.Provider,
	streamCfg stt.StreamConfig, corr *transcript.Corrector, chunk time.Duration,
	attachAudio bool, log *slog.Logger) *turnRecorder {

	if chunk <= 0 {
		chunk = 250 * time.Millisecond
	}
	r := &turnRecorder{
		state:  transcript.NewState(),
		corr:   corr,
		log:    log,
		chunk:  chunk,
		stopCh: make(chan struct{}),
	}

	handle, err := provider.StartStream(ctx, streamCfg)
	if err != nil {
		log.Error("transcription unavailable for this turn", "error", err)
	} else {
		r.handle = handle
	}

	if attachAudio {
		flacEnc, err := encoder.NewFlac()
		if err != nil {
			log.Warn("answer audio capture disabled", "error", err)
		} else {
			r.flac = flacEnc
		}
	}

	dev, err := audioCtx.NewCapture(nil, audio.CaptureConfig{
		SampleRate: uint32(streamCfg.SampleRate),
		Channels:   uint32(streamCfg.Channels),
	})
	if err == nil {
		dev.SetCallback(r.onData)
		if startErr := dev.Start(); startErr != nil {
			dev.Close()
			dev, err = nil, startErr
		}
	}
	if err != nil {
		log.Warn("microphone unavailable for speech capture", "error", err)
	} else {
		r.device = dev
	}

	r.g, _ = errgroup.WithContext(ctx)
	if r.device != nil && r.handle != nil {
		r.g.Go(r.feedLoop)
	}
	if r.handle != nil {
		r.g.Go(r.consumePartials)
		r.g.Go(r.consumeFinals)
	}
	return r
}

// onData runs on the capture backend's thread: buffer the samples and get
// out.
func (r *turnRecorder) onData(data []byte, _ uint32) {
	samples := audio.DecodePCM16(data)
	r.bufMu.Lock()
	r.buf = append(r.buf, samples...)
	r.bufMu.Unlock()
}

// feedLoop drains the sample buffer on the chunk cadence and pushes encoded
// PCM to the transcriber and the FLAC stream.
func (r *turnRecorder) feedLoop() error {
	ticker := time.NewTicker(r.chunk)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopCh:
			// stop() performs the final flush once the device is released.
			return nil
		case <-ticker.C:
			r.flush()
		}
	}
}

func (r *turnRecorder) flush() {
	r.bufMu.Lock()
	pending := r.buf
	r.buf = nil
	r.bufMu.Unlock()
	if len(pending) == 0 {
		return
	}

	if r.flac != nil {
		if err := r.flac.EncodeBlock(pending); err != nil {
			r.log.Warn("answer audio encode failed", "error", err)
			r.flac = nil
		}
	}
	if r.handle != nil {
		if err := r.handle.SendAudio(audio.EncodePCM16(pending)); err != nil {
			r.log.Debug("audio chunk dropped", "error", err)
		}
	}
}

func (r *turnRecorder) consumePartials() error {
	for t := range r.handle.Partials() {
		r.state.SetInterim(t.Text)
	}
	return nil
}

// consumeFinals appends committed segments, running the term corrector over
// each one. Corrections never touch interim text.
func (r *turnRecorder) consumeFinals() error {
	for t := range r.handle.Finals() {
		text := t.Text
		if r.corr != nil {
			corrected, changes := r.corr.Correct(text)
			for _, ch := range changes {
				r.log.Debug("term corrected", "from", ch.Original, "to", ch.Corrected, "method", ch.Method)
			}
			text = corrected
		}
		r.state.AppendFinal(text)
	}
	return nil
}

// live returns the current transcript including interim text for display.
func (r *turnRecorder) live() string {
	return r.state.Live()
}

// stop tears the pipeline down in order: release the microphone, flush the
// last buffered audio, close the transcription session so it commits pending
// finals, drain the event pumps, then snapshot the transcript. After stop
// returns, no late event can mutate the returned text. Idempotent; repeated
// calls return empty results.
func (r *turnRecorder) stop() (text string, flacAudio []byte) {
	r.once.Do(func() {
		if r.device != nil {
			r.device.Stop()
			r.device.ClearCallback()
			r.device.Close()
		}
		close(r.stopCh)
		r.flush()

		if r.handle != nil {
			if err := r.handle.Close(); err != nil {
				r.log.Debug("transcription close", "error", err)
			}
		}
		_ = r.g.Wait()

		text = r.state.Snapshot()
		if r.flac != nil {
			if err := r.flac.Close(); err != nil {
				r.log.Warn("finalizing answer audio failed", "error", err)
			} else {
				flacAudio = r.flac.Bytes()
			}
		}
	})
	return text, flacAudio
}
