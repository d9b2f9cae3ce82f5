package resilience

import (
	"context"

	"github.com/parakeetlabs/rehearse/internal/observe"
	"github.com/parakeetlabs/rehearse/pkg/provider/tts"
)

// NarratorFailover implements [tts.Synthesizer] across a cloud backend and an
// on-device fallback. Narration failures are transient (a single network
// hiccup must not pin the interview to the robot voice), so the chain is
// non-sticky: the primary is retried on every question.
type NarratorFailover struct {
	chain *Chain[tts.Synthesizer]
}

// Compile-time interface assertion.
var _ tts.Synthesizer = (*NarratorFailover)(nil)

// NewNarratorFailover creates a [NarratorFailover] with primary as the
// preferred backend.
func NewNarratorFailover(primary tts.Synthesizer, primaryName string) *NarratorFailover {
	f := &NarratorFailover{
		chain: NewChain(primary, primaryName, false),
	}
	f.chain.OnFailure(func(name string, err error) {
		observe.DefaultMetrics().RecordProviderError(context.Background(), name, "tts")
	})
	return f
}

// AddFallback registers an additional synthesizer as a fallback.
func (f *NarratorFailover) AddFallback(name string, s tts.Synthesizer) {
	f.chain.Add(name, s)
}

// Synthesize tries each backend in order until one produces audio (or, for
// on-device backends, finishes speaking).
func (f *NarratorFailover) Synthesize(ctx context.Context, text string) ([]byte, error) {
	audio, name, err := Execute(f.chain, func(s tts.Synthesizer) ([]byte, error) {
		return s.Synthesize(ctx, text)
	})
	if err == nil && name != f.chain.Primary() {
		observe.DefaultMetrics().RecordFailover(ctx, "tts")
	}
	return audio, err
}
