package resilience

import (
	"context"

	"github.com/parakeetlabs/rehearse/internal/observe"
	"github.com/parakeetlabs/rehearse/pkg/provider/stt"
)

// STTFailover implements [stt.Provider] with sticky failover across multiple
// STT backends: exactly one backend is active per turn, and a backend that
// throws during StartStream is abandoned for the remainder of the session.
type STTFailover struct {
	chain *Chain[stt.Provider]
}

// Compile-time interface assertion.
var _ stt.Provider = (*STTFailover)(nil)

// NewSTTFailover creates an [STTFailover] with primary as the preferred
// backend.
func NewSTTFailover(primary stt.Provider, primaryName string) *STTFailover {
	f := &STTFailover{
		chain: NewChain(primary, primaryName, true),
	}
	f.chain.OnFailure(func(name string, err error) {
		observe.DefaultMetrics().RecordProviderError(context.Background(), name, "stt")
	})
	return f
}

// AddFallback registers an additional STT provider as a fallback.
func (f *STTFailover) AddFallback(name string, provider stt.Provider) {
	f.chain.Add(name, provider)
}

// Active returns the name of the backend the next turn will use.
func (f *STTFailover) Active() string {
	return f.chain.Active()
}

// StartStream opens a transcription session against the first healthy
// backend. A primary that fails here is not retried for the rest of the
// session.
func (f *STTFailover) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	handle, name, err := Execute(f.chain, func(p stt.Provider) (stt.SessionHandle, error) {
		return p.StartStream(ctx, cfg)
	})
	if err == nil && name != f.chain.Primary() {
		observe.DefaultMetrics().RecordFailover(ctx, "stt")
	}
	return handle, err
}
