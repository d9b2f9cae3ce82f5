package session

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/parakeetlabs/rehearse/pkg/provider/tts"
)

// Narrator reads question text aloud. Synthesis goes through the configured
// synthesizer (usually a failover chain); the resulting audio is handed to
// the player. A synthesizer that performs its own playback returns no bytes
// and the player is skipped.
//
// Speak never fails: any synthesis or playback error is logged and the turn
// continues. The speaking flag is raised for the duration of the utterance
// and lowered exactly once, on completion or error alike.
type Narrator struct {
	synth    tts.Synthesizer
	player   tts.Player
	log      *slog.Logger
	speaking atomic.Bool
}

// NewNarrator builds a Narrator. player may be nil when the synthesizer
// plays its own audio.
func NewNarrator(synth tts.Synthesizer, player tts.Player, log *slog.Logger) *Narrator {
	if log == nil {
		log = slog.Default()
	}
	return &Narrator{synth: synth, player: player, log: log}
}

// Speak narrates text and returns when the audio has finished playing.
func (n *Narrator) Speak(ctx context.Context, text string) {
	n.speaking.Store(true)
	defer n.speaking.Store(false)

	audio, err := n.synth.Synthesize(ctx, text)
	if err != nil {
		n.log.Error("narration failed, continuing without audio", "error", err)
		return
	}
	if len(audio) == 0 {
		// On-device synthesis already played the utterance.
		return
	}
	if n.player == nil {
		n.log.Warn("no audio player configured, skipping narration playback")
		return
	}
	if err := n.player.Play(ctx, audio); err != nil {
		n.log.Error("narration playback failed", "error", err)
	}
}

// Speaking reports whether an utterance is in progress.
func (n *Narrator) Speaking() bool {
	return n.speaking.Load()
}
