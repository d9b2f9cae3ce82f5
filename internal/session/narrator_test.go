package session

import (
	"context"
	"errors"
	"testing"

	ttsmock "github.com/parakeetlabs/rehearse/pkg/provider/tts/mock"
)

func TestNarratorPlaysSynthesizedAudio(t *testing.T) {
	synth := &ttsmock.Synthesizer{Audio: []byte("mp3-bytes")}
	player := &ttsmock.Player{}
	n := NewNarrator(synth, player, nil)

	n.Speak(context.Background(), "Tell me about yourself.")

	if got := synth.Texts(); len(got) != 1 || got[0] != "Tell me about yourself." {
		t.Fatalf("synthesized texts = %v", got)
	}
	if player.Plays() != 1 {
		t.Fatalf("plays = %d, want 1", player.Plays())
	}
	if n.Speaking() {
		t.Fatal("speaking flag still raised after Speak returned")
	}
}

func TestNarratorNeverFails(t *testing.T) {
	synth := &ttsmock.Synthesizer{Err: errors.New("service down")}
	n := NewNarrator(synth, &ttsmock.Player{}, nil)

	// Speak has no error return; the assertion is that it returns at all and
	// lowers the flag.
	n.Speak(context.Background(), "question")
	if n.Speaking() {
		t.Fatal("speaking flag still raised after synthesis error")
	}
}

func TestNarratorSkipsPlayerForOnDeviceSynthesis(t *testing.T) {
	// On-device backends play the utterance themselves and return no bytes.
	synth := &ttsmock.Synthesizer{Audio: []byte{}}
	player := &ttsmock.Player{}
	n := NewNarrator(synth, player, nil)

	n.Speak(context.Background(), "question")
	if player.Plays() != 0 {
		t.Fatalf("plays = %d, want 0", player.Plays())
	}
}

func TestNarratorPlaybackErrorLowersFlag(t *testing.T) {
	synth := &ttsmock.Synthesizer{Audio: []byte("x")}
	player := &ttsmock.Player{Err: errors.New("no output device")}
	n := NewNarrator(synth, player, nil)

	n.Speak(context.Background(), "question")
	if n.Speaking() {
		t.Fatal("speaking flag still raised after playback error")
	}
}
