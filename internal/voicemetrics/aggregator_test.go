package voicemetrics

import (
	"math"
	"testing"
	"time"

	"github.com/parakeetlabs/rehearse/internal/audiolevel"
)

func feed(a *Aggregator, start time.Time, step time.Duration, speaking ...bool) time.Time {
	at := start
	for _, s := range speaking {
		a.AddSample(audiolevel.Sample{At: at, Level: 0.5, Speaking: s})
		at = at.Add(step)
	}
	return at
}

func TestPauseCountedOncePerEpisode(t *testing.T) {
	a := NewAggregator(Config{PauseThreshold: 1500 * time.Millisecond})
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	// speaking, then 2s of silence spanning four samples, then speaking again
	feed(a, start, 500*time.Millisecond,
		true, true, false, false, false, false, true, true)

	snap := a.Finalize("one two three")
	if snap.PauseCount != 1 {
		t.Fatalf("pause count = %d, want 1", snap.PauseCount)
	}
	if snap.LongestPauseSeconds != 2 {
		t.Fatalf("longest pause = %v, want 2", snap.LongestPauseSeconds)
	}
}

func TestShortGapIsNotAPause(t *testing.T) {
	a := NewAggregator(Config{PauseThreshold: 1500 * time.Millisecond})
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	// 1s silence: below threshold
	feed(a, start, 500*time.Millisecond, true, false, false, true)

	snap := a.Finalize("hello")
	if snap.PauseCount != 0 {
		t.Fatalf("pause count = %d, want 0", snap.PauseCount)
	}
	if snap.LongestPauseSeconds != 0 {
		t.Fatalf("longest pause = %v, want 0", snap.LongestPauseSeconds)
	}
}

func TestTrailingSilenceDoesNotCount(t *testing.T) {
	a := NewAggregator(Config{})
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	feed(a, start, time.Second, true, true, false, false, false, false)

	if snap := a.Finalize("x"); snap.PauseCount != 0 {
		t.Fatalf("pause count = %d, want 0 for trailing silence", snap.PauseCount)
	}
}

func TestWordsPerMinute(t *testing.T) {
	a := NewAggregator(Config{})
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	// 30s of continuous speech
	at := start
	for i := 0; i < 31; i++ {
		a.AddSample(audiolevel.Sample{At: at, Level: 0.4, Speaking: true})
		at = at.Add(time.Second)
	}

	snap := a.Finalize("a b c d e f g h i j " +
		"k l m n o p q r s t " +
		"u v w x y z aa bb cc dd")
	if snap.WordCount != 30 {
		t.Fatalf("word count = %d, want 30", snap.WordCount)
	}
	if snap.WordsPerMinute != 60 {
		t.Fatalf("wpm = %v, want 60", snap.WordsPerMinute)
	}
}

func TestZeroDurationTurnYieldsZeros(t *testing.T) {
	a := NewAggregator(Config{})
	snap := a.Finalize("")

	if snap.WordsPerMinute != 0 || math.IsNaN(snap.WordsPerMinute) {
		t.Fatalf("wpm = %v, want 0", snap.WordsPerMinute)
	}
	if snap.AverageVolume != 0 {
		t.Fatalf("avg volume = %v, want 0", snap.AverageVolume)
	}
	if snap.SpeakingDurationSeconds != 0 || snap.PauseCount != 0 || snap.WordCount != 0 {
		t.Fatalf("expected all-zero snapshot, got %+v", snap)
	}
}

func TestFillerMatchingIsWholeWord(t *testing.T) {
	a := NewAggregator(Config{})
	snap := a.Finalize("I Likely want this, like, you know, um, Um, unlikely")

	if got := snap.FillerWordCounts["like"]; got != 1 {
		t.Fatalf(`"like" count = %d, want 1 (Likely and unlikely must not match)`, got)
	}
	if got := snap.FillerWordCounts["um"]; got != 2 {
		t.Fatalf(`"um" count = %d, want 2 (case-insensitive)`, got)
	}
	if got := snap.FillerWordCounts["you know"]; got != 1 {
		t.Fatalf(`"you know" count = %d, want 1`, got)
	}
}

func TestAverageVolume(t *testing.T) {
	a := NewAggregator(Config{})
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	a.AddSample(audiolevel.Sample{At: start, Level: 0.2, Speaking: true})
	a.AddSample(audiolevel.Sample{At: start.Add(50 * time.Millisecond), Level: 0.6, Speaking: true})

	snap := a.Finalize("hi")
	if snap.AverageVolume != 0.4 {
		t.Fatalf("avg volume = %v, want 0.4", snap.AverageVolume)
	}
}

func TestResetClearsState(t *testing.T) {
	a := NewAggregator(Config{})
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	feed(a, start, time.Second, true, false, false, true)
	a.Reset()

	snap := a.Finalize("")
	if snap.PauseCount != 0 || snap.SpeakingDurationSeconds != 0 || snap.AverageVolume != 0 {
		t.Fatalf("state leaked across Reset: %+v", snap)
	}
}
