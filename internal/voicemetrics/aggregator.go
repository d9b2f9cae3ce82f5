// Package voicemetrics turns one turn's audio-level samples and final
// transcript into the fluency snapshot submitted with each answer.
package voicemetrics

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/parakeetlabs/rehearse/internal/audiolevel"
)

// DefaultFillerLexicon lists the filler words and phrases counted per answer.
var DefaultFillerLexicon = []string{
	"um", "uh", "like", "you know", "actually", "basically", "sort of", "kind of",
}

// Snapshot is the immutable per-turn fluency result. Field names follow the
// payload the review endpoint stores under fluency_metrics.
type Snapshot struct {
	SpeakingDurationSeconds float64        `json:"speakingDurationSeconds"`
	PauseCount              int            `json:"pauseCount"`
	LongestPauseSeconds     float64        `json:"longestPauseSeconds"`
	WordsPerMinute          float64        `json:"wordsPerMinute"`
	WordCount               int            `json:"wordCount"`
	FillerWordCounts        map[string]int `json:"fillerWordCounts"`
	AverageVolume           float64        `json:"averageVolume"`
}

// Config holds the aggregator's tuning parameters.
type Config struct {
	// PauseThreshold is the minimum silence duration that counts as a pause.
	// Default: 1500ms.
	PauseThreshold time.Duration

	// FillerLexicon overrides DefaultFillerLexicon when non-nil.
	FillerLexicon []string
}

// Aggregator accumulates level samples for one recording turn and computes a
// Snapshot at the stop boundary. Reset returns it to the empty state for the
// next turn. All methods are safe for concurrent use.
type Aggregator struct {
	pauseThreshold time.Duration
	fillerPatterns map[string]*regexp.Regexp

	mu sync.Mutex

	volumeSum   float64
	volumeCount int

	speaking     bool
	lastAt       time.Time
	silenceStart time.Time
	speakingDur  time.Duration

	pauseCount   int
	longestPause time.Duration
}

// NewAggregator creates an Aggregator with the given configuration.
func NewAggregator(cfg Config) *Aggregator {
	if cfg.PauseThreshold <= 0 {
		cfg.PauseThreshold = 1500 * time.Millisecond
	}
	lexicon := cfg.FillerLexicon
	if lexicon == nil {
		lexicon = DefaultFillerLexicon
	}

	patterns := make(map[string]*regexp.Regexp, len(lexicon))
	for _, filler := range lexicon {
		patterns[filler] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(filler) + `\b`)
	}

	return &Aggregator{
		pauseThreshold: cfg.PauseThreshold,
		fillerPatterns: patterns,
	}
}

// AddSample feeds one audio-level observation. Samples must arrive in
// timestamp order; this is the sink wired into the level monitor.
func (a *Aggregator) AddSample(s audiolevel.Sample) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.volumeSum += s.Level
	a.volumeCount++

	if !a.lastAt.IsZero() && a.speaking {
		a.speakingDur += s.At.Sub(a.lastAt)
	}

	switch {
	case s.Speaking && !a.speaking:
		// Silence episode ends. It counted as a pause only if it exceeded
		// the threshold, and each episode increments the count exactly once
		// regardless of how many samples it spanned.
		if !a.silenceStart.IsZero() {
			if d := s.At.Sub(a.silenceStart); d > a.pauseThreshold {
				a.pauseCount++
				if d > a.longestPause {
					a.longestPause = d
				}
			}
			a.silenceStart = time.Time{}
		}
		a.speaking = true

	case !s.Speaking && a.speaking:
		a.speaking = false
		a.silenceStart = s.At
	}

	a.lastAt = s.At
}

// Finalize computes the Snapshot for the turn from the accumulated samples
// and the final transcript. Zero-duration and zero-sample turns yield a
// well-defined all-zero snapshot, never NaN.
func (a *Aggregator) Finalize(transcript string) Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	words := strings.Fields(transcript)
	speakingSeconds := a.speakingDur.Seconds()

	var wpm float64
	if speakingSeconds > 0 {
		wpm = float64(len(words)) / speakingSeconds * 60
	}

	var avgVolume float64
	if a.volumeCount > 0 {
		avgVolume = a.volumeSum / float64(a.volumeCount)
	}

	fillers := make(map[string]int, len(a.fillerPatterns))
	for filler, pattern := range a.fillerPatterns {
		if n := len(pattern.FindAllStringIndex(transcript, -1)); n > 0 {
			fillers[filler] = n
		}
	}

	return Snapshot{
		SpeakingDurationSeconds: speakingSeconds,
		PauseCount:              a.pauseCount,
		LongestPauseSeconds:     a.longestPause.Seconds(),
		WordsPerMinute:          wpm,
		WordCount:               len(words),
		FillerWordCounts:        fillers,
		AverageVolume:           avgVolume,
	}
}

// Reset clears all accumulated state for the next turn.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.volumeSum, a.volumeCount = 0, 0
	a.speaking = false
	a.lastAt, a.silenceStart = time.Time{}, time.Time{}
	a.speakingDur = 0
	a.pauseCount = 0
	a.longestPause = 0
}
