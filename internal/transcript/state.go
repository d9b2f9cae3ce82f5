// Package transcript holds per-turn transcript state and the technical-term
// corrector applied to finalized speech-to-text output.
package transcript

import (
	"strings"
	"sync"
)

// State accumulates transcript events for exactly one recording turn.
//
// Final text is append-only and space-joined; interim text is replaced on
// each partial event. A State is owned by the turn controller, handed by
// reference to the STT consumer goroutine, and reset at the turn boundary.
// All methods are safe for concurrent use.
type State struct {
	mu      sync.Mutex
	finals  []string
	interim string
}

// NewState returns an empty transcript state.
func NewState() *State {
	return &State{}
}

// AppendFinal appends a committed segment. Empty or whitespace-only segments
// are ignored.
func (s *State) AppendFinal(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	s.mu.Lock()
	s.finals = append(s.finals, text)
	s.interim = ""
	s.mu.Unlock()
}

// SetInterim replaces the interim text with the latest partial guess.
func (s *State) SetInterim(text string) {
	s.mu.Lock()
	s.interim = text
	s.mu.Unlock()
}

// Final returns the space-joined committed text.
func (s *State) Final() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.finals, " ")
}

// Interim returns the current interim text.
func (s *State) Interim() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interim
}

// Live returns the committed text followed by the interim text, the string a
// live caption should display.
func (s *State) Live() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	parts := make([]string, 0, len(s.finals)+1)
	parts = append(parts, s.finals...)
	if s.interim != "" {
		parts = append(parts, s.interim)
	}
	return strings.Join(parts, " ")
}

// Snapshot atomically returns the committed text and clears the state. The
// turn controller calls this exactly once, at the stop boundary, so a
// late-arriving event can never mutate text mid-computation.
func (s *State) Snapshot() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	text := strings.Join(s.finals, " ")
	s.finals = nil
	s.interim = ""
	return text
}

// Reset discards all accumulated text.
func (s *State) Reset() {
	s.mu.Lock()
	s.finals = nil
	s.interim = ""
	s.mu.Unlock()
}
