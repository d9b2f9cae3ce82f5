package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// StoredState is the durable per-interview position: enough to resume after
// a restart, never in-flight audio streams.
type StoredState struct {
	Started       bool `json:"started"`
	QuestionIndex int  `json:"question_index"`
}

// Store persists StoredState keyed by interview identifier in one JSON file.
// Writes are atomic (temp file and rename) so a crash mid-save never leaves a
// truncated state file.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore creates a Store backed by the file at path. The file and its
// directory are created lazily on first Save.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load returns the stored state for the interview and whether one exists.
func (s *Store) Load(interviewID string) (StoredState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	states, err := s.read()
	if err != nil {
		return StoredState{}, false, err
	}
	st, ok := states[interviewID]
	return st, ok, nil
}

// Save writes the state for the interview, preserving entries for other
// interviews.
func (s *Store) Save(interviewID string, st StoredState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	states, err := s.read()
	if err != nil {
		return err
	}
	states[interviewID] = st
	return s.write(states)
}

// Clear removes the interview's entry. Called on normal completion.
func (s *Store) Clear(interviewID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	states, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := states[interviewID]; !ok {
		return nil
	}
	delete(states, interviewID)
	return s.write(states)
}

func (s *Store) read() (map[string]StoredState, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]StoredState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: reading state file: %w", err)
	}
	states := map[string]StoredState{}
	if len(data) == 0 {
		return states, nil
	}
	if err := json.Unmarshal(data, &states); err != nil {
		return nil, fmt.Errorf("session: parsing state file %s: %w", s.path, err)
	}
	return states, nil
}

func (s *Store) write(states map[string]StoredState) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("session: creating state dir: %w", err)
	}
	data, err := json.MarshalIndent(states, "", "  ")
	if err != nil {
		return fmt.Errorf("session: encoding state: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("session: writing state file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("session: replacing state file: %w", err)
	}
	return nil
}
