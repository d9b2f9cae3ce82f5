package transcript

import "testing"

func TestState_FinalAppendOnly(t *testing.T) {
	s := NewState()
	s.AppendFinal("I worked on")
	s.AppendFinal("a payments system")
	s.AppendFinal("  ") // ignored

	if got := s.Final(); got != "I worked on a payments system" {
		t.Fatalf("Final() = %q", got)
	}
}

func TestState_InterimReplaced(t *testing.T) {
	s := NewState()
	s.SetInterim("I wor")
	s.SetInterim("I worked")
	if got := s.Interim(); got != "I worked" {
		t.Fatalf("Interim() = %q", got)
	}

	// A committed segment clears the interim.
	s.AppendFinal("I worked")
	if got := s.Interim(); got != "" {
		t.Fatalf("Interim() after final = %q", got)
	}
}

func TestState_Live(t *testing.T) {
	s := NewState()
	s.AppendFinal("I worked on")
	s.SetInterim("a paym")
	if got := s.Live(); got != "I worked on a paym" {
		t.Fatalf("Live() = %q", got)
	}
}

func TestState_SnapshotClears(t *testing.T) {
	s := NewState()
	s.AppendFinal("first answer")
	s.SetInterim("leftover")

	if got := s.Snapshot(); got != "first answer" {
		t.Fatalf("Snapshot() = %q", got)
	}
	if got := s.Final(); got != "" {
		t.Fatalf("Final() after snapshot = %q", got)
	}
	if got := s.Interim(); got != "" {
		t.Fatalf("Interim() after snapshot = %q", got)
	}

	// A late event after the snapshot lands in the next turn's state, not
	// the submitted answer.
	s.AppendFinal("late segment")
	if got := s.Final(); got != "late segment" {
		t.Fatalf("Final() = %q", got)
	}
}
