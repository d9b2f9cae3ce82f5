package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/parakeetlabs/rehearse/pkg/provider/stt"
	sttmock "github.com/parakeetlabs/rehearse/pkg/provider/stt/mock"
)

var errTest = errors.New("boom")

func sttStreamConfig() stt.StreamConfig {
	return stt.StreamConfig{SampleRate: 16000, Channels: 1, Language: "en"}
}

func TestChain_PrimarySuccess(t *testing.T) {
	c := NewChain("primary", "primary", false)
	c.Add("secondary", "secondary")

	got, name, err := Execute(c, func(v string) (string, error) {
		return v, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "primary" || name != "primary" {
		t.Fatalf("got %q via %q, want primary", got, name)
	}
}

func TestChain_PrimaryFailFallbackSuccess(t *testing.T) {
	c := NewChain("primary", "primary", false)
	c.Add("secondary", "secondary")

	got, name, err := Execute(c, func(v string) (string, error) {
		if v == "primary" {
			return "", errTest
		}
		return v, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "secondary" || name != "secondary" {
		t.Fatalf("got %q via %q, want secondary", got, name)
	}
}

func TestChain_AllFail(t *testing.T) {
	c := NewChain("primary", "primary", false)
	c.Add("secondary", "secondary")

	_, _, err := Execute(c, func(v string) (string, error) {
		return "", errTest
	})
	if err == nil {
		t.Fatal("expected error when all providers fail")
	}
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestChain_StickySkipsFailedPrimary(t *testing.T) {
	c := NewChain("primary", "primary", true)
	c.Add("secondary", "secondary")

	var primaryCalls int
	call := func() (string, string, error) {
		return Execute(c, func(v string) (string, error) {
			if v == "primary" {
				primaryCalls++
				return "", errTest
			}
			return v, nil
		})
	}

	// First call trips the primary and lands on the fallback.
	if _, name, err := call(); err != nil || name != "secondary" {
		t.Fatalf("first call: name=%q err=%v", name, err)
	}
	// Second call must not touch the primary again.
	if _, name, err := call(); err != nil || name != "secondary" {
		t.Fatalf("second call: name=%q err=%v", name, err)
	}
	if primaryCalls != 1 {
		t.Fatalf("primary called %d times, want 1 (sticky)", primaryCalls)
	}
	if active := c.Active(); active != "secondary" {
		t.Fatalf("Active() = %q, want secondary", active)
	}
}

func TestChain_OnFailureHookSeesEachFailure(t *testing.T) {
	c := NewChain("primary", "primary", false)
	c.Add("secondary", "secondary")

	var failed []string
	c.OnFailure(func(name string, err error) {
		if !errors.Is(err, errTest) {
			t.Errorf("hook got err %v, want errTest", err)
		}
		failed = append(failed, name)
	})

	_, name, err := Execute(c, func(v string) (string, error) {
		if v == "primary" {
			return "", errTest
		}
		return v, nil
	})
	if err != nil || name != "secondary" {
		t.Fatalf("name=%q err=%v", name, err)
	}
	if len(failed) != 1 || failed[0] != "primary" {
		t.Fatalf("hook saw %v, want [primary]", failed)
	}
}

func TestChain_NonStickyRetriesPrimary(t *testing.T) {
	c := NewChain("primary", "primary", false)
	c.Add("secondary", "secondary")

	var primaryCalls int
	for i := 0; i < 3; i++ {
		_, _, err := Execute(c, func(v string) (string, error) {
			if v == "primary" {
				primaryCalls++
				return "", errTest
			}
			return v, nil
		})
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if primaryCalls != 3 {
		t.Fatalf("primary called %d times, want 3 (non-sticky)", primaryCalls)
	}
}

func TestSTTFailover_PrimaryThrowsOnConnect(t *testing.T) {
	primary := &sttmock.Provider{StartErr: errTest}
	fallback := &sttmock.Provider{}

	f := NewSTTFailover(primary, "deepgram")
	f.AddFallback("whisper", fallback)

	handle, err := f.StartStream(context.Background(), sttStreamConfig())
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}

	// stop() must cleanly release the fallback's resources.
	if err := handle.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := handle.Close(); err != nil {
		t.Fatalf("repeated Close: %v", err)
	}
	sessions := fallback.Sessions()
	if len(sessions) != 1 || !sessions[0].Closed() {
		t.Fatalf("fallback session not released: %+v", sessions)
	}

	// A later turn goes straight to the fallback.
	if _, err := f.StartStream(context.Background(), sttStreamConfig()); err != nil {
		t.Fatalf("second StartStream: %v", err)
	}
	if primary.Starts() != 1 {
		t.Fatalf("primary started %d times, want 1", primary.Starts())
	}
	if f.Active() != "whisper" {
		t.Fatalf("Active() = %q, want whisper", f.Active())
	}
}
