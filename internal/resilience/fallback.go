// Package resilience provides provider failover primitives for the interview
// pipeline.
//
// The central type is [Chain], an ordered list of same-typed providers tried
// in registration order. A chain can be sticky: once an entry fails it is
// never retried for the lifetime of the chain, which is the policy the
// speech-to-text adapter needs — a cloud service that failed to connect at
// turn start is not probed again mid-interview. Non-sticky chains retry the
// primary on every call, which is what question narration wants.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrAllFailed is returned when every entry in a [Chain] fails or is tripped.
var ErrAllFailed = errors.New("all providers failed")

// entry pairs a provider value with its health state.
type entry[T any] struct {
	name    string
	value   T
	tripped bool
}

// Chain wraps a primary and zero or more fallback instances of the same
// provider type, tried in registration order.
type Chain[T any] struct {
	mu        sync.Mutex
	entries   []entry[T]
	sticky    bool
	onFailure func(name string, err error)
}

// NewChain creates a [Chain] with primary as the first entry. When sticky is
// true, a failed entry is permanently skipped on later calls.
func NewChain[T any](primary T, primaryName string, sticky bool) *Chain[T] {
	return &Chain[T]{
		entries: []entry[T]{{name: primaryName, value: primary}},
		sticky:  sticky,
	}
}

// Add appends a fallback provider. Fallbacks are tried in the order they are
// added, after the primary.
func (c *Chain[T]) Add(name string, fallback T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry[T]{name: name, value: fallback})
}

// OnFailure registers a hook invoked once for each entry that fails during
// [Execute], with the entry's name and the error it returned.
func (c *Chain[T]) OnFailure(fn func(name string, err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onFailure = fn
}

// Primary returns the name of the first registered entry.
func (c *Chain[T]) Primary() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[0].name
}

// Active returns the name of the first non-tripped entry, or "" when every
// entry has tripped.
func (c *Chain[T]) Active() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		if !e.tripped {
			return e.name
		}
	}
	return ""
}

// Execute tries fn against each healthy entry in order until one succeeds,
// returning the name of the entry that served the call. On a sticky chain a
// failing entry is tripped and skipped by subsequent calls. Returns
// [ErrAllFailed] wrapped with the last error if every entry fails.
//
// Execute is a package-level function because Go does not support
// method-level type parameters.
func Execute[T, R any](c *Chain[T], fn func(value T) (R, error)) (R, string, error) {
	var (
		lastErr error
		zero    R
	)

	c.mu.Lock()
	entries := append([]entry[T](nil), c.entries...)
	onFailure := c.onFailure
	c.mu.Unlock()

	for i := range entries {
		e := &entries[i]
		if e.tripped {
			continue
		}

		result, err := fn(e.value)
		if err == nil {
			return result, e.name, nil
		}
		lastErr = err
		if onFailure != nil {
			onFailure(e.name, err)
		}

		if c.sticky {
			c.trip(i)
			slog.Warn("provider failed, switching to fallback for the rest of the session",
				"provider", e.name, "error", err)
		} else {
			slog.Warn("provider failed, trying next",
				"provider", e.name, "error", err)
		}
	}

	return zero, "", fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}

// trip marks the entry at index i as permanently failed.
func (c *Chain[T]) trip(i int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < len(c.entries) {
		c.entries[i].tripped = true
	}
}
