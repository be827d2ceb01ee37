package muoperator

import (
	"context"
	"sync"
)

// FixtureBackend is a deterministic Backend double for tests: it returns a
// scripted TurnResult per command text, recording every call it receives.
type FixtureBackend struct {
	mu       sync.Mutex
	scripted map[string]TurnResult
	fallback TurnResult
	calls    []TurnInput
}

// NewFixtureBackend constructs a FixtureBackend whose default response
// (used when CommandText has no scripted entry) is fallback.
func NewFixtureBackend(fallback TurnResult) *FixtureBackend {
	return &FixtureBackend{scripted: make(map[string]TurnResult), fallback: fallback}
}

// Script registers the TurnResult to return when CommandText equals text.
func (b *FixtureBackend) Script(text string, result TurnResult) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scripted[text] = result
}

// RunTurn implements Backend.
func (b *FixtureBackend) RunTurn(_ context.Context, in TurnInput) (TurnResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, in)
	if r, ok := b.scripted[in.CommandText]; ok {
		return r, nil
	}
	return b.fallback, nil
}

// Calls returns every TurnInput RunTurn has received, in order.
func (b *FixtureBackend) Calls() []TurnInput {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]TurnInput(nil), b.calls...)
}
