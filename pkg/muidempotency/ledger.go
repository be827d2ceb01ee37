// Package muidempotency wraps the idempotency journal with the claim
// contract the command pipeline calls during ingress (spec §4.1 step 4,
// §3 IdempotencyClaim).
package muidempotency

import (
	"github.com/femtomc/mu-controlplane/pkg/mucore"
	"github.com/femtomc/mu-controlplane/pkg/mujournal"
)

// DefaultTTLMs is used when a caller does not specify a TTL. Spec §9 leaves
// the exact default unspecified for claims outside the worked examples; 24h
// comfortably spans a chat-retry window without growing the ledger
// unbounded between GC passes.
const DefaultTTLMs = 24 * 60 * 60 * 1000

// Ledger is the pipeline-facing idempotency gate.
type Ledger struct {
	journal *mujournal.IdempotencyJournal
}

// New constructs a Ledger over an already-open IdempotencyJournal.
func New(journal *mujournal.IdempotencyJournal) *Ledger {
	return &Ledger{journal: journal}
}

// Claim attempts to claim (key, fingerprint) for commandID. ttlMs<=0 uses
// DefaultTTLMs.
func (l *Ledger) Claim(key, fingerprint, commandID string, ttlMs, nowMs int64) (mucore.ClaimOutcome, string, error) {
	if ttlMs <= 0 {
		ttlMs = DefaultTTLMs
	}
	return l.journal.Claim(key, fingerprint, commandID, ttlMs, nowMs)
}

// Lookup returns the live claim for key, if any.
func (l *Ledger) Lookup(key string, nowMs int64) (*mucore.IdempotencyClaim, error) {
	return l.journal.Lookup(key, nowMs)
}
