package mujournal

import (
	"encoding/json"
	"sync"

	"github.com/femtomc/mu-controlplane/pkg/mucore"
)

// IdempotencyJournal is the append-only claim/duplicate/conflict ledger
// (spec §3 IdempotencyClaim, §4 item 4). Lookups past expiry return
// mucore.ErrNotFound — callers treat that as "absent" per spec §8.
type IdempotencyJournal struct {
	j *Journal

	mu     sync.Mutex
	claims map[string]*mucore.IdempotencyClaim // key -> claim
}

// OpenIdempotencyJournal opens (or creates) idempotency.jsonl and replays it.
func OpenIdempotencyJournal(path string) (*IdempotencyJournal, error) {
	j, err := Open(path)
	if err != nil {
		return nil, err
	}
	ij := &IdempotencyJournal{j: j, claims: make(map[string]*mucore.IdempotencyClaim)}
	if err := ij.load(); err != nil {
		return nil, err
	}
	return ij, nil
}

func (ij *IdempotencyJournal) load() error {
	return ij.j.Load(func(line []byte) error {
		var e mucore.LedgerEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return err
		}
		switch e.Kind {
		case mucore.LedgerClaim:
			ij.claims[e.Key] = &mucore.IdempotencyClaim{
				Key:         e.Key,
				Fingerprint: e.Fingerprint,
				CommandID:   e.CommandID,
				TTLMs:       e.TTLMs,
				FirstSeenMs: e.AtMs,
				LastSeenMs:  e.AtMs,
				ExpiresAtMs: e.AtMs + e.TTLMs,
			}
		case mucore.LedgerDuplicate, mucore.LedgerConflict:
			if c, ok := ij.claims[e.Key]; ok {
				c.LastSeenMs = e.AtMs
			}
		}
		return nil
	})
}

// Claim attempts to claim (key, fingerprint) for commandID with the given
// TTL, evaluated at nowMs. Returns the outcome and, for duplicate/conflict,
// the CommandID of the prior claim.
//
//   - created: key was unclaimed (or its prior claim expired); a 'claim'
//     row is appended and the new claim becomes live.
//   - duplicate: key is live with the same fingerprint; a 'duplicate' row
//     is appended and the existing CommandID is returned.
//   - conflict: key is live with a different fingerprint; a 'conflict' row
//     is appended and the existing CommandID is returned.
func (ij *IdempotencyJournal) Claim(key, fingerprint, commandID string, ttlMs, nowMs int64) (mucore.ClaimOutcome, string, error) {
	ij.mu.Lock()
	existing, ok := ij.claims[key]
	live := ok && nowMs < existing.ExpiresAtMs
	ij.mu.Unlock()

	if live {
		outcome := mucore.ClaimDuplicate
		if existing.Fingerprint != fingerprint {
			outcome = mucore.ClaimConflict
		}
		kind := mucore.LedgerDuplicate
		if outcome == mucore.ClaimConflict {
			kind = mucore.LedgerConflict
		}
		if err := ij.j.Append(mucore.LedgerEntry{
			Kind: kind, Key: key, Fingerprint: fingerprint, CommandID: existing.CommandID, AtMs: nowMs,
		}); err != nil {
			return "", "", err
		}
		ij.mu.Lock()
		existing.LastSeenMs = nowMs
		ij.mu.Unlock()
		return outcome, existing.CommandID, nil
	}

	if err := ij.j.Append(mucore.LedgerEntry{
		Kind: mucore.LedgerClaim, Key: key, Fingerprint: fingerprint, CommandID: commandID, TTLMs: ttlMs, AtMs: nowMs,
	}); err != nil {
		return "", "", err
	}

	ij.mu.Lock()
	ij.claims[key] = &mucore.IdempotencyClaim{
		Key: key, Fingerprint: fingerprint, CommandID: commandID,
		TTLMs: ttlMs, FirstSeenMs: nowMs, LastSeenMs: nowMs, ExpiresAtMs: nowMs + ttlMs,
	}
	ij.mu.Unlock()
	return mucore.ClaimCreated, commandID, nil
}

// Lookup returns the live claim for key at nowMs, or mucore.ErrNotFound if
// absent or expired.
func (ij *IdempotencyJournal) Lookup(key string, nowMs int64) (*mucore.IdempotencyClaim, error) {
	ij.mu.Lock()
	defer ij.mu.Unlock()
	c, ok := ij.claims[key]
	if !ok || nowMs >= c.ExpiresAtMs {
		return nil, mucore.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// Close releases the underlying file handle.
func (ij *IdempotencyJournal) Close() error {
	return ij.j.Close()
}
