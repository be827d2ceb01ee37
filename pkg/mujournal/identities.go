package mujournal

import (
	"encoding/json"
	"sync"

	"github.com/femtomc/mu-controlplane/pkg/mucore"
)

type identityEntry struct {
	Binding mucore.IdentityBinding `json:"binding"`
}

// tripleKey is the (channel, tenant, actor) lookup key.
func tripleKey(channel, tenant, actor string) string {
	return channel + "\x00" + tenant + "\x00" + actor
}

// IdentityJournal is the append-only link/unlink/revoke journal (spec §3
// IdentityBinding, §6 identities.jsonl). Invariant enforced on append: at
// most one 'active' binding per (channel, tenant, actor) at any replay
// point (spec §8).
type IdentityJournal struct {
	j *Journal

	mu       sync.RWMutex
	byID     map[string]*mucore.IdentityBinding
	activeByTriple map[string]string // tripleKey -> binding_id
}

// OpenIdentityJournal opens (or creates) identities.jsonl and replays it.
func OpenIdentityJournal(path string) (*IdentityJournal, error) {
	j, err := Open(path)
	if err != nil {
		return nil, err
	}
	ij := &IdentityJournal{
		j:              j,
		byID:           make(map[string]*mucore.IdentityBinding),
		activeByTriple: make(map[string]string),
	}
	if err := ij.load(); err != nil {
		return nil, err
	}
	return ij, nil
}

func (ij *IdentityJournal) load() error {
	return ij.j.Load(func(line []byte) error {
		var e identityEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return err
		}
		b := e.Binding
		ij.byID[b.BindingID] = &b
		key := tripleKey(b.Channel, b.ChannelTenantID, b.ChannelActorID)
		if b.Status == mucore.BindingActive {
			ij.activeByTriple[key] = b.BindingID
		} else if ij.activeByTriple[key] == b.BindingID {
			delete(ij.activeByTriple, key)
		}
		return nil
	})
}

// ActiveBinding looks up the active binding for (channel, tenant, actor).
func (ij *IdentityJournal) ActiveBinding(channel, tenant, actor string) (*mucore.IdentityBinding, bool) {
	ij.mu.RLock()
	defer ij.mu.RUnlock()
	id, ok := ij.activeByTriple[tripleKey(channel, tenant, actor)]
	if !ok {
		return nil, false
	}
	b := *ij.byID[id]
	return &b, true
}

// Get returns a binding by ID.
func (ij *IdentityJournal) Get(bindingID string) (*mucore.IdentityBinding, bool) {
	ij.mu.RLock()
	defer ij.mu.RUnlock()
	b, ok := ij.byID[bindingID]
	if !ok {
		return nil, false
	}
	cp := *b
	return &cp, true
}

// Link creates a new active binding for (channel, tenant, actor), unlinking
// any prior active binding for that triple first so the invariant in spec
// §8 ("at most one active binding per triple") holds after the append.
func (ij *IdentityJournal) Link(b mucore.IdentityBinding) error {
	ij.mu.Lock()
	key := tripleKey(b.Channel, b.ChannelTenantID, b.ChannelActorID)
	priorID, hasPrior := ij.activeByTriple[key]
	ij.mu.Unlock()

	if hasPrior {
		prior := *ij.byID[priorID]
		prior.Status = mucore.BindingUnlinked
		prior.UpdatedAtMs = b.CreatedAtMs
		if err := ij.j.Append(identityEntry{Binding: prior}); err != nil {
			return err
		}
		ij.mu.Lock()
		ij.byID[prior.BindingID] = &prior
		delete(ij.activeByTriple, key)
		ij.mu.Unlock()
	}

	b.Status = mucore.BindingActive
	if err := ij.j.Append(identityEntry{Binding: b}); err != nil {
		return err
	}
	ij.mu.Lock()
	bc := b
	ij.byID[b.BindingID] = &bc
	ij.activeByTriple[key] = b.BindingID
	ij.mu.Unlock()
	return nil
}

// Revoke marks a binding revoked.
func (ij *IdentityJournal) Revoke(bindingID, revokedBy, reason string, atMs int64) error {
	ij.mu.Lock()
	b, ok := ij.byID[bindingID]
	if !ok {
		ij.mu.Unlock()
		return mucore.ErrNotFound
	}
	updated := *b
	ij.mu.Unlock()

	updated.Status = mucore.BindingRevoked
	updated.RevokedBy = revokedBy
	updated.RevokeReason = reason
	updated.UpdatedAtMs = atMs

	if err := ij.j.Append(identityEntry{Binding: updated}); err != nil {
		return err
	}

	ij.mu.Lock()
	ij.byID[bindingID] = &updated
	key := tripleKey(updated.Channel, updated.ChannelTenantID, updated.ChannelActorID)
	if ij.activeByTriple[key] == bindingID {
		delete(ij.activeByTriple, key)
	}
	ij.mu.Unlock()
	return nil
}

// Close releases the underlying file handle.
func (ij *IdentityJournal) Close() error {
	return ij.j.Close()
}
