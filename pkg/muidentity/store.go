// Package muidentity resolves channel principals to operator identities
// and manages the link/unlink/revoke lifecycle (spec §3 IdentityBinding,
// §4 item 2).
package muidentity

import (
	"fmt"

	"github.com/femtomc/mu-controlplane/pkg/mucore"
	"github.com/femtomc/mu-controlplane/pkg/mujournal"
)

// Store resolves identity bindings for the pipeline's identity-resolution
// step (spec §4.1 step 1).
type Store struct {
	journal *mujournal.IdentityJournal
	ids     mucore.IDFactory
}

// New constructs a Store backed by an already-open IdentityJournal.
func New(journal *mujournal.IdentityJournal, ids mucore.IDFactory) *Store {
	return &Store{journal: journal, ids: ids}
}

// Resolve looks up the active binding for (channel, tenant, actor). A
// missing binding is the caller's cue to deny with no_identity (spec §4.1
// step 1); it is not itself an error condition here.
func (s *Store) Resolve(channel, tenant, actor string) (*mucore.IdentityBinding, bool) {
	return s.journal.ActiveBinding(channel, tenant, actor)
}

// Link creates (or replaces) the active binding for (channel, tenant,
// actor). If scopes is empty, the binding gets no scopes (callers must
// supply the initial grant explicitly — there is no implicit default
// beyond assurance tier). If the active binding already belongs to
// operatorID, nothing is replaced and mucore.ErrAlreadyExists is returned.
func (s *Store) Link(operatorID, channel, tenant, actor string, tier mucore.AssuranceTier, scopes []string, nowMs int64) (*mucore.IdentityBinding, error) {
	if existing, ok := s.journal.ActiveBinding(channel, tenant, actor); ok && existing.OperatorID == operatorID {
		return nil, fmt.Errorf("%w: %s already linked for (%s,%s,%s)", mucore.ErrAlreadyExists, operatorID, channel, tenant, actor)
	}

	if tier == "" {
		tier = mucore.DefaultTier(channel)
	}

	b := mucore.IdentityBinding{
		BindingID:       s.ids.NewID("bind"),
		OperatorID:      operatorID,
		Channel:         channel,
		ChannelTenantID: tenant,
		ChannelActorID:  actor,
		AssuranceTier:   tier,
		Scopes:          append([]string(nil), scopes...),
		CreatedAtMs:     nowMs,
		UpdatedAtMs:     nowMs,
	}
	if err := s.journal.Link(b); err != nil {
		return nil, err
	}
	return &b, nil
}

// Revoke revokes a binding by ID.
func (s *Store) Revoke(bindingID, revokedBy, reason string, nowMs int64) error {
	return s.journal.Revoke(bindingID, revokedBy, reason, nowMs)
}

// Get returns a binding by ID.
func (s *Store) Get(bindingID string) (*mucore.IdentityBinding, bool) {
	return s.journal.Get(bindingID)
}
