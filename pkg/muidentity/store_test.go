package muidentity

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/femtomc/mu-controlplane/pkg/mucore"
	"github.com/femtomc/mu-controlplane/pkg/mujournal"
	"github.com/femtomc/mu-controlplane/pkg/mutest"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	ij, err := mujournal.OpenIdentityJournal(filepath.Join(t.TempDir(), "identities.jsonl"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ij.Close() })
	return New(ij, &mutest.SequentialFactory{})
}

func TestStore_LinkAppliesDefaultTier(t *testing.T) {
	s := newStore(t)

	b, err := s.Link("op-1", "slack", "t1", "a1", "", []string{"cp.read"}, 100)
	require.NoError(t, err)
	assert.Equal(t, mucore.DefaultTier("slack"), b.AssuranceTier)

	resolved, ok := s.Resolve("slack", "t1", "a1")
	require.True(t, ok)
	assert.Equal(t, "op-1", resolved.OperatorID)
}

func TestStore_ResolveMissingIsNotError(t *testing.T) {
	s := newStore(t)
	_, ok := s.Resolve("slack", "t1", "nobody")
	assert.False(t, ok)
}

func TestStore_RevokeClearsActiveBinding(t *testing.T) {
	s := newStore(t)
	b, err := s.Link("op-1", "discord", "t1", "a1", mucore.TierB, nil, 100)
	require.NoError(t, err)

	require.NoError(t, s.Revoke(b.BindingID, "admin", "compromised", 200))
	_, ok := s.Resolve("discord", "t1", "a1")
	assert.False(t, ok)
}
