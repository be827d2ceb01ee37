package muidempotency

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/femtomc/mu-controlplane/pkg/mucore"
	"github.com/femtomc/mu-controlplane/pkg/mujournal"
)

func TestLedger_ClaimUsesDefaultTTLWhenUnset(t *testing.T) {
	ij, err := mujournal.OpenIdempotencyJournal(filepath.Join(t.TempDir(), "idempotency.jsonl"))
	require.NoError(t, err)
	defer ij.Close()

	l := New(ij)
	outcome, cmdID, err := l.Claim("k1", "fp1", "cmd-1", 0, 1000)
	require.NoError(t, err)
	assert.Equal(t, mucore.ClaimCreated, outcome)
	assert.Equal(t, "cmd-1", cmdID)

	claim, err := l.Lookup("k1", 1000+DefaultTTLMs-1)
	require.NoError(t, err)
	assert.Equal(t, int64(1000+DefaultTTLMs), claim.ExpiresAtMs)
}
