package vscode

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/femtomc/mu-controlplane/pkg/muadapter"
)

func TestAdapter_VerifySharedSecret(t *testing.T) {
	a := New("topsecret", nil)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/vscode", nil)
	req.Header.Set("X-Mu-Shared-Secret", "topsecret")
	assert.Equal(t, muadapter.VerifyOK, a.Verify(req, nil))

	req.Header.Set("X-Mu-Shared-Secret", "wrong")
	assert.Equal(t, muadapter.VerifyMismatch, a.Verify(req, nil))
}

func TestAdapter_ParseNormalizesPayload(t *testing.T) {
	a := New("topsecret", func() int64 { return 5 })
	body := []byte(`{"session_id":"s1","session_kind":"editor","actor_id":"dev","body":"issue.close mu-1","repo_root":"/repo"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/vscode", bytes.NewReader(body))

	out, err := a.Parse(req, body)
	require.NoError(t, err)
	require.NotNil(t, out.Envelope)
	assert.Equal(t, "vscode", out.Envelope.Channel)
	assert.Equal(t, "s1", out.Envelope.ChannelConversationID)
	assert.Equal(t, "dev", out.Envelope.ActorID)
	assert.Equal(t, "/repo", out.Envelope.RepoRoot)
	assert.Equal(t, "issue.close mu-1", out.Envelope.CommandText)
}
