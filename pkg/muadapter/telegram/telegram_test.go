package telegram

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/femtomc/mu-controlplane/pkg/muadapter"
)

func TestAdapter_VerifyRejectsWrongSecret(t *testing.T) {
	a := New("shh", "mu_bot", nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/telegram", nil)
	req.Header.Set("X-Telegram-Bot-Api-Secret-Token", "wrong")

	assert.Equal(t, muadapter.VerifyMismatch, a.Verify(req, nil))
}

func TestAdapter_VerifyAcceptsMatchingSecret(t *testing.T) {
	a := New("shh", "mu_bot", nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/telegram", nil)
	req.Header.Set("X-Telegram-Bot-Api-Secret-Token", "shh")

	assert.Equal(t, muadapter.VerifyOK, a.Verify(req, nil))
}

func TestAdapter_ParseNormalizesUpdate(t *testing.T) {
	a := New("shh", "mu_bot", func() int64 { return 99 }, func() bool { return false })
	body := []byte(`{"update_id":5,"message":{"message_id":1,"from":{"id":111},"chat":{"id":222},"text":"run.list"}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/telegram", bytes.NewReader(body))

	out, err := a.Parse(req, body)
	require.NoError(t, err)
	require.NotNil(t, out.Envelope)
	assert.False(t, out.Deferred)
	assert.Equal(t, "telegram", out.Envelope.Channel)
	assert.Equal(t, "222", out.Envelope.ChannelTenantID)
	assert.Equal(t, "111", out.Envelope.ActorID)
	assert.Equal(t, "run.list", out.Envelope.CommandText)
}

func TestAdapter_ParseDefersDuringWarmupAndDrainsLater(t *testing.T) {
	a := New("shh", "mu_bot", func() int64 { return 99 }, func() bool { return true })
	body := []byte(`{"update_id":5,"message":{"message_id":1,"from":{"id":111},"chat":{"id":222},"text":"run.list"}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/telegram", bytes.NewReader(body))

	out, err := a.Parse(req, body)
	require.NoError(t, err)
	assert.True(t, out.Deferred)
	assert.Nil(t, out.Envelope)

	drained := a.DrainDeferred()
	require.Len(t, drained, 1)
	assert.Equal(t, "run.list", drained[0].CommandText)

	assert.Empty(t, a.DrainDeferred())
}
