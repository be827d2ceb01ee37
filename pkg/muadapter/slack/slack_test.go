package slack

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/femtomc/mu-controlplane/pkg/muadapter"
)

func sign(secret, ts string, body []byte) string {
	base := "v0:" + ts + ":" + string(body)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(base))
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}

func TestAdapter_VerifyAcceptsValidSignature(t *testing.T) {
	a := New("shh", func() int64 { return 1000 })
	body := []byte(`{"type":"event_callback"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/slack", bytes.NewReader(body))
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	req.Header.Set("X-Slack-Request-Timestamp", ts)
	req.Header.Set("X-Slack-Signature", sign("shh", ts, body))

	assert.Equal(t, muadapter.VerifyOK, a.Verify(req, body))
}

func TestAdapter_VerifyRejectsBadSignature(t *testing.T) {
	a := New("shh", nil)
	body := []byte(`{"type":"event_callback"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/slack", bytes.NewReader(body))
	req.Header.Set("X-Slack-Request-Timestamp", strconv.FormatInt(time.Now().Unix(), 10))
	req.Header.Set("X-Slack-Signature", "v0=deadbeef")

	assert.Equal(t, muadapter.VerifyMismatch, a.Verify(req, body))
}

func TestAdapter_ParseURLVerificationReturnsChallenge(t *testing.T) {
	a := New("shh", nil)
	body := []byte(`{"type":"url_verification","challenge":"abc123"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/slack", bytes.NewReader(body))

	out, err := a.Parse(req, body)
	require.NoError(t, err)
	assert.Equal(t, "abc123", out.Challenge)
	assert.Nil(t, out.Envelope)
}

func TestAdapter_ParseEventCallbackNormalizesEnvelope(t *testing.T) {
	a := New("shh", func() int64 { return 42 })
	body := []byte(`{"type":"event_callback","team_id":"T1","event":{"type":"message","channel":"C1","user":"U1","text":"run.list","ts":"123.45"}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/slack", bytes.NewReader(body))

	out, err := a.Parse(req, body)
	require.NoError(t, err)
	require.NotNil(t, out.Envelope)
	assert.Equal(t, "slack", out.Envelope.Channel)
	assert.Equal(t, "T1", out.Envelope.ChannelTenantID)
	assert.Equal(t, "C1", out.Envelope.ChannelConversationID)
	assert.Equal(t, "U1", out.Envelope.ActorID)
	assert.Equal(t, "run.list", out.Envelope.CommandText)
	assert.NotEmpty(t, out.Envelope.Fingerprint)
}
