package discord

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/femtomc/mu-controlplane/pkg/muadapter"
)

func TestAdapter_VerifyAcceptsValidSignature(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	a := New(hex.EncodeToString(pub), nil)
	body := []byte(`{"type":2}`)
	ts := "1700000000"
	sig := ed25519.Sign(priv, append([]byte(ts), body...))

	req := httptest.NewRequest(http.MethodPost, "/webhooks/discord", bytes.NewReader(body))
	req.Header.Set("X-Signature-Ed25519", hex.EncodeToString(sig))
	req.Header.Set("X-Signature-Timestamp", ts)

	assert.Equal(t, muadapter.VerifyOK, a.Verify(req, body))
}

func TestAdapter_VerifyRejectsTamperedBody(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	a := New(hex.EncodeToString(pub), nil)
	body := []byte(`{"type":2}`)
	ts := "1700000000"
	sig := ed25519.Sign(priv, append([]byte(ts), body...))

	req := httptest.NewRequest(http.MethodPost, "/webhooks/discord", bytes.NewReader(body))
	req.Header.Set("X-Signature-Ed25519", hex.EncodeToString(sig))
	req.Header.Set("X-Signature-Timestamp", ts)

	tampered := []byte(`{"type":99}`)
	assert.Equal(t, muadapter.VerifyMismatch, a.Verify(req, tampered))
}

func TestAdapter_ParsePingReturnsNoEnvelope(t *testing.T) {
	a := New("", nil)
	body := []byte(`{"type":1}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/discord", bytes.NewReader(body))

	out, err := a.Parse(req, body)
	require.NoError(t, err)
	assert.Nil(t, out.Envelope)
}

func TestAdapter_ParseApplicationCommandNormalizesEnvelope(t *testing.T) {
	a := New("", func() int64 { return 7 })
	body := []byte(`{"type":2,"id":"i1","guild_id":"g1","channel_id":"c1","member":{"user":{"id":"u1"}},"data":{"name":"run.list","options":[]}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/discord", bytes.NewReader(body))

	out, err := a.Parse(req, body)
	require.NoError(t, err)
	require.NotNil(t, out.Envelope)
	assert.Equal(t, "discord", out.Envelope.Channel)
	assert.Equal(t, "g1", out.Envelope.ChannelTenantID)
	assert.Equal(t, "c1", out.Envelope.ChannelConversationID)
	assert.Equal(t, "u1", out.Envelope.ActorID)
	assert.Equal(t, "run.list", out.Envelope.CommandText)
}
