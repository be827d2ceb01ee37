// Package slack implements the Slack channel adapter (spec §4.7): signed
// webhook verification, payload normalization, and the Slack URL
// verification handshake.
package slack

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	goslack "github.com/slack-go/slack"

	"github.com/femtomc/mu-controlplane/pkg/muadapter"
	"github.com/femtomc/mu-controlplane/pkg/mucore"
)

// Adapter verifies and normalizes Slack Events API webhook deliveries.
// Slack is treated as a conversational, tier_a-default channel per spec §3.
type Adapter struct {
	SigningSecret string
	Clock         func() int64
}

// New constructs a slack Adapter.
func New(signingSecret string, clock func() int64) *Adapter {
	return &Adapter{SigningSecret: signingSecret, Clock: clock}
}

// Capability implements muadapter.Adapter.
func (a *Adapter) Capability() muadapter.Capability {
	return muadapter.Capability{
		Channel:           "slack",
		Route:             "/webhooks/slack",
		IngressPayload:    muadapter.PayloadJSON,
		AckFormat:         "200 with optional challenge echo",
		DeliverySemantics: "at_least_once",
		DeferredDelivery:  false,
		IngressMode:       muadapter.ModeConversational,
	}
}

// Verify checks Slack's HMAC-SHA256 request signature
// (X-Slack-Signature / X-Slack-Request-Timestamp), using the slack-go SDK's
// own verifier rather than hand-rolling HMAC comparison.
func (a *Adapter) Verify(r *http.Request, body []byte) muadapter.VerifyResult {
	verifier, err := goslack.NewSecretsVerifier(r.Header, a.SigningSecret)
	if err != nil {
		return muadapter.VerifyMalformed
	}
	if _, err := verifier.Write(body); err != nil {
		return muadapter.VerifyMalformed
	}
	if err := verifier.Ensure(); err != nil {
		return muadapter.VerifyMismatch
	}
	return muadapter.VerifyOK
}

type eventEnvelope struct {
	Type      string          `json:"type"`
	Challenge string          `json:"challenge"`
	TeamID    string          `json:"team_id"`
	Event     json.RawMessage `json:"event"`
}

type messageEvent struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
	User    string `json:"user"`
	Text    string `json:"text"`
	Ts      string `json:"ts"`
}

// Parse implements muadapter.Adapter. Slack's url_verification handshake
// short-circuits to a Challenge result; event_callback payloads normalize
// to an InboundEnvelope.
func (a *Adapter) Parse(r *http.Request, body []byte) (muadapter.ParsedWebhook, error) {
	var env eventEnvelope
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&env); err != nil {
		return muadapter.ParsedWebhook{}, fmt.Errorf("slack: malformed payload: %w", err)
	}

	if env.Type == "url_verification" {
		return muadapter.ParsedWebhook{Challenge: env.Challenge}, nil
	}

	var msg messageEvent
	if len(env.Event) > 0 {
		if err := json.Unmarshal(env.Event, &msg); err != nil {
			return muadapter.ParsedWebhook{}, fmt.Errorf("slack: malformed event: %w", err)
		}
	}

	now := int64(0)
	if a.Clock != nil {
		now = a.Clock()
	}

	metadata := map[string]string{"team_id": env.TeamID, "channel": msg.Channel}
	envelope := &mucore.InboundEnvelope{
		V:                     1,
		ReceivedAtMs:          now,
		DeliveryID:            msg.Ts,
		RequestID:             msg.Ts,
		Channel:               "slack",
		ChannelTenantID:       env.TeamID,
		ChannelConversationID: msg.Channel,
		ActorID:               msg.User,
		RepoRoot:              "",
		CommandText:           msg.Text,
		IdempotencyKey:        env.TeamID + ":" + msg.Channel + ":" + msg.Ts,
		Fingerprint:           muadapter.Fingerprint(msg.Text, metadata),
		Metadata:              metadata,
	}
	return muadapter.ParsedWebhook{Envelope: envelope}, nil
}
