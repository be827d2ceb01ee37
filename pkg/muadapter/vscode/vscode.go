// Package vscode implements the VSCode editor-surface adapter (spec §4.7),
// structurally identical to the Neovim adapter's shared-secret + session
// fields (both are in-editor frontend surfaces with a synchronous
// session-turn path).
package vscode

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/femtomc/mu-controlplane/pkg/muadapter"
	"github.com/femtomc/mu-controlplane/pkg/mucore"
)

// Adapter verifies and normalizes VSCode webhook deliveries. VSCode is
// tier_c-default per spec §3 and command-only per spec §4.7.
type Adapter struct {
	SharedSecret string
	Clock        func() int64
}

// New constructs a vscode Adapter.
func New(sharedSecret string, clock func() int64) *Adapter {
	return &Adapter{SharedSecret: sharedSecret, Clock: clock}
}

// Capability implements muadapter.Adapter.
func (a *Adapter) Capability() muadapter.Capability {
	return muadapter.Capability{
		Channel:           "vscode",
		Route:             "/webhooks/vscode",
		IngressPayload:    muadapter.PayloadJSON,
		AckFormat:         "200 with JSON body",
		DeliverySemantics: "at_least_once",
		DeferredDelivery:  false,
		IngressMode:       muadapter.ModeCommandOnly,
	}
}

// Verify implements muadapter.Adapter via the shared shared-secret scheme.
func (a *Adapter) Verify(r *http.Request, _ []byte) muadapter.VerifyResult {
	return muadapter.VerifySharedSecret(r, a.SharedSecret)
}

type payload struct {
	SessionID      string `json:"session_id"`
	SessionKind    string `json:"session_kind"`
	ActorID        string `json:"actor_id"`
	Body           string `json:"body"`
	RepoRoot       string `json:"repo_root"`
	IdempotencyKey string `json:"idempotency_key"`
}

// Parse implements muadapter.Adapter.
func (a *Adapter) Parse(r *http.Request, body []byte) (muadapter.ParsedWebhook, error) {
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return muadapter.ParsedWebhook{}, fmt.Errorf("vscode: malformed payload: %w", err)
	}

	now := int64(0)
	if a.Clock != nil {
		now = a.Clock()
	}
	metadata := map[string]string{"session_id": p.SessionID, "session_kind": p.SessionKind}
	idemKey := p.IdempotencyKey
	if idemKey == "" {
		idemKey = "vscode:" + p.SessionID + ":" + p.Body
	}
	envelope := &mucore.InboundEnvelope{
		V:                     1,
		ReceivedAtMs:          now,
		Channel:               "vscode",
		ChannelTenantID:       p.RepoRoot,
		ChannelConversationID: p.SessionID,
		ActorID:               p.ActorID,
		RepoRoot:              p.RepoRoot,
		CommandText:           p.Body,
		IdempotencyKey:        idemKey,
		Fingerprint:           muadapter.Fingerprint(p.Body, metadata),
		Metadata:              metadata,
	}
	return muadapter.ParsedWebhook{Envelope: envelope}, nil
}
