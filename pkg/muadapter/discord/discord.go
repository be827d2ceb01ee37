// Package discord implements the Discord channel adapter (spec §4.7).
//
// Signature verification uses stdlib crypto/ed25519 directly: discordgo is
// a gateway/REST bot client and does not expose an HTTP interaction
// verifier (that responsibility sits with whoever terminates the webhook),
// so there is no ecosystem helper from the pack to wire here — see
// DESIGN.md.
package discord

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"

	"github.com/femtomc/mu-controlplane/pkg/muadapter"
	"github.com/femtomc/mu-controlplane/pkg/mucore"
)

// Adapter verifies and normalizes Discord interaction webhook deliveries.
// Discord is tier_a-default per spec §3 and conversational per spec §4.7.
type Adapter struct {
	PublicKeyHex string
	Clock        func() int64
}

// New constructs a discord Adapter.
func New(publicKeyHex string, clock func() int64) *Adapter {
	return &Adapter{PublicKeyHex: publicKeyHex, Clock: clock}
}

// Capability implements muadapter.Adapter.
func (a *Adapter) Capability() muadapter.Capability {
	return muadapter.Capability{
		Channel:           "discord",
		Route:             "/webhooks/discord",
		IngressPayload:    muadapter.PayloadJSON,
		AckFormat:         "200 with PONG on ping interactions",
		DeliverySemantics: "at_least_once",
		DeferredDelivery:  false,
		IngressMode:       muadapter.ModeConversational,
	}
}

// Verify checks Discord's Ed25519 request signature
// (X-Signature-Ed25519 / X-Signature-Timestamp headers over timestamp+body).
func (a *Adapter) Verify(r *http.Request, body []byte) muadapter.VerifyResult {
	pubKey, err := hex.DecodeString(a.PublicKeyHex)
	if err != nil || len(pubKey) != ed25519.PublicKeySize {
		return muadapter.VerifyMalformed
	}
	sigHex := r.Header.Get("X-Signature-Ed25519")
	timestamp := r.Header.Get("X-Signature-Timestamp")
	if sigHex == "" || timestamp == "" {
		return muadapter.VerifyMalformed
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return muadapter.VerifyMalformed
	}

	msg := append([]byte(timestamp), body...)
	if !ed25519.Verify(ed25519.PublicKey(pubKey), msg, sig) {
		return muadapter.VerifyMismatch
	}
	return muadapter.VerifyOK
}

// interactionPayload mirrors the subset of discordgo.Interaction this
// adapter cares about: message-component/application-command interactions
// carrying free text, plus the type-1 PING handshake.
type interactionPayload struct {
	Type      discordgo.InteractionType `json:"type"`
	GuildID   string                    `json:"guild_id"`
	ChannelID string                    `json:"channel_id"`
	ID        string                    `json:"id"`
	Member    *struct {
		User *discordgo.User `json:"user"`
	} `json:"member"`
	Data *struct {
		Name    string `json:"name"`
		Options []struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		} `json:"options"`
	} `json:"data"`
}

// Parse implements muadapter.Adapter. PING interactions (type 1) have no
// envelope — callers respond 200 with `{"type":1}` and never reach the
// pipeline.
func (a *Adapter) Parse(r *http.Request, body []byte) (muadapter.ParsedWebhook, error) {
	var payload interactionPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return muadapter.ParsedWebhook{}, fmt.Errorf("discord: malformed payload: %w", err)
	}
	if payload.Type == discordgo.InteractionPing {
		return muadapter.ParsedWebhook{}, nil
	}

	var actorID string
	if payload.Member != nil && payload.Member.User != nil {
		actorID = payload.Member.User.ID
	}
	var commandText string
	if payload.Data != nil {
		commandText = payload.Data.Name
		for _, opt := range payload.Data.Options {
			commandText += " " + opt.Value
		}
	}

	now := int64(0)
	if a.Clock != nil {
		now = a.Clock()
	}
	metadata := map[string]string{"guild_id": payload.GuildID, "channel_id": payload.ChannelID}
	envelope := &mucore.InboundEnvelope{
		V:                     1,
		ReceivedAtMs:          now,
		DeliveryID:            payload.ID,
		RequestID:             payload.ID,
		Channel:               "discord",
		ChannelTenantID:       payload.GuildID,
		ChannelConversationID: payload.ChannelID,
		ActorID:               actorID,
		CommandText:           commandText,
		IdempotencyKey:        payload.ID,
		Fingerprint:           muadapter.Fingerprint(commandText, metadata),
		Metadata:              metadata,
	}
	return muadapter.ParsedWebhook{Envelope: envelope}, nil
}
