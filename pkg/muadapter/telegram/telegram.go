// Package telegram implements the Telegram channel adapter (spec §4.7),
// including deferred delivery while the active generation is warming up.
package telegram

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/femtomc/mu-controlplane/pkg/muadapter"
	"github.com/femtomc/mu-controlplane/pkg/mucore"
)

// Adapter verifies and normalizes Telegram Bot API webhook deliveries.
// Telegram is tier_b-default per spec §3 and command-only per spec §4.7
// (there is no conversational operator session over Telegram).
type Adapter struct {
	WebhookSecret string
	BotUsername   string
	Clock         func() int64

	// Warming reports whether the active generation is currently warming
	// up; while true, Parse defers instead of returning an envelope.
	Warming func() bool

	mu      sync.Mutex
	deferred []*mucore.InboundEnvelope
}

// New constructs a telegram Adapter.
func New(webhookSecret, botUsername string, clock func() int64, warming func() bool) *Adapter {
	return &Adapter{WebhookSecret: webhookSecret, BotUsername: botUsername, Clock: clock, Warming: warming}
}

// Capability implements muadapter.Adapter.
func (a *Adapter) Capability() muadapter.Capability {
	return muadapter.Capability{
		Channel:           "telegram",
		Route:             "/webhooks/telegram",
		IngressPayload:    muadapter.PayloadJSON,
		AckFormat:         "200 empty body",
		DeliverySemantics: "at_least_once",
		DeferredDelivery:  true,
		IngressMode:       muadapter.ModeCommandOnly,
	}
}

// Verify checks Telegram's shared-secret header
// (X-Telegram-Bot-Api-Secret-Token), set via setWebhook's secret_token.
func (a *Adapter) Verify(r *http.Request, _ []byte) muadapter.VerifyResult {
	got := r.Header.Get("X-Telegram-Bot-Api-Secret-Token")
	if got == "" || a.WebhookSecret == "" {
		return muadapter.VerifyMalformed
	}
	if subtle.ConstantTimeCompare([]byte(got), []byte(a.WebhookSecret)) != 1 {
		return muadapter.VerifyMismatch
	}
	return muadapter.VerifyOK
}

// Parse implements muadapter.Adapter. When the active generation is
// warming up, the envelope is queued internally and ParsedWebhook.Deferred
// is set instead of handing back an envelope for immediate dispatch;
// DrainDeferred later replays the queue.
func (a *Adapter) Parse(r *http.Request, body []byte) (muadapter.ParsedWebhook, error) {
	var update tgbotapi.Update
	if err := json.Unmarshal(body, &update); err != nil {
		return muadapter.ParsedWebhook{}, fmt.Errorf("telegram: malformed update: %w", err)
	}
	if update.Message == nil {
		return muadapter.ParsedWebhook{}, nil
	}

	now := int64(0)
	if a.Clock != nil {
		now = a.Clock()
	}
	actorID := ""
	if update.Message.From != nil {
		actorID = strconv.FormatInt(update.Message.From.ID, 10)
	}
	chatID := strconv.FormatInt(update.Message.Chat.ID, 10)
	metadata := map[string]string{"chat_id": chatID}

	envelope := &mucore.InboundEnvelope{
		V:                     1,
		ReceivedAtMs:          now,
		DeliveryID:            strconv.Itoa(update.UpdateID),
		RequestID:             strconv.Itoa(update.UpdateID),
		Channel:               "telegram",
		ChannelTenantID:       chatID,
		ChannelConversationID: chatID,
		ActorID:               actorID,
		CommandText:           update.Message.Text,
		IdempotencyKey:        "telegram:" + strconv.Itoa(update.UpdateID),
		Fingerprint:           muadapter.Fingerprint(update.Message.Text, metadata),
		Metadata:              metadata,
	}

	if a.Warming != nil && a.Warming() {
		a.mu.Lock()
		a.deferred = append(a.deferred, envelope)
		a.mu.Unlock()
		return muadapter.ParsedWebhook{Deferred: true}, nil
	}
	return muadapter.ParsedWebhook{Envelope: envelope}, nil
}

// DrainDeferred returns and clears every envelope queued while the
// generation was warming up, for the caller to feed into the pipeline
// once cutover completes.
func (a *Adapter) DrainDeferred() []*mucore.InboundEnvelope {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := a.deferred
	a.deferred = nil
	return out
}
