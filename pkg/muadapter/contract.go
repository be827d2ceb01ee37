// Package muadapter defines the per-channel adapter ingress contract
// (spec §4.7): verification, payload normalization, and the capability
// metadata exposed at GET /api/control-plane/channels.
package muadapter

import (
	"net/http"

	"github.com/femtomc/mu-controlplane/pkg/mucore"
)

// IngressPayload names the wire encoding of a channel's webhook body.
type IngressPayload string

const (
	PayloadJSON           IngressPayload = "json"
	PayloadFormURLEncoded IngressPayload = "form_urlencoded"
)

// IngressMode determines whether command text is parsed directly
// (command_only, e.g. a slash command) or routed through the operator
// backend for conversational resolution (conversational).
type IngressMode string

const (
	ModeCommandOnly   IngressMode = "command_only"
	ModeConversational IngressMode = "conversational"
)

// Capability is the per-channel row served by GET /api/control-plane/channels.
type Capability struct {
	Channel           string         `json:"channel"`
	Route             string         `json:"route"`
	IngressPayload    IngressPayload `json:"ingress_payload"`
	AckFormat         string         `json:"ack_format"`
	DeliverySemantics string         `json:"delivery_semantics"`
	DeferredDelivery  bool           `json:"deferred_delivery"`
	IngressMode       IngressMode    `json:"ingress_mode"`
}

// VerifyResult is the outcome of signature/secret verification.
type VerifyResult int

const (
	VerifyOK VerifyResult = iota
	VerifyMismatch
	VerifyMalformed
)

// ParsedWebhook is the normalized result of handling one webhook delivery.
type ParsedWebhook struct {
	// Envelope is set when the payload normalizes to a pipeline inbound
	// event.
	Envelope *mucore.InboundEnvelope
	// Challenge is set for Slack's URL verification handshake: the
	// adapter asks the caller to echo this value back verbatim instead
	// of invoking the pipeline.
	Challenge string
	// Deferred is true when the payload was queued for later drain
	// instead of being handed to the pipeline immediately (Telegram,
	// during an active generation's warmup).
	Deferred bool
}

// Adapter is the contract every channel satisfies (spec §4.7).
type Adapter interface {
	Capability() Capability
	// Verify checks the webhook's signature/shared-secret against r's
	// headers and the raw body.
	Verify(r *http.Request, body []byte) VerifyResult
	// Parse normalizes a verified payload into a ParsedWebhook.
	Parse(r *http.Request, body []byte) (ParsedWebhook, error)
}
