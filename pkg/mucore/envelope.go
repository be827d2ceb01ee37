package mucore

// InboundEnvelope is the normalized shape every adapter produces before
// handing a message to the pipeline (spec §3).
type InboundEnvelope struct {
	V                     int               `json:"v"`
	ReceivedAtMs          int64             `json:"received_at_ms"`
	DeliveryID            string            `json:"delivery_id"`
	RequestID             string            `json:"request_id"`
	Channel               string            `json:"channel"`
	ChannelTenantID       string            `json:"channel_tenant_id"`
	ChannelConversationID string            `json:"channel_conversation_id"`
	ActorID               string            `json:"actor_id"`
	AssuranceTier         AssuranceTier     `json:"assurance_tier,omitempty"`
	RepoRoot              string            `json:"repo_root"`
	CommandText           string            `json:"command_text"`
	ScopeRequired         string            `json:"scope_required,omitempty"`
	ScopeEffective        []string          `json:"scope_effective,omitempty"`
	TargetType            string            `json:"target_type,omitempty"`
	TargetID              string            `json:"target_id,omitempty"`
	IdempotencyKey        string            `json:"idempotency_key"`
	Fingerprint           string            `json:"fingerprint"`
	Attachments           []AttachmentRef   `json:"attachments,omitempty"`
	Metadata              map[string]string `json:"metadata,omitempty"`
}

// AttachmentRef is a lightweight pointer to an attachment carried on an
// inbound envelope, resolved against the attachment index on ingest.
type AttachmentRef struct {
	SourceFileID string `json:"source_file_id,omitempty"`
	Filename     string `json:"filename,omitempty"`
	MimeType     string `json:"mime_type,omitempty"`
	SizeBytes    int64  `json:"size_bytes,omitempty"`
	SHA256       string `json:"sha256,omitempty"`
}

// OutboundKind discriminates the outbound envelope variants (spec §3).
type OutboundKind string

// Outbound envelope kinds.
const (
	OutboundAck       OutboundKind = "ack"
	OutboundLifecycle OutboundKind = "lifecycle"
	OutboundResult    OutboundKind = "result"
	OutboundError     OutboundKind = "error"
)

// CorrelationMetadata ties an outbound envelope back to the command and
// operator/CLI context that produced it.
type CorrelationMetadata struct {
	CommandID         string `json:"command_id,omitempty"`
	RequestID         string `json:"request_id,omitempty"`
	OperatorSessionID string `json:"operator_session_id,omitempty"`
	OperatorTurnID    string `json:"operator_turn_id,omitempty"`
	CLIInvocationID   string `json:"cli_invocation_id,omitempty"`
	ReplayedFromID    string `json:"replayed_from_outbox_id,omitempty"`
}

// OutboundEnvelope is a reply destined for a channel, routed through the
// outbox (spec §3).
type OutboundEnvelope struct {
	Kind            OutboundKind         `json:"kind"`
	Channel         string               `json:"channel"`
	ChannelTenantID string               `json:"channel_tenant_id"`
	ConversationID  string               `json:"conversation_id"`
	ResponseID      string               `json:"response_id"`
	Body            string               `json:"body"`
	ErrorCode       string               `json:"error_code,omitempty"`
	Attachments     []AttachmentRef      `json:"attachments,omitempty"`
	Correlation     CorrelationMetadata  `json:"correlation"`
}
