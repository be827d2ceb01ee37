package mucore

// OutboxState is the lifecycle state of an OutboxRecord.
type OutboxState string

// Outbox states.
const (
	OutboxPending    OutboxState = "pending"
	OutboxDelivered  OutboxState = "delivered"
	OutboxDeadLetter OutboxState = "dead_letter"
)

// OutboxRecord is a queued outbound envelope with retry bookkeeping
// (spec §3).
type OutboxRecord struct {
	OutboxID                   string           `json:"outbox_id"`
	DedupeKey                  string           `json:"dedupe_key"`
	State                      OutboxState      `json:"state"`
	Envelope                   OutboundEnvelope `json:"envelope"`
	CreatedAtMs                int64            `json:"created_at_ms"`
	UpdatedAtMs                int64            `json:"updated_at_ms"`
	NextAttemptAtMs            int64            `json:"next_attempt_at_ms"`
	AttemptCount               int              `json:"attempt_count"`
	MaxAttempts                int              `json:"max_attempts"`
	LastError                  string           `json:"last_error,omitempty"`
	DeadLetterReason            string          `json:"dead_letter_reason,omitempty"`
	ReplayOfOutboxID            string          `json:"replay_of_outbox_id,omitempty"`
	ReplayRequestedByCommandID  string          `json:"replay_requested_by_command_id,omitempty"`
}

// Clone returns a deep-enough copy for safe handoff to callers.
func (o *OutboxRecord) Clone() *OutboxRecord {
	if o == nil {
		return nil
	}
	cp := *o
	if o.Envelope.Attachments != nil {
		cp.Envelope.Attachments = append([]AttachmentRef(nil), o.Envelope.Attachments...)
	}
	return &cp
}
