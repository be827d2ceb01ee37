// Package mucore defines the control plane's central data types: the
// CommandRecord lifecycle, inbound/outbound envelopes, and the error
// taxonomy shared across every component.
package mucore

import "time"

// AssuranceTier is the trust level derived from the authenticating channel.
type AssuranceTier string

// Assurance tiers, highest to lowest trust.
const (
	TierA AssuranceTier = "tier_a"
	TierB AssuranceTier = "tier_b"
	TierC AssuranceTier = "tier_c"
)

// State is a CommandRecord lifecycle state (spec §4.2).
type State string

// Command lifecycle states.
const (
	StateReceived             State = "received"
	StateQueued               State = "queued"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateRunning              State = "running"
	StateCompleted            State = "completed"
	StateCancelled            State = "cancelled"
	StateExpired              State = "expired"
	StateDenied               State = "denied"
	StateFailed               State = "failed"
)

// transitions enumerates the legal state graph from spec §4.2.
var transitions = map[State][]State{
	StateReceived:             {StateQueued, StateDenied},
	StateQueued:               {StateAwaitingConfirmation, StateRunning, StateFailed},
	StateAwaitingConfirmation: {StateQueued, StateCancelled, StateExpired},
	StateRunning:              {StateCompleted, StateFailed},
}

// terminalStates never transition further.
var terminalStates = map[State]bool{
	StateCompleted: true,
	StateCancelled: true,
	StateExpired:   true,
	StateDenied:    true,
	StateFailed:    true,
}

// IsTerminal reports whether s is a terminal lifecycle state.
func IsTerminal(s State) bool {
	return terminalStates[s]
}

// ValidTransition reports whether a transition from 'from' to 'to' is legal.
// The zero State (new record) may only move to StateReceived.
func ValidTransition(from, to State) bool {
	if from == "" {
		return to == StateReceived
	}
	if from == to {
		return false
	}
	for _, candidate := range transitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// CommandRecord is the pipeline's central entity (spec §3).
type CommandRecord struct {
	CommandID               string        `json:"command_id"`
	IdempotencyKey           string        `json:"idempotency_key"`
	RequestID                string        `json:"request_id"`
	Channel                  string        `json:"channel"`
	ChannelTenantID          string        `json:"channel_tenant_id"`
	ChannelConversationID    string        `json:"channel_conversation_id"`
	ActorID                  string        `json:"actor_id"`
	ActorBindingID           string        `json:"actor_binding_id"`
	AssuranceTier            AssuranceTier `json:"assurance_tier"`
	RepoRoot                 string        `json:"repo_root"`
	ScopeRequired            string        `json:"scope_required,omitempty"`
	ScopeEffective           []string      `json:"scope_effective,omitempty"`
	TargetType               string        `json:"target_type,omitempty"`
	TargetID                 string        `json:"target_id,omitempty"`
	Attempt                  int           `json:"attempt"`
	State                    State         `json:"state"`
	ErrorCode                string        `json:"error_code,omitempty"`
	OperatorSessionID        string        `json:"operator_session_id,omitempty"`
	OperatorTurnID           string        `json:"operator_turn_id,omitempty"`
	CLIInvocationID          string        `json:"cli_invocation_id,omitempty"`
	CLICommandKind           string        `json:"cli_command_kind,omitempty"`
	RunRootID                string        `json:"run_root_id,omitempty"`
	ConfirmationExpiresAtMs  int64         `json:"confirmation_expires_at_ms,omitempty"`
	RetryAtMs                int64         `json:"retry_at_ms,omitempty"`
	CommandKind              string        `json:"command_kind,omitempty"`
	CommandArgs              []string      `json:"command_args,omitempty"`
	Result                   *CLIResult    `json:"result,omitempty"`
	CreatedAtMs              int64         `json:"created_at_ms"`
	UpdatedAtMs              int64         `json:"updated_at_ms"`
}

// Clone returns a deep-enough copy of the record for safe handoff to callers.
func (c *CommandRecord) Clone() *CommandRecord {
	if c == nil {
		return nil
	}
	cp := *c
	if c.ScopeEffective != nil {
		cp.ScopeEffective = append([]string(nil), c.ScopeEffective...)
	}
	if c.CommandArgs != nil {
		cp.CommandArgs = append([]string(nil), c.CommandArgs...)
	}
	if c.Result != nil {
		r := *c.Result
		cp.Result = &r
	}
	return &cp
}

// CLIResult is the captured outcome of a CLI invocation, attached to a
// CommandRecord's Result field.
type CLIResult struct {
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
}

// NowMs returns the current time in Unix milliseconds. Centralized so tests
// can observe the same clock seam the rest of the control plane uses via
// the Clock interface (see pkg/mutest).
func NowMs(t time.Time) int64 {
	return t.UnixMilli()
}
