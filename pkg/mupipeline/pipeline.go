// Package mupipeline is the command pipeline integrator (spec §4.1): it
// writes the CommandRecord lifecycle entries (the confirmation manager it
// calls writes the confirmation transitions), driving an inbound envelope
// through identity, idempotency, policy, confirmation, CLI
// execution, and outbox enqueue in one deterministic, ordered algorithm.
package mupipeline

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/femtomc/mu-controlplane/pkg/mucli"
	"github.com/femtomc/mu-controlplane/pkg/muconfirm"
	"github.com/femtomc/mu-controlplane/pkg/mucore"
	"github.com/femtomc/mu-controlplane/pkg/muidempotency"
	"github.com/femtomc/mu-controlplane/pkg/muidentity"
	"github.com/femtomc/mu-controlplane/pkg/mujournal"
	"github.com/femtomc/mu-controlplane/pkg/muoperator"
	"github.com/femtomc/mu-controlplane/pkg/muoutbox"
	"github.com/femtomc/mu-controlplane/pkg/mupolicy"
)

// ResultKind discriminates the pipeline's terminal decision for a single
// handleInbound call (spec §4.1: "Output variants").
type ResultKind string

// Result kinds named in spec §4.1, plus Cancelled for the confirmation
// manager's cancel outcome — itself a named state in §4.2's machine that
// needs its own discriminator in this closed tagged union.
const (
	ResultAccepted             ResultKind = "accepted"
	ResultDuplicate            ResultKind = "duplicate"
	ResultDenied               ResultKind = "denied"
	ResultAwaitingConfirmation ResultKind = "awaiting_confirmation"
	ResultCompleted            ResultKind = "completed"
	ResultFailed               ResultKind = "failed"
	ResultCancelled            ResultKind = "cancelled"
)

// Result is the pipeline's terminal decision.
type Result struct {
	Kind    ResultKind
	Command *mucore.CommandRecord
	Reason  mucore.Reason
}

// ChannelMode controls how a channel's command_text is interpreted.
type ChannelMode string

const (
	// ModeConversational routes command_text through the operator backend.
	ModeConversational ChannelMode = "conversational"
	// ModeCommandOnly parses command_text directly as "<kind> <args...>".
	ModeCommandOnly ChannelMode = "command_only"
)

// DefaultConfirmationTTLMs is used when a caller does not override it.
const DefaultConfirmationTTLMs = 5 * 60 * 1000

// DefaultCLITimeout bounds a single CLI invocation.
const DefaultCLITimeout = 30 * time.Second

// Pipeline wires every gate component into the single handleInbound
// entrypoint.
type Pipeline struct {
	Identities  *muidentity.Store
	Idempotency *muidempotency.Ledger
	Confirm     *muconfirm.Manager
	Commands    *mujournal.CommandJournal
	Backend     muoperator.Backend
	Runner      *mucli.Runner
	Outbox      *muoutbox.Dispatcher
	IDs         mucore.IDFactory
	Clock       func() int64
	Logger      *slog.Logger

	ConfirmationTTLMs int64
	CLITimeout        time.Duration
	ChannelModes      map[string]ChannelMode

	mu       sync.Mutex
	sessions map[string]string // conversation key -> operator_session_id
}

// New constructs a Pipeline. Unset tunables take their documented defaults.
func New(p Pipeline) *Pipeline {
	pp := p
	if pp.ConfirmationTTLMs == 0 {
		pp.ConfirmationTTLMs = DefaultConfirmationTTLMs
	}
	if pp.CLITimeout == 0 {
		pp.CLITimeout = DefaultCLITimeout
	}
	if pp.Logger == nil {
		pp.Logger = slog.Default()
	}
	pp.Logger = pp.Logger.With("component", "mupipeline")
	pp.sessions = make(map[string]string)
	return &pp
}

// HandleInbound is the pipeline's single entrypoint (spec §4.1).
func (p *Pipeline) HandleInbound(ctx context.Context, env mucore.InboundEnvelope) Result {
	now := p.Clock()

	// Special confirm/cancel prefixes bypass normal command resolution
	// entirely (spec §4.1 step 3).
	if cmdID, ok := parseConfirmPrefix(env.CommandText); ok {
		return p.handleConfirm(cmdID, env, now)
	}
	if cmdID, ok := parseCancelPrefix(env.CommandText); ok {
		return p.handleCancel(cmdID, env, now)
	}

	// Step 1: identity resolution.
	binding, ok := p.Identities.Resolve(env.Channel, env.ChannelTenantID, env.ActorID)
	if !ok {
		return Result{Kind: ResultDenied, Reason: mucore.ReasonNoIdentity}
	}

	newCommandID := p.IDs.NewID("cmd")

	// Step 2: idempotency claim.
	outcome, commandID, err := p.Idempotency.Claim(env.IdempotencyKey, env.Fingerprint, newCommandID, 0, now)
	if err != nil {
		p.Logger.Error("idempotency claim failed", "error", err)
		return Result{Kind: ResultFailed, Reason: mucore.ReasonCLISpawnFailed}
	}
	switch outcome {
	case mucore.ClaimConflict:
		return Result{Kind: ResultDenied, Reason: mucore.ReasonIdempotencyConflict}
	case mucore.ClaimDuplicate:
		rec, err := p.Commands.Get(commandID)
		if err != nil {
			return Result{Kind: ResultFailed, Reason: mucore.ReasonIdempotencyDuplicate}
		}
		return Result{Kind: ResultDuplicate, Command: rec}
	}

	record := &mucore.CommandRecord{
		CommandID:             commandID,
		IdempotencyKey:        env.IdempotencyKey,
		RequestID:             env.RequestID,
		Channel:               env.Channel,
		ChannelTenantID:       env.ChannelTenantID,
		ChannelConversationID: env.ChannelConversationID,
		ActorID:               env.ActorID,
		ActorBindingID:        binding.BindingID,
		AssuranceTier:         binding.AssuranceTier,
		RepoRoot:              env.RepoRoot,
		State:                 mucore.StateReceived,
		CreatedAtMs:           now,
		UpdatedAtMs:           now,
	}
	if err := p.Commands.AppendLifecycle(record); err != nil {
		p.Logger.Error("append received failed", "command_id", commandID, "error", err)
		return Result{Kind: ResultFailed, Reason: mucore.ReasonCLISpawnFailed}
	}

	// Step 3/4: resolve a concrete command kind + args, either directly
	// (command-only channels) or via the operator backend (conversational).
	// The record stays in 'received' through resolution and policy
	// evaluation so an early denial can append a legal received->denied
	// transition; it only advances to 'queued' once execution or
	// confirmation is imminent (spec §4.2 graph).
	kind, args, result, ok := p.resolveCommand(ctx, env, binding, record, now)
	if !ok {
		return result
	}

	return p.runCommand(ctx, record, kind, args, binding, now)
}

// transitionQueued advances a 'received' record to 'queued', the common
// gateway state before either confirmation or execution.
func (p *Pipeline) transitionQueued(record *mucore.CommandRecord, now int64) (*mucore.CommandRecord, error) {
	queued := record.Clone()
	queued.State = mucore.StateQueued
	queued.UpdatedAtMs = now
	if err := p.Commands.AppendLifecycle(queued); err != nil {
		return nil, err
	}
	return queued, nil
}

// resolveCommand implements spec §4.1 steps 3-5: special prefixes were
// already handled by the caller, so this only distinguishes conversational
// vs command-only ingress and performs context resolution. ok=false means
// the caller should return `result` immediately (an operator "respond", or
// a context-resolution failure).
func (p *Pipeline) resolveCommand(ctx context.Context, env mucore.InboundEnvelope, binding *mucore.IdentityBinding, record *mucore.CommandRecord, now int64) (string, []string, Result, bool) {
	mode := p.ChannelModes[env.Channel]
	if mode == "" {
		mode = ModeCommandOnly
	}

	if mode == ModeConversational {
		sessionKey := env.Channel + "\x00" + env.ChannelTenantID + "\x00" + env.ChannelConversationID
		p.mu.Lock()
		sessionID, ok := p.sessions[sessionKey]
		if !ok {
			sessionID = p.IDs.NewID("opsess")
			p.sessions[sessionKey] = sessionID
		}
		p.mu.Unlock()
		turnID := p.IDs.NewID("turn")

		turn, err := p.Backend.RunTurn(ctx, muoperator.TurnInput{
			SessionID:   sessionID,
			TurnID:      turnID,
			Channel:     env.Channel,
			ActorID:     env.ActorID,
			BindingID:   binding.BindingID,
			CommandText: env.CommandText,
		})
		if err != nil {
			queued, qerr := p.transitionQueued(record, now)
			if qerr != nil {
				return "", nil, Result{Kind: ResultFailed, Command: record, Reason: mucore.ReasonCLISpawnFailed}, false
			}
			failed := queued.Clone()
			failed.State = mucore.StateFailed
			failed.ErrorCode = string(mucore.ReasonCLISpawnFailed)
			failed.OperatorSessionID = sessionID
			failed.OperatorTurnID = turnID
			failed.UpdatedAtMs = now
			_ = p.Commands.AppendLifecycle(failed)
			return "", nil, Result{Kind: ResultFailed, Command: failed, Reason: mucore.ReasonCLISpawnFailed}, false
		}

		if turn.Kind == muoperator.TurnRespond {
			queued, qerr := p.transitionQueued(record, now)
			if qerr != nil {
				return "", nil, Result{Kind: ResultFailed, Command: record, Reason: mucore.ReasonCLISpawnFailed}, false
			}
			running := queued.Clone()
			running.State = mucore.StateRunning
			running.OperatorSessionID = sessionID
			running.OperatorTurnID = turnID
			running.UpdatedAtMs = now
			if err := p.Commands.AppendLifecycle(running); err != nil {
				return "", nil, Result{Kind: ResultFailed, Command: record, Reason: mucore.ReasonCLISpawnFailed}, false
			}

			completed := running.Clone()
			completed.State = mucore.StateCompleted
			completed.UpdatedAtMs = now
			if err := p.Commands.AppendLifecycle(completed); err != nil {
				return "", nil, Result{Kind: ResultFailed, Command: record, Reason: mucore.ReasonCLISpawnFailed}, false
			}
			p.enqueueReply(completed, env, turn.Message, false)
			return "", nil, Result{Kind: ResultCompleted, Command: completed}, false
		}

		record.OperatorSessionID = sessionID
		record.OperatorTurnID = turnID
		return turn.Command.Kind, turn.Command.Args, Result{}, true
	}

	kind, args, ok := parseDirectCommand(env.CommandText)
	if !ok {
		denied := p.deny(record, mucore.ReasonUnknownCommand, now)
		return "", nil, Result{Kind: ResultDenied, Command: denied, Reason: mucore.ReasonUnknownCommand}, false
	}
	return kind, args, Result{}, true
}

// runCommand implements spec §4.1 steps 5-9 once a command kind and args
// are resolved.
func (p *Pipeline) runCommand(ctx context.Context, record *mucore.CommandRecord, kind string, args []string, binding *mucore.IdentityBinding, now int64) Result {
	record.CommandKind = kind
	record.CommandArgs = append([]string(nil), args...)

	scope, known := mupolicy.ScopeRequired(kind)
	if !known {
		denied := p.deny(record, mucore.ReasonUnknownCommand, now)
		return Result{Kind: ResultDenied, Command: denied, Reason: mucore.ReasonUnknownCommand}
	}
	record.ScopeRequired = scope
	record.ScopeEffective = append([]string(nil), binding.Scopes...)

	decision := mupolicy.Evaluate(kind, binding.Scopes, binding.AssuranceTier)
	if !decision.Allow {
		denied := p.deny(record, decision.DenyReason, now)
		return Result{Kind: ResultDenied, Command: denied, Reason: decision.DenyReason}
	}

	build := mucli.Build(kind, args)
	switch build.Kind {
	case mucli.BuildSkip:
		denied := p.deny(record, mucore.ReasonUnknownCommand, now)
		return Result{Kind: ResultDenied, Command: denied, Reason: mucore.ReasonUnknownCommand}
	case mucli.BuildReject:
		denied := p.deny(record, build.Reason, now)
		return Result{Kind: ResultDenied, Command: denied, Reason: build.Reason}
	}

	queued, err := p.transitionQueued(record, now)
	if err != nil {
		return Result{Kind: ResultFailed, Command: record, Reason: mucore.ReasonCLISpawnFailed}
	}

	if decision.RequiresConfirmation {
		awaiting, err := p.Confirm.RequestAwaitingConfirmation(queued, p.ConfirmationTTLMs, now)
		if err != nil {
			return Result{Kind: ResultFailed, Command: queued, Reason: mucore.ReasonCLISpawnFailed}
		}
		return Result{Kind: ResultAwaitingConfirmation, Command: awaiting}
	}

	return p.execute(ctx, queued, build.Plan, now)
}

// execute runs step 7's compiled plan and writes steps 8-9's lifecycle and
// mutating events.
func (p *Pipeline) execute(ctx context.Context, record *mucore.CommandRecord, plan mucli.Plan, now int64) Result {
	running := record.Clone()
	running.State = mucore.StateRunning
	running.Attempt++
	running.CLICommandKind = plan.CommandKind
	running.CLIInvocationID = p.IDs.NewID("inv")
	running.UpdatedAtMs = now
	if err := p.Commands.AppendLifecycle(running); err != nil {
		return Result{Kind: ResultFailed, Command: record, Reason: mucore.ReasonCLISpawnFailed}
	}

	corr := mucore.CorrelationMetadata{
		CommandID:       running.CommandID,
		RequestID:       running.RequestID,
		CLIInvocationID: running.CLIInvocationID,
	}
	_ = p.Commands.AppendMutating(mujournal.MutatingEvent{
		Event:       "cli.invocation.started",
		CommandID:   running.CommandID,
		Correlation: corr,
		AtMs:        now,
	})

	res := p.Runner.Run(ctx, plan, p.CLITimeout)

	terminal := running.Clone()
	terminal.Result = res.Result
	terminal.UpdatedAtMs = p.Clock()

	if res.Reason != "" {
		terminal.State = mucore.StateFailed
		terminal.ErrorCode = string(res.Reason)
		_ = p.Commands.AppendLifecycle(terminal)
		_ = p.Commands.AppendMutating(mujournal.MutatingEvent{
			Event:       "cli.invocation.failed",
			CommandID:   terminal.CommandID,
			Correlation: corr,
			Detail:      map[string]interface{}{"error_code": string(res.Reason)},
			AtMs:        terminal.UpdatedAtMs,
		})
		p.enqueueError(terminal, res.Reason)
		return Result{Kind: ResultFailed, Command: terminal, Reason: res.Reason}
	}

	terminal.State = mucore.StateCompleted
	_ = p.Commands.AppendLifecycle(terminal)
	_ = p.Commands.AppendMutating(mujournal.MutatingEvent{
		Event:       "cli.invocation.completed",
		CommandID:   terminal.CommandID,
		Correlation: corr,
		AtMs:        terminal.UpdatedAtMs,
	})
	p.enqueueResult(terminal)
	return Result{Kind: ResultCompleted, Command: terminal}
}

func (p *Pipeline) deny(record *mucore.CommandRecord, reason mucore.Reason, now int64) *mucore.CommandRecord {
	denied := record.Clone()
	denied.State = mucore.StateDenied
	denied.ErrorCode = string(reason)
	denied.UpdatedAtMs = now
	_ = p.Commands.AppendLifecycle(denied)
	p.enqueueError(denied, reason)
	return denied
}

func (p *Pipeline) handleConfirm(commandID string, env mucore.InboundEnvelope, now int64) Result {
	binding, ok := p.Identities.Resolve(env.Channel, env.ChannelTenantID, env.ActorID)
	if !ok {
		return Result{Kind: ResultDenied, Reason: mucore.ReasonNoIdentity}
	}

	outcome, record, err := p.Confirm.Confirm(commandID, binding.BindingID, now)
	if err != nil {
		return Result{Kind: ResultFailed, Reason: mucore.ReasonCLISpawnFailed}
	}
	switch outcome {
	case muconfirm.OutcomeNotFound:
		return Result{Kind: ResultDenied, Reason: mucore.ReasonContextMissing}
	case muconfirm.OutcomeInvalidState:
		return Result{Kind: ResultDenied, Command: record, Reason: mucore.ReasonInvalidState}
	case muconfirm.OutcomeInvalidActor:
		return Result{Kind: ResultDenied, Command: record, Reason: mucore.ReasonInvalidActor}
	case muconfirm.OutcomeExpired:
		p.enqueueError(record, mucore.ReasonConfirmationExpired)
		return Result{Kind: ResultDenied, Command: record, Reason: mucore.ReasonConfirmationExpired}
	}

	build := mucli.Build(record.CommandKind, record.CommandArgs)
	if build.Kind != mucli.BuildOK {
		denied := p.deny(record, mucore.ReasonCLIValidationFailed, now)
		return Result{Kind: ResultDenied, Command: denied, Reason: mucore.ReasonCLIValidationFailed}
	}
	return p.execute(context.Background(), record, build.Plan, now)
}

func (p *Pipeline) handleCancel(commandID string, env mucore.InboundEnvelope, now int64) Result {
	binding, ok := p.Identities.Resolve(env.Channel, env.ChannelTenantID, env.ActorID)
	if !ok {
		return Result{Kind: ResultDenied, Reason: mucore.ReasonNoIdentity}
	}

	outcome, record, err := p.Confirm.Cancel(commandID, binding.BindingID, now)
	if err != nil {
		return Result{Kind: ResultFailed, Reason: mucore.ReasonCLISpawnFailed}
	}
	switch outcome {
	case muconfirm.OutcomeNotFound:
		return Result{Kind: ResultDenied, Reason: mucore.ReasonContextMissing}
	case muconfirm.OutcomeInvalidState:
		return Result{Kind: ResultDenied, Command: record, Reason: mucore.ReasonInvalidState}
	case muconfirm.OutcomeInvalidActor:
		return Result{Kind: ResultDenied, Command: record, Reason: mucore.ReasonInvalidActor}
	case muconfirm.OutcomeExpired:
		p.enqueueError(record, mucore.ReasonConfirmationExpired)
		return Result{Kind: ResultDenied, Command: record, Reason: mucore.ReasonConfirmationExpired}
	}
	return Result{Kind: ResultCancelled, Command: record}
}

func (p *Pipeline) enqueueResult(record *mucore.CommandRecord) {
	env := mucore.OutboundEnvelope{
		Kind:            mucore.OutboundResult,
		Channel:         record.Channel,
		ChannelTenantID: record.ChannelTenantID,
		ConversationID:  record.ChannelConversationID,
		ResponseID:      p.IDs.NewID("resp"),
		Body:            renderResult(record),
		Correlation:     mucore.CorrelationMetadata{CommandID: record.CommandID, RequestID: record.RequestID, CLIInvocationID: record.CLIInvocationID},
	}
	_, _, _ = p.Outbox.Enqueue(record.CommandID, env, 0, 0, "", "")
}

func (p *Pipeline) enqueueError(record *mucore.CommandRecord, reason mucore.Reason) {
	env := mucore.OutboundEnvelope{
		Kind:            mucore.OutboundError,
		Channel:         record.Channel,
		ChannelTenantID: record.ChannelTenantID,
		ConversationID:  record.ChannelConversationID,
		ResponseID:      p.IDs.NewID("resp"),
		Body:            string(reason),
		ErrorCode:       string(reason),
		Correlation:     mucore.CorrelationMetadata{CommandID: record.CommandID, RequestID: record.RequestID},
	}
	_, _, _ = p.Outbox.Enqueue(record.CommandID+":error", env, 0, 0, "", "")
}

func (p *Pipeline) enqueueReply(record *mucore.CommandRecord, env mucore.InboundEnvelope, message string, isError bool) {
	kind := mucore.OutboundResult
	if isError {
		kind = mucore.OutboundError
	}
	out := mucore.OutboundEnvelope{
		Kind:            kind,
		Channel:         env.Channel,
		ChannelTenantID: env.ChannelTenantID,
		ConversationID:  env.ChannelConversationID,
		ResponseID:      p.IDs.NewID("resp"),
		Body:            message,
		Correlation:     mucore.CorrelationMetadata{CommandID: record.CommandID, RequestID: record.RequestID, OperatorSessionID: record.OperatorSessionID, OperatorTurnID: record.OperatorTurnID},
	}
	_, _, _ = p.Outbox.Enqueue(record.CommandID, out, 0, 0, "", "")
}

func renderResult(record *mucore.CommandRecord) string {
	if record.Result == nil {
		return "ok"
	}
	if record.Result.Stdout != "" {
		return record.Result.Stdout
	}
	return "ok"
}

const confirmPrefix = "mu! confirm "
const cancelPrefix = "mu! cancel "

func parseConfirmPrefix(text string) (string, bool) {
	if strings.HasPrefix(text, confirmPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(text, confirmPrefix)), true
	}
	return "", false
}

func parseCancelPrefix(text string) (string, bool) {
	if strings.HasPrefix(text, cancelPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(text, cancelPrefix)), true
	}
	return "", false
}

// parseDirectCommand parses "<command.kind> <arg1> <arg2> ..." for
// command-only channels (spec §4.1 step 3: "the pipeline parses
// command_text directly").
func parseDirectCommand(text string) (string, []string, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", nil, false
	}
	return fields[0], fields[1:], true
}
