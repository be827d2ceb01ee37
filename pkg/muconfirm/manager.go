// Package muconfirm implements the confirmation manager (spec §4.3): the
// queued ↔ awaiting_confirmation state machine a mutating command passes
// through when policy requires operator approval, plus the TTL sweep that
// expires stale confirmations.
package muconfirm

import (
	"errors"

	"github.com/femtomc/mu-controlplane/pkg/mucore"
	"github.com/femtomc/mu-controlplane/pkg/mujournal"
)

// Outcome is the result of a confirm/cancel call.
type Outcome string

// Outcomes named by spec §4.3.
const (
	OutcomeQueued       Outcome = "queued"
	OutcomeNotFound     Outcome = "not_found"
	OutcomeInvalidState Outcome = "invalid_state"
	OutcomeInvalidActor Outcome = "invalid_actor"
	OutcomeExpired      Outcome = "expired"
	OutcomeCancelled    Outcome = "cancelled"
)

// Manager drives the confirmation lifecycle on top of the command journal.
type Manager struct {
	commands *mujournal.CommandJournal
}

// New constructs a Manager over an already-open CommandJournal.
func New(commands *mujournal.CommandJournal) *Manager {
	return &Manager{commands: commands}
}

// RequestAwaitingConfirmation transitions record into awaiting_confirmation
// with a deadline of nowMs+ttlMs, and appends the lifecycle entry.
func (m *Manager) RequestAwaitingConfirmation(record *mucore.CommandRecord, ttlMs, nowMs int64) (*mucore.CommandRecord, error) {
	next := record.Clone()
	next.State = mucore.StateAwaitingConfirmation
	next.ConfirmationExpiresAtMs = nowMs + ttlMs
	next.UpdatedAtMs = nowMs
	if err := m.commands.AppendLifecycle(next); err != nil {
		return nil, err
	}
	return next, nil
}

// Confirm attempts to move a command from awaiting_confirmation to queued.
// actorBindingID must match the binding that originally issued the command
// (spec §4.3: "Actor must match original binding"). If the TTL has passed,
// a synchronous expired transition is written first and OutcomeExpired is
// returned instead.
func (m *Manager) Confirm(commandID, actorBindingID string, nowMs int64) (Outcome, *mucore.CommandRecord, error) {
	return m.resolve(commandID, actorBindingID, nowMs, mucore.StateQueued, OutcomeQueued)
}

// Cancel attempts to move a command from awaiting_confirmation to cancelled.
func (m *Manager) Cancel(commandID, actorBindingID string, nowMs int64) (Outcome, *mucore.CommandRecord, error) {
	return m.resolve(commandID, actorBindingID, nowMs, mucore.StateCancelled, OutcomeCancelled)
}

func (m *Manager) resolve(commandID, actorBindingID string, nowMs int64, onSuccess mucore.State, successOutcome Outcome) (Outcome, *mucore.CommandRecord, error) {
	rec, err := m.commands.Get(commandID)
	if err != nil {
		if errors.Is(err, mucore.ErrNotFound) {
			return OutcomeNotFound, nil, nil
		}
		return "", nil, err
	}

	if rec.State != mucore.StateAwaitingConfirmation {
		return OutcomeInvalidState, rec, nil
	}

	if nowMs >= rec.ConfirmationExpiresAtMs {
		expired := rec.Clone()
		expired.State = mucore.StateExpired
		expired.ErrorCode = string(mucore.ReasonConfirmationExpired)
		expired.UpdatedAtMs = nowMs
		if err := m.commands.AppendLifecycle(expired); err != nil {
			return "", nil, err
		}
		return OutcomeExpired, expired, nil
	}

	if rec.ActorBindingID != actorBindingID {
		return OutcomeInvalidActor, rec, nil
	}

	next := rec.Clone()
	next.State = onSuccess
	next.UpdatedAtMs = nowMs
	if onSuccess == mucore.StateCancelled {
		next.ErrorCode = string(mucore.ReasonConfirmationCancelled)
	}
	if err := m.commands.AppendLifecycle(next); err != nil {
		return "", nil, err
	}
	return successOutcome, next, nil
}

// ExpireDue sweeps every awaiting_confirmation command past its deadline and
// transitions it to expired, ordered by (updated_at_ms, command_id) as spec
// §4.3's sweeper requires for deterministic replay.
func (m *Manager) ExpireDue(nowMs int64) ([]*mucore.CommandRecord, error) {
	snapshot := m.commands.Snapshot()
	due := make([]*mucore.CommandRecord, 0)
	for _, rec := range snapshot {
		if rec.State == mucore.StateAwaitingConfirmation && nowMs >= rec.ConfirmationExpiresAtMs {
			due = append(due, rec)
		}
	}
	sortByUpdatedThenID(due)

	expired := make([]*mucore.CommandRecord, 0, len(due))
	for _, rec := range due {
		next := rec.Clone()
		next.State = mucore.StateExpired
		next.ErrorCode = string(mucore.ReasonConfirmationExpired)
		next.UpdatedAtMs = nowMs
		if err := m.commands.AppendLifecycle(next); err != nil {
			return expired, err
		}
		expired = append(expired, next)
	}
	return expired, nil
}

func sortByUpdatedThenID(recs []*mucore.CommandRecord) {
	for i := 1; i < len(recs); i++ {
		for j := i; j > 0; j-- {
			a, b := recs[j-1], recs[j]
			if a.UpdatedAtMs < b.UpdatedAtMs || (a.UpdatedAtMs == b.UpdatedAtMs && a.CommandID <= b.CommandID) {
				break
			}
			recs[j-1], recs[j] = recs[j], recs[j-1]
		}
	}
}
