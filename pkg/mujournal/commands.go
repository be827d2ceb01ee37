package mujournal

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/femtomc/mu-controlplane/pkg/mucore"
)

// entryKind discriminates rows in commands.jsonl: lifecycle transitions
// carry the full CommandRecord snapshot; mutating domain events (CLI
// invocation started/completed/failed) carry an event name + correlation
// metadata without touching state.
type entryKind string

const (
	entryLifecycle entryKind = "lifecycle"
	entryMutating  entryKind = "mutating"
)

type commandEntry struct {
	Kind        entryKind               `json:"kind"`
	Record      *mucore.CommandRecord   `json:"record,omitempty"`
	Event       string                  `json:"event,omitempty"`
	CommandID   string                  `json:"command_id,omitempty"`
	Correlation mucore.CorrelationMetadata `json:"correlation,omitempty"`
	Detail      map[string]interface{}  `json:"detail,omitempty"`
	AtMs        int64                   `json:"at_ms,omitempty"`
}

// MutatingEvent is one non-lifecycle domain event recorded against a
// command (spec §4.1 step 8: cli.invocation.started/completed/failed).
type MutatingEvent struct {
	Event       string
	CommandID   string
	Correlation mucore.CorrelationMetadata
	Detail      map[string]interface{}
	AtMs        int64
}

// CommandJournal is the append-only lifecycle + mutating-event store for
// CommandRecords (spec §4.2). Snapshot reconstruction on Load keeps the
// last lifecycle entry per command_id as authoritative and indexes
// mutating entries separately for audit, exactly as spec §4.2 specifies.
type CommandJournal struct {
	j *Journal

	mu       sync.RWMutex
	byID     map[string]*mucore.CommandRecord
	mutating map[string][]MutatingEvent
}

// OpenCommandJournal opens (or creates) commands.jsonl at path and replays
// it into memory.
func OpenCommandJournal(path string) (*CommandJournal, error) {
	j, err := Open(path)
	if err != nil {
		return nil, err
	}
	cj := &CommandJournal{
		j:        j,
		byID:     make(map[string]*mucore.CommandRecord),
		mutating: make(map[string][]MutatingEvent),
	}
	if err := cj.load(); err != nil {
		return nil, err
	}
	return cj, nil
}

func (cj *CommandJournal) load() error {
	return cj.j.Load(func(line []byte) error {
		var e commandEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return err
		}
		switch e.Kind {
		case entryLifecycle:
			if e.Record != nil {
				cj.byID[e.Record.CommandID] = e.Record
			}
		case entryMutating:
			cj.mutating[e.CommandID] = append(cj.mutating[e.CommandID], MutatingEvent{
				Event:       e.Event,
				CommandID:   e.CommandID,
				Correlation: e.Correlation,
				Detail:      e.Detail,
				AtMs:        e.AtMs,
			})
		}
		return nil
	})
}

// Get returns the current snapshot of a command, or mucore.ErrNotFound.
func (cj *CommandJournal) Get(commandID string) (*mucore.CommandRecord, error) {
	cj.mu.RLock()
	defer cj.mu.RUnlock()
	rec, ok := cj.byID[commandID]
	if !ok {
		return nil, mucore.ErrNotFound
	}
	return rec.Clone(), nil
}

// AppendLifecycle validates and appends a lifecycle transition. 'next' must
// be a Clone()'d record the caller has already mutated; created_at_ms must
// be unchanged from the prior snapshot (if any) and updated_at_ms must not
// regress. The new state must be reachable from the prior state per
// mucore.ValidTransition, or mucore.ErrInvalidTransition is returned and
// nothing is appended.
func (cj *CommandJournal) AppendLifecycle(next *mucore.CommandRecord) error {
	if next == nil || next.CommandID == "" {
		return fmt.Errorf("mujournal: command record missing command_id")
	}

	cj.mu.Lock()
	prev := cj.byID[next.CommandID]
	var prevState mucore.State
	if prev != nil {
		prevState = prev.State
		if next.CreatedAtMs != prev.CreatedAtMs {
			cj.mu.Unlock()
			return fmt.Errorf("mujournal: created_at_ms changed for %s", next.CommandID)
		}
		if next.UpdatedAtMs < prev.UpdatedAtMs {
			cj.mu.Unlock()
			return fmt.Errorf("mujournal: updated_at_ms regressed for %s", next.CommandID)
		}
	}
	if !mucore.ValidTransition(prevState, next.State) {
		cj.mu.Unlock()
		return mucore.ErrInvalidTransition
	}
	cj.mu.Unlock()

	snapshot := next.Clone()
	if err := cj.j.Append(commandEntry{Kind: entryLifecycle, Record: snapshot}); err != nil {
		return err
	}

	cj.mu.Lock()
	cj.byID[next.CommandID] = snapshot
	cj.mu.Unlock()
	return nil
}

// AppendMutating appends a non-lifecycle domain event (e.g.
// cli.invocation.started) referencing an existing command_id. The current
// state is left untouched.
func (cj *CommandJournal) AppendMutating(ev MutatingEvent) error {
	cj.mu.RLock()
	_, ok := cj.byID[ev.CommandID]
	cj.mu.RUnlock()
	if !ok {
		return mucore.ErrNotFound
	}

	if err := cj.j.Append(commandEntry{
		Kind:        entryMutating,
		Event:       ev.Event,
		CommandID:   ev.CommandID,
		Correlation: ev.Correlation,
		Detail:      ev.Detail,
		AtMs:        ev.AtMs,
	}); err != nil {
		return err
	}

	cj.mu.Lock()
	cj.mutating[ev.CommandID] = append(cj.mutating[ev.CommandID], ev)
	cj.mu.Unlock()
	return nil
}

// MutatingEvents returns the audit trail of mutating events for a command.
func (cj *CommandJournal) MutatingEvents(commandID string) []MutatingEvent {
	cj.mu.RLock()
	defer cj.mu.RUnlock()
	return append([]MutatingEvent(nil), cj.mutating[commandID]...)
}

// Snapshot returns every current CommandRecord, keyed by command_id. Used
// by replay-determinism tests (spec §8) and admin inspection endpoints.
func (cj *CommandJournal) Snapshot() map[string]*mucore.CommandRecord {
	cj.mu.RLock()
	defer cj.mu.RUnlock()
	out := make(map[string]*mucore.CommandRecord, len(cj.byID))
	for k, v := range cj.byID {
		out[k] = v.Clone()
	}
	return out
}

// Close releases the underlying file handle.
func (cj *CommandJournal) Close() error {
	return cj.j.Close()
}
