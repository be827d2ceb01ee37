package mujournal

import (
	"encoding/json"
	"strings"
	"sync"
)

// Event is one row of the wake/notification log named but not otherwise
// detailed in spec §2 item 1. This expansion gives it a concrete shape so
// GET /api/events and /api/events/tail (spec §6) have something to serve:
// a flat, append-only record of every domain/ops occurrence the control
// plane wants to expose for observability — lifecycle transitions, CLI
// invocations, reload attempts, dead-letters — tagged by source and type
// so clients can filter.
type Event struct {
	ID        int64             `json:"id"`
	AtMs      int64             `json:"at_ms"`
	Type      string            `json:"type"`
	Source    string            `json:"source"`
	IssueID   string            `json:"issue_id,omitempty"`
	RunID     string            `json:"run_id,omitempty"`
	Detail    map[string]string `json:"detail,omitempty"`
}

// EventJournal is the append-only events.jsonl store backing the admin
// event-tail API.
type EventJournal struct {
	j *Journal

	mu     sync.RWMutex
	all    []Event
	nextID int64
}

// OpenEventJournal opens (or creates) events.jsonl and replays it.
func OpenEventJournal(path string) (*EventJournal, error) {
	j, err := Open(path)
	if err != nil {
		return nil, err
	}
	ej := &EventJournal{j: j}
	if err := ej.load(); err != nil {
		return nil, err
	}
	return ej, nil
}

func (ej *EventJournal) load() error {
	return ej.j.Load(func(line []byte) error {
		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			return err
		}
		ej.all = append(ej.all, e)
		if e.ID >= ej.nextID {
			ej.nextID = e.ID + 1
		}
		return nil
	})
}

// Append assigns the next sequential ID and appends the event.
func (ej *EventJournal) Append(e Event) (Event, error) {
	ej.mu.Lock()
	e.ID = ej.nextID
	ej.nextID++
	ej.mu.Unlock()

	if err := ej.j.Append(e); err != nil {
		return Event{}, err
	}
	ej.mu.Lock()
	ej.all = append(ej.all, e)
	ej.mu.Unlock()
	return e, nil
}

// EventFilter narrows Query results.
type EventFilter struct {
	SinceID  int64
	Type     string
	Source   string
	IssueID  string
	RunID    string
	Contains string
}

// Query returns events matching f, in ID order.
func (ej *EventJournal) Query(f EventFilter) []Event {
	ej.mu.RLock()
	defer ej.mu.RUnlock()

	var out []Event
	for _, e := range ej.all {
		if e.ID <= f.SinceID {
			continue
		}
		if f.Type != "" && e.Type != f.Type {
			continue
		}
		if f.Source != "" && e.Source != f.Source {
			continue
		}
		if f.IssueID != "" && e.IssueID != f.IssueID {
			continue
		}
		if f.RunID != "" && e.RunID != f.RunID {
			continue
		}
		if f.Contains != "" && !eventContains(e, f.Contains) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func eventContains(e Event, needle string) bool {
	if strings.Contains(e.Type, needle) || strings.Contains(e.Source, needle) {
		return true
	}
	for _, v := range e.Detail {
		if strings.Contains(v, needle) {
			return true
		}
	}
	return false
}

// Tail returns the last n events, in ID order.
func (ej *EventJournal) Tail(n int) []Event {
	ej.mu.RLock()
	defer ej.mu.RUnlock()
	if n <= 0 || n >= len(ej.all) {
		out := make([]Event, len(ej.all))
		copy(out, ej.all)
		return out
	}
	out := make([]Event, n)
	copy(out, ej.all[len(ej.all)-n:])
	return out
}

// Close releases the underlying file handle.
func (ej *EventJournal) Close() error {
	return ej.j.Close()
}
