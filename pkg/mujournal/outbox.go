package mujournal

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/femtomc/mu-controlplane/pkg/mucore"
)

type outboxEntry struct {
	Record mucore.OutboxRecord `json:"record"`
}

// OutboxJournal is the append-only outbox state-snapshot store (spec §3
// OutboxRecord, §4.5, §6 outbox.jsonl). Each append is a full snapshot of
// the record; Load keeps the latest snapshot per outbox_id, mirroring
// CommandJournal's "last entry wins" reconstruction.
type OutboxJournal struct {
	j *Journal

	mu          sync.RWMutex
	byID        map[string]*mucore.OutboxRecord
	byDedupeKey map[string]string // dedupe_key -> latest outbox_id, in any state
}

// OpenOutboxJournal opens (or creates) outbox.jsonl and replays it.
func OpenOutboxJournal(path string) (*OutboxJournal, error) {
	j, err := Open(path)
	if err != nil {
		return nil, err
	}
	oj := &OutboxJournal{
		j:           j,
		byID:        make(map[string]*mucore.OutboxRecord),
		byDedupeKey: make(map[string]string),
	}
	if err := oj.load(); err != nil {
		return nil, err
	}
	return oj, nil
}

func (oj *OutboxJournal) load() error {
	return oj.j.Load(func(line []byte) error {
		var e outboxEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return err
		}
		rec := e.Record
		oj.byID[rec.OutboxID] = &rec
		oj.byDedupeKey[rec.DedupeKey] = rec.OutboxID
		return nil
	})
}

// Put appends a snapshot of rec and updates the in-memory index.
func (oj *OutboxJournal) Put(rec *mucore.OutboxRecord) error {
	snapshot := rec.Clone()
	if err := oj.j.Append(outboxEntry{Record: *snapshot}); err != nil {
		return err
	}
	oj.mu.Lock()
	oj.byID[snapshot.OutboxID] = snapshot
	oj.byDedupeKey[snapshot.DedupeKey] = snapshot.OutboxID
	oj.mu.Unlock()
	return nil
}

// ByDedupeKey returns the most recent record for a dedupe key, if any, in
// whatever state it is (dead_letter included).
func (oj *OutboxJournal) ByDedupeKey(key string) (*mucore.OutboxRecord, bool) {
	oj.mu.RLock()
	defer oj.mu.RUnlock()
	id, ok := oj.byDedupeKey[key]
	if !ok {
		return nil, false
	}
	return oj.byID[id].Clone(), true
}

// Get returns a record by ID.
func (oj *OutboxJournal) Get(outboxID string) (*mucore.OutboxRecord, bool) {
	oj.mu.RLock()
	defer oj.mu.RUnlock()
	rec, ok := oj.byID[outboxID]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// PendingDue returns up to limit pending records with next_attempt_at_ms
// <= now, ordered by next_attempt_at_ms, then created_at_ms, then
// outbox_id (spec §4.5).
func (oj *OutboxJournal) PendingDue(nowMs int64, limit int) []*mucore.OutboxRecord {
	oj.mu.RLock()
	candidates := make([]*mucore.OutboxRecord, 0, len(oj.byID))
	for _, rec := range oj.byID {
		if rec.State == mucore.OutboxPending && rec.NextAttemptAtMs <= nowMs {
			candidates = append(candidates, rec.Clone())
		}
	}
	oj.mu.RUnlock()

	sort.Slice(candidates, func(i, k int) bool {
		a, b := candidates[i], candidates[k]
		if a.NextAttemptAtMs != b.NextAttemptAtMs {
			return a.NextAttemptAtMs < b.NextAttemptAtMs
		}
		if a.CreatedAtMs != b.CreatedAtMs {
			return a.CreatedAtMs < b.CreatedAtMs
		}
		return a.OutboxID < b.OutboxID
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates
}

// Close releases the underlying file handle.
func (oj *OutboxJournal) Close() error {
	return oj.j.Close()
}
