package mujournal

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/femtomc/mu-controlplane/pkg/mucore"
)

// SessionFlash is a durable one-shot out-of-band message addressed to a
// specific session (spec §4.8).
type SessionFlash struct {
	FlashID   string `json:"flash_id"`
	SessionID string `json:"session_id"`
	Kind      string `json:"kind"`
	Text      string `json:"text"`
	CreatedAtMs int64 `json:"created_at_ms"`
}

type sessionFlashRowKind string

const (
	flashRowCreate   sessionFlashRowKind = "create"
	flashRowDelivery sessionFlashRowKind = "delivery"
)

type sessionFlashRow struct {
	Row        sessionFlashRowKind `json:"row"`
	Flash      *SessionFlash       `json:"flash,omitempty"`
	FlashID    string              `json:"flash_id,omitempty"`
	DeliveredAtMs int64            `json:"delivered_at_ms,omitempty"`
}

// SessionFlashJournal is the append-only session_flash.jsonl store
// (spec §4.8).
type SessionFlashJournal struct {
	j *Journal

	mu         sync.RWMutex
	byID       map[string]*SessionFlash
	deliveredAt map[string]int64 // flash_id -> delivered_at_ms
}

// OpenSessionFlashJournal opens (or creates) session_flash.jsonl.
func OpenSessionFlashJournal(path string) (*SessionFlashJournal, error) {
	j, err := Open(path)
	if err != nil {
		return nil, err
	}
	sf := &SessionFlashJournal{
		j:           j,
		byID:        make(map[string]*SessionFlash),
		deliveredAt: make(map[string]int64),
	}
	if err := sf.load(); err != nil {
		return nil, err
	}
	return sf, nil
}

func (sf *SessionFlashJournal) load() error {
	return sf.j.Load(func(line []byte) error {
		var row sessionFlashRow
		if err := json.Unmarshal(line, &row); err != nil {
			return err
		}
		switch row.Row {
		case flashRowCreate:
			if row.Flash != nil {
				sf.byID[row.Flash.FlashID] = row.Flash
			}
		case flashRowDelivery:
			sf.deliveredAt[row.FlashID] = row.DeliveredAtMs
		}
		return nil
	})
}

// Create appends a new flash message.
func (sf *SessionFlashJournal) Create(f SessionFlash) error {
	if err := sf.j.Append(sessionFlashRow{Row: flashRowCreate, Flash: &f}); err != nil {
		return err
	}
	sf.mu.Lock()
	cp := f
	sf.byID[f.FlashID] = &cp
	sf.mu.Unlock()
	return nil
}

// Ack records delivery of a flash. If already acked, it is idempotent and
// returns the original delivered_at_ms without appending again (spec §4.8:
// "second ack is idempotent and returns the same row").
func (sf *SessionFlashJournal) Ack(flashID string, nowMs int64) (int64, error) {
	sf.mu.Lock()
	if _, ok := sf.byID[flashID]; !ok {
		sf.mu.Unlock()
		return 0, mucore.ErrNotFound
	}
	if existing, ok := sf.deliveredAt[flashID]; ok {
		sf.mu.Unlock()
		return existing, nil
	}
	sf.mu.Unlock()

	if err := sf.j.Append(sessionFlashRow{Row: flashRowDelivery, FlashID: flashID, DeliveredAtMs: nowMs}); err != nil {
		return 0, err
	}
	sf.mu.Lock()
	sf.deliveredAt[flashID] = nowMs
	sf.mu.Unlock()
	return nowMs, nil
}

// FlashView is a read-model row returned by List.
type FlashView struct {
	SessionFlash
	Delivered     bool  `json:"delivered"`
	DeliveredAtMs int64 `json:"delivered_at_ms,omitempty"`
}

// List returns flash messages filtered by session/kind/text-contains and
// by delivery status ("pending", "delivered", or "" for all).
func (sf *SessionFlashJournal) List(sessionID, kind, textContains, status string) []FlashView {
	sf.mu.RLock()
	defer sf.mu.RUnlock()

	var out []FlashView
	for _, f := range sf.byID {
		if sessionID != "" && f.SessionID != sessionID {
			continue
		}
		if kind != "" && f.Kind != kind {
			continue
		}
		if textContains != "" && !strings.Contains(f.Text, textContains) {
			continue
		}
		deliveredAt, delivered := sf.deliveredAt[f.FlashID]
		if status == "pending" && delivered {
			continue
		}
		if status == "delivered" && !delivered {
			continue
		}
		out = append(out, FlashView{SessionFlash: *f, Delivered: delivered, DeliveredAtMs: deliveredAt})
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAtMs < out[k].CreatedAtMs })
	return out
}

// Close releases the underlying file handle.
func (sf *SessionFlashJournal) Close() error {
	return sf.j.Close()
}
