package mujournal

import (
	"encoding/json"
	"sync"

	"github.com/femtomc/mu-controlplane/pkg/mucore"
)

type attachmentEntry struct {
	Record  mucore.AttachmentRecord `json:"record"`
	Deleted bool                    `json:"deleted,omitempty"`
}

// AttachmentJournal is the append-only index over the attachment CAS
// (spec §3 AttachmentRecord, §6 attachments/index.jsonl). Dedupe order is
// source_file_id first, then content_sha256, per spec §3.
type AttachmentJournal struct {
	j *Journal

	mu          sync.RWMutex
	byID        map[string]*mucore.AttachmentRecord
	bySourceID  map[string]string // source_file_id -> attachment_id
	bySHA256    map[string]string // content_sha256 -> attachment_id
}

// OpenAttachmentJournal opens (or creates) attachments/index.jsonl.
func OpenAttachmentJournal(path string) (*AttachmentJournal, error) {
	j, err := Open(path)
	if err != nil {
		return nil, err
	}
	aj := &AttachmentJournal{
		j:          j,
		byID:       make(map[string]*mucore.AttachmentRecord),
		bySourceID: make(map[string]string),
		bySHA256:   make(map[string]string),
	}
	if err := aj.load(); err != nil {
		return nil, err
	}
	return aj, nil
}

func (aj *AttachmentJournal) load() error {
	return aj.j.Load(func(line []byte) error {
		var e attachmentEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return err
		}
		rec := e.Record
		if e.Deleted {
			delete(aj.byID, rec.AttachmentID)
			delete(aj.bySourceID, rec.SourceFileID)
			delete(aj.bySHA256, rec.ContentSHA256)
			return nil
		}
		aj.byID[rec.AttachmentID] = &rec
		if rec.SourceFileID != "" {
			aj.bySourceID[rec.SourceFileID] = rec.AttachmentID
		}
		if rec.ContentSHA256 != "" {
			aj.bySHA256[rec.ContentSHA256] = rec.AttachmentID
		}
		return nil
	})
}

// Lookup finds an existing attachment by source_file_id first, then by
// content_sha256 (spec §3 dedupe order).
func (aj *AttachmentJournal) Lookup(sourceFileID, contentSHA256 string) (*mucore.AttachmentRecord, bool) {
	aj.mu.RLock()
	defer aj.mu.RUnlock()
	if sourceFileID != "" {
		if id, ok := aj.bySourceID[sourceFileID]; ok {
			cp := *aj.byID[id]
			return &cp, true
		}
	}
	if contentSHA256 != "" {
		if id, ok := aj.bySHA256[contentSHA256]; ok {
			cp := *aj.byID[id]
			return &cp, true
		}
	}
	return nil, false
}

// Put appends a new attachment record and indexes it.
func (aj *AttachmentJournal) Put(rec mucore.AttachmentRecord) error {
	if err := aj.j.Append(attachmentEntry{Record: rec}); err != nil {
		return err
	}
	aj.mu.Lock()
	cp := rec
	aj.byID[rec.AttachmentID] = &cp
	if rec.SourceFileID != "" {
		aj.bySourceID[rec.SourceFileID] = rec.AttachmentID
	}
	if rec.ContentSHA256 != "" {
		aj.bySHA256[rec.ContentSHA256] = rec.AttachmentID
	}
	aj.mu.Unlock()
	return nil
}

// Expired returns attachments whose expires_at_ms <= nowMs, for the
// attachment-cleanup loop (spec §5).
func (aj *AttachmentJournal) Expired(nowMs int64) []*mucore.AttachmentRecord {
	aj.mu.RLock()
	defer aj.mu.RUnlock()
	var out []*mucore.AttachmentRecord
	for _, rec := range aj.byID {
		if rec.ExpiresAtMs > 0 && rec.ExpiresAtMs <= nowMs {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out
}

// Delete appends a tombstone for an expired attachment and drops it from
// every index. The caller is responsible for removing the blob itself.
func (aj *AttachmentJournal) Delete(attachmentID string) error {
	aj.mu.Lock()
	rec, ok := aj.byID[attachmentID]
	aj.mu.Unlock()
	if !ok {
		return mucore.ErrNotFound
	}
	if err := aj.j.Append(attachmentEntry{Record: *rec, Deleted: true}); err != nil {
		return err
	}
	aj.mu.Lock()
	delete(aj.byID, attachmentID)
	delete(aj.bySourceID, rec.SourceFileID)
	delete(aj.bySHA256, rec.ContentSHA256)
	aj.mu.Unlock()
	return nil
}

// Close releases the underlying file handle.
func (aj *AttachmentJournal) Close() error {
	return aj.j.Close()
}
