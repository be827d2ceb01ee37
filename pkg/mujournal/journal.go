// Package mujournal implements the append-only JSONL journal primitive
// used by every durable store in the control plane (commands, identities,
// idempotency, outbox, attachments, operator turns, session flash, events).
//
// The shape follows spec §9's design note directly: each journal is an
// object of (path, in_memory_index, append, load) — no ambient mutable
// state, no global registries. It generalizes the single-JSON-blob store
// idiom seen in the retrieval pack's Aureuma-si/agents/resource-broker
// (load-on-construct, mutex-guarded mutation) to true append-only JSONL,
// which is what lets commands.jsonl etc. survive a crash mid-write without
// losing prior history.
package mujournal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Journal is a generic append-only JSONL file. Raw bytes are the source of
// truth; callers maintain their own in-memory index built by replaying
// Load's callback. All appends are serialized by an internal mutex —
// spec §5 requires a single logical writer per repo per journal.
type Journal struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// Open creates (if needed) and opens the journal file at path for
// append-only writes. The parent directory is created if missing.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mujournal: mkdir %s: %w", filepath.Dir(path), err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("mujournal: open %s: %w", path, err)
	}
	return &Journal{path: path, file: f}, nil
}

// Path returns the journal's backing file path.
func (j *Journal) Path() string {
	return j.path
}

// Append marshals v as one JSON line and appends it atomically with
// respect to other Append calls on this Journal. It fsyncs before
// returning so a crash cannot observe a partially-durable append.
func (j *Journal) Append(v interface{}) error {
	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("mujournal: marshal: %w", err)
	}
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()

	if _, err := j.file.Write(line); err != nil {
		return fmt.Errorf("mujournal: append %s: %w", j.path, err)
	}
	if err := j.file.Sync(); err != nil {
		return fmt.Errorf("mujournal: sync %s: %w", j.path, err)
	}
	return nil
}

// Load replays every line in the journal from the start of the file,
// calling decode(line) for each one in order. decode is responsible for
// unmarshalling into the caller's entry type and folding it into the
// caller's in-memory index — Load itself holds no opinion about the
// record shape, which is what lets commands.jsonl, identities.jsonl, and
// the rest share this single primitive.
//
// Load is safe to call before any Append: an empty/missing file yields no
// callback invocations.
func (j *Journal) Load(decode func(line []byte) error) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, err := j.file.Seek(0, 0); err != nil {
		return fmt.Errorf("mujournal: seek %s: %w", j.path, err)
	}
	scanner := bufio.NewScanner(j.file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		cp := make([]byte, len(line))
		copy(cp, line)
		if err := decode(cp); err != nil {
			return fmt.Errorf("mujournal: decode %s: %w", j.path, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("mujournal: scan %s: %w", j.path, err)
	}
	// Restore the append position.
	if _, err := j.file.Seek(0, 2); err != nil {
		return fmt.Errorf("mujournal: seek-end %s: %w", j.path, err)
	}
	return nil
}

// Close releases the underlying file handle.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.file.Close()
}
