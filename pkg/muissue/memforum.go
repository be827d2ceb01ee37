package muissue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// MemForum is a JSONL-persisted reference Forum implementation.
type MemForum struct {
	mu      sync.Mutex
	path    string
	nextSeq int64
	posts   []*ForumPost
	clock   func() int64
}

// NewMemForum loads path (if present) or starts empty.
func NewMemForum(path string, clock func() int64) (*MemForum, error) {
	if clock == nil {
		clock = func() int64 { return 0 }
	}
	f := &MemForum{path: path, clock: clock}
	if path == "" {
		return f, nil
	}
	if err := f.load(); err != nil {
		return nil, err
	}
	return f, nil
}

type memForumFile struct {
	NextSeq int64        `json:"next_seq"`
	Posts   []*ForumPost `json:"posts"`
}

func (f *MemForum) load() error {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("muissue: load %s: %w", f.path, err)
	}
	var doc memForumFile
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("muissue: decode %s: %w", f.path, err)
	}
	f.nextSeq = doc.NextSeq
	f.posts = doc.Posts
	return nil
}

func (f *MemForum) persist() error {
	if f.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	doc := memForumFile{NextSeq: f.nextSeq, Posts: f.posts}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

// Read implements Forum: returns every post for topic, oldest first.
func (f *MemForum) Read(_ context.Context, topic string) ([]*ForumPost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*ForumPost
	for _, p := range f.posts {
		if p.Topic == topic {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Post implements Forum.
func (f *MemForum) Post(_ context.Context, topic, author, body string) (*ForumPost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextSeq++
	post := &ForumPost{
		ID:          fmt.Sprintf("post-%d", f.nextSeq),
		Topic:       topic,
		Author:      author,
		Body:        body,
		CreatedAtMs: f.clock(),
	}
	f.posts = append(f.posts, post)
	if err := f.persist(); err != nil {
		return nil, err
	}
	cp := *post
	return &cp, nil
}
