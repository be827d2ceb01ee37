package mujournal

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/femtomc/mu-controlplane/pkg/mucore"
)

func TestOutboxJournal_DedupeKeyUniqueLiveEntry(t *testing.T) {
	oj, err := OpenOutboxJournal(filepath.Join(t.TempDir(), "outbox.jsonl"))
	require.NoError(t, err)
	defer oj.Close()

	rec := &mucore.OutboxRecord{OutboxID: "ob-1", DedupeKey: "dk-1", State: mucore.OutboxPending, CreatedAtMs: 100, UpdatedAtMs: 100}
	require.NoError(t, oj.Put(rec))

	got, ok := oj.ByDedupeKey("dk-1")
	require.True(t, ok)
	assert.Equal(t, "ob-1", got.OutboxID)
}

func TestOutboxJournal_PendingDueOrdering(t *testing.T) {
	oj, err := OpenOutboxJournal(filepath.Join(t.TempDir(), "outbox.jsonl"))
	require.NoError(t, err)
	defer oj.Close()

	require.NoError(t, oj.Put(&mucore.OutboxRecord{OutboxID: "b", DedupeKey: "b", State: mucore.OutboxPending, NextAttemptAtMs: 100, CreatedAtMs: 1}))
	require.NoError(t, oj.Put(&mucore.OutboxRecord{OutboxID: "a", DedupeKey: "a", State: mucore.OutboxPending, NextAttemptAtMs: 100, CreatedAtMs: 0}))
	require.NoError(t, oj.Put(&mucore.OutboxRecord{OutboxID: "c", DedupeKey: "c", State: mucore.OutboxPending, NextAttemptAtMs: 50, CreatedAtMs: 5}))
	require.NoError(t, oj.Put(&mucore.OutboxRecord{OutboxID: "d", DedupeKey: "d", State: mucore.OutboxDelivered, NextAttemptAtMs: 0, CreatedAtMs: 0}))

	due := oj.PendingDue(1000, 10)
	require.Len(t, due, 3)
	assert.Equal(t, []string{"c", "a", "b"}, []string{due[0].OutboxID, due[1].OutboxID, due[2].OutboxID})
}
