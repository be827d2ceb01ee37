package mujournal

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/femtomc/mu-controlplane/pkg/mucore"
)

func newCommandJournal(t *testing.T) *CommandJournal {
	t.Helper()
	cj, err := OpenCommandJournal(filepath.Join(t.TempDir(), "commands.jsonl"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cj.Close() })
	return cj
}

func TestCommandJournal_LifecycleTransitions(t *testing.T) {
	cj := newCommandJournal(t)

	rec := &mucore.CommandRecord{CommandID: "cmd-1", CreatedAtMs: 100, UpdatedAtMs: 100, State: mucore.StateReceived}
	require.NoError(t, cj.AppendLifecycle(rec))

	rec2 := rec.Clone()
	rec2.State = mucore.StateQueued
	rec2.UpdatedAtMs = 200
	require.NoError(t, cj.AppendLifecycle(rec2))

	got, err := cj.Get("cmd-1")
	require.NoError(t, err)
	assert.Equal(t, mucore.StateQueued, got.State)
	assert.Equal(t, int64(100), got.CreatedAtMs)
}

func TestCommandJournal_RejectsInvalidTransition(t *testing.T) {
	cj := newCommandJournal(t)

	rec := &mucore.CommandRecord{CommandID: "cmd-1", CreatedAtMs: 100, UpdatedAtMs: 100, State: mucore.StateReceived}
	require.NoError(t, cj.AppendLifecycle(rec))

	bad := rec.Clone()
	bad.State = mucore.StateCompleted // received -> completed is not legal
	bad.UpdatedAtMs = 200
	err := cj.AppendLifecycle(bad)
	assert.ErrorIs(t, err, mucore.ErrInvalidTransition)

	// state must be unchanged
	got, err := cj.Get("cmd-1")
	require.NoError(t, err)
	assert.Equal(t, mucore.StateReceived, got.State)
}

func TestCommandJournal_RejectsCreatedAtChange(t *testing.T) {
	cj := newCommandJournal(t)
	rec := &mucore.CommandRecord{CommandID: "cmd-1", CreatedAtMs: 100, UpdatedAtMs: 100, State: mucore.StateReceived}
	require.NoError(t, cj.AppendLifecycle(rec))

	mutated := rec.Clone()
	mutated.State = mucore.StateQueued
	mutated.CreatedAtMs = 999
	mutated.UpdatedAtMs = 200
	err := cj.AppendLifecycle(mutated)
	assert.Error(t, err)
}

func TestCommandJournal_RejectsUpdatedAtRegression(t *testing.T) {
	cj := newCommandJournal(t)
	rec := &mucore.CommandRecord{CommandID: "cmd-1", CreatedAtMs: 100, UpdatedAtMs: 100, State: mucore.StateReceived}
	require.NoError(t, cj.AppendLifecycle(rec))

	mutated := rec.Clone()
	mutated.State = mucore.StateQueued
	mutated.UpdatedAtMs = 50
	err := cj.AppendLifecycle(mutated)
	assert.Error(t, err)
}

func TestCommandJournal_MutatingEventsDoNotChangeState(t *testing.T) {
	cj := newCommandJournal(t)
	rec := &mucore.CommandRecord{CommandID: "cmd-1", CreatedAtMs: 100, UpdatedAtMs: 100, State: mucore.StateReceived}
	require.NoError(t, cj.AppendLifecycle(rec))

	require.NoError(t, cj.AppendMutating(MutatingEvent{Event: "cli.invocation.started", CommandID: "cmd-1", AtMs: 150}))

	got, err := cj.Get("cmd-1")
	require.NoError(t, err)
	assert.Equal(t, mucore.StateReceived, got.State)
	assert.Len(t, cj.MutatingEvents("cmd-1"), 1)
}

func TestCommandJournal_ReplayDeterminism(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commands.jsonl")
	cj, err := OpenCommandJournal(path)
	require.NoError(t, err)

	rec := &mucore.CommandRecord{CommandID: "cmd-1", CreatedAtMs: 100, UpdatedAtMs: 100, State: mucore.StateReceived}
	require.NoError(t, cj.AppendLifecycle(rec))
	q := rec.Clone()
	q.State = mucore.StateQueued
	q.UpdatedAtMs = 200
	require.NoError(t, cj.AppendLifecycle(q))
	require.NoError(t, cj.Close())

	reopened, err := OpenCommandJournal(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get("cmd-1")
	require.NoError(t, err)
	assert.Equal(t, mucore.StateQueued, got.State)
	assert.Equal(t, int64(100), got.CreatedAtMs)
}
