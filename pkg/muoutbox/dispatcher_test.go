package muoutbox

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/femtomc/mu-controlplane/pkg/mucore"
	"github.com/femtomc/mu-controlplane/pkg/mujournal"
	"github.com/femtomc/mu-controlplane/pkg/mutest"
)

func newDispatcher(t *testing.T, deliver DeliverFunc, now *int64) *Dispatcher {
	t.Helper()
	oj, err := mujournal.OpenOutboxJournal(filepath.Join(t.TempDir(), "outbox.jsonl"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = oj.Close() })
	clock := func() int64 { return *now }
	return NewDispatcher(oj, &mutest.SequentialFactory{}, deliver, clock, 10, 0, nil)
}

func TestDispatcher_EnqueueDuplicateDedupeKey(t *testing.T) {
	now := int64(1000)
	d := newDispatcher(t, nil, &now)

	outcome, rec1, err := d.Enqueue("dk-1", mucore.OutboundEnvelope{Body: "hi"}, 0, 0, "", "")
	require.NoError(t, err)
	assert.Equal(t, EnqueueOutcomeEnqueued, outcome)

	outcome2, rec2, err := d.Enqueue("dk-1", mucore.OutboundEnvelope{Body: "hi again"}, 0, 0, "", "")
	require.NoError(t, err)
	assert.Equal(t, EnqueueOutcomeDuplicate, outcome2)
	assert.Equal(t, rec1.OutboxID, rec2.OutboxID)
}

func TestDispatcher_MarkFailureDeadLettersAfterMaxAttempts(t *testing.T) {
	now := int64(1000)
	d := newDispatcher(t, nil, &now)

	_, rec, err := d.Enqueue("dk-1", mucore.OutboundEnvelope{}, 2, 0, "", "")
	require.NoError(t, err)

	require.NoError(t, d.MarkFailure(rec.OutboxID, "boom", 0))
	got, ok := d.journal.Get(rec.OutboxID)
	require.True(t, ok)
	assert.Equal(t, mucore.OutboxPending, got.State)

	require.NoError(t, d.MarkFailure(rec.OutboxID, "boom again", 0))
	got, ok = d.journal.Get(rec.OutboxID)
	require.True(t, ok)
	assert.Equal(t, mucore.OutboxDeadLetter, got.State)
	assert.Equal(t, "boom again", got.DeadLetterReason)
}

func TestDispatcher_TickDeliversAndMarksSuccess(t *testing.T) {
	now := int64(1000)
	delivered := make([]string, 0)
	deliver := func(ctx context.Context, rec *mucore.OutboxRecord) error {
		delivered = append(delivered, rec.OutboxID)
		return nil
	}
	d := newDispatcher(t, deliver, &now)

	_, rec, err := d.Enqueue("dk-1", mucore.OutboundEnvelope{}, 0, 0, "", "")
	require.NoError(t, err)

	d.Tick(context.Background())
	assert.Equal(t, []string{rec.OutboxID}, delivered)

	got, ok := d.journal.Get(rec.OutboxID)
	require.True(t, ok)
	assert.Equal(t, mucore.OutboxDelivered, got.State)
}

func TestDispatcher_TickRetriesOnFailure(t *testing.T) {
	now := int64(1000)
	deliver := func(ctx context.Context, rec *mucore.OutboxRecord) error {
		return errors.New("unreachable")
	}
	d := newDispatcher(t, deliver, &now)

	_, rec, err := d.Enqueue("dk-1", mucore.OutboundEnvelope{}, 3, 0, "", "")
	require.NoError(t, err)

	d.Tick(context.Background())
	got, ok := d.journal.Get(rec.OutboxID)
	require.True(t, ok)
	assert.Equal(t, mucore.OutboxPending, got.State)
	assert.Equal(t, 1, got.AttemptCount)
	assert.Greater(t, got.NextAttemptAtMs, now)
}

func TestDispatcher_ReplayDeadLetterPreservesContentNewResponseID(t *testing.T) {
	now := int64(1000)
	d := newDispatcher(t, nil, &now)

	_, rec, err := d.Enqueue("dk-1", mucore.OutboundEnvelope{Body: "original"}, 1, 0, "", "")
	require.NoError(t, err)
	require.NoError(t, d.MarkFailure(rec.OutboxID, "fatal", 0))

	replay, err := d.ReplayDeadLetter(rec.OutboxID, "cmd-99")
	require.NoError(t, err)
	assert.Equal(t, "original", replay.Envelope.Body)
	assert.Equal(t, rec.OutboxID, replay.ReplayOfOutboxID)
	assert.Equal(t, rec.OutboxID, replay.Envelope.Correlation.ReplayedFromID)
	assert.Equal(t, mucore.OutboxPending, replay.State)
}

func TestBackoffSchedule_MatchesSpecFormula(t *testing.T) {
	cases := map[int]int64{1: 250, 2: 500, 3: 1000, 4: 2000}
	for attempt, wantMs := range cases {
		got := backoffSchedule(attempt)
		assert.Equal(t, wantMs, got.Milliseconds(), "attempt %d", attempt)
	}
}
