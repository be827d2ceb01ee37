package mucontrolplane

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/femtomc/mu-controlplane/pkg/mucore"
	"github.com/femtomc/mu-controlplane/pkg/mujournal"
	"github.com/femtomc/mu-controlplane/pkg/muoutbox"
)

type fakeIDs struct{ n int }

func (f *fakeIDs) NewID(prefix string) string {
	f.n++
	return prefix + "-1"
}

func newTestDispatcher(t *testing.T) *muoutbox.Dispatcher {
	t.Helper()
	j, err := mujournal.OpenOutboxJournal(t.TempDir() + "/outbox.jsonl")
	require.NoError(t, err)
	return muoutbox.NewDispatcher(j, &fakeIDs{}, func(ctx context.Context, rec *mucore.OutboxRecord) error {
		return nil
	}, func() int64 { return 1 }, 10, time.Millisecond, nil)
}

func TestModule_WarmupNoOpWithoutTelegramToken(t *testing.T) {
	m := New(newTestDispatcher(t), "")
	assert.NoError(t, m.Warmup(context.Background()))
}

func TestModule_DrainReturnsImmediatelyWithNoInFlight(t *testing.T) {
	m := New(newTestDispatcher(t), "")
	result := m.Drain(context.Background(), 50*time.Millisecond, "test")
	assert.True(t, result.Drained)
	assert.False(t, result.TimedOut)
}

func TestModule_ShutdownStopsDispatcher(t *testing.T) {
	m := New(newTestDispatcher(t), "")
	assert.NoError(t, m.Shutdown(context.Background(), "test", false))
}
