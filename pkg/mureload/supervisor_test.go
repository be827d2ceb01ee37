package mureload

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeModule struct {
	initErr    error
	warmupErr  error
	drainResult DrainResult
	shutdowns  int
	handled    []any
}

func (m *fakeModule) Init(ctx context.Context, restoreFrom []byte) error { return m.initErr }
func (m *fakeModule) Handle(ctx context.Context, event any) error {
	m.handled = append(m.handled, event)
	return nil
}
func (m *fakeModule) Warmup(ctx context.Context) error { return m.warmupErr }
func (m *fakeModule) Drain(ctx context.Context, timeout time.Duration, reason string) DrainResult {
	return m.drainResult
}
func (m *fakeModule) Checkpoint(ctx context.Context) ([]byte, error) { return nil, nil }
func (m *fakeModule) Shutdown(ctx context.Context, reason string, force bool) error {
	m.shutdowns++
	return nil
}

func newTestSupervisor(t *testing.T, factory Factory) *Supervisor {
	t.Helper()
	n := 0
	return NewSupervisor(Config{
		Name:    "test",
		Factory: factory,
		Clock:   func() int64 { return 1000 },
		GenerationID: func() string {
			n++
			return "gen-" + string(rune('a'+n-1))
		},
		DrainTimeout: 5 * time.Millisecond,
	})
}

func TestSupervisor_BootstrapSwapsInFirstGeneration(t *testing.T) {
	mod := &fakeModule{}
	sup := newTestSupervisor(t, func(ctx context.Context, reason string) (Module, error) { return mod, nil })

	attempt, err := sup.Bootstrap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "gen-a", attempt.ToGeneration)

	gen, ok := sup.Active()
	require.True(t, ok)
	assert.Equal(t, "gen-a", gen.GenerationID)
}

func TestSupervisor_InitFailureKeepsPreviousActive(t *testing.T) {
	good := &fakeModule{}
	sup := newTestSupervisor(t, func(ctx context.Context, reason string) (Module, error) { return good, nil })
	_, err := sup.Bootstrap(context.Background())
	require.NoError(t, err)

	failing := &fakeModule{initErr: errors.New("boom")}
	callCount := 0
	sup.factory = func(ctx context.Context, reason string) (Module, error) {
		callCount++
		return failing, nil
	}
	attempt, err := sup.Reload(context.Background(), "config_changed")
	require.NoError(t, err)

	gen, ok := sup.Active()
	require.True(t, ok)
	assert.Equal(t, "gen-a", gen.GenerationID)
	assert.NotEqual(t, "", attempt.Error)
}

func TestSupervisor_WarmupFailureRollsBackAndShutsDownNewModule(t *testing.T) {
	good := &fakeModule{}
	sup := newTestSupervisor(t, func(ctx context.Context, reason string) (Module, error) { return good, nil })
	_, err := sup.Bootstrap(context.Background())
	require.NoError(t, err)

	badWarmup := &fakeModule{warmupErr: errors.New("probe failed")}
	sup.factory = func(ctx context.Context, reason string) (Module, error) { return badWarmup, nil }

	attempt, err := sup.Reload(context.Background(), "config_changed")
	require.NoError(t, err)
	assert.Equal(t, "warmup_failed", attempt.Trigger)
	assert.Equal(t, 1, badWarmup.shutdowns)

	gen, ok := sup.Active()
	require.True(t, ok)
	assert.Equal(t, "gen-a", gen.GenerationID)
}

func TestSupervisor_DrainTimeoutTriggersRollback(t *testing.T) {
	good := &fakeModule{}
	sup := newTestSupervisor(t, func(ctx context.Context, reason string) (Module, error) { return good, nil })
	_, err := sup.Bootstrap(context.Background())
	require.NoError(t, err)

	good.drainResult = DrainResult{TimedOut: true}
	next := &fakeModule{}
	sup.factory = func(ctx context.Context, reason string) (Module, error) { return next, nil }

	attempt, err := sup.Reload(context.Background(), "config_changed")
	require.NoError(t, err)
	assert.Equal(t, "post_cutover_health_failed", attempt.Trigger)

	gen, ok := sup.Active()
	require.True(t, ok)
	assert.Equal(t, "gen-a", gen.GenerationID, "should have rolled back to the previous generation")
}

func TestSupervisor_RollbackWithNoPreviousGenerationErrors(t *testing.T) {
	mod := &fakeModule{}
	sup := newTestSupervisor(t, func(ctx context.Context, reason string) (Module, error) { return mod, nil })
	_, err := sup.Bootstrap(context.Background())
	require.NoError(t, err)

	_, err = sup.Rollback(context.Background())
	assert.ErrorIs(t, err, ErrRollbackUnavailable)
}

func TestSupervisor_SecondGenerationReplacesFirstOnSuccess(t *testing.T) {
	first := &fakeModule{}
	sup := newTestSupervisor(t, func(ctx context.Context, reason string) (Module, error) { return first, nil })
	_, err := sup.Bootstrap(context.Background())
	require.NoError(t, err)

	second := &fakeModule{}
	sup.factory = func(ctx context.Context, reason string) (Module, error) { return second, nil }
	attempt, err := sup.Reload(context.Background(), "api_control_plane_reload")
	require.NoError(t, err)
	assert.Equal(t, "gen-b", attempt.ToGeneration)
	assert.Equal(t, 1, first.shutdowns)

	gen, ok := sup.Active()
	require.True(t, ok)
	assert.Equal(t, "gen-b", gen.GenerationID)
}

func TestSupervisor_OnCutoverRunsAfterSwapAndWarmingClearsBeforeDrain(t *testing.T) {
	mod := &fakeModule{}
	cutovers := 0
	var warmingDuringFactory bool
	sup := NewSupervisor(Config{
		Name:         "test",
		Factory:      func(ctx context.Context, reason string) (Module, error) { return mod, nil },
		Clock:        func() int64 { return 1000 },
		GenerationID: func() string { return "gen-a" },
		DrainTimeout: 5 * time.Millisecond,
		OnCutover:    func(ctx context.Context) { cutovers++ },
	})

	assert.False(t, sup.Warming())
	_, err := sup.Bootstrap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, cutovers, "OnCutover should run once on the initial bootstrap")
	assert.False(t, sup.Warming())

	// On the second reload, Warming() should be true while the next
	// generation is being built/warmed up, and false again by the time
	// Reload returns.
	second := &fakeModule{}
	second.drainResult = DrainResult{}
	mod.drainResult = DrainResult{}
	sup.factory = func(ctx context.Context, reason string) (Module, error) {
		warmingDuringFactory = sup.Warming()
		return second, nil
	}
	_, err = sup.Reload(context.Background(), "config_changed")
	require.NoError(t, err)
	assert.Equal(t, 2, cutovers)
	assert.False(t, sup.Warming())
	assert.True(t, warmingDuringFactory, "warming should be true while building/warming up the next generation")
}

func TestSupervisor_CountersTrackSuccessAndFailure(t *testing.T) {
	mod := &fakeModule{}
	sup := newTestSupervisor(t, func(ctx context.Context, reason string) (Module, error) { return mod, nil })
	_, err := sup.Bootstrap(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, sup.Counters.Snapshot().ReloadSuccessTotal)

	failing := &fakeModule{initErr: errors.New("boom")}
	sup.factory = func(ctx context.Context, reason string) (Module, error) { return failing, nil }
	_, err = sup.Reload(context.Background(), "config_changed")
	require.NoError(t, err)
	assert.EqualValues(t, 1, sup.Counters.Snapshot().ReloadFailureTotal)
}
