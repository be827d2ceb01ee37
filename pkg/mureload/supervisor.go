// Package mureload implements the generation supervisor: the component that
// owns a channel adapter's lifecycle across hot reloads (spec §4.6).
package mureload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/femtomc/mu-controlplane/pkg/mucore"
)

// DrainResult reports what happened while draining the previous generation.
type DrainResult struct {
	Drained        bool
	InFlightAtStart int
	InFlightAtEnd   int
	ElapsedMs       int64
	TimedOut        bool
}

// Module is a ReloadableModule: one generation of a channel adapter.
// init(config, deps, restore_from?) -> handle(event) -> drain(...) ->
// checkpoint? -> shutdown(...), per spec §4.6.
type Module interface {
	// Init prepares the module to take traffic. restoreFrom carries the
	// prior generation's checkpoint bytes, or nil on cold start.
	Init(ctx context.Context, restoreFrom []byte) error
	// Handle processes one inbound event on the active generation.
	Handle(ctx context.Context, event any) error
	// Warmup runs a channel-specific health probe (e.g. Telegram's
	// getMe). Modules with no probe return nil immediately.
	Warmup(ctx context.Context) error
	// Drain stops accepting new work and waits up to timeout for
	// in-flight work to finish.
	Drain(ctx context.Context, timeout time.Duration, reason string) DrainResult
	// Checkpoint serializes state for the next generation's restoreFrom.
	// Modules with nothing to carry return (nil, nil).
	Checkpoint(ctx context.Context) ([]byte, error)
	// Shutdown releases resources. force=true means the drain timed out
	// and the module must stop immediately.
	Shutdown(ctx context.Context, reason string, force bool) error
}

// Factory builds the next generation's Module given a reload reason.
type Factory func(ctx context.Context, reason string) (Module, error)

// CutoverHook runs once, right after a new generation is swapped in as
// active. It is how a channel adapter's deferred-delivery queue (spec
// §4.7, e.g. Telegram) gets drained back into the pipeline once warmup
// is no longer in progress.
type CutoverHook func(ctx context.Context)

// Counters mirrors spec §4.6's required counter set.
type Counters struct {
	mu                     sync.Mutex
	ReloadSuccessTotal     int64
	ReloadFailureTotal     int64
	ReloadDrainDurationMsTotal int64
	ReloadDrainSamplesTotal    int64
	DuplicateSignalTotal   int64
	DropSignalTotal        int64
}

func (c *Counters) recordSuccess(drainMs int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ReloadSuccessTotal++
	c.ReloadDrainDurationMsTotal += drainMs
	c.ReloadDrainSamplesTotal++
}

func (c *Counters) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ReloadFailureTotal++
}

// Snapshot returns a copy of the current counter values.
func (c *Counters) Snapshot() Counters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Counters{
		ReloadSuccessTotal:         c.ReloadSuccessTotal,
		ReloadFailureTotal:         c.ReloadFailureTotal,
		ReloadDrainDurationMsTotal: c.ReloadDrainDurationMsTotal,
		ReloadDrainSamplesTotal:    c.ReloadDrainSamplesTotal,
		DuplicateSignalTotal:       c.DuplicateSignalTotal,
		DropSignalTotal:            c.DropSignalTotal,
	}
}

// ErrRollbackUnavailable is returned when a rollback is attempted with no
// prior generation to swap back to.
var ErrRollbackUnavailable = errors.New("mureload: rollback unavailable, no previous generation")

// Supervisor manages one active generation and serializes reload attempts.
// Only one reload may be in flight at a time; a second intent received while
// one is running coalesces into a single follow-up attempt, per spec §4.6.
type Supervisor struct {
	name     string
	factory  Factory
	clock    func() int64
	genIDs   func() string
	drainTimeout time.Duration
	logger   *slog.Logger
	onCutover CutoverHook

	mu       sync.Mutex
	active   *generation
	previous *generation
	nextSeq  int64
	running  bool
	warming  bool
	pending  *string // coalesced follow-up reason, if any
	Counters Counters

	attempts []mucore.ReloadAttempt
}

type generation struct {
	module     Module
	id         mucore.Generation
	checkpoint []byte
}

// Config groups Supervisor construction parameters.
type Config struct {
	Name         string
	Factory      Factory
	Clock        func() int64
	GenerationID func() string
	DrainTimeout time.Duration
	Logger       *slog.Logger
	// OnCutover, if set, runs once right after each successful cutover
	// (including the initial bootstrap).
	OnCutover CutoverHook
}

// NewSupervisor constructs a Supervisor with no active generation. Call
// Bootstrap to perform the first init.
func NewSupervisor(cfg Config) *Supervisor {
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Supervisor{
		name:         cfg.Name,
		factory:      cfg.Factory,
		clock:        cfg.Clock,
		genIDs:       cfg.GenerationID,
		drainTimeout: cfg.DrainTimeout,
		logger:       cfg.Logger,
		onCutover:    cfg.OnCutover,
	}
}

// Warming reports whether a reload is currently between accepting the next
// generation and completing cutover — the window in which a channel
// adapter with deferred delivery (spec §4.7) should queue inbound webhooks
// instead of handing them to the pipeline immediately.
func (s *Supervisor) Warming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.warming
}

// Active returns the currently active generation's identity, or the zero
// value if none is active yet.
func (s *Supervisor) Active() (mucore.Generation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return mucore.Generation{}, false
	}
	return s.active.id, true
}

// Attempts returns every reload attempt recorded so far, oldest first.
func (s *Supervisor) Attempts() []mucore.ReloadAttempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]mucore.ReloadAttempt(nil), s.attempts...)
}

// Bootstrap performs the very first init (reason "startup"), with no
// previous generation to drain or roll back to.
func (s *Supervisor) Bootstrap(ctx context.Context) (mucore.ReloadAttempt, error) {
	return s.Reload(ctx, "startup")
}

// Reload executes the full reload protocol (spec §4.6 steps 1-8). If a
// reload is already in flight, this call's reason is coalesced into a
// single follow-up attempt and run immediately after the in-flight one
// finishes.
func (s *Supervisor) Reload(ctx context.Context, reason string) (mucore.ReloadAttempt, error) {
	s.mu.Lock()
	if s.running {
		s.pending = &reason
		s.mu.Unlock()
		return mucore.ReloadAttempt{Reason: reason, State: mucore.ReloadPlanned, Trigger: "coalesced"}, nil
	}
	s.running = true
	s.mu.Unlock()

	attempt := s.runOnce(ctx, reason)

	s.mu.Lock()
	follow := s.pending
	s.pending = nil
	s.running = false
	s.mu.Unlock()

	if follow != nil {
		go func() { _, _ = s.Reload(ctx, *follow) }()
	}

	return attempt, nil
}

func (s *Supervisor) now() int64 {
	if s.clock != nil {
		return s.clock()
	}
	return time.Now().UnixMilli()
}

func (s *Supervisor) newGenerationID() string {
	if s.genIDs != nil {
		return s.genIDs()
	}
	return fmt.Sprintf("gen-%d", s.now())
}

func (s *Supervisor) runOnce(ctx context.Context, reason string) mucore.ReloadAttempt {
	s.mu.Lock()
	prev := s.active
	seq := s.nextSeq + 1
	s.warming = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.warming = false
		s.mu.Unlock()
	}()

	attempt := mucore.ReloadAttempt{
		AttemptID:     fmt.Sprintf("%s-reload-%d", s.name, seq),
		Reason:        reason,
		State:         mucore.ReloadPlanned,
		RequestedAtMs: s.now(),
		ToGeneration:  s.newGenerationID(),
	}
	if prev != nil {
		attempt.FromGeneration = prev.id.GenerationID
	}

	module, err := s.factory(ctx, reason)
	if err != nil {
		attempt.State = mucore.ReloadFailed
		attempt.Error = err.Error()
		attempt.FinishedAtMs = s.now()
		s.finish(attempt, seq, nil)
		s.Counters.recordFailure()
		return attempt
	}

	var restoreFrom []byte
	if prev != nil {
		restoreFrom = prev.checkpoint
	}
	if err := module.Init(ctx, restoreFrom); err != nil {
		attempt.State = mucore.ReloadFailed
		attempt.Error = err.Error()
		attempt.FinishedAtMs = s.now()
		s.finish(attempt, seq, nil)
		s.Counters.recordFailure()
		return attempt
	}

	if err := module.Warmup(ctx); err != nil {
		attempt.State = mucore.ReloadFailed
		attempt.Trigger = "warmup_failed"
		attempt.Error = err.Error()
		attempt.FinishedAtMs = s.now()
		s.finish(attempt, seq, nil)
		s.Counters.recordFailure()
		_ = module.Shutdown(ctx, "warmup_failed", true)
		return attempt
	}

	next := &generation{module: module, id: mucore.Generation{GenerationID: attempt.ToGeneration, GenerationSeq: seq}}

	// Cutover: atomically swap the active pointer. Warming ends here, not
	// at the end of runOnce: the new generation is live and able to take
	// traffic even while the previous one is still draining below.
	s.mu.Lock()
	s.active = next
	s.previous = prev
	s.nextSeq = seq
	s.warming = false
	s.mu.Unlock()
	attempt.State = mucore.ReloadSwapped
	attempt.SwappedAtMs = s.now()
	s.logger.Info("control plane reload cutover", "name", s.name, "generation", next.id.GenerationID, "reason", reason)
	if s.onCutover != nil {
		s.onCutover(ctx)
	}

	if prev != nil {
		drainStart := s.now()
		drain := prev.module.Drain(ctx, s.drainTimeout, reason)
		drainElapsed := s.now() - drainStart
		if cp, err := prev.module.Checkpoint(ctx); err == nil {
			prev.checkpoint = cp
		}
		if err := prev.module.Shutdown(ctx, reason, drain.TimedOut); err != nil {
			s.logger.Warn("previous generation shutdown error", "name", s.name, "error", err)
		}

		if drain.TimedOut {
			rolledBack := s.rollback(ctx, prev, "post_cutover_health_failed")
			attempt.State = mucore.ReloadFailed
			attempt.Trigger = "post_cutover_health_failed"
			if !rolledBack {
				attempt.Trigger = "rollback_unavailable"
			}
			attempt.FinishedAtMs = s.now()
			s.finish(attempt, seq, prev)
			s.Counters.recordFailure()
			return attempt
		}

		s.Counters.recordSuccess(drainElapsed)
	}

	attempt.State = mucore.ReloadCompleted
	attempt.FinishedAtMs = s.now()
	s.finish(attempt, seq, prev)
	if prev == nil {
		s.Counters.recordSuccess(0)
	}
	return attempt
}

// rollback re-swaps the active pointer back to prev. Returns false if there
// is nothing to roll back to.
func (s *Supervisor) rollback(ctx context.Context, prev *generation, trigger string) bool {
	if prev == nil {
		return false
	}
	s.mu.Lock()
	s.active = prev
	s.mu.Unlock()
	s.logger.Warn("control plane reload rollback", "name", s.name, "generation", prev.id.GenerationID, "trigger", trigger)
	return true
}

func (s *Supervisor) finish(attempt mucore.ReloadAttempt, seq int64, prevForRollback *generation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, attempt)
}

// Rollback explicitly reverts to the previous generation, e.g. via the
// /api/control-plane/rollback endpoint.
func (s *Supervisor) Rollback(ctx context.Context) (mucore.ReloadAttempt, error) {
	s.mu.Lock()
	prev := s.previous
	active := s.active
	s.mu.Unlock()

	attempt := mucore.ReloadAttempt{
		Reason:        "rollback",
		RequestedAtMs: s.now(),
	}
	if prev == nil {
		attempt.State = mucore.ReloadFailed
		attempt.Trigger = "rollback_unavailable"
		attempt.Error = ErrRollbackUnavailable.Error()
		attempt.FinishedAtMs = s.now()
		s.finish(attempt, 0, nil)
		s.Counters.recordFailure()
		return attempt, ErrRollbackUnavailable
	}

	attempt.FromGeneration = active.id.GenerationID
	attempt.ToGeneration = prev.id.GenerationID
	ok := s.rollback(ctx, prev, "manual")
	if !ok {
		attempt.State = mucore.ReloadFailed
		attempt.Trigger = "rollback_failed"
		attempt.FinishedAtMs = s.now()
		s.finish(attempt, 0, nil)
		s.Counters.recordFailure()
		return attempt, errors.New("mureload: rollback failed")
	}
	attempt.State = mucore.ReloadCompleted
	attempt.SwappedAtMs = s.now()
	attempt.FinishedAtMs = s.now()
	s.finish(attempt, 0, nil)
	s.Counters.recordSuccess(0)
	return attempt, nil
}

// RecordDuplicateSignal bumps duplicate_signal_total. No component calls
// it: neither the outbox dispatcher nor the idempotency ledger reports
// dedupe hits to the supervisor, so the counter stays at zero.
func (s *Supervisor) RecordDuplicateSignal() {
	s.Counters.mu.Lock()
	defer s.Counters.mu.Unlock()
	s.Counters.DuplicateSignalTotal++
}

// RecordDropSignal bumps drop_signal_total. No component calls it: the
// outbox dispatcher does not report dead-letters to the supervisor, so the
// counter stays at zero.
func (s *Supervisor) RecordDropSignal() {
	s.Counters.mu.Lock()
	defer s.Counters.mu.Unlock()
	s.Counters.DropSignalTotal++
}

// Handle forwards an inbound event to the active generation's module.
func (s *Supervisor) Handle(ctx context.Context, event any) error {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if active == nil {
		return errors.New("mureload: no active generation")
	}
	return active.module.Handle(ctx, event)
}
