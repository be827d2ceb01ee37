// Package muoutbox implements the retrying outbox dispatcher (spec §4.5):
// enqueue/markDelivered/markFailure/replayDeadLetter plus a tick-driven
// drain loop with exponential backoff, grounded on the teacher's
// WorkerPool lifecycle (Start/Stop, stopCh + sync.Once, WaitGroup).
package muoutbox

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/femtomc/mu-controlplane/pkg/mucore"
	"github.com/femtomc/mu-controlplane/pkg/mujournal"
)

// EnqueueOutcome is the result of Enqueue.
type EnqueueOutcome string

// Outcomes named by spec §4.5.
const (
	EnqueueOutcomeEnqueued EnqueueOutcome = "enqueued"
	EnqueueOutcomeDuplicate EnqueueOutcome = "duplicate"
)

// DefaultMaxAttempts is used when a caller omits max_attempts (spec §4.5
// "enqueue({..., max_attempts=3, ...})").
const DefaultMaxAttempts = 3

// backoffSchedule returns the retry delay for a given attempt using the
// exponential policy from spec §4.5: min(60s, 250ms*2^(attempt-1)). It is
// computed via a RandomizationFactor=0 backoff.ExponentialBackOff so the
// dispatcher's retry math is driven by the same library production code
// uses for HTTP/gRPC client retries, rather than a hand-rolled formula.
func backoffSchedule(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = 60 * time.Second
	b.Reset()

	var d time.Duration
	if attempt < 1 {
		attempt = 1
	}
	for i := 0; i < attempt; i++ {
		d = b.NextBackOff()
	}
	if d > b.MaxInterval {
		d = b.MaxInterval
	}
	return d
}

// DeliverFunc attempts to deliver a single outbound envelope. It returns
// nil on success or an error describing why delivery failed.
type DeliverFunc func(ctx context.Context, rec *mucore.OutboxRecord) error

// Dispatcher drains due outbox records on a fixed tick, grounded on the
// teacher's worker-pool Start/Stop lifecycle.
type Dispatcher struct {
	journal      *mujournal.OutboxJournal
	deliver      DeliverFunc
	ids          mucore.IDFactory
	clock        func() int64
	limitPerTick int
	tickInterval time.Duration
	logger       *slog.Logger

	stopCh chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// NewDispatcher constructs a Dispatcher. clock returns the current time in
// Unix milliseconds.
func NewDispatcher(journal *mujournal.OutboxJournal, ids mucore.IDFactory, deliver DeliverFunc, clock func() int64, limitPerTick int, tickInterval time.Duration, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		journal:      journal,
		deliver:      deliver,
		ids:          ids,
		clock:        clock,
		limitPerTick: limitPerTick,
		tickInterval: tickInterval,
		logger:       logger.With("component", "muoutbox.dispatcher"),
		stopCh:       make(chan struct{}),
	}
}

// Enqueue appends a new pending outbox record, rejecting it as a duplicate
// if dedupeKey already has a live (non-dead-letter) entry per spec §4.5.
func (d *Dispatcher) Enqueue(dedupeKey string, envelope mucore.OutboundEnvelope, maxAttempts int, nextAttemptAtMs int64, replayOf, replayRequestedBy string) (EnqueueOutcome, *mucore.OutboxRecord, error) {
	if existing, ok := d.journal.ByDedupeKey(dedupeKey); ok && existing.State != mucore.OutboxDeadLetter {
		return EnqueueOutcomeDuplicate, existing, nil
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	now := d.clock()
	if nextAttemptAtMs == 0 {
		nextAttemptAtMs = now
	}

	rec := &mucore.OutboxRecord{
		OutboxID:                   d.ids.NewID("ob"),
		DedupeKey:                  dedupeKey,
		Envelope:                   envelope,
		State:                      mucore.OutboxPending,
		AttemptCount:               0,
		MaxAttempts:                maxAttempts,
		NextAttemptAtMs:            nextAttemptAtMs,
		ReplayOfOutboxID:           replayOf,
		ReplayRequestedByCommandID: replayRequestedBy,
		CreatedAtMs:                now,
		UpdatedAtMs:                now,
	}
	if err := d.journal.Put(rec); err != nil {
		return "", nil, err
	}
	return EnqueueOutcomeEnqueued, rec, nil
}

// MarkDelivered transitions an outbox record to delivered.
func (d *Dispatcher) MarkDelivered(outboxID string) error {
	rec, ok := d.journal.Get(outboxID)
	if !ok {
		return mucore.ErrNotFound
	}
	next := rec.Clone()
	next.State = mucore.OutboxDelivered
	next.UpdatedAtMs = d.clock()
	return d.journal.Put(next)
}

// MarkFailure records a delivery failure. If attempt >= max_attempts the
// record moves to dead_letter with dead_letter_reason=lastError; otherwise
// it stays pending with a recomputed next_attempt_at_ms.
func (d *Dispatcher) MarkFailure(outboxID, lastError string, retryDelayMs int64) error {
	rec, ok := d.journal.Get(outboxID)
	if !ok {
		return mucore.ErrNotFound
	}
	next := rec.Clone()
	next.AttemptCount++
	next.LastError = lastError
	next.UpdatedAtMs = d.clock()

	if next.AttemptCount >= next.MaxAttempts {
		next.State = mucore.OutboxDeadLetter
		next.DeadLetterReason = lastError
		return d.journal.Put(next)
	}

	delay := time.Duration(retryDelayMs) * time.Millisecond
	if retryDelayMs <= 0 {
		delay = backoffSchedule(next.AttemptCount)
	}
	next.NextAttemptAtMs = next.UpdatedAtMs + delay.Milliseconds()
	return d.journal.Put(next)
}

// ReplayDeadLetter creates a fresh pending record from a dead-lettered one,
// preserving its envelope content but assigning a new response ID and
// recording provenance in metadata (spec §4.5).
func (d *Dispatcher) ReplayDeadLetter(outboxID, replayRequestedByCommandID string) (*mucore.OutboxRecord, error) {
	rec, ok := d.journal.Get(outboxID)
	if !ok {
		return nil, mucore.ErrNotFound
	}

	env := rec.Envelope
	env.ResponseID = d.ids.NewID("resp")
	env.Correlation.ReplayedFromID = outboxID

	now := d.clock()
	next := &mucore.OutboxRecord{
		OutboxID:                   d.ids.NewID("ob"),
		DedupeKey:                  rec.DedupeKey + ":replay:" + env.ResponseID,
		Envelope:                   env,
		State:                      mucore.OutboxPending,
		MaxAttempts:                rec.MaxAttempts,
		NextAttemptAtMs:            now,
		ReplayOfOutboxID:           outboxID,
		ReplayRequestedByCommandID: replayRequestedByCommandID,
		CreatedAtMs:                now,
		UpdatedAtMs:                now,
	}
	if err := d.journal.Put(next); err != nil {
		return nil, err
	}
	return next, nil
}

// Tick drains up to limitPerTick due records, invoking deliver for each and
// recording the outcome.
func (d *Dispatcher) Tick(ctx context.Context) {
	due := d.journal.PendingDue(d.clock(), d.limitPerTick)
	for _, rec := range due {
		err := d.deliver(ctx, rec)
		if err == nil {
			if markErr := d.MarkDelivered(rec.OutboxID); markErr != nil {
				d.logger.Error("mark delivered failed", "outbox_id", rec.OutboxID, "error", markErr)
			}
			continue
		}
		if markErr := d.MarkFailure(rec.OutboxID, err.Error(), 0); markErr != nil {
			d.logger.Error("mark failure failed", "outbox_id", rec.OutboxID, "error", markErr)
		}
	}
}

// Start launches the tick loop until Stop is called or ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-d.stopCh:
				return
			case <-ticker.C:
				d.Tick(ctx)
			}
		}
	}()
}

// Stop halts the tick loop and waits for it to exit.
func (d *Dispatcher) Stop() {
	d.once.Do(func() { close(d.stopCh) })
	d.wg.Wait()
}
