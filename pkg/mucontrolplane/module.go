// Package mucontrolplane wires the generation-supervisor Module interface
// (spec §4.6) to the control plane's own lifecycle: the outbox dispatcher's
// start/stop and, when Telegram is enabled, a getMe warmup probe before
// cutover. Grounded on the Telegram bot example's tgbotapi.NewBotAPI (which
// performs its own getMe round trip on construction).
package mucontrolplane

import (
	"context"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/femtomc/mu-controlplane/pkg/mureload"
	"github.com/femtomc/mu-controlplane/pkg/muoutbox"
)

// Module is the control plane's ReloadableModule (spec §4.6): one
// generation of the outbox dispatcher plus the Telegram health probe.
type Module struct {
	dispatcher  *muoutbox.Dispatcher
	telegramTok string

	mu       sync.Mutex
	inFlight int
}

// New constructs a Module for one generation. telegramToken may be empty
// when the Telegram adapter is disabled, in which case Warmup is a no-op.
func New(dispatcher *muoutbox.Dispatcher, telegramToken string) *Module {
	return &Module{dispatcher: dispatcher, telegramTok: telegramToken}
}

// Init starts the dispatcher's own ticking goroutine. It runs before
// cutover, same as the dispatcher's journal-backed polling is harmless to
// start early: nothing observes this generation's traffic until the
// supervisor swaps it in as active.
func (m *Module) Init(ctx context.Context, _ []byte) error {
	m.dispatcher.Start(ctx)
	return nil
}

// Handle counts this generation's in-flight inbound commands so Drain knows
// when it is safe to cut over. The outbox dispatcher ticks independently on
// its own timer, started in Init.
func (m *Module) Handle(_ context.Context, _ any) error {
	m.mu.Lock()
	m.inFlight++
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()
	return nil
}

// Warmup performs the Telegram getMe health probe (spec §4.6) when a bot
// token is configured. tgbotapi.NewBotAPI performs this round trip itself.
func (m *Module) Warmup(_ context.Context) error {
	if m.telegramTok == "" {
		return nil
	}
	_, err := tgbotapi.NewBotAPI(m.telegramTok)
	return err
}

// Drain waits up to timeout for any in-flight Handle call to return.
func (m *Module) Drain(ctx context.Context, timeout time.Duration, _ string) mureload.DrainResult {
	m.mu.Lock()
	atStart := m.inFlight
	m.mu.Unlock()

	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		m.mu.Lock()
		n := m.inFlight
		m.mu.Unlock()
		if n == 0 {
			return mureload.DrainResult{Drained: true, InFlightAtStart: atStart, InFlightAtEnd: 0}
		}
		select {
		case <-ctx.Done():
			return mureload.DrainResult{Drained: false, TimedOut: true, InFlightAtStart: atStart, InFlightAtEnd: n}
		case <-deadline.C:
			return mureload.DrainResult{Drained: false, TimedOut: true, InFlightAtStart: atStart, InFlightAtEnd: n}
		case <-ticker.C:
		}
	}
}

// Checkpoint has nothing to carry across generations: the dispatcher's
// durable state lives in outbox.jsonl, not in memory.
func (m *Module) Checkpoint(_ context.Context) ([]byte, error) {
	return nil, nil
}

// Shutdown stops the dispatcher. force is ignored: Stop is always safe to
// call, drained or not.
func (m *Module) Shutdown(_ context.Context, _ string, _ bool) error {
	m.dispatcher.Stop()
	return nil
}
