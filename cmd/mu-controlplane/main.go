// mu-controlplane is the control-plane server: it terminates per-channel
// webhooks, drives inbound commands through the pipeline, and serves the
// admin/issue/forum/event HTTP surface described in spec §6.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	goslack "github.com/slack-go/slack"

	"github.com/femtomc/mu-controlplane/pkg/mucleanup"
	"github.com/femtomc/mu-controlplane/pkg/mucli"
	"github.com/femtomc/mu-controlplane/pkg/muconfig"
	"github.com/femtomc/mu-controlplane/pkg/muconfirm"
	"github.com/femtomc/mu-controlplane/pkg/mucontrolplane"
	"github.com/femtomc/mu-controlplane/pkg/mucore"
	"github.com/femtomc/mu-controlplane/pkg/muadapter/discord"
	"github.com/femtomc/mu-controlplane/pkg/muadapter/neovim"
	"github.com/femtomc/mu-controlplane/pkg/muadapter/slack"
	"github.com/femtomc/mu-controlplane/pkg/muadapter/telegram"
	"github.com/femtomc/mu-controlplane/pkg/muadapter/vscode"
	"github.com/femtomc/mu-controlplane/pkg/muapi"
	"github.com/femtomc/mu-controlplane/pkg/muidempotency"
	"github.com/femtomc/mu-controlplane/pkg/muidentity"
	"github.com/femtomc/mu-controlplane/pkg/muissue"
	"github.com/femtomc/mu-controlplane/pkg/mujournal"
	"github.com/femtomc/mu-controlplane/pkg/muoperator"
	"github.com/femtomc/mu-controlplane/pkg/muoutbox"
	"github.com/femtomc/mu-controlplane/pkg/mupipeline"
	"github.com/femtomc/mu-controlplane/pkg/mureload"
)

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func clockNow() int64 { return time.Now().UnixMilli() }

func main() {
	repoRoot := flag.String("repo-root", getEnv("MU_REPO_ROOT", "."), "Path to the repo the control plane governs")
	addr := flag.String("addr", getEnv("MU_ADDR", ":8088"), "HTTP listen address")
	flag.Parse()

	envPath := filepath.Join(*repoRoot, ".mu", ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("no .mu/.env loaded, continuing with existing environment", "path", envPath)
	}

	logger := slog.Default()

	cfg, err := muconfig.Load(*repoRoot)
	if err != nil {
		logger.Error("failed to load control plane config", "error", err)
		os.Exit(1)
	}

	dataDir := filepath.Join(*repoRoot, ".mu", "control-plane")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		logger.Error("failed to create data directory", "dir", dataDir, "error", err)
		os.Exit(1)
	}

	commands, err := mujournal.OpenCommandJournal(filepath.Join(dataDir, "commands.jsonl"))
	mustOpen(logger, "commands.jsonl", err)
	identities, err := mujournal.OpenIdentityJournal(filepath.Join(dataDir, "identities.jsonl"))
	mustOpen(logger, "identities.jsonl", err)
	idempotency, err := mujournal.OpenIdempotencyJournal(filepath.Join(dataDir, "idempotency.jsonl"))
	mustOpen(logger, "idempotency.jsonl", err)
	outboxJournal, err := mujournal.OpenOutboxJournal(filepath.Join(dataDir, "outbox.jsonl"))
	mustOpen(logger, "outbox.jsonl", err)
	events, err := mujournal.OpenEventJournal(filepath.Join(dataDir, "events.jsonl"))
	mustOpen(logger, "events.jsonl", err)
	flash, err := mujournal.OpenSessionFlashJournal(filepath.Join(dataDir, "session_flash.jsonl"))
	mustOpen(logger, "session_flash.jsonl", err)
	attachments, err := mujournal.OpenAttachmentJournal(filepath.Join(dataDir, "attachments", "index.jsonl"))
	mustOpen(logger, "attachments/index.jsonl", err)

	blobRoot := filepath.Join(dataDir, "attachments", "blobs")
	if err := os.MkdirAll(blobRoot, 0o755); err != nil {
		logger.Error("failed to create attachment blob directory", "dir", blobRoot, "error", err)
		os.Exit(1)
	}
	gcBatchSize := cfg.ControlPlane.AttachmentGCBatchSize
	if gcBatchSize <= 0 {
		gcBatchSize = 200
	}
	cleanup := mucleanup.New(attachments, blobRoot, gcBatchSize, 10*time.Minute, clockNow, logger)

	ids := mucore.UUIDFactory{}

	identityStore := muidentity.New(identities, ids)
	idempotencyLedger := muidempotency.New(idempotency)
	confirmMgr := muconfirm.New(commands)
	runner := mucli.NewRunner()
	backend := muoperator.NewFixtureBackend(muoperator.TurnResult{
		Kind:    muoperator.TurnRespond,
		Message: "operator backend not configured for this deployment",
	})

	delivery := &mucontrolplane.Delivery{}
	if t := cfg.ControlPlane.Adapters.Slack.BotToken; t != "" {
		delivery.Slack = goslack.New(t)
	}
	if t := cfg.ControlPlane.Adapters.Telegram.BotToken; t != "" {
		bot, err := tgbotapi.NewBotAPI(t)
		if err != nil {
			logger.Warn("telegram bot init failed, deliveries to telegram will error", "error", err)
		} else {
			delivery.Telegram = bot
		}
	}
	if t := cfg.ControlPlane.Adapters.Discord.BotToken; t != "" {
		sess, err := discordgo.New("Bot " + t)
		if err != nil {
			logger.Warn("discord session init failed, deliveries to discord will error", "error", err)
		} else {
			delivery.Discord = sess
		}
	}

	outboxDispatcher := muoutbox.NewDispatcher(outboxJournal, ids, delivery.Deliver, clockNow, 25, 500*time.Millisecond, logger)

	pipeline := mupipeline.New(mupipeline.Pipeline{
		Identities:  identityStore,
		Idempotency: idempotencyLedger,
		Confirm:     confirmMgr,
		Commands:    commands,
		Backend:     backend,
		Runner:      runner,
		Outbox:      outboxDispatcher,
		IDs:         ids,
		Clock:       clockNow,
		Logger:      logger,
		ConfirmationTTLMs: cfg.ControlPlane.ConfirmationTTLMs,
		CLITimeout:        time.Duration(cfg.ControlPlane.CLITimeoutMs) * time.Millisecond,
	})

	// Declared before telegramAdapter so its Warming callback can close over
	// sup, and assigned (not :=) once the supervisor itself exists.
	var sup *mureload.Supervisor

	telegramAdapter := telegram.New(
		cfg.ControlPlane.Adapters.Telegram.WebhookSecret,
		cfg.ControlPlane.Adapters.Telegram.BotUsername,
		clockNow,
		func() bool { return sup != nil && sup.Warming() },
	)

	sup = mureload.NewSupervisor(mureload.Config{
		Name: "mu-controlplane",
		Factory: func(ctx context.Context, reason string) (mureload.Module, error) {
			return mucontrolplane.New(outboxDispatcher, cfg.ControlPlane.Adapters.Telegram.BotToken), nil
		},
		Clock:        clockNow,
		GenerationID: func() string { return uuid.NewString() },
		DrainTimeout: time.Duration(cfg.ControlPlane.ReloadDrainTimeoutMs) * time.Millisecond,
		Logger:       logger,
		OnCutover: func(ctx context.Context) {
			for _, env := range telegramAdapter.DrainDeferred() {
				if env != nil {
					pipeline.HandleInbound(ctx, *env)
				}
			}
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := sup.Bootstrap(ctx); err != nil {
		logger.Error("bootstrap reload failed", "error", err)
		os.Exit(1)
	}
	if gen, ok := sup.Active(); ok {
		logger.Info("control plane generation active", "generation_id", gen.GenerationID)
	}
	cleanup.Start(ctx)

	issueStore, err := muissue.NewMemStore(filepath.Join(dataDir, "issues.json"), clockNow)
	mustOpen(logger, "issues.json", err)
	forum, err := muissue.NewMemForum(filepath.Join(dataDir, "forum.json"), clockNow)
	mustOpen(logger, "forum.json", err)

	api := muapi.NewServer(clockNow, logger)
	api.SetPipeline(pipeline)
	api.SetReloadSupervisor(sup)
	api.SetIssueStore(issueStore)
	api.SetForum(forum)
	api.SetEventJournal(events)
	api.SetSessionFlashJournal(flash)
	api.SetOutboxDispatcher(outboxDispatcher)

	if isEnabled(cfg.ControlPlane.Adapters.Slack.Enabled) {
		api.RegisterAdapter("slack", slack.New(cfg.ControlPlane.Adapters.Slack.SigningSecret, clockNow))
	}
	if isEnabled(cfg.ControlPlane.Adapters.Discord.Enabled) {
		api.RegisterAdapter("discord", discord.New(cfg.ControlPlane.Adapters.Discord.SigningSecret, clockNow))
	}
	if isEnabled(cfg.ControlPlane.Adapters.Telegram.Enabled) {
		api.RegisterAdapter("telegram", telegramAdapter)
	}
	if isEnabled(cfg.ControlPlane.Adapters.Neovim.Enabled) {
		api.RegisterAdapter("neovim", neovim.New(cfg.ControlPlane.Adapters.Neovim.SharedSecret, clockNow))
	}
	if isEnabled(cfg.ControlPlane.Adapters.VSCode.Enabled) {
		api.RegisterAdapter("vscode", vscode.New(cfg.ControlPlane.Adapters.VSCode.SharedSecret, clockNow))
	}

	if err := api.ValidateWiring(); err != nil {
		logger.Error("server wiring incomplete", "error", err)
		os.Exit(1)
	}

	logger.Info("mu-controlplane listening", "addr", *addr, "repo_root", *repoRoot)
	go func() {
		if err := api.Start(*addr); err != nil {
			logger.Error("http server stopped", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = api.Shutdown(shutdownCtx)
	outboxDispatcher.Stop()
	cleanup.Stop()

	for name, closer := range map[string]func() error{
		"commands":      commands.Close,
		"identities":    identities.Close,
		"idempotency":   idempotency.Close,
		"outbox":        outboxJournal.Close,
		"events":        events.Close,
		"session_flash": flash.Close,
		"attachments":   attachments.Close,
	} {
		if err := closer(); err != nil {
			logger.Warn("error closing journal", "journal", name, "error", err)
		}
	}
}

func mustOpen(logger *slog.Logger, name string, err error) {
	if err != nil {
		logger.Error("failed to open journal", "journal", name, "error", err)
		os.Exit(1)
	}
}

func isEnabled(b *bool) bool {
	return b == nil || *b
}
