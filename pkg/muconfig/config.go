// Package muconfig loads and merges the control plane's .mu/config.json
// (spec §6's "Environment" section).
package muconfig

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigNotFound indicates .mu/config.json was not found; callers
	// fall back to Defaults().
	ErrConfigNotFound = errors.New("muconfig: config file not found")
	// ErrInvalidJSON indicates the file could not be parsed as JSON.
	ErrInvalidJSON = errors.New("muconfig: invalid JSON syntax")
	// ErrValidationFailed indicates the merged configuration failed validation.
	ErrValidationFailed = errors.New("muconfig: validation failed")
)

// LoadError wraps a load-time failure with the offending file path.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("muconfig: failed to load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// SlackAdapterConfig holds Slack channel secrets and ingress settings.
// SigningSecret verifies inbound webhooks (spec §4.7); BotToken is used for
// outbox delivery back to the channel.
type SlackAdapterConfig struct {
	Enabled       *bool  `json:"enabled,omitempty"`
	SigningSecret string `json:"signing_secret,omitempty"`
	BotToken      string `json:"bot_token,omitempty"`
}

// DiscordAdapterConfig holds Discord channel secrets. SigningSecret carries
// the hex-encoded Ed25519 public key used to verify interaction webhooks;
// BotToken is used for outbox delivery back to the channel.
type DiscordAdapterConfig struct {
	Enabled       *bool  `json:"enabled,omitempty"`
	SigningSecret string `json:"signing_secret,omitempty"`
	BotToken      string `json:"bot_token,omitempty"`
}

// TelegramAdapterConfig holds Telegram channel secrets and bot identity.
type TelegramAdapterConfig struct {
	Enabled      *bool  `json:"enabled,omitempty"`
	WebhookSecret string `json:"webhook_secret,omitempty"`
	BotToken     string `json:"bot_token,omitempty"`
	BotUsername  string `json:"bot_username,omitempty"`
}

// SharedSecretAdapterConfig holds the shared-secret scheme used by the
// in-editor surfaces (Neovim, VSCode).
type SharedSecretAdapterConfig struct {
	Enabled      *bool  `json:"enabled,omitempty"`
	SharedSecret string `json:"shared_secret,omitempty"`
}

// AdaptersConfig groups every channel adapter's configuration.
type AdaptersConfig struct {
	Slack    SlackAdapterConfig        `json:"slack"`
	Discord  DiscordAdapterConfig      `json:"discord"`
	Telegram TelegramAdapterConfig     `json:"telegram"`
	Neovim   SharedSecretAdapterConfig `json:"neovim"`
	VSCode   SharedSecretAdapterConfig `json:"vscode"`
}

// OperatorConfig mirrors control_plane.operator.* from spec §6.
type OperatorConfig struct {
	Enabled           *bool  `json:"enabled,omitempty"`
	RunTriggersEnabled *bool `json:"run_triggers_enabled,omitempty"`
	WakeTurnMode      string `json:"wake_turn_mode,omitempty"`
	Provider          string `json:"provider,omitempty"`
	Model             string `json:"model,omitempty"`
}

// ControlPlaneConfig is the control_plane.* subtree of .mu/config.json.
type ControlPlaneConfig struct {
	Adapters AdaptersConfig `json:"adapters"`
	Operator OperatorConfig `json:"operator"`

	ConfirmationTTLMs       int64 `json:"confirmation_ttl_ms,omitempty"`
	IdempotencyTTLMs        int64 `json:"idempotency_ttl_ms,omitempty"`
	CLITimeoutMs            int64 `json:"cli_timeout_ms,omitempty"`
	OutboxMaxAttempts       int   `json:"outbox_max_attempts,omitempty"`
	ReloadDrainTimeoutMs    int64 `json:"reload_drain_timeout_ms,omitempty"`
	AttachmentGCBatchSize   int   `json:"attachment_gc_batch_size,omitempty"`
	OperatorSessionTTLMs    int64 `json:"operator_session_ttl_ms,omitempty"`
}

// Config is the top-level .mu/config.json document.
type Config struct {
	ControlPlane ControlPlaneConfig `json:"control_plane"`
}

// Defaults returns the built-in configuration applied before any
// user-supplied .mu/config.json is merged in, grounded on the pipeline and
// journal package defaults documented in DESIGN.md.
func Defaults() *Config {
	enabled := true
	return &Config{
		ControlPlane: ControlPlaneConfig{
			Adapters: AdaptersConfig{
				Slack:    SlackAdapterConfig{Enabled: &enabled},
				Discord:  DiscordAdapterConfig{Enabled: &enabled},
				Telegram: TelegramAdapterConfig{Enabled: &enabled},
				Neovim:   SharedSecretAdapterConfig{Enabled: &enabled},
				VSCode:   SharedSecretAdapterConfig{Enabled: &enabled},
			},
			Operator: OperatorConfig{
				Enabled:            &enabled,
				RunTriggersEnabled: &enabled,
				WakeTurnMode:       "on_mention",
			},
			ConfirmationTTLMs:     5 * 60 * 1000,
			IdempotencyTTLMs:      24 * 60 * 60 * 1000,
			CLITimeoutMs:          30 * 1000,
			OutboxMaxAttempts:     3,
			ReloadDrainTimeoutMs:  10 * 1000,
			AttachmentGCBatchSize: 200,
			OperatorSessionTTLMs:  30 * 60 * 1000,
		},
	}
}
