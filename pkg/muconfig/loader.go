package muconfig

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
)

// ExpandEnv expands ${VAR} / $VAR references in raw JSON bytes before
// parsing, the same shell-style substitution the teacher config package
// applies to YAML. Missing variables expand to empty string.
func ExpandEnv(data []byte) []byte {
	return []byte(os.ExpandEnv(string(data)))
}

// Load reads <repoRoot>/.mu/config.json, expands environment references,
// and merges it over Defaults() (user values win). A missing file is not
// an error: Load returns Defaults() unchanged.
func Load(repoRoot string) (*Config, error) {
	path := filepath.Join(repoRoot, ".mu", "config.json")
	log := slog.With("config_path", path)

	cfg := Defaults()

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info("no .mu/config.json found, using defaults")
			return cfg, nil
		}
		return nil, &LoadError{Path: path, Err: err}
	}

	var user Config
	if err := json.Unmarshal(ExpandEnv(raw), &user); err != nil {
		return nil, &LoadError{Path: path, Err: fmt.Errorf("%w: %v", ErrInvalidJSON, err)}
	}

	if err := mergo.Merge(cfg, user, mergo.WithOverride); err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	log.Info("loaded control plane configuration")
	return cfg, nil
}

func validate(cfg *Config) error {
	cp := cfg.ControlPlane
	if cp.ConfirmationTTLMs < 0 {
		return fmt.Errorf("%w: confirmation_ttl_ms must be >= 0", ErrValidationFailed)
	}
	if cp.IdempotencyTTLMs < 0 {
		return fmt.Errorf("%w: idempotency_ttl_ms must be >= 0", ErrValidationFailed)
	}
	if cp.OutboxMaxAttempts < 1 {
		return fmt.Errorf("%w: outbox_max_attempts must be >= 1", ErrValidationFailed)
	}
	if cp.AttachmentGCBatchSize < 1 {
		return fmt.Errorf("%w: attachment_gc_batch_size must be >= 1", ErrValidationFailed)
	}
	return nil
}
