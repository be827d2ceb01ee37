package mucli

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"

	"github.com/femtomc/mu-controlplane/pkg/mucore"
)

// MaxStderrBytes bounds the captured stderr per spec §4.4 ("stderr is
// truncated at a fixed bound").
const MaxStderrBytes = 64 * 1024

// ExecResult is a terminal CLI execution outcome.
type ExecResult struct {
	Result *mucore.CLIResult
	Reason mucore.Reason // set only on failure; empty on success
}

// Runner executes allowlisted CLI plans as subprocesses, grounded on the
// exec.CommandContext pattern used for external tool invocation elsewhere
// in the codebase.
type Runner struct {
	// LookPath is set to exec.LookPath by NewRunner. Run does not call it;
	// the binary is resolved by the command NewCmd builds.
	LookPath func(string) (string, error)
	// NewCmd builds the *exec.Cmd for a given argv; defaults to
	// exec.CommandContext. Tests substitute a fake binary here instead of
	// requiring a real "mu" CLI on PATH.
	NewCmd func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// NewRunner constructs a Runner with the production LookPath and command
// constructor.
func NewRunner() *Runner {
	return &Runner{LookPath: exec.LookPath, NewCmd: exec.CommandContext}
}

// Run executes plan.Argv[0] with the remaining argv as arguments, subject to
// timeout. It classifies every failure mode per spec §4.4: timeout →
// cli_timeout, non-zero exit → cli_nonzero, spawn failure → cli_spawn_failed.
func (r *Runner) Run(ctx context.Context, plan Plan, timeout time.Duration) ExecResult {
	if len(plan.Argv) == 0 {
		return ExecResult{Reason: mucore.ReasonCLISpawnFailed}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	newCmd := r.NewCmd
	if newCmd == nil {
		newCmd = exec.CommandContext
	}
	cmd := newCmd(ctx, plan.Argv[0], plan.Argv[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &truncatingWriter{limit: MaxStderrBytes, buf: &stderr}

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return ExecResult{Reason: mucore.ReasonCLITimeout}
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return ExecResult{Result: &mucore.CLIResult{ExitCode: 0, Stdout: stdout.String(), Stderr: stderr.String()}}
	case errors.As(err, &exitErr):
		return ExecResult{
			Result: &mucore.CLIResult{ExitCode: exitErr.ExitCode(), Stdout: stdout.String(), Stderr: stderr.String()},
			Reason: mucore.ReasonCLINonzero,
		}
	default:
		return ExecResult{Reason: mucore.ReasonCLISpawnFailed}
	}
}

// truncatingWriter caps how many bytes get buffered, silently dropping the
// remainder once the limit is reached.
type truncatingWriter struct {
	limit int
	buf   *bytes.Buffer
}

func (w *truncatingWriter) Write(p []byte) (int, error) {
	remaining := w.limit - w.buf.Len()
	if remaining <= 0 {
		return len(p), nil
	}
	if len(p) > remaining {
		w.buf.Write(p[:remaining])
	} else {
		w.buf.Write(p)
	}
	return len(p), nil
}
