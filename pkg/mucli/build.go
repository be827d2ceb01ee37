package mucli

import "github.com/femtomc/mu-controlplane/pkg/mucore"

// BuildKind is the outcome tag of a Build call (spec §4.4).
type BuildKind string

// Build outcomes.
const (
	BuildOK     BuildKind = "ok"
	BuildReject BuildKind = "reject"
	BuildSkip   BuildKind = "skip"
)

// Plan is the deterministic argv a command kind compiles to.
type Plan struct {
	CommandKind string
	Argv        []string
	Mutating    bool
}

// BuildResult is the tagged union Build returns.
type BuildResult struct {
	Kind    BuildKind
	Plan    Plan
	Reason  mucore.Reason
	Details string
}

// Build compiles a command kind and its positional args into a deterministic
// argv, per the allowlist's Template. An unknown command kind yields
// BuildSkip (the pipeline treats this as denied: unknown_command). A known
// kind with invalid args, wrong arity, or a disallowed free flag yields
// BuildReject with cli_validation_failed.
func Build(commandKind string, args []string) BuildResult {
	tmpl, ok := Allowlist[commandKind]
	if !ok {
		return BuildResult{Kind: BuildSkip}
	}

	for _, a := range args {
		if IsDisallowedFlag(a) {
			return BuildResult{Kind: BuildReject, Reason: mucore.ReasonCLIValidationFailed, Details: "disallowed flag: " + a}
		}
	}

	if len(args) != len(tmpl.ArgValidators) {
		return BuildResult{Kind: BuildReject, Reason: mucore.ReasonCLIValidationFailed, Details: "argument count mismatch"}
	}

	for i, arg := range args {
		if arg == "" {
			return BuildResult{Kind: BuildReject, Reason: mucore.ReasonCLIValidationFailed, Details: "empty argument"}
		}
		if v := tmpl.ArgValidators[i]; v != nil && !v(arg) {
			return BuildResult{Kind: BuildReject, Reason: mucore.ReasonCLIValidationFailed, Details: "invalid argument: " + arg}
		}
	}

	argv := make([]string, 0, len(tmpl.Prefix)+len(args)+len(tmpl.Suffix))
	argv = append(argv, tmpl.Prefix...)
	argv = append(argv, args...)
	argv = append(argv, tmpl.Suffix...)

	return BuildResult{Kind: BuildOK, Plan: Plan{CommandKind: commandKind, Argv: argv, Mutating: tmpl.Mutating}}
}
