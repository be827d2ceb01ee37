// Package mupolicy implements the pure scope/tier policy engine (spec §4
// item 3): a function from (command kind, scopes, tier) to allow/deny plus
// whether confirmation is required. It holds no state and does no I/O.
package mupolicy

import "github.com/femtomc/mu-controlplane/pkg/mucore"

// Scope names. cp.read covers read-only command kinds; cp.ops.admin covers
// every mutating kind.
const (
	ScopeRead  = "cp.read"
	ScopeAdmin = "cp.ops.admin"
)

// kindScope maps a command kind to the scope it requires and whether it
// mutates state. Unlisted kinds are denied with unknown_command.
var kindScope = map[string]struct {
	scope    string
	mutating bool
}{
	"run.start":              {ScopeAdmin, true},
	"run.resume":             {ScopeAdmin, true},
	"run.list":                {ScopeRead, false},
	"run.status":              {ScopeRead, false},
	"run.interrupt":           {ScopeAdmin, true},
	"operator.model.set":      {ScopeAdmin, true},
	"operator.thinking.set":   {ScopeAdmin, true},
	"operator.model.list":     {ScopeRead, false},
	"operator.model.get":      {ScopeRead, false},
	"operator.thinking.list":  {ScopeRead, false},
	"status":                  {ScopeRead, false},
	"issue.close":             {ScopeAdmin, true},
	"issue.update":            {ScopeAdmin, true},
	"issue.claim":             {ScopeAdmin, true},
	"issue.get":                {ScopeRead, false},
	"forum.read":              {ScopeRead, false},
	"forum.post":              {ScopeAdmin, true},
	"session.turn":            {ScopeRead, false},
	"session_flash.create":    {ScopeAdmin, true},
	"cron.create":             {ScopeAdmin, true},
	"cron.update":             {ScopeAdmin, true},
	"cron.delete":             {ScopeAdmin, true},
	"cron.trigger":            {ScopeAdmin, true},
	"heartbeat.create":        {ScopeAdmin, true},
	"heartbeat.update":        {ScopeAdmin, true},
	"heartbeat.delete":        {ScopeAdmin, true},
	"heartbeat.trigger":       {ScopeAdmin, true},
	"audit.get":               {ScopeRead, false},
	"dlq.inspect":             {ScopeRead, false},
	"dlq.replay":              {ScopeAdmin, true},
}

// Decision is the policy engine's verdict for a single command kind.
type Decision struct {
	Allow                bool
	RequiresConfirmation bool
	ScopeRequired        string
	DenyReason           mucore.Reason
}

// Evaluate decides whether a principal at tier with scopes may invoke
// commandKind, per spec §4.1 step 6: confirmation is required for mutating
// command kinds at tier_b or above; tier_c may never mutate.
func Evaluate(commandKind string, scopes []string, tier mucore.AssuranceTier) Decision {
	spec, ok := kindScope[commandKind]
	if !ok {
		return Decision{Allow: false, DenyReason: mucore.ReasonUnknownCommand}
	}

	d := Decision{ScopeRequired: spec.scope}

	if !hasScope(scopes, spec.scope) {
		d.DenyReason = mucore.ReasonMissingScope
		return d
	}

	if spec.mutating && tier == mucore.TierC {
		d.DenyReason = mucore.ReasonMissingScope
		return d
	}

	d.Allow = true
	if spec.mutating && tier != mucore.TierC {
		d.RequiresConfirmation = true
	}
	return d
}

func hasScope(scopes []string, want string) bool {
	for _, s := range scopes {
		if s == want {
			return true
		}
	}
	return false
}

// ScopeRequired returns the scope a command kind needs, for CommandRecord
// population ahead of a full Evaluate call (spec §4.1 step 6 first clause).
func ScopeRequired(commandKind string) (string, bool) {
	spec, ok := kindScope[commandKind]
	if !ok {
		return "", false
	}
	return spec.scope, true
}

// IsMutating reports whether a command kind is a mutating CLI invocation.
func IsMutating(commandKind string) bool {
	spec, ok := kindScope[commandKind]
	return ok && spec.mutating
}
