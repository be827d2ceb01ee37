// Package mucli implements the allowlisted local CLI surface (spec §4.4):
// a table mapping command keys to deterministic argv templates, argument
// validators, and a subprocess runner with timeout/exit-code taxonomy.
package mucli

import "regexp"

// Regexes from spec §4.4.
var (
	issueIDPattern      = regexp.MustCompile(`^mu-[a-z0-9][a-z0-9-]*$`)
	forumTopicPattern   = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:/-]{0,199}$`)
	genericTargetPattern = regexp.MustCompile(`^[A-Za-z0-9._:@/][A-Za-z0-9._:@/-]{0,199}$`)
)

// ValidateIssueID reports whether id is a well-formed issue identifier.
func ValidateIssueID(id string) bool { return issueIDPattern.MatchString(id) }

// ValidateForumTopic reports whether topic is a well-formed forum topic.
func ValidateForumTopic(topic string) bool { return forumTopicPattern.MatchString(topic) }

// ValidateGenericTarget reports whether target is a well-formed generic
// target ID.
func ValidateGenericTarget(target string) bool { return genericTargetPattern.MatchString(target) }

// disallowedFlags are free flags that are never permitted regardless of
// command kind (spec §4.4: "Any free flag like --raw-stream triggers
// rejection").
var disallowedFlags = map[string]bool{
	"--raw-stream": true,
}

// IsDisallowedFlag reports whether a CLI argument is a blocked free flag.
func IsDisallowedFlag(arg string) bool {
	return disallowedFlags[arg]
}

// Template describes how to build argv for a command kind: fixed program
// segments interleaved with positional argument slots, plus a validator
// per slot and whether invoking it mutates state.
type Template struct {
	CommandKind string
	Mutating    bool
	// Prefix is the fixed argv head, e.g. ["mu", "control", "run", "start"].
	Prefix []string
	// ArgValidators validates each positional CommandArgs[i] in order. A
	// nil entry means "no constraint beyond non-empty".
	ArgValidators []func(string) bool
	// Suffix is appended after validated positional args, e.g. ["--json"].
	Suffix []string
}

// Allowlist maps command kind -> Template (spec §4.4's command key table).
var Allowlist = map[string]Template{
	"run.start":    {CommandKind: "run.start", Mutating: true, Prefix: []string{"mu", "control", "run", "start"}, ArgValidators: []func(string) bool{ValidateIssueID}, Suffix: []string{"--json"}},
	"run.resume":   {CommandKind: "run.resume", Mutating: true, Prefix: []string{"mu", "control", "run", "resume"}, ArgValidators: []func(string) bool{ValidateGenericTarget}, Suffix: []string{"--json"}},
	"run.list":     {CommandKind: "run.list", Mutating: false, Prefix: []string{"mu", "control", "run", "list"}, Suffix: []string{"--json"}},
	"run.status":   {CommandKind: "run.status", Mutating: false, Prefix: []string{"mu", "control", "run", "status"}, ArgValidators: []func(string) bool{ValidateGenericTarget}, Suffix: []string{"--json"}},
	"run.interrupt": {CommandKind: "run.interrupt", Mutating: true, Prefix: []string{"mu", "control", "run", "interrupt"}, ArgValidators: []func(string) bool{ValidateGenericTarget}, Suffix: []string{"--json"}},

	"operator.model.set":    {CommandKind: "operator.model.set", Mutating: true, Prefix: []string{"mu", "control", "operator", "set"}, ArgValidators: []func(string) bool{nil, nil, nil}, Suffix: []string{"--json"}},
	"operator.thinking.set": {CommandKind: "operator.thinking.set", Mutating: true, Prefix: []string{"mu", "control", "operator", "thinking-set"}, ArgValidators: []func(string) bool{nil}, Suffix: []string{"--json"}},
	"operator.model.list":   {CommandKind: "operator.model.list", Mutating: false, Prefix: []string{"mu", "control", "operator", "list"}, Suffix: []string{"--json"}},
	"operator.model.get":    {CommandKind: "operator.model.get", Mutating: false, Prefix: []string{"mu", "control", "operator", "get"}, Suffix: []string{"--json"}},
	"operator.thinking.list": {CommandKind: "operator.thinking.list", Mutating: false, Prefix: []string{"mu", "control", "operator", "thinking", "list"}, Suffix: []string{"--json"}},

	"status": {CommandKind: "status", Mutating: false, Prefix: []string{"mu", "control", "status"}, Suffix: []string{"--json"}},

	"issue.close":  {CommandKind: "issue.close", Mutating: true, Prefix: []string{"mu", "control", "issue", "close"}, ArgValidators: []func(string) bool{ValidateIssueID}, Suffix: []string{"--json"}},
	"issue.update": {CommandKind: "issue.update", Mutating: true, Prefix: []string{"mu", "control", "issue", "update"}, ArgValidators: []func(string) bool{ValidateIssueID}, Suffix: []string{"--json"}},
	"issue.claim":  {CommandKind: "issue.claim", Mutating: true, Prefix: []string{"mu", "control", "issue", "claim"}, ArgValidators: []func(string) bool{ValidateIssueID}, Suffix: []string{"--json"}},
	"issue.get":    {CommandKind: "issue.get", Mutating: false, Prefix: []string{"mu", "control", "issue", "get"}, ArgValidators: []func(string) bool{ValidateIssueID}, Suffix: []string{"--json"}},

	"forum.read": {CommandKind: "forum.read", Mutating: false, Prefix: []string{"mu", "control", "forum", "read"}, ArgValidators: []func(string) bool{ValidateForumTopic}, Suffix: []string{"--json"}},
	"forum.post": {CommandKind: "forum.post", Mutating: true, Prefix: []string{"mu", "control", "forum", "post"}, ArgValidators: []func(string) bool{ValidateForumTopic, nil}, Suffix: []string{"--json"}},

	"session.turn":         {CommandKind: "session.turn", Mutating: false, Prefix: []string{"mu", "control", "session", "turn"}, ArgValidators: []func(string) bool{ValidateGenericTarget, nil}, Suffix: []string{"--json"}},
	"session_flash.create": {CommandKind: "session_flash.create", Mutating: true, Prefix: []string{"mu", "control", "session_flash", "create"}, ArgValidators: []func(string) bool{ValidateGenericTarget, nil, nil}, Suffix: []string{"--json"}},

	"cron.create":  {CommandKind: "cron.create", Mutating: true, Prefix: []string{"mu", "control", "cron", "create"}, ArgValidators: []func(string) bool{ValidateGenericTarget, nil}, Suffix: []string{"--json"}},
	"cron.update":  {CommandKind: "cron.update", Mutating: true, Prefix: []string{"mu", "control", "cron", "update"}, ArgValidators: []func(string) bool{ValidateGenericTarget, nil}, Suffix: []string{"--json"}},
	"cron.delete":  {CommandKind: "cron.delete", Mutating: true, Prefix: []string{"mu", "control", "cron", "delete"}, ArgValidators: []func(string) bool{ValidateGenericTarget}, Suffix: []string{"--json"}},
	"cron.trigger": {CommandKind: "cron.trigger", Mutating: true, Prefix: []string{"mu", "control", "cron", "trigger"}, ArgValidators: []func(string) bool{ValidateGenericTarget}, Suffix: []string{"--json"}},

	"heartbeat.create":  {CommandKind: "heartbeat.create", Mutating: true, Prefix: []string{"mu", "control", "heartbeat", "create"}, ArgValidators: []func(string) bool{ValidateGenericTarget, nil}, Suffix: []string{"--json"}},
	"heartbeat.update":  {CommandKind: "heartbeat.update", Mutating: true, Prefix: []string{"mu", "control", "heartbeat", "update"}, ArgValidators: []func(string) bool{ValidateGenericTarget, nil}, Suffix: []string{"--json"}},
	"heartbeat.delete":  {CommandKind: "heartbeat.delete", Mutating: true, Prefix: []string{"mu", "control", "heartbeat", "delete"}, ArgValidators: []func(string) bool{ValidateGenericTarget}, Suffix: []string{"--json"}},
	"heartbeat.trigger": {CommandKind: "heartbeat.trigger", Mutating: true, Prefix: []string{"mu", "control", "heartbeat", "trigger"}, ArgValidators: []func(string) bool{ValidateGenericTarget}, Suffix: []string{"--json"}},

	"audit.get":   {CommandKind: "audit.get", Mutating: false, Prefix: []string{"mu", "control", "audit", "get"}, ArgValidators: []func(string) bool{ValidateGenericTarget}, Suffix: []string{"--json"}},
	"dlq.inspect": {CommandKind: "dlq.inspect", Mutating: false, Prefix: []string{"mu", "control", "dlq", "inspect"}, Suffix: []string{"--json"}},
	"dlq.replay":  {CommandKind: "dlq.replay", Mutating: true, Prefix: []string{"mu", "control", "dlq", "replay"}, ArgValidators: []func(string) bool{ValidateGenericTarget}, Suffix: []string{"--json"}},
}
