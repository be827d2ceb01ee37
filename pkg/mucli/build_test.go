package mucli

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuild_OperatorModelSetExactArgv(t *testing.T) {
	res := Build("operator.model.set", []string{"openai-codex", "gpt-5.3-codex", "high"})
	assert.Equal(t, BuildOK, res.Kind)
	assert.Equal(t, []string{"mu", "control", "operator", "set", "openai-codex", "gpt-5.3-codex", "high", "--json"}, res.Plan.Argv)
	assert.True(t, res.Plan.Mutating)
}

func TestBuild_UnknownCommandSkips(t *testing.T) {
	res := Build("not.a.kind", nil)
	assert.Equal(t, BuildSkip, res.Kind)
}

func TestBuild_DisallowedFlagRejected(t *testing.T) {
	res := Build("run.list", []string{"--raw-stream"})
	assert.Equal(t, BuildReject, res.Kind)
}

func TestBuild_InvalidIssueIDRejected(t *testing.T) {
	res := Build("issue.close", []string{"not-an-issue"})
	assert.Equal(t, BuildReject, res.Kind)
}

func TestBuild_ValidIssueIDAccepted(t *testing.T) {
	res := Build("issue.close", []string{"mu-123-abc"})
	assert.Equal(t, BuildOK, res.Kind)
	assert.Equal(t, []string{"mu", "control", "issue", "close", "mu-123-abc", "--json"}, res.Plan.Argv)
}

func TestBuild_ArityMismatchRejected(t *testing.T) {
	res := Build("issue.close", []string{"mu-123", "extra"})
	assert.Equal(t, BuildReject, res.Kind)
}

func TestValidateForumTopicAndGenericTarget(t *testing.T) {
	assert.True(t, ValidateForumTopic("release-notes"))
	assert.False(t, ValidateForumTopic(""))
	assert.True(t, ValidateGenericTarget("abc-123"))
	assert.False(t, ValidateGenericTarget("-leading-dash"))
}
