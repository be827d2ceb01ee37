package mupolicy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/femtomc/mu-controlplane/pkg/mucore"
)

func TestEvaluate_UnknownCommandDenied(t *testing.T) {
	d := Evaluate("not.a.kind", []string{ScopeAdmin}, mucore.TierA)
	assert.False(t, d.Allow)
	assert.Equal(t, mucore.ReasonUnknownCommand, d.DenyReason)
}

func TestEvaluate_MissingScopeDenied(t *testing.T) {
	d := Evaluate("operator.model.set", []string{ScopeRead}, mucore.TierA)
	assert.False(t, d.Allow)
	assert.Equal(t, mucore.ReasonMissingScope, d.DenyReason)
}

func TestEvaluate_MutatingRequiresConfirmationAtTierAAndB(t *testing.T) {
	for _, tier := range []mucore.AssuranceTier{mucore.TierA, mucore.TierB} {
		d := Evaluate("operator.model.set", []string{ScopeAdmin}, tier)
		assert.True(t, d.Allow)
		assert.True(t, d.RequiresConfirmation)
	}
}

func TestEvaluate_MutatingDeniedAtTierC(t *testing.T) {
	d := Evaluate("operator.model.set", []string{ScopeAdmin}, mucore.TierC)
	assert.False(t, d.Allow)
	assert.Equal(t, mucore.ReasonMissingScope, d.DenyReason)
}

func TestEvaluate_ReadOnlyNeverRequiresConfirmation(t *testing.T) {
	d := Evaluate("status", []string{ScopeRead}, mucore.TierA)
	assert.True(t, d.Allow)
	assert.False(t, d.RequiresConfirmation)
}

func TestScopeRequired(t *testing.T) {
	scope, ok := ScopeRequired("issue.close")
	assert.True(t, ok)
	assert.Equal(t, ScopeAdmin, scope)

	_, ok = ScopeRequired("nope")
	assert.False(t, ok)
}
