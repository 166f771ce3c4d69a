package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Status Machine Tests
// =============================================================================

func TestDeploymentStatus_Terminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusSubmitted.Terminal())
	assert.True(t, StatusConfirmed.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusSkipped.Terminal())
}

func TestDeploymentStatus_Transitions(t *testing.T) {
	tests := []struct {
		from, to DeploymentStatus
		ok       bool
	}{
		{StatusPending, StatusSubmitted, true},
		{StatusPending, StatusSkipped, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusConfirmed, false},
		{StatusSubmitted, StatusConfirmed, true},
		{StatusSubmitted, StatusFailed, true},
		{StatusSubmitted, StatusSkipped, false},
		{StatusConfirmed, StatusFailed, false},
		{StatusFailed, StatusSubmitted, false},
		{StatusSkipped, StatusSubmitted, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.ok, tt.from.CanTransition(tt.to),
			"%s -> %s", tt.from, tt.to)
	}
}

// =============================================================================
// Failure Policy Tests
// =============================================================================

func TestFailurePolicy_Validate(t *testing.T) {
	assert.NoError(t, PolicyAbort.Validate())
	assert.NoError(t, PolicyContinue.Validate())
	assert.ErrorIs(t, FailurePolicy("retry-forever").Validate(), ErrUnknownPolicy)
	assert.ErrorIs(t, FailurePolicy("").Validate(), ErrUnknownPolicy)
}

// =============================================================================
// Report Tests
// =============================================================================

func TestReport_AllConfirmed(t *testing.T) {
	rep := Report{Results: []DeploymentResult{
		{Status: StatusConfirmed},
		{Status: StatusConfirmed},
	}}
	assert.True(t, rep.AllConfirmed())

	rep.Results = append(rep.Results, DeploymentResult{Status: StatusSkipped})
	assert.False(t, rep.AllConfirmed())
}

func TestReport_AlreadyDeployedCountsAsSuccess(t *testing.T) {
	addr, err := ParseAddress("0x42")
	require.NoError(t, err)

	rep := Report{Results: []DeploymentResult{
		{Status: StatusConfirmed},
		{Status: StatusSkipped, Address: &addr, Error: "already deployed"},
	}}
	assert.True(t, rep.AllConfirmed())
}

func TestReport_EmptyIsConfirmed(t *testing.T) {
	rep := Report{}
	assert.True(t, rep.AllConfirmed())
}
