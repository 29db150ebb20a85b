package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStopReasonString(t *testing.T) {
	assert.Equal(t, "prd_complete", StopPRDComplete.String())
	assert.Equal(t, "max_iterations", StopMaxIterations.String())
	assert.Equal(t, "user_abort", StopUserAbort.String())
}

func TestStopReasonIsValid(t *testing.T) {
	tests := []struct {
		reason StopReason
		valid  bool
	}{
		{StopPRDComplete, true},
		{StopNoTasks, true},
		{StopMaxIterations, true},
		{StopUserAbort, true},
		{StopNoProgress, true},
		{StopError, true},
		{StopReason("completing"), false},
		{StopReason(""), false},
	}
	for _, tc := range tests {
		t.Run(string(tc.reason), func(t *testing.T) {
			assert.Equal(t, tc.valid, tc.reason.IsValid())
		})
	}
}

func TestConstants(t *testing.T) {
	assert.Equal(t, "<promise>COMPLETE</promise>", CompletionMarker)
	assert.Equal(t, "PRDLOOP_FINDINGS", FindingsBlockKey)
	assert.Equal(t, EngineState("completing"), EngineCompleting)
	assert.Equal(t, ReviewerState("waiting_for_consensus"), ReviewerWaitingForConsensus)
}
