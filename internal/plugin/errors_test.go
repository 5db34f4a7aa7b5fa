package plugin

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPipelineAbort_ErrorsIsSentinel(t *testing.T) {
	abort := NewPipelineAbort("user requested stop")
	require.True(t, errors.Is(abort, ErrPipelineAbort))
	require.Contains(t, abort.Error(), "user requested stop")

	wrapped := fmt.Errorf("pipeline: %w", abort)
	require.True(t, errors.Is(wrapped, ErrPipelineAbort))

	var target *PipelineAbort
	require.True(t, errors.As(wrapped, &target))
	require.Equal(t, "user requested stop", target.Reason)
}

func TestPipelineAbort_EmptyReasonFallsBackToSentinelText(t *testing.T) {
	abort := NewPipelineAbort("")
	require.Equal(t, ErrPipelineAbort.Error(), abort.Error())
}

func TestUsageLimitError_Error(t *testing.T) {
	err := &UsageLimitError{Message: "quota exceeded", RetryAfter: "5m"}
	require.Contains(t, err.Error(), "quota exceeded")
}
