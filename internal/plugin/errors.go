package plugin

import (
	"errors"
	"fmt"
)

// ErrPipelineAbort's sentinel form, for errors.Is checks against an
// abort raised anywhere inside a pipeline run. Callers that need the
// reason should use errors.As against *PipelineAbort instead.
var ErrPipelineAbort = errors.New("plugin: pipeline abort")

// PipelineAbort is the cooperative, user-initiated signal that terminates
// benchmark iteration with partial results preserved. It must never be
// swallowed by RunAttempt or RunPipeline; it propagates to the benchmark
// driver.
type PipelineAbort struct {
	Reason string
}

func (e *PipelineAbort) Error() string {
	if e.Reason == "" {
		return ErrPipelineAbort.Error()
	}
	return fmt.Sprintf("%s: %s", ErrPipelineAbort.Error(), e.Reason)
}

func (e *PipelineAbort) Unwrap() error { return ErrPipelineAbort }

// NewPipelineAbort builds a PipelineAbort with the given reason.
func NewPipelineAbort(reason string) *PipelineAbort {
	return &PipelineAbort{Reason: reason}
}

// UsageLimitError is surfaced by an agent transport when a quota or
// billing limit is hit. Callers deflect it to a user-prompt collaborator.
type UsageLimitError struct {
	Message    string
	RetryAfter string
}

func (e *UsageLimitError) Error() string {
	return fmt.Sprintf("plugin: usage limit: %s", e.Message)
}

// ErrBackgroundPreempted is the stable token a foreground plugin's
// failure result must contain when it was cut short by a background
// success, so downstream consumers can distinguish preemption from a
// genuine failure.
const ErrBackgroundPreempted = "background plugin found a perfect match"
