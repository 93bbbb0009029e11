package agent

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks a request rejected before any external call.
	ErrValidation = errors.New("agent: invalid request")

	// ErrProvider marks a failure of the embedder, the index or the LLM,
	// timeouts included.
	ErrProvider = errors.New("agent: provider failure")

	// ErrParse marks an unparseable confidence score. It is recovered inside
	// the evaluator and never returned from Run.
	ErrParse = errors.New("agent: unparseable confidence")
)

// StepError reports which phase of a run failed.
type StepError struct {
	// Phase is the step that failed, or the step that would have run next
	// when the run was cancelled between steps.
	Phase Phase
	// Err is the cause. It wraps ErrProvider for collaborator failures.
	Err error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("agent: %s: %v", e.Phase, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// providerError wraps a collaborator failure for phase p.
func providerError(p Phase, err error) error {
	return &StepError{Phase: p, Err: fmt.Errorf("%w: %w", ErrProvider, err)}
}

// validationError formats a request rejection.
func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
