package agent

import "fmt"

// LLMInvocationError marks a failed chat-completion call (auth, rate limit,
// network, timeout). It is fatal for the current query only and is never
// retried inside the loop.
type LLMInvocationError struct {
	Model string
	Err   error
}

func (e *LLMInvocationError) Error() string {
	return fmt.Sprintf("model invocation failed (%s): %v", e.Model, e.Err)
}

// Unwrap exposes the cause for errors.Is / errors.As.
func (e *LLMInvocationError) Unwrap() error { return e.Err }

// IterationLimitError is the structural stop condition: the loop exhausted
// its round budget without the model producing a final answer. Reported
// distinctly so callers can render "could not finish" rather than a fault.
type IterationLimitError struct {
	Limit int
}

func (e *IterationLimitError) Error() string {
	return fmt.Sprintf("iteration limit (%d) reached without completing the task", e.Limit)
}
