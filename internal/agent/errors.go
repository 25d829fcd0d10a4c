// Package agent implements the turn-processing orchestration loop and the
// dispatch guard that sits between the model's tool-call intents and the
// registered executors.
package agent

import "fmt"

// ErrorKind classifies turn-aborting failures surfaced to the caller.
// Tool-level failures (unknown tool, bad arguments, timeouts, executor
// errors) never reach here; the guard folds them into tool results so the
// model can adapt.
type ErrorKind string

const (
	// KindModelResponseInvalid means the model produced neither terminal
	// text nor tool calls. The turn is aborted rather than silently retried.
	KindModelResponseInvalid ErrorKind = "model_response_invalid"
	// KindTurnBudgetExceeded means a turn hit the dispatch-round cap without
	// the model producing terminal text.
	KindTurnBudgetExceeded ErrorKind = "turn_budget_exceeded"
)

// Error is a structured turn failure. The conversation state remains valid;
// the next turn may proceed normally.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }
