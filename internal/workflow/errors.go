package workflow

import (
	"errors"
	"fmt"
)

// ErrExecutorDisconnected indicates the execution channel closed while
// the engine was awaiting an outcome. The run finishes on the
// partially-completed path with whatever ledger entries exist.
var ErrExecutorDisconnected = errors.New("executor disconnected")

// PlanningError indicates the planner could not produce a usable plan.
// It is fatal to the run: no steps execute.
type PlanningError struct {
	Goal string
	Err  error
}

func (e *PlanningError) Error() string {
	return fmt.Sprintf("planning failed: %v", e.Err)
}

func (e *PlanningError) Unwrap() error {
	return e.Err
}

// GenerationError indicates instruction generation (or repair) failed
// after the single local recovery. It counts against the step's retry
// budget rather than crashing the run.
type GenerationError struct {
	StepID string
	Err    error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("instruction generation failed for step %s: %v", e.StepID, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}
