package workflow

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// StepStatus represents the execution state of a single step.
type StepStatus string

const (
	StepPending           StepStatus = "pending"
	StepGenerating        StepStatus = "generating"
	StepAwaitingExecution StepStatus = "awaiting_execution"
	StepValidating        StepStatus = "validating"
	StepSucceeded         StepStatus = "succeeded"
	StepRetrying          StepStatus = "retrying"
	StepAborted           StepStatus = "aborted"
)

// RunStatus represents the state of a whole workflow run.
type RunStatus string

const (
	RunPlanning           RunStatus = "planning"
	RunRunning            RunStatus = "running"
	RunCompleted          RunStatus = "completed"
	RunPartiallyCompleted RunStatus = "partially_completed"
)

// Step is one atomic, independently verifiable unit of the plan. Steps are
// produced once by the planner and never mutated; their order is
// significant because later steps may reference earlier step outputs.
type Step struct {
	// ID is unique within a plan and is the stable ordering key.
	ID string `json:"id"`

	// Description is a short human-readable statement of the step.
	Description string `json:"description"`

	// ExpectedInput is the command or input the executor should run.
	ExpectedInput string `json:"expected_input"`

	// ExpectedOutput describes what the executor should observe.
	ExpectedOutput string `json:"expected_output"`

	// ValidationRule is the plain-language, human-auditable criterion the
	// validator judges the outcome against.
	ValidationRule string `json:"validation_rule"`
}

// Instruction is the executable artifact generated for a step or repair
// attempt. A new Instruction supersedes (never mutates) its predecessor
// for the same step.
type Instruction struct {
	StepID         string `json:"step_id"`
	Code           string `json:"code"`
	Language       string `json:"language"`
	Reasoning      string `json:"reasoning"`
	ExpectedOutput string `json:"expected_output"`
}

// ExecutionOutcome is the executor's report of running an Instruction.
// The engine treats it as ground truth for what happened on the executor
// side; correctness is judged separately by the validator.
type ExecutionOutcome struct {
	RawOutput string `json:"output"`
	Succeeded bool   `json:"succeeded"`
}

// Verdict is the validator's accept/reject judgment with rationale.
type Verdict struct {
	IsValid bool   `json:"is_valid"`
	Reason  string `json:"reason"`
}

// FailureClass categorizes a repair diagnosis.
type FailureClass string

const (
	FailureSyntax      FailureClass = "syntax"
	FailureRuntime     FailureClass = "runtime"
	FailureEnvironment FailureClass = "environment"
	FailureLogic       FailureClass = "logic"
)

// FailureContext carries everything the instructor needs to repair a
// failed attempt: the validator's reason and the executor's report.
type FailureContext struct {
	Reason    string `json:"error_message"`
	Output    string `json:"user_output"`
	Succeeded bool   `json:"success"`
}

// ExecutionRequest is what the engine delivers to the external executor.
type ExecutionRequest struct {
	StepID       string `json:"step_id"`
	Code         string `json:"code"`
	Language     string `json:"language"`
	Instructions string `json:"instructions"`
}

// ExecutionChannel is the live connection to the external executor.
//
// Deliver hands an instruction to the executor; Await blocks until the
// executor reports an outcome or the channel dies. The engine never has
// more than one Await outstanding per run: the protocol is strict
// request/response alternation, no pipelining.
type ExecutionChannel interface {
	Deliver(ctx context.Context, req ExecutionRequest) error
	Await(ctx context.Context) (ExecutionOutcome, error)
}

// Outcome classifies a finished run in the final report.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePartial Outcome = "partial"
	OutcomeFailure Outcome = "failure"
)

// StepResult pairs a step with its reported outcome in the final report.
type StepResult struct {
	StepDescription string `json:"step_description"`
	Outcome         string `json:"outcome"`
}

// Report is the final summary of a run. Every run produces exactly one,
// whatever happened along the way.
type Report struct {
	OriginalRequest string       `json:"original_request"`
	StepsCompleted  []StepResult `json:"steps_completed"`
	KeyResults      []string     `json:"key_results"`
	TotalSummary    string       `json:"total_summary"`
	FinalOutcome    Outcome      `json:"final_outcome"`
	Warnings        []string     `json:"warnings"`
}

// Ledger is the append-only record of accepted step outputs. An entry is
// written exactly once, when its step succeeds, and is never rewritten;
// later generation and summarization read it without coordination.
type Ledger struct {
	entries map[string]string
	order   []string
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{entries: make(map[string]string)}
}

// Record writes the accepted output for a step. Writing the same step
// twice is a programming error and is rejected.
func (l *Ledger) Record(stepID, output string) error {
	if _, exists := l.entries[stepID]; exists {
		return fmt.Errorf("ledger entry for step %q already written", stepID)
	}
	l.entries[stepID] = output
	l.order = append(l.order, stepID)
	return nil
}

// Get returns the accepted output for a step.
func (l *Ledger) Get(stepID string) (string, bool) {
	out, ok := l.entries[stepID]
	return out, ok
}

// Has reports whether a step has an accepted output.
func (l *Ledger) Has(stepID string) bool {
	_, ok := l.entries[stepID]
	return ok
}

// Len returns the number of accepted steps.
func (l *Ledger) Len() int {
	return len(l.order)
}

// IDs returns the recorded step IDs in acceptance order.
func (l *Ledger) IDs() []string {
	ids := make([]string, len(l.order))
	copy(ids, l.order)
	return ids
}

// Snapshot returns a read-only copy of the ledger contents, for embedding
// in generation prompts.
func (l *Ledger) Snapshot() map[string]string {
	snap := make(map[string]string, len(l.entries))
	for k, v := range l.entries {
		snap[k] = v
	}
	return snap
}

// Run is the aggregate root for one end-to-end workflow execution. It is
// owned by exactly one engine invocation for its lifetime and passed
// explicitly, never shared across concurrent runs.
type Run struct {
	ID     string
	Goal   string
	Plan   []Step
	Ledger *Ledger
	Cursor int
	Status RunStatus

	stepStatus map[string]StepStatus
}

// NewRun creates a run for a goal with a fresh identifier.
func NewRun(goal string) *Run {
	id := uuid.New()
	return &Run{
		ID:         fmt.Sprintf("run-%x", id[:4]),
		Goal:       goal,
		Ledger:     NewLedger(),
		Status:     RunPlanning,
		stepStatus: make(map[string]StepStatus),
	}
}

// StepStatus returns the recorded status for a step, defaulting to
// pending.
func (r *Run) StepStatus(stepID string) StepStatus {
	if s, ok := r.stepStatus[stepID]; ok {
		return s
	}
	return StepPending
}

func (r *Run) setStepStatus(stepID string, s StepStatus) {
	r.stepStatus[stepID] = s
}

// CurrentStep returns the step at the cursor.
func (r *Run) CurrentStep() Step {
	return r.Plan[r.Cursor]
}

// Done reports whether every planned step has been accepted.
func (r *Run) Done() bool {
	return r.Cursor >= len(r.Plan)
}
