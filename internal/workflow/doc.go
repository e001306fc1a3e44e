// Package workflow implements the run state machine that turns a
// free-form goal into a validated sequence of executed steps.
//
// # Overview
//
// A run moves through a fixed lifecycle:
//
//	Planning → Running → Completed | PartiallyCompleted
//
// The planner asks the reasoning oracle to decompose the goal into an
// ordered plan. The engine then drives one step at a time: the
// instructor generates executable code, the execution channel delivers
// it to the connected executor and waits for the reported outcome, and
// the validator judges that outcome against the step's validation rule.
// A failed step enters a bounded repair loop; when the budget is
// exhausted the step aborts and the run stops advancing. Every run,
// however it ends, terminates with a summarizer report.
//
// # Key Components
//
//   - Engine: the sequential driver. At most one instruction is ever in
//     flight per run.
//   - Planner, Instructor, Validator, Summarizer: oracle-backed
//     components, each owning its own prompt and answer schema.
//   - Ledger: append-only record of accepted step outputs. An entry
//     exists for a step exactly when the cursor has advanced past it.
//   - ExecutionChannel: the transport seam to the external executor,
//     implemented by the server's session.
//   - Sink: receiver for lifecycle events emitted at every transition.
//
// # Failure Semantics
//
// Validator and summarizer failures degrade rather than propagate: an
// unreachable oracle yields a rejecting verdict or a fallback report.
// Planner and instructor failures are typed (PlanningError,
// GenerationError); a generation failure consumes a repair attempt the
// same way a failed validation does. Executor disconnection surfaces as
// ErrExecutorDisconnected and ends the run as partially completed, with
// the summary still produced.
package workflow
