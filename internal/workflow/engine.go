package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/conductord/internal/logging"
	"github.com/fyrsmithlabs/conductord/internal/oracle"
)

// executorInstructions is the standing request attached to every
// delivered instruction.
const executorInstructions = "Please execute the code and send back the output and success status."

// Config holds engine policy.
type Config struct {
	// MaxRetries is the repair budget per step. The engine performs at
	// most this many repair attempts after the initial one, then aborts
	// the step.
	MaxRetries int

	// ExecutorTimeout bounds one wait for an executor outcome. Zero
	// disables the timeout. Expiry is treated as a failed validation and
	// consumes one retry.
	ExecutorTimeout time.Duration

	// Prechecks enables local validation predicates in the validator.
	Prechecks bool
}

// DefaultConfig returns the default engine policy.
func DefaultConfig() Config {
	return Config{MaxRetries: 2, Prechecks: true}
}

// Engine drives a workflow run end to end: plan, then per step generate,
// deliver, await, validate, with a bounded repair loop on failure, and a
// final summary whatever happened.
//
// An Engine is stateless across runs and safe for concurrent use; all
// per-run state lives in the Run created inside Execute. Within one run
// everything is strictly sequential: there is never more than one oracle
// call or executor round-trip outstanding.
type Engine struct {
	planner    *Planner
	instructor *Instructor
	validator  *Validator
	summarizer *Summarizer
	cfg        Config
	logger     *logging.Logger
}

// NewEngine creates an engine with all four oracle-backed components.
func NewEngine(o oracle.Oracle, cfg Config, logger *logging.Logger) (*Engine, error) {
	if o == nil {
		return nil, fmt.Errorf("oracle is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for workflow engine")
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max retries cannot be negative")
	}

	return &Engine{
		planner:    NewPlanner(o, logger),
		instructor: NewInstructor(o, logger),
		validator:  NewValidator(o, cfg.Prechecks, logger),
		summarizer: NewSummarizer(o, logger),
		cfg:        cfg,
		logger:     logger.Named("engine"),
	}, nil
}

// Execute runs one workflow for a goal against an execution channel.
//
// The returned report is never nil: every run terminates in exactly one
// SUMMARY_READY and RUN_COMPLETE pair, whether it completed, partially
// completed, failed to plan, or lost its executor. The returned error
// reports why a run fell short (planning failure, disconnect); retry
// exhaustion is a designed terminal state, not an error.
func (e *Engine) Execute(ctx context.Context, goal string, ch ExecutionChannel, sink Sink) (*Report, error) {
	run := NewRun(goal)
	ctx = logging.WithRunID(ctx, run.ID)
	start := time.Now()

	e.emit(ctx, sink, run, EventRunStart, "", RunStartData{Goal: goal})
	e.logger.Info(ctx, "run started", zap.String("goal", goal))

	var runErr error

	plan, err := e.planner.Plan(ctx, goal)
	if err != nil {
		// Fatal to the run: no steps execute, but the summary still does.
		run.Status = RunPartiallyCompleted
		runErr = err
		e.logger.Error(ctx, "planning failed", zap.Error(err))
	} else {
		run.Plan = plan
		summaries := make([]StepSummary, len(plan))
		for i, step := range plan {
			summaries[i] = StepSummary{ID: step.ID, Description: step.Description}
		}
		e.emit(ctx, sink, run, EventPlanReady, "", PlanReadyData{Steps: summaries})

		run.Status = RunRunning
		for !run.Done() {
			proceed, err := e.executeStep(ctx, run, ch, sink)
			if err != nil {
				run.Status = RunPartiallyCompleted
				runErr = err
				e.logger.Error(ctx, "run interrupted", zap.Error(err))
				break
			}
			if !proceed {
				// Retry budget exhausted: stop advancing, summarize what
				// exists. Steps after the abort point are never attempted.
				run.Status = RunPartiallyCompleted
				break
			}
		}
		if run.Done() {
			run.Status = RunCompleted
		}
	}

	// Summarization is terminal and must survive a dead connection or
	// canceled session context.
	sumCtx := context.WithoutCancel(ctx)
	report := e.summarizer.Summarize(sumCtx, goal, run.Plan, run.Ledger)
	e.emit(sumCtx, sink, run, EventSummaryReady, "", SummaryReadyData{Report: report})
	e.emit(sumCtx, sink, run, EventRunComplete, "", RunCompleteData{Status: run.Status})

	runsTotal.WithLabelValues(string(run.Status)).Inc()
	runDuration.Observe(time.Since(start).Seconds())
	e.logger.Info(ctx, "run complete",
		zap.String("status", string(run.Status)),
		zap.Int("steps_accepted", run.Ledger.Len()),
		zap.Int("steps_planned", len(run.Plan)),
	)

	return report, runErr
}

// executeStep drives the step at the cursor through the
// generate/execute/validate loop with the bounded repair budget.
//
// It returns (true, nil) when the step succeeded and the cursor advanced,
// (false, nil) when the step aborted after exhausting its budget, and a
// non-nil error only when the executor went away.
func (e *Engine) executeStep(ctx context.Context, run *Run, ch ExecutionChannel, sink Sink) (bool, error) {
	step := run.CurrentStep()
	ctx = logging.WithStepID(ctx, step.ID)
	start := time.Now()

	e.emit(ctx, sink, run, EventStepBegin, step.ID, StepBeginData{Description: step.Description})
	e.logger.Info(ctx, "step started", zap.String("description", step.Description))

	// attempt 0 is the initial instruction; attempts 1..MaxRetries are
	// repairs. The count resets with every new step.
	attempt := 0
	var lastInstr *Instruction
	var failure *FailureContext

	for {
		run.setStepStatus(step.ID, StepGenerating)

		var instr *Instruction
		var genErr error
		if attempt == 0 {
			instr, genErr = e.instructor.Generate(ctx, step, run.Ledger.Snapshot())
			if genErr == nil {
				e.emit(ctx, sink, run, EventInstructionReady, step.ID, InstructionReadyData{
					Language:  instr.Language,
					Code:      instr.Code,
					Reasoning: instr.Reasoning,
				})
			}
		} else {
			e.emit(ctx, sink, run, EventRepairBegin, step.ID, RepairBeginData{
				Attempt:     attempt,
				MaxAttempts: e.cfg.MaxRetries,
			})
			repairAttemptsTotal.Inc()
			instr, _, genErr = e.instructor.Repair(ctx, step, lastInstr, failure)
			if genErr == nil {
				e.emit(ctx, sink, run, EventRepairReady, step.ID, InstructionReadyData{
					Attempt:   attempt,
					Language:  instr.Language,
					Code:      instr.Code,
					Reasoning: instr.Reasoning,
				})
			}
		}

		if genErr != nil {
			// Generation failures consume the attempt like a failed
			// validation; malformed instructions never reach the executor.
			e.emitFailure(ctx, sink, run, step, attempt, genErr.Error(), "")
			failure = &FailureContext{Reason: genErr.Error()}
			if lastInstr == nil {
				lastInstr = &Instruction{StepID: step.ID, Code: step.ExpectedInput, Language: defaultLanguage}
			}
			attempt++
			if attempt > e.cfg.MaxRetries {
				return e.abortStep(ctx, run, step, sink, start), nil
			}
			run.setStepStatus(step.ID, StepRetrying)
			continue
		}

		outcome, timedOut, err := e.roundTrip(ctx, run, step, instr, ch, sink)
		if err != nil {
			return false, err
		}

		run.setStepStatus(step.ID, StepValidating)
		var verdict Verdict
		if timedOut {
			verdict = Verdict{
				IsValid: false,
				Reason:  fmt.Sprintf("executor did not report an outcome within %s", e.cfg.ExecutorTimeout),
			}
		} else {
			verdict = e.validator.Validate(ctx, step, outcome)
		}

		if verdict.IsValid {
			if attempt == 0 {
				e.emit(ctx, sink, run, EventStepSucceeded, step.ID, StepResultData{
					Reason: verdict.Reason,
					Output: outcome.RawOutput,
				})
			} else {
				e.emit(ctx, sink, run, EventRepairSucceeded, step.ID, StepResultData{
					Attempt: attempt,
					Reason:  verdict.Reason,
					Output:  outcome.RawOutput,
				})
			}

			// The only ledger write, and the only cursor advance.
			if err := run.Ledger.Record(step.ID, outcome.RawOutput); err != nil {
				return false, err
			}
			run.setStepStatus(step.ID, StepSucceeded)
			run.Cursor++

			stepsTotal.WithLabelValues("succeeded").Inc()
			stepDuration.Observe(time.Since(start).Seconds())
			e.logger.Info(ctx, "step succeeded", zap.Int("attempts", attempt+1))
			return true, nil
		}

		e.emitFailure(ctx, sink, run, step, attempt, verdict.Reason, outcome.RawOutput)
		failure = &FailureContext{
			Reason:    verdict.Reason,
			Output:    outcome.RawOutput,
			Succeeded: outcome.Succeeded,
		}
		lastInstr = instr
		attempt++
		if attempt > e.cfg.MaxRetries {
			return e.abortStep(ctx, run, step, sink, start), nil
		}
		run.setStepStatus(step.ID, StepRetrying)
	}
}

// roundTrip delivers one instruction and waits for the executor's
// outcome. The boolean result reports an await timeout, which the caller
// treats as a failed validation.
func (e *Engine) roundTrip(ctx context.Context, run *Run, step Step, instr *Instruction, ch ExecutionChannel, sink Sink) (ExecutionOutcome, bool, error) {
	e.emit(ctx, sink, run, EventExecutionRequest, step.ID, ExecutionRequestData{
		Code:         instr.Code,
		Language:     instr.Language,
		Instructions: executorInstructions,
	})
	run.setStepStatus(step.ID, StepAwaitingExecution)

	req := ExecutionRequest{
		StepID:       step.ID,
		Code:         instr.Code,
		Language:     instr.Language,
		Instructions: executorInstructions,
	}
	if err := ch.Deliver(ctx, req); err != nil {
		return ExecutionOutcome{}, false, fmt.Errorf("%w: %v", ErrExecutorDisconnected, err)
	}

	awaitCtx := ctx
	if e.cfg.ExecutorTimeout > 0 {
		var cancel context.CancelFunc
		awaitCtx, cancel = context.WithTimeout(ctx, e.cfg.ExecutorTimeout)
		defer cancel()
	}

	outcome, err := ch.Await(awaitCtx)
	if err != nil {
		if errors.Is(awaitCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			e.logger.Warn(ctx, "executor outcome timed out",
				zap.Duration("timeout", e.cfg.ExecutorTimeout))
			return ExecutionOutcome{}, true, nil
		}
		return ExecutionOutcome{}, false, fmt.Errorf("%w: %v", ErrExecutorDisconnected, err)
	}
	return outcome, false, nil
}

// abortStep records retry exhaustion. Always returns false: the run stops
// advancing and proceeds to summarization.
func (e *Engine) abortStep(ctx context.Context, run *Run, step Step, sink Sink, start time.Time) bool {
	run.setStepStatus(step.ID, StepAborted)
	e.emit(ctx, sink, run, EventStepAborted, step.ID, StepAbortedData{Attempts: e.cfg.MaxRetries})

	stepsTotal.WithLabelValues("aborted").Inc()
	stepDuration.Observe(time.Since(start).Seconds())
	e.logger.Warn(ctx, "step aborted, repair budget exhausted",
		zap.Int("max_attempts", e.cfg.MaxRetries))
	return false
}

// emitFailure routes a failed attempt to STEP_FAILED or REPAIR_FAILED
// depending on whether it was the initial instruction or a repair.
func (e *Engine) emitFailure(ctx context.Context, sink Sink, run *Run, step Step, attempt int, reason, output string) {
	if attempt == 0 {
		e.emit(ctx, sink, run, EventStepFailed, step.ID, StepResultData{Reason: reason, Output: output})
	} else {
		e.emit(ctx, sink, run, EventRepairFailed, step.ID, StepResultData{Attempt: attempt, Reason: reason})
	}
	e.logger.Warn(ctx, "attempt failed",
		zap.Int("attempt", attempt),
		zap.String("reason", reason),
	)
}

func (e *Engine) emit(ctx context.Context, sink Sink, run *Run, typ EventType, stepID string, data any) {
	if sink == nil {
		return
	}
	sink.Emit(ctx, Event{
		Type:      typ,
		RunID:     run.ID,
		StepID:    stepID,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
}
