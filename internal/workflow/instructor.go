package workflow

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/conductord/internal/logging"
	"github.com/fyrsmithlabs/conductord/internal/oracle"
)

// defaultLanguage is assumed when the provider omits one; generation
// prompts steer toward shell code.
const defaultLanguage = "bash"

// Instructor generates executable instructions for steps, and repairs
// for failed attempts, via the reasoning provider.
type Instructor struct {
	oracle oracle.Oracle
	logger *logging.Logger
}

// NewInstructor creates an instructor.
func NewInstructor(o oracle.Oracle, logger *logging.Logger) *Instructor {
	return &Instructor{oracle: o, logger: logger.Named("instructor")}
}

// Generate produces a fresh instruction for a step, with the accepted
// outputs of earlier steps as read-only context. Malformed answers are
// recovered once; a second consecutive failure, or an answer without
// code, yields a *GenerationError so malformed data never reaches the
// executor.
func (i *Instructor) Generate(ctx context.Context, step Step, priorResults map[string]string) (*Instruction, error) {
	prompt := generatePrompt(step, priorResults)

	var instr Instruction
	if err := askDecode(ctx, i.oracle, "instructor", prompt, &instr); err != nil {
		return nil, &GenerationError{StepID: step.ID, Err: err}
	}

	if instr.Code == "" {
		return nil, &GenerationError{StepID: step.ID, Err: errors.New("answer contains no code")}
	}
	// The provider must echo the step id; fill it in when omitted and
	// reject a contradicting one.
	if instr.StepID == "" {
		instr.StepID = step.ID
	}
	if instr.StepID != step.ID {
		return nil, &GenerationError{StepID: step.ID, Err: errors.New("answer echoes a different step id")}
	}
	if instr.Language == "" {
		instr.Language = defaultLanguage
	}

	i.logger.Debug(ctx, "instruction generated", zap.String("language", instr.Language))
	return &instr, nil
}

type repairAnswer struct {
	StepID         string `json:"step_id"`
	ErrorType      string `json:"error_type"`
	Reasoning      string `json:"reasoning"`
	FixedCode      string `json:"fixed_code"`
	Language       string `json:"language"`
	ExpectedOutput string `json:"expected_output"`
}

// Repair produces a corrected instruction for a failed attempt. The
// diagnosis is normalized to one of the known failure classes, and the
// prior instruction's language is preserved when the provider omits one.
func (i *Instructor) Repair(ctx context.Context, step Step, last *Instruction, failure *FailureContext) (*Instruction, FailureClass, error) {
	prompt := repairPrompt(step, last, failure)

	var answer repairAnswer
	if err := askDecode(ctx, i.oracle, "instructor", prompt, &answer); err != nil {
		return nil, FailureLogic, &GenerationError{StepID: step.ID, Err: err}
	}

	if answer.FixedCode == "" {
		return nil, FailureLogic, &GenerationError{StepID: step.ID, Err: errors.New("answer contains no fixed code")}
	}

	class := normalizeFailureClass(answer.ErrorType)

	instr := &Instruction{
		StepID:         step.ID,
		Code:           answer.FixedCode,
		Language:       answer.Language,
		Reasoning:      answer.Reasoning,
		ExpectedOutput: answer.ExpectedOutput,
	}
	if instr.Language == "" && last != nil {
		instr.Language = last.Language
	}
	if instr.Language == "" {
		instr.Language = defaultLanguage
	}
	if instr.ExpectedOutput == "" && last != nil {
		instr.ExpectedOutput = last.ExpectedOutput
	}

	i.logger.Debug(ctx, "repair generated",
		zap.String("error_type", string(class)),
		zap.String("language", instr.Language),
	)
	return instr, class, nil
}

// normalizeFailureClass maps a free-text diagnosis onto the known
// classes, defaulting to logic.
func normalizeFailureClass(s string) FailureClass {
	switch FailureClass(s) {
	case FailureSyntax, FailureRuntime, FailureEnvironment, FailureLogic:
		return FailureClass(s)
	default:
		return FailureLogic
	}
}
