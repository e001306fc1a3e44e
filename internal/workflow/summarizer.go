package workflow

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/conductord/internal/logging"
	"github.com/fyrsmithlabs/conductord/internal/oracle"
)

// Summarizer produces the final report for a run.
//
// Summarization is the terminal operation and must not fail: when the
// reasoning provider's answer is malformed or unavailable, a minimal
// structurally valid report is built directly from the plan and ledger.
type Summarizer struct {
	oracle oracle.Oracle
	logger *logging.Logger
}

// NewSummarizer creates a summarizer.
func NewSummarizer(o oracle.Oracle, logger *logging.Logger) *Summarizer {
	return &Summarizer{oracle: o, logger: logger.Named("summarizer")}
}

// Summarize builds the report for a finished run. Whatever the provider
// answers, the returned report classifies the outcome as one of
// success|partial|failure and carries a warning for every step missing
// from the ledger.
func (s *Summarizer) Summarize(ctx context.Context, goal string, plan []Step, ledger *Ledger) *Report {
	oracleRequestsTotal.WithLabelValues("summarizer").Inc()

	raw, err := s.oracle.Ask(ctx, summaryPrompt(goal, plan, ledger))
	if err != nil {
		s.logger.Warn(ctx, "summarizer oracle unavailable, using fallback report", zap.Error(err))
		return fallbackReport(goal, plan, ledger)
	}

	var report Report
	if err := oracle.Decode(raw, &report); err != nil {
		oracleParseFailuresTotal.WithLabelValues("summarizer").Inc()
		s.logger.Warn(ctx, "summarizer answer malformed, using fallback report", zap.Error(err))
		return fallbackReport(goal, plan, ledger)
	}

	normalizeReport(&report, goal, plan, ledger)
	return &report
}

// normalizeReport enforces the report guarantees on a provider-written
// summary: a known final outcome and a warning per unaccepted step.
func normalizeReport(r *Report, goal string, plan []Step, ledger *Ledger) {
	if r.OriginalRequest == "" {
		r.OriginalRequest = goal
	}

	switch r.FinalOutcome {
	case OutcomeSuccess, OutcomePartial, OutcomeFailure:
	default:
		r.FinalOutcome = computeOutcome(plan, ledger)
	}

	for _, step := range plan {
		if ledger.Has(step.ID) {
			continue
		}
		warning := fmt.Sprintf("step %s (%s) has no accepted result", step.ID, step.Description)
		if !containsWarningFor(r.Warnings, step.ID) {
			r.Warnings = append(r.Warnings, warning)
		}
	}
	if r.Warnings == nil {
		r.Warnings = []string{}
	}
}

// fallbackReport builds the minimal structurally valid report from the
// ledger and plan alone.
func fallbackReport(goal string, plan []Step, ledger *Ledger) *Report {
	report := &Report{
		OriginalRequest: goal,
		StepsCompleted:  make([]StepResult, 0, len(plan)),
		KeyResults:      make([]string, 0, ledger.Len()),
		FinalOutcome:    computeOutcome(plan, ledger),
		Warnings:        []string{},
	}

	for _, step := range plan {
		outcome := "no accepted result"
		if out, ok := ledger.Get(step.ID); ok {
			outcome = out
		} else {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("step %s (%s) has no accepted result", step.ID, step.Description))
		}
		report.StepsCompleted = append(report.StepsCompleted, StepResult{
			StepDescription: step.Description,
			Outcome:         outcome,
		})
	}

	for _, id := range ledger.IDs() {
		out, _ := ledger.Get(id)
		report.KeyResults = append(report.KeyResults, out)
	}

	report.TotalSummary = fmt.Sprintf(
		"%d of %d steps completed; final outcome: %s",
		ledger.Len(), len(plan), report.FinalOutcome,
	)
	return report
}

// computeOutcome classifies a run from its ledger coverage.
func computeOutcome(plan []Step, ledger *Ledger) Outcome {
	switch {
	case len(plan) == 0 || ledger.Len() == 0:
		return OutcomeFailure
	case ledger.Len() == len(plan):
		return OutcomeSuccess
	default:
		return OutcomePartial
	}
}

// containsWarningFor reports whether a warning already names the step as
// a whole token. A bare substring match is not enough: a warning about
// step_10 must not stand in for the distinct step_1.
func containsWarningFor(warnings []string, stepID string) bool {
	for _, w := range warnings {
		for i := 0; i+len(stepID) <= len(w); {
			j := strings.Index(w[i:], stepID)
			if j < 0 {
				break
			}
			start := i + j
			end := start + len(stepID)
			if (start == 0 || !isIdentChar(w[start-1])) && (end == len(w) || !isIdentChar(w[end])) {
				return true
			}
			i = start + 1
		}
	}
	return false
}

func isIdentChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-':
		return true
	}
	return false
}
