package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/conductord/internal/logging"
)

func fullLedger(t *testing.T, steps ...Step) *Ledger {
	t.Helper()
	l := NewLedger()
	for _, step := range steps {
		require.NoError(t, l.Record(step.ID, "output of "+step.ID))
	}
	return l
}

func TestSummarizerUsesProviderReport(t *testing.T) {
	steps := []Step{testStep("s1", "greet")}
	o := &scriptedOracle{script: []oracleReply{
		answer(`{
			"original_request": "greet",
			"steps_completed": [{"step_description": "greet", "outcome": "hello"}],
			"key_results": ["hello"],
			"total_summary": "the greeting was printed",
			"final_outcome": "success"
		}`),
	}}
	s := NewSummarizer(o, logging.NewNop())

	report := s.Summarize(context.Background(), "greet", steps, fullLedger(t, steps...))
	require.NotNil(t, report)
	assert.Equal(t, OutcomeSuccess, report.FinalOutcome)
	assert.Equal(t, "the greeting was printed", report.TotalSummary)
	assert.Empty(t, report.Warnings)
}

func TestSummarizerNormalizesUnknownOutcome(t *testing.T) {
	steps := []Step{testStep("s1", "greet"), testStep("s2", "greet again")}
	ledger := NewLedger()
	require.NoError(t, ledger.Record("s1", "hello"))

	o := &scriptedOracle{script: []oracleReply{
		answer(`{"total_summary": "went okay", "final_outcome": "mostly fine"}`),
	}}
	s := NewSummarizer(o, logging.NewNop())

	report := s.Summarize(context.Background(), "greet twice", steps, ledger)

	// An out-of-vocabulary outcome is recomputed from ledger coverage,
	// and the unaccepted step gets a warning.
	assert.Equal(t, OutcomePartial, report.FinalOutcome)
	assert.Equal(t, "greet twice", report.OriginalRequest)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "s2")
}

func TestSummarizerKeepsProviderWarnings(t *testing.T) {
	steps := []Step{testStep("s1", "greet")}
	o := &scriptedOracle{script: []oracleReply{
		answer(`{"final_outcome": "failure", "warnings": ["step s1 could not run"]}`),
	}}
	s := NewSummarizer(o, logging.NewNop())

	report := s.Summarize(context.Background(), "greet", steps, NewLedger())

	// The provider already flagged s1, no duplicate warning is added.
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "s1")
}

func TestSummarizerWarningsDistinguishSimilarStepIDs(t *testing.T) {
	steps := []Step{testStep("step_1", "first"), testStep("step_10", "tenth")}
	o := &scriptedOracle{script: []oracleReply{
		answer(`{"final_outcome": "failure", "warnings": ["step step_10 failed"]}`),
	}}
	s := NewSummarizer(o, logging.NewNop())

	report := s.Summarize(context.Background(), "do both", steps, NewLedger())

	// The provider's step_10 warning must not swallow the one owed to
	// step_1; each unaccepted step keeps its own entry.
	require.Len(t, report.Warnings, 2)
	assert.Equal(t, "step step_10 failed", report.Warnings[0])
	assert.Contains(t, report.Warnings[1], "step step_1 (")
}

func TestContainsWarningFor(t *testing.T) {
	tests := []struct {
		name     string
		warnings []string
		stepID   string
		want     bool
	}{
		{name: "exact mention", warnings: []string{"step step_1 failed"}, stepID: "step_1", want: true},
		{name: "id at end of warning", warnings: []string{"no result for step_2"}, stepID: "step_2", want: true},
		{name: "longer id does not match shorter", warnings: []string{"step step_10 failed"}, stepID: "step_1", want: false},
		{name: "shorter id does not match longer", warnings: []string{"step step_1 failed"}, stepID: "step_10", want: false},
		{name: "id embedded in a word", warnings: []string{"prestep_1ing"}, stepID: "step_1", want: false},
		{name: "match after a near miss", warnings: []string{"step_10 then step_1 failed"}, stepID: "step_1", want: true},
		{name: "no warnings", warnings: nil, stepID: "step_1", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, containsWarningFor(tt.warnings, tt.stepID))
		})
	}
}

func TestSummarizerFallback(t *testing.T) {
	steps := []Step{testStep("s1", "greet"), testStep("s2", "greet again")}
	ledger := NewLedger()
	require.NoError(t, ledger.Record("s1", "hello"))

	tests := []struct {
		name   string
		script []oracleReply
	}{
		{name: "oracle unavailable", script: []oracleReply{{err: errors.New("rate limited")}}},
		{name: "malformed answer", script: []oracleReply{answer("it went great")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSummarizer(&scriptedOracle{script: tt.script}, logging.NewNop())

			report := s.Summarize(context.Background(), "greet twice", steps, ledger)
			require.NotNil(t, report)
			assert.Equal(t, "greet twice", report.OriginalRequest)
			assert.Equal(t, OutcomePartial, report.FinalOutcome)
			assert.Equal(t, []string{"hello"}, report.KeyResults)
			assert.Contains(t, report.TotalSummary, "1 of 2 steps completed")

			require.Len(t, report.StepsCompleted, 2)
			assert.Equal(t, "hello", report.StepsCompleted[0].Outcome)
			assert.Equal(t, "no accepted result", report.StepsCompleted[1].Outcome)
			require.Len(t, report.Warnings, 1)
			assert.Contains(t, report.Warnings[0], "s2")
		})
	}
}

func TestComputeOutcome(t *testing.T) {
	steps := []Step{testStep("s1", "a"), testStep("s2", "b")}

	assert.Equal(t, OutcomeFailure, computeOutcome(nil, NewLedger()))
	assert.Equal(t, OutcomeFailure, computeOutcome(steps, NewLedger()))

	partial := NewLedger()
	require.NoError(t, partial.Record("s1", "done"))
	assert.Equal(t, OutcomePartial, computeOutcome(steps, partial))

	assert.Equal(t, OutcomeSuccess, computeOutcome(steps, fullLedger(t, steps...)))
}
