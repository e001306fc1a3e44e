package workflow

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/conductord/internal/logging"
	"github.com/fyrsmithlabs/conductord/internal/oracle"
	"github.com/fyrsmithlabs/conductord/internal/precheck"
)

// Validator judges execution outcomes against each step's validation
// rule via the reasoning provider.
//
// Validate never fails: when the provider's own answer is malformed or
// unavailable it degrades to an invalid verdict with an explanatory
// reason, so the engine always has a decision and the retry loop stays
// deterministic.
type Validator struct {
	oracle    oracle.Oracle
	prechecks bool
	logger    *logging.Logger
}

// NewValidator creates a validator. When prechecks is true, rules with
// mechanically checkable shapes are rejected locally without an oracle
// call.
func NewValidator(o oracle.Oracle, prechecks bool, logger *logging.Logger) *Validator {
	return &Validator{oracle: o, prechecks: prechecks, logger: logger.Named("validator")}
}

// Validate returns the verdict for an outcome.
func (v *Validator) Validate(ctx context.Context, step Step, outcome ExecutionOutcome) Verdict {
	if v.prechecks {
		if res := precheck.CheckRule(step.ValidationRule, outcome.RawOutput); res.Decided && !res.Valid {
			v.logger.Debug(ctx, "precheck rejected outcome", zap.String("reason", res.Reason))
			return Verdict{IsValid: false, Reason: res.Reason}
		}
	}

	oracleRequestsTotal.WithLabelValues("validator").Inc()

	raw, err := v.oracle.Ask(ctx, validatePrompt(step.ValidationRule, outcome.RawOutput))
	if err != nil {
		v.logger.Warn(ctx, "validator oracle unavailable", zap.Error(err))
		return Verdict{IsValid: false, Reason: fmt.Sprintf("validation unavailable: %v", err)}
	}

	var verdict Verdict
	if err := oracle.Decode(raw, &verdict); err != nil {
		oracleParseFailuresTotal.WithLabelValues("validator").Inc()
		v.logger.Warn(ctx, "validator answer malformed", zap.Error(err))
		return Verdict{IsValid: false, Reason: fmt.Sprintf("parsing error: %v", err)}
	}

	if verdict.Reason == "" {
		verdict.Reason = "no reason provided"
	}
	return verdict
}
