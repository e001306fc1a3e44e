package workflow

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/conductord/internal/logging"
	"github.com/fyrsmithlabs/conductord/internal/oracle"
)

// Planner turns a user goal into an ordered list of steps via the
// reasoning provider. It validates structure only; semantic quality of
// the plan is the provider's responsibility.
type Planner struct {
	oracle oracle.Oracle
	logger *logging.Logger
}

// NewPlanner creates a planner.
func NewPlanner(o oracle.Oracle, logger *logging.Logger) *Planner {
	return &Planner{oracle: o, logger: logger.Named("planner")}
}

type planAnswer struct {
	Request string `json:"request"`
	Steps   []Step `json:"steps"`
}

// Plan issues one oracle request for the goal and parses the ordered step
// list out of the answer. A malformed answer is recovered once by
// re-asking; a second consecutive parse failure, an empty list, or a
// structurally broken step yields a *PlanningError.
func (p *Planner) Plan(ctx context.Context, goal string) ([]Step, error) {
	prompt := planPrompt(goal)

	var answer planAnswer
	if err := askDecode(ctx, p.oracle, "planner", prompt, &answer); err != nil {
		return nil, &PlanningError{Goal: goal, Err: err}
	}

	if len(answer.Steps) == 0 {
		return nil, &PlanningError{Goal: goal, Err: errors.New("plan contains no steps")}
	}

	seen := make(map[string]struct{}, len(answer.Steps))
	for i, step := range answer.Steps {
		if step.ID == "" {
			return nil, &PlanningError{Goal: goal, Err: fmt.Errorf("step %d has no id", i)}
		}
		if step.Description == "" {
			return nil, &PlanningError{Goal: goal, Err: fmt.Errorf("step %q has no description", step.ID)}
		}
		if _, dup := seen[step.ID]; dup {
			return nil, &PlanningError{Goal: goal, Err: fmt.Errorf("duplicate step id %q", step.ID)}
		}
		seen[step.ID] = struct{}{}
	}

	p.logger.Info(ctx, "plan ready", zap.Int("steps", len(answer.Steps)))
	return answer.Steps, nil
}

// askDecode performs one oracle request with the single local recovery
// every component gets: a malformed answer triggers exactly one re-ask,
// and a second consecutive parse failure is surfaced to the caller.
func askDecode(ctx context.Context, o oracle.Oracle, component, prompt string, v any) error {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		oracleRequestsTotal.WithLabelValues(component).Inc()

		raw, err := o.Ask(ctx, prompt)
		if err != nil {
			return fmt.Errorf("oracle request: %w", err)
		}

		if err := oracle.Decode(raw, v); err != nil {
			var perr *oracle.ParseError
			if errors.As(err, &perr) {
				oracleParseFailuresTotal.WithLabelValues(component).Inc()
				lastErr = err
				continue
			}
			return err
		}
		return nil
	}
	return lastErr
}
