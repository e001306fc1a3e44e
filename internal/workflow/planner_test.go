package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/conductord/internal/logging"
)

func TestPlannerPlan(t *testing.T) {
	o := &scriptedOracle{script: []oracleReply{
		answer(`{"request": "set up a web server", "steps": [
			{"id": "s1", "description": "install the server package", "expected_input": "apt-get install nginx", "expected_output": "package installed", "validation_rule": "output reports a successful install"},
			{"id": "s2", "description": "start the server", "expected_input": "systemctl start nginx", "expected_output": "", "validation_rule": "output shows the service running"}
		]}`),
	}}
	p := NewPlanner(o, logging.NewNop())

	steps, err := p.Plan(context.Background(), "set up a web server")
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, "s1", steps[0].ID)
	assert.Equal(t, "install the server package", steps[0].Description)
	assert.Equal(t, "systemctl start nginx", steps[1].ExpectedInput)

	require.Len(t, o.prompts, 1)
	assert.Contains(t, o.prompts[0], "set up a web server")
}

func TestPlannerAcceptsFencedAnswer(t *testing.T) {
	o := &scriptedOracle{script: []oracleReply{
		answer("```json\n{\"steps\": [{\"id\": \"s1\", \"description\": \"do the thing\"}]}\n```"),
	}}
	p := NewPlanner(o, logging.NewNop())

	steps, err := p.Plan(context.Background(), "do the thing")
	require.NoError(t, err)
	require.Len(t, steps, 1)
}

func TestPlannerRecoversOneMalformedAnswer(t *testing.T) {
	o := &scriptedOracle{script: []oracleReply{
		answer("no JSON here"),
		answer(`{"steps": [{"id": "s1", "description": "retry worked"}]}`),
	}}
	p := NewPlanner(o, logging.NewNop())

	steps, err := p.Plan(context.Background(), "goal")
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Len(t, o.prompts, 2)
}

func TestPlannerErrors(t *testing.T) {
	tests := []struct {
		name   string
		script []oracleReply
	}{
		{
			name: "two malformed answers",
			script: []oracleReply{
				answer("prose"),
				answer("more prose"),
			},
		},
		{
			name:   "empty plan",
			script: []oracleReply{answer(`{"steps": []}`)},
		},
		{
			name:   "step without id",
			script: []oracleReply{answer(`{"steps": [{"description": "anonymous"}]}`)},
		},
		{
			name:   "step without description",
			script: []oracleReply{answer(`{"steps": [{"id": "s1"}]}`)},
		},
		{
			name: "duplicate step ids",
			script: []oracleReply{
				answer(`{"steps": [{"id": "s1", "description": "one"}, {"id": "s1", "description": "two"}]}`),
			},
		},
		{
			name:   "oracle unavailable",
			script: []oracleReply{{err: errors.New("rate limited")}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPlanner(&scriptedOracle{script: tt.script}, logging.NewNop())

			steps, err := p.Plan(context.Background(), "goal")
			assert.Nil(t, steps)

			var perr *PlanningError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, "goal", perr.Goal)
		})
	}
}
