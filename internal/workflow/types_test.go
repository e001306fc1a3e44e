package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger(t *testing.T) {
	l := NewLedger()
	assert.Zero(t, l.Len())
	assert.False(t, l.Has("s1"))

	require.NoError(t, l.Record("s1", "first"))
	require.NoError(t, l.Record("s2", "second"))

	out, ok := l.Get("s1")
	require.True(t, ok)
	assert.Equal(t, "first", out)
	assert.Equal(t, 2, l.Len())
	assert.Equal(t, []string{"s1", "s2"}, l.IDs())

	// Entries are written once.
	require.Error(t, l.Record("s1", "rewritten"))
	out, _ = l.Get("s1")
	assert.Equal(t, "first", out)
}

func TestLedgerSnapshotIsACopy(t *testing.T) {
	l := NewLedger()
	require.NoError(t, l.Record("s1", "first"))

	snap := l.Snapshot()
	snap["s1"] = "tampered"
	snap["s9"] = "injected"

	out, _ := l.Get("s1")
	assert.Equal(t, "first", out)
	assert.False(t, l.Has("s9"))
}

func TestNewRun(t *testing.T) {
	r := NewRun("deploy the service")
	assert.Regexp(t, `^run-[0-9a-f]{8}$`, r.ID)
	assert.Equal(t, "deploy the service", r.Goal)
	assert.Equal(t, RunPlanning, r.Status)
	assert.NotNil(t, r.Ledger)

	other := NewRun("deploy the service")
	assert.NotEqual(t, r.ID, other.ID)
}

func TestRunStepStatus(t *testing.T) {
	r := NewRun("goal")
	assert.Equal(t, StepPending, r.StepStatus("s1"))

	r.setStepStatus("s1", StepGenerating)
	assert.Equal(t, StepGenerating, r.StepStatus("s1"))
	assert.Equal(t, StepPending, r.StepStatus("s2"))
}

func TestRunCursor(t *testing.T) {
	r := NewRun("goal")
	r.Plan = []Step{testStep("s1", "a"), testStep("s2", "b")}

	assert.False(t, r.Done())
	assert.Equal(t, "s1", r.CurrentStep().ID)

	r.Cursor++
	assert.Equal(t, "s2", r.CurrentStep().ID)

	r.Cursor++
	assert.True(t, r.Done())
}

func TestMultiSinkFansOut(t *testing.T) {
	var first, second []EventType
	m := MultiSink{
		SinkFunc(func(_ context.Context, ev Event) { first = append(first, ev.Type) }),
		SinkFunc(func(_ context.Context, ev Event) { second = append(second, ev.Type) }),
	}

	m.Emit(context.Background(), Event{Type: EventRunStart})
	m.Emit(context.Background(), Event{Type: EventRunComplete})

	assert.Equal(t, []EventType{EventRunStart, EventRunComplete}, first)
	assert.Equal(t, first, second)
}
