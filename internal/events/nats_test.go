package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/conductord/internal/logging"
	"github.com/fyrsmithlabs/conductord/internal/workflow"
)

// startTestNATSServer starts an embedded NATS server for testing.
func startTestNATSServer(t *testing.T) *natsserver.Server {
	t.Helper()
	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1, // Random port
		NoLog:  true,
		NoSigs: true,
	}

	server, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	go server.Start()

	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}

	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})

	return server
}

func TestNATSSinkPublishesEvents(t *testing.T) {
	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	sink := NewNATSSinkFromConn(nc, "conductor.runs", logging.NewNop())

	ch := make(chan *nats.Msg, 4)
	sub, err := nc.ChanSubscribe("conductor.runs.run-1a2b3c4d.>", ch)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	sink.Emit(context.Background(), workflow.Event{
		Type:      workflow.EventStepBegin,
		RunID:     "run-1a2b3c4d",
		StepID:    "s1",
		Timestamp: time.Now().UTC(),
		Data:      workflow.StepBeginData{Description: "greet"},
	})

	select {
	case msg := <-ch:
		assert.Equal(t, "conductor.runs.run-1a2b3c4d.step_begin", msg.Subject)

		var ev workflow.Event
		require.NoError(t, json.Unmarshal(msg.Data, &ev))
		assert.Equal(t, workflow.EventStepBegin, ev.Type)
		assert.Equal(t, "s1", ev.StepID)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for published event")
	}
}

func TestNATSSinkSurvivesClosedConnection(t *testing.T) {
	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)

	sink := NewNATSSinkFromConn(nc, "conductor.runs", logging.NewNop())
	nc.Close()

	// Publishing on a dead transport drops the event without panicking.
	sink.Emit(context.Background(), workflow.Event{
		Type:  workflow.EventRunStart,
		RunID: "run-dead",
	})
}

func TestNewNATSSinkOwnsConnection(t *testing.T) {
	server := startTestNATSServer(t)

	sink, err := NewNATSSink(server.ClientURL(), "conductor.runs", logging.NewNop())
	require.NoError(t, err)
	require.NotNil(t, sink)
	sink.Close()
}
