package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/conductord/internal/logging"
	"github.com/fyrsmithlabs/conductord/internal/workflow"
)

// echoRunner is a minimal Runner for transport tests: it delivers one
// instruction, waits for the outcome and reports it back verbatim.
type echoRunner struct {
	mu    sync.Mutex
	goals []string
}

func (r *echoRunner) seenGoals() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.goals...)
}

func (r *echoRunner) Execute(ctx context.Context, goal string, ch workflow.ExecutionChannel, sink workflow.Sink) (*workflow.Report, error) {
	r.mu.Lock()
	r.goals = append(r.goals, goal)
	r.mu.Unlock()

	sink.Emit(ctx, workflow.Event{
		Type:      workflow.EventRunStart,
		RunID:     "run-test0001",
		Timestamp: time.Now().UTC(),
		Data:      workflow.RunStartData{Goal: goal},
	})

	sink.Emit(ctx, workflow.Event{
		Type:      workflow.EventExecutionRequest,
		RunID:     "run-test0001",
		StepID:    "s1",
		Timestamp: time.Now().UTC(),
		Data: workflow.ExecutionRequestData{
			Code:         "echo hello",
			Language:     "bash",
			Instructions: "run it",
		},
	})

	if err := ch.Deliver(ctx, workflow.ExecutionRequest{
		StepID:       "s1",
		Code:         "echo hello",
		Language:     "bash",
		Instructions: "run it",
	}); err != nil {
		return nil, err
	}

	outcome, err := ch.Await(ctx)
	if err != nil {
		return nil, workflow.ErrExecutorDisconnected
	}

	report := &workflow.Report{
		OriginalRequest: goal,
		KeyResults:      []string{outcome.RawOutput},
		FinalOutcome:    workflow.OutcomeSuccess,
	}
	sink.Emit(ctx, workflow.Event{
		Type:      workflow.EventSummaryReady,
		RunID:     "run-test0001",
		Timestamp: time.Now().UTC(),
		Data:      workflow.SummaryReadyData{Report: report},
	})
	sink.Emit(ctx, workflow.Event{
		Type:      workflow.EventRunComplete,
		RunID:     "run-test0001",
		Timestamp: time.Now().UTC(),
		Data:      workflow.RunCompleteData{Status: workflow.RunCompleted},
	})
	return report, nil
}

func setupTestServer(t *testing.T, extraSink workflow.Sink) (*Server, *echoRunner) {
	t.Helper()
	runner := &echoRunner{}
	server, err := NewServer(runner, extraSink, logging.NewNop(), nil)
	require.NoError(t, err)
	return server, runner
}

func dialTestServer(t *testing.T, server *Server) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(server.echo)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) workflow.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev workflow.Event
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestNewServer(t *testing.T) {
	t.Run("creates server with valid config", func(t *testing.T) {
		cfg := &Config{Host: "localhost", Port: 8084}
		server, err := NewServer(&echoRunner{}, nil, logging.NewNop(), cfg)
		require.NoError(t, err)
		assert.NotNil(t, server)
		assert.NotNil(t, server.echo)
		assert.Equal(t, cfg, server.config)
	})

	t.Run("uses defaults when config is nil", func(t *testing.T) {
		server, err := NewServer(&echoRunner{}, nil, logging.NewNop(), nil)
		require.NoError(t, err)
		assert.Equal(t, "localhost", server.config.Host)
		assert.Equal(t, 8084, server.config.Port)
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		_, err := NewServer(&echoRunner{}, nil, nil, nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "logger is required")
	})

	t.Run("returns error when runner is nil", func(t *testing.T) {
		_, err := NewServer(nil, nil, logging.NewNop(), nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "runner cannot be nil")
	})
}

func TestHandleHealth(t *testing.T) {
	server, _ := setupTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	err := json.Unmarshal(rec.Body.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
}

func TestHandleMetrics(t *testing.T) {
	server, _ := setupTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()

	server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestWebSocketRoundTrip(t *testing.T) {
	server, runner := setupTestServer(t, nil)
	conn := dialTestServer(t, server)

	require.NoError(t, conn.WriteJSON(map[string]string{"goal": "print a greeting"}))

	ev := readEvent(t, conn)
	assert.Equal(t, workflow.EventRunStart, ev.Type)

	ev = readEvent(t, conn)
	require.Equal(t, workflow.EventExecutionRequest, ev.Type)
	assert.Equal(t, "s1", ev.StepID)
	assert.Equal(t, "run-test0001", ev.RunID)

	data, err := json.Marshal(ev.Data)
	require.NoError(t, err)
	var reqData workflow.ExecutionRequestData
	require.NoError(t, json.Unmarshal(data, &reqData))
	assert.Equal(t, "echo hello", reqData.Code)
	assert.Equal(t, "bash", reqData.Language)

	require.NoError(t, conn.WriteJSON(map[string]any{"output": "hello", "succeeded": true}))

	ev = readEvent(t, conn)
	assert.Equal(t, workflow.EventSummaryReady, ev.Type)

	ev = readEvent(t, conn)
	assert.Equal(t, workflow.EventRunComplete, ev.Type)

	assert.Equal(t, []string{"print a greeting"}, runner.seenGoals())
}

func TestWebSocketPlainTextGoal(t *testing.T) {
	server, runner := setupTestServer(t, nil)
	conn := dialTestServer(t, server)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("  just do it  ")))

	ev := readEvent(t, conn)
	require.Equal(t, workflow.EventRunStart, ev.Type)

	ev = readEvent(t, conn)
	require.Equal(t, workflow.EventExecutionRequest, ev.Type)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("done")))

	readEvent(t, conn) // SUMMARY_READY
	readEvent(t, conn) // RUN_COMPLETE

	assert.Equal(t, []string{"just do it"}, runner.seenGoals())
}

func TestWebSocketSequentialGoals(t *testing.T) {
	server, runner := setupTestServer(t, nil)
	conn := dialTestServer(t, server)

	for i := 0; i < 2; i++ {
		require.NoError(t, conn.WriteJSON(map[string]string{"goal": "again"}))

		for {
			ev := readEvent(t, conn)
			if ev.Type == workflow.EventExecutionRequest {
				require.NoError(t, conn.WriteJSON(map[string]any{"output": "ok", "succeeded": true}))
			}
			if ev.Type == workflow.EventRunComplete {
				break
			}
		}
	}

	assert.Equal(t, []string{"again", "again"}, runner.seenGoals())
}

func TestWebSocketExtraSink(t *testing.T) {
	var seen []workflow.EventType
	extra := workflow.SinkFunc(func(_ context.Context, ev workflow.Event) {
		seen = append(seen, ev.Type)
	})

	server, _ := setupTestServer(t, extra)
	conn := dialTestServer(t, server)

	require.NoError(t, conn.WriteJSON(map[string]string{"goal": "observe me"}))

	for {
		ev := readEvent(t, conn)
		if ev.Type == workflow.EventExecutionRequest {
			require.NoError(t, conn.WriteJSON(map[string]any{"output": "ok", "succeeded": true}))
		}
		if ev.Type == workflow.EventRunComplete {
			break
		}
	}

	// The extra sink sees every event, including the execution request
	// the session itself does not re-send.
	assert.Contains(t, seen, workflow.EventRunStart)
	assert.Contains(t, seen, workflow.EventExecutionRequest)
	assert.Contains(t, seen, workflow.EventRunComplete)
}
