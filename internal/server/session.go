package server

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/conductord/internal/logging"
	"github.com/fyrsmithlabs/conductord/internal/workflow"
)

// writeTimeout bounds one frame write; a peer that stops draining its
// socket is treated as gone.
const writeTimeout = 10 * time.Second

// errSessionClosed reports a dead connection to callers blocked on it.
var errSessionClosed = errors.New("session closed")

// session owns one executor WebSocket connection for its lifetime. It is
// both the workflow.ExecutionChannel the engine delivers instructions
// through and the workflow.Sink that streams lifecycle events back to
// the executor.
//
// All writes are serialized through writeMu. Reads happen on a single
// pump goroutine that feeds inbound; the engine's strict
// request/response alternation means any inbound frame is either the
// awaited outcome or, between runs, the next goal.
type session struct {
	conn   *websocket.Conn
	logger *logging.Logger

	writeMu sync.Mutex
	inbound chan []byte

	closeOnce sync.Once
	closed    chan struct{}

	// runID of the run in progress, captured from the first emitted
	// event. Read and written only on the engine goroutine.
	runID string
}

func newSession(conn *websocket.Conn, logger *logging.Logger) *session {
	return &session{
		conn:   conn,
		logger: logger.Named("session"),
		// One slot so an outcome arriving between Deliver and Await is
		// not lost.
		inbound: make(chan []byte, 1),
		closed:  make(chan struct{}),
	}
}

// readPump moves frames from the connection into inbound until the
// connection dies. Frames nobody is waiting for are dropped.
func (s *session) readPump() {
	defer s.close()
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug(context.Background(), "read loop ended", zap.Error(err))
			}
			return
		}
		select {
		case s.inbound <- data:
		default:
			s.logger.Warn(context.Background(), "unsolicited executor message dropped")
		}
	}
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.conn.Close()
	})
}

// NextGoal blocks until the executor submits the next goal. A JSON
// frame {"goal": "..."} is preferred; any other text frame is taken
// verbatim.
func (s *session) NextGoal(ctx context.Context) (string, error) {
	select {
	case data := <-s.inbound:
		var msg struct {
			Goal string `json:"goal"`
		}
		if err := json.Unmarshal(data, &msg); err == nil && msg.Goal != "" {
			return strings.TrimSpace(msg.Goal), nil
		}
		return strings.TrimSpace(string(data)), nil
	case <-s.closed:
		return "", errSessionClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Deliver implements workflow.ExecutionChannel. The request frame on the
// wire is the EXECUTION_REQUEST event envelope; Emit skips that event
// kind so it is written exactly once.
//
// A frame still buffered at this point is the late outcome of a request
// the engine already timed out on; it is discarded so the next Await
// only sees answers to this request.
func (s *session) Deliver(ctx context.Context, req workflow.ExecutionRequest) error {
	select {
	case <-s.inbound:
		s.logger.Warn(ctx, "stale executor outcome discarded",
			zap.String("step_id", req.StepID))
	default:
	}
	return s.write(workflow.Event{
		Type:      workflow.EventExecutionRequest,
		RunID:     s.runID,
		StepID:    req.StepID,
		Timestamp: time.Now().UTC(),
		Data: workflow.ExecutionRequestData{
			Code:         req.Code,
			Language:     req.Language,
			Instructions: req.Instructions,
		},
	})
}

// Await implements workflow.ExecutionChannel. The executor reports an
// outcome as JSON {"output": ..., "succeeded": ...}; a plain text frame
// is taken as the raw output of a run the executor considers successful.
func (s *session) Await(ctx context.Context) (workflow.ExecutionOutcome, error) {
	select {
	case data := <-s.inbound:
		return parseOutcome(data), nil
	case <-s.closed:
		return workflow.ExecutionOutcome{}, errSessionClosed
	case <-ctx.Done():
		return workflow.ExecutionOutcome{}, ctx.Err()
	}
}

func parseOutcome(data []byte) workflow.ExecutionOutcome {
	var msg struct {
		Output    string `json:"output"`
		Succeeded *bool  `json:"succeeded"`
	}
	if err := json.Unmarshal(data, &msg); err == nil && (msg.Succeeded != nil || msg.Output != "") {
		outcome := workflow.ExecutionOutcome{RawOutput: msg.Output, Succeeded: true}
		if msg.Succeeded != nil {
			outcome.Succeeded = *msg.Succeeded
		}
		return outcome
	}
	return workflow.ExecutionOutcome{
		RawOutput: strings.TrimSpace(string(data)),
		Succeeded: true,
	}
}

// Emit implements workflow.Sink, streaming lifecycle events to the
// executor. Events after the connection is gone are dropped; the engine
// finishes its run regardless.
func (s *session) Emit(ctx context.Context, ev workflow.Event) {
	if ev.Type == workflow.EventRunStart {
		s.runID = ev.RunID
	}
	if ev.Type == workflow.EventExecutionRequest {
		// Deliver writes the authoritative request frame.
		return
	}
	if err := s.write(ev); err != nil {
		s.logger.Debug(ctx, "event dropped",
			zap.String("event", string(ev.Type)),
			zap.Error(err),
		)
	}
}

func (s *session) write(ev workflow.Event) error {
	select {
	case <-s.closed:
		return errSessionClosed
	default:
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteJSON(ev)
}
