// Package events publishes workflow lifecycle events to NATS so that
// observers other than the connected executor (dashboards, auditing) can
// follow runs without touching the WebSocket session.
//
// Events are published to subjects:
//
//	{prefix}.{run_id}.{event_type}
//
// with the event type lowercased, e.g. conductor.runs.run-1a2b3c4d.step_begin.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/conductord/internal/logging"
	"github.com/fyrsmithlabs/conductord/internal/workflow"
)

// NATSSink is a workflow.Sink backed by a NATS connection. Publishing is
// fire-and-forget: a failed publish is logged and dropped, it never
// stalls or fails the run.
type NATSSink struct {
	conn     *nats.Conn
	prefix   string
	logger   *logging.Logger
	ownsConn bool
}

// NewNATSSink connects to NATS and returns a sink owning the connection.
func NewNATSSink(url, prefix string, logger *logging.Logger) (*NATSSink, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(1*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}

	sink := NewNATSSinkFromConn(nc, prefix, logger)
	sink.ownsConn = true
	return sink, nil
}

// NewNATSSinkFromConn wraps an existing connection. The caller keeps
// ownership and must close it.
func NewNATSSinkFromConn(nc *nats.Conn, prefix string, logger *logging.Logger) *NATSSink {
	return &NATSSink{
		conn:   nc,
		prefix: prefix,
		logger: logger.Named("events"),
	}
}

// Emit implements workflow.Sink.
func (s *NATSSink) Emit(ctx context.Context, ev workflow.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.logger.Warn(ctx, "event not serializable, dropped",
			zap.String("event", string(ev.Type)),
			zap.Error(err),
		)
		return
	}

	subject := s.subject(ev)
	if err := s.conn.Publish(subject, data); err != nil {
		s.logger.Warn(ctx, "event publish failed, dropped",
			zap.String("subject", subject),
			zap.Error(err),
		)
	}
}

// Close releases the connection when the sink owns it.
func (s *NATSSink) Close() {
	if s.ownsConn {
		s.conn.Close()
	}
}

func (s *NATSSink) subject(ev workflow.Event) string {
	return fmt.Sprintf("%s.%s.%s", s.prefix, ev.RunID, strings.ToLower(string(ev.Type)))
}
