package workflow

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/conductord/internal/logging"
)

// EventType identifies a lifecycle event kind.
type EventType string

const (
	EventRunStart         EventType = "RUN_START"
	EventPlanReady        EventType = "PLAN_READY"
	EventStepBegin        EventType = "STEP_BEGIN"
	EventInstructionReady EventType = "INSTRUCTION_READY"
	EventExecutionRequest EventType = "EXECUTION_REQUEST"
	EventStepSucceeded    EventType = "STEP_SUCCEEDED"
	EventStepFailed       EventType = "STEP_FAILED"
	EventRepairBegin      EventType = "REPAIR_BEGIN"
	EventRepairReady      EventType = "REPAIR_READY"
	EventRepairSucceeded  EventType = "REPAIR_SUCCEEDED"
	EventRepairFailed     EventType = "REPAIR_FAILED"
	EventStepAborted      EventType = "STEP_ABORTED"
	EventSummaryReady     EventType = "SUMMARY_READY"
	EventRunComplete      EventType = "RUN_COMPLETE"
)

// Event is one entry in the ordered lifecycle stream the engine emits.
// Data holds a typed payload struct per event kind.
type Event struct {
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id"`
	StepID    string    `json:"step_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// Event payloads.

// RunStartData accompanies RUN_START.
type RunStartData struct {
	Goal string `json:"goal"`
}

// StepSummary is one entry in the PLAN_READY step listing.
type StepSummary struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// PlanReadyData accompanies PLAN_READY.
type PlanReadyData struct {
	Steps []StepSummary `json:"steps"`
}

// StepBeginData accompanies STEP_BEGIN.
type StepBeginData struct {
	Description string `json:"description"`
}

// InstructionReadyData accompanies INSTRUCTION_READY and REPAIR_READY.
type InstructionReadyData struct {
	Attempt   int    `json:"attempt,omitempty"`
	Language  string `json:"language"`
	Code      string `json:"code"`
	Reasoning string `json:"reasoning"`
}

// ExecutionRequestData accompanies EXECUTION_REQUEST.
type ExecutionRequestData struct {
	Code         string `json:"code"`
	Language     string `json:"language"`
	Instructions string `json:"instructions"`
}

// StepResultData accompanies STEP_SUCCEEDED, STEP_FAILED,
// REPAIR_SUCCEEDED and REPAIR_FAILED.
type StepResultData struct {
	Attempt int    `json:"attempt,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Output  string `json:"output,omitempty"`
}

// RepairBeginData accompanies REPAIR_BEGIN.
type RepairBeginData struct {
	Attempt     int `json:"attempt"`
	MaxAttempts int `json:"max_attempts"`
}

// StepAbortedData accompanies STEP_ABORTED.
type StepAbortedData struct {
	Attempts int `json:"attempts"`
}

// SummaryReadyData accompanies SUMMARY_READY.
type SummaryReadyData struct {
	Report *Report `json:"report"`
}

// RunCompleteData accompanies RUN_COMPLETE.
type RunCompleteData struct {
	Status RunStatus `json:"status"`
}

// Sink consumes lifecycle events. Implementations must not block the
// engine and must tolerate being called after their backing transport is
// gone: event delivery is at-least-informational, never load-bearing.
type Sink interface {
	Emit(ctx context.Context, ev Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, ev Event)

// Emit implements Sink.
func (f SinkFunc) Emit(ctx context.Context, ev Event) {
	f(ctx, ev)
}

// MultiSink fans events out to several sinks in order.
type MultiSink []Sink

// Emit implements Sink.
func (m MultiSink) Emit(ctx context.Context, ev Event) {
	for _, s := range m {
		s.Emit(ctx, ev)
	}
}

// LogSink writes every event to the structured log.
type LogSink struct {
	logger *logging.Logger
}

// NewLogSink creates a sink that records events via the given logger.
func NewLogSink(logger *logging.Logger) *LogSink {
	return &LogSink{logger: logger.Named("events")}
}

// Emit implements Sink.
func (s *LogSink) Emit(ctx context.Context, ev Event) {
	fields := []zap.Field{
		zap.String("event", string(ev.Type)),
		zap.String("run_id", ev.RunID),
	}
	if ev.StepID != "" {
		fields = append(fields, zap.String("step_id", ev.StepID))
	}
	s.logger.Info(ctx, "workflow event", fields...)
}
