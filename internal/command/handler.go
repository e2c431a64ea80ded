// Package command implements the control plane: a JSON-RPC 2.0 server
// exposing start/stop/status over a Unix domain socket.
package command

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/icc-tech/bagrecorder/internal/metrics"
	"github.com/icc-tech/bagrecorder/internal/recorder"
	"github.com/icc-tech/bagrecorder/internal/status"
)

// CommandHandler dispatches control plane commands against a Recorder.
type CommandHandler struct {
	rec       *recorder.Recorder
	startTime int64
}

// NewCommandHandler creates a handler bound to rec.
func NewCommandHandler(rec *recorder.Recorder) *CommandHandler {
	return &CommandHandler{
		rec:       rec,
		startTime: time.Now().Unix(),
	}
}

// Command represents a control plane command.
type Command struct {
	Method string          `json:"method"` // "start", "stop", "status"
	Params json.RawMessage `json:"params"`
	ID     string          `json:"id"`
}

// Response represents a command response.
type Response struct {
	ID     string      `json:"id"`
	Result interface{} `json:"result,omitempty"`
	Error  *ErrorInfo  `json:"error,omitempty"`
}

// ErrorInfo represents an error in the response.
type ErrorInfo struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error codes, per the JSON-RPC 2.0 spec.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// TriggerResult is the result shape for start/stop: a boolean outcome
// plus a human-readable message.
type TriggerResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Handle processes a command and returns a response.
func (h *CommandHandler) Handle(ctx context.Context, cmd Command) Response {
	slog.Debug("handling control command", "method", cmd.Method, "id", cmd.ID)

	var resp Response
	outcome := "ok"
	switch cmd.Method {
	case "start":
		resp = h.handleStart(cmd)
	case "stop":
		resp = h.handleStop(cmd)
	case "status":
		resp = h.handleStatus(cmd)
	default:
		outcome = "error"
		resp = Response{
			ID: cmd.ID,
			Error: &ErrorInfo{
				Code:    ErrCodeMethodNotFound,
				Message: fmt.Sprintf("method %q not found", cmd.Method),
			},
		}
	}
	if resp.Error != nil {
		outcome = "error"
	}
	metrics.ControlRequestsTotal.WithLabelValues(cmd.Method, outcome).Inc()
	return resp
}

// handleStart triggers recording. Idempotent: starting an
// already-running recorder is reported as a non-fatal failure with an
// explanatory message rather than an RPC error.
func (h *CommandHandler) handleStart(cmd Command) Response {
	if err := h.rec.Start(); err != nil {
		return Response{
			ID: cmd.ID,
			Result: TriggerResult{
				Success: false,
				Message: err.Error(),
			},
		}
	}
	return Response{
		ID: cmd.ID,
		Result: TriggerResult{
			Success: true,
			Message: "recording started",
		},
	}
}

// handleStop triggers a graceful stop of recording.
func (h *CommandHandler) handleStop(cmd Command) Response {
	if err := h.rec.Stop(); err != nil {
		return Response{
			ID: cmd.ID,
			Result: TriggerResult{
				Success: false,
				Message: err.Error(),
			},
		}
	}
	return Response{
		ID: cmd.ID,
		Result: TriggerResult{
			Success: true,
			Message: "recording stopped",
		},
	}
}

// handleStatus returns the current status.Snapshot.
func (h *CommandHandler) handleStatus(cmd Command) Response {
	reporter := h.rec.StatusReporter()
	if reporter == nil {
		return Response{
			ID: cmd.ID,
			Result: status.Snapshot{
				Status: status.Paused,
			},
		}
	}
	return Response{
		ID:     cmd.ID,
		Result: reporter.Snapshot(),
	}
}
