// Package command implements control plane command handling.
package command

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"icc.tech/netem-agent/internal/config"
	"icc.tech/netem-agent/internal/engine"
)

// CommandHandler handles control plane commands.
type CommandHandler struct {
	processor    *engine.Processor
	shutdownFunc func() // Called by daemon.shutdown to trigger graceful stop
	startTime    int64  // Unix timestamp of daemon start for uptime calc
}

// NewCommandHandler creates a new command handler.
func NewCommandHandler(p *engine.Processor) *CommandHandler {
	return &CommandHandler{
		processor: p,
		startTime: time.Now().Unix(),
	}
}

// SetShutdownFunc sets the callback invoked by the daemon.shutdown command.
func (h *CommandHandler) SetShutdownFunc(fn func()) {
	h.shutdownFunc = fn
}

// Command represents a control plane command.
type Command struct {
	Method string          `json:"method"` // e.g., "emulation.start", "emulation.stop"
	Params json.RawMessage `json:"params"` // command-specific parameters
	ID     string          `json:"id"`     // request ID for tracking
}

// Response represents a command response.
type Response struct {
	ID     string      `json:"id"`               // matches request ID
	Result interface{} `json:"result,omitempty"` // success result
	Error  *ErrorInfo  `json:"error,omitempty"`  // error info if failed
}

// ErrorInfo represents an error in the response.
type ErrorInfo struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrCodeParseError     = -32700 // Invalid JSON
	ErrCodeInvalidRequest = -32600 // Invalid request object
	ErrCodeMethodNotFound = -32601 // Method not found
	ErrCodeInvalidParams  = -32602 // Invalid method parameters
	ErrCodeInternalError  = -32603 // Internal error
)

// Handle processes a command and returns a response.
func (h *CommandHandler) Handle(ctx context.Context, cmd Command) Response {
	slog.Info("handling command", "method", cmd.Method, "id", cmd.ID)

	switch cmd.Method {
	case "emulation.start":
		return h.handleEmulationStart(ctx, cmd)
	case "emulation.stop":
		return h.handleEmulationStop(ctx, cmd)
	case "emulation.update_settings":
		return h.handleUpdateSettings(ctx, cmd)
	case "emulation.update_filter":
		return h.handleUpdateFilter(ctx, cmd)
	case "emulation.status":
		return h.handleEmulationStatus(ctx, cmd)
	case "daemon.shutdown":
		return h.handleDaemonShutdown(ctx, cmd)
	default:
		return Response{
			ID: cmd.ID,
			Error: &ErrorInfo{
				Code:    ErrCodeMethodNotFound,
				Message: fmt.Sprintf("method %q not found", cmd.Method),
			},
		}
	}
}

// StartParams represents parameters for the emulation.start command.
// Settings is a module settings document; missing fields take defaults.
type StartParams struct {
	Settings json.RawMessage `json:"settings,omitempty"`
	Filter   string          `json:"filter,omitempty"`
}

// handleEmulationStart handles the emulation.start command.
func (h *CommandHandler) handleEmulationStart(_ context.Context, cmd Command) Response {
	var params StartParams
	if len(cmd.Params) > 0 {
		if err := json.Unmarshal(cmd.Params, &params); err != nil {
			return Response{
				ID: cmd.ID,
				Error: &ErrorInfo{
					Code:    ErrCodeInvalidParams,
					Message: fmt.Sprintf("invalid params: %v", err),
				},
			}
		}
	}

	settings, err := parseSettingsDoc(params.Settings)
	if err != nil {
		return Response{
			ID: cmd.ID,
			Error: &ErrorInfo{
				Code:    ErrCodeInvalidParams,
				Message: fmt.Sprintf("invalid settings: %v", err),
			},
		}
	}

	if err := h.processor.Start(settings, params.Filter); err != nil {
		return Response{
			ID: cmd.ID,
			Error: &ErrorInfo{
				Code:    ErrCodeInternalError,
				Message: fmt.Sprintf("start emulation failed: %v", err),
			},
		}
	}

	return Response{
		ID: cmd.ID,
		Result: map[string]interface{}{
			"status": "started",
		},
	}
}

// handleEmulationStop handles the emulation.stop command.
func (h *CommandHandler) handleEmulationStop(_ context.Context, cmd Command) Response {
	if err := h.processor.Stop(); err != nil {
		return Response{
			ID: cmd.ID,
			Error: &ErrorInfo{
				Code:    ErrCodeInternalError,
				Message: fmt.Sprintf("stop emulation failed: %v", err),
			},
		}
	}

	return Response{
		ID: cmd.ID,
		Result: map[string]interface{}{
			"status": "stopped",
		},
	}
}

// UpdateSettingsParams represents parameters for emulation.update_settings.
type UpdateSettingsParams struct {
	Settings json.RawMessage `json:"settings"`
}

// handleUpdateSettings handles the emulation.update_settings command.
// The new document replaces the live one atomically between cycles.
func (h *CommandHandler) handleUpdateSettings(_ context.Context, cmd Command) Response {
	var params UpdateSettingsParams
	if err := json.Unmarshal(cmd.Params, &params); err != nil {
		return Response{
			ID: cmd.ID,
			Error: &ErrorInfo{
				Code:    ErrCodeInvalidParams,
				Message: fmt.Sprintf("invalid params: %v", err),
			},
		}
	}

	settings, err := parseSettingsDoc(params.Settings)
	if err != nil {
		return Response{
			ID: cmd.ID,
			Error: &ErrorInfo{
				Code:    ErrCodeInvalidParams,
				Message: fmt.Sprintf("invalid settings: %v", err),
			},
		}
	}

	if err := h.processor.UpdateSettings(settings); err != nil {
		return Response{
			ID: cmd.ID,
			Error: &ErrorInfo{
				Code:    ErrCodeInternalError,
				Message: fmt.Sprintf("update settings failed: %v", err),
			},
		}
	}

	return Response{
		ID: cmd.ID,
		Result: map[string]interface{}{
			"status": "updated",
		},
	}
}

// UpdateFilterParams represents parameters for emulation.update_filter.
type UpdateFilterParams struct {
	Filter string `json:"filter"`
}

// handleUpdateFilter handles the emulation.update_filter command.
func (h *CommandHandler) handleUpdateFilter(_ context.Context, cmd Command) Response {
	var params UpdateFilterParams
	if err := json.Unmarshal(cmd.Params, &params); err != nil {
		return Response{
			ID: cmd.ID,
			Error: &ErrorInfo{
				Code:    ErrCodeInvalidParams,
				Message: fmt.Sprintf("invalid params: %v", err),
			},
		}
	}

	if err := h.processor.UpdateFilter(params.Filter); err != nil {
		return Response{
			ID: cmd.ID,
			Error: &ErrorInfo{
				Code:    ErrCodeInternalError,
				Message: fmt.Sprintf("update filter failed: %v", err),
			},
		}
	}

	return Response{
		ID: cmd.ID,
		Result: map[string]interface{}{
			"status": "updated",
			"filter": params.Filter,
		},
	}
}

// handleEmulationStatus returns the processor state plus daemon uptime.
func (h *CommandHandler) handleEmulationStatus(_ context.Context, cmd Command) Response {
	status := h.processor.Status()
	uptimeSeconds := time.Now().Unix() - h.startTime

	return Response{
		ID: cmd.ID,
		Result: map[string]interface{}{
			"uptime_sec": uptimeSeconds,
			"emulation":  status,
		},
	}
}

// handleDaemonShutdown triggers graceful daemon shutdown via the registered callback.
func (h *CommandHandler) handleDaemonShutdown(_ context.Context, cmd Command) Response {
	if h.shutdownFunc == nil {
		return Response{
			ID: cmd.ID,
			Error: &ErrorInfo{
				Code:    ErrCodeInternalError,
				Message: "shutdown handler not registered",
			},
		}
	}

	slog.Info("daemon.shutdown command received, initiating graceful shutdown")
	go h.shutdownFunc() // Non-blocking: let the response be sent first

	return Response{
		ID: cmd.ID,
		Result: map[string]interface{}{
			"status": "shutting_down",
		},
	}
}

// parseSettingsDoc turns an optional raw settings document into a validated
// Settings value. A nil or empty document yields the defaults.
func parseSettingsDoc(raw json.RawMessage) (*config.Settings, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return config.DefaultSettings(), nil
	}
	return config.ParseSettings(raw)
}
